package sim

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// validateItem checks an incoming item and returns the user group it should
// be validated against. Plans must be allowed for the group; instructions
// are limited to queue_stop.
func (m *Manager) validateItem(item map[string]any, params map[string]any) error {
	itemType, _ := item["item_type"].(string)
	name, _ := item["name"].(string)

	if name == "" {
		return fmt.Errorf("item name is missing or empty")
	}

	group, _ := params["user_group"].(string)
	if group == "" {
		group = "admin"
	}

	switch itemType {
	case "plan":
		allowed := m.profile.AllowedPlans(group)
		if _, found := allowed[name]; !found {
			return fmt.Errorf("plan %q is not in the list of allowed plans (user group %q)", name, group)
		}
	case "instruction":
		if name != "queue_stop" {
			return fmt.Errorf("unsupported instruction %q", name)
		}
	case "function":
		// Functions are validated at execution time.
	default:
		return fmt.Errorf("unsupported item type %q", itemType)
	}
	return nil
}

// acceptItem assigns the server-side fields of a newly submitted item.
func acceptItem(item, params map[string]any) map[string]any {
	out := copyItem(item)
	out["item_uid"] = uuid.New().String()
	if user, _ := params["user"].(string); user != "" {
		out["user"] = user
	}
	if group, _ := params["user_group"].(string); group != "" {
		out["user_group"] = group
	}
	return out
}

// insertIndex resolves pos/before_uid/after_uid parameters into an insertion
// index for a queue of length n. Positions follow Python list semantics:
// negative indices count from the back and out-of-range values are clamped.
func insertIndex(queue []map[string]any, params map[string]any) (int, error) {
	pos, hasPos := params["pos"]
	beforeUID, hasBefore := params["before_uid"].(string)
	afterUID, hasAfter := params["after_uid"].(string)

	set := 0
	if hasPos {
		set++
	}
	if hasBefore {
		set++
	}
	if hasAfter {
		set++
	}
	if set > 1 {
		return 0, fmt.Errorf("ambiguous parameters: only one of 'pos', 'before_uid' and 'after_uid' may be specified")
	}

	n := len(queue)
	switch {
	case hasBefore:
		i := findByUID(queue, beforeUID)
		if i < 0 {
			return 0, fmt.Errorf("item with UID %q is not in the queue", beforeUID)
		}
		return i, nil
	case hasAfter:
		i := findByUID(queue, afterUID)
		if i < 0 {
			return 0, fmt.Errorf("item with UID %q is not in the queue", afterUID)
		}
		return i + 1, nil
	case hasPos:
		return resolvePos(pos, n, n)
	default:
		return n, nil
	}
}

// resolvePos converts a 'pos' parameter ("front", "back" or an index) into
// a concrete index, clamped to [0, max].
func resolvePos(pos any, n, max int) (int, error) {
	switch v := pos.(type) {
	case string:
		switch v {
		case "front":
			return 0, nil
		case "back":
			return max, nil
		default:
			return 0, fmt.Errorf("unsupported position %q", v)
		}
	case float64:
		i := int(v)
		if i < 0 {
			i += n
		}
		if i < 0 {
			i = 0
		}
		if i > max {
			i = max
		}
		return i, nil
	case int:
		return resolvePos(float64(v), n, max)
	default:
		return 0, fmt.Errorf("unsupported position type %T", pos)
	}
}

// selectIndex resolves pos/uid parameters into the index of an existing
// queue item. Defaults to the item at the back.
func selectIndex(queue []map[string]any, params map[string]any) (int, error) {
	pos, hasPos := params["pos"]
	uid, hasUID := params["uid"].(string)

	if hasPos && hasUID {
		return 0, fmt.Errorf("ambiguous parameters: 'pos' and 'uid' cannot be specified together")
	}

	n := len(queue)
	if n == 0 {
		return 0, fmt.Errorf("the queue is empty")
	}

	if hasUID {
		i := findByUID(queue, uid)
		if i < 0 {
			return 0, fmt.Errorf("item with UID %q is not in the queue", uid)
		}
		return i, nil
	}

	if hasPos {
		i, err := resolvePos(pos, n, n-1)
		if err != nil {
			return 0, err
		}
		return i, nil
	}
	return n - 1, nil
}

func findByUID(queue []map[string]any, uid string) int {
	for i, item := range queue {
		if u, _ := item["item_uid"].(string); u == uid {
			return i
		}
	}
	return -1
}

func (m *Manager) handleItemAdd(ctx context.Context, params map[string]any) map[string]any {
	item, ok2 := params["item"].(map[string]any)
	if !ok2 {
		return fail("Parameter 'item' is missing")
	}
	if err := m.validateItem(item, params); err != nil {
		return fail("Failed to add an item: %v", err)
	}

	queue, err := m.store.Queue(ctx)
	if err != nil {
		return fail("Failed to read queue: %v", err)
	}

	i, err := insertIndex(queue, params)
	if err != nil {
		return fail("Failed to add an item: %v", err)
	}

	accepted := acceptItem(item, params)
	queue = append(queue[:i:i], append([]map[string]any{accepted}, queue[i:]...)...)
	if err := m.store.ReplaceQueue(ctx, queue); err != nil {
		return fail("Failed to write queue: %v", err)
	}

	return ok(map[string]any{"item": accepted, "qsize": len(queue)})
}

func (m *Manager) handleItemAddBatch(ctx context.Context, params map[string]any) map[string]any {
	rawItems, ok2 := params["items"].([]any)
	if !ok2 {
		return fail("Parameter 'items' is missing")
	}

	// The batch is validated in full before any item is added: it is
	// accepted or rejected atomically.
	batch := make([]map[string]any, 0, len(rawItems))
	for i, v := range rawItems {
		item, isMap := v.(map[string]any)
		if !isMap {
			return fail("Item %d of the batch is not a dictionary", i)
		}
		if err := m.validateItem(item, params); err != nil {
			return fail("Failed to add item %d of the batch: %v", i, err)
		}
		batch = append(batch, acceptItem(item, params))
	}

	queue, err := m.store.Queue(ctx)
	if err != nil {
		return fail("Failed to read queue: %v", err)
	}

	i, err := insertIndex(queue, params)
	if err != nil {
		return fail("Failed to add the batch: %v", err)
	}

	queue = append(queue[:i:i], append(batch, queue[i:]...)...)
	if err := m.store.ReplaceQueue(ctx, queue); err != nil {
		return fail("Failed to write queue: %v", err)
	}

	return ok(map[string]any{"items": itemsToWire(batch), "qsize": len(queue)})
}

func (m *Manager) handleItemGet(ctx context.Context, params map[string]any) map[string]any {
	queue, err := m.store.Queue(ctx)
	if err != nil {
		return fail("Failed to read queue: %v", err)
	}

	i, err := selectIndex(queue, params)
	if err != nil {
		return fail("Failed to get an item: %v", err)
	}
	return ok(map[string]any{"item": queue[i]})
}

func (m *Manager) handleItemUpdate(ctx context.Context, params map[string]any) map[string]any {
	item, ok2 := params["item"].(map[string]any)
	if !ok2 {
		return fail("Parameter 'item' is missing")
	}
	uid, _ := item["item_uid"].(string)
	if uid == "" {
		return fail("Failed to update an item: the item has no UID")
	}
	if err := m.validateItem(item, params); err != nil {
		return fail("Failed to update an item: %v", err)
	}

	queue, err := m.store.Queue(ctx)
	if err != nil {
		return fail("Failed to read queue: %v", err)
	}

	i := findByUID(queue, uid)
	if i < 0 {
		return fail("Failed to update an item: item with UID %q is not in the queue", uid)
	}

	updated := copyItem(item)
	if replace, _ := params["replace"].(bool); replace {
		updated["item_uid"] = uuid.New().String()
	}
	queue[i] = updated
	if err := m.store.ReplaceQueue(ctx, queue); err != nil {
		return fail("Failed to write queue: %v", err)
	}
	return ok(map[string]any{"item": updated, "qsize": len(queue)})
}

func (m *Manager) handleItemRemove(ctx context.Context, params map[string]any) map[string]any {
	queue, err := m.store.Queue(ctx)
	if err != nil {
		return fail("Failed to read queue: %v", err)
	}

	i, err := selectIndex(queue, params)
	if err != nil {
		return fail("Failed to remove an item: %v", err)
	}

	removed := queue[i]
	queue = append(queue[:i], queue[i+1:]...)
	if err := m.store.ReplaceQueue(ctx, queue); err != nil {
		return fail("Failed to write queue: %v", err)
	}
	return ok(map[string]any{"item": removed, "qsize": len(queue)})
}

func (m *Manager) handleItemRemoveBatch(ctx context.Context, params map[string]any) map[string]any {
	rawUIDs, ok2 := params["uids"].([]any)
	if !ok2 {
		return fail("Parameter 'uids' is missing")
	}
	ignoreMissing, _ := params["ignore_missing"].(bool)

	queue, err := m.store.Queue(ctx)
	if err != nil {
		return fail("Failed to read queue: %v", err)
	}

	seen := map[string]bool{}
	remove := map[string]bool{}
	for _, v := range rawUIDs {
		uid, _ := v.(string)
		if !ignoreMissing {
			if seen[uid] {
				return fail("Failed to remove the batch: UID %q is listed multiple times", uid)
			}
			if findByUID(queue, uid) < 0 {
				return fail("Failed to remove the batch: item with UID %q is not in the queue", uid)
			}
		}
		seen[uid] = true
		remove[uid] = true
	}

	var removed []map[string]any
	var remaining []map[string]any
	for _, item := range queue {
		uid, _ := item["item_uid"].(string)
		if remove[uid] {
			removed = append(removed, item)
		} else {
			remaining = append(remaining, item)
		}
	}

	if err := m.store.ReplaceQueue(ctx, remaining); err != nil {
		return fail("Failed to write queue: %v", err)
	}
	return ok(map[string]any{"items": itemsToWire(removed), "qsize": len(remaining)})
}

func (m *Manager) handleItemMove(ctx context.Context, params map[string]any) map[string]any {
	queue, err := m.store.Queue(ctx)
	if err != nil {
		return fail("Failed to read queue: %v", err)
	}

	src, err := selectIndex(queue, params)
	if err != nil {
		return fail("Failed to move an item: %v", err)
	}

	item := queue[src]
	rest := append(append([]map[string]any{}, queue[:src]...), queue[src+1:]...)

	dst, err := moveDestIndex(rest, params)
	if err != nil {
		return fail("Failed to move an item: %v", err)
	}

	moved := append(rest[:dst:dst], append([]map[string]any{item}, rest[dst:]...)...)
	if err := m.store.ReplaceQueue(ctx, moved); err != nil {
		return fail("Failed to write queue: %v", err)
	}
	return ok(map[string]any{"item": item, "qsize": len(moved)})
}

// moveDestIndex resolves pos_dest/before_uid/after_uid for move operations.
func moveDestIndex(queue []map[string]any, params map[string]any) (int, error) {
	dest := map[string]any{}
	if v, found := params["pos_dest"]; found {
		dest["pos"] = v
	}
	if v, found := params["before_uid"]; found {
		dest["before_uid"] = v
	}
	if v, found := params["after_uid"]; found {
		dest["after_uid"] = v
	}
	if len(dest) == 0 {
		return 0, fmt.Errorf("destination is not specified")
	}
	return insertIndex(queue, dest)
}

func (m *Manager) handleItemMoveBatch(ctx context.Context, params map[string]any) map[string]any {
	rawUIDs, ok2 := params["uids"].([]any)
	if !ok2 || len(rawUIDs) == 0 {
		return fail("Parameter 'uids' is missing or empty")
	}

	queue, err := m.store.Queue(ctx)
	if err != nil {
		return fail("Failed to read queue: %v", err)
	}

	uids := make([]string, 0, len(rawUIDs))
	for _, v := range rawUIDs {
		uid, _ := v.(string)
		if findByUID(queue, uid) < 0 {
			return fail("Failed to move the batch: item with UID %q is not in the queue", uid)
		}
		uids = append(uids, uid)
	}

	// With reorder the moved items keep their relative order in the queue,
	// otherwise they follow the order of the uids parameter.
	if reorder, _ := params["reorder"].(bool); reorder {
		ordered := make([]string, 0, len(uids))
		want := map[string]bool{}
		for _, uid := range uids {
			want[uid] = true
		}
		for _, item := range queue {
			uid, _ := item["item_uid"].(string)
			if want[uid] {
				ordered = append(ordered, uid)
			}
		}
		uids = ordered
	}

	moving := map[string]bool{}
	for _, uid := range uids {
		moving[uid] = true
	}

	var batch []map[string]any
	var rest []map[string]any
	byUID := map[string]map[string]any{}
	for _, item := range queue {
		uid, _ := item["item_uid"].(string)
		if moving[uid] {
			byUID[uid] = item
		} else {
			rest = append(rest, item)
		}
	}
	for _, uid := range uids {
		batch = append(batch, byUID[uid])
	}

	dst, err := moveDestIndex(rest, params)
	if err != nil {
		return fail("Failed to move the batch: %v", err)
	}

	moved := append(rest[:dst:dst], append(batch, rest[dst:]...)...)
	if err := m.store.ReplaceQueue(ctx, moved); err != nil {
		return fail("Failed to write queue: %v", err)
	}
	return ok(map[string]any{"items": itemsToWire(batch), "qsize": len(moved)})
}

func (m *Manager) handleItemExecute(ctx context.Context, params map[string]any) map[string]any {
	item, ok2 := params["item"].(map[string]any)
	if !ok2 {
		return fail("Parameter 'item' is missing")
	}
	if err := m.validateItem(item, params); err != nil {
		return fail("Failed to start the item: %v", err)
	}

	m.mu.Lock()
	if !m.envExists {
		m.mu.Unlock()
		return fail("RE Worker environment does not exist")
	}
	if m.state != stateIdle {
		state := m.state
		m.mu.Unlock()
		return fail("Manager state is not idle: current state is %q", state)
	}
	m.state = stateStartingQueue
	m.mu.Unlock()

	accepted := acceptItem(item, params)
	go func() {
		runCtx := context.WithoutCancel(ctx)
		m.mu.Lock()
		m.state = stateExecutingQueue
		m.mu.Unlock()

		_ = m.store.SetRunningItem(runCtx, accepted)
		m.executePlan(runCtx, accepted)
		_ = m.store.SetRunningItem(runCtx, nil)

		m.mu.Lock()
		m.state = stateIdle
		m.mu.Unlock()
	}()

	return ok(map[string]any{"item": accepted, "qsize": 0})
}

func (m *Manager) handleHistoryGet(ctx context.Context) map[string]any {
	history, err := m.store.History(ctx)
	if err != nil {
		return fail("Failed to read history: %v", err)
	}
	uid, err := m.store.HistoryUID(ctx)
	if err != nil {
		return fail("Failed to read history UID: %v", err)
	}
	return ok(map[string]any{"items": itemsToWire(history), "plan_history_uid": uid})
}

func (m *Manager) handleHistoryClear(ctx context.Context) map[string]any {
	if err := m.store.ReplaceHistory(ctx, nil); err != nil {
		return fail("Failed to clear history: %v", err)
	}
	m.logf("History cleared")
	return ok(nil)
}
