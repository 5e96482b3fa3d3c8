package qsapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Client is the RE Manager API client. It works identically over the 0MQ and
// HTTP transports and is safe for concurrent use.
//
// The client caches the manager status for a short expiration period (see
// WithStatusExpiration) so that bursts of API calls do not flood the manager
// with status requests. Queue, history, run list and plan/device list
// responses are cached keyed by the UIDs the manager reports in its status:
// a repeated call returns the cached data without a round trip when the
// respective UID has not changed.
type Client struct {
	tr  Transport
	cfg clientConfig

	statusFlight singleflight.Group

	mu         sync.Mutex
	statusRaw  map[string]any
	statusTime time.Time

	queueRaw   map[string]any
	historyRaw map[string]any

	plansAllowed       map[string]map[string]any // user group -> plans
	plansAllowedUID    string
	devicesAllowed     map[string]map[string]any
	devicesAllowedUID  string
	plansExisting      map[string]any
	plansExistingUID   string
	devicesExisting    map[string]any
	devicesExistingUID string

	runList    []Run
	runListUID string
}

// New creates a client over an existing transport. Ownership of the
// transport passes to the client: Close closes it.
func New(tr Transport, opts ...Option) *Client {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Client{
		tr:             tr,
		cfg:            cfg,
		plansAllowed:   map[string]map[string]any{},
		devicesAllowed: map[string]map[string]any{},
	}
}

// NewZMQ creates a client that talks to the manager control socket over 0MQ.
func NewZMQ(opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.resolveZMQ(); err != nil {
		return nil, err
	}

	tr := NewZMQTransport(cfg.zmqControlAddr, cfg.zmqSendTimeout, cfg.zmqRecvTimeout)
	c := New(tr)
	c.cfg = cfg
	return c, nil
}

// NewHTTP creates a client that talks to the manager through the bluesky
// HTTP server REST API.
func NewHTTP(opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.resolveHTTP()

	tr := NewHTTPTransport(cfg.httpServerURI, cfg.httpTimeout)
	c := New(tr)
	c.cfg = cfg
	return c, nil
}

// Protocol reports the transport protocol in use.
func (c *Client) Protocol() Protocol { return c.tr.Protocol() }

// User returns the configured default user name.
func (c *Client) User() string { return c.cfg.user }

// UserGroup returns the configured default user group.
func (c *Client) UserGroup() string { return c.cfg.userGroup }

// Close releases the transport. The client must not be used afterwards.
func (c *Client) Close() error { return c.tr.Close() }

// Send performs a raw request to the manager. It is the escape hatch for
// methods without a typed wrapper and for callers that disabled failed
// request errors and want to inspect rejected responses.
func (c *Client) Send(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	resp, err := c.tr.Send(ctx, method, params)
	if err != nil {
		return nil, err
	}
	if err := c.checkResponse(method, resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// checkResponse validates the response envelope. A response without a
// "success" key (the status response) is considered successful.
func (c *Client) checkResponse(method string, resp map[string]any) error {
	if !c.cfg.failedRequestErrors {
		return nil
	}
	if success, ok := resp["success"].(bool); ok && !success {
		return &RequestFailedError{Method: method, Response: resp}
	}
	return nil
}

// userParams attaches the default user identity to request parameters when
// the transport requires it.
func (c *Client) userParams(params map[string]any) map[string]any {
	if params == nil {
		params = map[string]any{}
	}
	if c.tr.PassUserInfo() {
		params["user"] = c.cfg.user
		params["user_group"] = c.cfg.userGroup
	}
	return params
}

// invalidateStatus clears the cached status so the next call reloads it.
// Called after every request that may change the manager state.
func (c *Client) invalidateStatus() {
	c.mu.Lock()
	c.statusTime = time.Time{}
	c.mu.Unlock()
}

// mutate performs a state-changing request and invalidates the status cache.
func (c *Client) mutate(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	resp, err := c.Send(ctx, method, params)
	c.invalidateStatus()
	return resp, err
}

// Status returns the manager status. A cached snapshot is returned if it is
// younger than the configured expiration period; concurrent callers share a
// single in-flight request.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	c.mu.Lock()
	if c.statusRaw != nil && time.Since(c.statusTime) < c.cfg.statusExpiration {
		raw := c.statusRaw
		c.mu.Unlock()
		return statusFromMap(raw)
	}
	c.mu.Unlock()

	raw, err, _ := c.statusFlight.Do("status", func() (any, error) {
		resp, err := c.Send(ctx, "status", nil)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.statusRaw = resp
		c.statusTime = time.Now()
		c.mu.Unlock()
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return statusFromMap(raw.(map[string]any))
}

// Ping requests the manager status, verifying that the manager is reachable.
func (c *Client) Ping(ctx context.Context) (*Status, error) {
	return c.Status(ctx)
}

// ClearStatusCache discards the cached status snapshot.
func (c *Client) ClearStatusCache() { c.invalidateStatus() }

// AddOption places an item being added to the queue. Without options the
// item is added to the back.
type AddOption func(map[string]any)

// AtPosition adds the item at the given queue position.
func AtPosition(p Position) AddOption {
	return func(m map[string]any) { m["pos"] = p.value() }
}

// BeforeUID adds the item immediately before the item with the given UID.
func BeforeUID(uid string) AddOption {
	return func(m map[string]any) { m["before_uid"] = uid }
}

// AfterUID adds the item immediately after the item with the given UID.
func AfterUID(uid string) AddOption {
	return func(m map[string]any) { m["after_uid"] = uid }
}

// SelectOption identifies an existing queue item by position or UID.
// Without options the manager defaults to the item at the back.
type SelectOption func(map[string]any)

// SelectPos selects the item at the given queue position.
func SelectPos(p Position) SelectOption {
	return func(m map[string]any) { m["pos"] = p.value() }
}

// SelectUID selects the item with the given UID.
func SelectUID(uid string) SelectOption {
	return func(m map[string]any) { m["uid"] = uid }
}

// DestOption identifies the destination of a move operation.
type DestOption func(map[string]any)

// DestPos moves the item to the given queue position.
func DestPos(p Position) DestOption {
	return func(m map[string]any) { m["pos_dest"] = p.value() }
}

// DestBefore moves the item immediately before the item with the given UID.
func DestBefore(uid string) DestOption {
	return func(m map[string]any) { m["before_uid"] = uid }
}

// DestAfter moves the item immediately after the item with the given UID.
func DestAfter(uid string) DestOption {
	return func(m map[string]any) { m["after_uid"] = uid }
}

// ItemAdd submits an item to the queue. The returned item carries the UID
// and user identity assigned by the manager.
func (c *Client) ItemAdd(ctx context.Context, item *Item, opts ...AddOption) (*Item, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}

	m, err := item.ToMap()
	if err != nil {
		return nil, err
	}

	params := map[string]any{"item": m}
	for _, opt := range opts {
		opt(params)
	}
	c.userParams(params)

	resp, err := c.mutate(ctx, "queue_item_add", params)
	if err != nil {
		return nil, err
	}
	return itemFromResponse(resp, "item")
}

// ItemAddBatch submits a batch of items to the queue. The batch is accepted
// or rejected atomically.
func (c *Client) ItemAddBatch(ctx context.Context, items []*Item, opts ...AddOption) ([]*Item, error) {
	wire := make([]any, 0, len(items))
	for i, item := range items {
		if err := item.Validate(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		m, err := item.ToMap()
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		wire = append(wire, m)
	}

	params := map[string]any{"items": wire}
	for _, opt := range opts {
		opt(params)
	}
	c.userParams(params)

	resp, err := c.mutate(ctx, "queue_item_add_batch", params)
	if err != nil {
		return nil, err
	}
	return itemsFromResponse(resp, "items")
}

// ItemGet returns a queue item without removing it. Defaults to the item at
// the back of the queue.
func (c *Client) ItemGet(ctx context.Context, sel ...SelectOption) (*Item, error) {
	params := map[string]any{}
	for _, s := range sel {
		s(params)
	}

	resp, err := c.Send(ctx, "queue_item_get", params)
	if err != nil {
		return nil, err
	}
	return itemFromResponse(resp, "item")
}

// ItemUpdate replaces the queue item with the same UID as the given item.
// With replace true the item UID is regenerated, otherwise it is preserved.
func (c *Client) ItemUpdate(ctx context.Context, item *Item, replace bool) (*Item, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}

	m, err := item.ToMap()
	if err != nil {
		return nil, err
	}

	params := map[string]any{"item": m, "replace": replace}
	c.userParams(params)

	resp, err := c.mutate(ctx, "queue_item_update", params)
	if err != nil {
		return nil, err
	}
	return itemFromResponse(resp, "item")
}

// ItemRemove removes a queue item. Defaults to the item at the back of the
// queue. The removed item is returned.
func (c *Client) ItemRemove(ctx context.Context, sel ...SelectOption) (*Item, error) {
	params := map[string]any{}
	for _, s := range sel {
		s(params)
	}

	resp, err := c.mutate(ctx, "queue_item_remove", params)
	if err != nil {
		return nil, err
	}
	return itemFromResponse(resp, "item")
}

// ItemRemoveBatch removes a batch of items by UID. With ignoreMissing false
// the operation fails if any UID is missing from the queue or duplicated.
func (c *Client) ItemRemoveBatch(ctx context.Context, uids []string, ignoreMissing bool) ([]*Item, error) {
	params := map[string]any{"uids": uids, "ignore_missing": ignoreMissing}

	resp, err := c.mutate(ctx, "queue_item_remove_batch", params)
	if err != nil {
		return nil, err
	}
	return itemsFromResponse(resp, "items")
}

// ItemMove moves a queue item to a new position.
func (c *Client) ItemMove(ctx context.Context, src SelectOption, dest DestOption) (*Item, error) {
	params := map[string]any{}
	src(params)
	dest(params)

	resp, err := c.mutate(ctx, "queue_item_move", params)
	if err != nil {
		return nil, err
	}
	return itemFromResponse(resp, "item")
}

// ItemMoveBatch moves a batch of items identified by UIDs to a new position.
// With reorder true the moved items are ordered as they were in the queue,
// otherwise they follow the order of uids.
func (c *Client) ItemMoveBatch(ctx context.Context, uids []string, dest DestOption, reorder bool) ([]*Item, error) {
	params := map[string]any{"uids": uids, "reorder": reorder}
	dest(params)

	resp, err := c.mutate(ctx, "queue_item_move_batch", params)
	if err != nil {
		return nil, err
	}
	return itemsFromResponse(resp, "items")
}

// ItemExecute immediately starts execution of an item outside the queue.
// The worker environment must be open and the manager idle.
func (c *Client) ItemExecute(ctx context.Context, item *Item) (*Item, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}

	m, err := item.ToMap()
	if err != nil {
		return nil, err
	}

	params := map[string]any{"item": m}
	c.userParams(params)

	resp, err := c.mutate(ctx, "queue_item_execute", params)
	if err != nil {
		return nil, err
	}
	return itemFromResponse(resp, "item")
}

// QueueGet returns the queue contents and the currently running item.
// Served from cache while the plan queue UID reported by the manager status
// is unchanged.
func (c *Client) QueueGet(ctx context.Context) (*Queue, error) {
	st, err := c.Status(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.queueRaw != nil {
		if uid, _ := c.queueRaw["plan_queue_uid"].(string); uid == st.PlanQueueUID {
			raw := c.queueRaw
			c.mu.Unlock()
			return queueFromMap(raw)
		}
	}
	c.mu.Unlock()

	resp, err := c.Send(ctx, "queue_get", nil)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.queueRaw = resp
	c.mu.Unlock()
	return queueFromMap(resp)
}

// QueueClear removes all items from the queue. The running item, if any, is
// not affected.
func (c *Client) QueueClear(ctx context.Context) error {
	_, err := c.mutate(ctx, "queue_clear", nil)
	return err
}

// QueueStart starts execution of the queue. The worker environment must be
// open.
func (c *Client) QueueStart(ctx context.Context) error {
	_, err := c.mutate(ctx, "queue_start", nil)
	return err
}

// QueueStop requests the queue to stop after the currently running item
// completes.
func (c *Client) QueueStop(ctx context.Context) error {
	_, err := c.mutate(ctx, "queue_stop", nil)
	return err
}

// QueueStopCancel cancels a pending queue stop request.
func (c *Client) QueueStopCancel(ctx context.Context) error {
	_, err := c.mutate(ctx, "queue_stop_cancel", nil)
	return err
}

// QueueModeSet changes queue mode parameters, e.g. {"loop": true}.
func (c *Client) QueueModeSet(ctx context.Context, mode map[string]any) error {
	_, err := c.mutate(ctx, "queue_mode_set", map[string]any{"mode": mode})
	return err
}

// HistoryGet returns the plan history. Served from cache while the history
// UID reported by the manager status is unchanged.
func (c *Client) HistoryGet(ctx context.Context) (*History, error) {
	st, err := c.Status(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.historyRaw != nil {
		if uid, _ := c.historyRaw["plan_history_uid"].(string); uid == st.PlanHistoryUID {
			raw := c.historyRaw
			c.mu.Unlock()
			return historyFromMap(raw)
		}
	}
	c.mu.Unlock()

	resp, err := c.Send(ctx, "history_get", nil)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.historyRaw = resp
	c.mu.Unlock()
	return historyFromMap(resp)
}

// HistoryClear removes all items from the plan history.
func (c *Client) HistoryClear(ctx context.Context) error {
	_, err := c.mutate(ctx, "history_clear", nil)
	return err
}

// EnvironmentOpen requests the manager to open the worker environment.
// The call returns as soon as the request is accepted; use WaitForIdle to
// wait for the environment to be ready.
func (c *Client) EnvironmentOpen(ctx context.Context) error {
	_, err := c.mutate(ctx, "environment_open", nil)
	return err
}

// EnvironmentClose requests an orderly shutdown of the worker environment.
func (c *Client) EnvironmentClose(ctx context.Context) error {
	_, err := c.mutate(ctx, "environment_close", nil)
	return err
}

// EnvironmentDestroy kills the worker process unconditionally.
func (c *Client) EnvironmentDestroy(ctx context.Context) error {
	_, err := c.mutate(ctx, "environment_destroy", nil)
	return err
}

// REPause requests the run engine to pause the running plan. With
// PauseDeferred the plan pauses at the next checkpoint, with PauseImmediate
// right away.
func (c *Client) REPause(ctx context.Context, option PauseOption) error {
	params := map[string]any{}
	if option != "" {
		params["option"] = string(option)
	}
	_, err := c.mutate(ctx, "re_pause", params)
	return err
}

// REResume resumes a paused plan.
func (c *Client) REResume(ctx context.Context) error {
	_, err := c.mutate(ctx, "re_resume", nil)
	return err
}

// REStop stops a paused plan, marking it successful.
func (c *Client) REStop(ctx context.Context) error {
	_, err := c.mutate(ctx, "re_stop", nil)
	return err
}

// REAbort aborts a paused plan, marking it aborted.
func (c *Client) REAbort(ctx context.Context) error {
	_, err := c.mutate(ctx, "re_abort", nil)
	return err
}

// REHalt halts a paused plan without cleanup.
func (c *Client) REHalt(ctx context.Context) error {
	_, err := c.mutate(ctx, "re_halt", nil)
	return err
}

// RERuns returns the list of runs generated by the currently executing plan.
// The manager always reports the full list; filtering by option is performed
// locally. Served from cache while the run list UID is unchanged.
func (c *Client) RERuns(ctx context.Context, option RunsOption) ([]Run, error) {
	if err := option.Validate(); err != nil {
		return nil, err
	}

	st, err := c.Status(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.runListUID != "" && c.runListUID == st.RunListUID {
		runs := filterRuns(c.runList, option)
		c.mu.Unlock()
		return runs, nil
	}
	c.mu.Unlock()

	resp, err := c.Send(ctx, "re_runs", nil)
	if err != nil {
		return nil, err
	}

	runs, err := runsFromResponse(resp)
	if err != nil {
		return nil, err
	}
	uid, _ := resp["run_list_uid"].(string)

	c.mu.Lock()
	c.runList = runs
	c.runListUID = uid
	c.mu.Unlock()

	return filterRuns(runs, option), nil
}

// PlansAllowed returns the plans allowed for the configured user group.
// Cached per user group; the cache is dropped whenever the manager reports a
// new plans_allowed UID.
func (c *Client) PlansAllowed(ctx context.Context) (map[string]any, error) {
	return c.allowedList(ctx, "plans_allowed", c.plansAllowed, &c.plansAllowedUID)
}

// DevicesAllowed returns the devices allowed for the configured user group.
func (c *Client) DevicesAllowed(ctx context.Context) (map[string]any, error) {
	return c.allowedList(ctx, "devices_allowed", c.devicesAllowed, &c.devicesAllowedUID)
}

func (c *Client) allowedList(ctx context.Context, method string, cache map[string]map[string]any, cachedUID *string) (map[string]any, error) {
	group := c.cfg.userGroup
	if !c.tr.PassUserInfo() {
		// The HTTP server resolves the group from login information; the
		// cache key is only a local discriminator here.
		group = "http"
	}

	st, err := c.Status(ctx)
	if err != nil {
		return nil, err
	}

	uidField := method + "_uid"
	var statusUID string
	if v, ok := st.Raw[uidField].(string); ok {
		statusUID = v
	}

	c.mu.Lock()
	if *cachedUID == statusUID {
		if lst, ok := cache[group]; ok {
			c.mu.Unlock()
			return lst, nil
		}
	}
	c.mu.Unlock()

	params := map[string]any{}
	if c.tr.PassUserInfo() {
		params["user_group"] = group
	}

	resp, err := c.Send(ctx, method, params)
	if err != nil {
		return nil, err
	}

	lst, _ := resp[method].(map[string]any)
	uid, _ := resp[uidField].(string)

	c.mu.Lock()
	if *cachedUID != uid {
		// New UID invalidates lists cached for all groups.
		for k := range cache {
			delete(cache, k)
		}
		*cachedUID = uid
	}
	cache[group] = lst
	c.mu.Unlock()

	return lst, nil
}

// PlansExisting returns the full list of plans existing in the worker
// namespace. Cached while the plans_existing UID is unchanged.
func (c *Client) PlansExisting(ctx context.Context) (map[string]any, error) {
	return c.existingList(ctx, "plans_existing", &c.plansExisting, &c.plansExistingUID)
}

// DevicesExisting returns the full list of devices existing in the worker
// namespace.
func (c *Client) DevicesExisting(ctx context.Context) (map[string]any, error) {
	return c.existingList(ctx, "devices_existing", &c.devicesExisting, &c.devicesExistingUID)
}

func (c *Client) existingList(ctx context.Context, method string, cache *map[string]any, cachedUID *string) (map[string]any, error) {
	st, err := c.Status(ctx)
	if err != nil {
		return nil, err
	}

	uidField := method + "_uid"
	var statusUID string
	if v, ok := st.Raw[uidField].(string); ok {
		statusUID = v
	}

	c.mu.Lock()
	if *cache != nil && *cachedUID == statusUID {
		lst := *cache
		c.mu.Unlock()
		return lst, nil
	}
	c.mu.Unlock()

	resp, err := c.Send(ctx, method, nil)
	if err != nil {
		return nil, err
	}

	lst, _ := resp[method].(map[string]any)
	uid, _ := resp[uidField].(string)

	c.mu.Lock()
	*cache = lst
	*cachedUID = uid
	c.mu.Unlock()

	return lst, nil
}

// PermissionsReload requests the manager to reload user group permissions.
func (c *Client) PermissionsReload(ctx context.Context, restorePlansDevices, restorePermissions bool) error {
	params := map[string]any{
		"restore_plans_devices": restorePlansDevices,
		"restore_permissions":   restorePermissions,
	}
	_, err := c.mutate(ctx, "permissions_reload", params)
	return err
}

// PermissionsGet returns the current user group permissions.
func (c *Client) PermissionsGet(ctx context.Context) (map[string]any, error) {
	resp, err := c.Send(ctx, "permissions_get", nil)
	if err != nil {
		return nil, err
	}
	perms, _ := resp["user_group_permissions"].(map[string]any)
	return perms, nil
}

// PermissionsSet uploads new user group permissions.
func (c *Client) PermissionsSet(ctx context.Context, permissions map[string]any) error {
	params := map[string]any{"user_group_permissions": permissions}
	_, err := c.mutate(ctx, "permissions_set", params)
	return err
}

// ScriptUpload uploads a script to be executed in the worker namespace.
// Returns the task UID of the background task.
func (c *Client) ScriptUpload(ctx context.Context, script string, updateRE, runInBackground bool) (string, error) {
	params := map[string]any{
		"script":            script,
		"update_re":         updateRE,
		"run_in_background": runInBackground,
	}

	resp, err := c.mutate(ctx, "script_upload", params)
	if err != nil {
		return "", err
	}
	uid, _ := resp["task_uid"].(string)
	return uid, nil
}

// FunctionExecute starts execution of a function in the worker namespace.
// Returns the task UID of the background task.
func (c *Client) FunctionExecute(ctx context.Context, item *Item, runInBackground bool) (string, error) {
	if err := item.Validate(); err != nil {
		return "", err
	}

	m, err := item.ToMap()
	if err != nil {
		return "", err
	}

	params := map[string]any{"item": m, "run_in_background": runInBackground}
	c.userParams(params)

	resp, err := c.mutate(ctx, "function_execute", params)
	if err != nil {
		return "", err
	}
	uid, _ := resp["task_uid"].(string)
	return uid, nil
}

// TaskStatus returns the status of a background task.
func (c *Client) TaskStatus(ctx context.Context, taskUID string) (TaskStatus, error) {
	resp, err := c.Send(ctx, "task_status", map[string]any{"task_uid": taskUID})
	if err != nil {
		return "", err
	}
	status, _ := resp["status"].(string)
	return TaskStatus(status), nil
}

// TaskResult returns the result of a completed background task.
func (c *Client) TaskResult(ctx context.Context, taskUID string) (map[string]any, error) {
	resp, err := c.Send(ctx, "task_result", map[string]any{"task_uid": taskUID})
	if err != nil {
		return nil, err
	}
	result, _ := resp["result"].(map[string]any)
	return result, nil
}

// ManagerStop requests an orderly shutdown of the manager. option may be
// "safe_on" (default: refuse while a plan is running) or "safe_off".
func (c *Client) ManagerStop(ctx context.Context, option string) error {
	params := map[string]any{}
	if option != "" {
		params["option"] = option
	}
	_, err := c.mutate(ctx, "manager_stop", params)
	return err
}

// ManagerKill causes the manager event loop to lock up. Intended only for
// testing the manager watchdog.
func (c *Client) ManagerKill(ctx context.Context) error {
	_, err := c.mutate(ctx, "manager_kill", nil)
	return err
}

// itemFromResponse extracts and parses an item payload from a response.
func itemFromResponse(resp map[string]any, key string) (*Item, error) {
	m, ok := resp[key].(map[string]any)
	if !ok {
		return nil, nil
	}
	return ItemFromMap(m)
}

// itemsFromResponse extracts and parses a list of items from a response.
func itemsFromResponse(resp map[string]any, key string) ([]*Item, error) {
	lst, ok := resp[key].([]any)
	if !ok {
		return nil, nil
	}

	items := make([]*Item, 0, len(lst))
	for i, v := range lst {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("element %d of %q is not an item", i, key)
		}
		item, err := ItemFromMap(m)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func queueFromMap(resp map[string]any) (*Queue, error) {
	items, err := itemsFromResponse(resp, "items")
	if err != nil {
		return nil, err
	}
	running, err := itemFromResponse(resp, "running_item")
	if err != nil {
		return nil, err
	}
	if running != nil && running.Name == "" {
		running = nil
	}
	uid, _ := resp["plan_queue_uid"].(string)
	return &Queue{Items: items, RunningItem: running, PlanQueueUID: uid}, nil
}

func historyFromMap(resp map[string]any) (*History, error) {
	items, err := itemsFromResponse(resp, "items")
	if err != nil {
		return nil, err
	}
	uid, _ := resp["plan_history_uid"].(string)
	return &History{Items: items, PlanHistoryUID: uid}, nil
}

func runsFromResponse(resp map[string]any) ([]Run, error) {
	lst, ok := resp["run_list"].([]any)
	if !ok {
		return nil, nil
	}

	runs := make([]Run, 0, len(lst))
	for i, v := range lst {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("element %d of run list is not a run", i)
		}
		var run Run
		run.UID, _ = m["uid"].(string)
		run.IsOpen, _ = m["is_open"].(bool)
		if es, ok := m["exit_status"].(string); ok {
			run.ExitStatus = &es
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func filterRuns(runs []Run, option RunsOption) []Run {
	switch option {
	case RunsOpen:
		out := make([]Run, 0, len(runs))
		for _, r := range runs {
			if r.IsOpen {
				out = append(out, r)
			}
		}
		return out
	case RunsClosed:
		out := make([]Run, 0, len(runs))
		for _, r := range runs {
			if !r.IsOpen {
				out = append(out, r)
			}
		}
		return out
	default:
		out := make([]Run, len(runs))
		copy(out, runs)
		return out
	}
}
