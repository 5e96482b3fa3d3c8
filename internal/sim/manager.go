// Package sim implements an in-process RE Manager simulator. It speaks the
// same control protocol as the real manager over both 0MQ and HTTP, keeps
// its plan queue and history in Redis using the real manager's storage
// shape, and models the manager state machine closely enough to exercise a
// client: environments open and close, queues execute, plans pause and
// resume, background tasks complete.
//
// The simulator exists for the test suite and for local development against
// a manager that needs no Python environment.
package sim

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Options configures a Manager.
type Options struct {
	// Name namespaces the Redis keys of this instance.
	Name string

	// Profile describes existing plans/devices and group permissions.
	// Nil selects DefaultProfile.
	Profile *Profile

	// EnvOpenDelay is how long opening or closing the worker environment
	// takes.
	EnvOpenDelay time.Duration

	// PlanDuration is how long a single plan executes.
	PlanDuration time.Duration

	// TaskDuration is how long a background task runs.
	TaskDuration time.Duration

	// OnStop is called when a manager_stop request is accepted.
	OnStop func()
}

func (o *Options) withDefaults() {
	if o.Name == "" {
		o.Name = "sim"
	}
	if o.Profile == nil {
		o.Profile = DefaultProfile()
	}
	if o.EnvOpenDelay <= 0 {
		o.EnvOpenDelay = 50 * time.Millisecond
	}
	if o.PlanDuration <= 0 {
		o.PlanDuration = 100 * time.Millisecond
	}
	if o.TaskDuration <= 0 {
		o.TaskDuration = 50 * time.Millisecond
	}
}

// task is a background task started by script_upload or function_execute.
type task struct {
	Status string
	Result map[string]any
}

// resumeCommand tells a paused plan how to proceed.
type resumeCommand string

const (
	resumeContinue resumeCommand = "resume"
	resumeStop     resumeCommand = "stop"
	resumeAbort    resumeCommand = "abort"
	resumeHalt     resumeCommand = "halt"
)

// Manager is the simulated RE Manager. All handler methods are safe for
// concurrent use; long-running transitions (environment open, queue
// execution) happen on background goroutines, mirroring the asynchronous
// behavior of the real manager.
type Manager struct {
	store   *Store
	profile *Profile
	opts    Options
	console *ConsoleLog

	mu               sync.Mutex
	state            string
	envExists        bool
	queueStopPending bool
	pausePending     bool
	queueMode        map[string]any
	runList          []map[string]any
	runListUID       string
	tasks            map[string]*task
	taskResultsUID   string
	permissions      map[string]any
	killed           bool

	plansAllowedUID    string
	devicesAllowedUID  string
	plansExistingUID   string
	devicesExistingUID string

	resumeCh chan resumeCommand
}

// Manager states, matching the values reported by the real manager.
const (
	stateIdle                  = "idle"
	statePaused                = "paused"
	stateCreatingEnvironment   = "creating_environment"
	stateStartingQueue         = "starting_queue"
	stateExecutingQueue        = "executing_queue"
	stateExecutingTask         = "executing_task"
	stateClosingEnvironment    = "closing_environment"
	stateDestroyingEnvironment = "destroying_environment"
)

// NewManager creates a simulator backed by the given store.
func NewManager(store *Store, opts Options) *Manager {
	opts.withDefaults()

	m := &Manager{
		store:              store,
		profile:            opts.Profile,
		opts:               opts,
		console:            newConsoleLog(1000),
		state:              stateIdle,
		queueMode:          map[string]any{"loop": false},
		runListUID:         uuid.New().String(),
		tasks:              map[string]*task{},
		taskResultsUID:     uuid.New().String(),
		plansAllowedUID:    uuid.New().String(),
		devicesAllowedUID:  uuid.New().String(),
		plansExistingUID:   uuid.New().String(),
		devicesExistingUID: uuid.New().String(),
		resumeCh:           make(chan resumeCommand, 1),
	}
	m.permissions = permissionsToWire(opts.Profile.Permissions)
	return m
}

// Console returns the console output log of the manager.
func (m *Manager) Console() *ConsoleLog { return m.console }

// logf records a console output line and mirrors it to the process log.
func (m *Manager) logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[Sim] %s", msg)
	m.console.Append(msg + "\n")
}

// ok builds a successful response envelope with optional extra fields.
func ok(fields map[string]any) map[string]any {
	resp := map[string]any{"success": true, "msg": ""}
	for k, v := range fields {
		resp[k] = v
	}
	return resp
}

// fail builds a rejected response envelope.
func fail(format string, args ...any) map[string]any {
	return map[string]any{"success": false, "msg": fmt.Sprintf(format, args...)}
}

// Handle dispatches one request. The second return value is false when the
// manager has been "killed" with manager_kill and must not reply at all.
func (m *Manager) Handle(ctx context.Context, method string, params map[string]any) (map[string]any, bool) {
	m.mu.Lock()
	killed := m.killed
	m.mu.Unlock()
	if killed {
		return nil, false
	}

	switch method {
	case "ping", "status":
		return m.handleStatus(ctx), true
	case "environment_open":
		return m.handleEnvironmentOpen(), true
	case "environment_close":
		return m.handleEnvironmentClose(), true
	case "environment_destroy":
		return m.handleEnvironmentDestroy(ctx), true
	case "queue_get":
		return m.handleQueueGet(ctx), true
	case "queue_clear":
		return m.handleQueueClear(ctx), true
	case "queue_mode_set":
		return m.handleQueueModeSet(params), true
	case "queue_start":
		return m.handleQueueStart(ctx), true
	case "queue_stop":
		return m.handleQueueStop(true), true
	case "queue_stop_cancel":
		return m.handleQueueStop(false), true
	case "queue_item_add":
		return m.handleItemAdd(ctx, params), true
	case "queue_item_add_batch":
		return m.handleItemAddBatch(ctx, params), true
	case "queue_item_get":
		return m.handleItemGet(ctx, params), true
	case "queue_item_update":
		return m.handleItemUpdate(ctx, params), true
	case "queue_item_remove":
		return m.handleItemRemove(ctx, params), true
	case "queue_item_remove_batch":
		return m.handleItemRemoveBatch(ctx, params), true
	case "queue_item_move":
		return m.handleItemMove(ctx, params), true
	case "queue_item_move_batch":
		return m.handleItemMoveBatch(ctx, params), true
	case "queue_item_execute":
		return m.handleItemExecute(ctx, params), true
	case "history_get":
		return m.handleHistoryGet(ctx), true
	case "history_clear":
		return m.handleHistoryClear(ctx), true
	case "re_pause":
		return m.handleREPause(params), true
	case "re_resume":
		return m.handleREResume(), true
	case "re_stop":
		return m.handleREFinish(resumeStop), true
	case "re_abort":
		return m.handleREFinish(resumeAbort), true
	case "re_halt":
		return m.handleREFinish(resumeHalt), true
	case "re_runs":
		return m.handleRERuns(), true
	case "plans_allowed":
		return m.handleAllowed(params, "plans_allowed"), true
	case "devices_allowed":
		return m.handleAllowed(params, "devices_allowed"), true
	case "plans_existing":
		return ok(map[string]any{
			"plans_existing":     existingToWire(m.profile.PlansExisting),
			"plans_existing_uid": m.plansExistingUID,
		}), true
	case "devices_existing":
		return ok(map[string]any{
			"devices_existing":     existingToWire(m.profile.DevicesExisting),
			"devices_existing_uid": m.devicesExistingUID,
		}), true
	case "permissions_reload":
		return m.handlePermissionsReload(), true
	case "permissions_get":
		return m.handlePermissionsGet(), true
	case "permissions_set":
		return m.handlePermissionsSet(params), true
	case "script_upload":
		return m.handleScriptUpload(params), true
	case "function_execute":
		return m.handleFunctionExecute(params), true
	case "task_status":
		return m.handleTaskStatus(params), true
	case "task_result":
		return m.handleTaskResult(params), true
	case "console_output":
		return m.handleConsoleOutput(params), true
	case "console_output_update":
		return m.handleConsoleOutputUpdate(params), true
	case "manager_stop":
		return m.handleManagerStop(params), true
	case "manager_kill":
		m.mu.Lock()
		m.killed = true
		m.mu.Unlock()
		m.logf("Manager event loop locked (test)")
		return nil, false
	default:
		return fail("Unknown method %q", method), true
	}
}

func (m *Manager) handleStatus(ctx context.Context) map[string]any {
	queue, _ := m.store.Queue(ctx)
	history, _ := m.store.History(ctx)
	queueUID, _ := m.store.QueueUID(ctx)
	historyUID, _ := m.store.HistoryUID(ctx)
	running, _ := m.store.RunningItem(ctx)

	runningUID := ""
	if running != nil {
		runningUID, _ = running["item_uid"].(string)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	envState := "closed"
	if m.envExists {
		envState = "idle"
		if m.state == stateExecutingQueue || m.state == statePaused {
			envState = "executing_plan"
		} else if m.state == stateExecutingTask {
			envState = "executing_task"
		}
	}

	return map[string]any{
		"msg":                       "RE Manager (simulator)",
		"manager_state":             m.state,
		"items_in_queue":            len(queue),
		"items_in_history":          len(history),
		"running_item_uid":          runningUID,
		"plan_queue_uid":            queueUID,
		"plan_history_uid":          historyUID,
		"plans_allowed_uid":         m.plansAllowedUID,
		"devices_allowed_uid":       m.devicesAllowedUID,
		"plans_existing_uid":        m.plansExistingUID,
		"devices_existing_uid":      m.devicesExistingUID,
		"run_list_uid":              m.runListUID,
		"task_results_uid":          m.taskResultsUID,
		"worker_environment_exists": m.envExists,
		"worker_environment_state":  envState,
		"queue_stop_pending":        m.queueStopPending,
		"pause_pending":             m.pausePending,
		"plan_queue_mode":           m.queueMode,
		"queue_autostart_enabled":   false,
	}
}

func (m *Manager) handleEnvironmentOpen() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.envExists {
		return fail("RE Worker environment already exists")
	}
	if m.state != stateIdle {
		return fail("Manager state is not idle: current state is %q", m.state)
	}

	m.state = stateCreatingEnvironment
	go func() {
		time.Sleep(m.opts.EnvOpenDelay)
		m.mu.Lock()
		m.envExists = true
		m.state = stateIdle
		m.mu.Unlock()
		m.logf("Worker environment is ready")
	}()
	return ok(nil)
}

func (m *Manager) handleEnvironmentClose() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.envExists {
		return fail("RE Worker environment does not exist")
	}
	if m.state != stateIdle {
		return fail("Manager state is not idle: current state is %q", m.state)
	}

	m.state = stateClosingEnvironment
	go func() {
		time.Sleep(m.opts.EnvOpenDelay)
		m.mu.Lock()
		m.envExists = false
		m.state = stateIdle
		m.mu.Unlock()
		m.logf("Worker environment is closed")
	}()
	return ok(nil)
}

func (m *Manager) handleEnvironmentDestroy(ctx context.Context) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.envExists {
		return fail("RE Worker environment does not exist")
	}

	m.envExists = false
	m.state = stateIdle
	m.queueStopPending = false
	m.pausePending = false
	_ = m.store.SetRunningItem(ctx, nil)
	m.logf("Worker environment destroyed")
	return ok(nil)
}

func (m *Manager) handleQueueGet(ctx context.Context) map[string]any {
	queue, err := m.store.Queue(ctx)
	if err != nil {
		return fail("Failed to read queue: %v", err)
	}
	uid, err := m.store.QueueUID(ctx)
	if err != nil {
		return fail("Failed to read queue UID: %v", err)
	}
	running, err := m.store.RunningItem(ctx)
	if err != nil {
		return fail("Failed to read running item: %v", err)
	}
	if running == nil {
		running = map[string]any{}
	}

	return ok(map[string]any{
		"items":          itemsToWire(queue),
		"running_item":   running,
		"plan_queue_uid": uid,
	})
}

func (m *Manager) handleQueueClear(ctx context.Context) map[string]any {
	if err := m.store.ReplaceQueue(ctx, nil); err != nil {
		return fail("Failed to clear queue: %v", err)
	}
	m.logf("Queue cleared")
	return ok(nil)
}

func (m *Manager) handleQueueModeSet(params map[string]any) map[string]any {
	mode, ok2 := params["mode"].(map[string]any)
	if !ok2 {
		return fail("Parameter 'mode' must be a dictionary")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range mode {
		if k != "loop" && k != "ignore_failures" {
			return fail("Unsupported queue mode parameter %q", k)
		}
		m.queueMode[k] = v
	}
	return ok(nil)
}

func (m *Manager) handleQueueStop(pending bool) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != stateExecutingQueue && m.state != statePaused {
		if pending {
			return fail("Queue is not running")
		}
		return ok(nil)
	}
	m.queueStopPending = pending
	return ok(nil)
}

func (m *Manager) handleQueueStart(ctx context.Context) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.envExists {
		return fail("RE Worker environment does not exist")
	}
	if m.state != stateIdle {
		return fail("Manager state is not idle: current state is %q", m.state)
	}

	m.state = stateStartingQueue
	go m.runQueue(context.WithoutCancel(ctx))
	return ok(nil)
}

// runQueue executes queued items until the queue is empty or stopped.
func (m *Manager) runQueue(ctx context.Context) {
	m.mu.Lock()
	m.state = stateExecutingQueue
	m.mu.Unlock()
	m.logf("Queue execution started")

	for {
		m.mu.Lock()
		if m.queueStopPending {
			m.queueStopPending = false
			m.mu.Unlock()
			m.logf("Queue execution stopped by request")
			break
		}
		m.mu.Unlock()

		queue, err := m.store.Queue(ctx)
		if err != nil || len(queue) == 0 {
			break
		}

		item := queue[0]
		if err := m.store.ReplaceQueue(ctx, queue[1:]); err != nil {
			break
		}

		if itemType, _ := item["item_type"].(string); itemType == "instruction" {
			if name, _ := item["name"].(string); name == "queue_stop" {
				m.logf("Queue stopped by instruction")
				break
			}
			continue
		}

		_ = m.store.SetRunningItem(ctx, item)
		finished := m.executePlan(ctx, item)
		_ = m.store.SetRunningItem(ctx, nil)
		if !finished {
			break
		}

		m.mu.Lock()
		loop, _ := m.queueMode["loop"].(bool)
		m.mu.Unlock()
		if loop {
			queue, err := m.store.Queue(ctx)
			if err == nil {
				_ = m.store.ReplaceQueue(ctx, append(queue, copyItem(item)))
			}
		}
	}

	m.mu.Lock()
	m.state = stateIdle
	m.queueStopPending = false
	m.mu.Unlock()
	m.logf("Queue execution finished")
}

// executePlan simulates execution of a single plan, honoring pause requests.
// Returns false if the plan ended in a way that stops the queue (abort,
// halt, stop).
func (m *Manager) executePlan(ctx context.Context, item map[string]any) bool {
	name, _ := item["name"].(string)
	m.logf("Starting the plan %q", name)

	runUID := uuid.New().String()
	m.mu.Lock()
	m.runList = []map[string]any{{"uid": runUID, "is_open": true, "exit_status": nil}}
	m.runListUID = uuid.New().String()
	m.mu.Unlock()

	const tick = 10 * time.Millisecond
	exitStatus := "completed"
	queueContinues := true

	remaining := m.opts.PlanDuration
	for remaining > 0 {
		time.Sleep(tick)
		remaining -= tick

		m.mu.Lock()
		if m.pausePending {
			m.pausePending = false
			m.state = statePaused
			m.mu.Unlock()
			m.logf("The plan is paused")

			cmd := <-m.resumeCh
			m.mu.Lock()
			switch cmd {
			case resumeContinue:
				m.state = stateExecutingQueue
				m.mu.Unlock()
				m.logf("The plan is resumed")
				continue
			case resumeStop:
				exitStatus, queueContinues, remaining = "stopped", false, 0
			case resumeAbort:
				exitStatus, queueContinues, remaining = "aborted", false, 0
			case resumeHalt:
				exitStatus, queueContinues, remaining = "halted", false, 0
			}
			m.state = stateExecutingQueue
			m.mu.Unlock()
			break
		}
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.runList = []map[string]any{{"uid": runUID, "is_open": false, "exit_status": exitStatus}}
	m.runListUID = uuid.New().String()
	m.mu.Unlock()

	historyItem := copyItem(item)
	historyItem["result"] = map[string]any{
		"exit_status": exitStatus,
		"run_uids":    []any{runUID},
		"time_stop":   float64(time.Now().UnixNano()) / 1e9,
	}
	_ = m.store.AppendHistory(ctx, historyItem)
	m.logf("The plan %q exited with status %q", name, exitStatus)

	return queueContinues
}

func (m *Manager) handleREPause(params map[string]any) map[string]any {
	option, _ := params["option"].(string)
	if option != "" && option != "deferred" && option != "immediate" {
		return fail("Unsupported option %q for re_pause", option)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != stateExecutingQueue {
		return fail("RE Manager is not executing a plan: current state is %q", m.state)
	}
	m.pausePending = true
	return ok(nil)
}

func (m *Manager) handleREResume() map[string]any {
	return m.resumePaused(resumeContinue)
}

func (m *Manager) handleREFinish(cmd resumeCommand) map[string]any {
	return m.resumePaused(cmd)
}

func (m *Manager) resumePaused(cmd resumeCommand) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != statePaused {
		return fail("RE Manager is not paused: current state is %q", m.state)
	}

	select {
	case m.resumeCh <- cmd:
		return ok(nil)
	default:
		return fail("Previous command is still being processed")
	}
}

func (m *Manager) handleRERuns() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	runs := make([]any, 0, len(m.runList))
	for _, r := range m.runList {
		runs = append(runs, r)
	}
	return ok(map[string]any{
		"run_list":     runs,
		"run_list_uid": m.runListUID,
	})
}

func (m *Manager) handleAllowed(params map[string]any, kind string) map[string]any {
	group, _ := params["user_group"].(string)
	if group == "" {
		// The HTTP server resolves the group from login information; the
		// simulator has no auth and falls back to admin.
		group = "admin"
	}
	if _, known := m.profile.Permissions.UserGroups[group]; !known {
		return fail("Unknown user group %q", group)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if kind == "plans_allowed" {
		return ok(map[string]any{
			"plans_allowed":     m.profile.AllowedPlans(group),
			"plans_allowed_uid": m.plansAllowedUID,
		})
	}
	return ok(map[string]any{
		"devices_allowed":     m.profile.AllowedDevices(group),
		"devices_allowed_uid": m.devicesAllowedUID,
	})
}

func (m *Manager) handlePermissionsReload() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plansAllowedUID = uuid.New().String()
	m.devicesAllowedUID = uuid.New().String()
	m.logf("User group permissions reloaded")
	return ok(nil)
}

func (m *Manager) handlePermissionsGet() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ok(map[string]any{"user_group_permissions": m.permissions})
}

func (m *Manager) handlePermissionsSet(params map[string]any) map[string]any {
	perms, ok2 := params["user_group_permissions"].(map[string]any)
	if !ok2 {
		return fail("Parameter 'user_group_permissions' must be a dictionary")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.permissions = perms
	m.plansAllowedUID = uuid.New().String()
	m.devicesAllowedUID = uuid.New().String()
	return ok(nil)
}

func (m *Manager) handleScriptUpload(params map[string]any) map[string]any {
	script, _ := params["script"].(string)
	if script == "" {
		return fail("Parameter 'script' is missing or empty")
	}

	m.mu.Lock()
	if !m.envExists {
		m.mu.Unlock()
		return fail("RE Worker environment does not exist")
	}
	m.mu.Unlock()

	uid := m.startTask(map[string]any{"return_value": nil})
	m.logf("Script upload accepted: task %s", uid)
	return ok(map[string]any{"task_uid": uid})
}

func (m *Manager) handleFunctionExecute(params map[string]any) map[string]any {
	item, ok2 := params["item"].(map[string]any)
	if !ok2 {
		return fail("Parameter 'item' is missing")
	}
	if itemType, _ := item["item_type"].(string); itemType != "function" {
		return fail("Item type must be 'function': got %q", itemType)
	}
	name, _ := item["name"].(string)
	if name == "" {
		return fail("Function name is missing or empty")
	}

	m.mu.Lock()
	if !m.envExists {
		m.mu.Unlock()
		return fail("RE Worker environment does not exist")
	}
	m.mu.Unlock()

	uid := m.startTask(map[string]any{"return_value": nil, "function": name})
	m.logf("Function %q accepted: task %s", name, uid)
	return ok(map[string]any{"task_uid": uid, "item": item})
}

// startTask registers a background task that completes after TaskDuration.
func (m *Manager) startTask(result map[string]any) string {
	uid := uuid.New().String()

	m.mu.Lock()
	m.tasks[uid] = &task{Status: "running"}
	m.mu.Unlock()

	go func() {
		time.Sleep(m.opts.TaskDuration)
		result["success"] = true
		result["msg"] = ""
		result["task_uid"] = uid

		m.mu.Lock()
		m.tasks[uid].Status = "completed"
		m.tasks[uid].Result = result
		m.taskResultsUID = uuid.New().String()
		m.mu.Unlock()
	}()
	return uid
}

func (m *Manager) handleTaskStatus(params map[string]any) map[string]any {
	uid, _ := params["task_uid"].(string)

	m.mu.Lock()
	defer m.mu.Unlock()
	t, found := m.tasks[uid]
	if !found {
		return fail("Task %q is not found", uid)
	}
	return ok(map[string]any{"task_uid": uid, "status": t.Status})
}

func (m *Manager) handleTaskResult(params map[string]any) map[string]any {
	uid, _ := params["task_uid"].(string)

	m.mu.Lock()
	defer m.mu.Unlock()
	t, found := m.tasks[uid]
	if !found {
		return fail("Task %q is not found", uid)
	}
	return ok(map[string]any{"task_uid": uid, "status": t.Status, "result": t.Result})
}

func (m *Manager) handleConsoleOutput(params map[string]any) map[string]any {
	n := 200
	if v, isNum := params["nlines"].(float64); isNum && v > 0 {
		n = int(v)
	}
	return ok(map[string]any{"text": m.console.Text(n)})
}

func (m *Manager) handleConsoleOutputUpdate(params map[string]any) map[string]any {
	lastUID, _ := params["last_msg_uid"].(string)
	msgs, uid := m.console.Since(lastUID)
	return ok(map[string]any{
		"last_msg_uid":        uid,
		"console_output_msgs": msgs,
	})
}

func (m *Manager) handleManagerStop(params map[string]any) map[string]any {
	option, _ := params["option"].(string)
	if option != "" && option != "safe_on" && option != "safe_off" {
		return fail("Unsupported option %q for manager_stop", option)
	}

	m.mu.Lock()
	if option != "safe_off" && m.state != stateIdle {
		state := m.state
		m.mu.Unlock()
		return fail("Closing RE Manager in safe mode requires the idle state: current state is %q", state)
	}
	m.mu.Unlock()

	m.logf("Manager is stopping")
	if m.opts.OnStop != nil {
		go m.opts.OnStop()
	}
	return ok(nil)
}

// copyItem returns a shallow copy of an item map.
func copyItem(item map[string]any) map[string]any {
	out := make(map[string]any, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

// itemsToWire converts a list of item maps to []any for JSON encoding.
func itemsToWire(items []map[string]any) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	return out
}

// permissionsToWire converts profile permissions to the generic wire shape.
func permissionsToWire(p Permissions) map[string]any {
	groups := map[string]any{}
	for name, gp := range p.UserGroups {
		plans := make([]any, 0, len(gp.AllowedPlans))
		for _, v := range gp.AllowedPlans {
			plans = append(plans, v)
		}
		devices := make([]any, 0, len(gp.AllowedDevices))
		for _, v := range gp.AllowedDevices {
			devices = append(devices, v)
		}
		groups[name] = map[string]any{
			"allowed_plans":   plans,
			"allowed_devices": devices,
		}
	}
	return map[string]any{"user_groups": groups}
}
