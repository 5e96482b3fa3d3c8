package qsapi

import (
	"encoding/json"
	"fmt"
)

// ManagerState describes the lifecycle state of the RE Manager.
// States progress as the environment is opened, the queue is started and
// plans are executed.
type ManagerState string

const (
	ManagerStateIdle                  ManagerState = "idle"
	ManagerStatePaused                ManagerState = "paused"
	ManagerStateCreatingEnvironment   ManagerState = "creating_environment"
	ManagerStateStartingQueue         ManagerState = "starting_queue"
	ManagerStateExecutingQueue        ManagerState = "executing_queue"
	ManagerStateExecutingTask         ManagerState = "executing_task"
	ManagerStateClosingEnvironment    ManagerState = "closing_environment"
	ManagerStateDestroyingEnvironment ManagerState = "destroying_environment"
)

// Status is a snapshot of the manager status as returned by the "status"
// method. Raw retains the complete response map, including fields added by
// newer server versions that this struct does not model.
type Status struct {
	ManagerState            ManagerState   `json:"manager_state"`
	ItemsInQueue            int            `json:"items_in_queue"`
	ItemsInHistory          int            `json:"items_in_history"`
	RunningItemUID          string         `json:"running_item_uid"`
	PlanQueueUID            string         `json:"plan_queue_uid"`
	PlanHistoryUID          string         `json:"plan_history_uid"`
	PlansAllowedUID         string         `json:"plans_allowed_uid"`
	DevicesAllowedUID       string         `json:"devices_allowed_uid"`
	PlansExistingUID        string         `json:"plans_existing_uid"`
	DevicesExistingUID      string         `json:"devices_existing_uid"`
	RunListUID              string         `json:"run_list_uid"`
	TaskResultsUID          string         `json:"task_results_uid"`
	WorkerEnvironmentExists bool           `json:"worker_environment_exists"`
	WorkerEnvironmentState  string         `json:"worker_environment_state"`
	QueueStopPending        bool           `json:"queue_stop_pending"`
	PausePending            bool           `json:"pause_pending"`
	QueueMode               map[string]any `json:"plan_queue_mode"`
	QueueAutostartEnabled   bool           `json:"queue_autostart_enabled"`

	Raw map[string]any `json:"-"`
}

// statusFromMap builds a Status from the raw response map.
func statusFromMap(m map[string]any) (*Status, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize status map: %w", err)
	}

	var st Status
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("failed to deserialize status: %w", err)
	}
	st.Raw = m
	return &st, nil
}

// IsIdle reports whether the manager is in the idle state.
func (st *Status) IsIdle() bool { return st.ManagerState == ManagerStateIdle }

// Queue is the queue snapshot returned by QueueGet.
type Queue struct {
	Items        []*Item `json:"items"`
	RunningItem  *Item   `json:"running_item"`
	PlanQueueUID string  `json:"plan_queue_uid"`
}

// History is the history snapshot returned by HistoryGet.
type History struct {
	Items          []*Item `json:"items"`
	PlanHistoryUID string  `json:"plan_history_uid"`
}

// Run describes a single run produced by the currently executed plan,
// as reported by the RERuns method.
type Run struct {
	UID        string  `json:"uid"`
	IsOpen     bool    `json:"is_open"`
	ExitStatus *string `json:"exit_status"`
}

// RunsOption selects which runs RERuns returns. The filtering is performed
// locally: the manager always reports the full list of runs of the currently
// executed plan.
type RunsOption string

const (
	RunsActive RunsOption = "active"
	RunsOpen   RunsOption = "open"
	RunsClosed RunsOption = "closed"
)

// Validate checks if the RunsOption is a valid enum value. The empty string
// is accepted and is equivalent to RunsActive.
func (o RunsOption) Validate() error {
	switch o {
	case "", RunsActive, RunsOpen, RunsClosed:
		return nil
	default:
		return fmt.Errorf("unsupported option %q: supported options: active, open, closed", o)
	}
}

// PauseOption selects how REPause pauses the run engine: at the next
// checkpoint (deferred) or immediately.
type PauseOption string

const (
	PauseDeferred  PauseOption = "deferred"
	PauseImmediate PauseOption = "immediate"
)

// TaskStatus describes the state of a background task started by
// ScriptUpload or FunctionExecute.
type TaskStatus string

const (
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusNotFound  TaskStatus = "not_found"
)
