package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestManager creates a manager with short transition times.
func setupTestManager(t *testing.T) *Manager {
	store := setupTestStore(t)
	return NewManager(store, Options{
		Name:         "test",
		EnvOpenDelay: 5 * time.Millisecond,
		PlanDuration: 30 * time.Millisecond,
		TaskDuration: 5 * time.Millisecond,
	})
}

// handle dispatches a request and requires that the manager replied.
func handle(t *testing.T, m *Manager, method string, params map[string]any) map[string]any {
	t.Helper()
	resp, replied := m.Handle(context.Background(), method, params)
	require.True(t, replied, "manager did not reply to %s", method)
	return resp
}

// requireSuccess dispatches a request and requires a successful response.
func requireSuccess(t *testing.T, m *Manager, method string, params map[string]any) map[string]any {
	t.Helper()
	resp := handle(t, m, method, params)
	require.Equal(t, true, resp["success"], "%s failed: %v", method, resp["msg"])
	return resp
}

// waitForStatus polls the status until the condition is met.
func waitForStatus(t *testing.T, m *Manager, cond func(map[string]any) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st := handle(t, m, "status", nil)
		if cond(st) {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("timed out waiting for manager status condition")
}

func waitForIdle(t *testing.T, m *Manager) {
	t.Helper()
	waitForStatus(t, m, func(st map[string]any) bool {
		return st["manager_state"] == "idle"
	})
}

// openEnvironment opens the worker environment and waits until it is ready.
func openEnvironment(t *testing.T, m *Manager) {
	t.Helper()
	requireSuccess(t, m, "environment_open", nil)
	waitForStatus(t, m, func(st map[string]any) bool {
		return st["worker_environment_exists"] == true && st["manager_state"] == "idle"
	})
}

func TestStatus(t *testing.T) {
	m := setupTestManager(t)
	st := handle(t, m, "status", nil)

	assert.Equal(t, "idle", st["manager_state"])
	assert.Equal(t, 0, st["items_in_queue"])
	assert.Equal(t, false, st["worker_environment_exists"])
	assert.Equal(t, "closed", st["worker_environment_state"])
	assert.NotEmpty(t, st["plan_queue_uid"])

	// Status responses have no "success" field
	_, found := st["success"]
	assert.False(t, found)
}

func TestEnvironmentLifecycle(t *testing.T) {
	m := setupTestManager(t)

	t.Run("close without environment fails", func(t *testing.T) {
		resp := handle(t, m, "environment_close", nil)
		assert.Equal(t, false, resp["success"])
	})

	t.Run("open", func(t *testing.T) {
		openEnvironment(t, m)
	})

	t.Run("open twice fails", func(t *testing.T) {
		resp := handle(t, m, "environment_open", nil)
		assert.Equal(t, false, resp["success"])
		assert.Contains(t, resp["msg"], "already exists")
	})

	t.Run("close", func(t *testing.T) {
		requireSuccess(t, m, "environment_close", nil)
		waitForStatus(t, m, func(st map[string]any) bool {
			return st["worker_environment_exists"] == false && st["manager_state"] == "idle"
		})
	})

	t.Run("destroy", func(t *testing.T) {
		openEnvironment(t, m)
		requireSuccess(t, m, "environment_destroy", nil)
		st := handle(t, m, "status", nil)
		assert.Equal(t, false, st["worker_environment_exists"])
		assert.Equal(t, "idle", st["manager_state"])
	})
}

func TestQueueExecution(t *testing.T) {
	m := setupTestManager(t)
	openEnvironment(t, m)

	addPlan := func(name string) {
		requireSuccess(t, m, "queue_item_add", map[string]any{
			"item": map[string]any{"item_type": "plan", "name": name},
		})
	}

	t.Run("start without items finishes immediately", func(t *testing.T) {
		requireSuccess(t, m, "queue_start", nil)
		waitForIdle(t, m)
	})

	t.Run("executes all items into history", func(t *testing.T) {
		addPlan("count")
		addPlan("scan")

		requireSuccess(t, m, "queue_start", nil)
		waitForStatus(t, m, func(st map[string]any) bool {
			return st["manager_state"] == "idle" && st["items_in_queue"] == 0
		})

		resp := requireSuccess(t, m, "history_get", nil)
		items := resp["items"].([]any)
		require.Len(t, items, 2)
		first := items[0].(map[string]any)
		result := first["result"].(map[string]any)
		assert.Equal(t, "completed", result["exit_status"])
	})

	t.Run("start requires idle state", func(t *testing.T) {
		addPlan("count")
		requireSuccess(t, m, "queue_start", nil)
		resp := handle(t, m, "queue_start", nil)
		assert.Equal(t, false, resp["success"])
		waitForIdle(t, m)
	})

	t.Run("queue_stop instruction stops execution", func(t *testing.T) {
		requireSuccess(t, m, "history_clear", nil)
		addPlan("count")
		requireSuccess(t, m, "queue_item_add", map[string]any{
			"item": map[string]any{"item_type": "instruction", "name": "queue_stop"},
		})
		addPlan("scan")

		requireSuccess(t, m, "queue_start", nil)
		waitForIdle(t, m)

		st := handle(t, m, "status", nil)
		assert.Equal(t, 1, st["items_in_queue"])
		assert.Equal(t, 1, st["items_in_history"])
		requireSuccess(t, m, "queue_clear", nil)
	})
}

func TestQueuePositions(t *testing.T) {
	m := setupTestManager(t)

	// Items are count plans tagged through kwargs so their queue order is
	// observable.
	addAt := func(t *testing.T, tag string, pos any) {
		t.Helper()
		params := map[string]any{
			"item": map[string]any{
				"item_type": "plan",
				"name":      "count",
				"kwargs":    map[string]any{"tag": tag},
			},
		}
		if pos != nil {
			params["pos"] = pos
		}
		requireSuccess(t, m, "queue_item_add", params)
	}
	tagAt := func(t *testing.T, pos any) string {
		t.Helper()
		resp := requireSuccess(t, m, "queue_item_get", map[string]any{"pos": pos})
		item := resp["item"].(map[string]any)
		return item["kwargs"].(map[string]any)["tag"].(string)
	}

	addAt(t, "a", nil)
	addAt(t, "b", nil)
	addAt(t, "c", nil)

	t.Run("negative add position counts from the back", func(t *testing.T) {
		// -1 inserts before the last item: a b d c
		addAt(t, "d", -1)
		assert.Equal(t, "d", tagAt(t, 2))
		assert.Equal(t, "c", tagAt(t, "back"))
	})

	t.Run("out-of-range add positions clamp", func(t *testing.T) {
		addAt(t, "e", 100)
		assert.Equal(t, "e", tagAt(t, "back"))

		addAt(t, "z", -100)
		assert.Equal(t, "z", tagAt(t, "front"))
	})

	t.Run("negative get position counts from the back", func(t *testing.T) {
		// Queue is now: z a b d c e
		assert.Equal(t, "c", tagAt(t, -2))
		assert.Equal(t, "z", tagAt(t, -100))
	})

	t.Run("move to a negative destination", func(t *testing.T) {
		requireSuccess(t, m, "queue_item_move", map[string]any{
			"pos":      "front",
			"pos_dest": -1,
		})
		// z moved before the last item: a b d c z e
		assert.Equal(t, "z", tagAt(t, -2))
		assert.Equal(t, "a", tagAt(t, "front"))
	})

	t.Run("unsupported position string fails", func(t *testing.T) {
		resp := handle(t, m, "queue_item_add", map[string]any{
			"item": map[string]any{"item_type": "plan", "name": "count"},
			"pos":  "middle",
		})
		assert.Equal(t, false, resp["success"])
	})
}

func TestPauseAndResume(t *testing.T) {
	m := setupTestManager(t)
	openEnvironment(t, m)

	startPlan := func(t *testing.T) {
		requireSuccess(t, m, "queue_item_add", map[string]any{
			"item": map[string]any{"item_type": "plan", "name": "count"},
		})
		requireSuccess(t, m, "queue_start", nil)
		waitForStatus(t, m, func(st map[string]any) bool {
			return st["manager_state"] == "executing_queue"
		})
	}

	pause := func(t *testing.T) {
		requireSuccess(t, m, "re_pause", map[string]any{"option": "immediate"})
		waitForStatus(t, m, func(st map[string]any) bool {
			return st["manager_state"] == "paused"
		})
	}

	t.Run("pause fails when idle", func(t *testing.T) {
		resp := handle(t, m, "re_pause", nil)
		assert.Equal(t, false, resp["success"])
	})

	t.Run("resume continues to completion", func(t *testing.T) {
		startPlan(t)
		pause(t)
		requireSuccess(t, m, "re_resume", nil)
		waitForIdle(t, m)

		resp := requireSuccess(t, m, "history_get", nil)
		items := resp["items"].([]any)
		last := items[len(items)-1].(map[string]any)
		assert.Equal(t, "completed", last["result"].(map[string]any)["exit_status"])
	})

	t.Run("abort marks the plan aborted", func(t *testing.T) {
		startPlan(t)
		pause(t)
		requireSuccess(t, m, "re_abort", nil)
		waitForIdle(t, m)

		resp := requireSuccess(t, m, "history_get", nil)
		items := resp["items"].([]any)
		last := items[len(items)-1].(map[string]any)
		assert.Equal(t, "aborted", last["result"].(map[string]any)["exit_status"])
	})

	t.Run("run list reflects the last plan", func(t *testing.T) {
		resp := requireSuccess(t, m, "re_runs", nil)
		runs := resp["run_list"].([]any)
		require.Len(t, runs, 1)
		run := runs[0].(map[string]any)
		assert.Equal(t, false, run["is_open"])
		assert.Equal(t, "aborted", run["exit_status"])
	})
}

func TestQueueModeLoop(t *testing.T) {
	m := setupTestManager(t)
	openEnvironment(t, m)

	resp := handle(t, m, "queue_mode_set", map[string]any{
		"mode": map[string]any{"unsupported": true},
	})
	assert.Equal(t, false, resp["success"])

	requireSuccess(t, m, "queue_mode_set", map[string]any{
		"mode": map[string]any{"loop": true},
	})
	requireSuccess(t, m, "queue_item_add", map[string]any{
		"item": map[string]any{"item_type": "plan", "name": "count"},
	})
	requireSuccess(t, m, "queue_start", nil)

	// In loop mode the item returns to the queue, so the queue keeps
	// running until stopped.
	waitForStatus(t, m, func(st map[string]any) bool {
		return st["items_in_history"].(int) >= 2
	})
	requireSuccess(t, m, "queue_stop", nil)
	waitForIdle(t, m)
	requireSuccess(t, m, "queue_clear", nil)
}

func TestBackgroundTasks(t *testing.T) {
	m := setupTestManager(t)

	t.Run("script upload requires environment", func(t *testing.T) {
		resp := handle(t, m, "script_upload", map[string]any{"script": "def f(): pass"})
		assert.Equal(t, false, resp["success"])
	})

	openEnvironment(t, m)

	t.Run("script upload completes", func(t *testing.T) {
		resp := requireSuccess(t, m, "script_upload", map[string]any{"script": "def f(): pass"})
		uid := resp["task_uid"].(string)
		require.NotEmpty(t, uid)

		waitForStatus(t, m, func(map[string]any) bool {
			st := handle(t, m, "task_status", map[string]any{"task_uid": uid})
			return st["status"] == "completed"
		})

		result := requireSuccess(t, m, "task_result", map[string]any{"task_uid": uid})
		assert.Equal(t, "completed", result["status"])
		assert.Equal(t, true, result["result"].(map[string]any)["success"])
	})

	t.Run("function execute validates the item", func(t *testing.T) {
		resp := handle(t, m, "function_execute", map[string]any{
			"item": map[string]any{"item_type": "plan", "name": "f"},
		})
		assert.Equal(t, false, resp["success"])

		resp = requireSuccess(t, m, "function_execute", map[string]any{
			"item": map[string]any{"item_type": "function", "name": "f"},
		})
		assert.NotEmpty(t, resp["task_uid"])
	})

	t.Run("unknown task fails", func(t *testing.T) {
		resp := handle(t, m, "task_status", map[string]any{"task_uid": "no-such-task"})
		assert.Equal(t, false, resp["success"])
	})
}

func TestPermissions(t *testing.T) {
	m := setupTestManager(t)

	t.Run("get returns profile permissions", func(t *testing.T) {
		resp := requireSuccess(t, m, "permissions_get", nil)
		perms := resp["user_group_permissions"].(map[string]any)
		groups := perms["user_groups"].(map[string]any)
		assert.Contains(t, groups, "admin")
	})

	t.Run("reload regenerates the allowed UIDs", func(t *testing.T) {
		before := handle(t, m, "status", nil)["plans_allowed_uid"]
		requireSuccess(t, m, "permissions_reload", nil)
		after := handle(t, m, "status", nil)["plans_allowed_uid"]
		assert.NotEqual(t, before, after)
	})

	t.Run("set replaces permissions", func(t *testing.T) {
		requireSuccess(t, m, "permissions_set", map[string]any{
			"user_group_permissions": map[string]any{"user_groups": map[string]any{}},
		})
		resp := requireSuccess(t, m, "permissions_get", nil)
		perms := resp["user_group_permissions"].(map[string]any)
		assert.Empty(t, perms["user_groups"])
	})
}

func TestAllowedLists(t *testing.T) {
	m := setupTestManager(t)

	t.Run("defaults to admin group", func(t *testing.T) {
		resp := requireSuccess(t, m, "plans_allowed", nil)
		plans := resp["plans_allowed"].(map[string]any)
		assert.Contains(t, plans, "_private")
	})

	t.Run("filters by user group", func(t *testing.T) {
		resp := requireSuccess(t, m, "plans_allowed", map[string]any{"user_group": "primary"})
		plans := resp["plans_allowed"].(map[string]any)
		assert.Contains(t, plans, "count")
		assert.NotContains(t, plans, "_private")
	})

	t.Run("unknown group fails", func(t *testing.T) {
		resp := handle(t, m, "plans_allowed", map[string]any{"user_group": "strangers"})
		assert.Equal(t, false, resp["success"])
	})

	t.Run("existing lists are unfiltered", func(t *testing.T) {
		resp := requireSuccess(t, m, "plans_existing", nil)
		plans := resp["plans_existing"].(map[string]any)
		assert.Contains(t, plans, "_private")

		resp = requireSuccess(t, m, "devices_existing", nil)
		devices := resp["devices_existing"].(map[string]any)
		assert.Contains(t, devices, "_hidden")
	})
}

func TestConsoleOutput(t *testing.T) {
	m := setupTestManager(t)
	openEnvironment(t, m)

	resp := requireSuccess(t, m, "console_output", nil)
	text := resp["text"].(string)
	assert.Contains(t, text, "Worker environment is ready")

	t.Run("incremental polling", func(t *testing.T) {
		resp := requireSuccess(t, m, "console_output_update", map[string]any{"last_msg_uid": ""})
		uid := resp["last_msg_uid"].(string)
		require.NotEmpty(t, uid)
		assert.NotEmpty(t, resp["console_output_msgs"])

		// No new output since the last poll
		resp = requireSuccess(t, m, "console_output_update", map[string]any{"last_msg_uid": uid})
		assert.Empty(t, resp["console_output_msgs"])
		assert.Equal(t, uid, resp["last_msg_uid"])
	})
}

func TestManagerStop(t *testing.T) {
	t.Run("safe_on requires idle state", func(t *testing.T) {
		stopped := make(chan struct{})
		store := setupTestStore(t)
		m := NewManager(store, Options{
			Name:         "test",
			EnvOpenDelay: 5 * time.Millisecond,
			PlanDuration: 50 * time.Millisecond,
			OnStop:       func() { close(stopped) },
		})

		openEnvironment(t, m)
		requireSuccess(t, m, "queue_item_add", map[string]any{
			"item": map[string]any{"item_type": "plan", "name": "count"},
		})
		requireSuccess(t, m, "queue_start", nil)
		waitForStatus(t, m, func(st map[string]any) bool {
			return st["manager_state"] == "executing_queue"
		})

		resp := handle(t, m, "manager_stop", nil)
		assert.Equal(t, false, resp["success"])

		requireSuccess(t, m, "manager_stop", map[string]any{"option": "safe_off"})
		select {
		case <-stopped:
		case <-time.After(time.Second):
			t.Fatal("OnStop was not called")
		}
		waitForIdle(t, m)
	})

	t.Run("kill stops all replies", func(t *testing.T) {
		m := setupTestManager(t)
		_, replied := m.Handle(context.Background(), "manager_kill", nil)
		assert.False(t, replied)

		_, replied = m.Handle(context.Background(), "status", nil)
		assert.False(t, replied)
	})
}

func TestUnknownMethod(t *testing.T) {
	m := setupTestManager(t)
	resp := handle(t, m, "no_such_method", nil)
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp["msg"], "Unknown method")
}
