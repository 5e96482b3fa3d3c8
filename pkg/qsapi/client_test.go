package qsapi

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport records requests and serves scripted responses.
type fakeTransport struct {
	mu        sync.Mutex
	requests  []fakeRequest
	responses map[string]map[string]any
	protocol  Protocol
	passUser  bool
}

type fakeRequest struct {
	method string
	params map[string]any
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		responses: map[string]map[string]any{},
		protocol:  ProtocolZMQ,
		passUser:  true,
	}
}

func (f *fakeTransport) respond(method string, resp map[string]any) {
	f.mu.Lock()
	f.responses[method] = resp
	f.mu.Unlock()
}

func (f *fakeTransport) calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.method == method {
			n++
		}
	}
	return n
}

func (f *fakeTransport) lastParams(method string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if f.requests[i].method == method {
			return f.requests[i].params
		}
	}
	return nil
}

func (f *fakeTransport) Send(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, fakeRequest{method: method, params: params})
	if resp, found := f.responses[method]; found {
		return resp, nil
	}
	return map[string]any{"success": true, "msg": ""}, nil
}

func (f *fakeTransport) Protocol() Protocol { return f.protocol }
func (f *fakeTransport) PassUserInfo() bool { return f.passUser }
func (f *fakeTransport) Close() error       { return nil }

// fakeStatus builds a plausible status response.
func fakeStatus(overrides map[string]any) map[string]any {
	st := map[string]any{
		"msg":                       "RE Manager",
		"manager_state":             "idle",
		"items_in_queue":            float64(0),
		"items_in_history":          float64(0),
		"plan_queue_uid":            "queue-uid-1",
		"plan_history_uid":          "history-uid-1",
		"plans_allowed_uid":         "allowed-uid-1",
		"devices_allowed_uid":       "dallowed-uid-1",
		"plans_existing_uid":        "existing-uid-1",
		"devices_existing_uid":      "dexisting-uid-1",
		"run_list_uid":              "runs-uid-1",
		"worker_environment_exists": false,
	}
	for k, v := range overrides {
		st[k] = v
	}
	return st
}

func setupTestClient(t *testing.T, opts ...Option) (*Client, *fakeTransport) {
	tr := newFakeTransport()
	tr.respond("status", fakeStatus(nil))
	client := New(tr, opts...)
	t.Cleanup(func() { client.Close() })
	return client, tr
}

func TestStatusCaching(t *testing.T) {
	t.Run("serves from cache within expiration", func(t *testing.T) {
		client, tr := setupTestClient(t)
		ctx := context.Background()

		st, err := client.Status(ctx)
		require.NoError(t, err)
		assert.True(t, st.IsIdle())

		_, err = client.Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, tr.calls("status"))
	})

	t.Run("expired cache triggers a new request", func(t *testing.T) {
		client, tr := setupTestClient(t, WithStatusExpiration(time.Nanosecond))
		ctx := context.Background()

		_, err := client.Status(ctx)
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
		_, err = client.Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, tr.calls("status"))
	})

	t.Run("mutating requests invalidate the cache", func(t *testing.T) {
		client, tr := setupTestClient(t)
		ctx := context.Background()

		_, err := client.Status(ctx)
		require.NoError(t, err)
		require.NoError(t, client.QueueClear(ctx))
		_, err = client.Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, tr.calls("status"))
	})
}

func TestFailedRequestErrors(t *testing.T) {
	t.Run("rejected response becomes an error", func(t *testing.T) {
		client, tr := setupTestClient(t)
		tr.respond("queue_start", map[string]any{"success": false, "msg": "Queue is empty"})

		err := client.QueueStart(context.Background())
		require.Error(t, err)
		assert.True(t, IsRequestFailed(err))
		assert.Contains(t, err.Error(), "Queue is empty")
	})

	t.Run("disabled errors pass the envelope through", func(t *testing.T) {
		client, tr := setupTestClient(t, WithFailedRequestErrors(false))
		tr.respond("queue_start", map[string]any{"success": false, "msg": "Queue is empty"})

		resp, err := client.Send(context.Background(), "queue_start", nil)
		require.NoError(t, err)
		assert.Equal(t, false, resp["success"])
	})

	t.Run("status responses have no success field and pass", func(t *testing.T) {
		client, _ := setupTestClient(t)
		_, err := client.Status(context.Background())
		assert.NoError(t, err)
	})
}

func TestItemAdd(t *testing.T) {
	client, tr := setupTestClient(t, WithUser("alice"), WithUserGroup("primary"))
	tr.respond("queue_item_add", map[string]any{
		"success": true, "msg": "",
		"item": map[string]any{
			"item_type": "plan", "name": "count",
			"item_uid": "11111111-1111-1111-1111-111111111111",
			"user":     "alice", "user_group": "primary",
		},
		"qsize": float64(1),
	})

	added, err := client.ItemAdd(context.Background(), NewPlan("count", nil, nil), AtPosition(Front()))
	require.NoError(t, err)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", added.ItemUID)
	assert.Equal(t, "alice", added.User)

	params := tr.lastParams("queue_item_add")
	require.NotNil(t, params)
	assert.Equal(t, "front", params["pos"])
	assert.Equal(t, "alice", params["user"])
	assert.Equal(t, "primary", params["user_group"])

	t.Run("rejects invalid item locally", func(t *testing.T) {
		_, err := client.ItemAdd(context.Background(), NewPlan("", nil, nil))
		require.Error(t, err)
		assert.Equal(t, 1, tr.calls("queue_item_add"))
	})
}

func TestUserInfoNotSentOverHTTP(t *testing.T) {
	tr := newFakeTransport()
	tr.protocol = ProtocolHTTP
	tr.passUser = false
	tr.respond("status", fakeStatus(nil))
	client := New(tr, WithUser("alice"))

	_, err := client.ItemAdd(context.Background(), NewPlan("count", nil, nil))
	require.NoError(t, err)

	params := tr.lastParams("queue_item_add")
	require.NotNil(t, params)
	_, found := params["user"]
	assert.False(t, found)
}

func TestQueueGetCaching(t *testing.T) {
	client, tr := setupTestClient(t)
	ctx := context.Background()

	tr.respond("queue_get", map[string]any{
		"success": true, "msg": "",
		"items": []any{
			map[string]any{"item_type": "plan", "name": "count", "item_uid": "u1"},
		},
		"running_item":   map[string]any{},
		"plan_queue_uid": "queue-uid-1",
	})

	queue, err := client.QueueGet(ctx)
	require.NoError(t, err)
	require.Len(t, queue.Items, 1)
	assert.Equal(t, "count", queue.Items[0].Name)
	assert.Nil(t, queue.RunningItem)

	// Same queue UID in status: served from cache
	_, err = client.QueueGet(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, tr.calls("queue_get"))

	// Changed queue UID: refetched
	client.ClearStatusCache()
	tr.respond("status", fakeStatus(map[string]any{"plan_queue_uid": "queue-uid-2"}))
	tr.respond("queue_get", map[string]any{
		"success": true, "msg": "",
		"items":          []any{},
		"running_item":   map[string]any{},
		"plan_queue_uid": "queue-uid-2",
	})

	queue, err = client.QueueGet(ctx)
	require.NoError(t, err)
	assert.Empty(t, queue.Items)
	assert.Equal(t, 2, tr.calls("queue_get"))
}

func TestHistoryGetCaching(t *testing.T) {
	client, tr := setupTestClient(t)
	ctx := context.Background()

	tr.respond("history_get", map[string]any{
		"success": true, "msg": "",
		"items": []any{
			map[string]any{
				"item_type": "plan", "name": "count",
				"result": map[string]any{"exit_status": "completed"},
			},
		},
		"plan_history_uid": "history-uid-1",
	})

	history, err := client.HistoryGet(ctx)
	require.NoError(t, err)
	require.Len(t, history.Items, 1)
	assert.Equal(t, "completed", history.Items[0].Result["exit_status"])

	_, err = client.HistoryGet(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, tr.calls("history_get"))
}

func TestRERunsCaching(t *testing.T) {
	client, tr := setupTestClient(t)
	ctx := context.Background()

	tr.respond("re_runs", map[string]any{
		"success": true, "msg": "",
		"run_list": []any{
			map[string]any{"uid": "r1", "is_open": true},
			map[string]any{"uid": "r2", "is_open": false, "exit_status": "completed"},
		},
		"run_list_uid": "runs-uid-1",
	})

	runs, err := client.RERuns(ctx, RunsActive)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	open, err := client.RERuns(ctx, RunsOpen)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "r1", open[0].UID)

	closed, err := client.RERuns(ctx, RunsClosed)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, "r2", closed[0].UID)

	// All three served by a single request: the run list UID was unchanged
	assert.Equal(t, 1, tr.calls("re_runs"))

	t.Run("invalid option", func(t *testing.T) {
		_, err := client.RERuns(ctx, RunsOption("finished"))
		assert.Error(t, err)
	})
}

func TestAllowedListCaching(t *testing.T) {
	client, tr := setupTestClient(t)
	ctx := context.Background()

	tr.respond("plans_allowed", map[string]any{
		"success": true, "msg": "",
		"plans_allowed":     map[string]any{"count": map[string]any{}},
		"plans_allowed_uid": "allowed-uid-1",
	})

	plans, err := client.PlansAllowed(ctx)
	require.NoError(t, err)
	assert.Contains(t, plans, "count")

	_, err = client.PlansAllowed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, tr.calls("plans_allowed"))

	// The default group travels with the request over 0MQ
	params := tr.lastParams("plans_allowed")
	assert.Equal(t, DefaultUserGroup, params["user_group"])

	t.Run("new UID invalidates the cache", func(t *testing.T) {
		client.ClearStatusCache()
		tr.respond("status", fakeStatus(map[string]any{"plans_allowed_uid": "allowed-uid-2"}))
		tr.respond("plans_allowed", map[string]any{
			"success": true, "msg": "",
			"plans_allowed":     map[string]any{"scan": map[string]any{}},
			"plans_allowed_uid": "allowed-uid-2",
		})

		plans, err := client.PlansAllowed(ctx)
		require.NoError(t, err)
		assert.Contains(t, plans, "scan")
		assert.Equal(t, 2, tr.calls("plans_allowed"))
	})
}

func TestExistingListCaching(t *testing.T) {
	client, tr := setupTestClient(t)
	ctx := context.Background()

	tr.respond("plans_existing", map[string]any{
		"success": true, "msg": "",
		"plans_existing":     map[string]any{"count": map[string]any{}, "scan": map[string]any{}},
		"plans_existing_uid": "existing-uid-1",
	})

	plans, err := client.PlansExisting(ctx)
	require.NoError(t, err)
	assert.Len(t, plans, 2)

	_, err = client.PlansExisting(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, tr.calls("plans_existing"))
}

func TestScriptUpload(t *testing.T) {
	client, tr := setupTestClient(t)
	tr.respond("script_upload", map[string]any{
		"success": true, "msg": "", "task_uid": "task-1",
	})

	uid, err := client.ScriptUpload(context.Background(), "def f(): pass", false, true)
	require.NoError(t, err)
	assert.Equal(t, "task-1", uid)

	params := tr.lastParams("script_upload")
	assert.Equal(t, "def f(): pass", params["script"])
	assert.Equal(t, true, params["run_in_background"])
}

func TestTaskStatusAndResult(t *testing.T) {
	client, tr := setupTestClient(t)
	tr.respond("task_status", map[string]any{
		"success": true, "msg": "", "task_uid": "task-1", "status": "completed",
	})
	tr.respond("task_result", map[string]any{
		"success": true, "msg": "", "task_uid": "task-1", "status": "completed",
		"result": map[string]any{"success": true},
	})

	status, err := client.TaskStatus(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCompleted, status)

	result, err := client.TaskResult(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, true, result["success"])
}

func TestREPauseParams(t *testing.T) {
	client, tr := setupTestClient(t)

	require.NoError(t, client.REPause(context.Background(), PauseImmediate))
	params := tr.lastParams("re_pause")
	assert.Equal(t, "immediate", params["option"])

	require.NoError(t, client.REPause(context.Background(), ""))
	params = tr.lastParams("re_pause")
	_, found := params["option"]
	assert.False(t, found)
}
