package sim

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a store backed by a miniredis instance
func setupTestStore(t *testing.T) *Store {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store, err := NewStore(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestNewStore(t *testing.T) {
	t.Run("creates store successfully", func(t *testing.T) {
		store := setupTestStore(t)
		assert.NotNil(t, store)
		assert.NoError(t, store.Ping(context.Background()))
	})

	t.Run("rejects empty instance name", func(t *testing.T) {
		_, err := NewStore(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "instance name cannot be empty")
	})
}

func TestQueueRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	t.Run("empty queue", func(t *testing.T) {
		queue, err := store.Queue(ctx)
		require.NoError(t, err)
		assert.Empty(t, queue)
	})

	t.Run("replace and read back", func(t *testing.T) {
		items := []map[string]any{
			{"item_type": "plan", "name": "count", "item_uid": "uid-1"},
			{"item_type": "plan", "name": "scan", "item_uid": "uid-2"},
		}
		require.NoError(t, store.ReplaceQueue(ctx, items))

		queue, err := store.Queue(ctx)
		require.NoError(t, err)
		require.Len(t, queue, 2)
		assert.Equal(t, "count", queue[0]["name"])
		assert.Equal(t, "scan", queue[1]["name"])
	})

	t.Run("replace with nil clears the queue", func(t *testing.T) {
		require.NoError(t, store.ReplaceQueue(ctx, nil))
		queue, err := store.Queue(ctx)
		require.NoError(t, err)
		assert.Empty(t, queue)
	})
}

func TestQueueUID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	uid1, err := store.QueueUID(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, uid1)

	// Stable until the queue is mutated
	uid2, err := store.QueueUID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uid1, uid2)

	require.NoError(t, store.ReplaceQueue(ctx, []map[string]any{{"name": "count"}}))
	uid3, err := store.QueueUID(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, uid1, uid3)
}

func TestAppendHistory(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	uidBefore, err := store.HistoryUID(ctx)
	require.NoError(t, err)

	item := map[string]any{
		"item_type": "plan",
		"name":      "count",
		"result":    map[string]any{"exit_status": "completed"},
	}
	require.NoError(t, store.AppendHistory(ctx, item))
	require.NoError(t, store.AppendHistory(ctx, item))

	history, err := store.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	uidAfter, err := store.HistoryUID(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, uidBefore, uidAfter)

	require.NoError(t, store.ReplaceHistory(ctx, nil))
	history, err = store.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRunningItem(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	t.Run("nil when not set", func(t *testing.T) {
		item, err := store.RunningItem(ctx)
		require.NoError(t, err)
		assert.Nil(t, item)
	})

	t.Run("set and read back", func(t *testing.T) {
		require.NoError(t, store.SetRunningItem(ctx, map[string]any{"name": "count", "item_uid": "uid-1"}))
		item, err := store.RunningItem(ctx)
		require.NoError(t, err)
		require.NotNil(t, item)
		assert.Equal(t, "uid-1", item["item_uid"])
	})

	t.Run("clear with nil", func(t *testing.T) {
		require.NoError(t, store.SetRunningItem(ctx, nil))
		item, err := store.RunningItem(ctx)
		require.NoError(t, err)
		assert.Nil(t, item)
	})
}
