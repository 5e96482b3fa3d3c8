package sim

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store persists the plan queue and history in Redis, using the same storage
// shape as the real manager: lists of JSON-encoded items under namespaced
// keys, with a UID that is regenerated on every mutation so that clients can
// detect changes cheaply.
//
// Store methods are not individually atomic; the Manager serializes access.
type Store struct {
	rdb  *redis.Client
	name string
}

// NewStore creates a store for the given simulator instance name.
func NewStore(redisOpts *redis.Options, name string) (*Store, error) {
	if name == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Store{
		rdb:  redis.NewClient(redisOpts),
		name: name,
	}, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error { return s.rdb.Close() }

// Ping verifies Redis connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func (s *Store) key(suffix string) string {
	return fmt.Sprintf("qsim:%s:%s", s.name, suffix)
}

// Queue returns all queued items in order.
func (s *Store) Queue(ctx context.Context) ([]map[string]any, error) {
	return s.list(ctx, s.key("plan_queue"))
}

// History returns all history items in order.
func (s *Store) History(ctx context.Context) ([]map[string]any, error) {
	return s.list(ctx, s.key("plan_history"))
}

func (s *Store) list(ctx context.Context, key string) ([]map[string]any, error) {
	raw, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	items := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		var item map[string]any
		if err := json.Unmarshal([]byte(entry), &item); err != nil {
			return nil, fmt.Errorf("corrupt item in %s: %w", key, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// ReplaceQueue overwrites the queue with the given items and regenerates the
// queue UID.
func (s *Store) ReplaceQueue(ctx context.Context, items []map[string]any) error {
	return s.replaceList(ctx, s.key("plan_queue"), s.key("plan_queue_uid"), items)
}

// ReplaceHistory overwrites the history with the given items and regenerates
// the history UID.
func (s *Store) ReplaceHistory(ctx context.Context, items []map[string]any) error {
	return s.replaceList(ctx, s.key("plan_history"), s.key("plan_history_uid"), items)
}

func (s *Store) replaceList(ctx context.Context, key, uidKey string, items []map[string]any) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	for _, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to serialize item: %w", err)
		}
		pipe.RPush(ctx, key, b)
	}
	pipe.Set(ctx, uidKey, uuid.New().String(), 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// AppendHistory appends one item to the history and regenerates the history
// UID.
func (s *Store) AppendHistory(ctx context.Context, item map[string]any) error {
	b, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to serialize history item: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, s.key("plan_history"), b)
	pipe.Set(ctx, s.key("plan_history_uid"), uuid.New().String(), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append history item: %w", err)
	}
	return nil
}

// QueueUID returns the current queue UID. An empty queue that was never
// touched gets a UID assigned on first read.
func (s *Store) QueueUID(ctx context.Context) (string, error) {
	return s.uid(ctx, s.key("plan_queue_uid"))
}

// HistoryUID returns the current history UID.
func (s *Store) HistoryUID(ctx context.Context) (string, error) {
	return s.uid(ctx, s.key("plan_history_uid"))
}

func (s *Store) uid(ctx context.Context, key string) (string, error) {
	uid, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		uid = uuid.New().String()
		if err := s.rdb.Set(ctx, key, uid, 0).Err(); err != nil {
			return "", fmt.Errorf("failed to initialize %s: %w", key, err)
		}
		return uid, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return uid, nil
}

// SetRunningItem stores the currently running item. A nil item clears it.
func (s *Store) SetRunningItem(ctx context.Context, item map[string]any) error {
	key := s.key("running_item")
	if item == nil {
		if err := s.rdb.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to clear running item: %w", err)
		}
		return nil
	}

	b, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to serialize running item: %w", err)
	}
	if err := s.rdb.Set(ctx, key, b, 0).Err(); err != nil {
		return fmt.Errorf("failed to store running item: %w", err)
	}
	return nil
}

// RunningItem returns the currently running item, or nil if none.
func (s *Store) RunningItem(ctx context.Context) (map[string]any, error) {
	raw, err := s.rdb.Get(ctx, s.key("running_item")).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read running item: %w", err)
	}

	var item map[string]any
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, fmt.Errorf("corrupt running item: %w", err)
	}
	return item, nil
}
