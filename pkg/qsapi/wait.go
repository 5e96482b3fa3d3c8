package qsapi

import (
	"context"
	"time"
)

// StatusCondition is evaluated against fresh status snapshots by WaitFor.
type StatusCondition func(*Status) bool

// WaitFor polls the manager status at the configured polling period until
// cond returns true. A zero timeout applies DefaultWaitTimeout. Returns
// WaitTimeoutError if the condition is not met in time, or ctx.Err() if the
// context is cancelled. Errors from individual status requests are tolerated:
// the manager may be briefly unreachable, e.g. while restarting.
func (c *Client) WaitFor(ctx context.Context, cond StatusCondition, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}

	// Check immediately so that an already satisfied condition does not cost
	// a full polling period.
	if st, err := c.Status(ctx); err == nil && cond(st) {
		return nil
	}

	ticker := time.NewTicker(c.cfg.statusPolling)
	defer ticker.Stop()

	deadline := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-deadline:
			return &WaitTimeoutError{Timeout: timeout.String()}

		case <-ticker.C:
			st, err := c.Status(ctx)
			if err != nil {
				continue
			}
			if cond(st) {
				return nil
			}
		}
	}
}

// WaitForIdle waits until the manager state is idle.
func (c *Client) WaitForIdle(ctx context.Context, timeout time.Duration) error {
	return c.WaitFor(ctx, func(st *Status) bool {
		return st.ManagerState == ManagerStateIdle
	}, timeout)
}

// WaitForIdleOrPaused waits until the manager state is idle or paused.
func (c *Client) WaitForIdleOrPaused(ctx context.Context, timeout time.Duration) error {
	return c.WaitFor(ctx, func(st *Status) bool {
		return st.ManagerState == ManagerStateIdle || st.ManagerState == ManagerStatePaused
	}, timeout)
}

// WaitForCompletedQueue waits until the queue is empty and the manager is
// idle, i.e. queue execution has finished.
func (c *Client) WaitForCompletedQueue(ctx context.Context, timeout time.Duration) error {
	return c.WaitFor(ctx, func(st *Status) bool {
		return st.ManagerState == ManagerStateIdle && st.ItemsInQueue == 0
	}, timeout)
}

// WaitForEnvironmentOpen waits until the worker environment exists and the
// manager returned to the idle state.
func (c *Client) WaitForEnvironmentOpen(ctx context.Context, timeout time.Duration) error {
	return c.WaitFor(ctx, func(st *Status) bool {
		return st.WorkerEnvironmentExists && st.ManagerState == ManagerStateIdle
	}, timeout)
}

// WaitForEnvironmentClosed waits until the worker environment is gone and
// the manager returned to the idle state.
func (c *Client) WaitForEnvironmentClosed(ctx context.Context, timeout time.Duration) error {
	return c.WaitFor(ctx, func(st *Status) bool {
		return !st.WorkerEnvironmentExists && st.ManagerState == ManagerStateIdle
	}, timeout)
}
