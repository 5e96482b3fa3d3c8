// Package qsapi provides a Go client for the bluesky queue server RE Manager.
// The RE Manager owns a queue of experimental plans, a worker environment and
// the run engine; clients control it over one of two transports: the 0MQ
// control socket of the manager itself, or the REST API of the HTTP server
// that fronts it. Both transports expose the same set of methods and return
// the same response envelopes, so the client API is identical apart from
// construction.
//
// Typical usage:
//
//	rm, err := qsapi.NewZMQ()
//	if err != nil { ... }
//	defer rm.Close()
//
//	st, err := rm.Status(ctx)
//	_, err = rm.ItemAdd(ctx, qsapi.NewPlan("count", []any{[]string{"det1"}}, nil))
//	_, err = rm.QueueStart(ctx)
//	err = rm.WaitForCompletedQueue(ctx, 0)
package qsapi
