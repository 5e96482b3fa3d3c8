package qsapi

import (
	"context"
)

// Protocol identifies the transport protocol used to communicate with the
// manager.
type Protocol string

const (
	ProtocolZMQ  Protocol = "ZMQ"
	ProtocolHTTP Protocol = "HTTP"
)

// Transport sends a single named request to the manager and returns the
// decoded response envelope. Implementations are safe for concurrent use.
type Transport interface {
	// Send performs one request/reply exchange. params may be nil.
	Send(ctx context.Context, method string, params map[string]any) (map[string]any, error)

	// Protocol reports the transport protocol (ZMQ or HTTP).
	Protocol() Protocol

	// PassUserInfo reports whether user name and user group must be attached
	// to request parameters. The HTTP server assigns user identity from login
	// information, so the HTTP transport returns false.
	PassUserInfo() bool

	Close() error
}

// restEndpoint maps a manager method to its REST representation.
type restEndpoint struct {
	verb string
	path string
}

// restMethodMap maps 0MQ method names onto the REST API of the HTTP server.
// Methods absent from the map cannot be called over HTTP.
var restMethodMap = map[string]restEndpoint{
	"ping":                    {"GET", "/api/ping"},
	"status":                  {"GET", "/api/status"},
	"queue_start":             {"POST", "/api/queue/start"},
	"queue_stop":              {"POST", "/api/queue/stop"},
	"queue_stop_cancel":       {"POST", "/api/queue/stop/cancel"},
	"queue_get":               {"GET", "/api/queue/get"},
	"queue_clear":             {"POST", "/api/queue/clear"},
	"queue_mode_set":          {"POST", "/api/queue/mode/set"},
	"queue_item_add":          {"POST", "/api/queue/item/add"},
	"queue_item_add_batch":    {"POST", "/api/queue/item/add/batch"},
	"queue_item_get":          {"GET", "/api/queue/item/get"},
	"queue_item_update":       {"POST", "/api/queue/item/update"},
	"queue_item_remove":       {"POST", "/api/queue/item/remove"},
	"queue_item_remove_batch": {"POST", "/api/queue/item/remove/batch"},
	"queue_item_move":         {"POST", "/api/queue/item/move"},
	"queue_item_move_batch":   {"POST", "/api/queue/item/move/batch"},
	"queue_item_execute":      {"POST", "/api/queue/item/execute"},
	"history_get":             {"GET", "/api/history/get"},
	"history_clear":           {"POST", "/api/history/clear"},
	"environment_open":        {"POST", "/api/environment/open"},
	"environment_close":       {"POST", "/api/environment/close"},
	"environment_destroy":     {"POST", "/api/environment/destroy"},
	"re_pause":                {"POST", "/api/re/pause"},
	"re_resume":               {"POST", "/api/re/resume"},
	"re_stop":                 {"POST", "/api/re/stop"},
	"re_abort":                {"POST", "/api/re/abort"},
	"re_halt":                 {"POST", "/api/re/halt"},
	"re_runs":                 {"POST", "/api/re/runs"},
	"plans_allowed":           {"GET", "/api/plans/allowed"},
	"devices_allowed":         {"GET", "/api/devices/allowed"},
	"plans_existing":          {"GET", "/api/plans/existing"},
	"devices_existing":        {"GET", "/api/devices/existing"},
	"permissions_reload":      {"POST", "/api/permissions/reload"},
	"permissions_get":         {"GET", "/api/permissions/get"},
	"permissions_set":         {"POST", "/api/permissions/set"},
	"script_upload":           {"POST", "/api/script/upload"},
	"function_execute":        {"POST", "/api/function/execute"},
	"task_status":             {"GET", "/api/task/status"},
	"task_result":             {"GET", "/api/task/result"},
	"console_output":          {"GET", "/api/console_output"},
	"console_output_update":   {"GET", "/api/console_output_update"},
	"manager_stop":            {"POST", "/api/manager/stop"},
	"manager_kill":            {"POST", "/api/test/manager/kill"},
}
