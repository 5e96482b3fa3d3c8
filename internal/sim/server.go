package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-zeromq/zmq4"
	"golang.org/x/sync/errgroup"
)

// consoleTopic is the subscription topic console output is published under
// on the info socket.
const consoleTopic = "QS_Console"

// ServerConfig holds the listen addresses of a simulator server.
// Port 0 selects an ephemeral port; the bound addresses are available from
// the Server after Start.
type ServerConfig struct {
	ZMQControlAddr string // e.g. tcp://127.0.0.1:60615
	ZMQInfoAddr    string // e.g. tcp://127.0.0.1:60625
	HTTPAddr       string // e.g. 127.0.0.1:60610
}

// routes maps manager methods onto the REST API surface served over HTTP.
var routes = map[string]struct {
	verb string
	path string
}{
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

// Server exposes a Manager over the 0MQ control socket, the 0MQ info
// socket and the HTTP REST API simultaneously.
type Server struct {
	mgr *Manager
	cfg ServerConfig

	rep     zmq4.Socket
	pub     zmq4.Socket
	httpLn  net.Listener
	httpSrv *http.Server
}

// NewServer creates a server for the given manager.
func NewServer(mgr *Manager, cfg ServerConfig) *Server {
	if cfg.ZMQControlAddr == "" {
		cfg.ZMQControlAddr = "tcp://127.0.0.1:60615"
	}
	if cfg.ZMQInfoAddr == "" {
		cfg.ZMQInfoAddr = "tcp://127.0.0.1:60625"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = "127.0.0.1:60610"
	}
	return &Server{mgr: mgr, cfg: cfg}
}

// Start binds all listen addresses. It must be called before Run so that
// ephemeral ports are resolvable via ZMQControlAddr/HTTPAddr.
func (s *Server) Start(ctx context.Context) error {
	s.rep = zmq4.NewRep(ctx)
	if err := s.rep.Listen(s.cfg.ZMQControlAddr); err != nil {
		return fmt.Errorf("failed to bind control socket %s: %w", s.cfg.ZMQControlAddr, err)
	}

	s.pub = zmq4.NewPub(ctx)
	if err := s.pub.Listen(s.cfg.ZMQInfoAddr); err != nil {
		s.rep.Close()
		return fmt.Errorf("failed to bind info socket %s: %w", s.cfg.ZMQInfoAddr, err)
	}

	ln, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		s.rep.Close()
		s.pub.Close()
		return fmt.Errorf("failed to bind HTTP listener %s: %w", s.cfg.HTTPAddr, err)
	}
	s.httpLn = ln
	s.httpSrv = &http.Server{Handler: s.httpHandler(), ReadHeaderTimeout: 5 * time.Second}

	// Forward console output to the info socket.
	s.mgr.Console().OnAppend(func(t float64, msg string) {
		payload, err := json.Marshal(map[string]any{"time": t, "msg": msg})
		if err != nil {
			return
		}
		_ = s.pub.Send(zmq4.NewMsgFrom([]byte(consoleTopic), payload))
	})

	return nil
}

// ZMQControlAddr returns the bound control socket address.
func (s *Server) ZMQControlAddr() string {
	if addr := s.rep.Addr(); addr != nil {
		return "tcp://" + addr.String()
	}
	return s.cfg.ZMQControlAddr
}

// ZMQInfoAddr returns the bound info socket address.
func (s *Server) ZMQInfoAddr() string {
	if addr := s.pub.Addr(); addr != nil {
		return "tcp://" + addr.String()
	}
	return s.cfg.ZMQInfoAddr
}

// HTTPAddr returns the bound HTTP listener address.
func (s *Server) HTTPAddr() string { return s.httpLn.Addr().String() }

// Run serves all transports until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	log.Printf("[Sim] Serving control socket on %s, info socket on %s, HTTP on %s",
		s.ZMQControlAddr(), s.ZMQInfoAddr(), s.HTTPAddr())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.serveZMQ(gctx) })

	g.Go(func() error {
		err := s.httpSrv.Serve(s.httpLn)
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		s.rep.Close()
		s.pub.Close()
		return gctx.Err()
	})

	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

// serveZMQ answers requests on the control socket. A killed manager stops
// the loop without replying, leaving clients to time out.
func (s *Server) serveZMQ(ctx context.Context) error {
	for {
		msg, err := s.rep.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("control socket receive failed: %w", err)
		}

		var req struct {
			Method string         `json:"method"`
			Params map[string]any `json:"params"`
		}
		resp := map[string]any{}
		if err := json.Unmarshal(msg.Frames[0], &req); err != nil {
			resp = fail("Invalid request: %v", err)
		} else {
			var reply bool
			resp, reply = s.mgr.Handle(ctx, req.Method, req.Params)
			if !reply {
				log.Printf("[Sim] Control socket stopped responding (manager killed)")
				return nil
			}
		}

		body, err := json.Marshal(resp)
		if err != nil {
			body, _ = json.Marshal(fail("Failed to serialize response: %v", err))
		}
		if err := s.rep.Send(zmq4.NewMsg(body)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("control socket send failed: %w", err)
		}
	}
}

// httpHandler builds the REST API handler from the route table.
func (s *Server) httpHandler() http.Handler {
	mux := http.NewServeMux()
	for method, route := range routes {
		method := method
		mux.HandleFunc(fmt.Sprintf("%s %s", route.verb, route.path), func(w http.ResponseWriter, r *http.Request) {
			var params map[string]any
			if body, err := io.ReadAll(r.Body); err == nil && len(body) > 0 {
				if err := json.Unmarshal(body, &params); err != nil {
					writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": "invalid JSON body"})
					return
				}
			}

			resp, reply := s.mgr.Handle(r.Context(), method, params)
			if !reply {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{"detail": "manager is not responding"})
				return
			}
			writeJSON(w, http.StatusOK, resp)
		})
	}
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
