package qsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
)

const (
	// DefaultZMQControlAddress is the default address of the manager control socket.
	DefaultZMQControlAddress = "tcp://localhost:60615"

	// DefaultZMQInfoAddress is the default address of the manager info (console
	// output) socket.
	DefaultZMQInfoAddress = "tcp://localhost:60625"

	// DefaultZMQSendTimeout is the default timeout for sending a request over 0MQ.
	DefaultZMQSendTimeout = 500 * time.Millisecond

	// DefaultZMQRecvTimeout is the default timeout for receiving a reply over 0MQ.
	DefaultZMQRecvTimeout = 2 * time.Second
)

// zmqRequest is the JSON envelope sent to the manager control socket.
type zmqRequest struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

// ZMQTransport communicates with the manager over its 0MQ control socket
// using JSON request/reply messages. A single REQ socket is shared and
// requests are serialized; the socket is discarded and re-created after a
// timeout, since a REQ socket that missed a reply cannot be reused.
type ZMQTransport struct {
	addr        string
	timeoutSend time.Duration
	timeoutRecv time.Duration

	mu     sync.Mutex
	sock   zmq4.Socket
	closed bool
}

// NewZMQTransport creates a 0MQ transport for the given control socket
// address. If addr is empty, DefaultZMQControlAddress is used. The connection
// is established lazily on the first request.
func NewZMQTransport(addr string, timeoutSend, timeoutRecv time.Duration) *ZMQTransport {
	if addr == "" {
		addr = DefaultZMQControlAddress
	}
	if timeoutSend <= 0 {
		timeoutSend = DefaultZMQSendTimeout
	}
	if timeoutRecv <= 0 {
		timeoutRecv = DefaultZMQRecvTimeout
	}

	return &ZMQTransport{
		addr:        addr,
		timeoutSend: timeoutSend,
		timeoutRecv: timeoutRecv,
	}
}

// Protocol reports ProtocolZMQ.
func (t *ZMQTransport) Protocol() Protocol { return ProtocolZMQ }

// PassUserInfo reports true: the manager expects user identity in request
// parameters on the control socket.
func (t *ZMQTransport) PassUserInfo() bool { return true }

// Addr returns the control socket address the transport connects to.
func (t *ZMQTransport) Addr() string { return t.addr }

// Send performs one request/reply exchange with the manager.
// Timeouts and context cancellation both invalidate the socket.
func (t *ZMQTransport) Send(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	if params == nil {
		params = map[string]any{}
	}

	body, err := json.Marshal(zmqRequest{Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize request: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, fmt.Errorf("transport is closed")
	}

	if t.sock == nil {
		sock := zmq4.NewReq(context.Background(), zmq4.WithDialerRetry(time.Second))
		if err := sock.Dial(t.addr); err != nil {
			sock.Close()
			return nil, fmt.Errorf("failed to connect to %s: %w", t.addr, err)
		}
		t.sock = sock
	}

	// The exchange goroutines may outlive a timed-out request, after
	// dropSocket has already cleared t.sock. They must only ever touch
	// this local reference.
	sock := t.sock

	if err := t.exchange(ctx, t.timeoutSend, func() error {
		return sock.Send(zmq4.NewMsg(body))
	}); err != nil {
		t.dropSocket()
		return nil, &RequestTimeoutError{Method: method, Err: err}
	}

	var reply zmq4.Msg
	if err := t.exchange(ctx, t.timeoutRecv, func() error {
		var err error
		reply, err = sock.Recv()
		return err
	}); err != nil {
		t.dropSocket()
		return nil, &RequestTimeoutError{Method: method, Err: err}
	}

	var resp map[string]any
	if err := json.Unmarshal(reply.Frames[0], &resp); err != nil {
		return nil, fmt.Errorf("failed to decode manager response: %w", err)
	}
	return resp, nil
}

// exchange runs op with a deadline. 0MQ socket operations do not take a
// context, so the operation runs in a goroutine and the socket is invalidated
// on timeout, which unblocks the pending call.
func (t *ZMQTransport) exchange(ctx context.Context, timeout time.Duration, op func() error) error {
	done := make(chan error, 1)
	go func() { done <- op() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("operation timed out after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *ZMQTransport) dropSocket() {
	if t.sock != nil {
		t.sock.Close()
		t.sock = nil
	}
}

// Close closes the control socket. The transport cannot be reused.
func (t *ZMQTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.dropSocket()
	return nil
}
