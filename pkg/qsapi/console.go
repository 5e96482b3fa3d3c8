package qsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
)

// consoleTopic is the 0MQ subscription topic the manager publishes console
// output under.
const consoleTopic = "QS_Console"

// DefaultConsolePollPeriod is the polling period of the HTTP console monitor.
const DefaultConsolePollPeriod = time.Second

// ConsoleMsg is a single console output message published by the manager.
type ConsoleMsg struct {
	Time float64 `json:"time"`
	Msg  string  `json:"msg"`
}

// ConsoleMonitor streams console output of the manager. Over 0MQ it
// subscribes to the manager info socket; over HTTP it polls the console
// output endpoint. Messages are delivered on the Messages channel and
// accumulated in a bounded text buffer readable with Text.
//
// Callers must Close the monitor when done. Closing the context passed to
// Client.ConsoleMonitor also stops it.
type ConsoleMonitor struct {
	msgs   chan ConsoleMsg
	errs   chan error
	cancel context.CancelFunc
	once   sync.Once

	mu       sync.Mutex
	lines    []string
	maxLines int
}

// Messages returns the channel of console messages. The channel is closed
// when the monitor stops. If the consumer falls behind, the oldest buffered
// messages are dropped.
func (m *ConsoleMonitor) Messages() <-chan ConsoleMsg { return m.msgs }

// Errors returns the channel of non-fatal monitor errors (e.g. messages
// that failed to decode). The monitor keeps running after errors.
func (m *ConsoleMonitor) Errors() <-chan error { return m.errs }

// Close stops the monitor and releases its resources. Safe to call multiple
// times.
func (m *ConsoleMonitor) Close() error {
	m.once.Do(m.cancel)
	return nil
}

// Text returns up to n last lines of accumulated console output as a single
// string. n <= 0 returns the full buffer.
func (m *ConsoleMonitor) Text(n int) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	lines := m.lines
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "")
}

// Clear discards the accumulated text buffer.
func (m *ConsoleMonitor) Clear() {
	m.mu.Lock()
	m.lines = nil
	m.mu.Unlock()
}

// record appends a message to the text buffer and publishes it on the
// messages channel, dropping the oldest buffered message on overflow.
func (m *ConsoleMonitor) record(msg ConsoleMsg) {
	m.mu.Lock()
	m.lines = append(m.lines, msg.Msg)
	if len(m.lines) > m.maxLines {
		m.lines = m.lines[len(m.lines)-m.maxLines:]
	}
	m.mu.Unlock()

	for {
		select {
		case m.msgs <- msg:
			return
		default:
		}
		select {
		case <-m.msgs:
		default:
		}
	}
}

func (m *ConsoleMonitor) reportError(ctx context.Context, err error) {
	select {
	case m.errs <- err:
	case <-ctx.Done():
	}
}

// ConsoleMonitor starts streaming console output from the manager.
func (c *Client) ConsoleMonitor(ctx context.Context) (*ConsoleMonitor, error) {
	monCtx, cancel := context.WithCancel(ctx)

	m := &ConsoleMonitor{
		msgs:     make(chan ConsoleMsg, c.cfg.consoleMaxMsgs),
		errs:     make(chan error, 10),
		cancel:   cancel,
		maxLines: c.cfg.consoleMaxLines,
	}

	switch c.tr.Protocol() {
	case ProtocolZMQ:
		if err := m.runZMQ(monCtx, c.cfg.zmqInfoAddr); err != nil {
			cancel()
			return nil, err
		}
	case ProtocolHTTP:
		go m.runHTTP(monCtx, c)
	default:
		cancel()
		return nil, fmt.Errorf("unsupported protocol %q", c.tr.Protocol())
	}

	return m, nil
}

// runZMQ subscribes to the manager info socket and forwards published
// console messages.
func (m *ConsoleMonitor) runZMQ(ctx context.Context, infoAddr string) error {
	if infoAddr == "" {
		infoAddr = DefaultZMQInfoAddress
	}

	sub := zmq4.NewSub(ctx)
	if err := sub.Dial(infoAddr); err != nil {
		sub.Close()
		return fmt.Errorf("failed to connect to info socket %s: %w", infoAddr, err)
	}
	if err := sub.SetOption(zmq4.OptionSubscribe, consoleTopic); err != nil {
		sub.Close()
		return fmt.Errorf("failed to subscribe to %q: %w", consoleTopic, err)
	}

	// Recv does not take a context; closing the socket unblocks it.
	go func() {
		<-ctx.Done()
		sub.Close()
	}()

	go func() {
		defer close(m.msgs)
		defer close(m.errs)

		for {
			zmsg, err := sub.Recv()
			if err != nil {
				return
			}

			payload := zmsg.Frames[0]
			if len(zmsg.Frames) > 1 {
				payload = zmsg.Frames[1]
			} else {
				payload = bytes.TrimPrefix(payload, []byte(consoleTopic+" "))
			}

			var msg ConsoleMsg
			if err := json.Unmarshal(payload, &msg); err != nil {
				m.reportError(ctx, fmt.Errorf("failed to decode console message: %w", err))
				continue
			}
			m.record(msg)
		}
	}()

	return nil
}

// runHTTP polls the console output endpoint, passing the UID of the last
// received message so that only new messages are returned.
func (m *ConsoleMonitor) runHTTP(ctx context.Context, c *Client) {
	defer close(m.msgs)
	defer close(m.errs)

	ticker := time.NewTicker(DefaultConsolePollPeriod)
	defer ticker.Stop()

	lastUID := ""
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		resp, err := c.Send(ctx, "console_output_update", map[string]any{"last_msg_uid": lastUID})
		if err != nil {
			m.reportError(ctx, fmt.Errorf("console output request failed: %w", err))
			continue
		}

		if uid, ok := resp["last_msg_uid"].(string); ok {
			lastUID = uid
		}

		batch, _ := resp["console_output_msgs"].([]any)
		for _, v := range batch {
			raw, ok := v.(map[string]any)
			if !ok {
				continue
			}
			var msg ConsoleMsg
			msg.Msg, _ = raw["msg"].(string)
			msg.Time, _ = raw["time"].(float64)
			m.record(msg)
		}
	}
}
