package sim

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// consoleMsg is one console output line with its publication metadata.
type consoleMsg struct {
	UID  string
	Time float64
	Msg  string
}

// ConsoleLog is the bounded console output buffer of the simulator. Every
// line gets a UID so that HTTP clients can poll incrementally; a publish
// callback lets the 0MQ server forward lines to the info socket as they
// appear.
type ConsoleLog struct {
	mu      sync.Mutex
	msgs    []consoleMsg
	max     int
	publish func(t float64, msg string)
}

func newConsoleLog(max int) *ConsoleLog {
	return &ConsoleLog{max: max}
}

// OnAppend registers a callback invoked for every appended line.
func (c *ConsoleLog) OnAppend(publish func(t float64, msg string)) {
	c.mu.Lock()
	c.publish = publish
	c.mu.Unlock()
}

// Append records one console output line.
func (c *ConsoleLog) Append(msg string) {
	now := float64(time.Now().UnixNano()) / 1e9

	c.mu.Lock()
	c.msgs = append(c.msgs, consoleMsg{UID: uuid.New().String(), Time: now, Msg: msg})
	if len(c.msgs) > c.max {
		c.msgs = c.msgs[len(c.msgs)-c.max:]
	}
	publish := c.publish
	c.mu.Unlock()

	if publish != nil {
		publish(now, msg)
	}
}

// Text returns up to n last lines as a single string.
func (c *ConsoleLog) Text(n int) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := c.msgs
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}

	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(m.Msg)
	}
	return sb.String()
}

// Since returns the messages recorded after the message with the given UID,
// in wire shape, along with the UID of the latest message. An unknown or
// empty UID returns the full buffer.
func (c *ConsoleLog) Since(lastUID string) ([]any, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := 0
	if lastUID != "" {
		for i, m := range c.msgs {
			if m.UID == lastUID {
				start = i + 1
				break
			}
		}
	}

	out := make([]any, 0, len(c.msgs)-start)
	for _, m := range c.msgs[start:] {
		out = append(out, map[string]any{"time": m.Time, "msg": m.Msg})
	}

	latest := lastUID
	if len(c.msgs) > 0 {
		latest = c.msgs[len(c.msgs)-1].UID
	}
	return out, latest
}
