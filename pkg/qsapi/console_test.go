package qsapi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(maxMsgs, maxLines int) *ConsoleMonitor {
	_, cancel := context.WithCancel(context.Background())
	return &ConsoleMonitor{
		msgs:     make(chan ConsoleMsg, maxMsgs),
		errs:     make(chan error, 10),
		cancel:   cancel,
		maxLines: maxLines,
	}
}

func TestConsoleMonitorRecord(t *testing.T) {
	t.Run("messages reach the channel and the buffer", func(t *testing.T) {
		m := newTestMonitor(10, 10)
		defer m.Close()

		m.record(ConsoleMsg{Time: 1, Msg: "line one\n"})
		m.record(ConsoleMsg{Time: 2, Msg: "line two\n"})

		msg := <-m.Messages()
		assert.Equal(t, "line one\n", msg.Msg)

		assert.Equal(t, "line one\nline two\n", m.Text(0))
	})

	t.Run("oldest channel message dropped on overflow", func(t *testing.T) {
		m := newTestMonitor(2, 10)
		defer m.Close()

		m.record(ConsoleMsg{Msg: "a"})
		m.record(ConsoleMsg{Msg: "b"})
		m.record(ConsoleMsg{Msg: "c"})

		msg := <-m.Messages()
		assert.Equal(t, "b", msg.Msg)
		msg = <-m.Messages()
		assert.Equal(t, "c", msg.Msg)
	})

	t.Run("text buffer is bounded", func(t *testing.T) {
		m := newTestMonitor(10, 2)
		defer m.Close()

		m.record(ConsoleMsg{Msg: "a\n"})
		m.record(ConsoleMsg{Msg: "b\n"})
		m.record(ConsoleMsg{Msg: "c\n"})

		assert.Equal(t, "b\nc\n", m.Text(0))
		assert.Equal(t, "c\n", m.Text(1))
	})

	t.Run("clear discards the buffer", func(t *testing.T) {
		m := newTestMonitor(10, 10)
		defer m.Close()

		m.record(ConsoleMsg{Msg: "a\n"})
		m.Clear()
		assert.Empty(t, m.Text(0))
	})
}

func TestConsoleMonitorClose(t *testing.T) {
	m := newTestMonitor(10, 10)
	require.NoError(t, m.Close())
	// Close is idempotent
	require.NoError(t, m.Close())
}
