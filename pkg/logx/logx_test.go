package logx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerBuffersEntries(t *testing.T) {
	logger := NewLogger("logx-test")
	logger.Info("hello %s", "world")
	logger.Warn("watch out")

	entries := GetRecentLogEntries("logx-test", time.Time{})
	require.GreaterOrEqual(t, len(entries), 2)

	last := entries[len(entries)-1]
	assert.Equal(t, "logx-test", last.Component)
	assert.Equal(t, "WARN", last.Level)
	assert.Equal(t, "watch out", last.Message)

	prev := entries[len(entries)-2]
	assert.Equal(t, "INFO", prev.Level)
	assert.Equal(t, "hello world", prev.Message)
}

func TestComponentFilter(t *testing.T) {
	NewLogger("component-a").Info("from a")
	NewLogger("component-b").Info("from b")

	for _, entry := range GetRecentLogEntries("component-a", time.Time{}) {
		assert.Equal(t, "component-a", entry.Component)
	}
}

func TestDebugGating(t *testing.T) {
	logger := NewLogger("debug-test")

	SetDebug(false)
	logger.Debug("hidden")
	assert.Empty(t, GetRecentLogEntries("debug-test", time.Time{}))

	SetDebug(true)
	defer SetDebug(false)
	logger.Debug("visible")

	entries := GetRecentLogEntries("debug-test", time.Time{})
	require.Len(t, entries, 1)
	assert.Equal(t, "DEBUG", entries[0].Level)
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil, "context"))

	base := Errorf("base failure")
	wrapped := Wrap(base, "while doing work")
	require.Error(t, wrapped)
	assert.ErrorIs(t, wrapped, base)
	assert.Contains(t, wrapped.Error(), "while doing work")
}
