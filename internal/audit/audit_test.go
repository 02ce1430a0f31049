package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var (
	_ EventWriter = (*ClickHouseWriter)(nil)
	_ EventWriter = (*LogWriter)(nil)
	_ EventWriter = (*MemoryWriter)(nil)
)

func TestLogWriter(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	w := NewLogWriter(zap.New(core))

	verified := false
	w.Write(&ExecutionEvent{
		EventID:        "ev_1",
		ProjectID:      "p1",
		ConfirmationID: "cf_1",
		Timestamp:      time.Now(),
		Step:           1,
		ToolName:       "update_scene",
		Tier:           "mutate",
		Success:        true,
		Verified:       &verified,
		Discrepancies:  []string{"page_count: expected 2, got 1"},
		Source:         SourceConfirmation,
	})
	w.Close()

	entries := logs.FilterMessage("tool_execution_event").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "update_scene", fields["tool_name"])
	assert.Equal(t, false, fields["verified"])
	assert.NotContains(t, fields, "error")
}

func TestMemoryWriter(t *testing.T) {
	w := NewMemoryWriter()
	w.Write(&ExecutionEvent{EventID: "a"})
	w.Write(&ExecutionEvent{EventID: "b"})

	events := w.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "b", events[1].EventID)
}

func TestNewClickHouseWriterRejectsBadDSN(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := NewClickHouseWriter(ctx, "://not a dsn", zap.NewNop())
	assert.Error(t, err)
}
