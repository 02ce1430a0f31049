// Package audit records every executed tool action to an append-only sink.
package audit

import (
	"sync"
	"time"
)

// EventWriter is the interface for writing execution events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *ExecutionEvent)
	Close()
}

// Execution sources.
const (
	SourceAuto         = "auto"
	SourceConfirmation = "confirmation"
)

// ExecutionEvent is one tool execution to be persisted.
type ExecutionEvent struct {
	EventID        string
	ProjectID      string
	UserID         string
	ConfirmationID string // empty for auto-executed reads
	Timestamp      time.Time
	Step           int32 // 1-based position within the plan
	ToolName       string
	Tier           string
	ArgumentsJSON  string
	Success        bool
	Error          string
	Verified       *bool // nil when the tool defines no verification
	Discrepancies  []string
	LatencyMs      float32
	Source         string
}

// MemoryWriter keeps events in memory. Used by tests and the mock mode.
type MemoryWriter struct {
	mu     sync.Mutex
	events []*ExecutionEvent
}

// NewMemoryWriter creates an empty MemoryWriter.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{}
}

func (w *MemoryWriter) Write(event *ExecutionEvent) {
	w.mu.Lock()
	w.events = append(w.events, event)
	w.mu.Unlock()
}

func (w *MemoryWriter) Close() {}

// Events returns a copy of the recorded events.
func (w *MemoryWriter) Events() []*ExecutionEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*ExecutionEvent(nil), w.events...)
}
