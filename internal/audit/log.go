package audit

import "go.uber.org/zap"

// LogWriter is a fallback EventWriter for local development.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *ExecutionEvent) {
	fields := []zap.Field{
		zap.String("event_id", event.EventID),
		zap.String("project_id", event.ProjectID),
		zap.String("user_id", event.UserID),
		zap.String("confirmation_id", event.ConfirmationID),
		zap.Int32("step", event.Step),
		zap.String("tool_name", event.ToolName),
		zap.String("tier", event.Tier),
		zap.Bool("success", event.Success),
		zap.Float32("latency_ms", event.LatencyMs),
		zap.String("source", event.Source),
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	if event.Verified != nil {
		fields = append(fields, zap.Bool("verified", *event.Verified))
	}
	if len(event.Discrepancies) > 0 {
		fields = append(fields, zap.Strings("discrepancies", event.Discrepancies))
	}
	w.logger.Info("tool_execution_event", fields...)
}

func (w *LogWriter) Close() {}
