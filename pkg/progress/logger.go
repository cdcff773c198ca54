package progress

import (
	"log/slog"
)

// Logger reports file boundaries to a structured logger. Rows are not
// logged individually.
type Logger struct {
	logger *slog.Logger
}

// NewLogger creates a Logger reporter.
func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger}
}

func (l *Logger) FileStarted(info FileInfo) {
	l.logger.Info("file started",
		slog.String("job_id", info.JobID),
		slog.String("input", info.Input),
		slog.String("output", info.Output),
		slog.Any("fields", info.Fields),
	)
}

func (l *Logger) RowWritten(FileInfo, Row) {}

func (l *Logger) FileFinished(s Summary) {
	attrs := []any{
		slog.String("job_id", s.JobID),
		slog.String("input", s.Input),
		slog.String("output", s.Output),
		slog.String("status", string(s.Status)),
		slog.Int64("rows", s.Rows),
		slog.Int64("succeeded", s.Succeeded),
		slog.Int64("failed", s.Failed),
		slog.Int64("dropped", s.Dropped),
		slog.Duration("duration", s.Duration()),
	}
	if s.Err != nil {
		attrs = append(attrs, slog.String("error", s.Err.Error()))
	}

	if s.Status == StatusCompleted {
		l.logger.Info("file finished", attrs...)
		return
	}
	l.logger.Error("file finished", attrs...)
}
