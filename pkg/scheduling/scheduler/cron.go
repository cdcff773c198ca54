package scheduler

import (
	"log/slog"
)

// cronLogger routes cron's key-value logging into slog. Cron's own
// bookkeeping (wake, schedule, start) is debug noise; errors stay errors.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, slog.String("error", err.Error()))...)
}
