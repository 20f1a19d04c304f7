package backend

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// cronLogger routes scheduler messages into slog.
type cronLogger struct {
	logger *slog.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("backend.cron."+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("backend.cron."+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
