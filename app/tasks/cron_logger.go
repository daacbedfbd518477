package tasks

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

var _ cron.Logger = cronLogger{}

// cronLogger routes cron's own logging through slog. Its chatty info
// messages go to debug.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
