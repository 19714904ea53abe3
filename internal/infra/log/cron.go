package log

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// cronLogger передаёт события cron в zerolog.
type cronLogger struct {
	log zerolog.Logger
}

// CronLogger адаптирует zerolog к интерфейсу cron.Logger.
func CronLogger(logger zerolog.Logger) cron.Logger {
	return cronLogger{log: logger}
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
