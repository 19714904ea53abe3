package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger создаёт настроенный zerolog. Если задан file, записи
// дублируются в файл с ротацией.
func NewLogger(appEnv, file string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "dev" {
		level = zerolog.DebugLevel
	}
	var out io.Writer = os.Stdout
	if file != "" {
		out = zerolog.MultiLevelWriter(os.Stdout, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		})
	}
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(out).With().Timestamp().Logger().Level(level)
}
