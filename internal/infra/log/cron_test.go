package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestCronLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := CronLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))

	l.Info("schedule", "now", "10:00", "entry", 1)
	l.Error(errors.New("panic"), "recovered", "stack", "x")

	out := buf.String()
	for _, want := range []string{`"message":"cron: schedule"`, `"entry":1`, `"error":"panic"`, `"level":"error"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("нет %s в выводе: %s", want, out)
		}
	}
}
