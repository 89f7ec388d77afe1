package logger

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/arloliu/fillsched/types"
)

// Level names a log level recorded by TestLogger.
type Level string

// Recorded levels.
const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Entry is one message recorded by TestLogger.
type Entry struct {
	Level   Level
	Message string
	Fields  map[string]any
}

// TestLogger writes to the test log and records every entry, so tests can
// assert on the warnings and errors a component reports.
type TestLogger struct {
	t testing.TB

	mu      sync.Mutex
	entries []Entry
}

var _ types.Logger = (*TestLogger)(nil)

// NewTest creates a recording logger bound to t.
//
// Example:
//
//	log := logger.NewTest(t)
//	cfg.ValidateWithWarnings(log)
//	require.True(t, log.Logged(logger.LevelWarn, "trolley reuse and replanning are both disabled"))
func NewTest(t testing.TB) *TestLogger {
	return &TestLogger{t: t}
}

func (l *TestLogger) Debug(msg string, keysAndValues ...any) {
	l.record(LevelDebug, msg, keysAndValues)
}

func (l *TestLogger) Info(msg string, keysAndValues ...any) {
	l.record(LevelInfo, msg, keysAndValues)
}

func (l *TestLogger) Warn(msg string, keysAndValues ...any) {
	l.record(LevelWarn, msg, keysAndValues)
}

func (l *TestLogger) Error(msg string, keysAndValues ...any) {
	l.record(LevelError, msg, keysAndValues)
}

// Fatal fails the test immediately.
func (l *TestLogger) Fatal(msg string, keysAndValues ...any) {
	l.t.Fatalf("FATAL: %s %s", msg, formatKeyValues(keysAndValues))
}

// Entries returns the recorded entries of level, oldest first.
func (l *TestLogger) Entries(level Level) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Entry
	for _, e := range l.entries {
		if e.Level == level {
			out = append(out, e)
		}
	}

	return out
}

// Logged reports whether a message containing substr was recorded at level.
func (l *TestLogger) Logged(level Level, substr string) bool {
	for _, e := range l.Entries(level) {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}

	return false
}

func (l *TestLogger) record(level Level, msg string, keysAndValues []any) {
	l.t.Helper()
	l.t.Logf("%s: %s %s", level, msg, formatKeyValues(keysAndValues))

	fields := make(map[string]any, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}

	l.mu.Lock()
	l.entries = append(l.entries, Entry{Level: level, Message: msg, Fields: fields})
	l.mu.Unlock()
}

// formatKeyValues renders key-value pairs as "k=v" words.
func formatKeyValues(keysAndValues []any) string {
	if len(keysAndValues) == 0 {
		return ""
	}

	var sb strings.Builder
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 < len(keysAndValues) {
			fmt.Fprintf(&sb, "%v=%v ", keysAndValues[i], keysAndValues[i+1])
		} else {
			fmt.Fprintf(&sb, "%v=<missing> ", keysAndValues[i])
		}
	}

	return strings.TrimSuffix(sb.String(), " ")
}
