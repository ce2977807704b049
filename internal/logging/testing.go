package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger is a Logger that records every entry for assertions.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger creates a TestLogger recording all levels, trace included.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		observed: observed,
	}
}

// FilterMessage returns the entries whose message contains msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessageSnippet(msg)
}

// AssertLogged fails tb unless an entry at level has a message containing msg.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	for _, e := range t.observed.FilterLevelExact(level).All() {
		if strings.Contains(e.Message, msg) {
			return
		}
	}
	tb.Errorf("no %v entry containing %q among %d entries", level, msg, t.observed.Len())
}

// AssertField fails tb unless an entry containing msg carries the string
// field key=want. Context fields added by the Logger count.
func (t *TestLogger) AssertField(tb testing.TB, msg, key, want string) {
	tb.Helper()
	for _, e := range t.FilterMessage(msg).All() {
		if got, ok := e.ContextMap()[key]; ok && got == want {
			return
		}
	}
	tb.Errorf("no entry containing %q with %s=%q", msg, key, want)
}
