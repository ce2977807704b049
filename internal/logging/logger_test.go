package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/bestyec/DevFlowCheck/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newJSONLogger(t *testing.T) (*Logger, *bytes.Buffer) {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Format = "json"
	cfg.Level = TraceLevel
	cfg.Fields = nil

	var buf bytes.Buffer
	logger, err := NewLoggerTo(cfg, nil, zapcore.AddSync(&buf))
	require.NoError(t, err)
	return logger, &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m))
	buf.Reset()
	return m
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, logger.Underlying())
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Console = false

	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one output")
}

func TestLogger_ContextAwareMethods(t *testing.T) {
	core, observed := observer.New(TraceLevel)
	logger := &Logger{zap: zap.New(core), config: NewDefaultConfig()}
	ctx := context.Background()

	tests := []struct {
		name    string
		logFunc func()
		level   zapcore.Level
	}{
		{"trace", func() { logger.Trace(ctx, "msg", zap.String("key", "val")) }, TraceLevel},
		{"debug", func() { logger.Debug(ctx, "msg", zap.String("key", "val")) }, zapcore.DebugLevel},
		{"info", func() { logger.Info(ctx, "msg", zap.String("key", "val")) }, zapcore.InfoLevel},
		{"warn", func() { logger.Warn(ctx, "msg", zap.String("key", "val")) }, zapcore.WarnLevel},
		{"error", func() { logger.Error(ctx, "msg", zap.String("key", "val")) }, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observed.TakeAll()
			tt.logFunc()

			logs := observed.All()
			require.Len(t, logs, 1)
			assert.Equal(t, tt.level, logs[0].Level)
			assert.Len(t, logs[0].Context, 1)
		})
	}
}

func TestLogger_TraceDisabledAtInfo(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := &Logger{zap: zap.New(core), config: NewDefaultConfig()}

	logger.Trace(context.Background(), "noisy")
	assert.Empty(t, observed.All())
	assert.False(t, logger.Enabled(TraceLevel))
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
}

func TestLogger_WithAndNamed(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := &Logger{zap: zap.New(core), config: NewDefaultConfig()}

	logger.Named("controller").With(zap.String("component", "verify")).Info(context.Background(), "child log")

	logs := observed.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "controller", logs[0].LoggerName)
	assertFieldExists(t, logs[0].Context, "component", "verify")
}

func TestLogger_InjectsCorrelationFields(t *testing.T) {
	tl := NewTestLogger()

	ctx := WithRunID(context.Background(), "run-1")
	ctx = WithIterationID(ctx, "iter-2")
	ctx = WithTaskID(ctx, "10.2")

	tl.Info(ctx, "task committed")

	tl.AssertField(t, "task committed", "run.id", "run-1")
	tl.AssertField(t, "task committed", "iteration.id", "iter-2")
	tl.AssertField(t, "task committed", "task.id", "10.2")
}

func TestLogger_RedactsSensitiveFields(t *testing.T) {
	logger, buf := newJSONLogger(t)

	logger.Info(context.Background(), "agent configured",
		zap.String("api_key", "plain"),
		zap.String("output", "using sk-ant-abcdefghijkl ok"),
		Secret("key", config.Secret("sk-ant-0123456789")),
	)

	line := decodeLine(t, buf)
	assert.Equal(t, "[REDACTED]", line["api_key"])
	assert.Equal(t, "using [REDACTED] ok", line["output"])
	assert.Equal(t, "[REDACTED:17]", line["key"])
}

func TestLogger_RedactsWithFields(t *testing.T) {
	logger, buf := newJSONLogger(t)

	logger.With(zap.String("token", "abc")).Info(context.Background(), "child")

	line := decodeLine(t, buf)
	assert.Equal(t, "[REDACTED]", line["token"])
}

func TestLogger_RedactionDisabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "json"
	cfg.Redaction.Enabled = false

	var buf bytes.Buffer
	logger, err := NewLoggerTo(cfg, nil, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Info(context.Background(), "raw", zap.String("token", "abc"))
	assert.Equal(t, "abc", decodeLine(t, &buf)["token"])
}

func TestLogger_ConstantFields(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "json"

	var buf bytes.Buffer
	logger, err := NewLoggerTo(cfg, nil, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Info(context.Background(), "hello")
	assert.Equal(t, "devflow", decodeLine(t, &buf)["service"])
}

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestContextFields_OTELTracing(t *testing.T) {
	provider := trace.NewTracerProvider(trace.WithSyncer(tracetest.NewInMemoryExporter()))
	ctx, span := provider.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	fields := ContextFields(ctx)
	assertFieldExists(t, fields, "trace_id", span.SpanContext().TraceID().String())
	assertFieldExists(t, fields, "span_id", span.SpanContext().SpanID().String())
}

func TestWithRunID_InvalidPanics(t *testing.T) {
	assert.PanicsWithValue(t, "logging: runID cannot be empty", func() {
		WithRunID(context.Background(), "")
	})
	assert.Panics(t, func() { WithIterationID(context.Background(), "bad id") })
}

func TestWithTaskID_EmptyIsNoop(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithTaskID(ctx, ""))
	assert.Equal(t, "", TaskIDFromContext(ctx))
}

func TestFromContext(t *testing.T) {
	logger := NewNop()
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestConfigFrom(t *testing.T) {
	cfg, err := ConfigFrom(config.LogConfig{Level: "trace", Format: "json"}, true)
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.True(t, cfg.Caller.Enabled)
	assert.True(t, cfg.Output.OTEL)

	_, err = ConfigFrom(config.LogConfig{Level: "loud"}, false)
	assert.Error(t, err)

	_, err = ConfigFrom(config.LogConfig{Format: "xml"}, false)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Redaction.Patterns = []string{"("}
	assert.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Fields = map[string]string{"k": ""}
	assert.Error(t, cfg.Validate())
}

func TestLevelFromString(t *testing.T) {
	l, err := LevelFromString("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, l)

	l, err = LevelFromString("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, l)

	_, err = LevelFromString("loud")
	assert.Error(t, err)
}

func assertFieldExists(t *testing.T, fields []zap.Field, key, expected string) {
	t.Helper()
	for _, f := range fields {
		if f.Key == key {
			assert.Equal(t, expected, f.String)
			return
		}
	}
	t.Errorf("field %q not found", key)
}
