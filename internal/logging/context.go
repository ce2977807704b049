package logging

import (
	"context"
	"fmt"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if id := RunIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("run.id", id))
	}
	if id := IterationIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("iteration.id", id))
	}
	if id := TaskIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("task.id", id))
	}

	return fields
}

type runCtxKey struct{}
type iterationCtxKey struct{}
type taskCtxKey struct{}

const maxIDLen = 128

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// validateID validates a run or iteration ID.
func validateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (must be alphanumeric, hyphen, underscore)", name)
	}
	return nil
}

// WithRunID adds the run ID to context.
// Panics if runID is empty or contains invalid characters.
func WithRunID(ctx context.Context, runID string) context.Context {
	if err := validateID(runID, "runID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, runCtxKey{}, runID)
}

// RunIDFromContext extracts the run ID from context.
func RunIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(runCtxKey{}).(string)
	return s
}

// WithIterationID adds the iteration ID to context.
// Panics if iterationID is empty or contains invalid characters.
func WithIterationID(ctx context.Context, iterationID string) context.Context {
	if err := validateID(iterationID, "iterationID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, iterationCtxKey{}, iterationID)
}

// IterationIDFromContext extracts the iteration ID from context.
func IterationIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(iterationCtxKey{}).(string)
	return s
}

// WithTaskID adds the tracker task ID to context. Task IDs come from tracker
// output, so an empty ID leaves ctx unchanged instead of panicking.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	if taskID == "" {
		return ctx
	}
	return context.WithValue(ctx, taskCtxKey{}, taskID)
}

// TaskIDFromContext extracts the tracker task ID from context.
func TaskIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(taskCtxKey{}).(string)
	return s
}

type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
