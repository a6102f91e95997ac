package logging

import (
	"context"
	"time"

	engineerrors "ltmc-engine/internal/errors"
)

// EnhancedLogger wraps the base Logger with component binding and
// error/operation helpers used across the coordinator and pipelines.
type EnhancedLogger struct {
	Logger
	component string
}

// NewEnhancedLogger creates an enhanced logger for a component.
func NewEnhancedLogger(component string) *EnhancedLogger {
	baseLogger := NewLogger(INFO)
	return &EnhancedLogger{
		Logger:    baseLogger.WithComponent(component),
		component: component,
	}
}

// WithContext binds the trace ID carried on ctx, if any.
func (l *EnhancedLogger) WithContext(ctx context.Context) *EnhancedLogger {
	traceID := getTraceIDFromContext(ctx)
	return &EnhancedLogger{
		Logger:    l.Logger.WithTraceID(traceID),
		component: l.component,
	}
}

// WithError logs err, unpacking engine error Kind/Context when present.
func (l *EnhancedLogger) WithError(err error) *EnhancedLogger {
	if err == nil {
		return l
	}

	var engErr *engineerrors.Error
	if e, ok := err.(*engineerrors.Error); ok {
		engErr = e
	}

	if engErr != nil {
		l.Error("operation failed",
			"error", err.Error(),
			"kind", string(engErr.Kind),
			"retryable", engErr.Kind.Retryable(),
			"component", engErr.Context.Component,
			"operation", engErr.Context.Operation,
		)
	} else {
		l.Error("operation failed", "error", err.Error())
	}

	return l
}

// LogOperation logs the start and completion of an operation.
func (l *EnhancedLogger) LogOperation(operation string, fn func() error) error {
	startTime := time.Now()
	l.Info("starting operation", "operation", operation)

	err := fn()
	duration := time.Since(startTime)

	if err != nil {
		l.Error("operation failed",
			"operation", operation,
			"duration_ms", duration.Milliseconds(),
			"error", err.Error(),
		)
		return err
	}

	l.Info("operation completed",
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
	)
	return nil
}

// LogSlowOperation warns when an operation exceeds its expected duration.
func (l *EnhancedLogger) LogSlowOperation(operation string, duration, expected time.Duration) {
	l.Warn("slow operation detected",
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
		"expected_ms", expected.Milliseconds(),
		"slowdown_factor", float64(duration)/float64(expected),
	)
}

func getTraceIDFromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// Component loggers used across the engine's core packages.
var (
	CoordinatorLogger = NewEnhancedLogger("coordinator")
	ConsistencyLogger = NewEnhancedLogger("consistency")
	IngestionLogger   = NewEnhancedLogger("ingestion")
	RetrievalLogger   = NewEnhancedLogger("retrieval")
	ThoughtsLogger    = NewEnhancedLogger("thoughts")
	GuardLogger       = NewEnhancedLogger("guard")
	AdapterLogger     = NewEnhancedLogger("adapter")
)

// GetComponentLogger returns an enhanced logger for an arbitrary component.
func GetComponentLogger(component string) *EnhancedLogger {
	return NewEnhancedLogger(component)
}
