package logging

import "context"

// NoOpLogger discards everything logged through it. Tests wire it in via
// SetDefaultLogger so a guard trip or a compensation failure's expected
// Warn/Error calls don't spam `go test` output; see guard_test.go's
// TestMain.
type NoOpLogger struct{}

// NewNoOpLogger returns a Logger whose every method is a no-op.
func NewNoOpLogger() Logger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) Info(msg string, fields ...interface{})  {}
func (n *NoOpLogger) Warn(msg string, fields ...interface{})  {}
func (n *NoOpLogger) Error(msg string, fields ...interface{}) {}
func (n *NoOpLogger) Debug(msg string, fields ...interface{}) {}
func (n *NoOpLogger) Fatal(msg string, fields ...interface{}) {}

func (n *NoOpLogger) InfoContext(ctx context.Context, msg string, fields ...interface{})  {}
func (n *NoOpLogger) WarnContext(ctx context.Context, msg string, fields ...interface{})  {}
func (n *NoOpLogger) ErrorContext(ctx context.Context, msg string, fields ...interface{}) {}
func (n *NoOpLogger) DebugContext(ctx context.Context, msg string, fields ...interface{}) {}

// WithTraceID and WithComponent return the receiver: a no-op logger has no
// state worth scoping.
func (n *NoOpLogger) WithTraceID(traceID string) Logger {
	return n
}

func (n *NoOpLogger) WithComponent(component string) Logger {
	return n
}
