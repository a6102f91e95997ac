// Package errors defines the coordination engine's error taxonomy and a
// context-carrying wrapper used across adapters, the coordinator and the
// pipelines.
package errors

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// Kind classifies an error into one of the coordination engine's
// recognized failure modes. Callers branch on Kind, never on message text.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindUnavailable        Kind = "unavailable"
	KindTimeout            Kind = "timeout"
	KindQuorumNotMet       Kind = "quorum_not_met"
	KindPartialFailure     Kind = "partial_failure"
	KindCompensationFailure Kind = "compensation_failure"
	KindResourceExhausted  Kind = "resource_exhausted"
	KindRecursionBlocked   Kind = "recursion_blocked"
	KindIntegrityFailure   Kind = "integrity_failure"
	KindInternal           Kind = "internal"
)

// Retryable reports whether operations that fail with this kind are
// generally safe to retry without caller-visible side effects.
func (k Kind) Retryable() bool {
	switch k {
	case KindUnavailable, KindTimeout, KindQuorumNotMet:
		return true
	default:
		return false
	}
}

// Context carries diagnostic metadata alongside an Error.
type Context struct {
	Operation  string
	Component  string
	TraceID    string
	Metadata   map[string]interface{}
	StackTrace string
	Timestamp  time.Time
}

// Error is the engine-wide error type. It wraps an underlying cause with
// a Kind and a Context, and participates in errors.Is/As via Unwrap.
type Error struct {
	Kind    Kind
	Err     error
	Context Context
}

func (e *Error) Error() string {
	if e.Context.Component != "" || e.Context.Operation != "" {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Context.Component, e.Context.Operation, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// LogKind exposes Kind to internal/logging's structured log entries
// without logging depending on this package's types directly.
func (e *Error) LogKind() string {
	return string(e.Kind)
}

// Is enables errors.Is(err, &Error{Kind: KindNotFound}) style checks
// against kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates an Error of the given kind for component/operation.
func New(kind Kind, component, operation string, err error) *Error {
	return &Error{
		Kind: kind,
		Err:  err,
		Context: Context{
			Operation:  operation,
			Component:  component,
			Timestamp:  timeNow(),
			StackTrace: stackTrace(),
		},
	}
}

// Wrap attaches kind/component/operation context to an existing error,
// formatting msg the way fmt.Errorf would.
func Wrap(kind Kind, component, operation string, err error, msg string, args ...interface{}) *Error {
	wrapped := fmt.Errorf(msg+": %w", append(args, err)...)
	return New(kind, component, operation, wrapped)
}

// WithContext attaches a trace ID pulled from ctx, if present.
func (e *Error) WithContext(ctx context.Context) *Error {
	if traceID := traceIDFrom(ctx); traceID != "" {
		e.Context.TraceID = traceID
	}
	return e
}

// WithMetadata records an auxiliary key/value pair on the error.
func (e *Error) WithMetadata(key string, value interface{}) *Error {
	if e.Context.Metadata == nil {
		e.Context.Metadata = make(map[string]interface{})
	}
	e.Context.Metadata[key] = value
	return e
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, otherwise returns KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if asError(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err's Kind equals k.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func stackTrace() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

type traceIDKey struct{}

func traceIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(traceIDKey{}).(string); ok {
		return v
	}
	return ""
}

// variable indirection so tests can stub time without invoking time.Now
// in a way that conflicts with deterministic fixtures.
var timeNow = time.Now
