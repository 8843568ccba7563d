// Package pipeerrors classifies pipeline failures so the worker runtime can
// decide between retry, fatal nack, and silent cancellation.
package pipeerrors

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the semantic failure category
type Kind string

const (
	// KindInvalidInput marks payloads rejected by validation. Never retried.
	KindInvalidInput Kind = "invalid_input"
	// KindMissingDependency marks an absent queue or service. Never retried.
	KindMissingDependency Kind = "missing_dependency"
	// KindRepositoryFailure marks persistence errors. Retried.
	KindRepositoryFailure Kind = "repository_failure"
	// KindTransientIO marks network or storage hiccups. Retried.
	KindTransientIO Kind = "transient_io"
	// KindTimeout marks deadline breaches. Retried unless terminal.
	KindTimeout Kind = "timeout"
	// KindCancelled marks cooperative cancellation. Terminal, no FAILED event.
	KindCancelled Kind = "cancelled"
	// KindExhausted marks retryable errors whose attempts ran out
	KindExhausted Kind = "exhausted"
	// KindProgrammingError marks invariant violations. Never retried.
	KindProgrammingError Kind = "programming_error"
)

// Error wraps a cause with its failure kind and the operation that produced it
type Error struct {
	Kind Kind
	Op   string // Action or component name
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates a classified error from a format string
func Newf(kind Kind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// InvalidInput is shorthand for validation failures
func InvalidInput(op string, format string, args ...interface{}) *Error {
	return Newf(KindInvalidInput, op, format, args...)
}

// MissingDependency is shorthand for absent queue/service failures
func MissingDependency(op string, name string) *Error {
	return Newf(KindMissingDependency, op, "required dependency %q is not configured", name)
}

// KindOf extracts the failure kind; unclassified errors default to
// transient I/O so unknown failures stay retryable. Context cancellation
// maps to Cancelled, context deadline to Timeout.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindTransientIO
}

// Retryable reports whether the worker runtime may redeliver the job
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindRepositoryFailure, KindTransientIO, KindTimeout:
		return true
	}
	return false
}

// IsCancelled reports cooperative cancellation
func IsCancelled(err error) bool {
	return KindOf(err) == KindCancelled
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Exhaust converts a retryable error into its exhausted form after the final
// attempt. Non-retryable errors pass through unchanged.
func Exhaust(err error, op string) error {
	if err == nil || !Retryable(err) {
		return err
	}
	return &Error{Kind: KindExhausted, Op: op, Err: err}
}
