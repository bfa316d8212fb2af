// Package faults is the closed error taxonomy of the knowledge service.
//
// Every error that crosses a port or use-case boundary carries a Kind so
// the worker can classify retry-vs-fatal and the HTTP layer can pick a
// status code without parsing messages.
package faults

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for propagation policy.
type Kind string

const (
	// KindNotFound: an entity id did not resolve. Terminal for a stage.
	KindNotFound Kind = "not_found"
	// KindValidation: bad input (empty query, disallowed resource type).
	KindValidation Kind = "validation"
	// KindConflict: duplicate name or similar uniqueness violation.
	KindConflict Kind = "conflict"
	// KindVirusDetected: the antivirus scanner flagged the file.
	KindVirusDetected Kind = "virus_detected"
	// KindInvalidFormat: declared file type does not match content.
	KindInvalidFormat Kind = "invalid_format"
	// KindTransient: network failure, timeout, 5xx from a port. Retryable.
	KindTransient Kind = "transient"
	// KindInternal: programming error or broken invariant. Never retried.
	KindInternal Kind = "internal"
)

// Error is a kind-tagged error with the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Err.Error())
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a kind-tagged error with a plain message.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Errorf returns a kind-tagged error with a formatted message.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap tags an existing error. A nil err returns nil. An err that already
// carries a kind keeps it; only the operation is prepended.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		kind = fe.Kind
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// NotFound tags err (or builds a message) as KindNotFound.
func NotFound(op, format string, args ...any) error {
	return Errorf(KindNotFound, op, format, args...)
}

// Validation tags a message as KindValidation.
func Validation(op, format string, args ...any) error {
	return Errorf(KindValidation, op, format, args...)
}

// Conflict tags a message as KindConflict.
func Conflict(op, format string, args ...any) error {
	return Errorf(KindConflict, op, format, args...)
}

// VirusDetected tags a message as KindVirusDetected.
func VirusDetected(op, format string, args ...any) error {
	return Errorf(KindVirusDetected, op, format, args...)
}

// InvalidFormat tags a message as KindInvalidFormat.
func InvalidFormat(op, format string, args ...any) error {
	return Errorf(KindInvalidFormat, op, format, args...)
}

// Transient tags err as KindTransient.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// Internal tags err as KindInternal.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindInternal, Op: op, Err: err}
}

// KindOf extracts the kind of an error. Context cancellation and deadline
// expiry classify as transient; an untagged error is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}
	return KindInternal
}

// Retryable reports whether the dispatcher may redeliver after this error.
func Retryable(err error) bool {
	return KindOf(err) == KindTransient
}
