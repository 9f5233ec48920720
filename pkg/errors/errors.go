// Package errors provides error wrapping utilities for context-aware error messages
// and the error kinds surfaced by the fetch pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Wrap wraps an error with additional context information.
// If err is nil, it returns nil without wrapping.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Kind classifies pipeline failures.
type Kind string

const (
	KindConnection          Kind = "connection"
	KindNotFound            Kind = "not_found"
	KindFetch               Kind = "fetch"
	KindMalformedDescriptor Kind = "malformed_descriptor"
	KindShapeMismatch       Kind = "shape_mismatch"
)

// Error is a classified failure. Reason is a short machine-readable
// string such as "auth_rejected"; Err is the underlying cause, if any.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + " error"
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// works regardless of reason or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrConnection          = &Error{Kind: KindConnection}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrFetch               = &Error{Kind: KindFetch}
	ErrMalformedDescriptor = &Error{Kind: KindMalformedDescriptor}
	ErrShapeMismatch       = &Error{Kind: KindShapeMismatch}
)

// New builds a classified error with a formatted cause.
func New(kind Kind, reason string, format string, args ...any) error {
	return &Error{Kind: kind, Reason: reason, Err: fmt.Errorf(format, args...)}
}

// Classify attaches kind and reason to err. A nil err stays nil.
func Classify(kind Kind, reason string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ReasonOf returns the reason of the first *Error in err's chain.
func ReasonOf(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// Is and As re-export the standard library helpers so callers importing
// this package do not also need the stdlib one.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }
