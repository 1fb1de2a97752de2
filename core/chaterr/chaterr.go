// Package chaterr defines the closed set of failure kinds surfaced by the
// session manager.
//
// Every error returned by the session store and the turn orchestrator is, or
// wraps, an [*Error] carrying one [Kind]. Callers branch on the kind with
// [errors.Is] against the sentinels or with [KindOf].
package chaterr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation  Kind = "validation"  // Malformed input: empty id, empty content, unknown role
	KindNotFound    Kind = "not_found"   // Session does not exist and lazy initialization is off
	KindPersistence Kind = "persistence" // Backend read/write failure
	KindUpstream    Kind = "upstream"    // Generation capability failed, timed out or returned nothing
)

// Sentinels matched by [Error.Is].
var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("session not found")
	ErrPersistence = errors.New("persistence error")
	ErrUpstream    = errors.New("upstream error")
)

// Error is a classified failure for one session operation.
type Error struct {
	Kind      Kind
	Op        string // Operation name, e.g. "session.append"
	SessionID string
	Err       error
}

// New returns an *Error of the given kind.
func New(kind Kind, op, sessionID string, err error) *Error {
	return &Error{Kind: kind, Op: op, SessionID: sessionID, Err: err}
}

// Validation is a shorthand for New(KindValidation, ...) with a formatted cause.
func Validation(op, sessionID, format string, args ...any) *Error {
	return New(KindValidation, op, sessionID, fmt.Errorf(format, args...))
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.SessionID != "" {
		msg += fmt.Sprintf(" (session %q)", e.SessionID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == sentinel(e.Kind)
}

func sentinel(k Kind) error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	case KindPersistence:
		return ErrPersistence
	case KindUpstream:
		return ErrUpstream
	}
	return nil
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether a caller may reasonably retry the operation.
// The core itself never retries.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindPersistence, KindUpstream:
		return true
	}
	return false
}
