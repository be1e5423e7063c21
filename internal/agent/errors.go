// internal/agent/errors.go
package agent

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind is a string type used for structured error reporting out of a run.
// Every Errored LoopResult carries exactly one of these.
type ErrorKind string

const (
	// ErrKindObservation means the page was not in a readable state.
	ErrKindObservation ErrorKind = "OBSERVATION_ERROR"
	// ErrKindOracleUnavailable covers transport, auth and timeout failures reaching the oracle.
	ErrKindOracleUnavailable ErrorKind = "ORACLE_UNAVAILABLE"
	// ErrKindOracleMalformed means the oracle answered, but not with a usable proposal.
	ErrKindOracleMalformed ErrorKind = "ORACLE_MALFORMED_RESPONSE"
	// ErrKindInvalidAction is a validator rejection.
	ErrKindInvalidAction ErrorKind = "INVALID_ACTION"
	// ErrKindElementNotFound is only ever an outcome; it never ends a run.
	ErrKindElementNotFound ErrorKind = "ELEMENT_NOT_FOUND"
	// ErrKindSession means the browser session is broken beyond recovery.
	ErrKindSession ErrorKind = "SESSION_ERROR"
	// ErrKindCanceled is a cooperative abort between steps.
	ErrKindCanceled ErrorKind = "CANCELED"
	// ErrKindInvalidRequest rejects a run before any browser work starts.
	ErrKindInvalidRequest ErrorKind = "INVALID_REQUEST"
)

// Error is the typed error produced by every agent component.
type Error struct {
	Kind ErrorKind
	Op   string // Component operation that failed, e.g. "observe" or "propose".
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// Sentinels for errors.Is.
var (
	ErrObservation       = &Error{Kind: ErrKindObservation}
	ErrOracleUnavailable = &Error{Kind: ErrKindOracleUnavailable}
	ErrOracleMalformed   = &Error{Kind: ErrKindOracleMalformed}
	ErrInvalidAction     = &Error{Kind: ErrKindInvalidAction}
	ErrSession           = &Error{Kind: ErrKindSession}
	ErrCanceled          = &Error{Kind: ErrKindCanceled}
)

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf classifies err. Context cancellation maps to ErrKindCanceled; anything
// unclassified is treated as a session failure.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return ErrKindCanceled
	}
	return ErrKindSession
}
