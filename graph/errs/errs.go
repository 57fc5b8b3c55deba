// Package errs defines the error taxonomy shared by the compiler,
// runtime, and node executors.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for retry policy, fallback routing, and
// trace reporting.
type Kind string

const (
	KindCompileError        Kind = "CompileError"
	KindExternalError       Kind = "ExternalError"
	KindAuthError           Kind = "AuthError"
	KindParamError          Kind = "ParamError"
	KindUserExpressionError Kind = "UserExpressionError"
	KindAggregatedFailure   Kind = "AggregatedFailure"
	KindRecursionLimitError Kind = "RecursionLimitError"
	KindCancelled           Kind = "Cancelled"
	KindInternalError       Kind = "InternalError"
)

// Sentinel errors for conditions that do not carry node-specific context.
var (
	ErrNotFound         = errors.New("not found")
	ErrReplayMismatch   = errors.New("replay mismatch")
	ErrPlanHashMismatch = errors.New("checkpoint plan_hash does not match current graph definition")
	ErrNoRoute          = errors.New("no matching route and no default edge")
	ErrInterrupted      = errors.New("execution paused awaiting human input")
)

// Error is the typed error result a NodeWrapper or the runtime produces.
// It carries enough context (kind, offending node, cause) for fallback
// routing and for the taxonomy required in traces.
type Error struct {
	Kind     Kind
	Message  string
	NodeID   string
	Cause    error
}

func (e *Error) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s at node %q: %s", e.Kind, e.NodeID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error.
func New(kind Kind, nodeID, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, NodeID: nodeID, Cause: cause}
}

// As reports whether err is (or wraps) an *Error and returns it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is an *Error, else KindInternalError.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternalError
}
