// Package errors provides structured error handling for the Reflow runtime.
package errors

import (
	"fmt"
	"time"
)

// ErrorKind identifies the category of an error.
type ErrorKind int

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown ErrorKind = iota
	// KindState indicates a state store access failure.
	KindState
	// KindBuild indicates a failure while evaluating a view function.
	KindBuild
	// KindDiff indicates a failure during structural reconciliation.
	KindDiff
	// KindLifecycle indicates a unit lifecycle bookkeeping error.
	KindLifecycle
	// KindPanic indicates a recovered panic.
	KindPanic
)

func (k ErrorKind) String() string {
	switch k {
	case KindState:
		return "state"
	case KindBuild:
		return "build"
	case KindDiff:
		return "diff"
	case KindLifecycle:
		return "lifecycle"
	case KindPanic:
		return "panic"
	default:
		return "unknown"
	}
}

// ReflowError represents a structured error in the Reflow runtime.
type ReflowError struct {
	// Op is the operation that failed (e.g., "state.Store.Write").
	Op string
	// Kind categorizes the error.
	Kind ErrorKind
	// Err is the underlying error.
	Err error
	// Path is the state path involved, if applicable.
	Path string
	// StackTrace contains the call stack at the time of the error.
	StackTrace string
	// Timestamp is when the error occurred.
	Timestamp time.Time
}

func (e *ReflowError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s [%s] path=%s: %v", e.Op, e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
}

func (e *ReflowError) Unwrap() error {
	return e.Err
}

// StalePathError reports a read of a path that no longer resolves because
// a container's shape changed under a stale reference.
type StalePathError struct {
	// Path is the canonical string form of the unresolvable path.
	Path string
}

func (e *StalePathError) Error() string {
	return fmt.Sprintf("stale path %q does not resolve", e.Path)
}

// DuplicateKeyError reports two sibling nodes claiming the same explicit key
// during a structural diff. This is a caller bug; the diff fails fast rather
// than silently picking one.
type DuplicateKeyError struct {
	// NodeType is the type of the offending node.
	NodeType string
	// Key is the duplicated key.
	Key any
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key %v on sibling %q nodes", e.Key, e.NodeType)
}

// EvaluationError represents a failure while evaluating a unit's view
// function. It is scoped to that unit's subtree: the previous structural
// and composition fragments for the unit are retained.
type EvaluationError struct {
	// Unit is the unit type name whose evaluation failed.
	Unit string
	// Key is the unit's identity key, if any.
	Key any
	// Recovered is the panic value (nil for regular errors).
	Recovered any
	// Err is the underlying error (nil for panics).
	Err error
	// StackTrace contains the call stack at the time of the error.
	StackTrace string
	// Timestamp is when the error occurred.
	Timestamp time.Time
}

func (e *EvaluationError) Error() string {
	if e.Recovered != nil {
		return fmt.Sprintf("panic evaluating unit %q: %v", e.Unit, e.Recovered)
	}
	if e.Err != nil {
		return fmt.Sprintf("error evaluating unit %q: %v", e.Unit, e.Err)
	}
	return fmt.Sprintf("unknown error evaluating unit %q", e.Unit)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// ErrorHandler receives errors reported by the Reflow runtime.
type ErrorHandler interface {
	// HandleError is called when an error occurs.
	HandleError(err *ReflowError)
	// HandleEvaluationError is called when a unit view function fails.
	HandleEvaluationError(err *EvaluationError)
}
