package models

import (
	"errors"
	"fmt"
)

// Validation errors cover malformed inbound events and configuration. They
// map to HTTP 400 at the API boundary.
var (
	ErrEmptyCallID          = errors.New("call id cannot be empty")
	ErrEmptyCallerAddress   = errors.New("caller address cannot be empty")
	ErrEmptyUtterance       = errors.New("utterance text cannot be empty")
	ErrEmptyAgentID         = errors.New("agent id cannot be empty")
	ErrAgentWithoutKeywords = errors.New("non-fallback agent must declare at least one keyword")
	ErrAgentWithoutPrompt   = errors.New("agent must declare a system prompt")
	ErrNoFallbackAgent      = errors.New("agent set must include exactly one fallback agent")
)

// Not-found errors cover lookups against unknown or already-closed sessions
// and missing configuration records. They map to HTTP 404.
var (
	ErrSessionNotFound = errors.New("call session not found")
	ErrAgentNotFound   = errors.New("agent configuration not found")
	ErrGoalNotFound    = errors.New("goal definition not found")
	ErrAudioNotFound   = errors.New("audio asset not found")
)

// Terminal errors end the current call turn rather than the whole call.
var (
	// ErrSessionEnded is returned when a turn arrives for a session that has
	// already ended or been reaped.
	ErrSessionEnded = errors.New("call session already ended")
	// ErrTurnAborted is returned when a turn cannot produce any reply at all,
	// including the apology path.
	ErrTurnAborted = errors.New("turn aborted: no reply could be produced")
)

// DegradedError wraps a dependency failure that the pipeline absorbed by
// degrading instead of failing the turn. Callers log it and continue.
type DegradedError struct {
	Component string // the collaborator that failed, e.g. "knowledge", "synth"
	Err       error
}

// Error implements the error interface.
func (e *DegradedError) Error() string {
	return fmt.Sprintf("degraded %s dependency: %v", e.Component, e.Err)
}

// Unwrap returns the underlying dependency error.
func (e *DegradedError) Unwrap() error { return e.Err }

// NewDegradedError wraps err as a degraded-dependency error for component.
func NewDegradedError(component string, err error) *DegradedError {
	return &DegradedError{Component: component, Err: err}
}

// IsDegraded reports whether err is (or wraps) a DegradedError.
func IsDegraded(err error) bool {
	var de *DegradedError
	return errors.As(err, &de)
}
