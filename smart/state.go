package smart

import (
	apperrors "github.com/jrsteele09/hbr-risk/internal/errors"
)

// FlowState is a step of the launch state machine.
//
//	INIT -> DISCOVERING -> AWAITING_CALLBACK -> EXCHANGING -> AUTHENTICATED
//
// Any step may move to FAILED.
type FlowState string

const (
	StateInit             FlowState = "INIT"
	StateDiscovering      FlowState = "DISCOVERING"
	StateAwaitingCallback FlowState = "AWAITING_CALLBACK"
	StateExchanging       FlowState = "EXCHANGING"
	StateAuthenticated    FlowState = "AUTHENTICATED"
	StateFailed           FlowState = "FAILED"
)

// TransitionFunc observes state machine transitions. attempt is a short fingerprint of the state value.
type TransitionFunc func(attempt string, from, to FlowState)

// FlowError describes why a launch ended in FAILED.
type FlowError struct {
	FailedIn FlowState        // State the flow was in when it failed
	Kind     error            // One of the internal/errors sentinels
	Reason   apperrors.Reason // What the user can do about it
	Detail   string           // Host supplied description, if any
	Err      error            // Underlying cause
}

func (e *FlowError) Error() string {
	msg := "[" + string(e.FailedIn) + "] " + e.Kind.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *FlowError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newFlowError(in FlowState, kind error, reason apperrors.Reason, err error) *FlowError {
	return &FlowError{FailedIn: in, Kind: kind, Reason: reason, Err: err}
}
