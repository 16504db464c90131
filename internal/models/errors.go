package models

import (
	"errors"
	"fmt"
)

// Stage tags which workflow stage an adapter error originated from.
type Stage string

const (
	StagePlan        Stage = "plan"
	StageApproval    Stage = "approval"
	StageExecute     Stage = "execute"
	StageSufficiency Stage = "sufficiency"
	StageReport      Stage = "report"
)

var (
	// ErrRejected is the terminal outcome of a plan declined by the
	// approval gate. It is a normal workflow ending, not a fault.
	ErrRejected = errors.New("plan rejected by approval gate")

	// ErrRetryExhausted means the sufficiency retry loop hit its bound
	// without reaching a sufficient verdict.
	ErrRetryExhausted = errors.New("retry rounds exhausted without sufficient results")

	// ErrInvalidState is returned for operations that require a session
	// state the session is not in, e.g. answering a clarification that was
	// never asked.
	ErrInvalidState = errors.New("invalid session state")
)

// AdapterError wraps a failure raised by a stage collaborator. The
// controller never retries these; they surface to the caller with the
// originating stage attached.
type AdapterError struct {
	Stage Stage
	Err   error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// NewAdapterError tags err with the stage it came from.
func NewAdapterError(stage Stage, err error) *AdapterError {
	return &AdapterError{Stage: stage, Err: err}
}

// StageOf extracts the stage tag from an error chain; empty if untagged.
func StageOf(err error) Stage {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Stage
	}
	return ""
}
