package workflow

import (
	"errors"
	"fmt"
)

// Workflow errors.
var (
	ErrBusy               = errors.New("another workflow step is still in progress")
	ErrNoClaimRecord      = errors.New("no evaluated claim, submit a claim first")
	ErrMissingEmail       = errors.New("hospital email required")
	ErrFinalizeNotAllowed = errors.New("claim can only be finalized once approved")
)

// MissingInputError reports a draft field that blocks submission.
type MissingInputError struct {
	Field  string
	Reason string
}

func (e *MissingInputError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("missing %s", e.Field)
	}
	return fmt.Sprintf("missing %s: %s", e.Field, e.Reason)
}

// ValidationRejectedError means the backend judged the discharge document invalid.
type ValidationRejectedError struct {
	Reason string
}

func (e *ValidationRejectedError) Error() string {
	return fmt.Sprintf("discharge summary rejected: %s", e.Reason)
}

// TransportError wraps a network or server failure during a step.
type TransportError struct {
	Err  error
	Step string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// FinalizeError means the downstream insurance claim action failed.
type FinalizeError struct {
	Err error
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("finalize failed: %v", e.Err)
}

func (e *FinalizeError) Unwrap() error {
	return e.Err
}
