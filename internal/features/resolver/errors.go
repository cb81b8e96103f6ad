package resolver

import (
	"errors"
	"fmt"

	"go-approval/internal/features/workflow"
)

var (
	ErrResolution     = errors.New("approver resolution failed")
	ErrNoManagerFound = errors.New("no manager found")
)

// ResolutionError reports a step whose approvers could not be resolved.
// It matches ErrResolution and the underlying cause with errors.Is.
type ResolutionError struct {
	Kind   workflow.ApproverKind
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("%s: %s approver: %s", ErrResolution, e.Kind, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResolutionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrResolution}
	}
	return []error{ErrResolution, e.Err}
}

func resolutionError(kind workflow.ApproverKind, err error, format string, args ...any) *ResolutionError {
	return &ResolutionError{Kind: kind, Reason: fmt.Sprintf(format, args...), Err: err}
}
