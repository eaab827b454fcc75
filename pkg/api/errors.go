package api

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkflowNotFound is returned when loading a workflow by an
	// unknown identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrBackendUnavailable wraps store or execution-backend I/O failures.
	// The engine surfaces these to the caller without retrying; retry of
	// the underlying unit of work is the backend's concern.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// ValidationError indicates malformed input: an empty or duplicate-name step
// list at creation time, or a forced resume of a never-run step without
// arguments. Creation-time validation failures abort construction entirely;
// nothing is persisted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
