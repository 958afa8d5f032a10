package workflow

import (
	"fmt"

	"github.com/notifyhub/prepflow/internal/workflowerrors"
)

// ValidationError reports invalid workflow input. It is never retried.
type ValidationError struct {
	Message string
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Message
}

// ActivityError is returned from an activity future when the activity recorded a failure.
type ActivityError struct {
	Name string
	Err  error
}

func (e *ActivityError) Error() string {
	return fmt.Sprintf("activity %s failed: %v", e.Name, e.Err)
}

func (e *ActivityError) Unwrap() error {
	return e.Err
}

// TransientError marks an activity error as retryable by the worker executing it.
type TransientError struct {
	Err error
}

func NewTransientError(err error) *TransientError {
	return &TransientError{Err: err}
}

func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func (e *TransientError) Transient() bool {
	return true
}

// IsTransient returns true for errors created with NewTransientError, also after they
// have been persisted.
func IsTransient(err error) bool {
	return workflowerrors.IsTransient(err)
}

// HistoryConsistencyError is raised when re-running workflow code does not produce the
// calls recorded in the history.
type HistoryConsistencyError struct {
	Message string
}

func NewHistoryConsistencyError(format string, args ...any) *HistoryConsistencyError {
	return &HistoryConsistencyError{Message: fmt.Sprintf(format, args...)}
}

func (e *HistoryConsistencyError) Error() string {
	return "history consistency: " + e.Message
}
