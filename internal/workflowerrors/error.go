package workflowerrors

import (
	"encoding/json"
	"errors"
)

// Error is the persisted form of an error raised by a workflow, an activity or the
// engine itself. It survives serialization into history events.
type Error struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message,omitempty"`

	// Transient marks errors a worker may retry before recording a failure.
	Transient bool `json:"transient,omitempty"`

	Cause      error  `json:"cause,omitempty"`
	Stacktrace string `json:"stacktrace,omitempty"`
}

func (we *Error) UnmarshalJSON(b []byte) error {
	type Alias Error
	a := &struct {
		Cause *Error `json:"cause,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(we),
	}

	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}

	if a.Cause != nil {
		we.Cause = a.Cause
	}

	return nil
}

func (we *Error) Error() string {
	return we.Message
}

func (we *Error) Unwrap() error {
	if we == nil || we.Cause == nil || we.Cause == (*Error)(nil) {
		return nil
	}

	return we.Cause
}

func (we *Error) Stack() string {
	return we.Stacktrace
}

var _ error = (*Error)(nil)

type transient interface {
	Transient() bool
}

// FromError wraps the given error into a workflow error which can be persisted and restored
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	// Already converted, do not wrap again
	if e, ok := err.(*Error); ok {
		return e
	}

	e := &Error{
		Type:    getErrorType(err),
		Message: err.Error(),
	}

	e.Transient = IsTransient(err)

	if stackTracer, ok := err.(interface{ Stack() string }); ok {
		e.Stacktrace = stackTracer.Stack()
	}

	if cause := errors.Unwrap(err); cause != nil {
		e.Cause = FromError(cause)
	}

	return e
}

// ToError converts a persisted error back into a regular error. Known types are restored,
// everything else stays an *Error.
func ToError(err *Error) error {
	if err == nil {
		return nil
	}

	e := *err

	switch err.Type {
	case getErrorType(&PanicError{}):
		return &PanicError{message: e.Message, stacktrace: e.Stacktrace}

	default:
		return &e
	}
}

// IsTransient returns true if the error, or any error it wraps, is marked as transient.
func IsTransient(err error) bool {
	var t transient
	if errors.As(err, &t) {
		return t.Transient()
	}

	var we *Error
	for errors.As(err, &we) {
		if we.Transient {
			return true
		}

		if we.Cause == nil {
			return false
		}

		err = we.Cause
	}

	return false
}
