package workflowerrors

import "fmt"

type PanicError struct {
	message    string
	stacktrace string
}

func (pe *PanicError) Error() string {
	return pe.message
}

func (pe *PanicError) Stack() string {
	return pe.stacktrace
}

// NewPanicError captures the stack of the caller. Call it from the deferred recover.
func NewPanicError(r any) *PanicError {
	return &PanicError{
		message:    fmt.Sprintf("panic: %v", r),
		stacktrace: stack(3),
	}
}
