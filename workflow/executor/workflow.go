package executor

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/notifyhub/prepflow/backend/payload"
	"github.com/notifyhub/prepflow/internal/args"
	"github.com/notifyhub/prepflow/internal/sync"
	"github.com/notifyhub/prepflow/internal/workflowstate"
)

// workflow runs a workflow function inside a coroutine.
type workflow struct {
	fn     reflect.Value
	co     sync.Coroutine
	result payload.Payload
	err    error
}

func newWorkflow(workflowFn reflect.Value) *workflow {
	return &workflow{
		fn: workflowFn,
	}
}

func (w *workflow) Execute(ctx sync.Context, inputs []payload.Payload) error {
	cv := workflowstate.WorkflowState(ctx).Converter()

	fnArgs, addContext, err := args.InputsToArgs(cv, w.fn, inputs)
	if err != nil {
		return fmt.Errorf("converting workflow inputs: %w", err)
	}

	if !addContext {
		return errors.New("workflow must accept context as first argument")
	}

	w.co = sync.NewCoroutine(ctx, func(ctx sync.Context) error {
		r := w.fn.Call(append([]reflect.Value{reflect.ValueOf(ctx)}, fnArgs...))

		if len(r) < 1 || len(r) > 2 {
			return errors.New("workflow has to return either (error) or (result, error)")
		}

		errResult := r[len(r)-1]
		if !errResult.IsNil() {
			errInterface, ok := errResult.Interface().(error)
			if !ok {
				return fmt.Errorf("workflow error result does not satisfy error interface (%T): %v", errResult, errResult)
			}

			w.err = errInterface

			return nil
		}

		var result any
		if len(r) > 1 {
			result = r[0].Interface()
		}

		payload, err := cv.To(result)
		if err != nil {
			return fmt.Errorf("converting workflow result: %w", err)
		}

		w.result = payload

		return nil
	})

	return w.co.Execute()
}

func (w *workflow) Continue() error {
	if w.co == nil {
		return nil
	}

	return w.co.Execute()
}

func (w *workflow) Completed() bool {
	return w.co != nil && w.co.Finished()
}

// Result returns the return value of a finished workflow as a payload
func (w *workflow) Result() payload.Payload {
	return w.result
}

// Error returns the error of a finished workflow, can be nil. Panics and engine errors
// raised inside the coroutine are reported the same way.
func (w *workflow) Error() error {
	if w.err != nil {
		return w.err
	}

	if w.co != nil {
		return w.co.Error()
	}

	return nil
}

func (w *workflow) Close() {
	if w.co != nil {
		// End coroutine execution to prevent goroutine leaks
		w.co.Exit()
	}
}
