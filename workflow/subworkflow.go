package workflow

import (
	"fmt"

	a "github.com/notifyhub/prepflow/internal/args"
	"github.com/notifyhub/prepflow/internal/command"
	"github.com/notifyhub/prepflow/internal/fn"
	"github.com/notifyhub/prepflow/internal/sync"
	"github.com/notifyhub/prepflow/internal/workflowstate"
)

type SubWorkflowOptions struct {
	// InstanceID of the sub-workflow. Derived from the parent instance if empty.
	InstanceID string

	RetryOptions RetryOptions
}

var DefaultSubWorkflowOptions = SubWorkflowOptions{
	RetryOptions: DefaultRetryOptions,
}

// CreateSubWorkflowInstance starts workflow as a child of the current instance and returns
// a future for its result.
func CreateSubWorkflowInstance[TResult any](ctx Context, options SubWorkflowOptions, workflow Workflow, args ...any) Future[TResult] {
	return withRetries(ctx, options.RetryOptions, func(ctx Context, attempt int) Future[TResult] {
		o := options
		if attempt > 1 && o.InstanceID != "" {
			o.InstanceID = fmt.Sprintf("%s-%d", o.InstanceID, attempt)
		}

		return createSubWorkflowInstance[TResult](ctx, o, workflow, args...)
	})
}

func createSubWorkflowInstance[TResult any](ctx Context, options SubWorkflowOptions, workflow Workflow, args ...any) Future[TResult] {
	var z TResult

	if err := ctx.Err(); err != nil {
		return sync.NewReadyFuture(z, err)
	}

	name, ok := workflow.(string)
	if !ok {
		if !a.ReturnTypeMatch[TResult](workflow) {
			return sync.NewReadyFuture(z, fmt.Errorf("workflow %s does not return (%T, error)", fn.Name(workflow), z))
		}

		if !a.ParamsMatch(workflow, args...) {
			return sync.NewReadyFuture(z, fmt.Errorf("mismatched argument count for workflow %s", fn.Name(workflow)))
		}

		name = fn.Name(workflow)
	}

	wfState := workflowstate.WorkflowState(ctx)
	cv := wfState.Converter()

	inputs, err := a.ArgsToInputs(cv, args...)
	if err != nil {
		return sync.NewReadyFuture(z, fmt.Errorf("converting sub-workflow input: %w", err))
	}

	scheduleEventID := wfState.GetNextScheduleEventID()

	cmd := command.NewScheduleSubWorkflowCommand(scheduleEventID, wfState.Instance(), options.InstanceID, name, inputs)
	wfState.AddCommand(cmd)

	f := sync.NewFuture[TResult]()
	wfState.TrackFuture(scheduleEventID, name, workflowstate.AsDecodingSettable(cv, name, f))

	return f
}
