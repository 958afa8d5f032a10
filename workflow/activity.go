package workflow

import (
	"fmt"
	"log/slog"

	a "github.com/notifyhub/prepflow/internal/args"
	"github.com/notifyhub/prepflow/internal/command"
	"github.com/notifyhub/prepflow/internal/fn"
	"github.com/notifyhub/prepflow/internal/sync"
	"github.com/notifyhub/prepflow/internal/workflowstate"
	"github.com/notifyhub/prepflow/log"
)

type ActivityOptions struct {
	RetryOptions RetryOptions
}

var DefaultActivityOptions = ActivityOptions{
	RetryOptions: DefaultRetryOptions,
}

// ExecuteActivity schedules the given activity to be executed. activity is either the
// activity function or the name it was registered with.
func ExecuteActivity[TResult any](ctx Context, options ActivityOptions, activity Activity, args ...any) Future[TResult] {
	return withRetries(ctx, options.RetryOptions, func(ctx Context, attempt int) Future[TResult] {
		return executeActivity[TResult](ctx, attempt, activity, args...)
	})
}

func executeActivity[TResult any](ctx Context, attempt int, activity Activity, args ...any) Future[TResult] {
	var z TResult

	if err := ctx.Err(); err != nil {
		return sync.NewReadyFuture(z, err)
	}

	name, ok := activity.(string)
	if !ok {
		if !a.ReturnTypeMatch[TResult](activity) {
			return sync.NewReadyFuture(z, fmt.Errorf("activity %s does not return (%T, error)", fn.Name(activity), z))
		}

		if !a.ParamsMatch(activity, args...) {
			return sync.NewReadyFuture(z, fmt.Errorf("mismatched argument count for activity %s", fn.Name(activity)))
		}

		name = fn.Name(activity)
	}

	wfState := workflowstate.WorkflowState(ctx)
	cv := wfState.Converter()

	inputs, err := a.ArgsToInputs(cv, args...)
	if err != nil {
		return sync.NewReadyFuture(z, fmt.Errorf("converting activity input: %w", err))
	}

	scheduleEventID := wfState.GetNextScheduleEventID()

	cmd := command.NewScheduleActivityCommand(scheduleEventID, name, inputs, attempt)
	wfState.AddCommand(cmd)

	f := sync.NewFuture[TResult]()
	wfState.TrackFuture(scheduleEventID, name, workflowstate.AsDecodingSettable(cv, name, f))

	wfState.Logger().Debug("Scheduled activity",
		slog.String(log.ActivityNameKey, name),
		slog.Int64(log.ScheduleEventIDKey, scheduleEventID),
		slog.Int(log.AttemptKey, attempt))

	return f
}
