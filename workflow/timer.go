package workflow

import (
	"log/slog"
	"time"

	"github.com/notifyhub/prepflow/internal/command"
	"github.com/notifyhub/prepflow/internal/sync"
	"github.com/notifyhub/prepflow/internal/workflowstate"
	"github.com/notifyhub/prepflow/log"
)

// ScheduleTimer returns a future that resolves once delay has passed. The timer is
// durable: nothing waits for it in memory between workflow tasks.
func ScheduleTimer(ctx Context, delay time.Duration) Future[any] {
	if err := ctx.Err(); err != nil {
		return sync.NewReadyFuture[any](nil, err)
	}

	wfState := workflowstate.WorkflowState(ctx)

	scheduleEventID := wfState.GetNextScheduleEventID()
	at := Now(ctx).Add(delay)

	timerCmd := command.NewScheduleTimerCommand(scheduleEventID, at, "")
	wfState.AddCommand(timerCmd)

	f := sync.NewFuture[any]()
	wfState.TrackFuture(scheduleEventID, "timer", workflowstate.AsDecodingSettable(wfState.Converter(), "timer", f))

	wfState.Logger().Debug("Scheduled timer",
		slog.Int64(log.ScheduleEventIDKey, scheduleEventID),
		slog.Time(log.AtKey, at))

	return f
}

// Sleep blocks the workflow for the given duration.
func Sleep(ctx Context, d time.Duration) error {
	_, err := ScheduleTimer(ctx, d).Get(ctx)
	return err
}
