package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/notifyhub/prepflow/backend"
	"github.com/notifyhub/prepflow/backend/history"
	"github.com/notifyhub/prepflow/backend/metrics"
	"github.com/notifyhub/prepflow/internal/activity"
	"github.com/notifyhub/prepflow/internal/metrickeys"
	"github.com/notifyhub/prepflow/internal/workflowerrors"
	"github.com/notifyhub/prepflow/log"
	"github.com/notifyhub/prepflow/registry"
)

type ActivityWorkerOptions struct {
	WorkerOptions

	Retries activity.RetryOptions
}

func NewActivityWorker(
	b backend.Backend,
	registry *registry.Registry,
	clock clock.Clock,
	options ActivityWorkerOptions,
) *Worker[backend.ActivityTask, history.Event] {
	opts := b.Options()

	ate := activity.NewExecutor(opts.Logger, b.Tracer(), opts.Converter, registry, clock, options.Retries)

	tw := &ActivityTaskWorker{
		backend:  b,
		executor: ate,
		clock:    clock,
		logger:   opts.Logger,
	}

	return NewWorker[backend.ActivityTask, history.Event](b, tw, clock, &options.WorkerOptions)
}

// ActivityTaskWorker executes activities and failure handlers scheduled by workflow
// instances.
type ActivityTaskWorker struct {
	backend  backend.Backend
	executor *activity.Executor
	clock    clock.Clock
	logger   *slog.Logger
}

func (atw *ActivityTaskWorker) Start(ctx context.Context) error {
	return nil
}

func (atw *ActivityTaskWorker) Get(ctx context.Context) (*backend.ActivityTask, error) {
	return atw.backend.GetActivityTask(ctx)
}

func (atw *ActivityTaskWorker) Extend(ctx context.Context, t *backend.ActivityTask) error {
	return atw.backend.ExtendActivityTask(ctx, t)
}

func (atw *ActivityTaskWorker) Execute(ctx context.Context, t *backend.ActivityTask) (*history.Event, error) {
	if t.Event.Type == history.EventType_FailureHandlerScheduled {
		return atw.executeFailureHandler(ctx, t), nil
	}

	a := t.Event.Attributes.(*history.ActivityScheduledAttributes)
	ametrics := atw.backend.Metrics().WithTags(metrics.Tags{metrickeys.ActivityName: a.Name})

	// Record how long this task was in the queue
	timeInQueue := atw.clock.Since(t.Event.Timestamp)
	ametrics.Distribution(metrickeys.ActivityTaskDelay, metrics.Tags{}, float64(timeInQueue/time.Millisecond))

	start := atw.clock.Now()
	result, err := atw.executor.ExecuteActivity(ctx, t)
	ametrics.Timing(metrickeys.ActivityTaskProcessed, metrics.Tags{}, atw.clock.Since(start))

	var event *history.Event

	if err != nil {
		atw.logger.DebugContext(ctx, "Activity failed",
			log.ActivityNameKey, a.Name,
			log.InstanceIDKey, t.WorkflowInstance.InstanceID,
			"error", err)

		event = history.NewPendingEvent(
			atw.clock.Now(),
			history.EventType_ActivityFailed,
			&history.ActivityFailedAttributes{
				Error: workflowerrors.FromError(err),
			},
			history.ScheduleEventID(t.Event.ScheduleEventID),
		)
	} else {
		event = history.NewPendingEvent(
			atw.clock.Now(),
			history.EventType_ActivityCompleted,
			&history.ActivityCompletedAttributes{
				Result: result,
			},
			history.ScheduleEventID(t.Event.ScheduleEventID),
		)
	}

	return event, nil
}

// executeFailureHandler runs the failure handler of a failed instance. Its error never
// changes the outcome of the instance, it is logged and recorded.
func (atw *ActivityTaskWorker) executeFailureHandler(ctx context.Context, t *backend.ActivityTask) *history.Event {
	a := t.Event.Attributes.(*history.FailureHandlerScheduledAttributes)

	atw.backend.Metrics().Counter(metrickeys.FailureHandlerInvoked, metrics.Tags{metrickeys.WorkflowName: a.Name}, 1)

	err := atw.executor.ExecuteFailureHandler(ctx, t)
	if err != nil {
		atw.logger.ErrorContext(ctx, "Failure handler returned an error",
			log.WorkflowNameKey, a.Name,
			log.InstanceIDKey, t.WorkflowInstance.InstanceID,
			"error", err)
	}

	return history.NewPendingEvent(
		atw.clock.Now(),
		history.EventType_FailureHandlerCompleted,
		&history.FailureHandlerCompletedAttributes{
			Error: workflowerrors.FromError(err),
		},
		history.ScheduleEventID(t.Event.ScheduleEventID),
	)
}

func (atw *ActivityTaskWorker) Complete(ctx context.Context, event *history.Event, t *backend.ActivityTask) error {
	return atw.backend.CompleteActivityTask(ctx, t, event)
}
