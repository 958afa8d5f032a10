package monoprocess

import (
	"context"
	"log/slog"
	"time"

	"github.com/notifyhub/prepflow/backend"
	"github.com/notifyhub/prepflow/backend/history"
	"github.com/notifyhub/prepflow/core"
)

type monoprocessBackend struct {
	backend.Backend

	workflowSignal chan struct{}
	activitySignal chan struct{}
	signalTimeout  time.Duration

	logger *slog.Logger
}

// NewMonoprocessBackend wraps an existing backend and improves its responsiveness
// in case the backend and worker are running in the same process. Every time a task
// becomes ready a waiting poller is signalled instead of waiting for the next poll.
// Only one poller is notified per task.
//
// Only use this backend if the backend and worker are running in the same process.
func NewMonoprocessBackend(b backend.Backend, signalBufferSize int, signalTimeout time.Duration) *monoprocessBackend {
	if signalTimeout <= 0 {
		signalTimeout = time.Second
	}

	return &monoprocessBackend{
		Backend:        b,
		workflowSignal: make(chan struct{}, signalBufferSize),
		activitySignal: make(chan struct{}, signalBufferSize),
		signalTimeout:  signalTimeout,
		logger:         b.Options().Logger,
	}
}

// GetWorkflowTask blocks until a workflow task is available or ctx is done.
func (b *monoprocessBackend) GetWorkflowTask(ctx context.Context) (*backend.WorkflowTask, error) {
	for {
		if t, err := b.Backend.GetWorkflowTask(ctx); t != nil || err != nil {
			return t, err
		}

		b.logger.DebugContext(ctx, "worker waiting for workflow task signal")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.workflowSignal:
		}
	}
}

// GetActivityTask blocks until an activity task is available or ctx is done.
func (b *monoprocessBackend) GetActivityTask(ctx context.Context) (*backend.ActivityTask, error) {
	for {
		if t, err := b.Backend.GetActivityTask(ctx); t != nil || err != nil {
			return t, err
		}

		b.logger.DebugContext(ctx, "worker waiting for activity task signal")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.activitySignal:
		}
	}
}

func (b *monoprocessBackend) CreateWorkflowInstance(ctx context.Context, instance *core.WorkflowInstance, event *history.Event) error {
	if err := b.Backend.CreateWorkflowInstance(ctx, instance, event); err != nil {
		return err
	}

	b.notifyWorkflowWorker(ctx)

	return nil
}

func (b *monoprocessBackend) CompleteWorkflowTask(
	ctx context.Context,
	task *backend.WorkflowTask,
	state core.WorkflowInstanceState,
	executedEvents, activityEvents, timerEvents []*history.Event,
	workflowEvents []*history.WorkflowEvent,
) error {
	if err := b.Backend.CompleteWorkflowTask(ctx, task, state, executedEvents, activityEvents, timerEvents, workflowEvents); err != nil {
		return err
	}

	for _, e := range activityEvents {
		if e.Type != history.EventType_ActivityScheduled && e.Type != history.EventType_FailureHandlerScheduled {
			continue
		}

		if !b.notifyActivityWorker(ctx) {
			break // queue is full
		}
	}

	for _, e := range timerEvents {
		if e.VisibleAt == nil {
			continue
		}

		// Signals outlive the task, ctx is done by the time the timer fires.
		time.AfterFunc(time.Until(*e.VisibleAt), func() { b.notifyWorkflowWorker(context.Background()) })
	}

	for range workflowEvents {
		if !b.notifyWorkflowWorker(ctx) {
			break
		}
	}

	return nil
}

func (b *monoprocessBackend) CompleteActivityTask(ctx context.Context, task *backend.ActivityTask, result *history.Event) error {
	if err := b.Backend.CompleteActivityTask(ctx, task, result); err != nil {
		return err
	}

	b.notifyWorkflowWorker(ctx)

	return nil
}

func (b *monoprocessBackend) CancelWorkflowInstance(ctx context.Context, instance *core.WorkflowInstance, cancelEvent *history.Event) error {
	if err := b.Backend.CancelWorkflowInstance(ctx, instance, cancelEvent); err != nil {
		return err
	}

	b.notifyWorkflowWorker(ctx)

	return nil
}

func (b *monoprocessBackend) notifyActivityWorker(ctx context.Context) bool {
	return b.notify(ctx, b.activitySignal, "activity")
}

func (b *monoprocessBackend) notifyWorkflowWorker(ctx context.Context) bool {
	return b.notify(ctx, b.workflowSignal, "workflow")
}

func (b *monoprocessBackend) notify(ctx context.Context, signal chan<- struct{}, kind string) bool {
	ctx, cancel := context.WithTimeout(ctx, b.signalTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		// Nobody is waiting, a poller picks the task up on its next poll.
		b.logger.DebugContext(ctx, "failed to signal task to worker", "kind", kind, "reason", ctx.Err())
		return false
	case signal <- struct{}{}:
		return true
	}
}
