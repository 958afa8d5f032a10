// Package memory implements a backend that keeps all state in process. It is meant for
// tests and single-process deployments that do not need durability across restarts.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/notifyhub/prepflow/backend"
	"github.com/notifyhub/prepflow/backend/history"
	"github.com/notifyhub/prepflow/backend/metrics"
	"github.com/notifyhub/prepflow/core"
	"github.com/notifyhub/prepflow/internal/metrickeys"
)

type instance struct {
	instance *core.WorkflowInstance
	state    core.WorkflowInstanceState
	history  *history.Log
	pending  []*history.Event

	createdAt   time.Time
	completedAt *time.Time

	lockedUntil time.Time
	lockToken   string
}

type activity struct {
	instance *core.WorkflowInstance
	event    *history.Event

	lockedUntil time.Time
	lockToken   string
}

type memoryBackend struct {
	options *options

	mu sync.Mutex

	instances map[string]*instance
	// order keeps instances in creation order so tasks are handed out fairly
	order      []string
	activities []*activity
}

var _ backend.Backend = (*memoryBackend)(nil)

func NewMemoryBackend(opts ...option) *memoryBackend {
	backendOptions := backend.ApplyOptions()
	options := &options{
		Options: &backendOptions,
		clock:   clock.New(),
	}

	for _, opt := range opts {
		opt(options)
	}

	return &memoryBackend{
		options:   options,
		instances: make(map[string]*instance),
	}
}

func (mb *memoryBackend) CreateWorkflowInstance(ctx context.Context, wfi *core.WorkflowInstance, event *history.Event) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if err := mb.createInstance(wfi, event); err != nil {
		return err
	}

	mb.options.Metrics.Counter(metrickeys.WorkflowInstanceCreated, metrics.Tags{
		metrickeys.SubWorkflow: fmt.Sprint(wfi.SubWorkflow()),
	}, 1)

	return nil
}

func (mb *memoryBackend) createInstance(wfi *core.WorkflowInstance, event *history.Event) error {
	if _, ok := mb.instances[wfi.InstanceID]; ok {
		return backend.ErrInstanceAlreadyExists
	}

	mb.instances[wfi.InstanceID] = &instance{
		instance:  wfi,
		state:     core.WorkflowInstanceStateRunning,
		history:   &history.Log{},
		pending:   []*history.Event{event},
		createdAt: mb.options.clock.Now(),
	}
	mb.order = append(mb.order, wfi.InstanceID)

	return nil
}

func (mb *memoryBackend) CancelWorkflowInstance(ctx context.Context, wfi *core.WorkflowInstance, cancelEvent *history.Event) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	i, ok := mb.instances[wfi.InstanceID]
	if !ok {
		return backend.ErrInstanceNotFound
	}

	mb.cancel(i, cancelEvent)

	return nil
}

func (mb *memoryBackend) cancel(i *instance, cancelEvent *history.Event) {
	if i.state.Terminal() {
		return
	}

	i.pending = append(i.pending, cancelEvent)

	// Cascade to running sub-workflows
	for _, id := range mb.order {
		child := mb.instances[id]
		if child.instance.Parent != nil && child.instance.Parent.InstanceID == i.instance.InstanceID {
			e := *cancelEvent
			e.ID = uuid.NewString()
			mb.cancel(child, &e)
		}
	}
}

func (mb *memoryBackend) GetWorkflowInstanceState(ctx context.Context, wfi *core.WorkflowInstance) (core.WorkflowInstanceState, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	i, ok := mb.instances[wfi.InstanceID]
	if !ok {
		return core.WorkflowInstanceStateRunning, backend.ErrInstanceNotFound
	}

	return i.state, nil
}

func (mb *memoryBackend) GetWorkflowInstanceHistory(ctx context.Context, wfi *core.WorkflowInstance, lastSequenceID *int64) ([]*history.Event, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	i, ok := mb.instances[wfi.InstanceID]
	if !ok {
		return nil, backend.ErrInstanceNotFound
	}

	var cursor int64
	if lastSequenceID != nil {
		cursor = *lastSequenceID
	}

	events := make([]*history.Event, 0)
	for e := range i.history.ReplayFrom(cursor) {
		events = append(events, e)
	}

	return events, nil
}

func (mb *memoryBackend) GetWorkflowTask(ctx context.Context) (*backend.WorkflowTask, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	now := mb.options.clock.Now()

	for _, id := range mb.order {
		i := mb.instances[id]
		if i.state.Terminal() || now.Before(i.lockedUntil) {
			continue
		}

		newEvents := visibleEvents(i.pending, now)
		if len(newEvents) == 0 {
			continue
		}

		i.lockToken = uuid.NewString()
		i.lockedUntil = now.Add(mb.options.WorkflowLockTimeout)

		return &backend.WorkflowTask{
			ID:                    i.lockToken,
			WorkflowInstance:      i.instance,
			WorkflowInstanceState: i.state,
			LastSequenceID:        i.history.LastSequenceID(),
			NewEvents:             newEvents,
		}, nil
	}

	return nil, nil
}

func visibleEvents(pending []*history.Event, now time.Time) []*history.Event {
	events := make([]*history.Event, 0, len(pending))
	for _, e := range pending {
		if e.VisibleAt != nil && e.VisibleAt.After(now) {
			continue
		}

		ec := *e
		events = append(events, &ec)
	}

	return events
}

func (mb *memoryBackend) ExtendWorkflowTask(ctx context.Context, task *backend.WorkflowTask) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	i, ok := mb.instances[task.WorkflowInstance.InstanceID]
	if !ok || i.lockToken != task.ID {
		return backend.ErrTaskLeaseLost
	}

	i.lockedUntil = mb.options.clock.Now().Add(mb.options.WorkflowLockTimeout)

	return nil
}

func (mb *memoryBackend) CompleteWorkflowTask(
	ctx context.Context,
	task *backend.WorkflowTask,
	state core.WorkflowInstanceState,
	executedEvents, activityEvents, timerEvents []*history.Event,
	workflowEvents []*history.WorkflowEvent,
) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	i, ok := mb.instances[task.WorkflowInstance.InstanceID]
	if !ok || i.lockToken != task.ID {
		return backend.ErrTaskLeaseLost
	}

	// Everything below happens only if the history accepts the events
	if err := i.history.Append(executedEvents...); err != nil {
		return fmt.Errorf("adding events to history: %w", err)
	}

	handled := make(map[string]bool, len(task.NewEvents))
	for _, e := range task.NewEvents {
		handled[e.ID] = true
	}
	i.pending = slices.DeleteFunc(i.pending, func(e *history.Event) bool {
		return handled[e.ID]
	})

	for _, e := range activityEvents {
		mb.activities = append(mb.activities, &activity{
			instance: i.instance,
			event:    e,
		})
	}

	i.pending = append(i.pending, timerEvents...)

	for _, we := range workflowEvents {
		target, ok := mb.instances[we.WorkflowInstance.InstanceID]
		if we.HistoryEvent.Type == history.EventType_WorkflowExecutionStarted {
			if ok {
				// Replays of the parent can schedule the same sub-workflow again
				continue
			}

			if err := mb.createInstance(we.WorkflowInstance, we.HistoryEvent); err != nil {
				return err
			}

			mb.options.Metrics.Counter(metrickeys.WorkflowInstanceCreated, metrics.Tags{
				metrickeys.SubWorkflow: "true",
			}, 1)

			continue
		}

		if !ok || target.state.Terminal() {
			// Discard events for instances that cannot process them anymore
			continue
		}

		target.pending = append(target.pending, we.HistoryEvent)
	}

	i.state = state
	if state.Terminal() {
		now := mb.options.clock.Now()
		i.completedAt = &now
		i.pending = nil
	}

	i.lockToken = ""
	i.lockedUntil = time.Time{}

	return nil
}

func (mb *memoryBackend) GetActivityTask(ctx context.Context) (*backend.ActivityTask, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	now := mb.options.clock.Now()

	for _, a := range mb.activities {
		if now.Before(a.lockedUntil) {
			continue
		}

		a.lockToken = uuid.NewString()
		a.lockedUntil = now.Add(mb.options.ActivityLockTimeout)

		return &backend.ActivityTask{
			ID:               a.lockToken,
			WorkflowInstance: a.instance,
			Event:            a.event,
		}, nil
	}

	return nil, nil
}

func (mb *memoryBackend) ExtendActivityTask(ctx context.Context, task *backend.ActivityTask) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	a := mb.activity(task.ID)
	if a == nil {
		return backend.ErrTaskLeaseLost
	}

	a.lockedUntil = mb.options.clock.Now().Add(mb.options.ActivityLockTimeout)

	return nil
}

func (mb *memoryBackend) CompleteActivityTask(ctx context.Context, task *backend.ActivityTask, result *history.Event) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	a := mb.activity(task.ID)
	if a == nil {
		return backend.ErrTaskLeaseLost
	}

	mb.activities = slices.DeleteFunc(mb.activities, func(x *activity) bool {
		return x == a
	})

	if i, ok := mb.instances[a.instance.InstanceID]; ok && !i.state.Terminal() {
		i.pending = append(i.pending, result)
	}

	return nil
}

func (mb *memoryBackend) activity(token string) *activity {
	for _, a := range mb.activities {
		if a.lockToken == token {
			return a
		}
	}

	return nil
}

func (mb *memoryBackend) Tracer() trace.Tracer {
	return mb.options.TracerProvider.Tracer(backend.TracerName)
}

func (mb *memoryBackend) Metrics() metrics.Client {
	return mb.options.Metrics.WithTags(metrics.Tags{metrickeys.Backend: "memory"})
}

func (mb *memoryBackend) Options() *backend.Options {
	return mb.options.Options
}

func (mb *memoryBackend) Close() error {
	return nil
}
