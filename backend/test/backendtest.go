package test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/prepflow/backend"
	"github.com/notifyhub/prepflow/backend/history"
	"github.com/notifyhub/prepflow/backend/payload"
	"github.com/notifyhub/prepflow/core"
)

// BackendTest checks the storage contract every backend has to fulfill.
func BackendTest(t *testing.T, setup func(t *testing.T) backend.Backend, teardown func(b backend.Backend)) {
	tests := []struct {
		name string
		f    func(t *testing.T, ctx context.Context, b backend.Backend)
	}{
		{
			name: "GetWorkflowTask_ReturnsNilWhenNoTask",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				task, err := b.GetWorkflowTask(ctx)
				require.NoError(t, err)
				require.Nil(t, task)
			},
		},
		{
			name: "GetActivityTask_ReturnsNilWhenNoTask",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				task, err := b.GetActivityTask(ctx)
				require.NoError(t, err)
				require.Nil(t, task)
			},
		},
		{
			name: "CreateWorkflowInstance_SameInstanceIDErrors",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				wfi := core.NewWorkflowInstance(uuid.NewString(), uuid.NewString())

				require.NoError(t, b.CreateWorkflowInstance(ctx, wfi, startedEvent()))

				err := b.CreateWorkflowInstance(ctx, core.NewWorkflowInstance(wfi.InstanceID, uuid.NewString()), startedEvent())
				require.ErrorIs(t, err, backend.ErrInstanceAlreadyExists)
			},
		},
		{
			name: "GetWorkflowInstanceState_NotFound",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				_, err := b.GetWorkflowInstanceState(ctx, core.NewWorkflowInstance("does-not-exist", ""))
				require.ErrorIs(t, err, backend.ErrInstanceNotFound)
			},
		},
		{
			name: "GetWorkflowTask_ReturnsTask",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				wfi := createInstance(t, ctx, b)

				task, err := b.GetWorkflowTask(ctx)
				require.NoError(t, err)
				require.NotNil(t, task)
				require.Equal(t, wfi.InstanceID, task.WorkflowInstance.InstanceID)
				require.Equal(t, wfi.ExecutionID, task.WorkflowInstance.ExecutionID)
				require.Equal(t, int64(0), task.LastSequenceID)
				require.Len(t, task.NewEvents, 1)
				require.Equal(t, history.EventType_WorkflowExecutionStarted, task.NewEvents[0].Type)

				a := task.NewEvents[0].Attributes.(*history.ExecutionStartedAttributes)
				require.Equal(t, "wf", a.Name)
				require.Equal(t, []payload.Payload{payload.Payload(`"n-1"`)}, a.Inputs)
			},
		},
		{
			name: "GetWorkflowTask_LocksTask",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				createInstance(t, ctx, b)

				task, err := b.GetWorkflowTask(ctx)
				require.NoError(t, err)
				require.NotNil(t, task)

				// Only instance is locked
				task, err = b.GetWorkflowTask(ctx)
				require.NoError(t, err)
				require.Nil(t, task)
			},
		},
		{
			name: "CompleteWorkflowTask_ReturnsErrorIfNotLocked",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				wfi := createInstance(t, ctx, b)

				err := b.CompleteWorkflowTask(ctx, &backend.WorkflowTask{
					ID:               "not-a-lease",
					WorkflowInstance: wfi,
				}, core.WorkflowInstanceStateRunning, nil, nil, nil, nil)
				require.ErrorIs(t, err, backend.ErrTaskLeaseLost)
			},
		},
		{
			name: "CompleteWorkflowTask_AddsEventsToHistory",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				wfi := createInstance(t, ctx, b)

				task, err := b.GetWorkflowTask(ctx)
				require.NoError(t, err)

				scheduled := history.NewPendingEvent(time.Now(), history.EventType_ActivityScheduled, &history.ActivityScheduledAttributes{
					Name:    "a",
					Attempt: 1,
				}, history.ScheduleEventID(1))

				executed := sequence(0, taskStarted(), task.NewEvents[0], scheduled)

				require.NoError(t, b.CompleteWorkflowTask(
					ctx, task, core.WorkflowInstanceStateRunning, executed, []*history.Event{scheduled}, nil, nil))

				// Nothing to do for the workflow until the activity is done
				task, err = b.GetWorkflowTask(ctx)
				require.NoError(t, err)
				require.Nil(t, task)

				at, err := b.GetActivityTask(ctx)
				require.NoError(t, err)
				require.NotNil(t, at)
				require.Equal(t, wfi.InstanceID, at.WorkflowInstance.InstanceID)
				require.Equal(t, history.EventType_ActivityScheduled, at.Event.Type)
				require.Equal(t, int64(1), at.Event.ScheduleEventID)
				require.Equal(t, "a", at.Event.Attributes.(*history.ActivityScheduledAttributes).Name)

				completed := history.NewPendingEvent(time.Now(), history.EventType_ActivityCompleted, &history.ActivityCompletedAttributes{
					Result: payload.Payload("42"),
				}, history.ScheduleEventID(1))
				require.NoError(t, b.CompleteActivityTask(ctx, at, completed))

				task, err = b.GetWorkflowTask(ctx)
				require.NoError(t, err)
				require.NotNil(t, task)
				require.Equal(t, int64(3), task.LastSequenceID)
				require.Len(t, task.NewEvents, 1)
				require.Equal(t, history.EventType_ActivityCompleted, task.NewEvents[0].Type)
				require.Equal(t, completed.ID, task.NewEvents[0].ID)

				h, err := b.GetWorkflowInstanceHistory(ctx, wfi, nil)
				require.NoError(t, err)
				require.Len(t, h, 3)
				for i, e := range executed {
					require.Equal(t, e.Type, h[i].Type)
					require.Equal(t, e.SequenceID, h[i].SequenceID)
				}

				lastSequenceID := int64(1)
				h, err = b.GetWorkflowInstanceHistory(ctx, wfi, &lastSequenceID)
				require.NoError(t, err)
				require.Len(t, h, 2)
				require.Equal(t, int64(2), h[0].SequenceID)
			},
		},
		{
			name: "CompleteWorkflowTask_RejectsOutOfOrderEvents",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				wfi := createInstance(t, ctx, b)

				task, err := b.GetWorkflowTask(ctx)
				require.NoError(t, err)

				// Gap in front of the first event
				executed := sequence(1, taskStarted(), task.NewEvents[0])

				err = b.CompleteWorkflowTask(ctx, task, core.WorkflowInstanceStateRunning, executed, nil, nil, nil)
				var ooo *history.OutOfOrderError
				require.ErrorAs(t, err, &ooo)

				h, err := b.GetWorkflowInstanceHistory(ctx, wfi, nil)
				require.NoError(t, err)
				require.Empty(t, h)
			},
		},
		{
			name: "CompleteWorkflowTask_DelaysTimerEvents",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				createInstance(t, ctx, b)

				task, err := b.GetWorkflowTask(ctx)
				require.NoError(t, err)

				at := time.Now().Add(time.Hour)
				fired := history.NewPendingEvent(time.Now(), history.EventType_TimerFired, &history.TimerFiredAttributes{
					At: at,
				}, history.ScheduleEventID(1), history.VisibleAt(at))

				require.NoError(t, b.CompleteWorkflowTask(
					ctx, task, core.WorkflowInstanceStateRunning, sequence(0, taskStarted(), task.NewEvents[0]), nil, []*history.Event{fired}, nil))

				task, err = b.GetWorkflowTask(ctx)
				require.NoError(t, err)
				require.Nil(t, task, "timer should not be visible yet")
			},
		},
		{
			name: "CompleteWorkflowTask_DeliversElapsedTimerEvents",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				createInstance(t, ctx, b)

				task, err := b.GetWorkflowTask(ctx)
				require.NoError(t, err)

				at := time.Now().Add(-time.Second)
				fired := history.NewPendingEvent(time.Now(), history.EventType_TimerFired, &history.TimerFiredAttributes{
					At: at,
				}, history.ScheduleEventID(1), history.VisibleAt(at))

				require.NoError(t, b.CompleteWorkflowTask(
					ctx, task, core.WorkflowInstanceStateRunning, sequence(0, taskStarted(), task.NewEvents[0]), nil, []*history.Event{fired}, nil))

				task, err = b.GetWorkflowTask(ctx)
				require.NoError(t, err)
				require.NotNil(t, task)
				require.Len(t, task.NewEvents, 1)
				require.Equal(t, history.EventType_TimerFired, task.NewEvents[0].Type)
			},
		},
		{
			name: "CompleteWorkflowTask_StartsSubWorkflow",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				parent := createInstance(t, ctx, b)

				task, err := b.GetWorkflowTask(ctx)
				require.NoError(t, err)

				child := core.NewSubWorkflowInstance(core.SubWorkflowInstanceID(parent, 1), uuid.NewString(), parent, 1)

				require.NoError(t, b.CompleteWorkflowTask(
					ctx, task, core.WorkflowInstanceStateRunning, sequence(0, taskStarted(), task.NewEvents[0]), nil, nil,
					[]*history.WorkflowEvent{{WorkflowInstance: child, HistoryEvent: startedEvent()}}))

				s, err := b.GetWorkflowInstanceState(ctx, child)
				require.NoError(t, err)
				require.Equal(t, core.WorkflowInstanceStateRunning, s)

				task, err = b.GetWorkflowTask(ctx)
				require.NoError(t, err)
				require.NotNil(t, task)
				require.Equal(t, child.InstanceID, task.WorkflowInstance.InstanceID)
				require.True(t, task.WorkflowInstance.SubWorkflow())
				require.Equal(t, parent.InstanceID, task.WorkflowInstance.Parent.InstanceID)
				require.Equal(t, int64(1), task.WorkflowInstance.ParentEventID)
			},
		},
		{
			name: "CompleteWorkflowTask_FinishesInstance",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				wfi := createInstance(t, ctx, b)

				task, err := b.GetWorkflowTask(ctx)
				require.NoError(t, err)

				scheduled := history.NewPendingEvent(time.Now(), history.EventType_ActivityScheduled, &history.ActivityScheduledAttributes{
					Name: "a",
				}, history.ScheduleEventID(1))
				finished := history.NewPendingEvent(time.Now(), history.EventType_WorkflowExecutionFinished, &history.ExecutionCompletedAttributes{})

				require.NoError(t, b.CompleteWorkflowTask(
					ctx, task, core.WorkflowInstanceStateCompleted, sequence(0, taskStarted(), task.NewEvents[0], scheduled, finished),
					[]*history.Event{scheduled}, nil, nil))

				s, err := b.GetWorkflowInstanceState(ctx, wfi)
				require.NoError(t, err)
				require.Equal(t, core.WorkflowInstanceStateCompleted, s)

				// Late activity results are dropped
				at, err := b.GetActivityTask(ctx)
				require.NoError(t, err)
				require.NotNil(t, at)
				require.NoError(t, b.CompleteActivityTask(ctx, at, history.NewPendingEvent(
					time.Now(), history.EventType_ActivityCompleted, &history.ActivityCompletedAttributes{}, history.ScheduleEventID(1))))

				task, err = b.GetWorkflowTask(ctx)
				require.NoError(t, err)
				require.Nil(t, task)
			},
		},
		{
			name: "CancelWorkflowInstance_NotFound",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				err := b.CancelWorkflowInstance(ctx, core.NewWorkflowInstance("does-not-exist", ""), cancelEvent())
				require.ErrorIs(t, err, backend.ErrInstanceNotFound)
			},
		},
		{
			name: "CancelWorkflowInstance_CancelsSubWorkflows",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				parent := createInstance(t, ctx, b)

				task, err := b.GetWorkflowTask(ctx)
				require.NoError(t, err)

				child := core.NewSubWorkflowInstance(core.SubWorkflowInstanceID(parent, 1), uuid.NewString(), parent, 1)
				require.NoError(t, b.CompleteWorkflowTask(
					ctx, task, core.WorkflowInstanceStateRunning, sequence(0, taskStarted(), task.NewEvents[0]), nil, nil,
					[]*history.WorkflowEvent{{WorkflowInstance: child, HistoryEvent: startedEvent()}}))

				// Child picks up its start event
				task, err = b.GetWorkflowTask(ctx)
				require.NoError(t, err)
				require.Equal(t, child.InstanceID, task.WorkflowInstance.InstanceID)
				require.NoError(t, b.CompleteWorkflowTask(
					ctx, task, core.WorkflowInstanceStateRunning, sequence(0, taskStarted(), task.NewEvents[0]), nil, nil, nil))

				require.NoError(t, b.CancelWorkflowInstance(ctx, parent, cancelEvent()))

				canceled := map[string]bool{}
				for range 2 {
					task, err := b.GetWorkflowTask(ctx)
					require.NoError(t, err)
					require.NotNil(t, task)
					require.Len(t, task.NewEvents, 1)
					require.Equal(t, history.EventType_WorkflowExecutionCanceled, task.NewEvents[0].Type)
					canceled[task.WorkflowInstance.InstanceID] = true
				}

				require.True(t, canceled[parent.InstanceID])
				require.True(t, canceled[child.InstanceID])
			},
		},
		{
			name: "ExtendWorkflowTask_ReturnsErrorIfNotLocked",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				wfi := createInstance(t, ctx, b)

				err := b.ExtendWorkflowTask(ctx, &backend.WorkflowTask{ID: "not-a-lease", WorkflowInstance: wfi})
				require.ErrorIs(t, err, backend.ErrTaskLeaseLost)
			},
		},
		{
			name: "CompleteActivityTask_ReturnsErrorIfNotLocked",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				wfi := createInstance(t, ctx, b)

				task := &backend.ActivityTask{
					ID:               "not-a-lease",
					WorkflowInstance: wfi,
				}

				require.ErrorIs(t, b.ExtendActivityTask(ctx, task), backend.ErrTaskLeaseLost)
				require.ErrorIs(t, b.CompleteActivityTask(ctx, task, history.NewPendingEvent(
					time.Now(), history.EventType_ActivityCompleted, &history.ActivityCompletedAttributes{})), backend.ErrTaskLeaseLost)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := setup(t)
			ctx := context.Background()
			tt.f(t, ctx, b)
			if teardown != nil {
				teardown(b)
			}
		})
	}
}

func startedEvent() *history.Event {
	return history.NewPendingEvent(time.Now(), history.EventType_WorkflowExecutionStarted, &history.ExecutionStartedAttributes{
		Name:   "wf",
		Inputs: []payload.Payload{payload.Payload(`"n-1"`)},
	})
}

func cancelEvent() *history.Event {
	return history.NewPendingEvent(time.Now(), history.EventType_WorkflowExecutionCanceled, &history.ExecutionCanceledAttributes{})
}

func taskStarted() *history.Event {
	return history.NewPendingEvent(time.Now(), history.EventType_WorkflowTaskStarted, &history.WorkflowTaskStartedAttributes{})
}

// sequence assigns consecutive sequence ids following last.
func sequence(last int64, events ...*history.Event) []*history.Event {
	for i, e := range events {
		e.SequenceID = last + int64(i) + 1
	}

	return events
}

func createInstance(t *testing.T, ctx context.Context, b backend.Backend) *core.WorkflowInstance {
	t.Helper()

	wfi := core.NewWorkflowInstance(uuid.NewString(), uuid.NewString())
	require.NoError(t, b.CreateWorkflowInstance(ctx, wfi, startedEvent()))

	return wfi
}
