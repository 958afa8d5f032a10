package memory

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/prepflow/backend"
	"github.com/notifyhub/prepflow/backend/history"
	"github.com/notifyhub/prepflow/backend/test"
	"github.com/notifyhub/prepflow/core"
)

func Test_MemoryBackend(t *testing.T) {
	test.BackendTest(t, func(t *testing.T) backend.Backend {
		return NewMemoryBackend()
	}, nil)
}

func Test_EndToEndMemoryBackend(t *testing.T) {
	test.EndToEndBackendTest(t, func(t *testing.T) backend.Backend {
		return NewMemoryBackend()
	}, nil)
}

func Test_MemoryBackend_ExpiredWorkflowLockIsReleased(t *testing.T) {
	ctx := context.Background()
	c := clock.NewMock()

	b := NewMemoryBackend(WithClock(c), WithBackendOptions(backend.WithWorkflowLockTimeout(time.Minute)))

	wfi := core.NewWorkflowInstance(uuid.NewString(), uuid.NewString())
	require.NoError(t, b.CreateWorkflowInstance(ctx, wfi, history.NewPendingEvent(
		c.Now(), history.EventType_WorkflowExecutionStarted, &history.ExecutionStartedAttributes{})))

	first, err := b.GetWorkflowTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	c.Add(30 * time.Second)
	require.NoError(t, b.ExtendWorkflowTask(ctx, first))

	c.Add(45 * time.Second)
	task, err := b.GetWorkflowTask(ctx)
	require.NoError(t, err)
	require.Nil(t, task, "lock was extended")

	c.Add(time.Minute)
	second, err := b.GetWorkflowTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, second)
	require.NotEqual(t, first.ID, second.ID)

	// The first worker lost its lease
	err = b.CompleteWorkflowTask(ctx, first, core.WorkflowInstanceStateRunning, nil, nil, nil, nil)
	require.ErrorIs(t, err, backend.ErrTaskLeaseLost)
}

func Test_MemoryBackend_ExpiredActivityLockIsReleased(t *testing.T) {
	ctx := context.Background()
	c := clock.NewMock()

	b := NewMemoryBackend(WithClock(c), WithBackendOptions(backend.WithActivityLockTimeout(time.Minute)))

	wfi := core.NewWorkflowInstance(uuid.NewString(), uuid.NewString())
	require.NoError(t, b.CreateWorkflowInstance(ctx, wfi, history.NewPendingEvent(
		c.Now(), history.EventType_WorkflowExecutionStarted, &history.ExecutionStartedAttributes{})))

	task, err := b.GetWorkflowTask(ctx)
	require.NoError(t, err)

	started := history.NewPendingEvent(c.Now(), history.EventType_WorkflowTaskStarted, &history.WorkflowTaskStartedAttributes{})
	started.SequenceID = 1
	task.NewEvents[0].SequenceID = 2
	scheduled := history.NewPendingEvent(c.Now(), history.EventType_ActivityScheduled, &history.ActivityScheduledAttributes{Name: "a"}, history.ScheduleEventID(1))
	scheduled.SequenceID = 3

	require.NoError(t, b.CompleteWorkflowTask(ctx, task, core.WorkflowInstanceStateRunning,
		[]*history.Event{started, task.NewEvents[0], scheduled}, []*history.Event{scheduled}, nil, nil))

	first, err := b.GetActivityTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	none, err := b.GetActivityTask(ctx)
	require.NoError(t, err)
	require.Nil(t, none)

	c.Add(2 * time.Minute)

	second, err := b.GetActivityTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, second)

	completed := history.NewPendingEvent(c.Now(), history.EventType_ActivityCompleted, &history.ActivityCompletedAttributes{}, history.ScheduleEventID(1))
	require.ErrorIs(t, b.CompleteActivityTask(ctx, first, completed), backend.ErrTaskLeaseLost)
	require.NoError(t, b.CompleteActivityTask(ctx, second, completed))
}

func Test_MemoryBackend_TimerBecomesVisible(t *testing.T) {
	ctx := context.Background()
	c := clock.NewMock()

	b := NewMemoryBackend(WithClock(c))

	wfi := core.NewWorkflowInstance(uuid.NewString(), uuid.NewString())
	require.NoError(t, b.CreateWorkflowInstance(ctx, wfi, history.NewPendingEvent(
		c.Now(), history.EventType_WorkflowExecutionStarted, &history.ExecutionStartedAttributes{})))

	task, err := b.GetWorkflowTask(ctx)
	require.NoError(t, err)

	started := history.NewPendingEvent(c.Now(), history.EventType_WorkflowTaskStarted, &history.WorkflowTaskStartedAttributes{})
	started.SequenceID = 1
	task.NewEvents[0].SequenceID = 2

	at := c.Now().Add(time.Hour)
	fired := history.NewPendingEvent(c.Now(), history.EventType_TimerFired, &history.TimerFiredAttributes{At: at},
		history.ScheduleEventID(1), history.VisibleAt(at))

	require.NoError(t, b.CompleteWorkflowTask(ctx, task, core.WorkflowInstanceStateRunning,
		[]*history.Event{started, task.NewEvents[0]}, nil, []*history.Event{fired}, nil))

	c.Add(59 * time.Minute)
	task, err = b.GetWorkflowTask(ctx)
	require.NoError(t, err)
	require.Nil(t, task)

	c.Add(time.Minute)
	task, err = b.GetWorkflowTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.Equal(t, history.EventType_TimerFired, task.NewEvents[0].Type)
}
