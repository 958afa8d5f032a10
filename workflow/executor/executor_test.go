package executor

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/goleak"

	"github.com/notifyhub/prepflow/backend"
	"github.com/notifyhub/prepflow/backend/converter"
	"github.com/notifyhub/prepflow/backend/history"
	"github.com/notifyhub/prepflow/core"
	"github.com/notifyhub/prepflow/internal/args"
	"github.com/notifyhub/prepflow/internal/fn"
	"github.com/notifyhub/prepflow/internal/workflowerrors"
	"github.com/notifyhub/prepflow/registry"
	wf "github.com/notifyhub/prepflow/workflow"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testHistoryProvider struct {
	history []*history.Event
}

func (t *testHistoryProvider) GetWorkflowInstanceHistory(ctx context.Context, instance *core.WorkflowInstance, lastSequenceID *int64) ([]*history.Event, error) {
	var h []*history.Event
	for _, e := range t.history {
		if lastSequenceID == nil || e.SequenceID > *lastSequenceID {
			h = append(h, e)
		}
	}

	return h, nil
}

func (t *testHistoryProvider) record(r *ExecutionResult) {
	t.history = append(t.history, r.Executed...)
}

func newExecutor(t *testing.T, r *registry.Registry, i *core.WorkflowInstance, historyProvider WorkflowHistoryProvider) *executor {
	logger := slog.New(slog.DiscardHandler)
	tracer := noop.NewTracerProvider().Tracer("test")

	e := NewExecutor(logger, tracer, r, converter.DefaultConverter, historyProvider, i, clock.New()).(*executor)
	t.Cleanup(e.Close)

	return e
}

func activity1(ctx context.Context, r int) (int, error) {
	return r, nil
}

func activity2(ctx context.Context, r int) (int, error) {
	return r * 2, nil
}

func startTask(t *testing.T, i *core.WorkflowInstance, workflow any, inputs ...any) *backend.WorkflowTask {
	in, err := args.ArgsToInputs(converter.DefaultConverter, inputs...)
	require.NoError(t, err)

	return &backend.WorkflowTask{
		ID:                    uuid.NewString(),
		WorkflowInstance:      i,
		WorkflowInstanceState: core.WorkflowInstanceStateRunning,
		NewEvents: []*history.Event{
			history.NewPendingEvent(time.Now(), history.EventType_WorkflowExecutionStarted, &history.ExecutionStartedAttributes{
				Name:   fn.Name(workflow),
				Inputs: in,
			}),
		},
	}
}

func continueTask(i *core.WorkflowInstance, lastSequenceID int64, events ...*history.Event) *backend.WorkflowTask {
	return &backend.WorkflowTask{
		ID:                    uuid.NewString(),
		WorkflowInstance:      i,
		WorkflowInstanceState: core.WorkflowInstanceStateRunning,
		LastSequenceID:        lastSequenceID,
		NewEvents:             events,
	}
}

func activityCompleted(t *testing.T, scheduleEventID int64, result any) *history.Event {
	p, err := converter.DefaultConverter.To(result)
	require.NoError(t, err)

	return history.NewPendingEvent(time.Now(), history.EventType_ActivityCompleted,
		&history.ActivityCompletedAttributes{Result: p}, history.ScheduleEventID(scheduleEventID))
}

func activityFailed(scheduleEventID int64, err error) *history.Event {
	return history.NewPendingEvent(time.Now(), history.EventType_ActivityFailed,
		&history.ActivityFailedAttributes{Error: workflowerrors.FromError(err)}, history.ScheduleEventID(scheduleEventID))
}

func eventTypes(events []*history.Event) []history.EventType {
	types := make([]history.EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}

	return types
}

func finishedAttributes(t *testing.T, r *ExecutionResult) *history.ExecutionCompletedAttributes {
	last := r.Executed[len(r.Executed)-1]
	require.Equal(t, history.EventType_WorkflowExecutionFinished, last.Type)

	return last.Attributes.(*history.ExecutionCompletedAttributes)
}

func newInstance() *core.WorkflowInstance {
	return core.NewWorkflowInstance(uuid.NewString(), uuid.NewString())
}

func workflowWithActivity(ctx wf.Context) (int, error) {
	return wf.ExecuteActivity[int](ctx, wf.DefaultActivityOptions, activity1, 42).Get(ctx)
}

func Test_Executor_SimpleWorkflowToCompletion(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.RegisterWorkflow(workflowWithActivity))

	i := newInstance()
	hp := &testHistoryProvider{}
	e := newExecutor(t, r, i, hp)

	result, err := e.ExecuteTask(context.Background(), startTask(t, i, workflowWithActivity))
	require.NoError(t, err)
	hp.record(result)

	require.Equal(t, core.WorkflowInstanceStateRunning, result.State)
	require.Equal(t, []history.EventType{
		history.EventType_WorkflowTaskStarted,
		history.EventType_WorkflowExecutionStarted,
		history.EventType_ActivityScheduled,
	}, eventTypes(result.Executed))
	require.Len(t, result.ActivityEvents, 1)

	for i, event := range result.Executed {
		require.Equal(t, int64(i+1), event.SequenceID)
	}

	scheduled := result.ActivityEvents[0]
	require.Equal(t, int64(1), scheduled.ScheduleEventID)
	require.Equal(t, "activity1", scheduled.Attributes.(*history.ActivityScheduledAttributes).Name)

	result, err = e.ExecuteTask(context.Background(), continueTask(i, 3, activityCompleted(t, 1, 42)))
	require.NoError(t, err)

	require.Equal(t, core.WorkflowInstanceStateCompleted, result.State)
	require.Empty(t, result.ActivityEvents)
	require.Equal(t, int64(4), result.Executed[0].SequenceID)

	var v int
	require.NoError(t, converter.DefaultConverter.From(finishedAttributes(t, result).Result, &v))
	require.Equal(t, 42, v)
	require.Nil(t, finishedAttributes(t, result).Error)
}

func Test_Executor_ReplayDoesNotDispatchAgain(t *testing.T) {
	r := registry.New()

	replaying := []bool{}
	workflow := func(ctx wf.Context) (int, error) {
		replaying = append(replaying, wf.Replaying(ctx))

		return wf.ExecuteActivity[int](ctx, wf.DefaultActivityOptions, activity1, 42).Get(ctx)
	}
	require.NoError(t, r.RegisterWorkflow(workflow))

	i := newInstance()
	hp := &testHistoryProvider{}

	result, err := newExecutor(t, r, i, hp).ExecuteTask(context.Background(), startTask(t, i, workflow))
	require.NoError(t, err)
	hp.record(result)

	// A fresh executor, e.g. on another worker, has to replay the history first
	e := newExecutor(t, r, i, hp)
	result, err = e.ExecuteTask(context.Background(), continueTask(i, 3, activityCompleted(t, 1, 42)))
	require.NoError(t, err)

	require.Equal(t, core.WorkflowInstanceStateCompleted, result.State)
	require.Empty(t, result.ActivityEvents)
	require.Equal(t, []bool{false, true}, replaying)
	require.Equal(t, int64(6), e.history.LastSequenceID())
}

func Test_Executor_HistoryMismatchFailsInstance(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.RegisterWorkflow(workflowWithActivity, registry.WithName("wf")))

	i := newInstance()
	hp := &testHistoryProvider{}

	task := startTask(t, i, workflowWithActivity)
	task.NewEvents[0].Attributes.(*history.ExecutionStartedAttributes).Name = "wf"

	result, err := newExecutor(t, r, i, hp).ExecuteTask(context.Background(), task)
	require.NoError(t, err)
	hp.record(result)

	// Changed workflow code now calls a different activity
	r2 := registry.New()
	require.NoError(t, r2.RegisterWorkflow(func(ctx wf.Context) (int, error) {
		return wf.ExecuteActivity[int](ctx, wf.DefaultActivityOptions, activity2, 42).Get(ctx)
	}, registry.WithName("wf")))

	result, err = newExecutor(t, r2, i, hp).ExecuteTask(context.Background(), continueTask(i, 3, activityCompleted(t, 1, 42)))
	require.NoError(t, err)

	require.Equal(t, core.WorkflowInstanceStateFailed, result.State)
	require.Empty(t, result.ActivityEvents)

	attrs := finishedAttributes(t, result)
	require.NotNil(t, attrs.Error)
	require.Contains(t, attrs.Error.Error(), "history consistency")
}

func Test_Executor_ActivityErrorFailsWorkflow(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.RegisterWorkflow(workflowWithActivity))

	i := newInstance()
	e := newExecutor(t, r, i, &testHistoryProvider{})

	_, err := e.ExecuteTask(context.Background(), startTask(t, i, workflowWithActivity))
	require.NoError(t, err)

	result, err := e.ExecuteTask(context.Background(), continueTask(i, 3, activityFailed(1, errors.New("roster unavailable"))))
	require.NoError(t, err)

	require.Equal(t, core.WorkflowInstanceStateFailed, result.State)

	wfErr := workflowerrors.ToError(finishedAttributes(t, result).Error)
	require.ErrorContains(t, wfErr, "activity activity1 failed")
	require.ErrorContains(t, wfErr, "roster unavailable")
}

func Test_Executor_UnknownWorkflowFails(t *testing.T) {
	r := registry.New()

	i := newInstance()
	e := newExecutor(t, r, i, &testHistoryProvider{})

	result, err := e.ExecuteTask(context.Background(), startTask(t, i, workflowWithActivity))
	require.NoError(t, err)

	require.Equal(t, core.WorkflowInstanceStateFailed, result.State)
	require.Contains(t, finishedAttributes(t, result).Error.Error(), "workflowWithActivity not found")
}

func Test_Executor_PanicFailsWorkflow(t *testing.T) {
	r := registry.New()

	workflow := func(ctx wf.Context) error {
		panic("template missing")
	}
	require.NoError(t, r.RegisterWorkflow(workflow))

	i := newInstance()
	e := newExecutor(t, r, i, &testHistoryProvider{})

	result, err := e.ExecuteTask(context.Background(), startTask(t, i, workflow))
	require.NoError(t, err)

	require.Equal(t, core.WorkflowInstanceStateFailed, result.State)

	var panicErr *workflowerrors.PanicError
	require.ErrorAs(t, workflowerrors.ToError(finishedAttributes(t, result).Error), &panicErr)
}

func Test_Executor_WorkflowTime(t *testing.T) {
	r := registry.New()

	var now []time.Time
	workflow := func(ctx wf.Context) (int, error) {
		now = append(now, wf.Now(ctx))

		return wf.ExecuteActivity[int](ctx, wf.DefaultActivityOptions, activity1, 1).Get(ctx)
	}
	require.NoError(t, r.RegisterWorkflow(workflow))

	i := newInstance()
	hp := &testHistoryProvider{}

	result, err := newExecutor(t, r, i, hp).ExecuteTask(context.Background(), startTask(t, i, workflow))
	require.NoError(t, err)
	hp.record(result)

	_, err = newExecutor(t, r, i, hp).ExecuteTask(context.Background(), continueTask(i, 3, activityCompleted(t, 1, 1)))
	require.NoError(t, err)

	require.Len(t, now, 2)
	require.True(t, now[0].Equal(now[1]))
	require.True(t, now[0].Equal(hp.history[0].Timestamp))
}

func Test_Executor_ForkJoin(t *testing.T) {
	r := registry.New()

	var results wf.Results[int]
	workflow := func(ctx wf.Context) error {
		results = wf.ForkJoin[int](ctx, wf.DefaultActivityOptions,
			wf.Call(activity1, 1),
			wf.Call(activity1, 2),
			wf.Call(activity1, 3),
		)

		return nil
	}
	require.NoError(t, r.RegisterWorkflow(workflow))

	i := newInstance()
	e := newExecutor(t, r, i, &testHistoryProvider{})

	result, err := e.ExecuteTask(context.Background(), startTask(t, i, workflow))
	require.NoError(t, err)

	// Every call is scheduled before any result is awaited
	require.Len(t, result.ActivityEvents, 3)
	for i, event := range result.ActivityEvents {
		require.Equal(t, int64(i+1), event.ScheduleEventID)
	}

	last := result.Executed[len(result.Executed)-1].SequenceID

	// Results arrive out of order
	result, err = e.ExecuteTask(context.Background(), continueTask(i, last,
		activityCompleted(t, 3, 30),
		activityFailed(2, errors.New("batch rejected")),
	))
	require.NoError(t, err)
	require.Equal(t, core.WorkflowInstanceStateRunning, result.State)
	require.Nil(t, results)

	last = result.Executed[len(result.Executed)-1].SequenceID

	result, err = e.ExecuteTask(context.Background(), continueTask(i, last, activityCompleted(t, 1, 10)))
	require.NoError(t, err)
	require.Equal(t, core.WorkflowInstanceStateCompleted, result.State)

	require.Len(t, results, 3)
	require.Equal(t, []int{10, 0, 30}, results.Values())
	require.NoError(t, results[0].Err)
	require.ErrorContains(t, results[1].Err, "batch rejected")
	require.NoError(t, results[2].Err)
	require.ErrorContains(t, results.Err(), "batch rejected")
}

func Test_Executor_LateResultAfterCompletionIsIgnored(t *testing.T) {
	r := registry.New()

	workflow := func(ctx wf.Context) error {
		// Never awaited
		wf.ExecuteActivity[int](ctx, wf.DefaultActivityOptions, activity1, 1)

		return nil
	}
	require.NoError(t, r.RegisterWorkflow(workflow))

	i := newInstance()
	e := newExecutor(t, r, i, &testHistoryProvider{})

	result, err := e.ExecuteTask(context.Background(), startTask(t, i, workflow))
	require.NoError(t, err)
	require.Equal(t, core.WorkflowInstanceStateCompleted, result.State)
	require.Len(t, result.ActivityEvents, 1)

	result, err = e.ExecuteTask(context.Background(), &backend.WorkflowTask{
		ID:                    uuid.NewString(),
		WorkflowInstance:      i,
		WorkflowInstanceState: core.WorkflowInstanceStateCompleted,
		LastSequenceID:        e.history.LastSequenceID(),
		NewEvents:             []*history.Event{activityCompleted(t, 1, 1)},
	})
	require.NoError(t, err)
	require.Equal(t, core.WorkflowInstanceStateCompleted, result.State)
	require.Empty(t, result.Executed)
}

func Test_Executor_UnexpectedResultIsInconsistent(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.RegisterWorkflow(workflowWithActivity))

	i := newInstance()
	e := newExecutor(t, r, i, &testHistoryProvider{})

	_, err := e.ExecuteTask(context.Background(), startTask(t, i, workflowWithActivity))
	require.NoError(t, err)

	result, err := e.ExecuteTask(context.Background(), continueTask(i, 3, activityCompleted(t, 7, 1)))
	require.NoError(t, err)

	require.Equal(t, core.WorkflowInstanceStateFailed, result.State)
	require.Contains(t, finishedAttributes(t, result).Error.Error(), "no pending future")
}

func Test_Executor_OlderTaskIsRejected(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.RegisterWorkflow(workflowWithActivity))

	i := newInstance()
	e := newExecutor(t, r, i, &testHistoryProvider{})

	_, err := e.ExecuteTask(context.Background(), startTask(t, i, workflowWithActivity))
	require.NoError(t, err)

	_, err = e.ExecuteTask(context.Background(), continueTask(i, 1, activityCompleted(t, 1, 1)))
	require.Error(t, err)
}

func Test_Executor_Timer(t *testing.T) {
	r := registry.New()

	workflow := func(ctx wf.Context) error {
		return wf.Sleep(ctx, time.Minute)
	}
	require.NoError(t, r.RegisterWorkflow(workflow))

	i := newInstance()
	e := newExecutor(t, r, i, &testHistoryProvider{})

	result, err := e.ExecuteTask(context.Background(), startTask(t, i, workflow))
	require.NoError(t, err)

	require.Len(t, result.TimerEvents, 1)
	fired := result.TimerEvents[0]
	require.Equal(t, history.EventType_TimerFired, fired.Type)
	require.NotNil(t, fired.VisibleAt)
	require.True(t, fired.VisibleAt.Equal(result.Executed[0].Timestamp.Add(time.Minute)))

	result, err = e.ExecuteTask(context.Background(), continueTask(i, 3, fired))
	require.NoError(t, err)
	require.Equal(t, core.WorkflowInstanceStateCompleted, result.State)
}

func Test_Executor_CancelResolvesTimers(t *testing.T) {
	tests := []struct {
		name     string
		workflow func(ctx wf.Context) error
	}{
		{
			name: "returns error",
			workflow: func(ctx wf.Context) error {
				return wf.Sleep(ctx, time.Hour)
			},
		},
		{
			name: "ignores error",
			workflow: func(ctx wf.Context) error {
				_ = wf.Sleep(ctx, time.Hour)

				// Nothing new can be scheduled after cancellation
				_, err := wf.ExecuteActivity[int](ctx, wf.DefaultActivityOptions, activity1, 1).Get(ctx)
				if !errors.Is(err, wf.Canceled) {
					return errors.New("expected cancellation")
				}

				return nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := registry.New()
			require.NoError(t, r.RegisterWorkflow(tt.workflow))

			i := newInstance()
			e := newExecutor(t, r, i, &testHistoryProvider{})

			result, err := e.ExecuteTask(context.Background(), startTask(t, i, tt.workflow))
			require.NoError(t, err)
			require.Len(t, result.TimerEvents, 1)

			result, err = e.ExecuteTask(context.Background(), continueTask(i, 3,
				history.NewPendingEvent(time.Now(), history.EventType_WorkflowExecutionCanceled, &history.ExecutionCanceledAttributes{})))
			require.NoError(t, err)

			require.Equal(t, core.WorkflowInstanceStateFailed, result.State)
			require.Empty(t, result.ActivityEvents)
			require.ErrorContains(t, finishedAttributes(t, result).Error, wf.Canceled.Error())
		})
	}
}

func Test_Executor_SubWorkflow(t *testing.T) {
	r := registry.New()

	child := func(ctx wf.Context, n int) (int, error) {
		return n + 1, nil
	}

	var childResult int
	parent := func(ctx wf.Context) error {
		var err error
		childResult, err = wf.CreateSubWorkflowInstance[int](ctx, wf.DefaultSubWorkflowOptions, child, 1).Get(ctx)
		return err
	}
	require.NoError(t, r.RegisterWorkflow(child))
	require.NoError(t, r.RegisterWorkflow(parent))

	i := newInstance()
	e := newExecutor(t, r, i, &testHistoryProvider{})

	result, err := e.ExecuteTask(context.Background(), startTask(t, i, parent))
	require.NoError(t, err)

	require.Len(t, result.WorkflowEvents, 1)
	started := result.WorkflowEvents[0]
	require.Equal(t, i.InstanceID+"/1", started.WorkflowInstance.InstanceID)
	require.Equal(t, i.ExecutionID, started.WorkflowInstance.ExecutionID)
	require.Equal(t, int64(1), started.WorkflowInstance.ParentEventID)
	require.Equal(t, history.EventType_WorkflowExecutionStarted, started.HistoryEvent.Type)

	// Run the child to completion, it reports back to the parent
	ce := newExecutor(t, r, started.WorkflowInstance, &testHistoryProvider{})
	childResultEvent, err := ce.ExecuteTask(context.Background(), &backend.WorkflowTask{
		ID:               uuid.NewString(),
		WorkflowInstance: started.WorkflowInstance,
		NewEvents:        []*history.Event{started.HistoryEvent},
	})
	require.NoError(t, err)
	require.Equal(t, core.WorkflowInstanceStateCompleted, childResultEvent.State)
	require.Len(t, childResultEvent.WorkflowEvents, 1)

	toParent := childResultEvent.WorkflowEvents[0]
	require.Equal(t, i.InstanceID, toParent.WorkflowInstance.InstanceID)
	require.Equal(t, history.EventType_SubWorkflowCompleted, toParent.HistoryEvent.Type)

	result, err = e.ExecuteTask(context.Background(), continueTask(i, 3, toParent.HistoryEvent))
	require.NoError(t, err)
	require.Equal(t, core.WorkflowInstanceStateCompleted, result.State)
	require.Equal(t, 2, childResult)
}

func Test_Executor_ActivityRetries(t *testing.T) {
	r := registry.New()

	workflow := func(ctx wf.Context) (int, error) {
		return wf.ExecuteActivity[int](ctx, wf.ActivityOptions{
			RetryOptions: wf.RetryOptions{
				MaxAttempts:        2,
				FirstRetryInterval: time.Second,
			},
		}, activity1, 5).Get(ctx)
	}
	require.NoError(t, r.RegisterWorkflow(workflow))

	i := newInstance()
	e := newExecutor(t, r, i, &testHistoryProvider{})

	result, err := e.ExecuteTask(context.Background(), startTask(t, i, workflow))
	require.NoError(t, err)
	require.Len(t, result.ActivityEvents, 1)

	// First attempt fails, a durable timer delays the second one
	result, err = e.ExecuteTask(context.Background(), continueTask(i, 3, activityFailed(1, errors.New("timeout"))))
	require.NoError(t, err)
	require.Empty(t, result.ActivityEvents)
	require.Len(t, result.TimerEvents, 1)

	last := e.history.LastSequenceID()
	result, err = e.ExecuteTask(context.Background(), continueTask(i, last, result.TimerEvents[0]))
	require.NoError(t, err)
	require.Len(t, result.ActivityEvents, 1)

	second := result.ActivityEvents[0].Attributes.(*history.ActivityScheduledAttributes)
	require.Equal(t, 2, second.Attempt)

	last = e.history.LastSequenceID()
	result, err = e.ExecuteTask(context.Background(), continueTask(i, last, activityCompleted(t, 3, 5)))
	require.NoError(t, err)
	require.Equal(t, core.WorkflowInstanceStateCompleted, result.State)
}

func Test_Executor_DiscardsEventsForFinishedInstance(t *testing.T) {
	r := registry.New()
	i := newInstance()
	e := newExecutor(t, r, i, &testHistoryProvider{})

	result, err := e.ExecuteTask(context.Background(), &backend.WorkflowTask{
		ID:                    uuid.NewString(),
		WorkflowInstance:      i,
		WorkflowInstanceState: core.WorkflowInstanceStateFailed,
		NewEvents:             []*history.Event{activityCompleted(t, 1, 1)},
	})
	require.NoError(t, err)
	require.Equal(t, core.WorkflowInstanceStateFailed, result.State)
	require.Empty(t, result.Executed)
}
