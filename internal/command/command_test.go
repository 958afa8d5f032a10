package command

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/prepflow/backend/history"
	"github.com/notifyhub/prepflow/backend/payload"
	"github.com/notifyhub/prepflow/core"
	"github.com/notifyhub/prepflow/internal/workflowerrors"
)

func TestScheduleActivityCommand(t *testing.T) {
	c := NewScheduleActivityCommand(1, "RenderContent", []payload.Payload{payload.Payload(`"n1"`)}, 1)
	require.Equal(t, CommandState_Pending, c.State())

	r := c.Execute(clock.NewMock())
	require.Equal(t, CommandState_Committed, c.State())
	require.Len(t, r.Events, 1)
	require.Equal(t, r.Events, r.ActivityEvents)
	require.Equal(t, history.EventType_ActivityScheduled, r.Events[0].Type)
	require.Equal(t, int64(1), r.Events[0].ScheduleEventID)

	// Executing again is a no-op
	require.Nil(t, c.Execute(clock.NewMock()))

	c.Done()
	require.Equal(t, CommandState_Done, c.State())
}

func TestCommand_CommitTwicePanics(t *testing.T) {
	c := NewScheduleActivityCommand(1, "a", nil, 1)
	c.Commit()

	require.Panics(t, c.Commit)
}

func TestScheduleTimerCommand(t *testing.T) {
	clk := clock.NewMock()
	at := clk.Now().Add(time.Minute)

	c := NewScheduleTimerCommand(2, at, "aggregation")
	r := c.Execute(clk)

	require.Len(t, r.Events, 1)
	require.Equal(t, history.EventType_TimerScheduled, r.Events[0].Type)
	require.Len(t, r.TimerEvents, 1)
	require.Equal(t, history.EventType_TimerFired, r.TimerEvents[0].Type)
	require.Equal(t, at, *r.TimerEvents[0].VisibleAt)
}

func TestScheduleTimerCommand_Cancel(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(c *ScheduleTimerCommand)
		cancel bool
	}{
		{name: "pending", setup: func(*ScheduleTimerCommand) {}, cancel: true},
		{name: "committed", setup: func(c *ScheduleTimerCommand) { c.Commit() }, cancel: true},
		{name: "done", setup: func(c *ScheduleTimerCommand) { c.Commit(); c.Done() }, cancel: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewScheduleTimerCommand(1, time.Now(), "")
			tt.setup(c)

			require.Equal(t, tt.cancel, c.Cancel())
			if tt.cancel {
				require.Equal(t, CommandState_Canceled, c.State())
				require.Nil(t, c.Execute(clock.NewMock()))
			}
		})
	}
}

func TestScheduleSubWorkflowCommand(t *testing.T) {
	parent := core.NewWorkflowInstance("n1", "e1")

	c := NewScheduleSubWorkflowCommand(3, parent, "", "SyncRecipientsWorkflow", nil)
	require.Equal(t, "n1/3", c.Instance.InstanceID)
	require.Equal(t, int64(3), c.Instance.ParentEventID)

	r := c.Execute(clock.NewMock())
	require.Len(t, r.Events, 1)
	require.Equal(t, history.EventType_SubWorkflowScheduled, r.Events[0].Type)
	require.Len(t, r.WorkflowEvents, 1)
	require.Equal(t, "n1/3", r.WorkflowEvents[0].WorkflowInstance.InstanceID)
	require.Equal(t, history.EventType_WorkflowExecutionStarted, r.WorkflowEvents[0].HistoryEvent.Type)
}

func TestScheduleFailureHandlerCommand(t *testing.T) {
	c := NewScheduleFailureHandlerCommand(4, "PrepareToSendWorkflow", nil, workflowerrors.FromError(errors.New("no audience")))

	r := c.Execute(clock.NewMock())
	require.Len(t, r.ActivityEvents, 1)
	require.Equal(t, history.EventType_FailureHandlerScheduled, r.ActivityEvents[0].Type)

	a := r.ActivityEvents[0].Attributes.(*history.FailureHandlerScheduledAttributes)
	require.Equal(t, "PrepareToSendWorkflow", a.Name)
	require.Equal(t, "no audience", a.Error.Message)
}

func TestCompleteWorkflowCommand(t *testing.T) {
	parent := core.NewWorkflowInstance("n1", "e1")
	child := core.NewSubWorkflowInstance("n1/2", "e1", parent, 2)

	tests := []struct {
		name       string
		instance   *core.WorkflowInstance
		err        error
		wantState  core.WorkflowInstanceState
		wantParent history.EventType
	}{
		{name: "completed", instance: parent, wantState: core.WorkflowInstanceStateCompleted},
		{name: "failed", instance: parent, err: errors.New("x"), wantState: core.WorkflowInstanceStateFailed},
		{name: "sub-workflow completed", instance: child, wantState: core.WorkflowInstanceStateCompleted, wantParent: history.EventType_SubWorkflowCompleted},
		{name: "sub-workflow failed", instance: child, err: errors.New("x"), wantState: core.WorkflowInstanceStateFailed, wantParent: history.EventType_SubWorkflowFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCompleteWorkflowCommand(5, tt.instance, nil, tt.err)

			r := c.Execute(clock.NewMock())
			require.Equal(t, CommandState_Done, c.State())
			require.Equal(t, tt.wantState, *r.State)
			require.Equal(t, history.EventType_WorkflowExecutionFinished, r.Events[0].Type)

			if tt.wantParent == 0 {
				require.Empty(t, r.WorkflowEvents)
				return
			}

			require.Len(t, r.WorkflowEvents, 1)
			require.Equal(t, "n1", r.WorkflowEvents[0].WorkflowInstance.InstanceID)
			require.Equal(t, tt.wantParent, r.WorkflowEvents[0].HistoryEvent.Type)
			require.Equal(t, int64(2), r.WorkflowEvents[0].HistoryEvent.ScheduleEventID)
		})
	}
}
