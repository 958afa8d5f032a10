package command

import (
	"github.com/benbjohnson/clock"

	"github.com/notifyhub/prepflow/backend/history"
	"github.com/notifyhub/prepflow/backend/payload"
	"github.com/notifyhub/prepflow/core"
	"github.com/notifyhub/prepflow/internal/workflowerrors"
)

type CompleteWorkflowCommand struct {
	command

	Instance *core.WorkflowInstance
	Result   payload.Payload
	Err      *workflowerrors.Error
}

var _ Command = (*CompleteWorkflowCommand)(nil)

func NewCompleteWorkflowCommand(id int64, instance *core.WorkflowInstance, result payload.Payload, err error) *CompleteWorkflowCommand {
	return &CompleteWorkflowCommand{
		command: command{
			id:    id,
			name:  "CompleteWorkflow",
			state: CommandState_Pending,
		},
		Instance: instance,
		Result:   result,
		Err:      workflowerrors.FromError(err),
	}
}

func (c *CompleteWorkflowCommand) Execute(clock clock.Clock) *CommandResult {
	if !c.execute() {
		return nil
	}

	// Nothing left to wait for
	c.Done()

	now := clock.Now()

	state := core.WorkflowInstanceStateCompleted
	if c.Err != nil {
		state = core.WorkflowInstanceStateFailed
	}

	r := &CommandResult{
		State: &state,
		Events: []*history.Event{
			history.NewPendingEvent(
				now,
				history.EventType_WorkflowExecutionFinished,
				&history.ExecutionCompletedAttributes{
					Result: c.Result,
					Error:  c.Err,
				},
				history.ScheduleEventID(c.id),
			),
		},
	}

	if c.Instance.SubWorkflow() {
		// Notify the parent of completion
		var event *history.Event
		if c.Err != nil {
			event = history.NewPendingEvent(
				now,
				history.EventType_SubWorkflowFailed,
				&history.SubWorkflowFailedAttributes{Error: c.Err},
				history.ScheduleEventID(c.Instance.ParentEventID),
			)
		} else {
			event = history.NewPendingEvent(
				now,
				history.EventType_SubWorkflowCompleted,
				&history.SubWorkflowCompletedAttributes{Result: c.Result},
				history.ScheduleEventID(c.Instance.ParentEventID),
			)
		}

		r.WorkflowEvents = []*history.WorkflowEvent{
			{
				WorkflowInstance: c.Instance.Parent,
				HistoryEvent:     event,
			},
		}
	}

	return r
}
