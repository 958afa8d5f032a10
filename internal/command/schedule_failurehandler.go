package command

import (
	"github.com/benbjohnson/clock"

	"github.com/notifyhub/prepflow/backend/history"
	"github.com/notifyhub/prepflow/backend/payload"
	"github.com/notifyhub/prepflow/internal/workflowerrors"
)

// ScheduleFailureHandlerCommand hands a failed instance to the failure handler registered
// for its workflow. The handler runs on the activity workers.
type ScheduleFailureHandlerCommand struct {
	command

	WorkflowName string
	Inputs       []payload.Payload
	Err          *workflowerrors.Error
}

var _ Command = (*ScheduleFailureHandlerCommand)(nil)

func NewScheduleFailureHandlerCommand(id int64, workflowName string, inputs []payload.Payload, err *workflowerrors.Error) *ScheduleFailureHandlerCommand {
	return &ScheduleFailureHandlerCommand{
		command: command{
			id:    id,
			name:  "ScheduleFailureHandler",
			state: CommandState_Pending,
		},
		WorkflowName: workflowName,
		Inputs:       inputs,
		Err:          err,
	}
}

func (c *ScheduleFailureHandlerCommand) Execute(clock clock.Clock) *CommandResult {
	if !c.execute() {
		return nil
	}

	event := history.NewPendingEvent(
		clock.Now(),
		history.EventType_FailureHandlerScheduled,
		&history.FailureHandlerScheduledAttributes{
			Name:   c.WorkflowName,
			Inputs: c.Inputs,
			Error:  c.Err,
		},
		history.ScheduleEventID(c.id),
	)

	return &CommandResult{
		Events:         []*history.Event{event},
		ActivityEvents: []*history.Event{event},
	}
}
