package command

import (
	"github.com/benbjohnson/clock"

	"github.com/notifyhub/prepflow/backend/history"
	"github.com/notifyhub/prepflow/backend/payload"
	"github.com/notifyhub/prepflow/core"
)

type ScheduleSubWorkflowCommand struct {
	command

	Instance *core.WorkflowInstance
	Name     string
	Inputs   []payload.Payload
}

var _ Command = (*ScheduleSubWorkflowCommand)(nil)

func NewScheduleSubWorkflowCommand(id int64, parent *core.WorkflowInstance, subWorkflowInstanceID, name string, inputs []payload.Payload) *ScheduleSubWorkflowCommand {
	if subWorkflowInstanceID == "" {
		subWorkflowInstanceID = core.SubWorkflowInstanceID(parent, id)
	}

	return &ScheduleSubWorkflowCommand{
		command: command{
			id:    id,
			name:  "ScheduleSubWorkflow",
			state: CommandState_Pending,
		},
		Instance: core.NewSubWorkflowInstance(subWorkflowInstanceID, parent.ExecutionID, parent, id),
		Name:     name,
		Inputs:   inputs,
	}
}

func (c *ScheduleSubWorkflowCommand) Execute(clock clock.Clock) *CommandResult {
	if !c.execute() {
		return nil
	}

	now := clock.Now()

	return &CommandResult{
		Events: []*history.Event{
			history.NewPendingEvent(
				now,
				history.EventType_SubWorkflowScheduled,
				&history.SubWorkflowScheduledAttributes{
					SubWorkflowInstance: c.Instance,
					Name:                c.Name,
					Inputs:              c.Inputs,
				},
				history.ScheduleEventID(c.id),
			),
		},
		WorkflowEvents: []*history.WorkflowEvent{
			{
				WorkflowInstance: c.Instance,
				HistoryEvent: history.NewPendingEvent(
					now,
					history.EventType_WorkflowExecutionStarted,
					&history.ExecutionStartedAttributes{
						Name:   c.Name,
						Inputs: c.Inputs,
					},
				),
			},
		},
	}
}
