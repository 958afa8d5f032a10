package command

import (
	"github.com/benbjohnson/clock"

	"github.com/notifyhub/prepflow/backend/history"
	"github.com/notifyhub/prepflow/backend/payload"
)

type ScheduleActivityCommand struct {
	command

	Name    string
	Inputs  []payload.Payload
	Attempt int
}

var _ Command = (*ScheduleActivityCommand)(nil)

func NewScheduleActivityCommand(id int64, name string, inputs []payload.Payload, attempt int) *ScheduleActivityCommand {
	return &ScheduleActivityCommand{
		command: command{
			state: CommandState_Pending,
			id:    id,
			name:  "ScheduleActivity",
		},
		Name:    name,
		Inputs:  inputs,
		Attempt: attempt,
	}
}

func (c *ScheduleActivityCommand) Execute(clock clock.Clock) *CommandResult {
	if !c.execute() {
		return nil
	}

	event := history.NewPendingEvent(
		clock.Now(),
		history.EventType_ActivityScheduled,
		&history.ActivityScheduledAttributes{
			Name:    c.Name,
			Inputs:  c.Inputs,
			Attempt: c.Attempt,
		},
		history.ScheduleEventID(c.id))

	return &CommandResult{
		Events:         []*history.Event{event},
		ActivityEvents: []*history.Event{event},
	}
}
