package command

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/notifyhub/prepflow/backend/history"
)

type ScheduleTimerCommand struct {
	command

	At   time.Time
	Name string
}

var _ Command = (*ScheduleTimerCommand)(nil)

func NewScheduleTimerCommand(id int64, at time.Time, name string) *ScheduleTimerCommand {
	return &ScheduleTimerCommand{
		command: command{
			id:    id,
			name:  "ScheduleTimer",
			state: CommandState_Pending,
		},
		At:   at,
		Name: name,
	}
}

func (c *ScheduleTimerCommand) Execute(clock clock.Clock) *CommandResult {
	if !c.execute() {
		return nil
	}

	now := clock.Now()

	return &CommandResult{
		Events: []*history.Event{
			history.NewPendingEvent(
				now,
				history.EventType_TimerScheduled,
				&history.TimerScheduledAttributes{
					At:   c.At,
					Name: c.Name,
				},
				history.ScheduleEventID(c.id),
			),
		},
		TimerEvents: []*history.Event{
			history.NewPendingEvent(
				now,
				history.EventType_TimerFired,
				&history.TimerFiredAttributes{
					ScheduledAt: now,
					At:          c.At,
					Name:        c.Name,
				},
				history.ScheduleEventID(c.id),
				history.VisibleAt(c.At),
			),
		},
	}
}

// Cancel stops a timer that has not fired yet. A pending timer is never scheduled, a
// committed one ignores its TimerFired event.
func (c *ScheduleTimerCommand) Cancel() bool {
	switch c.state {
	case CommandState_Pending, CommandState_Committed:
		c.state = CommandState_Canceled
		return true
	}

	return false
}
