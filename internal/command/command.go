package command

import (
	"github.com/benbjohnson/clock"

	"github.com/notifyhub/prepflow/backend/history"
	"github.com/notifyhub/prepflow/core"
)

type CommandState int

// Command states:
//
//	 ┌───────┐
//	 │Pending├──────────┐
//	 └───────┘          │
//	     ▼              ▼
//	┌─────────┐    ┌────────┐
//	│Committed├───►│Canceled│
//	└─────────┘    └────────┘
//	     ▼
//	  ┌────┐
//	  │Done│
//	  └────┘
const (
	CommandState_Pending CommandState = iota
	CommandState_Committed
	CommandState_Canceled
	CommandState_Done
)

func (s CommandState) String() string {
	switch s {
	case CommandState_Pending:
		return "Pending"
	case CommandState_Committed:
		return "Committed"
	case CommandState_Canceled:
		return "Canceled"
	case CommandState_Done:
		return "Done"
	default:
		return "Unknown"
	}
}

type Command interface {
	ID() int64

	// Commit marks a command as committed without producing events. Called when the
	// event a pending command would produce is found in the history.
	Commit()

	// Execute produces the events for a pending command and commits it.
	Execute(clock clock.Clock) *CommandResult

	// Done marks the command as done. This transitions the state to done and indicates that the result
	// of this command has been applied.
	Done()

	State() CommandState

	Type() string
}

type CommandResult struct {
	// Events are added to the history of the executing instance
	Events []*history.Event

	// ActivityEvents are dispatched to activity workers
	ActivityEvents []*history.Event

	// TimerEvents are delivered back to the executing instance once visible
	TimerEvents []*history.Event

	// WorkflowEvents are delivered to other instances
	WorkflowEvents []*history.WorkflowEvent

	// State is set by commands that finish the instance
	State *core.WorkflowInstanceState
}

type command struct {
	state CommandState

	id int64

	name string
}

func (c *command) ID() int64 {
	return c.id
}

func (c *command) Type() string {
	return c.name
}

func (c *command) State() CommandState {
	return c.state
}

func (c *command) Commit() {
	if c.state != CommandState_Pending {
		panic("command " + c.name + " already committed")
	}

	c.state = CommandState_Committed
}

func (c *command) Done() {
	c.state = CommandState_Done
}

// execute transitions a pending command to committed. Returns false if there is nothing
// to execute.
func (c *command) execute() bool {
	if c.state != CommandState_Pending {
		return false
	}

	c.state = CommandState_Committed

	return true
}
