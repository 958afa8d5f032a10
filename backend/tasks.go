package backend

import (
	"github.com/notifyhub/prepflow/backend/history"
	"github.com/notifyhub/prepflow/core"
)

// WorkflowTask represents work for one workflow execution slice.
type WorkflowTask struct {
	// ID is an identifier for this task. It's set by the backend and doubles as the lease token
	ID string

	WorkflowInstance *core.WorkflowInstance

	WorkflowInstanceState core.WorkflowInstanceState

	// LastSequenceID is the sequence ID of the newest event in the workflow instances's history
	LastSequenceID int64

	// NewEvents are new events since the last task execution
	NewEvents []*history.Event
}

// ActivityTask represents one activity or failure handler execution.
type ActivityTask struct {
	ID string

	WorkflowInstance *core.WorkflowInstance

	Event *history.Event
}
