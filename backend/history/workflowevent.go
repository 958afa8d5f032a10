package history

import "github.com/notifyhub/prepflow/core"

// WorkflowEvent is a event addressed for a specific workflow instance
type WorkflowEvent struct {
	WorkflowInstance *core.WorkflowInstance `json:"instance,omitempty"`

	HistoryEvent *Event `json:"event,omitempty"`
}
