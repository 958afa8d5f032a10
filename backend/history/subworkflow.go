package history

import (
	"github.com/notifyhub/prepflow/backend/payload"
	"github.com/notifyhub/prepflow/core"
	"github.com/notifyhub/prepflow/internal/workflowerrors"
)

type SubWorkflowScheduledAttributes struct {
	SubWorkflowInstance *core.WorkflowInstance `json:"sub_workflow_instance,omitempty"`

	Name string `json:"name,omitempty"`

	Inputs []payload.Payload `json:"inputs,omitempty"`
}

type SubWorkflowCompletedAttributes struct {
	Result payload.Payload `json:"result,omitempty"`
}

type SubWorkflowFailedAttributes struct {
	Error *workflowerrors.Error `json:"error,omitempty"`
}
