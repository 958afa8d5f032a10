package history

import (
	"github.com/notifyhub/prepflow/backend/payload"
	"github.com/notifyhub/prepflow/internal/workflowerrors"
)

type ExecutionStartedAttributes struct {
	Name string `json:"name,omitempty"`

	Inputs []payload.Payload `json:"inputs,omitempty"`
}

type ExecutionCompletedAttributes struct {
	Result payload.Payload       `json:"result,omitempty"`
	Error  *workflowerrors.Error `json:"error,omitempty"`
}

type ExecutionCanceledAttributes struct {
}

type WorkflowTaskStartedAttributes struct {
}
