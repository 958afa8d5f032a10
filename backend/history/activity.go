package history

import (
	"github.com/notifyhub/prepflow/backend/payload"
	"github.com/notifyhub/prepflow/internal/workflowerrors"
)

type ActivityScheduledAttributes struct {
	Name string `json:"name,omitempty"`

	Inputs []payload.Payload `json:"inputs,omitempty"`

	// Attempt is the workflow-level retry attempt, starting at 1.
	Attempt int `json:"attempt,omitempty"`
}

type ActivityCompletedAttributes struct {
	Result payload.Payload `json:"result,omitempty"`
}

type ActivityFailedAttributes struct {
	Error *workflowerrors.Error `json:"error,omitempty"`
}
