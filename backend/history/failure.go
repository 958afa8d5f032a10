package history

import (
	"github.com/notifyhub/prepflow/backend/payload"
	"github.com/notifyhub/prepflow/internal/workflowerrors"
)

// FailureHandlerScheduledAttributes carries everything the failure handler of a workflow
// needs: the workflow name to look it up, the original inputs and the failure.
type FailureHandlerScheduledAttributes struct {
	Name string `json:"name,omitempty"`

	Inputs []payload.Payload `json:"inputs,omitempty"`

	Error *workflowerrors.Error `json:"error,omitempty"`
}

type FailureHandlerCompletedAttributes struct {
	// Error returned by the handler itself. Informational only, it never changes the outcome.
	Error *workflowerrors.Error `json:"error,omitempty"`
}
