package workflow

import (
	"fmt"

	"github.com/notifyhub/prepflow/backend/converter"
	"github.com/notifyhub/prepflow/backend/payload"
	"github.com/notifyhub/prepflow/core"
)

// Failure describes a workflow instance that ended with an error. It is passed to the
// failure handler registered for the workflow.
type Failure struct {
	Instance     *core.WorkflowInstance
	WorkflowName string
	Inputs       []payload.Payload
	Err          error

	converter converter.Converter
}

func NewFailure(instance *core.WorkflowInstance, workflowName string, inputs []payload.Payload, err error, cv converter.Converter) *Failure {
	return &Failure{
		Instance:     instance,
		WorkflowName: workflowName,
		Inputs:       inputs,
		Err:          err,
		converter:    cv,
	}
}

// Input decodes the i-th workflow argument into v.
func (f *Failure) Input(i int, v any) error {
	if i < 0 || i >= len(f.Inputs) {
		return fmt.Errorf("workflow %s has no input %d", f.WorkflowName, i)
	}

	return f.converter.From(f.Inputs[i], v)
}
