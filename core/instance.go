package core

import "fmt"

// WorkflowInstance identifies a single run of a workflow. Sub-workflows carry a
// reference to the instance that scheduled them.
type WorkflowInstance struct {
	InstanceID string `json:"instance_id,omitempty"`

	ExecutionID string `json:"execution_id,omitempty"`

	// Parent is set for sub-workflow instances.
	Parent *WorkflowInstance `json:"parent,omitempty"`

	// ParentEventID is the schedule event id of the SubWorkflowScheduled event in the parent.
	ParentEventID int64 `json:"parent_event_id,omitempty"`
}

func NewWorkflowInstance(instanceID, executionID string) *WorkflowInstance {
	return &WorkflowInstance{
		InstanceID:  instanceID,
		ExecutionID: executionID,
	}
}

func NewSubWorkflowInstance(instanceID, executionID string, parent *WorkflowInstance, parentEventID int64) *WorkflowInstance {
	return &WorkflowInstance{
		InstanceID:    instanceID,
		ExecutionID:   executionID,
		Parent:        parent,
		ParentEventID: parentEventID,
	}
}

// SubWorkflowInstanceID derives the id of a child instance from its parent and the
// schedule event id, so replays of the parent always address the same child.
func SubWorkflowInstanceID(parent *WorkflowInstance, scheduleEventID int64) string {
	return fmt.Sprintf("%s/%d", parent.InstanceID, scheduleEventID)
}

func (wi *WorkflowInstance) SubWorkflow() bool {
	return wi.Parent != nil
}

func (wi *WorkflowInstance) String() string {
	return fmt.Sprintf("%s@%s", wi.InstanceID, wi.ExecutionID)
}
