package core

type WorkflowInstanceState int

const (
	WorkflowInstanceStateRunning WorkflowInstanceState = iota
	WorkflowInstanceStateCompleted
	WorkflowInstanceStateFailed
)

func (s WorkflowInstanceState) String() string {
	switch s {
	case WorkflowInstanceStateRunning:
		return "Running"
	case WorkflowInstanceStateCompleted:
		return "Completed"
	case WorkflowInstanceStateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further events will be processed for an instance in this state.
func (s WorkflowInstanceState) Terminal() bool {
	return s == WorkflowInstanceStateCompleted || s == WorkflowInstanceStateFailed
}
