package metrickeys

const (
	Prefix = "prepflow."

	// Workflows
	WorkflowInstanceCreated  = Prefix + "workflow.created"
	WorkflowInstanceFinished = Prefix + "workflow.finished"

	WorkflowTaskProcessed = Prefix + "workflow.task.processed"
	WorkflowTaskDelay     = Prefix + "workflow.task.time_in_queue"

	WorkflowInstanceCacheSize     = Prefix + "workflow.cache.size"
	WorkflowInstanceCacheEviction = Prefix + "workflow.cache.eviction"

	// Activities
	ActivityTaskProcessed = Prefix + "activity.task.processed"
	ActivityTaskDelay     = Prefix + "activity.task.time_in_queue"
	ActivityTaskRetried   = Prefix + "activity.task.retried"

	FailureHandlerInvoked = Prefix + "failure_handler.invoked"
)

// Tag names
const (
	// Backend being used
	Backend = "backend"

	// Reason for evicting an entry from the workflow instance cache
	EvictionReason = "reason"

	SubWorkflow = "subworkflow"

	WorkflowName = "workflow"
	ActivityName = "activity"
	EventName    = "event"
	State        = "state"
)
