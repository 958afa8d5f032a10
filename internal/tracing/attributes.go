package tracing

const (
	WorkflowInstanceID = "workflow.instance_id"
	WorkflowName       = "workflow.name"

	WorkflowTaskID     = "workflow_task.id"
	WorkflowTaskEvents = "workflow_task.events"

	ActivityTaskID = "activity_task.id"
	ActivityName   = "activity.name"

	ScheduleEventID = "schedule_event_id"
)
