package backend

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/trace"

	"github.com/notifyhub/prepflow/backend/history"
	"github.com/notifyhub/prepflow/backend/metrics"
	"github.com/notifyhub/prepflow/core"
)

var (
	ErrInstanceNotFound      = errors.New("workflow instance not found")
	ErrInstanceAlreadyExists = errors.New("workflow instance already exists")
	ErrInstanceNotFinished   = errors.New("workflow instance is not finished")

	// ErrTaskLeaseLost is returned when completing or extending a task whose lease expired and
	// which might have been handed to another worker.
	ErrTaskLeaseLost = errors.New("task lease lost")
)

const TracerName = "prepflow"

type Backend interface {
	// CreateWorkflowInstance creates a new workflow instance. event has to be the
	// WorkflowExecutionStarted event.
	CreateWorkflowInstance(ctx context.Context, instance *core.WorkflowInstance, event *history.Event) error

	// CancelWorkflowInstance cancels a running workflow instance and its running sub-workflows
	CancelWorkflowInstance(ctx context.Context, instance *core.WorkflowInstance, cancelEvent *history.Event) error

	// GetWorkflowInstanceState returns the state of the given workflow instance
	GetWorkflowInstanceState(ctx context.Context, instance *core.WorkflowInstance) (core.WorkflowInstanceState, error)

	// GetWorkflowInstanceHistory returns the workflow history for the given instance. When lastSequenceID
	// is given, only events after that event are returned. Otherwise the full history is returned.
	GetWorkflowInstanceHistory(ctx context.Context, instance *core.WorkflowInstance, lastSequenceID *int64) ([]*history.Event, error)

	// GetWorkflowTask returns a pending workflow task or nil if there are no pending workflow executions
	GetWorkflowTask(ctx context.Context) (*WorkflowTask, error)

	// ExtendWorkflowTask extends the lock of a workflow task
	ExtendWorkflowTask(ctx context.Context, task *WorkflowTask) error

	// CompleteWorkflowTask checkpoints a workflow task retrieved using GetWorkflowTask
	//
	// In a single transaction: executedEvents are added to the instance history, the task's
	// new events are removed from the pending events, activityEvents become activity tasks,
	// timerEvents become future events of the instance and workflowEvents are delivered to
	// other instances.
	CompleteWorkflowTask(
		ctx context.Context, task *WorkflowTask, state core.WorkflowInstanceState,
		executedEvents, activityEvents, timerEvents []*history.Event, workflowEvents []*history.WorkflowEvent) error

	// GetActivityTask returns a pending activity task or nil if there are no pending activities
	GetActivityTask(ctx context.Context) (*ActivityTask, error)

	// ExtendActivityTask extends the lock of an activity task
	ExtendActivityTask(ctx context.Context, task *ActivityTask) error

	// CompleteActivityTask completes an activity task retrieved using GetActivityTask. result
	// is delivered to the owning instance as a pending event.
	CompleteActivityTask(ctx context.Context, task *ActivityTask, result *history.Event) error

	// Tracer returns the configured trace provider for the backend
	Tracer() trace.Tracer

	// Metrics returns the configured metrics client for the backend
	Metrics() metrics.Client

	// Options returns the configured options for the backend
	Options() *Options

	// Close closes any underlying resources
	Close() error
}
