package prepare

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/notifyhub/prepflow/client"
	"github.com/notifyhub/prepflow/core"
	"github.com/notifyhub/prepflow/registry"
	"github.com/notifyhub/prepflow/workflow"
)

type registrar interface {
	RegisterWorkflow(wf workflow.Workflow, opts ...registry.RegisterOption) error
	RegisterActivity(a workflow.Activity, opts ...registry.RegisterOption) error
}

// Register registers the prepare workflows and the given activities with a worker.
func Register(r registrar, a *Activities) error {
	if err := r.RegisterWorkflow(PrepareToSendWorkflow, registry.WithFailureHandler(a.HandleFailure)); err != nil {
		return fmt.Errorf("registering prepare workflow: %w", err)
	}

	if err := r.RegisterWorkflow(SyncRecipientsWorkflow); err != nil {
		return fmt.Errorf("registering sync recipients workflow: %w", err)
	}

	if err := r.RegisterWorkflow(SendQueueWorkflow); err != nil {
		return fmt.Errorf("registering send queue workflow: %w", err)
	}

	if err := r.RegisterActivity(a); err != nil {
		return fmt.Errorf("registering activities: %w", err)
	}

	return nil
}

// Submit starts preparing the notification. The notification id is used as instance id, a
// second submission of the same notification fails with backend.ErrInstanceAlreadyExists.
// A zero aggregation delay is replaced by DefaultAggregationDelay.
func Submit(ctx context.Context, c *client.Client, input Input) (*core.WorkflowInstance, error) {
	if input.NotificationID == "" {
		return nil, errors.New("notification id is required")
	}

	if input.AggregationDelaySeconds == 0 {
		input.AggregationDelaySeconds = int(DefaultAggregationDelay / time.Second)
	}

	return c.CreateWorkflowInstance(ctx, client.WorkflowInstanceOptions{
		InstanceID: input.NotificationID,
	}, PrepareToSendWorkflow, input)
}

// Instance returns the workflow instance preparing the notification.
func Instance(notificationID string) *core.WorkflowInstance {
	return core.NewWorkflowInstance(notificationID, "")
}
