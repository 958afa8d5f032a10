package prepare

import (
	"github.com/notifyhub/prepflow/log"
	"github.com/notifyhub/prepflow/workflow"
)

// Activities are referenced through method values on a nil receiver. Only the name is
// used, the registered instance executes them.
var activities *Activities

// PrepareToSendWorkflow prepares the notification described by input for sending.
func PrepareToSendWorkflow(ctx workflow.Context, input Input) error {
	logger := workflow.Logger(ctx).With(log.NotificationIDKey, input.NotificationID)

	recipients, err := workflow.CreateSubWorkflowInstance[int](ctx, workflow.DefaultSubWorkflowOptions, SyncRecipientsWorkflow, input).Get(ctx)
	if err != nil {
		return err
	}

	logger.Info("synced recipients", log.RecipientsKey, recipients)

	if _, err := workflow.ExecuteActivity[any](ctx, workflow.DefaultActivityOptions, activities.RenderContent, input).Get(ctx); err != nil {
		return err
	}

	if _, err := workflow.ExecuteActivity[any](ctx, workflow.DefaultActivityOptions, activities.SetPreparingFlag, input.NotificationID, false).Get(ctx); err != nil {
		return err
	}

	if _, err := workflow.ExecuteActivity[any](ctx, workflow.DefaultActivityOptions, activities.EnqueueAggregationTrigger, input.NotificationID, input.AggregationDelaySeconds).Get(ctx); err != nil {
		return err
	}

	batches, err := workflow.CreateSubWorkflowInstance[int](ctx, workflow.DefaultSubWorkflowOptions, SendQueueWorkflow, input.NotificationID).Get(ctx)
	if err != nil {
		return err
	}

	logger.Info("prepared notification", "batches", batches)

	return nil
}

// SyncRecipientsWorkflow stores a recipient record for every member of the audience and
// returns the number of records written.
func SyncRecipientsWorkflow(ctx workflow.Context, input Input) (int, error) {
	switch {
	case input.Audience.AllUsers:
		return workflow.ExecuteActivity[int](ctx, workflow.DefaultActivityOptions, activities.ResolveAllUsersAudience, input).Get(ctx)

	case len(input.Audience.Rosters) > 0:
		teams, err := workflow.ExecuteActivity[[]Team](ctx, workflow.DefaultActivityOptions, activities.ResolveTeamEntities, input.Audience.Rosters).Get(ctx)
		if err != nil {
			return 0, err
		}

		calls := make([]workflow.ActivityCall, 0, len(teams))
		for _, team := range teams {
			calls = append(calls, workflow.Call(activities.ResolveRoster, input.NotificationID, team))
		}

		results := workflow.ForkJoin[int](ctx, workflow.DefaultActivityOptions, calls...)
		if err := results.Err(); err != nil {
			return 0, err
		}

		total := 0
		for _, n := range results.Values() {
			total += n
		}

		return total, nil

	case len(input.Audience.Teams) > 0:
		return workflow.ExecuteActivity[int](ctx, workflow.DefaultActivityOptions, activities.ResolveTeamChannels, input).Get(ctx)
	}

	return 0, workflow.NewValidationError("notification %s has no audience", input.NotificationID)
}

// SendQueueWorkflow partitions the recipients of the notification and dispatches every
// batch to the send pipeline. It returns the number of batches.
func SendQueueWorkflow(ctx workflow.Context, notificationID string) (int, error) {
	batches, err := workflow.ExecuteActivity[[]RecipientBatch](ctx, workflow.DefaultActivityOptions, activities.PartitionRecipients, notificationID).Get(ctx)
	if err != nil {
		return 0, err
	}

	calls := make([]workflow.ActivityCall, 0, len(batches))
	for _, batch := range batches {
		calls = append(calls, workflow.Call(activities.DispatchBatch, notificationID, batch))
	}

	if err := workflow.ForkJoin[any](ctx, workflow.DefaultActivityOptions, calls...).Err(); err != nil {
		return 0, err
	}

	return len(batches), nil
}
