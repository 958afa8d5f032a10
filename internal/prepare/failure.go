package prepare

import (
	"context"
	"fmt"

	"github.com/notifyhub/prepflow/activity"
	"github.com/notifyhub/prepflow/log"
	"github.com/notifyhub/prepflow/workflow"
)

// HandleFailure marks the notification of a failed prepare workflow as failed and clears
// its preparing flag. It runs at most once per instance.
func (a *Activities) HandleFailure(ctx context.Context, f *workflow.Failure) error {
	var input Input
	if err := f.Input(0, &input); err != nil {
		return fmt.Errorf("decoding input of failed instance %s: %w", f.Instance.InstanceID, err)
	}

	message := "unknown error"
	if f.Err != nil {
		message = f.Err.Error()
	}

	activity.Logger(ctx).Error("preparing notification failed",
		log.NotificationIDKey, input.NotificationID,
		"error", message)

	if err := a.Store.MarkFailed(ctx, input.NotificationID, message); err != nil {
		return fmt.Errorf("marking notification failed: %w", err)
	}

	return nil
}
