package activity

import (
	"context"
	"log/slog"

	"github.com/notifyhub/prepflow/internal/activity"
)

// Logger returns a logger with the workflow instance this activity is executed for set as default fields
func Logger(ctx context.Context) *slog.Logger {
	return activity.GetActivityState(ctx).Logger
}

// Attempt returns the workflow-level attempt of the current activity execution, starting at 1.
func Attempt(ctx context.Context) int {
	return activity.GetActivityState(ctx).Attempt
}

// WorkflowInstanceID returns the id of the workflow instance that scheduled the activity.
func WorkflowInstanceID(ctx context.Context) string {
	return activity.GetActivityState(ctx).Instance.InstanceID
}
