package activity

import (
	"context"
	"log/slog"

	"github.com/notifyhub/prepflow/core"
	"github.com/notifyhub/prepflow/log"
)

type ActivityState struct {
	ActivityID string
	Instance   *core.WorkflowInstance
	Attempt    int
	Logger     *slog.Logger
}

func NewActivityState(activityID string, attempt int, instance *core.WorkflowInstance, logger *slog.Logger) *ActivityState {
	return &ActivityState{
		activityID,
		instance,
		attempt,
		logger.With(
			log.ActivityIDKey, activityID,
			log.InstanceIDKey, instance.InstanceID,
			log.ExecutionIDKey, instance.ExecutionID,
			log.AttemptKey, attempt,
		)}
}

type key int

var activityCtxKey key

func WithActivityState(ctx context.Context, as *ActivityState) context.Context {
	return context.WithValue(ctx, activityCtxKey, as)
}

func GetActivityState(ctx context.Context) *ActivityState {
	as, ok := ctx.Value(activityCtxKey).(*ActivityState)
	if !ok {
		panic("activity state not found, context is not an activity context")
	}

	return as
}
