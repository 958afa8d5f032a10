package workflow

import (
	"log/slog"
	"time"

	"github.com/notifyhub/prepflow/core"
	"github.com/notifyhub/prepflow/internal/workflowstate"
)

// Logger returns a logger bound to the workflow instance. Records are dropped while the
// workflow is replaying.
func Logger(ctx Context) *slog.Logger {
	return workflowstate.WorkflowState(ctx).Logger()
}

// Replaying returns true while workflow code re-runs over already recorded history.
func Replaying(ctx Context) bool {
	return workflowstate.WorkflowState(ctx).Replaying()
}

// Now returns the time of the current workflow task. Use this instead of time.Now.
func Now(ctx Context) time.Time {
	return workflowstate.WorkflowState(ctx).Time()
}

func WorkflowInstance(ctx Context) *core.WorkflowInstance {
	return workflowstate.WorkflowState(ctx).Instance()
}
