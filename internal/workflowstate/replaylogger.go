package workflowstate

import (
	"context"
	"log/slog"
)

// replayHandler drops records while the workflow is replaying, so every log line is
// emitted once even though workflow code runs many times.
type replayHandler struct {
	state   *WfState
	handler slog.Handler
}

func (rh *replayHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return rh.handler.Enabled(ctx, level)
}

func (rh *replayHandler) Handle(ctx context.Context, r slog.Record) error {
	if rh.state.Replaying() {
		return nil
	}

	return rh.handler.Handle(ctx, r)
}

func (rh *replayHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &replayHandler{rh.state, rh.handler.WithAttrs(attrs)}
}

func (rh *replayHandler) WithGroup(name string) slog.Handler {
	return &replayHandler{rh.state, rh.handler.WithGroup(name)}
}

var _ slog.Handler = (*replayHandler)(nil)

func NewReplayLogger(state *WfState, logger *slog.Logger) *slog.Logger {
	return slog.New(&replayHandler{state, logger.Handler()})
}
