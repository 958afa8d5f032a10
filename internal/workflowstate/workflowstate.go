package workflowstate

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/notifyhub/prepflow/backend/converter"
	"github.com/notifyhub/prepflow/backend/payload"
	"github.com/notifyhub/prepflow/core"
	"github.com/notifyhub/prepflow/internal/command"
	"github.com/notifyhub/prepflow/internal/sync"
)

type key int

var workflowCtxKey key

// DecodingSettable resolves a pending future from a recorded payload or error.
type DecodingSettable func(v payload.Payload, err error) error

func AsDecodingSettable[T any](cv converter.Converter, name string, f sync.SettableFuture[T]) DecodingSettable {
	return func(v payload.Payload, err error) error {
		var t T

		if v != nil && err == nil {
			if err := cv.From(v, &t); err != nil {
				err = fmt.Errorf("failed to decode result of %s: %w", name, err)
				f.Set(t, err)
				return err
			}
		}

		f.Set(t, err)

		return nil
	}
}

type pendingFuture struct {
	name string
	f    DecodingSettable
}

// WfState is the state of a single workflow execution pass: the schedule event id
// counter, the commands issued so far and the futures waiting for their result.
type WfState struct {
	instance        *core.WorkflowInstance
	scheduleEventID int64
	commands        []command.Command
	pendingFutures  map[int64]*pendingFuture
	replaying       bool

	converter converter.Converter
	logger    *slog.Logger
	clock     clock.Clock
	time      time.Time
}

func NewWorkflowState(instance *core.WorkflowInstance, cv converter.Converter, logger *slog.Logger, clock clock.Clock) *WfState {
	state := &WfState{
		instance:        instance,
		commands:        []command.Command{},
		scheduleEventID: 1,
		pendingFutures:  map[int64]*pendingFuture{},
		converter:       cv,
		clock:           clock,
	}

	state.logger = NewReplayLogger(state, logger)

	return state
}

func WorkflowState(ctx sync.Context) *WfState {
	return ctx.Value(workflowCtxKey).(*WfState)
}

func WithWorkflowState(ctx sync.Context, wfState *WfState) sync.Context {
	return sync.WithValue(ctx, workflowCtxKey, wfState)
}

func (wf *WfState) GetNextScheduleEventID() int64 {
	scheduleEventID := wf.scheduleEventID
	wf.scheduleEventID++
	return scheduleEventID
}

func (wf *WfState) TrackFuture(scheduleEventID int64, name string, f DecodingSettable) {
	wf.pendingFutures[scheduleEventID] = &pendingFuture{name: name, f: f}
}

func (wf *WfState) FutureByScheduleEventID(scheduleEventID int64) (DecodingSettable, bool) {
	pf, ok := wf.pendingFutures[scheduleEventID]
	if !ok {
		return nil, false
	}

	return pf.f, true
}

func (wf *WfState) RemoveFuture(scheduleEventID int64) {
	delete(wf.pendingFutures, scheduleEventID)
}

// PendingFutureNames returns the names of futures still waiting, keyed by schedule event id.
func (wf *WfState) PendingFutureNames() map[int64]string {
	names := make(map[int64]string, len(wf.pendingFutures))
	for id, pf := range wf.pendingFutures {
		names[id] = pf.name
	}

	return names
}

func (wf *WfState) Commands() []command.Command {
	return wf.commands
}

func (wf *WfState) AddCommand(cmd command.Command) {
	wf.commands = append(wf.commands, cmd)
}

func (wf *WfState) CommandByScheduleEventID(scheduleEventID int64) command.Command {
	for _, c := range wf.commands {
		if c.ID() == scheduleEventID {
			return c
		}
	}

	return nil
}

func (wf *WfState) SetReplaying(replaying bool) {
	wf.replaying = replaying
}

func (wf *WfState) Replaying() bool {
	return wf.replaying
}

func (wf *WfState) SetTime(t time.Time) {
	wf.time = t
}

func (wf *WfState) Time() time.Time {
	return wf.time
}

func (wf *WfState) Instance() *core.WorkflowInstance {
	return wf.instance
}

func (wf *WfState) Converter() converter.Converter {
	return wf.converter
}

func (wf *WfState) Logger() *slog.Logger {
	return wf.logger
}

func (wf *WfState) Clock() clock.Clock {
	return wf.clock
}
