package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/notifyhub/prepflow/backend"
	"github.com/notifyhub/prepflow/backend/converter"
	"github.com/notifyhub/prepflow/backend/history"
	"github.com/notifyhub/prepflow/backend/payload"
	"github.com/notifyhub/prepflow/core"
	"github.com/notifyhub/prepflow/internal/command"
	"github.com/notifyhub/prepflow/internal/sync"
	"github.com/notifyhub/prepflow/internal/tracing"
	"github.com/notifyhub/prepflow/internal/workflowerrors"
	"github.com/notifyhub/prepflow/internal/workflowstate"
	"github.com/notifyhub/prepflow/log"
	"github.com/notifyhub/prepflow/registry"
	wf "github.com/notifyhub/prepflow/workflow"
)

type ExecutionResult struct {
	// New state of the workflow instance
	State core.WorkflowInstanceState

	// Events executed during the task execution, with sequence ids assigned
	Executed []*history.Event

	// Activities and failure handlers that were scheduled
	ActivityEvents []*history.Event

	// Timers that were scheduled
	TimerEvents []*history.Event

	// Events for other workflow instances
	WorkflowEvents []*history.WorkflowEvent
}

type WorkflowHistoryProvider interface {
	GetWorkflowInstanceHistory(ctx context.Context, instance *core.WorkflowInstance, lastSequenceID *int64) ([]*history.Event, error)
}

type WorkflowExecutor interface {
	ExecuteTask(ctx context.Context, t *backend.WorkflowTask) (*ExecutionResult, error)

	Close()
}

type executor struct {
	registry          *registry.Registry
	historyProvider   WorkflowHistoryProvider
	workflow          *workflow
	workflowName      string
	workflowInputs    []payload.Payload
	workflowState     *workflowstate.WfState
	workflowCtx       sync.Context
	workflowCtxCancel sync.CancelFunc
	history           *history.Log
	cv                converter.Converter
	clock             clock.Clock
	logger            *slog.Logger
	tracer            trace.Tracer

	// failure is the error the instance is failing with, set once the failure path started
	failure    error
	failureCmd *command.ScheduleFailureHandlerCommand

	// completed is set once a CompleteWorkflowCommand was issued
	completed bool

	// aborted is the engine error that stopped workflow code from running
	aborted error
}

func NewExecutor(
	logger *slog.Logger,
	tracer trace.Tracer,
	r *registry.Registry,
	cv converter.Converter,
	historyProvider WorkflowHistoryProvider,
	instance *core.WorkflowInstance,
	clock clock.Clock,
) WorkflowExecutor {
	logger = logger.With(
		log.InstanceIDKey, instance.InstanceID,
		log.ExecutionIDKey, instance.ExecutionID,
	)

	s := workflowstate.NewWorkflowState(instance, cv, logger, clock)

	wfCtx := sync.Background()
	wfCtx = workflowstate.WithWorkflowState(wfCtx, s)
	wfCtx, cancel := sync.WithCancel(wfCtx)

	h, _ := history.NewLog()

	return &executor{
		registry:          r,
		historyProvider:   historyProvider,
		workflowState:     s,
		workflowCtx:       wfCtx,
		workflowCtxCancel: cancel,
		history:           h,
		cv:                cv,
		clock:             clock,
		logger:            logger,
		tracer:            tracer,
	}
}

func (e *executor) ExecuteTask(ctx context.Context, t *backend.WorkflowTask) (*ExecutionResult, error) {
	logger := e.logger.With(
		log.TaskIDKey, t.ID,
	)

	logger.Debug("Executing workflow task",
		log.TaskLastSequenceIDKey, t.LastSequenceID,
		log.NewEventsKey, len(t.NewEvents))

	if t.WorkflowInstanceState.Terminal() {
		// Events can still arrive for a finished instance, e.g. late activity results
		logger.Debug("Received workflow task for finished workflow instance, discarding events")

		return &ExecutionResult{
			State: t.WorkflowInstanceState,
		}, nil
	}

	ctx, span := e.tracer.Start(ctx, "WorkflowTask", trace.WithAttributes(
		attribute.String(tracing.WorkflowInstanceID, t.WorkflowInstance.InstanceID),
		attribute.String(tracing.WorkflowTaskID, t.ID),
		attribute.Int(tracing.WorkflowTaskEvents, len(t.NewEvents)),
	))
	defer span.End()

	if err := e.catchupOnHistory(ctx, t, logger); err != nil {
		return nil, tracing.WithSpanError(span, err)
	}

	if e.workflowName != "" {
		span.SetAttributes(attribute.String(tracing.WorkflowName, e.workflowName))
	}

	// Always add a WorkflowTaskStarted event before executing new events
	toExecute := []*history.Event{history.NewPendingEvent(e.clock.Now(), history.EventType_WorkflowTaskStarted, &history.WorkflowTaskStartedAttributes{})}
	toExecute = append(toExecute, t.NewEvents...)

	e.workflowState.SetReplaying(false)

	for _, event := range toExecute {
		if err := e.executeEvent(event); err != nil {
			logger.Error("Error while executing new event", "error", err, log.EventTypeKey, event.Type)

			e.abort(err)
		}
	}

	if e.aborted != nil {
		_ = tracing.WithSpanError(span, e.aborted)
	}

	executedEvents := toExecute

	// Process any commands added while executing events
	state := core.WorkflowInstanceStateRunning
	activityEvents := make([]*history.Event, 0)
	timerEvents := make([]*history.Event, 0)
	workflowEvents := make([]*history.WorkflowEvent, 0)

	for _, c := range e.workflowState.Commands() {
		if c.State() != command.CommandState_Pending {
			continue
		}

		if e.aborted != nil && !finishing(c) {
			// Commands issued before the engine error are not trusted
			continue
		}

		r := c.Execute(e.clock)
		if r == nil {
			continue
		}

		if r.State != nil {
			state = *r.State
		}

		// Events from commands don't have to be executed again
		executedEvents = append(executedEvents, r.Events...)
		activityEvents = append(activityEvents, r.ActivityEvents...)
		timerEvents = append(timerEvents, r.TimerEvents...)
		workflowEvents = append(workflowEvents, r.WorkflowEvents...)
	}

	next := e.history.LastSequenceID() + 1
	for i, event := range executedEvents {
		event.SequenceID = next + int64(i)
	}

	if err := e.history.Append(executedEvents...); err != nil {
		return nil, tracing.WithSpanError(span, fmt.Errorf("recording executed events: %w", err))
	}

	logger.Debug("Finished workflow task",
		log.ExecutedEventsKey, len(executedEvents),
		log.TaskLastSequenceIDKey, e.history.LastSequenceID(),
		log.WorkflowCompletedKey, state.Terminal(),
	)

	return &ExecutionResult{
		State:          state,
		Executed:       executedEvents,
		ActivityEvents: activityEvents,
		TimerEvents:    timerEvents,
		WorkflowEvents: workflowEvents,
	}, nil
}

func (e *executor) catchupOnHistory(ctx context.Context, t *backend.WorkflowTask, logger *slog.Logger) error {
	lastSequenceID := e.history.LastSequenceID()

	if t.LastSequenceID < lastSequenceID {
		return errors.New("task has older history than current state, cannot execute")
	}

	if t.LastSequenceID == lastSequenceID {
		return nil
	}

	logger.Debug("Task has newer history than current state, fetching and replaying history",
		log.TaskLastSequenceIDKey, t.LastSequenceID,
		log.LocalSequenceIDKey, lastSequenceID)

	h, err := e.historyProvider.GetWorkflowInstanceHistory(ctx, t.WorkflowInstance, &lastSequenceID)
	if err != nil {
		return fmt.Errorf("getting workflow history: %w", err)
	}

	if err := e.history.Append(h...); err != nil {
		return fmt.Errorf("appending workflow history: %w", err)
	}

	if e.history.LastSequenceID() != t.LastSequenceID {
		logger.Error("After fetching history, task still has newer history than current state",
			log.TaskLastSequenceIDKey, t.LastSequenceID,
			log.LocalSequenceIDKey, e.history.LastSequenceID())

		return errors.New("even after fetching history executor state does not match task")
	}

	e.workflowState.SetReplaying(true)
	defer e.workflowState.SetReplaying(false)

	for event := range e.history.ReplayFrom(lastSequenceID) {
		if err := e.executeEvent(event); err != nil {
			logger.Error("Error while replaying history", "error", err, log.SeqIDKey, event.SequenceID)

			// The remaining history is still consulted by the failure path
			e.abort(err)
			break
		}
	}

	return nil
}

func (e *executor) Close() {
	if e.workflow != nil {
		e.logger.Debug("Stopping workflow executor")

		// End workflow if running to prevent leaking goroutines
		e.workflow.Close()
	}
}

func (e *executor) executeEvent(event *history.Event) error {
	e.logger.Debug("Executing event",
		log.EventIDKey, event.ID,
		log.SeqIDKey, event.SequenceID,
		log.EventTypeKey, event.Type,
		log.ScheduleEventIDKey, event.ScheduleEventID,
		log.IsReplayingKey, e.workflowState.Replaying(),
	)

	if e.aborted != nil {
		// Workflow code does not run anymore, only the failure path makes progress
		switch event.Type {
		case history.EventType_WorkflowTaskStarted:
			return e.handleWorkflowTaskStarted(event)
		case history.EventType_FailureHandlerScheduled:
			return e.handleFailureHandlerScheduled(event, event.Attributes.(*history.FailureHandlerScheduledAttributes))
		case history.EventType_FailureHandlerCompleted:
			return e.handleFailureHandlerCompleted(event, event.Attributes.(*history.FailureHandlerCompletedAttributes))
		default:
			return nil
		}
	}

	var err error

	switch event.Type {
	case history.EventType_WorkflowExecutionStarted:
		err = e.handleWorkflowExecutionStarted(event, event.Attributes.(*history.ExecutionStartedAttributes))

	case history.EventType_WorkflowExecutionFinished:
		err = e.handleWorkflowExecutionFinished()

	case history.EventType_WorkflowExecutionCanceled:
		err = e.handleWorkflowCanceled()

	case history.EventType_WorkflowTaskStarted:
		err = e.handleWorkflowTaskStarted(event)

	case history.EventType_ActivityScheduled:
		err = e.handleActivityScheduled(event, event.Attributes.(*history.ActivityScheduledAttributes))

	case history.EventType_ActivityFailed:
		err = e.handleActivityFailed(event, event.Attributes.(*history.ActivityFailedAttributes))

	case history.EventType_ActivityCompleted:
		err = e.handleActivityCompleted(event, event.Attributes.(*history.ActivityCompletedAttributes))

	case history.EventType_TimerScheduled:
		err = e.handleTimerScheduled(event)

	case history.EventType_TimerFired:
		err = e.handleTimerFired(event)

	case history.EventType_SubWorkflowScheduled:
		err = e.handleSubWorkflowScheduled(event, event.Attributes.(*history.SubWorkflowScheduledAttributes))

	case history.EventType_SubWorkflowFailed:
		err = e.handleSubWorkflowFailed(event, event.Attributes.(*history.SubWorkflowFailedAttributes))

	case history.EventType_SubWorkflowCompleted:
		err = e.handleSubWorkflowCompleted(event, event.Attributes.(*history.SubWorkflowCompletedAttributes))

	case history.EventType_FailureHandlerScheduled:
		err = e.handleFailureHandlerScheduled(event, event.Attributes.(*history.FailureHandlerScheduledAttributes))

	case history.EventType_FailureHandlerCompleted:
		err = e.handleFailureHandlerCompleted(event, event.Attributes.(*history.FailureHandlerCompletedAttributes))

	default:
		return fmt.Errorf("unknown event type: %v", event.Type)
	}

	if err != nil {
		return err
	}

	e.checkCompletion()

	return nil
}

func (e *executor) handleWorkflowExecutionStarted(event *history.Event, a *history.ExecutionStartedAttributes) error {
	e.workflowName = a.Name
	e.workflowInputs = a.Inputs

	wfFn, err := e.registry.GetWorkflow(a.Name)
	if err != nil {
		return fmt.Errorf("workflow %s not found: %w", a.Name, err)
	}

	e.workflow = newWorkflow(reflect.ValueOf(wfFn))

	return e.workflow.Execute(e.workflowCtx, a.Inputs)
}

func (e *executor) handleWorkflowExecutionFinished() error {
	for _, c := range e.workflowState.Commands() {
		if cwc, ok := c.(*command.CompleteWorkflowCommand); ok && cwc.State() == command.CommandState_Pending {
			cwc.Commit()
			cwc.Done()
		}
	}

	return nil
}

func (e *executor) handleWorkflowCanceled() error {
	e.workflowCtxCancel()

	// Resolve outstanding timers, nothing is going to wait for them anymore
	for _, c := range e.workflowState.Commands() {
		stc, ok := c.(*command.ScheduleTimerCommand)
		if !ok || !stc.Cancel() {
			continue
		}

		if f, ok := e.workflowState.FutureByScheduleEventID(stc.ID()); ok {
			if err := f(nil, sync.Canceled); err != nil {
				return fmt.Errorf("setting timer canceled result: %w", err)
			}

			e.workflowState.RemoveFuture(stc.ID())
		}
	}

	return e.continueWorkflow()
}

func (e *executor) handleWorkflowTaskStarted(event *history.Event) error {
	e.workflowState.SetTime(event.Timestamp)

	return nil
}

func (e *executor) handleActivityScheduled(event *history.Event, a *history.ActivityScheduledAttributes) error {
	c := e.workflowState.CommandByScheduleEventID(event.ScheduleEventID)
	if c == nil {
		return wf.NewHistoryConsistencyError("previous workflow execution scheduled activity %s (%d) which could not be found", a.Name, event.ScheduleEventID)
	}

	sac, ok := c.(*command.ScheduleActivityCommand)
	if !ok {
		return wf.NewHistoryConsistencyError("previous workflow execution scheduled an activity, not: %v", c.Type())
	}

	// Ensure the same activity was scheduled again
	if a.Name != sac.Name {
		return wf.NewHistoryConsistencyError("previous workflow execution scheduled different type of activity: %s, %s", a.Name, sac.Name)
	}

	if a.Attempt != sac.Attempt {
		return wf.NewHistoryConsistencyError("previous workflow execution scheduled attempt %d of activity %s, not %d", a.Attempt, a.Name, sac.Attempt)
	}

	if !inputsEqual(a.Inputs, sac.Inputs) {
		return wf.NewHistoryConsistencyError("previous workflow execution scheduled activity %s with different inputs", a.Name)
	}

	sac.Commit()

	return nil
}

func (e *executor) handleActivityCompleted(event *history.Event, a *history.ActivityCompletedAttributes) error {
	return e.resolveFuture(event, "activity completed", a.Result, nil)
}

func (e *executor) handleActivityFailed(event *history.Event, a *history.ActivityFailedAttributes) error {
	c := e.workflowState.CommandByScheduleEventID(event.ScheduleEventID)

	name := ""
	if sac, ok := c.(*command.ScheduleActivityCommand); ok {
		name = sac.Name
	}

	return e.resolveFuture(event, "activity failed", nil, &wf.ActivityError{
		Name: name,
		Err:  workflowerrors.ToError(a.Error),
	})
}

func (e *executor) handleTimerScheduled(event *history.Event) error {
	c := e.workflowState.CommandByScheduleEventID(event.ScheduleEventID)
	if c == nil {
		return wf.NewHistoryConsistencyError("previous workflow execution scheduled a timer (%d) which could not be found", event.ScheduleEventID)
	}

	if _, ok := c.(*command.ScheduleTimerCommand); !ok {
		return wf.NewHistoryConsistencyError("previous workflow execution scheduled a timer, not: %v", c.Type())
	}

	if c.State() == command.CommandState_Pending {
		c.Commit()
	}

	return nil
}

func (e *executor) handleTimerFired(event *history.Event) error {
	if c := e.workflowState.CommandByScheduleEventID(event.ScheduleEventID); c != nil && c.State() == command.CommandState_Canceled {
		// Timer was canceled, ignore
		return nil
	}

	return e.resolveFuture(event, "timer fired", nil, nil)
}

func (e *executor) handleSubWorkflowScheduled(event *history.Event, a *history.SubWorkflowScheduledAttributes) error {
	c := e.workflowState.CommandByScheduleEventID(event.ScheduleEventID)
	if c == nil {
		return wf.NewHistoryConsistencyError("previous workflow execution scheduled sub-workflow %s (%d) which could not be found", a.Name, event.ScheduleEventID)
	}

	sswc, ok := c.(*command.ScheduleSubWorkflowCommand)
	if !ok {
		return wf.NewHistoryConsistencyError("previous workflow execution scheduled a sub-workflow, not: %v", c.Type())
	}

	if a.Name != sswc.Name {
		return wf.NewHistoryConsistencyError("previous workflow execution scheduled different type of sub-workflow: %s, %s", a.Name, sswc.Name)
	}

	if !inputsEqual(a.Inputs, sswc.Inputs) {
		return wf.NewHistoryConsistencyError("previous workflow execution scheduled sub-workflow %s with different inputs", a.Name)
	}

	// Keep the instance that was originally started
	sswc.Instance = a.SubWorkflowInstance

	c.Commit()

	return nil
}

func (e *executor) handleSubWorkflowCompleted(event *history.Event, a *history.SubWorkflowCompletedAttributes) error {
	return e.resolveFuture(event, "sub-workflow completed", a.Result, nil)
}

func (e *executor) handleSubWorkflowFailed(event *history.Event, a *history.SubWorkflowFailedAttributes) error {
	return e.resolveFuture(event, "sub-workflow failed", nil, workflowerrors.ToError(a.Error))
}

func (e *executor) handleFailureHandlerScheduled(event *history.Event, a *history.FailureHandlerScheduledAttributes) error {
	c := e.failureCmd
	if c == nil || c.ID() != event.ScheduleEventID {
		return wf.NewHistoryConsistencyError("previous workflow execution scheduled the failure handler (%d) for %s which could not be found", event.ScheduleEventID, a.Name)
	}

	if c.State() == command.CommandState_Pending {
		c.Commit()
	}

	return nil
}

func (e *executor) handleFailureHandlerCompleted(event *history.Event, a *history.FailureHandlerCompletedAttributes) error {
	c := e.failureCmd
	if c == nil || c.ID() != event.ScheduleEventID {
		return wf.NewHistoryConsistencyError("failure handler (%d) completed but was never scheduled", event.ScheduleEventID)
	}

	if c.State() == command.CommandState_Done {
		// Already accounted for when the failure path started
		return nil
	}

	if a.Error != nil {
		e.logger.Debug("Failure handler returned an error", "error", a.Error.Error())
	}

	c.Done()

	e.complete(nil, e.failure)

	return nil
}

// resolveFuture hands the recorded result of a scheduled command to the future waiting
// for it and continues the workflow.
func (e *executor) resolveFuture(event *history.Event, kind string, result payload.Payload, resultErr error) error {
	f, ok := e.workflowState.FutureByScheduleEventID(event.ScheduleEventID)
	if !ok {
		if e.workflow != nil && e.workflow.Completed() {
			// Workflow code finished without waiting for this result
			e.logger.Debug("Ignoring result for completed workflow",
				log.EventTypeKey, event.Type,
				log.ScheduleEventIDKey, event.ScheduleEventID)

			return nil
		}

		return wf.NewHistoryConsistencyError("no pending future for %s event (%d)", kind, event.ScheduleEventID)
	}

	if err := f(result, resultErr); err != nil {
		return fmt.Errorf("setting %s result: %w", kind, err)
	}

	e.workflowState.RemoveFuture(event.ScheduleEventID)

	if c := e.workflowState.CommandByScheduleEventID(event.ScheduleEventID); c != nil {
		c.Done()
	}

	return e.continueWorkflow()
}

func (e *executor) continueWorkflow() error {
	if e.workflow == nil {
		return errors.New("workflow has not been started")
	}

	return e.workflow.Continue()
}

// checkCompletion starts the success or failure path once workflow code has returned.
func (e *executor) checkCompletion() {
	if e.workflow == nil || !e.workflow.Completed() || e.completed || e.failure != nil {
		return
	}

	if err := e.workflow.Error(); err != nil {
		e.fail(err)
		return
	}

	if e.workflowCtx.Err() != nil {
		// Returning nil does not undo a cancellation
		e.fail(sync.Canceled)
		return
	}

	e.complete(e.workflow.Result(), nil)
}

// abort stops workflow code after an engine error and fails the instance with it.
func (e *executor) abort(err error) {
	if e.aborted != nil {
		return
	}

	e.aborted = err

	if e.workflow != nil {
		e.workflow.Close()
	}

	e.fail(err)
}

// fail hands the instance to the failure handler registered for the workflow, or
// completes it as failed when there is none. The recorded history decides whether the
// handler was already scheduled or has already run.
func (e *executor) fail(err error) {
	if e.completed || e.failure != nil {
		return
	}

	e.failure = err

	var handler registry.FailureHandler
	if e.workflowName != "" {
		handler, _ = e.registry.GetFailureHandler(e.workflowName)
	}

	if handler == nil {
		e.complete(nil, err)
		return
	}

	scheduleEventID := e.workflowState.GetNextScheduleEventID()

	if scheduled, ok := e.history.Find(history.EventType_FailureHandlerScheduled); ok {
		cmd := command.NewScheduleFailureHandlerCommand(scheduled.ScheduleEventID, e.workflowName, e.workflowInputs, workflowerrors.FromError(err))
		cmd.Commit()
		e.workflowState.AddCommand(cmd)
		e.failureCmd = cmd

		if _, ok := e.history.Find(history.EventType_FailureHandlerCompleted); ok {
			cmd.Done()
			e.complete(nil, err)
		}

		return
	}

	e.logger.Debug("Scheduling failure handler", log.WorkflowNameKey, e.workflowName, "error", err)

	cmd := command.NewScheduleFailureHandlerCommand(scheduleEventID, e.workflowName, e.workflowInputs, workflowerrors.FromError(err))
	e.workflowState.AddCommand(cmd)
	e.failureCmd = cmd
}

func (e *executor) complete(result payload.Payload, wfErr error) {
	if e.completed {
		return
	}

	e.completed = true

	eventID := e.workflowState.GetNextScheduleEventID()

	cmd := command.NewCompleteWorkflowCommand(eventID, e.workflowState.Instance(), result, wfErr)
	e.workflowState.AddCommand(cmd)
}

func finishing(c command.Command) bool {
	switch c.(type) {
	case *command.ScheduleFailureHandlerCommand, *command.CompleteWorkflowCommand:
		return true
	}

	return false
}

func inputsEqual(a, b []payload.Payload) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}

	return true
}
