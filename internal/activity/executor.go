package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/notifyhub/prepflow/backend"
	"github.com/notifyhub/prepflow/backend/converter"
	"github.com/notifyhub/prepflow/backend/history"
	"github.com/notifyhub/prepflow/backend/payload"
	"github.com/notifyhub/prepflow/internal/args"
	"github.com/notifyhub/prepflow/internal/tracing"
	"github.com/notifyhub/prepflow/internal/workflowerrors"
	"github.com/notifyhub/prepflow/log"
	"github.com/notifyhub/prepflow/registry"
	"github.com/notifyhub/prepflow/workflow"
)

// RetryOptions control how often an activity returning a transient error is retried
// before its failure is recorded.
type RetryOptions struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

var DefaultRetryOptions = RetryOptions{
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     5 * time.Second,
	MaxElapsedTime:  30 * time.Second,
}

type Executor struct {
	logger  *slog.Logger
	tracer  trace.Tracer
	cv      converter.Converter
	r       *registry.Registry
	clock   clock.Clock
	retries RetryOptions
}

func NewExecutor(logger *slog.Logger, tracer trace.Tracer, cv converter.Converter, r *registry.Registry, clock clock.Clock, retries RetryOptions) *Executor {
	return &Executor{
		logger:  logger,
		tracer:  tracer,
		cv:      cv,
		r:       r,
		clock:   clock,
		retries: retries,
	}
}

// ExecuteActivity runs the scheduled activity. Transient errors are retried locally with
// exponential backoff, any other error is returned right away.
func (e *Executor) ExecuteActivity(ctx context.Context, task *backend.ActivityTask) (payload.Payload, error) {
	a := task.Event.Attributes.(*history.ActivityScheduledAttributes)

	activity, err := e.r.GetActivity(a.Name)
	if err != nil {
		return nil, err
	}

	activityFn := reflect.ValueOf(activity)
	if activityFn.Type().Kind() != reflect.Func {
		return nil, errors.New("activity not a function")
	}

	ctx, span := e.tracer.Start(ctx, "ActivityTaskExecution", trace.WithAttributes(
		attribute.String(tracing.ActivityName, a.Name),
		attribute.String(tracing.WorkflowInstanceID, task.WorkflowInstance.InstanceID),
		attribute.String(tracing.ActivityTaskID, task.ID),
		attribute.Int64(tracing.ScheduleEventID, task.Event.ScheduleEventID),
	))
	defer span.End()

	logger := e.logger.With(log.ActivityNameKey, a.Name)

	b := &backoff.ExponentialBackOff{
		InitialInterval:     e.retries.InitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         e.retries.MaxInterval,
		MaxElapsedTime:      e.retries.MaxElapsedTime,
		Stop:                backoff.Stop,
		Clock:               e.clock,
	}
	b.Reset()

	result, err := backoff.RetryNotifyWithData(func() (payload.Payload, error) {
		r, err := e.invoke(ctx, activityFn, task, a)
		if err != nil && !workflowerrors.IsTransient(err) {
			return nil, backoff.Permanent(err)
		}

		return r, err
	}, backoff.WithContext(b, ctx), func(err error, d time.Duration) {
		logger.WarnContext(ctx, "Transient activity error, retrying", "error", err, log.DurationKey, d.Milliseconds())
	})

	return result, tracing.WithSpanError(span, err)
}

func (e *Executor) invoke(ctx context.Context, activityFn reflect.Value, task *backend.ActivityTask, a *history.ActivityScheduledAttributes) (result payload.Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = workflowerrors.NewPanicError(r)
		}
	}()

	fnArgs, addContext, err := args.InputsToArgs(e.cv, activityFn, a.Inputs)
	if err != nil {
		return nil, fmt.Errorf("converting activity inputs: %w", err)
	}

	as := NewActivityState(task.Event.ID, a.Attempt, task.WorkflowInstance, e.logger)
	activityCtx := WithActivityState(ctx, as)

	if addContext {
		fnArgs = append([]reflect.Value{reflect.ValueOf(activityCtx)}, fnArgs...)
	}

	r := activityFn.Call(fnArgs)

	if len(r) < 1 || len(r) > 2 {
		return nil, errors.New("activity has to return either (error) or (<result>, error)")
	}

	if len(r) > 1 {
		var err error
		result, err = e.cv.To(r[0].Interface())
		if err != nil {
			return nil, fmt.Errorf("converting activity result: %w", err)
		}
	}

	errResult := r[len(r)-1]
	if errResult.IsNil() {
		return result, nil
	}

	errInterface, ok := errResult.Interface().(error)
	if !ok {
		return nil, fmt.Errorf("activity error result does not satisfy error interface (%T): %v", errResult, errResult)
	}

	return result, errInterface
}

// ExecuteFailureHandler runs the failure handler registered for a failed workflow. Its
// error is returned for logging only.
func (e *Executor) ExecuteFailureHandler(ctx context.Context, task *backend.ActivityTask) (err error) {
	a := task.Event.Attributes.(*history.FailureHandlerScheduledAttributes)

	handler, err := e.r.GetFailureHandler(a.Name)
	if err != nil {
		return err
	}

	if handler == nil {
		return fmt.Errorf("workflow %s has no failure handler", a.Name)
	}

	ctx, span := e.tracer.Start(ctx, "FailureHandler", trace.WithAttributes(
		attribute.String(tracing.WorkflowName, a.Name),
		attribute.String(tracing.WorkflowInstanceID, task.WorkflowInstance.InstanceID),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = workflowerrors.NewPanicError(r)
		}

		_ = tracing.WithSpanError(span, err)
	}()

	as := NewActivityState(task.Event.ID, 1, task.WorkflowInstance, e.logger)
	ctx = WithActivityState(ctx, as)

	failure := workflow.NewFailure(task.WorkflowInstance, a.Name, a.Inputs, workflowerrors.ToError(a.Error), e.cv)

	return handler(ctx, failure)
}
