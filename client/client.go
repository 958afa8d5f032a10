package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/notifyhub/prepflow/backend"
	"github.com/notifyhub/prepflow/backend/history"
	"github.com/notifyhub/prepflow/backend/metrics"
	"github.com/notifyhub/prepflow/core"
	a "github.com/notifyhub/prepflow/internal/args"
	"github.com/notifyhub/prepflow/internal/fn"
	"github.com/notifyhub/prepflow/internal/metrickeys"
	"github.com/notifyhub/prepflow/internal/workflowerrors"
	"github.com/notifyhub/prepflow/log"
	"github.com/notifyhub/prepflow/workflow"
)

var ErrWorkflowTimeout = errors.New("workflow did not finish in specified timeout")

type WorkflowInstanceOptions struct {
	// InstanceID of the new instance. Submitting the same id twice fails with
	// backend.ErrInstanceAlreadyExists.
	InstanceID string
}

type Client struct {
	backend backend.Backend
	clock   clock.Clock
}

func New(b backend.Backend) *Client {
	return &Client{
		backend: b,
		clock:   clock.New(),
	}
}

// CreateWorkflowInstance creates a new workflow instance of the given workflow. It returns
// as soon as the instance and its start event are stored.
func (c *Client) CreateWorkflowInstance(ctx context.Context, options WorkflowInstanceOptions, wf workflow.Workflow, args ...any) (*core.WorkflowInstance, error) {
	if options.InstanceID == "" {
		return nil, errors.New("instance id is required")
	}

	var workflowName string

	if name, ok := wf.(string); ok {
		workflowName = name
	} else {
		workflowName = fn.Name(wf)

		// Check arguments if actual workflow function given here
		if !a.ParamsMatch(wf, args...) {
			return nil, fmt.Errorf("mismatched argument count for workflow %s", workflowName)
		}
	}

	inputs, err := a.ArgsToInputs(c.backend.Options().Converter, args...)
	if err != nil {
		return nil, fmt.Errorf("converting arguments: %w", err)
	}

	wfi := core.NewWorkflowInstance(options.InstanceID, uuid.NewString())

	ctx, span := c.backend.Tracer().Start(ctx, fmt.Sprintf("CreateWorkflowInstance: %s", workflowName), trace.WithAttributes(
		attribute.String(log.InstanceIDKey, wfi.InstanceID),
		attribute.String(log.WorkflowNameKey, workflowName),
	))
	defer span.End()

	startedEvent := history.NewPendingEvent(
		c.clock.Now(),
		history.EventType_WorkflowExecutionStarted,
		&history.ExecutionStartedAttributes{
			Name:   workflowName,
			Inputs: inputs,
		})

	if err := c.backend.CreateWorkflowInstance(ctx, wfi, startedEvent); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("creating workflow instance: %w", err)
	}

	c.backend.Options().Logger.Debug(
		"Created workflow instance",
		log.InstanceIDKey, wfi.InstanceID,
		log.ExecutionIDKey, wfi.ExecutionID,
		log.WorkflowNameKey, workflowName,
	)

	c.backend.Metrics().Counter(metrickeys.WorkflowInstanceCreated, metrics.Tags{
		metrickeys.WorkflowName: workflowName,
	}, 1)

	return wfi, nil
}

// CancelWorkflowInstance cancels a running workflow instance and its running sub-workflows.
func (c *Client) CancelWorkflowInstance(ctx context.Context, instance *core.WorkflowInstance) error {
	ctx, span := c.backend.Tracer().Start(ctx, "CancelWorkflowInstance", trace.WithAttributes(
		attribute.String(log.InstanceIDKey, instance.InstanceID),
	))
	defer span.End()

	cancelEvent := history.NewPendingEvent(
		c.clock.Now(),
		history.EventType_WorkflowExecutionCanceled,
		&history.ExecutionCanceledAttributes{},
	)

	return c.backend.CancelWorkflowInstance(ctx, instance, cancelEvent)
}

func (c *Client) GetWorkflowInstanceState(ctx context.Context, instance *core.WorkflowInstance) (core.WorkflowInstanceState, error) {
	return c.backend.GetWorkflowInstanceState(ctx, instance)
}

// WaitForWorkflowInstance waits for the given workflow instance to reach a terminal state or
// until the given timeout has expired.
func (c *Client) WaitForWorkflowInstance(ctx context.Context, instance *core.WorkflowInstance, timeout time.Duration) (core.WorkflowInstanceState, error) {
	if timeout == 0 {
		timeout = time.Second * 20
	}

	ctx, span := c.backend.Tracer().Start(ctx, "WaitForWorkflowInstance", trace.WithAttributes(
		attribute.String(log.InstanceIDKey, instance.InstanceID),
	))
	defer span.End()

	b := backoff.ExponentialBackOff{
		InitialInterval:     time.Millisecond * 1,
		MaxInterval:         time.Second * 1,
		Multiplier:          1.5,
		RandomizationFactor: 0.5,
		MaxElapsedTime:      timeout,
		Stop:                backoff.Stop,
		Clock:               c.clock,
	}
	b.Reset()

	ticker := backoff.NewTicker(backoff.WithContext(&b, ctx))
	defer ticker.Stop()

	for range ticker.C {
		s, err := c.backend.GetWorkflowInstanceState(ctx, instance)
		if err != nil {
			return s, fmt.Errorf("getting workflow state: %w", err)
		}

		if s.Terminal() {
			return s, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return core.WorkflowInstanceStateRunning, err
	}

	return core.WorkflowInstanceStateRunning, ErrWorkflowTimeout
}

// GetWorkflowResult waits for the workflow instance to finish and returns its result. If the
// instance failed, the recorded error is returned.
func GetWorkflowResult[T any](ctx context.Context, c *Client, instance *core.WorkflowInstance, timeout time.Duration) (T, error) {
	var z T

	b := c.backend

	ctx, span := b.Tracer().Start(ctx, "GetWorkflowResult", trace.WithAttributes(
		attribute.String(log.InstanceIDKey, instance.InstanceID),
	))
	defer span.End()

	if _, err := c.WaitForWorkflowInstance(ctx, instance, timeout); err != nil {
		return z, fmt.Errorf("workflow did not finish in time: %w", err)
	}

	h, err := b.GetWorkflowInstanceHistory(ctx, instance, nil)
	if err != nil {
		return z, fmt.Errorf("getting workflow history: %w", err)
	}

	// The finished event is the last event of a completed history
	for i := len(h) - 1; i >= 0; i-- {
		event := h[i]
		if event.Type != history.EventType_WorkflowExecutionFinished {
			continue
		}

		a := event.Attributes.(*history.ExecutionCompletedAttributes)
		if a.Error != nil {
			return z, workflowerrors.ToError(a.Error)
		}

		if len(a.Result) == 0 {
			return z, nil
		}

		var r T
		if err := b.Options().Converter.From(a.Result, &r); err != nil {
			return z, fmt.Errorf("converting result: %w", err)
		}

		return r, nil
	}

	return z, errors.New("workflow finished, but could not find result event")
}
