package worker

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/notifyhub/prepflow/backend"
	"github.com/notifyhub/prepflow/internal/activity"
	internal "github.com/notifyhub/prepflow/internal/worker"
	"github.com/notifyhub/prepflow/registry"
	"github.com/notifyhub/prepflow/workflow"
)

type Worker struct {
	backend backend.Backend

	registry *registry.Registry

	workers []worker
}

type worker interface {
	Start(context.Context) error
	WaitForCompletion() error
}

// New creates a worker that processes workflows and activities.
func New(backend backend.Backend, options *Options) *Worker {
	if options == nil {
		options = &DefaultOptions
	}

	registry := registry.New()

	workflowWorker := newWorkflowWorker(backend, registry, &options.WorkflowWorkerOptions)
	activityWorker := newActivityWorker(backend, registry, &options.ActivityWorkerOptions)

	return newWorker(backend, registry, []worker{workflowWorker, activityWorker})
}

// NewWorkflowWorker creates a worker that only processes workflows.
func NewWorkflowWorker(backend backend.Backend, options *WorkflowWorkerOptions) *Worker {
	registry := registry.New()

	return newWorker(backend, registry, []worker{newWorkflowWorker(backend, registry, options)})
}

// NewActivityWorker creates a worker that only processes activities and failure handlers.
func NewActivityWorker(backend backend.Backend, options *ActivityWorkerOptions) *Worker {
	registry := registry.New()

	return newWorker(backend, registry, []worker{newActivityWorker(backend, registry, options)})
}

func newWorker(backend backend.Backend, registry *registry.Registry, workers []worker) *Worker {
	return &Worker{
		backend:  backend,
		workers:  workers,
		registry: registry,
	}
}

func newActivityWorker(backend backend.Backend, registry *registry.Registry, options *ActivityWorkerOptions) worker {
	if options == nil {
		options = &DefaultOptions.ActivityWorkerOptions
	}

	retries := options.TransientRetries
	if retries == (activity.RetryOptions{}) {
		retries = activity.DefaultRetryOptions
	}

	return internal.NewActivityWorker(backend, registry, clock.New(), internal.ActivityWorkerOptions{
		WorkerOptions: internal.WorkerOptions{
			Pollers:           options.ActivityPollers,
			PollingInterval:   options.ActivityPollingInterval,
			MaxParallelTasks:  options.MaxParallelActivityTasks,
			HeartbeatInterval: options.ActivityHeartbeatInterval,
			CompleteTimeout:   backend.Options().ActivityLockTimeout,
		},
		Retries: retries,
	})
}

func newWorkflowWorker(backend backend.Backend, registry *registry.Registry, options *WorkflowWorkerOptions) worker {
	if options == nil {
		options = &DefaultOptions.WorkflowWorkerOptions
	}

	return internal.NewWorkflowWorker(backend, registry, clock.New(), internal.WorkflowWorkerOptions{
		WorkerOptions: internal.WorkerOptions{
			Pollers:           options.WorkflowPollers,
			PollingInterval:   options.WorkflowPollingInterval,
			MaxParallelTasks:  options.MaxParallelWorkflowTasks,
			HeartbeatInterval: options.WorkflowHeartbeatInterval,
			CompleteTimeout:   backend.Options().WorkflowLockTimeout,
		},
		WorkflowExecutorCache:     options.WorkflowExecutorCache,
		WorkflowExecutorCacheSize: options.WorkflowExecutorCacheSize,
		WorkflowExecutorCacheTTL:  options.WorkflowExecutorCacheTTL,
	})
}

// Start starts the worker.
//
// To stop the worker, cancel the context passed to Start. To wait for completion of the active
// tasks, call `WaitForCompletion`.
func (w *Worker) Start(ctx context.Context) error {
	for _, worker := range w.workers {
		if err := worker.Start(ctx); err != nil {
			return fmt.Errorf("starting worker: %w", err)
		}
	}

	return nil
}

// WaitForCompletion waits for all active tasks to complete.
func (w *Worker) WaitForCompletion() error {
	for _, worker := range w.workers {
		if err := worker.WaitForCompletion(); err != nil {
			return fmt.Errorf("waiting for worker completion: %w", err)
		}
	}

	return nil
}

// RegisterWorkflow registers a workflow with the worker's registry. Use
// registry.WithFailureHandler to bind a failure handler.
func (w *Worker) RegisterWorkflow(wf workflow.Workflow, opts ...registry.RegisterOption) error {
	return w.registry.RegisterWorkflow(wf, opts...)
}

// RegisterActivity registers an activity with the worker's registry.
func (w *Worker) RegisterActivity(a workflow.Activity, opts ...registry.RegisterOption) error {
	return w.registry.RegisterActivity(a, opts...)
}
