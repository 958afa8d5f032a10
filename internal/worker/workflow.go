package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/notifyhub/prepflow/backend"
	"github.com/notifyhub/prepflow/backend/metrics"
	"github.com/notifyhub/prepflow/internal/metrickeys"
	"github.com/notifyhub/prepflow/log"
	"github.com/notifyhub/prepflow/registry"
	"github.com/notifyhub/prepflow/workflow/executor"
	"github.com/notifyhub/prepflow/workflow/executor/cache"
)

type WorkflowWorkerOptions struct {
	WorkerOptions

	WorkflowExecutorCache     executor.ExecutorCache
	WorkflowExecutorCacheSize int
	WorkflowExecutorCacheTTL  time.Duration
}

func NewWorkflowWorker(
	b backend.Backend,
	registry *registry.Registry,
	clock clock.Clock,
	options WorkflowWorkerOptions,
) *Worker[backend.WorkflowTask, workflowTaskResult] {
	if options.WorkflowExecutorCache == nil {
		options.WorkflowExecutorCache = cache.NewWorkflowExecutorLRUCache(b.Metrics(), options.WorkflowExecutorCacheSize, options.WorkflowExecutorCacheTTL)
	}

	tw := &WorkflowTaskWorker{
		backend:  b,
		registry: registry,
		cache:    options.WorkflowExecutorCache,
		clock:    clock,
		logger:   b.Options().Logger,
	}

	return NewWorker[backend.WorkflowTask, workflowTaskResult](b, tw, clock, &options.WorkerOptions)
}

type WorkflowTaskWorker struct {
	backend  backend.Backend
	registry *registry.Registry
	cache    executor.ExecutorCache
	clock    clock.Clock
	logger   *slog.Logger
}

type workflowTaskResult struct {
	executor executor.WorkflowExecutor
	result   *executor.ExecutionResult
}

func (wtw *WorkflowTaskWorker) Start(ctx context.Context) error {
	go wtw.cache.StartEviction(ctx)

	return nil
}

func (wtw *WorkflowTaskWorker) Get(ctx context.Context) (*backend.WorkflowTask, error) {
	return wtw.backend.GetWorkflowTask(ctx)
}

func (wtw *WorkflowTaskWorker) Extend(ctx context.Context, t *backend.WorkflowTask) error {
	return wtw.backend.ExtendWorkflowTask(ctx, t)
}

func (wtw *WorkflowTaskWorker) Execute(ctx context.Context, t *backend.WorkflowTask) (*workflowTaskResult, error) {
	logger := wtw.logger.With(
		log.TaskIDKey, t.ID,
		log.InstanceIDKey, t.WorkflowInstance.InstanceID,
	)

	// Record how long this task was in the queue
	if len(t.NewEvents) > 0 {
		firstEvent := t.NewEvents[0]
		timeInQueue := wtw.clock.Since(firstEvent.Timestamp)
		wtw.backend.Metrics().Distribution(metrickeys.WorkflowTaskDelay, metrics.Tags{}, float64(timeInQueue/time.Millisecond))
	}

	e, err := wtw.getExecutor(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("getting workflow task executor: %w", err)
	}

	start := wtw.clock.Now()
	result, err := e.ExecuteTask(ctx, t)
	wtw.backend.Metrics().Timing(metrickeys.WorkflowTaskProcessed, metrics.Tags{}, wtw.clock.Since(start))

	if err != nil {
		logger.ErrorContext(ctx, "executing workflow task", "error", err)

		// The executor state might not match the history anymore
		if err := wtw.cache.Evict(ctx, t.WorkflowInstance); err != nil {
			logger.ErrorContext(ctx, "could not evict workflow executor from cache", "error", err)
		}

		return nil, fmt.Errorf("executing workflow task: %w", err)
	}

	return &workflowTaskResult{executor: e, result: result}, nil
}

func (wtw *WorkflowTaskWorker) Complete(ctx context.Context, r *workflowTaskResult, t *backend.WorkflowTask) error {
	res := r.result

	if err := wtw.backend.CompleteWorkflowTask(
		ctx, t, res.State, res.Executed, res.ActivityEvents, res.TimerEvents, res.WorkflowEvents); err != nil {
		// Local history already contains the executed events, start over on the next task
		if err := wtw.cache.Evict(ctx, t.WorkflowInstance); err != nil {
			wtw.logger.ErrorContext(ctx, "could not evict workflow executor from cache", "error", err)
		}

		return fmt.Errorf("completing workflow task: %w", err)
	}

	if res.State.Terminal() {
		wtw.backend.Metrics().Counter(metrickeys.WorkflowInstanceFinished, metrics.Tags{
			metrickeys.SubWorkflow: fmt.Sprint(t.WorkflowInstance.SubWorkflow()),
			metrickeys.State:       res.State.String(),
		}, 1)

		return wtw.cache.Evict(ctx, t.WorkflowInstance)
	}

	return wtw.cache.Store(ctx, t.WorkflowInstance, r.executor)
}

func (wtw *WorkflowTaskWorker) getExecutor(ctx context.Context, t *backend.WorkflowTask) (executor.WorkflowExecutor, error) {
	e, ok, err := wtw.cache.Get(ctx, t.WorkflowInstance)
	if err != nil {
		wtw.logger.ErrorContext(ctx, "could not get cached workflow task executor", "error", err)
	}

	if !ok {
		e = executor.NewExecutor(
			wtw.logger,
			wtw.backend.Tracer(),
			wtw.registry,
			wtw.backend.Options().Converter,
			wtw.backend,
			t.WorkflowInstance,
			wtw.clock,
		)
	}

	return e, nil
}
