package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"

	"github.com/notifyhub/prepflow/backend"
)

type TaskWorker[Task, Result any] interface {
	Start(context.Context) error
	Get(context.Context) (*Task, error)
	Extend(context.Context, *Task) error
	Execute(context.Context, *Task) (*Result, error)
	Complete(context.Context, *Result, *Task) error
}

type WorkerOptions struct {
	Pollers int

	MaxParallelTasks int

	HeartbeatInterval time.Duration

	PollingInterval time.Duration

	// CompleteTimeout bounds how long recording the outcome of a task is retried
	CompleteTimeout time.Duration
}

// Worker polls tasks from the backend and executes them with bounded parallelism. Task
// specific behavior is provided by a TaskWorker.
type Worker[Task, TaskResult any] struct {
	options *WorkerOptions

	tw TaskWorker[Task, TaskResult]

	taskQueue *workQueue[Task]

	logger *slog.Logger

	clock clock.Clock

	pollersWg sync.WaitGroup

	dispatcherDone chan struct{}
}

func NewWorker[Task, TaskResult any](
	b backend.Backend, tw TaskWorker[Task, TaskResult], clock clock.Clock, options *WorkerOptions,
) *Worker[Task, TaskResult] {
	return &Worker[Task, TaskResult]{
		tw:             tw,
		options:        options,
		taskQueue:      newWorkQueue[Task](options.MaxParallelTasks),
		logger:         b.Options().Logger,
		clock:          clock,
		dispatcherDone: make(chan struct{}, 1),
	}
}

func (w *Worker[Task, TaskResult]) Start(ctx context.Context) error {
	if err := w.tw.Start(ctx); err != nil {
		return fmt.Errorf("starting task worker: %w", err)
	}

	pollers := max(w.options.Pollers, 1)

	w.pollersWg.Add(pollers)

	for range pollers {
		go w.poller(ctx)
	}

	go w.dispatcher()

	return nil
}

// WaitForCompletion waits for the pollers to stop and in-flight tasks to finish. The
// context passed to Start has to be canceled first.
func (w *Worker[Task, TaskResult]) WaitForCompletion() error {
	w.pollersWg.Wait()

	w.taskQueue.close()
	<-w.dispatcherDone

	return nil
}

func (w *Worker[Task, TaskResult]) poller(ctx context.Context) {
	defer w.pollersWg.Done()

	interval := w.options.PollingInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := w.taskQueue.reserve(ctx); err != nil {
			return
		}

		task, err := w.poll(ctx, 30*time.Second)
		if err != nil {
			w.logger.ErrorContext(ctx, "error polling task", "error", err)
		} else if task != nil {
			if err := w.taskQueue.add(ctx, task); err != nil {
				// Shutting down, the task lease expires and another worker picks it up
				w.taskQueue.release()
				return
			}

			continue // check for new tasks right away
		}

		w.taskQueue.release()

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker[Task, TaskResult]) dispatcher() {
	var wg sync.WaitGroup

	for t := range w.taskQueue.tasks {
		wg.Add(1)

		go func() {
			defer wg.Done()
			defer w.taskQueue.release()

			// Create new context to allow tasks to complete when root context is canceled
			taskCtx := context.Background()
			if err := w.handle(taskCtx, t); err != nil {
				w.logger.ErrorContext(taskCtx, "error handling task", "error", err)
			}
		}()
	}

	wg.Wait()

	w.dispatcherDone <- struct{}{}
}

func (w *Worker[Task, TaskResult]) handle(ctx context.Context, t *Task) error {
	if w.options.HeartbeatInterval > 0 {
		// Start heartbeat while processing task
		heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
		defer cancelHeartbeat()
		go w.heartbeatTask(heartbeatCtx, t)
	}

	result, err := w.tw.Execute(ctx, t)
	if err != nil {
		return fmt.Errorf("executing task: %w", err)
	}

	return w.complete(ctx, result, t)
}

// complete records the outcome of a task, retrying with backoff. A lost lease is final:
// another worker owns the task now.
func (w *Worker[Task, TaskResult]) complete(ctx context.Context, result *TaskResult, t *Task) error {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     50 * time.Millisecond,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         5 * time.Second,
		MaxElapsedTime:      w.options.CompleteTimeout,
		Stop:                backoff.Stop,
		Clock:               w.clock,
	}
	b.Reset()

	return backoff.RetryNotify(func() error {
		err := w.tw.Complete(ctx, result, t)
		if errors.Is(err, backend.ErrTaskLeaseLost) {
			return backoff.Permanent(err)
		}

		return err
	}, backoff.WithContext(b, ctx), func(err error, d time.Duration) {
		w.logger.WarnContext(ctx, "could not complete task, retrying", "error", err, "retry_in", d)
	})
}

func (w *Worker[Task, TaskResult]) heartbeatTask(ctx context.Context, task *Task) {
	t := time.NewTicker(w.options.HeartbeatInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := w.tw.Extend(ctx, task); err != nil {
				w.logger.ErrorContext(ctx, "could not heartbeat task", "error", err)
			}
		}
	}
}

func (w *Worker[Task, TaskResult]) poll(ctx context.Context, timeout time.Duration) (*Task, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	task, err := w.tw.Get(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, nil
		}

		return nil, err
	}

	return task, nil
}
