package test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/notifyhub/prepflow/backend"
	"github.com/notifyhub/prepflow/backend/history"
	"github.com/notifyhub/prepflow/client"
	"github.com/notifyhub/prepflow/worker"
	"github.com/notifyhub/prepflow/workflow"
)

var e2eTimerTests = []backendTest{
	{
		name: "Timer/Fires",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
			wf := func(ctx workflow.Context) (bool, error) {
				start := workflow.Now(ctx)

				if err := workflow.Sleep(ctx, 100*time.Millisecond); err != nil {
					return false, err
				}

				return !workflow.Now(ctx).Before(start.Add(100 * time.Millisecond)), nil
			}
			register(t, ctx, w, []any{wf}, nil)

			instance := runWorkflow(t, ctx, c, wf)
			output, err := client.GetWorkflowResult[bool](ctx, c, instance, time.Second*5)
			require.NoError(t, err)
			require.True(t, output)

			h, err := b.GetWorkflowInstanceHistory(ctx, instance, nil)
			require.NoError(t, err)
			require.Equal(t, 1, countEvents(h, history.EventType_TimerScheduled))
			require.Equal(t, 1, countEvents(h, history.EventType_TimerFired))
		},
	},
	{
		name: "Timer/Parallel",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
			wf := func(ctx workflow.Context) error {
				long := workflow.ScheduleTimer(ctx, 200*time.Millisecond)
				short := workflow.ScheduleTimer(ctx, 50*time.Millisecond)

				if _, err := long.Get(ctx); err != nil {
					return err
				}

				_, err := short.Get(ctx)
				return err
			}
			register(t, ctx, w, []any{wf}, nil)

			_, err := runWorkflowWithResult[any](t, ctx, c, wf)
			require.NoError(t, err)
		},
	},
	{
		name: "Timer/ActivityRetries",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
			var attempts atomic.Int32

			a := func(ctx context.Context) (int, error) {
				if attempts.Add(1) < 3 {
					return 0, errors.New("not yet")
				}

				return 42, nil
			}
			wf := func(ctx workflow.Context) (int, error) {
				return workflow.ExecuteActivity[int](ctx, workflow.ActivityOptions{
					RetryOptions: workflow.RetryOptions{
						MaxAttempts:        3,
						FirstRetryInterval: 20 * time.Millisecond,
						BackoffCoefficient: 2,
					},
				}, a).Get(ctx)
			}
			register(t, ctx, w, []any{wf}, []any{a})

			instance := runWorkflow(t, ctx, c, wf)
			output, err := client.GetWorkflowResult[int](ctx, c, instance, time.Second*5)
			require.NoError(t, err)
			require.Equal(t, 42, output)

			// One durable timer between attempts
			h, err := b.GetWorkflowInstanceHistory(ctx, instance, nil)
			require.NoError(t, err)
			require.Equal(t, 3, countEvents(h, history.EventType_ActivityScheduled))
			require.Equal(t, 2, countEvents(h, history.EventType_TimerFired))
		},
	},
}
