package test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/prepflow/backend"
	"github.com/notifyhub/prepflow/backend/history"
	"github.com/notifyhub/prepflow/client"
	"github.com/notifyhub/prepflow/core"
	"github.com/notifyhub/prepflow/registry"
	"github.com/notifyhub/prepflow/worker"
	"github.com/notifyhub/prepflow/workflow"
)

var e2eTests = []backendTest{
	{
		name: "SimpleWorkflow",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
			wf := func(ctx workflow.Context, msg string) (string, error) {
				return msg + " world", nil
			}
			register(t, ctx, w, []any{wf}, nil)

			output, err := runWorkflowWithResult[string](t, ctx, c, wf, "hello")

			require.Equal(t, "hello world", output)
			require.NoError(t, err)
		},
	},
	{
		name: "UnregisteredWorkflow",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
			wf := func(ctx workflow.Context, msg string) (string, error) {
				return msg + " world", nil
			}
			register(t, ctx, w, nil, nil)

			output, err := runWorkflowWithResult[string](t, ctx, c, wf, "hello")

			require.Zero(t, output)
			require.ErrorContains(t, err, "workflow not found")
		},
	},
	{
		name: "DuplicateInstanceID",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
			wf := func(ctx workflow.Context) error {
				return nil
			}
			register(t, ctx, w, []any{wf}, nil)

			instance := runWorkflow(t, ctx, c, wf)

			_, err := c.CreateWorkflowInstance(ctx, client.WorkflowInstanceOptions{
				InstanceID: instance.InstanceID,
			}, wf)
			require.ErrorIs(t, err, backend.ErrInstanceAlreadyExists)
		},
	},
	{
		name: "ActivitySequence",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
			var calls atomic.Int32

			a := func(ctx context.Context, i int) (int, error) {
				calls.Add(1)
				return i + 1, nil
			}
			wf := func(ctx workflow.Context) (int, error) {
				r := 0
				for range 3 {
					var err error
					r, err = workflow.ExecuteActivity[int](ctx, workflow.DefaultActivityOptions, a, r).Get(ctx)
					if err != nil {
						return 0, err
					}
				}

				return r, nil
			}
			register(t, ctx, w, []any{wf}, []any{a})

			output, err := runWorkflowWithResult[int](t, ctx, c, wf)

			require.NoError(t, err)
			require.Equal(t, 3, output)
			require.Equal(t, int32(3), calls.Load(), "activities must not run again on replay")
		},
	},
	{
		name: "ForkJoin",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
			a := func(ctx context.Context, i int) (int, error) {
				// Later calls finish first
				time.Sleep(time.Duration(5-i) * 10 * time.Millisecond)
				return i * 10, nil
			}
			wf := func(ctx workflow.Context) ([]int, error) {
				calls := make([]workflow.ActivityCall, 0, 5)
				for i := range 5 {
					calls = append(calls, workflow.Call(a, i))
				}

				results := workflow.ForkJoin[int](ctx, workflow.DefaultActivityOptions, calls...)

				return results.Values(), results.Err()
			}
			register(t, ctx, w, []any{wf}, []any{a})

			output, err := runWorkflowWithResult[[]int](t, ctx, c, wf)

			require.NoError(t, err)
			require.Equal(t, []int{0, 10, 20, 30, 40}, output)
		},
	},
	{
		name: "SubWorkflow",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
			swf := func(ctx workflow.Context, i int) (int, error) {
				return i * 2, nil
			}
			wf := func(ctx workflow.Context) (int, error) {
				return workflow.CreateSubWorkflowInstance[int](ctx, workflow.DefaultSubWorkflowOptions, swf, 21).Get(ctx)
			}
			register(t, ctx, w, []any{wf, swf}, nil)

			output, err := runWorkflowWithResult[int](t, ctx, c, wf)

			require.NoError(t, err)
			require.Equal(t, 42, output)
		},
	},
	{
		name: "SubWorkflow_Error",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
			swf := func(ctx workflow.Context) error {
				return errors.New("sub-workflow failed")
			}
			wf := func(ctx workflow.Context) (string, error) {
				_, err := workflow.CreateSubWorkflowInstance[any](ctx, workflow.DefaultSubWorkflowOptions, swf).Get(ctx)
				return err.Error(), nil
			}
			register(t, ctx, w, []any{wf, swf}, nil)

			output, err := runWorkflowWithResult[string](t, ctx, c, wf)

			require.NoError(t, err)
			require.Equal(t, "sub-workflow failed", output)
		},
	},
	{
		name: "FailureHandler",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
			var handled atomic.Int32
			var dispatched atomic.Int32

			dispatch := func(ctx context.Context) error {
				dispatched.Add(1)
				return nil
			}
			wf := func(ctx workflow.Context, notificationID string) error {
				if notificationID == "" {
					return workflow.NewValidationError("no audience")
				}

				_, err := workflow.ExecuteActivity[any](ctx, workflow.DefaultActivityOptions, dispatch).Get(ctx)
				return err
			}
			handler := func(ctx context.Context, f *workflow.Failure) error {
				handled.Add(1)
				return nil
			}

			require.NoError(t, w.RegisterWorkflow(wf, registry.WithFailureHandler(handler)))
			register(t, ctx, w, nil, []any{dispatch})

			instance := runWorkflow(t, ctx, c, wf, "")

			_, err := client.GetWorkflowResult[any](ctx, c, instance, time.Second*10)
			var verr *workflow.ValidationError
			require.ErrorContains(t, err, "no audience")
			require.False(t, errors.As(err, &verr), "errors are restored in their persisted form")

			s, err := c.GetWorkflowInstanceState(ctx, instance)
			require.NoError(t, err)
			require.Equal(t, core.WorkflowInstanceStateFailed, s)

			require.Equal(t, int32(1), handled.Load())
			require.Equal(t, int32(0), dispatched.Load())

			h, err := b.GetWorkflowInstanceHistory(ctx, instance, nil)
			require.NoError(t, err)
			require.Equal(t, 1, countEvents(h, history.EventType_FailureHandlerScheduled))
			require.Equal(t, 1, countEvents(h, history.EventType_FailureHandlerCompleted))
		},
	},
	{
		name: "CancelWorkflowInstance",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
			wf := func(ctx workflow.Context) error {
				return workflow.Sleep(ctx, time.Hour)
			}
			register(t, ctx, w, []any{wf}, nil)

			instance := runWorkflow(t, ctx, c, wf)

			// Allow some time for the timer to get scheduled
			time.Sleep(time.Millisecond * 200)

			require.NoError(t, c.CancelWorkflowInstance(ctx, instance))

			_, err := client.GetWorkflowResult[any](ctx, c, instance, time.Second*5)
			require.ErrorContains(t, err, workflow.Canceled.Error())
		},
	},
	{
		name: "SubWorkflow_PropagateCancellation",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
			swf := func(ctx workflow.Context) error {
				return workflow.Sleep(ctx, time.Hour)
			}
			wf := func(ctx workflow.Context) error {
				_, err := workflow.CreateSubWorkflowInstance[any](ctx, workflow.DefaultSubWorkflowOptions, swf).Get(ctx)
				return err
			}
			register(t, ctx, w, []any{wf, swf}, nil)

			instance := runWorkflow(t, ctx, c, wf)

			child := core.NewSubWorkflowInstance(core.SubWorkflowInstanceID(instance, 1), "", instance, 1)
			require.Eventually(t, func() bool {
				_, err := c.GetWorkflowInstanceState(ctx, child)
				return err == nil
			}, 5*time.Second, 10*time.Millisecond)

			// Allow some time for the child timer to get scheduled
			time.Sleep(time.Millisecond * 200)

			require.NoError(t, c.CancelWorkflowInstance(ctx, instance))

			_, err := client.GetWorkflowResult[any](ctx, c, instance, time.Second*5)
			require.Error(t, err)

			s, err := c.GetWorkflowInstanceState(ctx, child)
			require.NoError(t, err)
			require.Equal(t, core.WorkflowInstanceStateFailed, s)
		},
	},
}

// EndToEndBackendTest runs workflows against the given backend with a real worker.
func EndToEndBackendTest(t *testing.T, setup func(t *testing.T) backend.Backend, teardown func(b backend.Backend)) {
	tests := make([]backendTest, 0)
	tests = append(tests, e2eTests...)
	tests = append(tests, e2eActivityTests...)
	tests = append(tests, e2eTimerTests...)
	tests = append(tests, e2eTracingTests...)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := setup(t)
			ctx, cancel := context.WithCancel(context.Background())

			options := worker.DefaultOptions
			options.WorkflowPollingInterval = 10 * time.Millisecond
			options.ActivityPollingInterval = 10 * time.Millisecond

			c := client.New(b)
			w := worker.New(b, &options)

			tt.f(t, ctx, c, w, b)

			cancel()
			if err := w.WaitForCompletion(); err != nil {
				t.Fatal("worker did not stop in time")
			}

			if teardown != nil {
				teardown(b)
			}
		})
	}
}

func register(t *testing.T, ctx context.Context, w *worker.Worker, workflows []any, activities []any) {
	for _, wf := range workflows {
		require.NoError(t, w.RegisterWorkflow(wf))
	}

	for _, a := range activities {
		require.NoError(t, w.RegisterActivity(a))
	}

	err := w.Start(ctx)
	require.NoError(t, err)
}

func runWorkflow(t *testing.T, ctx context.Context, c *client.Client, wf any, inputs ...any) *core.WorkflowInstance {
	instance, err := c.CreateWorkflowInstance(ctx, client.WorkflowInstanceOptions{
		InstanceID: uuid.NewString(),
	}, wf, inputs...)
	require.NoError(t, err)

	return instance
}

func runWorkflowWithResult[T any](t *testing.T, ctx context.Context, c *client.Client, wf any, inputs ...any) (T, error) {
	instance := runWorkflow(t, ctx, c, wf, inputs...)
	return client.GetWorkflowResult[T](ctx, c, instance, time.Second*10)
}

func countEvents(events []*history.Event, eventType history.EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == eventType {
			n++
		}
	}

	return n
}
