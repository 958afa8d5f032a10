package test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/notifyhub/prepflow/backend"
	"github.com/notifyhub/prepflow/client"
	"github.com/notifyhub/prepflow/internal/workflowerrors"
	"github.com/notifyhub/prepflow/worker"
	"github.com/notifyhub/prepflow/workflow"
)

type CustomError struct {
	msg string
}

func (e *CustomError) Error() string {
	return e.msg
}

var e2eActivityTests = []backendTest{
	{
		name: "Activity_Panic",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
			a := func(context.Context) error {
				panic("activity panic")
			}

			wf := func(ctx workflow.Context) (bool, error) {
				_, err := workflow.ExecuteActivity[any](ctx, workflow.DefaultActivityOptions, a).Get(ctx)

				var perr *workflowerrors.PanicError
				return errors.As(err, &perr), nil
			}
			register(t, ctx, w, []any{wf}, []any{a})

			output, err := runWorkflowWithResult[bool](t, ctx, c, wf)

			require.True(t, output, "error should be PanicError")
			require.NoError(t, err)
		},
	},
	{
		name: "Activity_CustomError",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
			a := func(context.Context) error {
				return &CustomError{msg: "custom error"}
			}

			wf := func(ctx workflow.Context) (bool, error) {
				_, err := workflow.ExecuteActivity[any](ctx, workflow.DefaultActivityOptions, a).Get(ctx)

				var aerr *workflow.ActivityError
				if !errors.As(err, &aerr) {
					return false, nil
				}

				var werr *workflowerrors.Error
				if errors.As(err, &werr) {
					return werr.Type == "*test.CustomError" && werr.Error() == "custom error", nil
				}

				return false, nil
			}
			register(t, ctx, w, []any{wf}, []any{a})

			output, err := runWorkflowWithResult[bool](t, ctx, c, wf)

			require.True(t, output, "error should keep its type")
			require.NoError(t, err)
		},
	},
	{
		name: "Activity_TransientErrorsAreRetried",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
			var attempts atomic.Int32

			a := func(context.Context) (int, error) {
				if attempts.Add(1) < 3 {
					return 0, workflow.NewTransientError(errors.New("store unavailable"))
				}

				return 42, nil
			}

			wf := func(ctx workflow.Context) (int, error) {
				return workflow.ExecuteActivity[int](ctx, workflow.DefaultActivityOptions, a).Get(ctx)
			}
			register(t, ctx, w, []any{wf}, []any{a})

			output, err := runWorkflowWithResult[int](t, ctx, c, wf)

			require.NoError(t, err)
			require.Equal(t, 42, output)
			require.Equal(t, int32(3), attempts.Load())
		},
	},
	{
		name: "ActivityArgumentMismatch",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
			a := func(context.Context, int, int) error { return nil }
			wf := func(ctx workflow.Context) error {
				_, err := workflow.ExecuteActivity[any](ctx, workflow.DefaultActivityOptions, a, 42).Get(ctx)
				return err
			}
			register(t, ctx, w, []any{wf}, []any{a})

			_, err := runWorkflowWithResult[any](t, ctx, c, wf)

			require.ErrorContains(t, err, "mismatched argument count")
		},
	},
}
