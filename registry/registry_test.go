package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/notifyhub/prepflow/internal/sync"
	"github.com/notifyhub/prepflow/workflow"
)

func reg_workflow1(ctx sync.Context) error {
	return nil
}

func TestRegistry_RegisterWorkflow(t *testing.T) {
	tests := []struct {
		name     string
		regName  string
		workflow any
		wantName string
		wantErr  bool
	}{
		{
			name:     "valid workflow",
			workflow: reg_workflow1,
			wantName: "reg_workflow1",
		},
		{
			name:     "valid workflow by name",
			regName:  "CustomName",
			workflow: reg_workflow1,
			wantName: "CustomName",
		},
		{
			name:     "valid workflow with results",
			regName:  "withResult",
			workflow: func(ctx sync.Context) (int, error) { return 42, nil },
			wantName: "withResult",
		},
		{
			name:     "valid workflow with multiple parameters",
			regName:  "multi",
			workflow: func(ctx sync.Context, a, b int) (int, error) { return a + b, nil },
			wantName: "multi",
		},
		{
			name:     "missing context",
			workflow: func(a int) error { return nil },
			wantErr:  true,
		},
		{
			name:     "wrong context",
			workflow: func(ctx context.Context) error { return nil },
			wantErr:  true,
		},
		{
			name:     "no return",
			workflow: func(ctx sync.Context) {},
			wantErr:  true,
		},
		{
			name:     "error not last",
			workflow: func(ctx sync.Context) (error, int) { return nil, 0 },
			wantErr:  true,
		},
		{
			name:     "not a function",
			workflow: 42,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()

			var opts []RegisterOption
			if tt.regName != "" {
				opts = append(opts, WithName(tt.regName))
			}

			err := r.RegisterWorkflow(tt.workflow, opts...)
			if tt.wantErr {
				var invalid *ErrInvalidWorkflow
				require.ErrorAs(t, err, &invalid)
				return
			}

			require.NoError(t, err)

			x, err := r.GetWorkflow(tt.wantName)
			require.NoError(t, err)
			require.NotNil(t, x)
		})
	}
}

func TestRegistry_RegisterWorkflow_Duplicate(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterWorkflow(reg_workflow1))

	var dup *ErrWorkflowAlreadyRegistered
	require.ErrorAs(t, r.RegisterWorkflow(reg_workflow1), &dup)
}

func TestRegistry_FailureHandler(t *testing.T) {
	r := New()

	called := false
	h := func(ctx context.Context, f *workflow.Failure) error {
		called = true
		return nil
	}

	require.NoError(t, r.RegisterWorkflow(reg_workflow1, WithFailureHandler(h)))
	require.NoError(t, r.RegisterWorkflow(func(ctx sync.Context) error { return nil }, WithName("plain")))

	got, err := r.GetFailureHandler("reg_workflow1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NoError(t, got(context.Background(), &workflow.Failure{}))
	require.True(t, called)

	got, err = r.GetFailureHandler("plain")
	require.NoError(t, err)
	require.Nil(t, got)

	_, err = r.GetFailureHandler("missing")
	require.ErrorIs(t, err, ErrWorkflowNotFound)
}

func reg_activity(ctx context.Context) (int, error) {
	return 42, nil
}

type activities struct{}

func (a *activities) ResolveRoster(ctx context.Context, teamID string) ([]string, error) {
	return nil, nil
}

func (a *activities) RenderContent(ctx context.Context) error {
	return nil
}

func TestRegistry_RegisterActivity(t *testing.T) {
	r := New()

	require.NoError(t, r.RegisterActivity(reg_activity))
	require.NoError(t, r.RegisterActivity(reg_activity, WithName("other")))
	require.NoError(t, r.RegisterActivity(&activities{}))

	for _, name := range []string{"reg_activity", "other", "ResolveRoster", "RenderContent"} {
		a, err := r.GetActivity(name)
		require.NoError(t, err, name)
		require.NotNil(t, a)
	}

	_, err := r.GetActivity("missing")
	require.True(t, errors.Is(err, ErrActivityNotFound))
}

func TestRegistry_RegisterActivity_Invalid(t *testing.T) {
	r := New()

	var invalid *ErrInvalidActivity
	require.ErrorAs(t, r.RegisterActivity(func() {}), &invalid)
	require.ErrorAs(t, r.RegisterActivity(func() (error, int) { return nil, 0 }), &invalid)
}
