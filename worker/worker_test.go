package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/prepflow/backend/memory"
	"github.com/notifyhub/prepflow/client"
	"github.com/notifyhub/prepflow/registry"
	"github.com/notifyhub/prepflow/workflow"
)

func worker_workflow(ctx workflow.Context, msg string) (string, error) {
	return workflow.ExecuteActivity[string](ctx, workflow.DefaultActivityOptions, worker_activity, msg).Get(ctx)
}

func worker_activity(ctx context.Context, msg string) (string, error) {
	return msg + " world", nil
}

func TestWorker_RegisterWorkflow(t *testing.T) {
	w := New(memory.NewMemoryBackend(), nil)

	require.NoError(t, w.RegisterWorkflow(worker_workflow))

	var wantErr *registry.ErrWorkflowAlreadyRegistered
	require.ErrorAs(t, w.RegisterWorkflow(worker_workflow), &wantErr)

	require.NoError(t, w.RegisterWorkflow(worker_workflow, registry.WithName("CustomWorkflow")))
}

func TestWorker_RegisterWorkflow_Invalid(t *testing.T) {
	w := New(memory.NewMemoryBackend(), nil)

	require.Error(t, w.RegisterWorkflow("not a function"))
	require.Error(t, w.RegisterWorkflow(func() error { return nil }))
}

func TestWorker_RunsWorkflow(t *testing.T) {
	b := memory.NewMemoryBackend()

	options := DefaultOptions
	options.WorkflowPollingInterval = 10 * time.Millisecond
	options.ActivityPollingInterval = 10 * time.Millisecond

	w := New(b, &options)
	require.NoError(t, w.RegisterWorkflow(worker_workflow))
	require.NoError(t, w.RegisterActivity(worker_activity))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))

	c := client.New(b)
	instance, err := c.CreateWorkflowInstance(ctx, client.WorkflowInstanceOptions{
		InstanceID: uuid.NewString(),
	}, worker_workflow, "hello")
	require.NoError(t, err)

	result, err := client.GetWorkflowResult[string](ctx, c, instance, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, "hello world", result)

	cancel()
	require.NoError(t, w.WaitForCompletion())
}
