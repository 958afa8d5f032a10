package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/notifyhub/prepflow/backend"
	"github.com/notifyhub/prepflow/backend/metrics"
	"github.com/notifyhub/prepflow/core"
	"github.com/notifyhub/prepflow/workflow/executor"
)

type testExecutor struct {
	closed atomic.Bool
}

func (e *testExecutor) ExecuteTask(ctx context.Context, t *backend.WorkflowTask) (*executor.ExecutionResult, error) {
	return &executor.ExecutionResult{}, nil
}

func (e *testExecutor) Close() {
	e.closed.Store(true)
}

func Test_Cache_StoreAndGet(t *testing.T) {
	c := NewWorkflowExecutorLRUCache(metrics.NewNoopMetricsClient(), 1, time.Second*10)

	i := core.NewWorkflowInstance("instanceID", "executionID")
	e := &testExecutor{}

	err := c.Store(context.Background(), i, e)
	require.NoError(t, err)

	e2, ok, err := c.Get(context.Background(), i)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, e, e2)

	// Storing a second instance evicts the first one
	i2 := core.NewWorkflowInstance("instanceID2", "executionID2")
	require.NoError(t, c.Store(context.Background(), i2, &testExecutor{}))

	_, ok, err = c.Get(context.Background(), i)
	require.NoError(t, err)
	require.False(t, ok)
	require.Eventually(t, e.closed.Load, time.Second, time.Millisecond)
}

func Test_Cache_Evict(t *testing.T) {
	c := NewWorkflowExecutorLRUCache(metrics.NewNoopMetricsClient(), 10, time.Second*10)

	i := core.NewWorkflowInstance("instanceID", "executionID")
	e := &testExecutor{}
	require.NoError(t, c.Store(context.Background(), i, e))

	require.NoError(t, c.Evict(context.Background(), i))
	require.Eventually(t, e.closed.Load, time.Second, time.Millisecond)

	_, ok, err := c.Get(context.Background(), i)
	require.NoError(t, err)
	require.False(t, ok)
}

func Test_Cache_Expiration(t *testing.T) {
	c := NewWorkflowExecutorLRUCache(metrics.NewNoopMetricsClient(), 10, time.Millisecond)

	i := core.NewWorkflowInstance("instanceID", "executionID")
	e := &testExecutor{}
	require.NoError(t, c.Store(context.Background(), i, e))

	time.Sleep(10 * time.Millisecond)

	// Expired items are not returned, even before the eviction loop removed them
	_, ok, err := c.Get(context.Background(), i)
	require.NoError(t, err)
	require.False(t, ok)
}
