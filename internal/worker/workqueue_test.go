package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testTask struct {
	ID   int
	Data string
}

func TestNewWorkQueue(t *testing.T) {
	t.Run("unlimited parallelism", func(t *testing.T) {
		wq := newWorkQueue[testTask](0)

		require.NotNil(t, wq.tasks)
		require.Nil(t, wq.slots)
	})

	t.Run("limited parallelism", func(t *testing.T) {
		wq := newWorkQueue[testTask](5)

		require.NotNil(t, wq.slots)
		require.Equal(t, 5, cap(wq.slots))
	})

	t.Run("negative max parallel tasks treated as unlimited", func(t *testing.T) {
		wq := newWorkQueue[testTask](-1)

		require.Nil(t, wq.slots)
	})
}

func TestWorkQueue_Reserve(t *testing.T) {
	t.Run("blocks when slots are full", func(t *testing.T) {
		wq := newWorkQueue[testTask](1)

		require.NoError(t, wq.reserve(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		require.Equal(t, context.DeadlineExceeded, wq.reserve(ctx))
	})

	t.Run("release frees slot", func(t *testing.T) {
		wq := newWorkQueue[testTask](1)
		ctx := context.Background()

		require.NoError(t, wq.reserve(ctx))
		wq.release()
		require.NoError(t, wq.reserve(ctx))
	})

	t.Run("release without reserve on unlimited queue", func(t *testing.T) {
		wq := newWorkQueue[testTask](0)

		require.NotPanics(t, func() {
			wq.release()
		})
	})

	t.Run("concurrent reserves and releases", func(t *testing.T) {
		wq := newWorkQueue[testTask](3)
		ctx := context.Background()

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()

				if err := wq.reserve(ctx); err != nil {
					t.Error(err)
					return
				}

				time.Sleep(time.Millisecond)
				wq.release()
			}()
		}

		wg.Wait()
	})
}

func TestWorkQueue_Add(t *testing.T) {
	t.Run("hands task to reader", func(t *testing.T) {
		wq := newWorkQueue[testTask](0)
		task := &testTask{ID: 1, Data: "team-a"}

		done := make(chan error, 1)
		go func() {
			done <- wq.add(context.Background(), task)
		}()

		select {
		case received := <-wq.tasks:
			require.Equal(t, task, received)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for task")
		}

		require.NoError(t, <-done)
	})

	t.Run("no reader times out", func(t *testing.T) {
		wq := newWorkQueue[testTask](0)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		require.Equal(t, context.DeadlineExceeded, wq.add(ctx, &testTask{ID: 1}))
	})

	t.Run("canceled context", func(t *testing.T) {
		wq := newWorkQueue[testTask](0)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		require.Equal(t, context.Canceled, wq.add(ctx, &testTask{ID: 1}))
	})
}
