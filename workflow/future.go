package workflow

import "github.com/notifyhub/prepflow/internal/sync"

type Future[T any] interface {
	// Get blocks until the result is available. Workflow code only ever suspends here.
	Get(ctx Context) (T, error)
}

var _ Future[int] = (sync.Future[int])(nil)
