package workflow

import (
	"errors"
	"math"
	"time"
)

type RetryOptions struct {
	// Maximum number of attempts, values <= 1 disable retries
	MaxAttempts int

	// Time to wait before first retry
	FirstRetryInterval time.Duration

	// Maximum delay for any individual retry attempt
	MaxRetryInterval time.Duration

	// Coefficient for calculation the next retry delay
	BackoffCoefficient float64

	// Timeout after which retries are aborted
	RetryTimeout time.Duration
}

var DefaultRetryOptions = RetryOptions{
	MaxAttempts:        1,
	BackoffCoefficient: 1,
}

// withRetries schedules the first attempt right away. Further attempts are scheduled from
// Get, with durable timers between them.
func withRetries[T any](ctx Context, retryOptions RetryOptions, fn func(ctx Context, attempt int) Future[T]) Future[T] {
	first := fn(ctx, 1)

	if retryOptions.MaxAttempts <= 1 {
		return first
	}

	return &retryFuture[T]{
		options: retryOptions,
		fn:      fn,
		current: first,
		started: Now(ctx),
	}
}

type retryFuture[T any] struct {
	options RetryOptions
	fn      func(ctx Context, attempt int) Future[T]
	current Future[T]
	started time.Time

	done   bool
	result T
	err    error
}

func (r *retryFuture[T]) Get(ctx Context) (T, error) {
	if r.done {
		return r.result, r.err
	}

	for attempt := 1; ; attempt++ {
		r.result, r.err = r.current.Get(ctx)
		if r.err == nil || errors.Is(r.err, Canceled) || attempt >= r.options.MaxAttempts {
			break
		}

		if r.options.RetryTimeout > 0 && Now(ctx).After(r.started.Add(r.options.RetryTimeout)) {
			break
		}

		if d := r.options.backoff(attempt); d > 0 {
			if err := Sleep(ctx, d); err != nil {
				r.err = err
				break
			}
		}

		r.current = r.fn(ctx, attempt+1)
	}

	r.done = true

	return r.result, r.err
}

func (o RetryOptions) backoff(attempt int) time.Duration {
	coefficient := o.BackoffCoefficient
	if coefficient <= 0 {
		coefficient = 1
	}

	d := time.Duration(float64(o.FirstRetryInterval) * math.Pow(coefficient, float64(attempt-1)))
	if o.MaxRetryInterval > 0 && d > o.MaxRetryInterval {
		d = o.MaxRetryInterval
	}

	return d
}
