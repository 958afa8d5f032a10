package workflow

import "errors"

// ActivityCall is one activity invocation of a ForkJoin.
type ActivityCall struct {
	Activity Activity
	Args     []any
}

func Call(activity Activity, args ...any) ActivityCall {
	return ActivityCall{Activity: activity, Args: args}
}

type Result[T any] struct {
	Value T
	Err   error
}

type Results[T any] []Result[T]

// Err joins the errors of all failed calls, nil if every call succeeded.
func (r Results[T]) Err() error {
	var errs []error
	for _, res := range r {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}

	return errors.Join(errs...)
}

// Values returns the values of all calls, in call order.
func (r Results[T]) Values() []T {
	values := make([]T, 0, len(r))
	for _, res := range r {
		values = append(values, res.Value)
	}

	return values
}

// ForkJoin schedules every call, in order, before waiting on any of them. It then waits for
// all of them and returns one result per call, in call order. A failing call does not stop
// the others from being awaited.
func ForkJoin[T any](ctx Context, options ActivityOptions, calls ...ActivityCall) Results[T] {
	futures := make([]Future[T], 0, len(calls))
	for _, call := range calls {
		futures = append(futures, ExecuteActivity[T](ctx, options, call.Activity, call.Args...))
	}

	results := make(Results[T], len(calls))
	for i, f := range futures {
		v, err := f.Get(ctx)
		results[i] = Result[T]{Value: v, Err: err}
	}

	return results
}
