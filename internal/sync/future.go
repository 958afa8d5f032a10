package sync

type Future[T any] interface {
	// Get returns the value if set, blocks otherwise
	Get(ctx Context) (T, error)
}

type SettableFuture[T any] interface {
	Future[T]

	// Set stores the value and unblocks any waiting consumers
	Set(v T, err error)

	Ready() bool
}

type future[T any] struct {
	hasValue bool
	v        T
	err      error
}

func NewFuture[T any]() SettableFuture[T] {
	return &future[T]{}
}

// NewReadyFuture returns a future that is already resolved.
func NewReadyFuture[T any](v T, err error) SettableFuture[T] {
	f := &future[T]{}
	f.Set(v, err)
	return f
}

func (f *future[T]) Set(v T, err error) {
	if f.hasValue {
		panic("future already set")
	}

	f.v = v
	f.err = err
	f.hasValue = true
}

func (f *future[T]) Get(ctx Context) (T, error) {
	for {
		if f.hasValue {
			return f.v, f.err
		}

		cr := getCoState(ctx)
		cr.Yield()
	}
}

func (f *future[T]) Ready() bool {
	return f.hasValue
}
