package sync

import (
	"errors"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/notifyhub/prepflow/internal/workflowerrors"
)

const DeadlockDetection = 40 * time.Second

var (
	ErrCoroutineAlreadyFinished = errors.New("coroutine already finished")
	ErrCoroutineDeadlocked      = errors.New("coroutine did not yield in time, workflow code might be blocking outside of futures")
)

type Coroutine interface {
	// Execute continues execution of a blocked coroutine and waits until
	// it is finished or blocked again
	Execute() error

	// Yield yields execution and stops coroutine execution
	Yield()

	// Exit prevents a _blocked_ Coroutine from continuing
	Exit()

	Blocked() bool
	Finished() bool

	Error() error
}

type key int

var coroutinesCtxKey key

type coState struct {
	blocking   chan bool   // coroutine is going to be blocked
	unblock    chan bool   // channel to unblock block coroutine
	blocked    atomic.Bool // coroutine is currently blocked
	finished   atomic.Bool // coroutine finished executing
	shouldExit atomic.Bool // coroutine should exit

	err error

	deadlockDetection time.Duration
}

func NewCoroutine(ctx Context, fn func(ctx Context) error) Coroutine {
	return newCoroutine(ctx, DeadlockDetection, fn)
}

func newCoroutine(ctx Context, deadlockDetection time.Duration, fn func(ctx Context) error) *coState {
	s := &coState{
		blocking:          make(chan bool, 1),
		unblock:           make(chan bool),
		deadlockDetection: deadlockDetection,
	}

	// Start out as blocked
	s.blocked.Store(true)

	ctx = withCoState(ctx, s)

	go func() {
		defer s.finish() // Ensure we always mark the coroutine as finished
		defer func() {
			if r := recover(); r != nil {
				if err, ok := r.(error); ok && errors.Is(err, ErrCoroutineAlreadyFinished) {
					return
				}

				s.err = workflowerrors.NewPanicError(r)
			}
		}()

		// yield before the first execution
		s.yield(false)

		s.err = fn(ctx)
	}()

	return s
}

func (s *coState) finish() {
	s.finished.Store(true)
	s.blocking <- true
}

func (s *coState) Finished() bool {
	return s.finished.Load()
}

func (s *coState) Blocked() bool {
	return s.blocked.Load()
}

func (s *coState) Yield() {
	s.yield(true)
}

func (s *coState) yield(markBlocking bool) {
	if markBlocking {
		if s.shouldExit.Load() {
			panic(ErrCoroutineAlreadyFinished)
		}

		s.blocked.Store(true)

		s.blocking <- true
	}

	// Wait for the next Execute() call
	<-s.unblock

	if s.shouldExit.Load() {
		// Goexit runs all deferred functions, which includes calling finish() in the main
		// execution function. That marks the coroutine as finished and blocking.
		runtime.Goexit()
	}

	s.blocked.Store(false)
}

func (s *coState) Execute() error {
	if s.Finished() {
		return nil
	}

	t := time.NewTimer(s.deadlockDetection)
	defer t.Stop()

	s.unblock <- true

	// Run until blocked (which is also true when finished)
	select {
	case <-s.blocking:
		return nil
	case <-t.C:
		return ErrCoroutineDeadlocked
	}
}

func (s *coState) Exit() {
	if s.Finished() {
		return
	}

	s.shouldExit.Store(true)
	_ = s.Execute()
}

func (s *coState) Error() error {
	return s.err
}

func withCoState(ctx Context, s *coState) Context {
	return WithValue(ctx, coroutinesCtxKey, s)
}

func getCoState(ctx Context) *coState {
	s, ok := ctx.Value(coroutinesCtxKey).(*coState)
	if !ok {
		panic("could not find coroutine state, futures can only be awaited from workflow code")
	}

	return s
}
