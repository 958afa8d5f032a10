package sync

import (
	"errors"
	"sync"
)

// Context is the workflow counterpart of context.Context. It has no deadline and no
// Done channel: workflow code only observes cancellation through Err or through futures
// resolving with Canceled.
type Context interface {
	Value(key any) any

	Err() error
}

type CancelFunc func()

var Canceled = errors.New("workflow canceled")

type emptyCtx int

func (emptyCtx) Value(any) any { return nil }

func (emptyCtx) Err() error { return nil }

var background = new(emptyCtx)

func Background() Context {
	return background
}

type valueCtx struct {
	Context
	key, val any
}

func WithValue(parent Context, key, val any) Context {
	if parent == nil {
		panic("cannot create context from nil parent")
	}

	if key == nil {
		panic("nil key")
	}

	return &valueCtx{parent, key, val}
}

func (c *valueCtx) Value(key any) any {
	if c.key == key {
		return c.val
	}

	return c.Context.Value(key)
}

type cancelCtx struct {
	Context

	mu  sync.Mutex
	err error
}

// WithCancel returns a copy of parent that reports Canceled once cancel is called or the
// parent is canceled.
func WithCancel(parent Context) (Context, CancelFunc) {
	if parent == nil {
		panic("cannot create context from nil parent")
	}

	c := &cancelCtx{Context: parent}

	return c, func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.err == nil {
			c.err = Canceled
		}
	}
}

func (c *cancelCtx) Err() error {
	c.mu.Lock()
	err := c.err
	c.mu.Unlock()

	if err != nil {
		return err
	}

	return c.Context.Err()
}
