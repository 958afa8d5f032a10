package memory

import (
	"github.com/benbjohnson/clock"

	"github.com/notifyhub/prepflow/backend"
)

type options struct {
	*backend.Options

	clock clock.Clock
}

type option func(*options)

// WithClock sets the clock used for lock expiration and timer visibility.
func WithClock(c clock.Clock) option {
	return func(o *options) {
		o.clock = c
	}
}

// WithBackendOptions allows to pass generic backend options.
func WithBackendOptions(opts ...backend.BackendOption) option {
	return func(o *options) {
		for _, opt := range opts {
			opt(o.Options)
		}
	}
}
