package sqlite

import (
	"github.com/benbjohnson/clock"

	"github.com/notifyhub/prepflow/backend"
)

type options struct {
	*backend.Options

	// ApplyMigrations automatically applies database migrations on startup.
	ApplyMigrations bool

	clock clock.Clock
}

type option func(*options)

// WithApplyMigrations automatically applies database migrations on startup.
func WithApplyMigrations(applyMigrations bool) option {
	return func(o *options) {
		o.ApplyMigrations = applyMigrations
	}
}

// WithClock sets the clock used for locks, timestamps and timer visibility.
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
