package registry

import (
	"context"

	"github.com/notifyhub/prepflow/workflow"
)

// FailureHandler is invoked at most once when an instance of the workflow it is registered
// for ends with an error. Its error is logged and otherwise ignored.
type FailureHandler func(ctx context.Context, failure *workflow.Failure) error

type registerConfig struct {
	Name           string
	FailureHandler FailureHandler
}

type RegisterOption interface {
	applyRegisterOption(registerConfig) registerConfig
}

type registerOptions []RegisterOption

func (opts registerOptions) applyRegisterOptions(cfg registerConfig) registerConfig {
	for _, opt := range opts {
		cfg = opt.applyRegisterOption(cfg)
	}
	return cfg
}

type registerOptionFunc func(registerConfig) registerConfig

func (f registerOptionFunc) applyRegisterOption(cfg registerConfig) registerConfig {
	return f(cfg)
}

func WithName(name string) RegisterOption {
	return registerOptionFunc(func(cfg registerConfig) registerConfig {
		cfg.Name = name
		return cfg
	})
}

// WithFailureHandler binds a failure handler to the registered workflow.
func WithFailureHandler(h FailureHandler) RegisterOption {
	return registerOptionFunc(func(cfg registerConfig) registerConfig {
		cfg.FailureHandler = h
		return cfg
	})
}
