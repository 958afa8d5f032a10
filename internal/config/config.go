// Package config loads the process configuration of the prepflow CLI from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const Prefix = "PREPFLOW_"

type Config struct {
	// Backend is the workflow backend, "sqlite" or "memory".
	Backend    string `env:"BACKEND" envDefault:"sqlite"`
	SqlitePath string `env:"SQLITE_PATH" envDefault:"prepflow.db"`
	StorePath  string `env:"STORE_PATH" envDefault:"prepflow-store.db"`

	// Converter encodes workflow inputs and results, "json" or "msgpack".
	Converter string `env:"CONVERTER" envDefault:"json"`

	// NATSURL enables the JetStream send queue. Batches stay in process when empty.
	NATSURL     string `env:"NATS_URL"`
	NATSStream  string `env:"NATS_STREAM" envDefault:"PREPFLOW_SEND"`
	NATSSubject string `env:"NATS_SUBJECT" envDefault:"prepflow.send"`

	// RedisAddr enables the Redis aggregation queue. Aggregations stay in process when empty.
	RedisAddr string `env:"REDIS_ADDR"`
	RedisKey  string `env:"REDIS_KEY" envDefault:"prepflow:aggregation"`

	BatchSize        int           `env:"BATCH_SIZE" envDefault:"100"`
	AggregationDelay time.Duration `env:"AGGREGATION_DELAY" envDefault:"20s"`

	WorkflowPollers          int `env:"WORKFLOW_POLLERS" envDefault:"2"`
	ActivityPollers          int `env:"ACTIVITY_POLLERS" envDefault:"2"`
	MaxParallelActivityTasks int `env:"MAX_PARALLEL_ACTIVITY_TASKS" envDefault:"16"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// TraceExporter is "none", "stdout" or "otlp".
	TraceExporter string `env:"TRACE_EXPORTER" envDefault:"none"`
	OTLPEndpoint  string `env:"OTLP_ENDPOINT"`
}

// Load reads the configuration from PREPFLOW_ prefixed environment variables.
func Load() (Config, error) {
	return LoadFrom(nil)
}

// LoadFrom reads the configuration from environment, or from the process environment if
// environment is nil.
func LoadFrom(environment map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{
		Prefix:      Prefix,
		Environment: environment,
	}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	switch c.Backend {
	case "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}

	switch c.TraceExporter {
	case "none", "stdout":
	case "otlp":
		if c.OTLPEndpoint == "" {
			errs = append(errs, errors.New("otlp trace exporter requires an endpoint"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown trace exporter %q", c.TraceExporter))
	}

	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch size must be positive, got %d", c.BatchSize))
	}

	if c.AggregationDelay < 0 {
		errs = append(errs, fmt.Errorf("aggregation delay must not be negative, got %v", c.AggregationDelay))
	}

	return errors.Join(errs...)
}

// AggregationDelaySeconds returns the aggregation delay in whole seconds, rounded up.
func (c Config) AggregationDelaySeconds() int {
	return int((c.AggregationDelay + time.Second - 1) / time.Second)
}

func (c Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}

	return l
}
