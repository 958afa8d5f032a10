package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_LoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	require.Equal(t, "sqlite", cfg.Backend)
	require.Equal(t, 100, cfg.BatchSize)
	require.Equal(t, 20*time.Second, cfg.AggregationDelay)
	require.Equal(t, 20, cfg.AggregationDelaySeconds())
	require.Equal(t, "none", cfg.TraceExporter)
	require.Empty(t, cfg.NATSURL)
	require.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func Test_LoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"PREPFLOW_BACKEND":           "memory",
		"PREPFLOW_BATCH_SIZE":        "500",
		"PREPFLOW_AGGREGATION_DELAY": "1500ms",
		"PREPFLOW_NATS_URL":          "nats://localhost:4222",
		"PREPFLOW_LOG_LEVEL":         "debug",
		"BATCH_SIZE":                 "1",
	})
	require.NoError(t, err)

	require.Equal(t, "memory", cfg.Backend)
	require.Equal(t, 500, cfg.BatchSize)
	require.Equal(t, 2, cfg.AggregationDelaySeconds())
	require.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	require.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func Test_LoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		err  string
	}{
		{"NotANumber", map[string]string{"PREPFLOW_BATCH_SIZE": "many"}, "parse env:"},
		{"UnknownBackend", map[string]string{"PREPFLOW_BACKEND": "mysql"}, `unknown backend "mysql"`},
		{"ZeroBatchSize", map[string]string{"PREPFLOW_BATCH_SIZE": "0"}, "batch size must be positive"},
		{"OTLPWithoutEndpoint", map[string]string{"PREPFLOW_TRACE_EXPORTER": "otlp"}, "requires an endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.env)
			require.ErrorContains(t, err, tt.err)
		})
	}
}
