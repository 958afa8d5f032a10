package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/notifyhub/prepflow/backend"
	"github.com/notifyhub/prepflow/backend/converter"
	"github.com/notifyhub/prepflow/backend/memory"
	"github.com/notifyhub/prepflow/backend/sqlite"
	"github.com/notifyhub/prepflow/client"
	"github.com/notifyhub/prepflow/internal/config"
	"github.com/notifyhub/prepflow/internal/prepare"
	"github.com/notifyhub/prepflow/internal/prepare/dataqueue"
	prepmemory "github.com/notifyhub/prepflow/internal/prepare/memory"
	"github.com/notifyhub/prepflow/internal/prepare/sendqueue"
	store "github.com/notifyhub/prepflow/internal/prepare/store/sqlite"
)

type app struct {
	cfg    config.Config
	logger *slog.Logger

	backend    backend.Backend
	client     *client.Client
	store      *store.Store
	activities *prepare.Activities

	// aggregations is set when aggregation triggers go to Redis.
	aggregations *dataqueue.Queue

	closers []func(ctx context.Context) error
}

func newApp(ctx context.Context, cfg config.Config) (a *app, err error) {
	a = &app{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})),
	}

	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	cv, err := converter.ByName(cfg.Converter)
	if err != nil {
		return nil, err
	}

	tp, err := a.tracerProvider(ctx)
	if err != nil {
		return nil, err
	}

	backendOptions := []backend.BackendOption{
		backend.WithLogger(a.logger),
		backend.WithConverter(cv),
		backend.WithTracerProvider(tp),
	}

	switch cfg.Backend {
	case "memory":
		a.backend = memory.NewMemoryBackend(memory.WithBackendOptions(backendOptions...))
	default:
		a.backend = sqlite.NewSqliteBackend(cfg.SqlitePath, sqlite.WithBackendOptions(backendOptions...))
	}
	a.closers = append(a.closers, func(context.Context) error { return a.backend.Close() })

	a.client = client.New(a.backend)

	a.store, err = store.NewStore(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return a.store.Close() })

	a.activities = &prepare.Activities{
		Directory: a.store,
		Store:     a.store,
		BatchSize: cfg.BatchSize,
	}

	if a.activities.SendQueue, err = a.sendQueue(ctx, cv); err != nil {
		return nil, err
	}

	if a.activities.DataQueue, err = a.dataQueue(); err != nil {
		return nil, err
	}

	return a, nil
}

func (a *app) tracerProvider(ctx context.Context) (trace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter

	switch a.cfg.TraceExporter {
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("creating stdout exporter: %w", err)
		}
		exporter = exp

	case "otlp":
		exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(a.cfg.OTLPEndpoint), otlptracehttp.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("creating otlp exporter: %w", err)
		}
		exporter = exp

	default:
		return noop.NewTracerProvider(), nil
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName("prepflow"),
		)),
	)
	a.closers = append(a.closers, tp.Shutdown)

	return tp, nil
}

func (a *app) sendQueue(ctx context.Context, cv converter.Converter) (prepare.SendQueue, error) {
	if a.cfg.NATSURL == "" {
		a.logger.Warn("no NATS url configured, batches are kept in process")
		return prepmemory.NewSendQueue(), nil
	}

	nc, err := nats.Connect(a.cfg.NATSURL, nats.Name("prepflow"))
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", a.cfg.NATSURL, err)
	}
	a.closers = append(a.closers, func(context.Context) error { return nc.Drain() })

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	return sendqueue.New(ctx, js, sendqueue.Options{
		Stream:    a.cfg.NATSStream,
		Subject:   a.cfg.NATSSubject,
		Converter: cv,
	})
}

func (a *app) dataQueue() (prepare.DataQueue, error) {
	if a.cfg.RedisAddr == "" {
		a.logger.Warn("no Redis address configured, aggregation triggers are kept in process")
		return prepmemory.NewDataQueue(), nil
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{a.cfg.RedisAddr},
	})
	a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })

	a.aggregations = dataqueue.New(rdb, a.cfg.RedisKey)

	return a.aggregations, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}

	a.closers = nil

	return errors.Join(errs...)
}
