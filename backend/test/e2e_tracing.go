package test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/notifyhub/prepflow/backend"
	"github.com/notifyhub/prepflow/client"
	"github.com/notifyhub/prepflow/worker"
	"github.com/notifyhub/prepflow/workflow"
)

func setupTracing(b backend.Backend) *tracetest.InMemoryExporter {
	exporter := tracetest.NewInMemoryExporter()
	processor := trace.NewSimpleSpanProcessor(exporter)
	provider := trace.NewTracerProvider(trace.WithSpanProcessor(processor))
	b.Options().TracerProvider = provider

	return exporter
}

var e2eTracingTests = []backendTest{
	{
		name: "Tracing/WorkflowsHaveSpans",
		f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
			exporter := setupTracing(b)

			wf := func(ctx workflow.Context) error {
				return workflow.Sleep(ctx, 10*time.Millisecond)
			}
			register(t, ctx, w, []any{wf}, nil)

			instance := runWorkflow(t, ctx, c, wf)
			_, err := client.GetWorkflowResult[any](ctx, c, instance, time.Second*5)
			require.NoError(t, err)

			spans := exporter.GetSpans().Snapshots()

			createWorkflowSpan := findSpan(spans, func(span trace.ReadOnlySpan) bool {
				return strings.HasPrefix(span.Name(), "CreateWorkflowInstance")
			})
			require.NotNil(t, createWorkflowSpan)

			taskSpans := 0
			for _, span := range spans {
				if span.Name() == "WorkflowTask" {
					taskSpans++
				}
			}

			// Start and timer fired
			require.GreaterOrEqual(t, taskSpans, 2)
		},
	},
}

func findSpan(spans []trace.ReadOnlySpan, f func(trace.ReadOnlySpan) bool) trace.ReadOnlySpan {
	for _, span := range spans {
		if f(span) {
			return span
		}
	}

	return nil
}
