package test

import (
	"context"
	"testing"

	"github.com/notifyhub/prepflow/backend"
	"github.com/notifyhub/prepflow/client"
	"github.com/notifyhub/prepflow/worker"
)

type backendTest struct {
	name string
	f    func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend)
}
