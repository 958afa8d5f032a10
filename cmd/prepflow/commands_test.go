package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/notifyhub/prepflow/core"
	"github.com/notifyhub/prepflow/internal/config"
	"github.com/notifyhub/prepflow/internal/prepare"
	"github.com/notifyhub/prepflow/worker"
)

const directoryJSON = `{
  "users": [
    {"id": "u-1", "name": "Ada"},
    {"id": "u-2", "name": "Grace"}
  ],
  "teams": [
    {"id": "t-1", "name": "Platform", "members": ["u-1", "u-2"]}
  ]
}`

const inputJSON = `{
  "notification_id": "n-1",
  "audience": {"rosters": ["t-1"]},
  "content": {"title": "Maintenance window"}
}`

func newTestApp(t *testing.T) *app {
	dir := t.TempDir()

	cfg, err := config.LoadFrom(map[string]string{
		"PREPFLOW_BACKEND":    "memory",
		"PREPFLOW_STORE_PATH": filepath.Join(dir, "store.db"),
	})
	require.NoError(t, err)

	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })

	return a
}

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func Test_SeedSubmitStatus(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	require.NoError(t, a.seed(ctx, writeFile(t, "directory.json", directoryJSON)))
	require.NoError(t, a.submitFile(ctx, writeFile(t, "input.json", inputJSON)))

	var out bytes.Buffer
	require.NoError(t, a.printStatus(ctx, &out, "n-1"))
	require.Contains(t, out.String(), "Running")
	require.Contains(t, out.String(), "not prepared yet")

	options := worker.DefaultOptions
	options.WorkflowPollingInterval = 10 * time.Millisecond
	options.ActivityPollingInterval = 10 * time.Millisecond

	wctx, cancel := context.WithCancel(ctx)
	w := worker.New(a.backend, &options)
	require.NoError(t, prepare.Register(w, a.activities))
	require.NoError(t, w.Start(wctx))
	defer func() {
		cancel()
		require.NoError(t, w.WaitForCompletion())
	}()

	state, err := a.client.WaitForWorkflowInstance(ctx, prepare.Instance("n-1"), 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, core.WorkflowInstanceStateCompleted, state)

	out.Reset()
	require.NoError(t, a.printStatus(ctx, &out, "n-1"))
	require.Contains(t, out.String(), "Completed")
	require.Contains(t, out.String(), "status:     Sending")
	require.Contains(t, out.String(), "recipients: 2")
}

func Test_SubmitFile_Invalid(t *testing.T) {
	a := newTestApp(t)

	require.Error(t, a.submitFile(context.Background(), writeFile(t, "input.json", "{")))
	require.Error(t, a.submitFile(context.Background(), writeFile(t, "input.json", `{"audience": {}}`)))
}

func Test_Run_Usage(t *testing.T) {
	require.ErrorIs(t, run(nil), errUsage)
	require.ErrorIs(t, run([]string{"status"}), errUsage)
}
