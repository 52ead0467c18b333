package ganttsync

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surrealdb/ganttsync/pkg/client"
	"github.com/surrealdb/ganttsync/pkg/models"
	"github.com/surrealdb/ganttsync/pkg/syncer"
)

const document = `{
	"project": {"name": "Launch"},
	"calendars": {"rows": [{"id": "general", "intervals": [{"isWorking": false}]}]},
	"tasks": {"rows": [{"id": 1, "name": "Root", "children": [{"id": 2, "name": "Child"}]}]},
	"resources": {"rows": [{"id": 1, "name": "Ann"}]},
	"dependencies": {"rows": []},
	"assignments": {"rows": [{"id": 1, "event": 2, "resource": 1, "units": 100}]}
}`

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewCommand(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeDocument(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(document), 0o600))
	return path
}

func TestCommandImport(t *testing.T) {
	out, err := runCommand(t, "--store", "memory", "--log-level", "error", "import", writeDocument(t))
	require.NoError(t, err)

	var stats syncer.ImportStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, syncer.ImportStats{
		Project:     true,
		Calendars:   1,
		Intervals:   1,
		Tasks:       2,
		Resources:   1,
		Assignments: 1,
	}, stats)
}

func TestCommandImportRejectsBadDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tasks": []}`), 0o600))

	_, err := runCommand(t, "--store", "memory", "--log-level", "error", "import", path)
	require.Error(t, err)
	assert.True(t, syncer.IsValidation(err))

	_, err = runCommand(t, "--store", "memory", "import", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestCommandMigrate(t *testing.T) {
	_, err := runCommand(t, "--store", "memory", "--log-level", "error", "migrate")
	require.NoError(t, err)

	_, err = runCommand(t, "--store", "memory", "--log-level", "error", "--readonly", "migrate")
	assert.Error(t, err)
}

func TestCommandUnknownStore(t *testing.T) {
	_, err := runCommand(t, "--store", "neo4j", "migrate")
	assert.ErrorContains(t, err, "unknown store")
}

func TestCommandExportEmptyStore(t *testing.T) {
	out, err := runCommand(t, "--store", "memory", "--log-level", "error", "export")
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"calendars": {"rows": []},
		"tasks": {"rows": []},
		"dependencies": {"rows": []},
		"resources": {"rows": []},
		"assignments": {"rows": []}
	}`, out)
}

func TestCommandExportRemote(t *testing.T) {
	app, _ := newTestApp(t)
	doc, err := syncer.ReadDocument(bytes.NewReader([]byte(document)))
	require.NoError(t, err)
	_, err = app.Syncer().Import(context.Background(), doc)
	require.NoError(t, err)

	server := httptest.NewServer(app.Handler())
	defer server.Close()

	output := filepath.Join(t.TempDir(), "export.json")
	_, err = runCommand(t, "export", "--remote", server.URL, "--output", output)
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	exported, err := models.DecodeJSONBytes(data)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "project", "name": "Launch"}, exported[models.KeyProject])

	roundTrip, err := syncer.ParseDocument(exported)
	require.NoError(t, err)
	require.Len(t, roundTrip.Tasks, 1)
	assert.Equal(t, "1", roundTrip.Tasks[0].ID())
	assert.Len(t, roundTrip.Assignments, 1)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	app, _ := newTestApp(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, ln) }()

	c := client.New("http://" + ln.Addr().String())
	require.Eventually(t, func() bool {
		return c.Health(context.Background()) == nil
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := c.Sync(context.Background(), models.Record{"tasks": map[string]any{
		"added": []any{map[string]any{"id": "t1"}},
	}})
	require.NoError(t, err)
	assert.True(t, resp.Success)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
