package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/releasy/internal/models"
	"github.com/joescharf/releasy/internal/output"
	"github.com/joescharf/releasy/internal/release"
	"github.com/joescharf/releasy/internal/store"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// fakeOcra writes whatever --output names.
type fakeOcra struct {
	calls int
	fail  error
}

func (f *fakeOcra) Run(dir string, argv []string) error {
	f.calls++
	if f.fail != nil {
		return f.fail
	}
	for i, a := range argv {
		if a == "--output" && i+1 < len(argv) {
			return os.WriteFile(argv[i+1], []byte("exe"), 0755)
		}
	}
	return errors.New("no --output")
}

func (f *fakeOcra) Pipe(dir string, from, to []string) error { return errors.New("unexpected pipe") }

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "releasy.yaml"), `name: Asteroids
version: 1.0.0
executable: asteroids.rb
variants: [win32_standalone]
`)
	writeFile(t, filepath.Join(dir, "asteroids.rb"), "puts 'pew'")
	return dir
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestServer(t *testing.T) (*Server, *store.SQLiteStore, *fakeOcra) {
	t.Helper()
	st := newTestStore(t)
	ocra := &fakeOcra{}
	open := func(dir string, ui *output.UI) (*release.Session, error) {
		return release.Open(dir, release.Settings{Runner: ocra}, ui, nil)
	}
	srv := NewServer(st, open, "test")
	require.NotNil(t, srv)
	return srv, st, ocra
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestMCPServer_RegistersTools(t *testing.T) {
	srv, _, _ := newTestServer(t)
	tools := srv.MCPServer().ListTools()

	for _, name := range []string{"releasy_list_tasks", "releasy_build", "releasy_history"} {
		assert.Contains(t, tools, name)
	}
}

func TestListTasks(t *testing.T) {
	srv, _, _ := newTestServer(t)
	dir := newProject(t)

	result, err := srv.handleListTasks(context.Background(), callToolReq("releasy_list_tasks", map[string]any{"dir": dir}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var tasks []release.TaskInfo
	resultJSON(t, result, &tasks)
	require.Len(t, tasks, 1)
	assert.Equal(t, "build:win32:standalone", tasks[0].Name)
	assert.Equal(t, "win32_standalone", tasks[0].Variant)
	assert.True(t, tasks[0].Stale)
}

func TestListTasks_Errors(t *testing.T) {
	srv, _, _ := newTestServer(t)

	result, err := srv.handleListTasks(context.Background(), callToolReq("releasy_list_tasks", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = srv.handleListTasks(context.Background(), callToolReq("releasy_list_tasks", map[string]any{"dir": t.TempDir()}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "failed to load project")
}

func TestBuild(t *testing.T) {
	srv, st, ocra := newTestServer(t)
	dir := newProject(t)
	ctx := context.Background()

	result, err := srv.handleBuild(ctx, callToolReq("releasy_build", map[string]any{
		"dir":     dir,
		"targets": []any{"win32_standalone"},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var out buildOut
	resultJSON(t, result, &out)
	assert.Equal(t, "Asteroids", out.Project)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "built", out.Results[0].Status)
	assert.Contains(t, out.Log, "build:win32:standalone built")
	assert.Equal(t, 1, ocra.calls)
	assert.FileExists(t, filepath.Join(dir, "pkg", "asteroids_1_0_0_WIN32_EXE", "asteroids.exe"))

	builds, err := st.ListBuilds(ctx, store.BuildListFilter{})
	require.NoError(t, err)
	assert.Len(t, builds, 1)
}

func TestBuild_DryRun(t *testing.T) {
	srv, st, ocra := newTestServer(t)
	dir := newProject(t)
	ctx := context.Background()

	result, err := srv.handleBuild(ctx, callToolReq("releasy_build", map[string]any{"dir": dir, "dry_run": true}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var out buildOut
	resultJSON(t, result, &out)
	assert.True(t, out.DryRun)
	require.Len(t, out.Planned, 1)
	assert.Empty(t, out.Results)
	assert.Equal(t, 0, ocra.calls)
	assert.NoDirExists(t, filepath.Join(dir, "pkg"))

	builds, err := st.ListBuilds(ctx, store.BuildListFilter{})
	require.NoError(t, err)
	assert.Empty(t, builds)
}

func TestBuild_Failure(t *testing.T) {
	srv, _, ocra := newTestServer(t)
	ocra.fail = errors.New("ocra: exit status 1")
	dir := newProject(t)

	result, err := srv.handleBuild(context.Background(), callToolReq("releasy_build", map[string]any{"dir": dir}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	var out buildOut
	resultJSON(t, result, &out)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "failed", out.Results[0].Status)
	assert.Contains(t, out.Error, "exit status 1")
}

func TestHistory(t *testing.T) {
	srv, st, _ := newTestServer(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, status := range []models.BuildStatus{models.BuildStatusBuilt, models.BuildStatusFailed, models.BuildStatusSkipped} {
		require.NoError(t, st.RecordBuild(ctx, &models.BuildRecord{
			Project:   "Asteroids",
			Variant:   "osx_app",
			Target:    "pkg/asteroids_OSX",
			Status:    status,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	result, err := srv.handleHistory(ctx, callToolReq("releasy_history", map[string]any{"project": "Asteroids", "limit": 2}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var out []historyOut
	resultJSON(t, result, &out)
	require.Len(t, out, 2)
	assert.Equal(t, "skipped", out[0].Status)
	assert.Equal(t, "failed", out[1].Status)

	result, err = srv.handleHistory(ctx, callToolReq("releasy_history", map[string]any{"status": "failed"}))
	require.NoError(t, err)
	resultJSON(t, result, &out)
	assert.Len(t, out, 1)
}

func TestHistory_NoStore(t *testing.T) {
	srv := NewServer(nil, nil, "test")
	result, err := srv.handleHistory(context.Background(), callToolReq("releasy_history", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
