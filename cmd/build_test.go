package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/releasy/internal/output"
)

// projectEnv writes a minimal project and points the --project flag at it.
func projectEnv(t *testing.T) (string, *bytes.Buffer) {
	t.Helper()
	testEnv(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "releasy.yaml"), []byte(`name: Asteroids
version: 1.0.0
executable: asteroids.rb
variants: [win32_standalone]
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "asteroids.rb"), []byte("puts 'pew'"), 0644))

	orig := project
	project = dir
	t.Cleanup(func() { project = orig })

	out := &bytes.Buffer{}
	ui = &output.UI{Out: out, ErrOut: out}
	return dir, out
}

func TestTasks_ListsStaleTask(t *testing.T) {
	_, out := projectEnv(t)

	require.NoError(t, tasksRun(nil))
	assert.Contains(t, out.String(), "build:win32:standalone")
	assert.Contains(t, out.String(), "win32_standalone")
	assert.Contains(t, out.String(), "stale")
}

func TestTasks_UnknownTask(t *testing.T) {
	projectEnv(t)
	assert.Error(t, tasksRun([]string{"build:linux"}))
}

func TestBuild_DryRun(t *testing.T) {
	dir, out := projectEnv(t)
	dryRun = true
	ui.DryRun = true
	t.Cleanup(func() { dryRun = false })

	require.NoError(t, buildRun(context.Background(), nil))
	assert.Contains(t, out.String(), "[DRY-RUN] Would build build:win32:standalone")
	assert.NoDirExists(t, filepath.Join(dir, "pkg"))
}

func TestBuild_NoManifest(t *testing.T) {
	testEnv(t)
	orig := project
	project = t.TempDir()
	t.Cleanup(func() { project = orig })

	assert.Error(t, buildRun(context.Background(), nil))
}

func TestDoctor_ReportsMissingManifest(t *testing.T) {
	testEnv(t)
	orig := project
	project = t.TempDir()
	t.Cleanup(func() { project = orig })

	out := &bytes.Buffer{}
	ui = &output.UI{Out: out, ErrOut: out}

	err := doctorRun()
	assert.Error(t, err)
	assert.Contains(t, out.String(), "Manifest")
	assert.Contains(t, out.String(), "Score: 0/1")
}
