package release

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/releasy/internal/lock"
	"github.com/joescharf/releasy/internal/models"
	"github.com/joescharf/releasy/internal/output"
	"github.com/joescharf/releasy/internal/store"
	"github.com/joescharf/releasy/internal/task"
)

const manifestYAML = `name: Asteroids
version: 1.0.0
executable: asteroids.rb
files: [asteroids.rb, "lib/*.rb"]
variants: [osx_app, win32_standalone]
osx:
  wrapper: gosu-mac-wrapper-0.7.44.tar.gz
  url: org.example.asteroids
`

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

// fakeWrapper unpacks a minimal Gosu wrapper.
type fakeWrapper struct{ calls int }

func (f *fakeWrapper) Extract(archive, dest string) error {
	f.calls++
	app := filepath.Join(dest, "RubyGosu App.app", "Contents")
	for path, body := range map[string]string{
		"Info.plist":            "<string>RubyGosu App</string><string>org.libgosu.UntitledGame</string>",
		"MacOS/RubyGosu App":    "binary",
		"Resources/Gosu.icns":   "icon",
		"Resources/lib/gosu.rb": "gosu",
	} {
		if err := os.MkdirAll(filepath.Dir(filepath.Join(app, path)), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(app, path), []byte(body), 0644); err != nil {
			return err
		}
	}
	return nil
}

// fakeOcra writes whatever --output names.
type fakeOcra struct {
	calls [][]string
	fail  error
}

func (f *fakeOcra) Run(dir string, argv []string) error {
	f.calls = append(f.calls, argv)
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

type fixture struct {
	root    string
	wrapper *fakeWrapper
	ocra    *fakeOcra
	ui      *output.UI
	out     *bytes.Buffer
}

func newFixture(t *testing.T, manifest string) *fixture {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "releasy.yaml"), manifest)
	writeFile(t, filepath.Join(root, "asteroids.rb"), "require 'lib/ship'")
	writeFile(t, filepath.Join(root, "lib", "ship.rb"), "class Ship; end")
	writeFile(t, filepath.Join(root, "gosu-mac-wrapper-0.7.44.tar.gz"), "archive")

	out := &bytes.Buffer{}
	return &fixture{
		root:    root,
		wrapper: &fakeWrapper{},
		ocra:    &fakeOcra{},
		ui:      &output.UI{Out: out, ErrOut: out},
		out:     out,
	}
}

func (f *fixture) settings() Settings {
	return Settings{Runner: f.ocra, Archive: f.wrapper, HostOS: "darwin"}
}

func (f *fixture) open(t *testing.T) *Session {
	t.Helper()
	sess, err := Open(f.root, f.settings(), f.ui, nil)
	require.NoError(t, err)
	return sess
}

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "releasy.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen(t *testing.T) {
	f := newFixture(t, manifestYAML)
	sess := f.open(t)

	assert.Equal(t, "Asteroids", sess.Project.Name)
	assert.Equal(t, []string{"asteroids.rb", "lib/ship.rb"}, sess.Project.Files)
	require.Len(t, sess.Builders, 2)
	assert.Len(t, sess.Scheduler.Tasks(), 2)
	assert.Equal(t, filepath.Join(f.root, "pkg"), sess.OutputDir())
}

func TestOpen_Errors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{"no variants", "name: A\nexecutable: asteroids.rb\n"},
		{"unknown variant", "name: A\nexecutable: asteroids.rb\nvariants: [linux_deb]\n"},
		{"builder config", "name: A\nexecutable: asteroids.rb\nvariants: [osx_app]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.manifest)
			_, err := Open(f.root, f.settings(), f.ui, nil)
			assert.Error(t, err)
			assert.NoDirExists(t, filepath.Join(f.root, "pkg"))
		})
	}

	f := newFixture(t, "name: A\nexecutable: asteroids.rb\nvariants: [osx_app]\n")
	_, err := Open(f.root, f.settings(), f.ui, nil)
	assert.True(t, IsConfigError(err))

	_, err = Open(t.TempDir(), Settings{}, f.ui, nil)
	assert.Error(t, err)
}

func TestPlan(t *testing.T) {
	f := newFixture(t, manifestYAML)
	sess := f.open(t)

	infos, err := sess.Plan()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "build:osx:app", infos[0].Name)
	assert.Equal(t, "osx_app", infos[0].Variant)
	assert.True(t, infos[0].Stale)
	assert.Equal(t, "win32_standalone", infos[1].Variant)

	infos, err = sess.Plan("win32_standalone")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "build:win32:standalone", infos[0].Name)

	_, err = sess.Plan("win32_installer")
	assert.True(t, errors.Is(err, task.ErrUnknownTask))
}

func TestBuild_RecordsHistory(t *testing.T) {
	f := newFixture(t, manifestYAML)
	st := newStore(t)
	ctx := context.Background()

	results, err := f.open(t).Build(ctx, nil, st)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, task.StatusBuilt, r.Status)
	}
	assert.DirExists(t, filepath.Join(f.root, "pkg", "asteroids_1_0_0_OSX", "Asteroids.app"))
	assert.FileExists(t, filepath.Join(f.root, "pkg", "asteroids_1_0_0_WIN32_EXE", "asteroids.exe"))
	assert.NoFileExists(t, filepath.Join(f.root, "pkg", lock.FileName))

	// A fresh session finds everything up to date.
	results, err = f.open(t).Build(ctx, nil, st)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, task.StatusSkipped, r.Status)
	}
	assert.Equal(t, 1, f.wrapper.calls)
	assert.Contains(t, f.out.String(), "build:osx:app is up to date")

	builds, err := st.ListBuilds(ctx, store.BuildListFilter{Project: "Asteroids"})
	require.NoError(t, err)
	require.Len(t, builds, 4)
	assert.Equal(t, models.BuildStatusSkipped, builds[0].Status)
	assert.Equal(t, "1.0.0", builds[0].Version)
}

func TestBuild_FailureIsRecorded(t *testing.T) {
	f := newFixture(t, manifestYAML)
	f.ocra.fail = errors.New("ocra: exit status 1")
	st := newStore(t)
	ctx := context.Background()

	_, err := f.open(t).Build(ctx, []string{"win32_standalone"}, st)
	require.Error(t, err)

	builds, err := st.ListBuilds(ctx, store.BuildListFilter{Status: models.BuildStatusFailed})
	require.NoError(t, err)
	require.Len(t, builds, 1)
	assert.Equal(t, "win32_standalone", builds[0].Variant)
	assert.True(t, strings.Contains(builds[0].Error, "exit status 1"))
	assert.Contains(t, f.out.String(), "build:win32:standalone failed")
}

func TestBuild_Locked(t *testing.T) {
	f := newFixture(t, manifestYAML)
	sess := f.open(t)

	l := lock.ForDir(sess.OutputDir())
	require.NoError(t, os.MkdirAll(sess.OutputDir(), 0755))
	require.NoError(t, l.WritePID(os.Getppid()))

	_, err := sess.Build(context.Background(), nil, nil)
	assert.True(t, errors.Is(err, lock.ErrLocked))
	assert.Empty(t, f.ocra.calls)
}

func TestBuild_Cancelled(t *testing.T) {
	f := newFixture(t, manifestYAML)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := f.open(t).Build(ctx, nil, nil)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, results)
}
