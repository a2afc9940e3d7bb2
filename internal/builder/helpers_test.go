package builder

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joescharf/releasy/internal/fsutil"
	"github.com/joescharf/releasy/internal/models"
	"github.com/joescharf/releasy/internal/output"
	"github.com/joescharf/releasy/internal/task"
)

// past predates every file a test creates.
var past = time.Now().Add(-time.Hour)

const skeletonPlist = `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
	<key>CFBundleExecutable</key>
	<string>RubyGosu App</string>
	<key>CFBundleIconFile</key>
	<string>Gosu</string>
	<key>CFBundleIdentifier</key>
	<string>org.libgosu.UntitledGame</string>
</dict>
</plist>
`

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// makeSkeleton lays out a minimal Gosu wrapper app under dir.
func makeSkeleton(t *testing.T, dir string) string {
	t.Helper()
	app := filepath.Join(dir, wrapperAppName)
	contents := filepath.Join(app, "Contents")
	writeFile(t, filepath.Join(contents, "Info.plist"), skeletonPlist)
	writeFile(t, filepath.Join(contents, "MacOS", wrapperExecutable), "binary")
	writeFile(t, filepath.Join(contents, "Resources", wrapperDefaultIcon), "gosu icon")
	writeFile(t, filepath.Join(contents, "Resources", "lib", "chingu", "chingu.rb"), "chingu")
	for _, enc := range []string{"encdb.bundle", "euc_jp.bundle", "trans/transdb.bundle", "trans/big5.bundle"} {
		writeFile(t, filepath.Join(contents, "Resources", "lib", "enc", enc), enc)
	}
	return app
}

// fakeExtractor stands in for 7z by copying a prepared skeleton.
type fakeExtractor struct {
	skeleton string
	calls    int
}

func (f *fakeExtractor) Extract(archive, dest string) error {
	f.calls++
	return fsutil.Copy(f.skeleton, filepath.Join(dest, wrapperAppName))
}

type testEnv struct {
	root      string
	wrapper   string
	extractor *fakeExtractor
	ui        *output.UI
	out       *bytes.Buffer
	errOut    *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	skeletonDir := t.TempDir()
	skeleton := makeSkeleton(t, skeletonDir)

	wrapper := filepath.Join(t.TempDir(), "gosu-mac-wrapper-0.7.44.tar.gz")
	writeFile(t, wrapper, "archive")

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return &testEnv{
		root:      root,
		wrapper:   wrapper,
		extractor: &fakeExtractor{skeleton: skeleton},
		ui:        &output.UI{Out: out, ErrOut: errOut},
		out:       out,
		errOut:    errOut,
	}
}

func (e *testEnv) asteroids(t *testing.T) *models.Project {
	t.Helper()
	writeFile(t, filepath.Join(e.root, "asteroids.rb"), "require 'lib/ship'")
	writeFile(t, filepath.Join(e.root, "lib", "ship.rb"), "class Ship; end")
	return &models.Project{
		Root:       e.root,
		Name:       "Asteroids",
		Executable: "asteroids.rb",
		Files:      []string{"asteroids.rb", "lib/ship.rb"},
	}
}

func (e *testEnv) osxOptions(extra ...Option) []Option {
	return append([]Option{
		WithWrapper(e.wrapper),
		WithURL("org.example.asteroids"),
		WithExtractor(e.extractor),
		WithUI(e.ui),
		WithHostOS("darwin"),
	}, extra...)
}

// gem creates a fake installed gem with a lib/ file and optional extras.
func (e *testEnv) gem(t *testing.T, name string, files map[string]string) models.Dependency {
	t.Helper()
	path := filepath.Join(e.root, "gems", name+"-1.0")
	writeFile(t, filepath.Join(path, "lib", name+".rb"), name)
	for rel, body := range files {
		writeFile(t, filepath.Join(path, rel), body)
	}
	return models.Dependency{Name: name, Path: path}
}

func runTasks(t *testing.T, tasks []*task.Task) []bool {
	t.Helper()
	var ran []bool
	for _, tk := range tasks {
		r, err := tk.Run()
		require.NoError(t, err)
		ran = append(ran, r)
	}
	return ran
}

// runOnce builds fresh tasks for v and runs the first one.
func runOnce(t *testing.T, v Variant, p *models.Project, opts ...Option) (bool, error) {
	t.Helper()
	b, err := New(v, p, opts...)
	require.NoError(t, err)
	tasks, err := b.GenerateTasks()
	require.NoError(t, err)
	return tasks[0].Run()
}

func build(t *testing.T, v Variant, p *models.Project, opts ...Option) Builder {
	t.Helper()
	b, err := New(v, p, opts...)
	require.NoError(t, err)
	tasks, err := b.GenerateTasks()
	require.NoError(t, err)
	runTasks(t, tasks)
	return b
}

// fakePacker simulates ocra and the self-extracting installer.
type fakePacker struct {
	calls   [][]string
	dirs    []string
	scripts []string
	fail    error
	// installFail makes the silent install write the folder and then fail.
	installFail error
}

func argAfter(argv []string, flag string) string {
	for i, a := range argv {
		if a == flag && i+1 < len(argv) {
			return argv[i+1]
		}
	}
	return ""
}

func (f *fakePacker) Run(dir string, argv []string) error {
	f.calls = append(f.calls, argv)
	f.dirs = append(f.dirs, dir)
	if f.fail != nil {
		return f.fail
	}

	switch {
	case argv[0] == "ocra":
		if script := argAfter(argv, "--innosetup"); script != "" {
			data, err := os.ReadFile(script)
			if err != nil {
				return err
			}
			f.scripts = append(f.scripts, string(data))
		}
		out := argAfter(argv, "--output")
		if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
			return err
		}
		return os.WriteFile(out, []byte("exe"), 0755)
	case strings.HasSuffix(argv[0], "_setup_to_folder.exe"):
		dest := strings.TrimPrefix(argv[2], "/DIR=")
		for _, name := range append([]string{"asteroids.exe", "src/asteroids.rb"}, UninstallerFiles...) {
			p := filepath.Join(dest, name)
			if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
				return err
			}
			if err := os.WriteFile(p, []byte(name), 0644); err != nil {
				return err
			}
		}
		return f.installFail
	}
	return errors.New("unexpected command " + argv[0])
}

func (f *fakePacker) Pipe(dir string, from, to []string) error {
	return errors.New("unexpected pipe")
}
