// Package builder turns a project into platform release artifacts.
//
// Each Variant is one kind of artifact. A Builder is constructed once with
// validated options and registers staleness-gated tasks; nothing touches the
// filesystem until the scheduler runs those tasks.
package builder

import (
	"fmt"
	"path/filepath"
	"runtime"
	"slices"

	"github.com/joescharf/releasy/internal/models"
	"github.com/joescharf/releasy/internal/output"
	"github.com/joescharf/releasy/internal/task"
	"github.com/joescharf/releasy/internal/tools"
)

// Variant names a release target. The set is closed.
type Variant string

const (
	OsxApp          Variant = "osx_app"
	Win32Installer  Variant = "win32_installer"
	Win32Folder     Variant = "win32_folder"
	Win32Standalone Variant = "win32_standalone"
)

// Variants lists every supported variant.
var Variants = []Variant{OsxApp, Win32Installer, Win32Folder, Win32Standalone}

// ParseVariant validates a variant name.
func ParseVariant(s string) (Variant, error) {
	v := Variant(s)
	if slices.Contains(Variants, v) {
		return v, nil
	}
	return "", fmt.Errorf("unknown variant %q", s)
}

// Builder registers the tasks that produce one release artifact.
type Builder interface {
	Variant() Variant
	// Folder is the output folder the artifact is assembled in.
	Folder() string
	GenerateTasks() ([]*task.Task, error)
}

// Config is the immutable builder configuration assembled from Options.
type Config struct {
	Wrapper         string
	URL             string
	Icon            string
	InstallerGroup  string
	Links           []models.Link
	ExcludeEncoding bool

	ExtraFiles         map[string][]string
	BinaryGems         []string
	SourceGemsToRemove []string

	HostOS    string
	Packer    []string
	Runner    tools.Runner
	Extractor tools.Extractor
	UI        *output.UI
}

// Option sets one Config field.
type Option func(*Config)

func WithWrapper(path string) Option { return func(c *Config) { c.Wrapper = path } }

// WithURL sets the reverse-domain application identifier, e.g.
// "org.supergames.blasterbotsfrommars".
func WithURL(url string) Option { return func(c *Config) { c.URL = url } }

func WithIcon(path string) Option { return func(c *Config) { c.Icon = path } }

func WithInstallerGroup(group string) Option { return func(c *Config) { c.InstallerGroup = group } }

// WithLink adds a web shortcut to Windows installers.
func WithLink(url, title string) Option {
	return func(c *Config) { c.Links = append(c.Links, models.Link{URL: url, Title: title}) }
}

// WithExcludeEncoding strips unneeded encoding bundles from OS X apps.
func WithExcludeEncoding(exclude bool) Option { return func(c *Config) { c.ExcludeEncoding = exclude } }

// WithExtraFiles replaces the table of files gems need from outside lib/.
func WithExtraFiles(extras map[string][]string) Option {
	return func(c *Config) { c.ExtraFiles = extras }
}

func WithBinaryGems(names ...string) Option { return func(c *Config) { c.BinaryGems = names } }

func WithSourceGemsToRemove(names ...string) Option {
	return func(c *Config) { c.SourceGemsToRemove = names }
}

// WithHostOS overrides the GOOS of the machine running the build.
func WithHostOS(goos string) Option { return func(c *Config) { c.HostOS = goos } }

// WithPacker sets the argv prefix of the executable packer (ocra).
func WithPacker(argv ...string) Option { return func(c *Config) { c.Packer = argv } }

func WithRunner(r tools.Runner) Option { return func(c *Config) { c.Runner = r } }

func WithExtractor(e tools.Extractor) Option { return func(c *Config) { c.Extractor = e } }

func WithUI(ui *output.UI) Option { return func(c *Config) { c.UI = ui } }

func newConfig(opts []Option) Config {
	c := Config{
		ExtraFiles:         DefaultExtraFiles(),
		BinaryGems:         DefaultBinaryGems,
		SourceGemsToRemove: DefaultSourceGemsToRemove,
		HostOS:             runtime.GOOS,
		Packer:             []string{"ocra"},
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.UI == nil {
		c.UI = output.New()
	}
	if c.Runner == nil {
		c.Runner = tools.NewRunner(c.UI)
	}
	if c.Extractor == nil {
		c.Extractor = &tools.SevenZipExtractor{Runner: c.Runner, Command: []string{"7z"}}
	}
	return c
}

// New constructs and validates the builder for variant. Validation failures
// are *ConfigError.
func New(v Variant, p *models.Project, opts ...Option) (Builder, error) {
	if p == nil {
		return nil, configErr(v, "project", "not set")
	}
	if p.Name == "" {
		return nil, configErr(v, "project name", "not set")
	}

	cfg := newConfig(opts)
	var b Builder
	switch v {
	case OsxApp:
		b = &osxApp{cfg: cfg, project: p}
	case Win32Installer, Win32Folder, Win32Standalone:
		b = &win32{variant: v, cfg: cfg, project: p}
	default:
		return nil, configErr(v, "variant", "is not supported")
	}

	if err := b.(validator).validate(); err != nil {
		return nil, err
	}
	return b, nil
}

type validator interface {
	validate() error
}

// folderBase is <output>/<name>[_<version>], shared by every variant.
func folderBase(p *models.Project) string {
	out := p.OutputPath
	if out == "" {
		out = "pkg"
	}
	base := p.UnderscoredName()
	if p.Version != "" {
		base += "_" + p.UnderscoredVersion()
	}
	return filepath.Join(p.Path(out), base)
}
