// Package release loads a project from its manifest, builds the configured
// variants, and records every task outcome in the build history.
package release

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"time"

	"github.com/joescharf/releasy/internal/builder"
	"github.com/joescharf/releasy/internal/lock"
	"github.com/joescharf/releasy/internal/manifest"
	"github.com/joescharf/releasy/internal/models"
	"github.com/joescharf/releasy/internal/output"
	"github.com/joescharf/releasy/internal/store"
	"github.com/joescharf/releasy/internal/task"
	"github.com/joescharf/releasy/internal/tools"
	"github.com/joescharf/releasy/internal/vcs"
)

// Settings are the machine-level tool settings, usually read from viper.
type Settings struct {
	SevenZip        string // command template, e.g. "7z"
	Tar             string
	Ocra            string // e.g. "ruby -S ocra"
	Extractor       string // "7z" or "tar"
	ExcludeEncoding bool   // default when the manifest does not say
	OutputPath      string // default when the manifest does not say
	HostOS          string

	// Runner and Archive override the external tools, mostly for tests.
	Runner  tools.Runner
	Archive tools.Extractor
}

// Session is a loaded project with its builders and task graph.
type Session struct {
	Manifest  *manifest.Manifest
	Project   *models.Project
	Builders  []builder.Builder
	Scheduler *task.Scheduler

	ui      *output.UI
	variant map[string]builder.Variant // task target -> variant
}

// Open loads the manifest in dir and constructs every declared builder.
// Builder configuration errors are returned before anything is written.
func Open(dir string, s Settings, ui *output.UI, vc vcs.Client) (*Session, error) {
	if ui == nil {
		ui = output.New()
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	path, err := manifest.Find(root)
	if err != nil {
		return nil, err
	}
	m, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}
	p, err := m.Project(root, vc)
	if err != nil {
		return nil, err
	}
	p.Verbose = ui.Verbose
	if p.OutputPath == "" {
		p.OutputPath = s.OutputPath
	}
	if len(m.Variants) == 0 {
		return nil, fmt.Errorf("%s: no variants configured", filepath.Base(path))
	}

	common, err := commonOptions(m, s, ui)
	if err != nil {
		return nil, err
	}

	sess := &Session{Manifest: m, Project: p, ui: ui, variant: map[string]builder.Variant{}}
	var tasks []*task.Task
	for _, name := range m.Variants {
		v, err := builder.ParseVariant(name)
		if err != nil {
			return nil, err
		}
		opts := append(append([]builder.Option{}, common...), variantOptions(v, m, p, s)...)
		b, err := builder.New(v, p, opts...)
		if err != nil {
			return nil, err
		}
		ts, err := b.GenerateTasks()
		if err != nil {
			return nil, err
		}
		for _, t := range ts {
			sess.variant[t.Target] = v
		}
		sess.Builders = append(sess.Builders, b)
		tasks = append(tasks, ts...)
	}

	sess.Scheduler, err = task.NewScheduler(tasks...)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func commonOptions(m *manifest.Manifest, s Settings, ui *output.UI) ([]builder.Option, error) {
	runner := s.Runner
	if runner == nil {
		runner = tools.NewRunner(ui)
	}

	extractor := s.Archive
	if extractor == nil {
		kind := s.Extractor
		if kind == "" {
			kind = "7z"
		}
		command := s.SevenZip
		if kind == "tar" {
			command = s.Tar
		}
		if command == "" {
			command = kind
		}
		var err error
		extractor, err = tools.NewExtractor(kind, runner, command)
		if err != nil {
			return nil, err
		}
	}

	extras := builder.DefaultExtraFiles()
	maps.Copy(extras, m.ExtraFiles)

	opts := []builder.Option{
		builder.WithUI(ui),
		builder.WithRunner(runner),
		builder.WithExtractor(extractor),
		builder.WithExtraFiles(extras),
	}
	if s.HostOS != "" {
		opts = append(opts, builder.WithHostOS(s.HostOS))
	}
	if s.Ocra != "" {
		packer, err := tools.Command(s.Ocra)
		if err != nil {
			return nil, fmt.Errorf("tools.ocra: %w", err)
		}
		opts = append(opts, builder.WithPacker(packer...))
	}
	return opts, nil
}

func variantOptions(v builder.Variant, m *manifest.Manifest, p *models.Project, s Settings) []builder.Option {
	if v == builder.OsxApp {
		exclude := s.ExcludeEncoding
		if m.OSX.ExcludeEncoding != nil {
			exclude = *m.OSX.ExcludeEncoding
		}
		opts := []builder.Option{
			builder.WithURL(m.OSX.URL),
			builder.WithIcon(m.VariantIcon(p.Root, m.OSX.Icon, ".icns")),
			builder.WithExcludeEncoding(exclude),
		}
		if m.OSX.Wrapper != "" {
			opts = append(opts, builder.WithWrapper(p.Path(m.OSX.Wrapper)))
		}
		return opts
	}

	opts := []builder.Option{
		builder.WithIcon(m.VariantIcon(p.Root, m.Win32.Icon, ".ico")),
		builder.WithInstallerGroup(m.Win32.InstallerGroup),
	}
	for _, l := range m.Win32.Links {
		opts = append(opts, builder.WithLink(l.URL, l.Title))
	}
	return opts
}

// Variant returns the variant that registered t.
func (s *Session) Variant(t *task.Task) builder.Variant {
	return s.variant[t.Target]
}

// OutputDir is the directory all variant folders are created in.
func (s *Session) OutputDir() string {
	out := s.Project.OutputPath
	if out == "" {
		out = "pkg"
	}
	return s.Project.Path(out)
}

// resolve maps variant names onto their task targets; other refs pass through.
func (s *Session) resolve(refs []string) []string {
	var out []string
	for _, ref := range refs {
		v, err := builder.ParseVariant(ref)
		found := false
		if err == nil {
			for target, tv := range s.variant {
				if tv == v {
					out = append(out, target)
					found = true
				}
			}
		}
		if !found {
			out = append(out, ref)
		}
	}
	return out
}

// TaskInfo describes a planned task.
type TaskInfo struct {
	Name        string `json:"name"`
	Variant     string `json:"variant"`
	Target      string `json:"target"`
	Description string `json:"description"`
	Stale       bool   `json:"stale"`
	Error       string `json:"error,omitempty"`
}

// Plan lists the tasks refs would run, in order, with their staleness.
// Refs may be task names, targets or variant names; none means everything.
func (s *Session) Plan(refs ...string) ([]TaskInfo, error) {
	plan, err := s.Scheduler.Plan(s.resolve(refs)...)
	if err != nil {
		return nil, err
	}
	infos := make([]TaskInfo, len(plan))
	for i, t := range plan {
		info := TaskInfo{
			Name:        t.Label(),
			Variant:     string(s.Variant(t)),
			Target:      t.Target,
			Description: t.Description,
		}
		stale, err := t.Stale()
		if err != nil {
			info.Error = err.Error()
		}
		info.Stale = stale
		infos[i] = info
	}
	return infos, nil
}

// Build runs the tasks for refs under the output-folder lock. Every result
// is reported through the UI and, if st is non-nil, recorded in the history.
func (s *Session) Build(ctx context.Context, refs []string, st store.Store) ([]task.Result, error) {
	l := lock.ForDir(s.OutputDir())
	if err := l.Acquire(); err != nil {
		return nil, err
	}
	defer func() {
		if err := l.Release(); err != nil {
			s.ui.Warning("release lock: %v", err)
		}
	}()

	var recordErr error
	results, err := s.Scheduler.Run(ctx, s.resolve(refs), func(r task.Result) {
		s.report(r)
		if st == nil {
			return
		}
		rec := s.record(r)
		if err := st.RecordBuild(ctx, rec); err != nil && recordErr == nil {
			recordErr = err
		}
	})
	if err != nil {
		return results, err
	}
	if recordErr != nil {
		s.ui.Warning("build history not saved: %v", recordErr)
	}
	return results, nil
}

func (s *Session) report(r task.Result) {
	switch r.Status {
	case task.StatusBuilt:
		s.ui.Success("%s built in %s", r.Task.Label(), r.Duration.Round(time.Millisecond))
	case task.StatusSkipped:
		s.ui.Info("%s is up to date", r.Task.Label())
	case task.StatusFailed:
		s.ui.Error("%s failed: %v", r.Task.Label(), r.Err)
	}
}

func (s *Session) record(r task.Result) *models.BuildRecord {
	rec := &models.BuildRecord{
		Project:   s.Project.Name,
		Version:   s.Project.Version,
		Variant:   string(s.Variant(r.Task)),
		Target:    r.Task.Target,
		Status:    models.BuildStatus(r.Status),
		Duration:  r.Duration,
		StartedAt: r.StartedAt,
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}

// IsConfigError reports whether err is a builder configuration error.
func IsConfigError(err error) bool {
	var ce *builder.ConfigError
	return errors.As(err, &ce)
}
