// Package doctor checks that a project and the machine can produce releases.
package doctor

import (
	"os/exec"
	"path/filepath"
	"slices"

	"github.com/joescharf/releasy/internal/builder"
	"github.com/joescharf/releasy/internal/fsutil"
	"github.com/joescharf/releasy/internal/manifest"
	"github.com/joescharf/releasy/internal/tools"
)

// Check represents a single readiness check.
type Check struct {
	Name   string
	Passed bool
	Detail string
}

// Tools are the command templates the checks resolve.
type Tools struct {
	Extractor string // "7z" or "tar"
	SevenZip  string
	Tar       string
	Ocra      string
}

// Checker evaluates release readiness.
type Checker struct {
	Tools Tools

	// LookPath resolves executables; replaceable in tests.
	LookPath func(file string) (string, error)
}

// NewChecker returns a new Checker.
func NewChecker(t Tools) *Checker {
	return &Checker{Tools: t, LookPath: exec.LookPath}
}

// Run evaluates all checks for the project at path.
func (c *Checker) Run(path string) []Check {
	var checks []Check

	m, check := c.checkManifest(path)
	checks = append(checks, check)
	if m == nil {
		return checks
	}

	if _, err := m.Project(path, nil); err != nil {
		checks = append(checks, Check{Name: "Project", Passed: false, Detail: err.Error()})
	} else {
		checks = append(checks, Check{Name: "Project", Passed: true, Detail: m.Name + " files resolved"})
	}

	var variants []builder.Variant
	for _, name := range m.Variants {
		v, err := builder.ParseVariant(name)
		if err != nil {
			checks = append(checks, Check{Name: "Variant " + name, Passed: false, Detail: err.Error()})
			continue
		}
		variants = append(variants, v)
	}
	if len(m.Variants) == 0 {
		checks = append(checks, Check{Name: "Variants", Passed: false, Detail: "no variants configured"})
	}

	if slices.Contains(variants, builder.OsxApp) {
		checks = append(checks, c.checkWrapper(path, m.OSX.Wrapper))
		checks = append(checks, c.checkExtractor())
	}
	if slices.ContainsFunc(variants, func(v builder.Variant) bool { return v != builder.OsxApp }) {
		checks = append(checks, c.checkTool("Packer", c.Tools.Ocra, "ocra"))
	}
	checks = append(checks, c.checkTool("git", "git", "git"))

	return checks
}

func (c *Checker) checkManifest(path string) (*manifest.Manifest, Check) {
	file, err := manifest.Find(path)
	if err != nil {
		return nil, Check{Name: "Manifest", Passed: false, Detail: "releasy.yaml or releasy.toml missing"}
	}
	m, err := manifest.Load(file)
	if err != nil {
		return nil, Check{Name: "Manifest", Passed: false, Detail: err.Error()}
	}
	return m, Check{Name: "Manifest", Passed: true, Detail: filepath.Base(file) + " found"}
}

func (c *Checker) checkWrapper(root, wrapper string) Check {
	if wrapper == "" {
		return Check{Name: "OS X wrapper", Passed: false, Detail: "osx.wrapper not set"}
	}
	p := wrapper
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	if !fsutil.Exists(p) {
		return Check{Name: "OS X wrapper", Passed: false, Detail: wrapper + " missing"}
	}
	return Check{Name: "OS X wrapper", Passed: true, Detail: wrapper + " found"}
}

func (c *Checker) checkExtractor() Check {
	if c.Tools.Extractor == "tar" {
		return c.checkTool("Extractor", c.Tools.Tar, "tar")
	}
	return c.checkTool("Extractor", c.Tools.SevenZip, "7z")
}

// checkTool resolves the first word of a command template on PATH.
func (c *Checker) checkTool(label, template, fallback string) Check {
	if template == "" {
		template = fallback
	}
	argv, err := tools.Command(template)
	if err != nil {
		return Check{Name: label, Passed: false, Detail: err.Error()}
	}
	found, err := c.LookPath(argv[0])
	if err != nil {
		return Check{Name: label, Passed: false, Detail: argv[0] + " not found on PATH"}
	}
	return Check{Name: label, Passed: true, Detail: found}
}
