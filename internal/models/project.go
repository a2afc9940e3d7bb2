package models

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Dependency is a resolved runtime dependency (a gem) that can be vendored
// into a bundle.
type Dependency struct {
	Name string
	Path string // gem root on disk, the directory containing lib/
}

// Link is a web shortcut shipped with Windows installers.
type Link struct {
	URL   string
	Title string
}

// Project is the read-only description of what is being packaged.
// It is built once from the manifest and never mutated by builders.
type Project struct {
	Root         string // directory that relative paths are resolved against
	Name         string
	Version      string
	Executable   string   // entry point, relative to the project root
	Files        []string // files to package, relative to the project root
	Readme       string
	License      string
	Exposed      []string // extra files copied next to the artifact
	Icon         string
	OutputPath   string
	Verbose      bool
	Dependencies []Dependency
}

var (
	nameStrip = regexp.MustCompile(`[^a-z0-9_\- ]`)
	nameSplit = regexp.MustCompile(`[\-_ ]+`)
)

// UnderscoredName returns the name lowercased with separators collapsed to
// underscores, e.g. "Blaster Bots: Mars" -> "blaster_bots_mars".
func (p *Project) UnderscoredName() string {
	s := nameStrip.ReplaceAllString(strings.ToLower(strings.TrimSpace(p.Name)), "")
	var parts []string
	for _, part := range nameSplit.Split(s, -1) {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "_")
}

// UnderscoredVersion returns the version with dots replaced by underscores.
func (p *Project) UnderscoredVersion() string {
	return strings.ReplaceAll(p.Version, ".", "_")
}

// ExposedFiles returns readme, license and any other exposed files, in that
// order, skipping empty entries.
func (p *Project) ExposedFiles() []string {
	var files []string
	if p.Readme != "" {
		files = append(files, p.Readme)
	}
	if p.License != "" {
		files = append(files, p.License)
	}
	files = append(files, p.Exposed...)
	return files
}

// Path resolves a project-relative path against Root.
func (p *Project) Path(rel string) string {
	if rel == "" || filepath.IsAbs(rel) || p.Root == "" {
		return rel
	}
	return filepath.Join(p.Root, rel)
}

// SourcePaths returns every packaged file resolved against Root.
func (p *Project) SourcePaths() []string {
	paths := make([]string, len(p.Files))
	for i, f := range p.Files {
		paths[i] = p.Path(f)
	}
	return paths
}

// Dependency returns the dependency with the given name.
func (p *Project) Dependency(name string) (Dependency, bool) {
	for _, d := range p.Dependencies {
		if d.Name == name {
			return d, true
		}
	}
	return Dependency{}, false
}
