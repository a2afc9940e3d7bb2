// Package manifest loads the project description (releasy.yaml or
// releasy.toml) and turns it into a models.Project.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/blang/semver"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/releasy/internal/models"
	"github.com/joescharf/releasy/internal/vcs"
)

const (
	YAMLFile = "releasy.yaml"
	TOMLFile = "releasy.toml"
)

// Files are the manifest names searched for, in order.
var Files = []string{YAMLFile, TOMLFile}

// ErrNotFound is returned by Find when no manifest exists in a directory.
var ErrNotFound = errors.New("no releasy.yaml or releasy.toml found")

// Manifest is the on-disk project description.
type Manifest struct {
	Name         string              `yaml:"name" toml:"name"`
	Version      string              `yaml:"version" toml:"version"`
	Executable   string              `yaml:"executable" toml:"executable"`
	Files        []string            `yaml:"files" toml:"files"`
	Readme       string              `yaml:"readme" toml:"readme"`
	License      string              `yaml:"license" toml:"license"`
	Exposed      []string            `yaml:"exposed" toml:"exposed"`
	Icon         string              `yaml:"icon" toml:"icon"`
	OutputPath   string              `yaml:"output_path" toml:"output_path"`
	Variants     []string            `yaml:"variants" toml:"variants"`
	Dependencies []Dependency        `yaml:"dependencies" toml:"dependencies"`
	ExtraFiles   map[string][]string `yaml:"extra_files" toml:"extra_files"`
	OSX          OSX                 `yaml:"osx" toml:"osx"`
	Win32        Win32               `yaml:"win32" toml:"win32"`
}

type Dependency struct {
	Name string `yaml:"name" toml:"name"`
	Path string `yaml:"path" toml:"path"`
}

// OSX holds settings for the osx_app variant.
type OSX struct {
	Wrapper         string `yaml:"wrapper" toml:"wrapper"`
	URL             string `yaml:"url" toml:"url"`
	Icon            string `yaml:"icon" toml:"icon"`
	ExcludeEncoding *bool  `yaml:"exclude_encoding" toml:"exclude_encoding"`
}

// Win32 holds settings shared by the win32 variants.
type Win32 struct {
	Icon           string `yaml:"icon" toml:"icon"`
	InstallerGroup string `yaml:"installer_group" toml:"installer_group"`
	Links          []Link `yaml:"links" toml:"links"`
}

type Link struct {
	URL   string `yaml:"url" toml:"url"`
	Title string `yaml:"title" toml:"title"`
}

// Find returns the path of the manifest in dir.
func Find(dir string) (string, error) {
	for _, name := range Files {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNotFound, dir)
}

// Load reads and decodes the manifest at path, choosing the format from its
// extension.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := Parse(data, strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a manifest in the given format ("yaml", "yml" or "toml").
func Parse(data []byte, format string) (*Manifest, error) {
	var m Manifest
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case "toml":
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported manifest format %q", format)
	}
	return &m, nil
}

// NormalizeVersion parses v tolerantly ("v1.2" -> "1.2.0"). An empty
// version stays empty.
func NormalizeVersion(v string) (string, error) {
	if strings.TrimSpace(v) == "" {
		return "", nil
	}
	sv, err := semver.ParseTolerant(v)
	if err != nil {
		return "", fmt.Errorf("invalid version %q: %w", v, err)
	}
	return sv.String(), nil
}

// Project resolves the manifest against root. File patterns are expanded,
// and when no version is set the latest git tag is used if vc is non-nil.
func (m *Manifest) Project(root string, vc vcs.Client) (*models.Project, error) {
	if m.Name == "" {
		return nil, errors.New("manifest: name is required")
	}
	if m.Executable == "" {
		return nil, errors.New("manifest: executable is required")
	}

	if _, err := os.Stat(filepath.Join(root, m.Executable)); err != nil {
		return nil, fmt.Errorf("manifest: executable %s not found", m.Executable)
	}

	version, err := NormalizeVersion(m.Version)
	if err != nil {
		return nil, err
	}
	if version == "" && vc != nil {
		// Tags that are not versions, like "release-5", leave the version unset.
		if tag, err := vc.LatestTag(root); err == nil {
			if v, err := NormalizeVersion(tag); err == nil {
				version = v
			}
		}
	}

	files, err := expandFiles(root, m.Files)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(files, filepath.ToSlash(m.Executable)) {
		files = append([]string{filepath.ToSlash(m.Executable)}, files...)
	}

	p := &models.Project{
		Root:       root,
		Name:       m.Name,
		Version:    version,
		Executable: filepath.ToSlash(m.Executable),
		Files:      files,
		Readme:     m.Readme,
		License:    m.License,
		Exposed:    m.Exposed,
		Icon:       m.Icon,
		OutputPath: m.OutputPath,
	}
	seen := map[string]bool{}
	for _, d := range m.Dependencies {
		if d.Name == "" || d.Path == "" {
			return nil, fmt.Errorf("manifest: dependency needs both name and path")
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("manifest: dependency %q declared twice", d.Name)
		}
		seen[d.Name] = true
		p.Dependencies = append(p.Dependencies, models.Dependency{Name: d.Name, Path: p.Path(d.Path)})
	}
	return p, nil
}

// expandFiles expands each entry as a glob relative to root, keeping the
// declared entry order and dropping duplicates. An entry matching nothing is an
// error.
func expandFiles(root string, patterns []string) ([]string, error) {
	fsys := os.DirFS(root)
	var files []string
	seen := map[string]bool{}
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("files: bad pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("files: nothing matches %q", pattern)
		}
		slices.Sort(matches)
		for _, f := range matches {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	return files, nil
}

// VariantIcon returns the icon for a platform: the explicit one if set,
// otherwise the shared icon with ext appended when that file exists.
func (m *Manifest) VariantIcon(root, explicit, ext string) string {
	if explicit != "" {
		return explicit
	}
	if m.Icon == "" {
		return ""
	}
	candidate := m.Icon
	if filepath.Ext(candidate) != ext {
		candidate += ext
	}
	if _, err := os.Stat(filepath.Join(root, candidate)); err != nil {
		return ""
	}
	return candidate
}
