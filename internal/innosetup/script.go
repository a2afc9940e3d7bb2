// Package innosetup renders Inno Setup installer definitions.
package innosetup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"github.com/blang/semver"

	"github.com/joescharf/releasy/internal/models"
)

// Script holds everything needed to render an installer definition.
// Sections are always emitted in the order [Setup], [Files], [Run],
// [Icons], [Tasks].
type Script struct {
	AppName            string // underscored project name
	DisplayName        string
	Version            string
	Group              string // optional start menu group prefix
	OutputDir          string
	OutputBaseFilename string
	Icon               string
	License            string
	Readme             string
	LinkFiles          []string // paths of .url files
}

var nonWord = regexp.MustCompile(`[^\w\s]`)

// InstallDirName is the display name with punctuation removed.
func (s *Script) InstallDirName() string {
	return nonWord.ReplaceAllString(s.DisplayName, "")
}

// GroupName is the start menu group, prefixed by Group when set.
func (s *Script) GroupName() string {
	if s.Group == "" {
		return s.DisplayName
	}
	return s.Group + `\` + s.DisplayName
}

// Executable is the name of the packed executable inside {app}.
func (s *Script) Executable() string {
	return s.AppName + ".exe"
}

// VersionInfo returns a four-part numeric version for VersionInfoVersion,
// or "" when Version is not semver-like.
func (s *Script) VersionInfo() string {
	if s.Version == "" {
		return ""
	}
	v, err := semver.ParseTolerant(s.Version)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%d.%d.%d.0", v.Major, v.Minor, v.Patch)
}

// Sources lists the [Files] entries in declared order: license, readme,
// then each link file.
func (s *Script) Sources() []string {
	var lines []string
	if s.License != "" {
		lines = append(lines, fmt.Sprintf(`Source: "%s"; DestDir: "{app}"`, s.License))
	}
	if s.Readme != "" {
		lines = append(lines, fmt.Sprintf(`Source: "%s"; DestDir: "{app}"; Flags: isreadme`, s.Readme))
	}
	for _, l := range s.LinkFiles {
		lines = append(lines, fmt.Sprintf(`Source: "%s"; DestDir: "{app}"`, l))
	}
	return lines
}

const scriptTemplate = `[Setup]
AppName={{ .AppName }}
{{ if .Version }}AppVersion={{ .Version }}
{{ else }}AppVerName={{ .DisplayName }}
{{ end }}{{ with .VersionInfo }}VersionInfoVersion={{ . }}
{{ end }}DefaultDirName={pf}\{{ .InstallDirName }}
DefaultGroupName={{ .GroupName }}
OutputDir={{ .OutputDir }}
OutputBaseFilename={{ .OutputBaseFilename }}
{{ if .Icon }}SetupIconFile={{ .Icon }}
{{ end }}UninstallDisplayIcon={app}\{{ .Executable }}

[Files]
{{ range .Sources }}{{ . }}
{{ end }}
[Run]
Filename: "{app}\{{ .Executable }}"; Description: "Launch"; Flags: postinstall nowait skipifsilent unchecked

[Icons]
Name: "{group}\{{ .DisplayName }}"; Filename: "{app}\{{ .Executable }}"
Name: "{group}\Uninstall {{ .DisplayName }}"; Filename: "{uninstallexe}"
Name: "{commondesktop}\{{ .DisplayName }}"; Filename: "{app}\{{ .Executable }}"; Tasks: desktopicon

[Tasks]
Name: desktopicon; Description: "Create a &desktop icon"; GroupDescription: "Additional icons:";
Name: desktopicon\common; Description: "For all users"; GroupDescription: "Additional icons:"; Flags: exclusive
Name: desktopicon\user; Description: "For the current user only"; GroupDescription: "Additional icons:"; Flags: exclusive unchecked
Name: quicklaunchicon; Description: "Create a &Quick Launch icon"; GroupDescription: "Additional icons:"; Flags: unchecked
`

var tmpl = template.Must(template.New("innosetup").Parse(scriptTemplate))

// Render writes the installer definition to w.
func (s *Script) Render(w io.Writer) error {
	if err := tmpl.Execute(w, s); err != nil {
		return fmt.Errorf("render installer script: %w", err)
	}
	return nil
}

// String renders the script, returning "" on template failure.
func (s *Script) String() string {
	var b strings.Builder
	if err := s.Render(&b); err != nil {
		return ""
	}
	return b.String()
}

// WriteFile renders the script to path.
func (s *Script) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create installer script: %w", err)
	}
	if err := s.Render(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteLinkFile writes an internet shortcut for link into dir and returns
// its path.
func WriteLinkFile(dir string, link models.Link) (string, error) {
	path := filepath.Join(dir, link.Title+".url")
	body := fmt.Sprintf("[InternetShortcut]\nURL=%s\n", link.URL)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		return "", fmt.Errorf("write link file: %w", err)
	}
	return path, nil
}
