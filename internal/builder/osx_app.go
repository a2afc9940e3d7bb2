package builder

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"text/template"

	"github.com/joescharf/releasy/internal/fsutil"
	"github.com/joescharf/releasy/internal/models"
	"github.com/joescharf/releasy/internal/task"
)

const (
	osxFolderSuffix = "OSX"
	osxIconExt      = ".icns"

	// Names baked into the Gosu wrapper skeleton.
	wrapperAppName     = "RubyGosu App.app"
	wrapperExecutable  = "RubyGosu App"
	wrapperDefaultIcon = "Gosu.icns"

	plistNamePlaceholder = "RubyGosu App"
	plistIconPlaceholder = "Gosu"
	plistURLPlaceholder  = "org.libgosu.UntitledGame"
)

var wrapperArchive = regexp.MustCompile(`^gosu-mac-wrapper-[\d.]+\.tar\.gz$`)

// RequiredEncodingFiles are kept when encoding support is stripped.
var RequiredEncodingFiles = []string{
	"encdb.bundle",
	"iso_8859_1.bundle",
	"utf_16le.bundle",
	"trans/single_byte.bundle",
	"trans/transdb.bundle",
	"trans/utf_16_32.bundle",
}

// osxApp assembles <Name>.app from a Gosu wrapper.
type osxApp struct {
	cfg     Config
	project *models.Project
}

func (b *osxApp) Variant() Variant { return OsxApp }

func (b *osxApp) Folder() string { return folderBase(b.project) + "_" + osxFolderSuffix }

func (b *osxApp) appName() string { return b.project.Name + ".app" }

func (b *osxApp) app() string { return filepath.Join(b.Folder(), b.appName()) }

func (b *osxApp) wrapperIsApp() bool {
	return filepath.Ext(b.cfg.Wrapper) == ".app"
}

func (b *osxApp) validate() error {
	if b.cfg.URL == "" {
		return configErr(OsxApp, "url", "not set")
	}
	if b.cfg.Wrapper == "" {
		return configErr(OsxApp, "wrapper", "not set")
	}
	if b.wrapperIsApp() {
		if !fsutil.IsDir(b.cfg.Wrapper) {
			return configErr(OsxApp, "wrapper", "not a valid .app folder: %s", b.cfg.Wrapper)
		}
	} else {
		if !wrapperArchive.MatchString(filepath.Base(b.cfg.Wrapper)) {
			return configErr(OsxApp, "wrapper", "not a valid wrapper: %s", b.cfg.Wrapper)
		}
		if !fsutil.Exists(b.cfg.Wrapper) {
			return configErr(OsxApp, "wrapper", "does not exist: %s", b.cfg.Wrapper)
		}
	}
	if b.cfg.Icon != "" && filepath.Ext(b.cfg.Icon) != osxIconExt {
		return configErr(OsxApp, "icon", "must be a %s file", osxIconExt)
	}
	if b.project.Executable == "" {
		return configErr(OsxApp, "executable", "not set")
	}
	return nil
}

func (b *osxApp) GenerateTasks() ([]*task.Task, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	inputs := append(b.project.SourcePaths(), b.cfg.Wrapper)
	for _, f := range b.project.ExposedFiles() {
		inputs = append(inputs, b.project.Path(f))
	}
	if b.cfg.Icon != "" {
		inputs = append(inputs, b.project.Path(b.cfg.Icon))
	}

	t := task.Directory(b.Folder(), inputs, b.assemble).Named("build:osx:app", "Build OS X app")
	return []*task.Task{t}, nil
}

// assemble runs the whole pipeline. Any error aborts it; a retry starts over
// from a clean folder.
func (b *osxApp) assemble() error {
	ui := b.cfg.UI
	folder := b.Folder()
	app := b.app()

	if err := os.RemoveAll(folder); err != nil {
		return fmt.Errorf("clean %s: %w", folder, err)
	}
	if err := os.MkdirAll(folder, 0755); err != nil {
		return fmt.Errorf("create %s: %w", folder, err)
	}

	steps := []struct {
		name string
		run  func(app string) error
	}{
		{"Extracting wrapper", b.extractWrapper},
		{"Copying source files", b.copySources},
		{"Removing unused encodings", b.removeEncoding},
		{"Copying accompanying files", b.copyExposed},
		{"Vendoring gems", b.vendorGems},
		{"Creating Main.rb", b.createMain},
		{"Editing Info.plist", b.editInfo},
		{"Removing source gems", b.removeSourceGems},
		{"Renaming executable", b.renameExecutable},
		{"Updating icon", b.updateIcon},
		{"Creating executable setter", b.createExecutableSetter},
	}
	for _, s := range steps {
		ui.Step("%s", s.name)
		if err := s.run(app); err != nil {
			return fmt.Errorf("%s: %w", strings.ToLower(s.name), err)
		}
	}

	ui.Success("Built %s", app)
	return nil
}

func (b *osxApp) extractWrapper(app string) error {
	if b.wrapperIsApp() {
		return fsutil.Copy(b.cfg.Wrapper, app)
	}
	if err := b.cfg.Extractor.Extract(b.cfg.Wrapper, b.Folder()); err != nil {
		return err
	}
	return os.Rename(filepath.Join(b.Folder(), wrapperAppName), app)
}

func (b *osxApp) copySources(app string) error {
	return fsutil.CopyRelative(b.project.Root, b.project.Files, filepath.Join(app, "Contents", "Resources", "application"))
}

func (b *osxApp) removeEncoding(app string) error {
	if !b.cfg.ExcludeEncoding {
		return nil
	}
	encDir := filepath.Join(app, "Contents", "Resources", "lib", "enc")
	if !fsutil.IsDir(encDir) {
		return nil
	}

	var remove []string
	err := filepath.WalkDir(encDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".bundle" {
			return nil
		}
		rel, err := filepath.Rel(encDir, path)
		if err != nil {
			return err
		}
		if !slices.Contains(RequiredEncodingFiles, filepath.ToSlash(rel)) {
			remove = append(remove, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, path := range remove {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	b.cfg.UI.VerboseLog("Removed %d encoding files", len(remove))
	return nil
}

func (b *osxApp) copyExposed(app string) error {
	for _, f := range b.project.ExposedFiles() {
		if err := fsutil.CopyInto(b.project.Path(f), b.Folder()); err != nil {
			return err
		}
	}
	return nil
}

// vendorGems merges every non-binary gem's lib/ into Contents/Resources/vendor/lib
// and copies the gem's extra files next to it. Extras are shared by path, so
// when two gems declare the same extra the last one copied replaces the
// earlier copy, folders included.
func (b *osxApp) vendorGems(app string) error {
	vendor := filepath.Join(app, "Contents", "Resources", "vendor")
	copied := map[string]string{}

	for _, dep := range b.project.Dependencies {
		if slices.Contains(b.cfg.BinaryGems, dep.Name) {
			continue
		}
		b.cfg.UI.VerboseLog("Copying gem: %s", filepath.Base(dep.Path))
		if err := fsutil.Copy(filepath.Join(dep.Path, "lib"), filepath.Join(vendor, "lib")); err != nil {
			return err
		}

		for _, extra := range b.cfg.ExtraFiles[dep.Name] {
			src := filepath.Join(dep.Path, extra)
			kind := "file"
			if fsutil.IsDir(src) {
				kind = "folder"
			}
			b.cfg.UI.VerboseLog("  - copying extra %s: %s", kind, extra)

			dst := filepath.Join(vendor, extra)
			if owner, ok := copied[extra]; ok {
				b.cfg.UI.Warning("Extra %s %q from %s overwrites the copy from %s", kind, extra, dep.Name, owner)
				if err := os.RemoveAll(dst); err != nil {
					return err
				}
			}
			if err := fsutil.Copy(src, dst); err != nil {
				return err
			}
			copied[extra] = dep.Name
		}
	}
	return nil
}

const mainTemplate = `$LOAD_PATH.unshift File.expand_path("../vendor/lib", __FILE__)

OSX_EXECUTABLE_FOLDER = File.expand_path("../../..", __FILE__)

# Encoding constants missing from the wrapper's Ruby.
class Encoding
  UTF_7 = UTF_16BE = UTF_16LE = UTF_32BE = UTF_32LE = Encoding.list.first
end

load 'application/{{ .Executable }}'
`

var mainTmpl = template.Must(template.New("main").Parse(mainTemplate))

func (b *osxApp) createMain(app string) error {
	f, err := os.Create(filepath.Join(app, "Contents", "Resources", "Main.rb"))
	if err != nil {
		return err
	}
	if err := mainTmpl.Execute(f, b.project); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// plistEdits lists the wrapper placeholders rewritten for this app.
func (b *osxApp) plistEdits() []PlistEdit {
	var edits []PlistEdit
	if b.cfg.Icon != "" {
		base := filepath.Base(b.cfg.Icon)
		edits = append(edits, PlistEdit{Field: "CFBundleIconFile", Placeholder: plistIconPlaceholder, Value: strings.TrimSuffix(base, filepath.Ext(base))})
	}
	return append(edits,
		PlistEdit{Field: "CFBundleName", Placeholder: plistNamePlaceholder, Value: b.project.Name},
		PlistEdit{Field: "CFBundleIdentifier", Placeholder: plistURLPlaceholder, Value: b.cfg.URL},
	)
}

func (b *osxApp) editInfo(app string) error {
	missing, err := PatchPlist(filepath.Join(app, "Contents", "Info.plist"), b.plistEdits())
	if err != nil {
		return err
	}
	for _, field := range missing {
		b.cfg.UI.Warning("Info.plist: placeholder for %s not found, left unchanged", field)
	}
	return nil
}

func (b *osxApp) removeSourceGems(app string) error {
	for _, gem := range b.cfg.SourceGemsToRemove {
		if err := os.RemoveAll(filepath.Join(app, "Contents", "Resources", "lib", gem)); err != nil {
			return err
		}
	}
	return nil
}

func (b *osxApp) renameExecutable(app string) error {
	exe := filepath.Join(app, "Contents", "MacOS", b.project.Name)
	if err := os.Rename(filepath.Join(app, "Contents", "MacOS", wrapperExecutable), exe); err != nil {
		return err
	}
	return os.Chmod(exe, 0755)
}

func (b *osxApp) updateIcon(app string) error {
	if b.cfg.Icon == "" {
		return nil
	}
	resources := filepath.Join(app, "Contents", "Resources")
	if err := os.Remove(filepath.Join(resources, wrapperDefaultIcon)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return fsutil.CopyInto(b.project.Path(b.cfg.Icon), resources)
}

// createExecutableSetter writes a script restoring the executable bit, which
// is lost when the app is copied off a Windows filesystem.
func (b *osxApp) createExecutableSetter(app string) error {
	if b.cfg.HostOS != "windows" {
		return nil
	}
	name := b.appName()
	script := fmt.Sprintf("#!/bin/sh\nchmod a+x \"./%s/Contents/MacOS/%s\"\necho \"Made %s executable\"\n", name, b.project.Name, name)
	return os.WriteFile(filepath.Join(b.Folder(), "set_app_executable.sh"), []byte(script), 0755)
}
