package builder

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joescharf/releasy/internal/fsutil"
	"github.com/joescharf/releasy/internal/innosetup"
	"github.com/joescharf/releasy/internal/models"
	"github.com/joescharf/releasy/internal/task"
)

const (
	win32IconExt    = ".ico"
	installerScript = "installer.iss"
)

// UninstallerFiles are produced by the installer only to support
// uninstalling, so they are dropped from the folder variant.
var UninstallerFiles = []string{"unins000.dat", "unins000.exe"}

// win32 builds one of the three Windows variants. All of them pack the
// project with the external packer; installer and folder also compile an
// Inno Setup script.
type win32 struct {
	variant Variant
	cfg     Config
	project *models.Project
}

func (b *win32) Variant() Variant { return b.variant }

func (b *win32) Folder() string {
	base := folderBase(b.project)
	switch b.variant {
	case Win32Installer:
		return base + "_WIN32_INSTALLER"
	case Win32Standalone:
		return base + "_WIN32_EXE"
	default:
		return base + "_WIN32"
	}
}

func (b *win32) validate() error {
	if b.project.Executable == "" {
		return configErr(b.variant, "executable", "not set")
	}
	if len(b.cfg.Packer) == 0 {
		return configErr(b.variant, "packer", "not set")
	}
	if b.cfg.Icon != "" && filepath.Ext(b.cfg.Icon) != win32IconExt {
		return configErr(b.variant, "icon", "must be a %s file", win32IconExt)
	}
	for _, l := range b.cfg.Links {
		if l.URL == "" || l.Title == "" {
			return configErr(b.variant, "link", "needs both url and title")
		}
		if strings.ContainsAny(l.Title, `\/:*?"<>|`) {
			return configErr(b.variant, "link", "title %q is not a valid file name", l.Title)
		}
	}
	return nil
}

func (b *win32) GenerateTasks() ([]*task.Task, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	inputs := b.project.SourcePaths()
	for _, f := range []string{b.project.Readme, b.project.License, b.cfg.Icon} {
		if f != "" {
			inputs = append(inputs, b.project.Path(f))
		}
	}

	var t *task.Task
	switch b.variant {
	case Win32Installer:
		t = task.Directory(b.Folder(), inputs, b.buildInstaller).Named("build:win32:installer", "Build installer [Innosetup]")
	case Win32Folder:
		t = task.Directory(b.Folder(), inputs, b.buildFolder).Named("build:win32:folder", "Build source/exe folder [Innosetup]")
	case Win32Standalone:
		t = task.Directory(b.Folder(), inputs, b.buildStandalone).Named("build:win32:standalone", "Build standalone exe [Ocra]")
	}
	return []*task.Task{t}, nil
}

func (b *win32) outputDir() string { return filepath.Dir(folderBase(b.project)) }

func (b *win32) scriptPath() string { return filepath.Join(b.outputDir(), installerScript) }

func (b *win32) executableName() string { return b.project.UnderscoredName() + ".exe" }

func (b *win32) resetFolder() error {
	if err := os.RemoveAll(b.Folder()); err != nil {
		return fmt.Errorf("clean %s: %w", b.Folder(), err)
	}
	return nil
}

func (b *win32) buildInstaller() error {
	if err := b.resetFolder(); err != nil {
		return err
	}
	if err := os.MkdirAll(b.Folder(), 0755); err != nil {
		return err
	}

	installer := filepath.Join(b.Folder(), b.project.UnderscoredName()+"_setup.exe")
	if err := b.createInstaller(installer); err != nil {
		return err
	}
	if err := b.copyReadme(); err != nil {
		return err
	}

	b.cfg.UI.Success("Built %s", installer)
	return nil
}

func (b *win32) buildFolder() error {
	if err := b.resetFolder(); err != nil {
		return err
	}

	installer, err := filepath.Abs(folderBase(b.project) + "_setup_to_folder.exe")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(installer) }()
	if err := b.createInstaller(installer); err != nil {
		return err
	}

	folder, err := filepath.Abs(b.Folder())
	if err != nil {
		return err
	}
	if err := b.cfg.Runner.Run(b.outputDir(), []string{installer, "/SILENT", "/DIR=" + folder}); err != nil {
		return err
	}

	for _, f := range UninstallerFiles {
		if err := os.Remove(filepath.Join(b.Folder(), f)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	b.cfg.UI.Success("Built %s", b.Folder())
	return nil
}

func (b *win32) buildStandalone() error {
	if err := b.resetFolder(); err != nil {
		return err
	}
	if err := os.MkdirAll(b.Folder(), 0755); err != nil {
		return err
	}
	if err := b.copyReadme(); err != nil {
		return err
	}

	exe, err := filepath.Abs(filepath.Join(b.Folder(), b.executableName()))
	if err != nil {
		return err
	}
	argv := append(b.packerCommand(), "--output", exe)
	if err := b.cfg.Runner.Run(b.project.Root, argv); err != nil {
		return err
	}

	b.cfg.UI.Success("Built %s", exe)
	return nil
}

func (b *win32) copyReadme() error {
	if b.project.Readme == "" {
		return nil
	}
	return fsutil.CopyInto(b.project.Path(b.project.Readme), b.Folder())
}

// packerCommand is <packer> <executable> [--icon <icon>] <other files...>,
// run from the project root.
func (b *win32) packerCommand() []string {
	argv := append(slices.Clone(b.cfg.Packer), b.project.Executable)
	if b.cfg.Icon != "" {
		argv = append(argv, "--icon", b.cfg.Icon)
	}
	for _, f := range b.project.Files {
		if f != b.project.Executable {
			argv = append(argv, f)
		}
	}
	return argv
}

// createInstaller renders the installer script, has the packer compile it
// into installer, then discards the script and link files.
func (b *win32) createInstaller(installer string) error {
	if err := os.MkdirAll(b.outputDir(), 0755); err != nil {
		return err
	}
	installer, err := filepath.Abs(installer)
	if err != nil {
		return err
	}

	var links []string
	defer func() {
		for _, l := range links {
			_ = os.Remove(l)
		}
	}()
	for _, l := range b.cfg.Links {
		path, err := innosetup.WriteLinkFile(b.outputDir(), l)
		if err != nil {
			return err
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		links = append(links, path)
	}

	script := b.script(installer, links)
	scriptPath, err := filepath.Abs(b.scriptPath())
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(scriptPath) }()
	if err := script.WriteFile(scriptPath); err != nil {
		return err
	}
	b.cfg.UI.VerboseLog("Wrote %s", scriptPath)

	argv := append(b.packerCommand(), "--output", installer, "--chdir-first", "--no-lzma", "--innosetup", scriptPath)
	return b.cfg.Runner.Run(b.project.Root, argv)
}

func (b *win32) script(installer string, links []string) *innosetup.Script {
	abs := func(rel string) string {
		if rel == "" {
			return ""
		}
		p, err := filepath.Abs(b.project.Path(rel))
		if err != nil {
			return b.project.Path(rel)
		}
		return p
	}
	return &innosetup.Script{
		AppName:            b.project.UnderscoredName(),
		DisplayName:        b.project.Name,
		Version:            b.project.Version,
		Group:              b.cfg.InstallerGroup,
		OutputDir:          filepath.Dir(installer),
		OutputBaseFilename: strings.TrimSuffix(filepath.Base(installer), ".exe"),
		Icon:               abs(b.cfg.Icon),
		License:            abs(b.project.License),
		Readme:             abs(b.project.Readme),
		LinkFiles:          links,
	}
}
