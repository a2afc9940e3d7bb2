// Package lock keeps two releasy builds from writing the same output folder.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileName is the lock file created inside the output folder.
const FileName = ".releasy.pid"

// ErrLocked is returned when another live process holds the lock.
var ErrLocked = errors.New("output folder is locked by another build")

// PIDFile is a lock file holding the PID of its owner.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// ForDir returns the lock for an output directory.
func ForDir(dir string) *PIDFile {
	return NewPIDFile(filepath.Join(dir, FileName))
}

// Acquire creates the lock for the current process. A lock left behind by a
// dead process is taken over.
func (p *PIDFile) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(p.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
			cerr := f.Close()
			if werr != nil {
				return werr
			}
			return cerr
		}
		if !os.IsExist(err) {
			return fmt.Errorf("create lock: %w", err)
		}

		pid, running := p.IsRunning()
		if running && pid != os.Getpid() {
			return fmt.Errorf("%w (pid %d, %s)", ErrLocked, pid, p.Path)
		}
		if err := os.Remove(p.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale lock: %w", err)
		}
	}
	return fmt.Errorf("%w (%s)", ErrLocked, p.Path)
}

// Release removes the lock if the current process owns it.
func (p *PIDFile) Release() error {
	pid, err := p.Read()
	if os.IsNotExist(err) {
		return nil
	}
	if err == nil && pid != os.Getpid() {
		return fmt.Errorf("lock %s is owned by pid %d", p.Path, pid)
	}
	return p.Remove()
}

// WritePID writes the given PID to the file.
func (p *PIDFile) WritePID(pid int) error {
	return os.WriteFile(p.Path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// Read reads the PID from the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	return pid, nil
}

// Remove deletes the PID file.
func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}

// IsRunning checks if the PID file exists and the process is alive.
// Returns the PID and whether the process is running.
func (p *PIDFile) IsRunning() (int, bool) {
	pid, err := p.Read()
	if err != nil {
		return 0, false
	}
	return pid, processAlive(pid)
}
