package task

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Kind distinguishes file targets from directory targets.
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
)

// Action performs the work that produces a task's target.
type Action func() error

// Task is a staleness-gated build step: its action runs only when the target
// is missing or older than one of its inputs, and at most once per run.
type Task struct {
	Name        string // optional alias, e.g. "build:osx:app"
	Description string
	Target      string
	Inputs      []string
	Kind        Kind
	Action      Action

	attempted bool
}

// File declares a task producing a single file.
func File(target string, inputs []string, action Action) *Task {
	return &Task{Target: filepath.Clean(target), Inputs: cleanAll(inputs), Kind: KindFile, Action: action}
}

// Directory declares a task producing a directory tree.
func Directory(target string, inputs []string, action Action) *Task {
	return &Task{Target: filepath.Clean(target), Inputs: cleanAll(inputs), Kind: KindDirectory, Action: action}
}

// Named sets the task alias and description and returns the task.
func (t *Task) Named(name, description string) *Task {
	t.Name = name
	t.Description = description
	return t
}

func cleanAll(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Clean(p)
	}
	return out
}

// Stale reports whether the target is missing or older than any input.
// A missing input is an error: nothing declares how to build it.
func (t *Task) Stale() (bool, error) {
	info, err := os.Stat(t.Target)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat target %s: %w", t.Target, err)
	}
	if t.Kind == KindDirectory && !info.IsDir() {
		return true, nil
	}

	targetTime := info.ModTime()
	for _, in := range t.Inputs {
		inInfo, err := os.Stat(in)
		if err != nil {
			return false, fmt.Errorf("%w: %s", ErrMissingInput, in)
		}
		if inInfo.ModTime().After(targetTime) {
			return true, nil
		}
	}
	return false, nil
}

// Run executes the action if the task is stale and has not been attempted in
// this invocation. It reports whether the action ran. A failed action leaves
// no target behind, so the next run starts over.
func (t *Task) Run() (bool, error) {
	if t.attempted {
		return false, nil
	}
	stale, err := t.Stale()
	if err != nil {
		return false, err
	}
	t.attempted = true
	if !stale {
		return false, nil
	}
	if t.Action == nil {
		return false, nil
	}
	if err := t.Action(); err != nil {
		if rmErr := os.RemoveAll(t.Target); rmErr != nil {
			err = errors.Join(err, fmt.Errorf("remove partial %s: %w", t.Target, rmErr))
		}
		return true, &Error{Target: t.Target, Err: err}
	}
	return true, nil
}

// Label returns the alias if set, otherwise the target path.
func (t *Task) Label() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Target
}
