// Package vcs reads release metadata from the project's git checkout.
package vcs

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Client defines the git queries used while loading a project.
type Client interface {
	RepoRoot(path string) (string, error)
	LatestTag(path string) (string, error)
	Describe(path string) (string, error)
	IsDirty(path string) (bool, error)
}

// RealClient implements Client using real git commands.
type RealClient struct{}

// NewClient returns a new RealClient.
func NewClient() *RealClient {
	return &RealClient{}
}

func gitCmd(path string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", path}, args...)
	out, err := exec.Command("git", fullArgs...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *RealClient) RepoRoot(path string) (string, error) {
	return gitCmd(path, "rev-parse", "--show-toplevel")
}

// LatestTag returns the most recent tag reachable from HEAD.
func (c *RealClient) LatestTag(path string) (string, error) {
	return gitCmd(path, "describe", "--tags", "--abbrev=0")
}

// Describe returns `git describe --tags`, e.g. "v1.2.0-3-gabc1234".
func (c *RealClient) Describe(path string) (string, error) {
	return gitCmd(path, "describe", "--tags")
}

func (c *RealClient) IsDirty(path string) (bool, error) {
	out, err := gitCmd(path, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}
