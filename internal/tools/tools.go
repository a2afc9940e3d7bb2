package tools

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/joescharf/releasy/internal/output"
)

// Runner invokes external tools. Calls block until the process exits; there
// is no timeout.
type Runner interface {
	Run(dir string, argv []string) error
	Pipe(dir string, from, to []string) error
}

// CommandError reports a process that could not start or exited non-zero.
type CommandError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %v: %s", e.Command, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExecRunner implements Runner with os/exec.
type ExecRunner struct {
	UI *output.UI
}

// NewRunner returns an ExecRunner reporting commands through ui.
func NewRunner(ui *output.UI) *ExecRunner {
	return &ExecRunner{UI: ui}
}

func (r *ExecRunner) stdout() io.Writer {
	if r.UI != nil && r.UI.Verbose {
		return r.UI.Out
	}
	return io.Discard
}

func (r *ExecRunner) logCommand(line string) {
	if r.UI != nil {
		r.UI.VerboseLog("%s", line)
	}
}

func (r *ExecRunner) Run(dir string, argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty command")
	}
	line := Join(argv)
	r.logCommand(line)

	var stderr bytes.Buffer
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdout = r.stdout()
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &CommandError{Command: line, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return nil
}

// Pipe runs from | to, failing if either side fails.
func (r *ExecRunner) Pipe(dir string, from, to []string) error {
	if len(from) == 0 || len(to) == 0 {
		return fmt.Errorf("empty command")
	}
	line := Join(from) + " | " + Join(to)
	r.logCommand(line)

	var fromErr, toErr bytes.Buffer
	src := exec.Command(from[0], from[1:]...)
	src.Dir = dir
	src.Stderr = &fromErr
	dst := exec.Command(to[0], to[1:]...)
	dst.Dir = dir
	dst.Stdout = r.stdout()
	dst.Stderr = &toErr

	pr, pw, err := os.Pipe()
	if err != nil {
		return &CommandError{Command: line, Err: err}
	}
	src.Stdout = pw
	dst.Stdin = pr

	if err := dst.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return &CommandError{Command: Join(to), Err: err}
	}
	_ = pr.Close()
	srcErr := src.Run()
	_ = pw.Close()
	dstErr := dst.Wait()

	if srcErr != nil {
		return &CommandError{Command: Join(from), Stderr: strings.TrimSpace(fromErr.String()), Err: srcErr}
	}
	if dstErr != nil {
		return &CommandError{Command: Join(to), Stderr: strings.TrimSpace(toErr.String()), Err: dstErr}
	}
	return nil
}

// Command splits a configured command template such as "ruby -S ocra" into
// argv, honouring shell quoting.
func Command(template string) ([]string, error) {
	argv, err := shellwords.Parse(template)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", template, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command template")
	}
	return argv, nil
}

// Join renders argv for display, quoting arguments that contain spaces.
func Join(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			parts[i] = fmt.Sprintf("%q", a)
		} else {
			parts[i] = a
		}
	}
	return strings.Join(parts, " ")
}
