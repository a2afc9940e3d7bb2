package task

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingInput    = errors.New("missing input")
	ErrUnknownTask     = errors.New("unknown task")
	ErrDuplicateTarget = errors.New("duplicate target")
	ErrCycle           = errors.New("cycle detected")
)

// Error wraps a failed task action with the target it was building.
type Error struct {
	Target string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("build %s: %v", e.Target, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func cycleError(path []string) error {
	return fmt.Errorf("%w: %s", ErrCycle, strings.Join(path, " -> "))
}
