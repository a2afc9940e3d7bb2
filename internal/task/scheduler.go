package task

import (
	"context"
	"fmt"
	"time"
)

// Status is the outcome of one task in a scheduler run.
type Status string

const (
	StatusBuilt   Status = "built"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Result describes what happened to a single task.
type Result struct {
	Task      *Task
	Status    Status
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// Scheduler orders tasks by their path dependencies and runs them serially.
// A task depends on every task whose target appears among its inputs.
type Scheduler struct {
	tasks    []*Task
	byTarget map[string]*Task
	byName   map[string]*Task
}

// NewScheduler indexes the given tasks. Targets must be unique.
func NewScheduler(tasks ...*Task) (*Scheduler, error) {
	s := &Scheduler{
		byTarget: make(map[string]*Task, len(tasks)),
		byName:   make(map[string]*Task),
	}
	for _, t := range tasks {
		if _, exists := s.byTarget[t.Target]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTarget, t.Target)
		}
		s.byTarget[t.Target] = t
		if t.Name != "" {
			s.byName[t.Name] = t
		}
		s.tasks = append(s.tasks, t)
	}
	return s, nil
}

// Tasks returns all registered tasks in declaration order.
func (s *Scheduler) Tasks() []*Task {
	return s.tasks
}

// Lookup resolves a task by alias or target path.
func (s *Scheduler) Lookup(ref string) (*Task, bool) {
	if t, ok := s.byName[ref]; ok {
		return t, true
	}
	t, ok := s.byTarget[ref]
	return t, ok
}

// Plan returns the tasks needed for the given refs in execution order.
// With no refs every task is planned.
func (s *Scheduler) Plan(refs ...string) ([]*Task, error) {
	roots := s.tasks
	if len(refs) > 0 {
		roots = make([]*Task, 0, len(refs))
		for _, ref := range refs {
			t, ok := s.Lookup(ref)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownTask, ref)
			}
			roots = append(roots, t)
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[*Task]int, len(s.tasks))
	var order []*Task
	var path []string

	var visit func(t *Task) error
	visit = func(t *Task) error {
		switch state[t] {
		case done:
			return nil
		case visiting:
			return cycleError(append(path, t.Label()))
		}
		state[t] = visiting
		path = append(path, t.Label())
		for _, in := range t.Inputs {
			if dep, ok := s.byTarget[in]; ok {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		path = path[:len(path)-1]
		state[t] = done
		order = append(order, t)
		return nil
	}

	for _, t := range roots {
		if err := visit(t); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Run executes the planned tasks in order, stopping at the first failure.
// Cancellation is only observed between tasks; a running action always
// completes. onResult, if non-nil, is called after every task.
func (s *Scheduler) Run(ctx context.Context, refs []string, onResult func(Result)) ([]Result, error) {
	plan, err := s.Plan(refs...)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, t := range plan {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		start := time.Now()
		ran, err := t.Run()
		r := Result{Task: t, StartedAt: start, Duration: time.Since(start)}
		switch {
		case err != nil:
			r.Status = StatusFailed
			r.Err = err
		case ran:
			r.Status = StatusBuilt
		default:
			r.Status = StatusSkipped
		}

		results = append(results, r)
		if onResult != nil {
			onResult(r)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
