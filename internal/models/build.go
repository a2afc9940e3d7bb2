package models

import "time"

// BuildStatus is the outcome of one task in a build run.
type BuildStatus string

const (
	BuildStatusBuilt   BuildStatus = "built"
	BuildStatusSkipped BuildStatus = "skipped"
	BuildStatusFailed  BuildStatus = "failed"
)

// BuildRecord is one task execution persisted to the build history.
type BuildRecord struct {
	ID        string
	Project   string
	Version   string
	Variant   string
	Target    string
	Status    BuildStatus
	Error     string
	Duration  time.Duration
	StartedAt time.Time
}
