package store

import (
	"context"

	"github.com/joescharf/releasy/internal/models"
)

// BuildListFilter specifies filters for listing build history.
type BuildListFilter struct {
	Project string
	Variant string
	Status  models.BuildStatus
	Limit   int
}

// Store defines the persistence interface for build history.
type Store interface {
	RecordBuild(ctx context.Context, r *models.BuildRecord) error
	GetBuild(ctx context.Context, id string) (*models.BuildRecord, error)
	ListBuilds(ctx context.Context, filter BuildListFilter) ([]*models.BuildRecord, error)
	LastBuild(ctx context.Context, project, target string) (*models.BuildRecord, error)
	PruneBuilds(ctx context.Context, project string, keep int) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
