package repository

import (
	"context"

	"github.com/pixforge/genflow/internal/infrastructure/storage/models"
)

// JobRepository defines the interface for generation job persistence.
type JobRepository interface {
	// Create persists a new job and sets its generated id on job.ID.
	Create(ctx context.Context, job *models.JobModel) error

	// FindByID retrieves a job by id.
	FindByID(ctx context.Context, id int64) (*models.JobModel, error)

	// Update persists the full job row (used for state transitions).
	Update(ctx context.Context, job *models.JobModel) error

	// CompareAndSwapState performs an optimistic transition: it updates the
	// row only if the current persisted state equals expectedState, and
	// reports whether the swap took effect, implemented as a CAS on the
	// state column itself since job state transitions are already a total
	// order per job.
	CompareAndSwapState(ctx context.Context, id int64, expectedState, newState string) (bool, error)
}
