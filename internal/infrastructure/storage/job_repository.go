package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pixforge/genflow/internal/domain/repository"
	"github.com/pixforge/genflow/internal/infrastructure/storage/models"
	"github.com/uptrace/bun"
)

// Ensure JobRepository implements the interface
var _ repository.JobRepository = (*JobRepository)(nil)

// JobRepository implements repository.JobRepository using Bun ORM.
type JobRepository struct {
	db *bun.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *bun.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create persists a new job row and populates its generated id.
func (r *JobRepository) Create(ctx context.Context, job *models.JobModel) error {
	_, err := r.db.NewInsert().Model(job).Returning("id").Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// FindByID retrieves a job by id.
func (r *JobRepository) FindByID(ctx context.Context, id int64) (*models.JobModel, error) {
	job := &models.JobModel{}
	err := r.db.NewSelect().
		Model(job).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job not found: %d", id)
		}
		return nil, fmt.Errorf("failed to find job: %w", err)
	}
	return job, nil
}

// Update persists the full job row.
func (r *JobRepository) Update(ctx context.Context, job *models.JobModel) error {
	_, err := r.db.NewUpdate().
		Model(job).
		Column("state", "retries", "external_prompt_id", "error_message", "content_id",
			"started_at", "completed_at", "updated_at").
		Where("id = ?", job.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

// CompareAndSwapState performs the per-job serialized transition: the
// UPDATE only matches a row whose state still equals expectedState, so
// two workers racing on the same job never both "win" a transition.
func (r *JobRepository) CompareAndSwapState(ctx context.Context, id int64, expectedState, newState string) (bool, error) {
	res, err := r.db.NewUpdate().
		Model((*models.JobModel)(nil)).
		Set("state = ?", newState).
		Set("updated_at = current_timestamp").
		Where("id = ? AND state = ?", id, expectedState).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to compare-and-swap job state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}
