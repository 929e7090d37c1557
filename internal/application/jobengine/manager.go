// Package jobengine implements the job state machine:
// job submission, status lookup, cancellation, progress subscription, and
// the worker loop that drives a job from pending to a terminal state.
package jobengine

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/pixforge/genflow/internal/application/progress"
	"github.com/pixforge/genflow/internal/domain/repository"
	"github.com/pixforge/genflow/internal/infrastructure/logger"
	"github.com/pixforge/genflow/pkg/apierr"
	"github.com/pixforge/genflow/pkg/models"
)

// legacySentinelCheckpoint is a historical default checkpoint name that no
// longer resolves to a real model; Submit treats it the same as an empty
// checkpoint name and substitutes the configured default.
const legacySentinelCheckpoint = "default"

const maxSubstituteSeed = 1_000_000_000

// Manager implements Submit/GetStatus/Cancel/SubscribeProgress over the job
// repository, durable queue, and progress broker.
type Manager struct {
	jobs              repository.JobRepository
	queue             *Queue
	progress          *progress.Broker
	defaultCheckpoint string
	logger            *logger.Logger
}

// NewManager builds a Manager.
func NewManager(jobs repository.JobRepository, queue *Queue, progressBroker *progress.Broker, defaultCheckpoint string, log *logger.Logger) *Manager {
	return &Manager{
		jobs:              jobs,
		queue:             queue,
		progress:          progressBroker,
		defaultCheckpoint: defaultCheckpoint,
		logger:            log,
	}
}

// Submit validates a job spec, persists it in the pending state, and
// enqueues it for worker pickup.
func (m *Manager) Submit(ctx context.Context, spec models.JobSpec) (int64, error) {
	if strings.TrimSpace(spec.Prompt) == "" {
		return 0, apierr.Validation("prompt must not be empty")
	}
	if spec.Width <= 0 || spec.Height <= 0 {
		return 0, apierr.Validation("width and height must be positive")
	}
	if spec.BatchSize <= 0 {
		spec.BatchSize = 1
	}
	if spec.SamplerParams.Seed <= 0 {
		seed, err := randomSeed()
		if err != nil {
			return 0, fmt.Errorf("failed to generate substitute seed: %w", err)
		}
		spec.SamplerParams.Seed = seed
	}
	checkpoint := strings.TrimSpace(spec.CheckpointName)
	if checkpoint == "" || checkpoint == legacySentinelCheckpoint {
		spec.CheckpointName = m.defaultCheckpoint
	}
	if spec.Backend == "" {
		spec.Backend = models.BackendPrimary
	}

	row := toStorage(spec)
	if err := m.jobs.Create(ctx, row); err != nil {
		return 0, fmt.Errorf("failed to create job: %w", err)
	}
	if err := m.queue.Enqueue(ctx, row.ID); err != nil {
		return 0, fmt.Errorf("failed to enqueue job %d: %w", row.ID, err)
	}
	return row.ID, nil
}

func randomSeed() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxSubstituteSeed+1))
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}

// GetStatus returns the current state record for a job.
func (m *Manager) GetStatus(ctx context.Context, jobID int64) (*models.Job, error) {
	row, err := m.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, apierr.NotFound(fmt.Sprintf("job %d not found", jobID))
	}
	return toDomain(row), nil
}

// Cancel transitions a job to cancelled (idempotent: already-terminal jobs
// are a no-op) and signals the worker via the per-job cancellation flag so
// it attempts a best-effort backend cancel before giving up.
func (m *Manager) Cancel(ctx context.Context, jobID int64) (models.JobState, error) {
	row, err := m.jobs.FindByID(ctx, jobID)
	if err != nil {
		return "", apierr.NotFound(fmt.Sprintf("job %d not found", jobID))
	}

	current := models.JobState(row.State)
	if current.IsTerminal() {
		return current, nil
	}
	if !models.CanTransition(current, models.JobStateCancelled) {
		return current, apierr.Validation(fmt.Sprintf("job %d in state %s cannot be cancelled", jobID, current))
	}

	if err := m.queue.RequestCancel(ctx, jobID); err != nil {
		return "", fmt.Errorf("failed to set cancellation flag: %w", err)
	}

	ok, err := m.jobs.CompareAndSwapState(ctx, jobID, string(current), string(models.JobStateCancelled))
	if err != nil {
		return "", fmt.Errorf("failed to cancel job %d: %w", jobID, err)
	}
	if !ok {
		// Lost a race with the worker; re-read the settled state.
		row, err = m.jobs.FindByID(ctx, jobID)
		if err != nil {
			return "", fmt.Errorf("failed to re-read job %d after cancel race: %w", jobID, err)
		}
		return models.JobState(row.State), nil
	}

	m.progress.Publish(ctx, progress.Event{JobID: jobID, State: string(models.JobStateCancelled)})
	m.progress.Close(jobID)
	return models.JobStateCancelled, nil
}

// SubscribeProgress returns a channel of progress events for a job and an
// unsubscribe function.
func (m *Manager) SubscribeProgress(jobID int64) (<-chan progress.Event, func()) {
	return m.progress.Subscribe(jobID)
}
