package jobengine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/pixforge/genflow/internal/application/backend"
	"github.com/pixforge/genflow/internal/application/materializer"
	"github.com/pixforge/genflow/internal/application/progress"
	"github.com/pixforge/genflow/internal/config"
	"github.com/pixforge/genflow/internal/domain/repository"
	"github.com/pixforge/genflow/internal/infrastructure/logger"
	"github.com/pixforge/genflow/internal/infrastructure/storage/models"
	"github.com/pixforge/genflow/pkg/apierr"
	pkgmodels "github.com/pixforge/genflow/pkg/models"
)

// Worker pulls jobs off the durable queue and drives each through the
// lifecycle from pending to a terminal state.
type Worker struct {
	jobs         repository.JobRepository
	content      repository.ContentRepository
	queue        *Queue
	backends     *backend.Manager
	materializer *materializer.Materializer
	progress     *progress.Broker
	retry        *RetryPolicy
	cfg          config.OrchestratorConfig
	logger       *logger.Logger
}

// NewWorker builds a Worker.
func NewWorker(
	jobs repository.JobRepository,
	content repository.ContentRepository,
	queue *Queue,
	backends *backend.Manager,
	mat *materializer.Materializer,
	progressBroker *progress.Broker,
	cfg config.OrchestratorConfig,
	log *logger.Logger,
) *Worker {
	return &Worker{
		jobs:         jobs,
		content:      content,
		queue:        queue,
		backends:     backends,
		materializer: mat,
		progress:     progressBroker,
		retry:        NewRetryPolicy(cfg),
		cfg:          cfg,
		logger:       log,
	}
}

// Run blocks, dequeuing jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := w.queue.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if w.logger != nil {
				w.logger.ErrorContext(ctx, "failed to dequeue job", "error", err)
			}
			continue
		}
		if msg == nil {
			continue
		}

		w.process(ctx, msg.JobID)
		if err := w.queue.Ack(ctx, msg.ID); err != nil && w.logger != nil {
			w.logger.ErrorContext(ctx, "failed to ack job message", "job_id", msg.JobID, "error", err)
		}
	}
}

// process drives one job from pending (or a redelivered running/retrying
// state) to a terminal state. A panic while processing is recovered, logged
// with its stack, and turns the job into a failed one.
func (w *Worker) process(ctx context.Context, jobID int64) {
	var row *models.JobModel
	defer func() {
		if r := recover(); r != nil {
			if w.logger != nil {
				w.logger.ErrorContext(ctx, "panic while processing job", "job_id", jobID, "panic", r, "stack", string(debug.Stack()))
			}
			if row != nil {
				w.fail(ctx, row, fmt.Sprintf("internal error: %v", r))
			}
		}
	}()

	row, err := w.jobs.FindByID(ctx, jobID)
	if err != nil {
		if w.logger != nil {
			w.logger.ErrorContext(ctx, "job not found for processing", "job_id", jobID, "error", err)
		}
		return
	}
	if pkgmodels.JobState(row.State).IsTerminal() {
		return
	}

	if row.State == string(pkgmodels.JobStatePending) {
		ok, err := w.jobs.CompareAndSwapState(ctx, jobID, string(pkgmodels.JobStatePending), string(pkgmodels.JobStateRunning))
		if err != nil || !ok {
			// Another worker already claimed it, or it raced to cancelled.
			return
		}
		row.State = string(pkgmodels.JobStateRunning)
		now := nowPtr()
		row.StartedAt = now
		_ = w.jobs.Update(ctx, row)
		w.progress.Open(jobID)
	}

	client, err := w.backends.Resolve(backend.Choice(row.Backend))
	if err != nil {
		w.fail(ctx, row, fmt.Sprintf("backend resolution failed: %v", err))
		return
	}

	externalID := row.ExternalPromptID
	if externalID == "" {
		externalID, err = w.submitWithRetry(ctx, row, client)
		if err != nil {
			w.fail(ctx, row, err.Error())
			return
		}
		row.ExternalPromptID = externalID
		_ = w.jobs.Update(ctx, row)
	}

	w.pollUntilTerminal(ctx, row, client)
}

func (w *Worker) submitWithRetry(ctx context.Context, row *models.JobModel, client backend.Client) (string, error) {
	workflow := buildWorkflow(row)

	submitCtx, cancel := context.WithTimeout(ctx, w.cfg.SubmitTimeout)
	defer cancel()
	id, err := client.Submit(submitCtx, workflow)
	if err == nil {
		return id, nil
	}

	for attempt := 1; w.retry.ShouldRetry(err, attempt-1); attempt++ {
		delay := w.retry.Delay(attempt)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}

		row.Retries = attempt
		_ = w.jobs.Update(ctx, row)

		submitCtx, cancel := context.WithTimeout(ctx, w.cfg.SubmitTimeout)
		id, err = client.Submit(submitCtx, workflow)
		cancel()
		if err == nil {
			return id, nil
		}
	}
	return "", fmt.Errorf("submit failed after retries: %w", err)
}

func buildWorkflow(row *models.JobModel) map[string]any {
	loras := make([]map[string]any, len(row.LoRAs))
	for i, l := range row.LoRAs {
		loras[i] = map[string]any{"name": l.Name, "strength": l.Strength}
	}
	return map[string]any{
		"prompt":          row.Prompt,
		"negative_prompt": row.NegativePrompt,
		"checkpoint":      row.CheckpointName,
		"loras":           loras,
		"width":           row.Width,
		"height":          row.Height,
		"batch_size":      row.BatchSize,
		"steps":           row.Steps,
		"cfg":             row.CFG,
		"seed":            row.Seed,
		"sampler":         row.Sampler,
		"scheduler":       row.Scheduler,
	}
}

// pollUntilTerminal polls backend.Status until completion, failure, the
// wall clock bound (max_wait), or a cancellation signal.
func (w *Worker) pollUntilTerminal(ctx context.Context, row *models.JobModel, client backend.Client) {
	deadline := time.Now().Add(w.cfg.MaxWait)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		cancelled, err := w.queue.IsCancelled(ctx, row.ID)
		if err == nil && cancelled {
			_ = client.Cancel(ctx, row.ExternalPromptID)
			w.transitionTerminal(ctx, row, pkgmodels.JobStateCancelled, "")
			return
		}

		if time.Now().After(deadline) {
			w.fail(ctx, row, "exceeded max_wait")
			return
		}

		report, err := client.Status(ctx, row.ExternalPromptID)
		if err != nil {
			if backend.IsTransient(err) {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					continue
				}
			}
			w.fail(ctx, row, err.Error())
			return
		}

		switch report.Status {
		case backend.StatusCompleted:
			w.complete(ctx, row, client)
			return
		case backend.StatusFailed:
			if w.retry.ShouldRetry(errors.New(report.ErrorMessage), row.Retries) {
				w.retryJob(ctx, row)
				return
			}
			w.fail(ctx, row, report.ErrorMessage)
			return
		default:
			w.progress.Publish(ctx, progress.Event{
				JobID:         row.ID,
				State:         string(pkgmodels.JobStateRunning),
				Percent:       report.Percent,
				QueuePosition: report.QueuePosition,
			})
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) retryJob(ctx context.Context, row *models.JobModel) {
	row.Retries++
	row.ExternalPromptID = ""
	_, err := w.jobs.CompareAndSwapState(ctx, row.ID, string(pkgmodels.JobStateRunning), string(pkgmodels.JobStateRetrying))
	if err == nil {
		row.State = string(pkgmodels.JobStateRetrying)
		_ = w.jobs.Update(ctx, row)
		w.progress.Publish(ctx, progress.Event{JobID: row.ID, State: string(pkgmodels.JobStateRetrying)})

		delay := w.retry.Delay(row.Retries)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		w.jobs.CompareAndSwapState(ctx, row.ID, string(pkgmodels.JobStateRetrying), string(pkgmodels.JobStateRunning))
		row.State = string(pkgmodels.JobStateRunning)
		w.process(ctx, row.ID)
	}
}

func (w *Worker) complete(ctx context.Context, row *models.JobModel, client backend.Client) {
	descriptors, err := client.FetchOutput(ctx, row.ExternalPromptID)
	if err != nil {
		w.fail(ctx, row, err.Error())
		return
	}

	tagIDs, err := w.content.ResolveTagIDs(ctx, jobMetadataTags(row))
	if err != nil {
		w.fail(ctx, row, fmt.Sprintf("tag resolution failed: %v", err))
		return
	}

	contentID, err := w.materializer.Materialize(ctx, materializer.Input{
		JobID:         row.ID,
		UserID:        row.OwnerUserID,
		Prompt:        row.Prompt,
		Backend:       backend.Choice(row.Backend),
		BackendClient: client,
		Descriptors:   descriptors,
		TagIDs:        tagIDs,
	})
	if err != nil {
		var apiErr *apierr.Error
		if errors.As(err, &apiErr) && apiErr.Kind == apierr.KindOutputMissing {
			w.fail(ctx, row, err.Error())
			return
		}
		w.fail(ctx, row, fmt.Sprintf("materialization failed: %v", err))
		return
	}

	row.ContentID = &contentID
	w.transitionTerminal(ctx, row, pkgmodels.JobStateCompleted, "")
}

func (w *Worker) fail(ctx context.Context, row *models.JobModel, message string) {
	w.transitionTerminal(ctx, row, pkgmodels.JobStateFailed, message)
}

func (w *Worker) transitionTerminal(ctx context.Context, row *models.JobModel, state pkgmodels.JobState, errMsg string) {
	ok, err := w.jobs.CompareAndSwapState(ctx, row.ID, row.State, string(state))
	if err != nil || !ok {
		return
	}
	row.State = string(state)
	row.ErrorMessage = errMsg
	row.CompletedAt = nowPtr()
	_ = w.jobs.Update(ctx, row)

	_ = w.queue.ClearCancel(ctx, row.ID)
	w.progress.Publish(ctx, progress.Event{JobID: row.ID, State: string(state)})
	w.progress.Close(row.ID)
}

// jobMetadataTags derives gallery tags from a job's generation parameters,
// the metadata the materializer links into the junction.
func jobMetadataTags(row *models.JobModel) []string {
	tags := []string{backendTag(row.Backend)}
	if row.CheckpointName != "" {
		tags = append(tags, row.CheckpointName)
	}
	for _, l := range row.LoRAs {
		if l.Name != "" {
			tags = append(tags, l.Name)
		}
	}
	return tags
}

func backendTag(choice string) string {
	if choice == "" {
		return string(pkgmodels.BackendPrimary)
	}
	return choice
}

func nowPtr() *time.Time {
	t := time.Now()
	return &t
}
