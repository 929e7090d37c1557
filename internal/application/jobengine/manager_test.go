package jobengine

import (
	"context"
	"sync"
	"testing"

	"github.com/pixforge/genflow/internal/application/progress"
	"github.com/pixforge/genflow/internal/infrastructure/storage/models"
	"github.com/pixforge/genflow/pkg/apierr"
	pkgmodels "github.com/pixforge/genflow/pkg/models"
)

type fakeJobRepository struct {
	mu   sync.Mutex
	rows map[int64]*models.JobModel
	next int64
}

func newFakeJobRepository() *fakeJobRepository {
	return &fakeJobRepository{rows: make(map[int64]*models.JobModel)}
}

func (f *fakeJobRepository) Create(ctx context.Context, job *models.JobModel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	job.ID = f.next
	f.rows[job.ID] = job
	return nil
}

func (f *fakeJobRepository) FindByID(ctx context.Context, id int64) (*models.JobModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, apierr.NotFound("job not found")
	}
	cp := *row
	return &cp, nil
}

func (f *fakeJobRepository) Update(ctx context.Context, job *models.JobModel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[job.ID]; !ok {
		return apierr.NotFound("job not found")
	}
	f.rows[job.ID] = job
	return nil
}

func (f *fakeJobRepository) CompareAndSwapState(ctx context.Context, id int64, expectedState, newState string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok || row.State != expectedState {
		return false, nil
	}
	row.State = newState
	return true, nil
}

func newTestManager(t *testing.T) (*Manager, *fakeJobRepository) {
	t.Helper()
	jobs := newFakeJobRepository()
	queue := newTestQueue(t)
	broker := progress.New(nil, nil)
	return NewManager(jobs, queue, broker, "sd_xl_base_1.0.safetensors", nil), jobs
}

func TestManager_Submit_PersistsPendingAndEnqueues(t *testing.T) {
	m, jobs := newTestManager(t)
	ctx := context.Background()

	id, err := m.Submit(ctx, pkgmodels.JobSpec{
		OwnerUserID: 1,
		Prompt:      "a lighthouse at dawn",
		Width:       512,
		Height:      512,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	row, err := jobs.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if row.State != string(pkgmodels.JobStatePending) {
		t.Errorf("State = %q, want pending", row.State)
	}
	if row.CheckpointName != "sd_xl_base_1.0.safetensors" {
		t.Errorf("CheckpointName = %q, want the configured default substituted for an empty one", row.CheckpointName)
	}
	if row.BatchSize != 1 {
		t.Errorf("BatchSize = %d, want 1 (defaulted)", row.BatchSize)
	}

	msg, err := m.queue.Dequeue(ctx, 0)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if msg == nil || msg.JobID != id {
		t.Fatalf("Dequeue = %+v, want the submitted job %d enqueued", msg, id)
	}
}

func TestManager_Submit_SubstitutesLegacySentinelCheckpoint(t *testing.T) {
	m, jobs := newTestManager(t)
	ctx := context.Background()

	id, err := m.Submit(ctx, pkgmodels.JobSpec{
		Prompt:         "a canyon",
		Width:          256,
		Height:         256,
		CheckpointName: "default",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	row, _ := jobs.FindByID(ctx, id)
	if row.CheckpointName != "sd_xl_base_1.0.safetensors" {
		t.Errorf("CheckpointName = %q, want the configured default to replace the legacy sentinel", row.CheckpointName)
	}
}

func TestManager_Submit_RejectsBlankPrompt(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Submit(context.Background(), pkgmodels.JobSpec{Prompt: "   ", Width: 1, Height: 1})
	if err == nil {
		t.Fatalf("Submit with a blank prompt should have failed")
	}
}

func TestManager_Submit_RejectsNonPositiveDimensions(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Submit(context.Background(), pkgmodels.JobSpec{Prompt: "x", Width: 0, Height: 1})
	if err == nil {
		t.Fatalf("Submit with a zero width should have failed")
	}
}

func TestManager_GetStatus_NotFound(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.GetStatus(context.Background(), 999); err == nil {
		t.Errorf("GetStatus for an unknown job should have failed")
	}
}

func TestManager_GetStatus_ReturnsDomainJob(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	id, err := m.Submit(ctx, pkgmodels.JobSpec{Prompt: "x", Width: 1, Height: 1})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	job, err := m.GetStatus(ctx, id)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if job.ID != id {
		t.Errorf("ID = %d, want %d", job.ID, id)
	}
	if job.State != pkgmodels.JobStatePending {
		t.Errorf("State = %q, want pending", job.State)
	}
}

func TestManager_Cancel_PendingJobTransitionsToCancelled(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	id, err := m.Submit(ctx, pkgmodels.JobSpec{Prompt: "x", Width: 1, Height: 1})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	state, err := m.Cancel(ctx, id)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if state != pkgmodels.JobStateCancelled {
		t.Errorf("state = %q, want cancelled", state)
	}

	cancelled, err := m.queue.IsCancelled(ctx, id)
	if err != nil {
		t.Fatalf("IsCancelled: %v", err)
	}
	if !cancelled {
		t.Errorf("queue cancellation flag not set after Cancel")
	}
}

func TestManager_Cancel_AlreadyTerminalIsNoOp(t *testing.T) {
	m, jobs := newTestManager(t)
	ctx := context.Background()
	id, err := m.Submit(ctx, pkgmodels.JobSpec{Prompt: "x", Width: 1, Height: 1})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	row, _ := jobs.FindByID(ctx, id)
	row.State = string(pkgmodels.JobStateCompleted)
	_ = jobs.Update(ctx, row)

	state, err := m.Cancel(ctx, id)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if state != pkgmodels.JobStateCompleted {
		t.Errorf("state = %q, want completed unchanged", state)
	}
}
