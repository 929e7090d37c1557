package storage

import (
	"context"
	"testing"

	"github.com/uptrace/bun"

	"github.com/pixforge/genflow/internal/infrastructure/storage/models"
	"github.com/pixforge/genflow/testutil"
)

func newTestJobRepository(t *testing.T) *JobRepository {
	t.Helper()
	db, _ := testutil.SetupTestTx(t)
	bunDB, ok := db.(*bun.DB)
	if !ok {
		t.Fatalf("SetupTestTx returned %T, want *bun.DB", db)
	}
	return NewJobRepository(bunDB)
}

func newPendingJob() *models.JobModel {
	return &models.JobModel{
		OwnerUserID:    1,
		Prompt:         "a castle on a cliff",
		CheckpointName: "sd_xl_base_1.0.safetensors",
		Width:          512,
		Height:         512,
		BatchSize:      1,
		Seed:           42,
		Backend:        "mock",
		State:          "pending",
	}
}

func TestJobRepository_CreateAndFindByID(t *testing.T) {
	repo := newTestJobRepository(t)
	ctx := context.Background()

	job := newPendingJob()
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.ID == 0 {
		t.Fatalf("Create did not populate the generated id")
	}

	found, err := repo.FindByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if found.Prompt != job.Prompt {
		t.Errorf("Prompt = %q, want %q", found.Prompt, job.Prompt)
	}
	if found.State != "pending" {
		t.Errorf("State = %q, want pending", found.State)
	}
}

func TestJobRepository_FindByID_NotFound(t *testing.T) {
	repo := newTestJobRepository(t)

	if _, err := repo.FindByID(context.Background(), 999999); err == nil {
		t.Errorf("FindByID with an unknown id should have failed")
	}
}

func TestJobRepository_Update(t *testing.T) {
	repo := newTestJobRepository(t)
	ctx := context.Background()

	job := newPendingJob()
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	job.State = "running"
	job.ExternalPromptID = "prompt-123"
	job.Retries = 1
	if err := repo.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	found, err := repo.FindByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if found.State != "running" {
		t.Errorf("State = %q, want running", found.State)
	}
	if found.ExternalPromptID != "prompt-123" {
		t.Errorf("ExternalPromptID = %q, want prompt-123", found.ExternalPromptID)
	}
	if found.Retries != 1 {
		t.Errorf("Retries = %d, want 1", found.Retries)
	}
}

func TestJobRepository_CompareAndSwapState_WrongExpectedStateFails(t *testing.T) {
	repo := newTestJobRepository(t)
	ctx := context.Background()

	job := newPendingJob()
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ok, err := repo.CompareAndSwapState(ctx, job.ID, "running", "completed")
	if err != nil {
		t.Fatalf("CompareAndSwapState: %v", err)
	}
	if ok {
		t.Errorf("CompareAndSwapState succeeded against a stale expected state")
	}

	found, err := repo.FindByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if found.State != "pending" {
		t.Errorf("State = %q, want pending (unchanged)", found.State)
	}
}

func TestJobRepository_CompareAndSwapState_OnlyOneRacerWins(t *testing.T) {
	repo := newTestJobRepository(t)
	ctx := context.Background()

	job := newPendingJob()
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const racers = 8
	results := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		go func() {
			ok, err := repo.CompareAndSwapState(ctx, job.ID, "pending", "running")
			if err != nil {
				results <- false
				return
			}
			results <- ok
		}()
	}

	wins := 0
	for i := 0; i < racers; i++ {
		if <-results {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("got %d winning CAS calls, want exactly 1", wins)
	}

	found, err := repo.FindByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if found.State != "running" {
		t.Errorf("State = %q, want running", found.State)
	}
}
