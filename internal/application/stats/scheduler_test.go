package stats

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pixforge/genflow/internal/config"
	"github.com/pixforge/genflow/internal/infrastructure/storage/models"
)

type fakeStatsRepository struct {
	tagRefreshes int32
	genRefreshes int32
	blockTag     chan struct{}
}

func (f *fakeStatsRepository) RefreshTagCardinality(ctx context.Context) (int, error) {
	atomic.AddInt32(&f.tagRefreshes, 1)
	if f.blockTag != nil {
		<-f.blockTag
	}
	return 1, nil
}

func (f *fakeStatsRepository) RefreshGenSourceStats(ctx context.Context) (int, error) {
	atomic.AddInt32(&f.genRefreshes, 1)
	return 1, nil
}

func (f *fakeStatsRepository) TagCardinalities(ctx context.Context, tagIDs []string, source string) (map[string]int64, error) {
	return nil, nil
}

func (f *fakeStatsRepository) UnifiedGenSourceStats(ctx context.Context, userID int64) (*models.GenSourceStatsModel, *models.GenSourceStatsModel, *models.GenSourceStatsModel, *models.GenSourceStatsModel, error) {
	return nil, nil, nil, nil, nil
}

func TestScheduler_RunTagRefreshNow(t *testing.T) {
	repo := &fakeStatsRepository{}
	s := NewScheduler(repo, config.StatsConfig{}, nil)

	n, err := s.RunTagRefreshNow(context.Background())
	if err != nil {
		t.Fatalf("RunTagRefreshNow: %v", err)
	}
	if n != 1 {
		t.Errorf("n = %d, want 1", n)
	}
	if atomic.LoadInt32(&repo.tagRefreshes) != 1 {
		t.Errorf("tagRefreshes = %d, want 1", repo.tagRefreshes)
	}
}

func TestScheduler_RunGenSourceRefreshNow(t *testing.T) {
	repo := &fakeStatsRepository{}
	s := NewScheduler(repo, config.StatsConfig{}, nil)

	n, err := s.RunGenSourceRefreshNow(context.Background())
	if err != nil {
		t.Fatalf("RunGenSourceRefreshNow: %v", err)
	}
	if n != 1 {
		t.Errorf("n = %d, want 1", n)
	}
}

func TestScheduler_Start_RunsBothRefreshesOnCadence(t *testing.T) {
	repo := &fakeStatsRepository{}
	s := NewScheduler(repo, config.StatsConfig{}, nil)

	s.Start(context.Background(), 20*time.Millisecond)
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&repo.tagRefreshes) > 0 && atomic.LoadInt32(&repo.genRefreshes) > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("scheduled refreshes did not run: tagRefreshes=%d genRefreshes=%d", repo.tagRefreshes, repo.genRefreshes)
}

func TestScheduler_OverlappingTagRefreshSkipped(t *testing.T) {
	repo := &fakeStatsRepository{blockTag: make(chan struct{})}
	s := NewScheduler(repo, config.StatsConfig{}, nil)

	done := make(chan struct{})
	go func() {
		s.runTagRefresh(context.Background())
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&repo.tagRefreshes) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	s.runTagRefresh(context.Background())
	if got := atomic.LoadInt32(&repo.tagRefreshes); got != 1 {
		t.Errorf("tagRefreshes = %d, want 1 (second call should be skipped while the first is in flight)", got)
	}

	close(repo.blockTag)
	<-done
}
