package storage

import (
	"context"
	"testing"

	"github.com/uptrace/bun"

	"github.com/pixforge/genflow/internal/application/planner"
	"github.com/pixforge/genflow/internal/config"
	"github.com/pixforge/genflow/internal/domain/repository"
	"github.com/pixforge/genflow/internal/infrastructure/storage/models"
	"github.com/pixforge/genflow/testutil"
)

func testPlannerConfig() config.PlannerConfig {
	return config.PlannerConfig{
		SmallKThreshold:          3,
		GroupHavingRarestCeiling: 50_000,
		TwoPhaseDualSeedFloor:    1_000,
		TwoPhaseMinKForDualSeed:  4,
		SeedCandidateCap:         10_000,
		FallbackDefaultCount:     1_000_000,
	}
}

func newTestContentRepository(t *testing.T) (*ContentRepository, *StatsRepository) {
	t.Helper()
	db, _ := testutil.SetupTestTx(t)
	bunDB, ok := db.(*bun.DB)
	if !ok {
		t.Fatalf("SetupTestTx returned %T, want *bun.DB", db)
	}

	cfg := testPlannerConfig()
	statsRepo := NewStatsRepository(bunDB, cfg)
	tagPlanner := planner.New(cfg, statsRepo)
	return NewContentRepository(bunDB, tagPlanner, cfg), statsRepo
}

func TestContentRepository_InsertFindAndLinkTags(t *testing.T) {
	contentRepo, _ := newTestContentRepository(t)
	ctx := context.Background()

	row := &models.ContentModel{
		Title:           "a mountain at dusk",
		ContentType:     "image",
		PrimaryFilePath: "/out/1.png",
		Prompt:          "a mountain at dusk, oil painting",
		CreatorID:       7,
	}
	id, err := contentRepo.InsertItem(ctx, row)
	if err != nil {
		t.Fatalf("InsertItem: %v", err)
	}
	if id == 0 {
		t.Fatalf("InsertItem returned zero id")
	}

	tagIDs, err := contentRepo.ResolveTagIDs(ctx, []string{"Mountain", "mountain", "Dusk"})
	if err != nil {
		t.Fatalf("ResolveTagIDs: %v", err)
	}
	if len(tagIDs) != 2 {
		t.Fatalf("ResolveTagIDs returned %d ids, want 2 (case-insensitive dedupe)", len(tagIDs))
	}

	if err := contentRepo.LinkTags(ctx, id, "items", tagIDs); err != nil {
		t.Fatalf("LinkTags: %v", err)
	}

	found, err := contentRepo.FindByID(ctx, id, "items")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if found.Title != row.Title {
		t.Errorf("Title = %q, want %q", found.Title, row.Title)
	}

	if _, err := contentRepo.FindByID(ctx, id, "auto"); err == nil {
		t.Errorf("FindByID with wrong source should have failed")
	}
}

func TestContentRepository_Gallery_PlainBySource(t *testing.T) {
	contentRepo, _ := newTestContentRepository(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		row := &models.ContentModel{
			Title:           "render",
			ContentType:     "image",
			PrimaryFilePath: "/out/n.png",
			Prompt:          "prompt",
			CreatorID:       1,
		}
		if _, err := contentRepo.InsertItem(ctx, row); err != nil {
			t.Fatalf("InsertItem: %v", err)
		}
	}

	page, err := contentRepo.Gallery(ctx, repository.GalleryQuery{Sources: []string{"items"}, Limit: 2})
	if err != nil {
		t.Fatalf("Gallery: %v", err)
	}
	if len(page.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(page.Rows))
	}
	if !page.HasNext {
		t.Errorf("HasNext = false, want true (3 rows inserted, limit 2)")
	}
	if page.NextCursor == nil {
		t.Errorf("NextCursor is nil, want a cursor for the next page")
	}
}

func TestContentRepository_Gallery_EmptySources(t *testing.T) {
	contentRepo, _ := newTestContentRepository(t)

	page, err := contentRepo.Gallery(context.Background(), repository.GalleryQuery{Limit: 10})
	if err != nil {
		t.Fatalf("Gallery: %v", err)
	}
	if len(page.Rows) != 0 || page.HasNext {
		t.Errorf("expected an empty page for an empty source list, got %+v", page)
	}
}

func TestContentRepository_Gallery_TagFilterSelfJoin(t *testing.T) {
	contentRepo, statsRepo := newTestContentRepository(t)
	ctx := context.Background()

	tagIDs, err := contentRepo.ResolveTagIDs(ctx, []string{"forest"})
	if err != nil {
		t.Fatalf("ResolveTagIDs: %v", err)
	}

	matchID, err := contentRepo.InsertItem(ctx, &models.ContentModel{
		Title: "forest render", ContentType: "image", PrimaryFilePath: "/out/a.png", Prompt: "p", CreatorID: 1,
	})
	if err != nil {
		t.Fatalf("InsertItem (match): %v", err)
	}
	if err := contentRepo.LinkTags(ctx, matchID, "items", tagIDs); err != nil {
		t.Fatalf("LinkTags: %v", err)
	}

	if _, err := contentRepo.InsertItem(ctx, &models.ContentModel{
		Title: "unrelated render", ContentType: "image", PrimaryFilePath: "/out/b.png", Prompt: "p", CreatorID: 1,
	}); err != nil {
		t.Fatalf("InsertItem (non-match): %v", err)
	}

	if _, err := statsRepo.RefreshTagCardinality(ctx); err != nil {
		t.Fatalf("RefreshTagCardinality: %v", err)
	}

	page, err := contentRepo.Gallery(ctx, repository.GalleryQuery{Sources: []string{"items"}, Tags: []string{"forest"}, Limit: 10})
	if err != nil {
		t.Fatalf("Gallery: %v", err)
	}
	if len(page.Rows) != 1 {
		t.Fatalf("got %d rows, want 1 (only the tagged item should match)", len(page.Rows))
	}
	if page.Rows[0].ID != matchID {
		t.Errorf("matched row ID = %d, want %d", page.Rows[0].ID, matchID)
	}
}
