package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pixforge/genflow/internal/config"
	"github.com/pixforge/genflow/internal/domain/repository"
	"github.com/pixforge/genflow/internal/infrastructure/storage/models"
	"github.com/uptrace/bun"
)

// Ensure StatsRepository implements the interface.
var _ repository.StatsRepository = (*StatsRepository)(nil)

// StatsRepository implements repository.StatsRepository using Bun ORM.
type StatsRepository struct {
	db  *bun.DB
	cfg config.PlannerConfig
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(db *bun.DB, cfg config.PlannerConfig) *StatsRepository {
	return &StatsRepository{db: db, cfg: cfg}
}

// RefreshTagCardinality recomputes (tag_id, source) -> distinct content
// count from the junction and upserts every row idempotently.
func (r *StatsRepository) RefreshTagCardinality(ctx context.Context) (int, error) {
	var affected int
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewRaw(`
			INSERT INTO tag_cardinality_stats (tag_id, source, content_count, updated_at)
			SELECT tag_id, source, COUNT(DISTINCT content_id), now()
			FROM content_tags
			GROUP BY tag_id, source
			ON CONFLICT (tag_id, source) DO UPDATE
				SET content_count = EXCLUDED.content_count,
					updated_at = EXCLUDED.updated_at
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to refresh tag cardinality stats: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		affected = int(n)
		return nil
	})
	return affected, err
}

// RefreshGenSourceStats recomputes per-user and community (null user_id)
// counts over content_all and upserts every row idempotently.
func (r *StatsRepository) RefreshGenSourceStats(ctx context.Context) (int, error) {
	var affected int
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		perUser, err := tx.NewRaw(`
			INSERT INTO gen_source_stats (user_id, source, count, updated_at)
			SELECT creator_id, source, COUNT(*), now()
			FROM content_all
			GROUP BY creator_id, source
			ON CONFLICT (user_id, source) WHERE user_id IS NOT NULL DO UPDATE
				SET count = EXCLUDED.count,
					updated_at = EXCLUDED.updated_at
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to refresh per-user gen-source stats: %w", err)
		}
		community, err := tx.NewRaw(`
			INSERT INTO gen_source_stats (user_id, source, count, updated_at)
			SELECT NULL, source, COUNT(*), now()
			FROM content_all
			GROUP BY source
			ON CONFLICT (source) WHERE user_id IS NULL DO UPDATE
				SET count = EXCLUDED.count,
					updated_at = EXCLUDED.updated_at
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to refresh community gen-source stats: %w", err)
		}
		a, _ := perUser.RowsAffected()
		b, _ := community.RowsAffected()
		affected = int(a + b)
		return nil
	})
	return affected, err
}

// TagCardinalities returns cached counts for the given (tag, source) pairs,
// falling back to the planner's configured default for any miss.
func (r *StatsRepository) TagCardinalities(ctx context.Context, tagIDs []string, source string) (map[string]int64, error) {
	out := make(map[string]int64, len(tagIDs))
	for _, id := range tagIDs {
		out[id] = r.cfg.FallbackDefaultCount
	}
	if len(tagIDs) == 0 {
		return out, nil
	}

	var rows []models.TagCardinalityModel
	err := r.db.NewSelect().
		Model(&rows).
		Where("tag_id IN (?)", bun.In(tagIDs)).
		Where("source = ?", source).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load tag cardinalities: %w", err)
	}
	for _, row := range rows {
		out[row.TagID] = row.ContentCount
	}
	return out, nil
}

// UnifiedGenSourceStats returns the four-way breakdown for a user,
// computing any missing row live without persisting it.
func (r *StatsRepository) UnifiedGenSourceStats(ctx context.Context, userID int64) (*models.GenSourceStatsModel, *models.GenSourceStatsModel, *models.GenSourceStatsModel, *models.GenSourceStatsModel, error) {
	userRegular, err := r.userCount(ctx, &userID, "items")
	if err != nil {
		return nil, nil, nil, nil, err
	}
	userAuto, err := r.userCount(ctx, &userID, "auto")
	if err != nil {
		return nil, nil, nil, nil, err
	}
	communityRegular, err := r.userCount(ctx, nil, "items")
	if err != nil {
		return nil, nil, nil, nil, err
	}
	communityAuto, err := r.userCount(ctx, nil, "auto")
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return userRegular, userAuto, communityRegular, communityAuto, nil
}

func (r *StatsRepository) userCount(ctx context.Context, userID *int64, source string) (*models.GenSourceStatsModel, error) {
	row := &models.GenSourceStatsModel{}
	q := r.db.NewSelect().Model(row).Where("source = ?", source)
	if userID == nil {
		q = q.Where("user_id IS NULL")
	} else {
		q = q.Where("user_id = ?", *userID)
	}
	err := q.Scan(ctx)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read gen-source stats: %w", err)
	}

	// Stale or never-refreshed row: fall back to a live count,
	// without persisting it (the refresh runner reconciles on next cadence).
	var count int64
	liveQ := r.db.NewSelect().TableExpr("content_all").ColumnExpr("COUNT(*)").Where("source = ?", source)
	if userID == nil {
		liveQ = liveQ.Where("creator_id IS NOT NULL")
	} else {
		liveQ = liveQ.Where("creator_id = ?", *userID)
	}
	if err := liveQ.Scan(ctx, &count); err != nil {
		return nil, fmt.Errorf("failed to compute live gen-source count: %w", err)
	}
	return &models.GenSourceStatsModel{UserID: userID, Source: source, Count: count}, nil
}
