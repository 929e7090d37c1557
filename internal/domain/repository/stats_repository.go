package repository

import (
	"context"

	"github.com/pixforge/genflow/internal/infrastructure/storage/models"
)

// StatsRepository defines the interface for the tag-cardinality and
// gen-source statistics stores.
type StatsRepository interface {
	// RefreshTagCardinality recomputes (tag_id, source) -> distinct content
	// count from the junction and upserts every row idempotently.
	RefreshTagCardinality(ctx context.Context) (int, error)

	// RefreshGenSourceStats recomputes per-user and community counts over
	// content_all and upserts every row idempotently.
	RefreshGenSourceStats(ctx context.Context) (int, error)

	// TagCardinalities returns the cached cardinality for each (tag_id, source)
	// pair, falling back to the planner's configured default for any miss.
	TagCardinalities(ctx context.Context, tagIDs []string, source string) (map[string]int64, error)

	// UnifiedGenSourceStats returns the four-way breakdown for a user,
	// computing any missing row live without persisting it.
	UnifiedGenSourceStats(ctx context.Context, userID int64) (*models.GenSourceStatsModel, *models.GenSourceStatsModel, *models.GenSourceStatsModel, *models.GenSourceStatsModel, error)
}
