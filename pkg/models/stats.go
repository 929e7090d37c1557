package models

import "time"

// TagCardinalityRow is (tag_id, source) -> distinct content count, used by
// the planner to pick a query strategy.
type TagCardinalityRow struct {
	TagID       string    `json:"tag_id"`
	Source      Source    `json:"source"`
	ContentCount int64    `json:"content_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GenSourceStatsRow is (user_id or nil, source) -> count. A nil UserID
// denotes the community total for that source.
type GenSourceStatsRow struct {
	UserID    *int64    `json:"user_id,omitempty"`
	Source    Source    `json:"source"`
	Count     int64     `json:"count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UnifiedGenSourceStats is the read-side shape returned by the aggregate
// statistics API.
type UnifiedGenSourceStats struct {
	UserRegularCount      int64 `json:"user_regular_count"`
	UserAutoCount         int64 `json:"user_auto_count"`
	CommunityRegularCount int64 `json:"community_regular_count"`
	CommunityAutoCount    int64 `json:"community_auto_count"`
}
