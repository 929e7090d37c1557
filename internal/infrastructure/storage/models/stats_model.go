package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TagCardinalityModel is (tag_id, source) -> distinct content count.
// Upserts target the natural key via ON CONFLICT on a unique index over
// (tag_id, source).
type TagCardinalityModel struct {
	bun.BaseModel `bun:"table:tag_cardinality_stats,alias:tcs"`

	TagID        string    `bun:"tag_id,pk,type:uuid,notnull" json:"tag_id"`
	Source       string    `bun:"source,pk,notnull" json:"source"`
	ContentCount int64     `bun:"content_count,notnull,default:0" json:"content_count"`
	UpdatedAt    time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// GenSourceStatsModel is (user_id nullable, source) -> count. A null
// user_id row is the community total for that source; partial unique
// indexes (declared in migrations) enforce exactly one community row per
// source and one row per (user_id, source).
type GenSourceStatsModel struct {
	bun.BaseModel `bun:"table:gen_source_stats,alias:gss"`

	UserID    *int64    `bun:"user_id" json:"user_id,omitempty"`
	Source    string    `bun:"source,notnull" json:"source"`
	Count     int64     `bun:"count,notnull,default:0" json:"count"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}
