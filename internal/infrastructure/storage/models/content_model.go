package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ContentModel maps the content_all parent (and, by table override, its
// items/auto children — see repository.ContentRepository). All reads go
// through content_all; writes may target the parent or a child table
// directly by overriding the bun table name at query time.
type ContentModel struct {
	bun.BaseModel `bun:"table:content_all,alias:c"`

	ID              int64     `bun:"id,pk,autoincrement" json:"id"`
	Source          string    `bun:"source,pk,notnull" json:"source"`
	Title           string    `bun:"title" json:"title,omitempty"`
	ContentType     string    `bun:"content_type,notnull" json:"content_type"`
	PrimaryFilePath string    `bun:"primary_file_path,notnull" json:"primary_file_path"`
	AltPaths        JSONBMap  `bun:"alt_paths,type:jsonb,default:'{}'" json:"alt_paths,omitempty"`
	Prompt          string    `bun:"prompt,notnull" json:"prompt"`
	CreatorID       int64     `bun:"creator_id,notnull" json:"creator_id"`
	QualityScore    float64   `bun:"quality_score,default:0" json:"quality_score,omitempty"`
	Private         bool      `bun:"private,default:false" json:"private"`
	ItemMetadata    JSONBMap  `bun:"item_metadata,type:jsonb,default:'{}'" json:"item_metadata,omitempty"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt       time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// BeforeInsert stamps timestamps and ensures map columns are never nil,
// mirroring the donor's ExecutionModel hook convention.
func (c *ContentModel) BeforeInsert(ctx interface{}) error {
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.AltPaths == nil {
		c.AltPaths = make(JSONBMap)
	}
	if c.ItemMetadata == nil {
		c.ItemMetadata = make(JSONBMap)
	}
	return nil
}

// BeforeUpdate refreshes the update timestamp.
func (c *ContentModel) BeforeUpdate(ctx interface{}) error {
	c.UpdatedAt = time.Now()
	return nil
}

// TagModel is a label row with a stable uuid and unique lower-cased name.
type TagModel struct {
	bun.BaseModel `bun:"table:tags,alias:t"`

	ID        string    `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	Name      string    `bun:"name,notnull,unique" json:"name"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// TagEdgeModel is a parent->child edge in the tag DAG.
type TagEdgeModel struct {
	bun.BaseModel `bun:"table:tag_edges,alias:te"`

	ParentTagID string    `bun:"parent_tag_id,pk,type:uuid" json:"parent_tag_id"`
	ChildTagID  string    `bun:"child_tag_id,pk,type:uuid" json:"child_tag_id"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// TagLinkModel is one row of the content/tag junction. The composite
// primary key is (content_id, source, tag_id); a secondary covering index
// on (tag_id, source, content_id) supports tag-first scans (created in
// migrations, not expressible via bun struct tags alone).
type TagLinkModel struct {
	bun.BaseModel `bun:"table:content_tags,alias:ct"`

	ContentID int64  `bun:"content_id,pk,notnull" json:"content_id"`
	Source    string `bun:"source,pk,notnull" json:"source"`
	TagID     string `bun:"tag_id,pk,type:uuid,notnull" json:"tag_id"`
}
