package repository

import (
	"context"

	"github.com/pixforge/genflow/internal/infrastructure/storage/models"
	"github.com/pixforge/genflow/pkg/cursor"
)

// GalleryQuery is the input to a planner-backed content page fetch.
type GalleryQuery struct {
	Tags      []string
	Sources   []string
	CreatorID *int64
	Cursor    *cursor.Cursor
	Limit     int
}

// GalleryPage is one page of content rows plus the next cursor.
type GalleryPage struct {
	Rows       []*models.ContentModel
	NextCursor *string
	HasNext    bool
}

// ContentRepository defines the interface for the partitioned content store
// and tag-filtered gallery reads.
type ContentRepository interface {
	// InsertItem inserts a row into the items child partition and returns
	// the new content id.
	InsertItem(ctx context.Context, row *models.ContentModel) (int64, error)

	// LinkTags links the given tag ids to a content row in the junction.
	LinkTags(ctx context.Context, contentID int64, source string, tagIDs []string) error

	// FindByID retrieves a single content row through content_all.
	FindByID(ctx context.Context, id int64, source string) (*models.ContentModel, error)

	// Gallery executes the planner-selected strategy and returns a page.
	Gallery(ctx context.Context, q GalleryQuery) (*GalleryPage, error)

	// ResolveTagIDs maps tag names to their ids, creating missing tags.
	ResolveTagIDs(ctx context.Context, names []string) ([]string, error)
}
