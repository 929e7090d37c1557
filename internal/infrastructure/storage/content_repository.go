package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pixforge/genflow/internal/application/planner"
	"github.com/pixforge/genflow/internal/config"
	"github.com/pixforge/genflow/internal/domain/repository"
	"github.com/pixforge/genflow/internal/infrastructure/storage/models"
	"github.com/pixforge/genflow/pkg/cursor"
	pkgmodels "github.com/pixforge/genflow/pkg/models"
	"github.com/uptrace/bun"
)

// Ensure ContentRepository implements the interface.
var _ repository.ContentRepository = (*ContentRepository)(nil)

// ContentRepository implements repository.ContentRepository using Bun ORM,
// including the adaptive tag-filter planner's four SQL strategies.
type ContentRepository struct {
	db      *bun.DB
	planner *planner.Planner
	cfg     config.PlannerConfig
}

// NewContentRepository creates a new ContentRepository.
func NewContentRepository(db *bun.DB, plannerImpl *planner.Planner, cfg config.PlannerConfig) *ContentRepository {
	return &ContentRepository{db: db, planner: plannerImpl, cfg: cfg}
}

// InsertItem inserts into the items child partition directly and returns the
// new id; both the child-direct and parent-routed write paths preserve the
// same invariants.
func (r *ContentRepository) InsertItem(ctx context.Context, row *models.ContentModel) (int64, error) {
	row.Source = "items"
	_, err := r.db.NewInsert().
		Model(row).
		ModelTableExpr("items AS c").
		Returning("id").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to insert content item: %w", err)
	}
	return row.ID, nil
}

// LinkTags inserts junction rows for the given content row and tag ids.
func (r *ContentRepository) LinkTags(ctx context.Context, contentID int64, source string, tagIDs []string) error {
	if len(tagIDs) == 0 {
		return nil
	}
	links := make([]*models.TagLinkModel, len(tagIDs))
	for i, id := range tagIDs {
		links[i] = &models.TagLinkModel{ContentID: contentID, Source: source, TagID: id}
	}
	_, err := r.db.NewInsert().
		Model(&links).
		On("CONFLICT (content_id, source, tag_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to link tags: %w", err)
	}
	return nil
}

// FindByID retrieves a single content row through content_all.
func (r *ContentRepository) FindByID(ctx context.Context, id int64, source string) (*models.ContentModel, error) {
	row := &models.ContentModel{}
	err := r.db.NewSelect().
		Model(row).
		Where("id = ? AND source = ?", id, source).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("content not found: %d/%s", id, source)
		}
		return nil, fmt.Errorf("failed to find content: %w", err)
	}
	return row, nil
}

// ResolveTagIDs maps tag names to ids, creating any tag that does not exist.
func (r *ContentRepository) ResolveTagIDs(ctx context.Context, names []string) ([]string, error) {
	ids := make([]string, 0, len(names))
	for _, name := range dedupeLower(names) {
		tag := &models.TagModel{Name: name}
		_, err := r.db.NewInsert().
			Model(tag).
			On("CONFLICT (name) DO UPDATE SET name = EXCLUDED.name").
			Returning("id").
			Exec(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve tag %q: %w", name, err)
		}
		ids = append(ids, tag.ID)
	}
	return ids, nil
}

func dedupeLower(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// lookupTagIDs resolves already-lower-cased tag names to ids, read-only: a
// name with no matching row is simply absent from the result rather than
// being created, since Gallery is a read path.
func (r *ContentRepository) lookupTagIDs(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var tags []*models.TagModel
	err := r.db.NewSelect().
		Model(&tags).
		Where("name IN (?)", bun.In(names)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to look up tag ids: %w", err)
	}
	ids := make([]string, len(tags))
	for i, t := range tags {
		ids[i] = t.ID
	}
	return ids, nil
}

// Gallery executes the planner-selected strategy for a tag-filtered, source
// restricted, cursor-paginated read of content_all.
func (r *ContentRepository) Gallery(ctx context.Context, q repository.GalleryQuery) (*repository.GalleryPage, error) {
	if len(q.Sources) == 0 {
		return &repository.GalleryPage{Rows: nil, NextCursor: nil, HasNext: false}, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 25
	}

	names := dedupeLower(q.Tags)
	tagIDs, err := r.lookupTagIDs(ctx, names)
	if err != nil {
		return nil, err
	}
	if len(names) > 0 && len(tagIDs) != len(names) {
		// at least one requested tag does not exist, so an AND-filter over
		// the full set can never match any content.
		return &repository.GalleryPage{Rows: nil, NextCursor: nil, HasNext: false}, nil
	}

	var rows []*models.ContentModel

	switch {
	case len(tagIDs) == 0:
		rows, err = r.plainGallery(ctx, q, limit)
	default:
		// the planner is consulted per query; it reads tag cardinalities for
		// the first requested source only, and the chosen strategy then runs
		// over every requested source.
		decision, derr := r.planner.Select(ctx, tagIDs, q.Sources[0])
		if derr != nil {
			return nil, derr
		}
		switch decision.Strategy {
		case planner.SelfJoin:
			rows, err = r.selfJoinGallery(ctx, q, decision, limit)
		case planner.GroupHaving:
			rows, err = r.groupHavingGallery(ctx, q, decision, limit)
		case planner.TwoPhaseDualSeed:
			rows, err = r.twoPhaseGallery(ctx, q, decision, limit, 2)
		default:
			rows, err = r.twoPhaseGallery(ctx, q, decision, limit, 1)
		}
	}
	if err != nil {
		return nil, err
	}

	page := &repository.GalleryPage{Rows: rows}
	if len(rows) == limit {
		page.HasNext = true
		last := rows[len(rows)-1]
		next := cursor.Encode(cursor.Cursor{CreatedAt: last.CreatedAt, ID: last.ID, Source: pkgmodels.Source(last.Source), V: 1})
		page.NextCursor = &next
	}
	return page, nil
}

// cursorPredicate renders the keyset comparison for DESC ordering.
func cursorPredicate(q *bun.SelectQuery, alias string, c *cursor.Cursor) *bun.SelectQuery {
	if c == nil {
		return q
	}
	col := alias
	if col != "" {
		col += "."
	}
	return q.Where("("+col+"created_at, "+col+"id) < (?, ?)", c.CreatedAt, c.ID)
}

func (r *ContentRepository) plainGallery(ctx context.Context, q repository.GalleryQuery, limit int) ([]*models.ContentModel, error) {
	var rows []*models.ContentModel
	sel := r.db.NewSelect().
		Model(&rows).
		Where("c.source IN (?)", bun.In(q.Sources)).
		OrderExpr("c.created_at DESC, c.id DESC").
		Limit(limit)
	if q.CreatorID != nil {
		sel = sel.Where("c.creator_id = ?", *q.CreatorID)
	}
	sel = cursorPredicate(sel, "c", q.Cursor)
	if err := sel.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to run gallery query: %w", err)
	}
	return rows, nil
}

// selfJoinGallery runs one junction self-join per tag (K <= small_k_threshold).
func (r *ContentRepository) selfJoinGallery(ctx context.Context, q repository.GalleryQuery, d planner.Decision, limit int) ([]*models.ContentModel, error) {
	var rows []*models.ContentModel
	sel := r.db.NewSelect().
		Model(&rows).
		Where("c.source IN (?)", bun.In(q.Sources))
	for i, tagID := range d.RankedTagIDs {
		alias := fmt.Sprintf("ct%d", i)
		joinCond := fmt.Sprintf("%s.content_id = c.id AND %s.source = c.source AND %s.tag_id = ?", alias, alias, alias)
		sel = sel.Join("JOIN content_tags AS "+alias+" ON "+joinCond, tagID)
	}
	if q.CreatorID != nil {
		sel = sel.Where("c.creator_id = ?", *q.CreatorID)
	}
	sel = cursorPredicate(sel, "c", q.Cursor)
	sel = sel.OrderExpr("c.created_at DESC, c.id DESC").Limit(limit)
	if err := sel.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to run self-join gallery query: %w", err)
	}
	return rows, nil
}

// groupHavingGallery filters the junction by the full tag set then groups by
// content id, keeping only rows that carry all K tags.
func (r *ContentRepository) groupHavingGallery(ctx context.Context, q repository.GalleryQuery, d planner.Decision, limit int) ([]*models.ContentModel, error) {
	matchSub := r.db.NewSelect().
		ColumnExpr("content_id, source").
		TableExpr("content_tags").
		Where("tag_id IN (?)", bun.In(d.RankedTagIDs)).
		Where("source IN (?)", bun.In(q.Sources)).
		GroupExpr("content_id, source").
		Having("COUNT(DISTINCT tag_id) = ?", len(d.RankedTagIDs))

	var rows []*models.ContentModel
	sel := r.db.NewSelect().
		Model(&rows).
		Join("JOIN (?) AS m ON m.content_id = c.id AND m.source = c.source", matchSub)
	if q.CreatorID != nil {
		sel = sel.Where("c.creator_id = ?", *q.CreatorID)
	}
	sel = cursorPredicate(sel, "c", q.Cursor)
	sel = sel.OrderExpr("c.created_at DESC, c.id DESC").Limit(limit)
	if err := sel.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to run group/having gallery query: %w", err)
	}
	return rows, nil
}

// twoPhaseGallery seeds from the seedCount rarest tags (capped at
// seed_candidate_cap) then re-groups over the full tag set within that seed
//.
func (r *ContentRepository) twoPhaseGallery(ctx context.Context, q repository.GalleryQuery, d planner.Decision, limit, seedCount int) ([]*models.ContentModel, error) {
	if seedCount > len(d.RankedTagIDs) {
		seedCount = len(d.RankedTagIDs)
	}
	seedTags := d.RankedTagIDs[:seedCount]

	seedSub := r.db.NewSelect().
		ColumnExpr("content_id, source").
		TableExpr("content_tags").
		Where("tag_id IN (?)", bun.In(seedTags)).
		Where("source IN (?)", bun.In(q.Sources)).
		GroupExpr("content_id, source").
		Having("COUNT(DISTINCT tag_id) = ?", seedCount).
		Limit(int(r.cfg.SeedCandidateCap))

	matchSub := r.db.NewSelect().
		ColumnExpr("ct.content_id, ct.source").
		TableExpr("content_tags AS ct").
		Join("JOIN (?) AS seed ON seed.content_id = ct.content_id AND seed.source = ct.source", seedSub).
		Where("ct.tag_id IN (?)", bun.In(d.RankedTagIDs)).
		GroupExpr("ct.content_id, ct.source").
		Having("COUNT(DISTINCT ct.tag_id) = ?", len(d.RankedTagIDs))

	var rows []*models.ContentModel
	sel := r.db.NewSelect().
		Model(&rows).
		Join("JOIN (?) AS m ON m.content_id = c.id AND m.source = c.source", matchSub)
	if q.CreatorID != nil {
		sel = sel.Where("c.creator_id = ?", *q.CreatorID)
	}
	sel = cursorPredicate(sel, "c", q.Cursor)
	sel = sel.OrderExpr("c.created_at DESC, c.id DESC").Limit(limit)
	if err := sel.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to run two-phase gallery query: %w", err)
	}
	return rows, nil
}
