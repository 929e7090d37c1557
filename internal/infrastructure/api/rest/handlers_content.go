package rest

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pixforge/genflow/internal/application/contentquery"
	"github.com/pixforge/genflow/internal/config"
	"github.com/pixforge/genflow/internal/domain/repository"
	"github.com/pixforge/genflow/internal/infrastructure/logger"
	"github.com/pixforge/genflow/pkg/apierr"
	"github.com/pixforge/genflow/pkg/cursor"
	"github.com/pixforge/genflow/pkg/models"
)

// ContentHandlers provides HTTP handlers for the partitioned content store
// and tag-filtered gallery reads.
type ContentHandlers struct {
	content    repository.ContentRepository
	pagination config.PaginationConfig
	logger     *logger.Logger
}

// NewContentHandlers creates a new ContentHandlers instance.
func NewContentHandlers(content repository.ContentRepository, pagination config.PaginationConfig, log *logger.Logger) *ContentHandlers {
	return &ContentHandlers{content: content, pagination: pagination, logger: log}
}

// HandleGallery handles GET /content. Query parameters:
//   - tags: comma-separated tag names, ANDed together
//   - sources: comma-separated partition sources (items, auto); default both
//   - creator_id: optional, restricts to one creator
//   - cursor: opaque keyset pagination token from a prior page's next_cursor
//   - limit: page size, bounded by the configured max
//   - metadata_query: optional jq filter evaluated against item_metadata
func (h *ContentHandlers) HandleGallery(c *gin.Context) {
	limit := getQueryInt(c, "limit", h.pagination.DefaultPageSize)
	if limit <= 0 {
		respondAPIError(c, apierr.Validation("limit must be a positive integer"))
		return
	}
	if limit > h.pagination.MaxPageSize {
		limit = h.pagination.MaxPageSize
	}

	q := repository.GalleryQuery{Limit: limit, Sources: []string{string(models.SourceItems), string(models.SourceAuto)}}

	if tags := getQuery(c, "tags", ""); tags != "" {
		q.Tags = splitCSV(tags)
	}
	if _, ok := c.GetQuery("sources"); ok {
		q.Sources = splitCSV(c.Query("sources"))
	}
	if creatorRaw := c.Query("creator_id"); creatorRaw != "" {
		creatorID, err := strconv.ParseInt(creatorRaw, 10, 64)
		if err != nil {
			respondAPIError(c, apierr.Validation("creator_id must be a valid integer"))
			return
		}
		q.CreatorID = &creatorID
	}
	if raw := c.Query("cursor"); raw != "" {
		decoded, err := cursor.Decode(raw)
		if err != nil {
			respondAPIErrorWithRequestID(c, err)
			return
		}
		q.Cursor = &decoded
	}

	var evaluator *contentquery.Evaluator
	if filter := c.Query("metadata_query"); filter != "" {
		ev, err := contentquery.Compile(filter)
		if err != nil {
			respondAPIError(c, apierr.Validation(err.Error()))
			return
		}
		evaluator = ev
	}

	page, err := h.content.Gallery(c.Request.Context(), q)
	if err != nil {
		h.logger.Error("failed to fetch gallery page", "error", err, "request_id", GetRequestID(c))
		respondAPIErrorWithRequestID(c, err)
		return
	}

	rows := make([]gin.H, 0, len(page.Rows))
	for _, row := range page.Rows {
		entry := gin.H{
			"id":                row.ID,
			"source":            row.Source,
			"title":             row.Title,
			"content_type":      row.ContentType,
			"primary_file_path": row.PrimaryFilePath,
			"alt_paths":         row.AltPaths,
			"prompt":            row.Prompt,
			"creator_id":        row.CreatorID,
			"quality_score":     row.QualityScore,
			"private":           row.Private,
			"item_metadata":     row.ItemMetadata,
			"created_at":        row.CreatedAt,
			"updated_at":        row.UpdatedAt,
		}
		if evaluator != nil {
			projected, err := evaluator.Run(row.ItemMetadata)
			if err != nil {
				respondAPIError(c, apierr.Validation(err.Error()))
				return
			}
			entry["item_metadata"] = projected
		}
		rows = append(rows, entry)
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Data: gin.H{
			"rows":        rows,
			"next_cursor": page.NextCursor,
			"has_next":    page.HasNext,
		},
	})
}

// HandleGetContent handles GET /content/:source/:id.
func (h *ContentHandlers) HandleGetContent(c *gin.Context) {
	source, ok := getParam(c, "source")
	if !ok {
		return
	}
	idRaw, ok := getParam(c, "id")
	if !ok {
		return
	}
	id, err := strconv.ParseInt(idRaw, 10, 64)
	if err != nil {
		respondAPIError(c, apierr.Validation("id must be a valid integer"))
		return
	}

	row, err := h.content.FindByID(c.Request.Context(), id, source)
	if err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}

	respondJSON(c, http.StatusOK, row)
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
