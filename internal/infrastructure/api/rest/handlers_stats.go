package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pixforge/genflow/internal/domain/repository"
	"github.com/pixforge/genflow/internal/infrastructure/logger"
)

// StatsHandlers provides HTTP handlers for the tag-cardinality and
// gen-source statistics pipeline's read surface.
type StatsHandlers struct {
	stats  repository.StatsRepository
	logger *logger.Logger
}

// NewStatsHandlers creates a new StatsHandlers instance.
func NewStatsHandlers(stats repository.StatsRepository, log *logger.Logger) *StatsHandlers {
	return &StatsHandlers{stats: stats, logger: log}
}

// HandleUnifiedGenSourceStats handles GET /content/stats/unified: the
// four-way breakdown of a caller's own regular/auto counts against the
// community-wide regular/auto counts.
func (h *StatsHandlers) HandleUnifiedGenSourceStats(c *gin.Context) {
	userID, ok := GetUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "authentication required")
		return
	}

	userItems, userAuto, communityItems, communityAuto, err := h.stats.UnifiedGenSourceStats(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to compute unified gen-source stats", "error", err, "user_id", userID, "request_id", GetRequestID(c))
		respondAPIErrorWithRequestID(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{
		"user": gin.H{
			"items": userItems,
			"auto":  userAuto,
		},
		"community": gin.H{
			"items": communityItems,
			"auto":  communityAuto,
		},
	})
}

// HandleTagCardinalities handles GET /content/stats/tags. Query
// parameters:
//   - tags: comma-separated tag ids (required)
//   - source: partition source, items or auto (required)
func (h *StatsHandlers) HandleTagCardinalities(c *gin.Context) {
	tagsRaw := getQuery(c, "tags", "")
	source := getQuery(c, "source", "")
	if tagsRaw == "" || source == "" {
		respondAPIErrorWithRequestID(c, NewAPIError("MISSING_PARAMETER", "tags and source are required", http.StatusBadRequest))
		return
	}

	counts, err := h.stats.TagCardinalities(c.Request.Context(), splitCSV(tagsRaw), source)
	if err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}

	respondJSON(c, http.StatusOK, counts)
}
