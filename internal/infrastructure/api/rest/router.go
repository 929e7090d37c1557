package rest

import (
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/pixforge/genflow/internal/application/jobengine"
	"github.com/pixforge/genflow/internal/config"
	"github.com/pixforge/genflow/internal/domain/repository"
	"github.com/pixforge/genflow/internal/infrastructure/logger"
)

// Router wires the genflow HTTP surface: generation job orchestration,
// the gallery read path, and the statistics read path.
type Router struct {
	cfg    *config.Config
	logger *logger.Logger
	auth   *AuthMiddleware
	jobs   *JobHandlers
	gallery *ContentHandlers
	stats  *StatsHandlers
}

// NewRouter builds a Router from the application's wired components.
func NewRouter(
	cfg *config.Config,
	log *logger.Logger,
	authVerifier *AuthMiddleware,
	jobManager *jobengine.Manager,
	contentRepo repository.ContentRepository,
	statsRepo repository.StatsRepository,
) *Router {
	return &Router{
		cfg:     cfg,
		logger:  log,
		auth:    authVerifier,
		jobs:    NewJobHandlers(jobManager, log),
		gallery: NewContentHandlers(contentRepo, cfg.Pagination, log),
		stats:   NewStatsHandlers(statsRepo, log),
	}
}

// Build assembles the gin engine: middleware stack, CORS, health check,
// and the job/gallery/stats route groups.
func (rt *Router) Build() *gin.Engine {
	if rt.cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	loggingMiddleware := NewLoggingMiddleware(rt.logger)
	recoveryMiddleware := NewRecoveryMiddleware(rt.logger)
	bodySizeMiddleware := NewBodySizeMiddleware(rt.logger, 10<<20)

	router.Use(recoveryMiddleware.Recovery())
	router.Use(loggingMiddleware.RequestLogger())
	router.Use(bodySizeMiddleware.LimitBodySize())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	rt.setupCORS(router)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.Use(rt.auth.OptionalAuth())
	{
		v1.POST("/generation-jobs", rt.jobs.HandleSubmitJob)
		v1.GET("/generation-jobs/:id", rt.jobs.HandleGetJob)
		v1.DELETE("/generation-jobs/:id", rt.jobs.HandleCancelJob)
		v1.POST("/generation-jobs/:id/cancel", rt.jobs.HandleCancelJob)
		v1.GET("/generation-jobs/:id/progress", rt.jobs.HandleJobProgress)

		v1.GET("/content", rt.gallery.HandleGallery)
		v1.GET("/content/:source/:id", rt.gallery.HandleGetContent)

		v1.GET("/content/stats/unified", rt.stats.HandleUnifiedGenSourceStats)
		v1.GET("/content/stats/tags", rt.stats.HandleTagCardinalities)
	}

	return router
}

func (rt *Router) setupCORS(router *gin.Engine) {
	if !rt.cfg.Server.CORS {
		return
	}

	allowedOrigins := rt.cfg.Server.CORSAllowedOrigins
	allowAll := len(allowedOrigins) == 0 && rt.cfg.Logging.Level == "debug"

	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = struct{}{}
	}

	router.Use(func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		if allowAll {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			if _, ok := originSet[origin]; ok {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				c.Writer.Header().Set("Vary", "Origin")
			}
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})
}
