package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pixforge/genflow/internal/application/jobengine"
	"github.com/pixforge/genflow/internal/infrastructure/logger"
	"github.com/pixforge/genflow/pkg/apierr"
	"github.com/pixforge/genflow/pkg/models"
)

// JobHandlers provides HTTP handlers for the generation orchestrator.
type JobHandlers struct {
	manager *jobengine.Manager
	logger  *logger.Logger
}

// NewJobHandlers creates a new JobHandlers instance.
func NewJobHandlers(manager *jobengine.Manager, log *logger.Logger) *JobHandlers {
	return &JobHandlers{manager: manager, logger: log}
}

// loraRequest mirrors models.LoRAEntry for request binding.
type loraRequest struct {
	Name     string  `json:"name" binding:"required"`
	Strength float64 `json:"strength"`
}

// samplerParamsRequest mirrors models.SamplerParams for request binding.
type samplerParamsRequest struct {
	Steps     int     `json:"steps,omitempty"`
	CFG       float64 `json:"cfg,omitempty"`
	Seed      int64   `json:"seed"`
	Sampler   string  `json:"sampler,omitempty"`
	Scheduler string  `json:"scheduler,omitempty"`
}

// createJobRequest is the request body for POST /generation-jobs.
type createJobRequest struct {
	Prompt         string               `json:"prompt" binding:"required"`
	NegativePrompt string               `json:"negative_prompt,omitempty"`
	CheckpointName string               `json:"checkpoint_model,omitempty"`
	LoRAs          []loraRequest        `json:"lora_models,omitempty"`
	Width          int                  `json:"width" binding:"required"`
	Height         int                  `json:"height" binding:"required"`
	BatchSize      int                  `json:"batch_size,omitempty"`
	SamplerParams  samplerParamsRequest `json:"sampler_params,omitempty"`
	Backend        string               `json:"backend,omitempty"`
}

// HandleSubmitJob handles POST /generation-jobs.
func (h *JobHandlers) HandleSubmitJob(c *gin.Context) {
	var req createJobRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}

	ownerID, _ := GetUserID(c)

	loras := make([]models.LoRAEntry, 0, len(req.LoRAs))
	for _, l := range req.LoRAs {
		loras = append(loras, models.LoRAEntry{Name: l.Name, Strength: l.Strength})
	}

	spec := models.JobSpec{
		OwnerUserID:    ownerID,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		CheckpointName: req.CheckpointName,
		LoRAs:          loras,
		Width:          req.Width,
		Height:         req.Height,
		BatchSize:      req.BatchSize,
		SamplerParams: models.SamplerParams{
			Steps:     req.SamplerParams.Steps,
			CFG:       req.SamplerParams.CFG,
			Seed:      req.SamplerParams.Seed,
			Sampler:   req.SamplerParams.Sampler,
			Scheduler: req.SamplerParams.Scheduler,
		},
		Backend: models.BackendChoice(req.Backend),
	}

	id, err := h.manager.Submit(c.Request.Context(), spec)
	if err != nil {
		h.logger.Error("failed to submit job", "error", err, "request_id", GetRequestID(c))
		respondAPIErrorWithRequestID(c, err)
		return
	}

	respondJSON(c, http.StatusAccepted, gin.H{"id": id})
}

// HandleGetJob handles GET /generation-jobs/:id.
func (h *JobHandlers) HandleGetJob(c *gin.Context) {
	jobID, ok := h.parseJobID(c)
	if !ok {
		return
	}

	job, err := h.manager.GetStatus(c.Request.Context(), jobID)
	if err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}

	respondJSON(c, http.StatusOK, job)
}

// HandleCancelJob handles DELETE /generation-jobs/:id and
// POST /generation-jobs/:id/cancel.
func (h *JobHandlers) HandleCancelJob(c *gin.Context) {
	jobID, ok := h.parseJobID(c)
	if !ok {
		return
	}

	state, err := h.manager.Cancel(c.Request.Context(), jobID)
	if err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"id": jobID, "state": state})
}

// HandleJobProgress handles GET /generation-jobs/:id/progress, a
// server-sent-events stream of progress.Event updates until the job
// reaches a terminal state or the client disconnects.
func (h *JobHandlers) HandleJobProgress(c *gin.Context) {
	jobID, ok := h.parseJobID(c)
	if !ok {
		return
	}

	events, unsubscribe := h.manager.SubscribeProgress(jobID)
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w gin.ResponseWriter) bool {
		select {
		case ev, open := <-events:
			if !open {
				return false
			}
			c.SSEvent("progress", ev)
			return ev.State != string(models.JobStateCompleted) &&
				ev.State != string(models.JobStateFailed) &&
				ev.State != string(models.JobStateCancelled)
		case <-c.Request.Context().Done():
			return false
		case <-time.After(30 * time.Second):
			c.SSEvent("heartbeat", gin.H{"ts": time.Now().UTC()})
			return true
		}
	})
}

func (h *JobHandlers) parseJobID(c *gin.Context) (int64, bool) {
	raw, ok := getParam(c, "id")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		respondAPIError(c, apierr.Validation("id must be a valid integer"))
		return 0, false
	}
	return id, true
}
