package rest

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/pixforge/genflow/internal/application/jobengine"
	"github.com/pixforge/genflow/internal/config"
	"github.com/pixforge/genflow/internal/infrastructure/logger"
	"github.com/pixforge/genflow/testutil"
)

// newJobsTestRouter builds a router against a Manager with nil repo/queue/
// broker. Submit's own validation runs before any of those are touched, so
// this only exercises the validation-only paths below; it would panic if a
// request ever reached persistence.
func newJobsTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logger.New(config.LoggingConfig{Level: "error", Format: "text"})
	manager := jobengine.NewManager(nil, nil, nil, "sd_xl_base_1.0.safetensors", log)
	h := NewJobHandlers(manager, log)

	r := gin.New()
	r.POST("/generation-jobs", h.HandleSubmitJob)
	r.GET("/generation-jobs/:id", h.HandleGetJob)
	r.POST("/generation-jobs/:id/cancel", h.HandleCancelJob)
	return r
}

func TestHandleSubmitJob_RejectsMissingRequiredFields(t *testing.T) {
	router := newJobsTestRouter()

	w := testutil.MakeRequest(t, router, http.MethodPost, "/generation-jobs", map[string]interface{}{})

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleSubmitJob_RejectsNonPositiveDimensions(t *testing.T) {
	router := newJobsTestRouter()

	body := map[string]interface{}{
		"prompt": "a castle on a hill",
		"width":  -512,
		"height": -512,
	}
	w := testutil.MakeRequest(t, router, http.MethodPost, "/generation-jobs", body)

	testutil.AssertJSONResponse(t, w, http.StatusBadRequest, nil)
}

func TestHandleSubmitJob_RejectsBlankPrompt(t *testing.T) {
	router := newJobsTestRouter()

	body := map[string]interface{}{
		"prompt": "   ",
		"width":  512,
		"height": 512,
	}
	w := testutil.MakeRequest(t, router, http.MethodPost, "/generation-jobs", body)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleGetJob_InvalidID(t *testing.T) {
	router := newJobsTestRouter()

	w := testutil.MakeRequest(t, router, http.MethodGet, "/generation-jobs/not-an-id", nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleCancelJob_InvalidID(t *testing.T) {
	router := newJobsTestRouter()

	w := testutil.MakeRequest(t, router, http.MethodPost, "/generation-jobs/not-an-id/cancel", nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
