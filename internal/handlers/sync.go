package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/statementdesk/ledgerlink/internal/dto"
	"github.com/statementdesk/ledgerlink/internal/errs"
	"github.com/statementdesk/ledgerlink/internal/middleware"
	"github.com/statementdesk/ledgerlink/internal/models"
	"github.com/statementdesk/ledgerlink/internal/response"
)

type SyncService interface {
	SubmitBulkImport(ctx context.Context, uid string, req dto.BulkImportRequest) (*models.SyncJob, error)
	GetJob(ctx context.Context, uid, jobID string) (*models.SyncJob, error)
	Cancel(ctx context.Context, uid, jobID string) error
}

type syncHandlers struct {
	ResponseHandler response.ResponseHandler
	SyncSvc         SyncService
}

func NewSyncHandlers(deps *Deps) *syncHandlers {
	return &syncHandlers{
		ResponseHandler: deps.ResponseHandler,
		SyncSvc:         deps.SyncSvc,
	}
}

func (h *syncHandlers) SyncRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/bulk-import", h.SubmitBulkImport)
	r.Get("/bulk-import", h.GetJob)
	r.Delete("/bulk-import", h.CancelJob)
	return r
}

func (h *syncHandlers) SubmitBulkImport(w http.ResponseWriter, r *http.Request) {
	var req dto.BulkImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	uid := middleware.UID(r.Context())
	job, err := h.SyncSvc.SubmitBulkImport(r.Context(), uid, req)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	h.ResponseHandler.WriteSuccess(w, r, http.StatusAccepted, job)
}

// GetJob answers GET /sync/bulk-import?jobId= with the job's current
// status and per-transaction outcomes.
func (h *syncHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UID(r.Context())
	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		h.ResponseHandler.HandleError(w, r, errs.NewValidationError("jobId is required"))
		return
	}

	job, err := h.SyncSvc.GetJob(r.Context(), uid, jobID)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, job)
}

func (h *syncHandlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UID(r.Context())
	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		h.ResponseHandler.HandleError(w, r, errs.NewValidationError("jobId is required"))
		return
	}

	if err := h.SyncSvc.Cancel(r.Context(), uid, jobID); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, map[string]bool{"cancelRequested": true})
}
