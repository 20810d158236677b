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

type MappingService interface {
	GenerateSuggestions(ctx context.Context, uid string, provider models.Provider, tenantID string, mtype models.MappingType, localKeys []string) ([]dto.MappingSuggestion, error)
	AcceptMappings(ctx context.Context, uid string, provider models.Provider, tenantID string, mtype models.MappingType, accepted []dto.MappingSuggestion, source models.MappingSource) error
	ValidateMappings(ctx context.Context, uid string, provider models.Provider, tenantID, fileID string) (dto.MappingValidation, error)
}

type mappingHandlers struct {
	ResponseHandler response.ResponseHandler
	MappingSvc      MappingService
}

func NewMappingHandlers(deps *Deps) *mappingHandlers {
	return &mappingHandlers{
		ResponseHandler: deps.ResponseHandler,
		MappingSvc:      deps.MappingSvc,
	}
}

func (h *mappingHandlers) MappingRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/auto-suggest", h.AutoSuggest)
	r.Post("/validate", h.Validate)
	r.Put("/", h.Accept)
	return r
}

func (h *mappingHandlers) AutoSuggest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Provider  string   `json:"provider"`
		TenantID  string   `json:"tenantId"`
		Type      string   `json:"type"`
		LocalKeys []string `json:"localKeys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	provider, err := models.ParseProvider(body.Provider)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	var mtype models.MappingType
	switch body.Type {
	case "", "categories":
		mtype = models.MappingCategory
	case "merchants":
		mtype = models.MappingMerchant
	default:
		h.ResponseHandler.HandleError(w, r, errs.NewValidationError("type must be categories or merchants"))
		return
	}

	uid := middleware.UID(r.Context())
	suggestions, err := h.MappingSvc.GenerateSuggestions(r.Context(), uid, provider, body.TenantID, mtype, body.LocalKeys)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, suggestions)
}

func (h *mappingHandlers) Validate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Provider string `json:"provider"`
		TenantID string `json:"tenantId"`
		FileID   string `json:"fileId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	provider, err := models.ParseProvider(body.Provider)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	uid := middleware.UID(r.Context())
	result, err := h.MappingSvc.ValidateMappings(r.Context(), uid, provider, body.TenantID, body.FileID)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, result)
}

func (h *mappingHandlers) Accept(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Provider string                  `json:"provider"`
		TenantID string                  `json:"tenantId"`
		Type     string                  `json:"type"`
		Accepted []dto.MappingSuggestion `json:"accepted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	provider, err := models.ParseProvider(body.Provider)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	mtype := models.MappingType(body.Type)
	if mtype != models.MappingCategory && mtype != models.MappingMerchant {
		h.ResponseHandler.HandleError(w, r, errs.NewValidationError("type must be category or merchant"))
		return
	}

	uid := middleware.UID(r.Context())
	if err := h.MappingSvc.AcceptMappings(r.Context(), uid, provider, body.TenantID, mtype, body.Accepted, models.MappingSuggested); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, map[string]int{"accepted": len(body.Accepted)})
}
