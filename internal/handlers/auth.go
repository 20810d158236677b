package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/statementdesk/ledgerlink/internal/dto"
	"github.com/statementdesk/ledgerlink/internal/errs"
	"github.com/statementdesk/ledgerlink/internal/middleware"
	"github.com/statementdesk/ledgerlink/internal/models"
	"github.com/statementdesk/ledgerlink/internal/response"
	"github.com/statementdesk/ledgerlink/pkg/logger"
)

type OAuthService interface {
	BuildAuthorizationURL(ctx context.Context, uid string, provider models.Provider) (string, error)
	HandleCallback(ctx context.Context, provider models.Provider, code, state, tenantHint string) ([]*models.Connection, error)
	ListConnections(ctx context.Context, uid string, provider models.Provider) ([]*models.Connection, error)
	Disconnect(ctx context.Context, uid string, provider models.Provider, tenantID string) error
}

type TokenService interface {
	CheckHealth(ctx context.Context, uid string, provider models.Provider, tenantID string) (dto.TokenHealth, error)
	ForceRefresh(ctx context.Context, uid string, provider models.Provider, tenantID string) (time.Time, error)
}

type authHandlers struct {
	ResponseHandler response.ResponseHandler
	OAuthSvc        OAuthService
	TokenSvc        TokenService
	AppRedirectURL  string
}

func NewAuthHandlers(deps *Deps) *authHandlers {
	return &authHandlers{
		ResponseHandler: deps.ResponseHandler,
		OAuthSvc:        deps.OAuthSvc,
		TokenSvc:        deps.TokenSvc,
		AppRedirectURL:  deps.AppRedirectURL,
	}
}

// AuthRoutes covers the authenticated connection lifecycle. The browser
// callback is registered separately because the provider redirect carries
// no bearer token. The static token-health segment takes priority over
// the provider wildcard.
func (h *authHandlers) AuthRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/token-health", h.TokenHealth)
	r.Post("/token-health", h.ForceRefresh)
	r.Get("/{provider}", h.Connect)
	r.Get("/{provider}/connections", h.ListConnections)
	r.Delete("/{provider}/connections", h.Disconnect)
	return r
}

func (h *authHandlers) Connect(w http.ResponseWriter, r *http.Request) {
	provider, err := models.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	uid := middleware.UID(r.Context())
	authURL, err := h.OAuthSvc.BuildAuthorizationURL(r.Context(), uid, provider)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, map[string]string{"authUrl": authURL})
}

// Callback completes the authorization-code flow and sends the browser back
// to the app settings page. Outcomes travel as query parameters because the
// provider redirect cannot carry a JSON body anywhere useful.
func (h *authHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	provider, err := models.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	if denied := q.Get("error"); denied != "" {
		h.redirectBack(w, r, provider, "error", "access_denied")
		return
	}

	// realmId is how QuickBooks identifies the company; other providers
	// never send it.
	_, err = h.OAuthSvc.HandleCallback(r.Context(), provider, q.Get("code"), q.Get("state"), q.Get("realmId"))
	if err != nil {
		logger.FromContext(r.Context()).Error("oauth callback failed", "provider", provider, "error", err)
		h.redirectBack(w, r, provider, "error", errs.Code(err))
		return
	}

	h.redirectBack(w, r, provider, "success", "connected")
}

func (h *authHandlers) redirectBack(w http.ResponseWriter, r *http.Request, provider models.Provider, key, value string) {
	u, err := url.Parse(h.AppRedirectURL)
	if err != nil {
		http.Error(w, "redirect misconfigured", http.StatusInternalServerError)
		return
	}
	q := u.Query()
	q.Set(string(provider)+"_"+key, value)
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

func (h *authHandlers) ListConnections(w http.ResponseWriter, r *http.Request) {
	provider, err := models.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	uid := middleware.UID(r.Context())
	conns, err := h.OAuthSvc.ListConnections(r.Context(), uid, provider)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, conns)
}

func (h *authHandlers) Disconnect(w http.ResponseWriter, r *http.Request) {
	provider, err := models.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	uid := middleware.UID(r.Context())
	tenantID := r.URL.Query().Get("tenantId")

	if err := h.OAuthSvc.Disconnect(r.Context(), uid, provider, tenantID); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, nil)
}

// TokenHealth answers GET /auth/token-health?provider=&workspaceId=.
// workspaceId is the provider-side tenant (Xero organisation, QuickBooks
// realm); single-account providers omit it.
func (h *authHandlers) TokenHealth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	provider, err := models.ParseProvider(q.Get("provider"))
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	uid := middleware.UID(r.Context())
	health, err := h.TokenSvc.CheckHealth(r.Context(), uid, provider, q.Get("workspaceId"))
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, health)
}

// ForceRefresh answers POST /auth/token-health, refreshing regardless of
// remaining validity and returning the new expiry.
func (h *authHandlers) ForceRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Provider    string `json:"provider"`
		WorkspaceID string `json:"workspaceId"`
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
	expiresAt, err := h.TokenSvc.ForceRefresh(r.Context(), uid, provider, body.WorkspaceID)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, map[string]any{
		"refreshed": true,
		"expiresAt": expiresAt,
	})
}
