package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/statementdesk/ledgerlink/internal/dto"
	"github.com/statementdesk/ledgerlink/internal/errs"
	"github.com/statementdesk/ledgerlink/internal/middleware"
	"github.com/statementdesk/ledgerlink/internal/models"
)

// --- stubs ---

type stubOAuthService struct {
	authURL     string
	authErr     error
	callbackErr error
	conns       []*models.Connection
	listErr     error

	connectUID    string
	callbackState string
	callbackHint  string
	disconnected  string
}

func (s *stubOAuthService) BuildAuthorizationURL(ctx context.Context, uid string, provider models.Provider) (string, error) {
	s.connectUID = uid
	return s.authURL, s.authErr
}

func (s *stubOAuthService) HandleCallback(ctx context.Context, provider models.Provider, code, state, tenantHint string) ([]*models.Connection, error) {
	s.callbackState = state
	s.callbackHint = tenantHint
	return s.conns, s.callbackErr
}

func (s *stubOAuthService) ListConnections(ctx context.Context, uid string, provider models.Provider) ([]*models.Connection, error) {
	return s.conns, s.listErr
}

func (s *stubOAuthService) Disconnect(ctx context.Context, uid string, provider models.Provider, tenantID string) error {
	s.disconnected = models.ConnectionID(provider, tenantID)
	return nil
}

type stubTokenService struct {
	health dto.TokenHealth
	expiry time.Time
	err    error

	healthTenant  string
	refreshTenant string
}

func (s *stubTokenService) CheckHealth(ctx context.Context, uid string, provider models.Provider, tenantID string) (dto.TokenHealth, error) {
	s.healthTenant = tenantID
	return s.health, s.err
}

func (s *stubTokenService) ForceRefresh(ctx context.Context, uid string, provider models.Provider, tenantID string) (time.Time, error) {
	s.refreshTenant = tenantID
	return s.expiry, s.err
}

type stubResponseHandler struct {
	writeSuccessCalled bool
	writeSuccessStatus int
	writeSuccessData   any

	handleErrorCalled bool
	handleError       error
}

func (s *stubResponseHandler) WriteSuccess(w http.ResponseWriter, r *http.Request, status int, data any) {
	s.writeSuccessCalled = true
	s.writeSuccessStatus = status
	s.writeSuccessData = data
	w.WriteHeader(status)
}

func (s *stubResponseHandler) WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.WriteHeader(status)
}

func (s *stubResponseHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	s.handleErrorCalled = true
	s.handleError = err
	w.WriteHeader(http.StatusInternalServerError)
}

// withProviderParam attaches a chi route context carrying {provider}.
func withProviderParam(r *http.Request, provider string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("provider", provider)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// --- tests ---

func TestConnectReturnsAuthorizationURL(t *testing.T) {
	oauth := &stubOAuthService{authURL: "https://login.xero.com/authorize?state=abc"}
	resp := &stubResponseHandler{}
	h := NewAuthHandlers(&Deps{ResponseHandler: resp, OAuthSvc: oauth})

	req := httptest.NewRequest(http.MethodGet, "/auth/xero", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.UIDKey, "uid-1"))
	req = withProviderParam(req, "xero")
	rr := httptest.NewRecorder()

	h.Connect(rr, req)

	if oauth.connectUID != "uid-1" {
		t.Fatalf("service received wrong uid %q", oauth.connectUID)
	}
	if !resp.writeSuccessCalled || resp.writeSuccessStatus != http.StatusOK {
		t.Fatal("expected 200 with the authorization URL")
	}
	body, ok := resp.writeSuccessData.(map[string]string)
	if !ok || body["authUrl"] != oauth.authURL {
		t.Fatalf("expected authUrl in the payload, got %+v", resp.writeSuccessData)
	}
}

func TestConnectUnknownProvider(t *testing.T) {
	resp := &stubResponseHandler{}
	h := NewAuthHandlers(&Deps{ResponseHandler: resp, OAuthSvc: &stubOAuthService{}})

	req := withProviderParam(httptest.NewRequest(http.MethodGet, "/auth/sage", nil), "sage")
	rr := httptest.NewRecorder()

	h.Connect(rr, req)

	if !resp.handleErrorCalled {
		t.Fatal("unknown provider should be handed to HandleError")
	}
}

func TestCallbackRedirectsWithSuccess(t *testing.T) {
	oauth := &stubOAuthService{}
	h := NewAuthHandlers(&Deps{
		ResponseHandler: &stubResponseHandler{},
		OAuthSvc:        oauth,
		AppRedirectURL:  "https://app.statementdesk.com/settings",
	})

	req := httptest.NewRequest(http.MethodGet, "/auth/quickbooks/callback?code=c1&state=s1&realmId=realm-9", nil)
	req = withProviderParam(req, "quickbooks")
	rr := httptest.NewRecorder()

	h.Callback(rr, req)

	if rr.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", rr.Code)
	}
	loc := rr.Header().Get("Location")
	if loc != "https://app.statementdesk.com/settings?quickbooks_success=connected" {
		t.Fatalf("unexpected redirect target %q", loc)
	}
	if oauth.callbackHint != "realm-9" {
		t.Fatalf("realmId not forwarded, got %q", oauth.callbackHint)
	}
}

func TestCallbackRedirectsWithErrorCode(t *testing.T) {
	oauth := &stubOAuthService{callbackErr: errs.NewInvalidStateError("state already used")}
	h := NewAuthHandlers(&Deps{
		ResponseHandler: &stubResponseHandler{},
		OAuthSvc:        oauth,
		AppRedirectURL:  "https://app.statementdesk.com/settings",
	})

	req := httptest.NewRequest(http.MethodGet, "/auth/xero/callback?code=c1&state=s1", nil)
	req = withProviderParam(req, "xero")
	rr := httptest.NewRecorder()

	h.Callback(rr, req)

	if rr.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", rr.Code)
	}
	loc := rr.Header().Get("Location")
	if loc != "https://app.statementdesk.com/settings?xero_error=invalid_state" {
		t.Fatalf("unexpected redirect target %q", loc)
	}
}

func TestCallbackUserDenied(t *testing.T) {
	oauth := &stubOAuthService{}
	h := NewAuthHandlers(&Deps{
		ResponseHandler: &stubResponseHandler{},
		OAuthSvc:        oauth,
		AppRedirectURL:  "https://app.statementdesk.com/settings",
	})

	req := httptest.NewRequest(http.MethodGet, "/auth/xero/callback?error=access_denied", nil)
	req = withProviderParam(req, "xero")
	rr := httptest.NewRecorder()

	h.Callback(rr, req)

	if oauth.callbackState != "" {
		t.Fatal("denied callback should never reach the service")
	}
	loc := rr.Header().Get("Location")
	if loc != "https://app.statementdesk.com/settings?xero_error=access_denied" {
		t.Fatalf("unexpected redirect target %q", loc)
	}
}

func TestTokenHealthPassesThrough(t *testing.T) {
	tokens := &stubTokenService{health: dto.TokenHealth{Status: dto.TokenHealthy, HasRefreshToken: true}}
	resp := &stubResponseHandler{}
	h := NewAuthHandlers(&Deps{ResponseHandler: resp, TokenSvc: tokens})

	req := httptest.NewRequest(http.MethodGet, "/auth/token-health?provider=xero&workspaceId=org-1", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.UIDKey, "uid-1"))
	rr := httptest.NewRecorder()

	h.TokenHealth(rr, req)

	if !resp.writeSuccessCalled {
		t.Fatal("expected WriteSuccess")
	}
	if tokens.healthTenant != "org-1" {
		t.Fatalf("workspaceId not forwarded, got %q", tokens.healthTenant)
	}
	health, ok := resp.writeSuccessData.(dto.TokenHealth)
	if !ok || health.Status != dto.TokenHealthy {
		t.Fatalf("unexpected payload %+v", resp.writeSuccessData)
	}
}

func TestForceRefreshReturnsNewExpiry(t *testing.T) {
	expiry := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens := &stubTokenService{expiry: expiry}
	resp := &stubResponseHandler{}
	h := NewAuthHandlers(&Deps{ResponseHandler: resp, TokenSvc: tokens})

	req := httptest.NewRequest(http.MethodPost, "/auth/token-health",
		strings.NewReader(`{"provider": "xero", "workspaceId": "org-1"}`))
	req = req.WithContext(context.WithValue(req.Context(), middleware.UIDKey, "uid-1"))
	rr := httptest.NewRecorder()

	h.ForceRefresh(rr, req)

	if !resp.writeSuccessCalled {
		t.Fatal("expected WriteSuccess")
	}
	if tokens.refreshTenant != "org-1" {
		t.Fatalf("workspaceId not forwarded, got %q", tokens.refreshTenant)
	}
	body, ok := resp.writeSuccessData.(map[string]any)
	if !ok || body["refreshed"] != true {
		t.Fatalf("unexpected payload %+v", resp.writeSuccessData)
	}
	if got, ok := body["expiresAt"].(time.Time); !ok || !got.Equal(expiry) {
		t.Fatalf("expected new expiry %v, got %v", expiry, body["expiresAt"])
	}
}

func TestDisconnectUsesTenantQuery(t *testing.T) {
	oauth := &stubOAuthService{}
	resp := &stubResponseHandler{}
	h := NewAuthHandlers(&Deps{ResponseHandler: resp, OAuthSvc: oauth})

	req := httptest.NewRequest(http.MethodDelete, "/auth/xero/connections?tenantId=org-1", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.UIDKey, "uid-1"))
	req = withProviderParam(req, "xero")
	rr := httptest.NewRecorder()

	h.Disconnect(rr, req)

	if !resp.writeSuccessCalled {
		t.Fatal("expected WriteSuccess")
	}
	if oauth.disconnected != models.ConnectionID(models.ProviderXero, "org-1") {
		t.Fatalf("wrong connection disconnected: %q", oauth.disconnected)
	}
}
