package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/statementdesk/ledgerlink/internal/dto"
	"github.com/statementdesk/ledgerlink/internal/errs"
	"github.com/statementdesk/ledgerlink/internal/models"
)

// --- fakes ---

type fakeStateStore struct {
	states map[string]*models.OAuthState
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{states: make(map[string]*models.OAuthState)}
}

func (f *fakeStateStore) Create(ctx context.Context, state *models.OAuthState) error {
	f.states[state.State] = state
	return nil
}

func (f *fakeStateStore) Consume(ctx context.Context, state string) (*models.OAuthState, error) {
	st, ok := f.states[state]
	if !ok {
		return nil, errs.NewInvalidStateError("state is unknown, expired, or already used")
	}
	delete(f.states, state)
	return st, nil
}

func (f *fakeStateStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	purged := 0
	for k, st := range f.states {
		if st.ExpiredAt(now) {
			delete(f.states, k)
			purged++
		}
	}
	return purged, nil
}

// --- tests ---

func TestBuildAuthorizationURLPersistsState(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	states := newFakeStateStore()
	adapter := &fakeAdapter{provider: models.ProviderXero, authBase: "https://login.xero.com/identity/connect/authorize"}

	svc := NewOAuthService(states, newFakeConnStore(), fakeRegistry{models.ProviderXero: adapter})
	svc.clockNow = func() time.Time { return now }

	url, err := svc.BuildAuthorizationURL(testCtx(), "uid-1", models.ProviderXero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(states.states) != 1 {
		t.Fatalf("expected one persisted state, got %d", len(states.states))
	}
	for state, st := range states.states {
		if !strings.Contains(url, state) {
			t.Fatalf("authorization URL %q does not embed state %q", url, state)
		}
		if st.UserID != "uid-1" || st.Provider != models.ProviderXero {
			t.Fatalf("state persisted with wrong identity: %+v", st)
		}
		if !st.ExpiresAt.Equal(now.Add(models.StateTTL)) {
			t.Fatalf("state TTL wrong: %v", st.ExpiresAt)
		}
	}
}

func TestHandleCallbackUpsertsConnectionPerTenant(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	states := newFakeStateStore()
	states.states["state-1"] = &models.OAuthState{
		State:     "state-1",
		UserID:    "uid-1",
		Provider:  models.ProviderXero,
		ExpiresAt: now.Add(5 * time.Minute),
	}
	conns := newFakeConnStore()
	adapter := &fakeAdapter{
		provider: models.ProviderXero,
		exchangeTok: &oauth2.Token{
			AccessToken:  "at-1",
			RefreshToken: "rt-1",
			Expiry:       now.Add(30 * time.Minute),
		},
		tenants: []dto.ProviderTenant{
			{ID: "org-a", Name: "Org A"},
			{ID: "org-b", Name: "Org B"},
		},
	}

	svc := NewOAuthService(states, conns, fakeRegistry{models.ProviderXero: adapter})
	svc.clockNow = func() time.Time { return now }

	created, err := svc.HandleCallback(testCtx(), models.ProviderXero, "code-1", "state-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected one connection per tenant, got %d", len(created))
	}
	for _, c := range created {
		if c.ID != models.ConnectionID(models.ProviderXero, c.TenantID) {
			t.Fatalf("connection ID not derived from tenant: %q", c.ID)
		}
		if c.UserID != "uid-1" || !c.Active {
			t.Fatalf("connection has wrong identity: %+v", c)
		}
		if c.Token == nil || c.Token.RefreshToken != "rt-1" {
			t.Fatal("token record missing from created connection")
		}
	}
	if len(conns.conns) != 2 {
		t.Fatalf("expected two stored connections, got %d", len(conns.conns))
	}
}

func TestHandleCallbackReplayRejected(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	states := newFakeStateStore()
	states.states["state-1"] = &models.OAuthState{
		State:     "state-1",
		UserID:    "uid-1",
		Provider:  models.ProviderXero,
		ExpiresAt: now.Add(5 * time.Minute),
	}
	adapter := &fakeAdapter{
		provider:    models.ProviderXero,
		exchangeTok: &oauth2.Token{AccessToken: "at-1", Expiry: now.Add(time.Hour)},
		tenants:     []dto.ProviderTenant{{ID: "org-a", Name: "Org A"}},
	}

	svc := NewOAuthService(states, newFakeConnStore(), fakeRegistry{models.ProviderXero: adapter})
	svc.clockNow = func() time.Time { return now }

	if _, err := svc.HandleCallback(testCtx(), models.ProviderXero, "code-1", "state-1", ""); err != nil {
		t.Fatalf("first callback failed: %v", err)
	}

	_, err := svc.HandleCallback(testCtx(), models.ProviderXero, "code-1", "state-1", "")
	if _, ok := err.(*errs.InvalidStateError); !ok {
		t.Fatalf("replayed callback should fail with InvalidStateError, got %v", err)
	}
}

func TestHandleCallbackExpiredState(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	states := newFakeStateStore()
	states.states["state-1"] = &models.OAuthState{
		State:     "state-1",
		UserID:    "uid-1",
		Provider:  models.ProviderXero,
		ExpiresAt: now.Add(-time.Second),
	}
	adapter := &fakeAdapter{provider: models.ProviderXero}

	svc := NewOAuthService(states, newFakeConnStore(), fakeRegistry{models.ProviderXero: adapter})
	svc.clockNow = func() time.Time { return now }

	_, err := svc.HandleCallback(testCtx(), models.ProviderXero, "code-1", "state-1", "")
	if _, ok := err.(*errs.InvalidStateError); !ok {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
	if len(states.states) != 0 {
		t.Fatal("expired state should still be consumed")
	}
}

func TestHandleCallbackProviderMismatch(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	states := newFakeStateStore()
	states.states["state-1"] = &models.OAuthState{
		State:     "state-1",
		UserID:    "uid-1",
		Provider:  models.ProviderXero,
		ExpiresAt: now.Add(5 * time.Minute),
	}
	adapter := &fakeAdapter{provider: models.ProviderGoogle}

	svc := NewOAuthService(states, newFakeConnStore(), fakeRegistry{models.ProviderGoogle: adapter})
	svc.clockNow = func() time.Time { return now }

	_, err := svc.HandleCallback(testCtx(), models.ProviderGoogle, "code-1", "state-1", "")
	if _, ok := err.(*errs.InvalidStateError); !ok {
		t.Fatalf("expected InvalidStateError on provider mismatch, got %v", err)
	}
}

func TestHandleCallbackMissingCode(t *testing.T) {
	adapter := &fakeAdapter{provider: models.ProviderXero}
	svc := NewOAuthService(newFakeStateStore(), newFakeConnStore(), fakeRegistry{models.ProviderXero: adapter})

	_, err := svc.HandleCallback(testCtx(), models.ProviderXero, "", "state-1", "")
	if _, ok := err.(*errs.InvalidStateError); !ok {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
}

func TestDisconnectDeactivates(t *testing.T) {
	conns := newFakeConnStore(xeroConn(&models.TokenRecord{AccessToken: "at"}))
	svc := NewOAuthService(newFakeStateStore(), conns, fakeRegistry{})

	if err := svc.Disconnect(testCtx(), "uid-1", models.ProviderXero, "tenant-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conns.conns[models.ConnectionID(models.ProviderXero, "tenant-1")].Active {
		t.Fatal("connection should be inactive after disconnect")
	}

	if err := svc.Disconnect(testCtx(), "uid-1", models.ProviderXero, ""); err == nil {
		t.Fatal("empty tenantId must be rejected")
	}
}
