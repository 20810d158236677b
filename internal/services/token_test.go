package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/statementdesk/ledgerlink/internal/dto"
	"github.com/statementdesk/ledgerlink/internal/errs"
	"github.com/statementdesk/ledgerlink/internal/models"
	"github.com/statementdesk/ledgerlink/internal/providers"
	"github.com/statementdesk/ledgerlink/pkg/logger"
)

// --- fakes ---

type fakeAdapter struct {
	mu sync.Mutex

	provider      models.Provider
	supportsAccts bool
	authBase      string

	exchangeTok *oauth2.Token
	exchangeErr error

	refreshTok   *oauth2.Token
	refreshErr   error
	refreshCalls int

	tenants    []dto.ProviderTenant
	tenantsErr error

	accounts      []dto.RemoteAccount
	accountsErr   error
	accountsCalls int

	contacts      []dto.RemoteContact
	contactsErr   error
	contactsCalls int

	createErrs  []error // consumed one per CreateTransaction call
	createCalls int
	created     []dto.RemoteTransaction
	onCreate    func() // runs after each CreateTransaction, outside the lock
}

func (f *fakeAdapter) Provider() models.Provider { return f.provider }
func (f *fakeAdapter) Scopes() []string          { return []string{"scope.read", "scope.write"} }

func (f *fakeAdapter) AuthCodeURL(state string) string {
	return f.authBase + "?state=" + state
}

func (f *fakeAdapter) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return f.exchangeTok, f.exchangeErr
}

func (f *fakeAdapter) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.mu.Unlock()
	return f.refreshTok, f.refreshErr
}

func (f *fakeAdapter) FetchTenants(ctx context.Context, token *oauth2.Token, tenantHint string) ([]dto.ProviderTenant, error) {
	return f.tenants, f.tenantsErr
}

func (f *fakeAdapter) SupportsAccounts() bool { return f.supportsAccts }

func (f *fakeAdapter) FetchAccounts(ctx context.Context, accessToken, tenantID string) ([]dto.RemoteAccount, error) {
	f.mu.Lock()
	f.accountsCalls++
	f.mu.Unlock()
	return f.accounts, f.accountsErr
}

func (f *fakeAdapter) FetchContacts(ctx context.Context, accessToken, tenantID string) ([]dto.RemoteContact, error) {
	f.mu.Lock()
	f.contactsCalls++
	f.mu.Unlock()
	return f.contacts, f.contactsErr
}

func (f *fakeAdapter) CreateTransaction(ctx context.Context, accessToken, tenantID string, tx dto.RemoteTransaction) error {
	f.mu.Lock()
	call := f.createCalls
	f.createCalls++
	var err error
	if call < len(f.createErrs) && f.createErrs[call] != nil {
		err = f.createErrs[call]
	} else {
		f.created = append(f.created, tx)
	}
	f.mu.Unlock()
	if f.onCreate != nil {
		f.onCreate()
	}
	return err
}

type fakeConnStore struct {
	mu       sync.Mutex
	conns    map[string]*models.Connection
	updated  []*models.TokenRecord
	marked   []string
	tokenErr error
}

func newFakeConnStore(conns ...*models.Connection) *fakeConnStore {
	s := &fakeConnStore{conns: make(map[string]*models.Connection)}
	for _, c := range conns {
		s.conns[c.ID] = c
	}
	return s
}

func (f *fakeConnStore) Get(ctx context.Context, uid, connID string) (*models.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conns[connID]
	if !ok {
		return nil, errs.NewNotFoundError("connection not found")
	}
	return c, nil
}

func (f *fakeConnStore) Upsert(ctx context.Context, uid string, conn *models.Connection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns[conn.ID] = conn
	return nil
}

func (f *fakeConnStore) ListActive(ctx context.Context, uid string, provider models.Provider) ([]*models.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Connection
	for _, c := range f.conns {
		if c.Active && (provider == "" || c.Provider == provider) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeConnStore) Deactivate(ctx context.Context, uid, connID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conns[connID]
	if !ok {
		return errs.NewNotFoundError("connection not found")
	}
	c.Active = false
	return nil
}

func (f *fakeConnStore) UpdateToken(ctx context.Context, uid, connID string, token *models.TokenRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tokenErr != nil {
		return f.tokenErr
	}
	f.updated = append(f.updated, token)
	if c, ok := f.conns[connID]; ok {
		c.Token = token
	}
	return nil
}

func (f *fakeConnStore) MarkUnrecoverable(ctx context.Context, uid, connID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, connID)
	if c, ok := f.conns[connID]; ok && c.Token != nil {
		c.Token.Unrecoverable = true
	}
	return nil
}

type fakeRegistry map[models.Provider]*fakeAdapter

func (r fakeRegistry) Get(provider models.Provider) (providers.AuthAdapter, error) {
	a, ok := r[provider]
	if !ok {
		return nil, errs.NewValidationError(fmt.Sprintf("provider %s is not configured", provider))
	}
	return a, nil
}

func testCtx() context.Context {
	log := slog.New(logger.NewTestHandler(slog.LevelInfo))
	return logger.ToContext(context.Background(), log)
}

func xeroConn(token *models.TokenRecord) *models.Connection {
	return &models.Connection{
		ID:       models.ConnectionID(models.ProviderXero, "tenant-1"),
		UserID:   "uid-1",
		Provider: models.ProviderXero,
		TenantID: "tenant-1",
		Active:   true,
		Token:    token,
	}
}

// --- tests ---

func TestGetValidAccessTokenFreshSkipsRefresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conns := newFakeConnStore(xeroConn(&models.TokenRecord{
		AccessToken:  "at-fresh",
		RefreshToken: "rt-1",
		ExpiresAt:    now.Add(time.Hour),
	}))
	adapter := &fakeAdapter{provider: models.ProviderXero}

	svc := NewTokenService(conns, fakeRegistry{models.ProviderXero: adapter})
	svc.clockNow = func() time.Time { return now }

	got, err := svc.GetValidAccessToken(testCtx(), "uid-1", models.ProviderXero, "tenant-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "at-fresh" {
		t.Fatalf("expected stored token, got %q", got)
	}
	if adapter.refreshCalls != 0 {
		t.Fatalf("refresh should not run for a fresh token, ran %d times", adapter.refreshCalls)
	}
}

func TestGetValidAccessTokenRefreshesInsideMargin(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conns := newFakeConnStore(xeroConn(&models.TokenRecord{
		AccessToken:  "at-stale",
		RefreshToken: "rt-old",
		ExpiresAt:    now.Add(2 * time.Minute), // inside the 5 minute margin
	}))
	adapter := &fakeAdapter{
		provider: models.ProviderXero,
		refreshTok: &oauth2.Token{
			AccessToken:  "at-new",
			RefreshToken: "rt-rotated",
			Expiry:       now.Add(30 * time.Minute),
		},
	}

	svc := NewTokenService(conns, fakeRegistry{models.ProviderXero: adapter})
	svc.clockNow = func() time.Time { return now }

	got, err := svc.GetValidAccessToken(testCtx(), "uid-1", models.ProviderXero, "tenant-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "at-new" {
		t.Fatalf("expected refreshed token, got %q", got)
	}
	if len(conns.updated) != 1 {
		t.Fatalf("expected one persisted token record, got %d", len(conns.updated))
	}
	if conns.updated[0].RefreshToken != "rt-rotated" {
		t.Fatalf("rotated refresh token not persisted, got %q", conns.updated[0].RefreshToken)
	}
}

func TestGetValidAccessTokenKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conns := newFakeConnStore(xeroConn(&models.TokenRecord{
		AccessToken:  "at-stale",
		RefreshToken: "rt-keep",
		ExpiresAt:    now.Add(-time.Minute),
	}))
	adapter := &fakeAdapter{
		provider: models.ProviderXero,
		// Google-style response: no refresh token on refresh.
		refreshTok: &oauth2.Token{AccessToken: "at-new", Expiry: now.Add(time.Hour)},
	}

	svc := NewTokenService(conns, fakeRegistry{models.ProviderXero: adapter})
	svc.clockNow = func() time.Time { return now }

	if _, err := svc.GetValidAccessToken(testCtx(), "uid-1", models.ProviderXero, "tenant-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conns.updated[0].RefreshToken != "rt-keep" {
		t.Fatalf("old refresh token should be kept, got %q", conns.updated[0].RefreshToken)
	}
}

func TestGetValidAccessTokenExpiredWithoutRefreshToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conns := newFakeConnStore(xeroConn(&models.TokenRecord{
		AccessToken: "at-dead",
		ExpiresAt:   now.Add(-time.Minute),
	}))
	adapter := &fakeAdapter{provider: models.ProviderXero}

	svc := NewTokenService(conns, fakeRegistry{models.ProviderXero: adapter})
	svc.clockNow = func() time.Time { return now }

	_, err := svc.GetValidAccessToken(testCtx(), "uid-1", models.ProviderXero, "tenant-1")
	if _, ok := err.(*errs.NoRefreshTokenError); !ok {
		t.Fatalf("expected NoRefreshTokenError, got %v", err)
	}
	if adapter.refreshCalls != 0 {
		t.Fatal("no network call should be made without a refresh token")
	}
}

func TestGetValidAccessTokenUnrecoverable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conns := newFakeConnStore(xeroConn(&models.TokenRecord{
		AccessToken:   "at",
		RefreshToken:  "rt",
		ExpiresAt:     now.Add(time.Hour),
		Unrecoverable: true,
	}))
	adapter := &fakeAdapter{provider: models.ProviderXero}

	svc := NewTokenService(conns, fakeRegistry{models.ProviderXero: adapter})
	svc.clockNow = func() time.Time { return now }

	_, err := svc.GetValidAccessToken(testCtx(), "uid-1", models.ProviderXero, "tenant-1")
	if _, ok := err.(*errs.AuthRevokedError); !ok {
		t.Fatalf("expected AuthRevokedError, got %v", err)
	}
}

func TestConcurrentRefreshRunsOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conns := newFakeConnStore(xeroConn(&models.TokenRecord{
		AccessToken:  "at-stale",
		RefreshToken: "rt-old",
		ExpiresAt:    now.Add(-time.Minute),
	}))
	adapter := &fakeAdapter{
		provider: models.ProviderXero,
		refreshTok: &oauth2.Token{
			AccessToken:  "at-new",
			RefreshToken: "rt-rotated",
			Expiry:       now.Add(time.Hour),
		},
	}

	svc := NewTokenService(conns, fakeRegistry{models.ProviderXero: adapter})
	svc.clockNow = func() time.Time { return now }

	ctx := testCtx()
	var wg sync.WaitGroup
	results := make([]string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := svc.GetValidAccessToken(ctx, "uid-1", models.ProviderXero, "tenant-1")
			if err != nil {
				t.Errorf("caller %d: unexpected error: %v", i, err)
				return
			}
			results[i] = tok
		}(i)
	}
	wg.Wait()

	if adapter.refreshCalls != 1 {
		t.Fatalf("expected exactly one refresh, got %d", adapter.refreshCalls)
	}
	for i, tok := range results {
		if tok != "at-new" {
			t.Fatalf("caller %d got %q, want the refreshed token", i, tok)
		}
	}
}

func TestForceRefreshRevokedMarksUnrecoverable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conns := newFakeConnStore(xeroConn(&models.TokenRecord{
		AccessToken:  "at",
		RefreshToken: "rt-dead",
		ExpiresAt:    now.Add(time.Hour),
	}))
	adapter := &fakeAdapter{
		provider:   models.ProviderXero,
		refreshErr: errs.NewAuthRevokedError("xero rejected the refresh token"),
	}

	svc := NewTokenService(conns, fakeRegistry{models.ProviderXero: adapter})
	svc.clockNow = func() time.Time { return now }

	_, err := svc.ForceRefresh(testCtx(), "uid-1", models.ProviderXero, "tenant-1")
	if _, ok := err.(*errs.AuthRevokedError); !ok {
		t.Fatalf("expected AuthRevokedError, got %v", err)
	}
	if len(conns.marked) != 1 {
		t.Fatalf("connection should be marked unrecoverable, marked=%v", conns.marked)
	}
}

func TestCheckHealthClassification(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		token *models.TokenRecord
		want  dto.TokenHealthStatus
	}{
		{"healthy", &models.TokenRecord{AccessToken: "at", RefreshToken: "rt", ExpiresAt: now.Add(time.Hour)}, dto.TokenHealthy},
		{"expiring soon", &models.TokenRecord{AccessToken: "at", RefreshToken: "rt", ExpiresAt: now.Add(3 * time.Minute)}, dto.TokenExpiringSoon},
		{"expired", &models.TokenRecord{AccessToken: "at", RefreshToken: "rt", ExpiresAt: now.Add(-time.Minute)}, dto.TokenExpired},
		{"revoked", &models.TokenRecord{AccessToken: "at", RefreshToken: "rt", ExpiresAt: now.Add(time.Hour), Unrecoverable: true}, dto.TokenExpired},
		{"no credentials", nil, dto.TokenMissing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conns := newFakeConnStore(xeroConn(tc.token))
			svc := NewTokenService(conns, fakeRegistry{models.ProviderXero: &fakeAdapter{provider: models.ProviderXero}})
			svc.clockNow = func() time.Time { return now }

			health, err := svc.CheckHealth(testCtx(), "uid-1", models.ProviderXero, "tenant-1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if health.Status != tc.want {
				t.Fatalf("expected status %s, got %s", tc.want, health.Status)
			}
		})
	}
}

func TestCheckHealthMissingConnection(t *testing.T) {
	conns := newFakeConnStore()
	svc := NewTokenService(conns, fakeRegistry{})

	health, err := svc.CheckHealth(testCtx(), "uid-1", models.ProviderXero, "tenant-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if health.Status != dto.TokenMissing {
		t.Fatalf("expected missing status, got %s", health.Status)
	}
	if len(health.Recommendations) == 0 {
		t.Fatal("expected a reconnect recommendation")
	}
}
