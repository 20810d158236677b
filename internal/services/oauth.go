package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/statementdesk/ledgerlink/internal/errs"
	"github.com/statementdesk/ledgerlink/internal/models"
	"github.com/statementdesk/ledgerlink/internal/providers"
	"github.com/statementdesk/ledgerlink/pkg/logger"
)

// --- Dependencies (minimal interfaces scoped to this service) ---

type oauthStateOSStore interface {
	Create(ctx context.Context, state *models.OAuthState) error
	Consume(ctx context.Context, state string) (*models.OAuthState, error)
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

type connectionOSStore interface {
	Upsert(ctx context.Context, uid string, conn *models.Connection) error
	ListActive(ctx context.Context, uid string, provider models.Provider) ([]*models.Connection, error)
	Deactivate(ctx context.Context, uid, connID string) error
}

type adapterOSResolver interface {
	Get(provider models.Provider) (providers.AuthAdapter, error)
}

type oauthService struct {
	states   oauthStateOSStore
	conns    connectionOSStore
	adapters adapterOSResolver
	clockNow func() time.Time
}

func NewOAuthService(states oauthStateOSStore, conns connectionOSStore, adapters adapterOSResolver) *oauthService {
	return &oauthService{
		states:   states,
		conns:    conns,
		adapters: adapters,
		clockNow: time.Now,
	}
}

// BuildAuthorizationURL starts an auth flow: persists a single-use CSRF
// state with a fixed TTL and returns the provider authorization URL
// embedding it.
func (s *oauthService) BuildAuthorizationURL(ctx context.Context, uid string, provider models.Provider) (string, error) {
	adapter, err := s.adapters.Get(provider)
	if err != nil {
		return "", err
	}

	state, err := randomState()
	if err != nil {
		return "", err
	}

	now := s.clockNow()
	err = s.states.Create(ctx, &models.OAuthState{
		State:     state,
		UserID:    uid,
		Provider:  provider,
		CreatedAt: now,
		ExpiresAt: now.Add(models.StateTTL),
	})
	if err != nil {
		return "", err
	}

	return adapter.AuthCodeURL(state), nil
}

// HandleCallback validates and consumes the state, exchanges the code, and
// upserts one connection per discovered tenant. The state row is deleted
// before the code exchange, so a replayed callback fails even if a later
// step of the first attempt failed.
func (s *oauthService) HandleCallback(ctx context.Context, provider models.Provider, code, state, tenantHint string) ([]*models.Connection, error) {
	adapter, err := s.adapters.Get(provider)
	if err != nil {
		return nil, err
	}
	if code == "" || state == "" {
		return nil, errs.NewInvalidStateError("callback is missing code or state")
	}

	st, err := s.states.Consume(ctx, state)
	if err != nil {
		return nil, err
	}
	if st.Provider != provider {
		return nil, errs.NewInvalidStateError("state was issued for a different provider")
	}
	now := s.clockNow()
	if st.ExpiredAt(now) {
		return nil, errs.NewInvalidStateError("state expired, restart the connection flow")
	}

	tok, err := adapter.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	tenants, err := adapter.FetchTenants(ctx, tok, tenantHint)
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)

	record := &models.TokenRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		UpdatedAt:    now,
	}

	conns := make([]*models.Connection, 0, len(tenants))
	for _, t := range tenants {
		conn := &models.Connection{
			ID:         models.ConnectionID(provider, t.ID),
			UserID:     st.UserID,
			Provider:   provider,
			TenantID:   t.ID,
			TenantName: t.Name,
			Scopes:     adapter.Scopes(),
			Active:     true,
			Token:      record,
		}
		if err := s.conns.Upsert(ctx, st.UserID, conn); err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}

	log.Info("provider connected",
		"provider", provider,
		"tenant_count", len(conns),
		"has_refresh_token", record.HasRefreshToken())
	return conns, nil
}

func (s *oauthService) ListConnections(ctx context.Context, uid string, provider models.Provider) ([]*models.Connection, error) {
	return s.conns.ListActive(ctx, uid, provider)
}

// Disconnect soft-deletes the connection; the tokens stay encrypted at rest
// but will never be used again.
func (s *oauthService) Disconnect(ctx context.Context, uid string, provider models.Provider, tenantID string) error {
	if tenantID == "" {
		return errs.NewValidationError("tenantId is required")
	}
	if err := s.conns.Deactivate(ctx, uid, models.ConnectionID(provider, tenantID)); err != nil {
		return err
	}

	log := logger.FromContext(ctx)
	log.Info("provider disconnected", "provider", provider, "tenant_id", tenantID)
	return nil
}

// StartStateSweeper periodically deletes auth states that were never
// consumed. Runs until ctx is cancelled.
func (s *oauthService) StartStateSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		log := logger.FromContext(ctx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.states.PurgeExpired(ctx, s.clockNow())
				if err != nil {
					log.Warn("oauth state sweep failed", "error", err)
					continue
				}
				if n > 0 {
					log.Info("purged expired oauth states", "count", n)
				}
			}
		}
	}()
}

// randomState returns a 256-bit URL-safe random token.
func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("state generation failed: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
