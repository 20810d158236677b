package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/statementdesk/ledgerlink/internal/dto"
	"github.com/statementdesk/ledgerlink/internal/errs"
	"github.com/statementdesk/ledgerlink/internal/models"
	"github.com/statementdesk/ledgerlink/internal/providers"
	"github.com/statementdesk/ledgerlink/pkg/logger"
)

// refreshMargin is how long before expiry a token is treated as stale.
const refreshMargin = 5 * time.Minute

// --- Dependencies (minimal interfaces scoped to this service) ---

type connectionTKStore interface {
	Get(ctx context.Context, uid, connID string) (*models.Connection, error)
	UpdateToken(ctx context.Context, uid, connID string, token *models.TokenRecord) error
	MarkUnrecoverable(ctx context.Context, uid, connID string) error
}

type adapterTKResolver interface {
	Get(provider models.Provider) (providers.AuthAdapter, error)
}

// tokenService is the single entry point for obtaining a currently valid
// access token. Refreshes for the same connection are serialized behind a
// per-connection mutex: Xero and QuickBooks rotate refresh tokens, so two
// concurrent refreshes would invalidate each other.
type tokenService struct {
	conns    connectionTKStore
	adapters adapterTKResolver
	clockNow func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewTokenService(conns connectionTKStore, adapters adapterTKResolver) *tokenService {
	return &tokenService{
		conns:    conns,
		adapters: adapters,
		clockNow: time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *tokenService) lockFor(uid, connID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := uid + "/" + connID
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// GetValidAccessToken returns a usable access token, refreshing first if the
// stored one is within the safety margin of expiry. A second concurrent
// caller blocks on the connection lock and then reads the refreshed record
// instead of refreshing again.
func (s *tokenService) GetValidAccessToken(ctx context.Context, uid string, provider models.Provider, tenantID string) (string, error) {
	connID := models.ConnectionID(provider, tenantID)

	l := s.lockFor(uid, connID)
	l.Lock()
	defer l.Unlock()

	conn, err := s.conns.Get(ctx, uid, connID)
	if err != nil {
		return "", err
	}
	if !conn.Active {
		return "", errs.NewNotFoundError(fmt.Sprintf("no active %s connection", provider))
	}
	token := conn.Token
	if token == nil || token.AccessToken == "" {
		return "", errs.NewAuthExpiredError(fmt.Sprintf("no credentials stored for %s", provider))
	}
	if token.Unrecoverable {
		return "", errs.NewAuthRevokedError(fmt.Sprintf("%s access was revoked, reconnect required", provider))
	}

	now := s.clockNow()
	if token.FreshAt(now, refreshMargin) {
		return token.AccessToken, nil
	}

	if !token.HasRefreshToken() {
		if now.After(token.ExpiresAt) {
			// Terminal: nothing to refresh with. No network call is made.
			return "", errs.NewNoRefreshTokenError(string(provider))
		}
		// Inside the margin but not yet expired; usable one more time.
		return token.AccessToken, nil
	}

	refreshed, err := s.refreshLocked(ctx, uid, conn)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// ForceRefresh refreshes regardless of freshness and returns the new expiry.
func (s *tokenService) ForceRefresh(ctx context.Context, uid string, provider models.Provider, tenantID string) (time.Time, error) {
	connID := models.ConnectionID(provider, tenantID)

	l := s.lockFor(uid, connID)
	l.Lock()
	defer l.Unlock()

	conn, err := s.conns.Get(ctx, uid, connID)
	if err != nil {
		return time.Time{}, err
	}
	if conn.Token == nil || !conn.Token.HasRefreshToken() {
		return time.Time{}, errs.NewNoRefreshTokenError(string(provider))
	}
	if conn.Token.Unrecoverable {
		return time.Time{}, errs.NewAuthRevokedError(fmt.Sprintf("%s access was revoked, reconnect required", provider))
	}

	refreshed, err := s.refreshLocked(ctx, uid, conn)
	if err != nil {
		return time.Time{}, err
	}
	return refreshed.ExpiresAt, nil
}

// refreshLocked performs the provider refresh and persists the result.
// Callers hold the connection lock.
func (s *tokenService) refreshLocked(ctx context.Context, uid string, conn *models.Connection) (*models.TokenRecord, error) {
	adapter, err := s.adapters.Get(conn.Provider)
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)

	tok, err := adapter.Refresh(ctx, conn.Token.RefreshToken)
	if err != nil {
		if _, revoked := err.(*errs.AuthRevokedError); revoked {
			// Grant is gone; every future refresh would fail the same way.
			if markErr := s.conns.MarkUnrecoverable(ctx, uid, conn.ID); markErr != nil {
				log.Error("failed to mark token unrecoverable", "connection_id", conn.ID, "error", markErr)
			}
			log.Warn("token refresh rejected by provider", "provider", conn.Provider, "connection_id", conn.ID)
		}
		return nil, err
	}

	record := &models.TokenRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		UpdatedAt:    s.clockNow(),
	}
	// Providers that don't rotate the refresh token omit it; keep the old one.
	if record.RefreshToken == "" {
		record.RefreshToken = conn.Token.RefreshToken
	}

	if err := s.conns.UpdateToken(ctx, uid, conn.ID, record); err != nil {
		return nil, err
	}

	log.Info("token refreshed", "provider", conn.Provider, "connection_id", conn.ID)
	return record, nil
}

// CheckHealth classifies the stored credentials without calling the
// provider. Read-only; never triggers a refresh.
func (s *tokenService) CheckHealth(ctx context.Context, uid string, provider models.Provider, tenantID string) (dto.TokenHealth, error) {
	conn, err := s.conns.Get(ctx, uid, models.ConnectionID(provider, tenantID))
	if err != nil {
		if _, missing := err.(*errs.NotFoundError); missing {
			return dto.TokenHealth{
				Status:          dto.TokenMissing,
				Recommendations: []string{fmt.Sprintf("Connect your %s account to enable syncing.", provider)},
			}, nil
		}
		return dto.TokenHealth{}, err
	}

	token := conn.Token
	if !conn.Active || token == nil || token.AccessToken == "" {
		return dto.TokenHealth{
			Status:          dto.TokenMissing,
			Recommendations: []string{fmt.Sprintf("Connect your %s account to enable syncing.", provider)},
		}, nil
	}

	now := s.clockNow()
	minutes := int(token.ExpiresAt.Sub(now).Minutes())
	health := dto.TokenHealth{
		MinutesUntilExpiry: minutes,
		HasRefreshToken:    token.HasRefreshToken(),
	}

	switch {
	case token.Unrecoverable:
		health.Status = dto.TokenExpired
		health.Recommendations = []string{fmt.Sprintf("%s revoked access. Reconnect the account.", provider)}
	case now.After(token.ExpiresAt):
		health.Status = dto.TokenExpired
		if token.HasRefreshToken() {
			health.Recommendations = []string{"Token expired; it will be refreshed automatically on next use."}
		} else {
			health.Recommendations = []string{"Token expired and no refresh token is stored. Reconnect the account."}
		}
	case !token.FreshAt(now, refreshMargin):
		health.Status = dto.TokenExpiringSoon
		health.Recommendations = []string{fmt.Sprintf("Token expires in %d minutes; a refresh will run automatically.", minutes)}
	default:
		health.Status = dto.TokenHealthy
	}

	return health, nil
}
