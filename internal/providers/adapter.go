package providers

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/oauth2"

	"github.com/statementdesk/ledgerlink/internal/dto"
	"github.com/statementdesk/ledgerlink/internal/errs"
	"github.com/statementdesk/ledgerlink/internal/models"
)

// AuthAdapter hides one provider's OAuth2 dialect and export API behind a
// uniform contract. Orchestration code depends only on this interface.
type AuthAdapter interface {
	Provider() models.Provider
	Scopes() []string

	// AuthCodeURL embeds the CSRF state into the provider authorization URL.
	AuthCodeURL(state string) string

	// Exchange trades the callback code for tokens.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// Refresh trades a refresh token for a fresh access token. Providers
	// that rotate refresh tokens return the new one on the token.
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	// FetchTenants discovers the orgs/companies the grant covers.
	// tenantHint carries callback parameters some providers require
	// (QuickBooks realmId); others ignore it.
	FetchTenants(ctx context.Context, token *oauth2.Token, tenantHint string) ([]dto.ProviderTenant, error)

	// SupportsAccounts reports whether the provider has a chart of accounts
	// to map against. When false, mapping validation is skipped.
	SupportsAccounts() bool
	FetchAccounts(ctx context.Context, accessToken, tenantID string) ([]dto.RemoteAccount, error)

	// FetchContacts lists the contact/vendor entities merchant mappings
	// resolve to. Unsupported for providers without accounts.
	FetchContacts(ctx context.Context, accessToken, tenantID string) ([]dto.RemoteContact, error)

	// CreateTransaction writes one transaction to the provider.
	CreateTransaction(ctx context.Context, accessToken, tenantID string, tx dto.RemoteTransaction) error
}

// Registry resolves a provider name to its adapter.
type Registry map[models.Provider]AuthAdapter

func NewRegistry(adapters ...AuthAdapter) Registry {
	r := make(Registry, len(adapters))
	for _, a := range adapters {
		r[a.Provider()] = a
	}
	return r
}

func (r Registry) Get(provider models.Provider) (AuthAdapter, error) {
	a, ok := r[provider]
	if !ok {
		return nil, errs.NewValidationError(fmt.Sprintf("provider %s is not configured", provider))
	}
	return a, nil
}

// classifyRefreshErr maps an x/oauth2 refresh failure onto the error
// taxonomy. invalid_grant means the provider revoked or already consumed
// the refresh token; that state is unrecoverable.
func classifyRefreshErr(provider models.Provider, err error) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		if retrieve.ErrorCode == "invalid_grant" {
			return errs.NewAuthRevokedError(fmt.Sprintf("%s rejected the refresh token: %s", provider, retrieve.ErrorDescription))
		}
		if retrieve.Response != nil && retrieve.Response.StatusCode == 429 {
			return errs.NewRateLimitedError(fmt.Sprintf("%s throttled the token endpoint", provider))
		}
		return errs.NewAuthExpiredError(fmt.Sprintf("%s token refresh failed: %s", provider, retrieve.ErrorCode))
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errs.NewNetworkError(fmt.Sprintf("%s token endpoint unreachable: %v", provider, err))
	}
	return errs.NewNetworkError(fmt.Sprintf("%s token refresh failed: %v", provider, err))
}
