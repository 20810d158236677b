package providers

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/statementdesk/ledgerlink/internal/dto"
	"github.com/statementdesk/ledgerlink/internal/errs"
	"github.com/statementdesk/ledgerlink/internal/models"
)

const (
	xeroAuthURL        = "https://login.xero.com/identity/connect/authorize"
	xeroTokenURL       = "https://identity.xero.com/connect/token"
	xeroConnectionsURL = "https://api.xero.com/connections"
	xeroAPIBase        = "https://api.xero.com/api.xro/2.0"
)

// xeroAdapter exports transactions as Xero bank transactions. Xero rotates
// refresh tokens on every refresh, which is why the token service
// serializes refreshes per connection.
type xeroAdapter struct {
	conf *oauth2.Config
	api  *apiClient
}

func NewXero(clientID, clientSecret, redirectURI string) *xeroAdapter {
	return &xeroAdapter{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   xeroAuthURL,
				TokenURL:  xeroTokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
			Scopes: []string{
				"offline_access",
				"accounting.transactions",
				"accounting.settings",
			},
		},
		api: newAPIClient(models.ProviderXero),
	}
}

func (a *xeroAdapter) Provider() models.Provider { return models.ProviderXero }
func (a *xeroAdapter) Scopes() []string          { return a.conf.Scopes }
func (a *xeroAdapter) SupportsAccounts() bool    { return true }

func (a *xeroAdapter) AuthCodeURL(state string) string {
	return a.conf.AuthCodeURL(state)
}

func (a *xeroAdapter) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := a.conf.Exchange(ctx, code)
	if err != nil {
		return nil, classifyRefreshErr(a.Provider(), err)
	}
	return tok, nil
}

func (a *xeroAdapter) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := a.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classifyRefreshErr(a.Provider(), err)
	}
	return tok, nil
}

// FetchTenants lists the Xero organisations the grant covers; one grant can
// span several.
func (a *xeroAdapter) FetchTenants(ctx context.Context, token *oauth2.Token, _ string) ([]dto.ProviderTenant, error) {
	var conns []struct {
		TenantID   string `json:"tenantId"`
		TenantName string `json:"tenantName"`
		TenantType string `json:"tenantType"`
	}
	err := a.api.doJSON(ctx, apiRequest{
		method: "GET",
		url:    xeroConnectionsURL,
		token:  token.AccessToken,
	}, &conns)
	if err != nil {
		return nil, err
	}

	tenants := make([]dto.ProviderTenant, 0, len(conns))
	for _, c := range conns {
		if c.TenantType != "" && c.TenantType != "ORGANISATION" {
			continue
		}
		tenants = append(tenants, dto.ProviderTenant{ID: c.TenantID, Name: c.TenantName})
	}
	if len(tenants) == 0 {
		return nil, errs.NewRemoteRejectedError("xero grant covers no organisation")
	}
	return tenants, nil
}

func (a *xeroAdapter) FetchAccounts(ctx context.Context, accessToken, tenantID string) ([]dto.RemoteAccount, error) {
	var resp struct {
		Accounts []struct {
			AccountID string `json:"AccountID"`
			Code      string `json:"Code"`
			Name      string `json:"Name"`
			Type      string `json:"Type"`
		} `json:"Accounts"`
	}
	err := a.api.doJSON(ctx, apiRequest{
		method:  "GET",
		url:     xeroAPIBase + "/Accounts",
		token:   accessToken,
		headers: map[string]string{"Xero-tenant-id": tenantID},
	}, &resp)
	if err != nil {
		return nil, err
	}

	accounts := make([]dto.RemoteAccount, 0, len(resp.Accounts))
	for _, acc := range resp.Accounts {
		accounts = append(accounts, dto.RemoteAccount{
			ID:   acc.Code, // line items reference accounts by code
			Name: acc.Name,
			Type: acc.Type,
		})
	}
	return accounts, nil
}

func (a *xeroAdapter) FetchContacts(ctx context.Context, accessToken, tenantID string) ([]dto.RemoteContact, error) {
	var resp struct {
		Contacts []struct {
			ContactID string `json:"ContactID"`
			Name      string `json:"Name"`
		} `json:"Contacts"`
	}
	err := a.api.doJSON(ctx, apiRequest{
		method:  "GET",
		url:     xeroAPIBase + "/Contacts",
		token:   accessToken,
		headers: map[string]string{"Xero-tenant-id": tenantID},
	}, &resp)
	if err != nil {
		return nil, err
	}

	contacts := make([]dto.RemoteContact, 0, len(resp.Contacts))
	for _, c := range resp.Contacts {
		contacts = append(contacts, dto.RemoteContact{ID: c.ContactID, Name: c.Name})
	}
	return contacts, nil
}

func (a *xeroAdapter) CreateTransaction(ctx context.Context, accessToken, tenantID string, tx dto.RemoteTransaction) error {
	// Negative statement amounts are money out.
	txType := "RECEIVE"
	amount := tx.Amount
	if amount < 0 {
		txType = "SPEND"
		amount = -amount
	}

	// A mapped merchant addresses the contact by id; an unmapped one goes
	// out by name and Xero creates it.
	contact := map[string]any{}
	switch {
	case tx.MerchantID != "":
		contact["ContactID"] = tx.MerchantID
	case tx.Merchant != "":
		contact["Name"] = tx.Merchant
	default:
		contact["Name"] = "Unknown"
	}

	body := map[string]any{
		"Type":    txType,
		"Date":    tx.Date,
		"Contact": contact,
		"LineItems": []map[string]any{{
			"Description": tx.Description,
			"Quantity":    1.0,
			"UnitAmount":  amount,
			"AccountCode": tx.AccountID,
		}},
		"BankAccount": map[string]any{"Code": tx.AccountID},
	}

	return a.api.doJSON(ctx, apiRequest{
		method:  "PUT",
		url:     xeroAPIBase + "/BankTransactions",
		token:   accessToken,
		headers: map[string]string{"Xero-tenant-id": tenantID},
		body:    map[string]any{"BankTransactions": []map[string]any{body}},
	}, nil)
}
