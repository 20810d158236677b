package providers

import (
	"context"
	"fmt"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/statementdesk/ledgerlink/internal/dto"
	"github.com/statementdesk/ledgerlink/internal/errs"
	"github.com/statementdesk/ledgerlink/internal/models"
)

const (
	quickBooksAuthURL  = "https://appcenter.intuit.com/connect/oauth2"
	quickBooksTokenURL = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"
)

// quickBooksAdapter exports transactions as QuickBooks purchases. The
// company (realm) id arrives as a callback query parameter, not from an
// API, so FetchTenants needs the tenantHint.
type quickBooksAdapter struct {
	conf    *oauth2.Config
	api     *apiClient
	apiBase string
}

func NewQuickBooks(clientID, clientSecret, redirectURI, apiBase string) *quickBooksAdapter {
	return &quickBooksAdapter{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   quickBooksAuthURL,
				TokenURL:  quickBooksTokenURL,
				AuthStyle: oauth2.AuthStyleInHeader, // Intuit wants basic auth on the token endpoint
			},
			Scopes: []string{"com.intuit.quickbooks.accounting"},
		},
		api:     newAPIClient(models.ProviderQuickBooks),
		apiBase: apiBase,
	}
}

func (a *quickBooksAdapter) Provider() models.Provider { return models.ProviderQuickBooks }
func (a *quickBooksAdapter) Scopes() []string          { return a.conf.Scopes }
func (a *quickBooksAdapter) SupportsAccounts() bool    { return true }

func (a *quickBooksAdapter) AuthCodeURL(state string) string {
	return a.conf.AuthCodeURL(state)
}

func (a *quickBooksAdapter) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := a.conf.Exchange(ctx, code)
	if err != nil {
		return nil, classifyRefreshErr(a.Provider(), err)
	}
	return tok, nil
}

func (a *quickBooksAdapter) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := a.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classifyRefreshErr(a.Provider(), err)
	}
	return tok, nil
}

// FetchTenants resolves the company name for the realm id the callback
// carried. Without a realm id the connection cannot be addressed.
func (a *quickBooksAdapter) FetchTenants(ctx context.Context, token *oauth2.Token, tenantHint string) ([]dto.ProviderTenant, error) {
	if tenantHint == "" {
		return nil, errs.NewValidationError("quickbooks callback did not include a realmId")
	}

	var resp struct {
		CompanyInfo struct {
			CompanyName string `json:"CompanyName"`
		} `json:"CompanyInfo"`
	}
	err := a.api.doJSON(ctx, apiRequest{
		method: "GET",
		url:    fmt.Sprintf("%s/v3/company/%s/companyinfo/%s?minorversion=65", a.apiBase, tenantHint, tenantHint),
		token:  token.AccessToken,
	}, &resp)
	if err != nil {
		return nil, err
	}

	name := resp.CompanyInfo.CompanyName
	if name == "" {
		name = tenantHint
	}
	return []dto.ProviderTenant{{ID: tenantHint, Name: name}}, nil
}

func (a *quickBooksAdapter) FetchAccounts(ctx context.Context, accessToken, tenantID string) ([]dto.RemoteAccount, error) {
	query := url.QueryEscape("select Id, Name, AccountType from Account where Active = true maxresults 1000")

	var resp struct {
		QueryResponse struct {
			Account []struct {
				ID          string `json:"Id"`
				Name        string `json:"Name"`
				AccountType string `json:"AccountType"`
			} `json:"Account"`
		} `json:"QueryResponse"`
	}
	err := a.api.doJSON(ctx, apiRequest{
		method: "GET",
		url:    fmt.Sprintf("%s/v3/company/%s/query?query=%s&minorversion=65", a.apiBase, tenantID, query),
		token:  accessToken,
	}, &resp)
	if err != nil {
		return nil, err
	}

	accounts := make([]dto.RemoteAccount, 0, len(resp.QueryResponse.Account))
	for _, acc := range resp.QueryResponse.Account {
		accounts = append(accounts, dto.RemoteAccount{
			ID:   acc.ID,
			Name: acc.Name,
			Type: acc.AccountType,
		})
	}
	return accounts, nil
}

func (a *quickBooksAdapter) FetchContacts(ctx context.Context, accessToken, tenantID string) ([]dto.RemoteContact, error) {
	query := url.QueryEscape("select Id, DisplayName from Vendor where Active = true maxresults 1000")

	var resp struct {
		QueryResponse struct {
			Vendor []struct {
				ID          string `json:"Id"`
				DisplayName string `json:"DisplayName"`
			} `json:"Vendor"`
		} `json:"QueryResponse"`
	}
	err := a.api.doJSON(ctx, apiRequest{
		method: "GET",
		url:    fmt.Sprintf("%s/v3/company/%s/query?query=%s&minorversion=65", a.apiBase, tenantID, query),
		token:  accessToken,
	}, &resp)
	if err != nil {
		return nil, err
	}

	contacts := make([]dto.RemoteContact, 0, len(resp.QueryResponse.Vendor))
	for _, v := range resp.QueryResponse.Vendor {
		contacts = append(contacts, dto.RemoteContact{ID: v.ID, Name: v.DisplayName})
	}
	return contacts, nil
}

func (a *quickBooksAdapter) CreateTransaction(ctx context.Context, accessToken, tenantID string, tx dto.RemoteTransaction) error {
	if tx.AccountID == "" {
		return errs.NewMappingError(fmt.Sprintf("transaction %s has no mapped account", tx.Ref))
	}

	amount := tx.Amount
	if amount < 0 {
		amount = -amount
	}
	body := map[string]any{
		"PaymentType": "Cash",
		"TxnDate":     tx.Date,
		"AccountRef":  map[string]any{"value": tx.AccountID},
		"Line": []map[string]any{{
			"Amount":      amount,
			"Description": tx.Description,
			"DetailType":  "AccountBasedExpenseLineDetail",
			"AccountBasedExpenseLineDetail": map[string]any{
				"AccountRef": map[string]any{"value": tx.AccountID},
			},
		}},
	}
	if tx.MerchantID != "" {
		body["EntityRef"] = map[string]any{"value": tx.MerchantID, "type": "Vendor"}
	}
	if tx.Currency != "" {
		body["CurrencyRef"] = map[string]any{"value": tx.Currency}
	}

	return a.api.doJSON(ctx, apiRequest{
		method: "POST",
		url:    fmt.Sprintf("%s/v3/company/%s/purchase?minorversion=65", a.apiBase, tenantID),
		token:  accessToken,
		body:   body,
	}, nil)
}
