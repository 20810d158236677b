package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/statementdesk/ledgerlink/internal/dto"
	"github.com/statementdesk/ledgerlink/internal/errs"
	"github.com/statementdesk/ledgerlink/internal/models"
)

const (
	googleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	spreadsheetTitle  = "LedgerLink Transactions"
	transactionsSheet = "Transactions"
)

// googleAdapter exports transactions as rows of a per-account spreadsheet.
// Google is a single-account provider: the "tenant" is the Google account.
type googleAdapter struct {
	conf *oauth2.Config

	mu       sync.Mutex
	sheetIDs map[string]string // tenantID → spreadsheetId
}

func NewGoogle(clientID, clientSecret, redirectURI string) *googleAdapter {
	return &googleAdapter{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Endpoint:     google.Endpoint,
			Scopes: []string{
				sheets.SpreadsheetsScope,
				drive.DriveFileScope,
				"https://www.googleapis.com/auth/userinfo.email",
			},
		},
		sheetIDs: make(map[string]string),
	}
}

func (a *googleAdapter) Provider() models.Provider { return models.ProviderGoogle }
func (a *googleAdapter) Scopes() []string          { return a.conf.Scopes }
func (a *googleAdapter) SupportsAccounts() bool    { return false }

// AuthCodeURL forces consent so Google re-issues a refresh token on every
// connect, not just the first one.
func (a *googleAdapter) AuthCodeURL(state string) string {
	return a.conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

func (a *googleAdapter) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := a.conf.Exchange(ctx, code)
	if err != nil {
		return nil, classifyRefreshErr(a.Provider(), err)
	}
	return tok, nil
}

func (a *googleAdapter) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := a.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classifyRefreshErr(a.Provider(), err)
	}
	return tok, nil
}

func (a *googleAdapter) FetchTenants(ctx context.Context, token *oauth2.Token, _ string) ([]dto.ProviderTenant, error) {
	resp, err := a.conf.Client(ctx, token).Get(googleUserinfoURL)
	if err != nil {
		return nil, errs.NewNetworkError(fmt.Sprintf("google userinfo unreachable: %v", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errs.NewAuthExpiredError("google rejected the userinfo request")
	}

	var info struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, errs.NewNetworkError("google userinfo response unparseable")
	}
	return []dto.ProviderTenant{{ID: info.ID, Name: info.Email}}, nil
}

func (a *googleAdapter) FetchAccounts(ctx context.Context, accessToken, tenantID string) ([]dto.RemoteAccount, error) {
	return nil, errs.NewValidationError("google sheets has no chart of accounts")
}

func (a *googleAdapter) FetchContacts(ctx context.Context, accessToken, tenantID string) ([]dto.RemoteContact, error) {
	return nil, errs.NewValidationError("google sheets has no contacts")
}

func (a *googleAdapter) CreateTransaction(ctx context.Context, accessToken, tenantID string, tx dto.RemoteTransaction) error {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})

	sheetsSvc, err := sheets.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return errs.NewNetworkError(fmt.Sprintf("sheets client init: %v", err))
	}

	sheetID, err := a.ensureSpreadsheet(ctx, src, sheetsSvc, tenantID)
	if err != nil {
		return err
	}

	row := []interface{}{tx.Date, tx.Description, tx.Merchant, tx.Amount, tx.Currency, tx.AccountName}
	_, err = sheetsSvc.Spreadsheets.Values.
		Append(sheetID, transactionsSheet+"!A:F", &sheets.ValueRange{Values: [][]interface{}{row}}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return classifyGoogleErr(err)
	}
	return nil
}

// ensureSpreadsheet finds the per-account export spreadsheet via Drive or
// creates it with a header row, caching the id per tenant.
func (a *googleAdapter) ensureSpreadsheet(ctx context.Context, src oauth2.TokenSource, sheetsSvc *sheets.Service, tenantID string) (string, error) {
	a.mu.Lock()
	if id, ok := a.sheetIDs[tenantID]; ok {
		a.mu.Unlock()
		return id, nil
	}
	a.mu.Unlock()

	driveSvc, err := drive.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return "", errs.NewNetworkError(fmt.Sprintf("drive client init: %v", err))
	}

	query := fmt.Sprintf("name = '%s' and mimeType = 'application/vnd.google-apps.spreadsheet' and trashed = false", spreadsheetTitle)
	list, err := driveSvc.Files.List().Q(query).Fields("files(id)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", classifyGoogleErr(err)
	}

	var id string
	if len(list.Files) > 0 {
		id = list.Files[0].Id
	} else {
		created, err := sheetsSvc.Spreadsheets.Create(&sheets.Spreadsheet{
			Properties: &sheets.SpreadsheetProperties{Title: spreadsheetTitle},
			Sheets: []*sheets.Sheet{
				{Properties: &sheets.SheetProperties{Title: transactionsSheet}},
			},
		}).Context(ctx).Do()
		if err != nil {
			return "", classifyGoogleErr(err)
		}
		id = created.SpreadsheetId

		header := []interface{}{"Date", "Description", "Merchant", "Amount", "Currency", "Category"}
		_, err = sheetsSvc.Spreadsheets.Values.
			Append(id, transactionsSheet+"!A1", &sheets.ValueRange{Values: [][]interface{}{header}}).
			ValueInputOption("RAW").
			Context(ctx).Do()
		if err != nil {
			return "", classifyGoogleErr(err)
		}
	}

	a.mu.Lock()
	a.sheetIDs[tenantID] = id
	a.mu.Unlock()
	return id, nil
}

func classifyGoogleErr(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized:
			return errs.NewAuthExpiredError("google rejected the access token")
		case apiErr.Code == http.StatusTooManyRequests,
			apiErr.Code == http.StatusForbidden && strings.Contains(apiErr.Message, "ate limit"):
			return errs.NewRateLimitedError("google rate limit hit")
		case apiErr.Code >= 400 && apiErr.Code < 500:
			return errs.NewRemoteRejectedError(fmt.Sprintf("google rejected the request: %s", apiErr.Message))
		}
	}
	return errs.NewNetworkError(fmt.Sprintf("google API error: %v", err))
}
