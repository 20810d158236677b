package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/statementdesk/ledgerlink/internal/errs"
	"github.com/statementdesk/ledgerlink/internal/models"
)

const apiTimeout = 15 * time.Second

// apiClient is the hand JSON client the Xero and QuickBooks adapters share;
// neither has an SDK worth carrying.
type apiClient struct {
	provider models.Provider
	http     *http.Client
}

func newAPIClient(provider models.Provider) *apiClient {
	return &apiClient{
		provider: provider,
		http:     &http.Client{Timeout: apiTimeout},
	}
}

type apiRequest struct {
	method  string
	url     string
	token   string
	headers map[string]string
	body    any
}

func (c *apiClient) doJSON(ctx context.Context, req apiRequest, out any) error {
	var body io.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			return errs.NewValidationError(fmt.Sprintf("encode %s request: %v", c.provider, err))
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return errs.NewNetworkError(err.Error())
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.token)
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return errs.NewNetworkError(fmt.Sprintf("%s API timed out", c.provider))
		}
		return errs.NewNetworkError(fmt.Sprintf("%s API unreachable: %v", c.provider, err))
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := c.classifyStatus(resp.StatusCode, raw); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errs.NewRemoteRejectedError(fmt.Sprintf("%s returned an unparseable response", c.provider))
	}
	return nil
}

// classifyStatus maps provider HTTP statuses onto the error taxonomy.
func (c *apiClient) classifyStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return errs.NewAuthExpiredError(fmt.Sprintf("%s rejected the access token", c.provider))
	case status == http.StatusForbidden:
		return errs.NewAuthRevokedError(fmt.Sprintf("%s denied access: %s", c.provider, truncate(body)))
	case status == http.StatusTooManyRequests:
		return errs.NewRateLimitedError(fmt.Sprintf("%s rate limit hit", c.provider))
	case status >= 400 && status < 500:
		return errs.NewRemoteRejectedError(fmt.Sprintf("%s rejected the request (%d): %s", c.provider, status, truncate(body)))
	default:
		// A 5xx is the provider's outage, not a problem with the request.
		return errs.NewExternalServiceError(string(c.provider), fmt.Sprintf("returned %d", status), true)
	}
}

func truncate(body []byte) string {
	const max = 300
	if len(body) > max {
		return string(body[:max]) + "…"
	}
	return string(body)
}
