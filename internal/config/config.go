package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	ProjectID   string
	Region      string
	LogLevel    string
	KMSKeyName  string
	VertexModel string

	// AppBaseURL is where this API is reachable; OAuth redirect URIs are
	// derived from it. AppRedirectURL is the frontend settings page the
	// provider callback sends the browser back to.
	AppBaseURL     string
	AppRedirectURL string

	Google     OAuthClient
	Xero       OAuthClient
	QuickBooks OAuthClient

	// QuickBooksAPIBase switches between sandbox and production company APIs.
	QuickBooksAPIBase string

	SyncWorkers int
}

// OAuthClient holds one provider's app credentials. Secret values may be
// given as "sm://<secret-name>" references, resolved against Secret Manager
// during bootstrap.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
}

func New() *Config {
	return &Config{
		ProjectID:      os.Getenv("PROJECTID"),
		Region:         os.Getenv("REGION"),
		LogLevel:       os.Getenv("LOGLEVEL"),
		KMSKeyName:     os.Getenv("KMSKEYNAME"),
		VertexModel:    os.Getenv("VERTEXMODEL"),
		AppBaseURL:     strings.TrimRight(os.Getenv("APPBASEURL"), "/"),
		AppRedirectURL: os.Getenv("APPREDIRECTURL"),
		Google: OAuthClient{
			ClientID:     os.Getenv("GOOGLECLIENTID"),
			ClientSecret: os.Getenv("GOOGLECLIENTSECRET"),
		},
		Xero: OAuthClient{
			ClientID:     os.Getenv("XEROCLIENTID"),
			ClientSecret: os.Getenv("XEROCLIENTSECRET"),
		},
		QuickBooks: OAuthClient{
			ClientID:     os.Getenv("QUICKBOOKSCLIENTID"),
			ClientSecret: os.Getenv("QUICKBOOKSCLIENTSECRET"),
		},
		QuickBooksAPIBase: getQuickBooksAPIBase(os.Getenv("QUICKBOOKSENVIRONMENT")),
		SyncWorkers:       getIntEnv("SYNCWORKERS", 2),
	}
}

// RedirectURI returns the callback URI registered with the given provider.
func (c *Config) RedirectURI(provider string) string {
	return fmt.Sprintf("%s/auth/%s/callback", c.AppBaseURL, provider)
}

func getQuickBooksAPIBase(env string) string {
	switch env {
	case "sandbox":
		return "https://sandbox-quickbooks.api.intuit.com"
	default: // "production"
		return "https://quickbooks.api.intuit.com"
	}
}

func getIntEnv(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
