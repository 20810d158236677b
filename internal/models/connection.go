package models

import (
	"fmt"
	"time"

	"github.com/statementdesk/ledgerlink/internal/errs"
)

type Provider string

const (
	ProviderGoogle     Provider = "google"
	ProviderXero       Provider = "xero"
	ProviderQuickBooks Provider = "quickbooks"
)

func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderGoogle, ProviderXero, ProviderQuickBooks:
		return Provider(s), nil
	}
	return "", errs.NewValidationError(fmt.Sprintf("unknown provider: %s", s))
}

// Connection links a local user to one external account or tenant.
// The document ID is derived from (provider, tenantId), which makes the
// upsert on callback enforce at most one connection per tenant.
type Connection struct {
	ID         string       `firestore:"id" json:"id"`
	UserID     string       `firestore:"userId" json:"userId"`
	Provider   Provider     `firestore:"provider" json:"provider"`
	TenantID   string       `firestore:"tenantId" json:"tenantId"`
	TenantName string       `firestore:"tenantName" json:"tenantName"`
	Scopes     []string     `firestore:"scopes" json:"scopes"`
	Active     bool         `firestore:"active" json:"active"`
	Token      *TokenRecord `firestore:"token" json:"-"` // secrets, never serialized out
	CreatedAt  time.Time    `firestore:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time    `firestore:"updatedAt" json:"updatedAt"`
}

// ConnectionID is the deterministic document ID for a (provider, tenant) pair.
func ConnectionID(provider Provider, tenantID string) string {
	return fmt.Sprintf("%s_%s", provider, tenantID)
}
