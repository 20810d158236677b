package dto

// ProviderTenant is one org/company/account discovered after code exchange.
// Single-account providers (Google) report exactly one.
type ProviderTenant struct {
	ID   string
	Name string
}

// RemoteAccount is one chart-of-accounts entry on the provider side.
type RemoteAccount struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// RemoteContact is one contact/vendor entity on the provider side, the
// target of merchant mappings.
type RemoteContact struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RemoteTransaction is the provider-neutral wire shape the sync pipeline
// hands to an adapter. AccountID/AccountName and MerchantID come from the
// mapping layer; Merchant without a MerchantID is a free-text name.
type RemoteTransaction struct {
	Ref         string // local transaction id, for error correlation
	Date        string // YYYY-MM-DD
	Description string
	Merchant    string
	MerchantID  string
	Amount      float64
	Currency    string
	AccountID   string
	AccountName string
}
