package models

import (
	"strings"
	"time"
)

type MappingType string

const (
	MappingCategory MappingType = "category"
	MappingMerchant MappingType = "merchant"
)

type MappingSource string

const (
	MappingManual    MappingSource = "manual"
	MappingSuggested MappingSource = "suggested"
	MappingValidated MappingSource = "validated"
)

// Mapping resolves one local free-text key (category or merchant name) to a
// remote chart-of-accounts entity on a specific connection.
type Mapping struct {
	LocalKey   string        `firestore:"localKey" json:"localKey"`
	RemoteID   string        `firestore:"remoteId" json:"remoteId"`
	RemoteName string        `firestore:"remoteName" json:"remoteName"`
	Confidence float64       `firestore:"confidence" json:"confidence"`
	Source     MappingSource `firestore:"source" json:"source"`
	Active     bool          `firestore:"active" json:"active"`
	CreatedAt  time.Time     `firestore:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time     `firestore:"updatedAt" json:"updatedAt"`
}

// NormalizeKey canonicalizes a local key so "Office Supplies" and
// "office  supplies" land on the same mapping document.
func NormalizeKey(key string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(key))), " ")
}
