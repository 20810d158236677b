package dto

import "github.com/statementdesk/ledgerlink/internal/models"

type BulkImportSettings struct {
	Provider       string                `json:"provider"`
	TenantID       string                `json:"tenantId"`
	UnmappedPolicy models.UnmappedPolicy `json:"unmappedPolicy,omitempty"`
}

type BulkImportRequest struct {
	FileID   string             `json:"fileId"`
	Settings BulkImportSettings `json:"settings"`
}
