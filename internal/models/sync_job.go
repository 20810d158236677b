package models

import "time"

type SyncJobStatus string

const (
	SyncPending   SyncJobStatus = "pending"
	SyncRunning   SyncJobStatus = "running"
	SyncCompleted SyncJobStatus = "completed"
	SyncFailed    SyncJobStatus = "failed"
	SyncCancelled SyncJobStatus = "cancelled"
)

func (s SyncJobStatus) Terminal() bool {
	switch s {
	case SyncCompleted, SyncFailed, SyncCancelled:
		return true
	}
	return false
}

// CanTransitionTo enforces the job state machine:
// pending → running → {completed, failed, cancelled}. A pending job may
// also go straight to failed (queue rejection) or cancelled; completed
// always requires a run.
func (s SyncJobStatus) CanTransitionTo(next SyncJobStatus) bool {
	switch s {
	case SyncPending:
		return next == SyncRunning || next == SyncCancelled || next == SyncFailed
	case SyncRunning:
		return next.Terminal()
	}
	return false
}

// UnmappedPolicy controls what happens to transactions whose category has
// no active mapping: fail that item, or export it into a fallback bucket.
type UnmappedPolicy string

const (
	UnmappedFailItems UnmappedPolicy = "fail_items"
	UnmappedFallback  UnmappedPolicy = "fallback"
)

// SyncError records one failed transaction inside a job, in input order.
type SyncError struct {
	TransactionRef string `firestore:"transactionRef" json:"transactionRef"`
	Code           string `firestore:"code" json:"code"`
	Reason         string `firestore:"reason" json:"reason"`
}

// SyncJob is one bulk-export run. successfulImports + failedImports never
// exceeds totalTransactions, and equals it once the status is terminal
// (cancelled jobs excepted: unprocessed items are simply not counted).
type SyncJob struct {
	ID                string         `firestore:"id" json:"id"`
	UserID            string         `firestore:"userId" json:"userId"`
	ConnectionID      string         `firestore:"connectionId" json:"connectionId"`
	FileID            string         `firestore:"fileId" json:"fileId"`
	Status            SyncJobStatus  `firestore:"status" json:"status"`
	UnmappedPolicy    UnmappedPolicy `firestore:"unmappedPolicy" json:"unmappedPolicy"`
	TotalTransactions int            `firestore:"totalTransactions" json:"totalTransactions"`
	SuccessfulImports int            `firestore:"successfulImports" json:"successfulImports"`
	FailedImports     int            `firestore:"failedImports" json:"failedImports"`
	Errors            []SyncError    `firestore:"errors" json:"errors,omitempty"`
	CancelRequested   bool           `firestore:"cancelRequested" json:"-"`
	CreatedAt         time.Time      `firestore:"createdAt" json:"createdAt"`
	CompletedAt       *time.Time     `firestore:"completedAt" json:"completedAt,omitempty"`
}
