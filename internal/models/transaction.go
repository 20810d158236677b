package models

import (
	"time"
)

// Transaction is one row extracted from an uploaded bank statement.
// Extraction itself happens upstream; this service only reads the results.
type Transaction struct {
	TransactionID string    `firestore:"transactionId" json:"transactionId"`
	FileID        string    `firestore:"fileId" json:"fileId"`
	Index         int       `firestore:"index" json:"index"` // position within the statement
	Description   string    `firestore:"description" json:"description"`
	Merchant      string    `firestore:"merchant" json:"merchant,omitempty"`
	Category      string    `firestore:"category" json:"category,omitempty"`
	Amount        float64   `firestore:"amount" json:"amount"`
	Currency      string    `firestore:"currency" json:"currency"`
	Date          string    `firestore:"date" json:"date"` // YYYY-MM-DD as extracted
	CreatedAt     time.Time `firestore:"createdAt" json:"createdAt"`
}
