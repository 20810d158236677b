package models

import (
	"time"
)

type SubscriptionTier string

const (
	TierFree SubscriptionTier = "free"
	TierPro  SubscriptionTier = "pro"
)

type User struct {
	UID       string           `firestore:"uid" json:"uid"`
	Email     string           `firestore:"email" json:"email"`
	FirstName string           `firestore:"firstName" json:"firstName"`
	LastName  string           `firestore:"lastName" json:"lastName"`
	Tier      SubscriptionTier `firestore:"tier" json:"tier"`
	CreatedAt time.Time        `firestore:"createdAt" json:"createdAt"`
	UpdatedAt time.Time        `firestore:"updatedAt" json:"updatedAt"`
}

// CanBulkSync gates the bulk-import pipeline behind a paid plan.
func (u *User) CanBulkSync() bool {
	return u.Tier == TierPro
}
