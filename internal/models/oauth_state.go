package models

import "time"

// StateTTL is how long an authorization flow may take between the connect
// request and the provider callback.
const StateTTL = 10 * time.Minute

// OAuthState is a single-use CSRF nonce tying a callback to the user that
// started the flow. Consumed (deleted) on first lookup.
type OAuthState struct {
	State     string    `firestore:"state" json:"state"`
	UserID    string    `firestore:"userId" json:"userId"`
	Provider  Provider  `firestore:"provider" json:"provider"`
	CreatedAt time.Time `firestore:"createdAt" json:"createdAt"`
	ExpiresAt time.Time `firestore:"expiresAt" json:"expiresAt"`
}

func (s *OAuthState) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
