package models

import "time"

// TokenRecord holds one connection's OAuth credentials. The access and
// refresh tokens are ciphertext at rest; the connection store is the only
// component that sees them in the clear.
type TokenRecord struct {
	AccessToken   string    `firestore:"accessToken" json:"-"`
	RefreshToken  string    `firestore:"refreshToken" json:"-"`
	ExpiresAt     time.Time `firestore:"expiresAt" json:"expiresAt"`
	Unrecoverable bool      `firestore:"unrecoverable" json:"unrecoverable"`
	UpdatedAt     time.Time `firestore:"updatedAt" json:"updatedAt"`
}

func (t *TokenRecord) HasRefreshToken() bool {
	return t != nil && t.RefreshToken != ""
}

// FreshAt reports whether the access token is still usable at the given
// instant with the given safety margin before expiry.
func (t *TokenRecord) FreshAt(now time.Time, margin time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return t.ExpiresAt.After(now.Add(margin))
}
