package dto

// TokenHealthStatus classifies a connection's credentials without touching
// the provider.
type TokenHealthStatus string

const (
	TokenMissing      TokenHealthStatus = "missing"
	TokenExpired      TokenHealthStatus = "expired"
	TokenExpiringSoon TokenHealthStatus = "expiring_soon"
	TokenHealthy      TokenHealthStatus = "healthy"
)

type TokenHealth struct {
	Status             TokenHealthStatus `json:"status"`
	MinutesUntilExpiry int               `json:"minutesUntilExpiry"`
	HasRefreshToken    bool              `json:"hasRefreshToken"`
	Recommendations    []string          `json:"recommendations,omitempty"`
}
