package tokenstore

import "time"

// TokenRecord is the per-host credential state persisted by the store.
// Exactly one record exists per host.
type TokenRecord struct {
	Host         string    `json:"host"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
	// ExpiresAt is zero for tokens without a known expiry; such tokens
	// are treated as valid until a 401 proves otherwise.
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Expires reports whether the record carries a known expiry time.
func (r TokenRecord) Expires() bool {
	return !r.ExpiresAt.IsZero()
}

// ExpiredAt reports whether the access token should be considered
// expired at the given instant, applying the safety margin.
func (r TokenRecord) ExpiredAt(now time.Time, margin time.Duration) bool {
	if !r.Expires() {
		return false
	}
	return !now.Before(r.ExpiresAt.Add(-margin))
}
