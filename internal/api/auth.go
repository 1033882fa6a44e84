package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sineways/anymoment-cli/internal/tokenstore"
)

// tokenResponse is the wire shape of the login and refresh endpoints.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// record converts the response into a stored record for host.
func (t tokenResponse) record(host string, now time.Time) tokenstore.TokenRecord {
	rec := tokenstore.TokenRecord{
		Host:         host,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		IssuedAt:     now,
	}
	if t.ExpiresIn > 0 {
		rec.ExpiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	return rec
}

// Login authenticates with email and password and stores the issued
// token record for this client's host. The credentials themselves are
// never persisted.
func (c *Client) Login(ctx context.Context, email, password string) (tokenstore.TokenRecord, error) {
	body, err := encodeBody(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return tokenstore.TokenRecord{}, err
	}

	resp, respBody, err := c.transport.send(ctx, http.MethodPost, c.baseURL+"/auth/token", body, nil)
	if err != nil {
		return tokenstore.TokenRecord{}, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return tokenstore.TokenRecord{}, Errorf(KindAuthentication, "invalid email or password")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return tokenstore.TokenRecord{}, errorFromStatus(resp.StatusCode, errorDetail(respBody))
	}

	var tokens tokenResponse
	if err := json.Unmarshal(respBody, &tokens); err != nil {
		return tokenstore.TokenRecord{}, Errorf(KindServer, "decoding login response: %w", err)
	}
	if tokens.AccessToken == "" {
		return tokenstore.TokenRecord{}, Errorf(KindServer, "login response contained no access token")
	}

	rec := tokens.record(c.baseURL, time.Now())
	if err := c.session.SetRecord(ctx, rec); err != nil {
		return tokenstore.TokenRecord{}, err
	}
	return rec, nil
}

// Logout removes the stored credentials for this client's host.
func (c *Client) Logout(ctx context.Context) error {
	return c.session.Forget(ctx, c.baseURL)
}

// User is the authenticated account as reported by the server.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Me returns the account the stored token belongs to.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// TokenRefresher exchanges refresh tokens for new token pairs against
// one host. It deliberately does not depend on a session: the session
// calls it, not the other way round.
type TokenRefresher struct {
	baseURL   string
	transport transport
}

// NewTokenRefresher creates a TokenRefresher for the given base URL.
func NewTokenRefresher(baseURL string, opts ...Option) (*TokenRefresher, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	// Reuse Client options by applying them to a throwaway carrier.
	carrier := &Client{
		transport: transport{
			doer:          &http.Client{Timeout: DefaultTimeout},
			maxAttempts:   DefaultMaxAttempts,
			retryInterval: 500 * time.Millisecond,
		},
	}
	for _, opt := range opts {
		opt(carrier)
	}

	return &TokenRefresher{
		baseURL:   baseURL,
		transport: carrier.transport,
	}, nil
}

// Refresh trades the record's refresh token for a new pair. A 4xx from
// the refresh endpoint means the refresh token itself was rejected and
// re-authentication is required.
func (r *TokenRefresher) Refresh(ctx context.Context, rec tokenstore.TokenRecord) (tokenstore.TokenRecord, error) {
	body, err := encodeBody(map[string]string{
		"refresh_token": rec.RefreshToken,
	})
	if err != nil {
		return tokenstore.TokenRecord{}, err
	}

	resp, respBody, err := r.transport.send(ctx, http.MethodPost, r.baseURL+"/auth/token/refresh", body, nil)
	if err != nil {
		return tokenstore.TokenRecord{}, err
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return tokenstore.TokenRecord{}, Errorf(KindAuthentication, "refresh token rejected: %s", errorDetail(respBody))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return tokenstore.TokenRecord{}, errorFromStatus(resp.StatusCode, errorDetail(respBody))
	}

	var tokens tokenResponse
	if err := json.Unmarshal(respBody, &tokens); err != nil {
		return tokenstore.TokenRecord{}, Errorf(KindServer, "decoding refresh response: %w", err)
	}
	if tokens.AccessToken == "" {
		return tokenstore.TokenRecord{}, Errorf(KindServer, "refresh response contained no access token")
	}

	fresh := tokens.record(rec.Host, time.Now())
	if fresh.RefreshToken == "" {
		// Server did not rotate the refresh token; keep the old one.
		fresh.RefreshToken = rec.RefreshToken
	}
	return fresh, nil
}
