package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/sineways/anymoment-cli/internal/tokenstore"
)

// DefaultTimeout bounds a single request (connect + read).
const DefaultTimeout = 30 * time.Second

// DefaultMaxAttempts is the ceiling on tries for a request that keeps
// failing with 5xx or transport errors.
const DefaultMaxAttempts = 3

// Doer sends a single HTTP request. Satisfied by *http.Client; tests
// substitute their own.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Session supplies and maintains the credential for one host. Satisfied
// by *authsession.Session.
type Session interface {
	// Token returns a currently valid access token for host.
	Token(ctx context.Context, host string) (string, error)

	// ForceRefresh obtains a new token regardless of expiry; stale is
	// the token the server just rejected.
	ForceRefresh(ctx context.Context, host, stale string) (string, error)

	// SetRecord stores a freshly issued token record (login).
	SetRecord(ctx context.Context, rec tokenstore.TokenRecord) error

	// Forget removes the stored record for host (logout).
	Forget(ctx context.Context, host string) error
}

// Option configures a Client.
type Option func(*Client)

// WithDoer sets a custom HTTP client for outbound requests.
func WithDoer(doer Doer) Option {
	return func(c *Client) {
		c.transport.doer = doer
	}
}

// WithMaxAttempts overrides the retry ceiling for 5xx and transport
// failures.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		c.transport.maxAttempts = n
	}
}

// WithRetryInterval overrides the initial backoff interval, mainly to
// keep tests fast.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) {
		c.transport.retryInterval = d
	}
}

// Client calls the AnyMoment API for a single host. Every domain call
// goes through do, which injects the bearer token, retries 5xx with
// backoff, performs the single forced refresh on 401, and maps every
// non-2xx status onto the error taxonomy.
type Client struct {
	baseURL   string
	session   Session
	transport transport
}

// New creates a Client for the given base URL. The base URL doubles as
// the host key under which the session scopes credentials.
func New(baseURL string, session Session, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("missing session")
	}

	c := &Client{
		baseURL: baseURL,
		session: session,
		transport: transport{
			doer:          &http.Client{Timeout: DefaultTimeout},
			maxAttempts:   DefaultMaxAttempts,
			retryInterval: 500 * time.Millisecond,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the host this client is bound to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do performs one authenticated API call and decodes the response into
// out (which may be nil for calls without a body of interest).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	reqBody, err := encodeBody(body)
	if err != nil {
		return err
	}
	reqURL := c.buildURL(path, query)

	token, err := c.session.Token(ctx, c.baseURL)
	if err != nil {
		return err
	}

	resp, respBody, err := c.transport.send(ctx, method, reqURL, reqBody, bearerHeader(token))
	if err != nil {
		return err
	}

	// One forced refresh on 401, then one retry. A second 401 is final.
	if resp.StatusCode == http.StatusUnauthorized {
		token, err = c.session.ForceRefresh(ctx, c.baseURL, token)
		if err != nil {
			return err
		}
		resp, respBody, err = c.transport.send(ctx, method, reqURL, reqBody, bearerHeader(token))
		if err != nil {
			return err
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromStatus(resp.StatusCode, errorDetail(respBody))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return Errorf(KindServer, "decoding %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) buildURL(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func bearerHeader(token string) http.Header {
	header := make(http.Header)
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return header
}

func encodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, Errorf(KindValidation, "encoding request body: %w", err)
	}
	return data, nil
}

// errorDetail extracts the server's error message from a response body
// of the form {"detail": "..."}; falls back to the raw body.
func errorDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return strings.TrimSpace(string(body))
}

// transport sends a request with bounded exponential backoff on 5xx
// responses and transport errors. Jitter comes from the backoff
// package's randomization; non-5xx responses are returned to the caller
// for classification.
type transport struct {
	doer          Doer
	maxAttempts   int
	retryInterval time.Duration
}

// retryableStatus marks a 5xx response so the retry loop backs off and
// tries again instead of giving up.
type retryableStatus struct {
	status int
	detail string
}

func (e *retryableStatus) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.status, e.detail)
}

type sendResult struct {
	resp *http.Response
	body []byte
}

func (t *transport) send(ctx context.Context, method, reqURL string, body []byte, header http.Header) (*http.Response, []byte, error) {
	operation := func() (sendResult, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
		if err != nil {
			return sendResult{}, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for key, values := range header {
			req.Header[key] = values
		}

		resp, err := t.doer.Do(req)
		if err != nil {
			return sendResult{}, err
		}
		respBody, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return sendResult{}, err
		}

		if resp.StatusCode >= 500 {
			return sendResult{}, &retryableStatus{status: resp.StatusCode, detail: errorDetail(respBody)}
		}
		return sendResult{resp: resp, body: respBody}, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.retryInterval
	bo.MaxInterval = 5 * time.Second

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(t.maxAttempts)),
	)
	if err != nil {
		var rs *retryableStatus
		if errors.As(err, &rs) {
			return nil, nil, &Error{Kind: KindServer, Message: rs.detail, StatusCode: rs.status}
		}
		return nil, nil, Errorf(KindServer, "request failed after %d attempts: %w", t.maxAttempts, err)
	}
	return result.resp, result.body, nil
}
