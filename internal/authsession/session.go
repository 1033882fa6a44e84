package authsession

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sineways/anymoment-cli/internal/api"
	"github.com/sineways/anymoment-cli/internal/tokenstore"
)

// DefaultRefreshMargin is subtracted from a token's expiry when deciding
// whether it is still usable, covering clock skew and request latency.
const DefaultRefreshMargin = 30 * time.Second

// Refresher exchanges a refresh token for a new token record. Network
// retries are the implementation's concern; a returned error means the
// refresh is not going to succeed without re-authentication.
type Refresher interface {
	Refresh(ctx context.Context, rec tokenstore.TokenRecord) (tokenstore.TokenRecord, error)
}

// Option configures a Session.
type Option func(*Session)

// WithRefreshMargin overrides the expiry safety margin.
func WithRefreshMargin(margin time.Duration) Option {
	return func(s *Session) {
		s.margin = margin
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// hostState is the cached per-host session. invalid is set when a
// refresh has failed terminally; it is cleared only by a new login.
type hostState struct {
	record  *tokenstore.TokenRecord
	invalid bool
}

// Session is the in-memory token cache in front of the encrypted store.
//
// Refreshes are single-flight per host: concurrent callers holding an
// expired token block on one in-flight refresh instead of each issuing
// their own, which would race on servers that rotate refresh tokens.
type Session struct {
	store     *tokenstore.Store
	refresher Refresher
	margin    time.Duration
	now       func() time.Time

	mu    sync.Mutex
	hosts map[string]*hostState
	group singleflight.Group
}

// New creates a Session backed by the given store and refresher.
func New(store *tokenstore.Store, refresher Refresher, opts ...Option) (*Session, error) {
	if store == nil {
		return nil, errors.New("missing token store")
	}
	if refresher == nil {
		return nil, errors.New("missing refresher")
	}

	s := &Session{
		store:     store,
		refresher: refresher,
		margin:    DefaultRefreshMargin,
		now:       time.Now,
		hosts:     make(map[string]*hostState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Token returns a valid access token for host, refreshing through the
// store if the cached token is within the safety margin of expiry.
func (s *Session) Token(ctx context.Context, host string) (string, error) {
	state, err := s.hostState(ctx, host)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if state.invalid {
		s.mu.Unlock()
		return "", api.Errorf(api.KindAuthentication, "session for %s requires re-authentication", host)
	}
	if state.record != nil && !state.record.ExpiredAt(s.now(), s.margin) {
		token := state.record.AccessToken
		s.mu.Unlock()
		return token, nil
	}
	s.mu.Unlock()

	return s.refresh(ctx, host, "")
}

// ForceRefresh refreshes host's token regardless of its expiry, for the
// case where the server already rejected it. The stale token is the one
// that failed; if another caller refreshed in the meantime, the newer
// token is returned without a second upstream call.
func (s *Session) ForceRefresh(ctx context.Context, host, stale string) (string, error) {
	if _, err := s.hostState(ctx, host); err != nil {
		return "", err
	}
	return s.refresh(ctx, host, stale)
}

// SetRecord stores a freshly issued record (login), writes it through to
// disk, and clears any invalid state for the host.
func (s *Session) SetRecord(ctx context.Context, rec tokenstore.TokenRecord) error {
	if err := s.store.Set(ctx, rec); err != nil {
		return storageError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r := rec
	s.hosts[rec.Host] = &hostState{record: &r}
	return nil
}

// Forget removes the host's record from disk and cache (logout).
func (s *Session) Forget(ctx context.Context, host string) error {
	if err := s.store.Delete(ctx, host); err != nil {
		return storageError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hosts, host)
	return nil
}

// hostState returns the cached state for host, loading it from the
// store on first access.
func (s *Session) hostState(ctx context.Context, host string) (*hostState, error) {
	s.mu.Lock()
	if state, ok := s.hosts[host]; ok {
		s.mu.Unlock()
		return state, nil
	}
	s.mu.Unlock()

	// Load outside the lock: the store does its own locking and I/O.
	rec, err := s.store.Get(ctx, host)
	if err != nil {
		return nil, storageError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.hosts[host]; ok {
		return state, nil
	}
	state := &hostState{record: rec}
	s.hosts[host] = state
	return state, nil
}

// refresh drives one single-flight refresh for host. stale, when
// non-empty, is the access token the caller saw fail; a cached token
// that differs from it is assumed fresh and returned as-is.
func (s *Session) refresh(ctx context.Context, host, stale string) (string, error) {
	token, err, _ := s.group.Do(host, func() (any, error) {
		s.mu.Lock()
		state := s.hosts[host]
		if state == nil {
			state = &hostState{}
			s.hosts[host] = state
		}
		if state.invalid {
			s.mu.Unlock()
			return nil, api.Errorf(api.KindAuthentication, "session for %s requires re-authentication", host)
		}

		// Another flight may have completed between the caller's check
		// and this one.
		if state.record != nil {
			fresh := state.record.AccessToken
			if stale == "" && !state.record.ExpiredAt(s.now(), s.margin) {
				s.mu.Unlock()
				return fresh, nil
			}
			if stale != "" && fresh != stale {
				s.mu.Unlock()
				return fresh, nil
			}
		}

		if state.record == nil {
			s.mu.Unlock()
			return nil, api.Errorf(api.KindAuthentication, "no stored credentials for %s", host)
		}
		if state.record.RefreshToken == "" {
			state.invalid = true
			s.mu.Unlock()
			return nil, api.Errorf(api.KindAuthentication, "token for %s expired and no refresh token is stored", host)
		}
		current := *state.record
		s.mu.Unlock()

		fresh, err := s.refresher.Refresh(ctx, current)
		if err != nil {
			// The stored record stays on disk untouched for inspection;
			// only an explicit logout deletes it.
			s.mu.Lock()
			state.invalid = true
			s.mu.Unlock()
			return nil, api.Errorf(api.KindAuthentication, "refreshing token for %s: %w", host, err)
		}
		fresh.Host = host

		// Persist before unblocking waiters. A write failure is data
		// loss for the rotated refresh token, but the new access token
		// is valid, so serve it and leave the retry to the next refresh.
		if err := s.store.Set(ctx, fresh); err != nil {
			slog.ErrorContext(ctx, "failed to persist refreshed token", "host", host, "error", err)
		}

		s.mu.Lock()
		state.record = &fresh
		state.invalid = false
		s.mu.Unlock()

		return fresh.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func storageError(err error) error {
	if errors.Is(err, tokenstore.ErrLockTimeout) {
		return api.Errorf(api.KindStorage, "token store is locked by another process: %w", err)
	}
	return api.Errorf(api.KindStorage, "token store: %w", err)
}
