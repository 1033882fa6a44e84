package authsession

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sineways/anymoment-cli/internal/api"
	"github.com/sineways/anymoment-cli/internal/credcipher"
	"github.com/sineways/anymoment-cli/internal/tokenstore"
)

const testHost = "https://api.example.com"

// fakeRefresher counts upstream refresh calls and returns either a
// scripted record or a scripted error.
type fakeRefresher struct {
	calls atomic.Int64
	delay time.Duration
	err   error
	next  func(n int64) tokenstore.TokenRecord
}

func (f *fakeRefresher) Refresh(ctx context.Context, rec tokenstore.TokenRecord) (tokenstore.TokenRecord, error) {
	n := f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return tokenstore.TokenRecord{}, f.err
	}
	if f.next != nil {
		return f.next(n), nil
	}
	return tokenstore.TokenRecord{
		Host:         rec.Host,
		AccessToken:  fmt.Sprintf("refreshed-%d", n),
		RefreshToken: "rotated-refresh",
		IssuedAt:     time.Now(),
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

func testStore(t *testing.T) *tokenstore.Store {
	t.Helper()
	cipher, err := credcipher.New(credcipher.DeriveKey("session-test", []byte("0123456789abcdef")))
	if err != nil {
		t.Fatalf("creating cipher: %v", err)
	}
	store, err := tokenstore.New(filepath.Join(t.TempDir(), "tokens.json"), cipher, 5*time.Second)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	return store
}

func validRecord() tokenstore.TokenRecord {
	return tokenstore.TokenRecord{
		Host:         testHost,
		AccessToken:  "current-access",
		RefreshToken: "current-refresh",
		IssuedAt:     time.Now(),
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func expiredRecord() tokenstore.TokenRecord {
	rec := validRecord()
	rec.ExpiresAt = time.Now().Add(-time.Minute)
	return rec
}

func TestTokenReturnsCachedValidToken(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	refresher := &fakeRefresher{}

	session, err := New(store, refresher)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := session.SetRecord(ctx, validRecord()); err != nil {
		t.Fatalf("SetRecord: %v", err)
	}

	token, err := session.Token(ctx, testHost)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token != "current-access" {
		t.Errorf("Token = %q, want current-access", token)
	}
	if n := refresher.calls.Load(); n != 0 {
		t.Errorf("refresh calls = %d, want 0", n)
	}
}

func TestTokenLoadsFromStore(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	if err := store.Set(ctx, validRecord()); err != nil {
		t.Fatalf("Set: %v", err)
	}

	session, err := New(store, &fakeRefresher{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	token, err := session.Token(ctx, testHost)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token != "current-access" {
		t.Errorf("Token = %q, want the stored access token", token)
	}
}

func TestTokenWithoutExpiryTreatedAsValid(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	refresher := &fakeRefresher{}

	session, err := New(store, refresher)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec := validRecord()
	rec.ExpiresAt = time.Time{}
	if err := session.SetRecord(ctx, rec); err != nil {
		t.Fatalf("SetRecord: %v", err)
	}

	if _, err := session.Token(ctx, testHost); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if n := refresher.calls.Load(); n != 0 {
		t.Errorf("refresh calls = %d, want 0 for a non-expiring token", n)
	}
}

func TestExpiredTokenIsRefreshedAndPersisted(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	refresher := &fakeRefresher{}

	session, err := New(store, refresher)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := session.SetRecord(ctx, expiredRecord()); err != nil {
		t.Fatalf("SetRecord: %v", err)
	}

	token, err := session.Token(ctx, testHost)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token != "refreshed-1" {
		t.Errorf("Token = %q, want refreshed-1", token)
	}

	stored, err := store.Get(ctx, testHost)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored == nil || stored.AccessToken != "refreshed-1" {
		t.Errorf("stored record = %+v, want the refreshed token written through", stored)
	}
	if stored.RefreshToken != "rotated-refresh" {
		t.Errorf("stored refresh token = %q, want the rotated one", stored.RefreshToken)
	}
}

func TestConcurrentCallersSingleFlight(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	refresher := &fakeRefresher{delay: 50 * time.Millisecond}

	session, err := New(store, refresher)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := session.SetRecord(ctx, expiredRecord()); err != nil {
		t.Fatalf("SetRecord: %v", err)
	}

	const callers = 20
	tokens := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = session.Token(ctx, testHost)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if tokens[i] != "refreshed-1" {
			t.Errorf("caller %d got %q, want refreshed-1", i, tokens[i])
		}
	}
	// With single-flight, only 1 upstream refresh should be made.
	if n := refresher.calls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
}

func TestRefreshFailureInvalidatesSessionKeepsStoredRecord(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	refresher := &fakeRefresher{err: api.Errorf(api.KindAuthentication, "refresh token rejected")}

	session, err := New(store, refresher)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	original := expiredRecord()
	if err := session.SetRecord(ctx, original); err != nil {
		t.Fatalf("SetRecord: %v", err)
	}

	const callers = 5
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = session.Token(ctx, testHost)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !api.IsKind(err, api.KindAuthentication) {
			t.Errorf("caller %d: got %v, want an authentication error", i, err)
		}
	}

	// The stored record survives a failed refresh.
	stored, err := store.Get(ctx, testHost)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored == nil || stored.AccessToken != original.AccessToken {
		t.Errorf("stored record = %+v, want the original untouched", stored)
	}

	// Subsequent calls fail fast until a new login.
	if _, err := session.Token(ctx, testHost); !api.IsKind(err, api.KindAuthentication) {
		t.Errorf("Token after invalidation: got %v, want authentication error", err)
	}
	if n := refresher.calls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1 (no retry loop after invalidation)", n)
	}
}

func TestLoginAfterFailureClearsInvalidState(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	refresher := &fakeRefresher{err: api.Errorf(api.KindAuthentication, "rejected")}

	session, err := New(store, refresher)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := session.SetRecord(ctx, expiredRecord()); err != nil {
		t.Fatalf("SetRecord: %v", err)
	}
	if _, err := session.Token(ctx, testHost); err == nil {
		t.Fatal("Token succeeded, want failure")
	}

	if err := session.SetRecord(ctx, validRecord()); err != nil {
		t.Fatalf("SetRecord: %v", err)
	}
	token, err := session.Token(ctx, testHost)
	if err != nil {
		t.Fatalf("Token after re-login: %v", err)
	}
	if token != "current-access" {
		t.Errorf("Token = %q, want current-access", token)
	}
}

func TestForceRefreshBypassesExpiryCheck(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	refresher := &fakeRefresher{}

	session, err := New(store, refresher)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Token is still valid; ForceRefresh must refresh anyway.
	if err := session.SetRecord(ctx, validRecord()); err != nil {
		t.Fatalf("SetRecord: %v", err)
	}

	token, err := session.ForceRefresh(ctx, testHost, "current-access")
	if err != nil {
		t.Fatalf("ForceRefresh: %v", err)
	}
	if token != "refreshed-1" {
		t.Errorf("ForceRefresh = %q, want refreshed-1", token)
	}
	if n := refresher.calls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
}

func TestForceRefreshWithOutdatedStaleToken(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	refresher := &fakeRefresher{}

	session, err := New(store, refresher)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := session.SetRecord(ctx, validRecord()); err != nil {
		t.Fatalf("SetRecord: %v", err)
	}

	// First force refresh rotates the token.
	if _, err := session.ForceRefresh(ctx, testHost, "current-access"); err != nil {
		t.Fatalf("ForceRefresh: %v", err)
	}
	// A second caller still holding the old token must get the cached
	// fresh one without another upstream call.
	token, err := session.ForceRefresh(ctx, testHost, "current-access")
	if err != nil {
		t.Fatalf("ForceRefresh: %v", err)
	}
	if token != "refreshed-1" {
		t.Errorf("ForceRefresh = %q, want the already-rotated token", token)
	}
	if n := refresher.calls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
}

func TestTokenWithoutStoredCredentials(t *testing.T) {
	ctx := context.Background()
	session, err := New(testStore(t), &fakeRefresher{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := session.Token(ctx, testHost); !api.IsKind(err, api.KindAuthentication) {
		t.Errorf("Token with no record: got %v, want authentication error", err)
	}
}

func TestExpiredTokenWithoutRefreshToken(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	refresher := &fakeRefresher{}

	session, err := New(store, refresher)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec := expiredRecord()
	rec.RefreshToken = ""
	if err := session.SetRecord(ctx, rec); err != nil {
		t.Fatalf("SetRecord: %v", err)
	}

	if _, err := session.Token(ctx, testHost); !api.IsKind(err, api.KindAuthentication) {
		t.Errorf("Token: got %v, want authentication error", err)
	}
	if n := refresher.calls.Load(); n != 0 {
		t.Errorf("refresh calls = %d, want 0", n)
	}
}

func TestForgetRemovesRecord(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	session, err := New(store, &fakeRefresher{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := session.SetRecord(ctx, validRecord()); err != nil {
		t.Fatalf("SetRecord: %v", err)
	}

	if err := session.Forget(ctx, testHost); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	stored, err := store.Get(ctx, testHost)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored != nil {
		t.Errorf("record still stored after Forget: %+v", stored)
	}
	if _, err := session.Token(ctx, testHost); !api.IsKind(err, api.KindAuthentication) {
		t.Errorf("Token after Forget: got %v, want authentication error", err)
	}
}
