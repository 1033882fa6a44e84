package tokenstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/sineways/anymoment-cli/internal/credcipher"
)

// formatVersion is the on-disk store format. Bump when the file layout
// changes incompatibly.
const formatVersion = 1

// lockRetryDelay is the polling interval while waiting for the file lock.
const lockRetryDelay = 100 * time.Millisecond

// ErrLockTimeout indicates the exclusive file lock could not be acquired
// within the configured wait bound, usually because another invocation
// holds it.
var ErrLockTimeout = errors.New("timed out waiting for token store lock")

// storeFile is the JSON layout of the store on disk. Host records are
// individually encrypted, so the hostname list is readable but tokens
// are not.
type storeFile struct {
	FormatVersion int               `json:"format_version"`
	Hosts         map[string]string `json:"hosts"`
}

// Store persists per-host token records in a single encrypted file.
//
// Every operation runs as one critical section: exclusive file lock,
// load-decrypt, mutate, encrypt-save via temp file + atomic rename. The
// file lock guards against concurrent invocations of separate processes;
// an in-process mutex guards concurrent use of one Store.
type Store struct {
	path        string
	cipher      *credcipher.Cipher
	lockTimeout time.Duration

	mu       sync.Mutex
	fileLock *flock.Flock
}

// New creates a Store for the given file path, creating the parent
// directory with 0700 permissions if it does not exist. The lock timeout
// bounds how long any operation waits for another process to release
// the store.
func New(path string, cipher *credcipher.Cipher, lockTimeout time.Duration) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path cannot be empty")
	}
	if cipher == nil {
		return nil, fmt.Errorf("missing cipher")
	}
	if lockTimeout <= 0 {
		return nil, fmt.Errorf("lock timeout must be positive")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	return &Store{
		path:        path,
		cipher:      cipher,
		lockTimeout: lockTimeout,
		fileLock:    flock.New(path + ".lock"),
	}, nil
}

// Get returns the record for host, or nil if none is stored or the
// stored blob cannot be decrypted.
func (s *Store) Get(ctx context.Context, host string) (*TokenRecord, error) {
	var rec *TokenRecord
	err := s.withLock(ctx, func() error {
		records, err := s.load(ctx)
		if err != nil {
			return err
		}
		if r, ok := records[host]; ok {
			rec = &r
		}
		return nil
	})
	return rec, err
}

// Set stores the record for rec.Host, replacing any existing record.
func (s *Store) Set(ctx context.Context, rec TokenRecord) error {
	if rec.Host == "" {
		return fmt.Errorf("record host cannot be empty")
	}
	return s.withLock(ctx, func() error {
		records, err := s.load(ctx)
		if err != nil {
			return err
		}
		records[rec.Host] = rec
		return s.save(records)
	})
}

// Delete removes the record for host. Deleting an absent host is a no-op.
func (s *Store) Delete(ctx context.Context, host string) error {
	return s.withLock(ctx, func() error {
		records, err := s.load(ctx)
		if err != nil {
			return err
		}
		if _, ok := records[host]; !ok {
			return nil
		}
		delete(records, host)
		return s.save(records)
	})
}

// Hosts returns the sorted list of hosts with a stored record. A missing
// or unreadable store yields an empty list, not an error.
func (s *Store) Hosts(ctx context.Context) ([]string, error) {
	var hosts []string
	err := s.withLock(ctx, func() error {
		records, err := s.load(ctx)
		if err != nil {
			return err
		}
		for host := range records {
			hosts = append(hosts, host)
		}
		return nil
	})
	sort.Strings(hosts)
	return hosts, err
}

// Records returns a snapshot of every decryptable record, keyed by host.
func (s *Store) Records(ctx context.Context) (map[string]TokenRecord, error) {
	var out map[string]TokenRecord
	err := s.withLock(ctx, func() error {
		records, err := s.load(ctx)
		if err != nil {
			return err
		}
		out = records
		return nil
	})
	return out, err
}

// Clear removes every stored record.
func (s *Store) Clear(ctx context.Context) error {
	return s.withLock(ctx, func() error {
		return s.save(map[string]TokenRecord{})
	})
}

// withLock runs fn holding both the in-process mutex and the exclusive
// file lock. Returns ErrLockTimeout when the file lock cannot be
// acquired within the wait bound.
func (s *Store) withLock(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	ok, err := s.fileLock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil || !ok {
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("acquiring store lock: %w", err)
		}
		return ErrLockTimeout
	}
	defer func() { _ = s.fileLock.Unlock() }()

	return fn()
}

// load reads and decrypts the store. A missing file, unparseable JSON,
// or an unexpected format version is an empty store; individual
// undecryptable entries are skipped (and dropped on the next save),
// leaving the caller to re-authenticate for those hosts.
func (s *Store) load(ctx context.Context) (map[string]TokenRecord, error) {
	records := make(map[string]TokenRecord)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return records, nil
		}
		return nil, fmt.Errorf("reading token store: %w", err)
	}

	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		slog.WarnContext(ctx, "token store unreadable, treating as empty", "path", s.path)
		return records, nil
	}
	if file.FormatVersion != formatVersion {
		slog.WarnContext(ctx, "token store has unknown format version, treating as empty",
			"path", s.path, "format_version", file.FormatVersion)
		return records, nil
	}

	for host, encoded := range file.Hosts {
		blob, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			slog.WarnContext(ctx, "skipping malformed token record", "host", host)
			continue
		}
		plaintext, err := s.cipher.Decrypt(blob)
		if err != nil {
			slog.WarnContext(ctx, "skipping undecryptable token record", "host", host)
			continue
		}
		var rec TokenRecord
		if err := json.Unmarshal(plaintext, &rec); err != nil {
			slog.WarnContext(ctx, "skipping unparseable token record", "host", host)
			continue
		}
		records[host] = rec
	}

	return records, nil
}

// save encrypts every record and writes the store atomically: temp file
// in the same directory, then rename, so a crash mid-write never leaves
// a truncated store.
func (s *Store) save(records map[string]TokenRecord) error {
	file := storeFile{
		FormatVersion: formatVersion,
		Hosts:         make(map[string]string, len(records)),
	}

	for host, rec := range records {
		plaintext, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding record for %s: %w", host, err)
		}
		blob, err := s.cipher.Encrypt(plaintext)
		if err != nil {
			return fmt.Errorf("encrypting record for %s: %w", host, err)
		}
		file.Hosts[host] = base64.StdEncoding.EncodeToString(blob)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token store: %w", err)
	}

	dir := filepath.Dir(s.path)
	tempFile, err := os.CreateTemp(dir, "*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempName := tempFile.Name()
	defer func() { _ = os.Remove(tempName) }()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("writing token store: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("writing token store: %w", err)
	}
	if err := os.Chmod(tempName, 0600); err != nil {
		return fmt.Errorf("setting token store permissions: %w", err)
	}

	if err := os.Rename(tempName, s.path); err != nil {
		return fmt.Errorf("replacing token store: %w", err)
	}
	return nil
}
