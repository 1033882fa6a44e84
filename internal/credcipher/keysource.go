package credcipher

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/zalando/go-keyring"
)

// saltSize is the length of the per-installation salt in bytes.
const saltSize = 16

// SecretSource loads the per-installation secret used for key derivation.
//
// Implementations create the secret on first use; the secret is stable
// for the lifetime of the installation.
type SecretSource interface {
	// Secret returns the installation secret, generating and persisting
	// it if it does not exist yet.
	Secret(ctx context.Context) (string, error)
}

// FileSecretSource persists the installation secret as an owner-only
// file, typically under the per-user config directory.
type FileSecretSource struct {
	path string
}

// Compile-time check to ensure FileSecretSource implements SecretSource
var _ SecretSource = (*FileSecretSource)(nil)

// NewFileSecretSource creates a FileSecretSource for the given path,
// creating parent directories with 0700 permissions if they don't exist.
func NewFileSecretSource(path string) (*FileSecretSource, error) {
	if path == "" {
		return nil, fmt.Errorf("secret file path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	return &FileSecretSource{path: path}, nil
}

// Secret returns the stored installation secret, generating a new one
// on first use.
func (f *FileSecretSource) Secret(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := os.ReadFile(f.path)
	if err == nil {
		secret := strings.TrimSpace(string(data))
		if secret != "" {
			return secret, nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("reading installation secret: %w", err)
	}

	secret := uuid.NewString()
	if err := os.WriteFile(f.path, []byte(secret+"\n"), 0600); err != nil {
		return "", fmt.Errorf("persisting installation secret: %w", err)
	}
	return secret, nil
}

// KeyringSecretSource keeps the installation secret in the OS-native
// credential store instead of a file.
type KeyringSecretSource struct {
	service string
	user    string
}

// Compile-time check to ensure KeyringSecretSource implements SecretSource
var _ SecretSource = (*KeyringSecretSource)(nil)

// NewKeyringSecretSource creates a KeyringSecretSource using the given
// service and user identifiers.
func NewKeyringSecretSource(service, user string) (*KeyringSecretSource, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}
	return &KeyringSecretSource{service: service, user: user}, nil
}

// Secret returns the secret from the system keyring, generating and
// storing a new one on first use.
func (k *KeyringSecretSource) Secret(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	secret, err := keyring.Get(k.service, k.user)
	if err == nil && secret != "" {
		return secret, nil
	}
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("reading keyring secret: %w", err)
	}

	secret = uuid.NewString()
	if err := keyring.Set(k.service, k.user, secret); err != nil {
		return "", fmt.Errorf("persisting keyring secret: %w", err)
	}
	return secret, nil
}

// LoadKey derives the store encryption key from the installation secret
// and the salt persisted at saltPath. Both are created on first use.
// The local hostname is mixed into the key material so a copied config
// directory alone is not sufficient on another machine.
func LoadKey(ctx context.Context, source SecretSource, saltPath string) ([]byte, error) {
	secret, err := source.Secret(ctx)
	if err != nil {
		return nil, err
	}

	salt, err := loadOrCreateSalt(saltPath)
	if err != nil {
		return nil, err
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	return DeriveKey(secret+":"+hostname, salt), nil
}

func loadOrCreateSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil && len(salt) == saltSize {
		return salt, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading salt: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	salt = make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	if err := os.WriteFile(path, salt, 0600); err != nil {
		return nil, fmt.Errorf("persisting salt: %w", err)
	}
	return salt, nil
}
