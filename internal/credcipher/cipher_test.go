package credcipher

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	key := DeriveKey("test-installation-secret", []byte("0123456789abcdef"))
	c, err := New(key)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRejectsBadKeySizes(t *testing.T) {
	for _, size := range []int{0, 16, 31, 33, 64} {
		if _, err := New(make([]byte, size)); err == nil {
			t.Errorf("New accepted a %d-byte key", size)
		}
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := testCipher(t)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"token record", []byte(`{"host":"https://api.example.com","access_token":"abc123"}`)},
		{"binary", []byte{0x00, 0xff, 0x10, 0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := c.Encrypt(tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt: %v", err)
			}
			got, err := c.Decrypt(blob)
			if err != nil {
				t.Fatalf("Decrypt: %v", err)
			}
			if !bytes.Equal(got, tt.plaintext) {
				t.Errorf("round trip mismatch: got %q, want %q", got, tt.plaintext)
			}
		})
	}
}

func TestEncryptProducesFreshNonces(t *testing.T) {
	c := testCipher(t)
	plaintext := []byte("identical plaintext")

	first, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	second, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if bytes.Equal(first, second) {
		t.Error("two encryptions of the same plaintext produced identical ciphertexts")
	}
}

func TestDecryptDetectsTampering(t *testing.T) {
	c := testCipher(t)

	blob, err := c.Encrypt([]byte("sensitive token material"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	// Flipping any single byte must fail authentication, never return
	// corrupted plaintext.
	for i := range blob {
		tampered := bytes.Clone(blob)
		tampered[i] ^= 0x01
		if _, err := c.Decrypt(tampered); !errors.Is(err, ErrDecryptionFailed) {
			t.Fatalf("Decrypt accepted blob with byte %d flipped: %v", i, err)
		}
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	c := testCipher(t)
	blob, err := c.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	other, err := New(DeriveKey("other-secret", []byte("0123456789abcdef")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := other.Decrypt(blob); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("Decrypt with wrong key: got %v, want ErrDecryptionFailed", err)
	}
}

func TestDecryptTruncatedBlob(t *testing.T) {
	c := testCipher(t)
	if _, err := c.Decrypt([]byte("short")); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("Decrypt of truncated blob: got %v, want ErrDecryptionFailed", err)
	}
}

func TestDeriveKeyIsDeterministicPerSalt(t *testing.T) {
	salt := []byte("0123456789abcdef")
	a := DeriveKey("secret", salt)
	b := DeriveKey("secret", salt)
	if !bytes.Equal(a, b) {
		t.Error("same secret and salt derived different keys")
	}

	c := DeriveKey("secret", []byte("fedcba9876543210"))
	if bytes.Equal(a, c) {
		t.Error("different salts derived the same key")
	}
}

func TestFileSecretSourceStable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "deep", "install_id")

	source, err := NewFileSecretSource(path)
	if err != nil {
		t.Fatalf("NewFileSecretSource: %v", err)
	}

	first, err := source.Secret(ctx)
	if err != nil {
		t.Fatalf("Secret: %v", err)
	}
	if first == "" {
		t.Fatal("Secret returned empty string")
	}

	// A second source on the same path must see the same secret.
	again, err := NewFileSecretSource(path)
	if err != nil {
		t.Fatalf("NewFileSecretSource: %v", err)
	}
	second, err := again.Secret(ctx)
	if err != nil {
		t.Fatalf("Secret: %v", err)
	}
	if first != second {
		t.Errorf("secret not stable across instances: %q vs %q", first, second)
	}
}

func TestLoadKeyStableAcrossCalls(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	source, err := NewFileSecretSource(filepath.Join(dir, "install_id"))
	if err != nil {
		t.Fatalf("NewFileSecretSource: %v", err)
	}
	saltPath := filepath.Join(dir, "salt")

	first, err := LoadKey(ctx, source, saltPath)
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	if len(first) != KeySize {
		t.Fatalf("key length = %d, want %d", len(first), KeySize)
	}

	second, err := LoadKey(ctx, source, saltPath)
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("LoadKey not stable across calls with the same salt and secret")
	}
}
