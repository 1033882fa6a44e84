package credcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// kdfIterations is the PBKDF2 iteration count. Changing it invalidates
// every existing store, so treat it as part of the on-disk format.
const kdfIterations = 100_000

// ErrDecryptionFailed indicates the authentication tag did not verify:
// the key is wrong or the ciphertext was tampered with. Callers treat
// the affected record as unusable and require re-authentication.
var ErrDecryptionFailed = errors.New("decryption failed: wrong key or corrupted data")

// Cipher encrypts and decrypts token blobs with AES-256-GCM.
type Cipher struct {
	aead cipher.AEAD
}

// New creates a Cipher from a 32-byte key, typically produced by DeriveKey.
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be exactly %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns
// nonce || ciphertext || tag. Repeated calls on identical plaintext
// yield different outputs.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt. Returns ErrDecryptionFailed
// when the tag does not verify or the blob is malformed.
func (c *Cipher) Decrypt(blob []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(blob) < nonceSize {
		return nil, ErrDecryptionFailed
	}

	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// DeriveKey stretches the installation secret into an AES-256 key.
// The salt is random per installation, so identical secrets on two
// machines still produce unrelated keys.
func DeriveKey(secret string, salt []byte) []byte {
	return pbkdf2.Key([]byte(secret), salt, kdfIterations, KeySize, sha256.New)
}
