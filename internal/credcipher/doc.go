// Package credcipher provides machine-bound authenticated encryption for
// token records at rest.
//
// The encryption key is never stored directly: it is derived with
// PBKDF2-HMAC-SHA256 from a per-installation secret plus a locally
// generated salt. The secret lives either in a file in the config
// directory or in the OS keyring (macOS Keychain, Windows Credential
// Manager, Linux Secret Service), selected by configuration.
//
// Encryption is AES-256-GCM, so a wrong key (store copied to another
// machine) or a tampered blob fails authentication instead of decoding
// into garbage. Every call uses a fresh random nonce.
package credcipher
