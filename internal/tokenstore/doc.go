// Package tokenstore provides encrypted, interprocess-safe persistence
// of per-host token records.
//
// The store is a single JSON file mapping hosts to individually
// encrypted record blobs. Because most users of this module are
// short-lived CLI invocations, every operation takes an exclusive file
// lock with a bounded wait, so two concurrent invocations never corrupt
// the file. Writes are atomic (temp file + rename).
//
// A missing or undecryptable store is an empty store, never an error:
// the worst case of losing the key material is having to log in again.
package tokenstore
