// Package authsession tracks per-host credential state in memory and
// drives token refresh through the encrypted store.
//
// A host's session moves between: no token, valid, refreshing, and
// invalid. Refreshes are collapsed per host (single-flight), new records
// are written through to the store before waiters unblock, and a failed
// refresh marks the host invalid until the next login. The stored record
// survives a failed refresh for inspection.
package authsession
