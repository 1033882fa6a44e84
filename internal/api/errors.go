package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error into the closed set of failure categories
// callers are expected to handle. Every non-2xx response and every
// storage/crypto failure maps to exactly one Kind.
type Kind int

const (
	// KindAuthentication covers bad credentials, rejected or expired
	// refresh tokens, and an undecryptable token store.
	KindAuthentication Kind = iota + 1

	// KindValidation covers requests the server rejected as malformed or
	// semantically invalid (400/422).
	KindValidation

	// KindNotFound covers missing resources (404).
	KindNotFound

	// KindServer covers upstream failures that persisted after retries
	// (5xx, transport errors) and unclassified statuses.
	KindServer

	// KindStorage covers local persistence failures: lock timeouts and
	// disk I/O errors.
	KindStorage
)

// String returns the kind name as used in error output.
func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not found"
	case KindServer:
		return "server"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error is the single error type crossing this module's package
// boundaries. Lower-level I/O and crypto errors are wrapped at their
// origin so callers only ever match on Kind.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int   // HTTP status when the error came from a response, else 0
	Err        error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality, so callers can match with
// errors.Is(err, &api.Error{Kind: api.KindAuthentication}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Errorf builds an Error of the given kind with a formatted message.
// A wrapped cause can be attached with the %w verb.
func Errorf(kind Kind, format string, args ...any) *Error {
	err := fmt.Errorf(format, args...)
	return &Error{
		Kind:    kind,
		Message: err.Error(),
		Err:     errors.Unwrap(err),
	}
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// errorFromStatus maps a non-2xx response status to the taxonomy.
// The mapping is total: every status lands on exactly one Kind.
func errorFromStatus(status int, detail string) *Error {
	var kind Kind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuthentication
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		kind = KindValidation
	case status >= 500:
		kind = KindServer
	default:
		kind = KindServer
	}
	if detail == "" {
		detail = http.StatusText(status)
	}
	return &Error{Kind: kind, Message: detail, StatusCode: status}
}
