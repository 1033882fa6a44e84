package api

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestErrorKindMatching(t *testing.T) {
	err := Errorf(KindNotFound, "event %s does not exist", "ev1")

	if !errors.Is(err, &Error{Kind: KindNotFound}) {
		t.Error("errors.Is failed to match the kind")
	}
	if errors.Is(err, &Error{Kind: KindServer}) {
		t.Error("errors.Is matched a different kind")
	}
	if !IsKind(err, KindNotFound) {
		t.Error("IsKind failed to match")
	}
	if IsKind(errors.New("plain"), KindNotFound) {
		t.Error("IsKind matched a non-taxonomy error")
	}
}

func TestErrorfWrapsCause(t *testing.T) {
	err := Errorf(KindStorage, "reading store: %w", io.ErrUnexpectedEOF)

	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("wrapped cause not reachable through errors.Is")
	}
	if !IsKind(err, KindStorage) {
		t.Error("kind lost while wrapping")
	}
}

func TestKindSurvivesFurtherWrapping(t *testing.T) {
	inner := Errorf(KindAuthentication, "refresh token rejected")
	outer := fmt.Errorf("calling /events: %w", inner)

	if !IsKind(outer, KindAuthentication) {
		t.Error("kind not found through an outer wrap")
	}
}
