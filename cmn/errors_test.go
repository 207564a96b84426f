package cmn

import (
	"net/http"
	"testing"
)

func TestIsConflictOrTooManyRequests(t *testing.T) {
	for status, want := range map[int]bool{
		http.StatusConflict:        true,
		http.StatusTooManyRequests: true,
		http.StatusNotFound:        false,
		http.StatusOK:              false,
	} {
		err := &HTTPError{Status: status}
		if got := IsConflictOrTooManyRequests(err); got != want {
			t.Errorf("status %d: IsConflictOrTooManyRequests = %v, want %v", status, got, want)
		}
	}
}

func TestIsUnauthorized(t *testing.T) {
	if !IsUnauthorized(&HTTPError{Status: http.StatusUnauthorized}) {
		t.Fatal("expected 401 to be unauthorized")
	}
	if IsUnauthorized(&HTTPError{Status: http.StatusForbidden}) {
		t.Fatal("expected 403 to not be unauthorized")
	}
}

func TestStatusCode(t *testing.T) {
	if StatusCode(nil) != http.StatusOK {
		t.Fatal("expected nil error to report 200")
	}
	if got := StatusCode(&HTTPError{Status: 503}); got != 503 {
		t.Fatalf("expected 503, got %d", got)
	}
	if got := StatusCode(NewProtocolError("bad")); got != -1 {
		t.Fatalf("expected -1 for non-HTTP error, got %d", got)
	}
}
