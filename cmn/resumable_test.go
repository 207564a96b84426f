package cmn

import (
	"errors"
	"testing"
)

type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string   { return "i/o timeout" }
func (fakeTimeoutErr) Timeout() bool   { return true }
func (fakeTimeoutErr) Temporary() bool { return true }

func TestIsResumableViaNetTimeout(t *testing.T) {
	if !isResumable(fakeTimeoutErr{}) {
		t.Fatal("expected net.Error with Timeout()==true to be resumable")
	}
}

func TestIsResumableMessageSubstrings(t *testing.T) {
	resumable := []string{
		"unexpected EOF",
		"read: connection reset by peer",
		"write: broken pipe",
		"dial tcp: lookup foo: no such host",
		"dial tcp: connection refused",
		"http2: stream ID overflow",
		"http2: frame too large",
	}
	for _, msg := range resumable {
		if !isResumable(errors.New(msg)) {
			t.Errorf("expected %q to be resumable", msg)
		}
	}
}

func TestIsResumableFalseForUnrelatedErrors(t *testing.T) {
	if isResumable(errors.New("certificate signed by unknown authority")) {
		t.Fatal("TLS verification failures must not be treated as resumable")
	}
	if isResumable(nil) {
		t.Fatal("nil error must not be resumable")
	}
}

func TestNewTransportErrorWrapsAndClassifies(t *testing.T) {
	te := NewTransportError("GET http://x", errors.New("unexpected EOF"))
	if !te.Resumable() {
		t.Fatal("expected transport error to be classified resumable")
	}
	if te.Unwrap() == nil {
		t.Fatal("expected Unwrap to return the underlying error")
	}
	if _, ok := interface{}(te).(error); !ok {
		t.Fatal("TransportError must implement error")
	}
}

func TestNewTransportErrorNonResumable(t *testing.T) {
	te := NewTransportError("GET http://x", errors.New("tls: bad certificate"))
	if te.Resumable() {
		t.Fatal("expected tls failure to be classified non-resumable")
	}
}

