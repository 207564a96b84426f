package ddiclient

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edgefleet/hawkbit-agent/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{
		HawkbitServer: u.Host,
		TargetName:    "device-1",
		TenantID:      "DEFAULT",
		Auth:          config.Auth{TargetToken: "tok"},
		Timeout:       5 * time.Second,
	}
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestRESTRequestRetriesOn409ThenSucceeds(t *testing.T) {
	var attempts int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.Write([]byte(`{"ok":true}`)) //nolint:errcheck
	})

	var out map[string]bool
	if err := client.RESTRequest(http.MethodGet, client.URL(""), nil, &out); err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if !out["ok"] {
		t.Fatalf("expected decoded response, got %v", out)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", attempts)
	}
}

func TestRESTRequestDoesNotRetryOn404(t *testing.T) {
	var attempts int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	})

	err := client.RESTRequest(http.MethodGet, client.URL(""), nil, nil)
	if err == nil {
		t.Fatal("expected a 404 to surface as an error")
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-retryable status, got %d", attempts)
	}
}

func TestSetAuthUsesTargetToken(t *testing.T) {
	var got string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.Write([]byte(`{}`)) //nolint:errcheck
	})
	if err := client.RESTRequest(http.MethodGet, client.URL(""), nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "TargetToken tok" {
		t.Fatalf("expected TargetToken auth header, got %q", got)
	}
}

func TestGetRawReturnsBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hello":"world"}`)) //nolint:errcheck
	})
	b, err := client.GetRaw(client.URL(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(b) != `{"hello":"world"}` {
		t.Fatalf("unexpected body: %s", b)
	}
}
