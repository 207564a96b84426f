package poll

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/edgefleet/hawkbit-agent/cmn/log"
	"github.com/edgefleet/hawkbit-agent/config"
	"github.com/edgefleet/hawkbit-agent/coordinator"
	"github.com/edgefleet/hawkbit-agent/ddiclient"
	"go.uber.org/zap"
)

func TestParseHawkbitDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"00:00:30": 30 * time.Second,
		"00:05:00": 5 * time.Minute,
		"01:00:00": time.Hour,
	}
	for in, want := range cases {
		got, err := parseHawkbitDuration(in)
		if err != nil {
			t.Fatalf("parseHawkbitDuration(%q) returned error: %v", in, err)
		}
		if got != want {
			t.Errorf("parseHawkbitDuration(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestParseHawkbitDurationRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "30", "30:00", "aa:bb:cc", "00:00:00:00"} {
		if _, err := parseHawkbitDuration(in); err == nil {
			t.Errorf("expected error parsing %q", in)
		}
	}
}

func newTestLoop(t *testing.T, body string) *Loop {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		HawkbitServer:          u.Host,
		TargetName:             "device-1",
		TenantID:               "DEFAULT",
		Timeout:                5 * time.Second,
		BundleDownloadLocation: filepath.Join(t.TempDir(), "bundle.raucb"),
	}
	client, err := ddiclient.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	coord := coordinator.New(cfg, client, log.NewNamed(zap.NewNop(), "test"))

	return &Loop{
		Client:      client,
		Coordinator: coord,
		RetryWait:   time.Second,
		Logger:      log.NewNamed(zap.NewNop(), "poll"),
		RunOnce:     true,
	}
}

func TestPollIdleCycleUsesServerSleep(t *testing.T) {
	l := newTestLoop(t, `{"config":{"polling":{"sleep":"00:00:45"}}}`)
	if err := l.poll(nil); err != nil { //nolint:staticcheck // nil context ok: poll never checks it
		t.Fatalf("poll returned error: %v", err)
	}
	if time.Until(l.next) > 45*time.Second || time.Until(l.next) < 40*time.Second {
		t.Fatalf("expected next poll scheduled ~45s out, got %s", time.Until(l.next))
	}
}
