package download

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edgefleet/hawkbit-agent/action"
	"github.com/edgefleet/hawkbit-agent/config"
	"github.com/edgefleet/hawkbit-agent/ddiclient"
	"github.com/edgefleet/hawkbit-agent/feedback"
)

type fakeFeedback struct {
	sent       []*feedback.Payload
	installErr error
	installed  *action.Artifact
}

func (f *fakeFeedback) SendFeedback(url string, p *feedback.Payload) error {
	f.sent = append(f.sent, p)
	return nil
}

func (f *fakeFeedback) HandOffToInstall(art *action.Artifact) error {
	f.installed = art
	return f.installErr
}

func newTestClient(t *testing.T) *ddiclient.Client {
	t.Helper()
	cfg := &config.Config{
		HawkbitServer: "unused.invalid",
		TargetName:    "device-1",
		TenantID:      "DEFAULT",
		SSLVerify:     true,
		Timeout:       5 * time.Second,
		LowSpeedTime:  60 * time.Second,
		LowSpeedRate:  1,
	}
	client, err := ddiclient.New(cfg)
	if err != nil {
		t.Fatalf("ddiclient.New: %v", err)
	}
	return client
}

// sha1("the quick brown fox") = ced71fa7235231bed383facfdc41c4ddcc22ecf1
const bundleBody = "the quick brown fox"
const bundleSha1 = "ced71fa7235231bed383facfdc41c4ddcc22ecf1"

func TestWorkerHappyPathWithInstall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(bundleBody)) //nolint:errcheck
	}))
	defer srv.Close()

	active := action.New()
	active.Begin("42")

	dest := filepath.Join(t.TempDir(), "bundle.raucb")
	fb := &fakeFeedback{}
	w := &Worker{
		Active:   active,
		Client:   newTestClient(t),
		Feedback: fb,
		DestPath: dest,
	}

	art := &action.Artifact{
		Name: "rootfs", Version: "1.0", SHA1: bundleSha1,
		DownloadURL: srv.URL, FeedbackURL: "http://feedback.invalid",
		DoInstall: true,
	}
	w.Run(art)

	if fb.installed == nil {
		t.Fatal("expected HandOffToInstall to be called")
	}
	if active.State() != action.Installing {
		t.Fatalf("expected state Installing after hand-off, got %s", active.State())
	}
	if len(fb.sent) == 0 {
		t.Fatal("expected at least one progress feedback to be sent")
	}
}

func TestWorkerChecksumMismatchFailsClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not the expected content")) //nolint:errcheck
	}))
	defer srv.Close()

	active := action.New()
	active.Begin("7")

	dest := filepath.Join(t.TempDir(), "bundle.raucb")
	fb := &fakeFeedback{}
	w := &Worker{
		Active:   active,
		Client:   newTestClient(t),
		Feedback: fb,
		DestPath: dest,
	}

	art := &action.Artifact{
		Name: "rootfs", Version: "1.0", SHA1: bundleSha1,
		DownloadURL: srv.URL, FeedbackURL: "http://feedback.invalid",
		DoInstall: true,
	}
	w.Run(art)

	if active.State() != action.None {
		t.Fatalf("expected action reset to None after failure, got %s", active.State())
	}
	if fb.installed != nil {
		t.Fatal("expected install to never be invoked on checksum mismatch")
	}
	if _, err := os.Stat(dest); err == nil {
		t.Fatal("expected the bad download to be removed")
	}

	found := false
	for _, p := range fb.sent {
		if p.Status.Result.Finished == feedback.FinishedFailure {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a failure feedback payload to have been sent")
	}
}

func TestWorkerNoInstallWithAvailableWindowMarksSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(bundleBody)) //nolint:errcheck
	}))
	defer srv.Close()

	active := action.New()
	active.Begin("1")

	dest := filepath.Join(t.TempDir(), "bundle.raucb")
	fb := &fakeFeedback{}
	w := &Worker{Active: active, Client: newTestClient(t), Feedback: fb, DestPath: dest}

	art := &action.Artifact{
		SHA1: bundleSha1, DownloadURL: srv.URL, FeedbackURL: "http://feedback.invalid",
		DoInstall: false, MaintenanceWindow: "available",
	}
	w.Run(art)

	if active.State() != action.Success {
		t.Fatalf("expected Success, got %s", active.State())
	}
}

func TestWorkerNoInstallWithUnavailableWindowResets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(bundleBody)) //nolint:errcheck
	}))
	defer srv.Close()

	active := action.New()
	active.Begin("1")

	dest := filepath.Join(t.TempDir(), "bundle.raucb")
	fb := &fakeFeedback{}
	w := &Worker{Active: active, Client: newTestClient(t), Feedback: fb, DestPath: dest}

	art := &action.Artifact{
		SHA1: bundleSha1, DownloadURL: srv.URL, FeedbackURL: "http://feedback.invalid",
		DoInstall: false, MaintenanceWindow: "unrecognized-value",
	}
	w.Run(art)

	if active.State() != action.None {
		t.Fatalf("expected reset to None for a non-available maintenance window, got %s", active.State())
	}
}

func TestWorkerCancelBeforeDownloadStarts(t *testing.T) {
	active := action.New()
	active.Begin("1")
	active.Transition(action.CancelRequested)

	dest := filepath.Join(t.TempDir(), "bundle.raucb")
	fb := &fakeFeedback{}
	w := &Worker{Active: active, Client: newTestClient(t), Feedback: fb, DestPath: dest}

	art := &action.Artifact{DownloadURL: "http://unused.invalid", FeedbackURL: "http://feedback.invalid"}
	w.Run(art)

	if active.State() != action.None {
		t.Fatalf("expected reset to None after cancel, got %s", active.State())
	}
	if len(fb.sent) != 0 {
		t.Fatal("cancel before the download starts sends no feedback")
	}
}
