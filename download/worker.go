// Package download implements the Download Worker (spec §4.5): a single
// background task per deployment that resumes an interrupted transfer,
// validates its checksum, reports feedback and either finishes the action
// or hands off to the Install Driver.
package download

import (
	"fmt"
	"os"
	"time"

	"github.com/edgefleet/hawkbit-agent/action"
	"github.com/edgefleet/hawkbit-agent/cmn"
	"github.com/edgefleet/hawkbit-agent/ddiclient"
	"github.com/edgefleet/hawkbit-agent/feedback"
)

// retryDelay is the fixed pause between resumable-error retries (spec §4.5
// step 5: "sleep 500 ms and retry").
const retryDelay = 500 * time.Millisecond

// Feedback is the narrow surface the worker needs from the coordinator to
// send feedback and to hand off to install — kept as an interface so
// download does not import coordinator (which imports download).
type Feedback interface {
	SendFeedback(url string, p *feedback.Payload) error
	HandOffToInstall(art *action.Artifact) error
}

// Worker drives a single artifact's download to completion, cancellation or
// failure.
type Worker struct {
	Active   *action.Active
	Client   *ddiclient.Client
	Feedback Feedback
	Resume   bool
	DestPath string
	// SendAuth gates the Authorization header on the binary download (spec
	// §4.1 config key send_download_authentication).
	SendAuth bool
}

// Run executes the download loop described in spec §4.5. It returns once the
// action has reached a terminal outcome for this worker's involvement:
// Canceled, Error, Success, or (do_install=false path) back to None.
func (w *Worker) Run(art *action.Artifact) {
	if !w.Active.CompareAndTransition(action.Processing, action.Downloading) {
		// A cancel beat us to the checkpoint at entry (spec §4.5 step 1).
		w.cancel(art)
		return
	}

	resumeFrom := w.statDestination()

	for {
		if w.Active.State() == action.CancelRequested {
			w.cancel(art)
			return
		}

		result, err := w.Client.Download(art.DownloadURL, w.DestPath, resumeFrom, w.SendAuth)
		if err != nil {
			if terr, ok := err.(*cmn.TransportError); ok && terr.Resumable() && w.Resume {
				time.Sleep(retryDelay)
				resumeFrom = w.statDestination()
				continue
			}
			w.fail(art, err.Error())
			return
		}

		if w.Active.State() == action.CancelRequested {
			w.cancel(art)
			return
		}

		w.onDownloaded(art, result)
		return
	}
}

// statDestination returns the existing file size to resume from, or
// truncates and returns 0 when resuming is disabled (spec §4.5 step 2).
func (w *Worker) statDestination() int64 {
	if !w.Resume {
		os.Remove(w.DestPath) //nolint:errcheck // best-effort truncate-by-removal
		return 0
	}
	fi, err := os.Stat(w.DestPath)
	if err != nil {
		return 0
	}
	return fi.Size()
}

func (w *Worker) onDownloaded(art *action.Artifact, result *ddiclient.DownloadResult) {
	speedMB := result.AvgSpeedBps / (1024 * 1024)
	w.send(art.FeedbackURL, feedback.Progress(w.Active.ID(), formatSpeed(speedMB)))

	sum, err := cmn.Sha1File(w.DestPath)
	if err != nil {
		w.fail(art, "reading downloaded file: "+err.Error())
		return
	}
	if sum != art.SHA1 {
		w.fail(art, formatChecksumMismatch(art, sum))
		return
	}

	if !art.DoInstall {
		w.finishNoInstall(art)
		return
	}

	w.send(art.FeedbackURL, feedback.Progress(w.Active.ID(), "File checksum OK."))

	if w.Active.State() == action.CancelRequested {
		w.cancel(art)
		return
	}

	if !w.Active.CompareAndTransition(action.Downloading, action.Installing) {
		w.cancel(art)
		return
	}

	if err := w.Feedback.HandOffToInstall(art); err != nil {
		w.fail(art, err.Error())
	}
}

// finishNoInstall implements the do_install=false branching of spec §4.5,
// including the §9 open-question resolution: only an explicit
// maintenance_window of "available" (or its absence) lets the bundle be
// marked Success and kept; any other value — including unrecognized ones —
// is treated as "unavailable" and the action resets to None so the next
// poll re-evaluates installation.
func (w *Worker) finishNoInstall(art *action.Artifact) {
	w.Active.MarkStaged(w.Active.ID())
	if art.MaintenanceWindow == "" || art.MaintenanceWindow == "available" {
		w.Active.Transition(action.Success)
		w.send(art.FeedbackURL, feedback.Terminal(w.Active.ID(), true, "Software bundle downloaded successfully."))
		return
	}
	w.Active.Reset()
}

func (w *Worker) fail(art *action.Artifact, detail string) {
	w.Active.Transition(action.Error)
	w.send(art.FeedbackURL, feedback.Terminal(w.Active.ID(), false, detail))
	os.Remove(w.DestPath) //nolint:errcheck
	w.Active.Reset()
}

func (w *Worker) cancel(art *action.Artifact) {
	w.Active.Transition(action.Canceled)
	if art != nil {
		os.Remove(w.DestPath) //nolint:errcheck
	}
	w.Active.Reset()
}

func (w *Worker) send(url string, p *feedback.Payload) {
	w.Feedback.SendFeedback(url, p) //nolint:errcheck // logged by the coordinator's SendFeedback impl
}

func formatSpeed(mbPerSec float64) string {
	return fmt.Sprintf("Download complete. %.2f MB/s", mbPerSec)
}

func formatChecksumMismatch(art *action.Artifact, got string) string {
	return fmt.Sprintf("Software: %s V%s. Invalid checksum: %s expected %s", art.Name, art.Version, got, art.SHA1)
}
