// Package coordinator implements the Action Coordinator (spec §4.4): it
// owns the single Active Action, serializes deployment/cancel/install
// progress, and is the only thing that decides what to tell the hawkBit
// server in response to any of them.
package coordinator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"golang.org/x/sys/unix"

	"github.com/edgefleet/hawkbit-agent/action"
	"github.com/edgefleet/hawkbit-agent/cmn"
	"github.com/edgefleet/hawkbit-agent/cmn/log"
	"github.com/edgefleet/hawkbit-agent/config"
	"github.com/edgefleet/hawkbit-agent/ddiclient"
	"github.com/edgefleet/hawkbit-agent/download"
	"github.com/edgefleet/hawkbit-agent/feedback"
	"github.com/edgefleet/hawkbit-agent/install"
)

// Reboot is the hook invoked on a successful installed-with-reboot-enabled
// outcome; swapped out in tests.
type Reboot func() error

// Coordinator wires the client, config, Active Action and the Download
// Worker / Install Driver together.
type Coordinator struct {
	Active *action.Active
	Client *ddiclient.Client
	Cfg    *config.Config
	Logger *log.Named
	Reboot Reboot

	newDriver func() (*install.Driver, error)
}

// New builds a Coordinator with its Active Action freshly reset to None.
func New(cfg *config.Config, client *ddiclient.Client, logger *log.Named) *Coordinator {
	return &Coordinator{
		Active:    action.New(),
		Client:    client,
		Cfg:       cfg,
		Logger:    logger,
		Reboot:    defaultReboot,
		newDriver: install.NewDriver,
	}
}

func defaultReboot() error {
	return unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART)
}

// ProcessDeployment implements spec §4.4's process_deployment, given the raw
// base-resource body (so the href in _links.deploymentBase can be read).
func (c *Coordinator) ProcessDeployment(baseBody []byte) error {
	href := gjson.GetBytes(baseBody, "_links.deploymentBase.href").String()
	if href == "" {
		return cmn.NewProtocolError("missing _links.deploymentBase.href")
	}

	id := hrefID(href)
	if !c.Active.Begin(id) {
		return cmn.NewLifecycleError(cmn.LifecycleAlreadyInProgress, "action "+id+" already in progress")
	}

	body, err := c.Client.GetRaw(c.deploymentURL(href))
	if err != nil {
		c.Active.Fail()
		return err
	}

	return c.handleDeployment(id, body)
}

func (c *Coordinator) deploymentURL(href string) string {
	return href // the server returns an absolute/relative href we can GET as-is
}

func (c *Coordinator) handleDeployment(id string, body []byte) error {
	downloadMode := gjson.GetBytes(body, "deployment.download").String()
	updateMode := gjson.GetBytes(body, "deployment.update").String()
	if downloadMode == "" || updateMode == "" {
		c.Active.Fail()
		return cmn.NewProtocolError("deployment missing required download/update fields")
	}

	if downloadMode == "skip" {
		c.Active.Reset()
		return nil
	}

	if updateMode == "skip" && id == c.Active.StagedID() {
		// Same action id as the bundle already downloaded and staged: still
		// waiting on its install window, nothing new to fetch this poll.
		c.Active.Reset()
		return nil
	}

	if stagedID := c.Active.StagedID(); stagedID != "" && stagedID != id {
		// A different action id supersedes whatever download-only bundle
		// was staged before it; drop it so the fresh download starts clean.
		os.Remove(c.Cfg.BundleDownloadLocation) //nolint:errcheck
		c.Active.MarkStaged("")
	}

	chunks := gjson.GetBytes(body, "deployment.chunks").Array()
	doInstall := updateMode != "skip"

	if len(chunks) != 1 {
		return c.rejectUnsupported(id, "cannot handle multiple chunks")
	}
	artifacts := chunks[0].Get("artifacts").Array()
	if len(artifacts) != 1 {
		return c.rejectUnsupported(id, "cannot handle multiple artifacts")
	}
	chunk := chunks[0]
	art := artifacts[0]

	feedbackURL := c.feedbackURL(id)
	artifact := &action.Artifact{
		Name:              chunk.Get("name").String(),
		Version:           chunk.Get("version").String(),
		Size:              art.Get("size").Int(),
		SHA1:              art.Get("hashes.sha1").String(),
		FeedbackURL:       feedbackURL,
		MaintenanceWindow: gjson.GetBytes(body, "deployment.maintenanceWindow").String(),
		DoInstall:         doInstall,
	}
	if href := art.Get("_links.download.href").String(); href != "" {
		artifact.DownloadURL = href
	} else {
		artifact.DownloadURL = art.Get("_links.download-http\\.href").String()
	}

	if artifact.DownloadURL == "" {
		return c.rejectUnsupported(id, "no download href in artifact")
	}

	c.Active.SetArtifact(artifact)

	if c.Cfg.StreamBundle {
		return c.startStreaming(id, artifact)
	}

	if ok, err := c.hasFreeSpace(artifact.Size); err != nil || !ok {
		c.sendTerminal(feedbackURL, id, false, "insufficient disk space for download")
		c.Active.Fail()
		if err != nil {
			return err
		}
		return errors.Errorf("insufficient free space for artifact of size %d", artifact.Size)
	}

	w := &download.Worker{
		Active:   c.Active,
		Client:   c.Client,
		Feedback: c,
		Resume:   c.Cfg.ResumeDownloads,
		DestPath: c.Cfg.BundleDownloadLocation,
		SendAuth: c.Cfg.SendDownloadAuthentication,
	}
	go w.Run(artifact)
	return nil
}

func (c *Coordinator) rejectUnsupported(id, reason string) error {
	url := c.feedbackURL(id)
	c.sendTerminal(url, id, false, fmt.Sprintf("Deployment %s unsupported: %s.", id, reason))
	c.Active.Fail()
	return cmn.NewProtocolError("deployment %s unsupported: %s", id, reason)
}

func (c *Coordinator) startStreaming(id string, art *action.Artifact) error {
	if !c.Active.CompareAndTransition(action.Processing, action.Installing) {
		return cmn.NewLifecycleError(cmn.LifecycleCancelation, "canceled before streaming install began")
	}
	return c.HandOffToInstall(art)
}

// hasFreeSpace checks available space on the download directory's
// filesystem against the artifact size (spec §4.4 "verify free disk space").
func (c *Coordinator) hasFreeSpace(size int64) (bool, error) {
	dir := filepath.Dir(c.Cfg.BundleDownloadLocation)
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return false, errors.Wrap(err, "statfs")
	}
	avail := int64(stat.Bavail) * int64(stat.Bsize) //nolint:unconvert
	return avail >= size, nil
}

// ProcessCancel implements spec §4.4's process_cancel.
func (c *Coordinator) ProcessCancel(baseBody []byte) error {
	href := gjson.GetBytes(baseBody, "_links.cancelAction.href").String()
	if href == "" {
		return cmn.NewProtocolError("missing _links.cancelAction.href")
	}

	body, err := c.Client.GetRaw(href)
	if err != nil {
		return err
	}
	stopID := gjson.GetBytes(body, "cancelAction.stopId").String()
	feedbackURL := c.cancelFeedbackURL(hrefID(href))

	if !c.Active.RequestCancel(stopID) {
		// Either the stopId is unknown/not in progress, or the action
		// already concluded: spec says acknowledge unless installation
		// already started.
		st := c.Active.State()
		if st == action.Installing {
			return c.sendCancelFeedback(feedbackURL, stopID, false, "Cancelation impossible, installation started already.")
		}
		if st == action.Success || st == action.Error {
			return nil // already concluded: no feedback
		}
		return c.sendCancelFeedback(feedbackURL, stopID, true, "")
	}

	final := c.Active.WaitUntilTerminalOrInstalling()
	switch final {
	case action.Canceled:
		return c.sendCancelFeedback(feedbackURL, stopID, true, "Action canceled.")
	case action.Installing:
		return c.sendCancelFeedback(feedbackURL, stopID, false, "Cancelation impossible, installation started already.")
	case action.Success, action.Error:
		return nil
	default:
		return c.sendCancelFeedback(feedbackURL, stopID, true, "")
	}
}

func (c *Coordinator) sendCancelFeedback(url, actionID string, acked bool, detail string) error {
	var p *feedback.Payload
	if acked {
		p = feedback.CancelAcknowledged(actionID, detail)
	} else {
		p = feedback.CancelRejected(actionID, detail)
	}
	return c.SendFeedback(url, p)
}

// SendFeedback implements download.Feedback: POST the payload to url.
func (c *Coordinator) SendFeedback(url string, p *feedback.Payload) error {
	if err := c.Client.RESTRequest("POST", url, p, nil); err != nil {
		c.Logger.Warn("feedback post failed", log.Err(err))
		return err
	}
	return nil
}

// HandOffToInstall implements download.Feedback: run the Install Driver
// (synchronously, since §4.5 step "invoke the Install Driver synchronously
// on this thread"), draining its progress channel into feedback and
// handling the terminal status.
func (c *Coordinator) HandOffToInstall(art *action.Artifact) error {
	driver, err := c.newDriver()
	if err != nil {
		return errors.Wrap(err, "connecting to install executor")
	}
	defer driver.Close()

	ctx := install.NewContext(c.bundleLocation(art))
	if c.Cfg.StreamBundle {
		ctx.StreamAuthHeader = c.streamAuthHeader()
		ctx.StreamTLSVerify = c.Cfg.SSLVerify
		if c.Cfg.Auth.SSLKey != "" {
			ctx.StreamTLSKey = c.Cfg.Auth.SSLKey
			ctx.StreamTLSCert = c.Cfg.Auth.SSLCert
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for line := range ctx.Progress {
			c.SendFeedback(art.FeedbackURL, feedback.Progress(c.Active.ID(), line)) //nolint:errcheck
		}
	}()

	driver.Run(ctx)
	<-done

	exit := <-ctx.Terminal
	return c.finishInstall(art, exit)
}

func (c *Coordinator) finishInstall(art *action.Artifact, exit int) error {
	success := exit == 0
	if success {
		c.Active.Transition(action.Success)
		c.SendFeedback(art.FeedbackURL, feedback.Terminal(c.Active.ID(), true, "Software bundle installed successfully.")) //nolint:errcheck
	} else {
		c.Active.Transition(action.Error)
		c.SendFeedback(art.FeedbackURL, feedback.Terminal(c.Active.ID(), false, fmt.Sprintf("Installation failed with exit code %d.", exit))) //nolint:errcheck
	}

	if !c.Cfg.StreamBundle {
		os.Remove(c.Cfg.BundleDownloadLocation) //nolint:errcheck
	}
	c.Active.Reset()

	if success && c.Cfg.PostUpdateReboot {
		unix.Sync()
		if err := c.Reboot(); err != nil {
			c.Logger.Error("reboot failed", log.Err(err))
			return err
		}
	}
	return nil
}

func (c *Coordinator) bundleLocation(art *action.Artifact) string {
	if c.Cfg.StreamBundle {
		return art.DownloadURL
	}
	return c.Cfg.BundleDownloadLocation
}

func (c *Coordinator) streamAuthHeader() string {
	if c.Cfg.Auth.TargetToken != "" {
		return "Authorization: TargetToken " + c.Cfg.Auth.TargetToken
	}
	if c.Cfg.Auth.GatewayToken != "" {
		return "Authorization: GatewayToken " + c.Cfg.Auth.GatewayToken
	}
	return ""
}

func (c *Coordinator) sendTerminal(url, actionID string, success bool, detail string) {
	c.SendFeedback(url, feedback.Terminal(actionID, success, detail)) //nolint:errcheck
}

func (c *Coordinator) feedbackURL(id string) string {
	return c.Client.URL("/deploymentBase/%s/feedback", id)
}

func (c *Coordinator) cancelFeedbackURL(id string) string {
	return c.Client.URL("/cancelAction/%s/feedback", id)
}

// Identify implements the "PUT configData" step of spec §4.3.
func (c *Coordinator) Identify() error {
	url := c.Client.URL("/configData")
	return c.Client.RESTRequest("PUT", url, feedback.Identify(c.Cfg.Attributes), nil)
}

// hrefID extracts the trailing numeric/opaque action id from a DDI href
// such as ".../deploymentBase/42?c=1".
func hrefID(href string) string {
	path := href
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
