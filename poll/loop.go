// Package poll implements the Poll Loop (spec §4.3): a cooperative ticker
// that asks the controller base resource what to do, and dispatches to the
// Action Coordinator.
package poll

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/edgefleet/hawkbit-agent/action"
	"github.com/edgefleet/hawkbit-agent/cmn"
	"github.com/edgefleet/hawkbit-agent/cmn/log"
	"github.com/edgefleet/hawkbit-agent/coordinator"
	"github.com/edgefleet/hawkbit-agent/ddiclient"
)

// tick is the cooperative-scheduling granularity (spec §4.3: "wakes up
// roughly once a second regardless of the configured interval").
const tick = 1 * time.Second

// activeSleep is the poll interval used while an action is in progress,
// overriding config.polling.sleep (spec §4.3); the idle fallback, when
// config.polling.sleep is absent or unparseable, is RetryWait.
const activeSleep = 5 * time.Second

// Loop owns the polling schedule; it holds no action state of its own,
// delegating all of that to the Coordinator.
type Loop struct {
	Client      *ddiclient.Client
	Coordinator *coordinator.Coordinator
	RetryWait   time.Duration
	Logger      *log.Named
	RunOnce     bool

	next time.Time
}

// Run blocks until ctx is canceled (or, in run-once mode, until one poll
// cycle completes), waking every tick to check whether the configured
// interval has elapsed.
func (l *Loop) Run(ctx context.Context) error {
	if l.RunOnce {
		return l.poll(ctx)
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	// Poll immediately on startup, then on the schedule poll() maintains.
	if err := l.poll(ctx); err != nil {
		l.Logger.Warn("poll cycle failed", log.Err(err))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if now.Before(l.next) {
				continue
			}
			if err := l.poll(ctx); err != nil {
				l.Logger.Warn("poll cycle failed", log.Err(err))
			}
		}
	}
}

// poll performs one base-resource fetch and dispatch, then schedules the
// next wakeup. In run-once mode, it additionally blocks until any
// download/install thread process_deployment spawned reaches a terminal
// outcome, and maps that outcome into its own return value so the caller's
// exit code reflects the whole tick, not just the dispatch (spec §4.3, §7).
func (l *Loop) poll(ctx context.Context) error {
	sleep := l.RetryWait

	body, err := l.Client.GetRaw(l.Client.URL(""))
	if err != nil {
		if cmn.IsUnauthorized(err) {
			check := "ssl_key/ssl_cert"
			switch auth := l.Coordinator.Cfg.Auth; {
			case auth.TargetToken != "":
				check = "auth_token"
			case auth.GatewayToken != "":
				check = "gateway_token"
			}
			l.Logger.Warn("server rejected authentication (HTTP 401); check "+check, log.Err(err))
		}
		l.next = time.Now().Add(l.RetryWait)
		return err
	}

	if sleepStr := gjson.GetBytes(body, "config.polling.sleep").String(); sleepStr != "" {
		if d, perr := parseHawkbitDuration(sleepStr); perr == nil {
			sleep = d
		}
	}

	if href := gjson.GetBytes(body, "_links.configData.href").String(); href != "" {
		if err := l.Coordinator.Identify(); err != nil {
			l.Logger.Warn("configData identify failed", log.Err(err))
		}
	}

	var dispatchErr error
	dispatchedDeployment := false
	if gjson.GetBytes(body, "_links.cancelAction.href").Exists() {
		if err := l.Coordinator.ProcessCancel(body); err != nil {
			l.Logger.Warn("process cancel failed", log.Err(err))
		}
	} else if gjson.GetBytes(body, "_links.deploymentBase.href").Exists() {
		dispatchedDeployment = true
		if err := l.Coordinator.ProcessDeployment(body); err != nil {
			l.Logger.Warn("process deployment failed", log.Err(err))
			dispatchErr = err
		}
	}

	if l.RunOnce && dispatchedDeployment {
		// Block for the background Download Worker / Install Driver
		// hand-off process_deployment spawned, so the exit code below
		// reflects the whole tick, not just the synchronous dispatch.
		l.Coordinator.Active.WaitUntilIdle()
	}

	if l.Coordinator.Active.State().InProgress() {
		sleep = activeSleep
	}
	l.next = time.Now().Add(sleep)

	if l.RunOnce {
		if dispatchErr != nil {
			return dispatchErr
		}
		if outcome := l.Coordinator.Active.LastOutcome(); outcome == action.Error || outcome == action.Canceled {
			return errors.Errorf("action concluded in %s", outcome)
		}
	}
	return nil
}

// parseHawkbitDuration parses DDI's "HH:MM:SS" polling-interval format
// (spec §4.3).
func parseHawkbitDuration(s string) (time.Duration, error) {
	var h, m, sec int
	n, err := parseHMS(s, &h, &m, &sec)
	if err != nil || n != 3 {
		return 0, cmn.NewProtocolError("malformed polling interval %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
}

func parseHMS(s string, h, m, sec *int) (int, error) {
	var parts [3]int
	idx := 0
	cur := 0
	digits := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			cur = cur*10 + int(c-'0')
			digits++
		case c == ':':
			if idx >= 3 || digits == 0 {
				return idx, cmn.NewProtocolError("malformed polling interval %q", s)
			}
			parts[idx] = cur
			idx++
			cur = 0
			digits = 0
		default:
			return idx, cmn.NewProtocolError("malformed polling interval %q", s)
		}
	}
	if digits == 0 || idx >= 3 {
		return idx, cmn.NewProtocolError("malformed polling interval %q", s)
	}
	parts[idx] = cur
	idx++
	*h, *m, *sec = parts[0], parts[1], parts[2]
	return idx, nil
}
