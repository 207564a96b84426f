package ddiclient

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/pkg/errors"

	"github.com/edgefleet/hawkbit-agent/cmn"
)

// DownloadResult reports what a binary download accomplished.
type DownloadResult struct {
	// AvgSpeedBps is the average transfer speed in bytes/sec.
	AvgSpeedBps float64
	// RangeNotSatisfiable is true on HTTP 416 — treated as "already
	// complete" when resuming (spec §4.1, §9 open question).
	RangeNotSatisfiable bool
}

// Download streams url into the file at dest, starting at resumeFrom bytes
// (0 for a fresh download). Success codes are 200 (full), 206 (partial) and
// 416 (range not satisfiable, the EOF-reached signal when resuming). TCP
// keep-alive is enabled via the shared download transport; the low-speed
// abort (bytes/sec under lowSpeedRate for lowSpeedTime) is enforced here.
func (c *Client) Download(url, dest string, resumeFrom int64, sendAuth bool) (*DownloadResult, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building download request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/octet-stream")
	if resumeFrom > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeFrom))
	}
	if sendAuth {
		c.setAuth(req)
	}

	resp, err := c.download.Do(req)
	if err != nil {
		return nil, cmn.NewTransportError("download "+url, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
		// fall through to copy below
	case http.StatusRequestedRangeNotSatisfiable:
		return &DownloadResult{RangeNotSatisfiable: true}, nil
	default:
		msg, _ := io.ReadAll(resp.Body)
		return nil, &cmn.HTTPError{Status: resp.StatusCode, Method: http.MethodGet, URLPath: url, Message: string(msg)}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if resp.StatusCode == http.StatusPartialContent && resumeFrom > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(dest, flags, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "opening destination file")
	}
	defer f.Close()

	meter := newSpeedMeter(resp.Body, c.cfg.LowSpeedTime, c.cfg.LowSpeedRate)
	n, err := io.Copy(f, meter)
	if err != nil {
		return nil, cmn.NewTransportError("download body "+url, err)
	}

	return &DownloadResult{AvgSpeedBps: meter.avgSpeed(n)}, nil
}
