package cmn

import (
	"errors"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// isResumable implements the exact resumable-code set spec §4.5 requires:
// operation timed out, could-not-resolve-host, could-not-connect,
// partial-file, send-error, recv-error, HTTP/2 framing error, HTTP/2 stream
// error. Anything else (TLS failures, 4xx/5xx HTTP statuses) is NOT
// resumable and terminates the download worker's retry loop.
func isResumable(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true // could-not-resolve-host
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) || errors.Is(opErr.Err, syscall.ECONNRESET) {
			return true // could-not-connect / recv-error
		}
	}

	if errors.Is(err, syscall.EPIPE) {
		return true // send-error
	}

	if errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return isResumable(urlErr.Err)
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "unexpected EOF"): // partial-file
		return true
	case strings.Contains(msg, "connection reset by peer"): // recv-error
		return true
	case strings.Contains(msg, "broken pipe"): // send-error
		return true
	case strings.Contains(msg, "no such host"): // could-not-resolve-host
		return true
	case strings.Contains(msg, "connection refused"): // could-not-connect
		return true
	case strings.Contains(msg, "http2: stream"): // HTTP/2 stream error
		return true
	case strings.Contains(msg, "http2: frame"), strings.Contains(msg, "INTERNAL_ERROR"): // HTTP/2 framing error
		return true
	}
	return false
}
