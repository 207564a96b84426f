// Package cmn provides common low-level types and utilities shared by every
// component of the agent: error taxonomy, bool parsing, checksum helpers and
// the idempotent-close StopCh primitive.
package cmn

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// HTTPError wraps a response whose status the client does not accept as
// success (anything but 200 for REST calls). Only GET/PUT/POST against the DDI
// endpoints are ever issued, so Method is always one of those three.
type HTTPError struct {
	Status  int
	Method  string
	URLPath string
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URLPath, e.Status, e.Message)
}

// IsConflictOrTooManyRequests reports whether the error is the pair of HTTP
// statuses the DDI client retries on (409 Conflict, 429 Too Many Requests).
func IsConflictOrTooManyRequests(err error) bool {
	herr, ok := errors.Cause(err).(*HTTPError)
	return ok && (herr.Status == http.StatusConflict || herr.Status == http.StatusTooManyRequests)
}

// IsUnauthorized reports whether the error is HTTP 401, the case the poll
// loop logs specially (which token to check) without changing its backoff.
func IsUnauthorized(err error) bool {
	herr, ok := errors.Cause(err).(*HTTPError)
	return ok && herr.Status == http.StatusUnauthorized
}

// StatusCode returns the HTTP status carried by err, 200 for a nil err, or
// -1 if a non-nil err did not originate from an HTTP response.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if herr, ok := errors.Cause(err).(*HTTPError); ok {
		return herr.Status
	}
	return -1
}

// TransportError wraps a low-level connection failure and records whether it
// belongs to the Download Worker's resumable-code set (spec §4.5).
type TransportError struct {
	Op        string
	Err       error
	resumable bool
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// Resumable reports whether the Download Worker should retry after this
// error instead of failing the action outright.
func (e *TransportError) Resumable() bool { return e.resumable }

// NewTransportError classifies err against the resumable-code set named in
// spec §4.5: timeout, resolve failure, connect failure, partial file,
// send/recv error, HTTP/2 framing or stream error.
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err, resumable: isResumable(err)}
}

// ProtocolError covers malformed or structurally-invalid DDI responses: JSON
// parse failures, missing required JSONPath fields, multi-chunk/multi-artifact
// deployments, checksum mismatches.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return e.Reason }

// NewProtocolError builds a ProtocolError with a formatted reason.
func NewProtocolError(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// LifecycleError covers Action Coordinator rejections that are informational
// rather than failures: already-in-progress, cancel-after-install-start,
// stream-install rejection.
type LifecycleError struct {
	Kind   string
	Reason string
}

func (e *LifecycleError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Reason) }

// Lifecycle error kinds (spec §7 "Action lifecycle").
const (
	LifecycleAlreadyInProgress = "already-in-progress"
	LifecycleCancelation       = "cancelation"
	LifecycleStreamInstall     = "stream-install"
)

// NewLifecycleError builds a LifecycleError of the given kind.
func NewLifecycleError(kind, reason string) *LifecycleError {
	return &LifecycleError{Kind: kind, Reason: reason}
}

// ConfigError covers configuration-file problems: missing required key,
// mutually exclusive keys both set, parse error, invalid timeout ordering.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return e.Reason }

// NewConfigError builds a ConfigError with a formatted reason.
func NewConfigError(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}
