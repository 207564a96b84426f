// Package ddiclient implements authenticated JSON REST calls and streamed
// binary downloads against the hawkBit DDI endpoints (spec §4.1). It makes
// no policy decisions beyond the 409/429 retry; everything else (when to
// poll, what to do with a response) belongs to the poll loop and the Action
// Coordinator.
package ddiclient

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/edgefleet/hawkbit-agent/cmn"
	"github.com/edgefleet/hawkbit-agent/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	userAgent = "hawkbit-agent/1.0"

	// retry policy for HTTP 409/429, spec §4.1.
	maxRetries  = 10
	retryWait   = 1 * time.Second
)

// Client performs the REST and binary-download operations the Poll Loop,
// Action Coordinator and Download Worker need. It is built once, from
// config.Config, at process startup (spec §4.7 "initialize the HTTP
// library's global state once").
type Client struct {
	rest     *http.Client
	download *http.Client
	cfg      *config.Config
	baseURL  string
}

// New builds a Client from the loaded configuration. TLS client-cert auth,
// when configured, is attached to both the REST and download transports.
func New(cfg *config.Config) (*Client, error) {
	tlsConf := &tls.Config{InsecureSkipVerify: !cfg.SSLVerify} //nolint:gosec // operator-controlled via ssl_verify

	if cfg.Auth.SSLCert != "" {
		cert, err := tls.LoadX509KeyPair(cfg.Auth.SSLCert, cfg.Auth.SSLKey)
		if err != nil {
			return nil, errors.Wrap(err, "loading client certificate")
		}
		tlsConf.Certificates = []tls.Certificate{cert}
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		TLSClientConfig:   tlsConf,
		DisableKeepAlives: false, // spec §4.1: "enables TCP keep-alive"
		DialContext:       dialer.DialContext,
	}

	return &Client{
		rest: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		download: &http.Client{
			Transport: transport,
			// no blanket Timeout: the binary download is bounded only by the
			// low-speed abort (spec §5 "Timeouts"), not a fixed deadline.
		},
		cfg:     cfg,
		baseURL: buildBaseURL(cfg),
	}, nil
}

func buildBaseURL(cfg *config.Config) string {
	scheme := "http"
	if cfg.SSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/controller/v1/%s", scheme, cfg.HawkbitServer, cfg.TenantID, cfg.ControllerID())
}

// URL joins the controller base with a suffix, printf-style, matching spec
// §4.1's URL construction rule.
func (c *Client) URL(format string, args ...interface{}) string {
	return c.baseURL + fmt.Sprintf(format, args...)
}

// RESTRequest performs one authenticated JSON REST call. body, when
// non-nil, is marshaled as the request body; out, when non-nil, receives
// the unmarshaled response body. Only HTTP 200 is success; 409/429 are
// retried up to maxRetries times retryWait apart; every other status
// becomes a *cmn.HTTPError.
func (c *Client) RESTRequest(method, url string, body, out interface{}) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshaling request body")
		}
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(retryWait)
		}

		err := c.doREST(method, url, bodyBytes, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if !cmn.IsConflictOrTooManyRequests(err) {
			return err
		}
	}
	return lastErr
}

func (c *Client) doREST(method, url string, body []byte, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return errors.Wrap(err, "building request")
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json;charset=UTF-8")
	if body != nil {
		req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	}
	c.setAuth(req)

	resp, err := c.rest.Do(req)
	if err != nil {
		return cmn.NewTransportError(method+" "+url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return &cmn.HTTPError{Status: resp.StatusCode, Method: method, URLPath: url, Message: string(msg)}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decoding response body")
	}
	return nil
}

// GetRaw performs a retried GET and returns the raw response body, for
// callers (the Poll Loop, the Action Coordinator) that pick fields out of
// the response with gjson rather than unmarshaling into a fixed struct.
func (c *Client) GetRaw(url string) ([]byte, error) {
	var raw []byte
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(retryWait)
		}
		b, err := c.getRawOnce(url)
		if err == nil {
			return b, nil
		}
		lastErr = err
		if !cmn.IsConflictOrTooManyRequests(err) {
			return nil, err
		}
	}
	return raw, lastErr
}

func (c *Client) getRawOnce(url string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json;charset=UTF-8")
	c.setAuth(req)

	resp, err := c.rest.Do(req)
	if err != nil {
		return nil, cmn.NewTransportError("GET "+url, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, &cmn.HTTPError{Status: resp.StatusCode, Method: http.MethodGet, URLPath: url, Message: string(body)}
	}
	return body, nil
}

// setAuth attaches at most one Authorization header, per spec §4.1: at most
// one of TargetToken or GatewayToken is ever configured (validated at
// config-load time), and none is sent under client-certificate auth.
func (c *Client) setAuth(req *http.Request) {
	switch {
	case c.cfg.Auth.TargetToken != "":
		req.Header.Set("Authorization", "TargetToken "+c.cfg.Auth.TargetToken)
	case c.cfg.Auth.GatewayToken != "":
		req.Header.Set("Authorization", "GatewayToken "+c.cfg.Auth.GatewayToken)
	}
}
