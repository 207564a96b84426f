// Package config loads and validates the agent's INI-style configuration
// file (spec §6). Load is the sole entry point; everything it returns is
// immutable for the lifetime of the process (spec §3 "Configuration").
package config

import (
	"path/filepath"
	"time"

	"github.com/go-ini/ini"

	"github.com/edgefleet/hawkbit-agent/cmn"
	"github.com/edgefleet/hawkbit-agent/cmn/log"
)

// Auth selects exactly one authentication mode, enforced by validate.
type Auth struct {
	TargetToken  string
	GatewayToken string
	SSLKey       string
	SSLCert      string
	SSLEngine    string
}

// Config is the fully-parsed, validated configuration. Field names mirror
// the spec's §3/§6 key names in CamelCase.
type Config struct {
	// [client]
	HawkbitServer string
	TargetName    string
	Auth          Auth
	TenantID      string
	SSL           bool
	SSLVerify     bool

	BundleDownloadLocation string

	ConnectTimeout time.Duration
	Timeout        time.Duration
	RetryWait      time.Duration

	LowSpeedTime time.Duration
	LowSpeedRate int64 // bytes/sec

	ResumeDownloads           bool
	StreamBundle              bool
	PostUpdateReboot          bool
	SendDownloadAuthentication bool

	LogLevel log.Level

	// [device]
	Attributes map[string]string
}

// ControllerID is the controller identifier the DDI URL path requires; the
// spec treats target_name as both the human label and the controller id.
func (c *Config) ControllerID() string { return c.TargetName }

// Load reads and validates the INI file at path. Distinct failure causes map
// to distinct process exit codes at the call site (spec §6): a missing file
// is distinguished from an invalid one by the caller via os.IsNotExist.
func Load(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, err
	}

	client := f.Section("client")
	device := f.Section("device")

	c := &Config{
		HawkbitServer:              client.Key("hawkbit_server").String(),
		TargetName:                 client.Key("target_name").String(),
		TenantID:                   client.Key("tenant_id").MustString("DEFAULT"),
		BundleDownloadLocation:     client.Key("bundle_download_location").String(),
		Auth: Auth{
			TargetToken:  client.Key("auth_token").String(),
			GatewayToken: client.Key("gateway_token").String(),
			SSLKey:       client.Key("ssl_key").String(),
			SSLCert:      client.Key("ssl_cert").String(),
			SSLEngine:    client.Key("ssl_engine").String(),
		},
		LogLevel: log.Level(client.Key("log_level").MustString("message")),
	}

	c.SSL, err = parseBoolDefault(client.Key("ssl").String(), true)
	if err != nil {
		return nil, cmn.NewConfigError("ssl: %v", err)
	}
	c.SSLVerify, err = parseBoolDefault(client.Key("ssl_verify").String(), true)
	if err != nil {
		return nil, cmn.NewConfigError("ssl_verify: %v", err)
	}
	c.ResumeDownloads, err = parseBoolDefault(client.Key("resume_downloads").String(), false)
	if err != nil {
		return nil, cmn.NewConfigError("resume_downloads: %v", err)
	}
	c.StreamBundle, err = parseBoolDefault(client.Key("stream_bundle").String(), false)
	if err != nil {
		return nil, cmn.NewConfigError("stream_bundle: %v", err)
	}
	c.PostUpdateReboot, err = parseBoolDefault(client.Key("post_update_reboot").String(), false)
	if err != nil {
		return nil, cmn.NewConfigError("post_update_reboot: %v", err)
	}
	c.SendDownloadAuthentication, err = parseBoolDefault(client.Key("send_download_authentication").String(), true)
	if err != nil {
		return nil, cmn.NewConfigError("send_download_authentication: %v", err)
	}

	c.ConnectTimeout = time.Duration(client.Key("connect_timeout").MustInt(20)) * time.Second
	c.Timeout = time.Duration(client.Key("timeout").MustInt(60)) * time.Second
	c.RetryWait = time.Duration(client.Key("retry_wait").MustInt(300)) * time.Second
	c.LowSpeedTime = time.Duration(client.Key("low_speed_time").MustInt(60)) * time.Second
	c.LowSpeedRate = int64(client.Key("low_speed_rate").MustInt(100))

	c.Attributes = make(map[string]string, len(device.Keys()))
	for _, k := range device.Keys() {
		c.Attributes[k.Name()] = k.String()
	}

	if err := validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

func parseBoolDefault(raw string, def bool) (bool, error) {
	if raw == "" {
		return def, nil
	}
	return cmn.ParseBool(raw)
}

func validate(c *Config) error {
	if c.HawkbitServer == "" {
		return cmn.NewConfigError("[client] hawkbit_server is required")
	}
	if c.TargetName == "" {
		return cmn.NewConfigError("[client] target_name is required")
	}

	authModes := 0
	if c.Auth.TargetToken != "" {
		authModes++
	}
	if c.Auth.GatewayToken != "" {
		authModes++
	}
	if c.Auth.SSLKey != "" || c.Auth.SSLCert != "" {
		if c.Auth.SSLKey == "" || c.Auth.SSLCert == "" {
			return cmn.NewConfigError("[client] ssl_key and ssl_cert must both be set")
		}
		authModes++
	}
	if authModes == 0 {
		return cmn.NewConfigError("[client] exactly one of auth_token, gateway_token, or ssl_key+ssl_cert is required")
	}
	if authModes > 1 {
		return cmn.NewConfigError("[client] auth_token, gateway_token, and ssl_key+ssl_cert are mutually exclusive")
	}

	if !c.StreamBundle && c.BundleDownloadLocation == "" {
		return cmn.NewConfigError("[client] bundle_download_location is required unless stream_bundle=true")
	}
	if c.BundleDownloadLocation != "" && !filepath.IsAbs(c.BundleDownloadLocation) {
		return cmn.NewConfigError("[client] bundle_download_location must be an absolute path")
	}

	if c.ConnectTimeout > 0 && c.Timeout > 0 && c.Timeout < c.ConnectTimeout {
		return cmn.NewConfigError("[client] timeout (%s) must be >= connect_timeout (%s)", c.Timeout, c.ConnectTimeout)
	}

	switch log.Level(c.LogLevel) {
	case log.LevelDebug, log.LevelInfo, log.LevelMessage, log.LevelWarning, log.LevelCritical, log.LevelError, log.LevelFatal:
	default:
		return cmn.NewConfigError("[client] log_level %q is invalid", c.LogLevel)
	}

	if len(c.Attributes) == 0 {
		return cmn.NewConfigError("[device] at least one attribute is required")
	}
	for k, v := range c.Attributes {
		if v == "" {
			return cmn.NewConfigError("[device] attribute %q must be non-empty", k)
		}
	}

	return nil
}
