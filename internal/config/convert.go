package config

import (
	"strings"

	"github.com/danmuck/cictl/internal/bootstrap"
	"github.com/danmuck/cictl/internal/upload"
)

// BootstrapOptions overlays the file settings onto bootstrap defaults.
func (c BootstrapConfig) BootstrapOptions() bootstrap.Options {
	opts := bootstrap.DefaultOptions()
	if c.Brew.Update != nil {
		opts.Brew.Update = *c.Brew.Update
	}
	opts.Brew.Taps = c.Brew.Taps
	opts.Brew.Packages = c.Brew.Packages
	opts.Brew.BootstrapIfMissing = c.Brew.BootstrapIfMissing
	opts.Brew.BootstrapCommand = c.Brew.BootstrapCommand

	if c.Xvfb.Enabled != nil {
		opts.Xvfb.Enabled = *c.Xvfb.Enabled
	}
	if s := strings.TrimSpace(c.Xvfb.Script); s != "" {
		opts.Xvfb.Script = s
	}
	if d := strings.TrimSpace(c.Xvfb.Display); d != "" {
		opts.Xvfb.Display = d
	}
	if strings.TrimSpace(c.Xvfb.Settle) != "" {
		settle, _ := parseOptionalDuration("xvfb.settle", c.Xvfb.Settle)
		opts.Xvfb.Settle = settle
	}

	opts.Choco.Packages = c.Choco.Packages
	return opts
}

// UploadConfig overlays the file settings onto upload defaults. Credentials
// other than the user name come from the environment only.
func (c UploadConfig) UploadConfig() upload.Config {
	cfg := upload.DefaultConfig()
	cfg.URL = strings.TrimSpace(c.URL)
	cfg.User = c.User
	if t, err := upload.ParseTransport(c.Transport); err == nil {
		cfg.Transport = t
	}
	if c.Attempts > 0 {
		cfg.Attempts = c.Attempts
	}
	if d, _ := parseOptionalDuration("backoff", c.Backoff); d > 0 {
		cfg.Backoff.InitialDelay = d
	}
	if d, _ := parseOptionalDuration("max_backoff", c.MaxBackoff); d > 0 {
		cfg.Backoff.MaxDelay = d
	}
	if d, _ := parseOptionalDuration("timeout", c.Timeout); d > 0 {
		cfg.Timeout = d
	}
	cfg.RateLimit = c.RateLimit
	if p := strings.TrimSpace(c.CurlPath); p != "" {
		cfg.CurlPath = p
	}
	cfg.CAFile = strings.TrimSpace(c.CAFile)
	return cfg
}
