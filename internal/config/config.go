package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

var ErrInvalidConfig = errors.New("invalid config")

// ProjectConfig is the optional ci.toml checked into a repository.
type ProjectConfig struct {
	Bootstrap BootstrapConfig `toml:"bootstrap"`
	Upload    UploadConfig    `toml:"upload"`
}

type BootstrapConfig struct {
	Strict bool        `toml:"strict"`
	Brew   BrewConfig  `toml:"brew"`
	Xvfb   XvfbConfig  `toml:"xvfb"`
	Choco  ChocoConfig `toml:"choco"`
}

type BrewConfig struct {
	Update             *bool    `toml:"update"`
	Taps               []string `toml:"taps"`
	Packages           []string `toml:"packages"`
	BootstrapIfMissing bool     `toml:"bootstrap_if_missing"`
	BootstrapCommand   []string `toml:"bootstrap_command"`
}

type XvfbConfig struct {
	Enabled *bool  `toml:"enabled"`
	Script  string `toml:"script"`
	Display string `toml:"display"`
	Settle  string `toml:"settle"`
}

type ChocoConfig struct {
	Packages []string `toml:"packages"`
}

type UploadConfig struct {
	URL         string   `toml:"url"`
	User        string   `toml:"user"`
	Suffixes    []string `toml:"suffixes"`
	Transport   string   `toml:"transport"`
	Attempts    int      `toml:"attempts"`
	Backoff     string   `toml:"backoff"`
	MaxBackoff  string   `toml:"max_backoff"`
	RateLimit   float64  `toml:"rate_limit"`
	Timeout     string   `toml:"timeout"`
	Pushgateway string   `toml:"pushgateway"`
	Strict      bool     `toml:"strict"`
	CurlPath    string   `toml:"curl_path"`
	CAFile      string   `toml:"ca_file"`
}

// LoadProjectConfig reads and validates path. A missing file is an error;
// callers decide whether the file is optional.
func LoadProjectConfig(path string) (ProjectConfig, error) {
	var cfg ProjectConfig
	if err := loadToml(path, &cfg); err != nil {
		return ProjectConfig{}, err
	}
	if err := ValidateProjectConfig(cfg); err != nil {
		return ProjectConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateProjectConfig(cfg ProjectConfig) error {
	if err := ValidateBootstrapConfig(cfg.Bootstrap); err != nil {
		return fmt.Errorf("%w: bootstrap: %w", ErrInvalidConfig, err)
	}
	if err := ValidateUploadConfig(cfg.Upload); err != nil {
		return fmt.Errorf("%w: upload: %w", ErrInvalidConfig, err)
	}
	return nil
}

func ValidateBootstrapConfig(cfg BootstrapConfig) error {
	if _, err := parseOptionalDuration("xvfb.settle", cfg.Xvfb.Settle); err != nil {
		return err
	}
	if len(cfg.Brew.BootstrapCommand) > 0 && strings.TrimSpace(cfg.Brew.BootstrapCommand[0]) == "" {
		return fmt.Errorf("brew.bootstrap_command must start with a program")
	}
	for i, pkg := range cfg.Brew.Packages {
		if strings.HasPrefix(strings.TrimSpace(pkg), "-") {
			return fmt.Errorf("brew.packages[%d] %q looks like a flag", i, pkg)
		}
	}
	for i, pkg := range cfg.Choco.Packages {
		if strings.HasPrefix(strings.TrimSpace(pkg), "-") {
			return fmt.Errorf("choco.packages[%d] %q looks like a flag", i, pkg)
		}
	}
	return nil
}

func ValidateUploadConfig(cfg UploadConfig) error {
	if cfg.Attempts < 0 {
		return fmt.Errorf("attempts must be >= 0")
	}
	if cfg.RateLimit < 0 {
		return fmt.Errorf("rate_limit must be >= 0")
	}
	for _, field := range []struct{ name, raw string }{
		{"backoff", cfg.Backoff},
		{"max_backoff", cfg.MaxBackoff},
		{"timeout", cfg.Timeout},
	} {
		if _, err := parseOptionalDuration(field.name, field.raw); err != nil {
			return err
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Transport)) {
	case "", "http", "native", "curl":
	default:
		return fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	return nil
}

func parseOptionalDuration(name, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", name)
	}
	return d, nil
}
