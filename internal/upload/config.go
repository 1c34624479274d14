package upload

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/danmuck/cictl/internal/tools"
)

const (
	EnvUser     = "UPLOAD_USER"
	EnvPassword = "UPLOAD_PASS"
	EnvURL      = "UPLOAD_URL"
)

type Transport string

const (
	TransportHTTP Transport = "http"
	TransportCurl Transport = "curl"
)

var (
	ErrMissingURL       = errors.New("upload: missing upload url")
	ErrUnknownTransport = errors.New("upload: unknown transport")
	ErrNoArtifacts      = errors.New("upload: no artifacts matched")
	ErrUploadFailed     = errors.New("upload: request failed")
)

type Config struct {
	URL       string
	User      string
	Password  string
	Transport Transport
	// Attempts is the total number of tries for the HTTP transport.
	Attempts int
	Backoff  BackoffConfig
	// RateLimit caps requests per second; zero disables limiting.
	RateLimit float64
	Timeout   time.Duration
	// CurlPath overrides the curl binary.
	CurlPath string
	// CAFile is an extra PEM bundle trusted for https endpoints.
	CAFile string
}

func DefaultConfig() Config {
	return Config{
		Transport: TransportHTTP,
		Attempts:  1,
		Backoff:   DefaultBackoff(),
		Timeout:   10 * time.Minute,
		CurlPath:  "curl",
	}
}

// ApplyEnv overlays UPLOAD_USER, UPLOAD_PASS and UPLOAD_URL. Variables that
// are unset or empty leave the current value alone.
func (c *Config) ApplyEnv(lookup tools.LookupFunc) {
	if v := lookup.Getenv(EnvUser); v != "" {
		c.User = v
	}
	if v := lookup.Getenv(EnvPassword); v != "" {
		c.Password = v
	}
	if v := strings.TrimSpace(lookup.Getenv(EnvURL)); v != "" {
		c.URL = v
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return ErrMissingURL
	}
	switch c.Transport {
	case TransportHTTP:
		// curl picks its own default scheme; net/http needs one spelled out
		u, err := url.Parse(c.URL)
		if err != nil {
			return fmt.Errorf("upload: invalid url %q: %w", c.URL, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("upload: url %q must be http or https", c.URL)
		}
	case TransportCurl:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTransport, c.Transport)
	}
	if c.Attempts < 1 {
		return fmt.Errorf("upload: attempts must be >= 1, got %d", c.Attempts)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("upload: rate limit must be >= 0, got %v", c.RateLimit)
	}
	return nil
}

// ParseTransport accepts a transport name, defaulting to http when empty.
func ParseTransport(raw string) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "http", "native":
		return TransportHTTP, nil
	case "curl":
		return TransportCurl, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTransport, raw)
	}
}

// userinfo renders the basic-auth pair the way curl's --user expects it.
func (c Config) userinfo() string {
	return c.User + ":" + c.Password
}
