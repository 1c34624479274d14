package upload

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// newHTTPClient returns nil when the default client is good enough.
func newHTTPClient(cfg Config) (*http.Client, error) {
	caPath := strings.TrimSpace(cfg.CAFile)
	if caPath == "" {
		return nil, nil
	}
	tlsCfg, err := clientTLSConfig(caPath)
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsCfg
	return &http.Client{Timeout: cfg.Timeout, Transport: transport}, nil
}

// clientTLSConfig trusts the system roots plus the CA bundle at caPath.
func clientTLSConfig(caPath string) (*tls.Config, error) {
	caPEM, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("upload: read ca bundle: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if ok := pool.AppendCertsFromPEM(caPEM); !ok {
		return nil, fmt.Errorf("upload: parse ca bundle: %s", caPath)
	}
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		RootCAs:    pool,
	}, nil
}
