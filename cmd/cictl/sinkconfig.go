package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/cictl/internal/sink"
	"github.com/danmuck/cictl/internal/tools"
	"github.com/danmuck/cictl/internal/upload"
)

type sinkFileConfig struct {
	ID             string            `toml:"id"`
	Addr           string            `toml:"addr"`
	StorageDir     string            `toml:"storage_dir"`
	CorsOrigins    []string          `toml:"cors_origins"`
	MaxUploadBytes int64             `toml:"max_upload_bytes"`
	TLSCertFile    string            `toml:"tls_cert_file"`
	TLSKeyFile     string            `toml:"tls_key_file"`
	Accounts       map[string]string `toml:"accounts"`
}

const defaultSinkStorage = "local/artifacts"

func defaultSinkConfig() sink.Config {
	return sink.Config{
		ID:             sink.DefaultID,
		Addr:           sink.DefaultAddr,
		StorageDir:     defaultSinkStorage,
		MaxUploadBytes: sink.DefaultMaxUploadBytes,
	}
}

// loadSinkConfig overlays the fields defined in path onto the defaults. An
// empty path returns the defaults.
func loadSinkConfig(path string) (sink.Config, error) {
	cfg := defaultSinkConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw sinkFileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return sink.Config{}, fmt.Errorf("load sink config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return sink.Config{}, fmt.Errorf("load sink config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("id") {
		if id := strings.TrimSpace(raw.ID); id != "" {
			cfg.ID = id
		}
	}
	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("storage_dir") {
		cfg.StorageDir = strings.TrimSpace(raw.StorageDir)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("max_upload_bytes") {
		if raw.MaxUploadBytes <= 0 {
			return sink.Config{}, fmt.Errorf("parse max_upload_bytes: must be > 0")
		}
		cfg.MaxUploadBytes = raw.MaxUploadBytes
	}
	if meta.IsDefined("tls_cert_file") {
		cfg.TLSCertFile = strings.TrimSpace(raw.TLSCertFile)
	}
	if meta.IsDefined("tls_key_file") {
		cfg.TLSKeyFile = strings.TrimSpace(raw.TLSKeyFile)
	}
	if meta.IsDefined("accounts") {
		cfg.Accounts = make(map[string]string, len(raw.Accounts))
		for user, pass := range raw.Accounts {
			if user = strings.TrimSpace(user); user != "" {
				cfg.Accounts[user] = pass
			}
		}
	}
	return cfg, nil
}

// applySinkEnv adds the UPLOAD_USER/UPLOAD_PASS pair as an account so a local
// sink accepts the same credentials the uploader sends.
func applySinkEnv(cfg *sink.Config, lookup tools.LookupFunc) {
	user := strings.TrimSpace(lookup.Getenv(upload.EnvUser))
	if user == "" {
		return
	}
	if cfg.Accounts == nil {
		cfg.Accounts = make(map[string]string)
	}
	if _, ok := cfg.Accounts[user]; !ok {
		cfg.Accounts[user] = lookup.Getenv(upload.EnvPassword)
	}
}
