package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/cictl/internal/sink"
	"github.com/danmuck/cictl/internal/upload"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newSinkCmd(a *app) *cobra.Command {
	var (
		configPath string
		addr       string
		storage    string
		tlsCert    string
		tlsKey     string
		anonymous  bool
	)
	cmd := &cobra.Command{
		Use:   "sink",
		Short: "Run a local artifact receiver for pipeline smoke tests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadSinkConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = strings.TrimSpace(addr)
			}
			if cmd.Flags().Changed("storage") {
				cfg.StorageDir = strings.TrimSpace(storage)
			}
			if cmd.Flags().Changed("tls-cert") {
				cfg.TLSCertFile = strings.TrimSpace(tlsCert)
			}
			if cmd.Flags().Changed("tls-key") {
				cfg.TLSKeyFile = strings.TrimSpace(tlsKey)
			}
			applySinkEnv(&cfg, a.lookup)
			cfg.AllowAnonymous = anonymous

			server, err := sink.New(cfg)
			if err != nil {
				if errors.Is(err, sink.ErrNoAccounts) {
					return fmt.Errorf("%w: add [accounts] to the sink config, set %s/%s, or pass --insecure-no-auth",
						err, upload.EnvUser, upload.EnvPassword)
				}
				return err
			}
			if len(cfg.Accounts) == 0 {
				log.Warn().Msg("sink running without authentication")
			}
			return server.Serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&configPath, "sink-config", "", "sink config file (toml)")
	cmd.Flags().StringVar(&addr, "addr", sink.DefaultAddr, "listen address")
	cmd.Flags().StringVar(&storage, "storage", defaultSinkStorage, "directory for received artifacts")
	cmd.Flags().StringVar(&tlsCert, "tls-cert", "", "serve https with this certificate (PEM)")
	cmd.Flags().StringVar(&tlsKey, "tls-key", "", "private key for --tls-cert (PEM)")
	cmd.Flags().BoolVar(&anonymous, "insecure-no-auth", false, "accept uploads without credentials when no accounts are configured")
	return cmd
}
