package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/danmuck/cictl/internal/config"
	"github.com/danmuck/cictl/internal/logging"
	"github.com/danmuck/cictl/internal/tools"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var version = "dev"

const defaultProjectConfig = "ci.toml"

// app carries process dependencies so commands can run against fakes.
type app struct {
	lookup tools.LookupFunc
	runner tools.CommandRunner
	// git locates the repository top level when --root is not given.
	git tools.CommandRunner

	configPath string
	root       string
	verbose    bool
}

func defaultApp() *app {
	return &app{
		lookup: tools.OSLookup,
		runner: tools.ExecRunner{Stream: os.Stderr},
		git:    tools.ExecRunner{},
	}
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cictl",
		Short: "Bootstrap CI agents and upload build artifacts",
		Long: `cictl prepares a CI build host (brew on macOS, xvfb on Linux,
choco on Windows) and uploads build artifacts to a remote endpoint.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logging.SetVerbose(a.verbose)
		},
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "project config file (default <root>/ci.toml when present)")
	cmd.PersistentFlags().StringVar(&a.root, "root", "", "repository root (default git top level, else current directory)")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newBootstrapCmd(a),
		newUploadCmd(a),
		newSinkCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// repoRoot resolves paths the way a script living in the repository would:
// --root when given, otherwise the git top level, otherwise the working
// directory.
func (a *app) repoRoot(ctx context.Context) (string, error) {
	if root := strings.TrimSpace(a.root); root != "" {
		return root, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	if a.git == nil {
		return wd, nil
	}
	res, err := a.git.Run(ctx, tools.Command{
		Name: "git",
		Args: []string{"rev-parse", "--show-toplevel"},
		Dir:  wd,
	})
	if top := strings.TrimSpace(string(res.Stdout)); err == nil && top != "" {
		return top, nil
	}
	log.Debug().Err(err).Str("dir", wd).Msg("not inside a git checkout, using working directory as root")
	return wd, nil
}

// loadProject reads the project config. An explicit --config must exist; the
// implicit ci.toml under the repository root is optional.
func (a *app) loadProject(ctx context.Context) (config.ProjectConfig, error) {
	path := strings.TrimSpace(a.configPath)
	if path != "" {
		return config.LoadProjectConfig(path)
	}
	root, err := a.repoRoot(ctx)
	if err != nil {
		return config.ProjectConfig{}, err
	}
	path = filepath.Join(root, defaultProjectConfig)
	cfg, err := config.LoadProjectConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config.ProjectConfig{}, nil
	}
	if err != nil {
		return config.ProjectConfig{}, err
	}
	log.Debug().Str("path", path).Msg("loaded project config")
	return cfg, nil
}
