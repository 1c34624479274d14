package main

import (
	"fmt"
	"strings"

	"github.com/danmuck/cictl/internal/bootstrap"
	"github.com/danmuck/cictl/internal/ci"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type bootstrapFlags struct {
	strict   bool
	dryRun   bool
	envFile  string
	platform string
}

func newBootstrapCmd(a *app) *cobra.Command {
	var flags bootstrapFlags
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Prepare the build host for the detected CI platform",
		Long: `Detects the CI provider from APPVEYOR, TRAVIS and TRAVIS_OS_NAME and
runs the matching setup: brew on macOS, the xvfb init script on Linux,
choco on Windows. Exported variables are printed as shell export lines.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runBootstrap(cmd, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.strict, "strict", false, "stop at the first failed step and exit non-zero")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "print the plan without running it")
	cmd.Flags().StringVar(&flags.envFile, "env-file", "", "append exports to this file")
	cmd.Flags().StringVar(&flags.platform, "platform", "", "force a platform (provider/os or os)")
	return cmd
}

func (a *app) runBootstrap(cmd *cobra.Command, flags bootstrapFlags) error {
	project, err := a.loadProject(cmd.Context())
	if err != nil {
		return err
	}

	platform := ci.Detect(a.lookup)
	forced := strings.TrimSpace(flags.platform) != ""
	if forced {
		platform, err = ci.ParsePlatform(flags.platform)
		if err != nil {
			return fmt.Errorf("--platform: %w", err)
		}
	}
	if platform.Provider == ci.ProviderLocal && !forced {
		log.Info().Str("platform", platform.String()).Msg("no CI provider detected, nothing to bootstrap")
		return nil
	}

	plan := bootstrap.BuildPlan(platform, project.Bootstrap.BootstrapOptions())
	log.Info().Str("platform", platform.String()).Int("steps", len(plan.Steps)).Msg("bootstrap plan ready")
	if flags.dryRun {
		return plan.Describe(cmd.OutOrStdout())
	}

	runner := bootstrap.NewRunner(bootstrap.RunnerConfig{
		Runner: a.runner,
		Strict: flags.strict || project.Bootstrap.Strict,
	})
	if _, err := runner.Run(cmd.Context(), plan); err != nil {
		return err
	}

	if err := bootstrap.WriteExports(cmd.OutOrStdout(), plan.Exports); err != nil {
		return err
	}
	if path := strings.TrimSpace(flags.envFile); path != "" && len(plan.Exports) > 0 {
		if err := bootstrap.AppendEnvFile(path, plan.Exports); err != nil {
			return err
		}
		log.Info().Str("path", path).Int("exports", len(plan.Exports)).Msg("exports written")
	}
	return nil
}
