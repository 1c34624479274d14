package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/cictl/internal/artifacts"
	"github.com/danmuck/cictl/internal/ci"
	"github.com/danmuck/cictl/internal/config"
	"github.com/danmuck/cictl/internal/observability"
	"github.com/danmuck/cictl/internal/upload"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type uploadFlags struct {
	strict      bool
	transport   string
	suffixes    []string
	attempts    int
	rateLimit   float64
	watch       bool
	settle      time.Duration
	pushgateway string
	caFile      string
}

func newUploadCmd(a *app) *cobra.Command {
	var flags uploadFlags
	cmd := &cobra.Command{
		Use:   "upload <dir>",
		Short: "Upload build artifacts from a directory",
		Long: `Lists <dir> relative to the repository root, keeps files ending in .zip
(or --suffix) and posts them as one multipart form to UPLOAD_URL using
UPLOAD_USER and UPLOAD_PASS for basic auth.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runUpload(cmd, args[0], flags)
		},
	}
	cmd.Flags().BoolVar(&flags.strict, "strict", false, "exit non-zero when the upload fails")
	cmd.Flags().StringVar(&flags.transport, "transport", "", "http or curl (default http)")
	cmd.Flags().StringSliceVar(&flags.suffixes, "suffix", nil, "file name suffixes to upload (default .zip)")
	cmd.Flags().IntVar(&flags.attempts, "attempts", 0, "total tries for the http transport")
	cmd.Flags().Float64Var(&flags.rateLimit, "rate-limit", 0, "max requests per second, 0 for no limit")
	cmd.Flags().BoolVar(&flags.watch, "watch", false, "keep watching the directory and upload new files")
	cmd.Flags().DurationVar(&flags.settle, "settle", upload.DefaultSettle, "quiet period before a watched file is sent")
	cmd.Flags().StringVar(&flags.pushgateway, "pushgateway", "", "push run metrics to this Pushgateway")
	cmd.Flags().StringVar(&flags.caFile, "cacert", "", "extra CA bundle (PEM) for https endpoints")
	return cmd
}

func (a *app) uploadConfig(cmd *cobra.Command, project config.UploadConfig, flags uploadFlags) (upload.Config, error) {
	cfg := project.UploadConfig()
	cfg.ApplyEnv(a.lookup)
	if cmd.Flags().Changed("transport") {
		t, err := upload.ParseTransport(flags.transport)
		if err != nil {
			return upload.Config{}, fmt.Errorf("--transport: %w", err)
		}
		cfg.Transport = t
	}
	if cmd.Flags().Changed("attempts") {
		if flags.attempts < 1 {
			return upload.Config{}, fmt.Errorf("--attempts must be >= 1")
		}
		cfg.Attempts = flags.attempts
	}
	if cmd.Flags().Changed("rate-limit") {
		if flags.rateLimit < 0 {
			return upload.Config{}, fmt.Errorf("--rate-limit must be >= 0")
		}
		cfg.RateLimit = flags.rateLimit
	}
	if cmd.Flags().Changed("cacert") {
		cfg.CAFile = strings.TrimSpace(flags.caFile)
	}
	return cfg, nil
}

func (a *app) runUpload(cmd *cobra.Command, dir string, flags uploadFlags) error {
	project, err := a.loadProject(cmd.Context())
	if err != nil {
		return err
	}
	root, err := a.repoRoot(cmd.Context())
	if err != nil {
		return err
	}
	cfg, err := a.uploadConfig(cmd, project.Upload, flags)
	if err != nil {
		return err
	}

	suffixes := project.Upload.Suffixes
	if cmd.Flags().Changed("suffix") {
		suffixes = flags.suffixes
	}
	suffixes = artifacts.NormalizeSuffixes(suffixes)
	strict := flags.strict || project.Upload.Strict
	gateway := strings.TrimSpace(project.Upload.Pushgateway)
	if cmd.Flags().Changed("pushgateway") {
		gateway = strings.TrimSpace(flags.pushgateway)
	}

	list, err := artifacts.Collect(root, dir, suffixes)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	metrics := observability.NewUploadMetrics()
	defer a.pushMetrics(ctx, gateway, metrics)

	uploader, err := upload.New(cfg, a.runner)
	if err != nil {
		log.Error().Err(err).Msg("upload not configured")
		if strict {
			return err
		}
		return nil
	}

	err = a.uploadOnce(ctx, uploader, list, metrics)
	if err != nil && strict {
		return err
	}
	if !flags.watch {
		return nil
	}
	// a failed first batch stays unmarked so the watcher sends it again
	var sent []artifacts.Artifact
	if err == nil {
		sent = list
	}

	target, err := artifacts.Resolve(root, dir)
	if err != nil {
		return err
	}
	watcher := upload.NewWatcher(upload.WatchConfig{
		Dir:      target,
		Suffixes: suffixes,
		Settle:   flags.settle,
		Strict:   strict,
		OnResult: func(res upload.Result, err error) {
			metrics.Observe(string(res.Transport), res.Artifacts, err == nil, res.Bytes, res.Attempts, res.Duration)
		},
	}, uploader)
	watcher.MarkUploaded(sent)
	log.Info().Str("dir", target).Msg("watching for new artifacts")
	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// uploadOnce sends list and logs the outcome. The returned error is only
// acted on in strict mode.
func (a *app) uploadOnce(ctx context.Context, uploader upload.Uploader, list []artifacts.Artifact, metrics *observability.UploadMetrics) error {
	if len(list) == 0 {
		log.Warn().Msg("no artifacts matched, nothing uploaded")
		return nil
	}
	res, err := uploader.Upload(ctx, list)
	metrics.Observe(string(res.Transport), res.Artifacts, err == nil, res.Bytes, res.Attempts, res.Duration)
	if err != nil {
		log.Error().Err(err).Int("artifacts", len(list)).Msg("upload failed")
		return err
	}
	log.Info().
		Int("artifacts", res.Artifacts).
		Int64("bytes", res.Bytes).
		Int("status", res.Status).
		Dur("duration", res.Duration).
		Msg("upload complete")
	return nil
}

func (a *app) pushMetrics(ctx context.Context, gateway string, metrics *observability.UploadMetrics) {
	if gateway == "" {
		return
	}
	// the run context may already be cancelled in watch mode
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	labels := ci.BuildLabels(ci.Detect(a.lookup), a.lookup)
	if err := observability.PushUploadMetrics(pushCtx, gateway, metrics, labels); err != nil {
		log.Warn().Err(err).Msg("metrics push failed")
	}
}
