package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/cictl/internal/artifacts"
	"github.com/danmuck/cictl/internal/tools"
	"github.com/rs/zerolog/log"
)

// CurlUploader shells out to curl with the form fields on the command line.
type CurlUploader struct {
	cfg    Config
	runner tools.CommandRunner
}

func NewCurlUploader(cfg Config, runner tools.CommandRunner) *CurlUploader {
	if runner == nil {
		runner = tools.ExecRunner{}
	}
	if strings.TrimSpace(cfg.CurlPath) == "" {
		cfg.CurlPath = "curl"
	}
	return &CurlUploader{cfg: cfg, runner: runner}
}

func (u *CurlUploader) Upload(ctx context.Context, list []artifacts.Artifact) (Result, error) {
	res := Result{Transport: TransportCurl, Artifacts: len(list), Bytes: artifacts.TotalSize(list)}
	if len(list) == 0 {
		return res, ErrNoArtifacts
	}

	fields := FormFields(list)
	cmd := tools.Command{Name: u.cfg.CurlPath, Args: CurlArgs(u.cfg, fields)}
	log.Info().
		Str("cmd", u.cfg.CurlPath).
		Strs("args", RedactedCurlArgs(u.cfg, fields)).
		Msg("upload running curl")

	start := time.Now()
	res.Attempts = 1
	_, err := tools.RunChecked(ctx, u.runner, cmd)
	res.Duration = time.Since(start)
	if err != nil {
		// Do not echo the command error: its args carry the password.
		var exit int32
		var cmdErr *tools.CommandError
		if errors.As(err, &cmdErr) {
			exit = cmdErr.Result.ExitCode
		}
		return res, fmt.Errorf("%w: curl exited with code %d", ErrUploadFailed, exit)
	}
	return res, nil
}
