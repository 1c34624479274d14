package upload

import (
	"context"
	"time"

	"github.com/danmuck/cictl/internal/artifacts"
	"github.com/danmuck/cictl/internal/tools"
)

// Result summarizes one upload run.
type Result struct {
	Transport Transport
	Artifacts int
	Bytes     int64
	Attempts  int
	// Status is the final HTTP status; zero for curl or network failures.
	Status   int
	Duration time.Duration
}

// Uploader sends a batch of artifacts in one request.
type Uploader interface {
	Upload(ctx context.Context, list []artifacts.Artifact) (Result, error)
}

// New returns the uploader for cfg.Transport. runner is only used by curl.
func New(cfg Config, runner tools.CommandRunner) (Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Transport {
	case TransportCurl:
		return NewCurlUploader(cfg, runner), nil
	default:
		client, err := newHTTPClient(cfg)
		if err != nil {
			return nil, err
		}
		return NewHTTPUploader(cfg, client), nil
	}
}
