package upload

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/danmuck/cictl/internal/artifacts"
	"github.com/danmuck/cictl/internal/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	userAgent     = "cictl-upload"
	maxLoggedBody = 4 << 10
)

// HTTPUploader streams artifacts as one multipart/form-data POST.
type HTTPUploader struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	rng     *rand.Rand
	sleep   func(context.Context, time.Duration) error
}

// NewHTTPUploader uses client when given, otherwise one with cfg.Timeout.
// Redirects are followed, like curl -L.
func NewHTTPUploader(cfg Config, client *http.Client) *HTTPUploader {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return &HTTPUploader{
		cfg:     cfg,
		client:  client,
		limiter: limiter,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:   sleepContext,
	}
}

func (u *HTTPUploader) Upload(ctx context.Context, list []artifacts.Artifact) (Result, error) {
	res := Result{Transport: TransportHTTP, Artifacts: len(list), Bytes: artifacts.TotalSize(list)}
	if len(list) == 0 {
		return res, ErrNoArtifacts
	}

	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= u.cfg.Attempts; attempt++ {
		if attempt > 1 {
			delay := NextBackoffDelay(u.cfg.Backoff, attempt-1, u.rng)
			log.Warn().Err(lastErr).Int("attempt", attempt).Dur("delay", delay).Msg("upload retrying")
			if err := u.sleep(ctx, delay); err != nil {
				res.Duration = time.Since(start)
				return res, err
			}
		}
		if u.limiter != nil {
			if err := u.limiter.Wait(ctx); err != nil {
				res.Duration = time.Since(start)
				return res, err
			}
		}

		res.Attempts = attempt
		status, retryable, err := u.send(ctx, list)
		res.Status = status
		if err == nil {
			res.Duration = time.Since(start)
			return res, nil
		}
		lastErr = err
		if !retryable || ctx.Err() != nil {
			break
		}
	}
	res.Duration = time.Since(start)
	return res, lastErr
}

// send performs one request. retryable reports whether another attempt could
// succeed: network errors, 429 and 5xx.
func (u *HTTPUploader) send(ctx context.Context, list []artifacts.Artifact) (int, bool, error) {
	boundary := multipart.NewWriter(io.Discard).Boundary()
	length, err := multipartLength(boundary, list)
	if err != nil {
		return 0, false, err
	}

	body := func() (io.ReadCloser, error) {
		return streamMultipart(boundary, list), nil
	}
	rc, _ := body()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.URL, rc)
	if err != nil {
		rc.Close()
		return 0, false, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	req.GetBody = body
	req.ContentLength = length
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	req.Header.Set("User-Agent", userAgent)
	requestID := uuid.NewString()
	req.Header.Set(observability.RequestIDHeader, requestID)
	if u.cfg.User != "" || u.cfg.Password != "" {
		req.SetBasicAuth(u.cfg.User, u.cfg.Password)
	}

	log.Info().
		Str("url", redactURL(u.cfg.URL)).
		Str("request_id", requestID).
		Int("artifacts", len(list)).
		Int64("content_length", length).
		Msg("upload sending")

	resp, err := u.client.Do(req)
	if err != nil {
		return 0, ctx.Err() == nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))
	_, _ = io.Copy(io.Discard, resp.Body)
	log.Debug().
		Int("status", resp.StatusCode).
		Str("request_id", requestID).
		Str("body", strings.TrimSpace(string(snippet))).
		Msg("upload response")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		log.Info().Int("status", resp.StatusCode).Str("request_id", requestID).Msg("upload accepted")
		return resp.StatusCode, false, nil
	}
	retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	return resp.StatusCode, retryable, fmt.Errorf("%w: %s", ErrUploadFailed, resp.Status)
}

// streamMultipart writes the form into a pipe so files are never buffered
// in memory.
func streamMultipart(boundary string, list []artifacts.Artifact) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		mw := multipart.NewWriter(pw)
		if err := mw.SetBoundary(boundary); err != nil {
			pw.CloseWithError(err)
			return
		}
		for _, a := range list {
			if err := copyPart(mw, a); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		pw.CloseWithError(mw.Close())
	}()
	return pr
}

func copyPart(mw *multipart.Writer, a artifacts.Artifact) error {
	part, err := mw.CreateFormFile(a.Name, a.Name)
	if err != nil {
		return err
	}
	f, err := os.Open(a.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	n, err := io.Copy(part, f)
	if err != nil {
		return err
	}
	if n != a.Size {
		return fmt.Errorf("artifact %s changed size during upload: %d != %d", a.Name, n, a.Size)
	}
	return nil
}

// multipartLength computes the exact body size by rendering the part headers
// and adding the file sizes.
func multipartLength(boundary string, list []artifacts.Artifact) (int64, error) {
	var c countingWriter
	mw := multipart.NewWriter(&c)
	if err := mw.SetBoundary(boundary); err != nil {
		return 0, err
	}
	for _, a := range list {
		if _, err := mw.CreateFormFile(a.Name, a.Name); err != nil {
			return 0, err
		}
		c.n += a.Size
	}
	if err := mw.Close(); err != nil {
		return 0, err
	}
	return c.n, nil
}

type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

func redactURL(raw string) string {
	if i := strings.Index(raw, "@"); i >= 0 {
		if j := strings.Index(raw, "://"); j >= 0 && j < i {
			return raw[:j+3] + "***" + raw[i:]
		}
	}
	return raw
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
