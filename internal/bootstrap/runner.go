package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/cictl/internal/ci"
	"github.com/danmuck/cictl/internal/tools"
	"github.com/rs/zerolog/log"
)

var (
	ErrStepFailed          = errors.New("bootstrap: step failed")
	ErrPrerequisiteMissing = errors.New("bootstrap: prerequisite missing")
)

type StepStatus string

const (
	StepOK      StepStatus = "ok"
	StepSkipped StepStatus = "skipped"
	StepFailed  StepStatus = "failed"
)

type StepResult struct {
	Step     string
	Status   StepStatus
	Err      error
	Duration time.Duration
}

type Report struct {
	Platform ci.Platform
	Results  []StepResult
}

// Failed returns the results of steps that did not succeed.
func (r Report) Failed() []StepResult {
	var out []StepResult
	for _, res := range r.Results {
		if res.Status == StepFailed {
			out = append(out, res)
		}
	}
	return out
}

type RunnerConfig struct {
	Runner tools.CommandRunner
	// Strict stops at the first failed step and returns its error. Otherwise
	// failures are logged and the remaining steps still run.
	Strict bool
	// Sleep is replaced in tests.
	Sleep func(context.Context, time.Duration) error
}

type Runner struct {
	runner tools.CommandRunner
	strict bool
	sleep  func(context.Context, time.Duration) error
}

func NewRunner(cfg RunnerConfig) *Runner {
	runner := cfg.Runner
	if runner == nil {
		runner = tools.ExecRunner{}
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &Runner{runner: runner, strict: cfg.Strict, sleep: sleep}
}

// Run executes plan steps in order.
func (r *Runner) Run(ctx context.Context, plan Plan) (Report, error) {
	report := Report{Platform: plan.Platform}
	log.Info().Str("platform", plan.Platform.String()).Int("steps", len(plan.Steps)).Msg("bootstrap start")

	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		start := time.Now()
		status, err := r.runStep(ctx, step)
		res := StepResult{Step: step.Name, Status: status, Err: err, Duration: time.Since(start)}
		report.Results = append(report.Results, res)

		if err == nil {
			log.Info().Str("step", step.Name).Str("status", string(status)).Dur("duration", res.Duration).Msg("bootstrap step")
			continue
		}

		log.Error().Err(err).Str("step", step.Name).Msg("bootstrap step failed")
		if r.strict {
			return report, fmt.Errorf("%w: %s: %w", ErrStepFailed, step.Name, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, ctxErr
		}
	}

	if failed := report.Failed(); len(failed) > 0 {
		log.Warn().Int("failed", len(failed)).Msg("bootstrap finished with failures")
	} else {
		log.Info().Msg("bootstrap finished")
	}
	return report, nil
}

func (r *Runner) runStep(ctx context.Context, step Step) (StepStatus, error) {
	if step.Check != nil {
		_, err := tools.RunChecked(ctx, r.runner, *step.Check)
		if err == nil {
			if step.Command != nil {
				return StepSkipped, nil
			}
			return StepOK, nil
		}
		var cmdErr *tools.CommandError
		if !errors.As(err, &cmdErr) || !cmdErr.NotFound() {
			return StepFailed, err
		}
		if step.Command == nil {
			return StepFailed, fmt.Errorf("%w: %s not installed", ErrPrerequisiteMissing, step.Check.Name)
		}
	}

	if step.Command == nil {
		return StepSkipped, nil
	}

	log.Debug().Str("step", step.Name).Str("cmd", step.Command.String()).Msg("bootstrap exec")
	if _, err := tools.RunChecked(ctx, r.runner, *step.Command); err != nil {
		return StepFailed, err
	}

	if step.Check != nil {
		if _, err := tools.RunChecked(ctx, r.runner, *step.Check); err != nil {
			return StepFailed, fmt.Errorf("%w: %s still unavailable after install: %w", ErrPrerequisiteMissing, step.Check.Name, err)
		}
	}

	if step.Settle > 0 {
		if err := r.sleep(ctx, step.Settle); err != nil {
			return StepFailed, err
		}
	}
	return StepOK, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
