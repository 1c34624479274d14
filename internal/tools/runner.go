package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// ExitNotFound is reported when the command binary cannot be resolved.
const ExitNotFound int32 = 127

// Command describes one external process invocation.
type Command struct {
	Name string
	Args []string
	// Env entries are appended to the current process environment.
	Env []string
	Dir string
}

// String renders the command line for logs.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is the captured outcome of one command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int32
}

// CommandRunner abstracts external command execution so callers can be tested
// without touching the host.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner executes commands on the local host. Output is captured and, when
// Stream is set, also mirrored to Stream as it is produced.
type ExecRunner struct {
	Stream io.Writer
}

func (r ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	if r.Stream != nil {
		cmd.Stdout = io.MultiWriter(&stdout, r.Stream)
		cmd.Stderr = io.MultiWriter(&stderr, r.Stream)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = int32(exitErr.ExitCode())
		return res, err
	}

	res.ExitCode = 1
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		res.ExitCode = ExitNotFound
	}
	return res, err
}

// CommandError carries the full context of a failed command.
type CommandError struct {
	Cmd    Command
	Result Result
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf(
		"command failed cmd=%s args=%q exit=%d stdout=%q stderr=%q: %v",
		e.Cmd.Name,
		strings.Join(e.Cmd.Args, " "),
		e.Result.ExitCode,
		strings.TrimSpace(string(e.Result.Stdout)),
		strings.TrimSpace(string(e.Result.Stderr)),
		e.Err,
	)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NotFound reports whether the command binary was missing.
func (e *CommandError) NotFound() bool {
	return e.Result.ExitCode == ExitNotFound
}

// RunChecked runs cmd and converts any failure into a *CommandError.
func RunChecked(ctx context.Context, r CommandRunner, cmd Command) (Result, error) {
	res, err := r.Run(ctx, cmd)
	if err != nil {
		return res, &CommandError{Cmd: cmd, Result: res, Err: err}
	}
	return res, nil
}
