package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const waitDelay = 2 * time.Second

// ErrFailed is wrapped by every error Run returns
var ErrFailed = errors.New("command failed")

// Runner executes external commands and captures their output
type Runner struct {
	timeout time.Duration
}

// NewRunner creates a runner. A non-positive timeout leaves the deadline to the caller's context.
func NewRunner(timeout time.Duration) *Runner {
	return &Runner{timeout: timeout}
}

// Run executes name with args and waits for it to exit.
// The returned Result is non-nil whenever the process was started, even on error.
func (r *Runner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	// grandchildren holding the pipes must not outlive a cancelled run
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	startTime := time.Now()
	err := cmd.Run()

	result := &Result{
		Name:      name,
		Args:      args,
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		StartedAt: startTime,
		Duration:  time.Since(startTime),
	}

	if err == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() != nil:
		result.ExitCode = -1
		return result, fmt.Errorf("%w: %s: %w", ErrFailed, name, ctx.Err())
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		msg := strings.TrimSpace(result.Stderr)
		if msg == "" {
			msg = exitErr.Error()
		}
		return result, fmt.Errorf("%w: %s exited with status %d: %s", ErrFailed, name, result.ExitCode, msg)
	default:
		// never started (missing binary, permissions)
		return nil, fmt.Errorf("%w: failed to start %s: %w", ErrFailed, name, err)
	}
}
