package proc

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/droiddeck/backend/internal/infrastructure/logging"
	"github.com/droiddeck/backend/internal/infrastructure/monitoring"
	"github.com/droiddeck/backend/internal/infrastructure/resilience"
	"go.uber.org/zap"
)

// Result captures one external tool invocation. Immutable; created once
// per invocation and never mutated.
type Result struct {
	Command   string        `json:"command"`
	Args      []string      `json:"args"`
	ExitCode  int           `json:"exit_code"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	TimedOut  bool          `json:"timed_out"`
}

// Success reports whether the process exited cleanly within its deadline.
func (r Result) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Output returns stdout and stderr concatenated, for callers that match
// error signatures anywhere in the tool's output.
func (r Result) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Runner executes external commands. Components depend on this interface
// so tests can substitute canned results.
type Runner interface {
	Execute(ctx context.Context, command string, args []string, timeout time.Duration) Result
	ExecuteIn(ctx context.Context, workDir, command string, args []string, timeout time.Duration) Result
	ExecuteWithRetry(ctx context.Context, command string, args []string, maxRetries int, baseDelay, timeout time.Duration) Result
	ResolvePath(command string) (string, bool)
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct {
	searchDirs []string
	resolved   pathCache
	metrics    *monitoring.Metrics
	log        *logging.Logger
}

// Option configures an ExecRunner.
type Option func(*ExecRunner)

// WithSearchDirs sets the well-known install directories searched by
// ResolvePath after the environment's search path.
func WithSearchDirs(dirs []string) Option {
	return func(r *ExecRunner) {
		if len(dirs) > 0 {
			r.searchDirs = dirs
		}
	}
}

// WithMetrics adds invocation metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(r *ExecRunner) { r.metrics = m }
}

// NewRunner creates a runner with the default well-known directories.
func NewRunner(log *logging.Logger, opts ...Option) *ExecRunner {
	if log == nil {
		log = logging.NewNop()
	}
	r := &ExecRunner{
		searchDirs: DefaultSearchDirs(),
		log:        log.Named("proc"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute starts the command with redirected streams and a deadline. A
// process that outlives the deadline is forcibly terminated and the
// result is flagged TimedOut with exit code -1. Never returns an error;
// spawn failures are folded into the result.
func (r *ExecRunner) Execute(ctx context.Context, command string, args []string, timeout time.Duration) Result {
	return r.run(ctx, "", command, args, timeout)
}

// ExecuteIn is Execute with a working directory.
func (r *ExecRunner) ExecuteIn(ctx context.Context, workDir, command string, args []string, timeout time.Duration) Result {
	return r.run(ctx, workDir, command, args, timeout)
}

func (r *ExecRunner) run(ctx context.Context, workDir, command string, args []string, timeout time.Duration) Result {
	start := time.Now()
	result := Result{
		Command:   command,
		Args:      args,
		StartedAt: start,
		ExitCode:  -1,
	}
	if command == "" {
		result.Stderr = "empty command"
		return result
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(tctx, command, args...)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result.Duration = time.Since(start)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	switch {
	case tctx.Err() == context.DeadlineExceeded:
		result.TimedOut = true
		result.ExitCode = -1
	case err == nil:
		result.ExitCode = 0
	default:
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// Spawn failure (not found, permission); keep -1 and surface
			// the reason where stderr would be.
			if result.Stderr == "" {
				result.Stderr = err.Error()
			}
		}
	}

	r.observe(result)
	return result
}

// ExecuteWithRetry retries only on non-zero exit or timeout, waiting
// baseDelay × 2^attempt between attempts, and returns the last result if
// all attempts fail. Callers opt in explicitly; not every command is
// idempotent.
func (r *ExecRunner) ExecuteWithRetry(ctx context.Context, command string, args []string, maxRetries int, baseDelay, timeout time.Duration) Result {
	result := r.Execute(ctx, command, args, timeout)
	for attempt := 0; attempt < maxRetries && !result.Success(); attempt++ {
		select {
		case <-time.After(resilience.Backoff(baseDelay, attempt)):
		case <-ctx.Done():
			return result
		}
		if r.metrics != nil {
			r.metrics.ProcessRetries.Inc()
		}
		r.log.Debug("retrying command",
			zap.String("command", command),
			zap.Int("attempt", attempt+2),
			zap.Int("exit_code", result.ExitCode),
			zap.Bool("timed_out", result.TimedOut),
		)
		result = r.Execute(ctx, command, args, timeout)
	}
	return result
}

func (r *ExecRunner) observe(result Result) {
	outcome := "ok"
	switch {
	case result.TimedOut:
		outcome = "timeout"
	case result.ExitCode != 0:
		outcome = "error"
	}
	if r.metrics != nil {
		r.metrics.RecordProcessCall(result.Command, outcome, result.Duration)
		if result.TimedOut {
			r.metrics.ProcessTimeouts.Inc()
		}
	}
	r.log.Debug("executed command",
		zap.String("command", result.Command),
		zap.Strings("args", result.Args),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", result.Duration),
		zap.Bool("timed_out", result.TimedOut),
	)
}
