// Package diagnostic runs a one-off R script and captures its output.
//
// It shares the runtime settings of the supervisor but none of its
// machinery: one synchronous invocation, no ports, no retries.
package diagnostic

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds a diagnostic run when the caller's context has no
// deadline.
const DefaultTimeout = 2 * time.Minute

// ErrNoScript is returned when no diagnostic script is configured.
var ErrNoScript = errors.New("no diagnostic script configured")

// Error reports a diagnostic run that could not complete successfully.
// Output holds the combined stdout and stderr captured so far.
type Error struct {
	ExitCode int
	Output   string
	Err      error
}

func (e *Error) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("diagnostic script exited with code %d: %v", e.ExitCode, e.Err)
	}
	return fmt.Sprintf("diagnostic script failed: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config describes the runtime and the script to run.
type Config struct {
	RscriptPath string
	Script      string
	RHome       string
	LibPath     string
	Timeout     time.Duration
}

// Runner executes the diagnostic script.
type Runner struct {
	cfg    Config
	logger *zap.Logger
}

// NewRunner creates a runner. A nil logger discards output.
func NewRunner(cfg Config, logger *zap.Logger) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, logger: logger}
}

// Run invokes `<rscript> --vanilla <script>` and returns its combined
// output. A non-zero exit, a spawn failure or a timeout yields *Error.
func (r *Runner) Run(ctx context.Context) (string, error) {
	if r.cfg.Script == "" {
		return "", ErrNoScript
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.cfg.RscriptPath, "--vanilla", r.cfg.Script)
	cmd.Env = append(os.Environ(), r.environment()...)

	started := time.Now()
	out, err := cmd.CombinedOutput()
	output := strings.ToValidUTF8(string(out), "\uFFFD")

	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		}

		r.logger.Warn("Diagnostic script failed",
			zap.String("script", r.cfg.Script),
			zap.Int("exit_code", code),
			zap.Error(err),
		)
		return output, &Error{ExitCode: code, Output: output, Err: err}
	}

	r.logger.Info("Diagnostic script finished",
		zap.String("script", r.cfg.Script),
		zap.Duration("duration", time.Since(started)),
		zap.Int("output_bytes", len(out)),
	)
	return output, nil
}

func (r *Runner) environment() []string {
	var env []string
	if r.cfg.RHome != "" {
		env = append(env, "RHOME="+r.cfg.RHome, "R_HOME_DIR="+r.cfg.RHome)
	}
	if r.cfg.LibPath != "" {
		env = append(env, "R_LIBS="+r.cfg.LibPath, "R_LIBS_USER="+r.cfg.LibPath)
	}
	return env
}
