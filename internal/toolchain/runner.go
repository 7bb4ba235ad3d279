// Package toolchain runs the external command-line collaborators (tle, nak)
// with bounded execution time.
package toolchain

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Shugur-Network/capsule-validator/internal/errors"
	"github.com/Shugur-Network/capsule-validator/internal/logger"
	"go.uber.org/zap"
)

// Tool names
const (
	Tle = "tle"
	Nak = "nak"
)

// DefaultTimeout bounds a single tool invocation.
const DefaultTimeout = 30 * time.Second

// ToolError is returned when a tool exits unsuccessfully.
type ToolError struct {
	Tool   string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Tool, e.Err, e.Stderr)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Runner executes tools found on PATH.
type Runner struct {
	timeout  time.Duration
	lookPath func(string) (string, error)
	logger   *zap.Logger
}

// NewRunner creates a runner; a non-positive timeout uses DefaultTimeout.
func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{
		timeout:  timeout,
		lookPath: exec.LookPath,
		logger:   logger.New("toolchain"),
	}
}

// Run executes name with args, feeding stdin when non-nil, and returns stdout.
func (r *Runner) Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	path, err := r.lookPath(name)
	if err != nil {
		return nil, errors.DependencyMissing(name)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, path, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	r.logger.Debug("tool finished",
		zap.String("tool", name),
		zap.String("subcommand", firstArg(args)),
		zap.Duration("took", time.Since(start)),
		zap.Error(err),
	)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			err = ctx.Err()
		case stderrors.Is(runCtx.Err(), context.DeadlineExceeded):
			err = fmt.Errorf("timed out after %s: %w", r.timeout, runCtx.Err())
		}
		return nil, &ToolError{Tool: name, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return stdout.Bytes(), nil
}

// Check fails with DependencyMissing listing every tool not found on PATH.
func (r *Runner) Check(names ...string) error {
	var missing []string
	for _, name := range names {
		if _, err := r.lookPath(name); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return errors.DependencyMissing(missing...)
	}
	return nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
