// Package ffmpeg runs ffmpeg, ffprobe and mediainfo as subprocesses.
//
// Commands are always built as argument vectors; nothing goes through a shell.
// Exit status and stderr are the only success signals.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/wapuda/metanix/internal/logx"
)

// Sentinel errors. Wrap with context; check with errors.Is.
var (
	// ErrToolInvocation means the binary could not be started at all
	// (missing from PATH, not executable).
	ErrToolInvocation = errors.New("tool could not be started")

	// ErrToolFailed means the tool ran and exited nonzero.
	ErrToolFailed = errors.New("tool exited with error")

	// ErrTimeout means the per-call timeout expired before the tool exited.
	ErrTimeout = errors.New("tool timed out")
)

const (
	defaultTimeout = 10 * time.Minute

	// waitDelay bounds how long Wait blocks on stdio after the process is killed.
	waitDelay = 5 * time.Second
)

// runFn starts name with args and blocks until it exits.
// Implementations must wrap start failures with ErrToolInvocation.
type runFn func(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error

// Runner holds binary locations and the per-call timeout.
type Runner struct {
	ffmpeg    string
	ffprobe   string
	mediainfo string
	timeout   time.Duration
	run       runFn
}

// Option configures a Runner.
type Option func(*Runner)

// WithBinaries overrides the binary paths. Empty values keep the default.
func WithBinaries(ffmpeg, ffprobe, mediainfo string) Option {
	return func(r *Runner) {
		if ffmpeg != "" {
			r.ffmpeg = ffmpeg
		}
		if ffprobe != "" {
			r.ffprobe = ffprobe
		}
		if mediainfo != "" {
			r.mediainfo = mediainfo
		}
	}
}

// WithTimeout sets the timeout applied to every invocation.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRun replaces process execution (for testing).
func WithRun(fn runFn) Option {
	return func(r *Runner) { r.run = fn }
}

func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		ffmpeg:    "ffmpeg",
		ffprobe:   "ffprobe",
		mediainfo: "mediainfo",
		timeout:   defaultTimeout,
		run:       defaultRun,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func defaultRun(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrToolInvocation, name, err)
	}
	return cmd.Wait()
}

// exec runs bin and returns its stdout. stderr is streamed to the debug log.
func (r *Runner) exec(ctx context.Context, bin string, args []string) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tool := filepath.Base(bin)
	lw := logx.NewLineWriter(logx.FromCtx(ctx), map[string]string{"tool": tool}, zerolog.DebugLevel)
	var stdout bytes.Buffer

	start := time.Now()
	err := r.run(callCtx, bin, args, &stdout, lw)
	lw.Flush()

	logger := logx.FromCtx(ctx)
	logger.Debug().Str("tool", tool).Dur("took", time.Since(start)).Err(err).Msg("tool finished")

	if err == nil {
		return stdout.Bytes(), nil
	}
	switch {
	case errors.Is(err, ErrToolInvocation):
		return nil, err
	case ctx.Err() != nil:
		return nil, fmt.Errorf("%s: %w", tool, ctx.Err())
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return nil, fmt.Errorf("%s: %w after %v", tool, ErrTimeout, r.timeout)
	}
	if tail := lw.Tail(); tail != "" {
		return stdout.Bytes(), fmt.Errorf("%s: %w: %v\n%s", tool, ErrToolFailed, err, tail)
	}
	return stdout.Bytes(), fmt.Errorf("%s: %w: %v", tool, ErrToolFailed, err)
}
