package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultKillGrace = 500 * time.Millisecond

type SubprocessRunner struct {
	Logger    *zap.Logger
	KillGrace time.Duration
}

type tailBuffer struct {
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = 64 * 1024
	}
	return &tailBuffer{
		buf: make([]byte, 0, max),
		max: max,
	}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) >= t.max {
		t.buf = append(t.buf[:0], p[len(p)-t.max:]...)
		return len(p), nil
	}
	overflow := len(t.buf) + len(p) - t.max
	if overflow > 0 {
		t.buf = append(t.buf[:0], t.buf[overflow:]...)
	}
	t.buf = append(t.buf, p...)
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}

func NewSubprocessRunner(logger *zap.Logger, killGrace time.Duration) *SubprocessRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if killGrace <= 0 {
		killGrace = DefaultKillGrace
	}
	return &SubprocessRunner{Logger: logger, KillGrace: killGrace}
}

// Run starts spec and blocks until the process exits. Stdout is parsed line
// by line through hooks.Line while stderr is drained by a separate goroutine
// into a bounded tail buffer, so neither pipe can fill up and stall the child.
func (r *SubprocessRunner) Run(ctx context.Context, spec ExecSpec, hooks Hooks) ExecResult {
	start := time.Now()
	if spec.Bin == "" {
		return ExecResult{ExitCode: 1, Duration: time.Since(start), Err: errors.New("missing binary")}
	}
	logger := r.logger().With(zap.String("bin", spec.Bin))

	cmd := exec.Command(spec.Bin, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	configureCommandForTermination(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return ExecResult{ExitCode: 1, Duration: time.Since(start), Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return ExecResult{ExitCode: 1, Duration: time.Since(start), Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	display := spec.DisplayCommand
	if display == "" {
		display = spec.Bin + " " + strings.Join(spec.Args, " ")
	}
	logger.Debug("starting tool", zap.String("command", display))

	if err := cmd.Start(); err != nil {
		code := 1
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			code = 127
		}
		return ExecResult{ExitCode: code, Duration: time.Since(start), Err: err}
	}
	pid := cmd.Process.Pid
	if hooks.Started != nil {
		hooks.Started(pid)
	}

	stopOnCancel := context.AfterFunc(ctx, func() {
		_ = Terminate(pid, r.killGrace())
	})
	defer stopOnCancel()

	stderrTail := newTailBuffer(64 * 1024)
	var g errgroup.Group
	g.Go(func() error {
		return SplitLines(stderr, func(line string) bool {
			logger.Debug("tool stderr", zap.String("line", line))
			_, _ = stderrTail.Write([]byte(line + "\n"))
			return true
		})
	})

	stopped := false
	readErr := SplitLines(stdout, func(line string) bool {
		if hooks.Line != nil && !hooks.Line(line) {
			stopped = true
			return false
		}
		return true
	})
	if stopped {
		_ = Terminate(pid, r.killGrace())
		_, _ = io.Copy(io.Discard, stdout)
	}

	drainErr := g.Wait()
	waitErr := cmd.Wait()
	if hooks.Exited != nil {
		hooks.Exited(pid)
	}

	result := ExecResult{
		Duration:   time.Since(start),
		Stopped:    stopped,
		StderrTail: stderrTail.String(),
		Err:        waitErr,
	}
	if readErr != nil {
		logger.Debug("stdout read failed", zap.Error(readErr))
	}
	if drainErr != nil {
		logger.Debug("stderr drain failed", zap.Error(drainErr))
	}
	if waitErr == nil {
		return result
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		if result.ExitCode < 0 {
			// killed by a signal
			result.ExitCode = 137
		}
		return result
	}
	result.ExitCode = 1
	return result
}

func (r *SubprocessRunner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *SubprocessRunner) killGrace() time.Duration {
	if r.KillGrace <= 0 {
		return DefaultKillGrace
	}
	return r.KillGrace
}
