// Package runner spawns the target command and drains its combined output
// into the log sink. It owns every Job state transition: a Job is created
// Running and becomes immutable once it reaches a terminal state.
package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/ecco-sh/ecco/internal/logsink"
)

// State is a Job's lifecycle state.
type State string

const (
	StateRunning         State = "running"
	StateSucceeded       State = "succeeded"
	StateFailed          State = "failed"
	StateCrashedToLaunch State = "crashed-to-launch"
)

// Job is one execution request plus its outcome.
type Job struct {
	RawCommand  string
	LogPath     string
	StartedAt   time.Time
	CompletedAt time.Time
	ExitCode    int
	State       State
}

// Terminal reports whether the job reached a final state.
func (j *Job) Terminal() bool { return j.State != StateRunning }

// Runner executes one command per Run call, writing its interleaved
// stdout+stderr into the provided sink.
type Runner struct {
	// Shell interprets the raw command string ("<shell> -c <command>").
	// Empty means DefaultShell.
	Shell string
	// UsePTY runs the command under a pseudo-terminal. The kernel then
	// merges stdout and stderr in wall-clock order and programs that only
	// emit when attached to a TTY still produce output.
	UsePTY bool
	Logger *slog.Logger
}

// DefaultShell resolves the interpreter for raw command strings.
func DefaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

// Run spawns command and blocks until it exits and all output has been
// appended and finalized. The returned Job is terminal; spawn failures are
// reported through StateCrashedToLaunch, never masked and never retried.
// The sink is finalized on every path so waiting viewers terminate instead
// of polling forever.
func (r *Runner) Run(ctx context.Context, command string, sink *logsink.Sink) (*Job, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	shell := r.Shell
	if shell == "" {
		shell = DefaultShell()
	}

	job := &Job{
		RawCommand: command,
		LogPath:    sink.Path(),
		StartedAt:  time.Now(),
		State:      StateRunning,
		ExitCode:   -1,
	}

	cmd := exec.CommandContext(ctx, shell, "-c", command)

	output, startErr := startCapture(cmd, r.UsePTY)
	if startErr != nil {
		logger.Error("command failed to launch", "shell", shell, "err", startErr)
		if err := sink.Append([]byte("ecco: failed to launch command: " + startErr.Error() + "\n")); err != nil {
			logger.Warn("append launch failure note", "err", err)
		}
		job.CompletedAt = time.Now()
		job.ExitCode = logsink.CrashedExitCode
		job.State = StateCrashedToLaunch
		if err := sink.Finalize(logsink.MarkerFor(-1, job.CompletedAt)); err != nil {
			return job, err
		}
		return job, nil
	}

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.drain(logger, output, sink)
	}()

	wg.Wait()
	runErr := cmd.Wait()
	job.CompletedAt = time.Now()
	job.ExitCode = exitCodeFromError(runErr)
	if job.ExitCode == 0 {
		job.State = StateSucceeded
	} else {
		job.State = StateFailed
	}
	logger.Info("job finished",
		"command", command,
		"log", job.LogPath,
		"exit", job.ExitCode,
		"elapsed", job.CompletedAt.Sub(job.StartedAt),
	)

	if err := sink.Finalize(logsink.MarkerFor(job.ExitCode, job.CompletedAt)); err != nil {
		return job, err
	}
	return job, nil
}

// startCapture starts cmd with both output streams attached to a single
// read side, so the artifact receives one wall-clock-interleaved stream.
func startCapture(cmd *exec.Cmd, usePTY bool) (io.ReadCloser, error) {
	if usePTY {
		return startPTY(cmd)
	}
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, err
	}
	// The parent drops its write end so the drain sees EOF when the child
	// (and anything inheriting the descriptor) exits.
	pw.Close()
	return pr, nil
}

// drain moves bytes from the capture stream into the sink until EOF. It must
// run concurrently with the child, else the pipe buffer fills and the child
// stalls.
func (r *Runner) drain(logger *slog.Logger, stream io.ReadCloser, sink *logsink.Sink) {
	defer stream.Close()
	buf := make([]byte, 32*1024)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			if aerr := sink.Append(buf[:n]); aerr != nil {
				logger.Error("append output", "err", aerr)
				return
			}
		}
		if err != nil {
			// A PTY read reports EIO rather than EOF once the child side
			// closes; both end the stream.
			if !errors.Is(err, io.EOF) && !isPTYClosed(err) {
				logger.Error("read output", "err", err)
			}
			return
		}
	}
}

// exitCodeFromError recovers the child's exit code from cmd.Wait. A child
// killed by a signal reports 128+signal, the same code a shell would assign,
// so the result is always non-negative and never collides with the launch
// failure sentinel.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}
	return 1
}
