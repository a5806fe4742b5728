// Package launch is the boundary between the CLI and the core: it resolves
// the log location, opens the sink, spawns the viewer process and runs the
// command, returning the child's exit code to the caller. It never blocks on
// the viewer.
package launch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ecco-sh/ecco/internal/config"
	"github.com/ecco-sh/ecco/internal/logsink"
	"github.com/ecco-sh/ecco/internal/runner"
)

// Configuration errors, all surfaced before any process is spawned.
var (
	ErrEmptyCommand          = errors.New("command is empty")
	ErrConflictingLogTargets = errors.New("log file and log directory are mutually exclusive")
	ErrMissingDependency     = errors.New("required tool not found")
)

// ExitConfigError is the caller-visible exit code reserved for
// pre-execution configuration errors.
const ExitConfigError = 1

// Options carries everything Run needs, already merged from flags and the
// config file by the CLI.
type Options struct {
	// Command is the opaque command string to execute.
	Command string
	// LogFile is an explicit artifact path; mutually exclusive with LogDir.
	LogFile string
	// LogDir is a directory to auto-name the artifact in.
	LogDir string
	// Shell overrides the command interpreter.
	Shell string
	// UsePTY captures output through a pseudo-terminal.
	UsePTY bool
	// ViewerMode is one of the config.Viewer* constants.
	ViewerMode string
	// Terminal is the terminal emulator for ViewerMode=terminal.
	Terminal string
	// Poll overrides the viewer's tail poll interval.
	Poll time.Duration
	// Linger overrides the viewer's auto-close countdown.
	Linger time.Duration
	// Compress archives the finished artifact to <log>.zst.
	Compress bool

	Logger *slog.Logger
}

// ResolveLogPath turns the three mutually exclusive log-location inputs into
// one absolute artifact path: explicit file wins over directory, directory
// wins over the default directory, and the latter two get an auto-generated
// collision-resistant name derived from the command.
func ResolveLogPath(logFile, logDir, command string, now time.Time) (string, error) {
	logFile = strings.TrimSpace(logFile)
	logDir = strings.TrimSpace(logDir)
	if logFile != "" && logDir != "" {
		return "", ErrConflictingLogTargets
	}
	if logFile != "" {
		return config.ExpandPath(logFile)
	}
	dir := logDir
	if dir == "" {
		dir = "."
	}
	abs, err := config.ExpandPath(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(abs, autoLogName(command, now)), nil
}

// Run validates the request, wires sink, viewer and runner together and
// blocks until the command finishes. The viewer keeps running on its own and
// closes itself once it sees the completion marker. The returned int is the
// exit code the caller must propagate.
func Run(ctx context.Context, opts Options) (int, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	command := strings.TrimSpace(opts.Command)
	if command == "" {
		return ExitConfigError, ErrEmptyCommand
	}
	if err := checkViewerDeps(opts.ViewerMode, opts.Terminal); err != nil {
		return ExitConfigError, err
	}

	started := time.Now()
	logPath, err := ResolveLogPath(opts.LogFile, opts.LogDir, command, started)
	if err != nil {
		return ExitConfigError, err
	}

	sink, err := logsink.Open(logPath)
	if err != nil {
		return ExitConfigError, err
	}
	if err := sink.WriteHeader(command, started); err != nil {
		sink.Close()
		return ExitConfigError, err
	}

	logger.Info("executing command", "command", command, "log", logPath)

	// The viewer is spawned first, like the original console flow; it
	// tolerates the artifact filling in behind it. A spawn failure is only a
	// warning: the run must not depend on the viewer in any way.
	if err := SpawnViewer(ViewerSpec{
		Mode:     opts.ViewerMode,
		Terminal: opts.Terminal,
		LogPath:  logPath,
		Poll:     opts.Poll,
		Linger:   opts.Linger,
	}); err != nil {
		logger.Warn("viewer not started", "err", err)
	}

	r := &runner.Runner{Shell: opts.Shell, UsePTY: opts.UsePTY, Logger: logger}
	job, runErr := r.Run(ctx, command, sink)
	if runErr != nil {
		// The command already executed, so a finalize failure must not be
		// reported as a configuration error. The job's exit code wins and
		// the I/O failure goes to diagnostics.
		logger.Error("finalize artifact", "path", logPath, "err", runErr)
		if job == nil || !job.Terminal() {
			return ExitConfigError, runErr
		}
	}

	if opts.Compress {
		if err := archiveArtifact(logPath); err != nil {
			logger.Warn("compress artifact", "err", err)
		}
	}

	return job.ExitCode, nil
}

// checkViewerDeps rejects explicitly requested viewer modes whose host tool
// is missing. Auto mode degrades silently instead.
func checkViewerDeps(mode, terminal string) error {
	switch mode {
	case config.ViewerTmux:
		if _, err := exec.LookPath("tmux"); err != nil {
			return fmt.Errorf("%w: tmux", ErrMissingDependency)
		}
	case config.ViewerTerminal:
		if _, err := resolveTerminal(terminal); err != nil {
			return err
		}
	}
	return nil
}
