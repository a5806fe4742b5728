// Package viewer renders a job's log live and terminates itself once the
// completion marker appears. It is started as its own process, knows nothing
// but the log path, and never writes to the artifact.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/term"

	"github.com/ecco-sh/ecco/internal/logsink"
	"github.com/ecco-sh/ecco/internal/tail"
)

// Options configure one viewer run.
type Options struct {
	// LogPath is the artifact to render. A .zst path is decompressed and
	// paged instead of tailed.
	LogPath string
	// Follow keeps reading until the completion marker arrives. Without it
	// the viewer renders what exists and stops.
	Follow bool
	// Skip drops this many leading lines.
	Skip int
	// Poll overrides the tail poll interval.
	Poll time.Duration
	// Linger is the auto-close countdown after completion (TUI only).
	Linger time.Duration
	// Grace bounds how long to wait for the artifact to appear.
	Grace time.Duration
	// Plain forces line streaming instead of the TUI.
	Plain bool
	// Out receives plain-mode output; defaults to os.Stdout.
	Out io.Writer

	Logger *slog.Logger
}

// Run renders the log per opts. It returns nil on a clean end (marker seen,
// or non-follow mode drained) and the underlying error when the artifact
// becomes unreadable mid-tail.
func Run(ctx context.Context, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	if strings.HasSuffix(opts.LogPath, ".zst") {
		return showArchive(opts.LogPath, out)
	}

	if opts.Plain || !stdoutIsTerminal(opts.Out) {
		return runPlain(ctx, opts, out, logger)
	}
	return runTUI(ctx, opts, logger)
}

// stdoutIsTerminal reports whether the default output surface can host the
// TUI. An explicit Out writer (tests, pipes) never can.
func stdoutIsTerminal(out io.Writer) bool {
	if out != nil {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// runPlain streams lines to out. In follow mode it blocks until the marker;
// otherwise it stops at the first gap in the stream.
func runPlain(ctx context.Context, opts Options, out io.Writer, logger *slog.Logger) error {
	r, err := tail.OpenWait(ctx, opts.LogPath, opts.Grace, tail.Options{
		PollInterval: opts.Poll,
		SkipLines:    opts.Skip,
	})
	if err != nil {
		logger.Error("open log", "path", opts.LogPath, "err", err)
		return err
	}
	defer r.Close()

	for {
		if !opts.Follow {
			line, state, err := r.TryNext()
			switch {
			case err != nil:
				logger.Error("read log", "path", opts.LogPath, "err", err)
				return err
			case state == tail.StateLine:
				fmt.Fprintln(out, line)
				continue
			case state == tail.StateDone:
				printCompletion(out, r)
				return nil
			default:
				return nil
			}
		}
		line, err := r.Next(ctx)
		if err != nil {
			if errors.Is(err, tail.ErrDone) {
				printCompletion(out, r)
				return nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			logger.Error("tail log", "path", opts.LogPath, "err", err)
			return err
		}
		fmt.Fprintln(out, line)
	}
}

func printCompletion(out io.Writer, r *tail.Reader) {
	m, ok := r.Marker()
	if !ok {
		return
	}
	fmt.Fprintf(out, "\n--- command completed: %s (exit %d) ---\n", m.State, m.ExitCode)
}

// showArchive decompresses a finished .zst artifact and writes it through.
func showArchive(path string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()
	_, err = io.Copy(out, dec)
	return err
}

// completionBanner is shared by the TUI and tests.
func completionBanner(m logsink.Marker) string {
	return fmt.Sprintf("Command execution completed: %s (exit %d)", m.State, m.ExitCode)
}
