package launch

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ecco-sh/ecco/internal/config"
	"github.com/ecco-sh/ecco/internal/runner"
)

// ViewerSpec describes the viewer process to spawn for a job.
type ViewerSpec struct {
	Mode     string
	Terminal string
	LogPath  string
	Poll     time.Duration
	Linger   time.Duration
}

// SpawnViewer starts the viewer in its own display surface and returns
// without waiting for it. Runner and viewer share nothing but the log path;
// whichever exits first leaves the other untouched.
func SpawnViewer(spec ViewerSpec) error {
	mode := spec.Mode
	if mode == "" || mode == config.ViewerAuto {
		mode = detectViewerMode(spec.Terminal)
	}
	if mode == config.ViewerNone {
		return nil
	}

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate own executable: %w", err)
	}
	viewerCmd := viewerCommandLine(self, spec)

	switch mode {
	case config.ViewerTmux:
		// tmux runs the command string through the user's shell itself.
		return exec.Command("tmux", "new-window", "-n", "ecco-log", viewerCmd).Run()
	case config.ViewerTerminal:
		term, err := resolveTerminal(spec.Terminal)
		if err != nil {
			return err
		}
		cmd := exec.Command(term, "-e", "sh", "-c", viewerCmd)
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("start %s: %w", term, err)
		}
		// Detach so the terminal emulator outlives this process.
		return cmd.Process.Release()
	default:
		return fmt.Errorf("unknown viewer mode %q", mode)
	}
}

// viewerCommandLine builds the single shell command string that re-invokes
// this binary in viewer mode. The path crosses an intermediate shell layer,
// so it is quote-escaped.
func viewerCommandLine(self string, spec ViewerSpec) string {
	var b strings.Builder
	b.WriteString(runner.QuoteArg(self))
	b.WriteString(" view --follow")
	if spec.Poll > 0 {
		fmt.Fprintf(&b, " --poll %s", spec.Poll)
	}
	if spec.Linger > 0 {
		fmt.Fprintf(&b, " --linger %s", spec.Linger)
	}
	b.WriteString(" ")
	b.WriteString(runner.QuoteArg(spec.LogPath))
	return b.String()
}

// detectViewerMode picks the best available surface: a tmux window when
// already inside tmux, otherwise a terminal emulator window, otherwise none.
func detectViewerMode(terminal string) string {
	if os.Getenv("TMUX") != "" {
		if _, err := exec.LookPath("tmux"); err == nil {
			return config.ViewerTmux
		}
	}
	if _, err := resolveTerminal(terminal); err == nil {
		return config.ViewerTerminal
	}
	return config.ViewerNone
}

// resolveTerminal finds the terminal emulator binary: explicit setting, then
// $TERMINAL, then x-terminal-emulator.
func resolveTerminal(terminal string) (string, error) {
	candidates := []string{terminal, os.Getenv("TERMINAL"), "x-terminal-emulator"}
	for _, c := range candidates {
		if strings.TrimSpace(c) == "" {
			continue
		}
		path, err := exec.LookPath(c)
		if err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: terminal emulator", ErrMissingDependency)
}
