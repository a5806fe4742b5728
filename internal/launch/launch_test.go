package launch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/ecco-sh/ecco/internal/config"
	"github.com/ecco-sh/ecco/internal/logsink"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveLogPathExplicitFileWins(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "explicit.log")
	got, err := ResolveLogPath(file, "", "echo hi", time.Now())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != file {
		t.Fatalf("got=%q want=%q", got, file)
	}
}

func TestResolveLogPathConflictingTargets(t *testing.T) {
	_, err := ResolveLogPath("/tmp/a.log", "/tmp/logs", "echo hi", time.Now())
	if !errors.Is(err, ErrConflictingLogTargets) {
		t.Fatalf("err=%v, want ErrConflictingLogTargets", err)
	}
}

func TestResolveLogPathAutoNameInDirectory(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 8, 30, 14, 30, 5, 0, time.Local)
	got, err := ResolveLogPath("", dir, "npm install --save", now)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if filepath.Dir(got) != dir {
		t.Fatalf("dir=%q want=%q", filepath.Dir(got), dir)
	}
	base := filepath.Base(got)
	pattern := regexp.MustCompile(`^log_npm_20260830_143005_[0-9a-f-]{8}\.log$`)
	if !pattern.MatchString(base) {
		t.Fatalf("auto name %q does not match %v", base, pattern)
	}
}

func TestResolveLogPathDefaultsToCurrentDirectory(t *testing.T) {
	got, err := ResolveLogPath("", "", "echo hi", time.Now())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	cwd, _ := os.Getwd()
	if filepath.Dir(got) != cwd {
		t.Fatalf("dir=%q want cwd %q", filepath.Dir(got), cwd)
	}
}

func TestCommandName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"../bar/foo.sh -option1 param1", "foo"},
		{"npm install --save", "npm"},
		{"ps aux | grep go", "ps"},
		{"./script.sh", "script"},
		{"echo hi; echo bye", "echo"},
		{"/usr/local/bin/some-tool --flag", "some-tool"},
		{"weird!!name", "weird__name"},
		{"...", "command"},
		{"", "command"},
		{strings.Repeat("x", 80), strings.Repeat("x", 30)},
	}
	for _, tc := range cases {
		if got := commandName(tc.in); got != tc.want {
			t.Fatalf("commandName(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRunEmptyCommandIsConfigError(t *testing.T) {
	code, err := Run(context.Background(), Options{
		Command:    "   ",
		ViewerMode: config.ViewerNone,
		Logger:     discardLogger(),
	})
	if !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("err=%v, want ErrEmptyCommand", err)
	}
	if code != ExitConfigError {
		t.Fatalf("code=%d, want %d", code, ExitConfigError)
	}
}

func TestRunConflictingTargetsBeforeSpawn(t *testing.T) {
	dir := t.TempDir()
	code, err := Run(context.Background(), Options{
		Command:    "echo should not run",
		LogFile:    filepath.Join(dir, "a.log"),
		LogDir:     dir,
		ViewerMode: config.ViewerNone,
		Logger:     discardLogger(),
	})
	if !errors.Is(err, ErrConflictingLogTargets) {
		t.Fatalf("err=%v", err)
	}
	if code != ExitConfigError {
		t.Fatalf("code=%d", code)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("artifact created despite config error: %v", entries)
	}
}

func TestRunEchoHelloEndToEnd(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "job.log")
	code, err := Run(context.Background(), Options{
		Command:    "echo hello",
		LogFile:    logFile,
		ViewerMode: config.ViewerNone,
		Logger:     discardLogger(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if code != 0 {
		t.Fatalf("code=%d", code)
	}
	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !strings.Contains(string(data), "hello\n") {
		t.Fatalf("artifact missing output: %q", data)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if !logsink.IsMarkerLine(lines[len(lines)-1]) {
		t.Fatalf("final line is not a marker: %q", lines[len(lines)-1])
	}
}

func TestRunPropagatesChildExitCode(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "job.log")
	code, err := Run(context.Background(), Options{
		Command:    "exit 3",
		LogFile:    logFile,
		ViewerMode: config.ViewerNone,
		Logger:     discardLogger(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if code != 3 {
		t.Fatalf("code=%d, want 3", code)
	}
	data, _ := os.ReadFile(logFile)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	m, ok := logsink.ParseMarker(lines[len(lines)-1])
	if !ok || m.ExitCode != 3 {
		t.Fatalf("marker=%+v ok=%t", m, ok)
	}
}

func TestRunCompressWritesArchive(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "job.log")
	code, err := Run(context.Background(), Options{
		Command:    "echo compressed",
		LogFile:    logFile,
		ViewerMode: config.ViewerNone,
		Compress:   true,
		Logger:     discardLogger(),
	})
	if err != nil || code != 0 {
		t.Fatalf("run: code=%d err=%v", code, err)
	}
	f, err := os.Open(logFile + ".zst")
	if err != nil {
		t.Fatalf("archive missing: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()
	plain, err := io.ReadAll(dec)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	want, _ := os.ReadFile(logFile)
	if string(plain) != string(want) {
		t.Fatalf("archive differs from artifact")
	}
	if _, err := os.Stat(logFile); err != nil {
		t.Fatalf("plain artifact removed: %v", err)
	}
}

func TestViewerCommandLineQuotesPath(t *testing.T) {
	got := viewerCommandLine("/usr/bin/ecco", ViewerSpec{
		LogPath: `/tmp/log dir/job "a".log`,
		Poll:    200 * time.Millisecond,
	})
	want := `'/usr/bin/ecco' view --follow --poll 200ms '/tmp/log dir/job "a".log'`
	if got != want {
		t.Fatalf("got=%q want=%q", got, want)
	}
}

func TestCheckViewerDepsExplicitTerminalMissing(t *testing.T) {
	t.Setenv("TERMINAL", "")
	t.Setenv("PATH", t.TempDir())
	err := checkViewerDeps(config.ViewerTerminal, "")
	if !errors.Is(err, ErrMissingDependency) {
		t.Fatalf("err=%v, want ErrMissingDependency", err)
	}
}
