package logsink

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestOpenCreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "job.log")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("artifact not created: %v", err)
	}
	if !filepath.IsAbs(s.Path()) {
		t.Fatalf("path not absolute: %q", s.Path())
	}
}

func TestOpenUnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Parent "directory" is a regular file.
	_, err := Open(filepath.Join(blocker, "job.log"))
	if !errors.Is(err, ErrPathUnwritable) {
		t.Fatalf("err=%v, want ErrPathUnwritable", err)
	}
}

func TestOpenTruncatesStaleArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.log")
	stale := Marker{State: StateSucceeded, At: time.Now()}.String() + "\n"
	if err := os.WriteFile(path, []byte("old output\n"+stale), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Fatalf("stale content survived open: %q", data)
	}
}

func TestAppendVisibleBeforeFinalize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.log")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if err := s.Append([]byte("hello\n")); err != nil {
		t.Fatalf("append: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello\n" {
		t.Fatalf("artifact=%q", data)
	}
}

func TestFinalizeMarkerIsLastLineExactlyOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.log")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.WriteHeader("echo hello", time.Now()); err != nil {
		t.Fatalf("header: %v", err)
	}
	if err := s.Append([]byte("hello\n")); err != nil {
		t.Fatalf("append: %v", err)
	}
	m := Marker{State: StateSucceeded, ExitCode: 0, At: time.Now()}
	if err := s.Finalize(m); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	last := lines[len(lines)-1]
	parsed, ok := ParseMarker(last)
	if !ok {
		t.Fatalf("final line is not a marker: %q", last)
	}
	if parsed.State != StateSucceeded || parsed.ExitCode != 0 {
		t.Fatalf("marker=%+v", parsed)
	}
	count := 0
	for _, line := range lines {
		if IsMarkerLine(line) {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("marker appears %d times, want 1", count)
	}
}

func TestFinalizeInsertsNewlineAfterPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.log")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Append([]byte("no trailing newline")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Finalize(Marker{State: StateFailed, ExitCode: 3, At: time.Now()}); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "no trailing newline\n") {
		t.Fatalf("partial line not terminated: %q", data)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if m, ok := ParseMarker(lines[len(lines)-1]); !ok || m.ExitCode != 3 {
		t.Fatalf("last line=%q", lines[len(lines)-1])
	}
}

func TestFinalizeTwiceFails(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "job.log"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	m := Marker{State: StateSucceeded, At: time.Now()}
	if err := s.Finalize(m); err != nil {
		t.Fatalf("first finalize: %v", err)
	}
	if err := s.Finalize(m); !errors.Is(err, ErrFinalized) {
		t.Fatalf("second finalize err=%v, want ErrFinalized", err)
	}
	if err := s.Append([]byte("late\n")); !errors.Is(err, ErrFinalized) {
		t.Fatalf("append after finalize err=%v, want ErrFinalized", err)
	}
}

func TestMarkerRoundTrip(t *testing.T) {
	cases := []Marker{
		{State: StateSucceeded, ExitCode: 0, At: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)},
		{State: StateFailed, ExitCode: 3, At: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{State: StateCrashed, ExitCode: CrashedExitCode, At: time.Date(2026, 8, 30, 23, 59, 59, 0, time.UTC)},
	}
	for _, want := range cases {
		got, ok := ParseMarker(want.String())
		if !ok {
			t.Fatalf("parse failed for %q", want.String())
		}
		if got != want {
			t.Fatalf("round trip: got=%+v want=%+v", got, want)
		}
	}
}

func TestParseMarkerRejectsOrdinaryOutput(t *testing.T) {
	lines := []string{
		"",
		"hello",
		"=== Execution completed ===",
		"[SUCCESS] Command completed successfully.",
		"=== ECCO DONE ===",
		"=== ECCO DONE state=bogus exit=0 at=2026-08-30T12:00:00Z ===",
		"=== ECCO DONE state=succeeded exit=zero at=2026-08-30T12:00:00Z ===",
		"=== ECCO DONE state=succeeded exit=0 at=yesterday ===",
		"=== ECCO DONE state=succeeded exit=0 at=2026-08-30T12:00:00Z",
	}
	for _, line := range lines {
		if IsMarkerLine(line) {
			t.Fatalf("%q parsed as marker", line)
		}
	}
}

func TestMarkerFor(t *testing.T) {
	now := time.Now()
	if m := MarkerFor(0, now); m.State != StateSucceeded || m.ExitCode != 0 {
		t.Fatalf("exit 0: %+v", m)
	}
	if m := MarkerFor(3, now); m.State != StateFailed || m.ExitCode != 3 {
		t.Fatalf("exit 3: %+v", m)
	}
	if m := MarkerFor(-1, now); m.State != StateCrashed || m.ExitCode != CrashedExitCode {
		t.Fatalf("crash: %+v", m)
	}
}
