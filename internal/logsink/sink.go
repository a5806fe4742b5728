// Package logsink owns the append-only log artifact a job writes its combined
// output into. Exactly one Sink exists per job; readers (the viewer's tail
// reader, or plain tooling) only ever open the file for reading.
package logsink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrPathUnwritable indicates the log location could not be created or opened.
var ErrPathUnwritable = errors.New("log path unwritable")

// ErrFinalized indicates Finalize was called more than once.
var ErrFinalized = errors.New("sink already finalized")

const separator = "=================================================="

// State is the terminal state encoded in a completion marker.
type State string

const (
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCrashed   State = "crashed"
)

// CrashedExitCode is the fixed sentinel reported when the command could not
// be launched at all (shell missing, spawn denied).
const CrashedExitCode = 127

// Marker is the terminal fact appended exactly once after the child exits.
// Any reader that scans the stream and parses this line knows the job is done
// and has already seen every preceding byte of output.
type Marker struct {
	State    State
	ExitCode int
	At       time.Time
}

const (
	markerPrefix = "=== ECCO DONE "
	markerSuffix = " ==="
)

// String renders the marker wire form, a single reserved line:
//
//	=== ECCO DONE state=failed exit=3 at=2026-08-30T12:00:00Z ===
func (m Marker) String() string {
	return fmt.Sprintf("%sstate=%s exit=%d at=%s%s",
		markerPrefix, m.State, m.ExitCode, m.At.UTC().Format(time.RFC3339), markerSuffix)
}

// MarkerFor maps an exit code to its marker. A negative code means the
// command never launched.
func MarkerFor(exitCode int, at time.Time) Marker {
	switch {
	case exitCode < 0:
		return Marker{State: StateCrashed, ExitCode: CrashedExitCode, At: at}
	case exitCode == 0:
		return Marker{State: StateSucceeded, ExitCode: 0, At: at}
	default:
		return Marker{State: StateFailed, ExitCode: exitCode, At: at}
	}
}

// ParseMarker decodes a marker line. The strict shape (prefix, suffix, all
// three fields valid) is what keeps ordinary command output from being
// mistaken for a completion signal.
func ParseMarker(line string) (Marker, bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, markerPrefix) || !strings.HasSuffix(line, markerSuffix) {
		return Marker{}, false
	}
	body := strings.TrimSuffix(strings.TrimPrefix(line, markerPrefix), markerSuffix)
	fields := strings.Fields(body)
	if len(fields) != 3 {
		return Marker{}, false
	}
	var m Marker
	for _, field := range fields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return Marker{}, false
		}
		switch key {
		case "state":
			switch State(value) {
			case StateSucceeded, StateFailed, StateCrashed:
				m.State = State(value)
			default:
				return Marker{}, false
			}
		case "exit":
			code, err := strconv.Atoi(value)
			if err != nil {
				return Marker{}, false
			}
			m.ExitCode = code
		case "at":
			at, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return Marker{}, false
			}
			m.At = at
		default:
			return Marker{}, false
		}
	}
	if m.State == "" {
		return Marker{}, false
	}
	return m, true
}

// IsMarkerLine reports whether line is a well-formed completion marker.
func IsMarkerLine(line string) bool {
	_, ok := ParseMarker(line)
	return ok
}

// Sink is the single writer for one job's log artifact. Writes are appends;
// the file is never rewritten or truncated while the job runs. Bytes are
// visible to readers as soon as Append returns.
type Sink struct {
	path      string
	f         *os.File
	finalized bool
	lastByte  byte
}

// Open resolves path to an absolute location, creates missing parent
// directories and opens the artifact for appending. A fresh job starts with a
// truncated artifact so a stale completion marker from an earlier run can
// never terminate this job's viewers early.
func Open(path string) (*Sink, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPathUnwritable, path, err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPathUnwritable, abs, err)
	}
	f, err := os.OpenFile(abs, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPathUnwritable, abs, err)
	}
	return &Sink{path: abs, f: f, lastByte: '\n'}, nil
}

// Path returns the resolved absolute artifact path.
func (s *Sink) Path() string { return s.path }

// Append writes p to the artifact. Single-writer discipline: only the
// runner's drain goroutine calls this, so no locking is needed.
func (s *Sink) Append(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if s.finalized {
		return ErrFinalized
	}
	if _, err := s.f.Write(p); err != nil {
		return fmt.Errorf("append %s: %w", s.path, err)
	}
	s.lastByte = p[len(p)-1]
	return nil
}

// WriteHeader writes the banner block that precedes command output.
func (s *Sink) WriteHeader(command string, started time.Time) error {
	var b strings.Builder
	b.WriteString("=== Executing command ===\n")
	fmt.Fprintf(&b, "Command: %s\n", command)
	fmt.Fprintf(&b, "Log: %s\n", s.path)
	fmt.Fprintf(&b, "Started: %s\n", started.Format("2006-01-02 15:04:05"))
	b.WriteString(separator + "\n\n")
	return s.Append([]byte(b.String()))
}

// Finalize appends the completion footer and marker, then syncs and closes
// the artifact. The marker line is always the last line of the stream, and
// Finalize may only run once: the caller must not report completion until
// this returns, which makes the marker durable before anyone is told the job
// ended.
func (s *Sink) Finalize(m Marker) error {
	if s.finalized {
		return ErrFinalized
	}
	var b strings.Builder
	if s.lastByte != '\n' {
		b.WriteByte('\n')
	}
	b.WriteString("\n" + separator + "\n")
	b.WriteString("=== Execution completed ===\n")
	fmt.Fprintf(&b, "Ended: %s\n", m.At.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Exit code: %d\n", m.ExitCode)
	b.WriteString(separator + "\n")
	b.WriteString(m.String() + "\n")
	if err := s.Append([]byte(b.String())); err != nil {
		return err
	}
	s.finalized = true
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", s.path, err)
	}
	return s.f.Close()
}

// Close releases the file handle without finalizing. Used only on paths
// where the job never produced a marker-worthy outcome (configuration
// errors caught after open).
func (s *Sink) Close() error {
	if s.finalized {
		return nil
	}
	return s.f.Close()
}
