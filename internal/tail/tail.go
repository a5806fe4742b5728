// Package tail implements a polling reader over a growing log artifact. It
// produces complete lines lazily, holds back trailing partial lines until the
// newline arrives, and reports Done once it has consumed the completion
// marker the log sink appends last. Polling keeps the reader portable across
// filesystems without change notification; each poll tick is also the
// cancellation granularity.
package tail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ecco-sh/ecco/internal/logsink"
)

// DefaultPollInterval is how often the reader re-checks the artifact for new
// bytes when none are available. Tunes latency against CPU.
const DefaultPollInterval = 100 * time.Millisecond

// DefaultOpenGrace bounds how long OpenWait retries before giving up on an
// artifact the runner has not created yet.
const DefaultOpenGrace = 10 * time.Second

// ErrDone signals the completion marker has been consumed; no further lines
// will ever be produced.
var ErrDone = errors.New("log complete")

// ErrTruncated signals the artifact shrank under the reader, which the
// single-writer append-only discipline forbids. Someone else touched the file.
var ErrTruncated = errors.New("log truncated while tailing")

// State classifies a non-blocking poll result.
type State int

const (
	// StatePending means no complete line is available right now.
	StatePending State = iota
	// StateLine means a line was produced.
	StateLine
	// StateDone means the completion marker has been consumed.
	StateDone
)

// Options tune a Reader.
type Options struct {
	// PollInterval overrides DefaultPollInterval when positive.
	PollInterval time.Duration
	// SkipLines drops this many leading complete lines before any are
	// produced.
	SkipLines int
}

// Reader tails one artifact. It owns its cursor exclusively: once advanced
// it cannot rewind, so restarting from the top means opening a new Reader.
// Not safe for concurrent use.
type Reader struct {
	path    string
	f       *os.File
	poll    time.Duration
	offset  int64
	partial []byte
	queued  []string
	skip    int
	done    bool
	marker  logsink.Marker
}

// Open opens an existing artifact for tailing from offset 0.
func Open(path string, opts Options) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Reader{path: path, f: f, poll: poll, skip: opts.SkipLines}, nil
}

// OpenWait opens the artifact, retrying on every poll tick while it does not
// exist yet. The runner and viewer start concurrently with no ordering
// guarantee, so a missing file within the grace period is a race at job
// start, not an error.
func OpenWait(ctx context.Context, path string, grace time.Duration, opts Options) (*Reader, error) {
	if grace <= 0 {
		grace = DefaultOpenGrace
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	deadline := time.Now().Add(grace)
	for {
		r, err := Open(path, opts)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("log %s did not appear within %s: %w", path, grace, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(poll):
		}
	}
}

// PollInterval returns the effective poll interval.
func (r *Reader) PollInterval() time.Duration { return r.poll }

// Marker returns the parsed completion marker once the reader is done.
func (r *Reader) Marker() (logsink.Marker, bool) {
	if !r.done {
		return logsink.Marker{}, false
	}
	return r.marker, true
}

// fill reads every currently available byte and queues complete lines.
func (r *Reader) fill() error {
	if r.done {
		return nil
	}
	buf := make([]byte, 32*1024)
	for {
		n, err := r.f.Read(buf)
		if n > 0 {
			r.offset += int64(n)
			r.partial = append(r.partial, buf[:n]...)
			r.queueLines()
			if r.done {
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return r.checkArtifact()
			}
			return err
		}
	}
}

// queueLines splits complete lines out of the partial buffer. Consuming a
// marker line flips the reader to done; the marker itself and anything after
// it is never produced as output.
func (r *Reader) queueLines() {
	for {
		i := bytes.IndexByte(r.partial, '\n')
		if i < 0 {
			return
		}
		line := strings.TrimRight(string(r.partial[:i]), "\r")
		r.partial = r.partial[i+1:]
		if m, ok := logsink.ParseMarker(line); ok {
			r.done = true
			r.marker = m
			r.partial = nil
			return
		}
		if r.skip > 0 {
			r.skip--
			continue
		}
		r.queued = append(r.queued, line)
	}
}

// checkArtifact re-stats the path at EOF to catch external deletion or
// truncation, neither of which surfaces through reads on the held
// descriptor.
func (r *Reader) checkArtifact() error {
	info, err := os.Stat(r.path)
	if err != nil {
		return err
	}
	if info.Size() < r.offset {
		return ErrTruncated
	}
	return nil
}

// TryNext is the non-blocking poll: it returns the next line, or Pending
// when the artifact has no new complete line, or Done after the marker.
func (r *Reader) TryNext() (string, State, error) {
	if len(r.queued) == 0 {
		// A fill error with lines already queued is deferred: the lines are
		// served first and the next call re-surfaces the condition.
		if err := r.fill(); err != nil && len(r.queued) == 0 {
			return "", StatePending, err
		}
	}
	if len(r.queued) > 0 {
		line := r.queued[0]
		r.queued = r.queued[1:]
		return line, StateLine, nil
	}
	if r.done {
		return "", StateDone, nil
	}
	return "", StatePending, nil
}

// Next blocks until a line is available, sleeping one poll interval between
// checks. It returns ErrDone once the marker has been consumed and the
// context error if cancelled; cancellation takes effect within one tick.
func (r *Reader) Next(ctx context.Context) (string, error) {
	for {
		line, state, err := r.TryNext()
		if err != nil {
			return "", err
		}
		switch state {
		case StateLine:
			return line, nil
		case StateDone:
			return "", ErrDone
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(r.poll):
		}
	}
}

// Close releases the descriptor. The cursor is dead afterwards.
func (r *Reader) Close() error {
	return r.f.Close()
}
