// Package reader implements TraceReader, the driver that tails a growing
// trace file, feeds bytes through the decoder, drives the reconstructor,
// and coordinates with the span store under the single-writer discipline
// described in spec §4.3 and §5.
package reader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/nextlevelbuilder/tracereader/internal/decode"
	"github.com/nextlevelbuilder/tracereader/internal/reconstruct"
	"github.com/nextlevelbuilder/tracereader/internal/span"
	"github.com/nextlevelbuilder/tracereader/internal/store"
)

const (
	// maxRowsPerLock bounds how many records may be processed under a
	// single write-handle hold, to bound worst-case reader starvation.
	maxRowsPerLock = 100 * 1024

	// readChunkSize is the amount read from the file per iteration.
	readChunkSize = 1 << 20

	defaultRetryInterval = 500 * time.Millisecond
	defaultPollInterval  = 100 * time.Millisecond

	// maxMalformedStreak is how many consecutive read cycles may end in a
	// malformed frame, with zero records successfully decoded in between,
	// before the session is treated as truncated and reset.
	maxMalformedStreak = 2
)

// Exporter receives newly-invalidated spans after each processed batch. It
// is optional (nil disables export) and best-effort: export failures are
// logged, never propagated, matching the ingestion-level self-healing
// error policy in spec §7.
type Exporter interface {
	ExportSpans(ctx context.Context, spans []span.Span)
}

// Metrics receives counters about reader activity. It is optional.
type Metrics interface {
	RecordBatch(rows int)
	RecordReset()
	RecordMalformedFrame()
}

// Reader tails path and drives container. Construct with New and run with
// Run from a single goroutine — it is the sole writer to container by
// construction, so it needs no internal locking of its own.
type Reader struct {
	container *store.Container
	path      string

	pollInterval  time.Duration
	retryInterval time.Duration

	exporter Exporter
	metrics  Metrics
}

// Option configures a Reader at construction time.
type Option func(*Reader)

// WithPollInterval overrides the ~100ms "wait for more bytes" pacing.
func WithPollInterval(d time.Duration) Option {
	return func(r *Reader) { r.pollInterval = d }
}

// WithRetryInterval overrides the ~500ms "wait and reopen" pacing.
func WithRetryInterval(d time.Duration) Option {
	return func(r *Reader) { r.retryInterval = d }
}

// WithExporter attaches an optional span exporter.
func WithExporter(e Exporter) Option {
	return func(r *Reader) { r.exporter = e }
}

// WithMetrics attaches an optional metrics sink.
func WithMetrics(m Metrics) Option {
	return func(r *Reader) { r.metrics = m }
}

// New constructs a Reader over container for the trace file at path.
func New(container *store.Container, path string, opts ...Option) *Reader {
	r := &Reader{
		container:     container,
		path:          path,
		pollInterval:  defaultPollInterval,
		retryInterval: defaultRetryInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run is the top-level loop (spec §4.3 step 1): attempt to open the file,
// tail it until a truncation/replace/read-error ends the session, reset the
// store, pace, and retry. It returns only when ctx is done — in normal
// operation this call does not return, matching "shutdown is process
// level."
func (r *Reader) Run(ctx context.Context) error {
	wake := r.watchForChanges(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if needsReset := r.trySession(ctx, wake); needsReset {
			w := r.container.Write()
			w.Reset()
			w.Release()
			if r.metrics != nil {
				r.metrics.RecordReset()
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.retryInterval):
		case <-wake:
		}
	}
}

// watchForChanges attempts to watch the trace file's directory so a
// truncation or replace (rename/remove/create) wakes the poll loop
// immediately rather than waiting out the full poll interval. Failure to
// establish a watch is logged and otherwise ignored — fsnotify is an
// accelerant on top of the polling loop, never a correctness dependency.
func (r *Reader) watchForChanges(ctx context.Context) <-chan struct{} {
	wake := make(chan struct{}, 1)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("reader: fsnotify unavailable, falling back to pure polling", "error", err)
		return wake
	}
	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		slog.Warn("reader: cannot watch trace file directory", "dir", dir, "error", err)
		watcher.Close()
		return wake
	}

	base := filepath.Base(r.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("reader: fsnotify error", "error", err)
			}
		}
	}()
	return wake
}

// trySession opens the file and tails it until a genuine read error or
// persistent malformed framing ends the session, returning whether the
// caller should reset the store.
// FileUnavailable (open failure) returns false without resetting — spec §7
// says that policy is pure retry pacing, no reset.
func (r *Reader) trySession(ctx context.Context, wake <-chan struct{}) bool {
	file, err := os.Open(r.path)
	if err != nil {
		return false
	}
	defer file.Close()

	sessionID := uuid.NewString()
	slog.Debug("reader: session started", "session", sessionID, "path", r.path)

	st := reconstruct.NewState()
	buffer := make([]byte, 0, readChunkSize*2)
	index := 0
	malformedStreak := 0
	chunk := make([]byte, readChunkSize)

	for {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		n, rerr := file.Read(chunk)
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			slog.Error("reader: read error, resetting", "session", sessionID, "error", rerr)
			return true
		}

		if n == 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(r.pollInterval):
			case <-wake:
			}
			continue
		}

		if index > 0 && len(buffer)+n > cap(buffer) {
			buffer = append(buffer[:0], buffer[index:]...)
			index = 0
		}
		buffer = append(buffer, chunk[:n]...)

		records, escalate := r.decodeAvailable(&buffer, &index, &malformedStreak, sessionID)
		if escalate {
			return true
		}
		if len(records) > 0 {
			r.processBatch(ctx, st, records)
		}
	}
}

// decodeAvailable drains every complete frame currently available in
// *buffer starting at *index, advancing *index as it goes. It returns the
// decoded records and whether persistent malformed framing requires
// escalating to a full session reset.
func (r *Reader) decodeAvailable(buffer *[]byte, index *int, malformedStreak *int, sessionID string) ([]*decode.Record, bool) {
	var records []*decode.Record

	for {
		rec, next, err := decode.Decode(*buffer, *index)
		if err == nil {
			*index = next
			records = append(records, rec)
			continue
		}
		if errors.Is(err, decode.ErrNeedMore) {
			break
		}

		var merr *decode.MalformedError
		if errors.As(err, &merr) {
			if r.metrics != nil {
				r.metrics.RecordMalformedFrame()
			}
			slog.Warn("reader: malformed frame, skipping buffered tail",
				"session", sessionID, "offset", merr.Offset)
			// Skip-one-frame policy: the rest of the currently buffered
			// bytes is untrustworthy, so drop it and wait for fresh data
			// rather than aborting the whole session immediately.
			*index = len(*buffer)
			if len(records) == 0 {
				*malformedStreak++
				if *malformedStreak >= maxMalformedStreak {
					slog.Error("reader: malformed frames persisted after new data, resetting",
						"session", sessionID)
					return records, true
				}
			} else {
				*malformedStreak = 0
			}
		}
		break
	}

	if len(records) > 0 {
		*malformedStreak = 0
	}
	return records, false
}

// processBatch applies records to the store, sub-batched so that no single
// write-handle hold exceeds maxRowsPerLock records (spec §4.3 "Batching
// bound"). Every sub-batch acquires the write handle once, applies all its
// records, and drains the outdated set before releasing — so viewers never
// observe a partial batch.
func (r *Reader) processBatch(ctx context.Context, st *reconstruct.State, records []*decode.Record) {
	for start := 0; start < len(records); start += maxRowsPerLock {
		end := start + maxRowsPerLock
		if end > len(records) {
			end = len(records)
		}
		sub := records[start:end]

		w := r.container.Write()
		for _, rec := range sub {
			reconstruct.Process(w, st, rec)
		}
		w.InvalidateOutdated(st.Outdated)

		var exported []span.Span
		if r.exporter != nil {
			exported = make([]span.Span, 0, len(st.Outdated))
			for id := range st.Outdated {
				if sp, ok := w.Span(id); ok {
					exported = append(exported, sp)
				}
			}
		}
		clear(st.Outdated)
		w.Release()

		if r.metrics != nil {
			r.metrics.RecordBatch(len(sub))
		}
		if r.exporter != nil && len(exported) > 0 {
			r.exporter.ExportSpans(ctx, exported)
		}
	}
}
