// Package reconstruct maps decoded trace records onto SpanStore mutations:
// it is the pure state machine described in spec §4.2, buffering
// out-of-order records and maintaining per-thread stacks for self-time
// accounting. It holds no file or synchronization state of its own — that
// is the trace reader's job.
package reconstruct

import (
	"github.com/nextlevelbuilder/tracereader/internal/decode"
	"github.com/nextlevelbuilder/tracereader/internal/span"
	"github.com/nextlevelbuilder/tracereader/internal/store"
)

// stackKey identifies one (span, thread) pair's currently-open self-time
// interval.
type stackKey struct {
	id     span.ID
	thread uint64
}

// State is one reader session's transient bookkeeping. It is created fresh
// each time the reader opens the trace file and discarded on reset — see
// spec §3 "Lifecycle".
type State struct {
	// activeIDs maps the trace producer's external span id to the dense
	// internal id, for spans that have a Start but no End yet.
	activeIDs map[uint64]span.ID

	// queuedRows defers records whose referenced external id is not yet
	// live, keyed by the external id they are waiting on — not by the
	// deferred record's own id. This keeps draining O(k) in the number of
	// rows queued for that one key.
	queuedRows map[uint64][]*decode.Record

	// threadStacks holds, per thread, the ordered stack of internal ids
	// currently entered on that thread.
	threadStacks map[uint64][]span.ID

	// selfTimeStarted records when a (span, thread) pair last became
	// topmost on that thread's stack.
	selfTimeStarted map[stackKey]uint64

	// Outdated collects spans whose aggregates must be recomputed before
	// the batch's write handle is released.
	Outdated map[span.ID]struct{}
}

// NewState returns an empty reader session.
func NewState() *State {
	return &State{
		activeIDs:       make(map[uint64]span.ID),
		queuedRows:      make(map[uint64][]*decode.Record),
		threadStacks:    make(map[uint64][]span.ID),
		selfTimeStarted: make(map[stackKey]uint64),
		Outdated:        make(map[span.ID]struct{}),
	}
}

// Process applies one decoded record to the store under w, per spec §4.2.
func Process(w *store.WriteGuard, st *State, rec *decode.Record) {
	switch rec.Kind {
	case decode.KindStart:
		processStart(w, st, rec)
	case decode.KindEnd:
		delete(st.activeIDs, rec.ID)
	case decode.KindEnter:
		processEnter(w, st, rec)
	case decode.KindExit:
		processExit(w, st, rec)
	case decode.KindEvent:
		processEvent(w, st, rec)
	}
}

func processStart(w *store.WriteGuard, st *State, rec *decode.Record) {
	var parentInternal *span.ID
	if rec.Parent != nil {
		internal, ok := st.activeIDs[*rec.Parent]
		if !ok {
			st.defer_(*rec.Parent, rec)
			return
		}
		parentInternal = &internal
	}

	id := w.AddSpan(parentInternal, rec.Ts, rec.Target, rec.Name, toAttrs(rec.Values), st.Outdated)
	st.activeIDs[rec.ID] = id
	st.drain(w, rec.ID)
}

func processEnter(w *store.WriteGuard, st *State, rec *decode.Record) {
	internal, ok := st.activeIDs[rec.ID]
	if !ok {
		st.defer_(rec.ID, rec)
		return
	}

	stack := st.threadStacks[rec.ThreadID]
	if len(stack) > 0 {
		top := stack[len(stack)-1]
		key := stackKey{top, rec.ThreadID}
		if start, ok := st.selfTimeStarted[key]; ok {
			delete(st.selfTimeStarted, key)
			w.AddSelfTime(top, start, rec.Ts, st.Outdated)
		}
	}

	stack = append(stack, internal)
	st.threadStacks[rec.ThreadID] = stack
	st.selfTimeStarted[stackKey{internal, rec.ThreadID}] = rec.Ts
}

// processExit removes the internal id from wherever it sits on the
// thread's stack — not strictly a pop. A trace may exit a span out of
// strict LIFO order; collapsing the intervening frames is preferable to
// dropping the record, since the producer is authoritative about its own
// lifecycle.
func processExit(w *store.WriteGuard, st *State, rec *decode.Record) {
	internal, ok := st.activeIDs[rec.ID]
	if !ok {
		st.defer_(rec.ID, rec)
		return
	}

	stack := st.threadStacks[rec.ThreadID]
	pos := -1
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == internal {
			pos = i
			break
		}
	}
	if pos >= 0 {
		stack = append(stack[:pos], stack[pos+1:]...)
		st.threadStacks[rec.ThreadID] = stack
		if pos > 0 {
			newTop := stack[pos-1]
			st.selfTimeStarted[stackKey{newTop, rec.ThreadID}] = rec.Ts
		}
	}

	key := stackKey{internal, rec.ThreadID}
	if start, ok := st.selfTimeStarted[key]; ok {
		delete(st.selfTimeStarted, key)
		w.AddSelfTime(internal, start, rec.Ts, st.Outdated)
	}
}

func processEvent(w *store.WriteGuard, st *State, rec *decode.Record) {
	var parentInternal *span.ID
	if rec.Parent != nil {
		internal, ok := st.activeIDs[*rec.Parent]
		if !ok {
			st.defer_(*rec.Parent, rec)
			return
		}
		parentInternal = &internal
	}
	w.AddEvent(parentInternal, rec.Ts, toAttrs(rec.Values))
}

// defer_ buffers rec behind the external id it is waiting on. Trailing
// underscore avoids colliding with the defer keyword.
func (st *State) defer_(awaited uint64, rec *decode.Record) {
	st.queuedRows[awaited] = append(st.queuedRows[awaited], rec)
}

// drain reprocesses, in FIFO order, every record that was waiting on
// awaited — immediately after the Start that makes awaited live has been
// applied.
func (st *State) drain(w *store.WriteGuard, awaited uint64) {
	queue := st.queuedRows[awaited]
	if len(queue) == 0 {
		return
	}
	delete(st.queuedRows, awaited)
	for _, rec := range queue {
		Process(w, st, rec)
	}
}

func toAttrs(values []decode.KV) []span.Attr {
	if len(values) == 0 {
		return nil
	}
	out := make([]span.Attr, len(values))
	for i, kv := range values {
		out[i] = span.Attr{Key: kv.Key, Value: kv.Value}
	}
	return out
}
