// Package store implements SpanStore, the append-only indexed collection of
// reconstructed spans, and StoreContainer, the single-writer/many-reader
// synchronization wrapper around it.
package store

import (
	"container/heap"

	"github.com/nextlevelbuilder/tracereader/internal/span"
)

const maxRootEvents = 4096

// Stats is a point-in-time snapshot of store size, exposed to the metrics
// surface.
type Stats struct {
	SpanCount  int
	RootCount  int
	Generation uint64
	ResetCount uint64
}

// Store is the core span index. It is not safe for concurrent use on its
// own — StoreContainer is what enforces the single-writer/many-reader
// discipline described in the package doc.
type Store struct {
	spans []span.Span
	roots []span.ID

	rootEvents    []span.Event
	rootEventHead int

	generation uint64
	resetCount uint64
}

// New returns an empty store at generation 0.
func New() *Store {
	return &Store{}
}

// AddSpan allocates a new dense id, appends the span, links it into its
// parent's children (or the root list), and marks the new span — and, if
// present, its parent — outdated. The parent is marked too because its
// child count and inclusive time are now stale.
func (s *Store) AddSpan(parent *span.ID, ts uint64, target, name string, values []span.Attr, outdated map[span.ID]struct{}) span.ID {
	id := span.ID(len(s.spans))
	sp := span.Span{
		ID:     id,
		Parent: parent,
		Start:  ts,
		Target: target,
		Name:   name,
		Values: values,
	}
	s.spans = append(s.spans, sp)

	if parent != nil {
		s.spans[*parent].Children = append(s.spans[*parent].Children, id)
		outdated[*parent] = struct{}{}
	} else {
		s.roots = append(s.roots, id)
	}
	outdated[id] = struct{}{}
	return id
}

// AddSelfTime appends a closed self-time interval to span id and marks it
// outdated. Ancestor propagation happens lazily, inside
// InvalidateOutdated, so marking only the span itself here keeps
// per-mutation cost independent of tree depth.
func (s *Store) AddSelfTime(id span.ID, start, end uint64, outdated map[span.ID]struct{}) {
	s.spans[id].SelfTime = append(s.spans[id].SelfTime, span.Interval{Start: start, End: end})
	outdated[id] = struct{}{}
}

// AddEvent attaches an event to the parent span, or to the store's bounded
// root-event ring when parent is nil. Events never affect outdated-ness —
// they carry no cached aggregate.
func (s *Store) AddEvent(parent *span.ID, ts uint64, values []span.Attr) {
	ev := span.Event{Ts: ts, Values: values}
	if parent != nil {
		s.spans[*parent].Events = append(s.spans[*parent].Events, ev)
		return
	}
	if len(s.rootEvents) < maxRootEvents {
		s.rootEvents = append(s.rootEvents, ev)
		return
	}
	s.rootEvents[s.rootEventHead] = ev
	s.rootEventHead = (s.rootEventHead + 1) % maxRootEvents
}

// idHeap is a max-heap of span ids, used by InvalidateOutdated to recompute
// aggregates bottom-up: children always have a strictly larger id than
// their parent (a parent is created before any of its children), so
// popping the largest remaining id first guarantees every child of a node
// is resolved before the node itself is processed.
type idHeap []span.ID

func (h idHeap) Len() int            { return len(h) }
func (h idHeap) Less(i, j int) bool  { return h[i] > h[j] }
func (h idHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x interface{}) { *h = append(*h, x.(span.ID)) }
func (h *idHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// InvalidateOutdated recomputes cached aggregates for every span in the
// outdated set, and transitively for their ancestors, bottom-up: exclusive
// time is the sum of self-time intervals, inclusive time is exclusive plus
// the sum of children's (already-current) inclusive time. It is idempotent
// — invoking it again with an empty set, or with a set whose spans have not
// mutated since, changes nothing.
func (s *Store) InvalidateOutdated(outdated map[span.ID]struct{}) {
	if len(outdated) == 0 {
		return
	}

	h := make(idHeap, 0, len(outdated))
	for id := range outdated {
		h = append(h, id)
	}
	heap.Init(&h)

	visited := make(map[span.ID]struct{}, len(outdated))
	for h.Len() > 0 {
		id := heap.Pop(&h).(span.ID)
		if _, done := visited[id]; done {
			continue
		}
		visited[id] = struct{}{}

		sp := &s.spans[id]
		var exclusive uint64
		for _, iv := range sp.SelfTime {
			exclusive += iv.End - iv.Start
		}
		inclusive := exclusive
		for _, childID := range sp.Children {
			inclusive += s.spans[childID].Inclusive
		}
		sp.Exclusive = exclusive
		sp.Inclusive = inclusive
		sp.ChildCount = len(sp.Children)

		if sp.Parent != nil {
			heap.Push(&h, *sp.Parent)
		}
	}
}

// Reset discards all spans and indices and increments the generation
// counter, so readers that cached a generation can detect staleness.
func (s *Store) Reset() {
	s.spans = nil
	s.roots = nil
	s.rootEvents = nil
	s.rootEventHead = 0
	s.generation++
	s.resetCount++
}

// Generation returns the current generation counter.
func (s *Store) Generation() uint64 { return s.generation }

// Roots returns the current root span ids, in creation order. The returned
// slice is a copy; callers must not retain it across a Reset.
func (s *Store) Roots() []span.ID {
	out := make([]span.ID, len(s.roots))
	copy(out, s.roots)
	return out
}

// Children returns the children of id, in insertion order. The returned
// slice is a copy.
func (s *Store) Children(id span.ID) []span.ID {
	if int(id) >= len(s.spans) {
		return nil
	}
	children := s.spans[id].Children
	out := make([]span.ID, len(children))
	copy(out, children)
	return out
}

// Span returns a copy of the span with the given id.
func (s *Store) Span(id span.ID) (span.Span, bool) {
	if int(id) >= len(s.spans) {
		return span.Span{}, false
	}
	return s.spans[id], true
}

// Stats returns a point-in-time size snapshot.
func (s *Store) Stats() Stats {
	return Stats{
		SpanCount:  len(s.spans),
		RootCount:  len(s.roots),
		Generation: s.generation,
		ResetCount: s.resetCount,
	}
}
