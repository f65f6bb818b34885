package store

import (
	"sync"

	"github.com/nextlevelbuilder/tracereader/internal/span"
)

// Container provides exactly two handle kinds over a Store: an exclusive
// WriteGuard (only the trace reader holds one at a time) and a shared
// ReadGuard (any number of viewer/metrics goroutines). It is built on
// sync.RWMutex, which is writer-preferring in the Go runtime — a blocked
// Lock call excludes further RLock acquisitions — satisfying §5's
// "reader-preferring is not acceptable" requirement without extra
// bookkeeping.
type Container struct {
	mu    sync.RWMutex
	store *Store
}

// NewContainer wraps a fresh, empty Store.
func NewContainer() *Container {
	return &Container{store: New()}
}

// WriteGuard is the exclusive handle used by the trace reader to mutate the
// store. Only one may be held at a time, and it excludes all readers.
type WriteGuard struct {
	c *Container
}

// Write acquires the exclusive write guard, blocking until any in-flight
// reads complete.
func (c *Container) Write() *WriteGuard {
	c.mu.Lock()
	return &WriteGuard{c: c}
}

// Release returns the write guard; it must be called exactly once.
func (g *WriteGuard) Release() {
	g.c.mu.Unlock()
}

// AddSpan delegates to the wrapped Store. See Store.AddSpan.
func (g *WriteGuard) AddSpan(parent *span.ID, ts uint64, target, name string, values []span.Attr, outdated map[span.ID]struct{}) span.ID {
	return g.c.store.AddSpan(parent, ts, target, name, values, outdated)
}

// AddSelfTime delegates to the wrapped Store. See Store.AddSelfTime.
func (g *WriteGuard) AddSelfTime(id span.ID, start, end uint64, outdated map[span.ID]struct{}) {
	g.c.store.AddSelfTime(id, start, end, outdated)
}

// AddEvent delegates to the wrapped Store. See Store.AddEvent.
func (g *WriteGuard) AddEvent(parent *span.ID, ts uint64, values []span.Attr) {
	g.c.store.AddEvent(parent, ts, values)
}

// InvalidateOutdated delegates to the wrapped Store. See
// Store.InvalidateOutdated.
func (g *WriteGuard) InvalidateOutdated(outdated map[span.ID]struct{}) {
	g.c.store.InvalidateOutdated(outdated)
}

// Reset delegates to the wrapped Store. See Store.Reset.
func (g *WriteGuard) Reset() {
	g.c.store.Reset()
}

// Span exposes read access to the writer itself (e.g. for the optional
// OTLP export path, whose spans are read under the same write-handle hold
// as the mutations that produced them).
func (g *WriteGuard) Span(id span.ID) (span.Span, bool) {
	return g.c.store.Span(id)
}

// Stats delegates to the wrapped Store.
func (g *WriteGuard) Stats() Stats {
	return g.c.store.Stats()
}

// ReadGuard is a shared handle used by viewers and the metrics surface to
// inspect a consistent snapshot of the store. Any number may be held
// concurrently; acquiring one excludes the writer.
type ReadGuard struct {
	c *Container
}

// Read acquires a shared read guard, blocking only while a writer holds the
// exclusive guard.
func (c *Container) Read() *ReadGuard {
	c.mu.RLock()
	return &ReadGuard{c: c}
}

// Release returns the read guard; it must be called exactly once.
func (g *ReadGuard) Release() {
	g.c.mu.RUnlock()
}

// Roots delegates to the wrapped Store.
func (g *ReadGuard) Roots() []span.ID { return g.c.store.Roots() }

// Children delegates to the wrapped Store.
func (g *ReadGuard) Children(id span.ID) []span.ID { return g.c.store.Children(id) }

// Span delegates to the wrapped Store.
func (g *ReadGuard) Span(id span.ID) (span.Span, bool) { return g.c.store.Span(id) }

// Generation delegates to the wrapped Store.
func (g *ReadGuard) Generation() uint64 { return g.c.store.Generation() }

// Stats delegates to the wrapped Store.
func (g *ReadGuard) Stats() Stats { return g.c.store.Stats() }
