// Package span defines the data model for reconstructed trace spans: the
// unit the store indexes, the reader apportions self-time across, and the
// metrics surface reports aggregates for.
package span

// ID is a dense internal span identifier. It is assigned by the store and is
// stable for the lifetime of one store generation; it is never recycled.
type ID uint64

// Interval is a closed self-time window: the span was topmost on some
// thread's call stack from Start to End.
type Interval struct {
	Start uint64 // monotonic ns
	End   uint64 // monotonic ns
}

// Attr is an ordered key/value pair. A slice (not a map) preserves the
// producer's field order, which matters for display.
type Attr struct {
	Key   string
	Value string
}

// Event is a point-in-time annotation attached to a span (or, when no
// parent resolves, tracked as a root event by the store).
type Event struct {
	Ts     uint64
	Values []Attr
}

// Span is one timed scope in the reconstructed tree.
type Span struct {
	ID       ID
	Parent   *ID // nil for a root span
	Start    uint64
	Target   string
	Name     string
	Values   []Attr
	Children []ID // insertion-ordered

	SelfTime []Interval
	Events   []Event

	// Cached aggregates, valid only when the owning span is not present in
	// the store's outdated set. Recomputed by Store.InvalidateOutdated.
	Inclusive  uint64
	Exclusive  uint64
	ChildCount int
}

// LastExit returns the end timestamp of the last closed self-time interval,
// or Start if the span never accumulated self-time. Aggregate computation
// does not use it.
func (s *Span) LastExit() uint64 {
	if len(s.SelfTime) == 0 {
		return s.Start
	}
	return s.SelfTime[len(s.SelfTime)-1].End
}
