package decode

// Kind identifies which record variant a frame carries.
type Kind uint8

const (
	KindStart Kind = iota
	KindEnd
	KindEnter
	KindExit
	KindEvent
)

// KV is an ordered attribute key/value pair as it appears on the wire.
type KV struct {
	Key   string
	Value string
}

// Record is one decoded trace frame. Only the fields relevant to Kind are
// populated; the zero value of the others is never meaningful.
type Record struct {
	Kind Kind

	Ts       uint64
	ID       uint64 // external id (Start, End, Enter, Exit)
	ThreadID uint64 // Enter, Exit

	Parent   *uint64 // Start, Event: external id of the parent, if any
	Name     string  // Start
	Target   string  // Start
	Values   []KV    // Start, Event
}
