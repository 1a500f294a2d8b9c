// Package event defines the Event record that flows through a pipeline
// instance, generalizing the teacher's layered ingest records
// (ParsedDoc -> ChunkedDoc -> EmbeddedDoc) into a single record carrying a
// Value payload plus stage-owned metadata.
package event

import "github.com/fluxcore/fluxcore/pkg/value"

// Kind tags an out-of-band signal carried by an Event, used for contraflow
// (insight) messages flowing back from a sink through a pipeline.
type Kind int

const (
	// KindNormal is a regular data event.
	KindNormal Kind = iota
	// KindInsight carries sink latency/error feedback (contraflow).
	KindInsight
	// KindSignal carries control-plane ticks (e.g. periodic metrics flush).
	KindSignal
)

// Event is a record threaded through a pipeline instance.
type Event struct {
	ID       uint64
	IsBatch  bool
	IngestNS uint64
	Value    value.Value
	Meta     map[string]value.Value
	Kind     Kind
}

// New constructs a normal Event with an empty meta map.
func New(id uint64, ingestNS uint64, v value.Value) Event {
	return Event{ID: id, IngestNS: ingestNS, Value: v, Meta: map[string]value.Value{}}
}

// MetaGet reads a meta field, returning the zero Value and false if absent.
func (e Event) MetaGet(key string) (value.Value, bool) {
	if e.Meta == nil {
		return value.Value{}, false
	}
	v, ok := e.Meta[key]
	return v, ok
}

// WithMeta returns a copy of the event with meta[key] set to v. Meta is
// copied shallowly so sibling events (e.g. batch members sharing IngestNS)
// are never mutated by one stage's meta assignment.
func (e Event) WithMeta(key string, v value.Value) Event {
	newMeta := make(map[string]value.Value, len(e.Meta)+1)
	for k, mv := range e.Meta {
		newMeta[k] = mv
	}
	newMeta[key] = v
	e.Meta = newMeta
	return e
}

// Sub iterates the member events of a batch event. A batch event's Value is
// an array; each element becomes its own Event sharing IngestNS and ID, with
// IsBatch cleared. Non-batch events yield themselves as the sole element.
func (e Event) Sub() []Event {
	if !e.IsBatch {
		return []Event{e}
	}
	elems, ok := e.Value.AsArray()
	if !ok {
		return []Event{e}
	}
	out := make([]Event, len(elems))
	for i, v := range elems {
		sub := e
		sub.Value = v
		sub.IsBatch = false
		out[i] = sub
	}
	return out
}

// Insight describes sink feedback correlated to an event by ID.
type Insight struct {
	EventID   uint64
	LatencyNS uint64
	Err       error
}
