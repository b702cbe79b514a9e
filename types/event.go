package types

import "encoding/json"

// Event is the engine's opaque view of a timeline or state event. The
// engine never interprets Content; collaborators (visibility filter,
// push-rule formatter) do that on its behalf.
type Event struct {
	EventID        string
	RoomID         string
	Type           string
	StateKey       *string // nil for non-state events
	Sender         string
	Membership     string // only meaningful when Type == "m.room.member"
	OriginServerTS int64
	Content        json.RawMessage

	// Before is the sub-stream position immediately preceding this
	// event, used to compute a well-defined prev_batch regardless of
	// whether back-fill ran.
	Before StreamPosition
	// At is this event's own sub-stream position.
	At StreamPosition

	IsState bool
}

// IsStateEvent reports whether the event carries a state key.
func (e *Event) IsStateEvent() bool { return e.StateKey != nil }

// StateKeyTuple identifies a slot in a room's state map.
type StateKeyTuple struct {
	Type     string
	StateKey string
}

// RoomStateSnapshot is a room's state at some point, keyed by
// (type, state_key).
type RoomStateSnapshot map[StateKeyTuple]*Event

// IDSet projects a snapshot down to the raw set of event IDs it
// contains, discarding the (type, state_key) keying entirely — the
// representation the pure state-delta function operates on (spec
// §4.9's literal ((C ∪ TS) \ P) \ TC over event IDs, not over one ID
// per slot).
func (s RoomStateSnapshot) IDSet() map[string]struct{} {
	out := make(map[string]struct{}, len(s))
	for _, v := range s {
		if v != nil {
			out[v.EventID] = struct{}{}
		}
	}
	return out
}

// ByID indexes a snapshot by event ID, for resolving the state-delta
// calculator's raw ID output back to events.
func (s RoomStateSnapshot) ByID() map[string]*Event {
	out := make(map[string]*Event, len(s))
	for _, v := range s {
		if v != nil {
			out[v.EventID] = v
		}
	}
	return out
}
