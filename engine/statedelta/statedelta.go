// Package statedelta implements the state-delta calculator (spec
// §4.9): a pure function over event-ID sets, with no knowledge of
// event content, storage or filtering. Filtering happens in the
// caller, after Compute returns, by consulting collab.StateFilter
// against the full events the IDs here name.
package statedelta

// Compute returns the state delta a client must be sent, given:
//
//   current          - IDs of state at the end of the batch (C)
//   timelineStart     - IDs of state at the start of the batch (TS)
//   previous          - IDs of state the client already has, as of
//                       its cursor (P)
//   timelineContains  - IDs of state-shaped events already present in
//                       the timeline batch itself (TC), which
//                       therefore need not be repeated in the state
//                       section
//
// The formula is the literal ((C ∪ TS) \ P) \ TC, computed over raw
// event IDs rather than collapsed to one ID per (type, state_key)
// slot first. That distinction matters: if a slot changed twice
// within the batch — once to an event trimmed out of the visible
// timeline, once more to an event delivered inline in the timeline —
// collapsing to "current wins" before filtering would silently drop
// the trimmed change the client never otherwise learns about. Working
// ID-by-ID lets each change answer the TC test independently.
func Compute(current, timelineStart, previous, timelineContains map[string]struct{}) []string {
	union := make(map[string]struct{}, len(current)+len(timelineStart))
	for id := range timelineStart {
		union[id] = struct{}{}
	}
	for id := range current {
		union[id] = struct{}{}
	}

	out := make([]string, 0, len(union))
	for id := range union {
		if _, ok := previous[id]; ok {
			continue
		}
		if _, ok := timelineContains[id]; ok {
			continue
		}
		out = append(out, id)
	}
	return out
}
