// Package timeline implements the timeline loader (spec §4.8): the
// limited/not-limited decision, the back-fill retry loop, trimming,
// and a well-defined prev_batch independent of whether back-fill ran.
package timeline

import (
	"context"

	"github.com/arcchat/syncengine/collab"
	"github.com/arcchat/syncengine/internal/logging"
	"github.com/arcchat/syncengine/types"
	"github.com/pkg/errors"
)

const (
	minLoadLimit  = 10
	maxAttempts   = 5
)

// Params bundles one room's timeline-load inputs.
type Params struct {
	RoomID         string
	Since          types.StreamPosition // cursor.RoomKey; ignored as a lower bound for newly-joined rooms
	Upto           types.StreamPosition // now_token.RoomKey, or the leave event's position for archived rooms
	TimelineLimit  int
	NewlyJoined    bool
	// Recents, when non-nil, is an already-loaded candidate window the
	// caller obtained some other way (e.g. the room-change resolver's
	// up-to-timeline_limit+1 fetch for currently-joined rooms);
	// when nil, Load fetches it itself via the back-fill loop.
	Recents []*types.Event
	// EventFilter narrows which event types are delivered (spec §6
	// filter_room_timeline's types/not_types). Zero value allows
	// everything through.
	EventFilter collab.RoomEventFilter
}

// Load implements spec §4.8 in full: the limited decision, the
// visibility/membership filter application, the back-fill loop when
// required, trimming, and prev_batch computation.
func Load(ctx context.Context, store collab.Storage, filter collab.VisibilityFilter, userID string, p Params) (types.TimelineBatch, error) {
	log := logging.Logger().WithField("component", "timeline").WithField("room_id", p.RoomID)

	limited := p.Recents == nil || p.NewlyJoined || len(p.Recents) > p.TimelineLimit
	events := p.Recents

	if events != nil && !limited {
		filtered, err := filter.FilterEventsForClient(ctx, userID, events)
		if err != nil {
			return types.TimelineBatch{}, err
		}
		filtered = applyEventFilter(filtered, p.EventFilter)
		return types.TimelineBatch{
			PrevBatch: p.Upto,
			Events:    filtered,
			Limited:   false,
		}, nil
	}

	if events != nil {
		filtered, err := filter.FilterEventsForClient(ctx, userID, events)
		if err != nil {
			return types.TimelineBatch{}, err
		}
		events = applyEventFilter(filtered, p.EventFilter)
	}

	since := p.Since
	if p.NewlyJoined {
		// A newly-joined room ignores the since lower bound: the
		// client has never seen any of this room's history.
		since = 0
	}

	loadLimit := p.TimelineLimit * 2
	if loadLimit < minLoadLimit {
		loadLimit = minLoadLimit
	}

	attempts := 0
	for len(events) < p.TimelineLimit && attempts < maxAttempts {
		attempts++
		batch, err := store.GetRecentEventsForRoom(ctx, p.RoomID, since, p.Upto, loadLimit)
		if err != nil {
			return types.TimelineBatch{}, errors.Wrapf(err, "loading recent events for room %s", p.RoomID)
		}
		filtered, err := filter.FilterEventsForClient(ctx, userID, batch)
		if err != nil {
			return types.TimelineBatch{}, err
		}
		events = applyEventFilter(filtered, p.EventFilter)
		if len(batch) < loadLimit {
			// Storage had nothing further back than this: no more to
			// back-fill, so the batch we have is everything there is.
			limited = false
			break
		}
		loadLimit *= 2
	}
	if attempts >= maxAttempts {
		log.WithField("attempts", attempts).Debug("timeline back-fill loop exhausted its retry budget")
	}

	if len(events) > p.TimelineLimit {
		events = events[len(events)-p.TimelineLimit:]
	}

	return types.TimelineBatch{
		PrevBatch: prevBatchFor(events, p.Upto),
		Events:    events,
		Limited:   limited,
	}, nil
}

// applyEventFilter narrows events down to f.Types when non-empty, then
// drops anything in f.NotTypes (not_types wins over types on overlap,
// matching Synapse's filter_room_timeline precedence). Zero-value f
// passes every event through unchanged.
func applyEventFilter(events []*types.Event, f collab.RoomEventFilter) []*types.Event {
	if len(f.Types) == 0 && len(f.NotTypes) == 0 {
		return events
	}
	allow := make(map[string]struct{}, len(f.Types))
	for _, t := range f.Types {
		allow[t] = struct{}{}
	}
	deny := make(map[string]struct{}, len(f.NotTypes))
	for _, t := range f.NotTypes {
		deny[t] = struct{}{}
	}
	out := make([]*types.Event, 0, len(events))
	for _, ev := range events {
		if len(allow) > 0 {
			if _, ok := allow[ev.Type]; !ok {
				continue
			}
		}
		if _, ok := deny[ev.Type]; ok {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// prevBatchFor derives the position a client must supply to page
// further back, from the first retained event's own Before field.
// This is well-defined whether or not the back-fill loop ran: it
// never depends on how many back-fill rounds executed, only on the
// first event actually kept (spec §9 bullet 3).
func prevBatchFor(events []*types.Event, fallback types.StreamPosition) types.StreamPosition {
	if len(events) == 0 {
		return fallback
	}
	return events[0].Before
}
