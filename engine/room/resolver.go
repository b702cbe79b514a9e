// Package room implements the room-change resolver (spec §4.4.b) and
// the per-room materializer (spec §4.6). Grounded on
// syncapi/sync/v4.go's determineRoomStreamState for the
// newly-joined/rejoin classification shape and
// syncapi/sync/v4_roomdata.go's BuildRoomData for the materializer's
// step order — NOT its hardcoded notification counts, which this
// package replaces with a real push-actions-store lookup per spec
// §4.6 step 5.
package room

import (
	"context"

	"github.com/arcchat/syncengine/collab"
	"github.com/arcchat/syncengine/types"
)

// PlanKind is the four-way classification a room falls into once
// membership changes have been resolved (spec §3 invariant: one of
// four variants, never more than one).
type PlanKind int

const (
	PlanJoined PlanKind = iota
	PlanInvited
	PlanArchived
	PlanError
)

// Plan is the room materialization plan: an internal, never-persisted
// description of what one room's materializer call must produce.
type Plan struct {
	RoomID             string
	Kind               PlanKind
	ErrorCode          types.ErrorCode
	NewlyJoined        bool
	FullState          bool
	SinceToken         *types.StreamPosition
	UptoToken          types.StreamPosition
	AlwaysInclude      bool
	WouldRequireResync bool
	Synced             bool
	InviterID          string // set for PlanInvited
}

// ResolveChanges implements spec §4.4.b: classify every room touched
// by a membership change since the cursor, plus (when there is no
// cursor, i.e. an initial sync) every room the user currently has any
// membership in.
func ResolveChanges(ctx context.Context, store collab.Storage, userID string, since *types.StreamPosition, upto types.StreamPosition, ignored map[string]struct{}, includeLeave bool) (map[string]*Plan, error) {
	if since == nil {
		return resolveInitial(ctx, store, userID, upto, ignored, includeLeave)
	}
	return resolveIncremental(ctx, store, userID, *since, upto, ignored, includeLeave)
}

func resolveInitial(ctx context.Context, store collab.Storage, userID string, upto types.StreamPosition, ignored map[string]struct{}, includeLeave bool) (map[string]*Plan, error) {
	plans := make(map[string]*Plan)
	rooms, err := store.GetRoomsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for roomID, membership := range rooms {
		ev, err := store.GetCurrentMembershipEvent(ctx, roomID, userID)
		if err != nil {
			return nil, err
		}
		switch membership {
		case "invite":
			if ev != nil {
				if _, isIgnored := ignored[ev.Sender]; isIgnored {
					continue
				}
			}
			inviter := ""
			if ev != nil {
				inviter = ev.Sender
			}
			plans[roomID] = &Plan{RoomID: roomID, Kind: PlanInvited, InviterID: inviter}
		case "join":
			plans[roomID] = &Plan{RoomID: roomID, Kind: PlanJoined, FullState: true, UptoToken: upto}
		case "leave", "ban":
			if membership == "leave" && !includeLeave && ev != nil && ev.Sender == userID {
				continue
			}
			var uptoPos types.StreamPosition
			if ev != nil {
				if pos, err := store.GetStreamTokenForEvent(ctx, ev.EventID); err == nil {
					uptoPos = pos
				}
			}
			plans[roomID] = &Plan{RoomID: roomID, Kind: PlanArchived, FullState: true, UptoToken: uptoPos}
		}
	}
	return plans, nil
}

func resolveIncremental(ctx context.Context, store collab.Storage, userID string, since, upto types.StreamPosition, ignored map[string]struct{}, includeLeave bool) (map[string]*Plan, error) {
	plans := make(map[string]*Plan)

	changes, err := store.GetMembershipChanges(ctx, userID, since, upto)
	if err != nil {
		return nil, err
	}

	byRoom := make(map[string][]collab.MembershipChange)
	for _, c := range changes {
		byRoom[c.RoomID] = append(byRoom[c.RoomID], c)
	}

	for roomID, roomChanges := range byRoom {
		// Open Question #2 (spec §9 bullet 2): the ignored-sender test
		// and the "was this leave self-initiated" test both consult
		// this room's latest change, never a stale loop variable left
		// over from iterating a different room or an earlier change.
		last := roomChanges[len(roomChanges)-1]
		switch last.Membership {
		case "join":
			// Newly joined iff the user's persisted membership as of
			// the cursor was not already JOIN (spec §4.4.b: "the
			// change set contains any JOIN whose pre-state for the
			// user was not JOIN"). Scanning only the in-batch change
			// rows is not enough: Matrix re-emits a join membership
			// event for an already-joined user on every profile edit
			// (displayname/avatar change), which would otherwise look
			// like a fresh join transition.
			wasJoined, err := wasJoinedAsOf(ctx, store, roomID, userID, since)
			if err != nil {
				return nil, err
			}
			newlyJoined := !wasJoined
			plans[roomID] = &Plan{
				RoomID:      roomID,
				Kind:        PlanJoined,
				NewlyJoined: newlyJoined,
				FullState:   newlyJoined,
				SinceToken:  &since,
				UptoToken:   upto,
			}
		case "invite":
			if _, isIgnored := ignored[last.Sender]; isIgnored {
				continue
			}
			plans[roomID] = &Plan{RoomID: roomID, Kind: PlanInvited, InviterID: last.Sender}
		case "leave", "ban":
			if last.Membership == "leave" && last.Sender == userID && !includeLeave {
				continue
			}
			leavePos, err := store.GetStreamTokenForEvent(ctx, last.Event.EventID)
			if err != nil {
				return nil, err
			}
			if since >= leavePos {
				// Cursor already past the leave: nothing new to report.
				continue
			}
			plans[roomID] = &Plan{
				RoomID:     roomID,
				Kind:       PlanArchived,
				FullState:  true,
				SinceToken: &since,
				UptoToken:  leavePos,
			}
		}
	}

	// Currently-joined rooms with no membership change in range still
	// need a joined plan so their timeline/ephemeral/account-data can
	// be delivered.
	current, err := store.GetRoomsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for roomID, membership := range current {
		if membership != "join" {
			continue
		}
		if _, already := plans[roomID]; already {
			continue
		}
		plans[roomID] = &Plan{
			RoomID:     roomID,
			Kind:       PlanJoined,
			SinceToken: &since,
			UptoToken:  upto,
		}
	}

	return plans, nil
}

// wasJoinedAsOf reports whether the user's persisted membership state
// in a room was JOIN as of the given stream position, by reading the
// room's state snapshot at that position rather than scanning the
// batch of changes since it.
func wasJoinedAsOf(ctx context.Context, store collab.Storage, roomID, userID string, pos types.StreamPosition) (bool, error) {
	snap, err := store.GetStateAtStreamPosition(ctx, roomID, pos)
	if err != nil {
		return false, err
	}
	ev, ok := snap[types.StateKeyTuple{Type: "m.room.member", StateKey: userID}]
	return ok && ev != nil && ev.Membership == "join", nil
}
