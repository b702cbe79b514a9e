// Package collab declares the external collaborator contracts the
// sync engine consumes (spec §6): storage, event sources, the
// notifier, presence, the visibility filter and the push-rule
// formatter. None of these are implemented against a real database or
// transport in this repository — only their contracts, plus
// in-memory reference doubles under internal/memstore used by tests.
package collab

import (
	"context"
	"encoding/json"

	"github.com/arcchat/syncengine/types"
)

// MembershipChange is one row of a user's membership history in a
// room, as returned by GetMembershipChanges.
type MembershipChange struct {
	RoomID     string
	Membership string // "join", "invite", "leave", "ban", "knock"
	Event      *types.Event
	Sender     string // the actor who caused the change (inviter/kicker/banner)
}

// Storage is the read-only storage surface the engine consumes. It
// never persists anything; every method is a query.
type Storage interface {
	// GetRoomsForUser returns every room the user currently has any
	// membership row for, keyed by room ID, with each room's current
	// membership.
	GetRoomsForUser(ctx context.Context, userID string) (map[string]string, error)

	// GetCurrentMembershipEvent returns the event that established the
	// user's current membership in a room (the invite/join/leave/ban
	// event itself), so its Sender and EventID are available for the
	// room-change resolver's initial-sync branch.
	GetCurrentMembershipEvent(ctx context.Context, roomID, userID string) (*types.Event, error)

	// GetMembershipChanges returns the user's membership transitions
	// in (from, to] of the room-stream sub-stream, across all rooms.
	GetMembershipChanges(ctx context.Context, userID string, from, to types.StreamPosition) ([]MembershipChange, error)

	// GetRoomEventsStreamForRooms returns up to limit most recent
	// timeline events per room in (from, to], newest last.
	GetRoomEventsStreamForRooms(ctx context.Context, roomIDs []string, from, to types.StreamPosition, limit int) (map[string][]*types.Event, error)

	// GetStateForEvent returns the room's state as of just before the
	// given event (exclusive), or nil if no state is available (e.g.
	// an out-of-band membership event with no local room state).
	GetStateForEvent(ctx context.Context, eventID string) (types.RoomStateSnapshot, error)

	// GetStateAtStreamPosition returns a room's full state snapshot as
	// of the given stream position.
	GetStateAtStreamPosition(ctx context.Context, roomID string, pos types.StreamPosition) (types.RoomStateSnapshot, error)

	// GetRecentEventsForRoom loads up to loadLimit of the most recent
	// events in (since, upto], newest last, for the timeline back-fill
	// loop.
	GetRecentEventsForRoom(ctx context.Context, roomID string, since, upto types.StreamPosition, loadLimit int) ([]*types.Event, error)

	// GetLastEventIDTSForRoom returns the event ID and origin_server_ts
	// of the most recent visible event in the room as of upto.
	GetLastEventIDTSForRoom(ctx context.Context, roomID string, upto types.StreamPosition) (eventID string, ts int64, ok bool, err error)

	// GetEvent fetches a single event by ID.
	GetEvent(ctx context.Context, eventID string) (*types.Event, error)

	// GetStreamTokenForEvent returns the stream position of an event.
	GetStreamTokenForEvent(ctx context.Context, eventID string) (types.StreamPosition, error)

	// GetAccountData returns a user's global and per-room account data
	// changed since the given position (or everything, if since is nil).
	GetAccountData(ctx context.Context, userID string, since *types.StreamPosition) (global map[string][]byte, rooms map[string]map[string][]byte, err error)

	// GetTagsChangedSince returns the set of rooms whose tags changed
	// since the given position, for the paginator's tag-rescue rules.
	GetTagsChangedSince(ctx context.Context, userID string, since types.StreamPosition) (map[string]struct{}, error)

	// PushRulesChangedSince reports whether a user's push rules changed
	// since the given position.
	PushRulesChangedSince(ctx context.Context, userID string, since types.StreamPosition) (bool, error)

	// GetRoomTags returns a user's tags for a room.
	GetRoomTags(ctx context.Context, userID, roomID string) (map[string]json.RawMessage, error)

	// GetLastReceiptEventIDForUser returns the event ID of the user's
	// last read receipt in a room, if any.
	GetLastReceiptEventIDForUser(ctx context.Context, userID, roomID string) (eventID string, ok bool, err error)

	// GetUnreadNotificationCounts returns notification/highlight
	// counts for events after the given receipt.
	GetUnreadNotificationCounts(ctx context.Context, userID, roomID, sinceReceiptEventID string) (notify, highlight int, err error)

	// MembershipCount returns the number of users with the given
	// membership in a room as of upto.
	MembershipCount(ctx context.Context, roomID, membership string, upto types.StreamPosition) (int, error)

	// GetJoinedMembers lists the user IDs currently joined to a room,
	// used by the presence assembler to expand extra_users to the
	// members of a newly-joined room (spec §4.5).
	GetJoinedMembers(ctx context.Context, roomID string) ([]string, error)
}
