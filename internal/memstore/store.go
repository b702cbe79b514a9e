// Package memstore provides in-memory reference implementations of
// every collab interface, used by the engine's own test suite.
// Grounded on syncapi/sync/v4_mock_test.go's mockSnapshot idiom
// (configurable fixture + selective interface satisfaction), adapted
// from "embed one big interface, override a few methods" to "directly
// implement the whole of this repo's small, purpose-built interfaces".
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/arcchat/syncengine/collab"
	"github.com/arcchat/syncengine/types"
)

// MembershipRow is one user's membership state in a room, with the
// event that established it.
type MembershipRow struct {
	Membership string
	Event      *types.Event
}

// Store is the in-memory fake of collab.Storage.
type Store struct {
	mu sync.Mutex

	// userID -> roomID -> membership row
	memberships map[string]map[string]MembershipRow
	// userID -> roomID -> ordered membership change events (oldest first)
	changes map[string]map[string][]*types.Event
	// roomID -> events in stream order
	timelines map[string][]*types.Event
	// roomID -> stream position -> state snapshot (sparse; lookups take the nearest snapshot at or before a position)
	stateAt map[string]map[types.StreamPosition]types.RoomStateSnapshot
	// userID -> account data type -> content
	globalAccountData map[string]map[string]json.RawMessage
	// userID -> roomID -> receipt event ID
	receipts map[string]map[string]string
	// userID -> roomID -> (notify, highlight) counts since any receipt
	unread map[string]map[string][2]int
	// roomID -> membership -> count
	memberCounts map[string]map[string]int
	// roomID -> joined user IDs
	joinedMembers map[string][]string
	// userID -> pushrules changed-since flag keyed by position
	pushRulesVersion map[string]types.StreamPosition
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		memberships:       map[string]map[string]MembershipRow{},
		changes:           map[string]map[string][]*types.Event{},
		timelines:         map[string][]*types.Event{},
		stateAt:           map[string]map[types.StreamPosition]types.RoomStateSnapshot{},
		globalAccountData: map[string]map[string]json.RawMessage{},
		receipts:          map[string]map[string]string{},
		unread:            map[string]map[string][2]int{},
		memberCounts:      map[string]map[string]int{},
		joinedMembers:     map[string][]string{},
		pushRulesVersion:  map[string]types.StreamPosition{},
	}
}

// SetMembership sets a user's current membership row for a room, and
// appends it to that user's ordered change history.
func (s *Store) SetMembership(userID, roomID, membership string, ev *types.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.memberships[userID] == nil {
		s.memberships[userID] = map[string]MembershipRow{}
	}
	s.memberships[userID][roomID] = MembershipRow{Membership: membership, Event: ev}
	if s.changes[userID] == nil {
		s.changes[userID] = map[string][]*types.Event{}
	}
	s.changes[userID][roomID] = append(s.changes[userID][roomID], ev)
}

// AppendTimelineEvent appends an event to a room's timeline in stream order.
func (s *Store) AppendTimelineEvent(roomID string, ev *types.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timelines[roomID] = append(s.timelines[roomID], ev)
}

// SetStateSnapshot records a room's full state as of a stream position.
func (s *Store) SetStateSnapshot(roomID string, pos types.StreamPosition, snap types.RoomStateSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stateAt[roomID] == nil {
		s.stateAt[roomID] = map[types.StreamPosition]types.RoomStateSnapshot{}
	}
	s.stateAt[roomID][pos] = snap
}

// SetGlobalAccountData sets a user's global account-data entry.
func (s *Store) SetGlobalAccountData(userID, evType string, content json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.globalAccountData[userID] == nil {
		s.globalAccountData[userID] = map[string]json.RawMessage{}
	}
	s.globalAccountData[userID][evType] = content
}

// SetReceipt records a user's last-read-receipt event ID in a room.
func (s *Store) SetReceipt(userID, roomID, eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.receipts[userID] == nil {
		s.receipts[userID] = map[string]string{}
	}
	s.receipts[userID][roomID] = eventID
}

// SetUnread sets the unread counts a GetUnreadNotificationCounts call
// for this user/room should return.
func (s *Store) SetUnread(userID, roomID string, notify, highlight int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unread[userID] == nil {
		s.unread[userID] = map[string][2]int{}
	}
	s.unread[userID][roomID] = [2]int{notify, highlight}
}

// SetMemberCount sets the membership-count fixture for a room.
func (s *Store) SetMemberCount(roomID, membership string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.memberCounts[roomID] == nil {
		s.memberCounts[roomID] = map[string]int{}
	}
	s.memberCounts[roomID][membership] = count
}

// SetJoinedMembers sets the joined-members fixture for a room.
func (s *Store) SetJoinedMembers(roomID string, userIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joinedMembers[roomID] = userIDs
}

// GetRoomsForUser implements collab.Storage.
func (s *Store) GetRoomsForUser(ctx context.Context, userID string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]string{}
	for roomID, row := range s.memberships[userID] {
		out[roomID] = row.Membership
	}
	return out, nil
}

// GetCurrentMembershipEvent implements collab.Storage.
func (s *Store) GetCurrentMembershipEvent(ctx context.Context, roomID, userID string) (*types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.memberships[userID][roomID]
	if !ok {
		return nil, nil
	}
	return row.Event, nil
}

// GetMembershipChanges implements collab.Storage: every change in
// (from, to] across all of the user's rooms, in the order they were
// recorded by SetMembership.
func (s *Store) GetMembershipChanges(ctx context.Context, userID string, from, to types.StreamPosition) ([]collab.MembershipChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []collab.MembershipChange
	for roomID, evs := range s.changes[userID] {
		for _, ev := range evs {
			if ev.At > from && ev.At <= to {
				out = append(out, collab.MembershipChange{
					RoomID:     roomID,
					Membership: ev.Membership,
					Event:      ev,
					Sender:     ev.Sender,
				})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Event.At < out[j].Event.At })
	return out, nil
}
