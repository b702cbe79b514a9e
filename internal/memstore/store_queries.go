package memstore

import (
	"context"
	"encoding/json"

	"github.com/arcchat/syncengine/types"
)

// GetRoomEventsStreamForRooms implements collab.Storage.
func (s *Store) GetRoomEventsStreamForRooms(ctx context.Context, roomIDs []string, from, to types.StreamPosition, limit int) (map[string][]*types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]*types.Event, len(roomIDs))
	for _, roomID := range roomIDs {
		var window []*types.Event
		for _, ev := range s.timelines[roomID] {
			if ev.At > from && ev.At <= to {
				window = append(window, ev)
			}
		}
		if len(window) > limit {
			window = window[len(window)-limit:]
		}
		out[roomID] = window
	}
	return out, nil
}

// GetStateForEvent implements collab.Storage: the nearest recorded
// snapshot at or before the event's position.
func (s *Store) GetStateForEvent(ctx context.Context, eventID string) (types.RoomStateSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for roomID, evs := range s.timelines {
		for _, ev := range evs {
			if ev.EventID == eventID {
				return s.nearestSnapshotLocked(roomID, ev.Before), nil
			}
		}
	}
	return nil, nil
}

// GetStateAtStreamPosition implements collab.Storage.
func (s *Store) GetStateAtStreamPosition(ctx context.Context, roomID string, pos types.StreamPosition) (types.RoomStateSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nearestSnapshotLocked(roomID, pos), nil
}

func (s *Store) nearestSnapshotLocked(roomID string, pos types.StreamPosition) types.RoomStateSnapshot {
	byPos := s.stateAt[roomID]
	var best types.StreamPosition = -1
	var bestSnap types.RoomStateSnapshot
	for p, snap := range byPos {
		if p <= pos && p > best {
			best = p
			bestSnap = snap
		}
	}
	if bestSnap == nil {
		return types.RoomStateSnapshot{}
	}
	return bestSnap
}

// GetRecentEventsForRoom implements collab.Storage.
func (s *Store) GetRecentEventsForRoom(ctx context.Context, roomID string, since, upto types.StreamPosition, loadLimit int) ([]*types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var window []*types.Event
	for _, ev := range s.timelines[roomID] {
		if ev.At > since && ev.At <= upto {
			window = append(window, ev)
		}
	}
	if len(window) > loadLimit {
		window = window[len(window)-loadLimit:]
	}
	return window, nil
}

// GetLastEventIDTSForRoom implements collab.Storage.
func (s *Store) GetLastEventIDTSForRoom(ctx context.Context, roomID string, upto types.StreamPosition) (string, int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *types.Event
	for _, ev := range s.timelines[roomID] {
		if ev.At <= upto {
			last = ev
		}
	}
	if last == nil {
		return "", 0, false, nil
	}
	return last.EventID, last.OriginServerTS, true, nil
}

// GetEvent implements collab.Storage. It searches both timeline
// events and recorded membership-change events, since a membership
// event (e.g. a kick) is itself a room event a caller may look up by
// ID without having separately appended it to the timeline fixture.
func (s *Store) GetEvent(ctx context.Context, eventID string) (*types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evs := range s.timelines {
		for _, ev := range evs {
			if ev.EventID == eventID {
				return ev, nil
			}
		}
	}
	for _, byRoom := range s.changes {
		for _, evs := range byRoom {
			for _, ev := range evs {
				if ev.EventID == eventID {
					return ev, nil
				}
			}
		}
	}
	return nil, nil
}

// GetStreamTokenForEvent implements collab.Storage.
func (s *Store) GetStreamTokenForEvent(ctx context.Context, eventID string) (types.StreamPosition, error) {
	ev, _ := s.GetEvent(ctx, eventID)
	if ev == nil {
		return 0, nil
	}
	return ev.At, nil
}

// GetAccountData implements collab.Storage.
func (s *Store) GetAccountData(ctx context.Context, userID string, since *types.StreamPosition) (map[string][]byte, map[string]map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string][]byte{}
	for evType, content := range s.globalAccountData[userID] {
		out[evType] = content
	}
	return out, map[string]map[string][]byte{}, nil
}

// GetTagsChangedSince implements collab.Storage. The in-memory fake
// carries no separate tag-change log, so it always reports none.
func (s *Store) GetTagsChangedSince(ctx context.Context, userID string, since types.StreamPosition) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

// PushRulesChangedSince implements collab.Storage.
func (s *Store) PushRulesChangedSince(ctx context.Context, userID string, since types.StreamPosition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushRulesVersion[userID] > since, nil
}

// SetPushRulesVersion records the position at which a user's push
// rules last changed, for PushRulesChangedSince.
func (s *Store) SetPushRulesVersion(userID string, pos types.StreamPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushRulesVersion[userID] = pos
}

// GetRoomTags implements collab.Storage. The in-memory fake carries
// no tags fixture, so it always returns an empty map.
func (s *Store) GetRoomTags(ctx context.Context, userID, roomID string) (map[string]json.RawMessage, error) {
	return map[string]json.RawMessage{}, nil
}

// GetLastReceiptEventIDForUser implements collab.Storage.
func (s *Store) GetLastReceiptEventIDForUser(ctx context.Context, userID, roomID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.receipts[userID][roomID]
	return id, ok, nil
}

// GetUnreadNotificationCounts implements collab.Storage.
func (s *Store) GetUnreadNotificationCounts(ctx context.Context, userID, roomID, sinceReceiptEventID string) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := s.unread[userID][roomID]
	return counts[0], counts[1], nil
}

// MembershipCount implements collab.Storage.
func (s *Store) MembershipCount(ctx context.Context, roomID, membership string, upto types.StreamPosition) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memberCounts[roomID][membership], nil
}

// GetJoinedMembers implements collab.Storage.
func (s *Store) GetJoinedMembers(ctx context.Context, roomID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.joinedMembers[roomID]...), nil
}
