package room

import (
	"context"
	"encoding/json"

	"github.com/arcchat/syncengine/collab"
	"github.com/arcchat/syncengine/types"
)

const ignoredUserListType = "m.ignored_user_list"

// IgnoredUsers implements spec §4.4.a: the ignored-users set, read
// from the m.ignored_user_list account-data event.
func IgnoredUsers(ctx context.Context, store collab.Storage, userID string) (map[string]struct{}, error) {
	global, _, err := store.GetAccountData(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	raw, ok := global[ignoredUserListType]
	if !ok {
		return map[string]struct{}{}, nil
	}
	var parsed struct {
		IgnoredUsers map[string]struct{} `json:"ignored_users"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return map[string]struct{}{}, nil
	}
	if parsed.IgnoredUsers == nil {
		return map[string]struct{}{}, nil
	}
	return parsed.IgnoredUsers, nil
}

// NewlyJoinedUsers implements spec §4.4.f: scans materialized room
// results for newly visible JOIN member events, returning the set of
// users who newly joined rooms the syncing user observed this sync,
// for the presence assembler's extra_users expansion.
func NewlyJoinedUsers(results map[string]types.RoomResult) map[string]struct{} {
	out := map[string]struct{}{}
	for _, r := range results {
		j, ok := r.(*types.JoinedResult)
		if !ok {
			continue
		}
		for _, ev := range j.Timeline.Events {
			if ev.Type == "m.room.member" && ev.Membership == "join" {
				out[ev.Sender] = struct{}{}
			}
		}
		for _, ev := range j.State {
			if ev.Type == "m.room.member" && ev.Membership == "join" {
				out[ev.Sender] = struct{}{}
			}
		}
	}
	return out
}
