// Package presence implements the presence assembler (spec §4.5),
// built directly from synapse/handlers/sync.py's extra-users
// computation (original_source) since the teacher's retrieved copy
// excludes classic presence internals from syncapi.
package presence

import (
	"context"
	"encoding/json"

	"github.com/arcchat/syncengine/collab"
	"github.com/arcchat/syncengine/types"
)

// Params bundles one presence-assembly call's inputs.
type Params struct {
	UserID           string
	Since            *types.StreamPosition // cursor.PresenceKey; nil means initial sync
	NewlyJoinedUsers map[string]struct{}
	NewlyJoinedRoomMembers map[string]struct{}
}

// Result is the assembler's output plus the advanced presence
// sub-stream position to fold into now_token.
type Result struct {
	Events  []*types.Event
	Advance types.StreamPosition
}

// Assemble implements spec §4.5: fetch presence since the cursor
// (including transitions to offline) or online-only on an initial
// sync, expand to extra_users, then synthesize/merge/dedupe. No
// presence filter is applied to the result.
func Assemble(ctx context.Context, pres collab.Presence, p Params) (Result, error) {
	extraUsers := make(map[string]struct{}, len(p.NewlyJoinedUsers)+len(p.NewlyJoinedRoomMembers))
	for u := range p.NewlyJoinedUsers {
		if u != p.UserID {
			extraUsers[u] = struct{}{}
		}
	}
	for u := range p.NewlyJoinedRoomMembers {
		if u != p.UserID {
			extraUsers[u] = struct{}{}
		}
	}

	extraList := make([]string, 0, len(extraUsers))
	for u := range extraUsers {
		extraList = append(extraList, u)
	}

	var states []collab.PresenceState
	var advance types.StreamPosition

	// Unscoped fetch for the syncing user's own presence-relevant
	// graph (every user sharing presence visibility with them) — not
	// restricted to extraList, so an existing room member's presence
	// change surfaces on an incremental sync even when that user was
	// never newly-joined this poll.
	graphStates, newPos, err := pres.GetStatesForUser(ctx, p.UserID, p.Since)
	if err != nil {
		return Result{}, err
	}
	states = append(states, graphStates...)
	if p.Since != nil {
		advance = newPos
	}

	// extra_users: synthesize current presence for users newly visible
	// to the syncer this poll, on top of the graph fetch above.
	extra, err := pres.GetStates(ctx, extraList)
	if err != nil {
		return Result{}, err
	}
	if p.Since == nil {
		// Initial sync: online-only, matching the graph fetch's own
		// restriction.
		for _, s := range extra {
			if s.Status == "online" {
				states = append(states, s)
			}
		}
	} else {
		states = append(states, extra...)
	}

	// Dedupe keep-last: a user appearing more than once (e.g. present
	// in both the incremental fetch and the extra_users expansion)
	// keeps only its final entry.
	byUser := make(map[string]collab.PresenceState, len(states))
	order := make([]string, 0, len(states))
	for _, s := range states {
		if _, seen := byUser[s.UserID]; !seen {
			order = append(order, s.UserID)
		}
		byUser[s.UserID] = s
	}

	events := make([]*types.Event, 0, len(order))
	for _, u := range order {
		events = append(events, presenceEvent(byUser[u]))
	}

	return Result{Events: events, Advance: advance}, nil
}

func presenceEvent(s collab.PresenceState) *types.Event {
	content, _ := json.Marshal(struct {
		Presence        string `json:"presence"`
		LastActiveAgo   int64  `json:"last_active_ago,omitempty"`
		StatusMsg       string `json:"status_msg,omitempty"`
	}{
		Presence:      s.Status,
		LastActiveAgo: s.LastActiveTS,
		StatusMsg:     s.StatusMessage,
	})
	return &types.Event{
		Type:    "m.presence",
		Sender:  s.UserID,
		Content: content,
	}
}
