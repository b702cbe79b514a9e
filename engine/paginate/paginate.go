// Package paginate implements the lazy-loading paginator (spec §4.7):
// sorting rooms by descending latest-activity timestamp, slicing a
// page, rewriting the resolver's plan set to match, and carrying the
// pagination cursor forward. Grounded on the sort/slice shape of the
// teacher's SortRoomsByActivity/ApplySlidingWindow (syncapi/sync/v4_rooms.go),
// adapted from an explicit client range to a carried-forward
// first-N-after-boundary page.
package paginate

import (
	"context"
	"sort"

	"github.com/arcchat/syncengine/collab"
	"github.com/arcchat/syncengine/types"
)

// RoomPlan is the room-change resolver's per-room decision, as far as
// the paginator needs to see and rewrite it.
type RoomPlan struct {
	RoomID          string
	AlwaysInclude   bool
	FullState       bool
	SinceToken      *types.StreamPosition
	WouldRequireResync bool
	Synced          bool
}

// RoomActivity is one room's latest-visible-event timestamp, used to
// order rooms for paging.
type RoomActivity struct {
	RoomID string
	TS     int64
}

// Result is the paginator's output: the rewritten plan set, whether
// the overall sync is "limited" due to paging, and the new
// pagination state to hand back in next_batch.
type Result struct {
	Plans   map[string]*RoomPlan
	Limited bool
	State   types.PaginationState
}

// Params bundles one paginate call's inputs.
type Params struct {
	Plans       map[string]*RoomPlan
	Previous    *types.PaginationState
	ClientLimit int // extras.paginate.limit, 0 if the client didn't ask to page
	DefaultLimit int
	NowToken    types.StreamPosition
	Tags        map[string]map[string]struct{} // roomID -> tag name set, for tag-rescue rules
	NewlyTagged map[string]struct{}
	AllTagsRemoved map[string]struct{}
}

// Paginate rewrites plans per spec §4.7's six-step algorithm. On a
// fresh call (Previous == nil) the page is the top limit rooms by
// activity. On a continuation (Previous != nil) the candidate pool is
// first narrowed to rooms strictly older than the previous page's
// boundary value, so a repeated call steps forward through
// progressively older rooms instead of re-offering the same page
// (spec §8 scenario 5: page 2 shares no rooms with page 1). Rooms on
// a continuation page are upgraded to a full resync (full state, no
// since token).
func Paginate(ctx context.Context, store collab.Storage, p Params) (Result, error) {
	baseLimit := effectiveLimit(p.Previous, p.DefaultLimit)
	limit := baseLimit + p.ClientLimit

	oldValue := int64(0)
	if p.Previous != nil {
		oldValue = p.Previous.Value
	}

	if len(p.Plans) <= limit && p.Previous == nil {
		// No paging needed: every room fits on a first page.
		return Result{
			Plans:   p.Plans,
			Limited: false,
			State: types.PaginationState{
				Order: types.ByActivity,
				Value: 0,
				Limit: limit,
				Tags:  types.TagsIncludeAll,
			},
		}, nil
	}

	roomIDs := make([]string, 0, len(p.Plans))
	for id := range p.Plans {
		roomIDs = append(roomIDs, id)
	}

	activities := make([]RoomActivity, 0, len(roomIDs))
	for _, id := range roomIDs {
		_, ts, ok, err := store.GetLastEventIDTSForRoom(ctx, id, p.NowToken)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			ts = 0
		}
		activities = append(activities, RoomActivity{RoomID: id, TS: ts})
	}
	sort.Slice(activities, func(i, j int) bool {
		if activities[i].TS != activities[j].TS {
			return activities[i].TS > activities[j].TS
		}
		return activities[i].RoomID < activities[j].RoomID
	})

	// Strict '<' on the continuation boundary (Open Question #1, see
	// DESIGN.md): a room parked exactly on the previous page's edge is
	// treated as already delivered, not re-offered.
	eligible := activities
	if p.Previous != nil {
		eligible = eligible[:0:0]
		for _, a := range activities {
			if a.TS < oldValue {
				eligible = append(eligible, a)
			}
		}
	}

	page := eligible
	if len(page) > limit {
		page = page[:limit]
	}
	var value int64
	if len(page) > 0 {
		value = page[len(page)-1].TS
	} else {
		value = oldValue
	}

	onPage := make(map[string]struct{}, len(page))
	// clientBonus holds rooms that made the page only because of the
	// client's own extras.paginate.limit extension beyond baseLimit —
	// spec §4.7 step 4 treats these as "seen afresh" and forces a full
	// resync, since they would not have appeared on a bare default page.
	clientBonus := make(map[string]struct{})
	for i, a := range page {
		onPage[a.RoomID] = struct{}{}
		if i >= baseLimit {
			clientBonus[a.RoomID] = struct{}{}
		}
	}

	limited := len(eligible) > len(page)

	out := make(map[string]*RoomPlan, len(p.Plans))
	for id, plan := range p.Plans {
		cp := *plan
		if _, ok := onPage[id]; ok {
			if _, bonus := clientBonus[id]; bonus {
				cp.AlwaysInclude = true
				cp.FullState = true
				cp.SinceToken = nil
				cp.WouldRequireResync = true
			} else if p.Previous != nil {
				// A continuation page only holds rooms older than the
				// previous page's boundary, which the client has not been
				// sent yet: they are delivered from scratch.
				cp.FullState = true
				cp.SinceToken = nil
				cp.WouldRequireResync = true
			}
			out[id] = &cp
			continue
		}
		if cp.AlwaysInclude {
			out[id] = &cp
			continue
		}

		rescued := false
		if p.Tags != nil {
			if _, tagged := p.NewlyTagged[id]; tagged {
				cp.FullState = true
				cp.SinceToken = nil
				cp.WouldRequireResync = true
				cp.AlwaysInclude = true
				cp.Synced = true
				rescued = true
			} else if _, removed := p.AllTagsRemoved[id]; removed {
				cp.AlwaysInclude = true
				cp.Synced = false
				rescued = true
			} else if tags, ok := p.Tags[id]; ok && len(tags) > 0 {
				cp.AlwaysInclude = true
				rescued = true
			}
		}
		if rescued {
			out[id] = &cp
			continue
		}

		// Outside both the page and any rescue rule: dropped from
		// this poll entirely (spec §4.4.d). It remains eligible for
		// the tag-rescue rules on a later poll once its activity is
		// older than this page's boundary.
	}

	return Result{
		Plans:   out,
		Limited: limited,
		State: types.PaginationState{
			Order: types.ByActivity,
			Value: value,
			Limit: limit,
			Tags:  types.TagsIncludeAll,
		},
	}, nil
}

func effectiveLimit(p *types.PaginationState, def int) int {
	if p == nil {
		return def
	}
	return p.Limit
}
