package paginate_test

import (
	"context"
	"testing"

	"github.com/arcchat/syncengine/engine/paginate"
	"github.com/arcchat/syncengine/internal/memstore"
	"github.com/arcchat/syncengine/types"
	"github.com/stretchr/testify/require"
)

func planFor(id string) *paginate.RoomPlan {
	return &paginate.RoomPlan{RoomID: id}
}

// TestPaginate_UnderLimitPassesEveryRoomThrough covers the no-paging
// short-circuit: when every room fits within the effective limit,
// nothing is rewritten and the sync is not limited.
func TestPaginate_UnderLimitPassesEveryRoomThrough(t *testing.T) {
	store := memstore.New()
	plans := map[string]*paginate.RoomPlan{
		"!a:test": planFor("!a:test"),
		"!b:test": planFor("!b:test"),
	}

	res, err := paginate.Paginate(context.Background(), store, paginate.Params{
		Plans:        plans,
		DefaultLimit: 10,
		NowToken:     100,
	})
	require.NoError(t, err)
	require.False(t, res.Limited)
	require.Len(t, res.Plans, 2)
}

// TestPaginate_OverLimitKeepsMostRecentActivityFirst covers the
// sort-by-activity-descending page slice: with a page size of 1, only
// the room with the most recent activity stays on the page; the
// other is dropped from this poll entirely (spec §4.4.d).
func TestPaginate_OverLimitKeepsMostRecentActivityFirst(t *testing.T) {
	store := memstore.New()
	store.AppendTimelineEvent("!old:test", &types.Event{EventID: "$1", At: 10, OriginServerTS: 1000})
	store.AppendTimelineEvent("!new:test", &types.Event{EventID: "$2", At: 20, OriginServerTS: 2000})

	plans := map[string]*paginate.RoomPlan{
		"!old:test": planFor("!old:test"),
		"!new:test": planFor("!new:test"),
	}

	res, err := paginate.Paginate(context.Background(), store, paginate.Params{
		Plans:        plans,
		DefaultLimit: 1,
		NowToken:     100,
	})
	require.NoError(t, err)
	require.True(t, res.Limited)

	newPlan, ok := res.Plans["!new:test"]
	require.True(t, ok)
	require.False(t, newPlan.AlwaysInclude, "the room that made the page is returned unmodified")

	_, ok = res.Plans["!old:test"]
	require.False(t, ok, "a room bumped off the page is dropped from this poll")
}

// TestPaginate_AlwaysIncludeSurvivesEvenWhenOffPage covers the
// always_include override: a plan flagged always_include on input
// is never bumped off the page.
func TestPaginate_AlwaysIncludeSurvivesEvenWhenOffPage(t *testing.T) {
	store := memstore.New()
	store.AppendTimelineEvent("!old:test", &types.Event{EventID: "$1", At: 10, OriginServerTS: 1000})
	store.AppendTimelineEvent("!new:test", &types.Event{EventID: "$2", At: 20, OriginServerTS: 2000})

	oldPlan := planFor("!old:test")
	oldPlan.AlwaysInclude = true
	plans := map[string]*paginate.RoomPlan{
		"!old:test": oldPlan,
		"!new:test": planFor("!new:test"),
	}

	res, err := paginate.Paginate(context.Background(), store, paginate.Params{
		Plans:        plans,
		DefaultLimit: 1,
		NowToken:     100,
	})
	require.NoError(t, err)
	got, ok := res.Plans["!old:test"]
	require.True(t, ok)
	require.True(t, got.AlwaysInclude)
	require.False(t, got.FullState, "always_include rooms already on the resolver's plan are passed through untouched")
}

// TestPaginate_ClientBonusRoomForcesFullResync covers spec §4.7 step 4:
// a room that only makes the page because of the client's own
// extras.paginate.limit extension (beyond the configured default
// limit) is marked as seen afresh, forcing a full resync.
func TestPaginate_ClientBonusRoomForcesFullResync(t *testing.T) {
	store := memstore.New()
	store.AppendTimelineEvent("!newest:test", &types.Event{EventID: "$1", At: 30, OriginServerTS: 3000})
	store.AppendTimelineEvent("!bonus:test", &types.Event{EventID: "$2", At: 20, OriginServerTS: 2000})
	store.AppendTimelineEvent("!dropped:test", &types.Event{EventID: "$3", At: 10, OriginServerTS: 1000})

	plans := map[string]*paginate.RoomPlan{
		"!newest:test":  planFor("!newest:test"),
		"!bonus:test":   planFor("!bonus:test"),
		"!dropped:test": planFor("!dropped:test"),
	}

	res, err := paginate.Paginate(context.Background(), store, paginate.Params{
		Plans:        plans,
		DefaultLimit: 1,
		ClientLimit:  1,
		NowToken:     100,
	})
	require.NoError(t, err)

	newest, ok := res.Plans["!newest:test"]
	require.True(t, ok)
	require.False(t, newest.FullState, "the base-limit room is unaffected by the client's bonus window")

	bonus, ok := res.Plans["!bonus:test"]
	require.True(t, ok)
	require.True(t, bonus.AlwaysInclude)
	require.True(t, bonus.FullState)
	require.Nil(t, bonus.SinceToken)
	require.True(t, bonus.WouldRequireResync)

	_, ok = res.Plans["!dropped:test"]
	require.False(t, ok, "a room beyond both the default and client-bonus window is dropped")
}

// TestPaginate_NewlyTaggedRoomForcesFullResync covers the
// NEWLY_TAGGED rescue rule (spec §4.7 tag-based missing-state rules).
func TestPaginate_NewlyTaggedRoomForcesFullResync(t *testing.T) {
	store := memstore.New()
	store.AppendTimelineEvent("!old:test", &types.Event{EventID: "$1", At: 10, OriginServerTS: 1000})
	store.AppendTimelineEvent("!new:test", &types.Event{EventID: "$2", At: 20, OriginServerTS: 2000})

	since := types.StreamPosition(5)
	oldPlan := planFor("!old:test")
	oldPlan.SinceToken = &since
	plans := map[string]*paginate.RoomPlan{
		"!old:test": oldPlan,
		"!new:test": planFor("!new:test"),
	}

	res, err := paginate.Paginate(context.Background(), store, paginate.Params{
		Plans:        plans,
		DefaultLimit: 1,
		NowToken:     100,
		Tags:         map[string]map[string]struct{}{},
		NewlyTagged:  map[string]struct{}{"!old:test": {}},
	})
	require.NoError(t, err)
	got, ok := res.Plans["!old:test"]
	require.True(t, ok)
	require.True(t, got.FullState)
	require.Nil(t, got.SinceToken)
	require.True(t, got.WouldRequireResync)
}
