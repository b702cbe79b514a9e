package room

import (
	"context"

	"github.com/arcchat/syncengine/collab"
	"github.com/arcchat/syncengine/engine/paginate"
	"github.com/arcchat/syncengine/internal/metrics"
	"github.com/arcchat/syncengine/types"
	"golang.org/x/sync/semaphore"
)

// AssembleParams bundles one rooms-assembly call's inputs.
type AssembleParams struct {
	UserID        string
	Since         *types.StreamPosition
	Upto          types.StreamPosition
	TimelineLimit int
	IncludeLeave  bool
	Extras        collab.Extras
	PrevPagination *types.PaginationState
	DefaultPaginationLimit int
	FanOutWidth   int64
}

// AssembleResult is the rooms assembler's output (spec §4.4): the
// materialized results plus the set of newly-joined users/rooms the
// presence assembler needs, and the new pagination state for
// next_batch.
type AssembleResult struct {
	Results          map[string]types.RoomResult
	NewlyJoinedUsers map[string]struct{}
	NewlyJoinedRooms map[string]struct{}
	Pagination       types.PaginationState
	Limited          bool
}

// AssembleRooms implements spec §4.4 end to end: ignored-users,
// change resolution, peek handling, lazy-loading, bounded-concurrency
// materialization, and the newly-joined-users scan.
func AssembleRooms(ctx context.Context, deps Deps, p AssembleParams) (AssembleResult, error) {
	ignored, err := IgnoredUsers(ctx, deps.Storage, p.UserID)
	if err != nil {
		return AssembleResult{}, err
	}

	plans, err := ResolveChanges(ctx, deps.Storage, p.UserID, p.Since, p.Upto, ignored, p.IncludeLeave)
	if err != nil {
		return AssembleResult{}, err
	}
	plans = ApplyPeeks(plans, p.Extras.Peek)

	pagPlans := make(map[string]*paginate.RoomPlan, len(plans))
	for id, pl := range plans {
		if pl.Kind == PlanError {
			continue
		}
		pagPlans[id] = &paginate.RoomPlan{
			RoomID:             id,
			AlwaysInclude:      pl.AlwaysInclude,
			FullState:          pl.FullState,
			SinceToken:         pl.SinceToken,
			WouldRequireResync: pl.WouldRequireResync,
			Synced:             pl.Synced,
		}
	}

	clientLimit := 0
	if p.Extras.Paginate.Enabled {
		clientLimit = p.Extras.Paginate.Limit
	}
	pagResult, err := paginate.Paginate(ctx, deps.Storage, paginate.Params{
		Plans:        pagPlans,
		Previous:     p.PrevPagination,
		ClientLimit:  clientLimit,
		DefaultLimit: p.DefaultPaginationLimit,
		NowToken:     p.Upto,
	})
	if err != nil {
		return AssembleResult{}, err
	}
	metrics.PaginatorPageSize.Observe(float64(len(pagResult.Plans)))

	// activePlans is the set that actually gets materialized this
	// poll: every room the paginator kept on the page (or rescued),
	// plus error plans, which never went through paging and always
	// surface inline (spec §4.4.d only drops joined/invited/archived
	// rooms, never a peek denial).
	activePlans := make(map[string]*Plan, len(pagResult.Plans))
	for id, pp := range pagResult.Plans {
		pl := plans[id]
		pl.AlwaysInclude = pp.AlwaysInclude
		pl.FullState = pp.FullState
		pl.SinceToken = pp.SinceToken
		pl.WouldRequireResync = pp.WouldRequireResync
		pl.Synced = pp.Synced
		activePlans[id] = pl
	}
	for id, pl := range plans {
		if pl.Kind == PlanError {
			activePlans[id] = pl
		}
	}

	fanOut := p.FanOutWidth
	if fanOut <= 0 {
		fanOut = 10
	}
	sem := semaphore.NewWeighted(fanOut)

	type outcome struct {
		id  string
		res types.RoomResult
		err error
	}
	outcomes := make(chan outcome, len(activePlans))

	for id, pl := range activePlans {
		id, pl := id, pl
		if err := sem.Acquire(ctx, 1); err != nil {
			return AssembleResult{}, err
		}
		go func() {
			defer sem.Release(1)
			res, err := Materialize(ctx, deps, p.UserID, p.TimelineLimit, pl)
			outcomes <- outcome{id: id, res: res, err: err}
		}()
	}

	results := make(map[string]types.RoomResult, len(activePlans))
	var firstErr error
	for range activePlans {
		o := <-outcomes
		if o.err != nil && firstErr == nil {
			firstErr = o.err
			continue
		}
		if o.res != nil {
			results[o.id] = o.res
		}
	}
	if firstErr != nil {
		return AssembleResult{}, firstErr
	}

	newlyJoinedRooms := map[string]struct{}{}
	for id, pl := range activePlans {
		if pl.NewlyJoined {
			newlyJoinedRooms[id] = struct{}{}
		}
	}

	return AssembleResult{
		Results:          results,
		NewlyJoinedUsers: NewlyJoinedUsers(results),
		NewlyJoinedRooms: newlyJoinedRooms,
		Pagination:       pagResult.State,
		Limited:          pagResult.Limited,
	}, nil
}
