package room

import (
	"context"
	"time"

	"github.com/arcchat/syncengine/collab"
	"github.com/arcchat/syncengine/engine/statedelta"
	"github.com/arcchat/syncengine/engine/timeline"
	"github.com/arcchat/syncengine/internal/metrics"
	"github.com/arcchat/syncengine/internal/tracing"
	"github.com/arcchat/syncengine/types"
)

// Deps bundles the collaborators Materialize needs.
type Deps struct {
	Storage collab.Storage
	Filter  collab.VisibilityFilter
	// EventFilter bounds the timeline fetch (spec §6 filter_room_timeline):
	// Types/NotTypes narrow which event types are delivered, LazyLoadMembers
	// trims the state delta down to members who actually spoke.
	EventFilter collab.RoomEventFilter
	// StateFilter bounds the state delta's final output (spec §6
	// filter_room_state / §4.9's "pass through the filter" step). Nil
	// means AllowAllStateFilter.
	StateFilter collab.StateFilter
}

// Materialize implements spec §4.6 for a single plan: the
// would-require-resync discard-since-token rule, timeline loading,
// one early exit after the timeline load (nothing loaded, no
// always_include, no full_state), the state delta, and (joined rooms
// only) unread counts. There is no early exit before the timeline
// load: every joined/archived plan loads its timeline.
// It returns nil, nil when the plan contributes nothing at all — the
// caller must treat that as "omit this room from the result", not as
// an error.
func Materialize(ctx context.Context, deps Deps, userID string, timelineLimit int, plan *Plan) (types.RoomResult, error) {
	span, ctx := tracing.StartRoom(ctx, plan.RoomID)
	defer span.Finish()
	start := time.Now()
	defer func() { metrics.MaterializeDuration.Observe(time.Since(start).Seconds()) }()

	if plan.Kind == PlanError {
		return &types.ErrorResult{ID: plan.RoomID, Code: plan.ErrorCode}, nil
	}
	if plan.Kind == PlanInvited {
		state, err := inviteState(ctx, deps.Storage, plan.RoomID)
		if err != nil {
			return nil, err
		}
		return &types.InvitedResult{ID: plan.RoomID, InviteState: state}, nil
	}

	sinceToken := plan.SinceToken
	newlyJoined := plan.NewlyJoined
	if plan.WouldRequireResync {
		// Discard the since_token and reload from the tip: the plan's
		// prior page no longer reflects what the client has actually
		// seen (spec §4.6: "discard since_token & reload from tip if
		// would_require_resync").
		sinceToken = nil
		newlyJoined = true
	}

	var since types.StreamPosition
	if sinceToken != nil {
		since = *sinceToken
	}

	tb, err := timeline.Load(ctx, deps.Storage, deps.Filter, userID, timeline.Params{
		RoomID:        plan.RoomID,
		Since:         since,
		Upto:          plan.UptoToken,
		TimelineLimit: timelineLimit,
		NewlyJoined:   newlyJoined || plan.FullState,
		EventFilter:   deps.EventFilter,
	})
	if err != nil {
		return nil, err
	}

	accountData := []*types.Event{} // per-room account data is not loaded; always empty
	ephemeral := []*types.Event{}   // folded in by the ephemeral aggregator, left empty here

	if len(tb.Events) == 0 && len(accountData) == 0 && len(ephemeral) == 0 && !plan.AlwaysInclude && !plan.FullState {
		return nil, nil
	}

	delta, err := computeDelta(ctx, deps, plan, tb)
	if err != nil {
		return nil, err
	}

	if plan.Kind == PlanArchived {
		return &types.ArchivedResult{
			ID:       plan.RoomID,
			Timeline: tb,
			State:    delta,
		}, nil
	}

	var unread *types.UnreadNotifications
	receiptEventID, hasReceipt, err := deps.Storage.GetLastReceiptEventIDForUser(ctx, userID, plan.RoomID)
	if err != nil {
		return nil, err
	}
	if hasReceipt {
		notify, highlight, err := deps.Storage.GetUnreadNotificationCounts(ctx, userID, plan.RoomID, receiptEventID)
		if err != nil {
			return nil, err
		}
		unread = &types.UnreadNotifications{NotificationCount: notify, HighlightCount: highlight}
	}

	joinedCount, err := deps.Storage.MembershipCount(ctx, plan.RoomID, "join", plan.UptoToken)
	if err != nil {
		return nil, err
	}
	invitedCount, err := deps.Storage.MembershipCount(ctx, plan.RoomID, "invite", plan.UptoToken)
	if err != nil {
		return nil, err
	}

	return &types.JoinedResult{
		ID:          plan.RoomID,
		Timeline:    tb,
		State:       delta,
		AccountData: accountData,
		Ephemeral:   ephemeral,
		Unread:      unread,
		Summary: types.RoomSummary{
			JoinedMemberCount:  joinedCount,
			InvitedMemberCount: invitedCount,
		},
		Synced: plan.Synced || plan.FullState,
	}, nil
}

func computeDelta(ctx context.Context, deps Deps, plan *Plan, tb types.TimelineBatch) ([]*types.Event, error) {
	store := deps.Storage
	current, err := store.GetStateAtStreamPosition(ctx, plan.RoomID, plan.UptoToken)
	if err != nil {
		return nil, err
	}

	var timelineStart types.RoomStateSnapshot
	var previous types.RoomStateSnapshot

	if plan.FullState || !tb.Limited {
		if plan.FullState {
			timelineStart = current
			previous = types.RoomStateSnapshot{}
		} else {
			// Incremental, unlimited: no state is sent per spec §4.9.
			return nil, nil
		}
	} else {
		if len(tb.Events) > 0 {
			timelineStart, err = store.GetStateForEvent(ctx, tb.Events[0].EventID)
			if err != nil {
				return nil, err
			}
		}
		if plan.SinceToken != nil {
			previous, err = store.GetStateAtStreamPosition(ctx, plan.RoomID, *plan.SinceToken)
			if err != nil {
				return nil, err
			}
		}
	}

	timelineContains := types.RoomStateSnapshot{}
	for _, ev := range tb.Events {
		if ev.IsStateEvent() {
			timelineContains[types.StateKeyTuple{Type: ev.Type, StateKey: *ev.StateKey}] = ev
		}
	}

	ids := statedelta.Compute(current.IDSet(), timelineStart.IDSet(), previous.IDSet(), timelineContains.IDSet())

	byID := current.ByID()
	for id, ev := range timelineStart.ByID() {
		if _, ok := byID[id]; !ok {
			byID[id] = ev
		}
	}

	speakers := make(map[string]struct{})
	if deps.EventFilter.LazyLoadMembers {
		for _, ev := range tb.Events {
			speakers[ev.Sender] = struct{}{}
		}
	}

	stateFilter := deps.StateFilter
	if stateFilter == nil {
		stateFilter = collab.AllowAllStateFilter{}
	}

	out := make([]*types.Event, 0, len(ids))
	for _, id := range ids {
		ev, ok := byID[id]
		if !ok || ev == nil {
			continue
		}
		if !stateFilter.Allow(ev) {
			continue
		}
		if deps.EventFilter.LazyLoadMembers && ev.Type == "m.room.member" {
			if _, spoke := speakers[ev.Sender]; !spoke {
				continue
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

func inviteState(ctx context.Context, store collab.Storage, roomID string) ([]*types.Event, error) {
	snap, err := store.GetStateAtStreamPosition(ctx, roomID, 0)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Event, 0, len(snap))
	for _, ev := range snap {
		out = append(out, ev)
	}
	return out, nil
}
