// Package engine implements the top-level orchestrator
// (SyncResultBuilder, spec §4.2) that sequences the account-data,
// rooms and presence assemblers and emits the final SyncResult.
// Grounded on syncapi/sync/v4.go's OnIncomingSyncRequestV4 phase
// order, simplified to this spec's non-connection-stateful model, and
// cross-checked against synapse/handlers/sync.py's
// generate_sync_result phase sequencing (original_source).
package engine

import (
	"context"

	"github.com/arcchat/syncengine/collab"
	"github.com/arcchat/syncengine/config"
	"github.com/arcchat/syncengine/engine/accountdata"
	"github.com/arcchat/syncengine/engine/ephemeral"
	"github.com/arcchat/syncengine/engine/presence"
	"github.com/arcchat/syncengine/engine/room"
	"github.com/arcchat/syncengine/internal/tracing"
	"github.com/arcchat/syncengine/types"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SyncResultBuilder is the orchestrator. It holds only collaborators
// and configuration, no per-sync state: every Build call keeps its
// working state local, so one instance can serve many sync calls.
type SyncResultBuilder struct {
	Storage     collab.Storage
	Sources     collab.EventSources
	Presence    collab.Presence
	Filter      collab.VisibilityFilter
	PushRules   collab.PushRuleFormatter
	Ephemeral   ephemeral.Source
	Config      *config.SyncEngine
}

// Request is one sync call's input.
type Request struct {
	UserID     string
	Cursor     *types.BatchCursor // nil on an initial sync
	FullState  bool
	Filters    collab.Filters
	Extras     collab.Extras
}

// Build implements spec §4.2: resolve now_token, assemble account
// data and rooms concurrently, assemble presence from the rooms
// result's newly-joined-users, and emit the final result.
func (b *SyncResultBuilder) Build(ctx context.Context, req Request) (result *types.SyncResult, err error) {
	defer func() {
		if err != nil {
			sentry.CaptureException(err)
		}
	}()

	span, ctx := tracing.StartPhase(ctx, "build")
	defer span.Finish()
	span.SetTag("request_id", uuid.NewString())

	nowToken, err := b.Sources.CurrentToken(ctx)
	if err != nil {
		return nil, err
	}

	var sinceStream *types.StreamPosition
	var sincePresence, sinceTyping, sinceReceipt, sinceAccountData types.StreamPosition
	var prevPagination *types.PaginationState
	if req.Cursor != nil {
		rk := req.Cursor.StreamToken.RoomKey
		sinceStream = &rk
		sincePresence = req.Cursor.StreamToken.PresenceKey
		sinceTyping = req.Cursor.StreamToken.TypingKey
		sinceReceipt = req.Cursor.StreamToken.ReceiptKey
		sinceAccountData = req.Cursor.StreamToken.AccountDataKey
		prevPagination = req.Cursor.PaginationState
	}

	var adResult accountdata.Result
	var roomsResult room.AssembleResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		phaseSpan, pctx := tracing.StartPhase(gctx, "account_data")
		defer phaseSpan.Finish()
		var since *types.StreamPosition
		if req.Cursor != nil {
			since = &sinceAccountData
		}
		r, err := accountdata.Assemble(pctx, b.Storage, b.PushRules, req.UserID, since, req.FullState)
		if err != nil {
			return err
		}
		adResult = r
		return nil
	})
	g.Go(func() error {
		phaseSpan, pctx := tracing.StartPhase(gctx, "rooms")
		defer phaseSpan.Finish()
		r, err := room.AssembleRooms(pctx, room.Deps{
			Storage:     b.Storage,
			Filter:      b.Filter,
			EventFilter: req.Filters.Room.Timeline,
			StateFilter: req.Filters.Room.State,
		}, room.AssembleParams{
			UserID:                 req.UserID,
			Since:                  sinceStream,
			Upto:                   nowToken.RoomKey,
			TimelineLimit:          b.timelineLimit(req.Filters),
			IncludeLeave:           req.Filters.Room.IncludeLeave,
			Extras:                 req.Extras,
			PrevPagination:         prevPagination,
			DefaultPaginationLimit: b.Config.DefaultPaginationLimit,
			FanOutWidth:            b.Config.FanOutWidth,
		})
		if err != nil {
			return err
		}
		roomsResult = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := b.foldEphemeral(ctx, roomsResult, sinceTyping, sinceReceipt, &nowToken); err != nil {
		return nil, err
	}

	newlyJoinedRoomMembers := map[string]struct{}{}
	for roomID := range roomsResult.NewlyJoinedRooms {
		members, err := b.Storage.GetJoinedMembers(ctx, roomID)
		if err != nil {
			return nil, err
		}
		for _, u := range members {
			newlyJoinedRoomMembers[u] = struct{}{}
		}
	}

	presSpan, pctx := tracing.StartPhase(ctx, "presence")
	var presSince *types.StreamPosition
	if req.Cursor != nil {
		presSince = &sincePresence
	}
	presResult, err := presence.Assemble(pctx, b.Presence, presence.Params{
		UserID:                 req.UserID,
		Since:                  presSince,
		NewlyJoinedUsers:       roomsResult.NewlyJoinedUsers,
		NewlyJoinedRoomMembers: newlyJoinedRoomMembers,
	})
	presSpan.Finish()
	if err != nil {
		return nil, err
	}
	if presResult.Advance != 0 {
		nowToken.PresenceKey = presResult.Advance
	}

	next := types.BatchCursor{StreamToken: nowToken}
	if roomsResult.Limited {
		next.PaginationState = &roomsResult.Pagination
	}
	out := types.NewEmptySyncResult(next)
	out.PaginationInfo = types.PaginationInfo{Limited: roomsResult.Limited}
	out.AccountData = adResult.Events
	out.Presence = presResult.Events
	for id, r := range roomsResult.Results {
		switch v := r.(type) {
		case *types.JoinedResult:
			out.Joined[id] = v
		case *types.ArchivedResult:
			out.Archived[id] = v
		case *types.InvitedResult:
			out.Invited[id] = v
		case *types.ErrorResult:
			out.Errors[id] = v
		}
	}
	return out, nil
}

func (b *SyncResultBuilder) timelineLimit(f collab.Filters) int {
	if f.Room.Timeline.Limit > 0 {
		if f.Room.Timeline.Limit > b.Config.MaxTimelineLimit {
			return b.Config.MaxTimelineLimit
		}
		return f.Room.Timeline.Limit
	}
	return b.Config.DefaultTimelineLimit
}

// foldEphemeral fetches typing/receipt updates for every room the
// rooms assembler touched and appends them onto each JoinedResult,
// advancing now_token's typing/receipt sub-positions in place.
func (b *SyncResultBuilder) foldEphemeral(ctx context.Context, rr room.AssembleResult, sinceTyping, sinceReceipt types.StreamPosition, nowToken *types.StreamingToken) error {
	if b.Ephemeral == nil {
		return nil
	}
	roomIDs := make([]string, 0, len(rr.Results))
	for id, r := range rr.Results {
		if _, ok := r.(*types.JoinedResult); ok {
			roomIDs = append(roomIDs, id)
		}
	}
	if len(roomIDs) == 0 {
		return nil
	}
	eph, err := ephemeral.Assemble(ctx, b.Ephemeral, roomIDs, sinceTyping, sinceReceipt)
	if err != nil {
		return err
	}
	for id, events := range eph.PerRoom {
		if j, ok := rr.Results[id].(*types.JoinedResult); ok {
			j.Ephemeral = append(j.Ephemeral, events...)
		}
	}
	if eph.TypingAdvance != 0 {
		nowToken.TypingKey = eph.TypingAdvance
	}
	if eph.ReceiptAdvance != 0 {
		nowToken.ReceiptKey = eph.ReceiptAdvance
	}
	return nil
}
