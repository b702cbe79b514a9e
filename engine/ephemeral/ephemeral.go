// Package ephemeral implements the ephemeral aggregator: per-room
// typing and receipt events folded into each room's result, advancing
// now_token's TypingKey/ReceiptKey sub-positions. Grounded on
// syncapi/sync/v4_extensions.go's ProcessExtensions typing/receipts
// PostProcess steps, adapted from a bolt-on response extension to a
// per-room batch bolted onto a classic per-room result.
package ephemeral

import (
	"context"
	"encoding/json"

	"github.com/arcchat/syncengine/types"
)

// TypingUpdate is one room's current set of typing users.
type TypingUpdate struct {
	RoomID      string
	UserIDs     []string
}

// ReceiptUpdate is one room's receipts changed since a cursor.
type ReceiptUpdate struct {
	RoomID  string
	Content json.RawMessage
}

// Source is the narrow collaborator surface the ephemeral aggregator
// needs; kept separate from collab.Storage because typing state is
// transient (never durable) in most deployments.
type Source interface {
	GetTypingUpdates(ctx context.Context, roomIDs []string, since types.StreamPosition) ([]TypingUpdate, types.StreamPosition, error)
	GetReceiptUpdates(ctx context.Context, roomIDs []string, since types.StreamPosition) ([]ReceiptUpdate, types.StreamPosition, error)
}

// Result is the aggregator's output: per-room ephemeral events, plus
// the advanced typing/receipt sub-positions for now_token.
type Result struct {
	PerRoom        map[string][]*types.Event
	TypingAdvance  types.StreamPosition
	ReceiptAdvance types.StreamPosition
}

// Assemble fetches typing and receipt updates for exactly the given
// rooms since the cursor, and folds both into a per-room event list.
func Assemble(ctx context.Context, src Source, roomIDs []string, sinceTyping, sinceReceipt types.StreamPosition) (Result, error) {
	out := Result{PerRoom: make(map[string][]*types.Event, len(roomIDs))}

	typing, typingPos, err := src.GetTypingUpdates(ctx, roomIDs, sinceTyping)
	if err != nil {
		return Result{}, err
	}
	for _, t := range typing {
		content, _ := json.Marshal(struct {
			UserIDs []string `json:"user_ids"`
		}{UserIDs: t.UserIDs})
		out.PerRoom[t.RoomID] = append(out.PerRoom[t.RoomID], &types.Event{
			RoomID:  t.RoomID,
			Type:    "m.typing",
			Content: content,
		})
	}
	out.TypingAdvance = typingPos

	receipts, receiptPos, err := src.GetReceiptUpdates(ctx, roomIDs, sinceReceipt)
	if err != nil {
		return Result{}, err
	}
	for _, r := range receipts {
		out.PerRoom[r.RoomID] = append(out.PerRoom[r.RoomID], &types.Event{
			RoomID:  r.RoomID,
			Type:    "m.receipt",
			Content: r.Content,
		})
	}
	out.ReceiptAdvance = receiptPos

	return out, nil
}
