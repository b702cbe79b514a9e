package memstore

import (
	"context"
	"sync"

	"github.com/arcchat/syncengine/engine/ephemeral"
	"github.com/arcchat/syncengine/types"
)

// EphemeralSource is the in-memory fake of ephemeral.Source.
type EphemeralSource struct {
	mu       sync.Mutex
	typing   map[string][]string
	receipts map[string]ephemeral.ReceiptUpdate
}

// NewEphemeralSource constructs an empty EphemeralSource fake.
func NewEphemeralSource() *EphemeralSource {
	return &EphemeralSource{typing: map[string][]string{}, receipts: map[string]ephemeral.ReceiptUpdate{}}
}

// SetTyping sets the typing-users fixture for a room.
func (e *EphemeralSource) SetTyping(roomID string, userIDs []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.typing[roomID] = userIDs
}

// SetReceipt sets the receipt-update fixture for a room.
func (e *EphemeralSource) SetReceipt(roomID string, u ephemeral.ReceiptUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.receipts[roomID] = u
}

// GetTypingUpdates implements ephemeral.Source.
func (e *EphemeralSource) GetTypingUpdates(ctx context.Context, roomIDs []string, since types.StreamPosition) ([]ephemeral.TypingUpdate, types.StreamPosition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []ephemeral.TypingUpdate
	for _, roomID := range roomIDs {
		if users, ok := e.typing[roomID]; ok {
			out = append(out, ephemeral.TypingUpdate{RoomID: roomID, UserIDs: users})
		}
	}
	return out, since, nil
}

// GetReceiptUpdates implements ephemeral.Source.
func (e *EphemeralSource) GetReceiptUpdates(ctx context.Context, roomIDs []string, since types.StreamPosition) ([]ephemeral.ReceiptUpdate, types.StreamPosition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []ephemeral.ReceiptUpdate
	for _, roomID := range roomIDs {
		if r, ok := e.receipts[roomID]; ok {
			out = append(out, r)
		}
	}
	return out, since, nil
}
