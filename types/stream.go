// Package types defines the data model of the sync engine: stream
// tokens, batch cursors, opaque events, room state snapshots and the
// per-room result variants described by the sync result.
package types

import (
	"fmt"
	"strconv"
	"strings"
)

// StreamPosition is a monotonically increasing position within a
// single sub-stream. Zero means "beginning of stream".
type StreamPosition int64

// Before reports whether p precedes other.
func (p StreamPosition) Before(other StreamPosition) bool { return p < other }

// After reports whether p follows other.
func (p StreamPosition) After(other StreamPosition) bool { return p > other }

// StreamingToken is the composite stream token: one position per
// independently-advancing sub-stream. The zero value is the start of
// every stream.
type StreamingToken struct {
	RoomKey        StreamPosition
	PresenceKey    StreamPosition
	TypingKey      StreamPosition
	ReceiptKey     StreamPosition
	AccountDataKey StreamPosition
	PushRulesKey   StreamPosition
}

// WithUpdates returns a copy of t with every non-zero field of delta
// overlaid on top. t itself is never mutated.
func (t StreamingToken) WithUpdates(delta StreamingToken) StreamingToken {
	out := t
	if delta.RoomKey != 0 {
		out.RoomKey = delta.RoomKey
	}
	if delta.PresenceKey != 0 {
		out.PresenceKey = delta.PresenceKey
	}
	if delta.TypingKey != 0 {
		out.TypingKey = delta.TypingKey
	}
	if delta.ReceiptKey != 0 {
		out.ReceiptKey = delta.ReceiptKey
	}
	if delta.AccountDataKey != 0 {
		out.AccountDataKey = delta.AccountDataKey
	}
	if delta.PushRulesKey != 0 {
		out.PushRulesKey = delta.PushRulesKey
	}
	return out
}

// IsAfter reports whether t dominates other on every sub-stream,
// i.e. whether a client holding other has nothing newer than t.
func (t StreamingToken) IsAfter(other StreamingToken) bool {
	return t.RoomKey >= other.RoomKey &&
		t.PresenceKey >= other.PresenceKey &&
		t.TypingKey >= other.TypingKey &&
		t.ReceiptKey >= other.ReceiptKey &&
		t.AccountDataKey >= other.AccountDataKey &&
		t.PushRulesKey >= other.PushRulesKey
}

// String renders the token in its opaque wire form. Callers must
// treat the result as opaque; only NewStreamTokenFromString may parse it.
func (t StreamingToken) String() string {
	return fmt.Sprintf("s%d_%d_%d_%d_%d_%d",
		t.RoomKey, t.PresenceKey, t.TypingKey, t.ReceiptKey, t.AccountDataKey, t.PushRulesKey)
}

// NewStreamTokenFromString parses the opaque form produced by String.
func NewStreamTokenFromString(s string) (StreamingToken, error) {
	if !strings.HasPrefix(s, "s") {
		return StreamingToken{}, fmt.Errorf("types: invalid stream token %q", s)
	}
	parts := strings.Split(s[1:], "_")
	if len(parts) != 6 {
		return StreamingToken{}, fmt.Errorf("types: invalid stream token %q", s)
	}
	vals := make([]int64, 6)
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return StreamingToken{}, fmt.Errorf("types: invalid stream token %q: %w", s, err)
		}
		vals[i] = v
	}
	return StreamingToken{
		RoomKey:        StreamPosition(vals[0]),
		PresenceKey:    StreamPosition(vals[1]),
		TypingKey:      StreamPosition(vals[2]),
		ReceiptKey:     StreamPosition(vals[3]),
		AccountDataKey: StreamPosition(vals[4]),
		PushRulesKey:   StreamPosition(vals[5]),
	}, nil
}

// PaginationOrder names the dimension lazy-loaded rooms are paged by.
type PaginationOrder string

// ByActivity is the only order currently defined: rooms paged by
// descending timestamp of their most recent visible event.
const ByActivity PaginationOrder = "by_activity"

// TagMode controls whether the paginator's tag-rescue rules apply.
type TagMode string

const (
	// TagsExcluded means the page carries no tag-rescue rules.
	TagsExcluded TagMode = ""
	// TagsIncludeAll means rooms with any tag, or a NEWLY_TAGGED /
	// ALL_REMOVED transition, are rescued onto the page early.
	TagsIncludeAll TagMode = "include_all"
)

// PaginationState is the lazy-loading paginator's own carried-forward
// cursor, embedded in a BatchCursor when a sync is paginated.
type PaginationState struct {
	Order PaginationOrder
	Value int64 // activity timestamp boundary of the last page served
	Limit int
	Tags  TagMode
}

// BatchCursor is the opaque value handed to and returned from a sync:
// a stream token plus, only while a client is paging through lazily
// loaded rooms, a pagination state.
type BatchCursor struct {
	StreamToken     StreamingToken
	PaginationState *PaginationState
}

// String renders the opaque wire form of a batch cursor.
func (c BatchCursor) String() string {
	if c.PaginationState == nil {
		return c.StreamToken.String()
	}
	ps := c.PaginationState
	return fmt.Sprintf("%s/%s,%d,%d,%s", c.StreamToken.String(), ps.Order, ps.Value, ps.Limit, ps.Tags)
}

// NewBatchCursorFromString parses the opaque form produced by String.
func NewBatchCursorFromString(s string) (BatchCursor, error) {
	tokPart, pagPart, hasPag := strings.Cut(s, "/")
	tok, err := NewStreamTokenFromString(tokPart)
	if err != nil {
		return BatchCursor{}, err
	}
	if !hasPag {
		return BatchCursor{StreamToken: tok}, nil
	}
	fields := strings.SplitN(pagPart, ",", 4)
	if len(fields) != 4 {
		return BatchCursor{}, fmt.Errorf("types: invalid pagination state %q", pagPart)
	}
	value, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return BatchCursor{}, fmt.Errorf("types: invalid pagination value %q: %w", fields[1], err)
	}
	limit, err := strconv.Atoi(fields[2])
	if err != nil {
		return BatchCursor{}, fmt.Errorf("types: invalid pagination limit %q: %w", fields[2], err)
	}
	return BatchCursor{
		StreamToken: tok,
		PaginationState: &PaginationState{
			Order: PaginationOrder(fields[0]),
			Value: value,
			Limit: limit,
			Tags:  TagMode(fields[3]),
		},
	}, nil
}
