package types

// TimelineBatch is a window of a room's timeline plus the token a
// client should ask for to page further back.
type TimelineBatch struct {
	PrevBatch StreamPosition
	Events    []*Event
	Limited   bool
}

// UnreadNotifications holds the per-room notification counters.
// Present only for Joined rooms, and only when the user has ever read
// a receipt in the room (spec §4.6 step 5).
type UnreadNotifications struct {
	NotificationCount int
	HighlightCount    int
}

// RoomResult is implemented by each of the four per-room result
// variants. It is a marker interface: callers type-switch on the
// concrete type rather than calling methods on it, beyond RoomID.
type RoomResult interface {
	RoomID() string
}

// JoinedResult is the result for a room the user currently occupies.
type JoinedResult struct {
	ID          string
	Timeline    TimelineBatch
	State       []*Event // state delta, see engine/statedelta
	AccountData []*Event
	Ephemeral   []*Event
	Unread      *UnreadNotifications
	Summary     RoomSummary
	// Synced indicates whether this payload is a full re-sync of the
	// room (true) or a delta against a prior known state (false),
	// spec §4.1 / §4.7 tag-rescue rules.
	Synced bool
}

// RoomID implements RoomResult.
func (j *JoinedResult) RoomID() string { return j.ID }

// ArchivedResult is the result for a room the user has left or been
// removed from since the cursor.
type ArchivedResult struct {
	ID       string
	Timeline TimelineBatch
	State    []*Event
}

// RoomID implements RoomResult.
func (a *ArchivedResult) RoomID() string { return a.ID }

// InvitedResult is the result for a pending invite.
type InvitedResult struct {
	ID          string
	InviteState []*Event
}

// RoomID implements RoomResult.
func (i *InvitedResult) RoomID() string { return i.ID }

// ErrorCode enumerates the inline per-room error codes the engine can
// emit (spec §7 bullet 2).
type ErrorCode string

// CannotPeek is returned for a room the user tried to peek without
// being admitted to and without a membership of their own.
const CannotPeek ErrorCode = "CANNOT_PEEK"

// ErrorResult is an inline per-room failure that does not abort the
// rest of the sync.
type ErrorResult struct {
	ID   string
	Code ErrorCode
}

// RoomID implements RoomResult.
func (e *ErrorResult) RoomID() string { return e.ID }

// RoomSummary carries the handful of computed room-level facts the
// materializer derives (member counts), independent of state events.
type RoomSummary struct {
	JoinedMemberCount  int
	InvitedMemberCount int
}

// PaginationInfo surfaces the lazy-loading paginator's page-level
// verdict (spec §4.7): whether this poll's room set was truncated by
// the pagination limit, independent of any single room's timeline
// truncation.
type PaginationInfo struct {
	Limited bool
}

// SyncResult is the top-level output of one sync.
type SyncResult struct {
	NextBatch      BatchCursor
	AccountData    []*Event
	Presence       []*Event
	Joined         map[string]*JoinedResult
	Invited        map[string]*InvitedResult
	Archived       map[string]*ArchivedResult
	Errors         map[string]*ErrorResult
	PaginationInfo PaginationInfo
}

// NewEmptySyncResult returns a SyncResult carrying only the cursor,
// with every map allocated and empty.
func NewEmptySyncResult(next BatchCursor) *SyncResult {
	return &SyncResult{
		NextBatch: next,
		Joined:    map[string]*JoinedResult{},
		Invited:   map[string]*InvitedResult{},
		Archived:  map[string]*ArchivedResult{},
		Errors:    map[string]*ErrorResult{},
	}
}

// IsEmpty is the dedicated emptiness predicate required by spec §3:
// a result with nothing to deliver to the client. Never inferred from
// container truthiness at call sites — always call this method.
func (r *SyncResult) IsEmpty() bool {
	if r == nil {
		return true
	}
	if len(r.AccountData) != 0 || len(r.Presence) != 0 {
		return false
	}
	if len(r.Invited) != 0 || len(r.Archived) != 0 || len(r.Errors) != 0 {
		return false
	}
	for _, j := range r.Joined {
		if len(j.Timeline.Events) != 0 || len(j.State) != 0 ||
			len(j.AccountData) != 0 || len(j.Ephemeral) != 0 {
			return false
		}
	}
	return true
}
