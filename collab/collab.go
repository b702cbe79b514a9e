package collab

import (
	"context"

	"github.com/arcchat/syncengine/types"
)

// EventSources is the registry of per-sub-stream "what moved since X"
// sources the orchestrator consults to build now_token (spec §4.2).
type EventSources interface {
	// CurrentToken returns the current position of every sub-stream.
	CurrentToken(ctx context.Context) (types.StreamingToken, error)
}

// PresenceState is one user's presence as returned by the Presence
// collaborator.
type PresenceState struct {
	UserID         string
	Status         string // "online", "offline", "unavailable"
	LastActiveTS   int64
	StatusMessage  string
}

// Presence is the external presence subsystem. The engine never
// mutates presence state; it only reads it and folds it into the
// sync result (spec §4.5).
type Presence interface {
	// GetStates returns presence for exactly the given users. Used
	// only to synthesize current-presence events for extra_users (a
	// user newly visible to the syncer this poll) — never as the
	// primary scoping mechanism for a user's own presence feed.
	GetStates(ctx context.Context, userIDs []string) ([]PresenceState, error)

	// GetStatesForUser returns presence for every user sharing
	// presence visibility with userID (their full relevant graph,
	// computed by this collaborator, never by the caller). If since is
	// nil this is an initial fetch restricted to online users; if
	// since is non-nil it returns every change (including transitions
	// to offline) since that position, plus the advanced position.
	GetStatesForUser(ctx context.Context, userID string, since *types.StreamPosition) ([]PresenceState, types.StreamPosition, error)
}

// Notifier is the collaborator the long-poll gate waits on. Wait
// blocks until either an event arrives relevant to the user, or ctx is
// done; it never itself decides whether the eventual result is
// non-empty — that's re-checked by recomputation after each wake, per
// spec §4.1.
type Notifier interface {
	// Wait blocks until something may have changed for userID at or
	// after since, or ctx is cancelled. It returns nil on a wake, or
	// ctx.Err() on cancellation.
	Wait(ctx context.Context, userID string, since types.StreamingToken) error
}

// VisibilityFilter decides, for a given user, which of a candidate
// list of events they are allowed to see (redaction/history-visibility
// rules live entirely on the other side of this interface).
type VisibilityFilter interface {
	FilterEventsForClient(ctx context.Context, userID string, events []*types.Event) ([]*types.Event, error)
}

// PushRuleFormatter renders a user's push rules into the opaque
// account-data-shaped payload the client expects under m.push_rules.
type PushRuleFormatter interface {
	FormatPushRulesForUser(ctx context.Context, userID string) ([]byte, error)
}

// RoomEventFilter bounds a timeline/state fetch.
type RoomEventFilter struct {
	Limit          int
	Types          []string
	NotTypes       []string
	LazyLoadMembers bool
}

// StateFilter bounds which state events are included in a state
// delta's final output (spec §4.9's "pass through the filter" step).
type StateFilter interface {
	Allow(ev *types.Event) bool
}

// AllowAllStateFilter is the identity filter: every state event
// passes through unchanged. Used when no client filter narrows state.
type AllowAllStateFilter struct{}

// Allow always returns true.
func (AllowAllStateFilter) Allow(*types.Event) bool { return true }

// Filters bundles the per-sync client-supplied filter knobs the
// orchestrator threads down to its sub-components (spec §6).
type Filters struct {
	Room struct {
		Timeline    RoomEventFilter
		State       StateFilter
		IncludeLeave bool // whether a self-initiated plain leave is surfaced on a no-cursor sync
	}
	AccountData struct {
		Types []string
	}
}

// PaginateExtras carries the per-request lazy-loading extension the
// orchestrator's caller may supply (spec §4.7's extras.paginate).
type PaginateExtras struct {
	Enabled bool
	Limit   int
}

// PeekExtras carries the per-request peek set (spec §4.4.c).
type PeekExtras struct {
	RoomIDs map[string]struct{}
}

// Extras bundles the per-request extension inputs named throughout
// §4: paginate and peek.
type Extras struct {
	Paginate PaginateExtras
	Peek     PeekExtras
}
