package memstore

import (
	"context"
	"sync"

	"github.com/arcchat/syncengine/collab"
	"github.com/arcchat/syncengine/types"
)

// EventSources is the in-memory fake of collab.EventSources: it
// simply returns whatever token the test last set.
type EventSources struct {
	mu    sync.Mutex
	Token types.StreamingToken
}

// SetToken updates the current token.
func (e *EventSources) SetToken(t types.StreamingToken) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Token = t
}

// CurrentToken implements collab.EventSources.
func (e *EventSources) CurrentToken(ctx context.Context) (types.StreamingToken, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Token, nil
}

// Presence is the in-memory fake of collab.Presence.
type Presence struct {
	mu       sync.Mutex
	states   map[string]collab.PresenceState
	contacts map[string][]string // userID -> every user sharing presence visibility with them
}

// NewPresence constructs an empty Presence fake.
func NewPresence() *Presence {
	return &Presence{states: map[string]collab.PresenceState{}, contacts: map[string][]string{}}
}

// SetState sets a user's presence fixture.
func (p *Presence) SetState(s collab.PresenceState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[s.UserID] = s
}

// SetContacts fixes the set of users sharing presence visibility with
// userID, i.e. the graph GetStatesForUser scopes itself to — the
// fake's stand-in for a real backing service's own room-membership
// tracking.
func (p *Presence) SetContacts(userID string, others []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contacts[userID] = others
}

// GetStates implements collab.Presence.
func (p *Presence) GetStates(ctx context.Context, userIDs []string) ([]collab.PresenceState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]collab.PresenceState, 0, len(userIDs))
	for _, u := range userIDs {
		if s, ok := p.states[u]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// GetStatesForUser implements collab.Presence: it scopes itself to
// the fixture set by SetContacts (never to a caller-supplied list),
// restricted to online users when since is nil.
func (p *Presence) GetStatesForUser(ctx context.Context, userID string, since *types.StreamPosition) ([]collab.PresenceState, types.StreamPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var advance types.StreamPosition
	if since != nil {
		advance = *since
	}
	out := make([]collab.PresenceState, 0, len(p.contacts[userID]))
	for _, u := range p.contacts[userID] {
		s, ok := p.states[u]
		if !ok {
			continue
		}
		if since == nil && s.Status != "online" {
			continue
		}
		out = append(out, s)
	}
	return out, advance, nil
}

// Notifier is the in-memory fake of collab.Notifier: Wait returns
// immediately once Notify has been called for the user, or blocks
// until ctx is done.
type Notifier struct {
	mu      sync.Mutex
	signals map[string]chan struct{}
}

// NewNotifier constructs an empty Notifier fake.
func NewNotifier() *Notifier { return &Notifier{signals: map[string]chan struct{}{}} }

func (n *Notifier) channelFor(userID string) chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch, ok := n.signals[userID]
	if !ok {
		ch = make(chan struct{}, 1)
		n.signals[userID] = ch
	}
	return ch
}

// Notify wakes any Wait call currently blocked for userID.
func (n *Notifier) Notify(userID string) {
	ch := n.channelFor(userID)
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Wait implements collab.Notifier.
func (n *Notifier) Wait(ctx context.Context, userID string, since types.StreamingToken) error {
	ch := n.channelFor(userID)
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// VisibilityFilter is the identity fake of collab.VisibilityFilter:
// every event is visible.
type VisibilityFilter struct{}

// FilterEventsForClient implements collab.VisibilityFilter.
func (VisibilityFilter) FilterEventsForClient(ctx context.Context, userID string, events []*types.Event) ([]*types.Event, error) {
	return events, nil
}

// PushRuleFormatter is a fixed-payload fake of collab.PushRuleFormatter.
type PushRuleFormatter struct {
	Payload []byte
}

// FormatPushRulesForUser implements collab.PushRuleFormatter.
func (f PushRuleFormatter) FormatPushRulesForUser(ctx context.Context, userID string) ([]byte, error) {
	if f.Payload == nil {
		return []byte(`{}`), nil
	}
	return f.Payload, nil
}
