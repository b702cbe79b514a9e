// Package synccache implements the long-poll gate and response cache
// (spec §4.1): wait_for_sync's fast-path/long-poll dispatch, and
// request-fingerprint-keyed coalescing of concurrent identical syncs.
// Grounded near-verbatim on other_examples' classic dendrite
// RequestPool.OnIncomingSyncRequest (the timeout==0/no-cursor/
// full_state fast path vs. notifier-driven select-loop shape) and its
// Notifier collaborator.
package synccache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/arcchat/syncengine/collab"
	"github.com/arcchat/syncengine/engine"
	"github.com/arcchat/syncengine/internal/logging"
	"github.com/arcchat/syncengine/internal/metrics"
	"github.com/arcchat/syncengine/types"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/atomic"
)

// Builder is the minimal surface the gate needs from the orchestrator:
// one call that (re)computes a full sync result. engine.SyncResultBuilder
// satisfies this directly.
type Builder interface {
	Build(ctx context.Context, req engine.Request) (*types.SyncResult, error)
}

// BuildRequest is an alias kept for call sites that prefer the
// synccache-local name; it is exactly engine.Request.
type BuildRequest = engine.Request

type pendingEntry struct {
	done   chan struct{}
	result *types.SyncResult
	err    error
}

// Gate implements wait_for_sync (spec §4.1). It is the only
// process-wide mutable state in the engine (spec §5): every other
// component is task-local.
type Gate struct {
	builder  Builder
	notifier collab.Notifier
	cache    *gocache.Cache

	mu      sync.Mutex
	pending map[string]*pendingEntry

	longPolling atomic.Int64
}

// LongPolling reports how many calls are currently parked in the
// notifier-driven wait loop, for a host process to expose as a gauge.
func (g *Gate) LongPolling() int64 {
	return g.longPolling.Load()
}

// NewGate constructs a Gate with the given resolved-entry TTL.
func NewGate(builder Builder, notifier collab.Notifier, ttl time.Duration) *Gate {
	return &Gate{
		builder:  builder,
		notifier: notifier,
		cache:    gocache.New(ttl, ttl*2),
		pending:  make(map[string]*pendingEntry),
	}
}

// WaitForSync implements spec §4.1's wait_for_sync operation.
func (g *Gate) WaitForSync(ctx context.Context, req BuildRequest, timeout time.Duration) (*types.SyncResult, error) {
	key := Fingerprint(req)
	log := logging.Logger().WithField("component", "synccache").WithField("fingerprint", key)

	if cached, ok := g.cache.Get(key); ok {
		entry := cached.(*pendingEntry)
		<-entry.done
		metrics.CacheHits.WithLabelValues("hit").Inc()
		return entry.result, entry.err
	}

	g.mu.Lock()
	if p, ok := g.pending[key]; ok {
		g.mu.Unlock()
		metrics.CacheHits.WithLabelValues("coalesced").Inc()
		select {
		case <-p.done:
			return p.result, p.err
		case <-ctx.Done():
			log.WithError(ctx.Err()).Debug("coalesced sync request cancelled while waiting")
			return nil, ctx.Err()
		}
	}
	entry := &pendingEntry{done: make(chan struct{})}
	g.pending[key] = entry
	g.mu.Unlock()
	metrics.CacheHits.WithLabelValues("miss").Inc()

	go g.compute(entry, key, req, timeout)

	select {
	case <-entry.done:
		return entry.result, entry.err
	case <-ctx.Done():
		// This caller is giving up, but the computation keeps running
		// in the background (spec §4.1: cancellation must let "the
		// in-flight computation proceed to completion, so the cached
		// result can serve retries") — any other request coalesced
		// onto this fingerprint is still blocked on entry.done above
		// and must see the real Build outcome, never this caller's
		// own ctx.Err().
		log.WithError(ctx.Err()).Debug("sync request cancelled while waiting; in-flight computation continues")
		return nil, ctx.Err()
	}
}

// compute runs the fast-path build or the long-poll loop to
// completion and populates entry, detached from any single caller's
// context: it uses context.Background() throughout so that the
// caller cancelling WaitForSync never aborts the shared computation
// other coalesced waiters (or a subsequent cache hit) depend on.
func (g *Gate) compute(entry *pendingEntry, key string, req BuildRequest, timeout time.Duration) {
	defer func() {
		g.mu.Lock()
		delete(g.pending, key)
		g.mu.Unlock()
		g.cache.SetDefault(key, entry)
		close(entry.done)
	}()

	ctx := context.Background()

	// Fast path: no cursor, timeout disabled, or full_state — compute
	// once and return, never touching the notifier.
	if req.Cursor == nil || timeout == 0 || req.FullState {
		entry.result, entry.err = g.builder.Build(ctx, req)
		return
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	start := time.Now()

	g.longPolling.Inc()
	defer g.longPolling.Dec()

	for {
		res, err := g.builder.Build(ctx, req)
		if err != nil {
			entry.result, entry.err = nil, err
			return
		}
		if !res.IsEmpty() {
			entry.result = res
			metrics.LongPollWaitSeconds.Observe(time.Since(start).Seconds())
			return
		}

		waitErr := make(chan error, 1)
		go func() { waitErr <- g.notifier.Wait(ctx, req.UserID, req.Cursor.StreamToken) }()

		select {
		case <-waitErr:
			continue
		case <-timer.C:
			// Not an error (spec §7 bullet 4): return the last
			// recomputed (empty) result, whose next_batch is the
			// builder's current token.
			entry.result = res
			metrics.LongPollWaitSeconds.Observe(time.Since(start).Seconds())
			return
		}
	}
}

// Fingerprint computes a deterministic digest of a request, used as
// the response-cache / coalescing key. It covers the user, the cursor,
// full_state, the timeline filter (limit, types, not_types,
// lazy_load_members), include_leave and the paginate and peek extras;
// the state filter is not part of the digest.
func Fingerprint(req BuildRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|", req.UserID)
	if req.Cursor != nil {
		fmt.Fprintf(h, "%s|", req.Cursor.String())
	} else {
		fmt.Fprint(h, "-|")
	}
	tl := req.Filters.Room.Timeline
	fmt.Fprintf(h, "%t|%d|%q|%q|%t|%t|", req.FullState, tl.Limit, tl.Types, tl.NotTypes, tl.LazyLoadMembers, req.Filters.Room.IncludeLeave)
	peek := make([]string, 0, len(req.Extras.Peek.RoomIDs))
	for id := range req.Extras.Peek.RoomIDs {
		peek = append(peek, id)
	}
	sort.Strings(peek)
	fmt.Fprintf(h, "%t|%d|%q", req.Extras.Paginate.Enabled, req.Extras.Paginate.Limit, peek)
	return hex.EncodeToString(h.Sum(nil))
}
