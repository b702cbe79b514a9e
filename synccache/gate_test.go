package synccache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arcchat/syncengine/engine"
	"github.com/arcchat/syncengine/internal/memstore"
	"github.com/arcchat/syncengine/synccache"
	"github.com/arcchat/syncengine/types"
	"github.com/stretchr/testify/require"
)

type fakeBuilder struct {
	calls  int32
	result func(calls int32) *types.SyncResult
	err    error
}

func (f *fakeBuilder) Build(ctx context.Context, req engine.Request) (*types.SyncResult, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.result(n), nil
}

func cursor(roomKey int64) *types.BatchCursor {
	return &types.BatchCursor{StreamToken: types.StreamingToken{RoomKey: types.StreamPosition(roomKey)}}
}

// TestWaitForSync_FastPathSkipsNotifierOnInitialSync covers the fast
// path: no cursor means compute once, never touch the notifier.
func TestWaitForSync_FastPathSkipsNotifierOnInitialSync(t *testing.T) {
	builder := &fakeBuilder{result: func(n int32) *types.SyncResult {
		return types.NewEmptySyncResult(types.BatchCursor{StreamToken: types.StreamingToken{RoomKey: 1}})
	}}
	g := synccache.NewGate(builder, memstore.NewNotifier(), time.Minute)

	res, err := g.WaitForSync(context.Background(), engine.Request{UserID: "@alice:test"}, 30*time.Second)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, int32(1), atomic.LoadInt32(&builder.calls))
}

// TestWaitForSync_LongPollReturnsOnceNotifiedOfNonEmptyResult covers
// the notifier-driven select loop: the first Build call returns an
// empty result, so the gate waits on the notifier; once notified, a
// second Build call returns non-empty data and WaitForSync returns it.
func TestWaitForSync_LongPollReturnsOnceNotifiedOfNonEmptyResult(t *testing.T) {
	notifier := memstore.NewNotifier()
	builder := &fakeBuilder{result: func(n int32) *types.SyncResult {
		next := types.BatchCursor{StreamToken: types.StreamingToken{RoomKey: types.StreamPosition(n)}}
		r := types.NewEmptySyncResult(next)
		if n >= 2 {
			r.AccountData = []*types.Event{{Type: "m.push_rules"}}
		}
		return r
	}}
	g := synccache.NewGate(builder, notifier, time.Minute)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		notifier.Notify("@alice:test")
	}()

	res, err := g.WaitForSync(context.Background(), engine.Request{
		UserID: "@alice:test",
		Cursor: cursor(1),
	}, 5*time.Second)
	wg.Wait()
	require.NoError(t, err)
	require.False(t, res.IsEmpty())
}

// TestWaitForSync_TimeoutReturnsEmptyResultNotError covers spec §7
// bullet 4: a long-poll timeout is not an error.
func TestWaitForSync_TimeoutReturnsEmptyResultNotError(t *testing.T) {
	builder := &fakeBuilder{result: func(n int32) *types.SyncResult {
		return types.NewEmptySyncResult(types.BatchCursor{StreamToken: types.StreamingToken{RoomKey: 1}})
	}}
	g := synccache.NewGate(builder, memstore.NewNotifier(), time.Minute)

	res, err := g.WaitForSync(context.Background(), engine.Request{
		UserID: "@alice:test",
		Cursor: cursor(1),
	}, 30*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.True(t, res.IsEmpty())
}

// TestWaitForSync_CoalescesIdenticalConcurrentRequests covers the
// pending-request coalescing: two concurrent calls with the same
// fingerprint must only invoke the builder once.
func TestWaitForSync_CoalescesIdenticalConcurrentRequests(t *testing.T) {
	release := make(chan struct{})
	builder := &fakeBuilder{result: func(n int32) *types.SyncResult {
		<-release
		return types.NewEmptySyncResult(types.BatchCursor{StreamToken: types.StreamingToken{RoomKey: 1}})
	}}
	g := synccache.NewGate(builder, memstore.NewNotifier(), time.Minute)

	req := engine.Request{UserID: "@alice:test", FullState: true}

	var wg sync.WaitGroup
	results := make([]*types.SyncResult, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = g.WaitForSync(context.Background(), req, 30*time.Second)
		}()
	}
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, int32(1), atomic.LoadInt32(&builder.calls))
}

// TestWaitForSync_CancelledCoalescedWaiterDoesNotPoisonSharedResult
// covers spec §4.1: cancelling one coalesced caller must let the
// in-flight computation run to completion so the other waiter (and
// any later cache hit) still gets the real result, not the cancelled
// caller's own ctx.Err().
func TestWaitForSync_CancelledCoalescedWaiterDoesNotPoisonSharedResult(t *testing.T) {
	release := make(chan struct{})
	builder := &fakeBuilder{result: func(n int32) *types.SyncResult {
		<-release
		r := types.NewEmptySyncResult(types.BatchCursor{StreamToken: types.StreamingToken{RoomKey: 1}})
		r.AccountData = []*types.Event{{Type: "m.push_rules"}}
		return r
	}}
	g := synccache.NewGate(builder, memstore.NewNotifier(), time.Minute)
	req := engine.Request{UserID: "@alice:test", FullState: true}

	ctx1, cancel1 := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var res1, res2 *types.SyncResult
	var err1, err2 error

	wg.Add(1)
	go func() {
		defer wg.Done()
		res1, err1 = g.WaitForSync(ctx1, req, 30*time.Second)
	}()
	time.Sleep(10 * time.Millisecond) // req1 creates the pending entry first

	wg.Add(1)
	go func() {
		defer wg.Done()
		res2, err2 = g.WaitForSync(context.Background(), req, 30*time.Second)
	}()
	time.Sleep(10 * time.Millisecond) // req2 coalesces onto req1's pending entry

	cancel1()
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	require.ErrorIs(t, err1, context.Canceled)
	require.Nil(t, res1)

	require.NoError(t, err2)
	require.False(t, res2.IsEmpty(), "a coalesced waiter must still see the real computed result")

	require.Equal(t, int32(1), atomic.LoadInt32(&builder.calls), "one caller cancelling must not trigger a second Build call")
}

func TestFingerprint_DifferByFullStateFlag(t *testing.T) {
	a := synccache.Fingerprint(engine.Request{UserID: "@alice:test", FullState: false})
	b := synccache.Fingerprint(engine.Request{UserID: "@alice:test", FullState: true})
	require.NotEqual(t, a, b)
}

var errBoom = errors.New("boom")

// TestWaitForSync_BuilderErrorPropagates covers error propagation
// through the fast path.
func TestWaitForSync_BuilderErrorPropagates(t *testing.T) {
	builder := &fakeBuilder{err: errBoom}
	g := synccache.NewGate(builder, memstore.NewNotifier(), time.Minute)

	_, err := g.WaitForSync(context.Background(), engine.Request{UserID: "@alice:test"}, 30*time.Second)
	require.ErrorIs(t, err, errBoom)
}
