package coalescer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/M-Faheem-Khan/liveblocks/internal/wire"
)

type recordingSink struct {
	mu    sync.Mutex
	sends []sendCall
}

type sendCall struct {
	presence *wire.UpdatePresencePayload
	ops      []wire.Op
	events   []any
	at       time.Time
}

func (r *recordingSink) Send(presence *wire.UpdatePresencePayload, ops []wire.Op, events []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends = append(r.sends, sendCall{presence: presence, ops: ops, events: events, at: time.Now()})
}

func (r *recordingSink) calls() []sendCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sendCall{}, r.sends...)
}

func TestNewRejectsOutOfRangeThrottle(t *testing.T) {
	assert.Panics(t, func() { New(50*time.Millisecond, &recordingSink{}) })
	assert.Panics(t, func() { New(2*time.Second, &recordingSink{}) })
}

// TestableProperty3: between any two outbound frames, elapsed time is at
// least throttle - epsilon.
func TestFlushesAreThrottled(t *testing.T) {
	sink := &recordingSink{}
	throttle := 80 * time.Millisecond
	c := New(throttle, sink)
	c.SetOpen(true)

	c.AddOps([]wire.Op{{OpID: "1"}})
	time.Sleep(throttle / 2)
	c.AddOps([]wire.Op{{OpID: "2"}})

	require.Eventually(t, func() bool { return len(sink.calls()) >= 1 }, time.Second, 5*time.Millisecond)

	calls := sink.calls()
	require.Len(t, calls, 1)
	// Both ops land in the same flush since the second mutation re-armed
	// (not reset) the already-running timer.
	require.Len(t, calls[0].ops, 2)

	// A mutation after the first flush goes out in a second frame no
	// sooner than throttle after the first.
	c.AddOps([]wire.Op{{OpID: "3"}})
	require.Eventually(t, func() bool { return len(sink.calls()) >= 2 }, time.Second, 5*time.Millisecond)
	calls = sink.calls()
	assert.GreaterOrEqual(t, calls[1].at.Sub(calls[0].at), throttle-5*time.Millisecond)
}

func TestOpsAreNeverCoalescedTogether(t *testing.T) {
	sink := &recordingSink{}
	c := New(MinThrottle, sink)
	c.SetOpen(true)

	c.AddOps([]wire.Op{{OpID: "1"}, {OpID: "2"}})

	require.Eventually(t, func() bool { return len(sink.calls()) == 1 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, []wire.Op{{OpID: "1"}, {OpID: "2"}}, sink.calls()[0].ops)
}

func TestPresencePatchLatestWinsPerKey(t *testing.T) {
	sink := &recordingSink{}
	c := New(MinThrottle, sink)
	c.SetOpen(true)

	c.AddPresencePatch(map[string]any{"x": 1, "y": "a"}, nil)
	c.AddPresencePatch(map[string]any{"x": 2}, nil)

	require.Eventually(t, func() bool { return len(sink.calls()) == 1 }, time.Second, 2*time.Millisecond)
	p := sink.calls()[0].presence
	require.NotNil(t, p)
	assert.Equal(t, 2, p.Data["x"])
	assert.Equal(t, "a", p.Data["y"])
}

func TestRequestFullPresenceResyncAddressesOnePeerWhenTargeted(t *testing.T) {
	sink := &recordingSink{}
	c := New(MinThrottle, sink)
	c.SetOpen(true)

	target := 7
	c.RequestFullPresenceResync(map[string]any{"name": "me"}, &target)

	require.Eventually(t, func() bool { return len(sink.calls()) == 1 }, time.Second, 2*time.Millisecond)
	p := sink.calls()[0].presence
	require.NotNil(t, p)
	require.NotNil(t, p.TargetActor)
	assert.Equal(t, 7, *p.TargetActor)
}

func TestRequestFullPresenceResyncBroadcastsWhenUntargeted(t *testing.T) {
	sink := &recordingSink{}
	c := New(MinThrottle, sink)
	c.SetOpen(true)

	c.RequestFullPresenceResync(map[string]any{"name": "me"}, nil)

	require.Eventually(t, func() bool { return len(sink.calls()) == 1 }, time.Second, 2*time.Millisecond)
	p := sink.calls()[0].presence
	require.NotNil(t, p)
	assert.Nil(t, p.TargetActor)
}

func TestBuffersAccumulateWhileClosedAndFlushOnOpen(t *testing.T) {
	sink := &recordingSink{}
	c := New(MinThrottle, sink)

	c.AddOps([]wire.Op{{OpID: "1"}})
	c.AddEvent("hello")
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, sink.calls(), "nothing should flush while closed")

	c.SetOpen(true)
	require.Eventually(t, func() bool { return len(sink.calls()) == 1 }, time.Second, 2*time.Millisecond)
	assert.Len(t, sink.calls()[0].ops, 1)
	assert.Len(t, sink.calls()[0].events, 1)
}

func TestStopCancelsPendingFlush(t *testing.T) {
	sink := &recordingSink{}
	c := New(MinThrottle, sink)
	c.SetOpen(true)
	c.AddOps([]wire.Op{{OpID: "1"}})
	c.Stop()

	time.Sleep(2 * MinThrottle)
	assert.Empty(t, sink.calls())
}
