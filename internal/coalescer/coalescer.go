// Package coalescer implements the outbound message batching described in
// spec.md §4.2: a throttled flusher that accumulates pending presence,
// storage ops, and broadcast events, and emits them as at most three frames
// every throttle interval, draining into the room's transport only while
// the connection is open.
package coalescer

import (
	"sync"
	"time"

	"github.com/M-Faheem-Khan/liveblocks/internal/wire"
)

// MinThrottle and MaxThrottle bound the configurable flush interval per
// spec.md §4.2 and §6.1.
const (
	MinThrottle = 80 * time.Millisecond
	MaxThrottle = 1000 * time.Millisecond
	DefaultThrottle = 100 * time.Millisecond
)

// Sink receives flushed frames. Presence and Ops are nil when that buffer
// had nothing pending; Events is nil when empty. The room wires Sink to
// its transport's Send, and is responsible for dropping frames while the
// connection is not open (the coalescer itself buffers regardless of
// connection state — spec.md §4.2, "while not open, buffers accumulate").
type Sink interface {
	Send(presence *wire.UpdatePresencePayload, ops []wire.Op, events []any)
}

// Coalescer batches local mutations into throttled flushes. The zero value
// is not usable — construct with New.
type Coalescer struct {
	mu sync.Mutex

	throttle time.Duration
	sink     Sink
	timer    *time.Timer
	armed    bool

	pendingPresence    map[string]any
	pendingTargetActor *int
	presenceDirty      bool
	fullResyncNeeded   bool

	pendingOps    []wire.Op
	pendingEvents []any

	open bool
}

// New creates a Coalescer flushing to sink no more than once every
// throttle. Panics if throttle is outside [MinThrottle, MaxThrottle] — the
// root package's liveblocks.NewClient validates this earlier and turns it
// into a constructor error instead (spec.md §4.2: "invalid values reject at
// client construction with a descriptive error"); room.New does not.
func New(throttle time.Duration, sink Sink) *Coalescer {
	if throttle < MinThrottle || throttle > MaxThrottle {
		panic("coalescer: throttle out of range")
	}
	return &Coalescer{
		throttle:        throttle,
		sink:            sink,
		pendingPresence: make(map[string]any),
	}
}

// SetOpen toggles whether frames may currently be sent. While closed,
// buffers keep accumulating; going from closed to open triggers an
// immediate flush, per spec.md §4.2.
func (c *Coalescer) SetOpen(open bool) {
	c.mu.Lock()
	wasOpen := c.open
	c.open = open
	c.mu.Unlock()

	if open && !wasOpen {
		c.flush()
	}
}

// AddPresencePatch merges patch into the pending presence buffer (latest
// value wins per key) and arms the flush timer.
func (c *Coalescer) AddPresencePatch(patch map[string]any, targetActor *int) {
	c.mu.Lock()
	for k, v := range patch {
		c.pendingPresence[k] = v
	}
	c.presenceDirty = true
	c.pendingTargetActor = targetActor
	c.mu.Unlock()
	c.arm()
}

// RequestFullPresenceResync marks the next flush's presence frame as a full
// snapshot rather than a diff. full is the complete current local presence
// at the moment the resync was requested; subsequent patches still merge on
// top of it before the flush fires. target, when non-nil, addresses the
// resync frame to that one peer's actor id rather than broadcasting it to
// everyone in the room (spec.md §4.2's targetActor diffusion, SPEC_FULL.md
// §3) — used when a USER_JOINED event names the specific peer that needs
// to learn this client's presence. A nil target is a plain broadcast, used
// when this client itself has just opened the connection and every
// existing room member needs to learn about it (spec.md §4.2, "the local
// client responds by scheduling a full presence broadcast on the next
// flush").
func (c *Coalescer) RequestFullPresenceResync(full map[string]any, target *int) {
	c.mu.Lock()
	for k, v := range full {
		if _, exists := c.pendingPresence[k]; !exists {
			c.pendingPresence[k] = v
		}
	}
	c.presenceDirty = true
	c.fullResyncNeeded = true
	c.pendingTargetActor = target
	c.mu.Unlock()
	c.arm()
}

// AddOps appends ops to the pending storage-ops buffer and arms the flush
// timer. Ops are never reordered or coalesced with each other.
func (c *Coalescer) AddOps(ops []wire.Op) {
	if len(ops) == 0 {
		return
	}
	c.mu.Lock()
	c.pendingOps = append(c.pendingOps, ops...)
	c.mu.Unlock()
	c.arm()
}

// AddEvent appends event to the pending broadcast-events buffer. Events are
// never coalesced with one another.
func (c *Coalescer) AddEvent(event any) {
	c.mu.Lock()
	c.pendingEvents = append(c.pendingEvents, event)
	c.mu.Unlock()
	c.arm()
}

// arm (re)starts the flush timer for throttle from now, unless it is
// already running — every local mutation re-arms relative to the *last
// flush*, not the last mutation, so a running timer is left alone.
func (c *Coalescer) arm() {
	c.mu.Lock()
	if c.armed {
		c.mu.Unlock()
		return
	}
	c.armed = true
	c.timer = time.AfterFunc(c.throttle, c.flush)
	c.mu.Unlock()
}

// flush emits up to three frames, in order: presence, storage ops,
// broadcast events — only for buffers that are non-empty, and only while
// the connection is open. While closed, flush leaves every buffer as it is
// so its contents go out on the flush SetOpen(true) triggers.
func (c *Coalescer) flush() {
	c.mu.Lock()
	c.armed = false

	if !c.open {
		c.mu.Unlock()
		return
	}

	var presencePayload *wire.UpdatePresencePayload
	if c.presenceDirty {
		presencePayload = &wire.UpdatePresencePayload{
			Data:        c.pendingPresence,
			TargetActor: c.pendingTargetActor,
		}
		c.pendingPresence = make(map[string]any)
		c.presenceDirty = false
		c.fullResyncNeeded = false
		c.pendingTargetActor = nil
	}

	ops := c.pendingOps
	c.pendingOps = nil

	events := c.pendingEvents
	c.pendingEvents = nil

	sink := c.sink
	c.mu.Unlock()

	if presencePayload == nil && len(ops) == 0 && len(events) == 0 {
		return
	}
	sink.Send(presencePayload, ops, events)
}

// Stop cancels the pending flush timer without flushing — used on leave().
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.armed = false
}
