// Package idalloc allocates CRDT node ids and op ids for a single actor.
//
// Node ids take the form "<actorId>:<counter>", where counter is
// monotonically increasing and persists across reconnects of the same
// client (but not across process restarts — spec.md §6.3 is explicit that
// nothing is persisted at rest on the client). Op ids are process-unique
// UUIDs, since — unlike node ids — they never need to be compact, ordered,
// or reconstructed from a counter; they exist only to correlate a locally
// emitted op with its eventual server ack.
package idalloc

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// RootID is the reserved node id of every room's document root.
const RootID = "0:0"

// Allocator hands out node ids for one actor and generates op ids. Safe for
// concurrent use, though in practice every caller runs on a room's single
// event-loop goroutine (see spec.md §5).
type Allocator struct {
	actor   int32
	counter uint64
	mu      sync.Mutex
}

// New creates an Allocator for the given actor id.
func New(actor int) *Allocator {
	return &Allocator{actor: int32(actor)}
}

// Actor returns the actor id this allocator was created for.
func (a *Allocator) Actor() int {
	return int(atomic.LoadInt32(&a.actor))
}

// Reassign updates the actor id used for subsequently allocated node ids,
// used when a reconnect is issued a new actor id by the server. The
// counter is not reset: per spec.md §3 it persists across reconnects of
// the same client.
func (a *Allocator) Reassign(actor int) {
	atomic.StoreInt32(&a.actor, int32(actor))
}

// NextNodeID allocates the next node id for this actor.
func (a *Allocator) NextNodeID() string {
	n := atomic.AddUint64(&a.counter, 1)
	return fmt.Sprintf("%d:%d", a.Actor(), n)
}

// NextOpID generates a fresh, process-unique op id.
func (a *Allocator) NextOpID() string {
	return uuid.NewString()
}
