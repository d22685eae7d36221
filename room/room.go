// Package room implements the connection state machine and the per-room
// facade binding presence, the CRDT document, and the outbound coalescer to
// one WebSocket connection, per spec.md §4.1–§4.6.
package room

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/M-Faheem-Khan/liveblocks/internal/crdt"
	"github.com/M-Faheem-Khan/liveblocks/internal/idalloc"
	"github.com/M-Faheem-Khan/liveblocks/internal/lberrors"
	"github.com/M-Faheem-Khan/liveblocks/internal/presence"
	"github.com/M-Faheem-Khan/liveblocks/internal/transport"
	"github.com/M-Faheem-Khan/liveblocks/internal/wire"

	"github.com/M-Faheem-Khan/liveblocks/internal/coalescer"
)

// BroadcastHandler receives a broadcast event originated by actor.
type BroadcastHandler func(actor int, event any)

// Room binds one room's document, presence, and outbound coalescer to a
// single connection state machine. Construct with New; call Start to launch
// the connection (Start(false) followed by Connect defers it) and Leave to
// tear it down permanently — a Room is
// single-use once left, matching spec.md §8 property 5 ("leave then enter
// yields a fresh room").
type Room struct {
	id     string
	cfg    Config
	logger *zap.Logger

	alloc     *idalloc.Allocator
	doc       *crdt.Document
	presence  *presence.Store
	coalescer *coalescer.Coalescer

	mu             sync.Mutex
	state          State
	statusSubs     []func(State)
	errorSubs      []func(*lberrors.Error)
	broadcastSubs  []BroadcastHandler
	fetchedOnce    bool
	violationCount int
	violationSince time.Time

	connectSignal chan struct{}
	skipBackoff   chan struct{}
	leaveOnce     sync.Once
	leaveCh       chan struct{}
	doneCh        chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	socket   transport.Socket
	leaveErr error

	unsubOnline     func()
	unsubVisibility func()

	hist history
}

// New constructs a Room for roomID. The room does not connect until Start
// is called (with connect true, or followed by Connect).
func New(cfg Config) *Room {
	r := &Room{
		id:            cfg.RoomID,
		cfg:           cfg,
		logger:        cfg.logger(),
		connectSignal: make(chan struct{}, 1),
		skipBackoff:   make(chan struct{}, 1),
		leaveCh:       make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	r.alloc = idalloc.New(0)
	r.presence = presence.New(0)
	r.coalescer = coalescer.New(cfg.Throttle, sinkFunc(r.sendFrame))
	r.doc = crdt.New(r.alloc, r.onLocalOps)
	r.hist.init()
	return r
}

// ID returns the room's identifier.
func (r *Room) ID() string { return r.id }

// Root returns the document's root LiveObject.
func (r *Room) Root() *crdt.Object { return r.doc.Root() }

// Connect starts (or restarts, from Failed) the connection state machine.
// It returns immediately; observe progress via OnStatusChange.
func (r *Room) Connect() {
	select {
	case r.connectSignal <- struct{}{}:
	default:
	}
}

// Leave permanently tears the room down: cancels every timer, closes the
// socket with code 1000, and detaches environment listeners, per spec.md
// §5's cancellation rule. Safe to call more than once; returns any error
// from the final socket close.
func (r *Room) Leave() error {
	r.leaveOnce.Do(func() {
		close(r.leaveCh)
		r.coalescer.Stop()
		if r.unsubOnline != nil {
			r.unsubOnline()
		}
		if r.unsubVisibility != nil {
			r.unsubVisibility()
		}
	})
	<-r.doneCh
	return r.leaveErr
}

// Status returns the current connection state.
func (r *Room) Status() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// OnStatusChange registers fn to be called on every state transition.
// Returns an unsubscribe function.
func (r *Room) OnStatusChange(fn func(State)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusSubs = append(r.statusSubs, fn)
	idx := len(r.statusSubs) - 1
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if idx < len(r.statusSubs) {
			r.statusSubs[idx] = nil
		}
	}
}

// OnError registers fn to receive AuthPermanent and escalated
// ProtocolViolation errors (spec.md §7). Returns an unsubscribe function.
func (r *Room) OnError(fn func(*lberrors.Error)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorSubs = append(r.errorSubs, fn)
	idx := len(r.errorSubs) - 1
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if idx < len(r.errorSubs) {
			r.errorSubs[idx] = nil
		}
	}
}

// OnBroadcast registers fn to receive every BROADCAST_EVENT delivered to
// this room. Returns an unsubscribe function.
func (r *Room) OnBroadcast(fn BroadcastHandler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastSubs = append(r.broadcastSubs, fn)
	idx := len(r.broadcastSubs) - 1
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if idx < len(r.broadcastSubs) {
			r.broadcastSubs[idx] = nil
		}
	}
}

func (r *Room) setState(s State) {
	r.mu.Lock()
	if r.state == s {
		r.mu.Unlock()
		return
	}
	r.state = s
	subs := append([]func(State){}, r.statusSubs...)
	r.mu.Unlock()

	r.cfg.metricsOrNop().SetConnectionState(r.id, int(s))
	for _, fn := range subs {
		if fn != nil {
			fn(s)
		}
	}
}

func (r *Room) emitError(err *lberrors.Error) {
	r.mu.Lock()
	subs := append([]func(*lberrors.Error){}, r.errorSubs...)
	r.mu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn(err)
		}
	}
}

func (r *Room) dispatchBroadcast(actor int, event any) {
	r.mu.Lock()
	subs := append([]BroadcastHandler{}, r.broadcastSubs...)
	r.mu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn(actor, event)
		}
	}
}

// --- presence & broadcast public API (spec.md §4.5) -------------------

// UpdatePresence merges patch into local presence. A nil value for a key
// deletes it. When addToHistory is true the change becomes undoable.
func (r *Room) UpdatePresence(patch map[string]any, addToHistory bool) {
	inverse := r.presence.ApplyLocalPatch(patch)
	r.coalescer.AddPresencePatch(patch, nil)
	if addToHistory {
		r.hist.pushPresence(inverse)
	}
}

// Others returns a snapshot of every known remote actor's presence.
func (r *Room) Others() map[int]map[string]any { return r.presence.Others() }

// Self returns the local actor's current presence.
func (r *Room) Self() map[string]any { return r.presence.Local() }

// Broadcast fires a fire-and-forget event to every currently connected
// peer, with no delivery or ordering guarantee beyond at-most-once per
// peer (spec.md §4.5).
func (r *Room) Broadcast(event any) {
	r.coalescer.AddEvent(event)
}

// --- undo/redo & CRDT subscription passthrough --------------------------

func (r *Room) Undo() error                                 { return r.hist.undo(r) }
func (r *Room) Redo() error                                 { return r.hist.redo(r) }
func (r *Room) PauseHistory()                               { r.doc.PauseHistory(); r.hist.pause() }
func (r *Room) ResumeHistory()                              { r.doc.ResumeHistory(); r.hist.resume() }
func (r *Room) Subscribe(id string, fn crdt.SubscribeFunc)  { r.doc.Subscribe(id, fn) }
func (r *Room) SubscribeStorage(fn crdt.BatchSubscribeFunc) { r.doc.SubscribeBatch(fn) }

// onLocalOps is the Document's emit callback: every locally committed batch
// (user mutation or undo/redo replay) is handed to the coalescer. It also
// notes the commit in the room's mixed presence/storage history timeline,
// unless the commit originated from hist.undo/hist.redo replaying a CRDT
// entry itself (suppressed via hist.suppressMarkers).
func (r *Room) onLocalOps(ops []wire.Op) {
	r.coalescer.AddOps(ops)
	r.cfg.metricsOrNop().OpsSent(len(ops))
	r.hist.noteStorageCommit()
}

// sinkFunc adapts a plain function to coalescer.Sink.
type sinkFunc func(presence *wire.UpdatePresencePayload, ops []wire.Op, events []any)

func (f sinkFunc) Send(presence *wire.UpdatePresencePayload, ops []wire.Op, events []any) {
	f(presence, ops, events)
}

// sendFrame is the coalescer's flush sink: it writes up to three
// client->server frames to the currently open socket. Called only while
// the coalescer believes the connection is open (room keeps that in sync
// via coalescer.SetOpen in the session loop), but the socket reference is
// read fresh each time in case a race loses it — a failed write here is
// logged and otherwise ignored; the disconnect will already be detected by
// the read pump.
func (r *Room) sendFrame(presencePayload *wire.UpdatePresencePayload, ops []wire.Op, events []any) {
	socket := r.currentSocket()
	if socket == nil {
		return
	}
	if presencePayload != nil {
		if err := socket.WriteJSON(wire.ClientFrame{Type: wire.ClientUpdatePresence, Payload: presencePayload}); err != nil {
			r.logger.Warn("write presence frame failed", zap.Error(err))
		}
		r.cfg.metricsOrNop().PresenceUpdateSent()
	}
	if len(ops) > 0 {
		if err := socket.WriteJSON(wire.ClientFrame{Type: wire.ClientUpdateStorage, Payload: wire.UpdateStoragePayload{Ops: ops}}); err != nil {
			r.logger.Warn("write storage frame failed", zap.Error(err))
		}
	}
	for _, event := range events {
		if err := socket.WriteJSON(wire.ClientFrame{Type: wire.ClientBroadcastEvent, Payload: wire.BroadcastEventPayload{Event: event}}); err != nil {
			r.logger.Warn("write broadcast frame failed", zap.Error(err))
		}
	}
}

func (r *Room) currentSocket() transport.Socket {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.socket
}

func (r *Room) setSocket(s transport.Socket) {
	r.mu.Lock()
	r.socket = s
	r.mu.Unlock()
}
