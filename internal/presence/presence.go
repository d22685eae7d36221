// Package presence implements the ephemeral per-actor presence store: the
// local actor's own presence, a last-writer-wins union of remote actors'
// presence, and the join/leave lifecycle that creates and destroys remote
// entries. Presence has no history — nothing here is undoable on its own;
// history integration (addToHistory) is handled by the caller recording an
// inverse patch with the room's undo stack.
package presence

import "sync"

// Patch is a shallow presence update: a top-level key set to a value patches
// that key, a top-level key set to nil deletes it (spec.md §4.5's
// "undefined deletes the key" — Go has no undefined, nil plays that role).
type Patch map[string]any

// Store holds this client's own presence and the merged view of every
// other known actor's presence.
type Store struct {
	mu sync.Mutex

	localActor int
	local      map[string]any
	remote     map[int]map[string]any

	subs []func(actor int, data map[string]any)
}

// New creates an empty Store for the given local actor id. actor can be
// updated later via SetLocalActor when a reconnect assigns a new one.
func New(actor int) *Store {
	return &Store{
		localActor: actor,
		local:      make(map[string]any),
		remote:     make(map[int]map[string]any),
	}
}

// SetLocalActor updates the actor id this store's own presence is filed
// under, without altering its contents — used after a reconnect assigns a
// new actor id.
func (s *Store) SetLocalActor(actor int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localActor = actor
}

// LocalActor returns the current local actor id.
func (s *Store) LocalActor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localActor
}

// Local returns a copy of the local actor's current presence.
func (s *Store) Local() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMap(s.local)
}

// ApplyLocalPatch merges patch into local presence: a nil value deletes the
// key, any other value sets it. Returns the inverse patch (the prior values
// of every touched key, with deleted keys recorded as nil) so callers can
// push an undo entry when addToHistory is requested.
func (s *Store) ApplyLocalPatch(patch Patch) Patch {
	s.mu.Lock()
	defer s.mu.Unlock()

	inverse := make(Patch, len(patch))
	for k, v := range patch {
		old, existed := s.local[k]
		if existed {
			inverse[k] = old
		} else {
			inverse[k] = nil
		}
		if v == nil {
			delete(s.local, k)
		} else {
			s.local[k] = v
		}
	}
	return inverse
}

// RemoteUpdate merges a partial presence update from actor into that
// actor's record — key-wise union, per spec.md §4.2's diffusion rule. The
// entry is created on first message from an actor not yet known.
func (s *Store) RemoteUpdate(actor int, data map[string]any) {
	s.mu.Lock()
	rec, ok := s.remote[actor]
	if !ok {
		rec = make(map[string]any)
		s.remote[actor] = rec
	}
	for k, v := range data {
		rec[k] = v
	}
	snapshot := cloneMap(rec)
	subs := append([]func(int, map[string]any){}, s.subs...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(actor, snapshot)
	}
}

// RemoteFull replaces actor's entire remote presence record — used when
// ROOM_STATE delivers the full current presence of every already-connected
// peer to a newly joining client.
func (s *Store) RemoteFull(actor int, data map[string]any) {
	s.mu.Lock()
	s.remote[actor] = cloneMap(data)
	snapshot := cloneMap(s.remote[actor])
	subs := append([]func(int, map[string]any){}, s.subs...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(actor, snapshot)
	}
}

// RemoveActor destroys a remote actor's presence record, per USER_LEFT.
func (s *Store) RemoveActor(actor int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.remote, actor)
}

// Get returns a copy of a known actor's presence.
func (s *Store) Get(actor int) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.remote[actor]
	if !ok {
		return nil, false
	}
	return cloneMap(rec), true
}

// Others returns a snapshot of every remote actor's presence, keyed by
// actor id. The local actor is never included.
func (s *Store) Others() map[int]map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]map[string]any, len(s.remote))
	for actor, rec := range s.remote {
		out[actor] = cloneMap(rec)
	}
	return out
}

// Subscribe registers fn to be called whenever a remote actor's presence
// record changes (update or full resync).
func (s *Store) Subscribe(fn func(actor int, data map[string]any)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Reset clears all remote presence records — used when a room disconnects,
// since presence has no history and a reconnect resyncs from scratch.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote = make(map[int]map[string]any)
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
