// Package env abstracts the host environment's online/offline and
// visibility signals the room connection machine reacts to (spec.md §4.1,
// §4.6). The concrete browser
// or OS implementation is outside this module's scope per spec.md §1 — the
// default here is a no-op source that never fires, so a room works
// unattended in a host that offers no such signals.
package env

import "sync"

// Online is notified of transitions between the host reporting network
// connectivity and not. Room uses this to skip remaining backoff and
// retry immediately on a transition to online (spec.md §4.1).
type Online interface {
	// Subscribe registers fn to be called with true on a transition to
	// online, false on a transition to offline. Returns an unsubscribe
	// function.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// Visibility is notified when the host document/window becomes visible,
// used to trigger an immediate reconnect attempt while unavailable
// (spec.md §4.1).
type Visibility interface {
	// Subscribe registers fn to be called with true when the host becomes
	// visible, false when hidden. Returns an unsubscribe function.
	Subscribe(fn func(visible bool)) (unsubscribe func())
}

// noopSource implements both Online and Visibility by never firing.
type noopSource struct{}

func (noopSource) Subscribe(func(bool)) func() { return func() {} }

// DefaultOnline is the no-op Online source used when the host embedding
// this module has no connectivity signal to offer.
var DefaultOnline Online = noopSource{}

// DefaultVisibility is the no-op Visibility source used when the host has
// no visibility signal to offer.
var DefaultVisibility Visibility = noopSource{}

// ManualSource is a deterministic, test-friendly Online/Visibility
// implementation: state changes only when Set is called explicitly. Used
// by the test suite and by hosts that want to drive connectivity/
// visibility signals themselves (e.g. from a platform-specific listener
// with no ambient API this package can poll).
type ManualSource struct {
	mu    sync.Mutex
	state bool
	subs  []func(bool)
}

// NewManualSource creates a ManualSource with the given initial state.
func NewManualSource(initial bool) *ManualSource {
	return &ManualSource{state: initial}
}

// Subscribe implements Online and Visibility.
func (s *ManualSource) Subscribe(fn func(bool)) func() {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	idx := len(s.subs) - 1
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.subs) {
			s.subs[idx] = nil
		}
	}
}

// Set updates the source's state and notifies subscribers if it changed.
func (s *ManualSource) Set(state bool) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	subs := append([]func(bool){}, s.subs...)
	s.mu.Unlock()

	for _, fn := range subs {
		if fn != nil {
			fn(state)
		}
	}
}

// State reports the source's current state.
func (s *ManualSource) State() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
