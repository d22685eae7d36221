package room

import (
	"sync"

	"github.com/M-Faheem-Khan/liveblocks/internal/lberrors"
	"github.com/M-Faheem-Khan/liveblocks/internal/presence"
)

// actionKind distinguishes a mixed-history entry's origin: the CRDT
// document's own undo stack, or a presence patch recorded with
// addToHistory (spec.md §4.5). Both are undoable from the same Undo()/
// Redo() call, in the single combined order they were committed, since
// spec.md §4.4 requires any mutating API to clear the same redo stack.
type actionKind int

const (
	actionStorage actionKind = iota
	actionPresence
)

// history is Room's mixed storage/presence undo timeline. The CRDT
// document keeps its own per-entry undo stack (internal/crdt/undo.go) for
// storage mutations; history only remembers the *order* storage and
// presence entries interleave in, plus the presence entries themselves
// (which have no representation as wire ops). Undo()/Redo() dispatch on
// the marker at the top of the stack.
type history struct {
	mu sync.Mutex

	undoMarkers []actionKind
	redoMarkers []actionKind

	presenceUndo []presence.Patch
	presenceRedo []presence.Patch

	paused          bool
	pausedPresence  presence.Patch
	suppressMarkers bool

	limit int
}

const defaultHistoryLimit = 50

func (h *history) init() {
	h.limit = defaultHistoryLimit
}

// noteStorageCommit records that the CRDT document just pushed (or folded
// into a paused buffer) an undo entry of its own, keeping history's
// interleaving marker in sync. Suppressed while Room.Undo/Redo is driving
// doc.Undo/doc.Redo, since those replays already manage doc's own stack
// and must not also appear as new top-level actions.
func (h *history) noteStorageCommit() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.suppressMarkers || h.paused {
		return
	}
	h.undoMarkers = appendBounded(h.undoMarkers, actionStorage, h.limit)
	h.redoMarkers = nil
}

// pushPresence records a presence-with-history inverse. While paused,
// sequential patches fold: only the first inverse touching a given key is
// kept, since a single combined undo need only restore the pre-pause
// value per key.
func (h *history) pushPresence(inverse presence.Patch) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.paused {
		if h.pausedPresence == nil {
			h.pausedPresence = make(presence.Patch, len(inverse))
		}
		for k, v := range inverse {
			if _, already := h.pausedPresence[k]; !already {
				h.pausedPresence[k] = v
			}
		}
		return
	}
	h.presenceUndo = appendBounded(h.presenceUndo, inverse, h.limit)
	h.undoMarkers = appendBounded(h.undoMarkers, actionPresence, h.limit)
	h.redoMarkers = nil
}

func (h *history) pause() {
	h.mu.Lock()
	h.paused = true
	h.mu.Unlock()
}

func (h *history) resume() {
	h.mu.Lock()
	pending := h.pausedPresence
	h.pausedPresence = nil
	h.paused = false
	if len(pending) > 0 {
		h.presenceUndo = appendBounded(h.presenceUndo, pending, h.limit)
		h.undoMarkers = appendBounded(h.undoMarkers, actionPresence, h.limit)
		h.redoMarkers = nil
	}
	h.mu.Unlock()
}

func appendBounded[T any](stack []T, v T, limit int) []T {
	stack = append(stack, v)
	if len(stack) > limit {
		stack = stack[len(stack)-limit:]
	}
	return stack
}

func popLast[T any](stack []T) ([]T, T, bool) {
	var zero T
	if len(stack) == 0 {
		return stack, zero, false
	}
	v := stack[len(stack)-1]
	return stack[:len(stack)-1], v, true
}

// undo pops the most recent mixed-history action and reverses it.
func (h *history) undo(r *Room) error {
	h.mu.Lock()
	if h.paused {
		h.mu.Unlock()
		return &lberrors.Error{Kind: lberrors.UserMisuse, RoomID: r.id, Msg: "cannot undo while history is paused"}
	}
	var kind actionKind
	var ok bool
	h.undoMarkers, kind, ok = popLast(h.undoMarkers)
	if !ok {
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	switch kind {
	case actionStorage:
		h.setSuppressed(true)
		err := r.doc.Undo()
		h.setSuppressed(false)
		if err != nil {
			return err
		}
		h.mu.Lock()
		h.redoMarkers = appendBounded(h.redoMarkers, actionStorage, h.limit)
		h.mu.Unlock()
		return nil
	default:
		h.mu.Lock()
		var inverse presence.Patch
		h.presenceUndo, inverse, ok = popLast(h.presenceUndo)
		h.mu.Unlock()
		if !ok {
			return nil
		}
		newInverse := r.presence.ApplyLocalPatch(inverse)
		r.coalescer.AddPresencePatch(inverse, nil)
		h.mu.Lock()
		h.presenceRedo = appendBounded(h.presenceRedo, newInverse, h.limit)
		h.redoMarkers = appendBounded(h.redoMarkers, actionPresence, h.limit)
		h.mu.Unlock()
		return nil
	}
}

// redo is the mirror of undo, replaying the most recently undone action.
func (h *history) redo(r *Room) error {
	h.mu.Lock()
	if h.paused {
		h.mu.Unlock()
		return &lberrors.Error{Kind: lberrors.UserMisuse, RoomID: r.id, Msg: "cannot redo while history is paused"}
	}
	var kind actionKind
	var ok bool
	h.redoMarkers, kind, ok = popLast(h.redoMarkers)
	if !ok {
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	switch kind {
	case actionStorage:
		h.setSuppressed(true)
		err := r.doc.Redo()
		h.setSuppressed(false)
		if err != nil {
			return err
		}
		h.mu.Lock()
		h.undoMarkers = appendBounded(h.undoMarkers, actionStorage, h.limit)
		h.mu.Unlock()
		return nil
	default:
		h.mu.Lock()
		var inverse presence.Patch
		h.presenceRedo, inverse, ok = popLast(h.presenceRedo)
		h.mu.Unlock()
		if !ok {
			return nil
		}
		newInverse := r.presence.ApplyLocalPatch(inverse)
		r.coalescer.AddPresencePatch(inverse, nil)
		h.mu.Lock()
		h.presenceUndo = appendBounded(h.presenceUndo, newInverse, h.limit)
		h.undoMarkers = appendBounded(h.undoMarkers, actionPresence, h.limit)
		h.mu.Unlock()
		return nil
	}
}

func (h *history) setSuppressed(v bool) {
	h.mu.Lock()
	h.suppressMarkers = v
	h.mu.Unlock()
}
