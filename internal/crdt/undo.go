package crdt

import "github.com/M-Faheem-Khan/liveblocks/internal/wire"

// undoStack holds bounded undo/redo history as a stack of entries, where
// each entry is the flat list of ops that reverses one committed mutation
// batch. Pausing accumulates inverses into pendingPausedBuf without
// creating a new entry — the next unpaused push folds the buffer into its
// own entry, implementing "mutations made while paused coalesce into the
// next undoable entry" (spec.md §5).
type undoStack struct {
	limit  int
	undo   [][]wire.Op
	redo   [][]wire.Op
	paused bool

	pendingPausedBuf []wire.Op
}

func newUndoStack(limit int) *undoStack {
	return &undoStack{limit: limit}
}

func (s *undoStack) pause() {
	s.paused = true
}

func (s *undoStack) resume() {
	s.paused = false
}

// pushForward records inverses as a new undo entry (or folds it into the
// paused buffer), bounding the stack to limit entries by dropping the
// oldest. When multiple mutations coalesce across a pause, the combined
// entry must undo the most recent mutation first: pendingPausedBuf holds
// earlier mutations' inverses in chronological order, so folding reverses
// it and places the just-arrived inverses first.
func (s *undoStack) pushForward(inverses []wire.Op) {
	if s.paused {
		s.pendingPausedBuf = append(s.pendingPausedBuf, inverses...)
		return
	}
	entry := inverses
	if len(s.pendingPausedBuf) > 0 {
		entry = append(append([]wire.Op{}, inverses...), reversed(s.pendingPausedBuf)...)
		s.pendingPausedBuf = nil
	}
	s.undo = append(s.undo, entry)
	if len(s.undo) > s.limit {
		s.undo = s.undo[len(s.undo)-s.limit:]
	}
}

func reversed(ops []wire.Op) []wire.Op {
	out := make([]wire.Op, len(ops))
	for i, op := range ops {
		out[len(ops)-1-i] = op
	}
	return out
}

// pushRedo records inverses produced by replaying an undo entry, onto the
// redo stack.
func (s *undoStack) pushRedo(inverses []wire.Op) {
	s.redo = append(s.redo, inverses)
	if len(s.redo) > s.limit {
		s.redo = s.redo[len(s.redo)-s.limit:]
	}
}

func (s *undoStack) clearRedo() {
	s.redo = nil
}

func (s *undoStack) clear() {
	s.undo = nil
	s.redo = nil
	s.pendingPausedBuf = nil
}

func (s *undoStack) popUndo() ([]wire.Op, bool) {
	if len(s.undo) == 0 {
		return nil, false
	}
	entry := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	return entry, true
}

func (s *undoStack) popRedo() ([]wire.Op, bool) {
	if len(s.redo) == 0 {
		return nil, false
	}
	entry := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	return entry, true
}
