package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/M-Faheem-Khan/liveblocks/internal/wire"
)

func TestPausedMutationsCoalesceIntoNextUndoEntry(t *testing.T) {
	doc := newTestDocument()
	root := doc.Root()

	doc.PauseHistory()
	_, err := root.Set("a", 1)
	require.NoError(t, err)
	_, err = root.Set("b", 2)
	require.NoError(t, err)
	doc.ResumeHistory()

	_, err = root.Set("c", 3)
	require.NoError(t, err)

	// A single undo should reverse every mutation made since the pause,
	// including the first unpaused one that folded them in.
	require.NoError(t, doc.Undo())

	_, aOk := root.Get("a")
	_, bOk := root.Get("b")
	_, cOk := root.Get("c")
	assert.False(t, aOk)
	assert.False(t, bOk)
	assert.False(t, cOk)
}

func TestUndoStackBoundedByLimit(t *testing.T) {
	s := newUndoStack(2)
	s.pushForward([]wire.Op{{OpID: "1"}})
	s.pushForward([]wire.Op{{OpID: "2"}})
	s.pushForward([]wire.Op{{OpID: "3"}})

	assert.Len(t, s.undo, 2)
	entry, ok := s.popUndo()
	require.True(t, ok)
	assert.Equal(t, []wire.Op{{OpID: "3"}}, entry)
}
