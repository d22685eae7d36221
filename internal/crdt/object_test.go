package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/M-Faheem-Khan/liveblocks/internal/idalloc"
	"github.com/M-Faheem-Khan/liveblocks/internal/wire"
)

func newTestDocument() *Document {
	return New(idalloc.New(1), func([]wire.Op) {})
}

func TestObjectSetAndGet(t *testing.T) {
	doc := newTestDocument()
	root := doc.Root()

	_, err := root.Set("title", "hello")
	require.NoError(t, err)

	v, ok := root.Get("title")
	require.True(t, ok)
	assert.Equal(t, "hello", v)
}

func TestObjectDeleteDetachesChild(t *testing.T) {
	doc := newTestDocument()
	root := doc.Root()

	child, err := root.Set("nested", NewObject(map[string]any{"a": 1}))
	require.NoError(t, err)

	require.NoError(t, root.Delete("nested"))

	_, ok := root.Get("nested")
	assert.False(t, ok)
	assert.False(t, child.Attached())
}

func TestDetachedNodeMutationFails(t *testing.T) {
	doc := newTestDocument()
	root := doc.Root()

	child, err := root.Set("nested", NewObject(map[string]any{"a": 1}))
	require.NoError(t, err)
	require.NoError(t, root.Delete("nested"))

	nested, ok := child.(*Object)
	require.True(t, ok)

	_, err = nested.Set("a", 2)
	var detached *ErrDetached
	assert.ErrorAs(t, err, &detached)
}

func TestUndoRedoRoundTrip(t *testing.T) {
	doc := newTestDocument()
	root := doc.Root()

	_, err := root.Set("count", 1)
	require.NoError(t, err)

	require.NoError(t, doc.Undo())
	_, ok := root.Get("count")
	assert.False(t, ok, "undo should remove the set")

	require.NoError(t, doc.Redo())
	v, ok := root.Get("count")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestPausedHistorySkipsUndoStack(t *testing.T) {
	doc := newTestDocument()
	root := doc.Root()

	_, err := root.Set("a", 1)
	require.NoError(t, err)

	doc.PauseHistory()
	_, err = root.Set("b", 2)
	require.NoError(t, err)
	doc.ResumeHistory()

	require.NoError(t, doc.Undo())

	_, aOk := root.Get("a")
	_, bOk := root.Get("b")
	assert.False(t, aOk, "the pre-pause set should be the one undone")
	assert.True(t, bOk, "the paused set should survive the undo")
}
