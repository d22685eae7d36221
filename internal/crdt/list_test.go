package crdt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/M-Faheem-Khan/liveblocks/internal/wire"
)

func newTestList(t *testing.T) (*Document, *List) {
	t.Helper()
	doc := newTestDocument()
	root := doc.Root()
	n, err := root.Set("items", NewList(nil))
	require.NoError(t, err)
	return doc, n.(*List)
}

func TestListPushAndIterationOrder(t *testing.T) {
	_, list := newTestList(t)

	_, err := list.Push("a")
	require.NoError(t, err)
	_, err = list.Push("b")
	require.NoError(t, err)
	_, err = list.Push("c")
	require.NoError(t, err)

	require.Equal(t, 3, list.Len())
	vals := make([]any, 0, 3)
	for _, n := range list.All() {
		reg := n.(*Register)
		vals = append(vals, reg.Value())
	}
	require.Equal(t, []any{"a", "b", "c"}, vals)
}

func TestListInsertAtMiddle(t *testing.T) {
	_, list := newTestList(t)
	_, _ = list.Push("a")
	_, _ = list.Push("c")

	_, err := list.InsertAt(1, "b")
	require.NoError(t, err)

	vals := make([]any, 0, 3)
	for _, n := range list.All() {
		vals = append(vals, n.(*Register).Value())
	}
	require.Equal(t, []any{"a", "b", "c"}, vals)
}

func TestListDelete(t *testing.T) {
	_, list := newTestList(t)
	_, _ = list.Push("a")
	_, _ = list.Push("b")

	require.NoError(t, list.Delete(0))
	require.Equal(t, 1, list.Len())
	remaining, _ := list.At(0)
	require.Equal(t, "b", remaining.(*Register).Value())
}

func TestListMove(t *testing.T) {
	_, list := newTestList(t)
	_, _ = list.Push("a")
	_, _ = list.Push("b")
	_, _ = list.Push("c")

	require.NoError(t, list.Move(0, 2))

	vals := make([]any, 0, 3)
	for _, n := range list.All() {
		vals = append(vals, n.(*Register).Value())
	}
	require.Equal(t, []any{"b", "c", "a"}, vals)
}

func TestListMoveGeneratesSetParentKeyOp(t *testing.T) {
	doc, list := newTestList(t)
	_, _ = list.Push("a")
	_, _ = list.Push("b")

	var captured []wire.Op
	doc.emit = func(ops []wire.Op) { captured = ops }

	require.NoError(t, list.Move(0, 1))
	require.Len(t, captured, 1)
	require.Equal(t, wire.OpSetParentKey, captured[0].Kind)
}
