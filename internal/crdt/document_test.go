package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/M-Faheem-Khan/liveblocks/internal/idalloc"
	"github.com/M-Faheem-Khan/liveblocks/internal/wire"
)

// TestableProperty1: applying the recorded inverse ops in reverse order of
// a sequence of local mutations restores the initial state.
func TestInverseOpsRestoreInitialState(t *testing.T) {
	doc := newTestDocument()
	root := doc.Root()

	_, err := root.Set("a", 1)
	require.NoError(t, err)
	_, err = root.Set("b", "two")
	require.NoError(t, err)
	nested, err := root.Set("nested", NewMap(map[string]any{"x": 1}))
	require.NoError(t, err)
	_, err = nested.(*Map).Set("y", 2)
	require.NoError(t, err)

	// Undo every mutation in reverse order.
	for i := 0; i < 4; i++ {
		require.NoError(t, doc.Undo())
	}

	assert.Equal(t, 0, root.Len())
}

// TestableProperty2: two documents exchanging all emitted ops in the same
// total order converge to identical states.
func TestConvergenceAcrossTwoReplicas(t *testing.T) {
	var opsA []wire.Op
	var opsB []wire.Op

	docA := New(idalloc.New(1), func(ops []wire.Op) { opsA = append(opsA, ops...) })
	docB := New(idalloc.New(2), func(ops []wire.Op) { opsB = append(opsB, ops...) })

	_, err := docA.Root().Set("x", 1)
	require.NoError(t, err)
	_, err = docB.Root().Set("y", 2)
	require.NoError(t, err)

	// Exchange in a fixed total order: A's ops first, then B's.
	require.NoError(t, docB.ApplyRemote(opsA))
	require.NoError(t, docA.ApplyRemote(opsB))

	xa, _ := docA.Root().Get("x")
	xb, _ := docB.Root().Get("x")
	ya, _ := docA.Root().Get("y")
	yb, _ := docB.Root().Get("y")
	assert.Equal(t, xa, xb)
	assert.Equal(t, ya, yb)
}

func TestAckPrunesPendingBuffer(t *testing.T) {
	var sent []wire.Op
	doc := New(idalloc.New(1), func(ops []wire.Op) { sent = append(sent, ops...) })

	_, err := doc.Root().Set("a", 1)
	require.NoError(t, err)
	require.Equal(t, 1, doc.PendingCount())

	doc.Ack(sent[0].OpID)
	assert.Equal(t, 0, doc.PendingCount())
}

func TestBatchSubscribeReceivesOneCallPerApply(t *testing.T) {
	doc := newTestDocument()
	var batches [][]StorageUpdate
	doc.SubscribeBatch(func(us []StorageUpdate) { batches = append(batches, us) })

	_, err := doc.Root().Set("a", 1)
	require.NoError(t, err)
	_, err = doc.Root().Set("b", 2)
	require.NoError(t, err)

	require.Len(t, batches, 2)
}

func TestReplaceRootRebuildsTree(t *testing.T) {
	doc := newTestDocument()
	items := []wire.Node{
		{ID: idalloc.RootID, Type: wire.NodeObject, Data: map[string]any{}},
		{ID: "5:1", Type: wire.NodeMap, ParentID: idalloc.RootID, ParentKey: "m"},
		{ID: "5:2", Type: wire.NodeRegister, ParentID: "5:1", ParentKey: "k", Data: "v"},
	}
	require.NoError(t, doc.ReplaceRoot(items))

	m, ok := doc.Root().Get("m")
	require.True(t, ok)
	mapNode := m.(*Map)
	reg, ok := mapNode.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", reg.(*Register).Value())
	assert.Equal(t, 0, doc.PendingCount())
}
