package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPositionBetweenOrdering(t *testing.T) {
	a := PositionAfter("")
	b := PositionAfter(a)
	assert.Less(t, a, b)

	mid := PositionBetween(a, b)
	assert.Greater(t, mid, a)
	assert.Less(t, mid, b)
}

func TestPositionBetweenDenseInsertion(t *testing.T) {
	// Repeatedly insert between the same two neighbours; every generated
	// position must stay strictly ordered.
	lo, hi := PositionAfter(""), PositionAfter(PositionAfter(""))
	positions := []string{lo}
	cur := lo
	for i := 0; i < 20; i++ {
		next := PositionBetween(cur, hi)
		assert.Greater(t, next, cur)
		assert.Less(t, next, hi)
		positions = append(positions, next)
		cur = next
	}
}

func TestPositionBeforeAndAfterEnds(t *testing.T) {
	first := PositionAfter("")
	before := PositionBefore(first)
	assert.Less(t, before, first)

	after := PositionAfter(first)
	assert.Greater(t, after, first)
}

func TestListTieBreakByActorID(t *testing.T) {
	doc := newTestDocument()
	root := doc.Root()
	listNode, err := root.Set("items", NewList(nil))
	assert.NoError(t, err)
	list := listNode.(*List)

	pos := PositionAfter("")
	// Simulate two concurrently-inserted nodes sharing one position,
	// authored by different actors; the lower actor id must sort first.
	list.buckets[pos] = []Node{
		&Register{base: base{id: "3:1"}, value: "from-actor-3"},
		&Register{base: base{id: "1:9"}, value: "from-actor-1"},
	}

	entries := list.sortedEntries()
	assert.Equal(t, "1:9", entries[0].node.ID())
	assert.Equal(t, "3:1", entries[1].node.ID())
}
