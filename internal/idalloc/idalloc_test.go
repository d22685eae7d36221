package idalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextNodeIDIncrementsAndPersistsActor(t *testing.T) {
	a := New(3)
	assert.Equal(t, "3:1", a.NextNodeID())
	assert.Equal(t, "3:2", a.NextNodeID())
}

func TestReassignChangesActorButNotCounter(t *testing.T) {
	a := New(1)
	assert.Equal(t, "1:1", a.NextNodeID())

	a.Reassign(9)
	assert.Equal(t, 9, a.Actor())
	// Counter persists across the reassignment, per spec.md §3.
	assert.Equal(t, "9:2", a.NextNodeID())
}

func TestNextOpIDsAreUnique(t *testing.T) {
	a := New(1)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := a.NextOpID()
		assert.False(t, seen[id])
		seen[id] = true
	}
}
