package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestableProperty4: presence merge is commutative per actor.
func TestLocalPatchMergeIsCommutative(t *testing.T) {
	s1 := New(1)
	s1.ApplyLocalPatch(Patch{"a": 1})
	s1.ApplyLocalPatch(Patch{"b": 2})

	s2 := New(1)
	s2.ApplyLocalPatch(Patch{"b": 2})
	s2.ApplyLocalPatch(Patch{"a": 1})

	assert.Equal(t, s1.Local(), s2.Local())
}

func TestLocalPatchNilDeletesKey(t *testing.T) {
	s := New(1)
	s.ApplyLocalPatch(Patch{"a": 1})
	s.ApplyLocalPatch(Patch{"a": nil})

	_, ok := s.Local()["a"]
	assert.False(t, ok)
}

func TestApplyLocalPatchReturnsInverse(t *testing.T) {
	s := New(1)
	s.ApplyLocalPatch(Patch{"a": 1})

	inverse := s.ApplyLocalPatch(Patch{"a": 2})
	assert.Equal(t, Patch{"a": 1}, inverse)

	// Applying the inverse restores the prior value.
	s.ApplyLocalPatch(inverse)
	assert.Equal(t, 1, s.Local()["a"])
}

func TestRemoteUpdateCreatesEntryOnFirstMessage(t *testing.T) {
	s := New(0)
	_, ok := s.Get(7)
	assert.False(t, ok)

	s.RemoteUpdate(7, map[string]any{"name": "alice"})
	rec, ok := s.Get(7)
	assert.True(t, ok)
	assert.Equal(t, "alice", rec["name"])
}

func TestRemoteUpdateMergesKeyWise(t *testing.T) {
	s := New(0)
	s.RemoteUpdate(7, map[string]any{"name": "alice"})
	s.RemoteUpdate(7, map[string]any{"color": "red"})

	rec, _ := s.Get(7)
	assert.Equal(t, "alice", rec["name"])
	assert.Equal(t, "red", rec["color"])
}

func TestRemoveActorDestroysEntry(t *testing.T) {
	s := New(0)
	s.RemoteUpdate(7, map[string]any{"name": "alice"})
	s.RemoveActor(7)

	_, ok := s.Get(7)
	assert.False(t, ok)
}

func TestOthersExcludesLocalActor(t *testing.T) {
	s := New(1)
	s.ApplyLocalPatch(Patch{"name": "me"})
	s.RemoteUpdate(2, map[string]any{"name": "them"})

	others := s.Others()
	_, hasLocal := others[1]
	_, hasRemote := others[2]
	assert.False(t, hasLocal)
	assert.True(t, hasRemote)
}

func TestRemoteFullReplacesEntryRatherThanMerging(t *testing.T) {
	s := New(0)
	s.RemoteUpdate(7, map[string]any{"name": "alice", "color": "red"})

	s.RemoteFull(7, map[string]any{"name": "alice"})
	rec, ok := s.Get(7)
	assert.True(t, ok)
	assert.Equal(t, "alice", rec["name"])
	_, hasColor := rec["color"]
	assert.False(t, hasColor, "RemoteFull must replace the record, not merge into it")
}

func TestSubscribeReceivesRemoteUpdates(t *testing.T) {
	s := New(0)
	var gotActor int
	var gotData map[string]any
	s.Subscribe(func(actor int, data map[string]any) {
		gotActor = actor
		gotData = data
	})

	s.RemoteUpdate(3, map[string]any{"x": 1})
	assert.Equal(t, 3, gotActor)
	assert.Equal(t, 1, gotData["x"])
}
