package crdt

import (
	"sort"
	"strconv"
	"strings"

	"github.com/M-Faheem-Khan/liveblocks/internal/wire"
)

// List is a LiveList: children ordered by a dense fractional position
// string (see position.go). Two clients concurrently inserting at the
// same gap may mint an identical position; the tie is broken by actor id,
// lower actor id first, per spec.md §4.3.
type List struct {
	base
	buckets map[string][]Node // position -> nodes sharing that position, in insertion order; sortedEntries orders them by actor id
}

// NewList creates a detached List. Items that are not already a Node are
// wrapped in a Register; each item's position is PositionAfter the
// previous item's.
func NewList(items []any) *List {
	l := &List{buckets: make(map[string][]Node)}
	pos := ""
	for _, item := range items {
		pos = PositionAfter(pos)
		var n Node
		if asNode, ok := item.(Node); ok {
			n = asNode
		} else {
			n = NewRegister(item)
		}
		l.buckets[pos] = append(l.buckets[pos], n)
	}
	return l
}

func (l *List) Type() wire.NodeType { return wire.NodeList }

// Len reports the number of elements in the list.
func (l *List) Len() int {
	n := 0
	for _, bucket := range l.buckets {
		n += len(bucket)
	}
	return n
}

// listEntry pairs a node with its position, used for sorted iteration.
type listEntry struct {
	position string
	node     Node
}

func actorOf(id string) int {
	i := strings.IndexByte(id, ':')
	if i < 0 {
		return 0
	}
	a, _ := strconv.Atoi(id[:i])
	return a
}

// sortedEntries returns every (position, node) pair in the list's
// iteration order: lexicographic by position, ties broken by the lower
// actor id per spec.md §4.3.
func (l *List) sortedEntries() []listEntry {
	entries := make([]listEntry, 0, l.Len())
	for pos, bucket := range l.buckets {
		for _, n := range bucket {
			entries = append(entries, listEntry{position: pos, node: n})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].position != entries[j].position {
			return entries[i].position < entries[j].position
		}
		return actorOf(entries[i].node.ID()) < actorOf(entries[j].node.ID())
	})
	return entries
}

// All returns every element in iteration order.
func (l *List) All() []Node {
	entries := l.sortedEntries()
	out := make([]Node, len(entries))
	for i, e := range entries {
		out[i] = e.node
	}
	return out
}

// At returns the element at index, if in range.
func (l *List) At(index int) (Node, bool) {
	entries := l.sortedEntries()
	if index < 0 || index >= len(entries) {
		return nil, false
	}
	return entries[index].node, true
}

// neighbours returns the position strings immediately before and after
// index in current iteration order ("" meaning no neighbour on that side),
// suitable for computing the insertion position at index.
func (l *List) neighbours(index int) (before, after string) {
	entries := l.sortedEntries()
	if index > 0 && index <= len(entries) {
		before = entries[index-1].position
	}
	if index >= 0 && index < len(entries) {
		after = entries[index].position
	}
	return before, after
}

// InsertAt inserts value at index, shifting later elements down. value may
// be a plain JSON value (wrapped in a Register) or a detached Node.
func (l *List) InsertAt(index int, value any) (Node, error) {
	if !l.Attached() {
		return nil, &ErrDetached{Op: "InsertAt"}
	}
	before, after := l.neighbours(index)
	position := PositionBetween(before, after)
	return l.doc.listInsert(l, position, value)
}

// Push appends value to the end of the list.
func (l *List) Push(value any) (Node, error) {
	return l.InsertAt(l.Len(), value)
}

// Delete removes the element at index.
func (l *List) Delete(index int) error {
	if !l.Attached() {
		return &ErrDetached{Op: "Delete"}
	}
	n, ok := l.At(index)
	if !ok {
		return &ErrUserMisuse{Msg: "list index out of range"}
	}
	return l.doc.listDelete(l, n)
}

// Move repositions the element currently at fromIndex to toIndex,
// generating a SET_PARENT_KEY op.
func (l *List) Move(fromIndex, toIndex int) error {
	if !l.Attached() {
		return &ErrDetached{Op: "Move"}
	}
	n, ok := l.At(fromIndex)
	if !ok {
		return &ErrUserMisuse{Msg: "list index out of range"}
	}
	target := toIndex
	if fromIndex < toIndex {
		target++
	}
	before, after := l.neighbours(target)
	position := PositionBetween(before, after)
	return l.doc.listMove(l, n, position)
}

func (l *List) serialize() wire.Node {
	return wire.Node{
		ID:        l.id,
		Type:      wire.NodeList,
		ParentID:  parentID(l.parent),
		ParentKey: l.parentKey,
	}
}
