package crdt

import "github.com/M-Faheem-Khan/liveblocks/internal/wire"

// Map is a LiveMap: unordered string-keyed storage whose values are
// always child nodes. A plain JSON value assigned via Set is transparently
// wrapped in a LiveRegister child, per spec.md §3's Map row ("string key →
// child node").
type Map struct {
	base
	children map[string]Node
}

// NewMap creates a detached Map. Values in entries that are not already a
// Node are wrapped in a Register.
func NewMap(entries map[string]any) *Map {
	m := &Map{children: make(map[string]Node, len(entries))}
	for k, v := range entries {
		if n, ok := v.(Node); ok {
			m.children[k] = n
		} else {
			m.children[k] = NewRegister(v)
		}
	}
	return m
}

func (m *Map) Type() wire.NodeType { return wire.NodeMap }

// Get returns the child node stored at key, if any.
func (m *Map) Get(key string) (Node, bool) {
	n, ok := m.children[key]
	return n, ok
}

// Keys returns the map's keys in no particular order.
func (m *Map) Keys() []string {
	keys := make([]string, 0, len(m.children))
	for k := range m.children {
		keys = append(keys, k)
	}
	return keys
}

// Len reports the number of keys in the map.
func (m *Map) Len() int { return len(m.children) }

// Set assigns value at key. A plain JSON value is wrapped in a Register;
// a Node value is attached as-is. Returns the live attached node.
func (m *Map) Set(key string, value any) (Node, error) {
	if !m.Attached() {
		return nil, &ErrDetached{Op: "Set"}
	}
	return m.doc.mapSet(m, key, value)
}

// Delete removes key from the map, if present.
func (m *Map) Delete(key string) error {
	if !m.Attached() {
		return &ErrDetached{Op: "Delete"}
	}
	return m.doc.mapDelete(m, key)
}

func (m *Map) serialize() wire.Node {
	return wire.Node{
		ID:        m.id,
		Type:      wire.NodeMap,
		ParentID:  parentID(m.parent),
		ParentKey: m.parentKey,
	}
}
