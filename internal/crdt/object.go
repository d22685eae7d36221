package crdt

import "github.com/M-Faheem-Khan/liveblocks/internal/wire"

// objValue is one entry of an Object: either a JSON leaf value or a
// reference to an attached child node, per spec.md §3's Object row
// ("string key → child node OR JSON leaf value").
type objValue struct {
	child   Node
	value   any
	isChild bool
}

// Object is a LiveObject: per-key last-writer-wins storage where each key
// holds either a plain JSON value or a child CRDT node.
type Object struct {
	base
	entries map[string]objValue
}

// NewObject creates a detached Object. fields may mix plain JSON values
// and other detached Node values (which become child nodes once the
// Object is attached).
func NewObject(fields map[string]any) *Object {
	o := &Object{entries: make(map[string]objValue, len(fields))}
	for k, v := range fields {
		if n, ok := v.(Node); ok {
			o.entries[k] = objValue{child: n, isChild: true}
		} else {
			o.entries[k] = objValue{value: v}
		}
	}
	return o
}

func (o *Object) Type() wire.NodeType { return wire.NodeObject }

// Get returns the value stored at key: a Node if the key holds a child,
// the raw JSON value otherwise, and ok reporting whether the key exists.
func (o *Object) Get(key string) (any, bool) {
	e, ok := o.entries[key]
	if !ok {
		return nil, false
	}
	if e.isChild {
		return e.child, true
	}
	return e.value, true
}

// Keys returns the object's keys in no particular order.
func (o *Object) Keys() []string {
	keys := make([]string, 0, len(o.entries))
	for k := range o.entries {
		keys = append(keys, k)
	}
	return keys
}

// Len reports the number of keys in the object.
func (o *Object) Len() int { return len(o.entries) }

// Set assigns value at key, emitting the appropriate op(s) and an undo
// entry. value may be a plain JSON value or a detached Node (constructed
// via NewObject/NewMap/NewList/NewRegister) to create a nested structure.
// When value is a Node, Set returns the live, attached Node reference —
// the argument itself remains a detached template.
func (o *Object) Set(key string, value any) (Node, error) {
	if !o.Attached() {
		return nil, &ErrDetached{Op: "Set"}
	}
	return o.doc.objectSet(o, key, value)
}

// Delete removes key from the object, if present.
func (o *Object) Delete(key string) error {
	if !o.Attached() {
		return &ErrDetached{Op: "Delete"}
	}
	return o.doc.objectDelete(o, key)
}

func (o *Object) serialize() wire.Node {
	data := make(map[string]any)
	for k, e := range o.entries {
		if !e.isChild {
			data[k] = e.value
		}
	}
	return wire.Node{
		ID:        o.id,
		Type:      wire.NodeObject,
		ParentID:  parentID(o.parent),
		ParentKey: o.parentKey,
		Data:      data,
	}
}
