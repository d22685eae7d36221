// Package crdt implements the conflict-free replicated document tree: a
// tree of LiveObject, LiveMap, LiveList, and LiveRegister nodes with
// globally unique node ids, local/remote/ack op application, inverse-op
// generation for undo/redo, and derived change notifications.
//
// The tree is modelled as an id-indexed store rather than a strongly-owned
// pointer tree: every attached node is registered in the Document's index
// by id, and a node's Parent() is a lookup, not ownership. This avoids the
// cyclic-ownership problem a naive parent/child pointer tree would have
// and makes detachment a simple index removal.
package crdt

import "github.com/M-Faheem-Khan/liveblocks/internal/wire"

// Node is the capability interface shared by all four CRDT variants.
type Node interface {
	// ID returns the node's id, or "" if detached.
	ID() string
	// Type reports which concrete variant this node is.
	Type() wire.NodeType
	// Parent returns the parent node, or nil if detached or root.
	Parent() Node
	// ParentKey returns the key (Object/Map) or position (List) this node
	// occupies within its parent, or "" if detached or root.
	ParentKey() string
	// Attached reports whether this node is registered in a Document.
	Attached() bool

	// internal, document-only methods — unexported so only this package
	// can implement Node.
	attachTo(doc *Document, id string, parent Node, parentKey string)
	detach()
	serialize() wire.Node
}

// base holds the fields and behaviour common to every node variant.
// Embedded by Object, Map, List, and Register.
type base struct {
	doc       *Document
	id        string
	parent    Node
	parentKey string
}

func (b *base) ID() string        { return b.id }
func (b *base) Parent() Node      { return b.parent }
func (b *base) ParentKey() string { return b.parentKey }
func (b *base) Attached() bool    { return b.doc != nil && b.id != "" }

func (b *base) attachTo(doc *Document, id string, parent Node, parentKey string) {
	b.doc = doc
	b.id = id
	b.parent = parent
	b.parentKey = parentKey
}

func (b *base) detach() {
	b.doc = nil
	b.id = ""
	b.parent = nil
	b.parentKey = ""
}

func parentID(parent Node) string {
	if parent == nil {
		return ""
	}
	return parent.ID()
}

// ErrDetached is returned when a mutating call is made on a node that is
// not attached to a document — per spec, operations are only emitted for
// attached nodes (data model invariant 4).
type ErrDetached struct {
	Op string
}

func (e *ErrDetached) Error() string {
	return "crdt: cannot " + e.Op + " on a detached node"
}
