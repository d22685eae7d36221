package crdt

import "github.com/M-Faheem-Khan/liveblocks/internal/wire"

// Register is an opaque immutable JSON leaf node. Per spec.md §4.3, a
// Register's value is never mutated in place — replacing it inside a
// parent is a delete-then-create pair, handled by the parent's Set method,
// not by Register itself.
type Register struct {
	base
	value any
}

// NewRegister creates a detached Register holding value.
func NewRegister(value any) *Register {
	return &Register{value: value}
}

func (r *Register) Type() wire.NodeType { return wire.NodeRegister }

// Value returns the register's immutable payload.
func (r *Register) Value() any { return r.value }

func (r *Register) serialize() wire.Node {
	return wire.Node{
		ID:        r.id,
		Type:      wire.NodeRegister,
		ParentID:  parentID(r.parent),
		ParentKey: r.parentKey,
		Data:      r.value,
	}
}
