package liveblocks

import "github.com/M-Faheem-Khan/liveblocks/internal/crdt"

// Node is any attached CRDT node: a LiveObject, LiveMap, LiveList, or
// LiveRegister (spec.md §3).
type Node = crdt.Node

// LiveObject, LiveMap, LiveList, and LiveRegister are the four CRDT node
// variants a room's document tree is built from (spec.md §3's data
// model). internal/crdt cannot be imported directly by a host, so the
// concrete types are re-exported here under spec.md's naming.
type (
	LiveObject   = crdt.Object
	LiveMap      = crdt.Map
	LiveList     = crdt.List
	LiveRegister = crdt.Register
)

// ErrDetached is returned by a CRDT mutator called on a node that is no
// longer attached to the document (spec.md §3 invariant 4).
type ErrDetached = crdt.ErrDetached

// StorageUpdate describes the minimal delta produced by one applied op,
// delivered to a node's Subscribe callback (spec.md §4.3).
type StorageUpdate = crdt.StorageUpdate

// UpdateKind classifies a StorageUpdate.
type UpdateKind = crdt.UpdateKind

// SubscribeFunc and BatchSubscribeFunc are the two flavors of change
// subscription spec.md §4.3 describes: per-node and whole-batch.
type (
	SubscribeFunc      = crdt.SubscribeFunc
	BatchSubscribeFunc = crdt.BatchSubscribeFunc
)
