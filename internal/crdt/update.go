package crdt

// UpdateKind classifies a StorageUpdate.
type UpdateKind string

const (
	UpdateNodeCreated UpdateKind = "created"
	UpdateNodeUpdated UpdateKind = "updated"
	UpdateNodeDeleted UpdateKind = "deleted"
)

// StorageUpdate describes the minimal delta produced by applying one op.
// Per-node subscribers registered via Document.Subscribe(id, fn) receive
// only updates whose NodeID matches; the batched subscriber registered via
// Document.SubscribeBatch receives every update produced by a single local
// mutation (including undo/redo) or ApplyRemote call as one slice.
type StorageUpdate struct {
	NodeID string
	Node   Node
	Kind   UpdateKind
	// UpdatedKeys names the Object/Map keys that changed value, for
	// UpdateNodeUpdated on an Object or Map. Empty for List/Register
	// updates and for Created/Deleted kinds.
	UpdatedKeys []string
}

// SubscribeFunc receives updates for a single node.
type SubscribeFunc func(StorageUpdate)

// BatchSubscribeFunc receives every update produced by one apply call.
type BatchSubscribeFunc func([]StorageUpdate)
