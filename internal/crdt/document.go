package crdt

import (
	"fmt"
	"sync"

	"github.com/M-Faheem-Khan/liveblocks/internal/idalloc"
	"github.com/M-Faheem-Khan/liveblocks/internal/wire"
)

// Document is the storage document for one room: the root node, the
// id->node index, op dispatch (local/remote/ack), and subscription
// fan-out. The zero value is not usable — create instances with New.
type Document struct {
	mu sync.Mutex

	root  *Object
	index map[string]Node

	alloc *idalloc.Allocator
	undo  *undoStack

	subs      map[string][]SubscribeFunc
	batchSubs []BatchSubscribeFunc

	// emit is called with every batch of ops produced by a local mutation
	// (including undo/redo replays). Wired by the room package to the
	// outbound coalescer.
	emit func([]wire.Op)

	// pendingAcks tracks opIds emitted by this client that have not yet
	// been acknowledged by the server — data model invariant 5.
	pendingAcks map[string]wire.Op
}

// New creates a Document with an empty root Object, attached at the
// reserved root id.
func New(alloc *idalloc.Allocator, emit func([]wire.Op)) *Document {
	d := &Document{
		index:       make(map[string]Node),
		alloc:       alloc,
		subs:        make(map[string][]SubscribeFunc),
		pendingAcks: make(map[string]wire.Op),
		emit:        emit,
	}
	d.undo = newUndoStack(50)
	root := &Object{entries: make(map[string]objValue)}
	root.attachTo(d, idalloc.RootID, nil, "")
	d.index[idalloc.RootID] = root
	d.root = root
	return d
}

// Root returns the document's root LiveObject.
func (d *Document) Root() *Object {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.root
}

// Lookup finds an attached node by id.
func (d *Document) Lookup(id string) (Node, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.index[id]
	return n, ok
}

// ReplaceRoot rebuilds the entire tree from a flattened INITIAL_STORAGE_STATE
// item list, discarding any existing state. Per spec.md §4.1, this happens
// once per room lifetime on the first successful fetch.
func (d *Document) ReplaceRoot(items []wire.Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	byID := make(map[string]wire.Node, len(items))
	nodes := make(map[string]Node, len(items))
	for _, it := range items {
		n, err := skeletonFromWire(it)
		if err != nil {
			return err
		}
		byID[it.ID] = it
		nodes[it.ID] = n
	}

	rootWire, ok := byID[idalloc.RootID]
	if !ok {
		return fmt.Errorf("crdt: initial storage state missing root %q", idalloc.RootID)
	}
	rootNode, ok := nodes[idalloc.RootID].(*Object)
	if !ok {
		return fmt.Errorf("crdt: root node %q must be an object", idalloc.RootID)
	}

	byParent := make(map[string][]wire.Node)
	for _, it := range items {
		if it.ID == idalloc.RootID {
			continue
		}
		byParent[it.ParentID] = append(byParent[it.ParentID], it)
	}

	var link func(parentWire wire.Node, parent Node)
	link = func(parentWire wire.Node, parent Node) {
		for _, childWire := range byParent[parentWire.ID] {
			child := nodes[childWire.ID]
			child.attachTo(d, childWire.ID, parent, childWire.ParentKey)
			insertChildIntoParent(parent, childWire.ParentKey, child)
			link(childWire, child)
		}
	}

	rootNode.attachTo(d, idalloc.RootID, nil, "")
	link(rootWire, rootNode)

	d.index = nodes
	d.root = rootNode
	d.pendingAcks = make(map[string]wire.Op)
	d.undo.clear()
	return nil
}

func skeletonFromWire(it wire.Node) (Node, error) {
	switch it.Type {
	case wire.NodeObject:
		o := &Object{entries: make(map[string]objValue)}
		if m, ok := it.Data.(map[string]any); ok {
			for k, v := range m {
				o.entries[k] = objValue{value: v}
			}
		}
		return o, nil
	case wire.NodeMap:
		return &Map{children: make(map[string]Node)}, nil
	case wire.NodeList:
		return &List{buckets: make(map[string][]Node)}, nil
	case wire.NodeRegister:
		return &Register{value: it.Data}, nil
	default:
		return nil, fmt.Errorf("crdt: unknown node type %q for id %q", it.Type, it.ID)
	}
}

// --- parent/child structural helpers -------------------------------------

func insertChildIntoParent(parent Node, key string, child Node) {
	switch p := parent.(type) {
	case *Object:
		p.entries[key] = objValue{child: child, isChild: true}
	case *Map:
		p.children[key] = child
	case *List:
		p.buckets[key] = append(p.buckets[key], child)
	default:
		panic(fmt.Sprintf("crdt: parent type %T cannot hold children", parent))
	}
}

func removeChildFromParent(parent Node, key string, child Node) {
	switch p := parent.(type) {
	case *Object:
		delete(p.entries, key)
	case *Map:
		delete(p.children, key)
	case *List:
		bucket := p.buckets[key]
		for i, n := range bucket {
			if n == child {
				p.buckets[key] = append(bucket[:i], bucket[i+1:]...)
				break
			}
		}
		if len(p.buckets[key]) == 0 {
			delete(p.buckets, key)
		}
	}
}

func moveChildPosition(parent Node, oldKey, newKey string, child Node) {
	removeChildFromParent(parent, oldKey, child)
	insertChildIntoParent(parent, newKey, child)
}

// --- op construction for brand-new (detached) subtrees --------------------

// opsForNewSubtree walks a freshly constructed, still-detached Node (as
// returned by NewObject/NewMap/NewList/NewRegister) and emits one CREATE_*
// op per node in pre-order, minting fresh ids as it goes. The ops are not
// yet applied — applying them is what actually attaches the nodes.
func (d *Document) opsForNewSubtree(value any, parentID, parentKey string) []wire.Op {
	n, ok := value.(Node)
	if !ok {
		n = NewRegister(value)
	}
	id := d.alloc.NextNodeID()
	switch v := n.(type) {
	case *Register:
		return []wire.Op{{
			OpID: d.alloc.NextOpID(), ID: id, Kind: wire.OpCreateRegister,
			ParentID: parentID, ParentKey: parentKey, NodeType: wire.NodeRegister,
			Value: v.value,
		}}
	case *Object:
		op := wire.Op{
			OpID: d.alloc.NextOpID(), ID: id, Kind: wire.OpCreateObject,
			ParentID: parentID, ParentKey: parentKey, NodeType: wire.NodeObject,
		}
		var childOps []wire.Op
		for k, e := range v.entries {
			if e.isChild {
				childOps = append(childOps, d.opsForNewSubtree(e.child, id, k)...)
			} else {
				op.Fields = append(op.Fields, wire.Field{Key: k, Value: e.value})
			}
		}
		return append([]wire.Op{op}, childOps...)
	case *Map:
		op := wire.Op{
			OpID: d.alloc.NextOpID(), ID: id, Kind: wire.OpCreateMap,
			ParentID: parentID, ParentKey: parentKey, NodeType: wire.NodeMap,
		}
		ops := []wire.Op{op}
		for k, child := range v.children {
			ops = append(ops, d.opsForNewSubtree(child, id, k)...)
		}
		return ops
	case *List:
		op := wire.Op{
			OpID: d.alloc.NextOpID(), ID: id, Kind: wire.OpCreateList,
			ParentID: parentID, ParentKey: parentKey, NodeType: wire.NodeList,
		}
		ops := []wire.Op{op}
		for _, e := range v.sortedEntries() {
			ops = append(ops, d.opsForNewSubtree(e.node, id, e.position)...)
		}
		return ops
	default:
		panic(fmt.Sprintf("crdt: unsupported node type %T", n))
	}
}

// opsDeleteCascade returns one DELETE_CRDT op per node in n's subtree,
// post-order (children before their parent), so that applying them in
// order never deletes a node whose parent has already been removed from
// the index ahead of it in a way that would orphan bookkeeping.
func opsDeleteCascade(alloc *idalloc.Allocator, n Node) []wire.Op {
	var ops []wire.Op
	var walk func(Node)
	walk = func(n Node) {
		switch v := n.(type) {
		case *Object:
			for _, e := range v.entries {
				if e.isChild {
					walk(e.child)
				}
			}
		case *Map:
			for _, child := range v.children {
				walk(child)
			}
		case *List:
			for _, e := range v.sortedEntries() {
				walk(e.node)
			}
		}
		ops = append(ops, wire.Op{OpID: alloc.NextOpID(), ID: n.ID(), Kind: wire.OpDeleteCRDT})
	}
	walk(n)
	return ops
}

// --- single-op apply + generic invert -------------------------------------

func (d *Document) applyAndInvert(op wire.Op) (StorageUpdate, wire.Op, error) {
	switch op.Kind {
	case wire.OpCreateObject, wire.OpCreateMap, wire.OpCreateList, wire.OpCreateRegister:
		return d.applyCreate(op)
	case wire.OpDeleteCRDT:
		return d.applyDelete(op)
	case wire.OpUpdateObject:
		return d.applyUpdateObject(op)
	case wire.OpSetParentKey:
		return d.applySetParentKey(op)
	default:
		return StorageUpdate{}, wire.Op{}, fmt.Errorf("crdt: unknown op kind %q", op.Kind)
	}
}

func (d *Document) applyCreate(op wire.Op) (StorageUpdate, wire.Op, error) {
	parent, ok := d.index[op.ParentID]
	if !ok {
		return StorageUpdate{}, wire.Op{}, fmt.Errorf("crdt: create op targets unknown parent %q", op.ParentID)
	}

	var n Node
	switch op.NodeType {
	case wire.NodeObject:
		o := &Object{entries: make(map[string]objValue)}
		for _, f := range op.Fields {
			if !f.Deleted {
				o.entries[f.Key] = objValue{value: f.Value}
			}
		}
		n = o
	case wire.NodeMap:
		n = &Map{children: make(map[string]Node)}
	case wire.NodeList:
		n = &List{buckets: make(map[string][]Node)}
	case wire.NodeRegister:
		n = &Register{value: op.Value}
	default:
		return StorageUpdate{}, wire.Op{}, fmt.Errorf("crdt: unknown node type %q", op.NodeType)
	}

	n.attachTo(d, op.ID, parent, op.ParentKey)
	d.index[op.ID] = n
	insertChildIntoParent(parent, op.ParentKey, n)

	inverse := wire.Op{OpID: d.alloc.NextOpID(), ID: op.ID, Kind: wire.OpDeleteCRDT}
	update := StorageUpdate{NodeID: op.ID, Node: n, Kind: UpdateNodeCreated}
	return update, inverse, nil
}

func (d *Document) applyDelete(op wire.Op) (StorageUpdate, wire.Op, error) {
	n, ok := d.index[op.ID]
	if !ok {
		return StorageUpdate{}, wire.Op{}, fmt.Errorf("crdt: delete op targets unknown node %q", op.ID)
	}
	parent := n.Parent()
	if parent == nil {
		return StorageUpdate{}, wire.Op{}, fmt.Errorf("crdt: cannot delete root node")
	}

	serialized := n.serialize()
	removeChildFromParent(parent, n.ParentKey(), n)
	delete(d.index, op.ID)
	n.detach()

	inverse := wire.Op{
		OpID: d.alloc.NextOpID(), ID: serialized.ID, Kind: createKindFor(serialized.Type),
		ParentID: serialized.ParentID, ParentKey: serialized.ParentKey, NodeType: serialized.Type,
	}
	switch serialized.Type {
	case wire.NodeObject:
		if m, ok := serialized.Data.(map[string]any); ok {
			for k, v := range m {
				inverse.Fields = append(inverse.Fields, wire.Field{Key: k, Value: v})
			}
		}
	case wire.NodeRegister:
		inverse.Value = serialized.Data
	}

	update := StorageUpdate{NodeID: op.ID, Kind: UpdateNodeDeleted}
	return update, inverse, nil
}

func createKindFor(t wire.NodeType) wire.OpKind {
	switch t {
	case wire.NodeObject:
		return wire.OpCreateObject
	case wire.NodeMap:
		return wire.OpCreateMap
	case wire.NodeList:
		return wire.OpCreateList
	default:
		return wire.OpCreateRegister
	}
}

func (d *Document) applyUpdateObject(op wire.Op) (StorageUpdate, wire.Op, error) {
	n, ok := d.index[op.ID]
	if !ok {
		return StorageUpdate{}, wire.Op{}, fmt.Errorf("crdt: update op targets unknown node %q", op.ID)
	}
	o, ok := n.(*Object)
	if !ok {
		return StorageUpdate{}, wire.Op{}, fmt.Errorf("crdt: UPDATE_OBJECT on non-object node %q", op.ID)
	}

	var inverseFields []wire.Field
	var updatedKeys []string
	for _, f := range op.Fields {
		old, existed := o.entries[f.Key]
		if existed && old.isChild {
			return StorageUpdate{}, wire.Op{}, fmt.Errorf("crdt: UPDATE_OBJECT cannot replace child key %q directly", f.Key)
		}
		if existed {
			inverseFields = append(inverseFields, wire.Field{Key: f.Key, Value: old.value})
		} else {
			inverseFields = append(inverseFields, wire.Field{Key: f.Key, Deleted: true})
		}
		if f.Deleted {
			delete(o.entries, f.Key)
		} else {
			o.entries[f.Key] = objValue{value: f.Value}
		}
		updatedKeys = append(updatedKeys, f.Key)
	}

	inverse := wire.Op{OpID: d.alloc.NextOpID(), ID: op.ID, Kind: wire.OpUpdateObject, Fields: inverseFields}
	update := StorageUpdate{NodeID: op.ID, Node: o, Kind: UpdateNodeUpdated, UpdatedKeys: updatedKeys}
	return update, inverse, nil
}

func (d *Document) applySetParentKey(op wire.Op) (StorageUpdate, wire.Op, error) {
	n, ok := d.index[op.ID]
	if !ok {
		return StorageUpdate{}, wire.Op{}, fmt.Errorf("crdt: move op targets unknown node %q", op.ID)
	}
	parent := n.Parent()
	list, ok := parent.(*List)
	if !ok {
		return StorageUpdate{}, wire.Op{}, fmt.Errorf("crdt: SET_PARENT_KEY target %q is not a list element", op.ID)
	}
	oldKey := n.ParentKey()
	moveChildPosition(list, oldKey, op.NewParentKey, n)
	n.attachTo(d, n.ID(), parent, op.NewParentKey)

	inverse := wire.Op{OpID: d.alloc.NextOpID(), ID: op.ID, Kind: wire.OpSetParentKey, NewParentKey: oldKey}
	update := StorageUpdate{NodeID: op.ID, Node: n, Kind: UpdateNodeUpdated}
	return update, inverse, nil
}

// --- batch application + notification -------------------------------------

func (d *Document) applyOpsLocked(ops []wire.Op) ([]StorageUpdate, []wire.Op, error) {
	updates := make([]StorageUpdate, 0, len(ops))
	inverses := make([]wire.Op, 0, len(ops))
	for _, op := range ops {
		u, inv, err := d.applyAndInvert(op)
		if err != nil {
			return nil, nil, err
		}
		updates = append(updates, u)
		inverses = append(inverses, inv)
	}
	// The inverse of a sequence applied in order is its per-op inverses
	// applied in reverse order.
	for i, j := 0, len(inverses)-1; i < j; i, j = i+1, j-1 {
		inverses[i], inverses[j] = inverses[j], inverses[i]
	}
	return updates, inverses, nil
}

func (d *Document) notify(updates []StorageUpdate) {
	for _, u := range updates {
		for _, fn := range d.subs[u.NodeID] {
			fn(u)
		}
	}
	for _, fn := range d.batchSubs {
		fn(updates)
	}
}

func (d *Document) trackPending(ops []wire.Op) {
	for _, op := range ops {
		d.pendingAcks[op.OpID] = op
	}
}

// mutationKind distinguishes which stack a commit's inverse is pushed onto
// and whether the opposite stack is cleared.
type mutationKind int

const (
	mutationUser mutationKind = iota
	mutationUndo
	mutationRedo
)

func (d *Document) commit(ops []wire.Op, kind mutationKind) error {
	updates, inverses, err := d.applyOpsLocked(ops)
	if err != nil {
		return err
	}

	switch kind {
	case mutationUser:
		d.undo.pushForward(inverses)
		d.undo.clearRedo()
	case mutationUndo:
		d.undo.pushRedo(inverses)
	case mutationRedo:
		d.undo.pushForward(inverses)
	}

	d.trackPending(ops)
	if d.emit != nil {
		d.emit(ops)
	}
	d.notify(updates)
	return nil
}

// --- public local mutation entry points -----------------------------------

func (d *Document) objectSet(o *Object, key string, value any) (Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var ops []wire.Op
	if old, existed := o.entries[key]; existed && old.isChild {
		ops = append(ops, opsDeleteCascade(d.alloc, old.child)...)
	}

	var newNodeID string
	if n, ok := value.(Node); ok {
		subtree := d.opsForNewSubtree(n, o.id, key)
		newNodeID = subtree[0].ID
		ops = append(ops, subtree...)
	} else {
		ops = append(ops, wire.Op{
			OpID: d.alloc.NextOpID(), ID: o.id, Kind: wire.OpUpdateObject,
			Fields: []wire.Field{{Key: key, Value: value}},
		})
	}

	if err := d.commit(ops, mutationUser); err != nil {
		return nil, err
	}
	if newNodeID != "" {
		return d.index[newNodeID], nil
	}
	return nil, nil
}

func (d *Document) objectDelete(o *Object, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	old, existed := o.entries[key]
	if !existed {
		return nil
	}
	var ops []wire.Op
	if old.isChild {
		ops = opsDeleteCascade(d.alloc, old.child)
	} else {
		ops = []wire.Op{{
			OpID: d.alloc.NextOpID(), ID: o.id, Kind: wire.OpUpdateObject,
			Fields: []wire.Field{{Key: key, Deleted: true}},
		}}
	}
	return d.commit(ops, mutationUser)
}

func (d *Document) mapSet(m *Map, key string, value any) (Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var ops []wire.Op
	if old, existed := m.children[key]; existed {
		ops = append(ops, opsDeleteCascade(d.alloc, old)...)
	}
	n, ok := value.(Node)
	if !ok {
		n = NewRegister(value)
	}
	subtree := d.opsForNewSubtree(n, m.id, key)
	newNodeID := subtree[0].ID
	ops = append(ops, subtree...)

	if err := d.commit(ops, mutationUser); err != nil {
		return nil, err
	}
	return d.index[newNodeID], nil
}

func (d *Document) mapDelete(m *Map, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	old, existed := m.children[key]
	if !existed {
		return nil
	}
	ops := opsDeleteCascade(d.alloc, old)
	return d.commit(ops, mutationUser)
}

func (d *Document) listInsert(l *List, position string, value any) (Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, ok := value.(Node)
	if !ok {
		n = NewRegister(value)
	}
	ops := d.opsForNewSubtree(n, l.id, position)
	newNodeID := ops[0].ID
	if err := d.commit(ops, mutationUser); err != nil {
		return nil, err
	}
	return d.index[newNodeID], nil
}

func (d *Document) listDelete(l *List, n Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ops := opsDeleteCascade(d.alloc, n)
	return d.commit(ops, mutationUser)
}

func (d *Document) listMove(l *List, n Node, newPosition string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ops := []wire.Op{{OpID: d.alloc.NextOpID(), ID: n.ID(), Kind: wire.OpSetParentKey, NewParentKey: newPosition}}
	return d.commit(ops, mutationUser)
}

// --- remote + ack -----------------------------------------------------------

// ApplyRemote applies ops received from the server, originated by another
// actor. No undo entry is created; subscribers are notified once per call
// with the full batch, matching the batched "storage" subscription flavor.
func (d *Document) ApplyRemote(ops []wire.Op) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	updates, _, err := d.applyOpsLocked(ops)
	if err != nil {
		return err
	}
	d.notify(updates)
	return nil
}

// Ack prunes opID from the retry/pending-ack buffer: the server has
// echoed one of this client's own emitted ops, confirming it durable.
func (d *Document) Ack(opID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pendingAcks, opID)
}

// PendingCount reports how many locally emitted ops are awaiting ack.
func (d *Document) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pendingAcks)
}

// --- undo/redo ---------------------------------------------------------

// Undo reverses the most recent undoable mutation. Returns ErrUserMisuse
// if history is paused, per spec.md §7.
func (d *Document) Undo() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.undo.paused {
		return &ErrUserMisuse{Msg: "cannot undo while history is paused"}
	}
	entry, ok := d.undo.popUndo()
	if !ok {
		return nil
	}
	return d.commit(entry, mutationUndo)
}

// Redo re-applies the most recently undone mutation.
func (d *Document) Redo() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.undo.paused {
		return &ErrUserMisuse{Msg: "cannot redo while history is paused"}
	}
	entry, ok := d.undo.popRedo()
	if !ok {
		return nil
	}
	return d.commit(entry, mutationRedo)
}

// PauseHistory suspends pushing new undo entries; mutations made while
// paused coalesce into the next entry pushed after ResumeHistory.
func (d *Document) PauseHistory() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.undo.pause()
}

// ResumeHistory resumes pushing undo entries.
func (d *Document) ResumeHistory() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.undo.resume()
}

// --- subscriptions -----------------------------------------------------

// Subscribe registers fn to receive every StorageUpdate produced for the
// node identified by id.
func (d *Document) Subscribe(id string, fn SubscribeFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs[id] = append(d.subs[id], fn)
}

// SubscribeBatch registers fn to receive every update produced by a single
// local/remote apply call, as one slice.
func (d *Document) SubscribeBatch(fn BatchSubscribeFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batchSubs = append(d.batchSubs, fn)
}
