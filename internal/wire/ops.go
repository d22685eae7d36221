package wire

// OpKind identifies the kind of CRDT mutation an Op carries.
type OpKind string

const (
	OpCreateObject  OpKind = "CREATE_OBJECT"
	OpCreateMap     OpKind = "CREATE_MAP"
	OpCreateList    OpKind = "CREATE_LIST"
	OpCreateRegister OpKind = "CREATE_REGISTER"
	OpUpdateObject  OpKind = "UPDATE_OBJECT"
	OpSetParentKey  OpKind = "SET_PARENT_KEY"
	OpDeleteCRDT    OpKind = "DELETE_CRDT"
)

// NodeType identifies the concrete CRDT variant a CREATE_* op instantiates.
type NodeType string

const (
	NodeObject   NodeType = "object"
	NodeMap      NodeType = "map"
	NodeList     NodeType = "list"
	NodeRegister NodeType = "register"
)

// Field is one UPDATE_OBJECT entry: either a present key/value pair or an
// explicit deletion. Deleted is a discriminant distinct from a JSON null
// value, since null is itself a valid leaf value for an object key.
type Field struct {
	Key     string `json:"key"`
	Value   any    `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

// Op is a single CRDT mutation, as carried on the wire in both directions.
// Only the fields relevant to Kind are populated; the rest are zero.
type Op struct {
	OpID   string `json:"opId"`
	ID     string `json:"id"`
	Kind   OpKind `json:"kind"`
	Actor  int    `json:"actor,omitempty"`

	// CREATE_* fields.
	ParentID  string   `json:"parentId,omitempty"`
	ParentKey string   `json:"parentKey,omitempty"`
	NodeType  NodeType `json:"nodeType,omitempty"`
	// Value is the CREATE_REGISTER leaf payload.
	Value any `json:"value,omitempty"`

	// UPDATE_OBJECT fields.
	Fields []Field `json:"fields,omitempty"`

	// SET_PARENT_KEY fields.
	NewParentKey string `json:"newParentKey,omitempty"`
}

// Node is the flattened wire representation of one attached CRDT node, as
// carried in InitialStorageStateMessage.Items.
type Node struct {
	ID        string   `json:"id"`
	Type      NodeType `json:"type"`
	ParentID  string   `json:"parentId,omitempty"`
	ParentKey string   `json:"parentKey,omitempty"`
	// Data holds an Object/Map's key->value map (leaves only; child node
	// references are resolved via other Nodes whose ParentID points here)
	// or a Register's single Value, depending on Type.
	Data any `json:"data,omitempty"`
}
