package store

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Operation Union
// --------------------------------------------------------------------------

// Operation is the tagged union over all replicable document mutations.
// Operations are immutable once created and are owned by the update envelope
// that carries them.
type Operation interface {
	// Category returns the store that owns this operation.
	Category() Category
	// Kind returns the stable wire tag of the concrete operation type.
	Kind() string
}

// Wire tags of all operation kinds. These are persisted in update envelopes
// and snapshots and must never be renamed.
const (
	KindTextInsert   = "text.insert"
	KindTextDelete   = "text.delete"
	KindTextFormat   = "text.format"
	KindObjectCreate = "object.create"
	KindObjectUpdate = "object.update"
	KindObjectMove   = "object.move"
	KindObjectDelete = "object.delete"
	KindTableInsert  = "table.insert"
	KindTableUpdate  = "table.update"
	KindTableDelete  = "table.delete"
)

// --------------------------------------------------------------------------
// Stable Text Positions
// --------------------------------------------------------------------------

// Ident is one level of a stable text position identifier: a digit in an
// infinitely subdividable path, the site (user) that allocated it, and the
// id of the allocating update. The tag keeps identifiers unique when the
// same user edits through several replicas at once: two replicas can pick
// the same digit between the same neighbors, but never share an update id.
type Ident struct {
	Digit uint32 `json:"d"`
	Site  string `json:"s"`
	Tag   string `json:"t,omitempty"`
}

// PosID is a stable position identifier of a single text atom. Identifiers
// are totally ordered and survive concurrent insertions and deletions at
// nearby offsets; raw integer offsets never cross the replica boundary.
type PosID []Ident

// Compare orders two position identifiers. Idents are compared level by
// level first by digit, then by site, then by tag; a proper prefix sorts
// before any extension of itself.
func (p PosID) Compare(q PosID) int {
	n := len(p)
	if len(q) < n {
		n = len(q)
	}
	for i := 0; i < n; i++ {
		if p[i].Digit != q[i].Digit {
			if p[i].Digit < q[i].Digit {
				return -1
			}
			return 1
		}
		if p[i].Site != q[i].Site {
			if p[i].Site < q[i].Site {
				return -1
			}
			return 1
		}
		if p[i].Tag != q[i].Tag {
			if p[i].Tag < q[i].Tag {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(p) < len(q):
		return -1
	case len(p) > len(q):
		return 1
	default:
		return 0
	}
}

// String renders the identifier as a path, e.g. "17@alice/3@bob". Tags are
// omitted; the rendering is for diagnostics and conflict event reporting.
func (p PosID) String() string {
	s := ""
	for i, id := range p {
		if i > 0 {
			s += "/"
		}
		s += fmt.Sprintf("%d@%s", id.Digit, id.Site)
	}
	return s
}

// TextAtom is a single replicated text element: one character (as a string
// to keep multi-byte runes intact) bound to its stable position.
type TextAtom struct {
	ID    PosID  `json:"id"`
	Value string `json:"value"`
}

// --------------------------------------------------------------------------
// Text Operations
// --------------------------------------------------------------------------

// TextInsert inserts text. The originating caller sets Position (a visible
// character offset); ApplyLocal resolves the offset into Atoms with stable
// position identifiers. Only the Atoms form is replicated.
type TextInsert struct {
	Position int        `json:"position"`
	Text     string     `json:"text,omitempty"`
	Atoms    []TextAtom `json:"atoms,omitempty"`
}

func (*TextInsert) Category() Category { return CategoryText }
func (*TextInsert) Kind() string       { return KindTextInsert }

// TextDelete removes a run of visible characters. The caller sets Position
// and Length; ApplyLocal resolves them into the stable IDs of the removed
// atoms.
type TextDelete struct {
	Position int     `json:"position"`
	Length   int     `json:"length"`
	IDs      []PosID `json:"ids,omitempty"`
}

func (*TextDelete) Category() Category { return CategoryText }
func (*TextDelete) Kind() string       { return KindTextDelete }

// TextFormat applies style attributes to a run of visible characters,
// e.g. {"bold": "true"}. Styles resolve per atom and per attribute with
// last-write-wins semantics.
type TextFormat struct {
	Position int               `json:"position"`
	Length   int               `json:"length"`
	Style    map[string]string `json:"style"`
	IDs      []PosID           `json:"ids,omitempty"`
}

func (*TextFormat) Category() Category { return CategoryText }
func (*TextFormat) Kind() string       { return KindTextFormat }

// --------------------------------------------------------------------------
// Object Operations (shapes, canvases, plots, annotations)
// --------------------------------------------------------------------------

// ObjectCreate places a new visual object on the document. The payload is an
// opaque serialized object record; the engine never interprets it.
type ObjectCreate struct {
	ObjectID   string          `json:"object_id"`
	ObjectType string          `json:"object_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	X          float64         `json:"x"`
	Y          float64         `json:"y"`
}

func (*ObjectCreate) Category() Category { return CategoryObject }
func (*ObjectCreate) Kind() string       { return KindObjectCreate }

// ObjectUpdate replaces the payload of an existing object.
type ObjectUpdate struct {
	ObjectID string          `json:"object_id"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

func (*ObjectUpdate) Category() Category { return CategoryObject }
func (*ObjectUpdate) Kind() string       { return KindObjectUpdate }

// ObjectMove repositions an object without touching its payload.
type ObjectMove struct {
	ObjectID string  `json:"object_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

func (*ObjectMove) Category() Category { return CategoryObject }
func (*ObjectMove) Kind() string       { return KindObjectMove }

// ObjectDelete tombstones an object. Deletion wins over concurrent updates
// and is never undone by a later write to the same id.
type ObjectDelete struct {
	ObjectID string `json:"object_id"`
}

func (*ObjectDelete) Category() Category { return CategoryObject }
func (*ObjectDelete) Kind() string       { return KindObjectDelete }

// --------------------------------------------------------------------------
// Table Operations
// --------------------------------------------------------------------------

// TableInsert sets the value of a cell addressed by (table, row, column).
type TableInsert struct {
	Table string          `json:"table"`
	Row   string          `json:"row"`
	Col   string          `json:"col"`
	Value json.RawMessage `json:"value,omitempty"`
}

func (*TableInsert) Category() Category { return CategoryTable }
func (*TableInsert) Kind() string       { return KindTableInsert }

// TableUpdate overwrites the value of a cell. Semantically identical to
// TableInsert; both resolve last-write-wins on the same key.
type TableUpdate struct {
	Table string          `json:"table"`
	Row   string          `json:"row"`
	Col   string          `json:"col"`
	Value json.RawMessage `json:"value,omitempty"`
}

func (*TableUpdate) Category() Category { return CategoryTable }
func (*TableUpdate) Kind() string       { return KindTableUpdate }

// TableDelete removes a cell (Col set) or a whole row (Col empty). Row
// deletion is replicated as a row tombstone that suppresses all older cell
// writes of that row.
type TableDelete struct {
	Table string `json:"table"`
	Row   string `json:"row"`
	Col   string `json:"col,omitempty"`
}

func (*TableDelete) Category() Category { return CategoryTable }
func (*TableDelete) Kind() string       { return KindTableDelete }

// --------------------------------------------------------------------------
// Operation Codec
// --------------------------------------------------------------------------

// operationFactories maps a wire tag to a factory for the concrete type.
// All operation kinds must be registered here for envelope decoding.
var operationFactories = map[string]func() Operation{
	KindTextInsert:   func() Operation { return &TextInsert{} },
	KindTextDelete:   func() Operation { return &TextDelete{} },
	KindTextFormat:   func() Operation { return &TextFormat{} },
	KindObjectCreate: func() Operation { return &ObjectCreate{} },
	KindObjectUpdate: func() Operation { return &ObjectUpdate{} },
	KindObjectMove:   func() Operation { return &ObjectMove{} },
	KindObjectDelete: func() Operation { return &ObjectDelete{} },
	KindTableInsert:  func() Operation { return &TableInsert{} },
	KindTableUpdate:  func() Operation { return &TableUpdate{} },
	KindTableDelete:  func() Operation { return &TableDelete{} },
}

// taggedOperation is the wire form of the union: the kind selects the
// concrete type the body decodes into.
type taggedOperation struct {
	Kind string          `json:"kind"`
	Op   json.RawMessage `json:"op"`
}

// EncodeOperation serializes an operation into its tagged wire form.
func EncodeOperation(op Operation) ([]byte, error) {
	if op == nil {
		return nil, NewError(RetCInvalidOperation, "cannot encode nil operation")
	}
	body, err := json.Marshal(op)
	if err != nil {
		return nil, NewError(RetCInternalError, fmt.Sprintf("failed to encode operation: %v", err))
	}
	return json.Marshal(taggedOperation{Kind: op.Kind(), Op: body})
}

// DecodeOperation deserializes an operation from its tagged wire form.
func DecodeOperation(b []byte) (Operation, error) {
	var tagged taggedOperation
	if err := json.Unmarshal(b, &tagged); err != nil {
		return nil, NewError(RetCInvalidOperation, fmt.Sprintf("malformed operation envelope: %v", err))
	}
	factory, ok := operationFactories[tagged.Kind]
	if !ok {
		return nil, NewError(RetCInvalidOperation, fmt.Sprintf("unknown operation kind %q", tagged.Kind))
	}
	op := factory()
	if err := json.Unmarshal(tagged.Op, op); err != nil {
		return nil, NewError(RetCInvalidOperation, fmt.Sprintf("malformed %s operation: %v", tagged.Kind, err))
	}
	return op, nil
}
