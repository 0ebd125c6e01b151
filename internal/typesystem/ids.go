package typesystem

import "github.com/funvibe/tsolve/internal/config"

// TypeID is an opaque handle to an interned type. Two handles are equal
// exactly when the types they name are structurally equal.
type TypeID uint32

// Builtin handles. They are interned when the Interner is created, in this
// order, so every session agrees on them.
const (
	TypeNone TypeID = iota
	TypeError
	TypeNever
	TypeUnknown
	TypeAny
	TypeVoid
	TypeUndefined
	TypeNull
	TypeBoolean
	TypeNumber
	TypeString
	TypeBigInt
	TypeSymbol
	TypeObject
	TypeTrue
	TypeFalse
	TypeFunction
)

// FirstUserID is the first handle issued for a non-builtin type.
const FirstUserID TypeID = config.FirstUserTypeID

// IsBuiltin reports whether id is one of the reserved handles.
func (id TypeID) IsBuiltin() bool { return id < FirstUserID }

// DefID identifies a declaration owned by the binder. The engine never
// inspects it; it is only used as a map key and handed back to the Resolver.
type DefID uint32

// Handles into the auxiliary tables.
type (
	ListID     uint32
	ShapeID    uint32
	FuncID     uint32
	CallableID uint32
	TupleID    uint32
	TemplateID uint32
	CondID     uint32
	MappedID   uint32
	AppID      uint32
)
