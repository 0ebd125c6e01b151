package narrowing

import (
	"fmt"

	"github.com/funvibe/tsolve/internal/typesystem"
)

// Guard is a runtime check that control flow branches on.
type Guard interface {
	fmt.Stringer
	guard()
}

// TypeofGuard is `typeof x === Tag`.
type TypeofGuard struct{ Tag string }

// InstanceofGuard is `x instanceof C`; Type is the instance type of C.
type InstanceofGuard struct{ Type typesystem.TypeID }

// LiteralGuard is `x === Value` for a unit type Value.
type LiteralGuard struct{ Value typesystem.TypeID }

// NullishKind selects what a strict nullish comparison tests.
type NullishKind uint8

const (
	NullishNull NullishKind = iota
	NullishUndefined
)

// NullishGuard is `x == null` when Strict is false, otherwise
// `x === null` or `x === undefined` according to Kind.
type NullishGuard struct {
	Strict bool
	Kind   NullishKind
}

// TruthyGuard is `if (x)`.
type TruthyGuard struct{}

// DiscriminantGuard is `x.Property === Value`.
type DiscriminantGuard struct {
	Property string
	Value    typesystem.TypeID
}

// HasPropertyGuard is `Property in x`.
type HasPropertyGuard struct{ Property string }

func (TypeofGuard) guard()       {}
func (InstanceofGuard) guard()   {}
func (LiteralGuard) guard()      {}
func (NullishGuard) guard()      {}
func (TruthyGuard) guard()       {}
func (DiscriminantGuard) guard() {}
func (HasPropertyGuard) guard()  {}

func (g TypeofGuard) String() string     { return fmt.Sprintf("typeof x === %q", g.Tag) }
func (g InstanceofGuard) String() string { return fmt.Sprintf("x instanceof #%d", g.Type) }
func (g LiteralGuard) String() string    { return fmt.Sprintf("x === #%d", g.Value) }
func (g NullishGuard) String() string {
	switch {
	case !g.Strict:
		return "x == null"
	case g.Kind == NullishUndefined:
		return "x === undefined"
	}
	return "x === null"
}
func (TruthyGuard) String() string         { return "x" }
func (g DiscriminantGuard) String() string { return fmt.Sprintf("x.%s === #%d", g.Property, g.Value) }
func (g HasPropertyGuard) String() string  { return fmt.Sprintf("%q in x", g.Property) }

// Typeof tags.
const (
	TagString    = "string"
	TagNumber    = "number"
	TagBigInt    = "bigint"
	TagBoolean   = "boolean"
	TagSymbol    = "symbol"
	TagUndefined = "undefined"
	TagObject    = "object"
	TagFunction  = "function"
)

// ParseGuard builds a guard from its textual kind, for fixtures and the
// command line. Types are given as handles.
func ParseGuard(kind, arg string, value typesystem.TypeID) (Guard, error) {
	switch kind {
	case "typeof":
		switch arg {
		case TagString, TagNumber, TagBigInt, TagBoolean, TagSymbol, TagUndefined, TagObject, TagFunction:
			return TypeofGuard{Tag: arg}, nil
		}
		return nil, fmt.Errorf("unknown typeof tag %q", arg)
	case "instanceof":
		return InstanceofGuard{Type: value}, nil
	case "literal", "===":
		return LiteralGuard{Value: value}, nil
	case "nullish", "==null":
		return NullishGuard{}, nil
	case "null", "===null":
		return NullishGuard{Strict: true, Kind: NullishNull}, nil
	case "undefined", "===undefined":
		return NullishGuard{Strict: true, Kind: NullishUndefined}, nil
	case "truthy":
		return TruthyGuard{}, nil
	case "discriminant":
		if arg == "" {
			return nil, fmt.Errorf("discriminant guard needs a property")
		}
		return DiscriminantGuard{Property: arg, Value: value}, nil
	case "in", "has":
		if arg == "" {
			return nil, fmt.Errorf("in guard needs a property")
		}
		return HasPropertyGuard{Property: arg}, nil
	}
	return nil, fmt.Errorf("unknown guard kind %q", kind)
}
