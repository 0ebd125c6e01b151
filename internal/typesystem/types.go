package typesystem

import (
	"strconv"

	"golang.org/x/exp/slices"
)

// TypeKey describes the shape of a type. It is a closed set: every
// implementation lives in this file and every one is comparable, so a key
// can be used directly as a map key by the Interner.
type TypeKey interface {
	typeKey()
}

// IntrinsicKind enumerates the keyword types.
type IntrinsicKind uint8

const (
	KindAny IntrinsicKind = iota
	KindUnknown
	KindNever
	KindVoid
	KindNull
	KindUndefined
	KindBoolean
	KindNumber
	KindString
	KindBigInt
	KindSymbol
	KindObject
	KindFunction
	KindError
)

var intrinsicNames = [...]string{
	KindAny:       "any",
	KindUnknown:   "unknown",
	KindNever:     "never",
	KindVoid:      "void",
	KindNull:      "null",
	KindUndefined: "undefined",
	KindBoolean:   "boolean",
	KindNumber:    "number",
	KindString:    "string",
	KindBigInt:    "bigint",
	KindSymbol:    "symbol",
	KindObject:    "object",
	KindFunction:  "Function",
	KindError:     "error",
}

func (k IntrinsicKind) String() string {
	if int(k) < len(intrinsicNames) {
		return intrinsicNames[k]
	}
	return "intrinsic(" + strconv.Itoa(int(k)) + ")"
}

// LiteralKind tags the primitive a literal belongs to.
type LiteralKind uint8

const (
	LitString LiteralKind = iota
	LitNumber
	LitBigInt
	LitBoolean
)

// LiteralValue is a primitive value narrowed to a singleton type.
// BigInt literals keep their decimal text in Str.
type LiteralValue struct {
	Kind LiteralKind
	Str  string
	Num  float64
	Bool bool
}

func StringLit(s string) LiteralValue  { return LiteralValue{Kind: LitString, Str: s} }
func NumberLit(n float64) LiteralValue { return LiteralValue{Kind: LitNumber, Num: n} }
func BigIntLit(s string) LiteralValue  { return LiteralValue{Kind: LitBigInt, Str: s} }
func BoolLit(b bool) LiteralValue      { return LiteralValue{Kind: LitBoolean, Bool: b} }

// IsFalsy reports whether the literal converts to false at runtime.
func (v LiteralValue) IsFalsy() bool {
	switch v.Kind {
	case LitString:
		return v.Str == ""
	case LitNumber:
		return v.Num == 0
	case LitBigInt:
		return v.Str == "0" || v.Str == "-0"
	case LitBoolean:
		return !v.Bool
	}
	return false
}

// Text renders the value the way it appears inside a template literal.
func (v LiteralValue) Text() string {
	switch v.Kind {
	case LitString, LitBigInt:
		return v.Str
	case LitNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case LitBoolean:
		return strconv.FormatBool(v.Bool)
	}
	return ""
}

// StringIntrinsicKind enumerates the string mapping intrinsics.
type StringIntrinsicKind uint8

const (
	Uppercase StringIntrinsicKind = iota
	Lowercase
	Capitalize
	Uncapitalize
)

func (k StringIntrinsicKind) String() string {
	switch k {
	case Uppercase:
		return "Uppercase"
	case Lowercase:
		return "Lowercase"
	case Capitalize:
		return "Capitalize"
	case Uncapitalize:
		return "Uncapitalize"
	}
	return "StringIntrinsic"
}

// MappedModifier is the +/- prefix on readonly and ? in a mapped type.
type MappedModifier uint8

const (
	ModifierNone MappedModifier = iota
	ModifierAdd
	ModifierRemove
)

// TypeParamInfo describes a type parameter or an infer placeholder.
// TypeNone stands for "absent" in Constraint and Default.
type TypeParamInfo struct {
	Name       string
	Constraint TypeID
	Default    TypeID
	IsConst    bool
}

// Key variants.
type (
	Intrinsic       struct{ Kind IntrinsicKind }
	Literal         struct{ Value LiteralValue }
	Union           struct{ Members ListID }
	Intersection    struct{ Members ListID }
	Object          struct{ Shape ShapeID }
	ObjectWithIndex struct{ Shape ShapeID }
	Array           struct{ Elem TypeID }
	Tuple           struct{ Elems TupleID }
	ReadonlyType    struct{ Inner TypeID }
	Function        struct{ Shape FuncID }
	Callable        struct{ Shape CallableID }
	TypeParam       struct{ Info TypeParamInfo }
	Infer           struct{ Info TypeParamInfo }
	Lazy            struct{ Def DefID }
	Application     struct{ App AppID }
	Conditional     struct{ Cond CondID }
	Mapped          struct{ Mapped MappedID }
	IndexAccess     struct{ Object, Index TypeID }
	KeyOf           struct{ Inner TypeID }
	TypeQuery       struct{ Def DefID }
	TemplateLiteral struct{ Spans TemplateID }
	StringIntrinsic struct {
		Kind StringIntrinsicKind
		Arg  TypeID
	}
	// Enum is a nominal enum (Members is the union of its member values)
	// or a single enum member (Members is one literal).
	Enum struct {
		Def     DefID
		Members TypeID
	}
	UniqueSymbol struct{ Def DefID }
	ThisType     struct{}
)

func (Intrinsic) typeKey()       {}
func (Literal) typeKey()         {}
func (Union) typeKey()           {}
func (Intersection) typeKey()    {}
func (Object) typeKey()          {}
func (ObjectWithIndex) typeKey() {}
func (Array) typeKey()           {}
func (Tuple) typeKey()           {}
func (ReadonlyType) typeKey()    {}
func (Function) typeKey()        {}
func (Callable) typeKey()        {}
func (TypeParam) typeKey()       {}
func (Infer) typeKey()           {}
func (Lazy) typeKey()            {}
func (Application) typeKey()     {}
func (Conditional) typeKey()     {}
func (Mapped) typeKey()          {}
func (IndexAccess) typeKey()     {}
func (KeyOf) typeKey()           {}
func (TypeQuery) typeKey()       {}
func (TemplateLiteral) typeKey() {}
func (StringIntrinsic) typeKey() {}
func (Enum) typeKey()            {}
func (UniqueSymbol) typeKey()    {}
func (ThisType) typeKey()        {}

// PropertyInfo is one named member of an object or callable shape.
// WriteType differs from Type only for accessors with divergent setters.
type PropertyInfo struct {
	Name      string
	Type      TypeID
	WriteType TypeID
	Optional  bool
	Readonly  bool
	IsMethod  bool
}

// IndexSignature is a `[key: K]: V` member.
type IndexSignature struct {
	Key      TypeID
	Value    TypeID
	Readonly bool
}

// ObjectFlags carry non-structural facts about a shape.
type ObjectFlags uint8

const (
	// FlagFreshLiteral marks a shape produced directly by an object literal
	// expression. Only fresh shapes are subject to excess property checks.
	FlagFreshLiteral ObjectFlags = 1 << iota
)

// ObjectShape is the body of an object type. Properties are kept sorted by
// name so lookups can binary search and equal shapes encode equally.
type ObjectShape struct {
	Flags       ObjectFlags
	Properties  []PropertyInfo
	StringIndex *IndexSignature
	NumberIndex *IndexSignature
	Symbol      DefID
}

// IsFresh reports whether the shape came from an object literal.
func (s *ObjectShape) IsFresh() bool { return s.Flags&FlagFreshLiteral != 0 }

// HasIndex reports whether the shape has any index signature.
func (s *ObjectShape) HasIndex() bool { return s.StringIndex != nil || s.NumberIndex != nil }

// Property finds a property by name.
func (s *ObjectShape) Property(name string) (PropertyInfo, bool) {
	return findProperty(s.Properties, name)
}

func findProperty(props []PropertyInfo, name string) (PropertyInfo, bool) {
	i, ok := slices.BinarySearchFunc(props, name, func(p PropertyInfo, n string) int {
		switch {
		case p.Name < n:
			return -1
		case p.Name > n:
			return 1
		}
		return 0
	})
	if !ok {
		return PropertyInfo{}, false
	}
	return props[i], true
}

func sortProperties(props []PropertyInfo) {
	slices.SortStableFunc(props, func(a, b PropertyInfo) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
}

// TupleElement is one slot of a tuple type.
type TupleElement struct {
	Type     TypeID
	Name     string
	Optional bool
	Rest     bool
}

// ParamInfo is one parameter of a signature.
type ParamInfo struct {
	Name     string
	Type     TypeID
	Optional bool
	Rest     bool
}

// TypePredicate is the `x is T` / `asserts x is T` return annotation.
// ParamName is empty when the predicate targets `this`.
// Type is TypeNone for a bare `asserts x`.
type TypePredicate struct {
	Asserts   bool
	ParamName string
	Type      TypeID
}

// FunctionShape is a single call or construct signature.
// This is TypeNone when the signature declares no `this` parameter.
type FunctionShape struct {
	TypeParams    []TypeParamInfo
	Params        []ParamInfo
	This          TypeID
	Return        TypeID
	Predicate     *TypePredicate
	IsConstructor bool
	IsMethod      bool
}

// RequiredParams counts the leading parameters that are neither optional nor rest.
func (f *FunctionShape) RequiredParams() int {
	n := 0
	for _, p := range f.Params {
		if p.Optional || p.Rest {
			break
		}
		n++
	}
	return n
}

// HasRest reports whether the last parameter is a rest parameter.
func (f *FunctionShape) HasRest() bool {
	return len(f.Params) > 0 && f.Params[len(f.Params)-1].Rest
}

// CallableShape is an object type with call and/or construct signatures
// (overloads, classes, interfaces with call members).
type CallableShape struct {
	CallSignatures      []FunctionShape
	ConstructSignatures []FunctionShape
	Properties          []PropertyInfo
	StringIndex         *IndexSignature
	NumberIndex         *IndexSignature
	Symbol              DefID
}

// Property finds a property by name.
func (s *CallableShape) Property(name string) (PropertyInfo, bool) {
	return findProperty(s.Properties, name)
}

// ConditionalType is `Check extends Extends ? True : False`.
type ConditionalType struct {
	Check        TypeID
	Extends      TypeID
	True         TypeID
	False        TypeID
	Distributive bool
}

// MappedType is `{ [P in Constraint as NameType]: Template }`.
// NameType is TypeNone when there is no `as` clause.
type MappedType struct {
	Param      TypeParamInfo
	Constraint TypeID
	NameType   TypeID
	Template   TypeID
	Readonly   MappedModifier
	Optional   MappedModifier
}

// TemplateSpan is either literal text (Type == TypeNone) or a type hole.
type TemplateSpan struct {
	Text string
	Type TypeID
}

// IsText reports whether the span is literal text.
func (s TemplateSpan) IsText() bool { return s.Type == TypeNone }

// TypeApplication is a generic definition applied to arguments.
type TypeApplication struct {
	Base TypeID
	Args []TypeID
}
