package narrowing

import (
	"github.com/samber/lo"

	"github.com/funvibe/tsolve/internal/typesystem"
)

// Relation is the structural relation narrowing filters with.
type Relation interface {
	IsSubtypeOf(a, b typesystem.TypeID) bool
}

// Evaluator expands aliases and derived types before narrowing.
type Evaluator interface {
	Evaluate(id typesystem.TypeID) typesystem.TypeID
}

// Narrower refines types by control-flow guards. It holds no per-call
// state and is safe for concurrent use.
type Narrower struct {
	in   *typesystem.Interner
	rel  Relation
	eval Evaluator
}

// New creates a Narrower.
func New(in *typesystem.Interner, rel Relation) *Narrower {
	return &Narrower{in: in, rel: rel}
}

// BindEvaluator attaches the evaluator used to expand aliases.
func (n *Narrower) BindEvaluator(e Evaluator) { n.eval = e }

type match uint8

const (
	no match = iota
	yes
	maybe
)

func (n *Narrower) resolve(id typesystem.TypeID) typesystem.TypeID {
	if n.eval == nil {
		return id
	}
	return n.eval.Evaluate(id)
}

// members splits t into the members narrowing filters. boolean counts as
// true | false so each half can be kept or dropped.
func (n *Narrower) members(t typesystem.TypeID) []typesystem.TypeID {
	var out []typesystem.TypeID
	for _, m := range n.in.UnionMembers(t) {
		if m == typesystem.TypeBoolean {
			out = append(out, typesystem.TypeTrue, typesystem.TypeFalse)
			continue
		}
		out = append(out, n.resolve(m))
	}
	return out
}

// Narrow returns the type t has on the branch where guard g evaluated to
// branchTaken. A guard nothing can satisfy yields never.
func (n *Narrower) Narrow(t typesystem.TypeID, g Guard, branchTaken bool) typesystem.TypeID {
	if g == nil || t == typesystem.TypeNever {
		return typesystem.TypeNever
	}
	t = n.resolve(t)
	switch t {
	case typesystem.TypeError:
		return t
	case typesystem.TypeAny, typesystem.TypeUnknown:
		if !branchTaken {
			return t
		}
		if pos := n.positive(g, t); pos != typesystem.TypeNone {
			return pos
		}
		return t
	}

	kept := make([]typesystem.TypeID, 0)
	for _, m := range n.members(t) {
		if r := n.narrowMember(m, g, branchTaken); r != typesystem.TypeNever {
			kept = append(kept, r)
		}
	}
	return n.in.Union(kept)
}

// positive is the type a guard proves on its true branch, or TypeNone when
// the guard proves no particular type.
func (n *Narrower) positive(g Guard, source typesystem.TypeID) typesystem.TypeID {
	in := n.in
	switch g := g.(type) {
	case TypeofGuard:
		return typeofType(in, g.Tag)
	case InstanceofGuard:
		return g.Type
	case LiteralGuard:
		return g.Value
	case NullishGuard:
		switch {
		case !g.Strict:
			return in.Union2(typesystem.TypeNull, typesystem.TypeUndefined)
		case g.Kind == NullishUndefined:
			return typesystem.TypeUndefined
		}
		return typesystem.TypeNull
	case DiscriminantGuard:
		return in.Object([]typesystem.PropertyInfo{{Name: g.Property, Type: g.Value}})
	case HasPropertyGuard:
		obj := in.Object([]typesystem.PropertyInfo{{Name: g.Property, Type: typesystem.TypeUnknown}})
		if source == typesystem.TypeUnknown {
			return in.Intersection2(typesystem.TypeObject, obj)
		}
		return obj
	}
	return typesystem.TypeNone
}

func typeofType(in *typesystem.Interner, tag string) typesystem.TypeID {
	switch tag {
	case TagString:
		return typesystem.TypeString
	case TagNumber:
		return typesystem.TypeNumber
	case TagBigInt:
		return typesystem.TypeBigInt
	case TagBoolean:
		return typesystem.TypeBoolean
	case TagSymbol:
		return typesystem.TypeSymbol
	case TagUndefined:
		return typesystem.TypeUndefined
	case TagObject:
		return in.Union2(typesystem.TypeObject, typesystem.TypeNull)
	case TagFunction:
		return typesystem.TypeFunction
	}
	return typesystem.TypeNever
}

func (n *Narrower) narrowMember(m typesystem.TypeID, g Guard, branch bool) typesystem.TypeID {
	if _, ok := n.in.Key(m).(typesystem.TypeParam); ok {
		return n.narrowTypeParam(m, g, branch)
	}
	switch g := g.(type) {
	case TypeofGuard:
		return n.keep(m, n.typeofMatch(m, g.Tag), branch, typeofType(n.in, g.Tag))
	case InstanceofGuard:
		return n.instanceof(m, g.Type, branch)
	case LiteralGuard:
		return n.equals(m, g.Value, branch)
	case NullishGuard:
		return n.keep(m, n.nullishMatch(m, g), branch, n.positive(g, m))
	case TruthyGuard:
		return n.truthy(m, branch)
	case DiscriminantGuard:
		return n.discriminant(m, g, branch)
	case HasPropertyGuard:
		return n.hasProperty(m, g.Property, branch)
	}
	return typesystem.TypeNever
}

// keep applies a tri-state match: certain matches survive only the true
// branch, certain mismatches only the false one, and uncertain members
// are intersected with the positive type on the true branch.
func (n *Narrower) keep(m typesystem.TypeID, r match, branch bool, positive typesystem.TypeID) typesystem.TypeID {
	switch {
	case r == yes && branch, r == no && !branch, r == maybe && !branch:
		return m
	case r == maybe && branch:
		return n.in.Intersection2(m, positive)
	}
	return typesystem.TypeNever
}

// narrowTypeParam narrows a type parameter through its constraint. The
// parameter survives as itself, refined by the guard's positive type on
// the true branch, unless nothing in its constraint survives.
func (n *Narrower) narrowTypeParam(m typesystem.TypeID, g Guard, branch bool) typesystem.TypeID {
	info, _ := n.in.TypeParamOf(m)
	constraint := info.Constraint
	if constraint == typesystem.TypeNone {
		constraint = typesystem.TypeUnknown
	}
	if n.Narrow(constraint, g, branch) == typesystem.TypeNever {
		return typesystem.TypeNever
	}
	if !branch {
		return m
	}
	pos := n.positive(g, constraint)
	if pos == typesystem.TypeNone || (constraint != typesystem.TypeUnknown && n.rel.IsSubtypeOf(constraint, pos)) {
		return m
	}
	return n.in.Intersection2(m, pos)
}

func (n *Narrower) typeofMatch(m typesystem.TypeID, tag string) match {
	in := n.in
	switch in.PrimitiveClassOf(m) {
	case typesystem.ClassString:
		return is(tag == TagString)
	case typesystem.ClassNumber:
		return is(tag == TagNumber)
	case typesystem.ClassBigInt:
		return is(tag == TagBigInt)
	case typesystem.ClassBoolean:
		return is(tag == TagBoolean)
	case typesystem.ClassSymbol:
		return is(tag == TagSymbol)
	case typesystem.ClassUndefined:
		return is(tag == TagUndefined)
	case typesystem.ClassNull:
		return is(tag == TagObject)
	}
	if m == typesystem.TypeObject {
		switch tag {
		case TagObject, TagFunction:
			return maybe
		}
		return no
	}
	if in.IsCallable(m) {
		return is(tag == TagFunction)
	}
	switch in.Key(m).(type) {
	case typesystem.Object, typesystem.ObjectWithIndex:
		if in.IsEmptyObject(m) {
			// {} admits every non-nullish value.
			if tag == TagUndefined {
				return no
			}
			return maybe
		}
		return is(tag == TagObject)
	case typesystem.Array, typesystem.Tuple, typesystem.ReadonlyType, typesystem.Mapped:
		return is(tag == TagObject)
	}
	return maybe
}

func is(b bool) match {
	if b {
		return yes
	}
	return no
}

func (n *Narrower) nullishMatch(m typesystem.TypeID, g NullishGuard) match {
	switch m {
	case typesystem.TypeNull:
		return is(!g.Strict || g.Kind == NullishNull)
	case typesystem.TypeUndefined, typesystem.TypeVoid:
		return is(!g.Strict || g.Kind == NullishUndefined)
	}
	return no
}

func (n *Narrower) instanceof(m, instance typesystem.TypeID, branch bool) typesystem.TypeID {
	in := n.in
	if in.PrimitiveClassOf(m) != typesystem.ClassNone {
		if branch {
			return typesystem.TypeNever
		}
		return m
	}
	related := n.rel.IsSubtypeOf(m, instance)
	if !branch {
		if related {
			return typesystem.TypeNever
		}
		return m
	}
	switch {
	case related:
		return m
	case n.rel.IsSubtypeOf(instance, m):
		return instance
	}
	return in.Intersection2(m, instance)
}

func (n *Narrower) equals(m, value typesystem.TypeID, branch bool) typesystem.TypeID {
	in := n.in
	if !branch {
		if m == value && in.IsUnitType(m) {
			return typesystem.TypeNever
		}
		return m
	}
	switch {
	case m == value:
		return m
	case n.rel.IsSubtypeOf(value, m):
		return value
	}
	return typesystem.TypeNever
}

func (n *Narrower) isFalsy(m typesystem.TypeID) match {
	switch m {
	case typesystem.TypeNull, typesystem.TypeUndefined, typesystem.TypeVoid, typesystem.TypeFalse:
		return yes
	case typesystem.TypeTrue:
		return no
	case typesystem.TypeString, typesystem.TypeNumber, typesystem.TypeBigInt:
		return maybe
	}
	in := n.in
	if lit, ok := in.LiteralOf(m); ok {
		return is(lit.IsFalsy())
	}
	if e, ok := in.Key(m).(typesystem.Enum); ok {
		if lit, ok := in.LiteralOf(e.Members); ok {
			return is(lit.IsFalsy())
		}
		return maybe
	}
	switch in.PrimitiveClassOf(m) {
	case typesystem.ClassSymbol:
		return no
	case typesystem.ClassString:
		return maybe
	}
	if in.IsEmptyObject(m) {
		return maybe
	}
	switch in.Key(m).(type) {
	case typesystem.Object, typesystem.ObjectWithIndex, typesystem.Array, typesystem.Tuple,
		typesystem.ReadonlyType, typesystem.Function, typesystem.Callable:
		return no
	}
	if m == typesystem.TypeObject || m == typesystem.TypeFunction {
		return no
	}
	return maybe
}

func (n *Narrower) truthy(m typesystem.TypeID, branch bool) typesystem.TypeID {
	switch n.isFalsy(m) {
	case yes:
		if branch {
			return typesystem.TypeNever
		}
		return m
	case no:
		if branch {
			return m
		}
		return typesystem.TypeNever
	}
	return m
}

// property looks up a named member of an object-like member type.
func (n *Narrower) property(m typesystem.TypeID, name string) (typesystem.PropertyInfo, bool, bool) {
	in := n.in
	if props, ok := in.PropertiesOf(m); ok {
		p, found := lo.Find(props, func(p typesystem.PropertyInfo) bool { return p.Name == name })
		return p, found, true
	}
	if x, ok := in.Key(m).(typesystem.Intersection); ok {
		objectLike := false
		for _, part := range in.TypeList(x.Members) {
			p, found, obj := n.property(n.resolve(part), name)
			if found {
				return p, true, true
			}
			objectLike = objectLike || obj
		}
		return typesystem.PropertyInfo{}, false, objectLike
	}
	return typesystem.PropertyInfo{}, false, false
}

func (n *Narrower) discriminant(m typesystem.TypeID, g DiscriminantGuard, branch bool) typesystem.TypeID {
	p, found, objectLike := n.property(m, g.Property)
	if !objectLike || !found {
		if branch {
			return typesystem.TypeNever
		}
		return m
	}
	propType := p.Type
	if p.Optional {
		propType = n.in.Union2(propType, typesystem.TypeUndefined)
	}
	if !branch {
		if propType == g.Value && n.in.IsUnitType(propType) {
			return typesystem.TypeNever
		}
		return m
	}
	if n.rel.IsSubtypeOf(g.Value, propType) {
		return m
	}
	return typesystem.TypeNever
}

func (n *Narrower) hasProperty(m typesystem.TypeID, name string, branch bool) typesystem.TypeID {
	in := n.in
	if m == typesystem.TypeObject {
		if branch {
			return in.Intersection2(m, in.Object([]typesystem.PropertyInfo{{Name: name, Type: typesystem.TypeUnknown}}))
		}
		return m
	}
	p, found, objectLike := n.property(m, name)
	if !objectLike {
		if in.IsObjectLike(m) {
			// Arrays and functions: only their apparent members are known.
			return m
		}
		if branch {
			return typesystem.TypeNever
		}
		return m
	}
	if found {
		if branch || p.Optional {
			return m
		}
		return typesystem.TypeNever
	}
	if shape, ok := in.ObjectShapeOf(m); ok && shape.StringIndex != nil {
		return m
	}
	if branch {
		return typesystem.TypeNever
	}
	return m
}
