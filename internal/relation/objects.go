package relation

import (
	"strconv"

	"github.com/funvibe/tsolve/internal/typesystem"
)

// memberView is the flattened member set of a source type: its own
// properties or the apparent members of a primitive, array or function.
type memberView struct {
	props []typesystem.PropertyInfo
	str   *typesystem.IndexSignature
	num   *typesystem.IndexSignature
}

func (v *memberView) property(name string) (typesystem.PropertyInfo, bool) {
	for _, p := range v.props {
		if p.Name == name {
			return p, true
		}
	}
	return typesystem.PropertyInfo{}, false
}

func (v *memberView) add(props []typesystem.PropertyInfo, str, num *typesystem.IndexSignature, in *typesystem.Interner) {
	for _, p := range props {
		merged := false
		for i := range v.props {
			if v.props[i].Name == p.Name {
				v.props[i].Type = in.Intersection2(v.props[i].Type, p.Type)
				v.props[i].Optional = v.props[i].Optional && p.Optional
				merged = true
				break
			}
		}
		if !merged {
			v.props = append(v.props, p)
		}
	}
	if v.str == nil {
		v.str = str
	}
	if v.num == nil {
		v.num = num
	}
}

// membersOf returns the members a structural check sees on a.
func (c *checker) membersOf(a typesystem.TypeID) (memberView, bool) {
	var v memberView
	in := c.in
	ap := c.j.apparent
	switch k := in.Key(a).(type) {
	case typesystem.Object:
		s := in.ObjectShape(k.Shape)
		v.add(s.Properties, s.StringIndex, s.NumberIndex, in)
	case typesystem.ObjectWithIndex:
		s := in.ObjectShape(k.Shape)
		v.add(s.Properties, s.StringIndex, s.NumberIndex, in)
	case typesystem.Callable:
		s := in.CallableShape(k.Shape)
		v.add(s.Properties, s.StringIndex, s.NumberIndex, in)
		v.add(ap.functionMembers(), nil, nil, in)
	case typesystem.Function:
		v.add(ap.functionMembers(), nil, nil, in)
	case typesystem.Array, typesystem.Tuple:
		return c.arrayView(a, false)
	case typesystem.ReadonlyType:
		return c.arrayView(k.Inner, true)
	case typesystem.Intersection:
		found := false
		for _, m := range in.TypeList(k.Members) {
			mv, ok := c.membersOf(c.evaluate(c.unalias(m)))
			if !ok {
				continue
			}
			found = true
			v.add(mv.props, mv.str, mv.num, in)
		}
		return v, found
	case typesystem.TypeParam:
		if k.Info.Constraint == typesystem.TypeNone {
			return v, false
		}
		return c.membersOf(k.Info.Constraint)
	case typesystem.Lazy, typesystem.TypeQuery:
		if r := c.unalias(a); r != a {
			return c.membersOf(r)
		}
		return v, false
	case typesystem.Intrinsic:
		switch k.Kind {
		case typesystem.KindObject:
		case typesystem.KindFunction:
			v.add(ap.functionMembers(), nil, nil, in)
		default:
			props, ok := ap.primitiveMembers(in.PrimitiveClassOf(a))
			if !ok {
				return v, false
			}
			v.add(props, nil, ap.primitiveIndex(in.PrimitiveClassOf(a)), in)
		}
	default:
		class := in.PrimitiveClassOf(a)
		props, ok := ap.primitiveMembers(class)
		if !ok {
			return v, false
		}
		v.add(props, nil, ap.primitiveIndex(class), in)
	}
	return v, true
}

// arrayView returns the apparent members of an array or tuple. Readonly
// views drop the mutating methods and mark every member readonly.
func (c *checker) arrayView(id typesystem.TypeID, readonly bool) (memberView, bool) {
	var v memberView
	ap := c.j.apparent
	switch k := c.in.Key(id).(type) {
	case typesystem.Array:
		v.add(ap.arrayMembers(k.Elem, typesystem.TypeNumber, readonly), nil, ap.index(k.Elem, readonly), c.in)
	case typesystem.Tuple:
		elem, length := c.tupleFacts(k.Elems)
		props := c.tupleIndexProps(k.Elems)
		if readonly {
			for i := range props {
				props[i].Readonly = true
			}
		}
		v.add(props, nil, nil, c.in)
		v.add(ap.arrayMembers(elem, length, readonly), nil, ap.index(elem, readonly), c.in)
	default:
		return v, false
	}
	return v, true
}

// tupleFacts returns the element union and the length type of a tuple.
func (c *checker) tupleFacts(id typesystem.TupleID) (typesystem.TypeID, typesystem.TypeID) {
	elems := c.in.TupleElements(id)
	types := make([]typesystem.TypeID, 0, len(elems))
	lengths := []typesystem.TypeID{}
	fixedLength := true
	for i, e := range elems {
		types = append(types, c.elementType(e))
		if e.Rest {
			fixedLength = false
		}
		if e.Optional {
			lengths = append(lengths, c.in.LiteralNumber(float64(i)))
		}
	}
	if !fixedLength {
		return c.in.Union(types), typesystem.TypeNumber
	}
	lengths = append(lengths, c.in.LiteralNumber(float64(len(elems))))
	return c.in.Union(types), c.in.Union(lengths)
}

// tupleIndexProps exposes the fixed positions of a tuple as "0", "1", ...
func (c *checker) tupleIndexProps(id typesystem.TupleID) []typesystem.PropertyInfo {
	var props []typesystem.PropertyInfo
	for i, e := range c.in.TupleElements(id) {
		if e.Rest {
			break
		}
		props = append(props, typesystem.PropertyInfo{
			Name: strconv.Itoa(i), Type: e.Type, WriteType: e.Type, Optional: e.Optional,
		})
	}
	return props
}

func isWeak(props []typesystem.PropertyInfo, str, num *typesystem.IndexSignature) bool {
	if len(props) == 0 || str != nil || num != nil {
		return false
	}
	for _, p := range props {
		if !p.Optional {
			return false
		}
	}
	return true
}

func sharesProperty(v memberView, props []typesystem.PropertyInfo) bool {
	for _, p := range props {
		if _, ok := v.property(p.Name); ok {
			return true
		}
	}
	return false
}

func isNumericName(name string) bool {
	_, err := strconv.ParseFloat(name, 64)
	return err == nil
}

func (c *checker) toMembers(a, b typesystem.TypeID, props []typesystem.PropertyInfo, str, num *typesystem.IndexSignature) bool {
	view, ok := c.membersOf(a)
	if !ok {
		return c.fail(TypeMismatch, a, b, "")
	}
	opts := &c.j.opts
	if opts.EnforceWeakTypes && isWeak(props, str, num) && c.isObjectSource(a) &&
		len(view.props) > 0 && !sharesProperty(view, props) {
		return c.fail(NoCommonProperties, a, b, "")
	}

	for _, tp := range props {
		sp, found := view.property(tp.Name)
		if !found {
			if tp.Optional {
				continue
			}
			return c.fail(MissingProperty, a, b, tp.Name)
		}
		if sp.Optional && !tp.Optional {
			return c.fail(OptionalMismatch, a, b, tp.Name)
		}
		if opts.EnforceReadonly && sp.Readonly && !tp.Readonly {
			return c.fail(ReadonlyMismatch, a, b, tp.Name)
		}
		source, target := sp.Type, tp.Type
		if !opts.ExactOptionalPropertyTypes {
			if tp.Optional {
				target = c.in.Union2(target, typesystem.TypeUndefined)
			}
			if sp.Optional {
				source = c.in.Union2(source, typesystem.TypeUndefined)
			}
		}
		if !c.member(source, target, tp.IsMethod || sp.IsMethod) {
			return false
		}
		if !tp.Readonly && tp.WriteType != typesystem.TypeNone && tp.WriteType != tp.Type {
			if !c.check(tp.WriteType, sp.WriteType) {
				return false
			}
		}
	}

	if str != nil {
		for _, sp := range view.props {
			if !c.member(sp.Type, str.Value, sp.IsMethod) {
				return false
			}
		}
		for _, sig := range []*typesystem.IndexSignature{view.str, view.num} {
			if sig != nil && !c.check(sig.Value, str.Value) {
				return false
			}
		}
	}
	if num != nil {
		for _, sp := range view.props {
			if isNumericName(sp.Name) && !c.check(sp.Type, num.Value) {
				return false
			}
		}
		switch {
		case view.num != nil:
			if !c.check(view.num.Value, num.Value) {
				return false
			}
		case view.str != nil:
			if !c.check(view.str.Value, num.Value) {
				return false
			}
		}
	}
	return true
}

// isObjectSource reports whether weak type detection applies to a.
// Primitives and callables are exempt.
func (c *checker) isObjectSource(a typesystem.TypeID) bool {
	switch c.in.Key(a).(type) {
	case typesystem.Object, typesystem.ObjectWithIndex, typesystem.Intersection:
		return true
	}
	return false
}

// member compares property types, with relaxed parameter variance for methods.
func (c *checker) member(source, target typesystem.TypeID, method bool) bool {
	if !method || !c.j.opts.MethodBivariance || c.bivariant {
		return c.check(source, target)
	}
	c.bivariant = true
	ok := c.check(source, target)
	c.bivariant = false
	return ok
}
