package evaluator

import (
	"strconv"

	"github.com/hashicorp/go-set/v3"
	"github.com/samber/lo"

	"github.com/funvibe/tsolve/internal/typesystem"
)

// indexAccess reduces `obj[idx]` for evaluated operands.
func (st *evalState) indexAccess(obj, idx typesystem.TypeID) typesystem.TypeID {
	in := st.in
	switch {
	case obj == typesystem.TypeAny || idx == typesystem.TypeAny:
		return typesystem.TypeAny
	case obj == typesystem.TypeError || idx == typesystem.TypeError:
		return typesystem.TypeError
	case obj == typesystem.TypeNever || idx == typesystem.TypeNever:
		return typesystem.TypeNever
	}
	if members := in.UnionMembers(idx); len(members) > 1 {
		return st.distribute(members, func(m typesystem.TypeID) typesystem.TypeID { return st.indexAccess(obj, m) })
	}
	if members := in.UnionMembers(obj); len(members) > 1 {
		return st.distribute(members, func(m typesystem.TypeID) typesystem.TypeID { return st.indexAccess(m, idx) })
	}
	if st.hasFreeParams(obj) || st.hasFreeParams(idx) {
		return in.IndexAccess(obj, idx)
	}

	switch k := in.Key(obj).(type) {
	case typesystem.Object, typesystem.ObjectWithIndex:
		shape, _ := in.ObjectShapeOf(obj)
		return st.memberAccess(shape.Properties, shape.StringIndex, shape.NumberIndex, idx)
	case typesystem.Callable:
		shape := in.CallableShape(k.Shape)
		return st.memberAccess(shape.Properties, shape.StringIndex, shape.NumberIndex, idx)
	case typesystem.Array:
		if isNumberKey(in, idx) {
			return st.unchecked(k.Elem)
		}
		if isName(in, idx, "length") {
			return typesystem.TypeNumber
		}
	case typesystem.ReadonlyType:
		return st.indexAccess(k.Inner, idx)
	case typesystem.Tuple:
		return st.tupleAccess(in.TupleElements(k.Elems), idx)
	case typesystem.Intersection:
		var found []typesystem.TypeID
		for _, m := range in.TypeList(k.Members) {
			if r := st.indexAccess(st.eval(m), idx); r != typesystem.TypeError {
				found = append(found, r)
			}
		}
		if len(found) > 0 {
			return in.Intersection(found)
		}
	case typesystem.Intrinsic, typesystem.Literal, typesystem.TemplateLiteral:
		if in.PrimitiveClassOf(obj) == typesystem.ClassString {
			if isName(in, idx, "length") {
				return typesystem.TypeNumber
			}
			if isNumberKey(in, idx) {
				return st.unchecked(typesystem.TypeString)
			}
		}
	}
	return typesystem.TypeError
}

func (st *evalState) distribute(members []typesystem.TypeID, f func(typesystem.TypeID) typesystem.TypeID) typesystem.TypeID {
	out := make([]typesystem.TypeID, 0, len(members))
	for _, m := range members {
		r := f(m)
		if r == typesystem.TypeError {
			return typesystem.TypeError
		}
		out = append(out, r)
	}
	return st.in.Union(out)
}

// unchecked adds undefined to an index signature result when unchecked
// indexed access is disabled.
func (st *evalState) unchecked(id typesystem.TypeID) typesystem.TypeID {
	if st.e.noUncheckedAccess {
		return st.in.Union2(id, typesystem.TypeUndefined)
	}
	return id
}

func (st *evalState) memberAccess(props []typesystem.PropertyInfo, str, num *typesystem.IndexSignature, idx typesystem.TypeID) typesystem.TypeID {
	in := st.in
	if name, ok := keyName(in, idx); ok {
		for _, p := range props {
			if p.Name != name {
				continue
			}
			if p.Optional {
				return in.Union2(p.Type, typesystem.TypeUndefined)
			}
			return p.Type
		}
		if num != nil && isNumericName(name) {
			return st.unchecked(num.Value)
		}
		if str != nil {
			return st.unchecked(str.Value)
		}
		return typesystem.TypeError
	}
	switch idx {
	case typesystem.TypeNumber:
		if num != nil {
			return st.unchecked(num.Value)
		}
		if str != nil {
			return st.unchecked(str.Value)
		}
	case typesystem.TypeString:
		if str != nil {
			return st.unchecked(str.Value)
		}
	}
	return typesystem.TypeError
}

func (st *evalState) tupleAccess(elems []typesystem.TupleElement, idx typesystem.TypeID) typesystem.TypeID {
	in := st.in
	restElem := func(e typesystem.TupleElement) typesystem.TypeID {
		if arr, ok := in.Key(e.Type).(typesystem.Array); ok {
			return arr.Elem
		}
		return e.Type
	}
	if isName(in, idx, "length") {
		fixed := true
		lengths := make([]typesystem.TypeID, 0, len(elems)+1)
		required := 0
		for _, e := range elems {
			if e.Rest {
				fixed = false
				break
			}
			if !e.Optional {
				required++
			}
		}
		if !fixed {
			return typesystem.TypeNumber
		}
		for n := required; n <= len(elems); n++ {
			lengths = append(lengths, in.LiteralNumber(float64(n)))
		}
		return in.Union(lengths)
	}
	if name, ok := keyName(in, idx); ok {
		i, err := strconv.Atoi(name)
		if err != nil || i < 0 {
			return typesystem.TypeError
		}
		if i < len(elems) && !elems[i].Rest {
			if elems[i].Optional {
				return in.Union2(elems[i].Type, typesystem.TypeUndefined)
			}
			return elems[i].Type
		}
		for _, e := range elems {
			if e.Rest {
				return st.unchecked(restElem(e))
			}
		}
		return typesystem.TypeError
	}
	if idx == typesystem.TypeNumber {
		types := make([]typesystem.TypeID, 0, len(elems))
		for _, e := range elems {
			if e.Rest {
				types = append(types, restElem(e))
				continue
			}
			types = append(types, e.Type)
		}
		return in.Union(types)
	}
	return typesystem.TypeError
}

// keyOf reduces `keyof t` for an evaluated operand.
func (st *evalState) keyOf(t typesystem.TypeID) typesystem.TypeID {
	in := st.in
	propertyKey := func() typesystem.TypeID {
		return in.Union([]typesystem.TypeID{typesystem.TypeString, typesystem.TypeNumber, typesystem.TypeSymbol})
	}
	switch t {
	case typesystem.TypeAny, typesystem.TypeNever:
		return propertyKey()
	case typesystem.TypeUnknown, typesystem.TypeError:
		return typesystem.TypeNever
	}
	if st.hasFreeParams(t) {
		return in.KeyOf(t)
	}

	switch k := in.Key(t).(type) {
	case typesystem.Union:
		parts := make([]typesystem.TypeID, 0)
		for _, m := range in.TypeList(k.Members) {
			parts = append(parts, st.keyOf(st.eval(m)))
		}
		return commonKeys(in, parts)
	case typesystem.Intersection:
		parts := make([]typesystem.TypeID, 0)
		for _, m := range in.TypeList(k.Members) {
			parts = append(parts, st.keyOf(st.eval(m)))
		}
		return in.Union(parts)
	case typesystem.Object, typesystem.ObjectWithIndex:
		shape, _ := in.ObjectShapeOf(t)
		return st.keysOf(shape.Properties, shape.StringIndex, shape.NumberIndex)
	case typesystem.Callable:
		shape := in.CallableShape(k.Shape)
		return st.keysOf(shape.Properties, shape.StringIndex, shape.NumberIndex)
	case typesystem.Array:
		return in.Union2(typesystem.TypeNumber, in.LiteralString("length"))
	case typesystem.ReadonlyType:
		return st.keyOf(k.Inner)
	case typesystem.Tuple:
		elems := in.TupleElements(k.Elems)
		keys := []typesystem.TypeID{typesystem.TypeNumber, in.LiteralString("length")}
		for i, e := range elems {
			if e.Rest {
				break
			}
			keys = append(keys, in.LiteralString(strconv.Itoa(i)))
		}
		return in.Union(keys)
	case typesystem.Enum:
		return st.keyOf(k.Members)
	}
	if in.PrimitiveClassOf(t) == typesystem.ClassString {
		return in.Union2(typesystem.TypeNumber, in.LiteralString("length"))
	}
	return typesystem.TypeNever
}

// commonKeys intersects key unions: a key survives when every part holds
// it or its primitive.
func commonKeys(in *typesystem.Interner, parts []typesystem.TypeID) typesystem.TypeID {
	holds := func(keys, k typesystem.TypeID) bool {
		members := in.UnionMembers(keys)
		return lo.Contains(members, k) || lo.Contains(members, in.PrimitiveOf(k))
	}
	acc := parts[0]
	for _, p := range parts[1:] {
		var keep []typesystem.TypeID
		keep = append(keep, lo.Filter(in.UnionMembers(acc), func(k typesystem.TypeID, _ int) bool { return holds(p, k) })...)
		keep = append(keep, lo.Filter(in.UnionMembers(p), func(k typesystem.TypeID, _ int) bool { return holds(acc, k) })...)
		acc = in.Union(keep)
	}
	return acc
}

// keysOf collects the key union of a member list. Integer names become
// number literals.
func (st *evalState) keysOf(props []typesystem.PropertyInfo, str, num *typesystem.IndexSignature) typesystem.TypeID {
	in := st.in
	keys := set.New[typesystem.TypeID](len(props) + 2)
	for _, p := range props {
		if n, err := strconv.Atoi(p.Name); err == nil && strconv.Itoa(n) == p.Name {
			keys.Insert(in.LiteralNumber(float64(n)))
			continue
		}
		keys.Insert(in.LiteralString(p.Name))
	}
	if str != nil {
		keys.Insert(typesystem.TypeString)
		keys.Insert(typesystem.TypeNumber)
	}
	if num != nil {
		keys.Insert(typesystem.TypeNumber)
	}
	return in.Union(keys.Slice())
}

// keyName returns the property name a string or number literal key selects.
func keyName(in *typesystem.Interner, idx typesystem.TypeID) (string, bool) {
	lit, ok := in.LiteralOf(idx)
	if !ok || (lit.Kind != typesystem.LitString && lit.Kind != typesystem.LitNumber) {
		return "", false
	}
	return lit.Text(), true
}

func isName(in *typesystem.Interner, idx typesystem.TypeID, name string) bool {
	n, ok := keyName(in, idx)
	return ok && n == name
}

func isNumberKey(in *typesystem.Interner, idx typesystem.TypeID) bool {
	if idx == typesystem.TypeNumber {
		return true
	}
	lit, ok := in.LiteralOf(idx)
	return ok && lit.Kind == typesystem.LitNumber
}

func isNumericName(name string) bool {
	_, err := strconv.ParseFloat(name, 64)
	return err == nil
}

// stringIntrinsic applies Uppercase, Lowercase, Capitalize or Uncapitalize
// to an evaluated argument.
func (st *evalState) stringIntrinsic(kind typesystem.StringIntrinsicKind, arg typesystem.TypeID) typesystem.TypeID {
	in := st.in
	switch arg {
	case typesystem.TypeAny, typesystem.TypeNever, typesystem.TypeError:
		return arg
	}
	switch k := in.Key(arg).(type) {
	case typesystem.Union:
		out := make([]typesystem.TypeID, 0)
		for _, m := range in.TypeList(k.Members) {
			out = append(out, st.stringIntrinsic(kind, m))
		}
		return in.Union(out)
	case typesystem.Literal:
		if k.Value.Kind == typesystem.LitString {
			return in.LiteralString(typesystem.ApplyStringIntrinsic(kind, k.Value.Str))
		}
	case typesystem.TemplateLiteral:
		spans := in.TemplateSpans(k.Spans)
		out := make([]typesystem.TemplateSpan, len(spans))
		for i, s := range spans {
			out[i] = s
			whole := kind == typesystem.Uppercase || kind == typesystem.Lowercase
			if !whole && i > 0 {
				continue
			}
			if s.IsText() {
				out[i].Text = typesystem.ApplyStringIntrinsic(kind, s.Text)
			} else {
				out[i].Type = in.StringIntrinsic(kind, s.Type)
			}
		}
		return in.TemplateLiteral(out)
	}
	return in.StringIntrinsic(kind, arg)
}
