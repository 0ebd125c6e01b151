package evaluator

import (
	"strconv"

	"github.com/funvibe/tsolve/internal/typesystem"
)

func applyModifier(m typesystem.MappedModifier, current bool) bool {
	switch m {
	case typesystem.ModifierAdd:
		return true
	case typesystem.ModifierRemove:
		return false
	}
	return current
}

// mapped expands `{ [P in K as N]: T }` over the evaluated key union.
// A constraint of the form `keyof S` makes the type homomorphic: the
// modifiers of S are preserved and arrays and tuples map element-wise.
func (st *evalState) mapped(id typesystem.TypeID, m *typesystem.MappedType) typesystem.TypeID {
	in := st.in

	source := typesystem.TypeNone
	if ko, ok := in.Key(m.Constraint).(typesystem.KeyOf); ok {
		source = st.eval(ko.Inner)
		if st.hasFreeParams(source) {
			return id
		}
		if r, ok := st.mappedArray(m, source); ok {
			return r
		}
	}

	constraint := st.eval(m.Constraint)
	if st.hasFreeParams(constraint) {
		return id
	}

	var sourceShape *typesystem.ObjectShape
	if source != typesystem.TypeNone {
		sourceShape, _ = in.ObjectShapeOf(source)
	}

	var shape typesystem.ObjectShape
	for _, key := range in.UnionMembers(constraint) {
		if key == typesystem.TypeNever {
			continue
		}
		subst := typesystem.Substitution{m.Param.Name: key}
		names := []typesystem.TypeID{key}
		if m.NameType != typesystem.TypeNone {
			names = in.UnionMembers(st.eval(st.e.instantiate(m.NameType, subst, st.depth)))
		}
		value := st.eval(st.e.instantiate(m.Template, subst, st.depth))

		for _, name := range names {
			switch name {
			case typesystem.TypeNever:
				continue
			case typesystem.TypeString:
				shape.StringIndex = &typesystem.IndexSignature{
					Key:      typesystem.TypeString,
					Value:    value,
					Readonly: m.Readonly == typesystem.ModifierAdd,
				}
				continue
			case typesystem.TypeNumber:
				shape.NumberIndex = &typesystem.IndexSignature{
					Key:      typesystem.TypeNumber,
					Value:    value,
					Readonly: m.Readonly == typesystem.ModifierAdd,
				}
				continue
			}
			lit, ok := in.LiteralOf(name)
			if !ok || (lit.Kind != typesystem.LitString && lit.Kind != typesystem.LitNumber) {
				continue
			}
			prop := typesystem.PropertyInfo{Name: lit.Text(), Type: value}
			if sourceShape != nil {
				if sp, ok := sourceShape.Property(prop.Name); ok {
					prop.Optional, prop.Readonly = sp.Optional, sp.Readonly
				}
			}
			wasOptional := prop.Optional
			prop.Optional = applyModifier(m.Optional, prop.Optional)
			prop.Readonly = applyModifier(m.Readonly, prop.Readonly)
			if wasOptional && m.Optional == typesystem.ModifierRemove {
				prop.Type = removeUndefined(in, prop.Type)
			}
			shape.Properties = append(shape.Properties, prop)
		}
	}
	return in.ObjectWithShape(shape)
}

// mappedArray maps a homomorphic mapped type over an array or tuple
// source element-wise.
func (st *evalState) mappedArray(m *typesystem.MappedType, source typesystem.TypeID) (typesystem.TypeID, bool) {
	in := st.in
	readonly := false
	inner := source
	if r, ok := in.Key(source).(typesystem.ReadonlyType); ok {
		readonly, inner = true, r.Inner
	}
	element := func(key typesystem.TypeID) typesystem.TypeID {
		return st.eval(st.e.instantiate(m.Template, typesystem.Substitution{m.Param.Name: key}, st.depth))
	}

	var result typesystem.TypeID
	switch k := in.Key(inner).(type) {
	case typesystem.Array:
		result = in.Array(element(typesystem.TypeNumber))
	case typesystem.Tuple:
		elems := in.TupleElements(k.Elems)
		out := make([]typesystem.TupleElement, len(elems))
		for i, e := range elems {
			out[i] = e
			if e.Rest {
				out[i].Type = in.Array(element(typesystem.TypeNumber))
				continue
			}
			out[i].Type = element(in.LiteralString(strconv.Itoa(i)))
			wasOptional := e.Optional
			out[i].Optional = applyModifier(m.Optional, e.Optional)
			if wasOptional && m.Optional == typesystem.ModifierRemove {
				out[i].Type = removeUndefined(in, out[i].Type)
			}
		}
		result = in.Tuple(out)
	default:
		return typesystem.TypeNone, false
	}
	if applyModifier(m.Readonly, readonly) {
		result = in.Readonly(result)
	}
	return result, true
}

func removeUndefined(in *typesystem.Interner, id typesystem.TypeID) typesystem.TypeID {
	members := in.UnionMembers(id)
	out := make([]typesystem.TypeID, 0, len(members))
	for _, m := range members {
		if m != typesystem.TypeUndefined {
			out = append(out, m)
		}
	}
	if len(out) == len(members) {
		return id
	}
	return in.Union(out)
}
