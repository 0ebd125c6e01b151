package evaluator

import (
	"github.com/hashicorp/go-set/v3"

	"github.com/funvibe/tsolve/internal/typesystem"
)

// Instantiate substitutes type arguments by parameter name throughout id.
// Type parameters declared by a signature or mapped type shadow the outer
// substitution inside it. A distributive conditional whose check type is a
// parameter bound to a union is distributed over the union's members.
//
// Instantiation past the depth limit yields error and sets the
// DepthExceeded flag.
func (e *Evaluator) Instantiate(id typesystem.TypeID, subst typesystem.Substitution) typesystem.TypeID {
	return e.instantiate(id, subst, 0)
}

func (e *Evaluator) instantiate(id typesystem.TypeID, subst typesystem.Substitution, depth int) typesystem.TypeID {
	if len(subst) == 0 {
		return id
	}
	st := &instState{
		e:        e,
		in:       e.in,
		subst:    subst,
		memo:     make(map[typesystem.TypeID]typesystem.TypeID),
		visiting: set.New[typesystem.TypeID](0),
		depth:    depth,
	}
	return st.inst(id)
}

type instState struct {
	e        *Evaluator
	in       *typesystem.Interner
	subst    typesystem.Substitution
	memo     map[typesystem.TypeID]typesystem.TypeID
	visiting *set.Set[typesystem.TypeID]
	depth    int
}

// shadow returns a state whose substitution omits names.
func (st *instState) shadow(names []string) *instState {
	hidden := false
	for _, n := range names {
		if _, ok := st.subst[n]; ok {
			hidden = true
			break
		}
	}
	if !hidden {
		return st
	}
	inner := make(typesystem.Substitution, len(st.subst))
	for k, v := range st.subst {
		inner[k] = v
	}
	for _, n := range names {
		delete(inner, n)
	}
	return &instState{
		e:        st.e,
		in:       st.in,
		subst:    inner,
		memo:     make(map[typesystem.TypeID]typesystem.TypeID),
		visiting: st.visiting,
		depth:    st.depth,
	}
}

func (st *instState) inst(id typesystem.TypeID) typesystem.TypeID {
	if id.IsBuiltin() || len(st.subst) == 0 {
		return id
	}
	if r, ok := st.memo[id]; ok {
		return r
	}
	if st.visiting.Contains(id) || st.depth >= st.e.maxDepth {
		st.e.depthExceeded.Store(true)
		return typesystem.TypeError
	}
	st.visiting.Insert(id)
	st.depth++
	r := st.substitute(id)
	st.depth--
	st.visiting.Remove(id)
	st.memo[id] = r
	return r
}

func (st *instState) substitute(id typesystem.TypeID) typesystem.TypeID {
	in := st.in
	switch k := in.Key(id).(type) {
	case typesystem.TypeParam:
		if r, ok := st.subst[k.Info.Name]; ok {
			return r
		}
		return id
	case typesystem.ThisType:
		if r, ok := st.subst["this"]; ok {
			return r
		}
		return id
	case typesystem.Function:
		f := in.FunctionShape(k.Shape)
		return st.shadow(paramNames(f.TypeParams)).mapChildren(id)
	case typesystem.Callable:
		return st.callable(in.CallableShape(k.Shape))
	case typesystem.Mapped:
		m := in.MappedType(k.Mapped)
		inner := st.shadow([]string{m.Param.Name})
		return in.Mapped(typesystem.MappedType{
			Param:      m.Param,
			Constraint: st.inst(m.Constraint),
			NameType:   inner.inst(m.NameType),
			Template:   inner.inst(m.Template),
			Readonly:   m.Readonly,
			Optional:   m.Optional,
		})
	case typesystem.Conditional:
		return st.conditional(in.ConditionalType(k.Cond))
	}
	return st.mapChildren(id)
}

func (st *instState) mapChildren(id typesystem.TypeID) typesystem.TypeID {
	return st.in.MapChildren(id, st.inst)
}

func paramNames(params []typesystem.TypeParamInfo) []string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	return names
}

func (st *instState) callable(s *typesystem.CallableShape) typesystem.TypeID {
	in := st.in
	sig := func(f *typesystem.FunctionShape) typesystem.FunctionShape {
		inner := st.shadow(paramNames(f.TypeParams))
		id := inner.mapChildren(in.Function(*f))
		return *in.FunctionShape(in.Key(id).(typesystem.Function).Shape)
	}
	props := make([]typesystem.PropertyInfo, len(s.Properties))
	for i, p := range s.Properties {
		props[i] = p
		props[i].Type = st.inst(p.Type)
		if p.WriteType != typesystem.TypeNone {
			props[i].WriteType = st.inst(p.WriteType)
		}
	}
	index := func(sig *typesystem.IndexSignature) *typesystem.IndexSignature {
		if sig == nil {
			return nil
		}
		return &typesystem.IndexSignature{Key: st.inst(sig.Key), Value: st.inst(sig.Value), Readonly: sig.Readonly}
	}
	out := typesystem.CallableShape{
		Properties:  props,
		StringIndex: index(s.StringIndex),
		NumberIndex: index(s.NumberIndex),
		Symbol:      s.Symbol,
	}
	for i := range s.CallSignatures {
		out.CallSignatures = append(out.CallSignatures, sig(&s.CallSignatures[i]))
	}
	for i := range s.ConstructSignatures {
		out.ConstructSignatures = append(out.ConstructSignatures, sig(&s.ConstructSignatures[i]))
	}
	return in.Callable(out)
}

// conditional substitutes into a conditional type, distributing when the
// check type is a naked parameter bound to a union. Infer placeholders
// declared in the extends clause shadow outer names.
func (st *instState) conditional(c *typesystem.ConditionalType) typesystem.TypeID {
	in := st.in
	if c.Distributive {
		if tp, ok := in.Key(c.Check).(typesystem.TypeParam); ok {
			if arg, ok := st.subst[tp.Info.Name]; ok {
				if arg == typesystem.TypeNever {
					return typesystem.TypeNever
				}
				if members := in.UnionMembers(arg); len(members) > 1 {
					out := make([]typesystem.TypeID, 0, len(members))
					for _, m := range members {
						one := make(typesystem.Substitution, len(st.subst))
						for k, v := range st.subst {
							one[k] = v
						}
						one[tp.Info.Name] = m
						out = append(out, st.e.instantiate(in.Conditional(*c), one, st.depth))
					}
					return in.Union(out)
				}
			}
		}
	}
	inner := st.shadow(inferNames(in, c.Extends))
	return in.Conditional(typesystem.ConditionalType{
		Check:        st.inst(c.Check),
		Extends:      inner.inst(c.Extends),
		True:         inner.inst(c.True),
		False:        st.inst(c.False),
		Distributive: c.Distributive,
	})
}

// inferNames lists the infer placeholders declared in an extends clause.
func inferNames(in *typesystem.Interner, id typesystem.TypeID) []string {
	var names []string
	seen := make(map[typesystem.TypeID]bool)
	var walk func(typesystem.TypeID) bool
	walk = func(t typesystem.TypeID) bool {
		if t.IsBuiltin() || seen[t] {
			return true
		}
		seen[t] = true
		if k, ok := in.Key(t).(typesystem.Infer); ok {
			names = append(names, k.Info.Name)
		}
		in.ForEachChild(t, walk)
		return true
	}
	walk(id)
	return names
}
