package inference

import (
	"github.com/hashicorp/go-set/v3"

	"github.com/funvibe/tsolve/internal/typesystem"
)

type site struct {
	source, target typesystem.TypeID
	contra         bool
}

// walker carries the state of one InferFromTypes call.
type walker struct {
	c    *Context
	in   *typesystem.Interner
	seen *set.Set[site]
}

// InferFromTypes walks target alongside source and records a candidate
// for every registered type parameter it meets in target.
func (c *Context) InferFromTypes(source, target typesystem.TypeID, priority Priority) {
	w := &walker{c: c, in: c.in, seen: set.New[site](0)}
	w.infer(source, target, priority, false)
}

func worse(a, b Priority) Priority {
	if a > b {
		return a
	}
	return b
}

func (w *walker) infer(source, target typesystem.TypeID, p Priority, contra bool) {
	if source == target || source == typesystem.TypeError {
		return
	}
	key := site{source, target, contra}
	if w.seen.Contains(key) {
		return
	}
	w.seen.Insert(key)
	defer w.seen.Remove(key)

	in := w.in
	if v, ok := w.c.variableOf(target); ok {
		w.c.addCandidate(v, source, p, contra)
		return
	}
	if !w.mentionsVariable(target) {
		return
	}

	if su, ok := in.Key(source).(typesystem.Union); ok {
		if _, targetUnion := in.Key(target).(typesystem.Union); !targetUnion {
			for _, m := range in.TypeList(su.Members) {
				w.infer(m, target, p, contra)
			}
			return
		}
	}

	switch tk := in.Key(target).(type) {
	case typesystem.Union:
		w.toUnion(source, in.TypeList(tk.Members), p, contra)
	case typesystem.Intersection:
		for _, m := range in.TypeList(tk.Members) {
			w.infer(source, m, p, contra)
		}
	case typesystem.Array:
		if elem, ok := w.elementOf(source); ok {
			w.infer(elem, tk.Elem, p, contra)
		}
	case typesystem.ReadonlyType:
		inner := source
		if r, ok := in.Key(source).(typesystem.ReadonlyType); ok {
			inner = r.Inner
		}
		w.infer(inner, tk.Inner, p, contra)
	case typesystem.Tuple:
		w.toTuple(source, in.TupleElements(tk.Elems), p, contra)
	case typesystem.Object, typesystem.ObjectWithIndex:
		shape, _ := in.ObjectShapeOf(target)
		w.toMembers(source, shape.Properties, shape.StringIndex, shape.NumberIndex, p, contra)
	case typesystem.Callable:
		shape := in.CallableShape(tk.Shape)
		if sig := w.lastSignature(source, false); sig != nil && len(shape.CallSignatures) > 0 {
			w.signature(sig, &shape.CallSignatures[len(shape.CallSignatures)-1], p, contra)
		}
		if sig := w.lastSignature(source, true); sig != nil && len(shape.ConstructSignatures) > 0 {
			w.signature(sig, &shape.ConstructSignatures[len(shape.ConstructSignatures)-1], p, contra)
		}
		w.toMembers(source, shape.Properties, shape.StringIndex, shape.NumberIndex, p, contra)
	case typesystem.Function:
		t := in.FunctionShape(tk.Shape)
		if s := w.lastSignature(source, t.IsConstructor); s != nil {
			w.signature(s, t, p, contra)
		}
	case typesystem.Application:
		if sa, ok := in.Key(source).(typesystem.Application); ok {
			as, at := in.TypeApplication(sa.App), in.TypeApplication(tk.App)
			if as.Base == at.Base && len(as.Args) == len(at.Args) {
				for i := range at.Args {
					w.infer(as.Args[i], at.Args[i], p, contra)
				}
			}
		}
	case typesystem.Mapped:
		w.toMapped(source, in.MappedType(tk.Mapped), p, contra)
	case typesystem.KeyOf:
		if sk, ok := in.Key(source).(typesystem.KeyOf); ok {
			w.infer(sk.Inner, tk.Inner, p, !contra)
		}
	case typesystem.TemplateLiteral, typesystem.StringIntrinsic, typesystem.IndexAccess:
		w.byPattern(source, target, p, contra)
	}
}

// mentionsVariable reports whether id mentions any registered variable.
func (w *walker) mentionsVariable(id typesystem.TypeID) bool {
	seen := make(map[typesystem.TypeID]bool)
	var walk func(typesystem.TypeID) bool
	walk = func(t typesystem.TypeID) bool {
		if t.IsBuiltin() || seen[t] {
			return false
		}
		seen[t] = true
		if _, ok := w.c.variableOf(t); ok {
			return true
		}
		found := false
		w.in.ForEachChild(t, func(child typesystem.TypeID) bool {
			found = walk(child)
			return !found
		})
		return found
	}
	return walk(id)
}

// toUnion infers into a union target. Source members that equal a fixed
// target member are matched off; the remainder goes to the naked
// variables of the union at naked-variable priority.
func (w *walker) toUnion(source typesystem.TypeID, targets []typesystem.TypeID, p Priority, contra bool) {
	in := w.in
	var naked []*Variable
	var fixed []typesystem.TypeID
	for _, t := range targets {
		if v, ok := w.c.variableOf(t); ok {
			naked = append(naked, v)
			continue
		}
		fixed = append(fixed, t)
	}

	var rest []typesystem.TypeID
	for _, s := range in.UnionMembers(source) {
		matched := false
		for _, f := range fixed {
			if s == f {
				matched = true
				break
			}
		}
		if !matched {
			rest = append(rest, s)
		}
	}
	for _, f := range fixed {
		if w.mentionsVariable(f) {
			for _, s := range rest {
				w.infer(s, f, p, contra)
			}
		}
	}
	if len(naked) == 1 && len(rest) > 0 {
		w.c.addCandidate(naked[0], in.Union(rest), worse(p, PriorityNakedTypeVariable), contra)
	}
}

func (w *walker) elementOf(source typesystem.TypeID) (typesystem.TypeID, bool) {
	in := w.in
	switch k := in.Key(source).(type) {
	case typesystem.Array:
		return k.Elem, true
	case typesystem.ReadonlyType:
		return w.elementOf(k.Inner)
	case typesystem.Tuple:
		elems := in.TupleElements(k.Elems)
		types := make([]typesystem.TypeID, 0, len(elems))
		for _, e := range elems {
			if e.Rest {
				if elem, ok := w.elementOf(e.Type); ok {
					types = append(types, elem)
				}
				continue
			}
			types = append(types, e.Type)
		}
		return in.Union(types), true
	}
	return typesystem.TypeNone, false
}

func (w *walker) toTuple(source typesystem.TypeID, target []typesystem.TupleElement, p Priority, contra bool) {
	in := w.in
	if r, ok := in.Key(source).(typesystem.ReadonlyType); ok {
		source = r.Inner
	}
	switch k := in.Key(source).(type) {
	case typesystem.Tuple:
		src := in.TupleElements(k.Elems)
		for i, t := range target {
			if t.Rest {
				// A rest slot collects the remaining source elements as a tuple.
				if i <= len(src) {
					tail := append([]typesystem.TupleElement(nil), src[i:]...)
					w.infer(in.Tuple(tail), t.Type, p, contra)
				}
				return
			}
			if i >= len(src) {
				return
			}
			w.infer(src[i].Type, t.Type, p, contra)
		}
	case typesystem.Array:
		for _, t := range target {
			if t.Rest {
				w.infer(source, t.Type, p, contra)
				continue
			}
			w.infer(k.Elem, t.Type, p, contra)
		}
	}
}

// memberOf finds a named member of source, looking through intersections.
func (w *walker) memberOf(source typesystem.TypeID, name string) (typesystem.PropertyInfo, bool) {
	in := w.in
	if props, ok := in.PropertiesOf(source); ok {
		for _, prop := range props {
			if prop.Name == name {
				return prop, true
			}
		}
		return typesystem.PropertyInfo{}, false
	}
	if x, ok := in.Key(source).(typesystem.Intersection); ok {
		for _, m := range in.TypeList(x.Members) {
			if prop, ok := w.memberOf(m, name); ok {
				return prop, true
			}
		}
	}
	return typesystem.PropertyInfo{}, false
}

func (w *walker) indexOf(source typesystem.TypeID, number bool) *typesystem.IndexSignature {
	in := w.in
	var str, num *typesystem.IndexSignature
	switch k := in.Key(source).(type) {
	case typesystem.Object, typesystem.ObjectWithIndex:
		shape, _ := in.ObjectShapeOf(source)
		str, num = shape.StringIndex, shape.NumberIndex
	case typesystem.Callable:
		shape := in.CallableShape(k.Shape)
		str, num = shape.StringIndex, shape.NumberIndex
	}
	if number && num != nil {
		return num
	}
	return str
}

func (w *walker) toMembers(source typesystem.TypeID, props []typesystem.PropertyInfo, str, num *typesystem.IndexSignature, p Priority, contra bool) {
	for _, t := range props {
		if s, ok := w.memberOf(source, t.Name); ok {
			w.infer(s.Type, t.Type, p, contra)
		}
	}
	collect := func() []typesystem.TypeID {
		var values []typesystem.TypeID
		if ps, ok := w.in.PropertiesOf(source); ok {
			for _, prop := range ps {
				values = append(values, prop.Type)
			}
		}
		return values
	}
	if str != nil {
		values := collect()
		if idx := w.indexOf(source, false); idx != nil {
			values = append(values, idx.Value)
		}
		if len(values) > 0 {
			w.infer(w.in.Union(values), str.Value, p, contra)
		}
	}
	if num != nil {
		if idx := w.indexOf(source, true); idx != nil {
			w.infer(idx.Value, num.Value, p, contra)
		}
	}
}

// lastSignature picks the signature inference reads from an overloaded
// source: the last one, as the most general.
func (w *walker) lastSignature(source typesystem.TypeID, construct bool) *typesystem.FunctionShape {
	in := w.in
	switch k := in.Key(source).(type) {
	case typesystem.Function:
		f := in.FunctionShape(k.Shape)
		if f.IsConstructor == construct {
			return f
		}
	case typesystem.Callable:
		shape := in.CallableShape(k.Shape)
		sigs := shape.CallSignatures
		if construct {
			sigs = shape.ConstructSignatures
		}
		if len(sigs) > 0 {
			return &sigs[len(sigs)-1]
		}
	}
	return nil
}

func paramTypeAt(in *typesystem.Interner, f *typesystem.FunctionShape, i int) (typesystem.TypeID, bool) {
	if i < len(f.Params) && !f.Params[i].Rest {
		return f.Params[i].Type, true
	}
	if !f.HasRest() {
		return typesystem.TypeNone, false
	}
	rest := f.Params[len(f.Params)-1].Type
	if arr, ok := in.Key(rest).(typesystem.Array); ok {
		return arr.Elem, true
	}
	return typesystem.TypeNone, false
}

// signature infers parameters contravariantly and the return type
// covariantly. A predicate in the source contributes its type at
// type-predicate priority.
func (w *walker) signature(s, t *typesystem.FunctionShape, p Priority, contra bool) {
	in := w.in
	for i, tp := range t.Params {
		if tp.Rest {
			if i <= len(s.Params) {
				var elems []typesystem.TupleElement
				for _, sp := range s.Params[i:] {
					elems = append(elems, typesystem.TupleElement{Type: sp.Type, Optional: sp.Optional, Rest: sp.Rest})
				}
				if _, isTuple := in.Key(tp.Type).(typesystem.Tuple); isTuple {
					w.infer(in.Tuple(elems), tp.Type, p, !contra)
					continue
				}
			}
			if st, ok := paramTypeAt(in, s, i); ok {
				if arr, ok := in.Key(tp.Type).(typesystem.Array); ok {
					w.infer(st, arr.Elem, p, !contra)
				}
			}
			continue
		}
		if st, ok := paramTypeAt(in, s, i); ok {
			w.infer(st, tp.Type, p, !contra)
		}
	}
	if s.This != typesystem.TypeNone && t.This != typesystem.TypeNone {
		w.infer(s.This, t.This, p, !contra)
	}
	if s.Predicate != nil && t.Predicate != nil &&
		s.Predicate.Type != typesystem.TypeNone && t.Predicate.Type != typesystem.TypeNone {
		w.infer(s.Predicate.Type, t.Predicate.Type, PriorityTypePredicate, contra)
	}
	w.infer(s.Return, t.Return, p, contra)
}

// toMapped infers through a homomorphic mapped target `{ [K in keyof T]: X }`:
// the source itself is a candidate for T.
func (w *walker) toMapped(source typesystem.TypeID, m *typesystem.MappedType, p Priority, contra bool) {
	in := w.in
	ko, ok := in.Key(m.Constraint).(typesystem.KeyOf)
	if !ok {
		if v, ok := w.c.variableOf(m.Constraint); ok {
			// { [K in T]: X }: T receives the source's key names.
			if props, ok := in.PropertiesOf(source); ok {
				keys := make([]typesystem.TypeID, 0, len(props))
				for _, prop := range props {
					keys = append(keys, in.LiteralString(prop.Name))
				}
				w.c.addCandidate(v, in.Union(keys), worse(p, PriorityMappedType), contra)
			}
		}
		return
	}
	if v, ok := w.c.variableOf(ko.Inner); ok {
		w.c.addCandidate(v, source, worse(p, PriorityMappedType), contra)
	}
}

// byPattern handles targets the structural walk cannot take apart, such
// as template literals, by matching with the variables as placeholders.
func (w *walker) byPattern(source, target typesystem.TypeID, p Priority, contra bool) {
	params := make([]typesystem.TypeID, 0, len(w.c.vars))
	for _, v := range w.c.vars {
		params = append(params, v.ID)
	}
	bindings, ok := w.in.MatchTypeParams(source, target, params, w.c.resolver)
	if !ok {
		return
	}
	for id, t := range bindings {
		if v, ok := w.c.variableOf(id); ok {
			w.c.addCandidate(v, t, p, contra)
		}
	}
}
