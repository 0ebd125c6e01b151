package relation

import "github.com/funvibe/tsolve/internal/typesystem"

// signaturesOf splits the call and construct signatures of id.
func (c *checker) signaturesOf(id typesystem.TypeID) (calls, constructs []typesystem.FunctionShape, ok bool) {
	switch k := c.in.Key(id).(type) {
	case typesystem.Function:
		sig := c.in.FunctionShape(k.Shape)
		if sig.IsConstructor {
			return nil, []typesystem.FunctionShape{*sig}, true
		}
		return []typesystem.FunctionShape{*sig}, nil, true
	case typesystem.Callable:
		shape := c.in.CallableShape(k.Shape)
		return shape.CallSignatures, shape.ConstructSignatures, true
	case typesystem.Intersection:
		for _, m := range c.in.TypeList(k.Members) {
			mc, mk, mok := c.signaturesOf(c.unalias(m))
			if mok {
				calls = append(calls, mc...)
				constructs = append(constructs, mk...)
				ok = true
			}
		}
		return calls, constructs, ok
	case typesystem.TypeParam:
		if k.Info.Constraint != typesystem.TypeNone {
			return c.signaturesOf(k.Info.Constraint)
		}
	}
	return nil, nil, false
}

// toSignatures checks that every signature of b is matched by one of a.
func (c *checker) toSignatures(a, b typesystem.TypeID) bool {
	tCalls, tCons, _ := c.signaturesOf(b)
	if len(tCalls)+len(tCons) == 0 {
		return true
	}
	sCalls, sCons, ok := c.signaturesOf(a)
	if !ok {
		return c.fail(TypeMismatch, a, b, "")
	}
	for i := range tCalls {
		if !c.someSignature(a, b, sCalls, &tCalls[i]) {
			return false
		}
	}
	for i := range tCons {
		if !c.someSignature(a, b, sCons, &tCons[i]) {
			return false
		}
	}
	return true
}

func (c *checker) someSignature(a, b typesystem.TypeID, sources []typesystem.FunctionShape, target *typesystem.FunctionShape) bool {
	if len(sources) == 0 {
		return c.fail(TypeMismatch, a, b, "")
	}
	saved := c.reason
	for i := range sources {
		if c.signature(a, b, &sources[i], target) {
			c.reason = saved
			return true
		}
	}
	return false
}

// paramType returns the type accepted at argument position i.
func (c *checker) paramType(f *typesystem.FunctionShape, i int) (typesystem.TypeID, bool) {
	fixed := len(f.Params)
	if f.HasRest() {
		fixed--
	}
	if i < fixed {
		return f.Params[i].Type, true
	}
	if !f.HasRest() {
		return typesystem.TypeNone, false
	}
	rest := f.Params[len(f.Params)-1].Type
	if r, ok := c.in.Key(rest).(typesystem.ReadonlyType); ok {
		rest = r.Inner
	}
	switch k := c.in.Key(rest).(type) {
	case typesystem.Array:
		return k.Elem, true
	case typesystem.Tuple:
		elems := c.in.TupleElements(k.Elems)
		j := i - fixed
		if j < len(elems) && !elems[j].Rest {
			return elems[j].Type, true
		}
		if n := len(elems); n > 0 && elems[n-1].Rest {
			return c.elementType(elems[n-1]), true
		}
		return typesystem.TypeNone, false
	}
	return rest, true
}

// arity counts the positions a signature declares, expanding a tuple rest.
func (c *checker) arity(f *typesystem.FunctionShape) (n int, unbounded bool) {
	n = len(f.Params)
	if !f.HasRest() {
		return n, false
	}
	n--
	rest := f.Params[len(f.Params)-1].Type
	if t, ok := c.in.Key(rest).(typesystem.Tuple); ok {
		elems := c.in.TupleElements(t.Elems)
		if restIndex(elems) < 0 {
			return n + len(elems), false
		}
	}
	return n, true
}

func paramIndex(f *typesystem.FunctionShape, name string) int {
	if name == "" {
		return -1
	}
	for i, p := range f.Params {
		if p.Name == name {
			return i
		}
	}
	return -2
}

func (c *checker) param(source, target typesystem.TypeID, bivariant bool) bool {
	saved := c.reason
	if c.check(target, source) {
		return true
	}
	if bivariant && c.check(source, target) {
		c.reason = saved
		return true
	}
	return false
}

func (c *checker) signature(a, b typesystem.TypeID, s, t *typesystem.FunctionShape) bool {
	opts := &c.j.opts
	if len(s.TypeParams) > 0 {
		s = c.instantiateSignature(s, t)
	}

	sRequired := s.RequiredParams()
	tArity, tUnbounded := c.arity(t)
	if sRequired > tArity && !tUnbounded {
		return c.fail(ParamCount, a, b, "")
	}

	bivariant := !opts.StrictFunctionTypes || (opts.MethodBivariance && (c.bivariant || t.IsMethod || s.IsMethod))
	outer := c.bivariant
	c.bivariant = false
	defer func() { c.bivariant = outer }()
	sArity, _ := c.arity(s)
	positions := max(sArity, tArity)
	for i := 0; i < positions; i++ {
		sp, sok := c.paramType(s, i)
		tp, tok := c.paramType(t, i)
		if !sok || !tok {
			continue
		}
		if !c.param(sp, tp, bivariant) {
			return false
		}
	}
	if s.HasRest() && t.HasRest() {
		sr, _ := c.paramType(s, positions)
		tr, _ := c.paramType(t, positions)
		if sr != typesystem.TypeNone && tr != typesystem.TypeNone &&
			!c.param(sr, tr, bivariant || opts.AllowBivariantRest) {
			return false
		}
	}
	if s.This != typesystem.TypeNone && t.This != typesystem.TypeNone {
		if !c.param(s.This, t.This, bivariant) {
			return false
		}
	}

	if sp, tp := s.Predicate, t.Predicate; sp != nil && tp != nil {
		si, ti := paramIndex(s, sp.ParamName), paramIndex(t, tp.ParamName)
		if sp.Asserts != tp.Asserts || si != ti || (si == -2 && sp.ParamName != tp.ParamName) {
			return c.fail(TypeMismatch, a, b, "")
		}
		if sp.Type != typesystem.TypeNone && tp.Type != typesystem.TypeNone {
			return c.check(sp.Type, tp.Type)
		}
		return true
	}

	if t.Return == typesystem.TypeVoid && opts.AllowVoidReturn {
		return true
	}
	return c.check(s.Return, t.Return)
}

// instantiateSignature infers the type arguments of a generic source
// signature from the target signature. Parameters that infer nothing fall
// back to their constraint, or unknown.
func (c *checker) instantiateSignature(s, t *typesystem.FunctionShape) *typesystem.FunctionShape {
	in := c.in
	plain := *s
	plain.TypeParams = nil
	if c.j.eval == nil {
		return &plain
	}
	params := make([]typesystem.TypeID, len(s.TypeParams))
	for i, tp := range s.TypeParams {
		params[i] = in.TypeParam(tp)
	}
	pattern := in.Function(plain)
	target := *t
	target.TypeParams = nil
	bindings, _ := in.MatchTypeParams(in.Function(target), pattern, params, c.j.resolver)

	subst := make(typesystem.Substitution, len(s.TypeParams))
	for i, tp := range s.TypeParams {
		switch b, ok := bindings[params[i]]; {
		case ok:
			subst[tp.Name] = b
		case tp.Constraint != typesystem.TypeNone:
			subst[tp.Name] = tp.Constraint
		default:
			subst[tp.Name] = typesystem.TypeUnknown
		}
	}
	inst := c.j.eval.Instantiate(pattern, subst)
	if f, ok := in.Key(inst).(typesystem.Function); ok {
		return in.FunctionShape(f.Shape)
	}
	return &plain
}
