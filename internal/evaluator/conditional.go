package evaluator

import (
	"github.com/funvibe/tsolve/internal/inference"
	"github.com/funvibe/tsolve/internal/typesystem"
)

// conditional reduces `Check extends Extends ? True : False`.
func (st *evalState) conditional(id typesystem.TypeID, c *typesystem.ConditionalType) typesystem.TypeID {
	in := st.in
	check := st.eval(c.Check)

	if c.Distributive {
		if check == typesystem.TypeNever {
			return typesystem.TypeNever
		}
		if members := in.UnionMembers(check); len(members) > 1 {
			out := make([]typesystem.TypeID, 0, len(members))
			for _, m := range members {
				out = append(out, st.eval(in.Conditional(typesystem.ConditionalType{
					Check:   m,
					Extends: c.Extends,
					True:    c.True,
					False:   c.False,
				})))
			}
			return in.Union(out)
		}
	}

	extends := st.eval(c.Extends)
	if check == typesystem.TypeAny {
		if extends == typesystem.TypeAny || extends == typesystem.TypeUnknown {
			return st.eval(c.True)
		}
		return in.Union2(st.eval(c.True), st.eval(c.False))
	}

	deferred := func() typesystem.TypeID {
		if check == c.Check && extends == c.Extends {
			return id
		}
		return in.Conditional(typesystem.ConditionalType{
			Check:        check,
			Extends:      extends,
			True:         c.True,
			False:        c.False,
			Distributive: c.Distributive,
		})
	}
	if st.hasFreeParams(check) || st.hasFreeParams(extends) || st.e.rel == nil {
		return deferred()
	}

	trueBranch, target := c.True, extends
	if in.HasInfer(extends) {
		bindings, ok := inference.InferFromConditional(in, st.e.resolver, st.e.rel.IsSubtypeOf, check, extends)
		if !ok {
			return st.eval(c.False)
		}
		target = st.replace(extends, bindings)
		trueBranch = st.replace(c.True, bindings)
	}
	if st.e.rel.IsSubtypeOf(check, target) {
		return st.eval(trueBranch)
	}
	return st.eval(c.False)
}

// hasFreeParams reports whether id mentions a type parameter or `this`.
// Infer placeholders do not count: they are bound by the enclosing
// conditional.
func (st *evalState) hasFreeParams(id typesystem.TypeID) bool {
	seen := make(map[typesystem.TypeID]bool)
	var walk func(typesystem.TypeID) bool
	walk = func(t typesystem.TypeID) bool {
		if t.IsBuiltin() || seen[t] {
			return false
		}
		seen[t] = true
		switch st.in.Key(t).(type) {
		case typesystem.TypeParam, typesystem.ThisType:
			return true
		case typesystem.Infer:
			return false
		}
		found := false
		st.in.ForEachChild(t, func(c typesystem.TypeID) bool {
			found = walk(c)
			return !found
		})
		return found
	}
	return walk(id)
}
