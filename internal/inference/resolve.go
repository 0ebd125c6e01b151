package inference

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/funvibe/tsolve/internal/typesystem"
)

// ConflictKind classifies a constraint conflict.
type ConflictKind uint8

const (
	// DisjointUpperBounds: two upper bounds share no inhabitant.
	DisjointUpperBounds ConflictKind = iota + 1
	// LowerExceedsUpper: a lower bound is not a subtype of an upper bound.
	LowerExceedsUpper
)

func (k ConflictKind) String() string {
	switch k {
	case DisjointUpperBounds:
		return "disjoint upper bounds"
	case LowerExceedsUpper:
		return "lower bound exceeds upper bound"
	}
	return "conflict"
}

// ConstraintConflict describes bounds of a variable that cannot all hold.
// It is returned next to a best-effort type, never instead of one.
type ConstraintConflict struct {
	Kind  ConflictKind
	Param string
	// Lower and Upper are the offending bounds. For DisjointUpperBounds
	// both are upper bounds.
	Lower typesystem.TypeID
	Upper typesystem.TypeID
}

func (c *ConstraintConflict) Error() string {
	return fmt.Sprintf("type parameter %s: %s (%d, %d)", c.Param, c.Kind, c.Lower, c.Upper)
}

// Diagnostic converts the conflict into a structured diagnostic.
func (c *ConstraintConflict) Diagnostic() typesystem.Diagnostic {
	return typesystem.NewDiagnostic(typesystem.DiagConstraintConflict, c.Lower, c.Upper,
		"type parameter %s: %s", c.Param, c.Kind)
}

// Resolve picks the type of the variable name. A concrete declared
// constraint acts as one more upper bound. A conflict is reported next to
// the fallback type: the declared constraint, or unknown.
func (c *Context) Resolve(name string) (typesystem.TypeID, *ConstraintConflict) {
	v, ok := c.byName[name]
	if !ok {
		return typesystem.TypeUnknown, nil
	}
	fallback := v.Param.Constraint
	if fallback == typesystem.TypeNone {
		fallback = typesystem.TypeUnknown
	}
	if conflict := c.disjointUppers(v); conflict != nil {
		return fallback, conflict
	}

	result := c.fromCandidates(v)
	if result == typesystem.TypeNone {
		switch {
		case len(v.Upper) > 0:
			result = c.in.Intersection(v.Upper)
		case v.Param.Default != typesystem.TypeNone && !c.in.ContainsTypeParams(v.Param.Default):
			result = v.Param.Default
		default:
			result = fallback
		}
		return result, nil
	}

	if c.rel == nil {
		return result, nil
	}
	lowers := append([]typesystem.TypeID{result}, v.Lower...)
	for _, low := range lowers {
		for _, up := range c.upperBounds(v) {
			if !c.rel.IsSubtypeOf(low, up) {
				return fallback, &ConstraintConflict{Kind: LowerExceedsUpper, Param: name, Lower: low, Upper: up}
			}
		}
	}
	return result, nil
}

// upperBounds is the variable's recorded upper bounds plus its declared
// constraint when the constraint mentions no type parameter.
func (c *Context) upperBounds(v *Variable) []typesystem.TypeID {
	con := v.Param.Constraint
	if con == typesystem.TypeNone || c.in.ContainsTypeParams(con) || lo.Contains(v.Upper, con) {
		return v.Upper
	}
	return append(v.Upper[:len(v.Upper):len(v.Upper)], con)
}

// ResolveAll resolves every variable in registration order.
func (c *Context) ResolveAll() (typesystem.Substitution, []error) {
	subst := make(typesystem.Substitution, len(c.vars))
	var errs []error
	for _, v := range c.vars {
		t, conflict := c.Resolve(v.Param.Name)
		subst[v.Param.Name] = t
		if conflict != nil {
			errs = append(errs, conflict)
		}
	}
	return subst, errs
}

func (c *Context) disjointUppers(v *Variable) *ConstraintConflict {
	uppers := c.upperBounds(v)
	for i := 0; i < len(uppers); i++ {
		for j := i + 1; j < len(uppers); j++ {
			if c.in.Intersection2(uppers[i], uppers[j]) == typesystem.TypeNever {
				return &ConstraintConflict{Kind: DisjointUpperBounds, Param: v.Param.Name, Lower: uppers[i], Upper: uppers[j]}
			}
		}
	}
	return nil
}

// fromCandidates resolves from the best-priority candidates, or returns
// TypeNone when there are none. Covariant candidates are preferred;
// contravariant ones are intersected when they are all there is.
func (c *Context) fromCandidates(v *Variable) typesystem.TypeID {
	co := lo.Filter(v.Candidates, func(cd Candidate, _ int) bool { return !cd.Contra })
	co = append(co, lo.Map(v.Lower, func(t typesystem.TypeID, _ int) Candidate {
		return Candidate{Type: t, Priority: PriorityLowPriority}
	})...)
	if len(co) == 0 {
		contra := lo.Filter(v.Candidates, func(cd Candidate, _ int) bool { return cd.Contra })
		if len(contra) == 0 {
			return typesystem.TypeNone
		}
		best := bestPriority(contra)
		return c.in.Intersection(lo.Map(best, func(cd Candidate, _ int) typesystem.TypeID { return cd.Type }))
	}

	best := bestPriority(co)
	if lo.EveryBy(best, func(cd Candidate) bool { return cd.Type == typesystem.TypeNever }) {
		return typesystem.TypeNever
	}
	best = lo.Filter(best, func(cd Candidate, _ int) bool { return cd.Type != typesystem.TypeNever })

	keepLiterals := v.Param.IsConst || c.impliesLiterals(v.Param.Constraint) ||
		lo.SomeBy(v.Upper, c.impliesLiterals)
	types := lo.Map(best, func(cd Candidate, _ int) typesystem.TypeID {
		if cd.Fresh && !keepLiterals && len(best) > 1 {
			return c.in.WidenLiteral(cd.Type)
		}
		return cd.Type
	})
	if keepLiterals && lo.EveryBy(types, c.in.IsLiteral) {
		return c.in.Union(types)
	}
	return BestCommonType(c.in, c.rel, types)
}

func bestPriority(cands []Candidate) []Candidate {
	top := lo.MinBy(cands, func(a, b Candidate) bool { return a.Priority < b.Priority }).Priority
	return lo.Filter(cands, func(cd Candidate, _ int) bool { return cd.Priority == top })
}

// impliesLiterals reports whether a bound mentions a literal type, which
// keeps inferred literals from widening.
func (c *Context) impliesLiterals(id typesystem.TypeID) bool {
	if id == typesystem.TypeNone {
		return false
	}
	if c.in.IsLiteral(id) {
		return true
	}
	switch k := c.in.Key(id).(type) {
	case typesystem.Union:
		return lo.SomeBy(c.in.TypeList(k.Members), c.impliesLiterals)
	case typesystem.Intersection:
		return lo.SomeBy(c.in.TypeList(k.Members), c.impliesLiterals)
	}
	return false
}

// BestCommonType returns the narrowest type every one of types is a
// subtype of, preferring a shared primitive and then a member that is a
// supertype of all others. Failing both it returns their union.
func BestCommonType(in *typesystem.Interner, rel Relation, types []typesystem.TypeID) typesystem.TypeID {
	switch len(types) {
	case 0:
		return typesystem.TypeUnknown
	case 1:
		return types[0]
	}
	first := types[0]
	if lo.EveryBy(types, func(t typesystem.TypeID) bool { return t == first }) {
		return first
	}

	unique := lo.Uniq(lo.Filter(types, func(t typesystem.TypeID, _ int) bool { return t != typesystem.TypeNever }))
	if lo.Contains(unique, typesystem.TypeAny) {
		return typesystem.TypeAny
	}
	switch len(unique) {
	case 0:
		return typesystem.TypeNever
	case 1:
		return unique[0]
	}

	if base, ok := commonPrimitive(in, unique); ok {
		return base
	}

	if rel != nil {
		best := unique[0]
		for _, t := range unique[1:] {
			if rel.IsSubtypeOf(best, t) {
				best = t
			}
		}
		if lo.EveryBy(unique, func(t typesystem.TypeID) bool { return rel.IsSubtypeOf(t, best) }) {
			return best
		}
	}
	return in.Union(unique)
}

// commonPrimitive reports the primitive every type widens to, if they
// share one.
func commonPrimitive(in *typesystem.Interner, types []typesystem.TypeID) (typesystem.TypeID, bool) {
	base := func(t typesystem.TypeID) typesystem.TypeID {
		if !in.IsLiteral(t) && !t.IsBuiltin() {
			return typesystem.TypeNone
		}
		switch t {
		case typesystem.TypeNull, typesystem.TypeUndefined, typesystem.TypeVoid:
			return typesystem.TypeNone
		}
		return in.PrimitiveOf(t)
	}
	first := base(types[0])
	if first == typesystem.TypeNone {
		return typesystem.TypeNone, false
	}
	for _, t := range types[1:] {
		if base(t) != first {
			return typesystem.TypeNone, false
		}
	}
	return first, true
}
