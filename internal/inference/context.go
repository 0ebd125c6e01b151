package inference

import (
	"github.com/samber/lo"

	"github.com/funvibe/tsolve/internal/typesystem"
)

// Priority ranks where a candidate came from. Lower values win: only the
// candidates of the best priority present take part in resolution.
type Priority uint8

const (
	// PriorityTypePredicate is a candidate taken from a type guard's
	// predicate type. It beats a candidate from the guarded parameter.
	PriorityTypePredicate Priority = iota + 1
	// PriorityNakedTypeVariable is a candidate for a parameter that appears
	// directly as a parameter type or union member.
	PriorityNakedTypeVariable
	PriorityMappedType
	PriorityReturnType
	PriorityLowPriority
)

func (p Priority) String() string {
	switch p {
	case PriorityTypePredicate:
		return "type-predicate"
	case PriorityNakedTypeVariable:
		return "naked-type-variable"
	case PriorityMappedType:
		return "mapped-type"
	case PriorityReturnType:
		return "return-type"
	case PriorityLowPriority:
		return "low-priority"
	}
	return "priority"
}

// Relation is the subtype relation inference validates against.
type Relation interface {
	IsSubtypeOf(a, b typesystem.TypeID) bool
}

// Candidate is one lower-bound observation for an inference variable.
type Candidate struct {
	Type     typesystem.TypeID
	Priority Priority
	// Fresh marks a literal taken from an expression; it may be widened.
	Fresh bool
	// Contra marks an observation from a contravariant position.
	Contra bool
}

// Variable collects what is known about one type parameter.
type Variable struct {
	Param      typesystem.TypeParamInfo
	ID         typesystem.TypeID
	Candidates []Candidate
	Upper      []typesystem.TypeID
	Lower      []typesystem.TypeID
}

// Context holds the inference variables of one generic call. It is not safe
// for concurrent use; create one per call.
type Context struct {
	in       *typesystem.Interner
	resolver typesystem.Resolver
	rel      Relation

	vars   []*Variable
	byName map[string]*Variable
	byID   map[typesystem.TypeID]*Variable
}

// NewContext creates an empty inference context.
func NewContext(in *typesystem.Interner, resolver typesystem.Resolver, rel Relation) *Context {
	if resolver == nil {
		resolver = typesystem.NoopResolver{}
	}
	return &Context{
		in:       in,
		resolver: resolver,
		rel:      rel,
		byName:   make(map[string]*Variable),
		byID:     make(map[typesystem.TypeID]*Variable),
	}
}

// AddTypeParam registers an inference variable and returns the type
// parameter handle that stands for it. Registering a name twice returns the
// existing handle.
func (c *Context) AddTypeParam(info typesystem.TypeParamInfo) typesystem.TypeID {
	if v, ok := c.byName[info.Name]; ok {
		return v.ID
	}
	id := c.in.TypeParam(info)
	v := &Variable{Param: info, ID: id}
	c.vars = append(c.vars, v)
	c.byName[info.Name] = v
	c.byID[id] = v
	return id
}

// Variable returns the variable registered under name.
func (c *Context) Variable(name string) (*Variable, bool) {
	v, ok := c.byName[name]
	return v, ok
}

// Names lists the registered variables in registration order.
func (c *Context) Names() []string {
	return lo.Map(c.vars, func(v *Variable, _ int) string { return v.Param.Name })
}

func (c *Context) variableOf(id typesystem.TypeID) (*Variable, bool) {
	if v, ok := c.byID[id]; ok {
		return v, true
	}
	// Parameters interned elsewhere with the same name still refer to the
	// variable, as long as they carry no different constraint.
	if info, ok := c.in.TypeParamOf(id); ok {
		if _, isInfer := c.in.Key(id).(typesystem.Infer); isInfer {
			return nil, false
		}
		if v, ok := c.byName[info.Name]; ok {
			return v, true
		}
	}
	return nil, false
}

// AddLowerBound records that t must be assignable to the variable name.
func (c *Context) AddLowerBound(name string, t typesystem.TypeID) {
	if v, ok := c.byName[name]; ok {
		v.Lower = append(v.Lower, t)
	}
}

// AddUpperBound records that the variable name must be assignable to t.
// A bound mentioning the variable itself is skipped.
func (c *Context) AddUpperBound(name string, t typesystem.TypeID) {
	v, ok := c.byName[name]
	if !ok || c.occurs(v, t) {
		return
	}
	v.Upper = append(v.Upper, t)
}

// occurs reports whether t mentions the variable v.
func (c *Context) occurs(v *Variable, t typesystem.TypeID) bool {
	seen := make(map[typesystem.TypeID]bool)
	var walk func(typesystem.TypeID) bool
	walk = func(id typesystem.TypeID) bool {
		if id.IsBuiltin() || seen[id] {
			return false
		}
		seen[id] = true
		if w, ok := c.variableOf(id); ok && w == v {
			return true
		}
		found := false
		c.in.ForEachChild(id, func(child typesystem.TypeID) bool {
			found = walk(child)
			return !found
		})
		return found
	}
	return walk(t)
}

func (c *Context) addCandidate(v *Variable, t typesystem.TypeID, p Priority, contra bool) {
	if c.occurs(v, t) {
		return
	}
	v.Candidates = append(v.Candidates, Candidate{
		Type:     t,
		Priority: p,
		Fresh:    c.in.IsLiteral(t),
		Contra:   contra,
	})
}
