package evaluator

import (
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-set/v3"

	"github.com/funvibe/tsolve/internal/config"
	"github.com/funvibe/tsolve/internal/typesystem"
)

// Relation decides the extends clause of conditional types. It is bound
// after construction because the relation expands derived types through
// this evaluator.
type Relation interface {
	IsSubtypeOf(a, b typesystem.TypeID) bool
}

// Evaluator reduces derived types (aliases, applications, conditional,
// mapped, indexed access, keyof, template and string intrinsic types) to
// normal form, and substitutes type arguments into generic bodies.
//
// It is safe for concurrent use. Results are memoized in a shared cache;
// the depth counter and visiting set of a call live in a per-call state.
type Evaluator struct {
	in       *typesystem.Interner
	resolver typesystem.Resolver
	rel      Relation

	maxDepth          int
	noUncheckedAccess bool

	mu    sync.RWMutex
	cache map[typesystem.TypeID]typesystem.TypeID

	depthExceeded atomic.Bool
	recursion     atomic.Bool
}

// New creates an Evaluator. A nil resolver resolves nothing.
func New(in *typesystem.Interner, resolver typesystem.Resolver, cfg *config.Config) *Evaluator {
	if resolver == nil {
		resolver = typesystem.NoopResolver{}
	}
	if cfg == nil {
		cfg = config.Default()
	}
	depth := cfg.Limits.EvalDepth
	if depth <= 0 {
		depth = config.MaxEvalDepth
	}
	return &Evaluator{
		in:                in,
		resolver:          resolver,
		maxDepth:          depth,
		noUncheckedAccess: cfg.Compiler.NoUncheckedIndexedAccess,
		cache:             make(map[typesystem.TypeID]typesystem.TypeID),
	}
}

// BindRelation attaches the relation used by conditional types. Without
// one, conditional types whose outcome is not decided by their shape stay
// deferred.
func (e *Evaluator) BindRelation(r Relation) { e.rel = r }

// DepthExceeded reports whether any evaluation or instantiation hit the
// depth limit.
func (e *Evaluator) DepthExceeded() bool { return e.depthExceeded.Load() }

// RecursionDetected reports whether any evaluation met a type that
// reduces to itself.
func (e *Evaluator) RecursionDetected() bool { return e.recursion.Load() }

// CacheLen returns the number of memoized results.
func (e *Evaluator) CacheLen() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

// Evaluate reduces id to normal form. Evaluating a result again returns
// it unchanged. Self-referential and overly deep types evaluate to error.
func (e *Evaluator) Evaluate(id typesystem.TypeID) typesystem.TypeID {
	st := &evalState{e: e, in: e.in, visiting: set.New[typesystem.TypeID](0)}
	return st.eval(id)
}

func (e *Evaluator) cached(id typesystem.TypeID) (typesystem.TypeID, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.cache[id]
	return r, ok
}

func (e *Evaluator) store(id, result typesystem.TypeID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.cache[id]; !ok {
		e.cache[id] = result
	}
	if _, ok := e.cache[result]; !ok {
		e.cache[result] = result
	}
}

// evalState is the state of one Evaluate call. It is never shared.
type evalState struct {
	e        *Evaluator
	in       *typesystem.Interner
	visiting *set.Set[typesystem.TypeID]
	depth    int

	// poisoned is set when a result was cut short by a cycle or the depth
	// limit; such results are not memoized.
	poisoned bool
}

// reducible reports whether the top level of id may change under evaluation.
func (st *evalState) reducible(id typesystem.TypeID) bool {
	if id.IsBuiltin() {
		return false
	}
	switch st.in.Key(id).(type) {
	case typesystem.Lazy, typesystem.TypeQuery, typesystem.Application, typesystem.Conditional,
		typesystem.Mapped, typesystem.IndexAccess, typesystem.KeyOf, typesystem.TemplateLiteral,
		typesystem.StringIntrinsic, typesystem.Union, typesystem.Intersection:
		return true
	}
	return false
}

func (st *evalState) eval(id typesystem.TypeID) typesystem.TypeID {
	if !st.reducible(id) {
		return id
	}
	if r, ok := st.e.cached(id); ok {
		return r
	}
	if st.visiting.Contains(id) {
		st.e.recursion.Store(true)
		st.poisoned = true
		return typesystem.TypeError
	}
	if st.depth >= st.e.maxDepth {
		st.e.depthExceeded.Store(true)
		st.poisoned = true
		return typesystem.TypeError
	}

	outer := st.poisoned
	st.poisoned = false
	st.visiting.Insert(id)
	st.depth++
	result := st.reduce(id)
	st.depth--
	st.visiting.Remove(id)

	if !st.poisoned {
		st.e.store(id, result)
	}
	st.poisoned = outer || st.poisoned
	return result
}

func (st *evalState) reduce(id typesystem.TypeID) typesystem.TypeID {
	in := st.in
	switch k := in.Key(id).(type) {
	case typesystem.Lazy:
		if len(st.e.resolver.TypeParams(k.Def)) > 0 {
			return id
		}
		if body, ok := st.e.resolver.ResolveLazy(k.Def); ok {
			return st.eval(body)
		}
		return id
	case typesystem.TypeQuery:
		if body, ok := st.e.resolver.ResolveLazy(k.Def); ok {
			return st.eval(body)
		}
		return id
	case typesystem.Application:
		return st.application(id, in.TypeApplication(k.App))
	case typesystem.Conditional:
		return st.conditional(id, in.ConditionalType(k.Cond))
	case typesystem.Mapped:
		return st.mapped(id, in.MappedType(k.Mapped))
	case typesystem.IndexAccess:
		return st.indexAccess(st.eval(k.Object), st.eval(k.Index))
	case typesystem.KeyOf:
		return st.keyOf(st.eval(k.Inner))
	case typesystem.TemplateLiteral:
		return in.MapChildren(id, st.eval)
	case typesystem.StringIntrinsic:
		return st.stringIntrinsic(k.Kind, st.eval(k.Arg))
	case typesystem.Union, typesystem.Intersection:
		return in.MapChildren(id, st.eval)
	}
	return id
}

// application expands a generic definition applied to arguments. Missing
// arguments take their default, then their constraint, then unknown.
func (st *evalState) application(id typesystem.TypeID, app *typesystem.TypeApplication) typesystem.TypeID {
	lazy, ok := st.in.Key(app.Base).(typesystem.Lazy)
	if !ok {
		return id
	}
	params := st.e.resolver.TypeParams(lazy.Def)
	body, ok := st.e.resolver.ResolveLazy(lazy.Def)
	if !ok {
		return id
	}
	subst := make(typesystem.Substitution, len(params))
	for i, p := range params {
		switch {
		case i < len(app.Args):
			subst[p.Name] = app.Args[i]
		case p.Default != typesystem.TypeNone:
			subst[p.Name] = st.e.instantiate(p.Default, subst, st.depth)
		case p.Constraint != typesystem.TypeNone:
			subst[p.Name] = p.Constraint
		default:
			subst[p.Name] = typesystem.TypeUnknown
		}
	}
	return st.eval(st.e.instantiate(body, subst, st.depth))
}

// replace substitutes placeholder handles, such as infer bindings, by
// identity throughout id.
func (st *evalState) replace(id typesystem.TypeID, b typesystem.Bindings) typesystem.TypeID {
	if len(b) == 0 {
		return id
	}
	memo := make(map[typesystem.TypeID]typesystem.TypeID)
	var walk func(typesystem.TypeID) typesystem.TypeID
	walk = func(t typesystem.TypeID) typesystem.TypeID {
		if r, ok := b[t]; ok {
			return r
		}
		if t.IsBuiltin() {
			return t
		}
		if r, ok := memo[t]; ok {
			return r
		}
		memo[t] = t
		r := st.in.MapChildren(t, walk)
		memo[t] = r
		return r
	}
	return walk(id)
}
