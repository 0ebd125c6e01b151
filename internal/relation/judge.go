package relation

import (
	"sync/atomic"

	"github.com/hashicorp/go-set/v3"

	"github.com/funvibe/tsolve/internal/config"
	"github.com/funvibe/tsolve/internal/typesystem"
)

// Evaluator reduces derived types (applications, conditionals, mapped and
// indexed types) on behalf of the relation. It is bound after construction
// because the evaluator itself consults the relation.
type Evaluator interface {
	Evaluate(id typesystem.TypeID) typesystem.TypeID
	Instantiate(id typesystem.TypeID, subst typesystem.Substitution) typesystem.TypeID
}

// AnyMode selects how `any` relates as a source.
type AnyMode uint8

const (
	// AnyTopOnly relates an `any` source only to any and unknown.
	AnyTopOnly AnyMode = iota
	// AnyBothWays relates `any` to and from everything, at every depth.
	AnyBothWays
)

// Options tune the structural relation.
type Options struct {
	StrictNullChecks           bool
	StrictFunctionTypes        bool
	ExactOptionalPropertyTypes bool

	// AllowVoidReturn lets a signature returning void accept any return type.
	AllowVoidReturn bool
	// AllowBivariantRest compares rest parameters in both directions.
	AllowBivariantRest bool
	// MethodBivariance compares parameters of method members in both directions.
	MethodBivariance bool
	// EnforceReadonly rejects a readonly property where a mutable one is required.
	EnforceReadonly bool
	// EnforceWeakTypes rejects sources sharing no property with an
	// all-optional target.
	EnforceWeakTypes bool

	AnyMode  AnyMode
	MaxDepth int
}

// JudgeOptions derives the strict subtype configuration from compiler options.
func JudgeOptions(cfg *config.Config) Options {
	return Options{
		StrictNullChecks:           cfg.Compiler.StrictNullChecks,
		StrictFunctionTypes:        cfg.Compiler.StrictFunctionTypes,
		ExactOptionalPropertyTypes: cfg.Compiler.ExactOptionalPropertyTypes,
		MethodBivariance:           true,
		EnforceReadonly:            true,
		AnyMode:                    AnyTopOnly,
		MaxDepth:                   cfg.Limits.SubtypeDepth,
	}
}

// ExtendsOptions configures the Judge that decides conditional `extends`
// clauses and filters narrowed members: the strict relation with `any`
// related both ways and rest parameters compared bivariantly.
func ExtendsOptions(cfg *config.Config) Options {
	opts := JudgeOptions(cfg)
	opts.AnyMode = AnyBothWays
	opts.AllowBivariantRest = true
	return opts
}

// Judge is the strict structural subtype relation. It is safe for
// concurrent use; per-query state lives in a checker built for each call.
type Judge struct {
	in       *typesystem.Interner
	resolver typesystem.Resolver
	eval     Evaluator
	opts     Options
	cache    *PairCache

	depthExceeded atomic.Bool
	apparent      *apparentTypes
}

// NewJudge creates a Judge with its own cache.
func NewJudge(in *typesystem.Interner, resolver typesystem.Resolver, opts Options) *Judge {
	if resolver == nil {
		resolver = typesystem.NoopResolver{}
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = config.MaxSubtypeDepth
	}
	return &Judge{
		in:       in,
		resolver: resolver,
		opts:     opts,
		cache:    NewPairCache(),
		apparent: newApparentTypes(in),
	}
}

// BindEvaluator attaches the evaluator. It must be called before the Judge
// is shared between goroutines.
func (j *Judge) BindEvaluator(e Evaluator) { j.eval = e }

// Options returns the configuration of j.
func (j *Judge) Options() Options { return j.opts }

// Cache exposes the pair cache of j.
func (j *Judge) Cache() *PairCache { return j.cache }

// DepthExceeded reports whether any query so far hit the depth limit.
func (j *Judge) DepthExceeded() bool { return j.depthExceeded.Load() }

// IsSubtypeOf reports whether a is a subtype of b.
func (j *Judge) IsSubtypeOf(a, b typesystem.TypeID) bool {
	return j.CheckSubtype(a, b).Holds()
}

// CheckSubtype reports whether a is a subtype of b, distinguishing results
// that relied on a cycle assumption.
func (j *Judge) CheckSubtype(a, b typesystem.TypeID) Ternary {
	c := j.newChecker(false)
	if !c.check(a, b) {
		return False
	}
	if c.assumed {
		return Provisional
	}
	return True
}

// checkLimited is IsSubtypeOf that also reports whether the answer was cut
// short by the depth limit. Settled rejections come from the cache.
func (j *Judge) checkLimited(a, b typesystem.TypeID) (ok, limited bool) {
	c := j.newChecker(false)
	ok = c.check(a, b)
	return ok, c.depthHit
}

// explain re-runs a failing check without the cache and returns the
// innermost reason.
func (j *Judge) explain(a, b typesystem.TypeID) *FailureReason {
	c := j.newChecker(true)
	if c.check(a, b) {
		return nil
	}
	if c.reason == nil {
		kind := TypeMismatch
		if c.depthHit {
			kind = DepthExceeded
		}
		return &FailureReason{Kind: kind, Source: a, Target: b}
	}
	return c.reason
}

func (j *Judge) newChecker(explain bool) *checker {
	return &checker{
		j:        j,
		in:       j.in,
		inFlight: set.New[pair](0),
		explain:  explain,
	}
}

// checker carries the state of one query. It is never shared.
type checker struct {
	j        *Judge
	in       *typesystem.Interner
	inFlight *set.Set[pair]
	depth    int

	// assumed is set when a result relied on an in-flight pair.
	assumed bool
	// depthHit is set when a result was cut short by the depth limit.
	depthHit bool
	// bivariant is set while comparing the signatures of a method member.
	bivariant bool

	explain bool
	reason  *FailureReason
}

func (c *checker) fail(kind FailureKind, a, b typesystem.TypeID, property string) bool {
	if c.explain && c.reason == nil {
		c.reason = &FailureReason{Kind: kind, Source: a, Target: b, Property: property}
	}
	return false
}

func (c *checker) check(a, b typesystem.TypeID) bool {
	if a == b {
		return true
	}
	// Alias chains are followed here, outside the depth accounting, so a
	// long chain costs no depth.
	a, b = c.unalias(a), c.unalias(b)
	if a == b {
		return true
	}
	opts := &c.j.opts
	switch {
	case a == typesystem.TypeAny:
		if opts.AnyMode == AnyBothWays || b == typesystem.TypeUnknown || b == typesystem.TypeAny {
			return true
		}
		return c.fail(TypeMismatch, a, b, "")
	case b == typesystem.TypeAny || b == typesystem.TypeUnknown:
		return true
	case a == typesystem.TypeError || b == typesystem.TypeError:
		return c.fail(ErrorType, a, b, "")
	case a == typesystem.TypeNever:
		return true
	case b == typesystem.TypeNever:
		return c.fail(TypeMismatch, a, b, "")
	case !opts.StrictNullChecks && (a == typesystem.TypeNull || a == typesystem.TypeUndefined):
		return true
	}
	if c.disjointUnits(a, b) {
		return c.fail(TypeMismatch, a, b, "")
	}

	if c.depth >= opts.MaxDepth {
		c.j.depthExceeded.Store(true)
		c.depthHit = true
		return c.fail(DepthExceeded, a, b, "")
	}
	key := pair{a, b}
	// Method comparisons run with relaxed variance; keep them out of the cache.
	cacheable := !c.bivariant
	if cacheable && !c.explain {
		if v, ok := c.j.cache.Get(a, b); ok {
			return v
		}
	}
	if c.inFlight.Contains(key) {
		c.assumed = true
		return true
	}

	outerAssumed, outerDepthHit := c.assumed, c.depthHit
	c.assumed, c.depthHit = false, false
	saved := c.reason

	c.inFlight.Insert(key)
	c.depth++
	ok := c.structural(a, b)
	c.depth--
	c.inFlight.Remove(key)

	if cacheable && !c.depthHit && (!ok || !c.assumed) {
		c.j.cache.Put(a, b, ok)
	}
	c.assumed = outerAssumed || c.assumed
	c.depthHit = outerDepthHit || c.depthHit
	if ok {
		c.reason = saved
	}
	return ok
}

// disjointUnits is the fast path for two distinct unit types such as
// "a" and "b" or null and 1.
func (c *checker) disjointUnits(a, b typesystem.TypeID) bool {
	return c.isPlainUnit(a) && c.isPlainUnit(b)
}

func (c *checker) isPlainUnit(id typesystem.TypeID) bool {
	switch id {
	case typesystem.TypeNull, typesystem.TypeUndefined, typesystem.TypeTrue, typesystem.TypeFalse:
		return true
	}
	_, ok := c.in.Key(id).(typesystem.Literal)
	return ok
}

// resolveRef follows non-generic Lazy references and type queries.
func (c *checker) resolveRef(id typesystem.TypeID) typesystem.TypeID {
	switch k := c.in.Key(id).(type) {
	case typesystem.Lazy:
		if len(c.j.resolver.TypeParams(k.Def)) > 0 {
			return id
		}
		if body, ok := c.j.resolver.ResolveLazy(k.Def); ok {
			return body
		}
	case typesystem.TypeQuery:
		if body, ok := c.j.resolver.ResolveLazy(k.Def); ok {
			return body
		}
	}
	return id
}

// unalias follows resolveRef until it reaches a type that is not a
// reference. A circular chain resolves to the error type.
func (c *checker) unalias(id typesystem.TypeID) typesystem.TypeID {
	next := c.resolveRef(id)
	if next == id {
		return id
	}
	seen := set.New[typesystem.TypeID](4)
	seen.Insert(id)
	for next != id {
		if !seen.Insert(next) {
			return typesystem.TypeError
		}
		id, next = next, c.resolveRef(next)
	}
	return id
}

func (c *checker) isDerived(id typesystem.TypeID) bool {
	switch c.in.Key(id).(type) {
	case typesystem.Application, typesystem.Conditional, typesystem.Mapped,
		typesystem.IndexAccess, typesystem.KeyOf, typesystem.StringIntrinsic, typesystem.TemplateLiteral:
		return true
	}
	return false
}

func (c *checker) evaluate(id typesystem.TypeID) typesystem.TypeID {
	if c.j.eval == nil || !c.isDerived(id) {
		return id
	}
	return c.j.eval.Evaluate(id)
}

func (c *checker) structural(a, b typesystem.TypeID) bool {
	if c.sameApplication(a, b) {
		return true
	}
	if ea, eb := c.evaluate(a), c.evaluate(b); ea != a || eb != b {
		return c.check(ea, eb)
	}

	in := c.in
	ka, kb := in.Key(a), in.Key(b)

	if u, ok := ka.(typesystem.Union); ok {
		for _, m := range in.TypeList(u.Members) {
			if !c.check(m, b) {
				return false
			}
		}
		return true
	}
	if x, ok := kb.(typesystem.Intersection); ok {
		for _, m := range in.TypeList(x.Members) {
			if !c.check(a, m) {
				return false
			}
		}
		return true
	}
	if u, ok := kb.(typesystem.Union); ok {
		return c.toUnion(a, b, in.TypeList(u.Members))
	}
	if x, ok := ka.(typesystem.Intersection); ok {
		return c.fromIntersection(a, b, in.TypeList(x.Members))
	}

	switch sa := ka.(type) {
	case typesystem.TypeParam:
		return c.fromTypeParam(a, b, sa.Info)
	case typesystem.Infer:
		return c.fromTypeParam(a, b, sa.Info)
	case typesystem.Conditional:
		// A deferred conditional relates when both branches do.
		cond := in.ConditionalType(sa.Cond)
		return c.check(cond.True, b) && c.check(cond.False, b)
	case typesystem.KeyOf:
		if tb, ok := kb.(typesystem.KeyOf); ok {
			return c.check(tb.Inner, sa.Inner)
		}
		return c.check(c.j.apparent.propertyKey, b)
	case typesystem.Enum:
		if tb, ok := kb.(typesystem.Enum); ok {
			if sa.Def != tb.Def {
				return c.fail(TypeMismatch, a, b, "")
			}
			return c.check(sa.Members, tb.Members)
		}
		return c.check(sa.Members, b)
	}

	switch tb := kb.(type) {
	case typesystem.TypeParam, typesystem.Infer, typesystem.ThisType, typesystem.Enum:
		return c.fail(TypeMismatch, a, b, "")
	case typesystem.Intrinsic:
		return c.toIntrinsic(a, b, tb.Kind)
	case typesystem.Literal:
		return c.fail(TypeMismatch, a, b, "")
	case typesystem.TemplateLiteral:
		if lit, ok := in.LiteralOf(a); ok && lit.Kind == typesystem.LitString &&
			in.MatchTemplate(in.TemplateSpans(tb.Spans), lit.Str) {
			return true
		}
		return c.fail(TypeMismatch, a, b, "")
	case typesystem.StringIntrinsic:
		if lit, ok := in.LiteralOf(a); ok && lit.Kind == typesystem.LitString &&
			typesystem.ApplyStringIntrinsic(tb.Kind, lit.Str) == lit.Str {
			return c.check(a, tb.Arg)
		}
		if sa, ok := ka.(typesystem.StringIntrinsic); ok && sa.Kind == tb.Kind {
			return c.check(sa.Arg, tb.Arg)
		}
		return c.fail(TypeMismatch, a, b, "")
	case typesystem.UniqueSymbol:
		return c.fail(TypeMismatch, a, b, "")
	case typesystem.KeyOf:
		return c.fail(TypeMismatch, a, b, "")
	case typesystem.ReadonlyType:
		inner := a
		if ra, ok := ka.(typesystem.ReadonlyType); ok {
			inner = ra.Inner
		}
		return c.arrayLike(inner, tb.Inner)
	case typesystem.Array, typesystem.Tuple:
		if _, ok := ka.(typesystem.ReadonlyType); ok {
			return c.fail(ReadonlyMismatch, a, b, "")
		}
		return c.arrayLike(a, b)
	case typesystem.Function:
		return c.toSignatures(a, b)
	case typesystem.Callable:
		if !c.toSignatures(a, b) {
			return false
		}
		shape := in.CallableShape(tb.Shape)
		return c.toMembers(a, b, shape.Properties, shape.StringIndex, shape.NumberIndex)
	case typesystem.Object:
		shape := in.ObjectShape(tb.Shape)
		return c.toMembers(a, b, shape.Properties, shape.StringIndex, shape.NumberIndex)
	case typesystem.ObjectWithIndex:
		shape := in.ObjectShape(tb.Shape)
		return c.toMembers(a, b, shape.Properties, shape.StringIndex, shape.NumberIndex)
	case typesystem.Application:
		return c.fail(TypeMismatch, a, b, "")
	}
	return c.fail(TypeMismatch, a, b, "")
}

// sameApplication compares two applications of one generic definition by
// their arguments.
func (c *checker) sameApplication(a, b typesystem.TypeID) bool {
	ka, ok1 := c.in.Key(a).(typesystem.Application)
	kb, ok2 := c.in.Key(b).(typesystem.Application)
	if !ok1 || !ok2 {
		return false
	}
	aa, ab := c.in.TypeApplication(ka.App), c.in.TypeApplication(kb.App)
	if aa.Base != ab.Base || len(aa.Args) != len(ab.Args) {
		return false
	}
	saved := c.reason
	for i := range aa.Args {
		if !c.check(aa.Args[i], ab.Args[i]) {
			c.reason = saved
			return false
		}
	}
	return true
}

func (c *checker) toUnion(a, b typesystem.TypeID, members []typesystem.TypeID) bool {
	// A literal checks against the intrinsic members first.
	if prim := c.in.PrimitiveOf(a); prim != typesystem.TypeNone && prim != a {
		for _, m := range members {
			if m == prim {
				return true
			}
		}
	}
	for _, m := range members {
		if c.check(a, m) {
			return true
		}
	}
	switch k := c.in.Key(a).(type) {
	case typesystem.Intersection:
		return c.fromIntersection(a, b, c.in.TypeList(k.Members))
	case typesystem.TypeParam:
		return c.fromTypeParam(a, b, k.Info)
	case typesystem.Infer:
		return c.fromTypeParam(a, b, k.Info)
	case typesystem.Enum:
		return c.check(k.Members, b)
	case typesystem.KeyOf:
		return c.check(c.j.apparent.propertyKey, b)
	case typesystem.Conditional:
		cond := c.in.ConditionalType(k.Cond)
		return c.check(cond.True, b) && c.check(cond.False, b)
	}
	return c.fail(TypeMismatch, a, b, "")
}

func (c *checker) fromIntersection(a, b typesystem.TypeID, members []typesystem.TypeID) bool {
	saved := c.reason
	for _, m := range members {
		if c.check(m, b) {
			c.reason = saved
			return true
		}
	}
	// Narrow a type parameter's constraint by the other members: T & string
	// with T extends string | number relates to string.
	for i, m := range members {
		info, ok := c.in.TypeParamOf(m)
		if !ok || info.Constraint == typesystem.TypeNone {
			continue
		}
		rest := make([]typesystem.TypeID, 0, len(members))
		rest = append(rest, info.Constraint)
		rest = append(rest, members[:i]...)
		rest = append(rest, members[i+1:]...)
		narrowed := c.in.Intersection(rest)
		if narrowed != a && c.check(narrowed, b) {
			c.reason = saved
			return true
		}
	}
	// Object targets see the combined members of every part.
	switch c.in.Key(b).(type) {
	case typesystem.Object, typesystem.ObjectWithIndex:
		shape, _ := c.in.ObjectShapeOf(b)
		return c.toMembers(a, b, shape.Properties, shape.StringIndex, shape.NumberIndex)
	}
	return c.fail(TypeMismatch, a, b, "")
}

func (c *checker) fromTypeParam(a, b typesystem.TypeID, info typesystem.TypeParamInfo) bool {
	if tb, ok := c.in.TypeParamOf(b); ok && tb.Name == info.Name {
		return true
	}
	if info.Constraint == typesystem.TypeNone {
		return c.fail(TypeMismatch, a, b, "")
	}
	return c.check(info.Constraint, b)
}

func (c *checker) toIntrinsic(a, b typesystem.TypeID, kind typesystem.IntrinsicKind) bool {
	in := c.in
	switch kind {
	case typesystem.KindObject:
		if c.isNonPrimitive(a) {
			return true
		}
	case typesystem.KindFunction:
		if in.IsCallable(a) {
			return true
		}
	case typesystem.KindVoid:
		if a == typesystem.TypeUndefined {
			return true
		}
	case typesystem.KindString, typesystem.KindNumber, typesystem.KindBigInt,
		typesystem.KindSymbol, typesystem.KindBoolean:
		if a != typesystem.TypeVoid && in.PrimitiveClassOf(a) == in.PrimitiveClassOf(b) {
			return true
		}
	}
	return c.fail(TypeMismatch, a, b, "")
}

// isNonPrimitive reports whether a is assignable to the `object` keyword.
func (c *checker) isNonPrimitive(a typesystem.TypeID) bool {
	switch k := c.in.Key(a).(type) {
	case typesystem.Object, typesystem.ObjectWithIndex, typesystem.Array, typesystem.Tuple,
		typesystem.ReadonlyType, typesystem.Function, typesystem.Callable, typesystem.Mapped:
		return true
	case typesystem.Intrinsic:
		return k.Kind == typesystem.KindObject || k.Kind == typesystem.KindFunction
	}
	return false
}
