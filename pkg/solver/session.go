package solver

import (
	"log"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/funvibe/tsolve/internal/config"
	"github.com/funvibe/tsolve/internal/evaluator"
	"github.com/funvibe/tsolve/internal/inference"
	"github.com/funvibe/tsolve/internal/narrowing"
	"github.com/funvibe/tsolve/internal/relation"
	"github.com/funvibe/tsolve/internal/typesystem"
)

// Session owns one interner and every cache built on it. All methods are
// safe for concurrent use.
type Session struct {
	id       uuid.UUID
	cfg      *config.Config
	in       *typesystem.Interner
	resolver typesystem.Resolver

	judge    *relation.Judge
	lawyer   *relation.Lawyer
	extends  *relation.Judge // conditional types and narrowing
	eval     *evaluator.Evaluator
	narrower *narrowing.Narrower

	tracer *log.Logger

	// reported keeps each sticky condition from being traced twice.
	reportedDepth     atomic.Bool
	reportedRecursion atomic.Bool
}

// Option configures a Session.
type Option func(*Session)

// WithTracer logs depth events, constraint conflicts and cache summaries.
func WithTracer(l *log.Logger) Option {
	return func(s *Session) { s.tracer = l }
}

// NewSession builds a session. A nil cfg means config.Default(); a nil
// resolver resolves nothing.
func NewSession(cfg *config.Config, resolver typesystem.Resolver, opts ...Option) *Session {
	if cfg == nil {
		cfg = config.Default()
	}
	if resolver == nil {
		resolver = typesystem.NoopResolver{}
	}
	in := typesystem.NewInterner(cfg.Limits.TemplateExpansionLimit)
	s := &Session{
		id:       uuid.New(),
		cfg:      cfg,
		in:       in,
		resolver: resolver,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.eval = evaluator.New(in, resolver, cfg)
	s.judge = relation.NewJudge(in, resolver, relation.JudgeOptions(cfg))
	s.judge.BindEvaluator(s.eval)
	s.lawyer = relation.NewLawyer(in, resolver, cfg)
	s.lawyer.BindEvaluator(s.eval)
	s.extends = relation.NewJudge(in, resolver, relation.ExtendsOptions(cfg))
	s.extends.BindEvaluator(s.eval)
	s.eval.BindRelation(s.extends)
	s.narrower = narrowing.New(in, s.extends)
	s.narrower.BindEvaluator(s.eval)

	s.trace("session %s: strict_null_checks=%t strict_function_types=%t",
		s.id, cfg.Compiler.StrictNullChecks, cfg.Compiler.StrictFunctionTypes)
	return s
}

// ID identifies the session in traces and reports.
func (s *Session) ID() uuid.UUID { return s.id }

// Config returns the configuration the session was built with.
func (s *Session) Config() *config.Config { return s.cfg }

// Interner returns the session's interner, for building types.
func (s *Session) Interner() *typesystem.Interner { return s.in }

// Resolver returns the resolver for named definitions.
func (s *Session) Resolver() typesystem.Resolver { return s.resolver }

// Lookup returns the structure behind a handle.
func (s *Session) Lookup(id typesystem.TypeID) (typesystem.TypeKey, bool) {
	return s.in.Lookup(id)
}

// Format renders a type, naming definitions when the resolver can.
func (s *Session) Format(id typesystem.TypeID) string {
	if names, ok := s.resolver.(typesystem.DefNamer); ok {
		return s.in.FormatWith(id, names)
	}
	return s.in.Format(id)
}

// IsSubtypeOf reports whether a is a structural subtype of b.
func (s *Session) IsSubtypeOf(a, b typesystem.TypeID) bool {
	defer s.checkSticky()
	return s.judge.IsSubtypeOf(a, b)
}

// CheckSubtype is IsSubtypeOf with the tri-state answer.
func (s *Session) CheckSubtype(a, b typesystem.TypeID) relation.Ternary {
	defer s.checkSticky()
	return s.judge.CheckSubtype(a, b)
}

// IsAssignableTo reports whether a value of type a may be assigned to b.
func (s *Session) IsAssignableTo(a, b typesystem.TypeID) bool {
	defer s.checkSticky()
	return s.lawyer.IsAssignableTo(a, b)
}

// ExplainFailure returns why a is not assignable to b, or nil.
func (s *Session) ExplainFailure(a, b typesystem.TypeID) *relation.FailureReason {
	defer s.checkSticky()
	return s.lawyer.ExplainFailure(a, b)
}

// Narrow applies a guard to t on the given branch.
func (s *Session) Narrow(t typesystem.TypeID, g narrowing.Guard, branchTaken bool) typesystem.TypeID {
	defer s.checkSticky()
	return s.narrower.Narrow(t, g, branchTaken)
}

// NarrowToType keeps the members of t assignable to target.
func (s *Session) NarrowToType(t, target typesystem.TypeID) typesystem.TypeID {
	return s.narrower.NarrowToType(t, target)
}

// NarrowExcludingType drops the members of t assignable to excluded.
func (s *Session) NarrowExcludingType(t, excluded typesystem.TypeID) typesystem.TypeID {
	return s.narrower.NarrowExcludingType(t, excluded)
}

// FindDiscriminants lists the properties that tell union members apart.
func (s *Session) FindDiscriminants(union typesystem.TypeID) []narrowing.Discriminant {
	return s.narrower.FindDiscriminants(union)
}

// NewInference starts an inference context checked by the Judge.
func (s *Session) NewInference() *inference.Context {
	return inference.NewContext(s.in, s.resolver, s.judge)
}

// UsageSite is one place an argument of type Source flows into a parameter
// of type Target. A zero Priority means PriorityNakedTypeVariable.
type UsageSite struct {
	Source   typesystem.TypeID
	Target   typesystem.TypeID
	Priority inference.Priority
}

// Infer infers typeParams from the usage sites and resolves them. Conflicts
// are returned next to the substitution and traced.
func (s *Session) Infer(typeParams []typesystem.TypeParamInfo, sites []UsageSite) (typesystem.Substitution, []error) {
	defer s.checkSticky()
	ctx := s.NewInference()
	for _, tp := range typeParams {
		ctx.AddTypeParam(tp)
	}
	for _, site := range sites {
		p := site.Priority
		if p == 0 {
			p = inference.PriorityNakedTypeVariable
		}
		ctx.InferFromTypes(site.Source, site.Target, p)
	}
	subst, errs := ctx.ResolveAll()
	for _, err := range errs {
		s.trace("session %s: %v", s.id, err)
	}
	return subst, errs
}

// BestCommonType returns the common supertype of types.
func (s *Session) BestCommonType(types []typesystem.TypeID) typesystem.TypeID {
	return inference.BestCommonType(s.in, s.judge, types)
}

// SubtypeReduce unions members after dropping every member that is a
// subtype of another member. Of two mutual subtypes the first is kept.
func (s *Session) SubtypeReduce(members []typesystem.TypeID) typesystem.TypeID {
	defer s.checkSticky()
	unique := lo.Uniq(members)
	kept := lo.Filter(unique, func(m typesystem.TypeID, i int) bool {
		for j, other := range unique {
			if i == j || !s.judge.IsSubtypeOf(m, other) {
				continue
			}
			if !s.judge.IsSubtypeOf(other, m) || j < i {
				return false
			}
		}
		return true
	})
	return s.in.Union(kept)
}

// Evaluate reduces derived type forms to their simplest equivalent.
func (s *Session) Evaluate(id typesystem.TypeID) typesystem.TypeID {
	defer s.checkSticky()
	return s.eval.Evaluate(id)
}

// Instantiate substitutes type parameters by name.
func (s *Session) Instantiate(id typesystem.TypeID, subst typesystem.Substitution) typesystem.TypeID {
	defer s.checkSticky()
	return s.eval.Instantiate(id, subst)
}

// DepthExceeded reports whether any check or evaluation hit its limit.
func (s *Session) DepthExceeded() bool {
	return s.judge.DepthExceeded() || s.lawyer.DepthExceeded() || s.extends.DepthExceeded() ||
		s.eval.DepthExceeded()
}

// Diagnostics reports the sticky conditions raised so far.
func (s *Session) Diagnostics() []typesystem.Diagnostic {
	var out []typesystem.Diagnostic
	if s.DepthExceeded() {
		out = append(out, typesystem.NewDiagnostic(typesystem.DiagDepthExceeded,
			typesystem.TypeNone, typesystem.TypeNone, "recursion depth limit reached"))
	}
	if s.eval.RecursionDetected() {
		out = append(out, typesystem.NewDiagnostic(typesystem.DiagExcessiveRecursion,
			typesystem.TypeNone, typesystem.TypeNone, "type instantiation is excessively deep"))
	}
	return out
}

// Stats summarises cache sizes.
type Stats struct {
	Types        int
	JudgeCache   int
	LawyerCache  int
	ExtendsCache int
	EvalCache    int
}

// Stats returns the current cache sizes and traces them.
func (s *Session) Stats() Stats {
	st := Stats{
		Types:        s.in.Len(),
		JudgeCache:   s.judge.Cache().Len(),
		LawyerCache:  s.lawyer.Cache().Len(),
		ExtendsCache: s.extends.Cache().Len(),
		EvalCache:    s.eval.CacheLen(),
	}
	s.trace("session %s: types=%d judge=%d lawyer=%d extends=%d eval=%d",
		s.id, st.Types, st.JudgeCache, st.LawyerCache, st.ExtendsCache, st.EvalCache)
	return st
}

func (s *Session) checkSticky() {
	if s.tracer == nil {
		return
	}
	if s.DepthExceeded() && s.reportedDepth.CompareAndSwap(false, true) {
		s.trace("session %s: depth limit exceeded", s.id)
	}
	if s.eval.RecursionDetected() && s.reportedRecursion.CompareAndSwap(false, true) {
		s.trace("session %s: recursive type evaluation cut off", s.id)
	}
}

func (s *Session) trace(format string, args ...any) {
	if s.tracer != nil {
		s.tracer.Printf(format, args...)
	}
}
