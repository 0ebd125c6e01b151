package relation

import (
	"github.com/funvibe/tsolve/internal/config"
	"github.com/funvibe/tsolve/internal/typesystem"
)

// Verdict is the outcome of one assignability rule.
type Verdict uint8

const (
	// Defer passes the pair to the next rule.
	Defer Verdict = iota
	Accept
	Reject
)

func (v Verdict) String() string {
	switch v {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	}
	return "defer"
}

// Rule is one entry of the assignability rule table. Apply sees both sides
// after references and derived types have been resolved. Reason, when set,
// explains a Reject.
type Rule struct {
	Name   string
	Apply  func(l *Lawyer, a, b typesystem.TypeID) Verdict
	Reason func(l *Lawyer, a, b typesystem.TypeID) *FailureReason
}

// LawyerOptions derives the structural configuration the Lawyer delegates
// to from compiler options.
func LawyerOptions(cfg *config.Config) Options {
	return Options{
		StrictNullChecks:           cfg.Compiler.StrictNullChecks,
		StrictFunctionTypes:        cfg.Compiler.StrictFunctionTypes,
		ExactOptionalPropertyTypes: cfg.Compiler.ExactOptionalPropertyTypes,
		AllowVoidReturn:            true,
		AllowBivariantRest:         true,
		MethodBivariance:           !cfg.Compiler.StrictSubtypeChecking,
		EnforceReadonly:            cfg.Compiler.StrictSubtypeChecking,
		EnforceWeakTypes:           true,
		AnyMode:                    AnyBothWays,
		MaxDepth:                   cfg.Limits.SubtypeDepth,
	}
}

// Lawyer is the assignability relation: the structural relation with the
// language's intentional unsoundness rules applied on top. It keeps its own
// cache, separate from any Judge.
type Lawyer struct {
	in         *typesystem.Interner
	resolver   typesystem.Resolver
	structural *Judge
	strictNull bool
	cache      *PairCache
	rules      []Rule
}

// NewLawyer creates a Lawyer for the given configuration.
func NewLawyer(in *typesystem.Interner, resolver typesystem.Resolver, cfg *config.Config) *Lawyer {
	if resolver == nil {
		resolver = typesystem.NoopResolver{}
	}
	return &Lawyer{
		in:         in,
		resolver:   resolver,
		structural: NewJudge(in, resolver, LawyerOptions(cfg)),
		strictNull: cfg.Compiler.StrictNullChecks,
		cache:      NewPairCache(),
		rules:      Rules(),
	}
}

// BindEvaluator attaches the evaluator used to expand derived types.
func (l *Lawyer) BindEvaluator(e Evaluator) { l.structural.BindEvaluator(e) }

// Structural returns the Judge the Lawyer delegates to.
func (l *Lawyer) Structural() *Judge { return l.structural }

// Cache exposes the assignability cache.
func (l *Lawyer) Cache() *PairCache { return l.cache }

// DepthExceeded reports whether any assignability query hit the depth limit.
func (l *Lawyer) DepthExceeded() bool { return l.structural.DepthExceeded() }

// IsAssignableTo reports whether a value of type a may be used where b is
// expected.
func (l *Lawyer) IsAssignableTo(a, b typesystem.TypeID) bool {
	if v, ok := l.cache.Get(a, b); ok {
		return v
	}
	verdict, rule := l.decide(a, b)
	ok := verdict == Accept
	// A structural rejection cut short by the depth limit is not settled,
	// same as in the Judge's own cache.
	if !ok && rule.Name == RuleStructural {
		if _, limited := l.structural.checkLimited(l.normalize(a), l.normalize(b)); limited {
			return false
		}
	}
	l.cache.Put(a, b, ok)
	return ok
}

// ExplainFailure returns why a is not assignable to b, or nil when it is.
func (l *Lawyer) ExplainFailure(a, b typesystem.TypeID) *FailureReason {
	verdict, rule := l.decide(a, b)
	if verdict == Accept {
		return nil
	}
	na, nb := l.normalize(a), l.normalize(b)
	var reason *FailureReason
	if rule.Reason != nil {
		reason = rule.Reason(l, na, nb)
	}
	if reason == nil {
		reason = &FailureReason{Kind: TypeMismatch, Source: a, Target: b}
	}
	reason.Rule = rule.Name
	return reason
}

// Apply runs a single rule by name, for callers that want one rule's opinion.
func (l *Lawyer) Apply(name string, a, b typesystem.TypeID) (Verdict, bool) {
	for _, r := range l.rules {
		if r.Name == name {
			return r.Apply(l, l.normalize(a), l.normalize(b)), true
		}
	}
	return Defer, false
}

func (l *Lawyer) decide(a, b typesystem.TypeID) (Verdict, Rule) {
	na, nb := l.normalize(a), l.normalize(b)
	for _, r := range l.rules {
		if v := r.Apply(l, na, nb); v != Defer {
			return v, r
		}
	}
	// The structural rule never defers; reaching here means an empty table.
	return Reject, Rule{Name: "none"}
}

// normalize resolves references and evaluates derived types at the top
// level, so rules see the shape they are about.
func (l *Lawyer) normalize(id typesystem.TypeID) typesystem.TypeID {
	c := l.structural.newChecker(false)
	for i := 0; i < config.MaxEvalDepth; i++ {
		next := c.evaluate(c.unalias(id))
		if next == id {
			break
		}
		id = next
	}
	return id
}

func (l *Lawyer) members(id typesystem.TypeID) (memberView, bool) {
	return l.structural.newChecker(false).membersOf(id)
}
