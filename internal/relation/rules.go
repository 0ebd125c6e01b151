package relation

import (
	"github.com/funvibe/tsolve/internal/typesystem"
)

// Rule names.
const (
	RuleIdentity          = "identity"
	RuleAnyBothWays       = "any-both-ways"
	RuleNonStrictNullish  = "non-strict-nullish"
	RuleUnknownTop        = "unknown-top"
	RuleNeverBottom       = "never-bottom"
	RuleErrorPoison       = "error-poison"
	RuleUnknownSource     = "unknown-source"
	RuleEnumNominal       = "enum-nominal"
	RuleWeakType          = "weak-type"
	RuleExcessProperty    = "excess-property"
	RuleEmptyObjectTarget = "empty-object-target"
	RuleLiteralWidening   = "literal-widening"
	RuleStructural        = "structural"
)

// Rules returns the assignability rule table in evaluation order.
func Rules() []Rule {
	return []Rule{
		{Name: RuleIdentity, Apply: identityRule},
		{Name: RuleAnyBothWays, Apply: anyRule},
		{Name: RuleNonStrictNullish, Apply: nonStrictNullishRule},
		{Name: RuleUnknownTop, Apply: unknownTopRule},
		{Name: RuleNeverBottom, Apply: neverBottomRule},
		{Name: RuleErrorPoison, Apply: errorPoisonRule, Reason: func(_ *Lawyer, a, b typesystem.TypeID) *FailureReason {
			return &FailureReason{Kind: ErrorType, Source: a, Target: b}
		}},
		{Name: RuleUnknownSource, Apply: unknownSourceRule},
		{Name: RuleEnumNominal, Apply: enumNominalRule},
		{Name: RuleWeakType, Apply: weakTypeRule, Reason: func(_ *Lawyer, a, b typesystem.TypeID) *FailureReason {
			return &FailureReason{Kind: NoCommonProperties, Source: a, Target: b}
		}},
		{Name: RuleExcessProperty, Apply: excessPropertyRule, Reason: excessPropertyReason},
		{Name: RuleEmptyObjectTarget, Apply: emptyObjectTargetRule},
		{Name: RuleLiteralWidening, Apply: literalWideningRule},
		{Name: RuleStructural, Apply: structuralRule, Reason: func(l *Lawyer, a, b typesystem.TypeID) *FailureReason {
			return l.structural.explain(a, b)
		}},
	}
}

func identityRule(_ *Lawyer, a, b typesystem.TypeID) Verdict {
	if a == b {
		return Accept
	}
	return Defer
}

func anyRule(_ *Lawyer, a, b typesystem.TypeID) Verdict {
	if a == typesystem.TypeAny || b == typesystem.TypeAny {
		return Accept
	}
	return Defer
}

func nonStrictNullishRule(l *Lawyer, a, _ typesystem.TypeID) Verdict {
	if !l.strictNull && (a == typesystem.TypeNull || a == typesystem.TypeUndefined) {
		return Accept
	}
	return Defer
}

func unknownTopRule(_ *Lawyer, _, b typesystem.TypeID) Verdict {
	if b == typesystem.TypeUnknown {
		return Accept
	}
	return Defer
}

func neverBottomRule(_ *Lawyer, a, b typesystem.TypeID) Verdict {
	switch {
	case a == typesystem.TypeNever:
		return Accept
	case b == typesystem.TypeNever:
		return Reject
	}
	return Defer
}

func errorPoisonRule(_ *Lawyer, a, b typesystem.TypeID) Verdict {
	if a == typesystem.TypeError || b == typesystem.TypeError {
		return Reject
	}
	return Defer
}

func unknownSourceRule(_ *Lawyer, a, _ typesystem.TypeID) Verdict {
	if a == typesystem.TypeUnknown {
		return Reject
	}
	return Defer
}

// enumNominalRule keeps enums nominal: members of one enum never flow into
// another, and string enums accept only their own members.
func enumNominalRule(l *Lawyer, a, b typesystem.TypeID) Verdict {
	in := l.in
	tb, targetIsEnum := in.Key(b).(typesystem.Enum)
	sa, sourceIsEnum := in.Key(a).(typesystem.Enum)

	if sourceIsEnum && targetIsEnum {
		if sa.Def != tb.Def {
			return Reject
		}
		if l.structural.IsSubtypeOf(sa.Members, tb.Members) {
			return Accept
		}
		return Reject
	}
	if !targetIsEnum {
		return Defer
	}

	for _, m := range in.UnionMembers(a) {
		if e, ok := in.Key(m).(typesystem.Enum); ok && e.Def != tb.Def {
			return Reject
		}
	}
	if l.resolver.IsNumericEnum(tb.Def) {
		if a == typesystem.TypeNumber {
			return Accept
		}
		if lit, ok := in.LiteralOf(a); ok && lit.Kind == typesystem.LitNumber {
			if l.structural.IsSubtypeOf(a, tb.Members) {
				return Accept
			}
			return Reject
		}
		return Defer
	}
	if in.PrimitiveClassOf(a) == typesystem.ClassString {
		return Reject
	}
	return Defer
}

// weakTargets returns the weak object types b consists of: b itself, or
// every member of a union made only of weak objects.
func (l *Lawyer) weakTargets(b typesystem.TypeID) [][]typesystem.PropertyInfo {
	var out [][]typesystem.PropertyInfo
	for _, m := range l.in.UnionMembers(b) {
		shape, ok := l.in.ObjectShapeOf(l.normalize(m))
		if !ok || !isWeak(shape.Properties, shape.StringIndex, shape.NumberIndex) {
			return nil
		}
		out = append(out, shape.Properties)
	}
	return out
}

func weakTypeRule(l *Lawyer, a, b typesystem.TypeID) Verdict {
	targets := l.weakTargets(b)
	if len(targets) == 0 {
		return Defer
	}
	view, ok := l.members(a)
	if !ok || len(view.props) == 0 {
		return Defer
	}
	for _, props := range targets {
		if sharesProperty(view, props) {
			return Defer
		}
	}
	return Reject
}

// targetHasProperty reports whether an excess property check against b
// accepts name. A string index or an empty target accepts every name.
func (l *Lawyer) targetHasProperty(b typesystem.TypeID, name string) (has, checked bool) {
	in := l.in
	switch k := in.Key(b).(type) {
	case typesystem.Object, typesystem.ObjectWithIndex:
		shape, _ := in.ObjectShapeOf(b)
		if shape.StringIndex != nil || (len(shape.Properties) == 0 && shape.NumberIndex == nil) {
			return true, true
		}
		if shape.NumberIndex != nil && isNumericName(name) {
			return true, true
		}
		_, ok := shape.Property(name)
		return ok, true
	case typesystem.Callable:
		_, ok := in.CallableShape(k.Shape).Property(name)
		return ok, true
	case typesystem.Intersection, typesystem.Union:
		anyChecked := false
		for _, m := range in.TypeList(listOf(k)) {
			has, checked := l.targetHasProperty(l.normalize(m), name)
			if has {
				return true, true
			}
			anyChecked = anyChecked || checked
		}
		return false, anyChecked
	}
	return false, false
}

func listOf(k typesystem.TypeKey) typesystem.ListID {
	switch k := k.(type) {
	case typesystem.Union:
		return k.Members
	case typesystem.Intersection:
		return k.Members
	}
	return 0
}

func (l *Lawyer) excessProperty(a, b typesystem.TypeID) (string, bool) {
	shape, ok := l.in.ObjectShapeOf(a)
	if !ok || !shape.IsFresh() {
		return "", false
	}
	for _, p := range shape.Properties {
		has, checked := l.targetHasProperty(b, p.Name)
		if !checked {
			return "", false
		}
		if !has {
			return p.Name, true
		}
	}
	return "", false
}

// excessPropertyRule rejects object literals that name a property the
// target does not declare. Only fresh literals are checked.
func excessPropertyRule(l *Lawyer, a, b typesystem.TypeID) Verdict {
	if _, found := l.excessProperty(a, b); found {
		return Reject
	}
	return Defer
}

func excessPropertyReason(l *Lawyer, a, b typesystem.TypeID) *FailureReason {
	name, _ := l.excessProperty(a, b)
	return &FailureReason{Kind: ExcessProperty, Source: a, Target: b, Property: name}
}

func emptyObjectTargetRule(l *Lawyer, a, b typesystem.TypeID) Verdict {
	if !l.in.IsEmptyObject(b) {
		return Defer
	}
	switch a {
	case typesystem.TypeNull, typesystem.TypeUndefined, typesystem.TypeVoid, typesystem.TypeUnknown:
		return Reject
	}
	return Accept
}

// literalWideningRule accepts a literal where a union lists its primitive.
func literalWideningRule(l *Lawyer, a, b typesystem.TypeID) Verdict {
	prim := l.in.PrimitiveOf(a)
	if prim == typesystem.TypeNone || prim == a || !l.in.IsUnion(b) {
		return Defer
	}
	for _, m := range l.in.UnionMembers(b) {
		if m == prim {
			return Accept
		}
	}
	return Defer
}

func structuralRule(l *Lawyer, a, b typesystem.TypeID) Verdict {
	if l.structural.IsSubtypeOf(a, b) {
		return Accept
	}
	return Reject
}
