package relation

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funvibe/tsolve/internal/config"
	ts "github.com/funvibe/tsolve/internal/typesystem"
)

type ruleCase struct {
	name string
	a, b ts.TypeID
	want Verdict
}

func runRule(t *testing.T, e *env, rule string, cases []ruleCase) {
	t.Helper()
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := e.lawyer.Apply(rule, tt.a, tt.b)
			require.True(t, ok, "rule %s", rule)
			assert.Equal(t, tt.want, got, "%s: %s -> %s", rule, e.in.Format(tt.a), e.in.Format(tt.b))
		})
	}
}

func TestRuleTableOrder(t *testing.T) {
	names := lo.Map(Rules(), func(r Rule, _ int) string { return r.Name })
	assert.Equal(t, []string{
		RuleIdentity, RuleAnyBothWays, RuleNonStrictNullish, RuleUnknownTop, RuleNeverBottom,
		RuleErrorPoison, RuleUnknownSource, RuleEnumNominal, RuleWeakType, RuleExcessProperty,
		RuleEmptyObjectTarget, RuleLiteralWidening, RuleStructural,
	}, names)

	e := newEnv(nil)
	_, ok := e.lawyer.Apply("no-such-rule", ts.TypeNumber, ts.TypeNumber)
	assert.False(t, ok)
}

func TestRuleIdentity(t *testing.T) {
	e := newEnv(nil)
	o := e.obj(prop("x", ts.TypeNumber))
	runRule(t, e, RuleIdentity, []ruleCase{
		{"same handle", o, o, Accept},
		{"different handles", o, ts.TypeNumber, Defer},
	})
}

func TestRuleAnyBothWays(t *testing.T) {
	e := newEnv(nil)
	runRule(t, e, RuleAnyBothWays, []ruleCase{
		{"any source", ts.TypeAny, ts.TypeNumber, Accept},
		{"any target", ts.TypeNumber, ts.TypeAny, Accept},
		{"neither", ts.TypeString, ts.TypeNumber, Defer},
	})
	assert.True(t, e.lawyer.IsAssignableTo(e.obj(prop("x", ts.TypeAny)), e.obj(prop("x", ts.TypeNumber))),
		"any relates both ways below the top level too")
	assert.False(t, e.judge.IsSubtypeOf(e.obj(prop("x", ts.TypeAny)), e.obj(prop("x", ts.TypeNumber))))
}

func TestRuleNonStrictNullish(t *testing.T) {
	strict := newEnv(nil)
	runRule(t, strict, RuleNonStrictNullish, []ruleCase{
		{"strict null", ts.TypeNull, ts.TypeNumber, Defer},
	})
	assert.False(t, strict.lawyer.IsAssignableTo(ts.TypeNull, ts.TypeNumber))

	loose := newEnv(func(c *config.Config) { c.Compiler.StrictNullChecks = false })
	runRule(t, loose, RuleNonStrictNullish, []ruleCase{
		{"null", ts.TypeNull, ts.TypeNumber, Accept},
		{"undefined", ts.TypeUndefined, loose.obj(prop("x", ts.TypeNumber)), Accept},
		{"other", ts.TypeString, ts.TypeNumber, Defer},
	})
	assert.True(t, loose.lawyer.IsAssignableTo(ts.TypeNull, ts.TypeNumber))
}

func TestRuleUnknownTop(t *testing.T) {
	e := newEnv(nil)
	runRule(t, e, RuleUnknownTop, []ruleCase{
		{"into unknown", e.obj(), ts.TypeUnknown, Accept},
		{"elsewhere", ts.TypeUnknown, ts.TypeNumber, Defer},
	})
}

func TestRuleNeverBottom(t *testing.T) {
	e := newEnv(nil)
	runRule(t, e, RuleNeverBottom, []ruleCase{
		{"never source", ts.TypeNever, ts.TypeNumber, Accept},
		{"never target", ts.TypeNumber, ts.TypeNever, Reject},
		{"neither", ts.TypeNumber, ts.TypeString, Defer},
	})
}

func TestRuleErrorPoison(t *testing.T) {
	e := newEnv(nil)
	runRule(t, e, RuleErrorPoison, []ruleCase{
		{"error source", ts.TypeError, ts.TypeNumber, Reject},
		{"error target", ts.TypeNumber, ts.TypeError, Reject},
		{"neither", ts.TypeNumber, ts.TypeString, Defer},
	})
	reason := e.lawyer.ExplainFailure(ts.TypeError, ts.TypeNumber)
	require.NotNil(t, reason)
	assert.Equal(t, ErrorType, reason.Kind)
	assert.Equal(t, RuleErrorPoison, reason.Rule)
}

func TestRuleUnknownSource(t *testing.T) {
	e := newEnv(nil)
	runRule(t, e, RuleUnknownSource, []ruleCase{
		{"unknown source", ts.TypeUnknown, ts.TypeNumber, Reject},
		{"other source", ts.TypeNumber, ts.TypeString, Defer},
	})
	assert.True(t, e.lawyer.IsAssignableTo(ts.TypeUnknown, ts.TypeUnknown))
	assert.True(t, e.lawyer.IsAssignableTo(ts.TypeUnknown, ts.TypeAny))
}

func TestRuleEnumNominal(t *testing.T) {
	e := newEnv(nil)
	in := e.in
	zero, one := in.LiteralNumber(0), in.LiteralNumber(1)

	color := e.r.Declare("Color")
	e.r.MarkNumericEnum(color)
	colorAll := in.Enum(color, in.Union2(zero, one))
	red := in.Enum(color, zero)

	shade := e.r.Declare("Shade")
	e.r.MarkNumericEnum(shade)
	dark := in.Enum(shade, zero)

	dir := e.r.Declare("Direction")
	up, down := in.LiteralString("up"), in.LiteralString("down")
	dirAll := in.Enum(dir, in.Union2(up, down))

	runRule(t, e, RuleEnumNominal, []ruleCase{
		{"member into its enum", red, colorAll, Accept},
		{"member of another enum", dark, colorAll, Reject},
		{"union with a foreign member", in.Union2(red, dark), colorAll, Reject},
		{"number into numeric enum", ts.TypeNumber, colorAll, Accept},
		{"member value into numeric enum", one, colorAll, Accept},
		{"non-member value", in.LiteralNumber(5), colorAll, Reject},
		{"string into string enum", up, dirAll, Reject},
		{"non-enum target", red, ts.TypeNumber, Defer},
	})
	assert.True(t, e.lawyer.IsAssignableTo(red, ts.TypeNumber), "enum members widen to their values")
	assert.False(t, e.lawyer.IsAssignableTo(ts.TypeString, dirAll))
}

func TestRuleWeakType(t *testing.T) {
	e := newEnv(nil)
	weak := e.obj(optProp("a", ts.TypeNumber), optProp("b", ts.TypeString))
	runRule(t, e, RuleWeakType, []ruleCase{
		{"no shared property", e.obj(prop("c", ts.TypeNumber)), weak, Reject},
		{"one shared property", e.obj(prop("a", ts.TypeNumber), prop("c", ts.TypeNumber)), weak, Defer},
		{"empty source", e.obj(), weak, Defer},
		{"target not weak", e.obj(prop("c", ts.TypeNumber)), e.obj(prop("a", ts.TypeNumber)), Defer},
		{"union of weak targets", e.obj(prop("b", ts.TypeString)),
			e.in.Union2(e.obj(optProp("a", ts.TypeNumber)), e.obj(optProp("b", ts.TypeString))), Defer},
	})
	reason := e.lawyer.ExplainFailure(e.obj(prop("c", ts.TypeNumber)), weak)
	require.NotNil(t, reason)
	assert.Equal(t, NoCommonProperties, reason.Kind)
	assert.Equal(t, ts.DiagNoCommonProperties, reason.Diagnostic(reason.Source, reason.Target).Code)
}

func TestRuleExcessProperty(t *testing.T) {
	e := newEnv(nil)
	in := e.in
	target := e.obj(prop("a", ts.TypeNumber))
	literal := e.fresh(prop("a", ts.TypeNumber), prop("b", ts.TypeString))
	withIndex := in.ObjectWithShape(ts.ObjectShape{
		StringIndex: &ts.IndexSignature{Key: ts.TypeString, Value: ts.TypeUnknown},
	})

	runRule(t, e, RuleExcessProperty, []ruleCase{
		{"extra property on a literal", literal, target, Reject},
		{"non-fresh source", e.obj(prop("a", ts.TypeNumber), prop("b", ts.TypeString)), target, Defer},
		{"exact literal", e.fresh(prop("a", ts.TypeNumber)), target, Defer},
		{"any union member declares it", literal, in.Union2(target, e.obj(prop("b", ts.TypeString))), Defer},
		{"intersection declares it", literal, in.Intersection2(target, e.obj(prop("b", ts.TypeString))), Defer},
		{"string index accepts everything", literal, withIndex, Defer},
		{"empty object accepts everything", literal, e.obj(), Defer},
	})

	reason := e.lawyer.ExplainFailure(literal, target)
	require.NotNil(t, reason)
	assert.Equal(t, ExcessProperty, reason.Kind)
	assert.Equal(t, "b", reason.Property)
	assert.Equal(t, RuleExcessProperty, reason.Rule)
	assert.Equal(t, `excess property "b"`, reason.String())
}

func TestRuleEmptyObjectTarget(t *testing.T) {
	e := newEnv(nil)
	empty := e.obj()
	runRule(t, e, RuleEmptyObjectTarget, []ruleCase{
		{"primitive", ts.TypeNumber, empty, Accept},
		{"object", e.obj(prop("x", ts.TypeNumber)), empty, Accept},
		{"null", ts.TypeNull, empty, Reject},
		{"undefined", ts.TypeUndefined, empty, Reject},
		{"void", ts.TypeVoid, empty, Reject},
		{"non-empty target", ts.TypeNumber, e.obj(prop("x", ts.TypeNumber)), Defer},
	})
}

func TestRuleLiteralWidening(t *testing.T) {
	e := newEnv(nil)
	in := e.in
	runRule(t, e, RuleLiteralWidening, []ruleCase{
		{"literal into union with its primitive", in.LiteralString("a"), in.Union2(ts.TypeString, ts.TypeNumber), Accept},
		{"primitive missing", in.LiteralString("a"), in.Union2(ts.TypeNumber, ts.TypeBoolean), Defer},
		{"not a literal", ts.TypeString, in.Union2(ts.TypeString, ts.TypeNumber), Defer},
		{"target not a union", in.LiteralString("a"), ts.TypeString, Defer},
	})
}

func TestRuleStructural(t *testing.T) {
	e := newEnv(nil)
	ab := e.obj(prop("a", ts.TypeNumber), prop("b", ts.TypeString))
	a := e.obj(prop("a", ts.TypeNumber))
	runRule(t, e, RuleStructural, []ruleCase{
		{"wider source", ab, a, Accept},
		{"narrower source", a, ab, Reject},
	})

	reason := e.lawyer.ExplainFailure(a, ab)
	require.NotNil(t, reason)
	assert.Equal(t, MissingProperty, reason.Kind)
	assert.Equal(t, "b", reason.Property)
	assert.Equal(t, RuleStructural, reason.Rule)
	assert.Nil(t, e.lawyer.ExplainFailure(ab, a))
}

func TestLawyerDiffersFromJudge(t *testing.T) {
	e := newEnv(nil)
	in := e.in

	// Each relation keeps its own cache: the answers differ for the same pair.
	assert.False(t, e.judge.IsSubtypeOf(ts.TypeAny, ts.TypeNumber))
	assert.True(t, e.lawyer.IsAssignableTo(ts.TypeAny, ts.TypeNumber))
	assert.False(t, e.judge.IsSubtypeOf(ts.TypeAny, ts.TypeNumber))
	v, ok := e.lawyer.Cache().Get(ts.TypeAny, ts.TypeNumber)
	require.True(t, ok)
	assert.True(t, v)

	readonlyX := e.obj(roProp("x", ts.TypeNumber))
	mutableX := e.obj(prop("x", ts.TypeNumber))
	assert.True(t, e.lawyer.IsAssignableTo(readonlyX, mutableX), "readonly is not enforced by default")
	assert.False(t, e.judge.IsSubtypeOf(readonlyX, mutableX))

	assert.True(t, e.lawyer.IsAssignableTo(e.fn(ts.TypeNumber), e.fn(ts.TypeVoid)), "void return accepts anything")
	assert.True(t, e.lawyer.IsAssignableTo(ts.TypeString, e.obj(prop("length", ts.TypeNumber))))
	assert.True(t, e.lawyer.IsAssignableTo(in.LiteralNumber(1), in.Union2(ts.TypeNumber, ts.TypeString)))

	strict := newEnv(func(c *config.Config) { c.Compiler.StrictSubtypeChecking = true })
	assert.False(t, strict.lawyer.IsAssignableTo(strict.obj(roProp("x", ts.TypeNumber)), strict.obj(prop("x", ts.TypeNumber))))
}

func TestLawyerResolvesReferences(t *testing.T) {
	e := newEnv(nil)
	in := e.in
	T := in.TypeParam(ts.TypeParamInfo{Name: "T"})
	box := e.r.Declare("Box")
	e.r.Define(box, e.obj(prop("value", T)), ts.TypeParamInfo{Name: "T"})
	boxOf := func(arg ts.TypeID) ts.TypeID { return in.Application(in.Lazy(box), []ts.TypeID{arg}) }

	assert.True(t, e.lawyer.IsAssignableTo(boxOf(in.LiteralNumber(1)), boxOf(ts.TypeNumber)))
	assert.False(t, e.lawyer.IsAssignableTo(boxOf(ts.TypeString), boxOf(ts.TypeNumber)))
	assert.True(t, e.lawyer.IsAssignableTo(e.obj(prop("value", ts.TypeString)), boxOf(ts.TypeString)))

	// Excess properties are found on the expanded target.
	literal := e.fresh(prop("value", ts.TypeNumber), prop("extra", ts.TypeNumber))
	assert.False(t, e.lawyer.IsAssignableTo(literal, boxOf(ts.TypeNumber)))
}
