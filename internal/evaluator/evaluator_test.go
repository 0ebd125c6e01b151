package evaluator

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funvibe/tsolve/internal/config"
	"github.com/funvibe/tsolve/internal/relation"
	ts "github.com/funvibe/tsolve/internal/typesystem"
)

func TestMain(m *testing.M) {
	config.IsTestMode = true
	os.Exit(m.Run())
}

type env struct {
	in *ts.Interner
	r  *ts.MapResolver
	e  *Evaluator
}

func newEnv(tune func(*config.Config)) *env {
	cfg := config.Default()
	if tune != nil {
		tune(cfg)
	}
	in := ts.NewInterner(cfg.Limits.TemplateExpansionLimit)
	r := ts.NewMapResolver()
	e := New(in, r, cfg)
	j := relation.NewJudge(in, r, relation.ExtendsOptions(cfg))
	j.BindEvaluator(e)
	e.BindRelation(j)
	return &env{in: in, r: r, e: e}
}

func prop(name string, t ts.TypeID) ts.PropertyInfo { return ts.PropertyInfo{Name: name, Type: t} }

func optProp(name string, t ts.TypeID) ts.PropertyInfo {
	return ts.PropertyInfo{Name: name, Type: t, Optional: true}
}

func (v *env) param(name string) ts.TypeID { return v.in.TypeParam(ts.TypeParamInfo{Name: name}) }

func (v *env) cond(check, extends, t, f ts.TypeID, distributive bool) ts.TypeID {
	return v.in.Conditional(ts.ConditionalType{Check: check, Extends: extends, True: t, False: f, Distributive: distributive})
}

func (v *env) assertEval(t *testing.T, want, id ts.TypeID) {
	t.Helper()
	got := v.e.Evaluate(id)
	assert.Equal(t, want, got, "evaluate %s: got %s, want %s", v.in.Format(id), v.in.Format(got), v.in.Format(want))
}

func TestEvaluateIsIdempotent(t *testing.T) {
	v := newEnv(nil)
	in := v.in
	obj := in.Object([]ts.PropertyInfo{prop("a", ts.TypeNumber), prop("b", ts.TypeString)})
	K := v.param("K")
	inputs := []ts.TypeID{
		ts.TypeNumber,
		obj,
		in.KeyOf(obj),
		in.IndexAccess(obj, in.LiteralString("a")),
		v.cond(in.LiteralString("x"), ts.TypeString, ts.TypeTrue, ts.TypeFalse, false),
		in.Mapped(ts.MappedType{Param: ts.TypeParamInfo{Name: "K"}, Constraint: in.KeyOf(obj), Template: in.IndexAccess(obj, K)}),
		in.StringIntrinsic(ts.Uppercase, in.Union2(in.LiteralString("a"), in.LiteralString("b"))),
	}
	for _, id := range inputs {
		once := v.e.Evaluate(id)
		assert.Equal(t, once, v.e.Evaluate(once), "evaluate twice: %s", in.Format(id))
		assert.Equal(t, once, v.e.Evaluate(id), "cached: %s", in.Format(id))
	}
	assert.Positive(t, v.e.CacheLen())
}

func TestConditional(t *testing.T) {
	v := newEnv(nil)
	in := v.in
	yes, no := in.LiteralString("yes"), in.LiteralString("no")
	T := v.param("T")

	t.Run("true branch", func(t *testing.T) {
		v.assertEval(t, yes, v.cond(in.LiteralString("a"), ts.TypeString, yes, no, false))
	})
	t.Run("false branch", func(t *testing.T) {
		v.assertEval(t, no, v.cond(ts.TypeNumber, ts.TypeString, yes, no, false))
	})
	t.Run("distributes over a union", func(t *testing.T) {
		check := in.Union2(ts.TypeString, ts.TypeNumber)
		v.assertEval(t, in.Union2(yes, no), v.cond(check, ts.TypeString, yes, no, true))
	})
	t.Run("non-distributive checks the whole union", func(t *testing.T) {
		check := in.Union2(ts.TypeString, ts.TypeNumber)
		v.assertEval(t, no, v.cond(check, ts.TypeString, yes, no, false))
	})
	t.Run("never distributes to never", func(t *testing.T) {
		v.assertEval(t, ts.TypeNever, v.cond(ts.TypeNever, ts.TypeString, yes, no, true))
	})
	t.Run("any takes both branches", func(t *testing.T) {
		v.assertEval(t, in.Union2(yes, no), v.cond(ts.TypeAny, ts.TypeString, yes, no, false))
		v.assertEval(t, yes, v.cond(ts.TypeAny, ts.TypeUnknown, yes, no, false))
	})
	t.Run("deferred while generic", func(t *testing.T) {
		c := v.cond(T, ts.TypeString, yes, no, true)
		v.assertEval(t, c, c)
	})
	t.Run("infer element type", func(t *testing.T) {
		U := in.Infer(ts.TypeParamInfo{Name: "U"})
		v.assertEval(t, ts.TypeNumber, v.cond(in.Array(ts.TypeNumber), in.Array(U), U, ts.TypeNever, false))
		v.assertEval(t, ts.TypeNever, v.cond(ts.TypeString, in.Array(U), U, ts.TypeNever, false))
	})
	t.Run("infer return type", func(t *testing.T) {
		R := in.Infer(ts.TypeParamInfo{Name: "R"})
		pattern := in.Function(ts.FunctionShape{
			Params: []ts.ParamInfo{{Name: "args", Type: in.Array(ts.TypeAny), Rest: true}},
			Return: R,
		})
		fn := in.Function(ts.FunctionShape{Params: []ts.ParamInfo{{Name: "x", Type: ts.TypeString}}, Return: ts.TypeBoolean})
		v.assertEval(t, ts.TypeBoolean, v.cond(fn, pattern, R, ts.TypeNever, false))
	})
	t.Run("extends is structural", func(t *testing.T) {
		weak := in.Object([]ts.PropertyInfo{optProp("a", ts.TypeString)})
		v.assertEval(t, yes, v.cond(in.Object([]ts.PropertyInfo{prop("b", ts.TypeString)}), weak, yes, no, false))
		anyX := in.Object([]ts.PropertyInfo{prop("x", ts.TypeAny)})
		v.assertEval(t, yes, v.cond(anyX, in.Object([]ts.PropertyInfo{prop("x", ts.TypeNumber)}), yes, no, false))
	})
	t.Run("infer constraint violated", func(t *testing.T) {
		U := in.Infer(ts.TypeParamInfo{Name: "U", Constraint: ts.TypeString})
		v.assertEval(t, no, v.cond(in.Array(ts.TypeNumber), in.Array(U), yes, no, false))
	})
}

func TestMapped(t *testing.T) {
	v := newEnv(nil)
	in := v.in
	K := v.param("K")
	S := in.Object([]ts.PropertyInfo{prop("a", ts.TypeNumber), optProp("b", ts.TypeString)})
	homomorphic := func(src ts.TypeID, optional, readonly ts.MappedModifier) ts.TypeID {
		return in.Mapped(ts.MappedType{
			Param:      ts.TypeParamInfo{Name: "K"},
			Constraint: in.KeyOf(src),
			Template:   in.IndexAccess(src, K),
			Optional:   optional,
			Readonly:   readonly,
		})
	}

	t.Run("partial", func(t *testing.T) {
		want := in.Object([]ts.PropertyInfo{optProp("a", ts.TypeNumber), optProp("b", in.Union2(ts.TypeString, ts.TypeUndefined))})
		v.assertEval(t, want, homomorphic(S, ts.ModifierAdd, ts.ModifierNone))
	})
	t.Run("required strips undefined", func(t *testing.T) {
		want := in.Object([]ts.PropertyInfo{prop("a", ts.TypeNumber), prop("b", ts.TypeString)})
		v.assertEval(t, want, homomorphic(S, ts.ModifierRemove, ts.ModifierNone))
	})
	t.Run("homomorphic keeps modifiers", func(t *testing.T) {
		want := in.Object([]ts.PropertyInfo{prop("a", ts.TypeNumber), optProp("b", in.Union2(ts.TypeString, ts.TypeUndefined))})
		v.assertEval(t, want, homomorphic(S, ts.ModifierNone, ts.ModifierNone))
	})
	t.Run("readonly array maps element-wise", func(t *testing.T) {
		arr := in.Array(ts.TypeString)
		v.assertEval(t, in.Readonly(arr), homomorphic(arr, ts.ModifierNone, ts.ModifierAdd))
	})
	t.Run("tuple maps element-wise", func(t *testing.T) {
		tup := in.Tuple([]ts.TupleElement{{Type: ts.TypeNumber}, {Type: ts.TypeString}})
		v.assertEval(t, tup, homomorphic(tup, ts.ModifierNone, ts.ModifierNone))
	})
	t.Run("literal keys", func(t *testing.T) {
		x, y := in.LiteralString("x"), in.LiteralString("y")
		m := in.Mapped(ts.MappedType{Param: ts.TypeParamInfo{Name: "K"}, Constraint: in.Union2(x, y), Template: K})
		v.assertEval(t, in.Object([]ts.PropertyInfo{prop("x", x), prop("y", y)}), m)
	})
	t.Run("string key makes an index signature", func(t *testing.T) {
		m := in.Mapped(ts.MappedType{Param: ts.TypeParamInfo{Name: "K"}, Constraint: ts.TypeString, Template: ts.TypeBoolean})
		got := v.e.Evaluate(m)
		shape, ok := in.ObjectShapeOf(got)
		require.True(t, ok)
		require.NotNil(t, shape.StringIndex)
		assert.Equal(t, ts.TypeBoolean, shape.StringIndex.Value)
	})
	t.Run("as clause filters keys", func(t *testing.T) {
		x, y := in.LiteralString("x"), in.LiteralString("y")
		m := in.Mapped(ts.MappedType{
			Param:      ts.TypeParamInfo{Name: "K"},
			Constraint: in.Union2(x, y),
			NameType:   v.cond(K, x, ts.TypeNever, K, true),
			Template:   ts.TypeNumber,
		})
		v.assertEval(t, in.Object([]ts.PropertyInfo{prop("y", ts.TypeNumber)}), m)
	})
	t.Run("deferred over a type parameter", func(t *testing.T) {
		T := v.param("T")
		m := homomorphic(T, ts.ModifierAdd, ts.ModifierNone)
		v.assertEval(t, m, m)
	})
}

func TestIndexAccess(t *testing.T) {
	v := newEnv(nil)
	in := v.in
	a, b := in.LiteralString("a"), in.LiteralString("b")
	obj := in.Object([]ts.PropertyInfo{prop("a", ts.TypeNumber), optProp("b", ts.TypeString)})
	pair := in.Tuple([]ts.TupleElement{{Type: ts.TypeNumber}, {Type: ts.TypeString}})
	dict := in.ObjectWithShape(ts.ObjectShape{StringIndex: &ts.IndexSignature{Key: ts.TypeString, Value: ts.TypeBoolean}})

	tests := []struct {
		name string
		obj  ts.TypeID
		idx  ts.TypeID
		want ts.TypeID
	}{
		{"property", obj, a, ts.TypeNumber},
		{"optional property", obj, b, in.Union2(ts.TypeString, ts.TypeUndefined)},
		{"union index", obj, in.Union2(a, b), in.Union([]ts.TypeID{ts.TypeNumber, ts.TypeString, ts.TypeUndefined})},
		{"missing property", obj, in.LiteralString("c"), ts.TypeError},
		{"string index", dict, in.LiteralString("anything"), ts.TypeBoolean},
		{"array element", in.Array(ts.TypeString), ts.TypeNumber, ts.TypeString},
		{"array length", in.Array(ts.TypeString), in.LiteralString("length"), ts.TypeNumber},
		{"tuple position", pair, in.LiteralNumber(1), ts.TypeString},
		{"tuple element union", pair, ts.TypeNumber, in.Union2(ts.TypeNumber, ts.TypeString)},
		{"tuple length", pair, in.LiteralString("length"), in.LiteralNumber(2)},
		{"string length", ts.TypeString, in.LiteralString("length"), ts.TypeNumber},
		{"any object", ts.TypeAny, a, ts.TypeAny},
		{"never index", obj, ts.TypeNever, ts.TypeNever},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v.assertEval(t, tt.want, in.IndexAccess(tt.obj, tt.idx))
		})
	}

	t.Run("unchecked indexed access", func(t *testing.T) {
		strict := newEnv(func(c *config.Config) { c.Compiler.NoUncheckedIndexedAccess = true })
		sin := strict.in
		strict.assertEval(t, sin.Union2(ts.TypeString, ts.TypeUndefined), sin.IndexAccess(sin.Array(ts.TypeString), ts.TypeNumber))
	})
	t.Run("generic object is deferred", func(t *testing.T) {
		T := v.param("T")
		ia := in.IndexAccess(T, a)
		v.assertEval(t, ia, ia)
	})
}

func TestKeyOf(t *testing.T) {
	v := newEnv(nil)
	in := v.in
	a, b, c := in.LiteralString("a"), in.LiteralString("b"), in.LiteralString("c")
	ab := in.Object([]ts.PropertyInfo{prop("a", ts.TypeNumber), prop("b", ts.TypeNumber)})
	bc := in.Object([]ts.PropertyInfo{prop("b", ts.TypeNumber), prop("c", ts.TypeNumber)})
	numbered := in.Object([]ts.PropertyInfo{prop("0", ts.TypeString)})
	dict := in.ObjectWithShape(ts.ObjectShape{StringIndex: &ts.IndexSignature{Key: ts.TypeString, Value: ts.TypeBoolean}})
	lengthKey := in.Union2(ts.TypeNumber, in.LiteralString("length"))
	propertyKey := in.Union([]ts.TypeID{ts.TypeString, ts.TypeNumber, ts.TypeSymbol})

	tests := []struct {
		name string
		of   ts.TypeID
		want ts.TypeID
	}{
		{"object", ab, in.Union2(a, b)},
		{"union keeps common keys", in.Union2(ab, bc), b},
		{"intersection joins keys", in.Intersection2(ab, in.Object([]ts.PropertyInfo{prop("c", ts.TypeString)})), in.Union([]ts.TypeID{a, b, c})},
		{"integer names are numbers", numbered, in.LiteralNumber(0)},
		{"string index", dict, in.Union2(ts.TypeString, ts.TypeNumber)},
		{"array", in.Array(ts.TypeString), lengthKey},
		{"string", ts.TypeString, lengthKey},
		{"number", ts.TypeNumber, ts.TypeNever},
		{"any", ts.TypeAny, propertyKey},
		{"unknown", ts.TypeUnknown, ts.TypeNever},
		{"empty object", in.Object(nil), ts.TypeNever},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v.assertEval(t, tt.want, in.KeyOf(tt.of))
		})
	}
}

func TestStringIntrinsicsAndTemplates(t *testing.T) {
	v := newEnv(nil)
	in := v.in
	a, b := in.LiteralString("a"), in.LiteralString("b")
	T := v.param("T")

	v.assertEval(t, in.Union2(in.LiteralString("A"), in.LiteralString("B")),
		in.StringIntrinsic(ts.Uppercase, in.Union2(a, b)))

	capitalized := in.StringIntrinsic(ts.Capitalize, in.TemplateLiteral([]ts.TemplateSpan{{Text: "ab"}, {Type: ts.TypeString}}))
	v.assertEval(t, in.TemplateLiteral([]ts.TemplateSpan{{Text: "Ab"}, {Type: ts.TypeString}}), capitalized)

	generic := in.StringIntrinsic(ts.Lowercase, T)
	v.assertEval(t, generic, generic)

	obj := in.Object([]ts.PropertyInfo{prop("k", in.Union2(a, b))})
	tpl := in.TemplateLiteral([]ts.TemplateSpan{{Type: in.IndexAccess(obj, in.LiteralString("k"))}, {Text: "-x"}})
	v.assertEval(t, in.Union2(in.LiteralString("a-x"), in.LiteralString("b-x")), tpl)
}

func TestApplications(t *testing.T) {
	v := newEnv(nil)
	in := v.in
	T := v.param("T")

	box := v.r.Declare("Box")
	v.r.Define(box, in.Object([]ts.PropertyInfo{prop("value", T)}), ts.TypeParamInfo{Name: "T", Default: ts.TypeString})
	alias := v.r.Declare("Alias")
	v.r.Define(alias, in.Array(ts.TypeNumber))

	v.assertEval(t, in.Object([]ts.PropertyInfo{prop("value", ts.TypeNumber)}), in.Application(in.Lazy(box), []ts.TypeID{ts.TypeNumber}))
	v.assertEval(t, in.Object([]ts.PropertyInfo{prop("value", ts.TypeString)}), in.Application(in.Lazy(box), nil))
	v.assertEval(t, in.Array(ts.TypeNumber), in.Lazy(alias))
	v.assertEval(t, in.Lazy(box), in.Lazy(box))

	query := v.r.Declare("value")
	v.r.Define(query, in.LiteralNumber(3))
	v.assertEval(t, in.LiteralNumber(3), in.TypeQuery(query))
}

func TestRecursionLimits(t *testing.T) {
	t.Run("self reference", func(t *testing.T) {
		v := newEnv(nil)
		self := v.r.Declare("Self")
		v.r.Define(self, v.in.Lazy(self))
		assert.Equal(t, ts.TypeError, v.e.Evaluate(v.in.Lazy(self)))
		assert.True(t, v.e.RecursionDetected())
	})
	t.Run("ever-growing application", func(t *testing.T) {
		v := newEnv(nil)
		in := v.in
		T := v.param("T")
		loop := v.r.Declare("Loop")
		v.r.Define(loop, in.Application(in.Lazy(loop), []ts.TypeID{in.Array(T)}), ts.TypeParamInfo{Name: "T"})
		assert.Equal(t, ts.TypeError, v.e.Evaluate(in.Application(in.Lazy(loop), []ts.TypeID{ts.TypeNumber})))
		assert.True(t, v.e.DepthExceeded())
	})
}

func TestInstantiate(t *testing.T) {
	v := newEnv(nil)
	in := v.in
	T, U := v.param("T"), v.param("U")

	t.Run("substitutes by name", func(t *testing.T) {
		got := v.e.Instantiate(in.Object([]ts.PropertyInfo{prop("t", T), prop("u", in.Array(U))}),
			ts.Substitution{"T": ts.TypeNumber, "U": ts.TypeString})
		assert.Equal(t, in.Object([]ts.PropertyInfo{prop("t", ts.TypeNumber), prop("u", in.Array(ts.TypeString))}), got)
	})
	t.Run("signature type parameters shadow", func(t *testing.T) {
		fn := in.Function(ts.FunctionShape{
			TypeParams: []ts.TypeParamInfo{{Name: "T"}},
			Params:     []ts.ParamInfo{{Name: "x", Type: T}},
			Return:     U,
		})
		want := in.Function(ts.FunctionShape{
			TypeParams: []ts.TypeParamInfo{{Name: "T"}},
			Params:     []ts.ParamInfo{{Name: "x", Type: T}},
			Return:     ts.TypeString,
		})
		assert.Equal(t, want, v.e.Instantiate(fn, ts.Substitution{"T": ts.TypeNumber, "U": ts.TypeString}))
	})
	t.Run("mapped parameter shadows", func(t *testing.T) {
		K := v.param("K")
		m := in.Mapped(ts.MappedType{Param: ts.TypeParamInfo{Name: "K"}, Constraint: in.KeyOf(T), Template: in.IndexAccess(T, K)})
		got := v.e.Instantiate(m, ts.Substitution{"K": ts.TypeString})
		assert.Equal(t, m, got)
	})
	t.Run("distributes a naked conditional", func(t *testing.T) {
		c := v.cond(T, ts.TypeString, in.Array(T), ts.TypeNever, true)
		got := v.e.Instantiate(c, ts.Substitution{"T": in.Union2(ts.TypeString, ts.TypeNumber)})
		assert.Equal(t, in.Array(ts.TypeString), v.e.Evaluate(got))
		assert.Equal(t, ts.TypeNever, v.e.Instantiate(c, ts.Substitution{"T": ts.TypeNever}))
	})
	t.Run("this", func(t *testing.T) {
		self := in.Object([]ts.PropertyInfo{prop("me", in.This())})
		got := v.e.Instantiate(self, ts.Substitution{"this": ts.TypeString})
		assert.Equal(t, in.Object([]ts.PropertyInfo{prop("me", ts.TypeString)}), got)
	})
	t.Run("empty substitution", func(t *testing.T) {
		assert.Equal(t, T, v.e.Instantiate(T, nil))
	})
}
