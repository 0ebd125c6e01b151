package inference

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
	in    *ts.Interner
	r     *ts.MapResolver
	judge *relation.Judge
}

func newEnv() *env {
	cfg := config.Default()
	in := ts.NewInterner(cfg.Limits.TemplateExpansionLimit)
	r := ts.NewMapResolver()
	return &env{in: in, r: r, judge: relation.NewJudge(in, r, relation.JudgeOptions(cfg))}
}

func (e *env) ctx() *Context { return NewContext(e.in, e.r, e.judge) }

func prop(name string, t ts.TypeID) ts.PropertyInfo { return ts.PropertyInfo{Name: name, Type: t} }

func (e *env) obj(props ...ts.PropertyInfo) ts.TypeID { return e.in.Object(props) }

func (e *env) fn(ret ts.TypeID, params ...ts.TypeID) ts.TypeID {
	f := ts.FunctionShape{Return: ret}
	for i, p := range params {
		f.Params = append(f.Params, ts.ParamInfo{Name: string(rune('a' + i)), Type: p})
	}
	return e.in.Function(f)
}

func (e *env) resolved(t *testing.T, c *Context, name string) ts.TypeID {
	t.Helper()
	got, conflict := c.Resolve(name)
	require.Nil(t, conflict)
	return got
}

func TestInferLiterals(t *testing.T) {
	e := newEnv()
	in := e.in

	tests := []struct {
		name    string
		param   ts.TypeParamInfo
		sources []ts.TypeID
		want    ts.TypeID
	}{
		{"mixed widen to union", ts.TypeParamInfo{Name: "T"},
			[]ts.TypeID{in.LiteralNumber(1), in.LiteralString("a"), ts.TypeTrue},
			in.Union([]ts.TypeID{ts.TypeNumber, ts.TypeString, ts.TypeBoolean})},
		{"same primitive widens", ts.TypeParamInfo{Name: "T"},
			[]ts.TypeID{in.LiteralNumber(1), in.LiteralNumber(2)}, ts.TypeNumber},
		{"single literal kept", ts.TypeParamInfo{Name: "T"},
			[]ts.TypeID{in.LiteralString("a")}, in.LiteralString("a")},
		{"const keeps literals", ts.TypeParamInfo{Name: "T", IsConst: true},
			[]ts.TypeID{in.LiteralNumber(1), in.LiteralNumber(2)},
			in.Union2(in.LiteralNumber(1), in.LiteralNumber(2))},
		{"literal constraint keeps literals",
			ts.TypeParamInfo{Name: "T", Constraint: in.Union2(in.LiteralString("a"), in.LiteralString("b"))},
			[]ts.TypeID{in.LiteralString("a"), in.LiteralString("b")},
			in.Union2(in.LiteralString("a"), in.LiteralString("b"))},
		{"never is dropped", ts.TypeParamInfo{Name: "T"},
			[]ts.TypeID{ts.TypeNever, ts.TypeString}, ts.TypeString},
		{"only never", ts.TypeParamInfo{Name: "T"},
			[]ts.TypeID{ts.TypeNever}, ts.TypeNever},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := e.ctx()
			tp := c.AddTypeParam(tc.param)
			for _, s := range tc.sources {
				c.InferFromTypes(s, tp, PriorityNakedTypeVariable)
			}
			got := e.resolved(t, c, tc.param.Name)
			assert.Equal(t, tc.want, got, "want %s, got %s", in.Format(tc.want), in.Format(got))
		})
	}
}

func TestInferStructural(t *testing.T) {
	e := newEnv()
	in := e.in
	T := in.TypeParam(ts.TypeParamInfo{Name: "T"})
	a := e.obj(prop("a", ts.TypeNumber))
	b := e.obj(prop("b", ts.TypeString))
	boxDef := e.r.Declare("Box")
	box := func(arg ts.TypeID) ts.TypeID { return in.Application(in.Lazy(boxDef), []ts.TypeID{arg}) }
	keyParam := ts.TypeParamInfo{Name: "K"}
	K := in.TypeParam(keyParam)

	tests := []struct {
		name   string
		source ts.TypeID
		target ts.TypeID
		extra  []ts.TypeID
		want   ts.TypeID
	}{
		{"array element", in.Array(ts.TypeString), in.Array(T), nil, ts.TypeString},
		{"property", e.obj(prop("v", ts.TypeNumber)), e.obj(prop("v", T)), nil, ts.TypeNumber},
		{"union target", in.Union2(ts.TypeString, ts.TypeUndefined), in.Union2(T, ts.TypeUndefined), nil, ts.TypeString},
		{"return type", e.fn(ts.TypeString), e.fn(T), nil, ts.TypeString},
		{"parameter only", e.fn(ts.TypeVoid, a), e.fn(ts.TypeVoid, T), []ts.TypeID{e.fn(ts.TypeVoid, b)},
			in.Intersection2(a, b)},
		{"application args", box(ts.TypeNumber), box(T), nil, ts.TypeNumber},
		{"tuple rest",
			in.Tuple([]ts.TupleElement{{Type: ts.TypeString}, {Type: ts.TypeNumber}, {Type: ts.TypeBoolean}}),
			in.Tuple([]ts.TupleElement{{Type: ts.TypeString}, {Type: T, Rest: true}}), nil,
			in.Tuple([]ts.TupleElement{{Type: ts.TypeNumber}, {Type: ts.TypeBoolean}})},
		{"homomorphic mapped", a,
			in.Mapped(ts.MappedType{Param: keyParam, Constraint: in.KeyOf(T), Template: in.IndexAccess(T, K)}), nil, a},
		{"mapped over keys", e.obj(prop("x", ts.TypeNumber), prop("y", ts.TypeNumber)),
			in.Mapped(ts.MappedType{Param: keyParam, Constraint: T, Template: ts.TypeBoolean}), nil,
			in.Union2(in.LiteralString("x"), in.LiteralString("y"))},
		{"template literal", in.LiteralString("on-click"),
			in.TemplateLiteral([]ts.TemplateSpan{{Text: "on-"}, {Type: T}}), nil, in.LiteralString("click")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := e.ctx()
			c.AddTypeParam(ts.TypeParamInfo{Name: "T"})
			c.InferFromTypes(tc.source, tc.target, PriorityNakedTypeVariable)
			for _, x := range tc.extra {
				c.InferFromTypes(x, tc.target, PriorityNakedTypeVariable)
			}
			got := e.resolved(t, c, "T")
			assert.Equal(t, tc.want, got, "want %s, got %s", in.Format(tc.want), in.Format(got))
		})
	}
}

func TestInferPriorities(t *testing.T) {
	e := newEnv()
	in := e.in

	t.Run("naked beats return type", func(t *testing.T) {
		c := e.ctx()
		T := c.AddTypeParam(ts.TypeParamInfo{Name: "T"})
		c.InferFromTypes(ts.TypeString, T, PriorityReturnType)
		c.InferFromTypes(ts.TypeNumber, T, PriorityNakedTypeVariable)
		assert.Equal(t, ts.TypeNumber, e.resolved(t, c, "T"))
	})

	t.Run("predicate beats parameter", func(t *testing.T) {
		c := e.ctx()
		T := c.AddTypeParam(ts.TypeParamInfo{Name: "T"})
		guard := in.Function(ts.FunctionShape{
			Params:    []ts.ParamInfo{{Name: "x", Type: in.Union2(ts.TypeString, ts.TypeNumber)}},
			Return:    ts.TypeBoolean,
			Predicate: &ts.TypePredicate{ParamName: "x", Type: ts.TypeString},
		})
		pattern := in.Function(ts.FunctionShape{
			Params:    []ts.ParamInfo{{Name: "x", Type: T}},
			Return:    ts.TypeBoolean,
			Predicate: &ts.TypePredicate{ParamName: "x", Type: T},
		})
		c.InferFromTypes(guard, pattern, PriorityNakedTypeVariable)
		c.InferFromTypes(ts.TypeNumber, T, PriorityNakedTypeVariable)

		v, ok := c.Variable("T")
		require.True(t, ok)
		assert.Len(t, v.Candidates, 3)
		assert.Equal(t, ts.TypeString, e.resolved(t, c, "T"))
	})

	t.Run("strings", func(t *testing.T) {
		assert.Equal(t, "type-predicate", PriorityTypePredicate.String())
		assert.Equal(t, "low-priority", PriorityLowPriority.String())
	})
}

func TestResolveFallbacks(t *testing.T) {
	e := newEnv()
	in := e.in

	t.Run("no candidates uses constraint", func(t *testing.T) {
		c := e.ctx()
		c.AddTypeParam(ts.TypeParamInfo{Name: "T", Constraint: ts.TypeString})
		assert.Equal(t, ts.TypeString, e.resolved(t, c, "T"))
	})

	t.Run("no candidates uses default", func(t *testing.T) {
		c := e.ctx()
		c.AddTypeParam(ts.TypeParamInfo{Name: "T", Default: ts.TypeNumber})
		assert.Equal(t, ts.TypeNumber, e.resolved(t, c, "T"))
	})

	t.Run("no candidates uses upper bounds", func(t *testing.T) {
		c := e.ctx()
		c.AddTypeParam(ts.TypeParamInfo{Name: "T"})
		c.AddUpperBound("T", ts.TypeString)
		assert.Equal(t, ts.TypeString, e.resolved(t, c, "T"))
	})

	t.Run("lower bound is a candidate", func(t *testing.T) {
		c := e.ctx()
		c.AddTypeParam(ts.TypeParamInfo{Name: "T"})
		c.AddLowerBound("T", in.LiteralString("a"))
		c.AddUpperBound("T", ts.TypeString)
		assert.Equal(t, in.LiteralString("a"), e.resolved(t, c, "T"))
	})

	t.Run("self reference is skipped", func(t *testing.T) {
		c := e.ctx()
		T := c.AddTypeParam(ts.TypeParamInfo{Name: "T"})
		c.InferFromTypes(in.Array(T), T, PriorityNakedTypeVariable)
		c.AddUpperBound("T", in.Array(T))
		v, _ := c.Variable("T")
		assert.Empty(t, v.Candidates)
		assert.Empty(t, v.Upper)
		assert.Equal(t, ts.TypeUnknown, e.resolved(t, c, "T"))
	})

	t.Run("unknown name", func(t *testing.T) {
		got, conflict := e.ctx().Resolve("X")
		assert.Nil(t, conflict)
		assert.Equal(t, ts.TypeUnknown, got)
	})

	t.Run("duplicate registration", func(t *testing.T) {
		c := e.ctx()
		first := c.AddTypeParam(ts.TypeParamInfo{Name: "T"})
		assert.Equal(t, first, c.AddTypeParam(ts.TypeParamInfo{Name: "T"}))
		assert.Equal(t, []string{"T"}, c.Names())
	})
}

func TestResolveConflicts(t *testing.T) {
	e := newEnv()
	in := e.in

	t.Run("disjoint upper bounds", func(t *testing.T) {
		c := e.ctx()
		c.AddTypeParam(ts.TypeParamInfo{Name: "T"})
		c.AddUpperBound("T", ts.TypeString)
		c.AddUpperBound("T", ts.TypeNumber)
		got, conflict := c.Resolve("T")
		require.NotNil(t, conflict)
		assert.Equal(t, DisjointUpperBounds, conflict.Kind)
		assert.Equal(t, ts.TypeUnknown, got, "falls back instead of failing")
		assert.Equal(t, ts.DiagConstraintConflict, conflict.Diagnostic().Code)
		assert.Contains(t, conflict.Error(), "disjoint upper bounds")
	})

	t.Run("lower exceeds upper", func(t *testing.T) {
		c := e.ctx()
		T := c.AddTypeParam(ts.TypeParamInfo{Name: "T", Constraint: ts.TypeNone})
		c.AddUpperBound("T", ts.TypeString)
		c.InferFromTypes(ts.TypeNumber, T, PriorityNakedTypeVariable)
		got, conflict := c.Resolve("T")
		require.NotNil(t, conflict)
		assert.Equal(t, LowerExceedsUpper, conflict.Kind)
		assert.Equal(t, ts.TypeNumber, conflict.Lower)
		assert.Equal(t, ts.TypeString, conflict.Upper)
		assert.Equal(t, ts.TypeUnknown, got)
	})

	t.Run("lower bound violates declared constraint", func(t *testing.T) {
		c := e.ctx()
		T := c.AddTypeParam(ts.TypeParamInfo{Name: "T", Constraint: ts.TypeString})
		c.InferFromTypes(ts.TypeNumber, T, PriorityNakedTypeVariable)
		got, conflict := c.Resolve("T")
		require.NotNil(t, conflict)
		assert.Equal(t, LowerExceedsUpper, conflict.Kind)
		assert.Equal(t, ts.TypeNumber, conflict.Lower)
		assert.Equal(t, ts.TypeString, conflict.Upper)
		assert.Equal(t, ts.TypeString, got, "resolves to the constraint")
	})

	t.Run("constraint disjoint from upper bound", func(t *testing.T) {
		c := e.ctx()
		c.AddTypeParam(ts.TypeParamInfo{Name: "T", Constraint: ts.TypeString})
		c.AddUpperBound("T", ts.TypeNumber)
		got, conflict := c.Resolve("T")
		require.NotNil(t, conflict)
		assert.Equal(t, DisjointUpperBounds, conflict.Kind)
		assert.Equal(t, ts.TypeString, got)
	})

	t.Run("generic constraint is not a bound", func(t *testing.T) {
		c := e.ctx()
		U := c.AddTypeParam(ts.TypeParamInfo{Name: "U"})
		T := c.AddTypeParam(ts.TypeParamInfo{Name: "T", Constraint: in.Array(U)})
		c.InferFromTypes(ts.TypeNumber, T, PriorityNakedTypeVariable)
		assert.Equal(t, ts.TypeNumber, e.resolved(t, c, "T"))
	})

	t.Run("resolve all collects conflicts", func(t *testing.T) {
		c := e.ctx()
		c.AddTypeParam(ts.TypeParamInfo{Name: "T"})
		U := c.AddTypeParam(ts.TypeParamInfo{Name: "U"})
		c.AddUpperBound("T", ts.TypeString)
		c.AddUpperBound("T", ts.TypeNumber)
		c.InferFromTypes(ts.TypeBoolean, U, PriorityNakedTypeVariable)
		subst, errs := c.ResolveAll()
		require.Len(t, errs, 1)
		var conflict *ConstraintConflict
		assert.ErrorAs(t, errs[0], &conflict)
		assert.Equal(t, ts.TypeBoolean, subst["U"])
	})
}

func TestBestCommonType(t *testing.T) {
	e := newEnv()
	in := e.in
	a := e.obj(prop("a", ts.TypeNumber))
	ab := e.obj(prop("a", ts.TypeNumber), prop("b", ts.TypeString))
	c := e.obj(prop("c", ts.TypeBoolean))

	tests := []struct {
		name  string
		types []ts.TypeID
		want  ts.TypeID
	}{
		{"empty", nil, ts.TypeUnknown},
		{"single", []ts.TypeID{a}, a},
		{"identical", []ts.TypeID{a, a, a}, a},
		{"any absorbs", []ts.TypeID{a, ts.TypeAny}, ts.TypeAny},
		{"never ignored", []ts.TypeID{ts.TypeNever, a}, a},
		{"shared primitive", []ts.TypeID{in.LiteralString("x"), in.LiteralString("y"), ts.TypeString}, ts.TypeString},
		{"supertype member", []ts.TypeID{ab, a}, a},
		{"union otherwise", []ts.TypeID{a, c}, in.Union2(a, c)},
		{"nullish stays apart", []ts.TypeID{ts.TypeNull, ts.TypeString}, in.Union2(ts.TypeNull, ts.TypeString)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := BestCommonType(in, e.judge, tc.types)
			assert.Equal(t, tc.want, got, "want %s, got %s", in.Format(tc.want), in.Format(got))
		})
	}
}

func TestInferFromConditional(t *testing.T) {
	e := newEnv()
	in := e.in
	U := in.Infer(ts.TypeParamInfo{Name: "U"})
	numU := in.Infer(ts.TypeParamInfo{Name: "U", Constraint: ts.TypeNumber})

	t.Run("binds element", func(t *testing.T) {
		b, ok := InferFromConditional(in, e.r, e.judge.IsSubtypeOf, in.Array(ts.TypeString), in.Array(U))
		require.True(t, ok)
		assert.Equal(t, ts.TypeString, b[U])
	})

	t.Run("unmatched placeholder is unknown", func(t *testing.T) {
		b, ok := InferFromConditional(in, e.r, e.judge.IsSubtypeOf, ts.TypeString, in.Array(U))
		require.True(t, ok)
		assert.Equal(t, ts.TypeUnknown, b[U])
	})

	t.Run("unmatched placeholder takes its constraint", func(t *testing.T) {
		b, ok := InferFromConditional(in, e.r, e.judge.IsSubtypeOf, ts.TypeString, in.Array(numU))
		require.True(t, ok)
		assert.Equal(t, ts.TypeNumber, b[numU])
	})

	t.Run("constraint violated", func(t *testing.T) {
		_, ok := InferFromConditional(in, e.r, e.judge.IsSubtypeOf, in.Array(ts.TypeString), in.Array(numU))
		assert.False(t, ok)
	})

	t.Run("return type", func(t *testing.T) {
		b, ok := InferFromConditional(in, e.r, e.judge.IsSubtypeOf, e.fn(ts.TypeBoolean, ts.TypeString), e.fn(U))
		require.True(t, ok)
		assert.Equal(t, ts.TypeBoolean, b[U])
	})
}
