package fixture

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kr/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funvibe/tsolve/internal/config"
	ts "github.com/funvibe/tsolve/internal/typesystem"
)

func TestMain(m *testing.M) {
	config.IsTestMode = true
	os.Exit(m.Run())
}

func newDecoder() *Decoder {
	return NewDecoder(ts.NewInterner(0), ts.NewMapResolver())
}

func TestDecoderScalars(t *testing.T) {
	d := newDecoder()
	in := d.in
	tests := []struct {
		src  string
		want ts.TypeID
	}{
		{"string", ts.TypeString},
		{"never", ts.TypeNever},
		{"null", ts.TypeNull},
		{"1", in.LiteralNumber(1)},
		{"1.5", in.LiteralNumber(1.5)},
		{"true", ts.TypeTrue},
		{`"a"`, in.LiteralString("a")},
		{"number[]", in.Array(ts.TypeNumber)},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := d.Type(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got, "%s", in.Format(got))
		})
	}
}

func TestDecoderConstructors(t *testing.T) {
	d := newDecoder()
	in := d.in
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"union", `{union: [string, number]}`, "number | string"},
		{"object", `{object: {a: number, "b?": string, "readonly c": boolean}}`, "{ a: number; b?: string; readonly c: boolean }"},
		{"tuple", `{tuple: [string, {optional: number}, {rest: {array: boolean}}]}`, "[string, number?, ...boolean[]]"},
		{"keyof", `{keyof: {object: {a: number}}}`, `keyof { a: number }`},
		{"template", `{template: ["a-", string]}`, "`a-${string}`"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Type(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, in.Format(got))
		})
	}

	t.Run("fresh object", func(t *testing.T) {
		got, err := d.Type(`{fresh: {a: number}}`)
		require.NoError(t, err)
		assert.True(t, in.IsFreshObject(got))
	})
}

func TestDecoderDeclare(t *testing.T) {
	d := newDecoder()
	require.NoError(t, d.Declare([]byte(`
List:
  object:
    head: number
    tail: {union: [List, null]}
Box:
  params: [T]
  type: {object: {value: T}}
Color:
  enum:
    Red: 0
    Green: 1
`)))

	list, ok := d.Lookup("List")
	require.True(t, ok)
	_, isLazy := d.in.Key(list).(ts.Lazy)
	assert.True(t, isLazy, "declared names are lazy references")

	box, ok := d.Lookup("Box")
	require.True(t, ok)
	def := d.in.Key(box).(ts.Lazy).Def
	assert.Len(t, d.r.TypeParams(def), 1)

	red, ok := d.Lookup("Color.Red")
	require.True(t, ok)
	assert.Equal(t, d.in.LiteralNumber(0), red)
	color, ok := d.Lookup("Color")
	require.True(t, ok)
	_, isEnum := d.in.Key(color).(ts.Enum)
	assert.True(t, isEnum)
}

func TestDecoderErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"unknown name", `Missing`, ErrUnknownName},
		{"unknown constructor", `{frobnicate: string}`, ErrBadType},
		{"index arity", `{index: [string]}`, ErrBadType},
		{"two keys", `{union: [string], array: number}`, ErrBadType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newDecoder().Type(tt.src)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("declare reports the name", func(t *testing.T) {
		err := newDecoder().Declare([]byte("Broken:\n  union: [Nope]\n"))
		require.ErrorIs(t, err, ErrUnknownName)
		assert.Contains(t, err.Error(), "Broken")
	})

	t.Run("unknown query", func(t *testing.T) {
		_, err := newDecoder().DecodeQueries([]byte("- frobnicate: string\n"))
		assert.ErrorIs(t, err, ErrUnknownQuery)
	})
}

func TestParseScenario(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s, err := ParseScenario("x", []byte("-- queries.yaml --\n- subtype: [string, string]\n"))
		require.NoError(t, err)
		assert.Equal(t, config.MaxSubtypeDepth, s.Config.Limits.SubtypeDepth)
		assert.Empty(t, s.Types)
	})

	t.Run("config section", func(t *testing.T) {
		s, err := ParseScenario("x", []byte("-- tsolve.yaml --\nlimits:\n  eval_depth: 7\n-- queries.yaml --\n[]\n"))
		require.NoError(t, err)
		assert.Equal(t, 7, s.Config.Limits.EvalDepth)
	})

	t.Run("missing queries", func(t *testing.T) {
		_, err := ParseScenario("x", []byte("-- types.yaml --\nA: string\n"))
		assert.ErrorIs(t, err, ErrMissingSection)
	})

	t.Run("unexpected section", func(t *testing.T) {
		_, err := ParseScenario("x", []byte("-- queries.yaml --\n[]\n-- notes --\nhi\n"))
		assert.Error(t, err)
	})
}

func TestWithWant(t *testing.T) {
	src := "comment\n-- queries.yaml --\n- name: q\n  subtype: [string, string]\n"
	s, err := ParseScenario("x", []byte(src))
	require.NoError(t, err)

	updated := s.WithWant("q: true\n")
	again, err := ParseScenario("x", updated)
	require.NoError(t, err)
	assert.Equal(t, "q: true\n", again.Want)
	assert.True(t, strings.HasPrefix(string(updated), "comment\n"))

	replaced, err := ParseScenario("x", again.WithWant("q: false\n"))
	require.NoError(t, err)
	assert.Equal(t, "q: false\n", replaced.Want)
}

func TestReportDiff(t *testing.T) {
	r := &Report{Lines: []string{"a: true", "b: false"}}
	assert.Equal(t, "a: true\nb: false\n", r.Output())
	assert.Empty(t, r.Diff("a: true\nb: false  \n"))
	diff := r.Diff("a: true\nb: true\nc: ok\n")
	require.Len(t, diff, 2)
	assert.Contains(t, diff[0], "line 2")
	assert.Contains(t, diff[1], "line 3")
}

func TestQueryNames(t *testing.T) {
	qs, err := newDecoder().DecodeQueries([]byte("- subtype: [string, string]\n- name: named\n  format: number\n"))
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, "subtype#1", qs[0].Name)
	assert.Equal(t, "named", qs[1].Name)
	assert.Equal(t, "format", qs[1].Op)
}

func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "*.txtar"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)

			// Queries share one session; answers must not depend on the
			// order they run in.
			for _, parallel := range []int{1, 0} {
				report, err := Run(context.Background(), s, parallel)
				require.NoError(t, err)
				if diff := report.Diff(s.Want); len(diff) > 0 {
					t.Errorf("parallel=%d:\n%s\n%# v", parallel, strings.Join(diff, "\n"), pretty.Formatter(report.Lines))
				}
			}
		})
	}
}

func TestUseConfig(t *testing.T) {
	shared := config.Default()
	shared.Limits.EvalDepth = 3

	plain, err := ParseScenario("plain", []byte("-- queries.yaml --\n[]\n"))
	require.NoError(t, err)
	plain.UseConfig(shared)
	assert.Same(t, shared, plain.Config)

	own, err := ParseScenario("own", []byte("-- tsolve.yaml --\nlimits:\n  eval_depth: 9\n-- queries.yaml --\n[]\n"))
	require.NoError(t, err)
	own.UseConfig(shared)
	assert.Equal(t, 9, own.Config.Limits.EvalDepth)
}
