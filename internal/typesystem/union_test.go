package typesystem

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnionNormalization(t *testing.T) {
	in := NewInterner(0)
	a, b := in.LiteralString("a"), in.LiteralString("b")
	one := in.LiteralNumber(1)
	obj := in.Object([]PropertyInfo{prop("x", TypeNumber)})

	tests := []struct {
		name    string
		members []TypeID
		want    TypeID
	}{
		{"empty is never", nil, TypeNever},
		{"single member", []TypeID{a}, a},
		{"never is dropped", []TypeID{TypeNever, a}, a},
		{"any absorbs", []TypeID{a, TypeAny, obj}, TypeAny},
		{"unknown absorbs", []TypeID{a, TypeUnknown}, TypeUnknown},
		{"error poisons any", []TypeID{TypeAny, TypeError}, TypeError},
		{"literal absorbed by primitive", []TypeID{a, TypeString, b}, TypeString},
		{"number literal absorbed", []TypeID{one, TypeNumber}, TypeNumber},
		{"true and false make boolean", []TypeID{TypeTrue, TypeFalse}, TypeBoolean},
		{"boolean absorbs true", []TypeID{TypeBoolean, TypeTrue}, TypeBoolean},
		{"duplicates collapse", []TypeID{a, a, a}, a},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := in.Union(tt.members); got != tt.want {
				t.Errorf("Union = %s, want %s", in.Format(got), in.Format(tt.want))
			}
		})
	}
}

func TestUnionLaws(t *testing.T) {
	in := NewInterner(0)
	a, b, c := in.LiteralString("a"), in.LiteralNumber(2), in.Array(TypeString)

	assert.Equal(t, in.Union2(a, b), in.Union2(b, a), "commutative")
	assert.Equal(t,
		in.Union2(in.Union2(a, b), c),
		in.Union2(a, in.Union2(b, c)),
		"associative")
	assert.Equal(t, in.Union2(a, b), in.Union([]TypeID{in.Union2(a, b), a}), "idempotent")

	mixed := in.Union([]TypeID{TypeTrue, a, TypeFalse})
	assert.Equal(t, in.Union2(TypeBoolean, a), mixed)
	assert.Equal(t, "\"a\" | boolean", in.Format(mixed))
}

func TestUnionStructuralReduction(t *testing.T) {
	in := NewInterner(0)
	x := in.Object([]PropertyInfo{prop("x", TypeNumber)})
	xy := in.Object([]PropertyInfo{prop("x", TypeNumber), prop("y", TypeString)})
	optX := in.Object([]PropertyInfo{{Name: "x", Type: TypeNumber, Optional: true}})
	roX := in.Object([]PropertyInfo{{Name: "x", Type: TypeNumber, Readonly: true}})
	xOne := in.Object([]PropertyInfo{prop("x", in.LiteralNumber(1))})
	z := in.Object([]PropertyInfo{prop("z", TypeNumber)})
	strs := in.Array(TypeString)

	tests := []struct {
		name    string
		members []TypeID
		want    []TypeID
	}{
		{"width subtype absorbed", []TypeID{x, xy}, []TypeID{x}},
		{"order does not matter", []TypeID{xy, x}, []TypeID{x}},
		{"optional absorbs required", []TypeID{x, optX}, []TypeID{optX}},
		{"readonly absorbs mutable", []TypeID{x, roX}, []TypeID{roX}},
		{"property types compared by handle", []TypeID{x, xOne}, []TypeID{x, xOne}},
		{"disjoint objects kept", []TypeID{x, z}, []TypeID{x, z}},
		{"literal array absorbed", []TypeID{in.Array(in.LiteralString("x")), strs}, []TypeID{strs}},
		{"array into readonly array", []TypeID{strs, in.Readonly(strs)}, []TypeID{in.Readonly(strs)}},
		{"object array absorbed", []TypeID{in.Array(xy), in.Array(x)}, []TypeID{in.Array(x)}},
		{"primitives untouched", []TypeID{xy, TypeString, x}, []TypeID{x, TypeString}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := in.Union(tt.members)
			assert.ElementsMatch(t, tt.want, in.UnionMembers(got), "got %s", in.Format(got))
		})
	}

	t.Run("fresh member does not absorb", func(t *testing.T) {
		fresh := in.ObjectFresh([]PropertyInfo{prop("x", TypeNumber)})
		assert.Equal(t, x, in.Union2(fresh, x))
		assert.Equal(t, x, in.Union2(x, fresh))
	})

	t.Run("many width subtypes", func(t *testing.T) {
		name := in.Object([]PropertyInfo{prop("name", TypeString)})
		members := make([]TypeID, 0, 301)
		for i := 0; i < 300; i++ {
			members = append(members, in.Object([]PropertyInfo{
				prop("id", in.LiteralNumber(float64(i))),
				prop("name", TypeString),
			}))
		}
		assert.Equal(t, name, in.Union(append(members, name)))
		assert.Len(t, in.UnionMembers(in.Union(members)), 300)
	})
}

func TestUnionOfManyLiterals(t *testing.T) {
	in := NewInterner(0)
	lits := make([]TypeID, 500)
	for i := range lits {
		lits[i] = in.LiteralString(fmt.Sprintf("v%03d", i))
	}

	u := in.Union(lits)
	assert.Len(t, in.UnionMembers(u), 500)
	assert.Equal(t, u, in.Union(append([]TypeID{lits[499]}, lits...)))
	assert.Equal(t, TypeString, in.Union(append(lits, TypeString)))
}

func BenchmarkUnionOfLiterals(b *testing.B) {
	in := NewInterner(0)
	lits := make([]TypeID, 500)
	for i := range lits {
		lits[i] = in.LiteralString(fmt.Sprintf("v%03d", i))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		in.Union(lits)
	}
}

func TestEnumMembersAbsorbedByEnum(t *testing.T) {
	in := NewInterner(0)
	const color DefID = 7
	red := in.Enum(color, in.LiteralNumber(0))
	green := in.Enum(color, in.LiteralNumber(1))
	whole := in.Enum(color, in.Union2(in.LiteralNumber(0), in.LiteralNumber(1)))

	assert.Equal(t, whole, in.Union2(red, whole))
	assert.Len(t, in.UnionMembers(in.Union2(red, green)), 2)
}

func TestIntersectionNormalization(t *testing.T) {
	in := NewInterner(0)
	a, b := in.LiteralString("a"), in.LiteralString("b")
	brand := in.Object([]PropertyInfo{prop("__brand", in.LiteralString("id"))})
	kindA := in.Object([]PropertyInfo{prop("kind", a)})
	kindB := in.Object([]PropertyInfo{prop("kind", b)})

	tests := []struct {
		name    string
		members []TypeID
		want    TypeID
	}{
		{"empty is unknown", nil, TypeUnknown},
		{"unknown is dropped", []TypeID{TypeUnknown, TypeString}, TypeString},
		{"never wins", []TypeID{TypeNever, TypeAny}, TypeNever},
		{"any absorbs", []TypeID{TypeAny, TypeString}, TypeAny},
		{"error poisons", []TypeID{TypeError, TypeNever}, TypeError},
		{"disjoint primitives", []TypeID{TypeString, TypeNumber}, TypeNever},
		{"distinct literals", []TypeID{a, b}, TypeNever},
		{"literal narrows primitive", []TypeID{a, TypeString}, a},
		{"primitive and array", []TypeID{TypeString, in.Array(TypeString)}, TypeNever},
		{"disjoint discriminants", []TypeID{kindA, kindB}, TypeNever},
		{"null and undefined", []TypeID{TypeNull, TypeUndefined}, TypeNever},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := in.Intersection(tt.members); got != tt.want {
				t.Errorf("Intersection = %s, want %s", in.Format(got), in.Format(tt.want))
			}
		})
	}

	branded := in.Intersection2(TypeString, brand)
	assert.Len(t, in.IntersectionMembers(branded), 2, "branded primitives survive")
}

func TestIntersectionMergesObjects(t *testing.T) {
	in := NewInterner(0)
	left := in.Object([]PropertyInfo{
		prop("a", TypeString),
		{Name: "shared", Type: TypeUnknown, Optional: true},
	})
	right := in.Object([]PropertyInfo{
		prop("b", TypeNumber),
		{Name: "shared", Type: TypeNumber, Optional: true, Readonly: true},
	})

	merged := in.Intersection2(left, right)
	shape, ok := in.ObjectShapeOf(merged)
	require.True(t, ok)
	require.Len(t, shape.Properties, 3)

	shared, ok := shape.Property("shared")
	require.True(t, ok)
	assert.Equal(t, TypeNumber, shared.Type)
	assert.True(t, shared.Optional)
	assert.True(t, shared.Readonly)
	assert.Equal(t, merged, in.Intersection2(right, left))
}
