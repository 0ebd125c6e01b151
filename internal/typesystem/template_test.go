package typesystem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTemplateLiteralNormalization(t *testing.T) {
	in := NewInterner(0)
	xy := in.Union(strLits(in, "x", "y"))

	tests := []struct {
		name  string
		spans []TemplateSpan
		want  TypeID
	}{
		{"text only", []TemplateSpan{{Text: "abc"}}, in.LiteralString("abc")},
		{"empty", nil, in.LiteralString("")},
		{"bare string hole", []TemplateSpan{{Type: TypeString}}, TypeString},
		{"literal hole folds", []TemplateSpan{{Text: "n"}, {Type: in.LiteralNumber(1)}}, in.LiteralString("n1")},
		{"never hole", []TemplateSpan{{Text: "a"}, {Type: TypeNever}}, TypeNever},
		{"union hole expands", []TemplateSpan{{Text: "a-"}, {Type: xy}}, in.Union(strLits(in, "a-x", "a-y"))},
		{"boolean hole expands", []TemplateSpan{{Type: TypeBoolean}}, in.Union(strLits(in, "true", "false"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := in.TemplateLiteral(tt.spans); got != tt.want {
				t.Errorf("TemplateLiteral = %s, want %s", in.Format(got), in.Format(tt.want))
			}
		})
	}

	open := in.TemplateLiteral([]TemplateSpan{{Text: "id-"}, {Type: TypeNumber}})
	_, isTemplate := in.Key(open).(TemplateLiteral)
	assert.True(t, isTemplate)
	assert.Equal(t, "`id-${number}`", in.Format(open))
}

func TestTemplateExpansionLimit(t *testing.T) {
	in := NewInterner(0)
	nums := make([]TypeID, 101)
	for i := range nums {
		nums[i] = in.LiteralNumber(float64(i))
	}
	hole := in.Union(nums)

	// 101 * 101 combinations exceed the cap.
	assert.Equal(t, TypeString, in.TemplateLiteral([]TemplateSpan{{Type: hole}, {Text: "-"}, {Type: hole}}))

	small := NewInterner(3)
	abc := small.Union(strLits(small, "a", "b", "c"))
	assert.Len(t, small.UnionMembers(small.TemplateLiteral([]TemplateSpan{{Type: abc}})), 3)
	abcd := small.Union(strLits(small, "a", "b", "c", "d"))
	assert.Equal(t, TypeString, small.TemplateLiteral([]TemplateSpan{{Type: abcd}}))
}

func TestMatchTemplate(t *testing.T) {
	in := NewInterner(0)
	spans := []TemplateSpan{{Text: "id-"}, {Type: TypeNumber}}

	assert.True(t, in.MatchTemplate(spans, "id-42"))
	assert.True(t, in.MatchTemplate(spans, "id-1.5e3"))
	assert.False(t, in.MatchTemplate(spans, "id-x"))
	assert.False(t, in.MatchTemplate(spans, "id-"))
	assert.True(t, in.MatchTemplate([]TemplateSpan{{Type: TypeString}, {Text: "!"}}, "hi!"))
}

func TestStringIntrinsics(t *testing.T) {
	in := NewInterner(0)
	assert.Equal(t, in.LiteralString("ABC"), in.StringIntrinsic(Uppercase, in.LiteralString("abc")))
	assert.Equal(t, in.LiteralString("hello"), in.StringIntrinsic(Uncapitalize, in.LiteralString("Hello")))
	assert.Equal(t, "Êtes", ApplyStringIntrinsic(Capitalize, "êtes"))

	deferred := in.StringIntrinsic(Lowercase, TypeString)
	assert.Equal(t, "Lowercase<string>", in.Format(deferred))
}
