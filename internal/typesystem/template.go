package typesystem

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TemplateLiteral interns a template literal type in normal form.
//
// Literal holes are folded into the surrounding text, nested templates are
// spliced, and holes holding unions are expanded into the union of every
// combination. When the number of combinations exceeds the interner's
// template limit the result widens to string instead of materializing the
// cross product.
func (in *Interner) TemplateLiteral(spans []TemplateSpan) TypeID {
	flat, never := in.flattenTemplate(spans)
	if never {
		return TypeNever
	}

	product := 1
	expand := false
	for _, s := range flat {
		if s.IsText() {
			continue
		}
		if n := in.templateAlternatives(s.Type); n > 1 {
			expand = true
			product *= n
			if product > in.templateLimit {
				return TypeString
			}
		}
	}
	if expand {
		return in.expandTemplate(flat)
	}

	switch {
	case len(flat) == 0:
		return in.LiteralString("")
	case len(flat) == 1 && flat[0].IsText():
		return in.LiteralString(flat[0].Text)
	case len(flat) == 1 && flat[0].Type == TypeString:
		return TypeString
	}
	return in.internTemplate(flat)
}

// flattenTemplate folds literal holes into text and merges adjacent text.
// It reports never when any hole is never.
func (in *Interner) flattenTemplate(spans []TemplateSpan) ([]TemplateSpan, bool) {
	out := make([]TemplateSpan, 0, len(spans))
	appendText := func(text string) {
		if text == "" {
			return
		}
		if n := len(out); n > 0 && out[n-1].IsText() {
			out[n-1].Text += text
			return
		}
		out = append(out, TemplateSpan{Text: text})
	}

	for _, s := range spans {
		if s.IsText() {
			appendText(s.Text)
			continue
		}
		if text, ok := in.templateText(s.Type); ok {
			appendText(text)
			continue
		}
		switch k := in.Key(s.Type).(type) {
		case Intrinsic:
			if k.Kind == KindNever {
				return nil, true
			}
		case TemplateLiteral:
			inner, never := in.flattenTemplate(in.TemplateSpans(k.Spans))
			if never {
				return nil, true
			}
			for _, is := range inner {
				if is.IsText() {
					appendText(is.Text)
				} else {
					out = append(out, is)
				}
			}
			continue
		}
		out = append(out, s)
	}
	return out, false
}

// templateText returns the text a hole contributes when it holds a single
// value.
func (in *Interner) templateText(id TypeID) (string, bool) {
	switch id {
	case TypeNull:
		return "null", true
	case TypeUndefined:
		return "undefined", true
	}
	switch k := in.Key(id).(type) {
	case Literal:
		return k.Value.Text(), true
	case Enum:
		if lit, ok := in.Key(k.Members).(Literal); ok {
			return lit.Value.Text(), true
		}
	}
	return "", false
}

// templateAlternatives counts the choices a hole expands into.
func (in *Interner) templateAlternatives(id TypeID) int {
	if id == TypeBoolean {
		return 2
	}
	if u, ok := in.Key(id).(Union); ok {
		n := 0
		for _, m := range in.TypeList(u.Members) {
			if m == TypeBoolean {
				n += 2
			} else {
				n++
			}
		}
		return n
	}
	return 1
}

func (in *Interner) holeAlternatives(id TypeID) []TypeID {
	var members []TypeID
	if u, ok := in.Key(id).(Union); ok {
		members = in.TypeList(u.Members)
	} else {
		members = []TypeID{id}
	}
	out := make([]TypeID, 0, len(members)+1)
	for _, m := range members {
		if m == TypeBoolean {
			out = append(out, TypeFalse, TypeTrue)
			continue
		}
		out = append(out, m)
	}
	return out
}

// expandTemplate produces the union of every combination of hole
// alternatives. The caller has already checked the product against the
// limit.
func (in *Interner) expandTemplate(spans []TemplateSpan) TypeID {
	combos := [][]TemplateSpan{nil}
	for _, s := range spans {
		if s.IsText() {
			for i := range combos {
				combos[i] = append(combos[i], s)
			}
			continue
		}
		alts := in.holeAlternatives(s.Type)
		next := make([][]TemplateSpan, 0, len(combos)*len(alts))
		for _, c := range combos {
			for _, alt := range alts {
				nc := make([]TemplateSpan, len(c), len(c)+1)
				copy(nc, c)
				next = append(next, append(nc, TemplateSpan{Type: alt}))
			}
		}
		combos = next
	}

	members := make([]TypeID, 0, len(combos))
	for _, c := range combos {
		members = append(members, in.TemplateLiteral(c))
	}
	return in.Union(members)
}

// ApplyStringIntrinsic applies a string mapping intrinsic to s.
func ApplyStringIntrinsic(kind StringIntrinsicKind, s string) string {
	switch kind {
	case Uppercase:
		return strings.ToUpper(s)
	case Lowercase:
		return strings.ToLower(s)
	case Capitalize, Uncapitalize:
		r, size := utf8.DecodeRuneInString(s)
		if size == 0 {
			return s
		}
		if kind == Capitalize {
			r = unicode.ToUpper(r)
		} else {
			r = unicode.ToLower(r)
		}
		return string(r) + s[size:]
	}
	return s
}

// MatchTemplate reports whether the string value s is an inhabitant of the
// template literal spans. Holes of type string match any text, number holes
// match numeric text and literal-free holes of other types never match.
func (in *Interner) MatchTemplate(spans []TemplateSpan, s string) bool {
	return in.matchSpans(spans, s)
}

func (in *Interner) matchSpans(spans []TemplateSpan, s string) bool {
	if len(spans) == 0 {
		return s == ""
	}
	head := spans[0]
	if head.IsText() {
		if !strings.HasPrefix(s, head.Text) {
			return false
		}
		return in.matchSpans(spans[1:], s[len(head.Text):])
	}
	// Try every split point for the hole, shortest first.
	for i := 0; i <= len(s); i++ {
		if in.holeAccepts(head.Type, s[:i]) && in.matchSpans(spans[1:], s[i:]) {
			return true
		}
	}
	return false
}

func (in *Interner) holeAccepts(hole TypeID, text string) bool {
	switch hole {
	case TypeString, TypeAny:
		return true
	case TypeNumber:
		return isNumericText(text)
	case TypeBigInt:
		return isBigIntText(text)
	case TypeBoolean:
		return text == "true" || text == "false"
	case TypeNull:
		return text == "null"
	case TypeUndefined:
		return text == "undefined"
	}
	switch k := in.Key(hole).(type) {
	case Literal:
		return k.Value.Text() == text
	case Union:
		for _, m := range in.TypeList(k.Members) {
			if in.holeAccepts(m, text) {
				return true
			}
		}
	case TemplateLiteral:
		return in.matchSpans(in.TemplateSpans(k.Spans), text)
	case StringIntrinsic:
		return ApplyStringIntrinsic(k.Kind, text) == text && in.holeAccepts(k.Arg, text)
	}
	return false
}

func isNumericText(s string) bool {
	if s == "" || strings.TrimSpace(s) != s {
		return false
	}
	seenDigit, seenDot, seenExp := false, false, false
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			seenDigit = true
		case r == '.' && !seenDot && !seenExp:
			seenDot = true
		case (r == 'e' || r == 'E') && seenDigit && !seenExp:
			seenExp = true
			seenDigit = false
		case (r == '-' || r == '+') && (i == 0 || s[i-1] == 'e' || s[i-1] == 'E'):
		default:
			return false
		}
	}
	return seenDigit
}

func isBigIntText(s string) bool {
	if strings.HasPrefix(s, "-") {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
