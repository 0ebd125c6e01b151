package typesystem

import (
	"sort"
	"strconv"
	"strings"

	"github.com/funvibe/tsolve/internal/config"
	"github.com/smasher164/xid"
)

// Format renders id in TypeScript-like syntax. Named definitions print as
// #N; use FormatWith to supply names.
func (in *Interner) Format(id TypeID) string {
	return in.FormatWith(id, nil)
}

// FormatWith renders id, naming definitions through names when it is not nil.
func (in *Interner) FormatWith(id TypeID, names DefNamer) string {
	p := printer{in: in, names: names}
	p.typ(id)
	return p.b.String()
}

type printer struct {
	in    *Interner
	names DefNamer
	b     strings.Builder
}

func (p *printer) ws(parts ...string) {
	for _, s := range parts {
		p.b.WriteString(s)
	}
}

func (p *printer) def(def DefID) string {
	if p.names != nil {
		if name := p.names.DefName(def); name != "" {
			return name
		}
	}
	return "#" + strconv.FormatUint(uint64(def), 10)
}

// needsParens reports whether id must be parenthesized as an operand of
// an array, union or intersection.
func (p *printer) needsParens(id TypeID) bool {
	switch p.in.Key(id).(type) {
	case Union, Intersection, Function, Conditional, KeyOf:
		return true
	}
	return false
}

func (p *printer) operand(id TypeID) {
	if p.needsParens(id) {
		p.ws("(")
		p.typ(id)
		p.ws(")")
		return
	}
	p.typ(id)
}

func (p *printer) list(ids []TypeID, sep string) {
	if config.IsTestMode {
		// Member order follows interning order; sort by text for stable output.
		texts := make([]string, len(ids))
		for i, id := range ids {
			sub := printer{in: p.in, names: p.names}
			sub.operand(id)
			texts[i] = sub.b.String()
		}
		sort.Strings(texts)
		p.ws(strings.Join(texts, sep))
		return
	}
	for i, id := range ids {
		if i > 0 {
			p.ws(sep)
		}
		p.operand(id)
	}
}

func (p *printer) typ(id TypeID) {
	if id == TypeNone {
		p.ws("<none>")
		return
	}
	switch k := p.in.Key(id).(type) {
	case nil:
		p.ws("<invalid ", strconv.FormatUint(uint64(id), 10), ">")
	case Intrinsic:
		p.ws(k.Kind.String())
	case Literal:
		p.literal(k.Value)
	case Union:
		p.list(p.in.TypeList(k.Members), " | ")
	case Intersection:
		p.list(p.in.TypeList(k.Members), " & ")
	case Object:
		p.shape(p.in.ObjectShape(k.Shape))
	case ObjectWithIndex:
		p.shape(p.in.ObjectShape(k.Shape))
	case Array:
		p.operand(k.Elem)
		p.ws("[]")
	case Tuple:
		p.tuple(p.in.TupleElements(k.Elems))
	case ReadonlyType:
		p.ws("readonly ")
		p.typ(k.Inner)
	case Function:
		p.signature(p.in.FunctionShape(k.Shape), true)
	case Callable:
		p.callable(p.in.CallableShape(k.Shape))
	case TypeParam:
		p.ws(k.Info.Name)
	case Infer:
		p.ws("infer ", k.Info.Name)
		if k.Info.Constraint != TypeNone {
			p.ws(" extends ")
			p.typ(k.Info.Constraint)
		}
	case Lazy:
		p.ws(p.def(k.Def))
	case Application:
		a := p.in.TypeApplication(k.App)
		p.typ(a.Base)
		p.ws("<")
		for i, arg := range a.Args {
			if i > 0 {
				p.ws(", ")
			}
			p.typ(arg)
		}
		p.ws(">")
	case Conditional:
		c := p.in.ConditionalType(k.Cond)
		p.operand(c.Check)
		p.ws(" extends ")
		p.operand(c.Extends)
		p.ws(" ? ")
		p.typ(c.True)
		p.ws(" : ")
		p.typ(c.False)
	case Mapped:
		p.mapped(p.in.MappedType(k.Mapped))
	case IndexAccess:
		p.operand(k.Object)
		p.ws("[")
		p.typ(k.Index)
		p.ws("]")
	case KeyOf:
		p.ws("keyof ")
		p.operand(k.Inner)
	case TypeQuery:
		p.ws("typeof ", p.def(k.Def))
	case TemplateLiteral:
		p.ws("`")
		for _, s := range p.in.TemplateSpans(k.Spans) {
			if s.IsText() {
				p.ws(strings.ReplaceAll(s.Text, "`", "\\`"))
				continue
			}
			p.ws("${")
			p.typ(s.Type)
			p.ws("}")
		}
		p.ws("`")
	case StringIntrinsic:
		p.ws(k.Kind.String(), "<")
		p.typ(k.Arg)
		p.ws(">")
	case Enum:
		p.ws(p.def(k.Def))
		if lit, ok := p.in.Key(k.Members).(Literal); ok {
			p.ws("[")
			p.literal(lit.Value)
			p.ws("]")
		}
	case UniqueSymbol:
		p.ws("unique symbol")
	case ThisType:
		p.ws("this")
	}
}

func (p *printer) literal(v LiteralValue) {
	switch v.Kind {
	case LitString:
		p.ws(strconv.Quote(v.Str))
	case LitBigInt:
		p.ws(v.Str, "n")
	default:
		p.ws(v.Text())
	}
}

// propertyName quotes names that are not identifiers or plain integers.
func propertyName(name string) string {
	if name == "" {
		return `""`
	}
	ident, digits := true, true
	for i, r := range name {
		if r < '0' || r > '9' {
			digits = false
		}
		switch {
		case r == '$' || r == '_':
		case i == 0 && xid.Start(r):
		case i > 0 && xid.Continue(r):
		default:
			ident = false
		}
	}
	if ident || (digits && (name == "0" || name[0] != '0')) {
		return name
	}
	return strconv.Quote(name)
}

func (p *printer) members(props []PropertyInfo, str, num *IndexSignature, first bool) bool {
	sep := func() {
		if !first {
			p.ws("; ")
		}
		first = false
	}
	for _, prop := range props {
		sep()
		if prop.Readonly {
			p.ws("readonly ")
		}
		p.ws(propertyName(prop.Name))
		if prop.Optional {
			p.ws("?")
		}
		p.ws(": ")
		p.typ(prop.Type)
	}
	for _, sig := range []*IndexSignature{str, num} {
		if sig == nil {
			continue
		}
		sep()
		if sig.Readonly {
			p.ws("readonly ")
		}
		p.ws("[key: ")
		p.typ(sig.Key)
		p.ws("]: ")
		p.typ(sig.Value)
	}
	return first
}

func (p *printer) shape(s *ObjectShape) {
	if len(s.Properties) == 0 && !s.HasIndex() {
		p.ws("{}")
		return
	}
	p.ws("{ ")
	p.members(s.Properties, s.StringIndex, s.NumberIndex, true)
	p.ws(" }")
}

func (p *printer) tuple(elems []TupleElement) {
	p.ws("[")
	for i, e := range elems {
		if i > 0 {
			p.ws(", ")
		}
		if e.Rest {
			p.ws("...")
		}
		if e.Name != "" {
			p.ws(e.Name)
			if e.Optional {
				p.ws("?")
			}
			p.ws(": ")
			p.typ(e.Type)
			continue
		}
		p.operand(e.Type)
		if e.Optional {
			p.ws("?")
		}
	}
	p.ws("]")
}

func (p *printer) typeParams(tps []TypeParamInfo) {
	if len(tps) == 0 {
		return
	}
	p.ws("<")
	for i, tp := range tps {
		if i > 0 {
			p.ws(", ")
		}
		if tp.IsConst {
			p.ws("const ")
		}
		p.ws(tp.Name)
		if tp.Constraint != TypeNone {
			p.ws(" extends ")
			p.typ(tp.Constraint)
		}
		if tp.Default != TypeNone {
			p.ws(" = ")
			p.typ(tp.Default)
		}
	}
	p.ws(">")
}

// signature prints f as an arrow type, or as a call member when arrow is false.
func (p *printer) signature(f *FunctionShape, arrow bool) {
	if f.IsConstructor {
		p.ws("new ")
	}
	p.typeParams(f.TypeParams)
	p.ws("(")
	n := 0
	if f.This != TypeNone {
		p.ws("this: ")
		p.typ(f.This)
		n++
	}
	for _, param := range f.Params {
		if n > 0 {
			p.ws(", ")
		}
		n++
		if param.Rest {
			p.ws("...")
		}
		name := param.Name
		if name == "" {
			name = "arg" + strconv.Itoa(n-1)
		}
		p.ws(name)
		if param.Optional {
			p.ws("?")
		}
		p.ws(": ")
		p.typ(param.Type)
	}
	if arrow {
		p.ws(") => ")
	} else {
		p.ws("): ")
	}
	if pred := f.Predicate; pred != nil {
		if pred.Asserts {
			p.ws("asserts ")
		}
		if pred.ParamName == "" {
			p.ws("this")
		} else {
			p.ws(pred.ParamName)
		}
		if pred.Type != TypeNone {
			p.ws(" is ")
			p.typ(pred.Type)
		}
		return
	}
	p.typ(f.Return)
}

func (p *printer) callable(s *CallableShape) {
	if len(s.CallSignatures)+len(s.ConstructSignatures)+len(s.Properties) == 0 && s.StringIndex == nil && s.NumberIndex == nil {
		p.ws("{}")
		return
	}
	p.ws("{ ")
	first := true
	for _, group := range [][]FunctionShape{s.CallSignatures, s.ConstructSignatures} {
		for i := range group {
			if !first {
				p.ws("; ")
			}
			first = false
			p.signature(&group[i], false)
		}
	}
	p.members(s.Properties, s.StringIndex, s.NumberIndex, first)
	p.ws(" }")
}

func (p *printer) mapped(m *MappedType) {
	p.ws("{ ")
	switch m.Readonly {
	case ModifierAdd:
		p.ws("readonly ")
	case ModifierRemove:
		p.ws("-readonly ")
	}
	p.ws("[", m.Param.Name, " in ")
	p.typ(m.Constraint)
	if m.NameType != TypeNone {
		p.ws(" as ")
		p.typ(m.NameType)
	}
	p.ws("]")
	switch m.Optional {
	case ModifierAdd:
		p.ws("?")
	case ModifierRemove:
		p.ws("-?")
	}
	p.ws(": ")
	p.typ(m.Template)
	p.ws(" }")
}
