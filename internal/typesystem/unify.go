package typesystem

import (
	"strings"
	"unicode/utf8"

	"github.com/funvibe/tsolve/internal/config"
)

// Bindings maps placeholders to the types they matched.
type Bindings map[TypeID]TypeID

// Substitution maps type parameter names to their arguments.
type Substitution map[string]TypeID

// SubstitutionOf converts bindings keyed by type parameter handles into a
// name-keyed Substitution.
func (in *Interner) SubstitutionOf(b Bindings) Substitution {
	out := make(Substitution, len(b))
	for id, t := range b {
		if info, ok := in.TypeParamOf(id); ok {
			out[info.Name] = t
		}
	}
	return out
}

// typePair is a (source, pattern) pair on the matching stack, for
// co-induction over recursive references.
type typePair struct {
	source  TypeID
	pattern TypeID
}

type candidates struct {
	co     []TypeID
	contra []TypeID
}

type matcher struct {
	in       *Interner
	resolver Resolver
	isHole   func(TypeID) bool
	visited  []typePair
	found    map[TypeID]*candidates
	failed   bool
}

// MatchInfer walks pattern alongside source and records what every infer
// placeholder in pattern lines up with. Candidates from covariant positions
// are unioned; when there are none, contravariant candidates are
// intersected. Placeholders that match nothing are absent from the result.
//
// The second result is false when the structures can never line up, for
// example a string literal that does not fit a template pattern. A true
// result does not mean the extends check holds; callers substitute the
// bindings and run the relation.
func (in *Interner) MatchInfer(source, pattern TypeID, resolver Resolver) (Bindings, bool) {
	isInfer := func(id TypeID) bool {
		_, ok := in.Key(id).(Infer)
		return ok
	}
	return in.match(source, pattern, resolver, isInfer)
}

// MatchTypeParams is MatchInfer with the given type parameter handles as
// placeholders. It infers the arguments of a generic signature from the
// signature it is compared against.
func (in *Interner) MatchTypeParams(source, pattern TypeID, params []TypeID, resolver Resolver) (Bindings, bool) {
	isParam := func(id TypeID) bool { return containsID(params, id) }
	return in.match(source, pattern, resolver, isParam)
}

func (in *Interner) match(source, pattern TypeID, resolver Resolver, isHole func(TypeID) bool) (Bindings, bool) {
	if resolver == nil {
		resolver = NoopResolver{}
	}
	m := &matcher{in: in, resolver: resolver, isHole: isHole, found: make(map[TypeID]*candidates)}
	m.match(source, pattern, false)
	if m.failed {
		return nil, false
	}
	out := make(Bindings, len(m.found))
	for id, c := range m.found {
		switch {
		case len(c.co) > 0:
			out[id] = in.Union(c.co)
		case len(c.contra) > 0:
			out[id] = in.Intersection(c.contra)
		}
	}
	return out, true
}

// HasInfer reports whether id mentions an infer placeholder.
func (in *Interner) HasInfer(id TypeID) bool {
	return in.mentions(id, func(t TypeID) bool {
		_, ok := in.Key(t).(Infer)
		return ok
	})
}

func (in *Interner) mentions(id TypeID, pred func(TypeID) bool) bool {
	found := false
	var walk func(TypeID) bool
	walk = func(t TypeID) bool {
		if pred(t) {
			found = true
			return false
		}
		in.ForEachChild(t, walk)
		return !found
	}
	walk(id)
	return found
}

func (m *matcher) bind(placeholder, source TypeID, contra bool) {
	c := m.found[placeholder]
	if c == nil {
		c = &candidates{}
		m.found[placeholder] = c
	}
	if contra {
		c.contra = append(c.contra, source)
	} else {
		c.co = append(c.co, source)
	}
}

func (m *matcher) resolve(id TypeID) TypeID {
	if lazy, ok := m.in.Key(id).(Lazy); ok && len(m.resolver.TypeParams(lazy.Def)) == 0 {
		if body, ok := m.resolver.ResolveLazy(lazy.Def); ok {
			return body
		}
	}
	return id
}

func (m *matcher) match(source, pattern TypeID, contra bool) {
	if m.failed || source == TypeNone || pattern == TypeNone {
		return
	}
	if m.isHole(pattern) {
		m.bind(pattern, source, contra)
		return
	}
	if !m.in.mentions(pattern, m.isHole) {
		return
	}
	for _, p := range m.visited {
		if p.source == source && p.pattern == pattern {
			return
		}
	}
	if len(m.visited) >= config.MaxEvalDepth {
		return
	}
	m.visited = append(m.visited, typePair{source, pattern})
	defer func() { m.visited = m.visited[:len(m.visited)-1] }()

	source = m.resolve(source)

	// Distribute over a source union so each member contributes a candidate.
	if u, ok := m.in.Key(source).(Union); ok {
		if _, patUnion := m.in.Key(pattern).(Union); !patUnion {
			for _, s := range m.in.TypeList(u.Members) {
				m.match(s, pattern, contra)
			}
			return
		}
	}

	switch p := m.in.Key(pattern).(type) {
	case Union:
		m.matchUnion(source, m.in.TypeList(p.Members), contra)
	case Intersection:
		for _, member := range m.in.TypeList(p.Members) {
			m.match(source, member, contra)
		}
	case Array:
		switch s := m.in.Key(source).(type) {
		case Array:
			m.match(s.Elem, p.Elem, contra)
		case Tuple:
			m.match(m.tupleElementUnion(s.Elems), p.Elem, contra)
		case ReadonlyType:
			m.match(s.Inner, pattern, contra)
		}
	case ReadonlyType:
		if s, ok := m.in.Key(source).(ReadonlyType); ok {
			source = s.Inner
		}
		m.match(source, p.Inner, contra)
	case Tuple:
		m.matchTuple(source, m.in.TupleElements(p.Elems), contra)
	case Object, ObjectWithIndex:
		shape, _ := m.in.ObjectShapeOf(pattern)
		m.matchMembers(source, shape.Properties, shape.StringIndex, shape.NumberIndex, contra)
	case Function:
		if sig := m.lastSignature(source); sig != nil {
			m.matchSignature(sig, m.in.FunctionShape(p.Shape), contra)
		}
	case Callable:
		ps := m.in.CallableShape(p.Shape)
		if len(ps.CallSignatures) > 0 {
			if sig := m.lastSignature(source); sig != nil {
				m.matchSignature(sig, &ps.CallSignatures[len(ps.CallSignatures)-1], contra)
			}
		}
		if len(ps.ConstructSignatures) > 0 {
			if sc, ok := m.in.Key(source).(Callable); ok {
				ss := m.in.CallableShape(sc.Shape)
				if n := len(ss.ConstructSignatures); n > 0 {
					m.matchSignature(&ss.ConstructSignatures[n-1], &ps.ConstructSignatures[len(ps.ConstructSignatures)-1], contra)
				}
			}
		}
		m.matchMembers(source, ps.Properties, ps.StringIndex, ps.NumberIndex, contra)
	case Application:
		if s, ok := m.in.Key(source).(Application); ok {
			sa, pa := m.in.TypeApplication(s.App), m.in.TypeApplication(p.App)
			if sa.Base == pa.Base && len(sa.Args) == len(pa.Args) {
				for i := range pa.Args {
					m.match(sa.Args[i], pa.Args[i], contra)
				}
			}
		}
	case TemplateLiteral:
		m.matchTemplate(source, m.in.TemplateSpans(p.Spans), contra)
	case KeyOf:
		if s, ok := m.in.Key(source).(KeyOf); ok {
			m.match(s.Inner, p.Inner, !contra)
		}
	case IndexAccess:
		if s, ok := m.in.Key(source).(IndexAccess); ok {
			m.match(s.Object, p.Object, contra)
			m.match(s.Index, p.Index, contra)
		}
	case StringIntrinsic:
		if s, ok := m.in.Key(source).(StringIntrinsic); ok && s.Kind == p.Kind {
			m.match(s.Arg, p.Arg, contra)
		}
	}
}

// matchUnion matches a union pattern such as `infer U | undefined`: source
// members identical to a fixed pattern member are consumed, the rest go to
// the members that carry placeholders.
func (m *matcher) matchUnion(source TypeID, patterns []TypeID, contra bool) {
	var fixed, open []TypeID
	for _, p := range patterns {
		if m.in.mentions(p, m.isHole) {
			open = append(open, p)
		} else {
			fixed = append(fixed, p)
		}
	}
	var rest []TypeID
	for _, s := range m.in.UnionMembers(source) {
		if !containsID(fixed, s) {
			rest = append(rest, s)
		}
	}
	if len(rest) == 0 || len(open) == 0 {
		return
	}
	remaining := m.in.Union(rest)
	for _, p := range open {
		m.match(remaining, p, contra)
	}
}

func containsID(ids []TypeID, id TypeID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func (m *matcher) tupleElementUnion(id TupleID) TypeID {
	elems := m.in.TupleElements(id)
	types := make([]TypeID, 0, len(elems))
	for _, e := range elems {
		t := e.Type
		if e.Rest {
			if arr, ok := m.in.Key(t).(Array); ok {
				t = arr.Elem
			}
		}
		types = append(types, t)
	}
	return m.in.Union(types)
}

func (m *matcher) matchTuple(source TypeID, pattern []TupleElement, contra bool) {
	if r, ok := m.in.Key(source).(ReadonlyType); ok {
		source = r.Inner
	}
	switch s := m.in.Key(source).(type) {
	case Array:
		for _, pe := range pattern {
			if pe.Rest {
				m.match(source, pe.Type, contra)
			} else {
				m.match(s.Elem, pe.Type, contra)
			}
		}
	case Tuple:
		elems := m.in.TupleElements(s.Elems)
		for i, pe := range pattern {
			if pe.Rest {
				// A trailing rest placeholder takes the remaining elements.
				tail := []TupleElement{}
				if i < len(elems) {
					tail = elems[i:]
				}
				m.match(m.in.Tuple(tail), pe.Type, contra)
				return
			}
			if i >= len(elems) {
				if !pe.Optional {
					m.failed = true
				}
				return
			}
			m.match(elems[i].Type, pe.Type, contra)
		}
	}
}

func (m *matcher) memberOf(source TypeID, name string) (PropertyInfo, bool) {
	switch s := m.in.Key(source).(type) {
	case Object:
		return m.in.ObjectShape(s.Shape).Property(name)
	case ObjectWithIndex:
		shape := m.in.ObjectShape(s.Shape)
		if p, ok := shape.Property(name); ok {
			return p, true
		}
		if shape.StringIndex != nil {
			return PropertyInfo{Name: name, Type: shape.StringIndex.Value}, true
		}
	case Callable:
		return m.in.CallableShape(s.Shape).Property(name)
	case Intersection:
		for _, member := range m.in.TypeList(s.Members) {
			if p, ok := m.memberOf(m.resolve(member), name); ok {
				return p, true
			}
		}
	}
	return PropertyInfo{}, false
}

func (m *matcher) matchMembers(source TypeID, props []PropertyInfo, str, num *IndexSignature, contra bool) {
	for _, pp := range props {
		if sp, ok := m.memberOf(source, pp.Name); ok {
			m.match(sp.Type, pp.Type, contra)
		}
	}
	if str == nil && num == nil {
		return
	}
	shape, ok := m.in.ObjectShapeOf(source)
	if !ok {
		return
	}
	if str != nil {
		values := make([]TypeID, 0, len(shape.Properties)+1)
		for _, p := range shape.Properties {
			values = append(values, p.Type)
		}
		if shape.StringIndex != nil {
			values = append(values, shape.StringIndex.Value)
		}
		if len(values) > 0 {
			m.match(m.in.Union(values), str.Value, contra)
		}
	}
	if num != nil && shape.NumberIndex != nil {
		m.match(shape.NumberIndex.Value, num.Value, contra)
	}
}

// lastSignature picks the signature inference uses for an overloaded source.
func (m *matcher) lastSignature(source TypeID) *FunctionShape {
	switch s := m.in.Key(source).(type) {
	case Function:
		return m.in.FunctionShape(s.Shape)
	case Callable:
		sigs := m.in.CallableShape(s.Shape).CallSignatures
		if len(sigs) > 0 {
			return &sigs[len(sigs)-1]
		}
	}
	return nil
}

func (m *matcher) matchSignature(source, pattern *FunctionShape, contra bool) {
	for i, pp := range pattern.Params {
		if pp.Rest {
			// `(...args: infer P) => R` collects the remaining source params.
			var tail []TupleElement
			for _, sp := range source.Params[min(i, len(source.Params)):] {
				tail = append(tail, TupleElement{Type: sp.Type, Name: sp.Name, Optional: sp.Optional, Rest: sp.Rest})
			}
			m.match(m.in.Tuple(tail), pp.Type, !contra)
			break
		}
		if i < len(source.Params) {
			st := source.Params[i].Type
			if source.Params[i].Rest {
				if arr, ok := m.in.Key(st).(Array); ok {
					st = arr.Elem
				}
			}
			m.match(st, pp.Type, !contra)
		}
	}
	if pattern.This != TypeNone && source.This != TypeNone {
		m.match(source.This, pattern.This, !contra)
	}
	if pattern.Predicate != nil && source.Predicate != nil {
		m.match(source.Predicate.Type, pattern.Predicate.Type, contra)
		return
	}
	m.match(source.Return, pattern.Return, contra)
}

// matchTemplate matches a string literal against template spans. A hole
// followed by text extends to the first occurrence of that text; a hole
// followed by another hole takes one character; a final hole takes the rest.
func (m *matcher) matchTemplate(source TypeID, spans []TemplateSpan, contra bool) {
	lit, ok := m.in.LiteralOf(source)
	if !ok || lit.Kind != LitString {
		if source != TypeString && source != TypeAny {
			if _, isTemplate := m.in.Key(source).(TemplateLiteral); !isTemplate {
				m.failed = true
			}
		}
		return
	}
	s := lit.Str
	for i, span := range spans {
		if span.IsText() {
			if !strings.HasPrefix(s, span.Text) {
				m.failed = true
				return
			}
			s = s[len(span.Text):]
			continue
		}
		var segment string
		switch {
		case i == len(spans)-1:
			segment = s
		case spans[i+1].IsText():
			end := strings.Index(s, spans[i+1].Text)
			if end < 0 {
				m.failed = true
				return
			}
			segment = s[:end]
		default:
			if s == "" {
				m.failed = true
				return
			}
			_, size := utf8.DecodeRuneInString(s)
			segment = s[:size]
		}
		s = s[len(segment):]
		if m.isHole(span.Type) {
			m.bind(span.Type, m.in.LiteralString(segment), contra)
			continue
		}
		if !m.in.holeAccepts(span.Type, segment) {
			m.failed = true
			return
		}
	}
	if s != "" {
		m.failed = true
	}
}
