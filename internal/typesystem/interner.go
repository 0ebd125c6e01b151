package typesystem

import (
	"math"
	"sync"

	"github.com/funvibe/tsolve/internal/config"
)

// auxTable deduplicates one kind of auxiliary value by its canonical key.
type auxTable[T any] struct {
	items []T
	index map[string]uint32
}

func newAuxTable[T any]() auxTable[T] {
	return auxTable[T]{index: make(map[string]uint32)}
}

// Interner owns every type value of a session. It hands out TypeIDs for
// keys, returning the existing handle when an equal key was interned before.
//
// All tables are append-only and guarded by a single RWMutex, so an Interner
// may be shared by any number of goroutines without external locking.
// Values returned by the accessors (shapes, lists) are shared and must not
// be modified.
type Interner struct {
	mu    sync.RWMutex
	keys  []TypeKey
	index map[TypeKey]TypeID

	lists     auxTable[TypeList]
	shapes    auxTable[*ObjectShape]
	funcs     auxTable[*FunctionShape]
	callables auxTable[*CallableShape]
	tuples    auxTable[[]TupleElement]
	templates auxTable[[]TemplateSpan]
	conds     auxTable[*ConditionalType]
	mapped    auxTable[*MappedType]
	apps      auxTable[*TypeApplication]

	// NaN never equals itself as a map key, so its literal is interned once.
	nanOnce sync.Once
	nan     TypeID

	templateLimit int
}

// NewInterner creates an Interner with the builtin types pre-registered.
// templateLimit caps template literal expansion; zero selects the default.
func NewInterner(templateLimit int) *Interner {
	if templateLimit <= 0 {
		templateLimit = config.TemplateExpansionLimit
	}
	in := &Interner{
		keys:          make([]TypeKey, FirstUserID, 1024),
		index:         make(map[TypeKey]TypeID, 1024),
		lists:         newAuxTable[TypeList](),
		shapes:        newAuxTable[*ObjectShape](),
		funcs:         newAuxTable[*FunctionShape](),
		callables:     newAuxTable[*CallableShape](),
		tuples:        newAuxTable[[]TupleElement](),
		templates:     newAuxTable[[]TemplateSpan](),
		conds:         newAuxTable[*ConditionalType](),
		mapped:        newAuxTable[*MappedType](),
		apps:          newAuxTable[*TypeApplication](),
		templateLimit: templateLimit,
	}
	builtins := map[TypeID]TypeKey{
		TypeError:     Intrinsic{KindError},
		TypeNever:     Intrinsic{KindNever},
		TypeUnknown:   Intrinsic{KindUnknown},
		TypeAny:       Intrinsic{KindAny},
		TypeVoid:      Intrinsic{KindVoid},
		TypeUndefined: Intrinsic{KindUndefined},
		TypeNull:      Intrinsic{KindNull},
		TypeBoolean:   Intrinsic{KindBoolean},
		TypeNumber:    Intrinsic{KindNumber},
		TypeString:    Intrinsic{KindString},
		TypeBigInt:    Intrinsic{KindBigInt},
		TypeSymbol:    Intrinsic{KindSymbol},
		TypeObject:    Intrinsic{KindObject},
		TypeTrue:      Literal{BoolLit(true)},
		TypeFalse:     Literal{BoolLit(false)},
		TypeFunction:  Intrinsic{KindFunction},
	}
	for id, key := range builtins {
		in.keys[id] = key
		in.index[key] = id
	}
	return in
}

// TemplateLimit returns the template literal expansion cap.
func (in *Interner) TemplateLimit() int { return in.templateLimit }

// Len returns the number of handles issued so far, builtins included.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.keys)
}

// Intern returns the handle for key, allocating one if the key is new.
// Union, Intersection and TemplateLiteral keys are renormalized first so the
// canonical-form invariants hold no matter how the key was built.
func (in *Interner) Intern(key TypeKey) TypeID {
	switch k := key.(type) {
	case nil:
		return TypeNone
	case Union:
		return in.Union(in.TypeList(k.Members))
	case Intersection:
		return in.Intersection(in.TypeList(k.Members))
	case TemplateLiteral:
		return in.TemplateLiteral(in.TemplateSpans(k.Spans))
	case Literal:
		return in.Literal(k.Value)
	}
	return in.intern(key)
}

// intern stores key verbatim.
func (in *Interner) intern(key TypeKey) TypeID {
	in.mu.RLock()
	id, ok := in.index[key]
	in.mu.RUnlock()
	if ok {
		return id
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.index[key]; ok {
		return id
	}
	id = TypeID(len(in.keys))
	in.keys = append(in.keys, key)
	in.index[key] = id
	return id
}

// Lookup returns the key for id. It is the only way to inspect a type.
func (in *Interner) Lookup(id TypeID) (TypeKey, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if int(id) >= len(in.keys) {
		return nil, false
	}
	key := in.keys[id]
	return key, key != nil
}

// Key is Lookup without the ok flag; unknown handles yield nil.
func (in *Interner) Key(id TypeID) TypeKey {
	key, _ := in.Lookup(id)
	return key
}

func internAux[T any](in *Interner, t *auxTable[T], key string, build func() T) uint32 {
	in.mu.RLock()
	id, ok := t.index[key]
	in.mu.RUnlock()
	if ok {
		return id
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := t.index[key]; ok {
		return id
	}
	id = uint32(len(t.items))
	t.items = append(t.items, build())
	t.index[key] = id
	return id
}

func getAux[T any](in *Interner, t *auxTable[T], id uint32) T {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if int(id) >= len(t.items) {
		var zero T
		return zero
	}
	return t.items[id]
}

// InternList stores a member list verbatim. Callers that want union or
// intersection semantics should use Union or Intersection instead.
func (in *Interner) InternList(ids []TypeID) ListID {
	return ListID(internAux(in, &in.lists, encodeList(ids), func() TypeList { return NewTypeList(ids) }))
}

// TypeList returns a copy of the members of a list.
func (in *Interner) TypeList(id ListID) []TypeID {
	l := getAux(in, &in.lists, uint32(id))
	return l.Slice()
}

// StoredList exposes the stored representation of a list, for inspecting
// inline storage.
func (in *Interner) StoredList(id ListID) TypeList {
	return getAux(in, &in.lists, uint32(id))
}

// ObjectShape returns the shape behind id.
func (in *Interner) ObjectShape(id ShapeID) *ObjectShape {
	return getAux(in, &in.shapes, uint32(id))
}

// FunctionShape returns the signature behind id.
func (in *Interner) FunctionShape(id FuncID) *FunctionShape {
	return getAux(in, &in.funcs, uint32(id))
}

// CallableShape returns the callable shape behind id.
func (in *Interner) CallableShape(id CallableID) *CallableShape {
	return getAux(in, &in.callables, uint32(id))
}

// TupleElements returns the elements behind id.
func (in *Interner) TupleElements(id TupleID) []TupleElement {
	return getAux(in, &in.tuples, uint32(id))
}

// TemplateSpans returns the spans behind id.
func (in *Interner) TemplateSpans(id TemplateID) []TemplateSpan {
	return getAux(in, &in.templates, uint32(id))
}

// ConditionalType returns the conditional behind id.
func (in *Interner) ConditionalType(id CondID) *ConditionalType {
	return getAux(in, &in.conds, uint32(id))
}

// MappedType returns the mapped type behind id.
func (in *Interner) MappedType(id MappedID) *MappedType {
	return getAux(in, &in.mapped, uint32(id))
}

// TypeApplication returns the application behind id.
func (in *Interner) TypeApplication(id AppID) *TypeApplication {
	return getAux(in, &in.apps, uint32(id))
}

// Constructors

// Literal interns a literal type.
func (in *Interner) Literal(v LiteralValue) TypeID {
	switch v.Kind {
	case LitBoolean:
		return in.LiteralBool(v.Bool)
	case LitNumber:
		return in.LiteralNumber(v.Num)
	}
	return in.intern(Literal{v})
}

func (in *Interner) LiteralString(s string) TypeID { return in.intern(Literal{StringLit(s)}) }
func (in *Interner) LiteralBigInt(s string) TypeID { return in.intern(Literal{BigIntLit(s)}) }

// LiteralNumber interns a number literal. Every NaN maps to one handle.
func (in *Interner) LiteralNumber(n float64) TypeID {
	if math.IsNaN(n) {
		in.nanOnce.Do(func() { in.nan = in.intern(Literal{NumberLit(n)}) })
		return in.nan
	}
	return in.intern(Literal{NumberLit(n)})
}

// LiteralBool returns the builtin true or false handle.
func (in *Interner) LiteralBool(b bool) TypeID {
	if b {
		return TypeTrue
	}
	return TypeFalse
}

// Union2 is Union of two members.
func (in *Interner) Union2(a, b TypeID) TypeID { return in.Union([]TypeID{a, b}) }

// Intersection2 is Intersection of two members.
func (in *Interner) Intersection2(a, b TypeID) TypeID { return in.Intersection([]TypeID{a, b}) }

func normalizeProps(props []PropertyInfo) []PropertyInfo {
	out := make([]PropertyInfo, len(props))
	copy(out, props)
	for i := range out {
		if out[i].WriteType == TypeNone {
			out[i].WriteType = out[i].Type
		}
	}
	sortProperties(out)
	return out
}

func cloneIndex(sig *IndexSignature) *IndexSignature {
	if sig == nil {
		return nil
	}
	c := *sig
	return &c
}

// Object interns a plain object type with the given properties.
func (in *Interner) Object(props []PropertyInfo) TypeID {
	return in.ObjectWithShape(ObjectShape{Properties: props})
}

// ObjectFresh interns an object literal type subject to excess property checks.
func (in *Interner) ObjectFresh(props []PropertyInfo) TypeID {
	return in.ObjectWithShape(ObjectShape{Flags: FlagFreshLiteral, Properties: props})
}

// ObjectWithShape interns an object type. Shapes with index signatures get
// the ObjectWithIndex key.
func (in *Interner) ObjectWithShape(shape ObjectShape) TypeID {
	s := &ObjectShape{
		Flags:       shape.Flags,
		Properties:  normalizeProps(shape.Properties),
		StringIndex: cloneIndex(shape.StringIndex),
		NumberIndex: cloneIndex(shape.NumberIndex),
		Symbol:      shape.Symbol,
	}
	id := ShapeID(internAux(in, &in.shapes, encodeShape(s), func() *ObjectShape { return s }))
	if s.HasIndex() {
		return in.intern(ObjectWithIndex{id})
	}
	return in.intern(Object{id})
}

// Array interns `elem[]`.
func (in *Interner) Array(elem TypeID) TypeID { return in.intern(Array{elem}) }

// Tuple interns a tuple type.
func (in *Interner) Tuple(elems []TupleElement) TypeID {
	cp := append([]TupleElement(nil), elems...)
	id := TupleID(internAux(in, &in.tuples, encodeTuple(cp), func() []TupleElement { return cp }))
	return in.intern(Tuple{id})
}

// Readonly interns `readonly T` for arrays and tuples. Other types are
// returned unchanged.
func (in *Interner) Readonly(inner TypeID) TypeID {
	switch in.Key(inner).(type) {
	case Array, Tuple:
		return in.intern(ReadonlyType{inner})
	case ReadonlyType:
		return inner
	}
	return inner
}

func cloneFunction(f FunctionShape) *FunctionShape {
	c := f
	c.TypeParams = append([]TypeParamInfo(nil), f.TypeParams...)
	c.Params = append([]ParamInfo(nil), f.Params...)
	if f.Predicate != nil {
		p := *f.Predicate
		c.Predicate = &p
	}
	if c.Return == TypeNone {
		c.Return = TypeVoid
	}
	return &c
}

// Function interns a single-signature function type.
func (in *Interner) Function(f FunctionShape) TypeID {
	s := cloneFunction(f)
	id := FuncID(internAux(in, &in.funcs, encodeFunction(s), func() *FunctionShape { return s }))
	return in.intern(Function{id})
}

// Callable interns an overloaded / constructible object type.
func (in *Interner) Callable(c CallableShape) TypeID {
	s := &CallableShape{
		Properties:  normalizeProps(c.Properties),
		StringIndex: cloneIndex(c.StringIndex),
		NumberIndex: cloneIndex(c.NumberIndex),
		Symbol:      c.Symbol,
	}
	for _, sig := range c.CallSignatures {
		s.CallSignatures = append(s.CallSignatures, *cloneFunction(sig))
	}
	for _, sig := range c.ConstructSignatures {
		sig.IsConstructor = true
		s.ConstructSignatures = append(s.ConstructSignatures, *cloneFunction(sig))
	}
	id := CallableID(internAux(in, &in.callables, encodeCallable(s), func() *CallableShape { return s }))
	return in.intern(Callable{id})
}

// TypeParam interns a type parameter.
func (in *Interner) TypeParam(info TypeParamInfo) TypeID { return in.intern(TypeParam{info}) }

// Infer interns an `infer X` placeholder.
func (in *Interner) Infer(info TypeParamInfo) TypeID { return in.intern(Infer{info}) }

// Lazy interns a deferred reference to a named definition.
func (in *Interner) Lazy(def DefID) TypeID { return in.intern(Lazy{def}) }

// TypeQuery interns `typeof x`.
func (in *Interner) TypeQuery(def DefID) TypeID { return in.intern(TypeQuery{def}) }

// UniqueSymbol interns `unique symbol` for the declaration def.
func (in *Interner) UniqueSymbol(def DefID) TypeID { return in.intern(UniqueSymbol{def}) }

// This interns the polymorphic `this` type.
func (in *Interner) This() TypeID { return in.intern(ThisType{}) }

// Enum interns an enum type or enum member. members is the union of member
// values for the enum itself, or a single literal for a member.
func (in *Interner) Enum(def DefID, members TypeID) TypeID {
	return in.intern(Enum{Def: def, Members: members})
}

// Application interns `base<args...>`.
func (in *Interner) Application(base TypeID, args []TypeID) TypeID {
	a := &TypeApplication{Base: base, Args: append([]TypeID(nil), args...)}
	id := AppID(internAux(in, &in.apps, encodeApplication(a), func() *TypeApplication { return a }))
	return in.intern(Application{id})
}

// Conditional interns a conditional type.
func (in *Interner) Conditional(c ConditionalType) TypeID {
	cp := c
	id := CondID(internAux(in, &in.conds, encodeConditional(&cp), func() *ConditionalType { return &cp }))
	return in.intern(Conditional{id})
}

// Mapped interns a mapped type.
func (in *Interner) Mapped(m MappedType) TypeID {
	cp := m
	id := MappedID(internAux(in, &in.mapped, encodeMapped(&cp), func() *MappedType { return &cp }))
	return in.intern(Mapped{id})
}

// IndexAccess interns `obj[idx]`.
func (in *Interner) IndexAccess(obj, idx TypeID) TypeID {
	return in.intern(IndexAccess{Object: obj, Index: idx})
}

// KeyOf interns `keyof inner`.
func (in *Interner) KeyOf(inner TypeID) TypeID { return in.intern(KeyOf{inner}) }

// StringIntrinsic interns `Uppercase<arg>` and friends. Literal arguments
// are folded immediately.
func (in *Interner) StringIntrinsic(kind StringIntrinsicKind, arg TypeID) TypeID {
	if lit, ok := in.Key(arg).(Literal); ok && lit.Value.Kind == LitString {
		return in.LiteralString(ApplyStringIntrinsic(kind, lit.Value.Str))
	}
	return in.intern(StringIntrinsic{Kind: kind, Arg: arg})
}

func (in *Interner) internTemplate(spans []TemplateSpan) TypeID {
	cp := append([]TemplateSpan(nil), spans...)
	id := TemplateID(internAux(in, &in.templates, encodeTemplate(cp), func() []TemplateSpan { return cp }))
	return in.intern(TemplateLiteral{id})
}

func (in *Interner) internUnionList(members []TypeID) TypeID {
	return in.intern(Union{in.InternList(members)})
}

func (in *Interner) internIntersectionList(members []TypeID) TypeID {
	return in.intern(Intersection{in.InternList(members)})
}
