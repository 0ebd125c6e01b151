package typesystem

// ForEachChild calls visit for every type directly referenced by id.
// Iteration stops early when visit returns false. Type parameters, lazy
// references and other leaves have no children.
func (in *Interner) ForEachChild(id TypeID, visit func(TypeID) bool) {
	each := func(ids ...TypeID) bool {
		for _, c := range ids {
			if c != TypeNone && !visit(c) {
				return false
			}
		}
		return true
	}
	eachProps := func(props []PropertyInfo) bool {
		for _, p := range props {
			if !each(p.Type, p.WriteType) {
				return false
			}
		}
		return true
	}
	eachIndex := func(sigs ...*IndexSignature) bool {
		for _, s := range sigs {
			if s != nil && !each(s.Key, s.Value) {
				return false
			}
		}
		return true
	}
	eachFunc := func(f *FunctionShape) bool {
		for _, tp := range f.TypeParams {
			if !each(tp.Constraint, tp.Default) {
				return false
			}
		}
		for _, p := range f.Params {
			if !each(p.Type) {
				return false
			}
		}
		if f.Predicate != nil && !each(f.Predicate.Type) {
			return false
		}
		return each(f.This, f.Return)
	}

	switch k := in.Key(id).(type) {
	case Union:
		each(in.TypeList(k.Members)...)
	case Intersection:
		each(in.TypeList(k.Members)...)
	case Object:
		s := in.ObjectShape(k.Shape)
		_ = eachProps(s.Properties) && eachIndex(s.StringIndex, s.NumberIndex)
	case ObjectWithIndex:
		s := in.ObjectShape(k.Shape)
		_ = eachProps(s.Properties) && eachIndex(s.StringIndex, s.NumberIndex)
	case Array:
		each(k.Elem)
	case Tuple:
		for _, e := range in.TupleElements(k.Elems) {
			if !each(e.Type) {
				return
			}
		}
	case ReadonlyType:
		each(k.Inner)
	case Function:
		eachFunc(in.FunctionShape(k.Shape))
	case Callable:
		s := in.CallableShape(k.Shape)
		for i := range s.CallSignatures {
			if !eachFunc(&s.CallSignatures[i]) {
				return
			}
		}
		for i := range s.ConstructSignatures {
			if !eachFunc(&s.ConstructSignatures[i]) {
				return
			}
		}
		_ = eachProps(s.Properties) && eachIndex(s.StringIndex, s.NumberIndex)
	case Application:
		a := in.TypeApplication(k.App)
		_ = each(a.Base) && each(a.Args...)
	case Conditional:
		c := in.ConditionalType(k.Cond)
		each(c.Check, c.Extends, c.True, c.False)
	case Mapped:
		m := in.MappedType(k.Mapped)
		each(m.Param.Constraint, m.Constraint, m.NameType, m.Template)
	case IndexAccess:
		each(k.Object, k.Index)
	case KeyOf:
		each(k.Inner)
	case TemplateLiteral:
		for _, s := range in.TemplateSpans(k.Spans) {
			if !s.IsText() && !each(s.Type) {
				return
			}
		}
	case StringIntrinsic:
		each(k.Arg)
	case Enum:
		each(k.Members)
	}
}

// MapChildren rebuilds id with f applied to every directly referenced type.
// The result is re-interned, so unions and intersections renormalize. When f
// changes nothing the original handle is returned.
//
// Signature and mapped type parameters are passed through f as well (their
// constraints and defaults); callers that need scoping, such as the
// instantiator, shadow them before calling.
func (in *Interner) MapChildren(id TypeID, f func(TypeID) TypeID) TypeID {
	changed := false
	m := func(t TypeID) TypeID {
		if t == TypeNone {
			return t
		}
		r := f(t)
		if r != t {
			changed = true
		}
		return r
	}
	mapList := func(ids []TypeID) []TypeID {
		out := make([]TypeID, len(ids))
		for i, t := range ids {
			out[i] = m(t)
		}
		return out
	}
	mapProps := func(props []PropertyInfo) []PropertyInfo {
		out := make([]PropertyInfo, len(props))
		for i, p := range props {
			out[i] = p
			out[i].Type = m(p.Type)
			out[i].WriteType = m(p.WriteType)
		}
		return out
	}
	mapIndex := func(sig *IndexSignature) *IndexSignature {
		if sig == nil {
			return nil
		}
		return &IndexSignature{Key: m(sig.Key), Value: m(sig.Value), Readonly: sig.Readonly}
	}
	mapParam := func(tp TypeParamInfo) TypeParamInfo {
		tp.Constraint = m(tp.Constraint)
		tp.Default = m(tp.Default)
		return tp
	}
	mapFunc := func(sig *FunctionShape) FunctionShape {
		out := FunctionShape{
			This:          m(sig.This),
			Return:        m(sig.Return),
			IsConstructor: sig.IsConstructor,
			IsMethod:      sig.IsMethod,
		}
		for _, tp := range sig.TypeParams {
			out.TypeParams = append(out.TypeParams, mapParam(tp))
		}
		for _, p := range sig.Params {
			p.Type = m(p.Type)
			out.Params = append(out.Params, p)
		}
		if sig.Predicate != nil {
			p := *sig.Predicate
			p.Type = m(p.Type)
			out.Predicate = &p
		}
		return out
	}

	var result TypeID
	switch k := in.Key(id).(type) {
	case Union:
		result = in.Union(mapList(in.TypeList(k.Members)))
	case Intersection:
		result = in.Intersection(mapList(in.TypeList(k.Members)))
	case Object, ObjectWithIndex:
		s, _ := in.ObjectShapeOf(id)
		result = in.ObjectWithShape(ObjectShape{
			Flags:       s.Flags,
			Properties:  mapProps(s.Properties),
			StringIndex: mapIndex(s.StringIndex),
			NumberIndex: mapIndex(s.NumberIndex),
			Symbol:      s.Symbol,
		})
	case Array:
		result = in.Array(m(k.Elem))
	case Tuple:
		elems := in.TupleElements(k.Elems)
		out := make([]TupleElement, len(elems))
		for i, e := range elems {
			out[i] = e
			out[i].Type = m(e.Type)
		}
		result = in.Tuple(out)
	case ReadonlyType:
		result = in.Readonly(m(k.Inner))
	case Function:
		result = in.Function(mapFunc(in.FunctionShape(k.Shape)))
	case Callable:
		s := in.CallableShape(k.Shape)
		c := CallableShape{
			Properties:  mapProps(s.Properties),
			StringIndex: mapIndex(s.StringIndex),
			NumberIndex: mapIndex(s.NumberIndex),
			Symbol:      s.Symbol,
		}
		for i := range s.CallSignatures {
			c.CallSignatures = append(c.CallSignatures, mapFunc(&s.CallSignatures[i]))
		}
		for i := range s.ConstructSignatures {
			c.ConstructSignatures = append(c.ConstructSignatures, mapFunc(&s.ConstructSignatures[i]))
		}
		result = in.Callable(c)
	case Application:
		a := in.TypeApplication(k.App)
		result = in.Application(m(a.Base), mapList(a.Args))
	case Conditional:
		c := in.ConditionalType(k.Cond)
		result = in.Conditional(ConditionalType{
			Check:        m(c.Check),
			Extends:      m(c.Extends),
			True:         m(c.True),
			False:        m(c.False),
			Distributive: c.Distributive,
		})
	case Mapped:
		mt := in.MappedType(k.Mapped)
		result = in.Mapped(MappedType{
			Param:      mapParam(mt.Param),
			Constraint: m(mt.Constraint),
			NameType:   m(mt.NameType),
			Template:   m(mt.Template),
			Readonly:   mt.Readonly,
			Optional:   mt.Optional,
		})
	case IndexAccess:
		result = in.IndexAccess(m(k.Object), m(k.Index))
	case KeyOf:
		result = in.KeyOf(m(k.Inner))
	case TemplateLiteral:
		spans := in.TemplateSpans(k.Spans)
		out := make([]TemplateSpan, len(spans))
		for i, s := range spans {
			out[i] = s
			if !s.IsText() {
				out[i].Type = m(s.Type)
			}
		}
		result = in.TemplateLiteral(out)
	case StringIntrinsic:
		result = in.StringIntrinsic(k.Kind, m(k.Arg))
	case Enum:
		result = in.Enum(k.Def, m(k.Members))
	default:
		return id
	}
	if !changed {
		return id
	}
	return result
}
