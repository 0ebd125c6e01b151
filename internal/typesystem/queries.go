package typesystem

// UnionMembers returns the members of a union, or id alone otherwise.
func (in *Interner) UnionMembers(id TypeID) []TypeID {
	if u, ok := in.Key(id).(Union); ok {
		return in.TypeList(u.Members)
	}
	return []TypeID{id}
}

// IntersectionMembers returns the members of an intersection, or id alone.
func (in *Interner) IntersectionMembers(id TypeID) []TypeID {
	if x, ok := in.Key(id).(Intersection); ok {
		return in.TypeList(x.Members)
	}
	return []TypeID{id}
}

// IsUnion reports whether id is a union type.
func (in *Interner) IsUnion(id TypeID) bool {
	_, ok := in.Key(id).(Union)
	return ok
}

// LiteralOf returns the value of a literal type.
func (in *Interner) LiteralOf(id TypeID) (LiteralValue, bool) {
	if lit, ok := in.Key(id).(Literal); ok {
		return lit.Value, true
	}
	return LiteralValue{}, false
}

// IsLiteral reports whether id is a literal type (true and false included).
func (in *Interner) IsLiteral(id TypeID) bool {
	_, ok := in.LiteralOf(id)
	return ok
}

// IsUnitType reports whether id has exactly one inhabitant.
func (in *Interner) IsUnitType(id TypeID) bool {
	switch id {
	case TypeNull, TypeUndefined, TypeVoid, TypeTrue, TypeFalse:
		return true
	}
	switch k := in.Key(id).(type) {
	case Literal, UniqueSymbol:
		return true
	case Enum:
		return in.IsUnitType(k.Members)
	}
	return false
}

// IsTypeParam reports whether id is a type parameter or infer placeholder.
func (in *Interner) IsTypeParam(id TypeID) bool {
	switch in.Key(id).(type) {
	case TypeParam, Infer:
		return true
	}
	return false
}

// TypeParamOf returns the parameter info of a type parameter.
func (in *Interner) TypeParamOf(id TypeID) (TypeParamInfo, bool) {
	switch k := in.Key(id).(type) {
	case TypeParam:
		return k.Info, true
	case Infer:
		return k.Info, true
	}
	return TypeParamInfo{}, false
}

// WidenLiteral maps a literal to its primitive: "a" to string, 1 to number,
// true to boolean. Unions widen member-wise; other types are unchanged.
func (in *Interner) WidenLiteral(id TypeID) TypeID {
	switch id {
	case TypeTrue, TypeFalse:
		return TypeBoolean
	}
	switch k := in.Key(id).(type) {
	case Literal:
		switch k.Value.Kind {
		case LitString:
			return TypeString
		case LitNumber:
			return TypeNumber
		case LitBigInt:
			return TypeBigInt
		}
	case TemplateLiteral, StringIntrinsic:
		return TypeString
	case UniqueSymbol:
		return TypeSymbol
	case Union:
		members := in.TypeList(k.Members)
		changed := false
		for i, m := range members {
			w := in.WidenLiteral(m)
			changed = changed || w != m
			members[i] = w
		}
		if changed {
			return in.Union(members)
		}
	}
	return id
}

// PrimitiveOf returns the primitive type of a literal or primitive-class
// type, or TypeNone.
func (in *Interner) PrimitiveOf(id TypeID) TypeID {
	switch in.PrimitiveClassOf(id) {
	case ClassString:
		return TypeString
	case ClassNumber:
		return TypeNumber
	case ClassBoolean:
		return TypeBoolean
	case ClassBigInt:
		return TypeBigInt
	case ClassSymbol:
		return TypeSymbol
	case ClassNull:
		return TypeNull
	case ClassUndefined:
		return TypeUndefined
	}
	return TypeNone
}

// ObjectShapeOf returns the shape of an Object or ObjectWithIndex type.
func (in *Interner) ObjectShapeOf(id TypeID) (*ObjectShape, bool) {
	switch k := in.Key(id).(type) {
	case Object:
		return in.ObjectShape(k.Shape), true
	case ObjectWithIndex:
		return in.ObjectShape(k.Shape), true
	}
	return nil, false
}

// PropertiesOf returns the named members of an object or callable type.
func (in *Interner) PropertiesOf(id TypeID) ([]PropertyInfo, bool) {
	switch k := in.Key(id).(type) {
	case Object:
		return in.ObjectShape(k.Shape).Properties, true
	case ObjectWithIndex:
		return in.ObjectShape(k.Shape).Properties, true
	case Callable:
		return in.CallableShape(k.Shape).Properties, true
	}
	return nil, false
}

// IsFreshObject reports whether id is an object literal type.
func (in *Interner) IsFreshObject(id TypeID) bool {
	s, ok := in.ObjectShapeOf(id)
	return ok && s.IsFresh()
}

// Regular drops the freshness of an object literal type.
func (in *Interner) Regular(id TypeID) TypeID {
	s, ok := in.ObjectShapeOf(id)
	if !ok || !s.IsFresh() {
		return id
	}
	c := *s
	c.Flags &^= FlagFreshLiteral
	return in.ObjectWithShape(c)
}

// IsEmptyObject reports whether id is `{}`: an object type with no members.
func (in *Interner) IsEmptyObject(id TypeID) bool {
	s, ok := in.ObjectShapeOf(id)
	return ok && len(s.Properties) == 0 && !s.HasIndex()
}

// IsCallable reports whether id has call or construct signatures.
func (in *Interner) IsCallable(id TypeID) bool {
	switch k := in.Key(id).(type) {
	case Function:
		return true
	case Callable:
		s := in.CallableShape(k.Shape)
		return len(s.CallSignatures)+len(s.ConstructSignatures) > 0
	case Intrinsic:
		return k.Kind == KindFunction
	case Intersection:
		for _, m := range in.TypeList(k.Members) {
			if in.IsCallable(m) {
				return true
			}
		}
	}
	return false
}

// EnumOf returns the declaration and member union of an enum or enum member.
func (in *Interner) EnumOf(id TypeID) (DefID, TypeID, bool) {
	if e, ok := in.Key(id).(Enum); ok {
		return e.Def, e.Members, true
	}
	return 0, TypeNone, false
}

// ContainsTypeParams reports whether id mentions a type parameter, infer
// placeholder or `this` anywhere in its structure. Lazy references are not
// followed.
func (in *Interner) ContainsTypeParams(id TypeID) bool {
	seen := make(map[TypeID]bool)
	var walk func(TypeID) bool
	walk = func(t TypeID) bool {
		if t.IsBuiltin() || seen[t] {
			return false
		}
		seen[t] = true
		switch in.Key(t).(type) {
		case TypeParam, Infer, ThisType:
			return true
		}
		found := false
		in.ForEachChild(t, func(c TypeID) bool {
			if walk(c) {
				found = true
				return false
			}
			return true
		})
		return found
	}
	return walk(id)
}
