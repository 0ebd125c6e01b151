package typesystem

import (
	"golang.org/x/exp/slices"
)

// Union interns the union of members in canonical form.
//
// Normalization flattens nested unions, short-circuits error/any/unknown,
// drops never, sorts by handle and deduplicates, then runs the reduction
// passes: reduceUnion for literal absorption and reduceStructural for object
// and array members that are shallow subtypes of another member. An empty
// union is never and a single survivor is returned as-is.
func (in *Interner) Union(members []TypeID) TypeID {
	flat := make([]TypeID, 0, len(members))
	flat = in.flattenUnion(flat, members)

	var hasAny, hasUnknown bool
	for _, m := range flat {
		switch m {
		case TypeError:
			return TypeError
		case TypeAny:
			hasAny = true
		case TypeUnknown:
			hasUnknown = true
		}
	}
	if hasAny {
		return TypeAny
	}
	if hasUnknown {
		return TypeUnknown
	}

	flat = slices.DeleteFunc(flat, func(id TypeID) bool { return id == TypeNever || id == TypeNone })
	slices.Sort(flat)
	flat = slices.Compact(flat)
	flat = in.reduceUnion(flat)
	flat = in.reduceStructural(flat)

	switch len(flat) {
	case 0:
		return TypeNever
	case 1:
		return flat[0]
	}
	return in.internUnionList(flat)
}

func (in *Interner) flattenUnion(dst, members []TypeID) []TypeID {
	for _, m := range members {
		if u, ok := in.Key(m).(Union); ok {
			dst = in.StoredList(u.Members).AppendTo(dst)
			continue
		}
		dst = append(dst, m)
	}
	return dst
}

// reduceUnion removes members that another member already covers, without
// consulting the subtype relation:
//   - literals, template literals and unique symbols are absorbed by their
//     primitive;
//   - true | false collapses to boolean;
//   - enum members are absorbed by an enum of the same declaration present
//     in the union.
//
// The input is sorted and deduplicated. Each step is a single keep/retain
// pass, so the whole reduction stays linear after the sort.
func (in *Interner) reduceUnion(flat []TypeID) []TypeID {
	if len(flat) < 2 {
		return flat
	}

	var present [TypeFunction + 1]bool
	enumDefs := make(map[DefID]TypeID)
	for _, m := range flat {
		if m <= TypeFunction {
			present[m] = true
			continue
		}
		if e, ok := in.Key(m).(Enum); ok {
			if _, isUnion := in.Key(e.Members).(Union); isUnion {
				enumDefs[e.Def] = e.Members
			}
		}
	}

	addBoolean := false
	if present[TypeTrue] && present[TypeFalse] && !present[TypeBoolean] {
		addBoolean = true
		present[TypeBoolean] = true
	}

	flat = slices.DeleteFunc(flat, func(m TypeID) bool {
		switch m {
		case TypeTrue, TypeFalse:
			return present[TypeBoolean]
		}
		if m.IsBuiltin() {
			return false
		}
		switch k := in.Key(m).(type) {
		case Literal:
			switch k.Value.Kind {
			case LitString:
				return present[TypeString]
			case LitNumber:
				return present[TypeNumber]
			case LitBigInt:
				return present[TypeBigInt]
			}
		case TemplateLiteral, StringIntrinsic:
			return present[TypeString]
		case UniqueSymbol:
			return present[TypeSymbol]
		case Enum:
			members, ok := enumDefs[k.Def]
			if !ok || members == k.Members {
				return false
			}
			if u, isUnion := in.Key(members).(Union); isUnion {
				return in.StoredList(u.Members).Contains(k.Members)
			}
		}
		return false
	})

	if addBoolean {
		// TypeBoolean sorts before every literal handle that survived.
		i, _ := slices.BinarySearch(flat, TypeBoolean)
		flat = slices.Insert(flat, i, TypeBoolean)
	}
	return flat
}

// reduceStructural drops object and array members that are shallow
// subtypes of another member. Only those members take part, so a union of
// literals and primitives costs nothing here. Each candidate is compared
// with the survivors so far, which are pruned with a retain pass; of two
// members that cover each other the earlier one is kept.
func (in *Interner) reduceStructural(flat []TypeID) []TypeID {
	var cand []int
	for i, m := range flat {
		switch in.Key(m).(type) {
		case Object, ObjectWithIndex, Array, ReadonlyType:
			cand = append(cand, i)
		}
	}
	if len(cand) < 2 {
		return flat
	}

	survivors := make([]int, 0, len(cand))
	for _, i := range cand {
		if slices.ContainsFunc(survivors, func(j int) bool { return in.shallowSubtype(flat[i], flat[j]) }) {
			continue
		}
		survivors = slices.DeleteFunc(survivors, func(j int) bool { return in.shallowSubtype(flat[j], flat[i]) })
		survivors = append(survivors, i)
	}
	if len(survivors) == len(cand) {
		return flat
	}

	// Both index lists ascend, so one merge walk compacts flat in place.
	out := flat[:0]
	c, k := 0, 0
	for i, m := range flat {
		if c < len(cand) && cand[c] == i {
			c++
			if k == len(survivors) || survivors[k] != i {
				continue
			}
			k++
		}
		out = append(out, m)
	}
	return out
}

// shallowSubtype reports s <: t without consulting the relation. Nested
// components are compared by handle, so Lazy references and type
// parameters never match anything but themselves.
func (in *Interner) shallowSubtype(s, t TypeID) bool {
	if s == t {
		return true
	}
	switch tk := in.Key(t).(type) {
	case Array:
		if sk, ok := in.Key(s).(Array); ok {
			return in.shallowElement(sk.Elem, tk.Elem)
		}
	case ReadonlyType:
		switch sk := in.Key(s).(type) {
		case ReadonlyType:
			return in.shallowSubtype(sk.Inner, tk.Inner)
		case Array:
			return in.shallowSubtype(s, tk.Inner)
		}
	case Object, ObjectWithIndex:
		ss, ok := in.ObjectShapeOf(s)
		if !ok {
			return false
		}
		tshape, _ := in.ObjectShapeOf(t)
		return shallowShape(ss, tshape)
	}
	return false
}

// shallowElement relates array elements: identical handles, a literal and
// its primitive, or a shallow structural subtype.
func (in *Interner) shallowElement(s, t TypeID) bool {
	if s == t {
		return true
	}
	if in.IsLiteral(s) && !in.IsLiteral(t) && in.PrimitiveOf(s) == t {
		return true
	}
	return in.shallowSubtype(s, t)
}

// shallowShape is width subtyping over sorted properties with identical
// property handles. Index signatures on the target and shapes with no
// property in common never relate.
func shallowShape(s, t *ObjectShape) bool {
	if s == t {
		return true
	}
	if s.Symbol != t.Symbol || t.HasIndex() {
		return false
	}
	// A fresh member never absorbs a non-fresh one.
	if t.IsFresh() && !s.IsFresh() {
		return false
	}
	overlap := false
	si := 0
	for _, tp := range t.Properties {
		for si < len(s.Properties) && s.Properties[si].Name < tp.Name {
			si++
		}
		if si == len(s.Properties) || s.Properties[si].Name != tp.Name {
			if !tp.Optional {
				return false
			}
			continue
		}
		sp := s.Properties[si]
		overlap = true
		switch {
		case sp.Type != tp.Type:
			return false
		case sp.Optional && !tp.Optional:
			return false
		case sp.Readonly && !tp.Readonly:
			return false
		}
		si++
	}
	return overlap
}

// Intersection interns the intersection of members in canonical form.
func (in *Interner) Intersection(members []TypeID) TypeID {
	flat := make([]TypeID, 0, len(members))
	for _, m := range members {
		if x, ok := in.Key(m).(Intersection); ok {
			flat = in.StoredList(x.Members).AppendTo(flat)
			continue
		}
		flat = append(flat, m)
	}
	flat = slices.DeleteFunc(flat, func(id TypeID) bool { return id == TypeNone })
	slices.Sort(flat)
	flat = slices.Compact(flat)

	if slices.Contains(flat, TypeError) {
		return TypeError
	}
	if len(flat) == 0 {
		return TypeUnknown
	}
	if slices.Contains(flat, TypeNever) {
		return TypeNever
	}
	if slices.Contains(flat, TypeAny) {
		return TypeAny
	}
	flat = slices.DeleteFunc(flat, func(id TypeID) bool { return id == TypeUnknown })

	if in.hasDisjointPrimitives(flat) {
		return TypeNever
	}
	if in.hasDisjointObjectLiterals(flat) {
		return TypeNever
	}
	flat = in.dropWidenedPrimitives(flat)

	switch len(flat) {
	case 0:
		return TypeUnknown
	case 1:
		return flat[0]
	}

	if merged, ok := in.mergeObjects(flat); ok {
		return merged
	}
	return in.internIntersectionList(flat)
}

// PrimitiveClass groups primitive types that can share inhabitants.
type PrimitiveClass uint8

const (
	ClassNone PrimitiveClass = iota
	ClassString
	ClassNumber
	ClassBoolean
	ClassBigInt
	ClassSymbol
	ClassNull
	ClassUndefined
)

// PrimitiveClassOf returns the primitive class of id, or ClassNone for
// non-primitive types.
func (in *Interner) PrimitiveClassOf(id TypeID) PrimitiveClass {
	switch id {
	case TypeString:
		return ClassString
	case TypeNumber:
		return ClassNumber
	case TypeBoolean, TypeTrue, TypeFalse:
		return ClassBoolean
	case TypeBigInt:
		return ClassBigInt
	case TypeSymbol:
		return ClassSymbol
	case TypeNull:
		return ClassNull
	case TypeUndefined, TypeVoid:
		return ClassUndefined
	}
	switch k := in.Key(id).(type) {
	case Literal:
		switch k.Value.Kind {
		case LitString:
			return ClassString
		case LitNumber:
			return ClassNumber
		case LitBigInt:
			return ClassBigInt
		case LitBoolean:
			return ClassBoolean
		}
	case UniqueSymbol:
		return ClassSymbol
	case TemplateLiteral, StringIntrinsic:
		return ClassString
	case Enum:
		return in.PrimitiveClassOf(k.Members)
	}
	return ClassNone
}

// IsObjectLike reports whether id is a structural non-primitive type that
// can never share inhabitants with a primitive.
func (in *Interner) IsObjectLike(id TypeID) bool {
	switch in.Key(id).(type) {
	case Function, Callable, Array, Tuple, ReadonlyType:
		return true
	}
	return false
}

func (in *Interner) hasDisjointPrimitives(members []TypeID) bool {
	class := ClassNone
	var literal TypeID
	hasPrimitive, hasObject := false, false
	for _, m := range members {
		c := in.PrimitiveClassOf(m)
		if c == ClassNone {
			// Plain object shapes are allowed next to primitives: they form
			// branded primitives such as string & { __brand: "id" }.
			if in.IsObjectLike(m) {
				hasObject = true
			}
			continue
		}
		hasPrimitive = true
		if class != ClassNone && class != c {
			return true
		}
		class = c
		if _, ok := in.Key(m).(Literal); ok || m == TypeTrue || m == TypeFalse {
			if literal != TypeNone && literal != m {
				return true
			}
			literal = m
		}
	}
	return hasPrimitive && hasObject
}

// dropWidenedPrimitives removes a primitive whose literal is also present:
// "a" & string is "a".
func (in *Interner) dropWidenedPrimitives(members []TypeID) []TypeID {
	var literalClass [ClassUndefined + 1]bool
	for _, m := range members {
		switch in.Key(m).(type) {
		case Literal, TemplateLiteral, UniqueSymbol, Enum:
			literalClass[in.PrimitiveClassOf(m)] = true
		}
	}
	return slices.DeleteFunc(members, func(m TypeID) bool {
		switch m {
		case TypeString:
			return literalClass[ClassString]
		case TypeNumber:
			return literalClass[ClassNumber]
		case TypeBoolean:
			return literalClass[ClassBoolean]
		case TypeBigInt:
			return literalClass[ClassBigInt]
		case TypeSymbol:
			return literalClass[ClassSymbol]
		}
		return false
	})
}

// literalSet returns the literal values a property type is limited to, if it
// is a literal or a union of literals of one primitive class.
func (in *Interner) literalSet(id TypeID) (PrimitiveClass, []TypeID, bool) {
	switch k := in.Key(id).(type) {
	case Literal:
		return in.PrimitiveClassOf(id), []TypeID{id}, true
	case Union:
		members := in.TypeList(k.Members)
		class := ClassNone
		for _, m := range members {
			if _, ok := in.Key(m).(Literal); !ok {
				return ClassNone, nil, false
			}
			c := in.PrimitiveClassOf(m)
			if class != ClassNone && c != class {
				return ClassNone, nil, false
			}
			class = c
		}
		return class, members, true
	}
	return ClassNone, nil, false
}

func (in *Interner) objectProperties(id TypeID) ([]PropertyInfo, bool) {
	switch k := in.Key(id).(type) {
	case Object:
		return in.ObjectShape(k.Shape).Properties, true
	case ObjectWithIndex:
		return in.ObjectShape(k.Shape).Properties, true
	}
	return nil, false
}

// hasDisjointObjectLiterals detects `{ kind: "a" } & { kind: "b" }`: two
// object members whose required literal-typed property share no value.
func (in *Interner) hasDisjointObjectLiterals(members []TypeID) bool {
	var objects [][]PropertyInfo
	for _, m := range members {
		if props, ok := in.objectProperties(m); ok {
			objects = append(objects, props)
		}
	}
	for i := 0; i < len(objects); i++ {
		for j := i + 1; j < len(objects); j++ {
			if in.objectLiteralsDisjoint(objects[i], objects[j]) {
				return true
			}
		}
	}
	return false
}

func (in *Interner) objectLiteralsDisjoint(left, right []PropertyInfo) bool {
	if len(left) > len(right) {
		left, right = right, left
	}
	for _, prop := range left {
		if prop.Optional {
			continue
		}
		lc, lset, ok := in.literalSet(prop.Type)
		if !ok {
			continue
		}
		other, found := findProperty(right, prop.Name)
		if !found || other.Optional {
			continue
		}
		rc, rset, ok := in.literalSet(other.Type)
		if !ok {
			continue
		}
		if lc != rc {
			return true
		}
		shared := false
		for _, v := range lset {
			if slices.Contains(rset, v) {
				shared = true
				break
			}
		}
		if !shared {
			return true
		}
	}
	return false
}

// mergeObjects folds an intersection of plain object types into one object.
// Shared properties intersect their types; a property is optional only when
// every occurrence is optional and readonly when any occurrence is.
func (in *Interner) mergeObjects(members []TypeID) (TypeID, bool) {
	shapes := make([]*ObjectShape, 0, len(members))
	for _, m := range members {
		switch k := in.Key(m).(type) {
		case Object:
			shapes = append(shapes, in.ObjectShape(k.Shape))
		case ObjectWithIndex:
			shapes = append(shapes, in.ObjectShape(k.Shape))
		default:
			return TypeNone, false
		}
	}

	var merged ObjectShape
	byName := make(map[string]int)
	for _, s := range shapes {
		for _, p := range s.Properties {
			i, seen := byName[p.Name]
			if !seen {
				byName[p.Name] = len(merged.Properties)
				merged.Properties = append(merged.Properties, p)
				continue
			}
			existing := &merged.Properties[i]
			if existing.Type != p.Type {
				existing.Type = in.Intersection2(existing.Type, p.Type)
			}
			if existing.WriteType != p.WriteType {
				existing.WriteType = in.Intersection2(existing.WriteType, p.WriteType)
			}
			existing.Optional = existing.Optional && p.Optional
			existing.Readonly = existing.Readonly || p.Readonly
			existing.IsMethod = existing.IsMethod && p.IsMethod
		}
		merged.StringIndex = in.mergeIndex(merged.StringIndex, s.StringIndex)
		merged.NumberIndex = in.mergeIndex(merged.NumberIndex, s.NumberIndex)
	}
	return in.ObjectWithShape(merged), true
}

func (in *Interner) mergeIndex(existing, next *IndexSignature) *IndexSignature {
	switch {
	case next == nil:
		return existing
	case existing == nil:
		c := *next
		return &c
	}
	return &IndexSignature{
		Key:      existing.Key,
		Value:    in.Intersection2(existing.Value, next.Value),
		Readonly: existing.Readonly || next.Readonly,
	}
}
