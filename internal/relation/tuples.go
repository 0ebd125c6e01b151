package relation

import "github.com/funvibe/tsolve/internal/typesystem"

// arrayLike relates a to the mutable array or tuple b. Readonly wrappers
// have already been stripped by the caller.
func (c *checker) arrayLike(a, b typesystem.TypeID) bool {
	in := c.in
	switch tb := in.Key(b).(type) {
	case typesystem.Array:
		switch sa := in.Key(a).(type) {
		case typesystem.Array:
			return c.check(sa.Elem, tb.Elem)
		case typesystem.Tuple:
			for _, e := range in.TupleElements(sa.Elems) {
				if !c.check(c.elementType(e), tb.Elem) {
					return false
				}
			}
			return true
		}
	case typesystem.Tuple:
		target := in.TupleElements(tb.Elems)
		switch sa := in.Key(a).(type) {
		case typesystem.Array:
			// An array only fits a tuple whose fixed elements are all optional.
			for _, e := range target {
				if !e.Optional && !e.Rest {
					return c.fail(TypeMismatch, a, b, "")
				}
				if !c.check(sa.Elem, c.elementType(e)) {
					return false
				}
			}
			return true
		case typesystem.Tuple:
			return c.tuples(a, b, in.TupleElements(sa.Elems), target)
		}
	}
	return c.fail(TypeMismatch, a, b, "")
}

// elementType is the type a single position of e holds: the element type of
// a rest slot, or the slot type itself.
func (c *checker) elementType(e typesystem.TupleElement) typesystem.TypeID {
	if !e.Rest {
		return e.Type
	}
	switch k := c.in.Key(e.Type).(type) {
	case typesystem.Array:
		return k.Elem
	case typesystem.ReadonlyType:
		return c.elementType(typesystem.TupleElement{Type: k.Inner, Rest: true})
	case typesystem.Tuple:
		elems := c.in.TupleElements(k.Elems)
		types := make([]typesystem.TypeID, 0, len(elems))
		for _, inner := range elems {
			types = append(types, c.elementType(inner))
		}
		return c.in.Union(types)
	}
	return e.Type
}

func restIndex(elems []typesystem.TupleElement) int {
	for i, e := range elems {
		if e.Rest {
			return i
		}
	}
	return -1
}

func requiredCount(elems []typesystem.TupleElement) int {
	n := 0
	for _, e := range elems {
		if !e.Optional && !e.Rest {
			n++
		}
	}
	return n
}

func (c *checker) tuples(a, b typesystem.TypeID, src, tgt []typesystem.TupleElement) bool {
	if requiredCount(src) < requiredCount(tgt) {
		return c.fail(ParamCount, a, b, "")
	}
	tRest := restIndex(tgt)
	if tRest < 0 {
		if restIndex(src) >= 0 || len(src) > len(tgt) {
			return c.fail(ParamCount, a, b, "")
		}
		for i, se := range src {
			te := tgt[i]
			if se.Optional && !te.Optional {
				return c.fail(OptionalMismatch, a, b, "")
			}
			if !c.check(se.Type, te.Type) {
				return false
			}
		}
		return true
	}

	restElem := c.elementType(tgt[tRest])
	for i, se := range src {
		if se.Rest {
			// Target slots the source rest could fill must be optional.
			for j := i; j < tRest; j++ {
				if !tgt[j].Optional {
					return c.fail(OptionalMismatch, a, b, "")
				}
				if !c.check(c.elementType(se), tgt[j].Type) {
					return false
				}
			}
			if !c.check(c.elementType(se), restElem) {
				return false
			}
			continue
		}
		if i < tRest {
			te := tgt[i]
			if se.Optional && !te.Optional {
				return c.fail(OptionalMismatch, a, b, "")
			}
			if !c.check(se.Type, te.Type) {
				return false
			}
			continue
		}
		if !c.check(se.Type, restElem) {
			return false
		}
	}
	return true
}
