package narrowing

import (
	"sort"

	"github.com/samber/lo"

	"github.com/funvibe/tsolve/internal/typesystem"
)

// NarrowToType keeps the parts of t that are assignable to target. When
// no member is, a target narrower than t replaces it; unrelated types meet
// in an intersection.
func (n *Narrower) NarrowToType(t, target typesystem.TypeID) typesystem.TypeID {
	in := n.in
	if t == typesystem.TypeNever || target == typesystem.TypeNever {
		return typesystem.TypeNever
	}
	t = n.resolve(t)
	switch t {
	case typesystem.TypeAny, typesystem.TypeUnknown:
		return target
	}
	members := n.members(t)
	if len(members) > 1 {
		kept := lo.Filter(members, func(m typesystem.TypeID, _ int) bool { return n.rel.IsSubtypeOf(m, target) })
		if len(kept) > 0 {
			return in.Union(kept)
		}
		narrower := lo.Filter(members, func(m typesystem.TypeID, _ int) bool { return n.rel.IsSubtypeOf(target, m) })
		if len(narrower) > 0 {
			return target
		}
		return typesystem.TypeNever
	}
	switch {
	case n.rel.IsSubtypeOf(t, target):
		return t
	case n.rel.IsSubtypeOf(target, t):
		return target
	}
	return in.Intersection2(t, target)
}

// NarrowExcludingType removes the parts of t that are assignable to
// excluded.
func (n *Narrower) NarrowExcludingType(t, excluded typesystem.TypeID) typesystem.TypeID {
	if t == typesystem.TypeNever {
		return t
	}
	t = n.resolve(t)
	switch t {
	case typesystem.TypeAny, typesystem.TypeUnknown:
		return t
	}
	kept := lo.Filter(n.members(t), func(m typesystem.TypeID, _ int) bool {
		return !n.rel.IsSubtypeOf(m, excluded)
	})
	return n.in.Union(kept)
}

// Discriminant is a property whose unit-typed values tell the members of
// a union apart.
type Discriminant struct {
	Property string
	// Values holds the property type of each member, in member order.
	Values []typesystem.TypeID
}

// FindDiscriminants reports the properties of union whose types are unit
// types (or unions of unit types) distinct across every member.
func (n *Narrower) FindDiscriminants(union typesystem.TypeID) []Discriminant {
	in := n.in
	members := n.members(n.resolve(union))
	if len(members) < 2 {
		return nil
	}
	names := n.commonPropertyNames(members)
	var out []Discriminant
	for _, name := range names {
		values := make([]typesystem.TypeID, 0, len(members))
		seen := make(map[typesystem.TypeID]bool)
		ok := true
		for _, m := range members {
			p, found, _ := n.property(m, name)
			if !found || !lo.EveryBy(in.UnionMembers(p.Type), in.IsUnitType) {
				ok = false
				break
			}
			for _, v := range in.UnionMembers(p.Type) {
				if seen[v] {
					ok = false
				}
				seen[v] = true
			}
			values = append(values, p.Type)
		}
		if ok {
			out = append(out, Discriminant{Property: name, Values: values})
		}
	}
	return out
}

func (n *Narrower) commonPropertyNames(members []typesystem.TypeID) []string {
	var common []string
	for i, m := range members {
		props, ok := n.in.PropertiesOf(m)
		if !ok {
			return nil
		}
		names := lo.Map(props, func(p typesystem.PropertyInfo, _ int) string { return p.Name })
		if i == 0 {
			common = names
			continue
		}
		common = lo.Intersect(common, names)
	}
	sort.Strings(common)
	return common
}
