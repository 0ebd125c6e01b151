package typesystem

import "github.com/funvibe/tsolve/internal/config"

// TypeList is the stored form of a union or intersection member list.
// Lists of up to config.TypeListInline members live in the inline array and
// need no separate heap allocation; longer lists spill to a slice.
type TypeList struct {
	n      int
	inline [config.TypeListInline]TypeID
	spill  []TypeID
}

// NewTypeList copies ids into a TypeList.
func NewTypeList(ids []TypeID) TypeList {
	var l TypeList
	l.n = len(ids)
	if l.n <= config.TypeListInline {
		copy(l.inline[:], ids)
		return l
	}
	l.spill = append([]TypeID(nil), ids...)
	return l
}

// Len returns the number of members.
func (l TypeList) Len() int { return l.n }

// IsInline reports whether the members are stored without a heap slice.
func (l TypeList) IsInline() bool { return l.spill == nil }

// At returns the i-th member.
func (l TypeList) At(i int) TypeID {
	if l.spill != nil {
		return l.spill[i]
	}
	return l.inline[i]
}

// AppendTo appends the members to dst and returns the extended slice.
func (l TypeList) AppendTo(dst []TypeID) []TypeID {
	if l.spill != nil {
		return append(dst, l.spill...)
	}
	return append(dst, l.inline[:l.n]...)
}

// Slice returns the members as a fresh slice the caller may modify.
func (l TypeList) Slice() []TypeID {
	return l.AppendTo(make([]TypeID, 0, l.n))
}

// Contains reports whether id is a member. Members are sorted.
func (l TypeList) Contains(id TypeID) bool {
	lo, hi := 0, l.n
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		switch m := l.At(mid); {
		case m == id:
			return true
		case m < id:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return false
}
