package typesystem

import (
	"encoding/binary"
	"math"
	"strings"
)

// encoder builds the canonical byte key an auxiliary value is deduplicated
// by. Two values produce the same key exactly when they are structurally
// equal.
type encoder struct {
	b strings.Builder
}

func (e *encoder) u32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	e.b.Write(buf[:])
}

func (e *encoder) id(v TypeID) { e.u32(uint32(v)) }

func (e *encoder) flag(v bool) {
	if v {
		e.b.WriteByte(1)
	} else {
		e.b.WriteByte(0)
	}
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.b.WriteString(s)
}

func (e *encoder) f64(f float64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
	e.b.Write(buf[:])
}

func (e *encoder) String() string { return e.b.String() }

func (e *encoder) ids(ids []TypeID) {
	e.u32(uint32(len(ids)))
	for _, id := range ids {
		e.id(id)
	}
}

func (e *encoder) param(p TypeParamInfo) {
	e.str(p.Name)
	e.id(p.Constraint)
	e.id(p.Default)
	e.flag(p.IsConst)
}

func (e *encoder) props(props []PropertyInfo) {
	e.u32(uint32(len(props)))
	for _, p := range props {
		e.str(p.Name)
		e.id(p.Type)
		e.id(p.WriteType)
		e.flag(p.Optional)
		e.flag(p.Readonly)
		e.flag(p.IsMethod)
	}
}

func (e *encoder) index(sig *IndexSignature) {
	if sig == nil {
		e.flag(false)
		return
	}
	e.flag(true)
	e.id(sig.Key)
	e.id(sig.Value)
	e.flag(sig.Readonly)
}

func (e *encoder) function(f *FunctionShape) {
	e.u32(uint32(len(f.TypeParams)))
	for _, tp := range f.TypeParams {
		e.param(tp)
	}
	e.u32(uint32(len(f.Params)))
	for _, p := range f.Params {
		e.str(p.Name)
		e.id(p.Type)
		e.flag(p.Optional)
		e.flag(p.Rest)
	}
	e.id(f.This)
	e.id(f.Return)
	if f.Predicate != nil {
		e.flag(true)
		e.flag(f.Predicate.Asserts)
		e.str(f.Predicate.ParamName)
		e.id(f.Predicate.Type)
	} else {
		e.flag(false)
	}
	e.flag(f.IsConstructor)
	e.flag(f.IsMethod)
}

func encodeList(ids []TypeID) string {
	var e encoder
	e.ids(ids)
	return e.String()
}

func encodeShape(s *ObjectShape) string {
	var e encoder
	e.u32(uint32(s.Flags))
	e.u32(uint32(s.Symbol))
	e.props(s.Properties)
	e.index(s.StringIndex)
	e.index(s.NumberIndex)
	return e.String()
}

func encodeFunction(f *FunctionShape) string {
	var e encoder
	e.function(f)
	return e.String()
}

func encodeCallable(c *CallableShape) string {
	var e encoder
	e.u32(uint32(len(c.CallSignatures)))
	for i := range c.CallSignatures {
		e.function(&c.CallSignatures[i])
	}
	e.u32(uint32(len(c.ConstructSignatures)))
	for i := range c.ConstructSignatures {
		e.function(&c.ConstructSignatures[i])
	}
	e.props(c.Properties)
	e.index(c.StringIndex)
	e.index(c.NumberIndex)
	e.u32(uint32(c.Symbol))
	return e.String()
}

func encodeTuple(elems []TupleElement) string {
	var e encoder
	e.u32(uint32(len(elems)))
	for _, el := range elems {
		e.id(el.Type)
		e.str(el.Name)
		e.flag(el.Optional)
		e.flag(el.Rest)
	}
	return e.String()
}

func encodeTemplate(spans []TemplateSpan) string {
	var e encoder
	e.u32(uint32(len(spans)))
	for _, s := range spans {
		e.str(s.Text)
		e.id(s.Type)
	}
	return e.String()
}

func encodeConditional(c *ConditionalType) string {
	var e encoder
	e.id(c.Check)
	e.id(c.Extends)
	e.id(c.True)
	e.id(c.False)
	e.flag(c.Distributive)
	return e.String()
}

func encodeMapped(m *MappedType) string {
	var e encoder
	e.param(m.Param)
	e.id(m.Constraint)
	e.id(m.NameType)
	e.id(m.Template)
	e.u32(uint32(m.Readonly))
	e.u32(uint32(m.Optional))
	return e.String()
}

func encodeApplication(a *TypeApplication) string {
	var e encoder
	e.id(a.Base)
	e.ids(a.Args)
	return e.String()
}
