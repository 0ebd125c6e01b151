package relation

import (
	"sync"

	"github.com/funvibe/tsolve/internal/typesystem"
)

// apparentTypes holds the members primitives, arrays and functions expose
// when they are compared against object types.
type apparentTypes struct {
	in          *typesystem.Interner
	propertyKey typesystem.TypeID

	once      sync.Once
	primitive map[typesystem.PrimitiveClass][]typesystem.PropertyInfo
	function  []typesystem.PropertyInfo
}

func newApparentTypes(in *typesystem.Interner) *apparentTypes {
	return &apparentTypes{
		in:          in,
		propertyKey: in.Union([]typesystem.TypeID{typesystem.TypeString, typesystem.TypeNumber, typesystem.TypeSymbol}),
	}
}

type param struct {
	name     string
	t        typesystem.TypeID
	optional bool
	rest     bool
}

func (a *apparentTypes) method(name string, ret typesystem.TypeID, params ...param) typesystem.PropertyInfo {
	sig := typesystem.FunctionShape{Return: ret, IsMethod: true}
	for _, p := range params {
		sig.Params = append(sig.Params, typesystem.ParamInfo{Name: p.name, Type: p.t, Optional: p.optional, Rest: p.rest})
	}
	t := a.in.Function(sig)
	return typesystem.PropertyInfo{Name: name, Type: t, WriteType: t, IsMethod: true}
}

func readonlyProp(name string, t typesystem.TypeID) typesystem.PropertyInfo {
	return typesystem.PropertyInfo{Name: name, Type: t, WriteType: t, Readonly: true}
}

func (a *apparentTypes) init() {
	a.once.Do(func() {
		var (
			str    = typesystem.TypeString
			num    = typesystem.TypeNumber
			boolT  = typesystem.TypeBoolean
			optNum = func(name string) param { return param{name: name, t: num, optional: true} }
		)
		a.primitive = map[typesystem.PrimitiveClass][]typesystem.PropertyInfo{
			typesystem.ClassString: {
				readonlyProp("length", num),
				a.method("charAt", str, param{name: "pos", t: num}),
				a.method("charCodeAt", num, param{name: "index", t: num}),
				a.method("endsWith", boolT, param{name: "searchString", t: str}, optNum("endPosition")),
				a.method("includes", boolT, param{name: "searchString", t: str}, optNum("position")),
				a.method("indexOf", num, param{name: "searchString", t: str}, optNum("position")),
				a.method("slice", str, optNum("start"), optNum("end")),
				a.method("startsWith", boolT, param{name: "searchString", t: str}, optNum("position")),
				a.method("toLowerCase", str),
				a.method("toString", str),
				a.method("toUpperCase", str),
				a.method("trim", str),
				a.method("valueOf", str),
			},
			typesystem.ClassNumber: {
				a.method("toFixed", str, optNum("fractionDigits")),
				a.method("toPrecision", str, optNum("precision")),
				a.method("toString", str, optNum("radix")),
				a.method("valueOf", num),
			},
			typesystem.ClassBoolean: {
				a.method("valueOf", boolT),
			},
			typesystem.ClassBigInt: {
				a.method("toString", str, optNum("radix")),
				a.method("valueOf", typesystem.TypeBigInt),
			},
			typesystem.ClassSymbol: {
				readonlyProp("description", a.in.Union2(str, typesystem.TypeUndefined)),
				a.method("toString", str),
				a.method("valueOf", typesystem.TypeSymbol),
			},
		}
		a.function = []typesystem.PropertyInfo{
			readonlyProp("length", num),
			readonlyProp("name", str),
		}
	})
}

func (a *apparentTypes) primitiveMembers(class typesystem.PrimitiveClass) ([]typesystem.PropertyInfo, bool) {
	a.init()
	props, ok := a.primitive[class]
	return props, ok
}

// primitiveIndex is the numeric index of strings: "abc"[0] is a string.
func (a *apparentTypes) primitiveIndex(class typesystem.PrimitiveClass) *typesystem.IndexSignature {
	if class != typesystem.ClassString {
		return nil
	}
	return &typesystem.IndexSignature{Key: typesystem.TypeNumber, Value: typesystem.TypeString, Readonly: true}
}

func (a *apparentTypes) functionMembers() []typesystem.PropertyInfo {
	a.init()
	return a.function
}

func (a *apparentTypes) index(elem typesystem.TypeID, readonly bool) *typesystem.IndexSignature {
	return &typesystem.IndexSignature{Key: typesystem.TypeNumber, Value: elem, Readonly: readonly}
}

// arrayMembers builds the members of an array with element type elem.
// Readonly arrays have no mutating methods.
func (a *apparentTypes) arrayMembers(elem, length typesystem.TypeID, readonly bool) []typesystem.PropertyInfo {
	in := a.in
	num := typesystem.TypeNumber
	opt := func(name string, t typesystem.TypeID) param { return param{name: name, t: t, optional: true} }
	lengthProp := typesystem.PropertyInfo{Name: "length", Type: length, WriteType: length, Readonly: readonly}

	props := []typesystem.PropertyInfo{
		lengthProp,
		a.method("at", in.Union2(elem, typesystem.TypeUndefined), param{name: "index", t: num}),
		a.method("includes", typesystem.TypeBoolean, param{name: "searchElement", t: elem}, opt("fromIndex", num)),
		a.method("indexOf", num, param{name: "searchElement", t: elem}, opt("fromIndex", num)),
		a.method("join", typesystem.TypeString, opt("separator", typesystem.TypeString)),
		a.method("slice", in.Array(elem), opt("start", num), opt("end", num)),
	}
	if !readonly {
		props = append(props,
			a.method("pop", in.Union2(elem, typesystem.TypeUndefined)),
			a.method("push", num, param{name: "items", t: in.Array(elem), rest: true}),
		)
	}
	return props
}
