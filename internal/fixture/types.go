package fixture

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/funvibe/tsolve/internal/typesystem"
)

var (
	// ErrUnknownName is returned for a reference to a type nothing declares.
	ErrUnknownName = errors.New("unknown type name")
	// ErrBadType is returned for a type description of the wrong shape.
	ErrBadType = errors.New("malformed type description")
)

func nodeError(n *yaml.Node, err error, format string, args ...any) error {
	return fmt.Errorf("line %d: %s: %w", n.Line, fmt.Sprintf(format, args...), err)
}

// Decoder builds interned types from yaml type descriptions.
//
// A description is either a scalar or a single-key mapping. Scalars name
// primitives, declared types, type parameters in scope and enum members
// (Color.Red); quoted scalars are string literals, numbers and booleans
// are literals, and a trailing [] makes an array. Mappings select a
// constructor by key: union, intersection, array, readonly, tuple, object,
// fresh, function, apply, keyof, index, template, conditional, infer,
// mapped, param, typeof, uppercase, lowercase, capitalize, uncapitalize.
type Decoder struct {
	in    *typesystem.Interner
	r     *typesystem.MapResolver
	names map[string]typesystem.TypeID
}

// NewDecoder creates a decoder that declares definitions in r.
func NewDecoder(in *typesystem.Interner, r *typesystem.MapResolver) *Decoder {
	return &Decoder{in: in, r: r, names: make(map[string]typesystem.TypeID)}
}

// Lookup returns the type a declared name stands for.
func (d *Decoder) Lookup(name string) (typesystem.TypeID, bool) {
	id, ok := d.names[name]
	return id, ok
}

// Names lists the declared names, enum members included, in sorted order.
func (d *Decoder) Names() []string {
	names := lo.Keys(d.names)
	slices.Sort(names)
	return names
}

// scope maps type parameter and infer names to their handles.
type scope map[string]typesystem.TypeID

func (s scope) with(name string, id typesystem.TypeID) scope {
	out := make(scope, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out[name] = id
	return out
}

// Declare decodes a mapping of declarations. All names are declared before
// any body is decoded, so declarations may refer to each other and to
// themselves.
//
// A declaration is a type description, `{params: [...], type: ...}` for a
// generic alias, or `{enum: {Member: value, ...}}`.
func (d *Decoder) Declare(data []byte) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing types: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nodeError(root, ErrBadType, "types must be a mapping")
	}
	defs := make([]typesystem.DefID, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		def := d.r.Declare(name)
		d.names[name] = d.in.Lazy(def)
		defs = append(defs, def)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if err := d.define(root.Content[i].Value, defs[i/2], root.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func (d *Decoder) define(name string, def typesystem.DefID, n *yaml.Node) error {
	if n.Kind == yaml.MappingNode {
		if members := field(n, "enum"); members != nil {
			return d.defineEnum(name, def, members)
		}
		if body := field(n, "type"); body != nil {
			sc := scope{}
			var params []typesystem.TypeParamInfo
			if ps := field(n, "params"); ps != nil {
				var err error
				if params, sc, err = d.typeParams(ps, sc); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
			}
			t, err := d.expr(body, sc)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			d.r.Define(def, t, params...)
			return nil
		}
	}
	t, err := d.expr(n, scope{})
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	d.r.Define(def, t)
	return nil
}

func (d *Decoder) defineEnum(name string, def typesystem.DefID, n *yaml.Node) error {
	if n.Kind != yaml.MappingNode || len(n.Content) == 0 {
		return nodeError(n, ErrBadType, "enum %s needs members", name)
	}
	numeric := true
	values := make([]typesystem.TypeID, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		v, err := d.expr(n.Content[i+1], scope{})
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		lit, ok := d.in.LiteralOf(v)
		if !ok {
			return nodeError(n.Content[i+1], ErrBadType, "enum member %s must be a literal", n.Content[i].Value)
		}
		numeric = numeric && lit.Kind == typesystem.LitNumber
		d.names[name+"."+n.Content[i].Value] = d.in.Enum(def, v)
		values = append(values, v)
	}
	whole := d.in.Enum(def, d.in.Union(values))
	d.names[name] = whole
	d.r.Define(def, whole)
	if numeric {
		d.r.MarkNumericEnum(def)
	}
	return nil
}

// field returns the value of key in a mapping node, or nil.
func field(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func boolField(n *yaml.Node, key string) bool {
	v := field(n, key)
	return v != nil && v.Value == "true"
}

// Type decodes a single description from yaml text.
func (d *Decoder) Type(src string) (typesystem.TypeID, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		return typesystem.TypeNone, fmt.Errorf("parsing type %q: %w", src, err)
	}
	if len(doc.Content) == 0 {
		return typesystem.TypeNone, fmt.Errorf("empty type: %w", ErrBadType)
	}
	return d.expr(doc.Content[0], scope{})
}

// Node decodes a single description from an already parsed node.
func (d *Decoder) Node(n *yaml.Node) (typesystem.TypeID, error) {
	return d.expr(n, scope{})
}

func (d *Decoder) typeParams(n *yaml.Node, sc scope) ([]typesystem.TypeParamInfo, scope, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, nil, nodeError(n, ErrBadType, "params must be a list")
	}
	out := make([]typesystem.TypeParamInfo, 0, len(n.Content))
	for _, p := range n.Content {
		info, err := d.paramInfo(p, sc)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, info)
		sc = sc.with(info.Name, d.in.TypeParam(info))
	}
	return out, sc, nil
}

// paramInfo decodes `T` or `{name: T, extends: ..., default: ..., const: true}`.
func (d *Decoder) paramInfo(n *yaml.Node, sc scope) (typesystem.TypeParamInfo, error) {
	if n.Kind == yaml.ScalarNode {
		return typesystem.TypeParamInfo{Name: n.Value}, nil
	}
	name := field(n, "name")
	if name == nil {
		return typesystem.TypeParamInfo{}, nodeError(n, ErrBadType, "type parameter needs a name")
	}
	info := typesystem.TypeParamInfo{Name: name.Value, IsConst: boolField(n, "const")}
	var err error
	if c := field(n, "extends"); c != nil {
		if info.Constraint, err = d.expr(c, sc); err != nil {
			return info, err
		}
	}
	if def := field(n, "default"); def != nil {
		if info.Default, err = d.expr(def, sc); err != nil {
			return info, err
		}
	}
	return info, nil
}

var primitives = map[string]typesystem.TypeID{
	"any":       typesystem.TypeAny,
	"unknown":   typesystem.TypeUnknown,
	"never":     typesystem.TypeNever,
	"void":      typesystem.TypeVoid,
	"undefined": typesystem.TypeUndefined,
	"null":      typesystem.TypeNull,
	"boolean":   typesystem.TypeBoolean,
	"number":    typesystem.TypeNumber,
	"string":    typesystem.TypeString,
	"bigint":    typesystem.TypeBigInt,
	"symbol":    typesystem.TypeSymbol,
	"object":    typesystem.TypeObject,
	"Function":  typesystem.TypeFunction,
	"error":     typesystem.TypeError,
}

func (d *Decoder) expr(n *yaml.Node, sc scope) (typesystem.TypeID, error) {
	if n == nil {
		return typesystem.TypeNone, fmt.Errorf("missing type: %w", ErrBadType)
	}
	switch n.Kind {
	case yaml.ScalarNode:
		return d.scalar(n, sc)
	case yaml.MappingNode:
		if len(n.Content) != 2 {
			return typesystem.TypeNone, nodeError(n, ErrBadType, "a type mapping has exactly one key")
		}
		return d.constructor(n.Content[0].Value, n.Content[1], sc)
	case yaml.AliasNode:
		return d.expr(n.Alias, sc)
	}
	return typesystem.TypeNone, nodeError(n, ErrBadType, "unexpected list; use union or tuple")
}

func (d *Decoder) scalar(n *yaml.Node, sc scope) (typesystem.TypeID, error) {
	in := d.in
	switch n.Tag {
	case "!!int", "!!float":
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return typesystem.TypeNone, nodeError(n, ErrBadType, "number %q", n.Value)
		}
		return in.LiteralNumber(f), nil
	case "!!bool":
		return in.LiteralBool(n.Value == "true"), nil
	case "!!null":
		return typesystem.TypeNull, nil
	}
	if n.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) != 0 {
		return in.LiteralString(n.Value), nil
	}
	s := strings.TrimSpace(n.Value)
	if base, ok := strings.CutSuffix(s, "[]"); ok {
		elem, err := d.scalar(&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: base, Line: n.Line}, sc)
		if err != nil {
			return typesystem.TypeNone, err
		}
		return in.Array(elem), nil
	}
	if digits, ok := strings.CutSuffix(s, "n"); ok && digits != "" && strings.Trim(digits, "0123456789") == "" {
		return in.LiteralBigInt(digits), nil
	}
	if id, ok := sc[s]; ok {
		return id, nil
	}
	if id, ok := primitives[s]; ok {
		return id, nil
	}
	if s == "this" {
		return in.This(), nil
	}
	if id, ok := d.names[s]; ok {
		return id, nil
	}
	return typesystem.TypeNone, nodeError(n, ErrUnknownName, "%q", s)
}

func (d *Decoder) list(n *yaml.Node, sc scope) ([]typesystem.TypeID, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, nodeError(n, ErrBadType, "expected a list")
	}
	out := make([]typesystem.TypeID, 0, len(n.Content))
	for _, c := range n.Content {
		t, err := d.expr(c, sc)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (d *Decoder) constructor(kind string, v *yaml.Node, sc scope) (typesystem.TypeID, error) {
	in := d.in
	none := typesystem.TypeNone
	switch kind {
	case "union", "intersection":
		ts, err := d.list(v, sc)
		if err != nil {
			return none, err
		}
		if kind == "union" {
			return in.Union(ts), nil
		}
		return in.Intersection(ts), nil
	case "array", "readonly", "keyof":
		t, err := d.expr(v, sc)
		if err != nil {
			return none, err
		}
		switch kind {
		case "array":
			return in.Array(t), nil
		case "readonly":
			return in.Readonly(t), nil
		}
		return in.KeyOf(t), nil
	case "uppercase", "lowercase", "capitalize", "uncapitalize":
		t, err := d.expr(v, sc)
		if err != nil {
			return none, err
		}
		kinds := map[string]typesystem.StringIntrinsicKind{
			"uppercase": typesystem.Uppercase, "lowercase": typesystem.Lowercase,
			"capitalize": typesystem.Capitalize, "uncapitalize": typesystem.Uncapitalize,
		}
		return in.StringIntrinsic(kinds[kind], t), nil
	case "tuple":
		return d.tuple(v, sc)
	case "object", "fresh":
		return d.object(v, sc, kind == "fresh")
	case "function", "method", "new":
		f, err := d.function(v, sc)
		if err != nil {
			return none, err
		}
		f.IsMethod = kind == "method"
		f.IsConstructor = kind == "new"
		return in.Function(*f), nil
	case "apply":
		base, err := d.expr(field(v, "base"), sc)
		if err != nil {
			return none, err
		}
		var args []typesystem.TypeID
		if a := field(v, "args"); a != nil {
			if args, err = d.list(a, sc); err != nil {
				return none, err
			}
		}
		return in.Application(base, args), nil
	case "index":
		ts, err := d.list(v, sc)
		if err != nil {
			return none, err
		}
		if len(ts) != 2 {
			return none, nodeError(v, ErrBadType, "index takes [object, key]")
		}
		return in.IndexAccess(ts[0], ts[1]), nil
	case "template":
		if v.Kind != yaml.SequenceNode {
			return none, nodeError(v, ErrBadType, "template takes a list of spans")
		}
		spans := make([]typesystem.TemplateSpan, 0, len(v.Content))
		for _, c := range v.Content {
			t, err := d.expr(c, sc)
			if err != nil {
				return none, err
			}
			spans = append(spans, typesystem.TemplateSpan{Type: t})
		}
		return in.TemplateLiteral(spans), nil
	case "conditional":
		return d.conditional(v, sc)
	case "infer":
		if id, ok := sc[inferName(v)]; ok {
			if _, isInfer := in.Key(id).(typesystem.Infer); isInfer {
				return id, nil
			}
		}
		info, err := d.paramInfo(v, sc)
		if err != nil {
			return none, err
		}
		return in.Infer(info), nil
	case "param":
		info, err := d.paramInfo(v, sc)
		if err != nil {
			return none, err
		}
		return in.TypeParam(info), nil
	case "mapped":
		return d.mapped(v, sc)
	case "typeof":
		def, ok := d.r.Lookup(v.Value)
		if !ok {
			return none, nodeError(v, ErrUnknownName, "%q", v.Value)
		}
		return in.TypeQuery(def), nil
	}
	return none, nodeError(v, ErrBadType, "unknown constructor %q", kind)
}

func (d *Decoder) tuple(v *yaml.Node, sc scope) (typesystem.TypeID, error) {
	if v.Kind != yaml.SequenceNode {
		return typesystem.TypeNone, nodeError(v, ErrBadType, "tuple takes a list")
	}
	elems := make([]typesystem.TupleElement, 0, len(v.Content))
	for _, c := range v.Content {
		var e typesystem.TupleElement
		src := c
		if r := field(c, "rest"); r != nil {
			e.Rest, src = true, r
		} else if o := field(c, "optional"); o != nil {
			e.Optional, src = true, o
		}
		t, err := d.expr(src, sc)
		if err != nil {
			return typesystem.TypeNone, err
		}
		e.Type = t
		elems = append(elems, e)
	}
	return d.in.Tuple(elems), nil
}

// object decodes a property mapping. Keys may carry a `readonly ` prefix or
// a `?` suffix; `[string]` and `[number]` declare index signatures.
func (d *Decoder) object(v *yaml.Node, sc scope, fresh bool) (typesystem.TypeID, error) {
	if v.Kind != yaml.MappingNode {
		if v.Kind == yaml.ScalarNode && v.Value == "" {
			return d.in.Object(nil), nil
		}
		return typesystem.TypeNone, nodeError(v, ErrBadType, "object takes a mapping")
	}
	var shape typesystem.ObjectShape
	if fresh {
		shape.Flags |= typesystem.FlagFreshLiteral
	}
	for i := 0; i+1 < len(v.Content); i += 2 {
		key := v.Content[i].Value
		t, err := d.expr(v.Content[i+1], sc)
		if err != nil {
			return typesystem.TypeNone, err
		}
		readonly := false
		if rest, ok := strings.CutPrefix(key, "readonly "); ok {
			readonly, key = true, rest
		}
		switch key {
		case "[string]":
			shape.StringIndex = &typesystem.IndexSignature{Key: typesystem.TypeString, Value: t, Readonly: readonly}
			continue
		case "[number]":
			shape.NumberIndex = &typesystem.IndexSignature{Key: typesystem.TypeNumber, Value: t, Readonly: readonly}
			continue
		}
		prop := typesystem.PropertyInfo{Name: key, Type: t, Readonly: readonly}
		if name, ok := strings.CutSuffix(key, "?"); ok {
			prop.Name, prop.Optional = name, true
		}
		shape.Properties = append(shape.Properties, prop)
	}
	return d.in.ObjectWithShape(shape), nil
}

// function decodes `{type_params: [...], params: [...], return: T,
// predicate: T, asserts: true, this: T}`. A parameter is a type or
// `{name: x, type: T, optional: true, rest: true}`.
func (d *Decoder) function(v *yaml.Node, sc scope) (*typesystem.FunctionShape, error) {
	f := &typesystem.FunctionShape{Return: typesystem.TypeVoid, This: typesystem.TypeNone}
	if v.Kind != yaml.MappingNode {
		return nil, nodeError(v, ErrBadType, "function takes a mapping")
	}
	var err error
	if tps := field(v, "type_params"); tps != nil {
		if f.TypeParams, sc, err = d.typeParams(tps, sc); err != nil {
			return nil, err
		}
	}
	if ps := field(v, "params"); ps != nil {
		if ps.Kind != yaml.SequenceNode {
			return nil, nodeError(ps, ErrBadType, "params must be a list")
		}
		for i, p := range ps.Content {
			param := typesystem.ParamInfo{Name: "arg" + strconv.Itoa(i)}
			src := p
			if t := field(p, "type"); t != nil {
				src = t
				if name := field(p, "name"); name != nil {
					param.Name = name.Value
				}
				param.Optional = boolField(p, "optional")
				param.Rest = boolField(p, "rest")
			}
			if param.Type, err = d.expr(src, sc); err != nil {
				return nil, err
			}
			f.Params = append(f.Params, param)
		}
	}
	if r := field(v, "return"); r != nil {
		if f.Return, err = d.expr(r, sc); err != nil {
			return nil, err
		}
	}
	if th := field(v, "this"); th != nil {
		if f.This, err = d.expr(th, sc); err != nil {
			return nil, err
		}
	}
	if pr := field(v, "predicate"); pr != nil {
		t, err := d.expr(pr, sc)
		if err != nil {
			return nil, err
		}
		name := ""
		if len(f.Params) > 0 {
			name = f.Params[0].Name
		}
		f.Predicate = &typesystem.TypePredicate{ParamName: name, Type: t, Asserts: boolField(v, "asserts")}
		if !f.Predicate.Asserts {
			f.Return = typesystem.TypeBoolean
		}
	}
	return f, nil
}

// conditional decodes `{check, extends, then, else}`. Infer placeholders
// declared in extends are in scope in then. The type distributes when
// check is a naked type parameter unless `distributive: false` is given.
func (d *Decoder) conditional(v *yaml.Node, sc scope) (typesystem.TypeID, error) {
	none := typesystem.TypeNone
	check, err := d.expr(field(v, "check"), sc)
	if err != nil {
		return none, err
	}
	extNode := field(v, "extends")
	if extNode == nil {
		return none, nodeError(v, ErrBadType, "conditional needs extends")
	}
	inner := sc
	for _, info := range d.collectInfers(extNode, sc) {
		inner = inner.with(info.Name, d.in.Infer(info))
	}
	extends, err := d.expr(extNode, inner)
	if err != nil {
		return none, err
	}
	then, err := d.expr(field(v, "then"), inner)
	if err != nil {
		return none, err
	}
	otherwise, err := d.expr(field(v, "else"), sc)
	if err != nil {
		return none, err
	}
	_, naked := d.in.Key(check).(typesystem.TypeParam)
	distributive := naked
	if dn := field(v, "distributive"); dn != nil {
		distributive = dn.Value == "true"
	}
	return d.in.Conditional(typesystem.ConditionalType{
		Check: check, Extends: extends, True: then, False: otherwise, Distributive: distributive,
	}), nil
}

// collectInfers finds the placeholders an extends clause declares.
func (d *Decoder) collectInfers(n *yaml.Node, sc scope) []typesystem.TypeParamInfo {
	var out []typesystem.TypeParamInfo
	var walk func(*yaml.Node)
	walk = func(n *yaml.Node) {
		if n == nil {
			return
		}
		if n.Kind == yaml.MappingNode && len(n.Content) == 2 && n.Content[0].Value == "infer" {
			if info, err := d.paramInfo(n.Content[1], sc); err == nil {
				out = append(out, info)
			}
			return
		}
		for _, c := range n.Content {
			walk(c)
		}
	}
	walk(n)
	return out
}

func inferName(n *yaml.Node) string {
	if n.Kind == yaml.ScalarNode {
		return n.Value
	}
	if name := field(n, "name"); name != nil {
		return name.Value
	}
	return ""
}

func modifier(n *yaml.Node) typesystem.MappedModifier {
	if n == nil {
		return typesystem.ModifierNone
	}
	switch n.Value {
	case "+", "true":
		return typesystem.ModifierAdd
	case "-", "false":
		return typesystem.ModifierRemove
	}
	return typesystem.ModifierNone
}

// mapped decodes `{param: K, in: C, as: N, template: T, optional: +|-,
// readonly: +|-}`.
func (d *Decoder) mapped(v *yaml.Node, sc scope) (typesystem.TypeID, error) {
	none := typesystem.TypeNone
	p := field(v, "param")
	if p == nil {
		return none, nodeError(v, ErrBadType, "mapped needs a param")
	}
	info := typesystem.TypeParamInfo{Name: p.Value}
	constraint, err := d.expr(field(v, "in"), sc)
	if err != nil {
		return none, err
	}
	inner := sc.with(info.Name, d.in.TypeParam(info))
	m := typesystem.MappedType{
		Param:      info,
		Constraint: constraint,
		NameType:   none,
		Readonly:   modifier(field(v, "readonly")),
		Optional:   modifier(field(v, "optional")),
	}
	if as := field(v, "as"); as != nil {
		if m.NameType, err = d.expr(as, inner); err != nil {
			return none, err
		}
	}
	if m.Template, err = d.expr(field(v, "template"), inner); err != nil {
		return none, err
	}
	return d.in.Mapped(m), nil
}
