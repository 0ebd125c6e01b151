package fixture

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/funvibe/tsolve/internal/inference"
	"github.com/funvibe/tsolve/internal/narrowing"
	"github.com/funvibe/tsolve/internal/typesystem"
	"github.com/funvibe/tsolve/pkg/solver"
)

// ErrUnknownQuery is returned for a query whose operation is not known.
var ErrUnknownQuery = errors.New("unknown query")

// Query is one decoded question against a session. Its types are interned
// when it is decoded; running it only reads the session.
type Query struct {
	Name string
	Op   string
	run  func(s *solver.Session) string
}

// Run answers the query on s.
func (q Query) Run(s *solver.Session) string { return q.run(s) }

var priorities = map[string]inference.Priority{
	"predicate": inference.PriorityTypePredicate,
	"naked":     inference.PriorityNakedTypeVariable,
	"mapped":    inference.PriorityMappedType,
	"return":    inference.PriorityReturnType,
	"low":       inference.PriorityLowPriority,
}

// DecodeQueries decodes a yaml list of queries. Each entry has one
// operation key and an optional name:
//
//	- name: circle-is-shape
//	  assignable: [Circle, Shape]
func (d *Decoder) DecodeQueries(data []byte) ([]Query, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing queries: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.SequenceNode {
		return nil, nodeError(root, ErrBadType, "queries must be a list")
	}
	out := make([]Query, 0, len(root.Content))
	for i, n := range root.Content {
		q, err := d.query(n)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", i+1, err)
		}
		if q.Name == "" {
			q.Name = fmt.Sprintf("%s#%d", q.Op, i+1)
		}
		out = append(out, q)
	}
	return out, nil
}

func (d *Decoder) query(n *yaml.Node) (Query, error) {
	if n.Kind != yaml.MappingNode {
		return Query{}, nodeError(n, ErrBadType, "a query is a mapping")
	}
	var q Query
	var arg *yaml.Node
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, v := n.Content[i].Value, n.Content[i+1]
		if key == "name" {
			q.Name = v.Value
			continue
		}
		if arg != nil {
			return q, nodeError(n.Content[i], ErrBadType, "a query has one operation, got %s and %s", q.Op, key)
		}
		q.Op, arg = key, v
	}
	if arg == nil {
		return q, nodeError(n, ErrBadType, "query has no operation")
	}
	var err error
	q.run, err = d.compile(q.Op, arg)
	return q, err
}

func (d *Decoder) pair(n *yaml.Node) (typesystem.TypeID, typesystem.TypeID, error) {
	ts, err := d.list(n, scope{})
	if err != nil {
		return typesystem.TypeNone, typesystem.TypeNone, err
	}
	if len(ts) != 2 {
		return typesystem.TypeNone, typesystem.TypeNone, nodeError(n, ErrBadType, "expected [source, target]")
	}
	return ts[0], ts[1], nil
}

func (d *Decoder) compile(op string, n *yaml.Node) (func(*solver.Session) string, error) {
	switch op {
	case "subtype", "assignable", "check", "explain", "narrow_to", "exclude":
		a, b, err := d.pair(n)
		if err != nil {
			return nil, err
		}
		return func(s *solver.Session) string {
			switch op {
			case "subtype":
				return fmt.Sprint(s.IsSubtypeOf(a, b))
			case "assignable":
				return fmt.Sprint(s.IsAssignableTo(a, b))
			case "check":
				return s.CheckSubtype(a, b).String()
			case "explain":
				if r := s.ExplainFailure(a, b); r != nil {
					return r.String()
				}
				return "ok"
			case "narrow_to":
				return s.Format(s.NarrowToType(a, b))
			}
			return s.Format(s.NarrowExcludingType(a, b))
		}, nil

	case "evaluate", "format", "discriminants":
		t, err := d.expr(n, scope{})
		if err != nil {
			return nil, err
		}
		return func(s *solver.Session) string {
			switch op {
			case "evaluate":
				return s.Format(s.Evaluate(t))
			case "format":
				return s.Format(t)
			}
			ds := s.FindDiscriminants(t)
			if len(ds) == 0 {
				return "none"
			}
			return strings.Join(lo.Map(ds, func(d narrowing.Discriminant, _ int) string { return d.Property }), ", ")
		}, nil

	case "bct", "reduce":
		ts, err := d.list(n, scope{})
		if err != nil {
			return nil, err
		}
		return func(s *solver.Session) string {
			if op == "bct" {
				return s.Format(s.BestCommonType(ts))
			}
			return s.Format(s.SubtypeReduce(ts))
		}, nil

	case "narrow":
		return d.compileNarrow(n)
	case "instantiate":
		return d.compileInstantiate(n)
	case "infer":
		return d.compileInfer(n)
	}
	return nil, nodeError(n, ErrUnknownQuery, "%q", op)
}

// compileNarrow decodes `{type: T, guard: kind, arg: ..., value: V, branch: false}`.
func (d *Decoder) compileNarrow(n *yaml.Node) (func(*solver.Session) string, error) {
	t, err := d.expr(field(n, "type"), scope{})
	if err != nil {
		return nil, err
	}
	kind := field(n, "guard")
	if kind == nil {
		return nil, nodeError(n, ErrBadType, "narrow needs a guard")
	}
	value := typesystem.TypeNone
	if v := field(n, "value"); v != nil {
		if value, err = d.expr(v, scope{}); err != nil {
			return nil, err
		}
	}
	arg := ""
	if a := field(n, "arg"); a != nil {
		arg = a.Value
	}
	g, err := narrowing.ParseGuard(kind.Value, arg, value)
	if err != nil {
		return nil, nodeError(kind, ErrBadType, "%v", err)
	}
	branch := true
	if b := field(n, "branch"); b != nil {
		branch = b.Value == "true"
	}
	return func(s *solver.Session) string { return s.Format(s.Narrow(t, g, branch)) }, nil
}

// compileInstantiate decodes `{type: T, with: {Name: type, ...}}`. The
// instantiated type is evaluated.
func (d *Decoder) compileInstantiate(n *yaml.Node) (func(*solver.Session) string, error) {
	subst := make(typesystem.Substitution)
	with := field(n, "with")
	if with == nil || with.Kind != yaml.MappingNode {
		return nil, nodeError(n, ErrBadType, "instantiate needs a with mapping")
	}
	sc := scope{}
	for i := 0; i+1 < len(with.Content); i += 2 {
		name := with.Content[i].Value
		t, err := d.expr(with.Content[i+1], scope{})
		if err != nil {
			return nil, err
		}
		subst[name] = t
		sc = sc.with(name, d.in.TypeParam(typesystem.TypeParamInfo{Name: name}))
	}
	t, err := d.expr(field(n, "type"), sc)
	if err != nil {
		return nil, err
	}
	return func(s *solver.Session) string { return s.Format(s.Evaluate(s.Instantiate(t, subst))) }, nil
}

// compileInfer decodes `{params: [...], sites: [{source, target, priority}]}`
// and prints the substitution in parameter order. Conflicts are appended
// in brackets after the parameter's fallback type.
func (d *Decoder) compileInfer(n *yaml.Node) (func(*solver.Session) string, error) {
	ps := field(n, "params")
	if ps == nil {
		return nil, nodeError(n, ErrBadType, "infer needs params")
	}
	params, sc, err := d.typeParams(ps, scope{})
	if err != nil {
		return nil, err
	}
	sitesNode := field(n, "sites")
	if sitesNode == nil || sitesNode.Kind != yaml.SequenceNode {
		return nil, nodeError(n, ErrBadType, "infer needs a list of sites")
	}
	sites := make([]solver.UsageSite, 0, len(sitesNode.Content))
	for _, sn := range sitesNode.Content {
		var site solver.UsageSite
		if site.Source, err = d.expr(field(sn, "source"), sc); err != nil {
			return nil, err
		}
		if site.Target, err = d.expr(field(sn, "target"), sc); err != nil {
			return nil, err
		}
		if p := field(sn, "priority"); p != nil {
			pr, ok := priorities[p.Value]
			if !ok {
				return nil, nodeError(p, ErrBadType, "unknown priority %q", p.Value)
			}
			site.Priority = pr
		}
		sites = append(sites, site)
	}
	return func(s *solver.Session) string {
		subst, errs := s.Infer(params, sites)
		conflicts := make(map[string]inference.ConflictKind)
		for _, err := range errs {
			var c *inference.ConstraintConflict
			if errors.As(err, &c) {
				conflicts[c.Param] = c.Kind
			}
		}
		parts := lo.Map(params, func(p typesystem.TypeParamInfo, _ int) string {
			out := p.Name + " = " + s.Format(subst[p.Name])
			if k, ok := conflicts[p.Name]; ok {
				out += " [" + k.String() + "]"
			}
			return out
		})
		return strings.Join(parts, ", ")
	}, nil
}
