package inference

import (
	"github.com/funvibe/tsolve/internal/typesystem"
)

// InferFromConditional binds the infer placeholders of a conditional
// type's extends clause against the check type. Placeholders that match
// nothing take their constraint, or unknown. The second result is false
// when the shapes cannot line up or a binding violates its placeholder's
// constraint; the conditional then takes its false branch.
func InferFromConditional(in *typesystem.Interner, resolver typesystem.Resolver,
	accepts func(a, b typesystem.TypeID) bool, check, extends typesystem.TypeID) (typesystem.Bindings, bool) {
	bindings, ok := in.MatchInfer(check, extends, resolver)
	if !ok {
		return nil, false
	}
	if bindings == nil {
		bindings = make(typesystem.Bindings)
	}
	for _, p := range inferPlaceholders(in, extends) {
		info, _ := in.TypeParamOf(p)
		t, bound := bindings[p]
		if !bound {
			if info.Constraint != typesystem.TypeNone {
				bindings[p] = info.Constraint
			} else {
				bindings[p] = typesystem.TypeUnknown
			}
			continue
		}
		if info.Constraint != typesystem.TypeNone && accepts != nil && !accepts(t, info.Constraint) {
			return nil, false
		}
	}
	return bindings, true
}

func inferPlaceholders(in *typesystem.Interner, id typesystem.TypeID) []typesystem.TypeID {
	var out []typesystem.TypeID
	seen := make(map[typesystem.TypeID]bool)
	var walk func(typesystem.TypeID) bool
	walk = func(t typesystem.TypeID) bool {
		if t.IsBuiltin() || seen[t] {
			return true
		}
		seen[t] = true
		if _, ok := in.Key(t).(typesystem.Infer); ok {
			out = append(out, t)
		}
		in.ForEachChild(t, walk)
		return true
	}
	walk(id)
	return out
}
