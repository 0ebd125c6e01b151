package relation

import (
	"fmt"

	"github.com/funvibe/tsolve/internal/typesystem"
)

// FailureKind classifies why a relation check failed.
type FailureKind uint8

const (
	TypeMismatch FailureKind = iota
	ErrorType
	NoCommonProperties
	ExcessProperty
	MissingProperty
	OptionalMismatch
	ReadonlyMismatch
	ParamCount
	DepthExceeded
)

var failureNames = [...]string{
	TypeMismatch:       "type mismatch",
	ErrorType:          "error type",
	NoCommonProperties: "no common properties",
	ExcessProperty:     "excess property",
	MissingProperty:    "missing property",
	OptionalMismatch:   "optional mismatch",
	ReadonlyMismatch:   "readonly mismatch",
	ParamCount:         "parameter count",
	DepthExceeded:      "depth exceeded",
}

func (k FailureKind) String() string {
	if int(k) < len(failureNames) {
		return failureNames[k]
	}
	return fmt.Sprintf("failure(%d)", int(k))
}

// FailureReason describes the innermost failing comparison of a check.
// Property is set for the property kinds; Rule names the assignability rule
// that rejected the pair, if one did.
type FailureReason struct {
	Kind     FailureKind
	Source   typesystem.TypeID
	Target   typesystem.TypeID
	Property string
	Rule     string
}

func (r *FailureReason) String() string {
	if r.Property != "" {
		return fmt.Sprintf("%s %q", r.Kind, r.Property)
	}
	return r.Kind.String()
}

// Diagnostic converts the reason into the structured form the checker reports.
func (r *FailureReason) Diagnostic(source, target typesystem.TypeID) typesystem.Diagnostic {
	code := typesystem.DiagAssignabilityFailure
	switch r.Kind {
	case ExcessProperty:
		code = typesystem.DiagExcessProperty
	case NoCommonProperties:
		code = typesystem.DiagNoCommonProperties
	case DepthExceeded:
		code = typesystem.DiagDepthExceeded
	}
	return typesystem.Diagnostic{Code: code, Source: source, Target: target, Detail: r.String()}
}
