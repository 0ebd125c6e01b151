package typesystem

import "fmt"

// DiagnosticCode classifies a condition the checker may want to report.
type DiagnosticCode int

const (
	DiagAssignabilityFailure DiagnosticCode = iota + 1
	DiagConstraintConflict
	DiagDepthExceeded
	DiagExcessiveRecursion
	DiagExcessProperty
	DiagNoCommonProperties
)

func (c DiagnosticCode) String() string {
	switch c {
	case DiagAssignabilityFailure:
		return "assignability-failure"
	case DiagConstraintConflict:
		return "constraint-conflict"
	case DiagDepthExceeded:
		return "depth-exceeded"
	case DiagExcessiveRecursion:
		return "excessive-recursion"
	case DiagExcessProperty:
		return "excess-property"
	case DiagNoCommonProperties:
		return "no-common-properties"
	}
	return fmt.Sprintf("diagnostic(%d)", int(c))
}

// Diagnostic is a structured, position-free report. The engine never formats
// user-facing messages; Detail is for logs and tests.
type Diagnostic struct {
	Code   DiagnosticCode
	Source TypeID
	Target TypeID
	Detail string
}

func (d Diagnostic) Error() string {
	if d.Detail != "" {
		return fmt.Sprintf("%s: %s", d.Code, d.Detail)
	}
	return d.Code.String()
}

// NewDiagnostic builds a Diagnostic with a formatted detail.
func NewDiagnostic(code DiagnosticCode, source, target TypeID, format string, args ...any) Diagnostic {
	return Diagnostic{Code: code, Source: source, Target: target, Detail: fmt.Sprintf(format, args...)}
}
