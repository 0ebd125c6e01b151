package config

// ConfigFileName is the name FindConfig looks for.
const ConfigFileName = "tsolve.yaml"

// IsTestMode indicates if the program is running in test mode.
// This is set once at startup (or in TestMain) and makes printed types
// independent of interning order.
var IsTestMode = false

// Engine limits
const (
	// MaxSubtypeDepth bounds recursive descent in the subtype relation.
	MaxSubtypeDepth = 100
	// MaxEvalDepth bounds evaluation and instantiation of derived types.
	MaxEvalDepth = 50
	// TemplateExpansionLimit caps the cross product of a template literal.
	// Larger products fall back to string.
	TemplateExpansionLimit = 10000
	// TypeListInline is the number of members kept inline in a TypeList.
	TypeListInline = 8
	// MaxConstraintIterations bounds the inference strengthening loop.
	MaxConstraintIterations = 100
	// FirstUserTypeID is the first handle issued for a non-builtin type.
	FirstUserTypeID = 100
)
