package typesystem

import "sync"

// Resolver gives the engine access to declarations it does not own.
// Implementations must be safe for concurrent use.
type Resolver interface {
	// ResolveLazy returns the body of a named alias, interface or class.
	// Generic definitions return their body in terms of their own type
	// parameters.
	ResolveLazy(def DefID) (TypeID, bool)

	// TypeParams returns the declared type parameters of a generic definition.
	TypeParams(def DefID) []TypeParamInfo

	// IsNumericEnum reports whether def is an enum with numeric members.
	IsNumericEnum(def DefID) bool
}

// DefNamer is implemented by resolvers that can name definitions for
// printing.
type DefNamer interface {
	DefName(def DefID) string
}

// NoopResolver resolves nothing.
type NoopResolver struct{}

func (NoopResolver) ResolveLazy(DefID) (TypeID, bool)  { return TypeNone, false }
func (NoopResolver) TypeParams(DefID) []TypeParamInfo { return nil }
func (NoopResolver) IsNumericEnum(DefID) bool         { return false }

// MapResolver is a Resolver backed by in-memory tables. Definitions may be
// added while other goroutines resolve.
type MapResolver struct {
	mu           sync.RWMutex
	next         DefID
	bodies       map[DefID]TypeID
	params       map[DefID][]TypeParamInfo
	names        map[DefID]string
	byName       map[string]DefID
	numericEnums map[DefID]bool
}

// NewMapResolver creates an empty MapResolver.
func NewMapResolver() *MapResolver {
	return &MapResolver{
		next:         1,
		bodies:       make(map[DefID]TypeID),
		params:       make(map[DefID][]TypeParamInfo),
		names:        make(map[DefID]string),
		byName:       make(map[string]DefID),
		numericEnums: make(map[DefID]bool),
	}
}

// Declare reserves a DefID for name without giving it a body yet, so that
// recursive definitions can refer to themselves through Lazy.
// Declaring an existing name returns its DefID.
func (r *MapResolver) Declare(name string) DefID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if def, ok := r.byName[name]; ok {
		return def
	}
	def := r.next
	r.next++
	r.names[def] = name
	r.byName[name] = def
	return def
}

// Define sets the body and type parameters of def.
func (r *MapResolver) Define(def DefID, body TypeID, params ...TypeParamInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodies[def] = body
	if len(params) > 0 {
		r.params[def] = append([]TypeParamInfo(nil), params...)
	}
}

// MarkNumericEnum records def as a numeric enum.
func (r *MapResolver) MarkNumericEnum(def DefID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.numericEnums[def] = true
}

// Lookup finds a declared name.
func (r *MapResolver) Lookup(name string) (DefID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byName[name]
	return def, ok
}

func (r *MapResolver) ResolveLazy(def DefID) (TypeID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	body, ok := r.bodies[def]
	return body, ok
}

func (r *MapResolver) TypeParams(def DefID) []TypeParamInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.params[def]
}

func (r *MapResolver) IsNumericEnum(def DefID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.numericEnums[def]
}

func (r *MapResolver) DefName(def DefID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names[def]
}
