package relation

import (
	"sync"

	"github.com/funvibe/tsolve/internal/typesystem"
)

// Ternary is the outcome of a subtype check.
type Ternary uint8

const (
	False Ternary = iota
	True
	// Provisional is true under the assumption that a pair already being
	// checked further up the stack holds.
	Provisional
)

func (t Ternary) String() string {
	switch t {
	case True:
		return "true"
	case Provisional:
		return "provisional"
	}
	return "false"
}

// Holds reports whether t is True or Provisional.
func (t Ternary) Holds() bool { return t != False }

type pair struct {
	source typesystem.TypeID
	target typesystem.TypeID
}

// PairCache memoizes relation results by (source, target). Entries are
// never removed. Each relation owns its own cache.
type PairCache struct {
	mu sync.RWMutex
	m  map[pair]bool
}

// NewPairCache creates an empty cache.
func NewPairCache() *PairCache {
	return &PairCache{m: make(map[pair]bool)}
}

// Get returns the cached result for (source, target).
func (c *PairCache) Get(source, target typesystem.TypeID) (bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[pair{source, target}]
	return v, ok
}

// Put records a result. An existing entry is kept.
func (c *PairCache) Put(source, target typesystem.TypeID, v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := pair{source, target}
	if _, ok := c.m[key]; !ok {
		c.m[key] = v
	}
}

// Len returns the number of cached pairs.
func (c *PairCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
