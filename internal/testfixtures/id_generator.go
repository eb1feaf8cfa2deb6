package testfixtures

import (
	"fmt"
	"sync"
)

// IDGenerator produces deterministic identifiers for tests, either as
// "<prefix>-<n>" or, when created with NewUUIDGenerator, as UUID-shaped strings.
type IDGenerator struct {
	mu      sync.Mutex
	prefix  string
	uuid    bool
	counter uint64
}

// NewIDGenerator constructs a generator with the given prefix ("id" when empty).
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

// NewUUIDGenerator constructs a generator whose identifiers parse as UUIDs.
func NewUUIDGenerator() *IDGenerator {
	return &IDGenerator{uuid: true}
}

// Next returns the next identifier in the sequence.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	if g.uuid {
		return fmt.Sprintf("00000000-0000-4000-a000-%012d", g.counter)
	}
	return fmt.Sprintf("%s-%d", g.prefix, g.counter)
}

// NextFunc exposes Next for injection.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}

// SetCounter overrides the internal counter so sequences can restart.
func (g *IDGenerator) SetCounter(counter uint64) {
	g.mu.Lock()
	g.counter = counter
	g.mu.Unlock()
}
