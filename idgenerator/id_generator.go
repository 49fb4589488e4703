// Package idgenerator hands out monotonically increasing identifiers, such as
// the ids the server assigns to accepted connections.
package idgenerator

import "sync/atomic"

// IdGenerator generates increasing uint64 ids and is safe for concurrent use.
// The first Id returns the start value plus one, so a generator started at
// zero never hands out zero.
type IdGenerator struct {
	id atomic.Uint64
}

// NewIdGenerator creates an IdGenerator whose first id is startValue+1.
//
// Parameters:
//   - startValue: The value to initialize the counter to
//
// Returns:
//   - A new IdGenerator instance
func NewIdGenerator(startValue uint64) *IdGenerator {
	gen := &IdGenerator{}
	gen.id.Store(startValue)
	return gen
}

// Id returns the next id.
//
// Returns:
//   - The next uint64 id
func (g *IdGenerator) Id() uint64 {
	return g.id.Add(1)
}

// Last returns the most recently issued id, or the start value if none has
// been issued.
func (g *IdGenerator) Last() uint64 {
	return g.id.Load()
}
