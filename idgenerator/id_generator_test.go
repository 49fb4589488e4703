package idgenerator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIdGenerator(t *testing.T) {
	t.Run("zero start reserves zero", func(t *testing.T) {
		gen := NewIdGenerator(0)
		require.NotNil(t, gen)
		assert.Equal(t, uint64(0), gen.Last())
		assert.Equal(t, uint64(1), gen.Id())
	})

	t.Run("custom start", func(t *testing.T) {
		gen := NewIdGenerator(100)
		assert.Equal(t, uint64(101), gen.Id())
		assert.Equal(t, uint64(102), gen.Id())
		assert.Equal(t, uint64(102), gen.Last())
	})
}

func TestIdGenerator_Concurrent(t *testing.T) {
	gen := NewIdGenerator(0)
	const n = 500

	ids := make([]uint64, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(idx int) {
			defer wg.Done()
			ids[idx] = gen.Id()
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool, n)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		assert.GreaterOrEqual(t, id, uint64(1))
		assert.LessOrEqual(t, id, uint64(n))
		seen[id] = true
	}
	assert.Equal(t, uint64(n), gen.Last())
}
