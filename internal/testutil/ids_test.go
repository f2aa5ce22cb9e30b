package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequentialIDs_Sequence(t *testing.T) {
	gen := NewSequentialIDs("")

	assert.Equal(t, "0001", gen.Generate())
	assert.Equal(t, "0002", gen.Generate())
	assert.Equal(t, "0003", gen.Generate())
}

func TestSequentialIDs_Prefix(t *testing.T) {
	gen := NewSequentialIDs("cat-")

	assert.Equal(t, "cat-0001", gen.Generate())
	assert.Equal(t, "cat-0002", gen.Generate())
}

func TestSequentialIDs_Reset(t *testing.T) {
	gen := NewSequentialIDs("")

	gen.Generate()
	gen.Generate()
	gen.Reset()

	assert.Equal(t, "0001", gen.Generate())
}

func TestSequentialIDs_ThreadSafe(t *testing.T) {
	gen := NewSequentialIDs("")
	const goroutines = 50
	const perGoroutine = 50

	var wg sync.WaitGroup
	wg.Add(goroutines)

	results := make([][]string, goroutines)
	for i := 0; i < goroutines; i++ {
		results[i] = make([]string, perGoroutine)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				results[idx][j] = gen.Generate()
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := 0; i < goroutines; i++ {
		for j := 0; j < perGoroutine; j++ {
			require.False(t, seen[results[i][j]], "duplicate id %s", results[i][j])
			seen[results[i][j]] = true
		}
	}
	assert.Len(t, seen, goroutines*perGoroutine)
}
