package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates predictable temp-id suffixes for tests.
//
// Unlike engine.UUIDGenerator, the sequence is deterministic: the first
// call returns "0001", then "0002", and so on. The same test scenario
// therefore produces byte-identical queue dumps and golden traces.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewSequentialIDs creates a generator. The prefix is prepended to every
// suffix; pass "" for bare counters.
//
// Implements engine.TempIDGenerator.
func NewSequentialIDs(prefix string) *SequentialIDs {
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next suffix in the sequence.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s%04d", g.prefix, g.seq)
}

// Reset restarts the sequence. After Reset, the next Generate returns
// "0001" again, allowing scenario reuse within one test.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
