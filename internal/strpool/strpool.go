// Package strpool implements the process-local string interning table.
//
// The pool is the only piece of global mutable state in the engine
// (spec §5 "Shared-resource policy"): it is grow-only, append-only, and
// inserts are serialized under a lock. Everything else — AST arenas,
// reflection indexes, IR modules, compiled functions — lives under an
// explicit per-invocation context and never touches the pool's lock.
package strpool

import (
	"sync"

	"golang.org/x/crypto/blake2b"
)

// StringId identifies an interned byte sequence. Equal ids imply
// byte-equal contents; the converse also holds (Pool.Intern dedupes).
type StringId uint32

// Pool is a grow-only mapping from byte slice to StringId.
type Pool struct {
	mu      sync.Mutex
	strings []string
	index   map[uint64][]StringId
}

// New creates an empty pool.
func New() *Pool {
	return &Pool{
		strings: make([]string, 0, 256),
		index:   make(map[uint64][]StringId),
	}
}

// Intern returns the StringId for s, inserting it if this is the first
// occurrence. Concurrent-safe.
func (p *Pool) Intern(s string) StringId {
	h := bucketHash(s)

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range p.index[h] {
		if p.strings[id] == s {
			return id
		}
	}

	id := StringId(len(p.strings))
	p.strings = append(p.strings, s)
	p.index[h] = append(p.index[h], id)
	return id
}

// Lookup returns the interned string for id. Panics on an id this pool
// never produced, since that indicates a cross-pool NodeId/StringId leak.
func (p *Pool) Lookup(id StringId) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.strings[id]
}

// Len reports how many distinct strings have been interned so far.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.strings)
}

// bucketHash hashes a string for the pool's collision-resistant bucket
// index. blake2b is used (rather than a hand-rolled FNV variant) so that
// adversarial identifier input cannot be crafted to force every intern
// into one bucket's linear scan.
func bucketHash(s string) uint64 {
	sum := blake2b.Sum512([]byte(s))
	var h uint64
	for i := 0; i < 8; i++ {
		h = h<<8 | uint64(sum[i])
	}
	return h
}
