package ai

import "sync/atomic"

// KeyPool rotates through a fixed set of interchangeable provider credentials.
// The cursor is shared across concurrent evaluations; the atomic increment
// keeps rotations from being skipped or duplicated under contention.
type KeyPool struct {
	keys   []string
	cursor atomic.Uint64
}

// NewKeyPool creates a pool over the given credentials.
func NewKeyPool(keys []string) *KeyPool {
	return &KeyPool{keys: keys}
}

// Next returns the next credential in round-robin order.
func (p *KeyPool) Next() string {
	if len(p.keys) == 0 {
		return ""
	}
	n := p.cursor.Add(1) - 1
	return p.keys[n%uint64(len(p.keys))]
}

// Size returns the number of credentials in the pool.
func (p *KeyPool) Size() int {
	return len(p.keys)
}
