package provider

import (
	"fmt"
	"sync"
)

// KeyRing owns the ordered pool of backend API keys and spreads call volume
// across them: every threshold recorded calls the current index advances by
// one modulo the pool size and the counter resets. It is a best-effort load
// balancer, not a quota tracker — it never inspects per-call cost or
// backend-reported limits.
//
// All methods are safe for concurrent use; Acquire performs the
// read-index-and-record-call pair as one critical section so concurrent
// callers can neither double-advance nor observe a stale index.
type KeyRing struct {
	mu        sync.Mutex
	keys      []string
	index     int
	calls     int
	threshold int
}

func NewKeyRing(keys []string, threshold int) (*KeyRing, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("key ring requires at least one key")
	}
	if threshold < 1 {
		threshold = 60
	}
	pool := make([]string, len(keys))
	copy(pool, keys)
	return &KeyRing{keys: pool, threshold: threshold}, nil
}

// Acquire returns the key that should serve the next request along with its
// pool index, and records the call against the budget.
func (r *KeyRing) Acquire() (string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, index := r.keys[r.index], r.index
	r.record()
	return key, index
}

// Peek returns the key and index that would serve the next request without
// recording a call.
func (r *KeyRing) Peek() (string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keys[r.index], r.index
}

// CurrentIndex reports the index that would serve the next request.
func (r *KeyRing) CurrentIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index
}

// RecordCall increments the call counter, advancing the ring when the
// budget threshold is reached.
func (r *KeyRing) RecordCall() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record()
}

// Advance moves to the next key immediately and resets the counter. Not
// called by the dispatch path today; exported so a reactive rotation policy
// (e.g. on quota errors) can be layered on without touching call sites.
func (r *KeyRing) Advance() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advance()
}

func (r *KeyRing) Size() int {
	return len(r.keys)
}

// record must be called with r.mu held.
func (r *KeyRing) record() {
	r.calls++
	if r.calls >= r.threshold {
		r.advance()
	}
}

// advance must be called with r.mu held.
func (r *KeyRing) advance() {
	r.index = (r.index + 1) % len(r.keys)
	r.calls = 0
}
