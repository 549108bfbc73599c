/*
counter.go - Per-key counters and locks

PURPOSE:
  Domain components own per-entity state (assignment counters, progress
  records). When entities are processed in parallel, updates for different
  keys must not contend, while updates for the same key must be serialized.

  KeyedCounter: integer counter per key with an atomic threshold check-and-reset
  KeyedMutex:   lock a single key for the length of a multi-step operation

THRESHOLD CROSSING:
  TakeThreshold(key, n) checks "count >= n" and resets to zero in the same
  critical section, so two callers can never both observe the same crossing.

SEE ALSO:
  - payroll/bonus.go: Assignment counter built on KeyedCounter
  - payroll/orchestrator.go: Per-contractor pipelines serialized by KeyedMutex
*/
package generic

import (
	"sync"
)

// =============================================================================
// KEYED COUNTER
// =============================================================================

type counterEntry struct {
	mu sync.Mutex
	n  int
}

// KeyedCounter holds one non-negative counter per key.
// The zero value is not usable; create with NewKeyedCounter.
type KeyedCounter[K comparable] struct {
	mu      sync.RWMutex
	entries map[K]*counterEntry
}

func NewKeyedCounter[K comparable]() *KeyedCounter[K] {
	return &KeyedCounter[K]{entries: make(map[K]*counterEntry)}
}

// entry returns the entry for key, creating it if needed.
// The map lock is held only long enough to find the entry.
func (c *KeyedCounter[K]) entry(key K) *counterEntry {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok = c.entries[key]; ok {
		return e
	}
	e = &counterEntry{}
	c.entries[key] = e
	return e
}

// Add increments the counter for key by delta and returns the new value.
// Negative deltas are ignored.
func (c *KeyedCounter[K]) Add(key K, delta int) int {
	e := c.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	if delta > 0 {
		e.n += delta
	}
	return e.n
}

// Get returns the current value for key (0 when unseen).
func (c *KeyedCounter[K]) Get(key K) int {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.n
}

// Set overwrites the counter for key. Used to restore persisted state.
func (c *KeyedCounter[K]) Set(key K, n int) {
	if n < 0 {
		n = 0
	}
	e := c.entry(key)
	e.mu.Lock()
	e.n = n
	e.mu.Unlock()
}

// TakeThreshold resets the counter to zero and returns true if it has
// reached threshold. Otherwise it leaves the counter untouched.
func (c *KeyedCounter[K]) TakeThreshold(key K, threshold int) bool {
	e := c.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.n >= threshold {
		e.n = 0
		return true
	}
	return false
}

// =============================================================================
// KEYED MUTEX
// =============================================================================

// KeyedMutex hands out one mutex per key.
type KeyedMutex[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*sync.Mutex
}

func NewKeyedMutex[K comparable]() *KeyedMutex[K] {
	return &KeyedMutex[K]{locks: make(map[K]*sync.Mutex)}
}

// Lock locks key and returns the matching unlock function.
func (m *KeyedMutex[K]) Lock(key K) (unlock func()) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}
