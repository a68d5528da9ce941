// ABOUTME: In-memory KV store with an optional capacity bound
// ABOUTME: Used in tests and as a stand-in for capacity-limited local storage
package store

import "sync"

// Mem is an in-memory KV store. A non-zero capacity bounds the total number
// of stored bytes, mimicking a capacity-limited local storage primitive.
type Mem struct {
	mu       sync.Mutex
	data     map[string][]byte
	capacity int
}

// NewMem returns an unbounded in-memory store.
func NewMem() *Mem {
	return &Mem{data: make(map[string][]byte)}
}

// NewMemWithCapacity returns a store bounded to capacity total bytes.
func NewMemWithCapacity(capacity int) *Mem {
	return &Mem{data: make(map[string][]byte), capacity: capacity}
}

// Get returns the stored value and whether the key was present.
func (m *Mem) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.data[key]
	if !ok {
		return nil, false
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	return cp, true
}

// Set stores a value, returning ErrCapacity when the byte bound would be
// exceeded.
func (m *Mem) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.capacity > 0 {
		total := len(value)
		for k, v := range m.data {
			if k == key {
				continue
			}
			total += len(v)
		}
		if total > m.capacity {
			return ErrCapacity
		}
	}

	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[key] = cp
	return nil
}

// Delete removes a key.
func (m *Mem) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}
