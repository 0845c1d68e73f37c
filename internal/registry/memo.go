// Package registry holds the process-wide producer and consumer handles.
package registry

import (
	"sort"
	"sync"
)

// Memo creates a value at most once per key. Ready values are read without
// locking. Creation for one key holds only that key's slot lock, so a slow
// creation never blocks other keys. A failed creation is not remembered.
type Memo[V any] struct {
	ready sync.Map // string -> V

	mu    sync.Mutex
	slots map[string]*sync.Mutex
}

func NewMemo[V any]() *Memo[V] {
	return &Memo[V]{slots: make(map[string]*sync.Mutex)}
}

// Get returns the value for key, calling create if there is none yet.
// Concurrent callers for the same key wait for the first one and share its value.
func (m *Memo[V]) Get(key string, create func() (V, error)) (V, error) {
	if v, ok := m.ready.Load(key); ok {
		return v.(V), nil
	}

	slot := m.slot(key)
	slot.Lock()
	defer slot.Unlock()

	if v, ok := m.ready.Load(key); ok {
		return v.(V), nil
	}
	v, err := create()
	if err != nil {
		var zero V
		return zero, err
	}
	m.ready.Store(key, v)
	return v, nil
}

// Peek returns the value for key without creating it.
func (m *Memo[V]) Peek(key string) (V, bool) {
	if v, ok := m.ready.Load(key); ok {
		return v.(V), true
	}
	var zero V
	return zero, false
}

// Keys lists the keys holding a value, sorted.
func (m *Memo[V]) Keys() []string {
	var keys []string
	m.ready.Range(func(k, _ any) bool {
		keys = append(keys, k.(string))
		return true
	})
	sort.Strings(keys)
	return keys
}

// Drain removes and returns every value.
func (m *Memo[V]) Drain() []V {
	var out []V
	m.ready.Range(func(k, v any) bool {
		m.ready.Delete(k)
		out = append(out, v.(V))
		return true
	})
	return out
}

func (m *Memo[V]) slot(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key]
	if !ok {
		s = &sync.Mutex{}
		m.slots[key] = s
	}
	return s
}
