package cache

import (
	"container/list"
	"sync"
	"time"
)

// Memory is an in-process TTL cache with an LRU entry bound. Values are
// replaced atomically on write so concurrent readers never observe an entry
// mid-update.
type Memory[V any] struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	entries    map[string]*list.Element
	order      *list.List
}

type memoryEntry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// MemoryOption customises cache construction.
type MemoryOption[V any] func(*Memory[V])

// WithClock overrides the time source, letting tests control expiry.
func WithClock[V any](now func() time.Time) MemoryOption[V] {
	return func(m *Memory[V]) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory constructs a cache holding at most maxEntries values for ttl each.
// maxEntries <= 0 disables the LRU bound.
func NewMemory[V any](ttl time.Duration, maxEntries int, opts ...MemoryOption[V]) *Memory[V] {
	m := &Memory[V]{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the cached value for key when present and not expired.
func (m *Memory[V]) Get(key string) (V, bool) {
	var zero V
	if m == nil {
		return zero, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.entries[key]
	if !ok {
		return zero, false
	}
	entry := el.Value.(*memoryEntry[V])
	if m.ttl > 0 && !m.now().Before(entry.expiresAt) {
		m.order.Remove(el)
		delete(m.entries, key)
		return zero, false
	}
	m.order.MoveToFront(el)
	return entry.value, true
}

// Set stores value under key, refreshing its TTL and evicting the least
// recently used entry when the bound is exceeded.
func (m *Memory[V]) Set(key string, value V) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	expires := m.now().Add(m.ttl)
	if el, ok := m.entries[key]; ok {
		entry := el.Value.(*memoryEntry[V])
		entry.value = value
		entry.expiresAt = expires
		m.order.MoveToFront(el)
		return
	}
	el := m.order.PushFront(&memoryEntry[V]{key: key, value: value, expiresAt: expires})
	m.entries[key] = el
	if m.maxEntries > 0 && m.order.Len() > m.maxEntries {
		oldest := m.order.Back()
		if oldest != nil {
			m.order.Remove(oldest)
			delete(m.entries, oldest.Value.(*memoryEntry[V]).key)
		}
	}
}

// Len reports the number of live entries, counting expired ones not yet swept.
func (m *Memory[V]) Len() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}
