package taskcache

import (
	"container/list"
	"sync"
	"time"
)

// memoCache is a small time-bounded LRU used to avoid re-checking the
// frontend's checksum on every judge request for the same (task, path).
// Grounded on the teacher's DataPackCache touch/evict bookkeeping, scaled
// down to the tiny footprint spec.md calls for (64 entries x 20s).
type memoCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	order    *list.List
	elems    map[string]*list.Element
}

type memoEntry struct {
	key       string
	value     bool
	expiresAt time.Time
}

func newMemoCache(capacity int, ttl time.Duration) *memoCache {
	return &memoCache{
		ttl:      ttl,
		capacity: capacity,
		order:    list.New(),
		elems:    make(map[string]*list.Element),
	}
}

func (m *memoCache) Get(key string) (bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.elems[key]
	if !ok {
		return false, false
	}
	entry := el.Value.(*memoEntry)
	if time.Now().After(entry.expiresAt) {
		m.order.Remove(el)
		delete(m.elems, key)
		return false, false
	}
	m.order.MoveToFront(el)
	return entry.value, true
}

func (m *memoCache) Set(key string, value bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.elems[key]; ok {
		el.Value.(*memoEntry).value = value
		el.Value.(*memoEntry).expiresAt = time.Now().Add(m.ttl)
		m.order.MoveToFront(el)
		return
	}

	entry := &memoEntry{key: key, value: value, expiresAt: time.Now().Add(m.ttl)}
	el := m.order.PushFront(entry)
	m.elems[key] = el

	for m.order.Len() > m.capacity {
		oldest := m.order.Back()
		if oldest == nil {
			break
		}
		m.order.Remove(oldest)
		delete(m.elems, oldest.Value.(*memoEntry).key)
	}
}
