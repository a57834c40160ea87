package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in a map. It is meant for single-instance
// deployments and tests; entries are dropped lazily when read after expiry.
type MemoryStore struct {
	mutex sync.RWMutex
	db    map[string]Entry
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock uses now instead of the wall clock to decide expiry.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		db:  make(map[string]Entry),
		now: now,
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mutex.RLock()
	entry, ok := m.db[key]
	m.mutex.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if entry.Expired(m.now()) {
		m.purgeIfExpired(key)
		return nil, false, nil
	}
	return entry.Value, true, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.db[key] = Entry{
		Key:      key,
		Value:    append([]byte(nil), value...),
		TTL:      ttl,
		StoredAt: m.now(),
	}
	return nil
}

// Purge removes the entry for key.
func (m *MemoryStore) Purge(key string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db, key)
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryStore) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.db)
}

func (m *MemoryStore) Close() error {
	return nil
}

// purgeIfExpired re-checks under the write lock so a concurrent Set is kept.
func (m *MemoryStore) purgeIfExpired(key string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if entry, ok := m.db[key]; ok && entry.Expired(m.now()) {
		delete(m.db, key)
	}
}
