package scopecache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultCleanupInterval is how often the memory store purges expired items.
const DefaultCleanupInterval = 10 * time.Minute

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	items *gocache.Cache
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithCleanup(DefaultCleanupInterval)
}

// NewMemoryStoreWithCleanup creates a store purging expired items every
// interval. A non-positive interval disables the janitor.
func NewMemoryStoreWithCleanup(interval time.Duration) *MemoryStore {
	return &MemoryStore{items: gocache.New(gocache.NoExpiration, interval)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	v, ok := s.items.Get(key)
	if !ok {
		return Entry{}, false, nil
	}
	entry, ok := v.(Entry)
	if !ok {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, entry Entry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	s.items.Set(key, entry, ttl)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.items.Delete(key)
	return nil
}

// Len returns the number of stored items, expired ones included until the
// next cleanup.
func (s *MemoryStore) Len() int {
	return s.items.ItemCount()
}
