package cache

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
)

// MemoryStore in-process LRU store. Survives engine Clear/recreation within the
// same process, e.g. across dashboard sessions sharing one store.
type MemoryStore struct {
	name  string
	items *lru.Cache[string, memoryItem]
	clock clockwork.Clock
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore size <= 0 defaults to 10000 entries.
func NewMemoryStore(name string, size int, clock clockwork.Clock) (*MemoryStore, error) {
	if size <= 0 {
		size = 10000
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	items, err := lru.New[string, memoryItem](size)
	if err != nil {
		return nil, ErrConfigInvalid.Wrap(err)
	}
	return &MemoryStore{name: name, items: items, clock: clock}, nil
}

func (s *MemoryStore) Name() string {
	return s.name
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	item, ok := s.items.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	if !item.expiresAt.IsZero() && !s.clock.Now().Before(item.expiresAt) {
		s.items.Remove(key)
		return nil, ErrCacheMiss
	}
	return item.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	item := memoryItem{value: value}
	if ttl > 0 {
		item.expiresAt = s.clock.Now().Add(ttl)
	}
	s.items.Add(key, item)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.items.Remove(key)
	return nil
}

func (s *MemoryStore) DeleteMatching(_ context.Context, substr string) (int, error) {
	if substr == "" {
		n := s.items.Len()
		s.items.Purge()
		return n, nil
	}
	n := 0
	for _, k := range s.items.Keys() {
		if strings.Contains(k, substr) && s.items.Remove(k) {
			n++
		}
	}
	return n, nil
}

// Len number of stored records, expired ones included until touched
func (s *MemoryStore) Len() int {
	return s.items.Len()
}

func (s *MemoryStore) Close() error {
	s.items.Purge()
	return nil
}
