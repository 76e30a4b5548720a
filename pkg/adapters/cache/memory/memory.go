package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aescanero/varflow/pkg/domain"
)

// InMemoryValuesCache implements ValuesCache using an in-memory map
type InMemoryValuesCache struct {
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
}

type cacheEntry struct {
	rows      []domain.FieldValues
	expiresAt time.Time
}

// NewInMemoryValuesCache creates a cache whose entries live for ttl
func NewInMemoryValuesCache(ttl time.Duration) *InMemoryValuesCache {
	return &InMemoryValuesCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached rows for key
func (c *InMemoryValuesCache) Get(ctx context.Context, key string) ([]domain.FieldValues, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}

	return copyRows(entry.rows), true, nil
}

// Set stores rows under key
func (c *InMemoryValuesCache) Set(ctx context.Context, key string, rows []domain.FieldValues) error {
	if c.ttl <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictExpired()
	c.entries[key] = cacheEntry{rows: copyRows(rows), expiresAt: c.now().Add(c.ttl)}
	return nil
}

// Len returns the number of live entries.
func (c *InMemoryValuesCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictExpired()
	return len(c.entries)
}

func (c *InMemoryValuesCache) evictExpired() {
	now := c.now()
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func copyRows(rows []domain.FieldValues) []domain.FieldValues {
	out := make([]domain.FieldValues, len(rows))
	for i, row := range rows {
		out[i] = domain.FieldValues{
			Field:  row.Field,
			Values: append([]domain.FieldValue(nil), row.Values...),
		}
	}
	return out
}
