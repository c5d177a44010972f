// Package cache provides the query-surface caching implementations for
// Kestrel.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/trustlab/kestrel/internal/domain"
)

// defaultTTL applies when a caller passes a non-positive TTL. Trust
// records only change when an epoch publishes, so a short bound is enough
// to pick up the refresh.
const defaultTTL = 5 * time.Minute

// LRUCache is a thread-safe LRU cache with per-entry TTL.
// Used as the Community tier cache and as L1 in two-phase caching.
type LRUCache struct {
	mu       sync.RWMutex
	maxSize  int
	index    map[string]*list.Element
	usage    *list.List // front = most recently used
	counters map[string]*counterEntry
}

type lruEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

// NewLRUCache creates a new LRU cache with the specified max size.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &LRUCache{
		maxSize:  maxSize,
		index:    make(map[string]*list.Element),
		usage:    list.New(),
		counters: make(map[string]*counterEntry),
	}
}

// Get retrieves a value. Expired entries read as misses and are dropped
// on the spot rather than waiting for eviction.
func (c *LRUCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.index[key]
	if !ok {
		return nil, nil
	}

	entry := elem.Value.(*lruEntry)
	if time.Now().After(entry.expiresAt) {
		c.evict(elem)
		return nil, nil
	}

	c.usage.MoveToFront(elem)
	return entry.value, nil
}

// Set stores a value with a TTL, evicting from the cold end when the
// cache is over capacity.
func (c *LRUCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	expiresAt := time.Now().Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[key]; ok {
		c.usage.MoveToFront(elem)
		entry := elem.Value.(*lruEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		return nil
	}

	c.index[key] = c.usage.PushFront(&lruEntry{
		key:       key,
		value:     value,
		expiresAt: expiresAt,
	})

	for c.usage.Len() > c.maxSize {
		if oldest := c.usage.Back(); oldest != nil {
			c.evict(oldest)
		}
	}

	return nil
}

// Delete removes a value from cache.
func (c *LRUCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[key]; ok {
		c.evict(elem)
	}
	return nil
}

// GetTrustRecord retrieves a cached current trust record.
func (c *LRUCache) GetTrustRecord(ctx context.Context, userID string) (*domain.TrustRecord, error) {
	data, err := c.Get(ctx, trustKey(userID))
	if err != nil || data == nil {
		return nil, err
	}

	var record domain.TrustRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// SetTrustRecord caches a current trust record.
func (c *LRUCache) SetTrustRecord(ctx context.Context, userID string, record *domain.TrustRecord, ttl time.Duration) error {
	bytes, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return c.Set(ctx, trustKey(userID), bytes, ttl)
}

// IncrementCounter bumps a windowed counter (ingest rate accounting). The
// count resets when the window lapses.
func (c *LRUCache) IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error) {
	fullKey := "counter:" + key

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	entry, ok := c.counters[fullKey]
	if !ok || now.After(entry.expiresAt) {
		c.counters[fullKey] = &counterEntry{
			count:     1,
			expiresAt: now.Add(window),
		}
		return 1, nil
	}

	entry.count++
	return entry.count, nil
}

// Ping checks cache health.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close drops all entries.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[string]*list.Element)
	c.usage = list.New()
	c.counters = make(map[string]*counterEntry)
	return nil
}

// Stats returns current size and capacity.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.usage.Len(), c.maxSize
}

func trustKey(userID string) string {
	return "trust:" + userID
}

func (c *LRUCache) evict(elem *list.Element) {
	c.usage.Remove(elem)
	delete(c.index, elem.Value.(*lruEntry).key)
}
