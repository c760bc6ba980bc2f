// Package cache implements the two-tier Summary cache from spec.md §4.7:
// a bounded in-memory LRU tier in front of a durable tier. No library in
// the reference corpus provides an LRU cache, so the in-memory tier is
// hand-rolled on container/list, the same way information-broker hand-
// rolls its seenArticles deduplication map rather than importing one.
package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"summarybot-ng/internal/domain"
	"summarybot-ng/internal/metrics"
)

// Durable is the persistent tier behind the in-memory LRU.
type Durable interface {
	Get(ctx context.Context, fingerprint domain.Fingerprint) (*domain.Summary, bool, error)
	Put(ctx context.Context, fingerprint domain.Fingerprint, summary *domain.Summary, ttl time.Duration) error
	InvalidateChannel(ctx context.Context, channelID string) error
	InvalidateGuild(ctx context.Context, guildID string) error
}

type entry struct {
	fingerprint domain.Fingerprint
	summary     *domain.Summary
	expiresAt   time.Time
}

// Cache is the Cache component: LRU tier + a Durable implementation.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	ll       *list.List
	items    map[domain.Fingerprint]*list.Element
	durable  Durable
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New builds a Cache with an in-memory LRU of the given capacity/TTL in
// front of durable.
func New(capacity int, ttl time.Duration, durable Durable, m *metrics.Metrics) *Cache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		ll:       list.New(),
		items:    make(map[domain.Fingerprint]*list.Element),
		durable:  durable,
		metrics:  m,
		now:      time.Now,
	}
}

// Get checks the in-memory tier first, then the durable tier, promoting
// durable hits back into memory.
func (c *Cache) Get(ctx context.Context, fingerprint domain.Fingerprint) (*domain.Summary, bool, error) {
	if sm, ok := c.getMemory(fingerprint); ok {
		c.recordHit("memory")
		return sm, true, nil
	}

	if c.durable == nil {
		c.recordMiss("memory")
		return nil, false, nil
	}

	sm, ok, err := c.durable.Get(ctx, fingerprint)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		c.recordMiss("durable")
		return nil, false, nil
	}

	c.recordHit("durable")
	c.putMemory(fingerprint, sm)
	return sm, true, nil
}

// Put writes through to both tiers.
func (c *Cache) Put(ctx context.Context, fingerprint domain.Fingerprint, summary *domain.Summary, durableTTL time.Duration) error {
	c.putMemory(fingerprint, summary)
	if c.durable == nil {
		return nil
	}
	return c.durable.Put(ctx, fingerprint, summary, durableTTL)
}

func (c *Cache) getMemory(fingerprint domain.Fingerprint) (*domain.Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[fingerprint]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if c.now().After(e.expiresAt) {
		c.ll.Remove(el)
		delete(c.items, fingerprint)
		return nil, false
	}

	c.ll.MoveToFront(el)
	return e.summary, true
}

func (c *Cache) putMemory(fingerprint domain.Fingerprint, summary *domain.Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[fingerprint]; ok {
		el.Value.(*entry).summary = summary
		el.Value.(*entry).expiresAt = c.now().Add(c.ttl)
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&entry{fingerprint: fingerprint, summary: summary, expiresAt: c.now().Add(c.ttl)})
	c.items[fingerprint] = el

	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*entry).fingerprint)
		}
	}
}

// InvalidateChannel drops every in-memory entry whose fingerprint
// descends from channelID, and delegates to the durable tier.
func (c *Cache) InvalidateChannel(ctx context.Context, channelID string) error {
	c.evictMemoryWhere(func(fp domain.Fingerprint) bool {
		return strings.HasPrefix(string(fp), channelID+":")
	})
	if c.durable == nil {
		return nil
	}
	return c.durable.InvalidateChannel(ctx, channelID)
}

// InvalidateGuild is the same shape, scoped by guild instead of channel.
// Fingerprints don't carry the guild, so in-memory entries are matched on
// the cached Summary's GuildID instead.
func (c *Cache) InvalidateGuild(ctx context.Context, guildID string) error {
	c.mu.Lock()
	for fp, el := range c.items {
		if sm := el.Value.(*entry).summary; sm != nil && sm.GuildID == guildID {
			c.ll.Remove(el)
			delete(c.items, fp)
		}
	}
	c.mu.Unlock()
	if c.durable == nil {
		return nil
	}
	return c.durable.InvalidateGuild(ctx, guildID)
}

func (c *Cache) evictMemoryWhere(match func(domain.Fingerprint) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for fp, el := range c.items {
		if match(fp) {
			c.ll.Remove(el)
			delete(c.items, fp)
		}
	}
}

func (c *Cache) recordHit(tier string) {
	if c.metrics != nil {
		c.metrics.RecordCacheHit(tier)
	}
}

func (c *Cache) recordMiss(tier string) {
	if c.metrics != nil {
		c.metrics.RecordCacheMiss(tier)
	}
}
