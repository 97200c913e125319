package news

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"marketfeed/internal/metrics"
)

// DefaultCacheTTL is how long a merged news set is served without refetching.
const DefaultCacheTTL = 5 * time.Minute

// Collector produces live items. *Aggregator implements it.
type Collector interface {
	Collect(ctx context.Context) []Item
}

// CacheStatus describes the cached news set.
type CacheStatus struct {
	Valid              bool       `json:"valid"`
	LastUpdate         *time.Time `json:"last_update,omitempty"`
	Count              int        `json:"count"`
	AuthoritativeCount int        `json:"authoritative_count"`
}

// Cache holds the last good merged set. A refresh that comes back empty
// leaves the previous set in place.
type Cache struct {
	collector Collector
	ttl       time.Duration
	now       func() time.Time
	log       logrus.FieldLogger

	mu        sync.RWMutex
	items     []Item
	fetchedAt time.Time

	// coalesce concurrent refreshes
	sf singleflight.Group
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

func WithCacheLogger(log logrus.FieldLogger) CacheOption {
	return func(c *Cache) { c.log = log }
}

func NewCache(collector Collector, ttl time.Duration, opts ...CacheOption) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &Cache{
		collector: collector,
		ttl:       ttl,
		now:       time.Now,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached set while it is fresh unless force is set.
// Otherwise it refreshes, falling back to the stale set and then to
// placeholders. The result is never empty.
func (c *Cache) Get(ctx context.Context, force bool) []Item {
	if !force {
		c.mu.RLock()
		fresh := len(c.items) > 0 && c.now().Sub(c.fetchedAt) < c.ttl
		items := slices.Clone(c.items)
		c.mu.RUnlock()
		if fresh {
			metrics.RecordNewsCache("hit")
			return items
		}
	}

	// The refresh is shared, so one caller going away must not cancel it.
	v, _, _ := c.sf.Do("refresh", func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx)), nil
	})
	return slices.Clone(v.([]Item))
}

func (c *Cache) refresh(ctx context.Context) []Item {
	items := c.collector.Collect(ctx)
	if len(items) > 0 {
		c.mu.Lock()
		c.items = items
		c.fetchedAt = c.now()
		c.mu.Unlock()
		metrics.RecordNewsCache("refresh")
		return items
	}

	c.mu.RLock()
	stale := slices.Clone(c.items)
	c.mu.RUnlock()
	if len(stale) > 0 {
		metrics.RecordNewsCache("stale")
		c.log.WithField("items", len(stale)).Warn("news refresh empty, serving stale cache")
		return stale
	}
	metrics.RecordNewsCache("fallback")
	c.log.Warn("news refresh empty and cache cold, serving placeholders")
	return Placeholders(c.now())
}

// Invalidate drops the cached set.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.items = nil
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

// Status reports freshness and size of the cached set.
func (c *Cache) Status() CacheStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := CacheStatus{
		Valid: len(c.items) > 0 && c.now().Sub(c.fetchedAt) < c.ttl,
		Count: len(c.items),
	}
	if !c.fetchedAt.IsZero() {
		t := c.fetchedAt
		st.LastUpdate = &t
	}
	for _, it := range c.items {
		if it.Authoritative {
			st.AuthoritativeCount++
		}
	}
	return st
}
