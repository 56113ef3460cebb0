package cache

import (
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultSize is the per-table capacity used when none is configured.
const DefaultSize = 1000

// EntityCache is the lookup contract the interning tables depend on.
// It is independent of how entries are persisted.
type EntityCache[V any] interface {
	LookupByID(id int64) (V, bool)
	LookupByValue(value string) (V, bool)
	Insert(entry V)
	Evict(id int64) bool
	Purge()
	Len() int
	Stats() Stats
}

// Option configures a BiCache.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	name       string
}

// WithMetrics registers hit, miss and eviction counters plus a size gauge
// with reg, labelled with the table name.
func WithMetrics(reg prometheus.Registerer, table string) Option {
	return func(o *options) {
		o.registerer = reg
		o.name = table
	}
}

// BiCache is a bounded map from id and from value to one entry, sharing a
// single LRU eviction order. Safe for concurrent use.
type BiCache[V any] struct {
	mu      sync.Mutex
	lru     *simplelru.LRU[int64, V]
	byValue map[string]int64
	idOf    func(V) int64
	valueOf func(V) string
	stats   *Statistics
	metrics *cacheMetrics
}

var _ EntityCache[struct{}] = (*BiCache[struct{}])(nil)

// New creates a BiCache holding at most size entries. idOf and valueOf
// extract the two keys from an entry.
func New[V any](size int, idOf func(V) int64, valueOf func(V) string, opts ...Option) (*BiCache[V], error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be > 0, got %d", size)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	c := &BiCache[V]{
		byValue: make(map[string]int64, size),
		idOf:    idOf,
		valueOf: valueOf,
		stats:   NewStatistics(),
	}

	lru, err := simplelru.NewLRU[int64, V](size, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	c.lru = lru

	if o.registerer != nil {
		m, err := newCacheMetrics(o.registerer, o.name)
		if err != nil {
			return nil, fmt.Errorf("register cache metrics: %w", err)
		}
		c.metrics = m
	}

	return c, nil
}

// onEvict keeps the value index in step with the LRU. It runs with c.mu held.
func (c *BiCache[V]) onEvict(id int64, entry V) {
	value := c.valueOf(entry)
	if c.byValue[value] == id {
		delete(c.byValue, value)
	}
}

// LookupByID returns the entry with the given id and marks it recently used.
func (c *BiCache[V]) LookupByID(id int64) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Get(id)
	c.record(ok)
	return entry, ok
}

// LookupByValue returns the entry with the given value and marks it
// recently used.
func (c *BiCache[V]) LookupByValue(value string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.byValue[value]
	if !ok {
		c.record(false)
		var zero V
		return zero, false
	}
	entry, ok := c.lru.Get(id)
	c.record(ok)
	return entry, ok
}

// Insert adds or replaces an entry. Replacing refreshes its position.
// If the value was previously cached under another id, that mapping is
// dropped first.
func (c *BiCache[V]) Insert(entry V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, value := c.idOf(entry), c.valueOf(entry)
	if prev, ok := c.byValue[value]; ok && prev != id {
		c.lru.Remove(prev)
	}
	if old, ok := c.lru.Peek(id); ok && c.valueOf(old) != value {
		delete(c.byValue, c.valueOf(old))
	}

	evicted := c.lru.Add(id, entry)
	c.byValue[value] = id

	c.stats.Set()
	if evicted {
		c.stats.Eviction()
	}
	if c.metrics != nil {
		c.metrics.recordSet(evicted, c.lru.Len())
	}
}

// Evict removes the entry with the given id. Reports whether it was present.
func (c *BiCache[V]) Evict(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := c.lru.Remove(id)
	if removed && c.metrics != nil {
		c.metrics.size.Set(float64(c.lru.Len()))
	}
	return removed
}

// Purge drops every entry. Statistics are kept.
func (c *BiCache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Purge()
	clear(c.byValue)
	if c.metrics != nil {
		c.metrics.size.Set(0)
	}
}

// Len returns the number of cached entries.
func (c *BiCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns a snapshot of the cache statistics.
func (c *BiCache[V]) Stats() Stats {
	return c.stats.Snapshot()
}

func (c *BiCache[V]) record(hit bool) {
	if hit {
		c.stats.Hit()
	} else {
		c.stats.Miss()
	}
	if c.metrics != nil {
		c.metrics.recordLookup(hit)
	}
}
