package drawitems

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gogpu/storm"
	"github.com/gogpu/storm/internal/cache"
	"github.com/gogpu/storm/perflog"
)

// Cache defaults.
const (
	// DefaultMaxIdleFrames is how many frames an entry may go unrequested
	// before GarbageCollect drops it.
	DefaultMaxIdleFrames = 4

	// DefaultSoftLimit bounds the number of entries.
	DefaultSoftLimit = 1024
)

// Key identifies a cache entry. RenderTags is the sorted, comma-joined
// tag filter; empty means every tag.
type Key struct {
	Collection  uint64
	MaterialTag string
	Repr        string
	RenderTags  string
}

func (k Key) String() string {
	return fmt.Sprintf("%016x/%s/%s/[%s]", k.Collection, k.MaterialTag, k.Repr, k.RenderTags)
}

// Outcome is how a lookup was satisfied.
type Outcome uint8

const (
	// Miss means no entry existed and one was computed.
	Miss Outcome = iota
	// Hit means the entry was current and returned unchanged.
	Hit
	// Stale means the entry was out of date and was recomputed in place.
	Stale
)

func (o Outcome) String() string {
	switch o {
	case Miss:
		return "miss"
	case Hit:
		return "hit"
	case Stale:
		return "stale"
	default:
		return fmt.Sprintf("Outcome(%d)", o)
	}
}

type entry struct {
	items []DrawItem
	stamp versions
}

// Cache memoizes the draw items of (collection, material tag, repr)
// lookups against a render index.
//
// Returned slices are shared between callers and must not be modified.
type Cache struct {
	index   *RenderIndex
	maxIdle uint64

	// mu makes the check and the recompute of one lookup atomic.
	mu    sync.Mutex
	table *cache.Table[Key, *entry]

	hits, misses, stale uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxIdleFrames sets how many frames an entry survives unrequested.
func WithMaxIdleFrames(n uint64) Option {
	return func(c *Cache) { c.maxIdle = n }
}

// WithSoftLimit replaces the cache table with one bounded to n entries.
// A limit of 0 means unlimited.
func WithSoftLimit(n int) Option {
	return func(c *Cache) { c.table = cache.New[Key, *entry](n) }
}

// NewCache returns a cache over index.
func NewCache(index *RenderIndex, opts ...Option) *Cache {
	c := &Cache{
		index:   index,
		maxIdle: DefaultMaxIdleFrames,
		table:   cache.New[Key, *entry](DefaultSoftLimit),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetDrawItems returns the draw items of the prims in coll whose render
// tag is in renderTags, whose material tag is materialTag and which have
// repr. Empty renderTags match every tag.
func (c *Cache) GetDrawItems(coll Collection, renderTags []string, materialTag, repr string) []DrawItem {
	items, _ := c.Lookup(coll, renderTags, materialTag, repr)
	return items
}

// Lookup is GetDrawItems that also reports how the lookup was satisfied.
func (c *Cache) Lookup(coll Collection, renderTags []string, materialTag, repr string) ([]DrawItem, Outcome) {
	tags := normalizeTags(renderTags)
	key := Key{
		Collection:  coll.Digest(),
		MaterialTag: materialTag,
		Repr:        repr,
		RenderTags:  strings.Join(tags, ","),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	stamp := c.index.tracker.snapshot(coll.Name, tags, materialTag, repr)
	e, ok := c.table.Get(key)
	if !ok {
		e = &entry{}
		c.recompute(e, coll, tags, materialTag, repr, stamp)
		c.table.Set(key, e)
		c.misses++
		perflog.Get().IncrementCounter(perflog.DrawItemsCacheMiss)
		storm.Logger().Debug("drawitems: cache miss", "key", key.String(), "items", len(e.items))
		return e.items, Miss
	}

	if e.stamp == stamp {
		c.hits++
		perflog.Get().IncrementCounter(perflog.DrawItemsCacheHit)
		return e.items, Hit
	}

	c.recompute(e, coll, tags, materialTag, repr, stamp)
	c.stale++
	perflog.Get().IncrementCounter(perflog.DrawItemsCacheStale)
	storm.Logger().Debug("drawitems: cache entry stale", "key", key.String(), "items", len(e.items))
	return e.items, Stale
}

// recompute walks the render index and restamps e.
func (c *Cache) recompute(e *entry, coll Collection, tags []string, materialTag, repr string, stamp versions) {
	e.items = c.index.collect(coll, tags, materialTag, repr)
	e.stamp = stamp
	perflog.Get().AddCounter(perflog.DrawItemsFetched, int64(len(e.items)))
}

// NextFrame advances the cache's frame counter.
func (c *Cache) NextFrame() {
	c.table.NextFrame()
}

// GarbageCollect drops entries not requested in the last
// WithMaxIdleFrames frames and returns how many were dropped.
func (c *Cache) GarbageCollect() int {
	n := c.table.Sweep(c.maxIdle)
	if n > 0 {
		storm.Logger().Debug("drawitems: entries collected", "count", n)
	}
	return n
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.table.Clear()
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	return c.table.Len()
}

// Stats summarizes cache activity.
type Stats struct {
	Entries int
	Hits    uint64
	Misses  uint64
	Stale   uint64
	Evicted uint64
}

// HitRate returns hits over lookups, 0 when there were none.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses + s.Stale
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (s Stats) String() string {
	return fmt.Sprintf("DrawItemsCache[%d entries, %d hits, %d misses, %d stale, %d evicted, %.1f%% hit rate]",
		s.Entries, s.Hits, s.Misses, s.Stale, s.Evicted, s.HitRate()*100)
}

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	ts := c.table.Stats()
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries: ts.Len,
		Hits:    c.hits,
		Misses:  c.misses,
		Stale:   c.stale,
		Evicted: ts.Evictions,
	}
}
