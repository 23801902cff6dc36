// Package instance deduplicates shared resources by content hash.
//
// The first requester of a key fills the instance; later requesters with
// the same key share it. Instances are reference counted and reclaimed by
// GarbageCollect once released by every holder.
package instance

import (
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// shardCount must be a power of 2 for fast modulo via bitwise AND.
const (
	shardCount = 16
	shardMask  = shardCount - 1
)

// HashBytes computes the FNV-1a hash of data.
func HashBytes(data []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(data) // fnv.Write never returns an error
	return h.Sum64()
}

// HashString computes the FNV-1a hash of s.
func HashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// Combine mixes v into seed. Used to build keys from several hashes.
func Combine(seed, v uint64) uint64 {
	seed ^= v + 0x9e3779b97f4a7c15 + (seed << 6) + (seed >> 2)
	return seed
}

// entry is the registry-side record shared by every Handle for a key.
type entry[V any] struct {
	mu    sync.Mutex
	value V
	refs  int
}

// Handle is one holder's reference to a shared value.
type Handle[V any] struct {
	key      uint64
	first    bool
	e        *entry[V]
	released atomic.Bool
}

// Key returns the instance key.
func (h *Handle[V]) Key() uint64 { return h.key }

// IsFirstInstance reports whether this request created the instance.
// Only the first requester is expected to fill it.
func (h *Handle[V]) IsFirstInstance() bool { return h.first }

// Value returns the shared value.
func (h *Handle[V]) Value() V {
	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	return h.e.value
}

// SetValue stores the shared value.
func (h *Handle[V]) SetValue(v V) {
	h.e.mu.Lock()
	h.e.value = v
	h.e.mu.Unlock()
}

// Refs returns the number of live handles for the value.
func (h *Handle[V]) Refs() int {
	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	return h.e.refs
}

// Release drops this handle's reference. Subsequent calls do nothing.
// The value stays in the registry until the next GarbageCollect.
func (h *Handle[V]) Release() {
	if !h.released.CompareAndSwap(false, true) {
		return
	}
	h.e.mu.Lock()
	h.e.refs--
	h.e.mu.Unlock()
}

// Registry maps keys to reference-counted shared values.
//
// Registry is safe for concurrent use.
type Registry[V any] struct {
	shards [shardCount]*shard[V]

	hits      atomic.Uint64
	misses    atomic.Uint64
	reclaimed atomic.Uint64
}

type shard[V any] struct {
	mu      sync.Mutex
	entries map[uint64]*entry[V]
}

// New creates an empty registry.
func New[V any]() *Registry[V] {
	r := &Registry[V]{}
	for i := range r.shards {
		r.shards[i] = &shard[V]{entries: make(map[uint64]*entry[V])}
	}
	return r
}

func (r *Registry[V]) shardFor(key uint64) *shard[V] {
	return r.shards[key&shardMask]
}

// Acquire returns the instance for key, creating it if needed, and adds a
// reference. The returned handle reports whether it created the entry.
func (r *Registry[V]) Acquire(key uint64) *Handle[V] {
	s := r.shardFor(key)

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry[V]{}
		s.entries[key] = e
	}
	e.mu.Lock()
	e.refs++
	e.mu.Unlock()
	s.mu.Unlock()

	if ok {
		r.hits.Add(1)
	} else {
		r.misses.Add(1)
	}
	return &Handle[V]{key: key, first: !ok, e: e}
}

// Len returns the number of live entries.
func (r *Registry[V]) Len() int {
	total := 0
	for _, s := range r.shards {
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
	}
	return total
}

// GarbageCollect removes entries without references and entries for which
// expired reports true. onRemove, if non-nil, is called for each removed
// value outside the shard locks. Returns the number of entries removed.
func (r *Registry[V]) GarbageCollect(expired func(V) bool, onRemove func(V)) int {
	var removed []V
	for _, s := range r.shards {
		s.mu.Lock()
		for key, e := range s.entries {
			e.mu.Lock()
			drop := e.refs <= 0 || (expired != nil && expired(e.value))
			v := e.value
			e.mu.Unlock()
			if drop {
				delete(s.entries, key)
				removed = append(removed, v)
			}
		}
		s.mu.Unlock()
	}

	if onRemove != nil {
		for _, v := range removed {
			onRemove(v)
		}
	}
	r.reclaimed.Add(uint64(len(removed)))
	return len(removed)
}

// Stats returns registry statistics.
func (r *Registry[V]) Stats() Stats {
	hits := r.hits.Load()
	misses := r.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return Stats{
		Len:       r.Len(),
		Hits:      hits,
		Misses:    misses,
		HitRate:   hitRate,
		Reclaimed: r.reclaimed.Load(),
	}
}

// Stats contains registry statistics.
type Stats struct {
	// Len is the number of live entries.
	Len int
	// Hits counts Acquire calls that found an existing entry.
	Hits uint64
	// Misses counts Acquire calls that created an entry.
	Misses uint64
	// HitRate is Hits / (Hits + Misses).
	HitRate float64
	// Reclaimed counts entries removed by GarbageCollect.
	Reclaimed uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Instances[%d live, %d hits, %d misses, %.1f%% hit rate, %d reclaimed]",
		s.Len, s.Hits, s.Misses, s.HitRate*100, s.Reclaimed)
}
