// Package cache provides the frame-stamped entry table behind the draw
// items cache.
//
// A Table is a map whose entries remember the frame they were last used
// in. Entries idle for too many frames are dropped by Sweep, and a soft
// limit bounds the table with least-recently-used eviction.
//
//	t := cache.New[key, []item](1024)
//	t.Set(k, items)
//	...
//	t.NextFrame()
//	t.Sweep(8) // drop entries unused for more than 8 frames
//
// Table is safe for concurrent use and must not be copied after creation.
package cache

import (
	"container/list"
	"fmt"
	"sync"
)

// Table is a frame-stamped LRU map.
type Table[K comparable, V any] struct {
	mu        sync.Mutex
	entries   map[K]*list.Element
	lru       *list.List // front = most recently used
	softLimit int
	frame     uint64
	evictions uint64
}

// tableEntry holds a value with the frame it was last used in.
type tableEntry[K comparable, V any] struct {
	key   K
	value V
	frame uint64
}

// New creates a table with the given soft limit.
// A softLimit of 0 means unlimited.
func New[K comparable, V any](softLimit int) *Table[K, V] {
	return &Table[K, V]{
		entries:   make(map[K]*list.Element),
		lru:       list.New(),
		softLimit: softLimit,
	}
}

// Get returns the value for key and stamps it with the current frame.
func (t *Table[K, V]) Get(key K) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elem, ok := t.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	e := elem.Value.(*tableEntry[K, V])
	e.frame = t.frame
	t.lru.MoveToFront(elem)
	return e.value, true
}

// Set stores value for key, replacing any existing entry in place.
// Exceeding the soft limit evicts the least recently used entries.
func (t *Table[K, V]) Set(key K, value V) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if elem, ok := t.entries[key]; ok {
		e := elem.Value.(*tableEntry[K, V])
		e.value = value
		e.frame = t.frame
		t.lru.MoveToFront(elem)
		return
	}

	t.entries[key] = t.lru.PushFront(&tableEntry[K, V]{key: key, value: value, frame: t.frame})
	for t.softLimit > 0 && t.lru.Len() > t.softLimit {
		t.removeLocked(t.lru.Back())
		t.evictions++
	}
}

// Delete removes key. Returns true if the entry existed.
func (t *Table[K, V]) Delete(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	elem, ok := t.entries[key]
	if !ok {
		return false
	}
	t.removeLocked(elem)
	return true
}

// NextFrame advances the frame counter and returns the new frame.
func (t *Table[K, V]) NextFrame() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frame++
	return t.frame
}

// Frame returns the current frame.
func (t *Table[K, V]) Frame() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frame
}

// Sweep removes entries not used during the last maxIdle frames and
// returns how many were removed.
func (t *Table[K, V]) Sweep(maxIdle uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for elem := t.lru.Back(); elem != nil; {
		e := elem.Value.(*tableEntry[K, V])
		if e.frame+maxIdle >= t.frame {
			// The list is ordered by use; everything in front is newer.
			break
		}
		prev := elem.Prev()
		t.removeLocked(elem)
		removed++
		elem = prev
	}
	t.evictions += uint64(removed)
	return removed
}

// Range calls fn for each entry, most recently used first, until fn
// returns false. fn must not call back into the table.
func (t *Table[K, V]) Range(fn func(K, V) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for elem := t.lru.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*tableEntry[K, V])
		if !fn(e.key, e.value) {
			return
		}
	}
}

// Clear removes all entries. The frame counter is kept.
func (t *Table[K, V]) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = make(map[K]*list.Element)
	t.lru.Init()
}

// Len returns the number of entries.
func (t *Table[K, V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Stats returns table statistics.
func (t *Table[K, V]) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Stats{
		Len:       len(t.entries),
		Capacity:  t.softLimit,
		Frame:     t.frame,
		Evictions: t.evictions,
	}
}

// removeLocked unlinks elem. Caller must hold t.mu.
func (t *Table[K, V]) removeLocked(elem *list.Element) {
	e := elem.Value.(*tableEntry[K, V])
	t.lru.Remove(elem)
	delete(t.entries, e.key)
}

// Stats contains table statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Capacity is the soft limit, 0 when unlimited.
	Capacity int
	// Frame is the current frame.
	Frame uint64
	// Evictions counts entries removed by the soft limit or Sweep.
	Evictions uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Table[%d entries, limit %d, frame %d, %d evicted]",
		s.Len, s.Capacity, s.Frame, s.Evictions)
}
