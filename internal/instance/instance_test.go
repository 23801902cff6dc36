package instance

import (
	"sync"
	"testing"
)

func TestAcquireSharesValue(t *testing.T) {
	r := New[string]()

	a := r.Acquire(7)
	if !a.IsFirstInstance() {
		t.Fatal("first Acquire() not reported as first instance")
	}
	a.SetValue("points")

	b := r.Acquire(7)
	if b.IsFirstInstance() {
		t.Error("second Acquire() reported as first instance")
	}
	if b.Value() != "points" {
		t.Errorf("Value() = %q, want %q", b.Value(), "points")
	}
	if b.Refs() != 2 {
		t.Errorf("Refs() = %d, want 2", b.Refs())
	}

	stats := r.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.HitRate != 0.5 {
		t.Errorf("Stats() = %+v, want 1 hit, 1 miss", stats)
	}
}

func TestGarbageCollect(t *testing.T) {
	r := New[int]()
	a := r.Acquire(1)
	a.SetValue(10)
	b := r.Acquire(2)
	b.SetValue(20)

	if n := r.GarbageCollect(nil, nil); n != 0 {
		t.Fatalf("GarbageCollect() with live handles = %d, want 0", n)
	}

	a.Release()
	a.Release() // idempotent
	if b.Refs() != 1 {
		t.Errorf("unrelated Refs() = %d, want 1", b.Refs())
	}

	var removed []int
	n := r.GarbageCollect(nil, func(v int) { removed = append(removed, v) })
	if n != 1 || len(removed) != 1 || removed[0] != 10 {
		t.Errorf("GarbageCollect() = %d, removed %v, want 1, [10]", n, removed)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	// A new request for a collected key starts over.
	c := r.Acquire(1)
	if !c.IsFirstInstance() {
		t.Error("Acquire() after collection not reported as first instance")
	}
}

func TestGarbageCollectExpired(t *testing.T) {
	r := New[bool]()
	h := r.Acquire(3)
	h.SetValue(true)

	n := r.GarbageCollect(func(stale bool) bool { return stale }, nil)
	if n != 1 {
		t.Errorf("GarbageCollect(expired) = %d, want 1", n)
	}
	if got := r.Stats().Reclaimed; got != 1 {
		t.Errorf("Reclaimed = %d, want 1", got)
	}
}

func TestHashing(t *testing.T) {
	if HashString("abc") != HashBytes([]byte("abc")) {
		t.Error("HashString and HashBytes disagree")
	}
	if HashString("abc") == HashString("abd") {
		t.Error("HashString collision on distinct inputs")
	}
	if Combine(1, 2) == Combine(2, 1) {
		t.Error("Combine() is order independent")
	}
}

func TestAcquireConcurrent(t *testing.T) {
	r := New[int]()
	const workers = 8

	var wg sync.WaitGroup
	firsts := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := r.Acquire(99)
			firsts <- h.IsFirstInstance()
		}()
	}
	wg.Wait()
	close(firsts)

	count := 0
	for f := range firsts {
		if f {
			count++
		}
	}
	if count != 1 {
		t.Errorf("first instances = %d, want 1", count)
	}
}
