package cache

import (
	"strconv"
	"testing"
)

func TestTableGetSet(t *testing.T) {
	tb := New[string, int](0)

	if _, ok := tb.Get("a"); ok {
		t.Error("Get() on empty table returned ok")
	}

	tb.Set("a", 1)
	tb.Set("a", 2)
	if v, ok := tb.Get("a"); !ok || v != 2 {
		t.Errorf("Get(a) = %d, %v, want 2, true", v, ok)
	}
	if tb.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tb.Len())
	}

	if !tb.Delete("a") {
		t.Error("Delete(a) = false, want true")
	}
	if tb.Delete("a") {
		t.Error("second Delete(a) = true, want false")
	}
}

func TestTableSoftLimit(t *testing.T) {
	tb := New[int, int](3)
	for i := 0; i < 3; i++ {
		tb.Set(i, i)
	}
	tb.Get(0) // 1 is now least recently used
	tb.Set(3, 3)

	if tb.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", tb.Len())
	}
	if _, ok := tb.Get(1); ok {
		t.Error("least recently used entry survived eviction")
	}
	for _, k := range []int{0, 2, 3} {
		if _, ok := tb.Get(k); !ok {
			t.Errorf("entry %d was evicted", k)
		}
	}
	if got := tb.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}
}

func TestTableSweep(t *testing.T) {
	tests := []struct {
		name      string
		idle      uint64
		frames    int
		wantLeft  int
		wantSwept int
	}{
		{"fresh entries stay", 2, 2, 2, 0},
		{"idle entries go", 2, 3, 1, 1},
		{"zero idle keeps current frame only", 0, 1, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := New[string, int](0)
			tb.Set("old", 1)
			tb.Set("touched", 2)
			for i := 0; i < tt.frames; i++ {
				tb.NextFrame()
			}
			tb.Get("touched")

			if got := tb.Sweep(tt.idle); got != tt.wantSwept {
				t.Errorf("Sweep(%d) = %d, want %d", tt.idle, got, tt.wantSwept)
			}
			if tb.Len() != tt.wantLeft {
				t.Errorf("Len() = %d, want %d", tb.Len(), tt.wantLeft)
			}
		})
	}
}

func TestTableRangeAndClear(t *testing.T) {
	tb := New[string, int](0)
	for i := 0; i < 5; i++ {
		tb.Set(strconv.Itoa(i), i)
	}

	var first string
	n := 0
	tb.Range(func(k string, _ int) bool {
		if n == 0 {
			first = k
		}
		n++
		return n < 2
	})
	if n != 2 {
		t.Errorf("Range visited %d entries after stop, want 2", n)
	}
	if first != "4" {
		t.Errorf("Range started at %q, want most recent %q", first, "4")
	}

	tb.NextFrame()
	tb.Clear()
	if tb.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", tb.Len())
	}
	if tb.Frame() != 1 {
		t.Errorf("Frame() after Clear = %d, want 1", tb.Frame())
	}
}

func BenchmarkTableGet(b *testing.B) {
	tb := New[string, int](1000)
	for i := 0; i < 100; i++ {
		tb.Set(strconv.Itoa(i), i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tb.Get("50")
	}
}
