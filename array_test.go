package storm

import (
	"fmt"
	"testing"
)

func TestGrowthPolicyNext(t *testing.T) {
	tests := []struct {
		name             string
		policy           GrowthPolicy
		cur, need, limit int
		want             int
	}{
		{"exact", GrowthPolicy{MinCapacity: 1, Factor: 1}, 4, 6, 100, 6},
		{"min capacity", GrowthPolicy{MinCapacity: 64, Factor: 1}, 0, 3, 100, 64},
		{"factor", GrowthPolicy{MinCapacity: 1, Factor: 2}, 10, 12, 100, 20},
		{"need beats factor", GrowthPolicy{MinCapacity: 1, Factor: 1.5}, 10, 40, 100, 40},
		{"clamped to limit", GrowthPolicy{MinCapacity: 1, Factor: 4}, 30, 40, 100, 100},
		{"min clamped to limit", GrowthPolicy{MinCapacity: 256, Factor: 1}, 0, 8, 100, 100},
		{"over limit", GrowthPolicy{MinCapacity: 1, Factor: 1}, 0, 101, 100, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.next(tt.cur, tt.need, tt.limit); got != tt.want {
				t.Errorf("next(%d, %d, %d) = %d, want %d", tt.cur, tt.need, tt.limit, got, tt.want)
			}
		})
	}
}

func testArray(capacity int) *bufferArray {
	l := stripedLayout([]BufferSpec{widthsSpec}, defaultOptions().limits)
	a := newBufferArray(1, "test", "test", l, 0)
	a.grow(capacity, GrowthPolicy{MinCapacity: 1, Factor: 1})
	return a
}

func TestBufferArrayFreeList(t *testing.T) {
	a := testArray(10)
	if got := fmt.Sprint(a.free); got != "[{0 10}]" {
		t.Fatalf("free = %s, want [{0 10}]", got)
	}

	off, ok := a.fit(4)
	if !ok || off != 0 {
		t.Fatalf("fit(4) = %d, %v, want 0, true", off, ok)
	}
	if !a.claim(6, 2) {
		t.Fatal("claim(6, 2) = false")
	}
	if got := fmt.Sprint(a.free); got != "[{4 2} {8 2}]" {
		t.Errorf("free = %s, want [{4 2} {8 2}]", got)
	}
	if a.claim(5, 2) {
		t.Error("claim(5, 2) = true across a used element")
	}
	if got := a.tailFree(); got != 2 {
		t.Errorf("tailFree() = %d, want 2", got)
	}
	if _, ok := a.fit(3); ok {
		t.Error("fit(3) = true with no free run of 3")
	}

	// Releasing the middle run joins both neighbours.
	a.release(6, 2)
	if got := fmt.Sprint(a.free); got != "[{4 6}]" {
		t.Errorf("free = %s, want [{4 6}]", got)
	}
	a.release(0, 4)
	if got := fmt.Sprint(a.free); got != "[{0 10}]" {
		t.Errorf("free = %s, want [{0 10}]", got)
	}
	a.release(3, 0)
	if got := len(a.free); got != 1 {
		t.Errorf("len(free) = %d after an empty release, want 1", got)
	}
}

func TestBufferArrayGrow(t *testing.T) {
	a := testArray(4)
	a.write(a.layout.columns["widths"], 0, NewSource("widths", []float32{1, 2, 3, 4}, 1).Data(), 4)
	off, _ := a.fit(4)

	if !a.grow(6, GrowthPolicy{MinCapacity: 1, Factor: 1}) {
		t.Fatal("grow(6) = false")
	}
	if a.capacity != 6 || !a.realloc {
		t.Errorf("capacity = %d, realloc = %v, want 6, true", a.capacity, a.realloc)
	}
	if got := fmt.Sprint(a.free); got != "[{4 2}]" {
		t.Errorf("free = %s, want [{4 2}]", got)
	}
	got := Value{Type: widthsSpec.Type, NumElements: 4, Data: a.read(a.layout.columns["widths"], off, 4)}
	if !equalFloats(got.Float32s(), []float32{1, 2, 3, 4}) {
		t.Errorf("data after grow = %v, want [1 2 3 4]", got.Float32s())
	}
	if !a.grow(2, GrowthPolicy{}) {
		t.Error("grow() below capacity = false, want true")
	}
}

func TestCoalesce(t *testing.T) {
	tests := []struct {
		name      string
		spans     []span
		threshold int
		want      string
	}{
		{"disjoint", []span{{20, 4}, {0, 4}}, 0, "[{0 4} {20 4}]"},
		{"touching", []span{{0, 4}, {4, 4}}, 0, "[{0 8}]"},
		{"overlapping", []span{{0, 6}, {4, 4}, {2, 1}}, 0, "[{0 8}]"},
		{"threshold splits", []span{{0, 8}, {8, 8}}, 8, "[{0 8} {8 8}]"},
		{"contained under threshold", []span{{0, 8}, {2, 2}}, 4, "[{0 8}]"},
		{"overlap past threshold", []span{{0, 8}, {4, 8}}, 8, "[{0 8} {8 4}]"},
		{"empty", nil, 0, "[]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fmt.Sprint(coalesce(tt.spans, tt.threshold)); got != tt.want {
				t.Errorf("coalesce() = %s, want %s", got, tt.want)
			}
		})
	}
}
