package storm

import (
	"testing"

	"github.com/gogpu/storm/backend"
	"github.com/gogpu/storm/perflog"
)

// resetPerf enables the process-wide perf log and zeroes its counters.
func resetPerf(t testing.TB) *perflog.Log {
	t.Helper()
	pl := perflog.Get()
	pl.Enable()
	pl.ResetCounters()
	return pl
}

// newTestRegistry returns a resource registry over a fresh software
// backend with exact growth.
func newTestRegistry(t testing.TB, opts ...Option) (*ResourceRegistry, *backend.Software) {
	t.Helper()
	sw := backend.NewSoftware()
	opts = append([]Option{
		WithBackend(sw),
		WithGrowthPolicy(GrowthPolicy{MinCapacity: 1, Factor: 1}),
	}, opts...)
	reg, err := NewResourceRegistry(opts...)
	if err != nil {
		t.Fatalf("NewResourceRegistry() error = %v", err)
	}
	t.Cleanup(reg.Close)
	return reg, sw
}

func mustCommit(t testing.TB, reg *ResourceRegistry) {
	t.Helper()
	if err := reg.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
}

// readFloats returns the committed float32 data of one channel.
func readFloats(t testing.TB, rg Range, name string) []float32 {
	t.Helper()
	v, err := rg.Read(name)
	if err != nil {
		t.Fatalf("Read(%q) error = %v", name, err)
	}
	return v.Float32s()
}

// gpuBytes returns the uploaded bytes of one channel of rg, read back
// from the software backend.
func gpuBytes(t testing.TB, sw *backend.Software, rg Range, name string) []byte {
	t.Helper()
	b := rg.reg
	b.mu.Lock()
	s, ok := b.slotLocked(rg)
	if !ok || s.array == 0 {
		b.mu.Unlock()
		t.Fatalf("range %s holds no elements", rg)
	}
	a := b.arrays[s.array]
	col := a.layout.columns[name]
	stride := a.layout.strides[col.buffer]
	h := a.buffers[col.buffer].handle
	off, count, size := s.offset, s.count, col.spec.ElementSize()
	b.mu.Unlock()

	raw, err := sw.ReadBuffer(h, uint64(off*stride), uint64(count*stride))
	if err != nil {
		t.Fatalf("ReadBuffer() error = %v", err)
	}
	out := make([]byte, 0, count*size)
	for i := 0; i < count; i++ {
		start := i*stride + col.offset
		out = append(out, raw[start:start+size]...)
	}
	return out
}

func equalFloats(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var (
	pointsSpec  = NewBufferSpec("points", Float32, 3)
	normalsSpec = NewBufferSpec("normals", Float32, 3)
	widthsSpec  = NewBufferSpec("widths", Float32, 1)
	colorSpec   = NewBufferSpec("displayColor", Float32, 3)
)
