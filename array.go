package storm

import (
	"fmt"
	"math"
	"sort"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/storm/backend"
	"github.com/gogpu/storm/perflog"
)

// GrowthPolicy decides the capacity of a new or growing array.
type GrowthPolicy struct {
	// MinCapacity is the smallest capacity an array is created with.
	MinCapacity int
	// Factor multiplies the current capacity on growth. Values <= 1 grow
	// to exactly the required size.
	Factor float64
}

// next returns the capacity to grow to from cur so that at least need
// elements fit, or -1 if limit does not allow it.
func (p GrowthPolicy) next(cur, need, limit int) int {
	if need > limit {
		return -1
	}
	n := need
	if p.Factor > 1 {
		if grown := int(math.Ceil(float64(cur) * p.Factor)); grown > n {
			n = grown
		}
	}
	if n < p.MinCapacity {
		n = p.MinCapacity
	}
	if n > limit {
		n = limit
	}
	return n
}

// span is a run of elements, or of bytes for dirty tracking.
type span struct {
	off, n int
}

func (s span) end() int { return s.off + s.n }

// arrayBuffer is one GPU buffer of an array and its CPU shadow.
type arrayBuffer struct {
	handle backend.Handle
	size   int // bytes allocated on the backend, 0 before the first upload
	shadow []byte
	dirty  []span // byte ranges of shadow not yet uploaded
}

// bufferArray is a fixed-layout table of elements shared by many ranges.
// It is owned and mutated only by its BufferArrayRegistry.
type bufferArray struct {
	id       uint32
	key      string
	label    string
	layout   layout
	usage    gputypes.BufferUsage
	capacity int
	buffers  []arrayBuffer

	free    []span // sorted by offset, coalesced
	ranges  int    // placed ranges
	used    int    // elements held by placed ranges
	realloc bool   // GPU buffers no longer match capacity
}

func newBufferArray(id uint32, key, label string, l layout, usage gputypes.BufferUsage) *bufferArray {
	return &bufferArray{
		id:      id,
		key:     key,
		label:   label,
		layout:  l,
		usage:   usage,
		buffers: make([]arrayBuffer, len(l.strides)),
	}
}

// fit carves n elements out of the first free span large enough.
func (a *bufferArray) fit(n int) (int, bool) {
	for i, f := range a.free {
		if f.n < n {
			continue
		}
		off := f.off
		if f.n == n {
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else {
			a.free[i] = span{off: f.off + n, n: f.n - n}
		}
		return off, true
	}
	return 0, false
}

// claim takes exactly [off, off+n) if it lies inside one free span.
func (a *bufferArray) claim(off, n int) bool {
	for i, f := range a.free {
		if off < f.off || off+n > f.end() {
			continue
		}
		var rest []span
		if off > f.off {
			rest = append(rest, span{off: f.off, n: off - f.off})
		}
		if off+n < f.end() {
			rest = append(rest, span{off: off + n, n: f.end() - off - n})
		}
		a.free = append(a.free[:i], append(rest, a.free[i+1:]...)...)
		return true
	}
	return false
}

// release returns [off, off+n) to the free list.
func (a *bufferArray) release(off, n int) {
	if n <= 0 {
		return
	}
	a.free = append(a.free, span{off: off, n: n})
	sort.Slice(a.free, func(i, j int) bool { return a.free[i].off < a.free[j].off })

	merged := a.free[:1]
	for _, f := range a.free[1:] {
		last := &merged[len(merged)-1]
		if f.off <= last.end() {
			if f.end() > last.end() {
				last.n = f.end() - last.off
			}
			continue
		}
		merged = append(merged, f)
	}
	a.free = merged
}

// tailFree returns the free elements at the end of the array.
func (a *bufferArray) tailFree() int {
	if len(a.free) == 0 {
		return 0
	}
	last := a.free[len(a.free)-1]
	if last.end() == a.capacity {
		return last.n
	}
	return 0
}

// grow raises capacity to at least minCap following policy.
func (a *bufferArray) grow(minCap int, policy GrowthPolicy) bool {
	if minCap <= a.capacity {
		return true
	}
	newCap := policy.next(a.capacity, minCap, a.layout.maxElements)
	if newCap < minCap {
		return false
	}
	old := a.capacity
	a.capacity = newCap
	for i := range a.buffers {
		b := &a.buffers[i]
		grown := make([]byte, newCap*a.layout.strides[i])
		copy(grown, b.shadow)
		b.shadow = grown
	}
	a.release(old, newCap-old)
	a.realloc = true
	return true
}

// reserve finds room for n elements, growing the array if allowed.
func (a *bufferArray) reserve(n int, policy GrowthPolicy, allowGrowth bool) (int, bool) {
	if off, ok := a.fit(n); ok {
		return off, true
	}
	if !allowGrowth || !a.grow(a.capacity+n-a.tailFree(), policy) {
		return 0, false
	}
	return a.fit(n)
}

// bytes returns the bytes allocated on the backend.
func (a *bufferArray) bytes() int {
	total := 0
	for _, b := range a.buffers {
		total += b.size
	}
	return total
}

// write copies count elements of one channel from src into the shadow,
// starting at element off.
func (a *bufferArray) write(col column, off int, src []byte, count int) {
	size := col.spec.ElementSize()
	stride := a.layout.strides[col.buffer]
	b := &a.buffers[col.buffer]
	if count <= 0 {
		return
	}

	if !a.layout.interleaved {
		start := off * stride
		copy(b.shadow[start:start+count*size], src[:count*size])
		b.markDirty(start, count*size)
		return
	}
	for i := 0; i < count; i++ {
		start := (off+i)*stride + col.offset
		copy(b.shadow[start:start+size], src[i*size:(i+1)*size])
	}
	b.markDirty(off*stride, count*stride)
}

// read returns count elements of one channel starting at element off.
func (a *bufferArray) read(col column, off, count int) []byte {
	size := col.spec.ElementSize()
	stride := a.layout.strides[col.buffer]
	b := &a.buffers[col.buffer]
	out := make([]byte, count*size)
	for i := 0; i < count; i++ {
		start := (off+i)*stride + col.offset
		copy(out[i*size:], b.shadow[start:start+size])
	}
	return out
}

// move copies count elements at from to to inside every buffer.
func (a *bufferArray) move(from, to, count int) {
	if from == to || count == 0 {
		return
	}
	for i := range a.buffers {
		stride := a.layout.strides[i]
		b := &a.buffers[i]
		copy(b.shadow[to*stride:(to+count)*stride], b.shadow[from*stride:(from+count)*stride])
		b.markDirty(to*stride, count*stride)
	}
}

func (b *arrayBuffer) markDirty(off, n int) {
	if n > 0 {
		b.dirty = append(b.dirty, span{off: off, n: n})
	}
}

// reallocate replaces the GPU buffers with ones matching capacity and
// uploads the whole shadow.
func (a *bufferArray) reallocate(be backend.Backend) error {
	a.freeBuffers(be)
	a.realloc = false
	if a.capacity == 0 {
		return nil
	}

	for i := range a.buffers {
		b := &a.buffers[i]
		size := a.capacity * a.layout.strides[i]
		h, err := be.AllocateBuffer(backend.BufferDescriptor{
			Label: fmt.Sprintf("%s#%d.%d", a.label, a.id, i),
			Size:  uint64(size),
			Usage: a.usage,
		})
		if err != nil {
			a.realloc = true
			return fmt.Errorf("%w: %v", ErrAllocation, err)
		}
		b.handle = h
		b.size = size
		b.dirty = b.dirty[:0]
		if err := be.Upload(h, 0, b.shadow); err != nil {
			return err
		}
	}
	perflog.Get().IncrementCounter(perflog.VBORelocated)
	slogger().Debug("storm: array reallocated",
		"array", a.id, "key", a.key, "capacity", a.capacity, "bytes", a.bytes())
	return nil
}

// flush uploads dirty shadow bytes, merging touching ranges into
// uploads of at most threshold bytes.
func (a *bufferArray) flush(be backend.Backend, threshold int) error {
	for i := range a.buffers {
		b := &a.buffers[i]
		if len(b.dirty) == 0 || b.handle == 0 {
			continue
		}
		for _, s := range coalesce(b.dirty, threshold) {
			if err := be.Upload(b.handle, uint64(s.off), b.shadow[s.off:s.end()]); err != nil {
				return err
			}
		}
		b.dirty = b.dirty[:0]
	}
	return nil
}

// freeBuffers releases the GPU buffers. The shadow is kept.
func (a *bufferArray) freeBuffers(be backend.Backend) {
	for i := range a.buffers {
		b := &a.buffers[i]
		if b.handle != 0 {
			be.Free(b.handle)
		}
		b.handle = 0
		b.size = 0
	}
}

// coalesce sorts spans and merges overlapping or touching ones while the
// result stays within threshold bytes. threshold <= 0 merges without limit.
func coalesce(spans []span, threshold int) []span {
	sorted := make([]span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].off < sorted[j].off })

	var out []span
	for _, s := range sorted {
		if len(out) > 0 {
			last := &out[len(out)-1]
			if s.off <= last.end() {
				end := max(last.end(), s.end())
				if threshold <= 0 || end-last.off <= threshold || s.end() <= last.end() {
					last.n = end - last.off
					continue
				}
				// Overlap beyond the threshold: upload the remainder separately.
				s = span{off: last.end(), n: s.end() - last.end()}
			}
		}
		out = append(out, s)
	}
	return out
}
