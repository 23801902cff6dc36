package storm

import "fmt"

// Range is a handle to one primitive's elements inside a shared buffer
// array. Ranges are values; copies refer to the same elements.
//
// A Range stays valid across resizes and compaction. It expires when it is
// released, when its registry closes, or when an update migrates it; the
// update returns the handle to use from then on.
type Range struct {
	reg  *BufferArrayRegistry
	slot uint32
	gen  uint32
}

// IsValid reports whether r refers to a live range.
func (r Range) IsValid() bool {
	if r.reg == nil {
		return false
	}
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()
	_, ok := r.reg.slotLocked(r)
	return ok
}

// Registry returns the registry r was allocated from, nil for the zero Range.
func (r Range) Registry() *BufferArrayRegistry { return r.reg }

// NumElements returns the element count, 0 for expired ranges.
func (r Range) NumElements() int {
	info, _ := r.info()
	return info.count
}

// Offset returns the first element of r inside its array.
func (r Range) Offset() int {
	info, _ := r.info()
	return info.offset
}

// ArrayID returns the array holding r's elements. ok is false while the
// range holds no elements or has expired.
func (r Range) ArrayID() (id uint32, ok bool) {
	info, live := r.info()
	return info.array, live && info.array != 0
}

// Specs returns the layout of r.
func (r Range) Specs() []BufferSpec {
	info, _ := r.info()
	return info.specs
}

// UsageHint returns the hint r was allocated with.
func (r Range) UsageHint() UsageHint {
	info, _ := r.info()
	return info.hint
}

// HasPending reports whether sources wait for the next commit.
func (r Range) HasPending() bool {
	info, _ := r.info()
	return info.pending > 0
}

// Read returns the committed data of one channel. A range with no
// elements reads as an empty Value.
func (r Range) Read(name string) (Value, error) {
	if r.reg == nil {
		return Value{}, ErrExpiredRange
	}
	b := r.reg
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.slotLocked(r)
	if !ok {
		return Value{}, ErrExpiredRange
	}
	spec, ok := findSpec(s.specs, name)
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
	}
	if s.array == 0 || s.count == 0 {
		return Value{Type: spec.Type}, nil
	}
	a := b.arrays[s.array]
	return Value{
		Type:        spec.Type,
		NumElements: s.count,
		Data:        a.read(a.layout.columns[name], s.offset, s.count),
	}, nil
}

// Release frees r's elements. The space is reclaimed by the next
// GarbageCollect. Releasing an expired range does nothing.
func (r Range) Release() {
	if r.reg == nil {
		return
	}
	b := r.reg
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.slotLocked(r); ok {
		b.freeSlotLocked(r.slot)
	}
}

// String returns a short identifier such as "primvar#3.1".
func (r Range) String() string {
	if r.reg == nil {
		return "range(nil)"
	}
	return fmt.Sprintf("%s#%d.%d", r.reg.role, r.slot, r.gen)
}

type rangeInfo struct {
	specs   []BufferSpec
	hint    UsageHint
	array   uint32
	offset  int
	count   int
	pending int
}

func (r Range) info() (rangeInfo, bool) {
	if r.reg == nil {
		return rangeInfo{}, false
	}
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()
	s, ok := r.reg.slotLocked(r)
	if !ok {
		return rangeInfo{}, false
	}
	return rangeInfo{
		specs:   append([]BufferSpec(nil), s.specs...),
		hint:    s.hint,
		array:   s.array,
		offset:  s.offset,
		count:   s.count,
		pending: len(s.pending),
	}, true
}
