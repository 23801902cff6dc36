package storm

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/gogpu/gputypes"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/gogpu/storm/backend"
	"github.com/gogpu/storm/perflog"
)

// slot is the registry-side record behind a Range handle.
type slot struct {
	gen   uint32
	live  bool
	specs []BufferSpec
	hint  UsageHint
	key   string

	array  uint32 // 0 while the range holds no elements
	offset int
	count  int

	pending []BufferSource
}

// BufferArrayRegistry owns the buffer arrays of one role and the ranges
// allocated in them. Arrays with the same layout signature and usage hint
// are interchangeable; ranges move between them only through the registry.
//
// BufferArrayRegistry is safe for concurrent use, but Commit and
// GarbageCollect must not overlap for the same registry.
type BufferArrayRegistry struct {
	role        string
	strategy    strategy
	backend     backend.Backend
	ownsBackend bool
	limits      gputypes.Limits
	growth      GrowthPolicy

	mu        sync.Mutex
	arrays    map[uint32]*bufferArray
	nextArray uint32
	layouts   map[string]layout
	slots     []slot
	freeSlots []uint32
	closed    bool
}

// NewBufferArrayRegistry creates a registry for role using the named
// aggregation strategy.
func NewBufferArrayRegistry(role, strategyName string, opts ...Option) (*BufferArrayRegistry, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	be, owned, err := o.resolveBackend()
	if err != nil {
		return nil, err
	}
	b, err := newBufferArrayRegistry(role, strategyName, be, o)
	if err != nil {
		if owned {
			be.Close()
		}
		return nil, err
	}
	b.ownsBackend = owned
	return b, nil
}

func newBufferArrayRegistry(role, strategyName string, be backend.Backend, o options) (*BufferArrayRegistry, error) {
	s, err := lookupStrategy(strategyName)
	if err != nil {
		return nil, err
	}
	return &BufferArrayRegistry{
		role:     role,
		strategy: s,
		backend:  be,
		limits:   o.limits,
		growth:   o.growth,
		arrays:   make(map[uint32]*bufferArray),
		layouts:  make(map[string]layout),
	}, nil
}

// Role returns the role the registry serves.
func (b *BufferArrayRegistry) Role() string { return b.role }

// Strategy returns the aggregation strategy name.
func (b *BufferArrayRegistry) Strategy() string { return b.strategy.name() }

// AllocateRange returns a range of numElements elements laid out by specs.
// It fails with ErrAllocation when numElements is zero or specs is empty.
func (b *BufferArrayRegistry) AllocateRange(specs []BufferSpec, hint UsageHint, numElements int) (Range, error) {
	if numElements <= 0 {
		return Range{}, fmt.Errorf("%w: %d elements", ErrAllocation, numElements)
	}
	return b.allocate(specs, hint, numElements)
}

// allocate is AllocateRange without the size check. Ranges with zero
// elements are sized later by Commit.
func (b *BufferArrayRegistry) allocate(specs []BufferSpec, hint UsageHint, numElements int) (Range, error) {
	if len(specs) == 0 {
		return Range{}, fmt.Errorf("%w: empty layout", ErrAllocation)
	}
	for _, s := range specs {
		if !s.Valid() {
			return Range{}, fmt.Errorf("%w: invalid spec %s", ErrAllocation, s)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Range{}, ErrRegistryClosed
	}
	return b.allocateLocked(SortSpecs(specs), hint, numElements)
}

func (b *BufferArrayRegistry) allocateLocked(specs []BufferSpec, hint UsageHint, numElements int) (Range, error) {
	key := signature(specs) + "|" + strconv.FormatUint(uint64(hint), 16)
	l, err := b.layoutLocked(key, specs)
	if err != nil {
		return Range{}, err
	}
	if numElements > l.maxElements {
		return Range{}, fmt.Errorf("%w: %d elements exceed the limit of %d", ErrAllocation, numElements, l.maxElements)
	}

	idx := b.newSlotLocked()
	s := &b.slots[idx]
	s.specs = specs
	s.hint = hint
	s.key = key
	if numElements > 0 {
		if err := b.placeLocked(idx, numElements); err != nil {
			b.freeSlotLocked(idx)
			return Range{}, err
		}
	}
	return Range{reg: b, slot: idx, gen: s.gen}, nil
}

func (b *BufferArrayRegistry) layoutLocked(key string, specs []BufferSpec) (layout, error) {
	if l, ok := b.layouts[key]; ok {
		return l, nil
	}
	l, err := b.strategy.layout(specs, b.limits)
	if err != nil {
		return layout{}, err
	}
	b.layouts[key] = l
	return l, nil
}

func (b *BufferArrayRegistry) newSlotLocked() uint32 {
	if n := len(b.freeSlots); n > 0 {
		idx := b.freeSlots[n-1]
		b.freeSlots = b.freeSlots[:n-1]
		gen := b.slots[idx].gen + 1
		b.slots[idx] = slot{gen: gen, live: true}
		return idx
	}
	b.slots = append(b.slots, slot{gen: 1, live: true})
	return uint32(len(b.slots) - 1)
}

func (b *BufferArrayRegistry) freeSlotLocked(idx uint32) {
	s := &b.slots[idx]
	b.unplaceLocked(idx)
	gen := s.gen
	*s = slot{gen: gen}
	b.freeSlots = append(b.freeSlots, idx)
}

// placeLocked reserves n elements for an unplaced slot.
func (b *BufferArrayRegistry) placeLocked(idx uint32, n int) error {
	s := &b.slots[idx]
	maxRanges := b.strategy.maxRanges()
	ids := b.arrayIDsLocked()

	candidates := make([]*bufferArray, 0, len(ids))
	for _, id := range ids {
		a := b.arrays[id]
		if a.key == s.key && (maxRanges == 0 || a.ranges < maxRanges) {
			candidates = append(candidates, a)
		}
	}

	// Holes first, then growth of the newest array, then a new array.
	for _, a := range candidates {
		if off, ok := a.reserve(n, b.growth, false); ok {
			b.attachLocked(s, a, off, n)
			return nil
		}
	}
	if len(candidates) > 0 {
		a := candidates[len(candidates)-1]
		if off, ok := a.reserve(n, b.growth, true); ok {
			b.attachLocked(s, a, off, n)
			return nil
		}
	}

	b.nextArray++
	a := newBufferArray(b.nextArray, s.key, b.role, b.layouts[s.key], b.strategy.usage(s.hint))
	off, ok := a.reserve(n, b.growth, true)
	if !ok {
		return fmt.Errorf("%w: %d elements do not fit an array", ErrAllocation, n)
	}
	b.arrays[a.id] = a
	b.attachLocked(s, a, off, n)
	slogger().Debug("storm: array created",
		"role", b.role, "strategy", b.strategy.name(), "array", a.id, "capacity", a.capacity)
	return nil
}

func (b *BufferArrayRegistry) attachLocked(s *slot, a *bufferArray, off, n int) {
	s.array = a.id
	s.offset = off
	s.count = n
	a.ranges++
	a.used += n
}

// unplaceLocked returns the slot's elements to its array.
func (b *BufferArrayRegistry) unplaceLocked(idx uint32) {
	s := &b.slots[idx]
	if s.array == 0 {
		return
	}
	if a := b.arrays[s.array]; a != nil {
		a.release(s.offset, s.count)
		a.ranges--
		a.used -= s.count
	}
	s.array, s.offset, s.count = 0, 0, 0
}

func (b *BufferArrayRegistry) arrayIDsLocked() []uint32 {
	ids := maps.Keys(b.arrays)
	slices.Sort(ids)
	return ids
}

// slotLocked returns the live slot behind r.
func (b *BufferArrayRegistry) slotLocked(r Range) (*slot, bool) {
	if r.reg != b || int(r.slot) >= len(b.slots) {
		return nil, false
	}
	s := &b.slots[r.slot]
	if !s.live || s.gen != r.gen {
		return nil, false
	}
	return s, true
}

// UpdateRange changes the layout of cur to cur's specs plus added minus
// removed. If the layout and hint are unchanged cur is returned as is.
// Otherwise a new range with the same element count is allocated, channel
// data not being replaced is copied forward, pending sources move over and
// cur expires. An invalid cur allocates a fresh range sized at commit.
func (b *BufferArrayRegistry) UpdateRange(cur Range, added, removed []BufferSpec, hint UsageHint) (Range, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Range{}, ErrRegistryClosed
	}

	s, ok := b.slotLocked(cur)
	if !ok {
		if len(removed) > 0 {
			slogger().Warn("storm: removed specs ignored for a new range", "role", b.role)
		}
		if len(added) == 0 {
			return Range{}, fmt.Errorf("%w: empty layout", ErrAllocation)
		}
		for _, sp := range added {
			if !sp.Valid() {
				return Range{}, fmt.Errorf("%w: invalid spec %s", ErrAllocation, sp)
			}
		}
		return b.allocateLocked(SortSpecs(added), hint, 0)
	}

	merged := UnionSpecs(added, DifferenceSpecs(s.specs, removed))
	immutableUpdate := s.hint&UsageImmutable != 0 && len(added) > 0
	if !immutableUpdate && hint == s.hint && SpecsEqual(merged, s.specs) {
		return cur, nil
	}
	if len(merged) == 0 {
		return Range{}, fmt.Errorf("%w: update removes every channel", ErrAllocation)
	}

	next, err := b.allocateLocked(merged, hint, s.count)
	if err != nil {
		return Range{}, err
	}
	// allocateLocked may have grown b.slots.
	old := &b.slots[cur.slot]
	dst := &b.slots[next.slot]

	if old.array != 0 && dst.array != 0 {
		from, to := b.arrays[old.array], b.arrays[dst.array]
		for _, sp := range DifferenceSpecs(merged, added) {
			src, ok := findSpec(old.specs, sp.Name)
			if !ok || src != sp {
				continue
			}
			data := from.read(from.layout.columns[sp.Name], old.offset, old.count)
			to.write(to.layout.columns[sp.Name], dst.offset, data, old.count)
			perflog.Get().IncrementCounter(perflog.CopyBufferGPUToGPU)
		}
	}

	for _, src := range old.pending {
		if _, ok := findSpec(merged, src.Name()); ok {
			dst.pending = append(dst.pending, src)
		}
	}
	b.freeSlotLocked(cur.slot)

	perflog.Get().IncrementCounter(perflog.BufferArrayRangeMigrated)
	slogger().Debug("storm: range migrated",
		"role", b.role, "from", cur.String(), "to", next.String(), "specs", signature(merged))
	return next, nil
}

// resize changes the element count of r, keeping the first
// min(old, n) elements. The range stays in its array when possible and
// otherwise moves to another one; the handle stays valid either way.
func (b *BufferArrayRegistry) resize(r Range, n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.slotLocked(r)
	if !ok {
		return ErrExpiredRange
	}
	if n == s.count {
		return nil
	}
	if n == 0 {
		b.unplaceLocked(r.slot)
		return nil
	}
	if s.array == 0 {
		return b.placeLocked(r.slot, n)
	}

	a := b.arrays[s.array]
	if n < s.count {
		a.release(s.offset+n, s.count-n)
		a.used -= s.count - n
		s.count = n
		return nil
	}

	extra := n - s.count
	end := s.offset + s.count
	if a.claim(end, extra) {
		a.used += extra
		s.count = n
		return nil
	}
	// Grow in place when the range ends where the free tail starts.
	if end == a.capacity || (a.tailFree() > 0 && end == a.capacity-a.tailFree()) {
		if a.grow(end+extra, b.growth) && a.claim(end, extra) {
			a.used += extra
			s.count = n
			return nil
		}
	}

	// Relocate, keeping the old span reserved until the data is copied.
	oldArray, oldOff, oldCount := a, s.offset, s.count
	s.array, s.offset, s.count = 0, 0, 0
	if err := b.placeLocked(r.slot, n); err != nil {
		s.array, s.offset, s.count = oldArray.id, oldOff, oldCount
		return err
	}
	dst := b.arrays[s.array]
	for name, col := range oldArray.layout.columns {
		data := oldArray.read(col, oldOff, oldCount)
		dst.write(dst.layout.columns[name], s.offset, data, oldCount)
	}
	oldArray.release(oldOff, oldCount)
	oldArray.ranges--
	oldArray.used -= oldCount
	return nil
}

// addPending appends sources to the pending list of r.
func (b *BufferArrayRegistry) addPending(r Range, sources []BufferSource) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.slotLocked(r)
	if !ok {
		return false
	}
	s.pending = append(s.pending, sources...)
	return true
}

// pendingBatch is the sources of one range taken by a commit.
type pendingBatch struct {
	reg     *BufferArrayRegistry
	r       Range
	sources []BufferSource
	dropped bool
	clamped bool // resized below the source count by the layout limit
}

// takePending detaches every pending source list, in slot order.
func (b *BufferArrayRegistry) takePending() []pendingBatch {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []pendingBatch
	for i := range b.slots {
		s := &b.slots[i]
		if !s.live || len(s.pending) == 0 {
			continue
		}
		out = append(out, pendingBatch{
			reg:     b,
			r:       Range{reg: b, slot: uint32(i), gen: s.gen},
			sources: s.pending,
		})
		s.pending = nil
	}
	return out
}

// reallocate recreates the GPU buffers of arrays whose capacity changed.
func (b *BufferArrayRegistry) reallocate() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, id := range b.arrayIDsLocked() {
		a := b.arrays[id]
		if !a.realloc {
			continue
		}
		if err := a.reallocate(b.backend); err != nil {
			return err
		}
	}
	return nil
}

// flush uploads dirty data of every array.
func (b *BufferArrayRegistry) flush(threshold int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, id := range b.arrayIDsLocked() {
		a := b.arrays[id]
		if a.realloc {
			if err := a.reallocate(b.backend); err != nil {
				return err
			}
			continue
		}
		if err := a.flush(b.backend, threshold); err != nil {
			return err
		}
	}
	return nil
}

// GarbageCollect compacts every array, trimming capacity to the live
// elements, and frees arrays without ranges. It returns the number of
// element slots reclaimed; a second call without intervening changes
// returns 0.
func (b *BufferArrayRegistry) GarbageCollect() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	placed := make(map[uint32][]uint32)
	for i := range b.slots {
		s := &b.slots[i]
		if s.live && s.array != 0 {
			placed[s.array] = append(placed[s.array], uint32(i))
		}
	}

	reclaimed := 0
	for _, id := range b.arrayIDsLocked() {
		a := b.arrays[id]
		if a.ranges == 0 {
			reclaimed += a.capacity
			a.freeBuffers(b.backend)
			delete(b.arrays, id)
			slogger().Debug("storm: array freed", "role", b.role, "array", id)
			continue
		}

		idxs := placed[id]
		slices.SortFunc(idxs, func(x, y uint32) int { return b.slots[x].offset - b.slots[y].offset })
		moved := false
		next := 0
		for _, idx := range idxs {
			s := &b.slots[idx]
			if s.offset != next {
				a.move(s.offset, next, s.count)
				s.offset = next
				moved = true
			}
			next += s.count
		}

		waste := a.capacity - next
		if waste == 0 && !moved {
			continue
		}
		reclaimed += waste
		a.capacity = next
		for i := range a.buffers {
			a.buffers[i].shadow = a.buffers[i].shadow[:next*a.layout.strides[i]]
		}
		a.free = nil
		if err := a.reallocate(b.backend); err != nil {
			slogger().Warn("storm: compaction upload failed", "role", b.role, "array", id, "err", err)
		}
	}

	if reclaimed > 0 {
		perflog.Get().AddCounter(perflog.GarbageCollected, int64(reclaimed))
	}
	return reclaimed
}

// Bytes returns the GPU bytes held by the registry's arrays.
func (b *BufferArrayRegistry) Bytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := 0
	for _, a := range b.arrays {
		total += a.bytes()
	}
	return total
}

// Stats returns a snapshot of the registry.
func (b *BufferArrayRegistry) Stats() ArrayStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := ArrayStats{Role: b.role, Strategy: b.strategy.name(), Arrays: len(b.arrays)}
	for _, a := range b.arrays {
		st.Ranges += a.ranges
		st.Capacity += a.capacity
		st.Used += a.used
		st.Bytes += a.bytes()
	}
	return st
}

// Close frees every GPU buffer and expires all ranges. A backend created
// by NewBufferArrayRegistry is closed too.
func (b *BufferArrayRegistry) Close() {
	b.close()
	if b.ownsBackend {
		b.backend.Close()
	}
}

// close frees every GPU buffer and expires all ranges.
func (b *BufferArrayRegistry) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, a := range b.arrays {
		a.freeBuffers(b.backend)
	}
	b.arrays = make(map[uint32]*bufferArray)
	for i := range b.slots {
		b.slots[i].live = false
		b.slots[i].pending = nil
	}
	b.closed = true
}

// ArrayStats summarizes the arrays of one BufferArrayRegistry.
type ArrayStats struct {
	Role     string
	Strategy string
	Arrays   int
	Ranges   int
	// Capacity and Used count elements.
	Capacity int
	Used     int
	Bytes    int
}

// String returns a human-readable summary.
func (s ArrayStats) String() string {
	return fmt.Sprintf("%s/%s[%d arrays, %d ranges, %d/%d elements, %d bytes]",
		s.Strategy, s.Role, s.Arrays, s.Ranges, s.Used, s.Capacity, s.Bytes)
}
