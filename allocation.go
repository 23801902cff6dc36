package storm

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/gogpu/storm/internal/instance"
	"github.com/gogpu/storm/perflog"
)

// allocationKeys lists the per-strategy keys GetResourceAllocation always
// reports.
var allocationKeys = []string{
	perflog.NonUniformSize,
	perflog.NonUniformImmutableSize,
	perflog.UBOSize,
	perflog.SSBOSize,
	perflog.SingleBufferSize,
}

// GetResourceAllocation returns the GPU bytes in use: one key per
// aggregation strategy, one per role and gpuMemoryUsed for the total.
// The per-strategy keys and the total are mirrored to perflog counters.
//
// The map is a snapshot; callers that print it sort the keys.
func (r *ResourceRegistry) GetResourceAllocation() map[string]int {
	r.mustLive()
	result := make(map[string]int, len(allocationKeys)+1)
	for _, k := range allocationKeys {
		result[k] = 0
	}

	total := 0
	if regs, err := r.snapshot(); err == nil {
		for _, b := range regs {
			n := b.Bytes()
			result[b.strategy.allocationKey()] += n
			result[b.role] += n
			total += n
		}
	}
	result[perflog.GPUMemoryUsed] = total

	pl := perflog.Get()
	for _, k := range allocationKeys {
		pl.SetCounter(k, int64(result[k]))
	}
	pl.SetCounter(perflog.GPUMemoryUsed, int64(total))
	return result
}

// FormatAllocation renders an allocation map one "key: bytes" line per
// entry in key order.
func FormatAllocation(alloc map[string]int) string {
	keys := maps.Keys(alloc)
	slices.Sort(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %d\n", k, alloc[k])
	}
	return sb.String()
}

// RangeInstance is a shared range registered under a content hash.
// The first requester fills it with SetValue; later requesters reuse the
// stored range.
type RangeInstance struct {
	h *instance.Handle[Range]
}

// IsFirstInstance reports whether this request created the instance.
func (i RangeInstance) IsFirstInstance() bool { return i.h.IsFirstInstance() }

// Value returns the shared range.
func (i RangeInstance) Value() Range { return i.h.Value() }

// SetValue stores the shared range.
func (i RangeInstance) SetValue(r Range) { i.h.SetValue(r) }

// Key returns the hash the instance was registered under.
func (i RangeInstance) Key() uint64 { return i.h.Key() }

// Release drops this holder's reference. The instance and its range are
// reclaimed by the next GarbageCollect once every holder has released it.
func (i RangeInstance) Release() { i.h.Release() }

// RegisterPrimvarRange returns the shared primvar range instance for id.
func (r *ResourceRegistry) RegisterPrimvarRange(id uint64) RangeInstance {
	r.mustLive()
	return register(r.primvarInstances, id, perflog.InstPrimvarRange)
}

// RegisterTopologyRange returns the shared topology range instance for id.
func (r *ResourceRegistry) RegisterTopologyRange(id uint64) RangeInstance {
	r.mustLive()
	return register(r.topologyInstances, id, perflog.InstTopologyRange)
}

func register(reg *instance.Registry[Range], id uint64, counter string) RangeInstance {
	h := reg.Acquire(id)
	if h.IsFirstInstance() {
		perflog.Get().IncrementCounter(counter)
	}
	return RangeInstance{h: h}
}

// InstanceStats summarizes one instance registry.
type InstanceStats = instance.Stats

// InstanceStats returns the primvar and topology instance registry stats.
func (r *ResourceRegistry) InstanceStats() (primvar, topology InstanceStats) {
	r.mustLive()
	return r.primvarInstances.Stats(), r.topologyInstances.Stats()
}

// ComputeSourcesHash hashes the name, type and data of resolved sources,
// for use as an instance id.
func ComputeSourcesHash(sources []BufferSource) uint64 {
	var h uint64
	var hdr [8]byte
	for _, s := range sources {
		if s == nil {
			continue
		}
		h = instance.Combine(h, instance.HashString(s.Name()))
		t := s.Type()
		hdr[0] = byte(t.Component)
		binary.LittleEndian.PutUint16(hdr[1:], uint16(t.Arity))
		binary.LittleEndian.PutUint32(hdr[3:], uint32(t.Count))
		hdr[7] = 0
		h = instance.Combine(h, instance.HashBytes(hdr[:]))
		h = instance.Combine(h, instance.HashBytes(s.Data()))
	}
	return h
}
