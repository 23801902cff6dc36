package storm

import (
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/gogpu/storm/backend"
	"github.com/gogpu/storm/internal/instance"
	"github.com/gogpu/storm/internal/parallel"
)

// ResourceRegistry owns the buffer array registries of every aggregation
// strategy and role, schedules staged sources onto ranges and uploads them
// in Commit.
//
// Producers call AddSources from any goroutine; Commit and GarbageCollect
// are serialized with each other and are expected to run once per frame
// after producers finish.
type ResourceRegistry struct {
	opts        options
	backend     backend.Backend
	ownsBackend bool

	mu         sync.Mutex
	registries map[string]*BufferArrayRegistry // by strategy + "/" + role
	closed     bool

	// commitMu serializes Commit and GarbageCollect.
	commitMu sync.Mutex
	// pool runs the per-registry upload jobs of Commit, nil when
	// committing on the calling goroutine.
	pool *parallel.Pool

	primvarInstances  *instance.Registry[Range]
	topologyInstances *instance.Registry[Range]
}

// NewResourceRegistry creates a registry. Without WithBackend or
// WithBackendName the highest priority registered backend is used.
func NewResourceRegistry(opts ...Option) (*ResourceRegistry, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	be, owned, err := o.resolveBackend()
	if err != nil {
		return nil, err
	}

	r := &ResourceRegistry{
		opts:              o,
		backend:           be,
		ownsBackend:       owned,
		registries:        make(map[string]*BufferArrayRegistry),
		primvarInstances:  instance.New[Range](),
		topologyInstances: instance.New[Range](),
	}
	if o.workers != 1 {
		r.pool = parallel.New(o.workers)
	}
	slogger().Info("storm: resource registry created", "backend", be.Name(), "workers", r.workers())
	return r, nil
}

func (r *ResourceRegistry) mustLive() {
	if r == nil {
		panic("storm: nil ResourceRegistry")
	}
}

// workers returns the number of goroutines Commit uploads on.
func (r *ResourceRegistry) workers() int {
	if r.pool == nil {
		return 1
	}
	return r.pool.Workers()
}

// run executes jobs on the pool, or in order when there is none.
func (r *ResourceRegistry) run(jobs []func()) {
	if r.pool == nil {
		for _, job := range jobs {
			job()
		}
		return
	}
	r.pool.Run(jobs)
}

// Backend returns the backend buffers are allocated from.
func (r *ResourceRegistry) Backend() backend.Backend {
	r.mustLive()
	return r.backend
}

// registryFor returns the array registry for strategy and role, creating
// it on first use.
func (r *ResourceRegistry) registryFor(strategyName, role string) (*BufferArrayRegistry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}

	key := strategyName + "/" + role
	if b, ok := r.registries[key]; ok {
		return b, nil
	}
	b, err := newBufferArrayRegistry(role, strategyName, r.backend, r.opts)
	if err != nil {
		return nil, err
	}
	r.registries[key] = b
	return b, nil
}

// snapshot returns the array registries in key order.
func (r *ResourceRegistry) snapshot() ([]*BufferArrayRegistry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	keys := maps.Keys(r.registries)
	slices.Sort(keys)
	out := make([]*BufferArrayRegistry, len(keys))
	for i, k := range keys {
		out[i] = r.registries[k]
	}
	return out, nil
}

func (r *ResourceRegistry) allocate(strategyName, role string, specs []BufferSpec, hint UsageHint) (Range, error) {
	r.mustLive()
	b, err := r.registryFor(strategyName, role)
	if err != nil {
		return Range{}, err
	}
	return b.allocate(specs, hint, 0)
}

func (r *ResourceRegistry) update(strategyName, role string, cur Range, added, removed []BufferSpec, hint UsageHint) (Range, error) {
	r.mustLive()
	b, err := r.registryFor(strategyName, role)
	if err != nil {
		return Range{}, err
	}
	if cur.reg != nil && cur.reg != b {
		// A range from another strategy or role starts over here.
		slogger().Warn("storm: range updated through a different registry",
			"range", cur.String(), "strategy", strategyName, "role", role)
		cur = Range{}
	}
	return b.UpdateRange(cur, added, removed, hint)
}

// AllocateNonUniformBufferArrayRange allocates a range with one buffer
// per channel. The element count is set by the first committed source.
func (r *ResourceRegistry) AllocateNonUniformBufferArrayRange(role string, specs []BufferSpec, hint UsageHint) (Range, error) {
	return r.allocate(StrategyNonUniform, role, specs, hint)
}

// AllocateNonUniformImmutableBufferArrayRange is like
// AllocateNonUniformBufferArrayRange for data written once.
func (r *ResourceRegistry) AllocateNonUniformImmutableBufferArrayRange(role string, specs []BufferSpec, hint UsageHint) (Range, error) {
	return r.allocate(StrategyNonUniformImmutable, role, specs, hint|UsageImmutable)
}

// AllocateUniformBufferArrayRange allocates a range of interleaved
// elements bound as a uniform buffer.
func (r *ResourceRegistry) AllocateUniformBufferArrayRange(role string, specs []BufferSpec, hint UsageHint) (Range, error) {
	return r.allocate(StrategyUniform, role, specs, hint)
}

// AllocateShaderStorageBufferArrayRange allocates a range of interleaved
// elements bound as a storage buffer.
func (r *ResourceRegistry) AllocateShaderStorageBufferArrayRange(role string, specs []BufferSpec, hint UsageHint) (Range, error) {
	return r.allocate(StrategyShaderStorage, role, specs, hint)
}

// AllocateSingleBufferArrayRange allocates a range that has its array to
// itself.
func (r *ResourceRegistry) AllocateSingleBufferArrayRange(role string, specs []BufferSpec, hint UsageHint) (Range, error) {
	return r.allocate(StrategySingleBuffer, role, specs, hint)
}

// UpdateNonUniformBufferArrayRange changes the channels of cur. It returns
// cur when nothing changes and a migrated range otherwise; see
// BufferArrayRegistry.UpdateRange.
func (r *ResourceRegistry) UpdateNonUniformBufferArrayRange(role string, cur Range, added, removed []BufferSpec, hint UsageHint) (Range, error) {
	return r.update(StrategyNonUniform, role, cur, added, removed, hint)
}

// UpdateNonUniformImmutableBufferArrayRange changes the channels of an
// immutable range. Any added channel migrates it.
func (r *ResourceRegistry) UpdateNonUniformImmutableBufferArrayRange(role string, cur Range, added, removed []BufferSpec, hint UsageHint) (Range, error) {
	return r.update(StrategyNonUniformImmutable, role, cur, added, removed, hint|UsageImmutable)
}

// UpdateUniformBufferArrayRange changes the channels of a uniform range.
func (r *ResourceRegistry) UpdateUniformBufferArrayRange(role string, cur Range, added, removed []BufferSpec, hint UsageHint) (Range, error) {
	return r.update(StrategyUniform, role, cur, added, removed, hint)
}

// UpdateShaderStorageBufferArrayRange changes the channels of a shader
// storage range.
func (r *ResourceRegistry) UpdateShaderStorageBufferArrayRange(role string, cur Range, added, removed []BufferSpec, hint UsageHint) (Range, error) {
	return r.update(StrategyShaderStorage, role, cur, added, removed, hint)
}

// AddSources stages sources for rg. Nothing is uploaded until Commit.
// An expired range or an empty list is logged and ignored; invalid
// sources are dropped individually.
func (r *ResourceRegistry) AddSources(rg Range, sources ...BufferSource) {
	r.mustLive()
	if len(sources) == 0 {
		slogger().Warn("storm: sources list is empty", "range", rg.String())
		return
	}
	if rg.reg == nil || !rg.IsValid() {
		slogger().Warn("storm: range is null or expired", "range", rg.String())
		return
	}

	valid := make([]BufferSource, 0, len(sources))
	for _, s := range sources {
		if s == nil || !s.IsValid() {
			name := "<nil>"
			if s != nil {
				name = s.Name()
			}
			slogger().Warn("storm: invalid buffer source dropped", "source", name, "range", rg.String())
			continue
		}
		valid = append(valid, s)
	}
	if len(valid) == 0 {
		return
	}
	if !rg.reg.addPending(rg, valid) {
		slogger().Warn("storm: range is null or expired", "range", rg.String())
	}
}

// AddSource stages one source for rg.
func (r *ResourceRegistry) AddSource(rg Range, source BufferSource) {
	r.AddSources(rg, source)
}

// GarbageCollect drops unused instances, then compacts every array
// registry. It returns the number of element slots reclaimed.
func (r *ResourceRegistry) GarbageCollect() int {
	r.mustLive()
	r.commitMu.Lock()
	defer r.commitMu.Unlock()

	regs, err := r.snapshot()
	if err != nil {
		return 0
	}

	release := func(rg Range) { rg.Release() }
	expired := func(rg Range) bool { return rg.reg != nil && !rg.IsValid() }
	r.primvarInstances.GarbageCollect(expired, release)
	r.topologyInstances.GarbageCollect(expired, release)

	reclaimed := 0
	for _, b := range regs {
		reclaimed += b.GarbageCollect()
	}
	if reclaimed > 0 {
		slogger().Debug("storm: garbage collected", "elements", reclaimed)
	}
	return reclaimed
}

// Stats returns a summary of every array registry in key order.
func (r *ResourceRegistry) Stats() []ArrayStats {
	r.mustLive()
	regs, err := r.snapshot()
	if err != nil {
		return nil
	}
	out := make([]ArrayStats, len(regs))
	for i, b := range regs {
		out[i] = b.Stats()
	}
	return out
}

// Close frees every GPU buffer and expires all ranges. A backend the
// registry created is closed too. Close is idempotent.
func (r *ResourceRegistry) Close() {
	r.mustLive()
	r.commitMu.Lock()
	defer r.commitMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	regs := maps.Values(r.registries)
	r.mu.Unlock()

	if r.pool != nil {
		r.pool.Close()
	}
	for _, b := range regs {
		b.close()
	}
	if r.ownsBackend {
		r.backend.Close()
	}
	slogger().Info("storm: resource registry closed")
}
