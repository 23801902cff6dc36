package storm

import (
	"bytes"
	"fmt"

	"github.com/gogpu/storm/diag"
	"github.com/gogpu/storm/perflog"
)

// Commit uploads every staged source. Sources added before Commit starts
// are visible when it returns; sources added meanwhile wait for the next
// commit.
//
// Problems local to one source (type mismatch, oversize or empty data,
// unknown channels) are posted to the diag channel and never stop the
// commit. Commit returns an error only when the registry is closed.
func (r *ResourceRegistry) Commit() error {
	r.mustLive()
	r.commitMu.Lock()
	defer r.commitMu.Unlock()

	regs, err := r.snapshot()
	if err != nil {
		return err
	}

	var batches []*pendingBatch
	for _, b := range regs {
		for _, p := range b.takePending() {
			batches = append(batches, &p)
		}
	}

	r.resolveSources(batches)
	r.resizeRanges(batches)
	for _, b := range regs {
		if err := b.reallocate(); err != nil {
			diag.Post(fmt.Errorf("%s: %w", b.role, err))
		}
	}
	r.upload(regs, batches)
	return nil
}

// resolveSources resolves every source, retrying deferred ones until no
// progress is made or the iteration bound is hit. Sources that never
// resolve are removed from their batch.
func (r *ResourceRegistry) resolveSources(batches []*pendingBatch) {
	var pending []BufferSource
	for _, p := range batches {
		pending = append(pending, p.sources...)
	}

	resolved := perflog.Get()
	for iter := 0; iter < r.opts.maxResolveIterations && len(pending) > 0; iter++ {
		next := pending[:0]
		for _, s := range pending {
			if s.Resolve() {
				resolved.IncrementCounter(perflog.BufferSourcesResolved)
				continue
			}
			next = append(next, s)
		}
		progress := len(next) < len(pending)
		pending = next
		if !progress {
			break
		}
	}

	for _, s := range pending {
		diag.Postf(ErrUnresolvedSource, "%s: gave up after %d iterations", s.Name(), r.opts.maxResolveIterations)
	}
	if len(pending) == 0 {
		return
	}
	for _, p := range batches {
		kept := p.sources[:0]
		for _, s := range p.sources {
			if s.IsResolved() {
				kept = append(kept, s)
			}
		}
		p.sources = kept
	}
}

// resizeRanges sizes each range to its first source. A drop policy channel
// with unaddressed elements empties the range instead.
func (r *ResourceRegistry) resizeRanges(batches []*pendingBatch) {
	for _, p := range batches {
		if len(p.sources) == 0 {
			continue
		}
		n := p.sources[0].NumElements()
		for _, s := range p.sources {
			a, ok := s.(Addresser)
			if !ok {
				continue
			}
			missing := len(a.Unaddressed())
			if missing > 0 && r.policy(s.Name()).Policy == OutOfRangeDrop {
				diag.Postf(ErrIndexOutOfRange, "%s: %d of %d elements unaddressed, range %s dropped",
					s.Name(), missing, s.NumElements(), p.r)
				n = 0
				p.dropped = true
				break
			}
		}

		if limit, ok := p.reg.maxElements(p.r); ok && n > limit {
			diag.Postf(ErrOversize, "range %s: %d elements exceed the layout limit of %d, clamped",
				p.r, n, limit)
			n = limit
			p.clamped = true
		}
		if err := p.reg.resize(p.r, n); err != nil {
			diag.Post(fmt.Errorf("resize %s to %d: %w", p.r, n, err))
		}
	}
}

// upload writes resolved data into the array shadows and flushes the
// dirty bytes to the backend. Array registries are independent and run as
// separate jobs; the batches of one registry keep their order.
func (r *ResourceRegistry) upload(regs []*BufferArrayRegistry, batches []*pendingBatch) {
	byReg := make(map[*BufferArrayRegistry][]*pendingBatch, len(regs))
	for _, p := range batches {
		byReg[p.reg] = append(byReg[p.reg], p)
	}

	jobs := make([]func(), 0, len(regs))
	for _, b := range regs {
		own := byReg[b]
		jobs = append(jobs, func() {
			for _, p := range own {
				if p.dropped {
					continue
				}
				for _, s := range p.sources {
					b.copySource(p.r, s, r.policy(s.Name()), p.clamped)
				}
			}
			if err := b.flush(r.opts.stagingThreshold); err != nil {
				diag.Post(fmt.Errorf("%s: upload: %w", b.role, err))
			}
		})
	}
	r.run(jobs)
}

func (r *ResourceRegistry) policy(channel string) ChannelPolicy {
	if p, ok := r.opts.policies[channel]; ok {
		return p
	}
	return ChannelPolicy{Policy: OutOfRangeFallback}
}

// maxElements returns the element limit of rg's layout. ok is false for
// an expired range.
func (b *BufferArrayRegistry) maxElements(rg Range) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.slotLocked(rg)
	if !ok {
		return 0, false
	}
	return b.layouts[s.key].maxElements, true
}

// copySource copies one resolved source into rg. Elements the source does
// not cover, and unaddressed elements of indexed data, get the channel
// fallback. A clamped range already reported its truncation.
func (b *BufferArrayRegistry) copySource(rg Range, src BufferSource, policy ChannelPolicy, clamped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.slotLocked(rg)
	if !ok {
		return
	}
	spec, ok := findSpec(s.specs, src.Name())
	if !ok {
		diag.Postf(ErrUnknownChannel, "range %s has no channel %q", rg, src.Name())
		return
	}
	if src.Type() != spec.Type {
		diag.Postf(ErrTypeMismatch, "%s: %s source for a %s channel", src.Name(), src.Type(), spec.Type)
		return
	}
	if s.array == 0 || s.count == 0 {
		return
	}

	a := b.arrays[s.array]
	col := a.layout.columns[spec.Name]
	size := spec.ElementSize()
	data := src.Data()
	n := src.NumElements()
	if avail := len(data) / size; n > avail {
		n = avail
	}
	switch {
	case n > s.count:
		if !clamped {
			diag.Postf(ErrOversize, "%s: copying %d of %d elements into range %s", src.Name(), s.count, n, rg)
		}
		n = s.count
	case n == 0:
		diag.Postf(ErrEmptySource, "%s: no data for %d elements, using fallback", src.Name(), s.count)
	}

	a.write(col, s.offset, data, n)

	fallback := fillElement(spec.Type, policy.Fallback)
	if n < s.count {
		a.write(col, s.offset+n, bytes.Repeat(fallback, s.count-n), s.count-n)
	}
	if ad, ok := src.(Addresser); ok {
		for _, i := range ad.Unaddressed() {
			if i < n {
				a.write(col, s.offset+i, fallback, 1)
			}
		}
	}
	perflog.Get().IncrementCounter(perflog.CopyBufferCPUToGPU)
}
