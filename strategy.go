package storm

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/storm/perflog"
)

// UsageHint carries caller intent for a range. Ranges with different hints
// never share an array.
type UsageHint uint32

const (
	// UsageVertex marks per-vertex attribute data.
	UsageVertex UsageHint = 1 << iota
	// UsageIndex marks topology indices.
	UsageIndex
	// UsageUniform marks data bound as a uniform buffer.
	UsageUniform
	// UsageStorage marks data bound as a storage buffer.
	UsageStorage
	// UsageIndirect marks indirect draw arguments.
	UsageIndirect
	// UsageImmutable marks data that is written once. Updating the
	// channels of an immutable range always migrates it.
	UsageImmutable
	// UsageSizeVarying marks data whose element count changes often.
	UsageSizeVarying
)

// bufferUsage maps hint bits onto GPU buffer usage flags.
func (h UsageHint) bufferUsage() gputypes.BufferUsage {
	var u gputypes.BufferUsage
	if h&UsageVertex != 0 {
		u |= gputypes.BufferUsageVertex
	}
	if h&UsageIndex != 0 {
		u |= gputypes.BufferUsageIndex
	}
	if h&UsageUniform != 0 {
		u |= gputypes.BufferUsageUniform
	}
	if h&UsageStorage != 0 {
		u |= gputypes.BufferUsageStorage
	}
	if h&UsageIndirect != 0 {
		u |= gputypes.BufferUsageIndirect
	}
	return u
}

// Aggregation strategy names.
const (
	StrategyNonUniform          = "nonUniform"
	StrategyNonUniformImmutable = "nonUniformImmutable"
	StrategyUniform             = "uniform"
	StrategyShaderStorage       = "shaderStorage"
	StrategySingleBuffer        = "singleBuffer"
)

// strategy decides how a spec set is laid out in GPU buffers.
type strategy interface {
	// name is the registered strategy name.
	name() string
	// allocationKey is the resource allocation key the strategy reports to.
	allocationKey() string
	layout(specs []BufferSpec, limits gputypes.Limits) (layout, error)
	usage(hint UsageHint) gputypes.BufferUsage
	// maxRanges bounds the ranges per array, 0 for unlimited.
	maxRanges() int
}

var strategies = gpucontext.NewRegistry[strategy]()

func init() {
	strategies.Register(StrategyNonUniform, func() strategy {
		return stripedStrategy{id: StrategyNonUniform, key: perflog.NonUniformSize}
	})
	strategies.Register(StrategyNonUniformImmutable, func() strategy {
		return stripedStrategy{id: StrategyNonUniformImmutable, key: perflog.NonUniformImmutableSize, immutable: true}
	})
	strategies.Register(StrategySingleBuffer, func() strategy {
		return stripedStrategy{id: StrategySingleBuffer, key: perflog.SingleBufferSize, single: true}
	})
	strategies.Register(StrategyUniform, func() strategy {
		return interleavedStrategy{id: StrategyUniform, key: perflog.UBOSize, uniform: true}
	})
	strategies.Register(StrategyShaderStorage, func() strategy {
		return interleavedStrategy{id: StrategyShaderStorage, key: perflog.SSBOSize}
	})
}

func lookupStrategy(name string) (strategy, error) {
	if !strategies.Has(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return strategies.Get(name), nil
}

// stripedStrategy keeps one buffer per channel.
type stripedStrategy struct {
	id        string
	key       string
	immutable bool
	single    bool
}

func (s stripedStrategy) name() string          { return s.id }
func (s stripedStrategy) allocationKey() string { return s.key }

func (s stripedStrategy) maxRanges() int {
	if s.single {
		return 1
	}
	return 0
}

func (s stripedStrategy) layout(specs []BufferSpec, limits gputypes.Limits) (layout, error) {
	return stripedLayout(specs, limits), nil
}

func (s stripedStrategy) usage(hint UsageHint) gputypes.BufferUsage {
	u := gputypes.BufferUsageCopyDst | hint.bufferUsage()
	if !s.immutable {
		u |= gputypes.BufferUsageCopySrc
	}
	if hint&(UsageIndex|UsageUniform|UsageStorage|UsageIndirect) == 0 {
		u |= gputypes.BufferUsageVertex
	}
	if s.single {
		u |= gputypes.BufferUsageStorage
	}
	return u
}

// interleavedStrategy packs all channels of an element into one struct.
type interleavedStrategy struct {
	id      string
	key     string
	uniform bool
}

func (s interleavedStrategy) name() string          { return s.id }
func (s interleavedStrategy) allocationKey() string { return s.key }
func (s interleavedStrategy) maxRanges() int        { return 0 }

func (s interleavedStrategy) layout(specs []BufferSpec, limits gputypes.Limits) (layout, error) {
	if s.uniform {
		return interleavedLayout(specs, limits.MaxUniformBufferBindingSize, limits.MinUniformBufferOffsetAlignment)
	}
	return interleavedLayout(specs, limits.MaxStorageBufferBindingSize, 0)
}

func (s interleavedStrategy) usage(hint UsageHint) gputypes.BufferUsage {
	u := gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc | hint.bufferUsage()
	if s.uniform {
		return u | gputypes.BufferUsageUniform
	}
	return u | gputypes.BufferUsageStorage
}
