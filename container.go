package storm

import "github.com/gogpu/storm/perflog"

// RangeContainer holds the ranges of one drawable by slot index, such as
// topology, constant, vertex and instance primvars. It starts with a fixed
// size and grows when a slot past the end is set.
type RangeContainer struct {
	ranges []Range
}

// NewRangeContainer returns a container with size empty slots.
func NewRangeContainer(size int) *RangeContainer {
	return &RangeContainer{ranges: make([]Range, size)}
}

// Set stores r at index. Setting past the end grows the container once to
// fit index and counts the resize.
func (c *RangeContainer) Set(index int, r Range) {
	if index < 0 {
		slogger().Warn("storm: negative range container index", "index", index)
		return
	}
	if index >= len(c.ranges) {
		perflog.Get().IncrementCounter(perflog.BufferArrayRangeContainerResized)
		grown := make([]Range, index+1)
		copy(grown, c.ranges)
		c.ranges = grown
	}
	c.ranges[index] = r
}

// Get returns the range at index, or the zero Range when index is out of
// bounds.
func (c *RangeContainer) Get(index int) Range {
	if index < 0 || index >= len(c.ranges) {
		return Range{}
	}
	return c.ranges[index]
}

// Len returns the number of slots.
func (c *RangeContainer) Len() int { return len(c.ranges) }

// Ranges returns the valid ranges in slot order.
func (c *RangeContainer) Ranges() []Range {
	out := make([]Range, 0, len(c.ranges))
	for _, r := range c.ranges {
		if r.IsValid() {
			out = append(out, r)
		}
	}
	return out
}
