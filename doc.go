// Package storm aggregates per-primitive GPU data into shared buffers.
//
// # Overview
//
// Renderers draw many small primitives, each with a handful of named
// channels (points, normals, widths, indices). storm packs those channels
// into a few large GPU buffers, hands each primitive a Range inside one of
// them, and uploads staged CPU data in one batched Commit per frame.
//
// # Quick Start
//
//	reg, err := storm.NewResourceRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer reg.Close()
//
//	specs := []storm.BufferSpec{storm.NewBufferSpec("points", storm.Float32, 3)}
//	r, err := reg.AllocateNonUniformBufferArrayRange("primvar", specs, storm.UsageVertex)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	reg.AddSources(r, storm.NewSource("points", []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}, 3))
//	reg.Commit()
//
// # Architecture
//
//   - BufferSpec: one named, typed channel
//   - BufferSource: CPU data staged for one channel
//   - BufferArrayRegistry: the arrays of one role and their ranges
//   - Range: a reseatable handle to one primitive's elements
//   - ResourceRegistry: per-strategy registries, the commit pipeline and
//     resource accounting
//
// GPU buffers are allocated through a [backend.Backend]. Recoverable
// problems during Commit are posted to the [diag] channel and never abort
// the frame. Counters are reported to [perflog].
//
// # Lifetimes
//
// A Range stays valid across in-place resizes and compaction. A layout
// change (UpdateNonUniformBufferArrayRange and friends) returns a new Range;
// the old one expires and must not be used again. Freed space is reclaimed
// only by GarbageCollect, which callers run between frames.
package storm

// Version information.
const (
	// Version is the current version of the library.
	Version = "0.1.0"
)
