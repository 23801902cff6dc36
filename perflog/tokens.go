package perflog

// Counter names used by storm. Values are stable strings so that reports
// and tests can refer to them by name.
const (
	// Buffer arrays and ranges.
	BufferArrayRangeMigrated         = "bufferArrayRangeMigrated"
	BufferArrayRangeContainerResized = "bufferArrayRangeContainerResized"
	GarbageCollected                 = "garbageCollected"
	VBORelocated                     = "vboRelocated"
	CopyBufferCPUToGPU               = "copyBufferCpuToGpu"
	CopyBufferGPUToGPU               = "copyBufferGpuToGpu"
	BufferSourcesResolved            = "bufferSourcesResolved"
	ComputationsCommitted            = "computationsCommitted"

	// Resource accounting gauges.
	GPUMemoryUsed           = "gpuMemoryUsed"
	NonUniformSize          = "nonUniformSize"
	NonUniformImmutableSize = "nonUniformImmutableSize"
	UBOSize                 = "uboSize"
	SSBOSize                = "ssboSize"
	SingleBufferSize        = "singleBufferSize"

	// Instance registries.
	InstPrimvarRange  = "instPrimvarRange"
	InstTopologyRange = "instTopologyRange"

	// Draw items cache.
	DrawItemsCacheHit   = "drawItemsCacheHit"
	DrawItemsCacheMiss  = "drawItemsCacheMiss"
	DrawItemsCacheStale = "drawItemsCacheStale"
	DrawItemsFetched    = "drawItemsFetched"
)
