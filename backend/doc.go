// Package backend provides the buffer-allocation backends storm uploads to.
//
// A Backend is deliberately narrow: it allocates opaque buffers, uploads
// bytes into them and frees them. Aggregation, layout and bookkeeping live
// in the storm package; a backend never sees ranges or channels.
//
// # Backend Registration
//
// Backends are registered by name and selected at runtime. The in-memory
// software backend and the HAL backend over the wgpu noop device are
// registered on import. A real GPU device is made available with
// RegisterDevice:
//
//	if err := backend.RegisterDevice(provider); err != nil {
//		log.Fatal(err)
//	}
//	b := backend.Default() // the HAL backend on provider's device
//
// # Available Backends
//
//   - "hal": gogpu/wgpu HAL device supplied through RegisterDevice
//   - "software": CPU memory, always available
//   - "noop": HAL backend over the wgpu noop device, for tests and tools
package backend
