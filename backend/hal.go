package backend

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/storm/internal/gpu"
)

// HAL is a Backend over a gogpu/wgpu HAL device and queue.
type HAL struct {
	mu      sync.Mutex
	name    string
	mem     *gpu.MemoryManager
	queue   hal.Queue
	buffers map[Handle]*gpu.Buffer
	next    Handle

	uploads       uint64
	uploadedBytes uint64
	closed        bool
}

// HALOption configures a HAL backend.
type HALOption func(*halOptions)

type halOptions struct {
	name        string
	maxMemoryMB int
}

func defaultHALOptions() halOptions {
	return halOptions{
		name:        NameHAL,
		maxMemoryMB: gpu.DefaultMaxMemoryMB,
	}
}

// WithMemoryBudget bounds the total size of live buffers in megabytes.
func WithMemoryBudget(megabytes int) HALOption {
	return func(o *halOptions) {
		o.maxMemoryMB = megabytes
	}
}

// WithName overrides the name reported by Name.
func WithName(name string) HALOption {
	return func(o *halOptions) {
		o.name = name
	}
}

// NewHAL creates a backend allocating on device and uploading through queue.
func NewHAL(device hal.Device, queue hal.Queue, opts ...HALOption) (*HAL, error) {
	if device == nil {
		return nil, fmt.Errorf("%w: nil hal.Device", ErrBackendNotAvailable)
	}
	if queue == nil {
		return nil, fmt.Errorf("%w: nil hal.Queue", ErrBackendNotAvailable)
	}

	o := defaultHALOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &HAL{
		name:    o.name,
		mem:     gpu.NewMemoryManager(device, gpu.MemoryManagerConfig{MaxMemoryMB: o.maxMemoryMB}),
		queue:   queue,
		buffers: make(map[Handle]*gpu.Buffer),
	}, nil
}

// NewHALFromProvider creates a backend on the device shared by provider.
// The provider must implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue.
func NewHALFromProvider(provider gpucontext.DeviceProvider, opts ...HALOption) (*HAL, error) {
	device, queue, err := halFromProvider(provider)
	if err != nil {
		return nil, err
	}
	info := provider.AdapterInfo()
	slogger().Info("backend: using shared HAL device", "adapter", info.Name, "type", info.Type)
	return NewHAL(device, queue, opts...)
}

func halFromProvider(provider gpucontext.DeviceProvider) (hal.Device, hal.Queue, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	if provider == nil {
		return nil, nil, fmt.Errorf("%w: nil device provider", ErrBackendNotAvailable)
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, nil, fmt.Errorf("%w: provider does not expose HAL types", ErrBackendNotAvailable)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", ErrBackendNotAvailable)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", ErrBackendNotAvailable)
	}
	return device, queue, nil
}

// Name returns the backend identifier.
func (b *HAL) Name() string { return b.name }

// AllocateBuffer creates a HAL buffer within the memory budget.
func (b *HAL) AllocateBuffer(desc BufferDescriptor) (Handle, error) {
	if desc.Size == 0 {
		return 0, fmt.Errorf("%w: %q has size 0", ErrInvalidSize, desc.Label)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrBackendClosed
	}
	buf, err := b.mem.AllocBuffer(gpu.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return 0, fmt.Errorf("backend: allocate %q: %w", desc.Label, err)
	}
	b.next++
	b.buffers[b.next] = buf
	return b.next, nil
}

// Upload writes data through the queue.
func (b *HAL) Upload(h Handle, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBackendClosed
	}
	buf, ok := b.buffers[h]
	if !ok {
		return fmt.Errorf("%w: %v", ErrInvalidHandle, h)
	}
	if err := buf.Write(b.queue, offset, data); err != nil {
		if errors.Is(err, gpu.ErrWriteOutOfRange) {
			return fmt.Errorf("%w: %w", ErrOutOfRange, err)
		}
		return err
	}
	if len(data) > 0 {
		b.uploads++
		b.uploadedBytes += uint64(len(data))
	}
	return nil
}

// ReadBuffer maps the buffer and copies [offset, offset+size) out.
// Only host-visible buffers can be read.
func (b *HAL) ReadBuffer(h Handle, offset, size uint64) ([]byte, error) {
	b.mu.Lock()
	buf, ok := b.buffers[h]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHandle, h)
	}

	data, err := buf.Read(offset, size)
	if errors.Is(err, gpu.ErrReadOutOfRange) {
		return nil, fmt.Errorf("%w: %w", ErrOutOfRange, err)
	}
	return data, err
}

// Free destroys the buffer.
func (b *HAL) Free(h Handle) {
	b.mu.Lock()
	buf, ok := b.buffers[h]
	delete(b.buffers, h)
	closed := b.closed
	b.mu.Unlock()

	if !ok || closed {
		return
	}
	if err := b.mem.FreeBuffer(buf); err != nil {
		slogger().Warn("backend: free buffer", "handle", h, "error", err)
	}
}

// Stats reports current usage.
func (b *HAL) Stats() Stats {
	mem := b.mem.Stats()

	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Buffers:       mem.BufferCount,
		Bytes:         mem.UsedBytes,
		PeakBytes:     mem.PeakBytes,
		Uploads:       b.uploads,
		UploadedBytes: b.uploadedBytes,
	}
}

// MemoryStats returns the underlying memory manager statistics.
func (b *HAL) MemoryStats() gpu.MemoryStats {
	return b.mem.Stats()
}

// Close destroys every buffer.
func (b *HAL) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.mem.Close()
	b.buffers = nil
	b.closed = true
}
