// Package gpu wraps gogpu/wgpu HAL buffers for the storm HAL backend.
package gpu

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Buffer errors.
var (
	// ErrBufferDestroyed is returned when operating on a destroyed buffer.
	ErrBufferDestroyed = errors.New("gpu: buffer has been destroyed")

	// ErrNilDevice is returned when creating a buffer without a device.
	ErrNilDevice = errors.New("gpu: device is nil")

	// ErrNilQueue is returned when writing without a queue.
	ErrNilQueue = errors.New("gpu: queue is nil")

	// ErrInvalidBufferSize is returned when buffer size is invalid.
	ErrInvalidBufferSize = errors.New("gpu: invalid buffer size")

	// ErrWriteOutOfRange is returned when a write exceeds the buffer size.
	ErrWriteOutOfRange = errors.New("gpu: write range out of bounds")

	// ErrReadOutOfRange is returned when a readback exceeds the buffer size.
	ErrReadOutOfRange = errors.New("gpu: read range out of bounds")
)

// BufferState is the lifecycle state of a Buffer.
type BufferState int

const (
	// BufferStateLive means the buffer can be written.
	BufferStateLive BufferState = iota
	// BufferStateDestroyed means the HAL buffer was released.
	BufferStateDestroyed
)

// String returns the string representation of BufferState.
func (s BufferState) String() string {
	switch s {
	case BufferStateLive:
		return "Live"
	case BufferStateDestroyed:
		return "Destroyed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
}

// Buffer is a HAL buffer together with the device that owns it.
//
// Buffer is safe for concurrent use.
type Buffer struct {
	mu     sync.Mutex
	raw    hal.Buffer
	device hal.Device
	label  string
	size   uint64
	usage  gputypes.BufferUsage
	state  BufferState
}

// CreateBuffer allocates a HAL buffer on device.
func CreateBuffer(device hal.Device, desc BufferDescriptor) (*Buffer, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	if desc.Size == 0 {
		return nil, fmt.Errorf("%w: size is 0", ErrInvalidBufferSize)
	}

	raw, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create buffer %q (%d bytes): %w", desc.Label, desc.Size, err)
	}

	return &Buffer{
		raw:    raw,
		device: device,
		label:  desc.Label,
		size:   desc.Size,
		usage:  desc.Usage,
	}, nil
}

// Write copies data into the buffer at offset through queue.
func (b *Buffer) Write(queue hal.Queue, offset uint64, data []byte) error {
	if queue == nil {
		return ErrNilQueue
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BufferStateDestroyed {
		return ErrBufferDestroyed
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("%w: [%d, %d) in %d-byte buffer %q",
			ErrWriteOutOfRange, offset, offset+uint64(len(data)), b.size, b.label)
	}
	if len(data) == 0 {
		return nil
	}
	return queue.WriteBuffer(b.raw, offset, data)
}

// Read maps [offset, offset+size) and returns a copy of its content.
// It only succeeds on host-visible buffers.
func (b *Buffer) Read(offset, size uint64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BufferStateDestroyed {
		return nil, ErrBufferDestroyed
	}
	if offset+size > b.size {
		return nil, fmt.Errorf("%w: [%d, %d) in %d-byte buffer", ErrReadOutOfRange, offset, offset+size, b.size)
	}
	if size == 0 {
		return nil, nil
	}

	mapping, err := b.device.MapBuffer(b.raw, offset, size)
	if err != nil {
		return nil, fmt.Errorf("gpu: map buffer %q: %w", b.label, err)
	}
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(mapping.Ptr), size))
	if err := b.device.UnmapBuffer(b.raw); err != nil {
		return nil, fmt.Errorf("gpu: unmap buffer %q: %w", b.label, err)
	}
	return out, nil
}

// Destroy releases the HAL buffer. Destroying twice is a no-op.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BufferStateDestroyed {
		return
	}
	b.device.DestroyBuffer(b.raw)
	b.raw = nil
	b.state = BufferStateDestroyed
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// Usage returns the usage flags the buffer was created with.
func (b *Buffer) Usage() gputypes.BufferUsage { return b.usage }

// Label returns the debug label.
func (b *Buffer) Label() string { return b.label }

// State returns the lifecycle state.
func (b *Buffer) State() BufferState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
