package backend

import (
	"fmt"
	"sync"
)

// Software is a Backend that keeps buffers in CPU memory.
// It is always available and is the default when no GPU device is registered.
type Software struct {
	mu      sync.Mutex
	buffers map[Handle][]byte
	next    Handle
	stats   Stats
	closed  bool
}

// NewSoftware creates an empty software backend.
func NewSoftware() *Software {
	return &Software{buffers: make(map[Handle][]byte)}
}

// Name returns the backend identifier.
func (b *Software) Name() string { return NameSoftware }

// AllocateBuffer allocates a zeroed byte slice.
func (b *Software) AllocateBuffer(desc BufferDescriptor) (Handle, error) {
	if desc.Size == 0 {
		return 0, fmt.Errorf("%w: %q has size 0", ErrInvalidSize, desc.Label)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrBackendClosed
	}
	b.next++
	b.buffers[b.next] = make([]byte, desc.Size)
	b.stats.Buffers++
	b.stats.Bytes += desc.Size
	b.stats.PeakBytes = max(b.stats.PeakBytes, b.stats.Bytes)
	return b.next, nil
}

// Upload copies data into the buffer.
func (b *Software) Upload(h Handle, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBackendClosed
	}
	buf, ok := b.buffers[h]
	if !ok {
		return fmt.Errorf("%w: %v", ErrInvalidHandle, h)
	}
	if offset+uint64(len(data)) > uint64(len(buf)) {
		return fmt.Errorf("%w: upload [%d, %d) into %d bytes",
			ErrOutOfRange, offset, offset+uint64(len(data)), len(buf))
	}
	if len(data) == 0 {
		return nil
	}
	copy(buf[offset:], data)
	b.stats.Uploads++
	b.stats.UploadedBytes += uint64(len(data))
	return nil
}

// ReadBuffer returns a copy of [offset, offset+size).
func (b *Software) ReadBuffer(h Handle, offset, size uint64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, ok := b.buffers[h]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHandle, h)
	}
	if offset+size > uint64(len(buf)) {
		return nil, fmt.Errorf("%w: read [%d, %d) from %d bytes", ErrOutOfRange, offset, offset+size, len(buf))
	}
	out := make([]byte, size)
	copy(out, buf[offset:offset+size])
	return out, nil
}

// Free drops the buffer.
func (b *Software) Free(h Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, ok := b.buffers[h]
	if !ok {
		return
	}
	delete(b.buffers, h)
	b.stats.Buffers--
	b.stats.Bytes -= uint64(len(buf))
}

// Stats reports current usage.
func (b *Software) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Close drops every buffer.
func (b *Software) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buffers = make(map[Handle][]byte)
	b.stats.Buffers = 0
	b.stats.Bytes = 0
	b.closed = true
}
