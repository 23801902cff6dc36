package gpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/wgpu/hal"
)

// Memory management errors.
var (
	// ErrMemoryBudgetExceeded is returned when allocation would exceed budget.
	ErrMemoryBudgetExceeded = errors.New("gpu: memory budget exceeded")

	// ErrMemoryManagerClosed is returned when operating on a closed manager.
	ErrMemoryManagerClosed = errors.New("gpu: memory manager closed")
)

// Default memory limits.
const (
	// DefaultMaxMemoryMB is the default buffer memory budget (1 GB).
	DefaultMaxMemoryMB = 1024

	// MinMemoryMB is the minimum allowed memory budget (16 MB).
	MinMemoryMB = 16
)

// MemoryStats contains buffer memory usage statistics.
type MemoryStats struct {
	// TotalBytes is the memory budget in bytes.
	TotalBytes uint64

	// UsedBytes is the currently allocated memory in bytes.
	UsedBytes uint64

	// AvailableBytes is the remaining budget.
	AvailableBytes uint64

	// PeakBytes is the highest UsedBytes observed.
	PeakBytes uint64

	// BufferCount is the number of live buffers.
	BufferCount int

	// Allocations and Frees count buffer creations and destructions.
	Allocations uint64
	Frees       uint64

	// Utilization is the fraction of budget used (0.0 to 1.0).
	Utilization float64
}

// String returns a human-readable string of memory stats.
func (s MemoryStats) String() string {
	return fmt.Sprintf("Memory[%.1f%% used, %d/%d KB, peak %d KB, %d buffers]",
		s.Utilization*100,
		s.UsedBytes/1024,
		s.TotalBytes/1024,
		s.PeakBytes/1024,
		s.BufferCount)
}

// MemoryManager creates HAL buffers against a byte budget.
//
// Unlike a texture atlas, buffers owned by storm hold live primitive data
// and cannot be evicted; allocations beyond the budget fail instead.
//
// MemoryManager is safe for concurrent use.
type MemoryManager struct {
	mu sync.RWMutex

	device hal.Device

	budgetBytes uint64
	usedBytes   uint64
	peakBytes   uint64

	buffers map[*Buffer]struct{}

	allocations uint64
	frees       uint64

	closed bool
}

// MemoryManagerConfig holds configuration for creating a MemoryManager.
type MemoryManagerConfig struct {
	// MaxMemoryMB is the memory budget in megabytes.
	// Defaults to DefaultMaxMemoryMB if below MinMemoryMB.
	MaxMemoryMB int
}

// NewMemoryManager creates a memory manager allocating on device.
func NewMemoryManager(device hal.Device, config MemoryManagerConfig) *MemoryManager {
	maxMB := config.MaxMemoryMB
	if maxMB < MinMemoryMB {
		maxMB = DefaultMaxMemoryMB
	}

	//nolint:gosec // G115: maxMB is bounded by MinMemoryMB minimum
	return &MemoryManager{
		device:      device,
		budgetBytes: uint64(maxMB) * 1024 * 1024,
		buffers:     make(map[*Buffer]struct{}),
	}
}

// AllocBuffer creates a buffer if it fits in the remaining budget.
func (m *MemoryManager) AllocBuffer(desc BufferDescriptor) (*Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrMemoryManagerClosed
	}
	if m.usedBytes+desc.Size > m.budgetBytes {
		return nil, fmt.Errorf("%w: need %d bytes, have %d bytes available",
			ErrMemoryBudgetExceeded, desc.Size, m.budgetBytes-m.usedBytes)
	}

	buf, err := CreateBuffer(m.device, desc)
	if err != nil {
		return nil, err
	}

	m.buffers[buf] = struct{}{}
	m.usedBytes += buf.Size()
	m.peakBytes = max(m.peakBytes, m.usedBytes)
	m.allocations++
	slogger().Debug("gpu: buffer allocated",
		"label", desc.Label, "bytes", desc.Size, "used", m.usedBytes)
	return buf, nil
}

// FreeBuffer destroys buf and returns its bytes to the budget.
// Buffers not created by this manager are destroyed without accounting.
func (m *MemoryManager) FreeBuffer(buf *Buffer) error {
	if buf == nil {
		return nil
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMemoryManagerClosed
	}
	if _, ok := m.buffers[buf]; ok {
		delete(m.buffers, buf)
		m.usedBytes -= buf.Size()
		m.frees++
		slogger().Debug("gpu: buffer freed", "label", buf.Label(), "bytes", buf.Size())
	}
	m.mu.Unlock()

	buf.Destroy()
	return nil
}

// Stats returns current memory usage statistics.
func (m *MemoryManager) Stats() MemoryStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var utilization float64
	if m.budgetBytes > 0 {
		utilization = float64(m.usedBytes) / float64(m.budgetBytes)
	}

	return MemoryStats{
		TotalBytes:     m.budgetBytes,
		UsedBytes:      m.usedBytes,
		AvailableBytes: m.budgetBytes - m.usedBytes,
		PeakBytes:      m.peakBytes,
		BufferCount:    len(m.buffers),
		Allocations:    m.allocations,
		Frees:          m.frees,
		Utilization:    utilization,
	}
}

// Close destroys all managed buffers.
// The manager should not be used after Close is called.
func (m *MemoryManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	for buf := range m.buffers {
		buf.Destroy()
	}
	m.buffers = nil
	m.usedBytes = 0
	m.closed = true
}
