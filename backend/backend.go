package backend

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not registered.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrBackendClosed is returned when using a backend after Close.
	ErrBackendClosed = errors.New("backend: closed")

	// ErrInvalidHandle is returned for handles the backend does not own.
	ErrInvalidHandle = errors.New("backend: invalid buffer handle")

	// ErrInvalidSize is returned for zero-sized allocations.
	ErrInvalidSize = errors.New("backend: invalid buffer size")

	// ErrOutOfRange is returned when an upload or readback exceeds the buffer.
	ErrOutOfRange = errors.New("backend: range out of bounds")
)

// Backend names.
const (
	NameHAL      = "hal"
	NameSoftware = "software"
	NameNoop     = "noop"
)

// Handle identifies a buffer allocated by a Backend. The zero Handle is
// never returned by a successful allocation.
type Handle uint64

// String implements fmt.Stringer.
func (h Handle) String() string {
	return fmt.Sprintf("buf#%d", uint64(h))
}

// BufferDescriptor describes a buffer to allocate.
type BufferDescriptor struct {
	// Label is an optional debug name.
	Label string
	// Size in bytes. Must be non-zero.
	Size uint64
	// Usage is passed through to GPU backends.
	Usage gputypes.BufferUsage
}

// Backend is the opaque buffer-allocation contract storm depends on.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// Name returns the backend identifier.
	Name() string

	// AllocateBuffer creates a buffer and returns its handle.
	AllocateBuffer(desc BufferDescriptor) (Handle, error)

	// Upload writes data at offset bytes into the buffer.
	Upload(h Handle, offset uint64, data []byte) error

	// Free releases the buffer. Freeing an unknown handle is a no-op.
	Free(h Handle)

	// Stats reports current usage.
	Stats() Stats

	// Close releases every buffer. The backend must not be used afterwards.
	Close()
}

// Reader is implemented by backends that can read buffer content back.
type Reader interface {
	ReadBuffer(h Handle, offset, size uint64) ([]byte, error)
}

// Stats reports backend usage.
type Stats struct {
	// Buffers is the number of live buffers.
	Buffers int
	// Bytes is the total size of live buffers.
	Bytes uint64
	// PeakBytes is the highest Bytes observed.
	PeakBytes uint64
	// Uploads is the number of Upload calls that wrote data.
	Uploads uint64
	// UploadedBytes is the total number of bytes uploaded.
	UploadedBytes uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Backend[%d buffers, %d bytes, peak %d, %d uploads (%d bytes)]",
		s.Buffers, s.Bytes, s.PeakBytes, s.Uploads, s.UploadedBytes)
}
