package backend

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"
)

// fakeProvider is a gpucontext.DeviceProvider exposing noop HAL objects.
type fakeProvider struct {
	device any
	queue  any
}

func (p *fakeProvider) Device() gpucontext.Device             { return nil }
func (p *fakeProvider) Queue() gpucontext.Queue               { return nil }
func (p *fakeProvider) Adapter() gpucontext.Adapter           { return nil }
func (p *fakeProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatUndefined }
func (p *fakeProvider) AdapterInfo() gpucontext.AdapterInfo   { return gpucontext.AdapterInfo{Name: "noop", Type: gpucontext.AdapterTypeSoftware} }
func (p *fakeProvider) HalDevice() any                        { return p.device }
func (p *fakeProvider) HalQueue() any                         { return p.queue }

// plainProvider does not expose HAL types.
type plainProvider struct{ fakeProvider }

func (plainProvider) HalDevice() {}

func newBackends(t *testing.T) map[string]Backend {
	t.Helper()
	h, err := NewHAL(&noop.Device{}, &noop.Queue{})
	if err != nil {
		t.Fatalf("NewHAL() error = %v", err)
	}
	return map[string]Backend{
		"software": NewSoftware(),
		"hal":      h,
	}
}

func TestBackendAllocateUploadRead(t *testing.T) {
	for name, b := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer b.Close()

			h, err := b.AllocateBuffer(BufferDescriptor{Label: "points", Size: 12, Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst})
			if err != nil {
				t.Fatalf("AllocateBuffer() error = %v", err)
			}
			if h == 0 {
				t.Fatal("AllocateBuffer() returned the zero handle")
			}

			if err := b.Upload(h, 4, []byte{9, 8, 7, 6}); err != nil {
				t.Fatalf("Upload() error = %v", err)
			}
			r, ok := b.(Reader)
			if !ok {
				t.Fatalf("%T does not implement Reader", b)
			}
			got, err := r.ReadBuffer(h, 0, 12)
			if err != nil {
				t.Fatalf("ReadBuffer() error = %v", err)
			}
			want := []byte{0, 0, 0, 0, 9, 8, 7, 6, 0, 0, 0, 0}
			if !bytes.Equal(got, want) {
				t.Errorf("ReadBuffer() = %v, want %v", got, want)
			}

			stats := b.Stats()
			if stats.Buffers != 1 || stats.Bytes != 12 || stats.Uploads != 1 || stats.UploadedBytes != 4 {
				t.Errorf("Stats() = %v", stats)
			}

			b.Free(h)
			b.Free(h)
			if stats := b.Stats(); stats.Buffers != 0 || stats.Bytes != 0 {
				t.Errorf("Stats() after Free = %v", stats)
			}
			if stats := b.Stats(); stats.PeakBytes != 12 {
				t.Errorf("PeakBytes = %d, want 12", stats.PeakBytes)
			}
		})
	}
}

func TestBackendErrors(t *testing.T) {
	for name, b := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := b.AllocateBuffer(BufferDescriptor{Label: "empty"}); !errors.Is(err, ErrInvalidSize) {
				t.Errorf("AllocateBuffer(size 0) error = %v, want %v", err, ErrInvalidSize)
			}
			if err := b.Upload(Handle(42), 0, []byte{1}); !errors.Is(err, ErrInvalidHandle) {
				t.Errorf("Upload(unknown) error = %v, want %v", err, ErrInvalidHandle)
			}

			h, err := b.AllocateBuffer(BufferDescriptor{Size: 4})
			if err != nil {
				t.Fatal(err)
			}
			if err := b.Upload(h, 2, []byte{1, 2, 3}); !errors.Is(err, ErrOutOfRange) {
				t.Errorf("Upload(past end) error = %v, want %v", err, ErrOutOfRange)
			}

			b.Close()
			if _, err := b.AllocateBuffer(BufferDescriptor{Size: 4}); !errors.Is(err, ErrBackendClosed) {
				t.Errorf("AllocateBuffer() after Close error = %v, want %v", err, ErrBackendClosed)
			}
		})
	}
}

func TestNewHALRejectsNil(t *testing.T) {
	if _, err := NewHAL(nil, &noop.Queue{}); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("NewHAL(nil device) error = %v, want %v", err, ErrBackendNotAvailable)
	}
	if _, err := NewHAL(&noop.Device{}, nil); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("NewHAL(nil queue) error = %v, want %v", err, ErrBackendNotAvailable)
	}
}

func TestNewHALFromProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider gpucontext.DeviceProvider
		wantErr  bool
	}{
		{"noop", &fakeProvider{device: &noop.Device{}, queue: &noop.Queue{}}, false},
		{"missing queue", &fakeProvider{device: &noop.Device{}}, true},
		{"wrong device type", &fakeProvider{device: "gpu", queue: &noop.Queue{}}, true},
		{"nil provider", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewHALFromProvider(tt.provider)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewHALFromProvider() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				defer b.Close()
				if b.Name() != NameHAL {
					t.Errorf("Name() = %q, want %q", b.Name(), NameHAL)
				}
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	if !IsRegistered(NameSoftware) || !IsRegistered(NameNoop) {
		t.Fatalf("Available() = %v, want software and noop", Available())
	}

	b, err := Get(NameNoop)
	if err != nil {
		t.Fatalf("Get(noop) error = %v", err)
	}
	if b.Name() != NameNoop {
		t.Errorf("Get(noop).Name() = %q", b.Name())
	}
	b.Close()

	if _, err := Get("vulkan"); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Get(vulkan) error = %v, want %v", err, ErrBackendNotAvailable)
	}

	if DefaultName() != NameSoftware {
		t.Errorf("DefaultName() = %q, want %q", DefaultName(), NameSoftware)
	}

	p := &fakeProvider{device: &noop.Device{}, queue: &noop.Queue{}}
	if err := RegisterDevice(p); err != nil {
		t.Fatalf("RegisterDevice() error = %v", err)
	}
	defer Unregister(NameHAL)

	if DefaultName() != NameHAL {
		t.Errorf("DefaultName() after RegisterDevice = %q, want %q", DefaultName(), NameHAL)
	}
	d := Default()
	if d == nil || d.Name() != NameHAL {
		t.Fatalf("Default() = %v, want the hal backend", d)
	}
	d.Close()

	if err := RegisterDevice(&plainProvider{}); err == nil {
		t.Error("RegisterDevice() accepted a provider without HAL types")
	}
}
