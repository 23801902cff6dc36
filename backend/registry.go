package backend

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal/noop"
	"golang.org/x/exp/slices"
)

// Factory creates a new backend instance.
type Factory func() Backend

// Priority order for backend selection (first available wins).
// A registered device beats the CPU backend; noop is never preferred.
var backends = gpucontext.NewRegistry[Backend](
	gpucontext.WithPriority(NameHAL, NameSoftware, NameNoop),
)

func init() {
	Register(NameSoftware, func() Backend { return NewSoftware() })
	Register(NameNoop, func() Backend {
		b, _ := NewHAL(&noop.Device{}, &noop.Queue{}, WithName(NameNoop))
		return b
	})
}

// Register registers a backend factory with the given name.
// If a backend with the same name is already registered, it is replaced.
func Register(name string, factory Factory) {
	backends.Register(name, factory)
}

// Unregister removes a backend from the registry.
func Unregister(name string) {
	backends.Unregister(name)
}

// RegisterDevice registers the "hal" backend on the device shared by
// provider. It fails if provider does not expose HAL types.
func RegisterDevice(provider gpucontext.DeviceProvider, opts ...HALOption) error {
	device, queue, err := halFromProvider(provider)
	if err != nil {
		return err
	}
	info := provider.AdapterInfo()
	slogger().Info("backend: registered HAL device", "adapter", info.Name, "type", info.Type)

	Register(NameHAL, func() Backend {
		b, _ := NewHAL(device, queue, opts...)
		return b
	})
	return nil
}

// Available returns the registered backend names, sorted.
func Available() []string {
	names := backends.Available()
	slices.Sort(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	return backends.Has(name)
}

// Get returns a new backend instance by name, or ErrBackendNotAvailable.
func Get(name string) (Backend, error) {
	if !backends.Has(name) {
		return nil, ErrBackendNotAvailable
	}
	b := backends.Get(name)
	if b == nil {
		return nil, ErrBackendNotAvailable
	}
	return b, nil
}

// Default returns a new instance of the best available backend.
func Default() Backend {
	slogger().Debug("backend: selecting default", "name", backends.BestName())
	return backends.Best()
}

// DefaultName returns the name Default selects.
func DefaultName() string {
	return backends.BestName()
}
