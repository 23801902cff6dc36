package storm

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"golang.org/x/exp/maps"

	"github.com/gogpu/storm/backend"
)

// Defaults for Config and the functional options.
const (
	// DefaultMinCapacity is the smallest element capacity of a new array.
	DefaultMinCapacity = 1

	// DefaultGrowthFactor grows arrays to exactly the needed capacity.
	DefaultGrowthFactor = 1.0

	// DefaultMaxResolveIterations bounds the commit resolve loop.
	DefaultMaxResolveIterations = 100

	// DefaultStagingThreshold is the largest single upload in bytes when
	// coalescing dirty data.
	DefaultStagingThreshold = 1 << 20

	// DefaultWorkers commits every array registry on the calling goroutine.
	DefaultWorkers = 1
)

// OutOfRangePolicy decides what Commit does with elements that indexed
// data does not address.
type OutOfRangePolicy int

const (
	// OutOfRangeFallback fills unaddressed elements with the fallback value.
	OutOfRangeFallback OutOfRangePolicy = iota
	// OutOfRangeDrop empties the whole range and posts ErrIndexOutOfRange,
	// so the primitive draws nothing.
	OutOfRangeDrop
)

// String returns "fallback" or "drop".
func (p OutOfRangePolicy) String() string {
	if p == OutOfRangeDrop {
		return "drop"
	}
	return "fallback"
}

// ParseOutOfRangePolicy parses the String form of a policy.
func ParseOutOfRangePolicy(s string) (OutOfRangePolicy, error) {
	switch s {
	case "", "fallback":
		return OutOfRangeFallback, nil
	case "drop":
		return OutOfRangeDrop, nil
	default:
		return 0, fmt.Errorf("storm: unknown out of range policy %q", s)
	}
}

// ChannelPolicy configures one channel's handling of missing data.
// Fallback components are repeated to fill an element; an empty Fallback
// fills zeros.
type ChannelPolicy struct {
	Policy   OutOfRangePolicy
	Fallback []float64
}

// DefaultChannelPolicies returns the built-in policies: widths fall back
// to 1, display colors to mid grey, and out of range topology indices
// drop the primitive.
func DefaultChannelPolicies() map[string]ChannelPolicy {
	return map[string]ChannelPolicy{
		"widths":       {Policy: OutOfRangeFallback, Fallback: []float64{1.0}},
		"displayColor": {Policy: OutOfRangeFallback, Fallback: []float64{0.5, 0.5, 0.5}},
		"indices":      {Policy: OutOfRangeDrop},
	}
}

// Option configures a ResourceRegistry or BufferArrayRegistry.
//
// Example:
//
//	reg, err := storm.NewResourceRegistry(
//	    storm.WithBackend(backend.NewSoftware()),
//	    storm.WithGrowthPolicy(storm.GrowthPolicy{MinCapacity: 64, Factor: 2}),
//	)
type Option func(*options)

type options struct {
	backend              backend.Backend
	backendName          string
	limits               gputypes.Limits
	growth               GrowthPolicy
	policies             map[string]ChannelPolicy
	maxResolveIterations int
	stagingThreshold     int
	workers              int
}

func defaultOptions() options {
	return options{
		limits:               gputypes.DefaultLimits(),
		growth:               GrowthPolicy{MinCapacity: DefaultMinCapacity, Factor: DefaultGrowthFactor},
		policies:             DefaultChannelPolicies(),
		maxResolveIterations: DefaultMaxResolveIterations,
		stagingThreshold:     DefaultStagingThreshold,
		workers:              DefaultWorkers,
	}
}

// resolveBackend returns the configured backend and whether the caller
// owns it.
func (o *options) resolveBackend() (b backend.Backend, owned bool, err error) {
	if o.backend != nil {
		return o.backend, false, nil
	}
	if o.backendName != "" {
		b, err = backend.Get(o.backendName)
		return b, err == nil, err
	}
	if b = backend.Default(); b != nil {
		return b, true, nil
	}
	return nil, false, backend.ErrBackendNotAvailable
}

// WithBackend uses b for GPU buffers. The registry does not close b.
func WithBackend(b backend.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithBackendName selects a registered backend by name. The registry
// creates the backend and closes it on Close.
func WithBackendName(name string) Option {
	return func(o *options) {
		o.backendName = name
	}
}

// WithLimits sets the device limits used for array capacity and
// uniform alignment.
func WithLimits(l gputypes.Limits) Option {
	return func(o *options) {
		o.limits = l
	}
}

// WithGrowthPolicy sets how arrays grow.
func WithGrowthPolicy(p GrowthPolicy) Option {
	return func(o *options) {
		o.growth = p
	}
}

// WithChannelPolicy sets the missing-data policy of one channel.
func WithChannelPolicy(channel string, p ChannelPolicy) Option {
	return func(o *options) {
		o.policies = maps.Clone(o.policies)
		o.policies[channel] = p
	}
}

// WithMaxResolveIterations bounds the commit resolve loop.
func WithMaxResolveIterations(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxResolveIterations = n
		}
	}
}

// WithStagingThreshold sets the largest coalesced upload in bytes.
func WithStagingThreshold(bytes int) Option {
	return func(o *options) {
		o.stagingThreshold = bytes
	}
}

// WithWorkers copies and uploads the data of different array registries
// on n goroutines during Commit. n <= 0 uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// Config is the file-friendly form of the options. Zero fields keep their
// defaults.
type Config struct {
	Backend              string          `toml:"backend" yaml:"backend"`
	MinCapacity          int             `toml:"min_capacity" yaml:"min_capacity"`
	GrowthFactor         float64         `toml:"growth_factor" yaml:"growth_factor"`
	MaxResolveIterations int             `toml:"max_resolve_iterations" yaml:"max_resolve_iterations"`
	StagingThreshold     int             `toml:"staging_threshold" yaml:"staging_threshold"`
	MaxBufferSize        uint64          `toml:"max_buffer_size" yaml:"max_buffer_size"`
	Workers              int             `toml:"workers" yaml:"workers"`
	Channels             []ChannelConfig `toml:"channels" yaml:"channels"`
}

// ChannelConfig is one channel policy in a Config.
type ChannelConfig struct {
	Name     string    `toml:"name" yaml:"name"`
	Policy   string    `toml:"policy" yaml:"policy"`
	Fallback []float64 `toml:"fallback" yaml:"fallback"`
}

// DefaultConfig returns a Config holding the defaults.
func DefaultConfig() Config {
	return Config{
		MinCapacity:          DefaultMinCapacity,
		GrowthFactor:         DefaultGrowthFactor,
		MaxResolveIterations: DefaultMaxResolveIterations,
		StagingThreshold:     DefaultStagingThreshold,
		Workers:              DefaultWorkers,
	}
}

// Validate checks c for values no registry can work with.
func (c Config) Validate() error {
	if c.MinCapacity < 0 {
		return fmt.Errorf("min_capacity %d is negative", c.MinCapacity)
	}
	if c.GrowthFactor < 0 {
		return fmt.Errorf("growth_factor %g is negative", c.GrowthFactor)
	}
	if c.MaxResolveIterations < 0 {
		return fmt.Errorf("max_resolve_iterations %d is negative", c.MaxResolveIterations)
	}
	if c.StagingThreshold < 0 {
		return fmt.Errorf("staging_threshold %d is negative", c.StagingThreshold)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers %d is negative", c.Workers)
	}
	for _, ch := range c.Channels {
		if ch.Name == "" {
			return fmt.Errorf("channel policy without a name")
		}
		if _, err := ParseOutOfRangePolicy(ch.Policy); err != nil {
			return fmt.Errorf("channel %s: %w", ch.Name, err)
		}
	}
	return nil
}

// Options converts c to functional options. Invalid channel policies are
// skipped; call Validate first to report them.
func (c Config) Options() []Option {
	var opts []Option
	if c.Backend != "" {
		opts = append(opts, WithBackendName(c.Backend))
	}
	growth := GrowthPolicy{MinCapacity: DefaultMinCapacity, Factor: DefaultGrowthFactor}
	if c.MinCapacity > 0 {
		growth.MinCapacity = c.MinCapacity
	}
	if c.GrowthFactor > 0 {
		growth.Factor = c.GrowthFactor
	}
	opts = append(opts, WithGrowthPolicy(growth))
	if c.MaxResolveIterations > 0 {
		opts = append(opts, WithMaxResolveIterations(c.MaxResolveIterations))
	}
	if c.StagingThreshold > 0 {
		opts = append(opts, WithStagingThreshold(c.StagingThreshold))
	}
	if c.Workers > 0 {
		opts = append(opts, WithWorkers(c.Workers))
	}
	if c.MaxBufferSize > 0 {
		limits := gputypes.DefaultLimits()
		limits.MaxBufferSize = c.MaxBufferSize
		opts = append(opts, WithLimits(limits))
	}
	for _, ch := range c.Channels {
		p, err := ParseOutOfRangePolicy(ch.Policy)
		if err != nil {
			continue
		}
		opts = append(opts, WithChannelPolicy(ch.Name, ChannelPolicy{Policy: p, Fallback: ch.Fallback}))
	}
	return opts
}
