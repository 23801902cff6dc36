// Package perflog provides process-wide named performance counters.
//
// Counters are recorded only while the log is enabled. Nothing resets the
// counters implicitly: test harnesses call ResetCounters at the point they
// choose.
//
//	perflog.Get().Enable()
//	perflog.Get().ResetCounters()
//	// ... run a scenario ...
//	n := perflog.Get().GetCounter(perflog.BufferArrayRangeMigrated)
package perflog

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Log is a registry of named int64 counters.
//
// Log is safe for concurrent use.
type Log struct {
	enabled atomic.Bool

	mu       sync.Mutex
	counters map[string]int64
}

var global = New()

// Get returns the process-wide Log.
func Get() *Log { return global }

// New creates a disabled Log with no counters.
// Most code uses Get; New exists for isolated tools and tests.
func New() *Log {
	return &Log{counters: make(map[string]int64)}
}

// Enable starts recording counter updates.
func (l *Log) Enable() { l.enabled.Store(true) }

// Disable stops recording. Existing values are kept.
func (l *Log) Disable() { l.enabled.Store(false) }

// IsEnabled reports whether counter updates are recorded.
func (l *Log) IsEnabled() bool { return l.enabled.Load() }

// ResetCounters sets every known counter to zero.
func (l *Log) ResetCounters() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for name := range l.counters {
		l.counters[name] = 0
	}
}

// GetCounter returns the value of the named counter, 0 if it was never set.
func (l *Log) GetCounter(name string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counters[name]
}

// IncrementCounter adds one to the named counter.
func (l *Log) IncrementCounter(name string) { l.AddCounter(name, 1) }

// DecrementCounter subtracts one from the named counter.
func (l *Log) DecrementCounter(name string) { l.AddCounter(name, -1) }

// AddCounter adds delta to the named counter.
func (l *Log) AddCounter(name string, delta int64) {
	if !l.enabled.Load() {
		return
	}
	l.mu.Lock()
	l.counters[name] += delta
	l.mu.Unlock()
}

// SetCounter overwrites the named counter. Used for gauges such as
// gpuMemoryUsed that are recomputed rather than accumulated.
func (l *Log) SetCounter(name string, value int64) {
	if !l.enabled.Load() {
		return
	}
	l.mu.Lock()
	l.counters[name] = value
	l.mu.Unlock()
}

// Counters returns a copy of all counters.
func (l *Log) Counters() map[string]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.counters)
}

// String formats the non-zero counters sorted by name, one per line.
func (l *Log) String() string {
	counters := l.Counters()
	names := maps.Keys(counters)
	slices.Sort(names)

	var sb strings.Builder
	for _, name := range names {
		if counters[name] == 0 {
			continue
		}
		fmt.Fprintf(&sb, "%s: %d\n", name, counters[name])
	}
	return sb.String()
}
