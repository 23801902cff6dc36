// Package diag is the process-wide channel for recoverable diagnostics.
//
// Code that hits a recoverable problem (a mistyped buffer source, an empty
// source, an oversized upload) posts an error with Post and carries on.
// Callers at a system boundary observe posted errors through a Mark:
//
//	m := diag.NewMark()
//	defer m.Release()
//
//	reg.Commit()
//	if !m.IsClean() {
//	    for _, err := range m.Errors() { ... }
//	    m.Clear()
//	}
//
// Diagnostics are retained only while at least one Mark is active. Every
// posted diagnostic is also logged at warn level.
package diag

import (
	"fmt"
	"log/slog"
	"sync"
)

// Diagnostic is one posted error.
type Diagnostic struct {
	// Seq orders diagnostics process-wide. The first diagnostic has Seq 1.
	Seq uint64
	// Err is the posted error. Match it with errors.Is.
	Err error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("#%d: %v", d.Seq, d.Err)
}

var (
	mu          sync.Mutex
	seq         uint64
	activeMarks int
	retained    []Diagnostic
)

// Post records err for every active Mark and logs it.
// A nil err is ignored.
func Post(err error) {
	if err == nil {
		return
	}

	mu.Lock()
	seq++
	if activeMarks > 0 {
		retained = append(retained, Diagnostic{Seq: seq, Err: err})
	}
	mu.Unlock()

	slogger().Warn("diagnostic", slog.String("error", err.Error()))
}

// Postf posts base wrapped with a formatted message.
func Postf(base error, format string, args ...any) {
	Post(fmt.Errorf("%w: %s", base, fmt.Sprintf(format, args...)))
}

// Mark observes the diagnostics posted after its creation.
//
// A Mark must be released when no longer needed. Mark is safe for
// concurrent use.
type Mark struct {
	begin    uint64
	released bool
}

// NewMark starts observing diagnostics.
func NewMark() *Mark {
	mu.Lock()
	defer mu.Unlock()

	activeMarks++
	return &Mark{begin: seq}
}

// IsClean reports whether no diagnostic was posted since the mark was set
// or last cleared.
func (m *Mark) IsClean() bool {
	return m.Count() == 0
}

// Count returns the number of diagnostics posted since the mark.
func (m *Mark) Count() int {
	mu.Lock()
	defer mu.Unlock()

	n := 0
	for _, d := range retained {
		if d.Seq > m.begin {
			n++
		}
	}
	return n
}

// Errors returns the errors posted since the mark, oldest first.
func (m *Mark) Errors() []error {
	mu.Lock()
	defer mu.Unlock()

	var errs []error
	for _, d := range retained {
		if d.Seq > m.begin {
			errs = append(errs, d.Err)
		}
	}
	return errs
}

// Diagnostics returns the diagnostics posted since the mark.
func (m *Mark) Diagnostics() []Diagnostic {
	mu.Lock()
	defer mu.Unlock()

	var out []Diagnostic
	for _, d := range retained {
		if d.Seq > m.begin {
			out = append(out, d)
		}
	}
	return out
}

// Clear discards the diagnostics posted since the mark. Marks created
// earlier no longer see them either.
func (m *Mark) Clear() {
	mu.Lock()
	defer mu.Unlock()

	kept := retained[:0]
	for _, d := range retained {
		if d.Seq <= m.begin {
			kept = append(kept, d)
		}
	}
	retained = kept
}

// Release stops observing. Releasing twice is a no-op.
func (m *Mark) Release() {
	mu.Lock()
	defer mu.Unlock()

	if m.released {
		return
	}
	m.released = true
	activeMarks--
	if activeMarks == 0 {
		retained = nil
	}
}
