package storm

import (
	"fmt"

	"github.com/gogpu/storm/diag"
	"github.com/gogpu/storm/perflog"
)

// BufferSource is CPU data staged for one channel of a range.
//
// A source is created per update by the producer, resolved once by
// Commit and then discarded. Resolve may be called repeatedly until it
// reports true; deferred sources return false while their inputs are not
// ready yet.
type BufferSource interface {
	// Name is the channel the source targets.
	Name() string
	// Type is the per-element tuple type of the data.
	Type() TupleType
	// NumElements is the number of elements, valid once resolved.
	NumElements() int
	// Data returns the little-endian element data, valid once resolved.
	Data() []byte
	// Resolve finalizes the data and reports whether it is ready.
	Resolve() bool
	// IsResolved reports whether Resolve has completed.
	IsResolved() bool
	// IsValid reports whether the source can ever produce data.
	IsValid() bool
}

// Addresser is implemented by sources built from indexed data. Unaddressed
// returns the element positions whose index pointed outside the values.
type Addresser interface {
	Unaddressed() []int
}

// ArraySource holds data that is resolved on construction.
type ArraySource struct {
	name  string
	value Value
	valid bool
}

// NewSource returns a source of plain tuples with the given arity.
func NewSource[T Scalar](name string, values []T, arity int) *ArraySource {
	return NewArraySource(name, values, arity, 1)
}

// NewArraySource returns a source whose elements hold arraySize tuples.
func NewArraySource[T Scalar](name string, values []T, arity, arraySize int) *ArraySource {
	v, err := NewValue(values, arity, arraySize)
	if err != nil {
		slogger().Warn("storm: invalid array source", "name", name, "err", err)
		return &ArraySource{name: name}
	}
	return &ArraySource{name: name, value: v, valid: name != ""}
}

// NewValueSource returns a source wrapping an existing Value.
func NewValueSource(name string, v Value) *ArraySource {
	valid := name != "" && v.Type.Valid() && len(v.Data) == v.NumElements*v.Type.Size()
	return &ArraySource{name: name, value: v, valid: valid}
}

func (s *ArraySource) Name() string     { return s.name }
func (s *ArraySource) Type() TupleType  { return s.value.Type }
func (s *ArraySource) NumElements() int { return s.value.NumElements }
func (s *ArraySource) Data() []byte     { return s.value.Data }
func (s *ArraySource) Resolve() bool    { return true }
func (s *ArraySource) IsResolved() bool { return true }
func (s *ArraySource) IsValid() bool    { return s.valid }

// Value returns the source data.
func (s *ArraySource) Value() Value { return s.value }

// IndexedSource flattens indexed values into one element per index.
// Indices outside the values leave their element unaddressed; Commit
// fills those according to the channel policy.
type IndexedSource struct {
	name    string
	values  Value
	indices []int32

	resolved    bool
	flat        Value
	unaddressed []int
}

// NewIndexedSource returns a deferred source that expands values through
// indices. values hold tuples of the given arity.
func NewIndexedSource[T Scalar](name string, values []T, arity int, indices []int32) *IndexedSource {
	s := &IndexedSource{name: name, indices: indices}
	v, err := NewValue(values, arity, 1)
	if err != nil {
		slogger().Warn("storm: invalid indexed source", "name", name, "err", err)
		return s
	}
	s.values = v
	return s
}

func (s *IndexedSource) Name() string     { return s.name }
func (s *IndexedSource) Type() TupleType  { return s.values.Type }
func (s *IndexedSource) NumElements() int { return s.flat.NumElements }
func (s *IndexedSource) Data() []byte     { return s.flat.Data }
func (s *IndexedSource) IsResolved() bool { return s.resolved }

func (s *IndexedSource) IsValid() bool {
	return s.name != "" && s.values.Type.Valid()
}

// Unaddressed returns the flattened positions without data.
func (s *IndexedSource) Unaddressed() []int { return s.unaddressed }

// Resolve expands the values. An empty value list addressed by indices
// posts ErrEmptySource.
func (s *IndexedSource) Resolve() bool {
	if s.resolved {
		return true
	}
	size := s.values.Type.Size()
	flat := Value{Type: s.values.Type, NumElements: len(s.indices), Data: make([]byte, len(s.indices)*size)}
	for i, idx := range s.indices {
		if idx < 0 || int(idx) >= s.values.NumElements {
			s.unaddressed = append(s.unaddressed, i)
			continue
		}
		copy(flat.Data[i*size:], s.values.Element(int(idx)))
	}
	if s.values.IsEmpty() && len(s.indices) > 0 {
		diag.Postf(ErrEmptySource, "%s: %d indices address no values", s.name, len(s.indices))
	}
	s.flat = flat
	s.resolved = true
	return true
}

// ResampleSource interpolates between two samples of a channel.
type ResampleSource struct {
	name   string
	alpha  float64
	v0, v1 BufferSource

	resolved bool
	value    Value
}

// NewResampleSource returns a deferred source interpolating v0 and v1 at
// alpha. Mismatched operands post ErrTypeMismatch once and the source
// resolves to v0.
func NewResampleSource(name string, alpha float64, v0, v1 BufferSource) *ResampleSource {
	return &ResampleSource{name: name, alpha: alpha, v0: v0, v1: v1}
}

func (s *ResampleSource) Name() string     { return s.name }
func (s *ResampleSource) NumElements() int { return s.value.NumElements }
func (s *ResampleSource) Data() []byte     { return s.value.Data }
func (s *ResampleSource) IsResolved() bool { return s.resolved }

func (s *ResampleSource) Type() TupleType {
	if s.resolved {
		return s.value.Type
	}
	return s.v0.Type()
}

func (s *ResampleSource) IsValid() bool {
	return s.name != "" && s.v0 != nil && s.v1 != nil && s.v0.IsValid() && s.v1.IsValid()
}

func (s *ResampleSource) Resolve() bool {
	if s.resolved {
		return true
	}
	if !resolveDeps(s.v0, s.v1) {
		return false
	}

	a := sourceValue(s.v0)
	v, err := ResampleValues(s.alpha, a, sourceValue(s.v1))
	if err != nil {
		diag.Post(fmt.Errorf("%s: %w", s.name, err))
		v = a
	}
	s.value = v
	s.resolved = true
	return true
}

// ComputedSource is resolved by a callback over other sources. The resolve
// loop in Commit retries it until its inputs are resolved.
type ComputedSource struct {
	name string
	typ  TupleType
	deps []BufferSource
	fn   func(deps []BufferSource) (Value, error)

	resolved bool
	value    Value
}

// NewComputedSource returns a deferred source producing data of type typ
// from deps.
func NewComputedSource(name string, typ TupleType, deps []BufferSource, fn func([]BufferSource) (Value, error)) *ComputedSource {
	return &ComputedSource{name: name, typ: typ, deps: deps, fn: fn}
}

func (s *ComputedSource) Name() string     { return s.name }
func (s *ComputedSource) Type() TupleType  { return s.typ }
func (s *ComputedSource) NumElements() int { return s.value.NumElements }
func (s *ComputedSource) Data() []byte     { return s.value.Data }
func (s *ComputedSource) IsResolved() bool { return s.resolved }

func (s *ComputedSource) IsValid() bool {
	if s.name == "" || s.fn == nil || !s.typ.Valid() {
		return false
	}
	for _, d := range s.deps {
		if d == nil || !d.IsValid() {
			return false
		}
	}
	return true
}

func (s *ComputedSource) Resolve() bool {
	if s.resolved {
		return true
	}
	for _, d := range s.deps {
		if !d.IsResolved() {
			return false
		}
	}

	v, err := s.fn(s.deps)
	switch {
	case err != nil:
		diag.Post(fmt.Errorf("%s: %w", s.name, err))
		v = Value{Type: s.typ}
	case v.Type != s.typ:
		diag.Postf(ErrTypeMismatch, "%s: computed %s, declared %s", s.name, v.Type, s.typ)
		v = Value{Type: s.typ}
	}
	s.value = v
	s.resolved = true
	perflog.Get().IncrementCounter(perflog.ComputationsCommitted)
	return true
}

// resolveDeps resolves owned inputs and reports whether all are ready.
func resolveDeps(deps ...BufferSource) bool {
	for _, d := range deps {
		if !d.IsResolved() && !d.Resolve() {
			return false
		}
	}
	return true
}

// sourceValue returns the resolved data of s as a Value.
func sourceValue(s BufferSource) Value {
	if a, ok := s.(*ArraySource); ok {
		return a.value
	}
	return Value{Type: s.Type(), NumElements: s.NumElements(), Data: s.Data()}
}
