package storm

import (
	"errors"
	"fmt"
	"testing"
)

func TestArraySource(t *testing.T) {
	s := NewSource("points", []float32{1, 2, 3, 4, 5, 6}, 3)
	if !s.IsValid() || !s.IsResolved() || !s.Resolve() {
		t.Fatal("array source is not valid and resolved on construction")
	}
	if s.NumElements() != 2 || s.Type() != pointsSpec.Type {
		t.Errorf("source = %d elements of %s, want 2 of float32x3", s.NumElements(), s.Type())
	}

	arr := NewArraySource("ids", []int32{1, 2, 3, 4}, 1, 2)
	if arr.NumElements() != 2 || arr.Type().Count != 2 {
		t.Errorf("array source = %d elements of %s, want 2 of int32[2]", arr.NumElements(), arr.Type())
	}

	invalid := []BufferSource{
		NewSource("", []float32{1}, 1),
		NewSource("points", []float32{1, 2}, 3),
		NewValueSource("points", Value{Type: pointsSpec.Type, NumElements: 2, Data: make([]byte, 12)}),
	}
	for i, s := range invalid {
		if s.IsValid() {
			t.Errorf("invalid[%d].IsValid() = true, want false", i)
		}
	}

	v, _ := NewValue([]float32{1, 2, 3}, 3, 1)
	if !NewValueSource("points", v).IsValid() {
		t.Error("NewValueSource(valid value).IsValid() = false")
	}
}

func TestIndexedSource(t *testing.T) {
	m := newMark(t)

	s := NewIndexedSource("widths", []float32{5, 6, 7}, 1, []int32{2, -1, 0, 3, 2})
	if s.IsResolved() {
		t.Fatal("indexed source resolved before Resolve")
	}
	if !s.Resolve() {
		t.Fatal("Resolve() = false")
	}
	if got := s.NumElements(); got != 5 {
		t.Errorf("NumElements() = %d, want 5", got)
	}
	if got := fmt.Sprint(s.Unaddressed()); got != "[1 3]" {
		t.Errorf("Unaddressed() = %s, want [1 3]", got)
	}
	want := []float32{7, 0, 5, 0, 7}
	if got := sourceValue(s).Float32s(); !equalFloats(got, want) {
		t.Errorf("flattened = %v, want %v", got, want)
	}
	if !m.IsClean() {
		t.Errorf("diagnostics = %v, want none", m.Errors())
	}

	empty := NewIndexedSource("widths", []float32{}, 1, []int32{0})
	empty.Resolve()
	empty.Resolve()
	if got := m.Count(); got != 1 || !errors.Is(m.Errors()[0], ErrEmptySource) {
		t.Errorf("diagnostics = %v, want one ErrEmptySource", m.Errors())
	}

	if NewIndexedSource("widths", []float32{1, 2}, 3, nil).IsValid() {
		t.Error("IsValid() = true for values that do not form tuples")
	}
}

func TestResampleSource(t *testing.T) {
	m := newMark(t)

	v0 := NewSource("points", []float32{0, 0, 0}, 3)
	v1 := NewIndexedSource("points", []float32{2, 4, 6}, 3, []int32{0})
	s := NewResampleSource("points", 0.5, v0, v1)
	if !s.IsValid() {
		t.Fatal("IsValid() = false")
	}
	if got := s.Type(); got != pointsSpec.Type {
		t.Errorf("Type() before Resolve = %s, want float32x3", got)
	}
	if !s.Resolve() {
		t.Fatal("Resolve() = false, inputs resolve on demand")
	}
	if !v1.IsResolved() {
		t.Error("indexed input was not resolved")
	}
	if got := sourceValue(s).Float32s(); !equalFloats(got, []float32{1, 2, 3}) {
		t.Errorf("resampled = %v, want [1 2 3]", got)
	}
	if !m.IsClean() {
		t.Errorf("diagnostics = %v, want none", m.Errors())
	}

	bad := NewResampleSource("points", 0.5, v0, NewSource("points", []float64{1, 1, 1}, 3))
	bad.Resolve()
	bad.Resolve()
	if got := m.Count(); got != 1 {
		t.Errorf("Count() = %d, want a single diagnostic", got)
	}
	if got := sourceValue(bad).Float32s(); !equalFloats(got, []float32{0, 0, 0}) {
		t.Errorf("mismatched resample = %v, want the first sample", got)
	}

	if NewResampleSource("points", 0.5, v0, nil).IsValid() {
		t.Error("IsValid() = true with a nil operand")
	}
}

func TestComputedSource(t *testing.T) {
	dep := NewIndexedSource("radius", []float32{2, 3}, 1, []int32{0, 1, 1})
	calls := 0
	area := NewComputedSource("area", widthsSpec.Type, []BufferSource{dep}, func(deps []BufferSource) (Value, error) {
		calls++
		r := sourceValue(deps[0]).Float32s()
		out := make([]float32, len(r))
		for i, x := range r {
			out[i] = x * x
		}
		return NewValue(out, 1, 1)
	})

	if !area.IsValid() {
		t.Fatal("IsValid() = false")
	}
	if area.Resolve() {
		t.Fatal("Resolve() = true before its input resolved")
	}
	dep.Resolve()
	if !area.Resolve() || !area.Resolve() {
		t.Fatal("Resolve() = false after its input resolved")
	}
	if calls != 1 {
		t.Errorf("callback ran %d times, want 1", calls)
	}
	if got := sourceValue(area).Float32s(); !equalFloats(got, []float32{4, 9, 9}) {
		t.Errorf("computed = %v, want [4 9 9]", got)
	}

	invalid := []*ComputedSource{
		NewComputedSource("", widthsSpec.Type, nil, func([]BufferSource) (Value, error) { return Value{}, nil }),
		NewComputedSource("area", widthsSpec.Type, nil, nil),
		NewComputedSource("area", TupleType{}, nil, func([]BufferSource) (Value, error) { return Value{}, nil }),
		NewComputedSource("area", widthsSpec.Type, []BufferSource{NewSource("", []float32{1}, 1)},
			func([]BufferSource) (Value, error) { return Value{}, nil }),
	}
	for i, s := range invalid {
		if s.IsValid() {
			t.Errorf("invalid[%d].IsValid() = true, want false", i)
		}
	}
}
