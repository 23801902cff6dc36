package storm

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Scalar is the set of Go types a channel component can hold.
type Scalar interface {
	int32 | uint32 | float32 | float64
}

// Value is typed, little-endian element data for one channel.
type Value struct {
	Type        TupleType
	NumElements int
	Data        []byte
}

// NewValue packs values into a Value of the given arity and array size.
// len(values) must be a multiple of arity*arraySize.
func NewValue[T Scalar](values []T, arity, arraySize int) (Value, error) {
	component, data := encodeScalars(values)
	typ := TupleType{Component: component, Arity: arity, Count: arraySize}
	if !typ.Valid() {
		return Value{}, fmt.Errorf("%w: arity %d, array size %d", ErrTypeMismatch, arity, arraySize)
	}
	per := arity * arraySize
	if len(values)%per != 0 {
		return Value{}, fmt.Errorf("%w: %d components do not form %s elements", ErrTypeMismatch, len(values), typ)
	}
	return Value{Type: typ, NumElements: len(values) / per, Data: data}, nil
}

// IsEmpty reports whether v holds no elements.
func (v Value) IsEmpty() bool { return v.NumElements == 0 }

// Element returns the bytes of element i.
func (v Value) Element(i int) []byte {
	size := v.Type.Size()
	return v.Data[i*size : (i+1)*size]
}

// Float32s decodes v as float32 components. Returns nil for other types.
func (v Value) Float32s() []float32 {
	if v.Type.Component != Float32 {
		return nil
	}
	out := make([]float32, len(v.Data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(v.Data[i*4:]))
	}
	return out
}

// Float64s decodes v as float64 components. Returns nil for other types.
func (v Value) Float64s() []float64 {
	if v.Type.Component != Float64 {
		return nil
	}
	out := make([]float64, len(v.Data)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(v.Data[i*8:]))
	}
	return out
}

// Int32s decodes v as int32 components. Returns nil for other types.
func (v Value) Int32s() []int32 {
	if v.Type.Component != Int32 {
		return nil
	}
	out := make([]int32, len(v.Data)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(v.Data[i*4:]))
	}
	return out
}

// Uint32s decodes v as uint32 components. Returns nil for other types.
func (v Value) Uint32s() []uint32 {
	if v.Type.Component != Uint32 {
		return nil
	}
	out := make([]uint32, len(v.Data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(v.Data[i*4:])
	}
	return out
}

// ResampleValues interpolates linearly between a and b at alpha in [0, 1].
// Integer data is not interpolated; a is held. Operands must share type
// and length, otherwise ErrTypeMismatch is returned.
func ResampleValues(alpha float64, a, b Value) (Value, error) {
	if a.Type != b.Type {
		return Value{}, fmt.Errorf("%w: cannot resample %s with %s", ErrTypeMismatch, a.Type, b.Type)
	}
	if a.NumElements != b.NumElements {
		return Value{}, fmt.Errorf("%w: cannot resample %d elements with %d", ErrTypeMismatch, a.NumElements, b.NumElements)
	}

	out := Value{Type: a.Type, NumElements: a.NumElements, Data: make([]byte, len(a.Data))}
	switch a.Type.Component {
	case Float32:
		for i := 0; i+4 <= len(a.Data); i += 4 {
			x := float64(math.Float32frombits(binary.LittleEndian.Uint32(a.Data[i:])))
			y := float64(math.Float32frombits(binary.LittleEndian.Uint32(b.Data[i:])))
			binary.LittleEndian.PutUint32(out.Data[i:], math.Float32bits(float32(x+(y-x)*alpha)))
		}
	case Float64:
		for i := 0; i+8 <= len(a.Data); i += 8 {
			x := math.Float64frombits(binary.LittleEndian.Uint64(a.Data[i:]))
			y := math.Float64frombits(binary.LittleEndian.Uint64(b.Data[i:]))
			binary.LittleEndian.PutUint64(out.Data[i:], math.Float64bits(x+(y-x)*alpha))
		}
	default:
		copy(out.Data, a.Data)
	}
	return out, nil
}

// encodeScalars packs values little-endian and reports their component type.
func encodeScalars[T Scalar](values []T) (ComponentType, []byte) {
	var zero T
	var component ComponentType
	switch any(zero).(type) {
	case int32:
		component = Int32
	case uint32:
		component = Uint32
	case float32:
		component = Float32
	case float64:
		component = Float64
	}

	data := make([]byte, len(values)*component.Size())
	for i, v := range values {
		switch x := any(v).(type) {
		case int32:
			binary.LittleEndian.PutUint32(data[i*4:], uint32(x))
		case uint32:
			binary.LittleEndian.PutUint32(data[i*4:], x)
		case float32:
			binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(x))
		case float64:
			binary.LittleEndian.PutUint64(data[i*8:], math.Float64bits(x))
		}
	}
	return component, data
}

// fillElement encodes fallback into one element of typ. Missing
// components repeat the last fallback value; an empty fallback yields zeros.
func fillElement(typ TupleType, fallback []float64) []byte {
	n := typ.Arity * typ.Count
	size := typ.Component.Size()
	out := make([]byte, n*size)
	if len(fallback) == 0 {
		return out
	}
	for i := 0; i < n; i++ {
		f := fallback[len(fallback)-1]
		if i < len(fallback) {
			f = fallback[i]
		}
		switch typ.Component {
		case Int32:
			binary.LittleEndian.PutUint32(out[i*size:], uint32(int32(f)))
		case Uint32:
			binary.LittleEndian.PutUint32(out[i*size:], uint32(f))
		case Float32:
			binary.LittleEndian.PutUint32(out[i*size:], math.Float32bits(float32(f)))
		case Float64:
			binary.LittleEndian.PutUint64(out[i*size:], math.Float64bits(f))
		}
	}
	return out
}
