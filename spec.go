package storm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gogpu/gputypes"
)

// ComponentType is the scalar type of a channel component.
type ComponentType uint8

const (
	// Invalid is the zero ComponentType.
	Invalid ComponentType = iota
	// Int32 is a signed 32-bit integer.
	Int32
	// Uint32 is an unsigned 32-bit integer.
	Uint32
	// Float32 is a 32-bit float.
	Float32
	// Float64 is a 64-bit float.
	Float64
)

// Size returns the component size in bytes.
func (c ComponentType) Size() int {
	switch c {
	case Int32, Uint32, Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

// String returns the component type name.
func (c ComponentType) String() string {
	switch c {
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "invalid"
	}
}

// IsFloat reports whether c is a floating point type.
func (c ComponentType) IsFloat() bool {
	return c == Float32 || c == Float64
}

// TupleType is the per-element type of a channel: Arity components of
// type Component, repeated Count times.
type TupleType struct {
	Component ComponentType
	Arity     int
	// Count is the array occupancy of one element, 1 for plain tuples.
	Count int
}

// Size returns the element size in bytes.
func (t TupleType) Size() int {
	return t.Component.Size() * t.Arity * t.Count
}

// Valid reports whether t describes storable data.
func (t TupleType) Valid() bool {
	return t.Component != Invalid && t.Arity > 0 && t.Count > 0
}

// String returns a compact form such as "float32x3" or "int32[4]".
func (t TupleType) String() string {
	s := t.Component.String()
	if t.Arity != 1 {
		s += fmt.Sprintf("x%d", t.Arity)
	}
	if t.Count != 1 {
		s += fmt.Sprintf("[%d]", t.Count)
	}
	return s
}

// VertexFormat returns the vertex attribute format for t, or
// VertexFormatUndefined when t cannot be a vertex attribute.
func (t TupleType) VertexFormat() gputypes.VertexFormat {
	if t.Count != 1 || t.Arity < 1 || t.Arity > 4 {
		return gputypes.VertexFormatUndefined
	}
	var formats [4]gputypes.VertexFormat
	switch t.Component {
	case Float32:
		formats = [4]gputypes.VertexFormat{
			gputypes.VertexFormatFloat32, gputypes.VertexFormatFloat32x2,
			gputypes.VertexFormatFloat32x3, gputypes.VertexFormatFloat32x4,
		}
	case Int32:
		formats = [4]gputypes.VertexFormat{
			gputypes.VertexFormatSint32, gputypes.VertexFormatSint32x2,
			gputypes.VertexFormatSint32x3, gputypes.VertexFormatSint32x4,
		}
	case Uint32:
		formats = [4]gputypes.VertexFormat{
			gputypes.VertexFormatUint32, gputypes.VertexFormatUint32x2,
			gputypes.VertexFormatUint32x3, gputypes.VertexFormatUint32x4,
		}
	default:
		return gputypes.VertexFormatUndefined
	}
	return formats[t.Arity-1]
}

// IndexFormat returns IndexFormatUint32 for single 32-bit integer tuples
// and IndexFormatUndefined otherwise.
func (t TupleType) IndexFormat() gputypes.IndexFormat {
	if t.Arity == 1 && t.Count == 1 && (t.Component == Int32 || t.Component == Uint32) {
		return gputypes.IndexFormatUint32
	}
	return gputypes.IndexFormatUndefined
}

// BufferSpec describes one named, typed channel of per-element data.
// BufferSpecs are values; two specs are equal iff all fields match.
type BufferSpec struct {
	Name string
	Type TupleType
}

// NewBufferSpec returns a spec for a plain tuple channel.
func NewBufferSpec(name string, component ComponentType, arity int) BufferSpec {
	return BufferSpec{Name: name, Type: TupleType{Component: component, Arity: arity, Count: 1}}
}

// NewArrayBufferSpec returns a spec whose elements hold count tuples.
func NewArrayBufferSpec(name string, component ComponentType, arity, count int) BufferSpec {
	return BufferSpec{Name: name, Type: TupleType{Component: component, Arity: arity, Count: count}}
}

// ElementSize returns the size of one element of the channel in bytes.
func (s BufferSpec) ElementSize() int { return s.Type.Size() }

// Valid reports whether s has a name and a valid type.
func (s BufferSpec) Valid() bool { return s.Name != "" && s.Type.Valid() }

// String returns "name:type".
func (s BufferSpec) String() string { return s.Name + ":" + s.Type.String() }

// SortSpecs returns a sorted, deduplicated copy of specs.
// When a name appears more than once the last spec wins.
func SortSpecs(specs []BufferSpec) []BufferSpec {
	byName := make(map[string]BufferSpec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}
	out := make([]BufferSpec, 0, len(byName))
	for _, s := range byName {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SpecsEqual reports whether a and b describe the same layout regardless
// of order.
func SpecsEqual(a, b []BufferSpec) bool {
	a, b = SortSpecs(a), SortSpecs(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// IsSubset reports whether every spec in sub appears in set.
func IsSubset(sub, set []BufferSpec) bool {
	have := make(map[BufferSpec]bool, len(set))
	for _, s := range set {
		have[s] = true
	}
	for _, s := range sub {
		if !have[s] {
			return false
		}
	}
	return true
}

// UnionSpecs returns updated plus every spec of base whose name is not in
// updated, sorted.
func UnionSpecs(updated, base []BufferSpec) []BufferSpec {
	merged := make([]BufferSpec, 0, len(base)+len(updated))
	merged = append(merged, base...)
	merged = append(merged, updated...)
	return SortSpecs(merged)
}

// DifferenceSpecs returns the specs of a whose names are not in b, sorted.
func DifferenceSpecs(a, b []BufferSpec) []BufferSpec {
	drop := make(map[string]bool, len(b))
	for _, s := range b {
		drop[s.Name] = true
	}
	out := make([]BufferSpec, 0, len(a))
	for _, s := range a {
		if !drop[s.Name] {
			out = append(out, s)
		}
	}
	return SortSpecs(out)
}

// signature returns the canonical layout signature of specs.
func signature(specs []BufferSpec) string {
	var sb strings.Builder
	for i, s := range SortSpecs(specs) {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(s.String())
	}
	return sb.String()
}

// findSpec returns the spec named name.
func findSpec(specs []BufferSpec, name string) (BufferSpec, bool) {
	for _, s := range specs {
		if s.Name == name {
			return s, true
		}
	}
	return BufferSpec{}, false
}
