package storm

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

// column locates one channel inside an array's buffers.
type column struct {
	spec   BufferSpec
	buffer int // index into the array's buffers
	offset int // byte offset inside one element
}

// layout describes how a spec set maps onto GPU buffers.
type layout struct {
	interleaved bool
	// strides holds the element stride of each buffer in bytes.
	strides     []int
	columns     map[string]column
	maxElements int
}

// elementBytes returns the bytes one element occupies across all buffers.
func (l layout) elementBytes() int {
	total := 0
	for _, s := range l.strides {
		total += s
	}
	return total
}

// stripedLayout puts every channel in its own tightly packed buffer.
func stripedLayout(specs []BufferSpec, limits gputypes.Limits) layout {
	l := layout{columns: make(map[string]column, len(specs))}
	maxElements := -1
	for i, s := range specs {
		size := s.ElementSize()
		l.strides = append(l.strides, size)
		l.columns[s.Name] = column{spec: s, buffer: i}
		if n := elementLimit(limits.MaxBufferSize, size); maxElements < 0 || n < maxElements {
			maxElements = n
		}
	}
	l.maxElements = maxElements
	return l
}

// interleavedLayout packs all channels into one struct per element, laid
// out with WGSL host-shareable rules. Offsets and the struct span come from
// lowering a generated struct declaration, so they match what a shader
// reading the buffer sees.
func interleavedLayout(specs []BufferSpec, bindingLimit uint64, align uint32) (layout, error) {
	src, err := elementStructWGSL(specs)
	if err != nil {
		return layout{}, err
	}
	ast, err := naga.Parse(src)
	if err != nil {
		return layout{}, fmt.Errorf("%w: %v", ErrInterleavedLayout, err)
	}
	mod, err := naga.Lower(ast)
	if err != nil {
		return layout{}, fmt.Errorf("%w: %v", ErrInterleavedLayout, err)
	}

	st, stride, ok := findElementStruct(mod)
	if !ok || len(st.Members) != len(specs) {
		return layout{}, fmt.Errorf("%w: element struct not found", ErrInterleavedLayout)
	}
	if align > 1 {
		stride = alignUp(stride, int(align))
	}

	l := layout{
		interleaved: true,
		strides:     []int{stride},
		columns:     make(map[string]column, len(specs)),
		maxElements: elementLimit(bindingLimit, stride),
	}
	for i, s := range specs {
		l.columns[s.Name] = column{spec: s, offset: int(st.Members[i].Offset)}
	}
	return l, nil
}

// elementStructWGSL declares the per-element struct for specs and a
// runtime-sized storage array of it. Members are named by position since
// channel names need not be WGSL identifiers.
func elementStructWGSL(specs []BufferSpec) (string, error) {
	var sb strings.Builder
	sb.WriteString("struct Element {\n")
	for i, s := range specs {
		typ, err := wgslType(s.Type)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrInterleavedLayout, s.Name, err)
		}
		fmt.Fprintf(&sb, "    m%d: %s,\n", i, typ)
	}
	sb.WriteString("}\n\n")
	sb.WriteString("@group(0) @binding(0) var<storage, read> elements: array<Element>;\n")
	return sb.String(), nil
}

func wgslType(t TupleType) (string, error) {
	var scalar string
	switch t.Component {
	case Int32:
		scalar = "i32"
	case Uint32:
		scalar = "u32"
	case Float32:
		scalar = "f32"
	default:
		return "", fmt.Errorf("component %s not shareable", t.Component)
	}

	var base string
	switch {
	case t.Arity == 1:
		base = scalar
	case t.Arity >= 2 && t.Arity <= 4:
		base = fmt.Sprintf("vec%d<%s>", t.Arity, scalar)
	case t.Arity == 16 && t.Component == Float32:
		base = "mat4x4<f32>"
	default:
		return "", fmt.Errorf("arity %d not shareable", t.Arity)
	}

	if t.Count > 1 {
		return fmt.Sprintf("array<%s, %d>", base, t.Count), nil
	}
	return base, nil
}

// findElementStruct returns the lowered Element struct and its array
// stride, falling back to the struct span when no array refers to it.
func findElementStruct(mod *ir.Module) (ir.StructType, int, bool) {
	for h, t := range mod.Types {
		st, ok := t.Inner.(ir.StructType)
		if !ok || t.Name != "Element" {
			continue
		}
		stride := int(st.Span)
		for _, other := range mod.Types {
			if arr, ok := other.Inner.(ir.ArrayType); ok && arr.Base == ir.TypeHandle(h) && arr.Stride > 0 {
				stride = int(arr.Stride)
				break
			}
		}
		return st, stride, true
	}
	return ir.StructType{}, 0, false
}

func elementLimit(limit uint64, stride int) int {
	if stride <= 0 {
		return 0
	}
	n := limit / uint64(stride)
	if n > uint64(maxInt32) {
		return maxInt32
	}
	return int(n)
}

const maxInt32 = 1<<31 - 1

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}
