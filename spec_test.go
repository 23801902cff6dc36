package storm

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestTupleType(t *testing.T) {
	tests := []struct {
		typ    TupleType
		str    string
		size   int
		vertex gputypes.VertexFormat
		index  gputypes.IndexFormat
	}{
		{widthsSpec.Type, "float32", 4, gputypes.VertexFormatFloat32, gputypes.IndexFormatUndefined},
		{pointsSpec.Type, "float32x3", 12, gputypes.VertexFormatFloat32x3, gputypes.IndexFormatUndefined},
		{TupleType{Int32, 1, 1}, "int32", 4, gputypes.VertexFormatSint32, gputypes.IndexFormatUint32},
		{TupleType{Uint32, 2, 1}, "uint32x2", 8, gputypes.VertexFormatUint32x2, gputypes.IndexFormatUndefined},
		{TupleType{Float64, 1, 1}, "float64", 8, gputypes.VertexFormatUndefined, gputypes.IndexFormatUndefined},
		{TupleType{Float32, 16, 1}, "float32x16", 64, gputypes.VertexFormatUndefined, gputypes.IndexFormatUndefined},
		{TupleType{Int32, 1, 4}, "int32[4]", 16, gputypes.VertexFormatUndefined, gputypes.IndexFormatUndefined},
	}
	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			if got := tt.typ.String(); got != tt.str {
				t.Errorf("String() = %q, want %q", got, tt.str)
			}
			if got := tt.typ.Size(); got != tt.size {
				t.Errorf("Size() = %d, want %d", got, tt.size)
			}
			if got := tt.typ.VertexFormat(); got != tt.vertex {
				t.Errorf("VertexFormat() = %v, want %v", got, tt.vertex)
			}
			if got := tt.typ.IndexFormat(); got != tt.index {
				t.Errorf("IndexFormat() = %v, want %v", got, tt.index)
			}
			if !tt.typ.Valid() {
				t.Error("Valid() = false, want true")
			}
		})
	}

	if (TupleType{}).Valid() {
		t.Error("TupleType{}.Valid() = true, want false")
	}
	if (BufferSpec{Type: pointsSpec.Type}).Valid() {
		t.Error("unnamed BufferSpec.Valid() = true, want false")
	}
}

func TestSortSpecs(t *testing.T) {
	retyped := NewBufferSpec("points", Float64, 3)
	got := SortSpecs([]BufferSpec{widthsSpec, pointsSpec, colorSpec, retyped})

	want := []BufferSpec{colorSpec, retyped, widthsSpec}
	if len(got) != len(want) {
		t.Fatalf("SortSpecs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SortSpecs()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSpecSetOperations(t *testing.T) {
	base := []BufferSpec{pointsSpec, normalsSpec}
	retyped := NewBufferSpec("normals", Float64, 3)

	t.Run("SpecsEqual", func(t *testing.T) {
		tests := []struct {
			a, b []BufferSpec
			want bool
		}{
			{base, []BufferSpec{normalsSpec, pointsSpec}, true},
			{base, []BufferSpec{pointsSpec}, false},
			{base, []BufferSpec{pointsSpec, retyped}, false},
			{nil, []BufferSpec{}, true},
		}
		for _, tt := range tests {
			if got := SpecsEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("SpecsEqual(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		}
	})

	t.Run("IsSubset", func(t *testing.T) {
		tests := []struct {
			sub, set []BufferSpec
			want     bool
		}{
			{[]BufferSpec{pointsSpec}, base, true},
			{nil, base, true},
			{[]BufferSpec{retyped}, base, false},
			{[]BufferSpec{widthsSpec}, base, false},
		}
		for _, tt := range tests {
			if got := IsSubset(tt.sub, tt.set); got != tt.want {
				t.Errorf("IsSubset(%v, %v) = %v, want %v", tt.sub, tt.set, got, tt.want)
			}
		}
	})

	t.Run("UnionSpecs", func(t *testing.T) {
		got := UnionSpecs([]BufferSpec{retyped, widthsSpec}, base)
		want := []BufferSpec{retyped, pointsSpec, widthsSpec}
		if !SpecsEqual(got, want) {
			t.Errorf("UnionSpecs() = %v, want %v", got, want)
		}
	})

	t.Run("DifferenceSpecs", func(t *testing.T) {
		got := DifferenceSpecs([]BufferSpec{pointsSpec, retyped, widthsSpec}, base)
		want := []BufferSpec{widthsSpec}
		if !SpecsEqual(got, want) {
			t.Errorf("DifferenceSpecs() = %v, want %v", got, want)
		}
	})
}

func TestSignature(t *testing.T) {
	a := signature([]BufferSpec{widthsSpec, pointsSpec})
	b := signature([]BufferSpec{pointsSpec, widthsSpec})
	if a != b {
		t.Errorf("signature() depends on order: %q != %q", a, b)
	}
	if want := "points:float32x3,widths:float32"; a != want {
		t.Errorf("signature() = %q, want %q", a, want)
	}
}

func TestUsageHintBufferUsage(t *testing.T) {
	tests := []struct {
		hint UsageHint
		want gputypes.BufferUsage
	}{
		{UsageVertex, gputypes.BufferUsageVertex},
		{UsageIndex | UsageImmutable, gputypes.BufferUsageIndex},
		{UsageUniform | UsageStorage, gputypes.BufferUsageUniform | gputypes.BufferUsageStorage},
		{UsageSizeVarying, 0},
	}
	for _, tt := range tests {
		if got := tt.hint.bufferUsage(); got != tt.want {
			t.Errorf("UsageHint(%#x).bufferUsage() = %v, want %v", uint32(tt.hint), got, tt.want)
		}
	}
}
