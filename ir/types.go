// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ir

import (
	"math"
	"strconv"
	"strings"

	"github.com/gx-org/backend/dtype"
)

const (
	// DynamicSize marks a dimension whose extent is unknown until
	// runtime. It prints as "?".
	DynamicSize int64 = -1

	// DynamicStrideOrOffset marks an unknown stride or offset in a
	// buffer layout. It also prints as "?".
	DynamicStrideOrOffset int64 = math.MinInt64
)

type (
	// Type of a value.
	Type interface {
		typ()
		// Equal returns true if the other type is structurally
		// identical.
		Equal(Type) bool
		String() string
	}

	// ShapedType is a type with a rank and per-dimension extents:
	// tensors and buffers.
	ShapedType interface {
		Type
		// Rank returns the number of dimensions.
		Rank() int
		// Dims returns the extent of each dimension.
		// DynamicSize marks unknown extents.
		Dims() []int64
		// Elem returns the element type.
		Elem() Type
		// WithDims returns the same kind of shaped type over new
		// extents, keeping the element type. Buffer layouts reset to
		// contiguous.
		WithDims(dims []int64) ShapedType
	}

	// Scalar is a single element of a given data type.
	Scalar struct {
		DType dtype.DataType
	}

	// Index is the type of dimension extents, loop indices and
	// affine apply results.
	Index struct{}

	// RangeType is the type of a loop range triple (min, max, step).
	RangeType struct{}

	// TensorType is an immutable value of shaped elements.
	TensorType struct {
		dims []int64
		elem Type
	}

	// BufferType is a mutable view over strided memory.
	//
	// A nil strides slice means the canonical contiguous row-major
	// layout with a zero offset. Explicit strides follow the shape in
	// the textual form.
	BufferType struct {
		dims    []int64
		elem    Type
		strides []int64
		offset  int64
	}
)

var (
	_ Type       = Scalar{}
	_ Type       = Index{}
	_ Type       = RangeType{}
	_ ShapedType = (*TensorType)(nil)
	_ ShapedType = (*BufferType)(nil)
)

func (Scalar) typ()      {}
func (Index) typ()       {}
func (RangeType) typ()   {}
func (*TensorType) typ() {}
func (*BufferType) typ() {}

// Scalar types print with the names of the element grammar: f32, i64...

var dtypeNames = []struct {
	dt   dtype.DataType
	name string
}{
	{dtype.Bool, "i1"},
	{dtype.Bfloat16, "bf16"},
	{dtype.Float32, "f32"},
	{dtype.Float64, "f64"},
	{dtype.Int32, "i32"},
	{dtype.Int64, "i64"},
	{dtype.Uint32, "u32"},
	{dtype.Uint64, "u64"},
}

// Equal returns true if the other type is the same scalar.
func (t Scalar) Equal(other Type) bool {
	o, ok := other.(Scalar)
	return ok && o.DType == t.DType
}

// IsFloat returns true for floating point scalars.
func (t Scalar) IsFloat() bool {
	return t.DType == dtype.Bfloat16 || t.DType == dtype.Float32 || t.DType == dtype.Float64
}

// IsInteger returns true for integer scalars, including i1.
func (t Scalar) IsInteger() bool {
	return !t.IsFloat()
}

func (t Scalar) String() string {
	for _, e := range dtypeNames {
		if e.dt == t.DType {
			return e.name
		}
	}
	return "scalar(" + t.DType.String() + ")"
}

// ScalarByName returns the scalar (or index) type with a given
// element name, or false if the name is not an element type.
func ScalarByName(name string) (Type, bool) {
	if name == "index" {
		return Index{}, true
	}
	for _, e := range dtypeNames {
		if e.name == name {
			return Scalar{DType: e.dt}, true
		}
	}
	return nil, false
}

// Equal returns true if the other type is index.
func (Index) Equal(other Type) bool {
	_, ok := other.(Index)
	return ok
}

func (Index) String() string { return "index" }

// Equal returns true if the other type is a range.
func (RangeType) Equal(other Type) bool {
	_, ok := other.(RangeType)
	return ok
}

func (RangeType) String() string { return "range" }

// NewTensorType returns the tensor type with the given extents and
// element type.
func NewTensorType(dims []int64, elem Type) *TensorType {
	return &TensorType{dims: append([]int64(nil), dims...), elem: elem}
}

// Rank returns the number of dimensions of the tensor.
func (t *TensorType) Rank() int { return len(t.dims) }

// Dims returns the extents of the tensor.
func (t *TensorType) Dims() []int64 { return t.dims }

// Elem returns the element type of the tensor.
func (t *TensorType) Elem() Type { return t.elem }

// WithDims returns a tensor type over new extents with the same
// element type.
func (t *TensorType) WithDims(dims []int64) ShapedType {
	return NewTensorType(dims, t.elem)
}

// HasStaticShape returns true if no extent is dynamic.
func (t *TensorType) HasStaticShape() bool { return staticDims(t.dims) }

// Equal returns true if the other type is a tensor with the same
// extents and element type.
func (t *TensorType) Equal(other Type) bool {
	o, ok := other.(*TensorType)
	return ok && equalDims(t.dims, o.dims) && t.elem.Equal(o.elem)
}

func (t *TensorType) String() string {
	var b strings.Builder
	b.WriteString("tensor<")
	writeShape(&b, t.dims, t.elem)
	b.WriteString(">")
	return b.String()
}

// NewBufferType returns the buffer type with the canonical contiguous
// row-major layout.
func NewBufferType(dims []int64, elem Type) *BufferType {
	return &BufferType{dims: append([]int64(nil), dims...), elem: elem}
}

// NewStridedBufferType returns the buffer type with an explicit
// layout. A layout equal to the canonical contiguous one normalizes
// to it, so that types compare equal regardless of how the layout was
// spelled.
func NewStridedBufferType(dims []int64, elem Type, strides []int64, offset int64) *BufferType {
	t := &BufferType{
		dims:    append([]int64(nil), dims...),
		elem:    elem,
		strides: append([]int64(nil), strides...),
		offset:  offset,
	}
	if offset == 0 && equalDims(t.strides, ContiguousStrides(t.dims)) {
		t.strides = nil
	}
	return t
}

// Rank returns the number of dimensions of the buffer.
func (t *BufferType) Rank() int { return len(t.dims) }

// Dims returns the extents of the buffer.
func (t *BufferType) Dims() []int64 { return t.dims }

// Elem returns the element type of the buffer.
func (t *BufferType) Elem() Type { return t.elem }

// WithDims returns a contiguous buffer type over new extents with the
// same element type.
func (t *BufferType) WithDims(dims []int64) ShapedType {
	return NewBufferType(dims, t.elem)
}

// HasStaticShape returns true if no extent is dynamic.
func (t *BufferType) HasStaticShape() bool { return staticDims(t.dims) }

// StridesAndOffset returns the layout of the buffer, materializing
// the canonical contiguous layout when no explicit one was given.
func (t *BufferType) StridesAndOffset() ([]int64, int64) {
	if t.strides != nil {
		return t.strides, t.offset
	}
	return ContiguousStrides(t.dims), 0
}

// IsContiguous returns true if the buffer layout is the canonical
// contiguous row-major one.
func (t *BufferType) IsContiguous() bool {
	if t.strides == nil {
		return true
	}
	// An explicit layout with dynamic entries never proves contiguity.
	return t.offset == 0 && equalDims(t.strides, ContiguousStrides(t.dims)) && staticDims(t.strides)
}

// Equal returns true if the other type is a buffer with the same
// extents, element type and layout.
func (t *BufferType) Equal(other Type) bool {
	o, ok := other.(*BufferType)
	if !ok || !equalDims(t.dims, o.dims) || !t.elem.Equal(o.elem) {
		return false
	}
	ts, to := t.StridesAndOffset()
	os, oo := o.StridesAndOffset()
	return equalDims(ts, os) && to == oo
}

func (t *BufferType) String() string {
	var b strings.Builder
	b.WriteString("buffer<")
	writeShape(&b, t.dims, t.elem)
	if t.strides != nil {
		b.WriteString(", strides: [")
		for i, s := range t.strides {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(layoutString(s))
		}
		b.WriteString("], offset: ")
		b.WriteString(layoutString(t.offset))
	}
	b.WriteString(">")
	return b.String()
}

// ContiguousStrides returns the canonical row-major strides for the
// given extents: the innermost stride is 1 and each outer stride is
// the product of the inner extents. Strides covering a dynamic extent
// are dynamic.
func ContiguousStrides(dims []int64) []int64 {
	strides := make([]int64, len(dims))
	stride := int64(1)
	for i := len(dims) - 1; i >= 0; i-- {
		strides[i] = stride
		if stride == DynamicStrideOrOffset || dims[i] == DynamicSize {
			stride = DynamicStrideOrOffset
		} else {
			stride *= dims[i]
		}
	}
	return strides
}

// HasZeroExtent returns true if some extent is statically zero, that
// is the shape contains no elements.
func HasZeroExtent(t ShapedType) bool {
	for _, d := range t.Dims() {
		if d == 0 {
			return true
		}
	}
	return false
}

// Refines returns true if shaped type a carries at least the static
// information of b: the same rank and element type, with every static
// extent of b statically equal in a. For buffers the layouts must
// refine the same way.
func Refines(a, b ShapedType) bool {
	if a.Rank() != b.Rank() || !a.Elem().Equal(b.Elem()) {
		return false
	}
	if !refinesDims(a.Dims(), b.Dims(), DynamicSize) {
		return false
	}
	ab, aIsBuf := a.(*BufferType)
	bb, bIsBuf := b.(*BufferType)
	if aIsBuf != bIsBuf {
		return false
	}
	if aIsBuf {
		as, ao := ab.StridesAndOffset()
		bs, bo := bb.StridesAndOffset()
		if !refinesDims(as, bs, DynamicStrideOrOffset) {
			return false
		}
		if bo != DynamicStrideOrOffset && ao != bo {
			return false
		}
	}
	return true
}

func refinesDims(a, b []int64, dynamic int64) bool {
	for i, bd := range b {
		if bd == dynamic {
			continue
		}
		if a[i] != bd {
			return false
		}
	}
	return true
}

func staticDims(dims []int64) bool {
	for _, d := range dims {
		if d == DynamicSize || d == DynamicStrideOrOffset {
			return false
		}
	}
	return true
}

func equalDims(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i, d := range a {
		if b[i] != d {
			return false
		}
	}
	return true
}

func writeShape(b *strings.Builder, dims []int64, elem Type) {
	for _, d := range dims {
		b.WriteString(dimString(d))
		b.WriteString("x")
	}
	b.WriteString(elem.String())
}

func dimString(d int64) string {
	if d == DynamicSize {
		return "?"
	}
	return strconv.FormatInt(d, 10)
}

func layoutString(v int64) string {
	if v == DynamicStrideOrOffset {
		return "?"
	}
	return strconv.FormatInt(v, 10)
}
