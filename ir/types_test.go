package ir_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/backend/dtype"
	"github.com/stretchr/testify/require"
	"github.com/tir-org/tir/ir"
)

var (
	f32 = ir.Scalar{DType: dtype.Float32}
	i32 = ir.Scalar{DType: dtype.Int32}
)

func TestTypeStrings(t *testing.T) {
	tests := []struct {
		typ  ir.Type
		want string
	}{
		{typ: f32, want: "f32"},
		{typ: ir.Scalar{DType: dtype.Bool}, want: "i1"},
		{typ: ir.Index{}, want: "index"},
		{typ: ir.RangeType{}, want: "range"},
		{typ: ir.NewTensorType(nil, f32), want: "tensor<f32>"},
		{typ: ir.NewTensorType([]int64{4, ir.DynamicSize}, f32), want: "tensor<4x?xf32>"},
		{typ: ir.NewTensorType([]int64{2}, ir.Index{}), want: "tensor<2xindex>"},
		{typ: ir.NewBufferType([]int64{4, 8}, f32), want: "buffer<4x8xf32>"},
		{
			typ:  ir.NewStridedBufferType([]int64{4, 8}, f32, []int64{16, 1}, 4),
			want: "buffer<4x8xf32, strides: [16, 1], offset: 4>",
		},
		{
			typ:  ir.NewStridedBufferType([]int64{ir.DynamicSize}, f32, []int64{ir.DynamicStrideOrOffset}, 0),
			want: "buffer<?xf32, strides: [?], offset: 0>",
		},
	}
	for _, test := range tests {
		require.Equal(t, test.want, test.typ.String())
	}
}

func TestStridedNormalization(t *testing.T) {
	// Spelling the canonical contiguous layout explicitly yields the
	// same type as not spelling it at all.
	explicit := ir.NewStridedBufferType([]int64{4, 8}, f32, []int64{8, 1}, 0)
	implicit := ir.NewBufferType([]int64{4, 8}, f32)
	require.True(t, explicit.Equal(implicit))
	require.True(t, explicit.IsContiguous())
	require.Equal(t, "buffer<4x8xf32>", explicit.String())

	offset := ir.NewStridedBufferType([]int64{4, 8}, f32, []int64{8, 1}, 2)
	require.False(t, offset.Equal(implicit))
	require.False(t, offset.IsContiguous())
}

func TestContiguousStrides(t *testing.T) {
	tests := []struct {
		dims []int64
		want []int64
	}{
		{dims: nil, want: []int64{}},
		{dims: []int64{4}, want: []int64{1}},
		{dims: []int64{2, 3, 4}, want: []int64{12, 4, 1}},
		{
			dims: []int64{2, ir.DynamicSize, 4},
			want: []int64{ir.DynamicStrideOrOffset, 4, 1},
		},
	}
	for _, test := range tests {
		got := ir.ContiguousStrides(test.dims)
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("ContiguousStrides(%v) mismatch (-want +got):\n%s", test.dims, diff)
		}
	}
}

func TestRefines(t *testing.T) {
	static := ir.NewTensorType([]int64{4, 8}, f32)
	partial := ir.NewTensorType([]int64{4, ir.DynamicSize}, f32)
	dynamic := ir.NewTensorType([]int64{ir.DynamicSize, ir.DynamicSize}, f32)

	require.True(t, ir.Refines(static, partial))
	require.True(t, ir.Refines(static, dynamic))
	require.True(t, ir.Refines(partial, dynamic))
	require.True(t, ir.Refines(static, static))
	require.False(t, ir.Refines(partial, static))
	require.False(t, ir.Refines(dynamic, partial))

	other := ir.NewTensorType([]int64{5, 8}, f32)
	require.False(t, ir.Refines(other, static))

	intElem := ir.NewTensorType([]int64{4, 8}, i32)
	require.False(t, ir.Refines(intElem, static))

	buf := ir.NewBufferType([]int64{4, 8}, f32)
	require.False(t, ir.Refines(buf, static))
}

func TestRefinesBufferLayout(t *testing.T) {
	contiguous := ir.NewBufferType([]int64{4, 8}, f32)
	dynLayout := ir.NewStridedBufferType([]int64{4, 8}, f32,
		[]int64{ir.DynamicStrideOrOffset, 1}, ir.DynamicStrideOrOffset)

	require.True(t, ir.Refines(contiguous, dynLayout))
	require.False(t, ir.Refines(dynLayout, contiguous))
}

func TestHasZeroExtent(t *testing.T) {
	require.True(t, ir.HasZeroExtent(ir.NewBufferType([]int64{4, 0, 8}, f32)))
	require.False(t, ir.HasZeroExtent(ir.NewBufferType([]int64{4, 8}, f32)))
	require.False(t, ir.HasZeroExtent(ir.NewBufferType([]int64{ir.DynamicSize}, f32)))
}

func TestScalarByName(t *testing.T) {
	for _, name := range []string{"i1", "bf16", "f32", "f64", "i32", "i64", "u32", "u64", "index"} {
		typ, ok := ir.ScalarByName(name)
		require.True(t, ok, name)
		require.Equal(t, name, typ.String())
	}
	_, ok := ir.ScalarByName("f16")
	require.False(t, ok)
}
