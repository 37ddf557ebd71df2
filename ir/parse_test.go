package ir_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tir-org/tir/ir"
)

// roundTrip parses a function, checks it verifies, and requires that
// printing reproduces the source exactly.
func roundTrip(t *testing.T, src string) *ir.Block {
	t.Helper()
	b, err := ir.ParseFunc("test", src)
	require.NoError(t, err)
	require.NoError(t, ir.VerifyBlock(b))
	require.Equal(t, src, ir.FuncString(b))
	return b
}

func TestCoreRoundTrip(t *testing.T) {
	roundTrip(t, `func(%0: buffer<?x8xf32>, %1: index) {
  %2 = core.dim %0, 0 : buffer<?x8xf32>
  %3 = core.constant 0 : index
  %4 = core.constant 1 : index
  %5 = core.range %3, %2, %4
  %6 = core.apply (d0)[s0] -> (d0 + s0), %1, %2
  %7 = core.buffer_cast %0 : buffer<?x8xf32> to buffer<?x?xf32>
  %8 = core.add %1, %3 : index
  %9 = core.mul %8, %2 : index
  %10 = core.max %1, %3 : index
  %11 = core.min %1, %3 : index
}
`)
}

func TestConstantRoundTrip(t *testing.T) {
	roundTrip(t, `func() {
  %0 = core.constant 1.5 : f32
  %1 = core.constant -3 : i32
  %2 = core.constant splat(0.0) : tensor<4x8xf32>
  %3 = core.tensor_cast %2 : tensor<4x8xf32> to tensor<?x8xf32>
}
`)
}

func TestStridedBufferRoundTrip(t *testing.T) {
	roundTrip(t, `func(%0: buffer<4x8xf32, strides: [16, 1], offset: 4>) {
  %1 = core.dim %0, 1 : buffer<4x8xf32, strides: [16, 1], offset: 4>
}
`)
}

func TestIndexTensorRoundTrip(t *testing.T) {
	roundTrip(t, `func(%0: tensor<2xindex>, %1: tensor<index>) {
  %2 = core.dim %0, 0 : tensor<2xindex>
}
`)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "unknown op", src: "func() {\n  %0 = core.bogus\n}\n"},
		{name: "undefined value", src: "func() {\n  %0 = core.dim %9, 0 : buffer<4xf32>\n}\n"},
		{
			name: "duplicate value",
			src:  "func(%0: index, %0: index) {\n}\n",
		},
		{
			name: "result count",
			src:  "func(%0: index) {\n  %1, %2 = core.add %0, %0 : index\n}\n",
		},
		{name: "unterminated", src: "func() {\n"},
		{name: "unknown type", src: "func(%0: float) {\n}\n"},
		{name: "bad layout rank", src: "func(%0: buffer<4x8xf32, strides: [1], offset: 0>) {\n}\n"},
		{name: "trailing text", src: "func() {\n}\ntrailing\n"},
	}
	for _, test := range tests {
		_, err := ir.ParseFunc("test", test.src)
		require.Error(t, err, test.name)
	}
}

func TestVerifyDiagnostics(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{
			src:  "func(%0: buffer<4xf32>) {\n  %1 = core.dim %0, 3 : buffer<4xf32>\n}\n",
			want: "'core.dim' op dimension 3 out of range for rank 1",
		},
		{
			src:  "func(%0: buffer<4xf32>) {\n  %1 = core.buffer_cast %0 : buffer<4xf32> to buffer<5xf32>\n}\n",
			want: "'core.buffer_cast' op static extents of dimension 0 differ",
		},
		{
			src:  "func(%0: index, %1: f32) {\n  %2 = core.add %0, %1 : index\n}\n",
			want: "'core.add' op operand types differ: index and f32",
		},
		{
			src:  "func() {\n  %0 = core.constant 3 : f32\n}\n",
			want: "'core.constant' op f32 constant requires a float value",
		},
	}
	for _, test := range tests {
		b, err := ir.ParseFunc("test", test.src)
		require.NoError(t, err, test.src)
		require.ErrorContains(t, ir.VerifyBlock(b), test.want)
	}
}

func TestRegisteredOps(t *testing.T) {
	names := ir.RegisteredOps()
	require.Contains(t, names, "core.constant")
	require.Contains(t, names, "core.apply")
	require.Panics(t, func() {
		ir.RegisterOp("core.constant", nil)
	})
}
