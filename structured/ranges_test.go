package structured_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tir-org/tir/ir"
	"github.com/tir-org/tir/structured"
)

func constValue(t *testing.T, v *ir.Value) int64 {
	t.Helper()
	c, ok := v.DefiningOp().(*ir.ConstantOp)
	require.True(t, ok, "value is not a constant")
	iv, ok := c.Val.(ir.IntAttr)
	require.True(t, ok)
	return iv.V
}

func requireRange(t *testing.T, v *ir.Value, min, max, step int64) {
	t.Helper()
	rng, ok := v.DefiningOp().(*ir.RangeOp)
	require.True(t, ok, "value is not a range")
	require.Equal(t, min, constValue(t, rng.Operand(0).Get()))
	require.Equal(t, max, constValue(t, rng.Operand(1).Get()))
	require.Equal(t, step, constValue(t, rng.Operand(2).Get()))
}

func firstStructured(t *testing.T, b *ir.Block) structured.StructuredOp {
	t.Helper()
	for _, op := range b.Ops() {
		if sop, ok := op.(structured.StructuredOp); ok {
			return sop
		}
	}
	t.Fatal("no structured op in block")
	return nil
}

func TestCreateLoopRanges(t *testing.T) {
	b := roundTrip(t, `func(%0: buffer<4x8xf32>, %1: buffer<4x8xf32>) {
  structured.generic {indexing_maps = ["(d0, d1) -> (d0, d1)", "(d0, d1) -> (d0, d1)"], iterators = ["parallel", "parallel"]} ins(%0 : buffer<4x8xf32>) outs(%1 : buffer<4x8xf32>) {
    ^(%2: f32, %3: f32):
    structured.yield %3 : f32
  }
}
`)
	op := firstStructured(t, b)
	ranges, err := structured.CreateLoopRanges(ir.NewBuilder(b), op)
	require.NoError(t, err)
	require.Equal(t, 2, len(ranges))
	requireRange(t, ranges[0], 0, 4, 1)
	requireRange(t, ranges[1], 0, 8, 1)
}

func TestCreateLoopRangesReduction(t *testing.T) {
	// Matmul: the reduction loop bound comes from the first operand
	// dimension addressed by it alone, here the second dimension of
	// the left input.
	b := roundTrip(t, `func(%0: buffer<4x16xf32>, %1: buffer<16x8xf32>, %2: buffer<4x8xf32>) {
  structured.generic {indexing_maps = ["(d0, d1, d2) -> (d0, d2)", "(d0, d1, d2) -> (d2, d1)", "(d0, d1, d2) -> (d0, d1)"], iterators = ["parallel", "parallel", "reduction"]} ins(%0 : buffer<4x16xf32>, %1 : buffer<16x8xf32>) outs(%2 : buffer<4x8xf32>) {
    ^(%3: f32, %4: f32, %5: f32):
    %6 = core.mul %3, %4 : f32
    %7 = core.add %5, %6 : f32
    structured.yield %7 : f32
  }
}
`)
	op := firstStructured(t, b)
	ranges, err := structured.CreateLoopRanges(ir.NewBuilder(b), op)
	require.NoError(t, err)
	require.Equal(t, 3, len(ranges))
	requireRange(t, ranges[0], 0, 4, 1)
	requireRange(t, ranges[1], 0, 8, 1)
	requireRange(t, ranges[2], 0, 16, 1)
}

func TestCreateFlatListOfOperandDims(t *testing.T) {
	b := roundTrip(t, `func(%0: buffer<4x8xf32>, %1: buffer<4x8xf32>) {
  structured.copy ins(%0 : buffer<4x8xf32>) outs(%1 : buffer<4x8xf32>)
}
`)
	op := firstStructured(t, b)
	dims := structured.CreateFlatListOfOperandDims(ir.NewBuilder(b), op)
	require.Equal(t, 4, len(dims))
	for i, want := range []int64{4, 8, 4, 8} {
		require.Equal(t, want, constValue(t, dims[i]))
	}
}

func TestCreateLoopRangesSymbolSource(t *testing.T) {
	src := `func(%0: buffer<?xf32>, %1: buffer<?xf32>) {
  structured.generic {indexing_maps = ["(d0, d1)[s0] -> (d0 + d1)", "(d0, d1)[s0] -> (d0)"], iterators = ["parallel", "window"], symbol_source = 0} ins(%0 : buffer<?xf32>) outs(%1 : buffer<?xf32>) {
    ^(%2: f32, %3: f32):
    structured.yield %3 : f32
  }
}
`
	b := roundTrip(t, src)
	op := firstStructured(t, b)

	// The window loop only occurs inside a compound expression, so
	// its bound is not recoverable from the maps alone.
	_, err := structured.CreateLoopRanges(ir.NewBuilder(b), op)
	require.ErrorContains(t, err, "could not infer the range of loop 1")

	structured.LegacySymbolSourceBounds = true
	defer func() { structured.LegacySymbolSourceBounds = false }()

	ranges, err := structured.CreateLoopRanges(ir.NewBuilder(b), op)
	require.NoError(t, err)
	require.Equal(t, 2, len(ranges))

	// The window loop bound falls back to the extent of the symbol
	// source operand.
	rng, ok := ranges[1].DefiningOp().(*ir.RangeOp)
	require.True(t, ok)
	dim, ok := rng.Operand(1).Get().DefiningOp().(*ir.DimOp)
	require.True(t, ok)
	require.Same(t, op.Operands()[0].Get(), dim.Operand(0).Get())
	require.Equal(t, 0, dim.Dimension)
}
