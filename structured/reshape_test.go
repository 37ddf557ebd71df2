package structured_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/backend/dtype"
	"github.com/stretchr/testify/require"
	"github.com/tir-org/tir/ir"
	"github.com/tir-org/tir/ir/affine"
	"github.com/tir-org/tir/structured"
)

var f32 = ir.Scalar{DType: dtype.Float32}

// groupsOf builds reassociation maps over the expanded rank from
// dimension runs.
func groupsOf(expandedRank int, runs ...[]int) []affine.Map {
	groups := make([]affine.Map, len(runs))
	for g, run := range runs {
		results := make([]affine.Expr, len(run))
		for i, d := range run {
			results[i] = affine.NewDim(d)
		}
		groups[g] = affine.NewMap(expandedRank, 0, results...)
	}
	return groups
}

// TestReassociationValidityExhaustive checks that every ordered
// partition of [0, n) into contiguous runs is valid, for all small
// ranks. Partitions are enumerated through break masks: bit i set
// means a group boundary between dimensions i and i+1.
func TestReassociationValidityExhaustive(t *testing.T) {
	for n := 1; n <= 6; n++ {
		for mask := 0; mask < 1<<(n-1); mask++ {
			var runs [][]int
			run := []int{0}
			for d := 1; d < n; d++ {
				if mask&(1<<(d-1)) != 0 {
					runs = append(runs, run)
					run = nil
				}
				run = append(run, d)
			}
			runs = append(runs, run)
			groups := groupsOf(n, runs...)
			require.True(t, structured.IsReassociationValid(groups),
				"rank %d mask %b", n, mask)
		}
	}
}

func TestReassociationInvalid(t *testing.T) {
	tests := []struct {
		name   string
		groups []affine.Map
	}{
		{name: "empty", groups: nil},
		{name: "gap", groups: groupsOf(3, []int{0}, []int{2})},
		{name: "overlap", groups: groupsOf(3, []int{0, 1}, []int{1, 2})},
		{name: "reversed", groups: groupsOf(2, []int{1}, []int{0})},
		{name: "reversed run", groups: groupsOf(2, []int{1, 0})},
		{name: "incomplete", groups: groupsOf(3, []int{0, 1})},
		{name: "empty group", groups: groupsOf(2, []int{0, 1}, nil)},
		{
			name:   "symbol",
			groups: []affine.Map{affine.NewMap(1, 1, affine.NewSymbol(0))},
		},
		{
			name:   "compound",
			groups: []affine.Map{affine.NewMap(2, 0, affine.Add(affine.NewDim(0), affine.NewDim(1)))},
		},
	}
	for _, test := range tests {
		require.False(t, structured.IsReassociationValid(test.groups), test.name)
	}
}

func TestCollapsedTypeContiguous(t *testing.T) {
	expanded := ir.NewBufferType([]int64{2, 3, 4}, f32)
	got := structured.CollapsedType(expanded, groupsOf(3, []int{0, 1}, []int{2}))
	want := ir.NewBufferType([]int64{6, 4}, f32)
	require.True(t, got.Equal(want), "got %s, want %s", got, want)
	require.True(t, got.(*ir.BufferType).IsContiguous())
}

func TestCollapsedTypeNonContiguousRun(t *testing.T) {
	// The (0, 1) run is not stride-contiguous: 24 != 4 * 3. Its
	// collapsed extent is dynamic and its stride is the innermost one
	// of the run.
	expanded := ir.NewStridedBufferType([]int64{2, 3, 4}, f32, []int64{24, 4, 1}, 2)
	got := structured.CollapsedType(expanded, groupsOf(3, []int{0, 1}, []int{2}))

	if diff := cmp.Diff([]int64{ir.DynamicSize, 4}, got.Dims()); diff != "" {
		t.Errorf("collapsed dims mismatch (-want +got):\n%s", diff)
	}
	buf := got.(*ir.BufferType)
	strides, offset := buf.StridesAndOffset()
	if diff := cmp.Diff([]int64{4, 1}, strides); diff != "" {
		t.Errorf("collapsed strides mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, int64(2), offset)
}

func TestCollapsedTypeDynamicRun(t *testing.T) {
	expanded := ir.NewTensorType([]int64{2, ir.DynamicSize, 4}, f32)
	got := structured.CollapsedType(expanded, groupsOf(3, []int{0, 1}, []int{2}))
	want := ir.NewTensorType([]int64{ir.DynamicSize, 4}, f32)
	require.True(t, got.Equal(want), "got %s, want %s", got, want)
}

func TestCollapseIsIdempotentOnContiguous(t *testing.T) {
	// Collapsing a contiguous buffer yields a contiguous buffer, so a
	// further full collapse is again the plain product.
	step := structured.CollapsedType(ir.NewBufferType([]int64{2, 3, 4, 5}, f32),
		groupsOf(4, []int{0, 1}, []int{2, 3}))
	require.Equal(t, "buffer<6x20xf32>", step.String())
	full := structured.CollapsedType(step, groupsOf(2, []int{0, 1}))
	require.Equal(t, "buffer<120xf32>", full.String())
}

func TestRankZeroReshape(t *testing.T) {
	roundTrip(t, `func(%0: buffer<1x1xf32>) {
  %1 = structured.reshape %0 [] : buffer<1x1xf32> into buffer<f32>
}
`)

	b, err := ir.ParseFunc("test", `func(%0: buffer<2x1xf32>) {
  %1 = structured.reshape %0 [] : buffer<2x1xf32> into buffer<f32>
}
`)
	require.NoError(t, err)
	require.ErrorContains(t, ir.VerifyBlock(b),
		"expected dimension 0 of the expanded side to be 1 when collapsing to rank 0")
}

func TestReshapeVerifyDiagnostics(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "equal ranks",
			src: `func(%0: buffer<4x6xf32>) {
  %1 = structured.reshape %0 [(d0, d1) -> (d0), (d0, d1) -> (d1)] : buffer<4x6xf32> into buffer<6x4xf32>
}
`,
			want: "expected to collapse or expand dimensions, got equal ranks 2",
		},
		{
			name: "group count",
			src: `func(%0: buffer<2x3x4xf32>) {
  %1 = structured.reshape %0 [(d0, d1, d2) -> (d0, d1, d2)] : buffer<2x3x4xf32> into buffer<6x4xf32>
}
`,
			want: "expected 2 reassociation group(s) to match the collapsed rank, got 1",
		},
		{
			name: "non-sequential",
			src: `func(%0: buffer<2x3x4xf32>) {
  %1 = structured.reshape %0 [(d0, d1, d2) -> (d0, d2), (d0, d1, d2) -> (d1)] : buffer<2x3x4xf32> into buffer<6x4xf32>
}
`,
			want: "expected reassociation group 0 to select dimension 1, got 2",
		},
		{
			name: "type mismatch",
			src: `func(%0: buffer<2x3x4xf32>) {
  %1 = structured.reshape %0 [(d0, d1, d2) -> (d0, d1), (d0, d1, d2) -> (d2)] : buffer<2x3x4xf32> into buffer<8x3xf32>
}
`,
			want: "expected collapsed type to be buffer<6x4xf32>, got buffer<8x3xf32>",
		},
		{
			name: "element type",
			src: `func(%0: buffer<2x3x4xf32>) {
  %1 = structured.reshape %0 [(d0, d1, d2) -> (d0, d1), (d0, d1, d2) -> (d2)] : buffer<2x3x4xf32> into buffer<6x4xi32>
}
`,
			want: "expected the same elemental type, got f32 and i32",
		},
		{
			name: "tensor kind",
			src: `func(%0: tensor<2x3x4xf32>) {
  %1 = structured.reshape %0 [(d0, d1, d2) -> (d0, d1), (d0, d1, d2) -> (d2)] : tensor<2x3x4xf32> into tensor<6x4xf32>
}
`,
			want: "'structured.reshape' op expected buffer operand and result",
		},
	}
	for _, test := range tests {
		b, err := ir.ParseFunc("test", test.src)
		require.NoError(t, err, test.name)
		require.ErrorContains(t, ir.VerifyBlock(b), test.want, test.name)
	}
}
