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

package structured

import (
	"github.com/tir-org/tir/fmterr"
	"github.com/tir-org/tir/ir"
	"github.com/tir-org/tir/ir/affine"
)

func init() {
	ir.RegisterOp("structured.reshape", parseReshape(false))
	ir.RegisterOp("structured.tensor_reshape", parseReshape(true))
}

// A reassociation is an ordered partition of the dimensions of the
// higher-rank (expanded) side of a reshape into contiguous runs, one
// run per dimension of the lower-rank (collapsed) side. Each group is
// a symbol-free map over the expanded rank selecting its run.

// IsReassociationValid returns true if the groups partition the
// dimensions [0, n) of their common dimension count into contiguous
// increasing runs without gaps or overlaps.
func IsReassociationValid(groups []affine.Map) bool {
	if len(groups) == 0 {
		return false
	}
	return validateReassociation("reshape", groups, groups[0].NumDims()) == nil
}

// validateReassociation checks the groups against the expanded rank,
// reporting the offending group.
func validateReassociation(name string, groups []affine.Map, expandedRank int) error {
	next := 0
	for g, group := range groups {
		if group.NumSymbols() != 0 {
			return fmterr.OpErrorf(name, "expected reassociation group %d to be symbol-free, got %s", g, group)
		}
		if group.NumDims() != expandedRank {
			return fmterr.OpErrorf(name, "expected reassociation group %d to have %d dim(s), got %d",
				g, expandedRank, group.NumDims())
		}
		if group.NumResults() == 0 {
			return fmterr.OpErrorf(name, "expected reassociation group %d to be non-empty", g)
		}
		for _, res := range group.Results() {
			d, ok := res.(affine.Dim)
			if !ok {
				return fmterr.OpErrorf(name, "expected reassociation group %d to select plain dimensions, got %s", g, res)
			}
			if d.Pos != next {
				return fmterr.OpErrorf(name, "expected reassociation group %d to select dimension %d, got %d", g, next, d.Pos)
			}
			next++
		}
	}
	if next != expandedRank {
		return fmterr.OpErrorf(name, "reassociation groups cover %d dimension(s) out of %d", next, expandedRank)
	}
	return nil
}

// groupRuns returns the selected dimension positions of each group.
func groupRuns(groups []affine.Map) [][]int {
	runs := make([][]int, len(groups))
	for g, group := range groups {
		for _, res := range group.Results() {
			if d, ok := res.(affine.Dim); ok {
				runs[g] = append(runs[g], d.Pos)
			}
		}
	}
	return runs
}

// CollapsedType computes the type of the collapsed side of a reshape
// from the expanded side and the reassociation. A collapsed extent is
// the product of its run's extents when all of them are static and
// the run is stride-contiguous; it is dynamic otherwise. For buffers
// a non-contiguous source layout yields a recomputed strided layout.
func CollapsedType(expanded ir.ShapedType, groups []affine.Map) ir.ShapedType {
	runs := groupRuns(groups)
	buf, isBuffer := expanded.(*ir.BufferType)
	dims := expanded.Dims()

	var strides []int64
	var offset int64
	if isBuffer {
		strides, offset = buf.StridesAndOffset()
	}

	collapsedDims := make([]int64, len(runs))
	collapsedStrides := make([]int64, len(runs))
	for g, run := range runs {
		extent := int64(1)
		static := true
		for _, d := range run {
			if dims[d] == ir.DynamicSize {
				static = false
				break
			}
			extent *= dims[d]
		}
		if static && isBuffer && !runContiguous(run, dims, strides) {
			static = false
		}
		if static {
			collapsedDims[g] = extent
		} else {
			collapsedDims[g] = ir.DynamicSize
		}
		if isBuffer {
			// The collapsed dimension steps like the innermost
			// dimension of its run.
			collapsedStrides[g] = strides[run[len(run)-1]]
		}
	}

	if !isBuffer {
		return ir.NewTensorType(collapsedDims, expanded.Elem())
	}
	if buf.IsContiguous() {
		return ir.NewBufferType(collapsedDims, expanded.Elem())
	}
	return ir.NewStridedBufferType(collapsedDims, expanded.Elem(), collapsedStrides, offset)
}

// runContiguous reports whether stride[i] == stride[i+1] * extent[i+1]
// holds between adjacent dimensions of the run, with all entries
// static.
func runContiguous(run []int, dims, strides []int64) bool {
	for i := 0; i < len(run)-1; i++ {
		cur, next := run[i], run[i+1]
		if strides[cur] == ir.DynamicStrideOrOffset || strides[next] == ir.DynamicStrideOrOffset {
			return false
		}
		if dims[next] == ir.DynamicSize || strides[cur] != strides[next]*dims[next] {
			return false
		}
	}
	return true
}

// ReshapeOp reassociates the dimensions of a buffer without moving
// data. TensorReshapeOp is the value-typed variant over tensors.
type ReshapeOp struct {
	ir.OpBase
	Reassociation []affine.Map
}

// TensorReshapeOp reassociates the dimensions of a tensor.
type TensorReshapeOp struct {
	ir.OpBase
	Reassociation []affine.Map
}

var (
	_ ir.Op = (*ReshapeOp)(nil)
	_ ir.Op = (*TensorReshapeOp)(nil)
)

// NewReshape returns the buffer reshape of src to resultType.
func NewReshape(src *ir.Value, reassociation []affine.Map, resultType ir.Type) *ReshapeOp {
	op := &ReshapeOp{Reassociation: reassociation}
	op.Init(op, src)
	op.InitResults(resultType)
	return op
}

// NewTensorReshape returns the tensor reshape of src to resultType.
func NewTensorReshape(src *ir.Value, reassociation []affine.Map, resultType ir.Type) *TensorReshapeOp {
	op := &TensorReshapeOp{Reassociation: reassociation}
	op.Init(op, src)
	op.InitResults(resultType)
	return op
}

// Name of the operation.
func (op *ReshapeOp) Name() string { return "structured.reshape" }

// Name of the operation.
func (op *TensorReshapeOp) Name() string { return "structured.tensor_reshape" }

// Src returns the reshaped value.
func (op *ReshapeOp) Src() *ir.Value { return op.Operand(0).Get() }

// Src returns the reshaped value.
func (op *TensorReshapeOp) Src() *ir.Value { return op.Operand(0).Get() }

// IsCollapsing returns true if the result has lower rank than the
// source.
func (op *ReshapeOp) IsCollapsing() bool { return isCollapsing(op) }

// IsCollapsing returns true if the result has lower rank than the
// source.
func (op *TensorReshapeOp) IsCollapsing() bool { return isCollapsing(op) }

func isCollapsing(op ir.Op) bool {
	src := RankOf(op.Operands()[0].Get().Type())
	dst := RankOf(op.Results()[0].Type())
	return dst < src
}

// reshapeSides returns the expanded (higher-rank) and collapsed
// (lower-rank) side types of a reshape.
func reshapeSides(op ir.Op) (expanded, collapsed ir.ShapedType) {
	src := op.Operands()[0].Get().Type().(ir.ShapedType)
	dst := op.Results()[0].Type().(ir.ShapedType)
	if dst.Rank() < src.Rank() {
		return src, dst
	}
	return dst, src
}

// Verify checks the reshape constraints.
func (op *ReshapeOp) Verify() error {
	src, okSrc := op.Src().Type().(*ir.BufferType)
	dst, okDst := op.Result(0).Type().(*ir.BufferType)
	if !okSrc || !okDst {
		return fmterr.OpErrorf(op.Name(), "expected buffer operand and result")
	}
	return verifyReshape(op, src, dst, op.Reassociation)
}

// Verify checks the reshape constraints.
func (op *TensorReshapeOp) Verify() error {
	src, okSrc := op.Src().Type().(*ir.TensorType)
	dst, okDst := op.Result(0).Type().(*ir.TensorType)
	if !okSrc || !okDst {
		return fmterr.OpErrorf(op.Name(), "expected tensor operand and result")
	}
	return verifyReshape(op, src, dst, op.Reassociation)
}

func verifyReshape(op ir.Op, src, dst ir.ShapedType, groups []affine.Map) error {
	name := op.Name()
	if !src.Elem().Equal(dst.Elem()) {
		return fmterr.OpErrorf(name, "expected the same elemental type, got %s and %s", src.Elem(), dst.Elem())
	}
	if src.Rank() == dst.Rank() {
		return fmterr.OpErrorf(name, "expected to collapse or expand dimensions, got equal ranks %d", src.Rank())
	}
	expanded, collapsed := reshapeSides(op)

	// Collapsing to rank 0 is only the degenerate all-unit case and
	// carries no reassociation.
	if collapsed.Rank() == 0 {
		for i, d := range expanded.Dims() {
			if d != 1 {
				return fmterr.OpErrorf(name, "expected dimension %d of the expanded side to be 1 when collapsing to rank 0, got %s",
					i, expanded)
			}
		}
		if len(groups) != 0 {
			return fmterr.OpErrorf(name, "expected no reassociation groups when collapsing to rank 0, got %d", len(groups))
		}
		return nil
	}

	if len(groups) != collapsed.Rank() {
		return fmterr.OpErrorf(name, "expected %d reassociation group(s) to match the collapsed rank, got %d",
			collapsed.Rank(), len(groups))
	}
	if err := validateReassociation(name, groups, expanded.Rank()); err != nil {
		return err
	}
	want := CollapsedType(expanded, groups)
	if !want.Equal(collapsed) {
		return fmterr.OpErrorf(name, "expected collapsed type to be %s, got %s", want, collapsed)
	}
	return nil
}

// Format prints the source, the reassociation and both types.
func (op *ReshapeOp) Format(p *ir.Printer) {
	formatReshape(p, op, op.Reassociation)
}

// Format prints the source, the reassociation and both types.
func (op *TensorReshapeOp) Format(p *ir.Printer) {
	formatReshape(p, op, op.Reassociation)
}

func formatReshape(p *ir.Printer, op ir.Op, groups []affine.Map) {
	src := op.Operands()[0].Get()
	p.Printf(" %s [", p.ValueName(src))
	for i, g := range groups {
		if i > 0 {
			p.Printf(", ")
		}
		p.Printf("%s", g)
	}
	p.Printf("] : %s into %s", src.Type(), op.Results()[0].Type())
}

func parseReshape(tensor bool) ir.ParseFn {
	return func(p *ir.Parser) (ir.Op, error) {
		src, err := p.ParseValueUse()
		if err != nil {
			return nil, err
		}
		s := p.Scanner()
		if err := s.Expect('['); err != nil {
			return nil, err
		}
		var groups []affine.Map
		if !s.Accept(']') {
			for {
				m, err := affine.ParseMap(s)
				if err != nil {
					return nil, err
				}
				groups = append(groups, m)
				if s.Accept(']') {
					break
				}
				if err := s.Expect(','); err != nil {
					return nil, err
				}
			}
		}
		if err := s.Expect(':'); err != nil {
			return nil, err
		}
		if _, err := p.ParseType(); err != nil {
			return nil, err
		}
		if !s.AcceptIdent("into") {
			return nil, s.Errf("expected \"into\", got %q", s.Text())
		}
		resultType, err := p.ParseType()
		if err != nil {
			return nil, err
		}
		if tensor {
			return NewTensorReshape(src, groups, resultType), nil
		}
		return NewReshape(src, groups, resultType), nil
	}
}
