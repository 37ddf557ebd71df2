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

// The windowed ops (convolution and pooling) address their input
// through the expression stride*out + dilation*win - lowPad on each
// spatial dimension.

// WindowAttrs carries the per-spatial-dimension parameters of a
// windowed op. Nil slices default to unit strides and dilations and
// to no padding.
type WindowAttrs struct {
	Strides   []int64
	Dilations []int64
	// Padding holds {low, high} padding per spatial dimension.
	Padding [][2]int64
}

func (w WindowAttrs) stride(i int) int64 {
	if w.Strides == nil {
		return 1
	}
	return w.Strides[i]
}

func (w WindowAttrs) dilation(i int) int64 {
	if w.Dilations == nil {
		return 1
	}
	return w.Dilations[i]
}

func (w WindowAttrs) lowPad(i int) int64 {
	if w.Padding == nil {
		return 0
	}
	return w.Padding[i][0]
}

// windowExpr returns stride*out + dilation*win - lowPad for spatial
// dimension i.
func (w WindowAttrs) windowExpr(i int, out, win affine.Expr) affine.Expr {
	e := affine.Add(
		affine.Mul(out, affine.NewConst(w.stride(i))),
		affine.Mul(win, affine.NewConst(w.dilation(i))))
	return affine.Sub(e, affine.NewConst(w.lowPad(i)))
}

func (w WindowAttrs) verify(name string, nSpatial int) error {
	if w.Strides != nil && len(w.Strides) != nSpatial {
		return fmterr.OpErrorf(name, "expected %d stride(s), got %d", nSpatial, len(w.Strides))
	}
	if w.Dilations != nil && len(w.Dilations) != nSpatial {
		return fmterr.OpErrorf(name, "expected %d dilation(s), got %d", nSpatial, len(w.Dilations))
	}
	if w.Padding != nil && len(w.Padding) != nSpatial {
		return fmterr.OpErrorf(name, "expected %d padding pair(s), got %d", nSpatial, len(w.Padding))
	}
	return nil
}

// ConvOp is an n-dimensional convolution over buffers. The operand
// order is (filter, input, output); all three have rank n+2. The
// input and output carry a batch dimension first and a feature
// dimension last; the filter carries its spatial dimensions first,
// then the input feature and output feature dimensions.
type ConvOp struct {
	namedBase
	WindowAttrs
}

var (
	_ StructuredOp = (*ConvOp)(nil)
	_ ir.EffectOp  = (*ConvOp)(nil)
)

// NewConv returns the convolution of input by filter into output.
func NewConv(filter, input, output *ir.Value, attrs WindowAttrs) *ConvOp {
	op := &ConvOp{WindowAttrs: attrs}
	op.Init(op, filter, input, output)
	buildBody(&op.OpBase, func(b *ir.Builder, args []*ir.Value) []*ir.Value {
		mul := ir.NewBinary(ir.BinaryMul, args[1], args[0])
		b.Insert(mul)
		acc := ir.NewBinary(ir.BinaryAdd, args[2], mul.Result(0))
		b.Insert(acc)
		return []*ir.Value{acc.Result(0)}
	})
	return op
}

// Name of the operation.
func (op *ConvOp) Name() string { return "structured.conv" }

// NumInputs returns 2: the filter and the input.
func (op *ConvOp) NumInputs() int { return 2 }

// NumOutputBuffers returns 1: the output.
func (op *ConvOp) NumOutputBuffers() int { return 1 }

// Filter returns the filter operand.
func (op *ConvOp) Filter() *ir.Value { return op.Operand(0).Get() }

// Input returns the input operand.
func (op *ConvOp) Input() *ir.Value { return op.Operand(1).Get() }

// Output returns the output operand.
func (op *ConvOp) Output() *ir.Value { return op.Operand(2).Get() }

// NumSpatialDims returns the number of spatial dimensions.
func (op *ConvOp) NumSpatialDims() int { return RankOf(op.Output().Type()) - 2 }

// IndexingMaps derives the three maps over the loop dimensions
// (batch, out_spatial..., out_feature, in_feature, win_spatial...).
func (op *ConvOp) IndexingMaps() []affine.Map {
	n := op.NumSpatialDims()
	nLoops := 2*n + 3
	batch := affine.NewDim(0)
	outFeature := affine.NewDim(n + 1)
	inFeature := affine.NewDim(n + 2)
	outSpatial := func(i int) affine.Expr { return affine.NewDim(1 + i) }
	winSpatial := func(i int) affine.Expr { return affine.NewDim(n + 3 + i) }

	filter := make([]affine.Expr, 0, n+2)
	for i := 0; i < n; i++ {
		filter = append(filter, winSpatial(i))
	}
	filter = append(filter, inFeature, outFeature)

	input := make([]affine.Expr, 0, n+2)
	input = append(input, batch)
	for i := 0; i < n; i++ {
		input = append(input, op.windowExpr(i, outSpatial(i), winSpatial(i)))
	}
	input = append(input, inFeature)

	output := make([]affine.Expr, 0, n+2)
	output = append(output, batch)
	for i := 0; i < n; i++ {
		output = append(output, outSpatial(i))
	}
	output = append(output, outFeature)

	return []affine.Map{
		affine.NewMap(nLoops, 0, filter...),
		affine.NewMap(nLoops, 0, input...),
		affine.NewMap(nLoops, 0, output...),
	}
}

// Iterators returns parallel loops over batch, output spatial and
// output feature dimensions, a reduction over the input feature, and
// window loops over the filter spatial dimensions.
func (op *ConvOp) Iterators() []IteratorKind {
	n := op.NumSpatialDims()
	its := uniformIterators(n+2, Parallel)
	its = append(its, Reduction)
	return append(its, uniformIterators(n, Window)...)
}

// Verify checks the conv-specific constraints, then the shared ones.
func (op *ConvOp) Verify() error {
	types := make([]*ir.BufferType, 3)
	for i, opr := range op.Operands() {
		buf, ok := opr.Get().Type().(*ir.BufferType)
		if !ok {
			return fmterr.OpErrorf(op.Name(), "expected operand %d to be a buffer, got %s", i, opr.Get().Type())
		}
		types[i] = buf
	}
	filter, input, output := types[0], types[1], types[2]
	if !filter.Elem().Equal(input.Elem()) || !input.Elem().Equal(output.Elem()) {
		return fmterr.OpErrorf(op.Name(), "expected the same elemental type for all operands")
	}
	if filter.Rank() != input.Rank() || input.Rank() != output.Rank() {
		return fmterr.OpErrorf(op.Name(), "expected the same rank for all operands, got %d, %d and %d",
			filter.Rank(), input.Rank(), output.Rank())
	}
	if output.Rank() < 3 {
		return fmterr.OpErrorf(op.Name(), "expected rank at least 3 (batch, spatial..., feature), got %d", output.Rank())
	}
	if err := op.WindowAttrs.verify(op.Name(), op.NumSpatialDims()); err != nil {
		return err
	}
	return verifyStructured(op)
}

// Effects declares the memory effects of the op.
func (op *ConvOp) Effects() []ir.Effect { return Effects(op) }

// Format prints the operand groups and the window attributes.
func (op *ConvOp) Format(p *ir.Printer) {
	formatOperandGroups(p, op)
	formatWindowAttrs(p, op.WindowAttrs)
}

func parseConv(p *ir.Parser) (ir.Op, error) {
	ins, outs, err := parseInsOuts(p, 2, 1)
	if err != nil {
		return nil, err
	}
	attrs, err := parseWindowAttrs(p)
	if err != nil {
		return nil, err
	}
	return NewConv(ins[0], ins[1], outs[0], attrs), nil
}

func formatWindowAttrs(p *ir.Printer, w WindowAttrs) {
	dict := ir.DictAttr{}
	if w.Strides != nil {
		dict.Entries = append(dict.Entries, ir.NamedAttr{Name: "strides", Value: ir.IntArrayAttr(w.Strides...)})
	}
	if w.Dilations != nil {
		dict.Entries = append(dict.Entries, ir.NamedAttr{Name: "dilations", Value: ir.IntArrayAttr(w.Dilations...)})
	}
	if w.Padding != nil {
		pad := ir.ArrayAttr{}
		for _, pair := range w.Padding {
			pad.Elems = append(pad.Elems, ir.IntArrayAttr(pair[0], pair[1]))
		}
		dict.Entries = append(dict.Entries, ir.NamedAttr{Name: "padding", Value: pad})
	}
	if len(dict.Entries) > 0 {
		p.Printf(" attrs = %s", dict)
	}
}

func parseWindowAttrs(p *ir.Parser) (WindowAttrs, error) {
	s := p.Scanner()
	attrs := WindowAttrs{}
	dict, err := parseTrailingAttrs(p)
	if err != nil {
		return attrs, err
	}
	for _, entry := range dict.Entries {
		switch entry.Name {
		case "strides":
			vals, ok := ir.IntsOf(entry.Value)
			if !ok {
				return attrs, s.Errf("strides must be an array of integers")
			}
			attrs.Strides = vals
		case "dilations":
			vals, ok := ir.IntsOf(entry.Value)
			if !ok {
				return attrs, s.Errf("dilations must be an array of integers")
			}
			attrs.Dilations = vals
		case "padding":
			arr, ok := entry.Value.(ir.ArrayAttr)
			if !ok {
				return attrs, s.Errf("padding must be an array of {low, high} pairs")
			}
			for _, e := range arr.Elems {
				pair, ok := ir.IntsOf(e)
				if !ok || len(pair) != 2 {
					return attrs, s.Errf("padding must be an array of {low, high} pairs")
				}
				attrs.Padding = append(attrs.Padding, [2]int64{pair[0], pair[1]})
			}
		default:
			return attrs, s.Errf("unknown attribute %q", entry.Name)
		}
	}
	return attrs, nil
}
