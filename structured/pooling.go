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

// PoolingKind selects the accumulation of a pooling op.
type PoolingKind int

// Pooling accumulation kinds.
const (
	MaxPool PoolingKind = iota
	MinPool
	SumPool
)

// Name returns the qualified op name of the kind.
func (k PoolingKind) Name() string {
	switch k {
	case MaxPool:
		return "structured.pooling_max"
	case MinPool:
		return "structured.pooling_min"
	case SumPool:
		return "structured.pooling_sum"
	}
	return "structured.pooling?"
}

func (k PoolingKind) binary() ir.BinaryKind {
	switch k {
	case MaxPool:
		return ir.BinaryMax
	case MinPool:
		return ir.BinaryMin
	}
	return ir.BinaryAdd
}

// PoolingOp reduces sliding windows of the input into the output.
// The operand order is (input, windows, output): the windows operand
// is a shaped value whose extents are the window sizes. All three
// operands have the same rank r, and the op iterates over r parallel
// output dimensions followed by r window dimensions.
type PoolingOp struct {
	namedBase
	WindowAttrs
	Kind PoolingKind
}

var (
	_ StructuredOp = (*PoolingOp)(nil)
	_ ir.EffectOp  = (*PoolingOp)(nil)
)

// NewPooling returns the pooling of input into output over the given
// windows.
func NewPooling(kind PoolingKind, input, windows, output *ir.Value, attrs WindowAttrs) *PoolingOp {
	op := &PoolingOp{WindowAttrs: attrs, Kind: kind}
	op.Init(op, input, windows, output)
	buildBody(&op.OpBase, func(b *ir.Builder, args []*ir.Value) []*ir.Value {
		acc := ir.NewBinary(kind.binary(), args[2], args[0])
		b.Insert(acc)
		return []*ir.Value{acc.Result(0)}
	})
	return op
}

// Name of the operation.
func (op *PoolingOp) Name() string { return op.Kind.Name() }

// NumInputs returns 2: the input and the windows.
func (op *PoolingOp) NumInputs() int { return 2 }

// NumOutputBuffers returns 1: the output.
func (op *PoolingOp) NumOutputBuffers() int { return 1 }

// Input returns the pooled operand.
func (op *PoolingOp) Input() *ir.Value { return op.Operand(0).Get() }

// Windows returns the window-shape operand.
func (op *PoolingOp) Windows() *ir.Value { return op.Operand(1).Get() }

// Output returns the output operand.
func (op *PoolingOp) Output() *ir.Value { return op.Operand(2).Get() }

// IndexingMaps derives the three maps over the loop dimensions
// (out..., win...).
func (op *PoolingOp) IndexingMaps() []affine.Map {
	r := RankOf(op.Output().Type())
	nLoops := 2 * r
	input := make([]affine.Expr, r)
	windows := make([]affine.Expr, r)
	output := make([]affine.Expr, r)
	for i := 0; i < r; i++ {
		out, win := affine.NewDim(i), affine.NewDim(r+i)
		input[i] = op.windowExpr(i, out, win)
		windows[i] = win
		output[i] = out
	}
	return []affine.Map{
		affine.NewMap(nLoops, 0, input...),
		affine.NewMap(nLoops, 0, windows...),
		affine.NewMap(nLoops, 0, output...),
	}
}

// Iterators returns r parallel output loops then r window loops.
func (op *PoolingOp) Iterators() []IteratorKind {
	r := RankOf(op.Output().Type())
	return append(uniformIterators(r, Parallel), uniformIterators(r, Window)...)
}

// Verify checks the pooling-specific constraints, then the shared
// ones.
func (op *PoolingOp) Verify() error {
	input, inOk := op.Input().Type().(ir.ShapedType)
	windows, winOk := op.Windows().Type().(ir.ShapedType)
	output, outOk := op.Output().Type().(ir.ShapedType)
	if !inOk || !winOk || !outOk {
		return fmterr.OpErrorf(op.Name(), "expected shaped operands")
	}
	if !input.Elem().Equal(output.Elem()) {
		return fmterr.OpErrorf(op.Name(), "expected the same elemental type for input and output, got %s and %s",
			input.Elem(), output.Elem())
	}
	if input.Rank() != output.Rank() || windows.Rank() != output.Rank() {
		return fmterr.OpErrorf(op.Name(), "expected the same rank for all operands, got %d, %d and %d",
			input.Rank(), windows.Rank(), output.Rank())
	}
	if err := op.WindowAttrs.verify(op.Name(), output.Rank()); err != nil {
		return err
	}
	return verifyStructured(op)
}

// Effects declares the memory effects of the op.
func (op *PoolingOp) Effects() []ir.Effect { return Effects(op) }

// Format prints the operand groups and the window attributes.
func (op *PoolingOp) Format(p *ir.Printer) {
	formatOperandGroups(p, op)
	formatWindowAttrs(p, op.WindowAttrs)
}

func parsePooling(kind PoolingKind) ir.ParseFn {
	return func(p *ir.Parser) (ir.Op, error) {
		ins, outs, err := parseInsOuts(p, 2, 1)
		if err != nil {
			return nil, err
		}
		attrs, err := parseWindowAttrs(p)
		if err != nil {
			return nil, err
		}
		return NewPooling(kind, ins[0], ins[1], outs[0], attrs), nil
	}
}
