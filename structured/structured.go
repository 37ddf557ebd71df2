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

// Package structured defines the structured tensor operations: ops
// whose semantics is an iteration space, one affine indexing map per
// shaped operand, and a scalar computation body.
//
// The generic and indexed_generic ops carry their maps and iterator
// kinds explicitly. The named ops (fill, copy, conv, pooling) derive
// both from their operands and attributes, and all route through the
// same structural verification.
package structured

import (
	"github.com/tir-org/tir/fmterr"
	"github.com/tir-org/tir/ir"
	"github.com/tir-org/tir/ir/affine"
)

// IteratorKind tags one loop dimension of a structured op.
type IteratorKind int

// Loop iterator kinds.
const (
	Parallel IteratorKind = iota
	Reduction
	Window
)

// String representation of the iterator kind.
func (k IteratorKind) String() string {
	switch k {
	case Parallel:
		return "parallel"
	case Reduction:
		return "reduction"
	case Window:
		return "window"
	}
	return "iterator?"
}

// IteratorByName returns the iterator kind with the given name.
func IteratorByName(name string) (IteratorKind, bool) {
	switch name {
	case "parallel":
		return Parallel, true
	case "reduction":
		return Reduction, true
	case "window":
		return Window, true
	}
	return 0, false
}

// DimLevel is the sparsity of one dimension of one operand.
type DimLevel int

// Dimension sparsity levels.
const (
	Dense DimLevel = iota
	Sparse
)

// String representation of the level.
func (l DimLevel) String() string {
	if l == Sparse {
		return "sparse"
	}
	return "dense"
}

// DimLevelByName returns the level with the given name.
func DimLevelByName(name string) (DimLevel, bool) {
	switch name {
	case "dense":
		return Dense, true
	case "sparse":
		return Sparse, true
	}
	return 0, false
}

// StructuredOp is implemented by every structured operation. The
// operand list is partitioned into inputs, mutable output buffers and
// init tensors seeding the results, in that order.
//
// The unexported method keeps the set of structured ops closed to
// this package: new kinds are added here, next to the verification
// they all share.
type StructuredOp interface {
	ir.Op

	// numIndexArgs returns how many loop-index arguments prefix the
	// per-operand scalars of the body. Zero except for
	// indexed_generic.
	numIndexArgs() int

	// NumInputs returns the number of input operands.
	NumInputs() int

	// NumOutputBuffers returns the number of mutable output operands.
	NumOutputBuffers() int

	// NumInitTensors returns the number of init operands seeding the
	// results.
	NumInitTensors() int

	// IndexingMaps returns one map per operand, in operand order.
	IndexingMaps() []affine.Map

	// Iterators returns the kind of each loop dimension.
	Iterators() []IteratorKind

	// SymbolSource returns the operand index whose rank fixes the
	// symbol count of the maps, if one is declared.
	SymbolSource() (int, bool)

	// Sparsity returns per-dimension sparsity levels keyed by operand
	// index, or nil when the op carries no sparsity annotations.
	Sparsity() map[int][]DimLevel
}

// NumLoops returns the iteration space rank of the op.
func NumLoops(op StructuredOp) int { return len(op.Iterators()) }

// Inputs returns the input operand values of the op.
func Inputs(op StructuredOp) []*ir.Value {
	return operandRange(op, 0, op.NumInputs())
}

// OutputBuffers returns the mutable output operand values of the op.
func OutputBuffers(op StructuredOp) []*ir.Value {
	return operandRange(op, op.NumInputs(), op.NumOutputBuffers())
}

// InitTensors returns the init operand values of the op.
func InitTensors(op StructuredOp) []*ir.Value {
	return operandRange(op, op.NumInputs()+op.NumOutputBuffers(), op.NumInitTensors())
}

func operandRange(op ir.Op, from, n int) []*ir.Value {
	vals := make([]*ir.Value, n)
	for i := range vals {
		vals[i] = op.Operands()[from+i].Get()
	}
	return vals
}

// ElemType returns the elemental type of a value: the element type of
// a shaped value, the value's own type otherwise.
func ElemType(t ir.Type) ir.Type {
	if shaped, ok := t.(ir.ShapedType); ok {
		return shaped.Elem()
	}
	return t
}

// RankOf returns the rank of a value type, zero for non-shaped ones.
func RankOf(t ir.Type) int {
	if shaped, ok := t.(ir.ShapedType); ok {
		return shaped.Rank()
	}
	return 0
}

// Effects of a structured op: read every input, write every output
// buffer, read every init tensor and allocate every result.
func Effects(op StructuredOp) []ir.Effect {
	var effects []ir.Effect
	for _, v := range Inputs(op) {
		effects = append(effects, ir.Effect{Kind: ir.Read, Value: v})
	}
	for _, v := range OutputBuffers(op) {
		effects = append(effects, ir.Effect{Kind: ir.Write, Value: v})
	}
	for _, v := range InitTensors(op) {
		effects = append(effects, ir.Effect{Kind: ir.Read, Value: v})
	}
	for _, v := range op.Results() {
		effects = append(effects, ir.Effect{Kind: ir.Allocate, Value: v})
	}
	return effects
}

// verifyStructured checks the constraints shared by all structured
// ops: the operand partition, the indexing maps, the iteration space
// and the body. Named ops run their own checks first, then this one.
func verifyStructured(op StructuredOp) error {
	name := op.Name()
	nOperands := len(op.Operands())
	nResults := len(op.Results())
	if nOperands+nResults == 0 {
		return fmterr.OpErrorf(name, "expected at least one operand or result")
	}
	if nResults > 0 && op.NumInitTensors() != nResults {
		return fmterr.OpErrorf(name, "expected one init tensor per result, got %d init(s) for %d result(s)",
			op.NumInitTensors(), nResults)
	}
	for i, res := range op.Results() {
		init := InitTensors(op)[i]
		if !res.Type().Equal(init.Type()) {
			return fmterr.OpErrorf(name, "expected result %d to have the type of its init tensor %s, got %s",
				i, init.Type(), res.Type())
		}
	}

	maps := op.IndexingMaps()
	nLoops := NumLoops(op)
	if len(maps) != nOperands {
		return fmterr.OpErrorf(name, "expected one indexing map per operand: got %d map(s) for %d operand(s)",
			len(maps), nOperands)
	}
	expectedSyms := 0
	if src, ok := op.SymbolSource(); ok {
		if src < 0 || src >= nOperands {
			return fmterr.OpErrorf(name, "symbol source index %d out of range for %d operand(s)", src, nOperands)
		}
		shaped, ok := op.Operands()[src].Get().Type().(ir.ShapedType)
		if !ok {
			return fmterr.OpErrorf(name, "expected the symbol source operand %d to be shaped", src)
		}
		expectedSyms = shaped.Rank()
	}
	for i, m := range maps {
		if m.NumSymbols() != expectedSyms {
			return fmterr.OpErrorf(name, "expected indexing map %d to have %d symbol(s), got %d",
				i, expectedSyms, m.NumSymbols())
		}
		if m.NumDims() != nLoops {
			return fmterr.OpErrorf(name, "expected indexing map %d to have %d dim(s) to match the number of loops",
				i, nLoops)
		}
		rank := RankOf(op.Operands()[i].Get().Type())
		if m.NumResults() != rank {
			return fmterr.OpErrorf(name, "expected indexing map %d to have %d result(s) to match the rank of operand %d",
				i, rank, i)
		}
	}

	if err := verifyBody(op, nLoops); err != nil {
		return err
	}

	// A symbol-free concatenation of the maps must describe a
	// recoverable loop nest. Symbol-bearing maps are accepted without
	// this guarantee.
	if expectedSyms == 0 && len(maps) > 0 {
		cat, err := affine.Concat(maps...)
		if err != nil {
			return fmterr.Internal(fmterr.OpErrorf(name, "concatenating indexing maps: %v", err))
		}
		if _, ok := affine.InversePermutation(cat); !ok {
			return fmterr.OpErrorf(name, "expected the concatenation of the indexing maps to be invertible")
		}
	}

	return verifySparsity(op)
}

func verifyBody(op StructuredOp, nLoops int) error {
	name := op.Name()
	region := op.Region()
	if region == nil {
		return fmterr.OpErrorf(name, "expected a body region")
	}
	nIndexArgs := op.numIndexArgs()
	args := region.Params()
	nOperands := len(op.Operands())
	if len(args) != nIndexArgs+nOperands {
		return fmterr.OpErrorf(name, "expected number of block arguments to match number of operands: got %d argument(s) for %d operand(s)",
			len(args)-nIndexArgs, nOperands)
	}
	for i := 0; i < nIndexArgs; i++ {
		if _, ok := args[i].Type().(ir.Index); !ok {
			return fmterr.OpErrorf(name, "expected block argument %d to be an index, got %s", i, args[i].Type())
		}
	}
	for i, opr := range op.Operands() {
		want := ElemType(opr.Get().Type())
		got := args[nIndexArgs+i].Type()
		if !got.Equal(want) {
			return fmterr.OpErrorf(name, "expected block argument %d of the same type as elemental type of the corresponding operand (got %s, want %s)",
				nIndexArgs+i, got, want)
		}
	}
	yield, ok := region.Terminator().(*YieldOp)
	if !ok {
		return fmterr.OpErrorf(name, "expected the body to end with structured.yield")
	}
	outputs := append(OutputBuffers(op), InitTensors(op)...)
	if len(yield.Operands()) != len(outputs) {
		return fmterr.OpErrorf(name, "expected yield to return as many values as output operands (%d), got %d",
			len(outputs), len(yield.Operands()))
	}
	for j, out := range outputs {
		want := ElemType(out.Type())
		got := yield.Operands()[j].Get().Type()
		if !got.Equal(want) {
			return fmterr.OpErrorf(name, "expected yield operand %d to have the elemental type of the corresponding output (got %s, want %s)",
				j, got, want)
		}
	}
	return nil
}

func verifySparsity(op StructuredOp) error {
	sp := op.Sparsity()
	if sp == nil {
		return nil
	}
	name := op.Name()
	nOperands := len(op.Operands())
	if op.NumOutputBuffers() > 0 {
		return fmterr.OpErrorf(name, "sparsity annotations are only supported on tensor variants")
	}
	if len(op.Results()) != 1 {
		return fmterr.OpErrorf(name, "sparsity annotations require exactly one result, got %d", len(op.Results()))
	}
	for _, opr := range op.Operands() {
		if _, ok := opr.Get().Type().(*ir.TensorType); !ok {
			return fmterr.OpErrorf(name, "sparsity annotations require tensor operands, operand %d is %s",
				opr.Index(), opr.Get().Type())
		}
	}
	if len(sp) != nOperands {
		return fmterr.OpErrorf(name, "expected one sparsity annotation per operand: got %d for %d operand(s)",
			len(sp), nOperands)
	}
	outputIdx := op.NumInputs()
	for i := 0; i < nOperands; i++ {
		levels, ok := sp[i]
		if !ok {
			return fmterr.OpErrorf(name, "missing sparsity annotation for operand %d", i)
		}
		rank := RankOf(op.Operands()[i].Get().Type())
		if len(levels) != rank {
			return fmterr.OpErrorf(name, "expected %d sparsity level(s) for operand %d, got %d", rank, i, len(levels))
		}
		if i == outputIdx {
			for d, l := range levels {
				if l == Sparse {
					return fmterr.OpErrorf(name, "sparse level on dimension %d of the output operand is not supported", d)
				}
			}
		}
	}
	return nil
}
