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

// The named ops are specializations of the generic op: their indexing
// maps, iterators and bodies are derived from their operands and
// attributes instead of being stored. They still verify through
// verifyStructured, so a named op is structurally a generic op with a
// fixed template.

func init() {
	ir.RegisterOp("structured.fill", parseFill)
	ir.RegisterOp("structured.copy", parseCopy)
	ir.RegisterOp("structured.conv", parseConv)
	ir.RegisterOp("structured.pooling_max", parsePooling(MaxPool))
	ir.RegisterOp("structured.pooling_min", parsePooling(MinPool))
	ir.RegisterOp("structured.pooling_sum", parsePooling(SumPool))
}

// namedBase carries the behavior shared by all named ops: no index
// arguments, no symbol source, no sparsity.
type namedBase struct {
	ir.OpBase
}

func (namedBase) numIndexArgs() int            { return 0 }
func (namedBase) SymbolSource() (int, bool)    { return 0, false }
func (namedBase) Sparsity() map[int][]DimLevel { return nil }
func (namedBase) NumInitTensors() int          { return 0 }

// buildBody synthesizes the region of a named op: one scalar block
// argument per operand, a body built by f, and a yield.
func buildBody(base *ir.OpBase, f func(b *ir.Builder, args []*ir.Value) []*ir.Value) {
	blk := base.NewRegion()
	for _, opr := range base.Operands() {
		blk.AddParam(ElemType(opr.Get().Type()))
	}
	b := ir.NewBuilder(blk)
	yielded := f(b, blk.Params())
	b.Insert(NewYield(yielded...))
}

// FillOp writes one scalar value to every element of a buffer.
type FillOp struct {
	namedBase
}

var (
	_ StructuredOp = (*FillOp)(nil)
	_ ir.EffectOp  = (*FillOp)(nil)
)

// NewFill returns the op filling output with value.
func NewFill(value, output *ir.Value) *FillOp {
	op := &FillOp{}
	op.Init(op, value, output)
	buildBody(&op.OpBase, func(b *ir.Builder, args []*ir.Value) []*ir.Value {
		return []*ir.Value{args[0]}
	})
	return op
}

// Name of the operation.
func (op *FillOp) Name() string { return "structured.fill" }

// NumInputs returns 1: the fill value.
func (op *FillOp) NumInputs() int { return 1 }

// NumOutputBuffers returns 1: the filled buffer.
func (op *FillOp) NumOutputBuffers() int { return 1 }

// Value returns the scalar being written.
func (op *FillOp) Value() *ir.Value { return op.Operand(0).Get() }

// Output returns the buffer being filled.
func (op *FillOp) Output() *ir.Value { return op.Operand(1).Get() }

// IndexingMaps derives the maps: the value is addressed by the empty
// map, the output by the identity over its rank.
func (op *FillOp) IndexingMaps() []affine.Map {
	rank := RankOf(op.Output().Type())
	return []affine.Map{affine.NewMap(rank, 0), affine.Identity(rank)}
}

// Iterators returns one parallel loop per output dimension.
func (op *FillOp) Iterators() []IteratorKind {
	return uniformIterators(RankOf(op.Output().Type()), Parallel)
}

// Verify checks the fill-specific constraints, then the shared ones.
func (op *FillOp) Verify() error {
	out, ok := op.Output().Type().(*ir.BufferType)
	if !ok {
		return fmterr.OpErrorf(op.Name(), "expected the output to be a buffer, got %s", op.Output().Type())
	}
	if !op.Value().Type().Equal(out.Elem()) {
		return fmterr.OpErrorf(op.Name(), "expected fill value type %s to match the elemental type of the output %s",
			op.Value().Type(), out.Elem())
	}
	return verifyStructured(op)
}

// Effects declares the memory effects of the op.
func (op *FillOp) Effects() []ir.Effect { return Effects(op) }

// Format prints the value and output groups.
func (op *FillOp) Format(p *ir.Printer) {
	formatOperandGroups(p, op)
}

func parseFill(p *ir.Parser) (ir.Op, error) {
	ins, outs, err := parseInsOuts(p, 1, 1)
	if err != nil {
		return nil, err
	}
	return NewFill(ins[0], outs[0]), nil
}

// CopyOp copies the input buffer into the output buffer, optionally
// transposing through permutation maps on either side.
type CopyOp struct {
	namedBase
	// InputPermutation and OutputPermutation optionally permute how
	// loop indices address the input and output. Nil means identity.
	InputPermutation  *affine.Map
	OutputPermutation *affine.Map
}

var (
	_ StructuredOp = (*CopyOp)(nil)
	_ ir.EffectOp  = (*CopyOp)(nil)
)

// NewCopy returns the op copying input to output. Either permutation
// may be nil.
func NewCopy(input, output *ir.Value, inputPerm, outputPerm *affine.Map) *CopyOp {
	op := &CopyOp{InputPermutation: inputPerm, OutputPermutation: outputPerm}
	op.Init(op, input, output)
	buildBody(&op.OpBase, func(b *ir.Builder, args []*ir.Value) []*ir.Value {
		return []*ir.Value{args[0]}
	})
	return op
}

// Name of the operation.
func (op *CopyOp) Name() string { return "structured.copy" }

// NumInputs returns 1: the source buffer.
func (op *CopyOp) NumInputs() int { return 1 }

// NumOutputBuffers returns 1: the destination buffer.
func (op *CopyOp) NumOutputBuffers() int { return 1 }

// Input returns the source buffer.
func (op *CopyOp) Input() *ir.Value { return op.Operand(0).Get() }

// Output returns the destination buffer.
func (op *CopyOp) Output() *ir.Value { return op.Operand(1).Get() }

// IndexingMaps derives the maps from the permutations, defaulting to
// the identity.
func (op *CopyOp) IndexingMaps() []affine.Map {
	rank := RankOf(op.Output().Type())
	in, out := affine.Identity(rank), affine.Identity(rank)
	if op.InputPermutation != nil {
		in = *op.InputPermutation
	}
	if op.OutputPermutation != nil {
		out = *op.OutputPermutation
	}
	return []affine.Map{in, out}
}

// Iterators returns one parallel loop per dimension.
func (op *CopyOp) Iterators() []IteratorKind {
	return uniformIterators(RankOf(op.Output().Type()), Parallel)
}

// Verify checks the copy-specific constraints, then the shared ones.
func (op *CopyOp) Verify() error {
	in, inOk := op.Input().Type().(*ir.BufferType)
	out, outOk := op.Output().Type().(*ir.BufferType)
	if !inOk || !outOk {
		return fmterr.OpErrorf(op.Name(), "expected buffer operands")
	}
	if !in.Elem().Equal(out.Elem()) {
		return fmterr.OpErrorf(op.Name(), "expected the same elemental type for input and output, got %s and %s",
			in.Elem(), out.Elem())
	}
	if in.Rank() != out.Rank() {
		return fmterr.OpErrorf(op.Name(), "expected the same rank for input and output, got %d and %d",
			in.Rank(), out.Rank())
	}
	for i, perm := range []*affine.Map{op.InputPermutation, op.OutputPermutation} {
		if perm == nil {
			continue
		}
		if !perm.IsPermutation() || perm.NumDims() != out.Rank() {
			return fmterr.OpErrorf(op.Name(), "expected permutation map %d to be a permutation of rank %d, got %s",
				i, out.Rank(), perm)
		}
	}
	return verifyStructured(op)
}

// Effects declares the memory effects of the op.
func (op *CopyOp) Effects() []ir.Effect { return Effects(op) }

// Format prints the operand groups and the optional permutations.
func (op *CopyOp) Format(p *ir.Printer) {
	formatOperandGroups(p, op)
	dict := ir.DictAttr{}
	if op.InputPermutation != nil {
		dict.Entries = append(dict.Entries,
			ir.NamedAttr{Name: "input_permutation", Value: ir.StringAttr{V: op.InputPermutation.String()}})
	}
	if op.OutputPermutation != nil {
		dict.Entries = append(dict.Entries,
			ir.NamedAttr{Name: "output_permutation", Value: ir.StringAttr{V: op.OutputPermutation.String()}})
	}
	if len(dict.Entries) > 0 {
		p.Printf(" attrs = %s", dict)
	}
}

func parseCopy(p *ir.Parser) (ir.Op, error) {
	ins, outs, err := parseInsOuts(p, 1, 1)
	if err != nil {
		return nil, err
	}
	var inPerm, outPerm *affine.Map
	dict, err := parseTrailingAttrs(p)
	if err != nil {
		return nil, err
	}
	for _, entry := range dict.Entries {
		str, ok := entry.Value.(ir.StringAttr)
		if !ok {
			return nil, p.Scanner().Errf("%s must be a map string", entry.Name)
		}
		m, err := affine.ParseMapString(str.V)
		if err != nil {
			return nil, err
		}
		switch entry.Name {
		case "input_permutation":
			inPerm = &m
		case "output_permutation":
			outPerm = &m
		default:
			return nil, p.Scanner().Errf("unknown attribute %q", entry.Name)
		}
	}
	return NewCopy(ins[0], outs[0], inPerm, outPerm), nil
}

// uniformIterators returns n iterators of the same kind.
func uniformIterators(n int, kind IteratorKind) []IteratorKind {
	its := make([]IteratorKind, n)
	for i := range its {
		its[i] = kind
	}
	return its
}

// parseInsOuts parses mandatory ins(...) and outs(...) groups with
// fixed arities.
func parseInsOuts(p *ir.Parser, nIns, nOuts int) ([]*ir.Value, []*ir.Value, error) {
	s := p.Scanner()
	ins, err := parseOperandGroup(p, "ins")
	if err != nil {
		return nil, nil, err
	}
	if len(ins) != nIns {
		return nil, nil, s.Errf("expected %d input(s), got %d", nIns, len(ins))
	}
	outs, err := parseOperandGroup(p, "outs")
	if err != nil {
		return nil, nil, err
	}
	if len(outs) != nOuts {
		return nil, nil, s.Errf("expected %d output(s), got %d", nOuts, len(outs))
	}
	return ins, outs, nil
}

// parseTrailingAttrs parses an optional "attrs = {...}" suffix.
func parseTrailingAttrs(p *ir.Parser) (ir.DictAttr, error) {
	s := p.Scanner()
	if !s.AcceptIdent("attrs") {
		return ir.DictAttr{}, nil
	}
	if err := s.Expect('='); err != nil {
		return ir.DictAttr{}, err
	}
	return p.ParseDictAttr()
}
