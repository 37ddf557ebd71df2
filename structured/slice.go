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
)

func init() {
	ir.RegisterOp("structured.slice", parseSlice)
}

// SliceOp takes a rank-reducing strided view into a buffer. The first
// operand is the source buffer; it is followed by one indexing operand
// per source dimension. A range operand keeps the dimension in the
// view, an index operand selects a single position and drops it. The
// result rank is therefore the number of range operands.
type SliceOp struct {
	ir.OpBase
}

var _ ir.Op = (*SliceOp)(nil)

// NewSlice returns the view of src through the given indexings.
func NewSlice(src *ir.Value, indexings []*ir.Value, resultType ir.Type) *SliceOp {
	op := &SliceOp{}
	op.Init(op, append([]*ir.Value{src}, indexings...)...)
	op.InitResults(resultType)
	return op
}

// Name of the operation.
func (op *SliceOp) Name() string { return "structured.slice" }

// Src returns the sliced buffer.
func (op *SliceOp) Src() *ir.Value { return op.Operand(0).Get() }

// Indexings returns the per-dimension indexing operands.
func (op *SliceOp) Indexings() []*ir.Value {
	return operandRange(op, 1, len(op.Operands())-1)
}

// Verify checks the slice constraints.
func (op *SliceOp) Verify() error {
	name := op.Name()
	src, ok := op.Src().Type().(*ir.BufferType)
	if !ok {
		return fmterr.OpErrorf(name, "expected a buffer to slice, got %s", op.Src().Type())
	}
	res, ok := op.Result(0).Type().(*ir.BufferType)
	if !ok {
		return fmterr.OpErrorf(name, "expected a buffer result, got %s", op.Result(0).Type())
	}
	indexings := op.Indexings()
	if len(indexings) != src.Rank() {
		return fmterr.OpErrorf(name, "expected one indexing per dimension of the source: got %d indexing(s) for rank %d",
			len(indexings), src.Rank())
	}
	ranges := 0
	for i, ix := range indexings {
		switch ix.Type().(type) {
		case ir.Index:
		case ir.RangeType:
			ranges++
		default:
			return fmterr.OpErrorf(name, "expected indexing %d to be an index or a range, got %s", i, ix.Type())
		}
	}
	if res.Rank() != ranges {
		return fmterr.OpErrorf(name, "expected the result rank to be the number of range indexings (%d), got %d",
			ranges, res.Rank())
	}
	if !res.Elem().Equal(src.Elem()) {
		return fmterr.OpErrorf(name, "expected the same elemental type, got %s and %s", src.Elem(), res.Elem())
	}
	return nil
}

// Format prints the source, the bracketed indexings and the types.
func (op *SliceOp) Format(p *ir.Printer) {
	p.Printf(" %s[", p.ValueName(op.Src()))
	indexings := op.Indexings()
	p.Printf("%s] : %s", p.ValueListString(indexings), op.Src().Type())
	for _, ix := range indexings {
		p.Printf(", %s", ix.Type())
	}
	p.Printf(" into %s", op.Result(0).Type())
}

func parseSlice(p *ir.Parser) (ir.Op, error) {
	s := p.Scanner()
	src, err := p.ParseValueUse()
	if err != nil {
		return nil, err
	}
	if err := s.Expect('['); err != nil {
		return nil, err
	}
	var indexings []*ir.Value
	if !s.Accept(']') {
		if indexings, err = p.ParseValueUseList(); err != nil {
			return nil, err
		}
		if err := s.Expect(']'); err != nil {
			return nil, err
		}
	}
	if err := s.Expect(':'); err != nil {
		return nil, err
	}
	// The source and indexing types restate what the values already
	// carry.
	for range append([]*ir.Value{src}, indexings...) {
		if _, err := p.ParseType(); err != nil {
			return nil, err
		}
		if !s.Accept(',') {
			break
		}
	}
	if !s.AcceptIdent("into") {
		return nil, s.Errf("expected \"into\", got %q", s.Text())
	}
	resultType, err := p.ParseType()
	if err != nil {
		return nil, err
	}
	return NewSlice(src, indexings, resultType), nil
}
