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
	ir.RegisterOp("structured.yield", parseYield)
}

// YieldOp terminates the body of a structured op, producing one value
// per output operand of the enclosing op.
type YieldOp struct {
	ir.OpBase
}

var _ ir.Op = (*YieldOp)(nil)

// NewYield returns the yield terminator over the given values.
func NewYield(vals ...*ir.Value) *YieldOp {
	op := &YieldOp{}
	op.Init(op, vals...)
	return op
}

// Name of the operation.
func (op *YieldOp) Name() string { return "structured.yield" }

// Verify checks that the yield terminates the body of a structured
// op. The yielded types are checked by the enclosing op.
func (op *YieldOp) Verify() error {
	parent := op.Parent()
	if parent == nil || parent.Owner() == nil {
		return fmterr.OpErrorf(op.Name(), "expected to be inside the body of a structured op")
	}
	if _, ok := parent.Owner().(StructuredOp); !ok {
		return fmterr.OpErrorf(op.Name(), "expected parent op to be structured, got '%s'", parent.Owner().Name())
	}
	if parent.Terminator() != ir.Op(op) {
		return fmterr.OpErrorf(op.Name(), "expected to terminate its block")
	}
	return nil
}

// Format prints the yielded values and their types.
func (op *YieldOp) Format(p *ir.Printer) {
	vals := ir.OperandValues(op)
	if len(vals) == 0 {
		return
	}
	p.Printf(" %s : %s", p.ValueListString(vals), p.TypeListString(vals))
}

func parseYield(p *ir.Parser) (ir.Op, error) {
	s := p.Scanner()
	// A yield with no values is immediately followed by the closing
	// brace of its block.
	if s.Tok() != '%' {
		return NewYield(), nil
	}
	vals, err := p.ParseValueUseList()
	if err != nil {
		return nil, err
	}
	if err := s.Expect(':'); err != nil {
		return nil, err
	}
	if _, err := p.ParseTypeList(); err != nil {
		return nil, err
	}
	return NewYield(vals...), nil
}
