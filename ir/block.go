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

package ir

import "github.com/pkg/errors"

// Block is an ordered sequence of operations with a parameter list.
// A block is either the top-level scope of a function or the region
// of an operation.
type Block struct {
	owner  Op
	params []*Value
	ops    []Op
}

// NewBlock returns an empty block with no owner.
func NewBlock() *Block { return &Block{} }

// Owner returns the operation owning the block as its region, or nil
// for a top-level block.
func (b *Block) Owner() Op { return b.owner }

// AddParam appends a parameter of the given type and returns its value.
func (b *Block) AddParam(t Type) *Value {
	v := &Value{typ: t, owner: b, index: len(b.params)}
	b.params = append(b.params, v)
	return v
}

// Params returns the parameters of the block.
func (b *Block) Params() []*Value { return b.params }

// Param returns the parameter at a given position.
func (b *Block) Param(i int) *Value { return b.params[i] }

// NumParams returns the number of parameters of the block.
func (b *Block) NumParams() int { return len(b.params) }

// EraseParam removes the parameter at a given position. The parameter
// must have no remaining uses. Later parameters shift down.
func (b *Block) EraseParam(i int) error {
	if n := b.params[i].NumUses(); n > 0 {
		return errors.Errorf("cannot erase block parameter %d: %d uses remain", i, n)
	}
	b.params = append(b.params[:i], b.params[i+1:]...)
	for j := i; j < len(b.params); j++ {
		b.params[j].index = j
	}
	return nil
}

// Ops returns the operations of the block in order.
func (b *Block) Ops() []Op { return b.ops }

// NumOps returns the number of operations in the block.
func (b *Block) NumOps() int { return len(b.ops) }

// Terminator returns the last operation of the block, or nil if the
// block is empty.
func (b *Block) Terminator() Op {
	if len(b.ops) == 0 {
		return nil
	}
	return b.ops[len(b.ops)-1]
}

// Append inserts an operation at the end of the block.
func (b *Block) Append(op Op) {
	b.insert(len(b.ops), op)
}

func (b *Block) insert(at int, op Op) {
	base := op.base()
	if base.parent != nil {
		panic(errors.Errorf("op %s already belongs to a block", op.Name()))
	}
	base.parent = b
	b.ops = append(b.ops, nil)
	copy(b.ops[at+1:], b.ops[at:])
	b.ops[at] = op
}

// Remove detaches an operation from the block without touching its
// operands or results.
func (b *Block) Remove(op Op) {
	i := b.indexOf(op)
	if i < 0 {
		panic(errors.Errorf("op %s does not belong to this block", op.Name()))
	}
	b.ops = append(b.ops[:i], b.ops[i+1:]...)
	op.base().parent = nil
}

func (b *Block) indexOf(op Op) int {
	for i, o := range b.ops {
		if o == op {
			return i
		}
	}
	return -1
}
