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

// Builder inserts operations into a block at a movable insertion
// point.
type Builder struct {
	block *Block
	at    int
}

// NewBuilder returns a builder inserting at the end of the block.
func NewBuilder(b *Block) *Builder {
	return &Builder{block: b, at: len(b.ops)}
}

// Block returns the block the builder inserts into.
func (b *Builder) Block() *Block { return b.block }

// SetInsertionPointToEnd moves the insertion point to the end of a
// block.
func (b *Builder) SetInsertionPointToEnd(blk *Block) {
	b.block = blk
	b.at = len(blk.ops)
}

// SetInsertionPointBefore moves the insertion point right before an
// inserted operation.
func (b *Builder) SetInsertionPointBefore(op Op) {
	blk := op.base().parent
	b.block = blk
	b.at = blk.indexOf(op)
}

// Insert places the operation at the insertion point and advances the
// point past it.
func (b *Builder) Insert(op Op) Op {
	b.block.insert(b.at, op)
	b.at++
	return op
}

// IndexConstant inserts a constant of index type.
func (b *Builder) IndexConstant(v int64) *Value {
	op := NewConstant(Index{}, IntAttr{V: v})
	b.Insert(op)
	return op.Result(0)
}

// Dim returns the extent of one dimension of a shaped value. Static
// extents fold to an index constant without creating a dim op.
func (b *Builder) Dim(v *Value, index int) *Value {
	if shaped, ok := v.Type().(ShapedType); ok {
		if d := shaped.Dims()[index]; d != DynamicSize {
			return b.IndexConstant(d)
		}
	}
	op := NewDim(v, index)
	b.Insert(op)
	return op.Result(0)
}
