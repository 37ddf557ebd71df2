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

// LegacySymbolSourceBounds lets CreateLoopRanges bound otherwise
// unresolved window loops with the extents of the declared symbol
// source operand. Lowering paths that materialize the symbol values
// themselves leave it off.
var LegacySymbolSourceBounds bool

// CreateFlatListOfOperandDims emits one dim op per dimension of every
// shaped operand, in operand order. The positions in the returned list
// line up with the concatenated indexing map results.
func CreateFlatListOfOperandDims(b *ir.Builder, op StructuredOp) []*ir.Value {
	var dims []*ir.Value
	for _, opr := range op.Operands() {
		v := opr.Get()
		for d := 0; d < RankOf(v.Type()); d++ {
			dims = append(dims, b.Dim(v, d))
		}
	}
	return dims
}

// CreateLoopRanges emits the iteration ranges of the op: one range
// [0, extent, 1) per loop dimension. The extent of a loop is the
// extent of the first operand dimension addressed by that loop alone,
// recovered by inverting the concatenation of the indexing maps over
// the flat list of operand dims.
func CreateLoopRanges(b *ir.Builder, op StructuredOp) ([]*ir.Value, error) {
	flat := CreateFlatListOfOperandDims(b, op)
	cat, err := affine.Concat(op.IndexingMaps()...)
	if err != nil {
		return nil, fmterr.OpErrorf(op.Name(), "concatenating indexing maps: %v", err)
	}
	nLoops := NumLoops(op)
	bounds := make([]*ir.Value, nLoops)
	for i, res := range cat.Results() {
		d, ok := res.(affine.Dim)
		if !ok || bounds[d.Pos] != nil {
			continue
		}
		bounds[d.Pos] = flat[i]
	}

	if LegacySymbolSourceBounds {
		if err := symbolSourceBounds(b, op, bounds); err != nil {
			return nil, err
		}
	}

	zero := b.IndexConstant(0)
	one := b.IndexConstant(1)
	ranges := make([]*ir.Value, nLoops)
	for i, ub := range bounds {
		if ub == nil {
			return nil, fmterr.OpErrorf(op.Name(), "could not infer the range of loop %d from the indexing maps", i)
		}
		rng := ir.NewRange(zero, ub, one)
		b.Insert(rng)
		ranges[i] = rng.Result(0)
	}
	return ranges, nil
}

// symbolSourceBounds fills unresolved window loop bounds from the
// extents of the symbol source operand, matching window loops to its
// dimensions in order.
func symbolSourceBounds(b *ir.Builder, op StructuredOp, bounds []*ir.Value) error {
	src, ok := op.SymbolSource()
	if !ok {
		return nil
	}
	srcVal := op.Operands()[src].Get()
	win := 0
	for i, kind := range op.Iterators() {
		if kind != Window {
			continue
		}
		if bounds[i] == nil {
			if win >= RankOf(srcVal.Type()) {
				return fmterr.OpErrorf(op.Name(), "symbol source operand %d has too few dimensions to bound loop %d", src, i)
			}
			bounds[i] = b.Dim(srcVal, win)
		}
		win++
	}
	return nil
}
