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

import (
	"github.com/pkg/errors"
	"github.com/tir-org/tir/ir/affine"
)

// ApplyMap materializes the results of an affine map over index
// values, one value per map result, inserting through the builder.
// A result folds to an index constant when all the operands it reads
// are constants.
func ApplyMap(b *Builder, m affine.Map, operands []*Value) ([]*Value, error) {
	if want := m.NumDims() + m.NumSymbols(); len(operands) != want {
		return nil, errors.Errorf("map %s expects %d operands, got %d", m, want, len(operands))
	}
	res := make([]*Value, m.NumResults())
	for i := range res {
		sub := m.SubMap(i)
		if v, ok := evalOverConstants(sub.Result(0), operands, m.NumDims()); ok {
			res[i] = b.IndexConstant(v)
			continue
		}
		op := NewApply(sub, operands...)
		b.Insert(op)
		res[i] = op.Result(0)
	}
	return res, nil
}

// evalOverConstants evaluates an affine expression when every operand
// it depends on is an index constant.
func evalOverConstants(e affine.Expr, operands []*Value, numDims int) (int64, bool) {
	dims := make([]int64, numDims)
	syms := make([]int64, len(operands)-numDims)
	ok := true
	affine.Walk(e, func(sub affine.Expr) {
		switch sub := sub.(type) {
		case affine.Dim:
			if v, isConst := constIndexValue(operands[sub.Pos]); isConst {
				dims[sub.Pos] = v
			} else {
				ok = false
			}
		case affine.Symbol:
			if v, isConst := constIndexValue(operands[numDims+sub.Pos]); isConst {
				syms[sub.Pos] = v
			} else {
				ok = false
			}
		}
	})
	if !ok {
		return 0, false
	}
	v, err := affine.Eval(e, dims, syms)
	if err != nil {
		return 0, false
	}
	return v, true
}

func constIndexValue(v *Value) (int64, bool) {
	c, ok := v.DefiningOp().(*ConstantOp)
	if !ok {
		return 0, false
	}
	iv, ok := c.Val.(IntAttr)
	if !ok {
		return 0, false
	}
	return iv.V, true
}
