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
	"github.com/tir-org/tir/ir"
	"github.com/tir-org/tir/ir/affine"
)

// DefaultPatterns returns the canonicalization patterns of the
// structured ops.
func DefaultPatterns() []ir.Pattern {
	return []ir.Pattern{
		ir.FoldStaticDim{},
		EraseDeadOp{},
		FoldTensorCasts{},
		FoldBufferCasts{},
		DeduplicateInputs{},
		CollapseReshapes{},
		FoldReshapeWithSplat{},
		ElideInverseReshape{},
	}
}

// Canonicalize rewrites a block with the default patterns to a
// fixpoint. It returns true if anything changed.
func Canonicalize(b *ir.Block) bool {
	return ir.Canonicalize(b, DefaultPatterns())
}

// EraseDeadOp erases structured ops with a zero-extent buffer
// operand: their iteration space is empty, so their effects are
// vacuous.
type EraseDeadOp struct{}

// Name of the pattern.
func (EraseDeadOp) Name() string { return "erase-dead-op" }

// MatchAndRewrite erases the op.
func (EraseDeadOp) MatchAndRewrite(op ir.Op, r *ir.Rewriter) bool {
	sop, ok := op.(StructuredOp)
	if !ok {
		return false
	}
	dead := false
	for _, opr := range sop.Operands() {
		if buf, ok := opr.Get().Type().(*ir.BufferType); ok && ir.HasZeroExtent(buf) {
			dead = true
			break
		}
	}
	if !dead {
		return false
	}
	for _, res := range sop.Results() {
		if res.NumUses() > 0 {
			return false
		}
	}
	r.Erase(sop)
	return true
}

// genericLike gives the rewrite patterns a uniform view over the
// generic and indexed_generic ops: their spec with operands filled
// in, so that a pattern can alter it and rebuild.
func genericLike(op ir.Op) (GenericSpec, bool) {
	sop, ok := op.(StructuredOp)
	if !ok {
		return GenericSpec{}, false
	}
	var attrs genericAttrs
	switch op.(type) {
	case *GenericOp:
		attrs = op.(*GenericOp).attrs
	case *IndexedGenericOp:
		attrs = op.(*IndexedGenericOp).attrs
	default:
		return GenericSpec{}, false
	}
	resultTypes := make([]ir.Type, len(op.Results()))
	for i, res := range op.Results() {
		resultTypes[i] = res.Type()
	}
	return GenericSpec{
		Inputs:        Inputs(sop),
		OutputBuffers: OutputBuffers(sop),
		InitTensors:   InitTensors(sop),
		ResultTypes:   resultTypes,
		IndexingMaps:  attrs.maps,
		Iterators:     attrs.iterators,
		Doc:           attrs.doc,
		LibraryCall:   attrs.libraryCall,
		SymbolSource:  attrs.symbolSource,
		Sparsity:      attrs.sparsity,
	}, true
}

// rebuildGeneric constructs the replacement for a generic-like op
// from an altered spec, moving the body of the original, and swaps it
// in. Result types are re-derived from the init tensors.
func rebuildGeneric(old ir.Op, spec GenericSpec, r *ir.Rewriter) {
	spec.ResultTypes = make([]ir.Type, len(spec.InitTensors))
	for i, init := range spec.InitTensors {
		spec.ResultTypes[i] = init.Type()
	}
	var repl ir.Op
	switch old := old.(type) {
	case *GenericOp:
		spec.Region = old.TakeRegion()
		repl = NewGeneric(spec)
	case *IndexedGenericOp:
		spec.Region = old.TakeRegion()
		repl = NewIndexedGeneric(spec)
	}
	r.Replace(old, repl)
}

// FoldTensorCasts replaces input and init operands of generic ops
// that are produced by an information-losing tensor cast with the
// cast's source, re-deriving the result types. Output buffers never
// fold: they denote the identity of a mutation target.
type FoldTensorCasts struct{}

// Name of the pattern.
func (FoldTensorCasts) Name() string { return "fold-tensor-casts" }

// MatchAndRewrite folds the casts into the op.
func (FoldTensorCasts) MatchAndRewrite(op ir.Op, r *ir.Rewriter) bool {
	spec, ok := genericLike(op)
	if !ok {
		return false
	}
	changed := false
	fold := func(vals []*ir.Value) []*ir.Value {
		out := append([]*ir.Value(nil), vals...)
		for i, v := range out {
			cast, ok := v.DefiningOp().(*ir.TensorCastOp)
			if !ok || !ir.CastRefinesResult(cast) {
				continue
			}
			out[i] = cast.Operand(0).Get()
			changed = true
		}
		return out
	}
	spec.Inputs = fold(spec.Inputs)
	spec.InitTensors = fold(spec.InitTensors)
	if !changed {
		return false
	}
	rebuildGeneric(op, spec, r)
	return true
}

// FoldBufferCasts replaces input operands produced by an
// information-losing buffer cast with the cast's source. Generic ops
// are rebuilt; the named ops fold in place, since their rank and
// element constraints are unaffected by refinement; reshape and slice
// are rebuilt and the fold declined when the refined source no longer
// reproduces the declared result type.
type FoldBufferCasts struct{}

// Name of the pattern.
func (FoldBufferCasts) Name() string { return "fold-buffer-casts" }

// castSource returns the value a refining buffer cast was applied to.
func castSource(v *ir.Value) (*ir.Value, bool) {
	cast, ok := v.DefiningOp().(*ir.BufferCastOp)
	if !ok || !ir.CastRefinesResult(cast) {
		return nil, false
	}
	return cast.Operand(0).Get(), true
}

// MatchAndRewrite folds the casts into the op.
func (FoldBufferCasts) MatchAndRewrite(op ir.Op, r *ir.Rewriter) bool {
	switch op := op.(type) {
	case *ReshapeOp:
		src, ok := castSource(op.Src())
		if !ok {
			return false
		}
		repl := NewReshape(src, op.Reassociation, op.Result(0).Type())
		if ir.Verify(repl) != nil {
			return false
		}
		r.Replace(op, repl)
		return true
	case *SliceOp:
		src, ok := castSource(op.Src())
		if !ok {
			return false
		}
		repl := NewSlice(src, op.Indexings(), op.Result(0).Type())
		if ir.Verify(repl) != nil {
			return false
		}
		r.Replace(op, repl)
		return true
	}

	spec, ok := genericLike(op)
	if !ok {
		return foldNamedBufferCasts(op)
	}
	changed := false
	for i, v := range spec.Inputs {
		src, ok := castSource(v)
		if !ok {
			continue
		}
		if !changed {
			spec.Inputs = append([]*ir.Value(nil), spec.Inputs...)
		}
		spec.Inputs[i] = src
		changed = true
	}
	if !changed {
		return false
	}
	rebuildGeneric(op, spec, r)
	return true
}

// foldNamedBufferCasts folds refining buffer casts into the input
// operands of a named structured op in place. Refinement keeps rank
// and element type, so the op stays valid without a rebuild.
func foldNamedBufferCasts(op ir.Op) bool {
	sop, ok := op.(StructuredOp)
	if !ok {
		return false
	}
	changed := false
	for i := 0; i < sop.NumInputs(); i++ {
		opr := sop.Operands()[i]
		if src, ok := castSource(opr.Get()); ok {
			opr.Set(src)
			changed = true
		}
	}
	return changed
}

// DeduplicateInputs collapses input operands of generic ops sharing
// the same value and indexing map: the body arguments of the
// duplicates are rerouted to the kept argument and erased.
type DeduplicateInputs struct{}

// Name of the pattern.
func (DeduplicateInputs) Name() string { return "deduplicate-inputs" }

// MatchAndRewrite deduplicates the inputs.
func (DeduplicateInputs) MatchAndRewrite(op ir.Op, r *ir.Rewriter) bool {
	spec, ok := genericLike(op)
	if !ok {
		return false
	}
	sop := op.(StructuredOp)
	type key struct {
		value *ir.Value
		m     string
	}
	keep := map[key]int{}
	keptOf := make([]int, len(spec.Inputs))
	dups := 0
	for i, v := range spec.Inputs {
		k := key{value: v, m: spec.IndexingMaps[i].String()}
		if kept, found := keep[k]; found {
			keptOf[i] = kept
			dups++
			continue
		}
		keep[k] = i
		keptOf[i] = i
	}
	if dups == 0 {
		return false
	}

	nIndexArgs := sop.numIndexArgs()
	region := op.Region()
	// Reroute the body arguments of the duplicates to the kept ones,
	// then erase them back to front so positions stay valid.
	for i := len(spec.Inputs) - 1; i >= 0; i-- {
		if keptOf[i] == i {
			continue
		}
		dup := region.Param(nIndexArgs + i)
		dup.ReplaceAllUses(region.Param(nIndexArgs + keptOf[i]))
		if err := region.EraseParam(nIndexArgs + i); err != nil {
			return false
		}
	}

	var inputs []*ir.Value
	var maps []affine.Map
	for i, v := range spec.Inputs {
		if keptOf[i] != i {
			continue
		}
		inputs = append(inputs, v)
		maps = append(maps, spec.IndexingMaps[i])
	}
	maps = append(maps, spec.IndexingMaps[len(spec.Inputs):]...)
	spec.Inputs = inputs
	spec.IndexingMaps = maps
	rebuildGeneric(op, spec, r)
	return true
}

// reshapeParts extracts the source, reassociation and direction of
// either reshape kind.
func reshapeParts(op ir.Op) (src *ir.Value, groups []affine.Map, collapsing, tensor, ok bool) {
	switch op := op.(type) {
	case *ReshapeOp:
		return op.Src(), op.Reassociation, op.IsCollapsing(), false, true
	case *TensorReshapeOp:
		return op.Src(), op.Reassociation, op.IsCollapsing(), true, true
	}
	return nil, nil, false, false, false
}

// composeGroups merges fine-grained groups according to coarse ones:
// result group g selects, over the expanded rank, the union of the
// fine runs selected by coarse group g.
func composeGroups(coarse, fine []affine.Map, expandedRank int) []affine.Map {
	fineRuns := groupRuns(fine)
	fused := make([]affine.Map, len(coarse))
	for g, run := range groupRuns(coarse) {
		var results []affine.Expr
		for _, mid := range run {
			for _, d := range fineRuns[mid] {
				results = append(results, affine.NewDim(d))
			}
		}
		fused[g] = affine.NewMap(expandedRank, 0, results...)
	}
	return fused
}

// CollapseReshapes fuses two chained reshapes of the same direction
// into one whose reassociation is the composition of both.
type CollapseReshapes struct{}

// Name of the pattern.
func (CollapseReshapes) Name() string { return "collapse-reshapes" }

// MatchAndRewrite fuses the producer reshape into the op.
func (CollapseReshapes) MatchAndRewrite(op ir.Op, r *ir.Rewriter) bool {
	src, groups, collapsing, tensor, ok := reshapeParts(op)
	if !ok {
		return false
	}
	prodSrc, prodGroups, prodCollapsing, prodTensor, ok := reshapeParts(src.DefiningOp())
	if !ok || prodTensor != tensor || prodCollapsing != collapsing {
		return false
	}
	var fused []affine.Map
	if collapsing {
		// prodSrc (expanded) -> src -> result (collapsed).
		fused = composeGroups(groups, prodGroups, RankOf(prodSrc.Type()))
	} else {
		// prodSrc (collapsed) -> src -> result (expanded).
		fused = composeGroups(prodGroups, groups, RankOf(op.Results()[0].Type()))
	}
	if !IsReassociationValid(fused) {
		return false
	}
	resultType := op.Results()[0].Type()
	var repl ir.Op
	if tensor {
		repl = NewTensorReshape(prodSrc, fused, resultType)
	} else {
		repl = NewReshape(prodSrc, fused, resultType)
	}
	if ir.Verify(repl) != nil {
		// The fused reassociation does not reproduce the declared
		// result type; leave the chain alone.
		return false
	}
	r.Replace(op, repl)
	return true
}

// FoldReshapeWithSplat folds a tensor reshape of a splat constant
// into a splat constant of the result type.
type FoldReshapeWithSplat struct{}

// Name of the pattern.
func (FoldReshapeWithSplat) Name() string { return "fold-reshape-with-splat" }

// MatchAndRewrite replaces the reshape with a constant.
func (FoldReshapeWithSplat) MatchAndRewrite(op ir.Op, r *ir.Rewriter) bool {
	reshape, ok := op.(*TensorReshapeOp)
	if !ok {
		return false
	}
	c, ok := reshape.Src().DefiningOp().(*ir.ConstantOp)
	if !ok || !c.IsSplat() {
		return false
	}
	r.Replace(reshape, ir.NewConstant(reshape.Result(0).Type(), c.Val))
	return true
}

// ElideInverseReshape folds a reshape whose source is the inverse
// reshape of a value of the same type: the pair is the identity.
type ElideInverseReshape struct{}

// Name of the pattern.
func (ElideInverseReshape) Name() string { return "elide-inverse-reshape" }

// MatchAndRewrite replaces the reshape with the original value.
func (ElideInverseReshape) MatchAndRewrite(op ir.Op, r *ir.Rewriter) bool {
	src, groups, collapsing, tensor, ok := reshapeParts(op)
	if !ok {
		return false
	}
	prodSrc, prodGroups, prodCollapsing, prodTensor, ok := reshapeParts(src.DefiningOp())
	if !ok || prodTensor != tensor || prodCollapsing == collapsing {
		return false
	}
	if !prodSrc.Type().Equal(op.Results()[0].Type()) {
		return false
	}
	if len(groups) != len(prodGroups) {
		return false
	}
	for i, g := range groups {
		if !g.Equal(prodGroups[i]) {
			return false
		}
	}
	r.ReplaceWithValues(op, prodSrc)
	return true
}
