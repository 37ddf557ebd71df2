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
	"k8s.io/klog/v2"
)

// Pattern is a local rewrite. MatchAndRewrite inspects an operation
// and, if it matches, rewrites the IR through the rewriter and
// returns true.
type Pattern interface {
	// Name identifies the pattern in rewrite traces.
	Name() string

	// MatchAndRewrite applies the pattern to the operation.
	MatchAndRewrite(op Op, r *Rewriter) bool
}

// Rewriter mutates the IR on behalf of a pattern, keeping use lists
// consistent.
type Rewriter struct{}

// BuilderBefore returns a builder inserting right before an operation.
func (r *Rewriter) BuilderBefore(op Op) *Builder {
	b := &Builder{}
	b.SetInsertionPointBefore(op)
	return b
}

// Replace inserts the replacement before old if it is not already in
// a block, reroutes every use of old's results to the replacement's
// results, and erases old.
func (r *Rewriter) Replace(old, repl Op) {
	if repl.base().parent == nil {
		r.BuilderBefore(old).Insert(repl)
	}
	r.ReplaceWithValues(old, repl.Results()...)
}

// ReplaceWithValues reroutes every use of the operation's results to
// the given values and erases the operation.
func (r *Rewriter) ReplaceWithValues(old Op, vals ...*Value) {
	results := old.Results()
	if len(results) != len(vals) {
		panic(errors.Errorf("replacing %d results of %s with %d values",
			len(results), old.Name(), len(vals)))
	}
	for i, res := range results {
		res.ReplaceAllUses(vals[i])
	}
	r.Erase(old)
}

// Erase removes an operation whose results have no remaining uses,
// dropping the operand links of the operation and of its region.
func (r *Rewriter) Erase(op Op) {
	for _, res := range op.Results() {
		if n := res.NumUses(); n > 0 {
			panic(errors.Errorf("erasing %s: result %d has %d uses", op.Name(), res.Index(), n))
		}
	}
	dropLinks(op)
	if parent := op.base().parent; parent != nil {
		parent.Remove(op)
	}
}

func dropLinks(op Op) {
	for _, opr := range op.Operands() {
		opr.Set(nil)
	}
	if region := op.Region(); region != nil {
		for _, inner := range region.Ops() {
			dropLinks(inner)
		}
	}
}

// Canonicalize rewrites a block to a fixpoint of the given patterns
// and of operation folding. It returns true if anything changed.
func Canonicalize(b *Block, patterns []Pattern) bool {
	r := &Rewriter{}
	total := false
	for changed := true; changed; {
		changed = false
		for _, op := range append([]Op(nil), b.Ops()...) {
			if op.base().parent == nil {
				// Erased by an earlier rewrite of this sweep.
				continue
			}
			if fold(op, r) {
				changed, total = true, true
				continue
			}
			for _, pat := range patterns {
				if !pat.MatchAndRewrite(op, r) {
					continue
				}
				klog.V(2).Infof("canonicalize: applied %s", pat.Name())
				changed, total = true, true
				break
			}
		}
	}
	return total
}

// FoldStaticDim rewrites dim ops over static extents into index
// constants.
type FoldStaticDim struct{}

// Name of the pattern.
func (FoldStaticDim) Name() string { return "fold-static-dim" }

// MatchAndRewrite replaces the dim op with a constant.
func (FoldStaticDim) MatchAndRewrite(op Op, r *Rewriter) bool {
	dim, ok := op.(*DimOp)
	if !ok {
		return false
	}
	d, ok := dim.StaticExtent()
	if !ok {
		return false
	}
	r.ReplaceWithValues(dim, r.BuilderBefore(dim).IndexConstant(d))
	return true
}

func fold(op Op, r *Rewriter) bool {
	folder, ok := op.(Folder)
	if !ok {
		return false
	}
	v, ok := folder.Fold()
	if !ok {
		return false
	}
	klog.V(2).Infof("canonicalize: folded %s", op.Name())
	r.ReplaceWithValues(op, v)
	return true
}
