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

// Value is an SSA value: either a result of an operation or a
// parameter of a block. It tracks the operand sites consuming it.
type Value struct {
	typ   Type
	def   Op     // defining op, nil for block parameters
	owner *Block // owning block for parameters, nil for results
	index int    // result or parameter position
	uses  []*Operand
}

// Type returns the type of the value.
func (v *Value) Type() Type { return v.typ }

// DefiningOp returns the operation defining the value, or nil if the
// value is a block parameter.
func (v *Value) DefiningOp() Op { return v.def }

// OwnerBlock returns the block declaring the value as a parameter,
// or nil if the value is an operation result.
func (v *Value) OwnerBlock() *Block { return v.owner }

// Index returns the position of the value among the results of its
// defining op, or among the parameters of its owning block.
func (v *Value) Index() int { return v.index }

// Uses returns a copy of the operand sites consuming the value.
func (v *Value) Uses() []*Operand {
	uses := make([]*Operand, len(v.uses))
	copy(uses, v.uses)
	return uses
}

// NumUses returns the number of operand sites consuming the value.
func (v *Value) NumUses() int { return len(v.uses) }

// ReplaceAllUses reroutes every operand site consuming the value to
// consume repl instead.
func (v *Value) ReplaceAllUses(repl *Value) {
	for _, use := range v.Uses() {
		use.Set(repl)
	}
}

func (v *Value) addUse(o *Operand) {
	v.uses = append(v.uses, o)
}

func (v *Value) removeUse(o *Operand) {
	for i, use := range v.uses {
		if use == o {
			v.uses = append(v.uses[:i], v.uses[i+1:]...)
			return
		}
	}
}

// Operand is a use of a value by an operation. The site stays stable
// across rewrites: Set reroutes it to a new value while keeping both
// use lists consistent.
type Operand struct {
	owner Op
	index int
	value *Value
}

// Owner returns the operation owning the operand site.
func (o *Operand) Owner() Op { return o.owner }

// Index returns the position of the operand in its owner.
func (o *Operand) Index() int { return o.index }

// Get returns the value consumed at the site.
func (o *Operand) Get() *Value { return o.value }

// Set reroutes the site to consume a new value.
func (o *Operand) Set(v *Value) {
	if o.value == v {
		return
	}
	if o.value != nil {
		o.value.removeUse(o)
	}
	o.set(v)
}

func (o *Operand) set(v *Value) {
	o.value = v
	if v != nil {
		v.addUse(o)
	}
}
