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

// Package ir is the mutable graph representation of structured
// tensor computations.
//
// The graph is made of operations producing and consuming values.
// Every value keeps an explicit list of the operand sites consuming
// it, so that rewrites can reroute uses without dangling references.
// An operation may own a region: a single block of nested operations
// with its own parameter list, used as the computation body of
// structured ops.
//
// Op kinds register a parser into a dispatch table keyed by their
// qualified name. New kinds can be added by registering into the
// table; the graph machinery never enumerates kinds.
package ir

import (
	"github.com/pkg/errors"
	"github.com/tir-org/tir/base/ordered"
)

type (
	// Op is an operation of the graph.
	//
	// Concrete operations embed OpBase, which provides the operand,
	// result and region storage. It also prevents implementations of
	// the interface outside of this repository.
	Op interface {
		// base returns the common storage of the operation.
		base() *OpBase

		// Name returns the qualified name of the operation, such as
		// "structured.generic".
		Name() string

		// Operands returns the operand sites of the operation.
		Operands() []*Operand

		// Results returns the values defined by the operation.
		Results() []*Value

		// Region returns the block owned by the operation,
		// or nil if the operation has none.
		Region() *Block

		// Verify checks the structural invariants of the operation.
		Verify() error

		// Format prints the operation after its name.
		Format(p *Printer)
	}

	// Folder is an operation that can fold to an existing value.
	Folder interface {
		Op

		// Fold returns a value equivalent to the single result of the
		// operation, or false if the operation does not fold.
		Fold() (*Value, bool)
	}

	// EffectOp is an operation declaring its memory effects.
	EffectOp interface {
		Op

		// Effects returns a superset of the memory effects of the
		// operation on its shaped operands and results.
		Effects() []Effect
	}
)

// EffectKind describes how an operation touches a value.
type EffectKind int

// Memory effect kinds.
const (
	Read EffectKind = iota
	Write
	Allocate
)

// String representation of the effect kind.
func (k EffectKind) String() string {
	switch k {
	case Read:
		return "read"
	case Write:
		return "write"
	case Allocate:
		return "allocate"
	}
	return "effect?"
}

// Effect is a memory effect of an operation on a value.
type Effect struct {
	Kind  EffectKind
	Value *Value
}

// OpBase is the storage common to all operations. Concrete
// operations embed it and call Init from their constructor.
type OpBase struct {
	self     Op
	operands []*Operand
	results  []*Value
	region   *Block
	parent   *Block
}

func (b *OpBase) base() *OpBase { return b }

// Init records the concrete operation and its operand values.
// It must be called before any other method of OpBase.
func (b *OpBase) Init(self Op, operands ...*Value) {
	b.self = self
	b.AddOperands(operands...)
}

// Self returns the concrete operation embedding this base.
func (b *OpBase) Self() Op { return b.self }

// AddOperands appends operand sites consuming the given values.
func (b *OpBase) AddOperands(values ...*Value) {
	for _, v := range values {
		opr := &Operand{owner: b.self, index: len(b.operands)}
		opr.set(v)
		b.operands = append(b.operands, opr)
	}
}

// Operands returns all operand sites of the operation.
func (b *OpBase) Operands() []*Operand { return b.operands }

// Operand returns the operand site at a given position.
func (b *OpBase) Operand(i int) *Operand { return b.operands[i] }

// NumOperands returns the number of operands of the operation.
func (b *OpBase) NumOperands() int { return len(b.operands) }

// InitResults defines one result value per given type.
func (b *OpBase) InitResults(types ...Type) {
	for _, t := range types {
		b.results = append(b.results, &Value{typ: t, def: b.self, index: len(b.results)})
	}
}

// Results returns the values defined by the operation.
func (b *OpBase) Results() []*Value { return b.results }

// Result returns the result value at a given position.
func (b *OpBase) Result(i int) *Value { return b.results[i] }

// Region returns the block owned by the operation, or nil.
func (b *OpBase) Region() *Block { return b.region }

// NewRegion creates and returns the block owned by the operation.
func (b *OpBase) NewRegion() *Block {
	b.region = &Block{owner: b.self}
	return b.region
}

// SetRegion transfers ownership of an existing block to the
// operation, for bodies built by a parser or moved from a replaced
// operation.
func (b *OpBase) SetRegion(blk *Block) {
	blk.owner = b.self
	b.region = blk
}

// TakeRegion detaches and returns the block owned by the operation,
// so that a rewrite can move a body to a replacement op.
func (b *OpBase) TakeRegion() *Block {
	blk := b.region
	b.region = nil
	if blk != nil {
		blk.owner = nil
	}
	return blk
}

// Parent returns the block containing the operation, or nil if the
// operation has not been inserted.
func (b *OpBase) Parent() *Block { return b.parent }

// ParseFn parses the textual form of an op kind, after the op name.
type ParseFn func(p *Parser) (Op, error)

var opRegistry = ordered.NewMap[string, ParseFn]()

// RegisterOp registers the parser of an op kind under its qualified
// name. Registering the same name twice panics: op names identify
// their kind in the dispatch table.
func RegisterOp(name string, parse ParseFn) {
	if _, found := opRegistry.Load(name); found {
		panic(errors.Errorf("op %q registered twice", name))
	}
	opRegistry.Store(name, parse)
}

func lookupOp(name string) (ParseFn, bool) {
	return opRegistry.Load(name)
}

// RegisteredOps returns the qualified names of all registered op
// kinds, in registration order.
func RegisteredOps() []string {
	var names []string
	for name := range opRegistry.Keys() {
		names = append(names, name)
	}
	return names
}
