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
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

func init() {
	ir.RegisterOp("structured.generic", parseGeneric(false))
	ir.RegisterOp("structured.indexed_generic", parseGeneric(true))
}

// GenericSpec configures the construction of a generic or
// indexed_generic op.
type GenericSpec struct {
	// Inputs are the read-only operands.
	Inputs []*ir.Value
	// OutputBuffers are the mutable output operands.
	OutputBuffers []*ir.Value
	// InitTensors seed the results; ResultTypes declares one result
	// per init tensor.
	InitTensors []*ir.Value
	ResultTypes []ir.Type

	// IndexingMaps has one map per operand, inputs then output
	// buffers then init tensors.
	IndexingMaps []affine.Map
	// Iterators has one kind per loop dimension.
	Iterators []IteratorKind

	// Doc is an optional human-readable description.
	Doc string
	// LibraryCall is an optional external symbol the op lowers to.
	LibraryCall string
	// SymbolSource optionally declares the operand whose rank fixes
	// the symbol count of the maps.
	SymbolSource *int
	// Sparsity optionally annotates per-dimension sparsity levels,
	// keyed by operand index.
	Sparsity map[int][]DimLevel

	// Body populates the computation body. It receives a builder
	// positioned inside the fresh block and the block arguments: for
	// indexed_generic one index per loop dimension, then one scalar
	// per operand; for generic just the scalars.
	Body func(b *ir.Builder, args []*ir.Value)
	// Region adopts a pre-built body instead of synthesizing one.
	// Used by the parser and by rewrites that move a body.
	Region *ir.Block
}

type genericAttrs struct {
	maps         []affine.Map
	iterators    []IteratorKind
	doc          string
	libraryCall  string
	symbolSource *int
	sparsity     map[int][]DimLevel
}

// GenericOp is the fully explicit structured op: indexing maps,
// iterator kinds and a scalar body.
type GenericOp struct {
	ir.OpBase
	numInputs  int
	numOutputs int
	numInits   int
	attrs      genericAttrs
}

// IndexedGenericOp is a generic op whose body additionally receives
// the loop indices, one index argument per loop dimension, before the
// per-operand scalars.
type IndexedGenericOp struct {
	ir.OpBase
	numInputs  int
	numOutputs int
	numInits   int
	attrs      genericAttrs
}

var (
	_ StructuredOp = (*GenericOp)(nil)
	_ StructuredOp = (*IndexedGenericOp)(nil)
	_ ir.EffectOp  = (*GenericOp)(nil)
	_ ir.EffectOp  = (*IndexedGenericOp)(nil)
)

// NewGeneric builds a generic op from its spec.
func NewGeneric(spec GenericSpec) *GenericOp {
	op := &GenericOp{}
	op.numInputs, op.numOutputs, op.numInits, op.attrs = buildGeneric(op, &op.OpBase, spec, 0)
	return op
}

// NewIndexedGeneric builds an indexed_generic op from its spec.
func NewIndexedGeneric(spec GenericSpec) *IndexedGenericOp {
	op := &IndexedGenericOp{}
	op.numInputs, op.numOutputs, op.numInits, op.attrs = buildGeneric(op, &op.OpBase, spec, len(spec.Iterators))
	return op
}

func buildGeneric(self ir.Op, base *ir.OpBase, spec GenericSpec, nIndexArgs int) (int, int, int, genericAttrs) {
	operands := append(append(append([]*ir.Value(nil), spec.Inputs...), spec.OutputBuffers...), spec.InitTensors...)
	base.Init(self, operands...)
	base.InitResults(spec.ResultTypes...)
	attrs := genericAttrs{
		maps:         spec.IndexingMaps,
		iterators:    spec.Iterators,
		doc:          spec.Doc,
		libraryCall:  spec.LibraryCall,
		symbolSource: spec.SymbolSource,
		sparsity:     spec.Sparsity,
	}
	if spec.Region != nil {
		base.SetRegion(spec.Region)
		return len(spec.Inputs), len(spec.OutputBuffers), len(spec.InitTensors), attrs
	}
	blk := base.NewRegion()
	for i := 0; i < nIndexArgs; i++ {
		blk.AddParam(ir.Index{})
	}
	for _, v := range operands {
		blk.AddParam(ElemType(v.Type()))
	}
	if spec.Body != nil {
		spec.Body(ir.NewBuilder(blk), blk.Params())
	}
	return len(spec.Inputs), len(spec.OutputBuffers), len(spec.InitTensors), attrs
}

// Name of the operation.
func (op *GenericOp) Name() string { return "structured.generic" }

// Name of the operation.
func (op *IndexedGenericOp) Name() string { return "structured.indexed_generic" }

func (op *GenericOp) numIndexArgs() int        { return 0 }
func (op *IndexedGenericOp) numIndexArgs() int { return len(op.attrs.iterators) }

// NumInputs returns the number of input operands.
func (op *GenericOp) NumInputs() int { return op.numInputs }

// NumOutputBuffers returns the number of mutable output operands.
func (op *GenericOp) NumOutputBuffers() int { return op.numOutputs }

// NumInitTensors returns the number of init operands.
func (op *GenericOp) NumInitTensors() int { return op.numInits }

// IndexingMaps returns one map per operand.
func (op *GenericOp) IndexingMaps() []affine.Map { return op.attrs.maps }

// Iterators returns the kind of each loop dimension.
func (op *GenericOp) Iterators() []IteratorKind { return op.attrs.iterators }

// SymbolSource returns the declared symbol source operand, if any.
func (op *GenericOp) SymbolSource() (int, bool) {
	if op.attrs.symbolSource == nil {
		return 0, false
	}
	return *op.attrs.symbolSource, true
}

// Sparsity returns the sparsity side table, or nil.
func (op *GenericOp) Sparsity() map[int][]DimLevel { return op.attrs.sparsity }

// Doc returns the optional documentation string.
func (op *GenericOp) Doc() string { return op.attrs.doc }

// LibraryCall returns the optional external symbol name.
func (op *GenericOp) LibraryCall() string { return op.attrs.libraryCall }

// NumInputs returns the number of input operands.
func (op *IndexedGenericOp) NumInputs() int { return op.numInputs }

// NumOutputBuffers returns the number of mutable output operands.
func (op *IndexedGenericOp) NumOutputBuffers() int { return op.numOutputs }

// NumInitTensors returns the number of init operands.
func (op *IndexedGenericOp) NumInitTensors() int { return op.numInits }

// IndexingMaps returns one map per operand.
func (op *IndexedGenericOp) IndexingMaps() []affine.Map { return op.attrs.maps }

// Iterators returns the kind of each loop dimension.
func (op *IndexedGenericOp) Iterators() []IteratorKind { return op.attrs.iterators }

// SymbolSource returns the declared symbol source operand, if any.
func (op *IndexedGenericOp) SymbolSource() (int, bool) {
	if op.attrs.symbolSource == nil {
		return 0, false
	}
	return *op.attrs.symbolSource, true
}

// Sparsity returns the sparsity side table, or nil.
func (op *IndexedGenericOp) Sparsity() map[int][]DimLevel { return op.attrs.sparsity }

// Doc returns the optional documentation string.
func (op *IndexedGenericOp) Doc() string { return op.attrs.doc }

// LibraryCall returns the optional external symbol name.
func (op *IndexedGenericOp) LibraryCall() string { return op.attrs.libraryCall }

// Verify checks the shared structured constraints.
func (op *GenericOp) Verify() error { return verifyStructured(op) }

// Verify checks the shared structured constraints.
func (op *IndexedGenericOp) Verify() error { return verifyStructured(op) }

// Effects declares the memory effects of the op.
func (op *GenericOp) Effects() []ir.Effect { return Effects(op) }

// Effects declares the memory effects of the op.
func (op *IndexedGenericOp) Effects() []ir.Effect { return Effects(op) }

// Format prints the inline attribute dictionary, the operand groups,
// the body and the result types.
func (op *GenericOp) Format(p *ir.Printer) { formatGeneric(p, op, op.attrs) }

// Format prints the inline attribute dictionary, the operand groups,
// the body and the result types.
func (op *IndexedGenericOp) Format(p *ir.Printer) { formatGeneric(p, op, op.attrs) }

func formatGeneric(p *ir.Printer, op StructuredOp, attrs genericAttrs) {
	p.Printf(" %s", genericDict(op, attrs))
	formatOperandGroups(p, op)
	p.Printf(" ")
	p.PrintRegion(op.Region())
	formatResultTypes(p, op)
}

func genericDict(op StructuredOp, attrs genericAttrs) ir.DictAttr {
	mapAttrs := make([]ir.Attr, len(attrs.maps))
	for i, m := range attrs.maps {
		mapAttrs[i] = ir.StringAttr{V: m.String()}
	}
	iterAttrs := make([]ir.Attr, len(attrs.iterators))
	for i, it := range attrs.iterators {
		iterAttrs[i] = ir.StringAttr{V: it.String()}
	}
	dict := ir.DictAttr{Entries: []ir.NamedAttr{
		{Name: "indexing_maps", Value: ir.ArrayAttr{Elems: mapAttrs}},
		{Name: "iterators", Value: ir.ArrayAttr{Elems: iterAttrs}},
	}}
	if attrs.doc != "" {
		dict.Entries = append(dict.Entries, ir.NamedAttr{Name: "doc", Value: ir.StringAttr{V: attrs.doc}})
	}
	if attrs.libraryCall != "" {
		dict.Entries = append(dict.Entries, ir.NamedAttr{Name: "library_call", Value: ir.StringAttr{V: attrs.libraryCall}})
	}
	if attrs.symbolSource != nil {
		dict.Entries = append(dict.Entries, ir.NamedAttr{Name: "symbol_source", Value: ir.IntAttr{V: int64(*attrs.symbolSource)}})
	}
	if attrs.sparsity != nil {
		dict.Entries = append(dict.Entries, ir.NamedAttr{Name: "sparsity", Value: sparsityAttr(attrs.sparsity)})
	}
	return dict
}

// sparsityAttr flattens the sparsity side table to an array in
// operand order. Verification requires one entry per operand, so the
// array form is lossless.
func sparsityAttr(sp map[int][]DimLevel) ir.ArrayAttr {
	keys := maps.Keys(sp)
	slices.Sort(keys)
	arr := ir.ArrayAttr{}
	for _, k := range keys {
		levels := ir.ArrayAttr{}
		for _, l := range sp[k] {
			levels.Elems = append(levels.Elems, ir.StringAttr{V: l.String()})
		}
		arr.Elems = append(arr.Elems, levels)
	}
	return arr
}

func formatOperandGroups(p *ir.Printer, op StructuredOp) {
	formatOperandGroup(p, "ins", Inputs(op))
	formatOperandGroup(p, "outs", OutputBuffers(op))
	formatOperandGroup(p, "init", InitTensors(op))
}

func formatOperandGroup(p *ir.Printer, keyword string, vals []*ir.Value) {
	if len(vals) == 0 {
		return
	}
	p.Printf(" %s(%s : %s)", keyword, p.ValueListString(vals), p.TypeListString(vals))
}

func formatResultTypes(p *ir.Printer, op ir.Op) {
	results := op.Results()
	if len(results) == 0 {
		return
	}
	p.Printf(" -> %s", p.TypeListString(results))
}

func parseGeneric(indexed bool) ir.ParseFn {
	return func(p *ir.Parser) (ir.Op, error) {
		dict, err := p.ParseDictAttr()
		if err != nil {
			return nil, err
		}
		spec := GenericSpec{}
		if err := specFromDict(p, dict, &spec); err != nil {
			return nil, err
		}
		if spec.Inputs, err = parseOperandGroup(p, "ins"); err != nil {
			return nil, err
		}
		if spec.OutputBuffers, err = parseOperandGroup(p, "outs"); err != nil {
			return nil, err
		}
		if spec.InitTensors, err = parseOperandGroup(p, "init"); err != nil {
			return nil, err
		}
		if spec.Region, err = p.ParseRegion(); err != nil {
			return nil, err
		}
		if p.Scanner().AcceptArrow() {
			if spec.ResultTypes, err = p.ParseTypeList(); err != nil {
				return nil, err
			}
		}
		if indexed {
			return NewIndexedGeneric(spec), nil
		}
		return NewGeneric(spec), nil
	}
}

func specFromDict(p *ir.Parser, dict ir.DictAttr, spec *GenericSpec) error {
	s := p.Scanner()
	for _, entry := range dict.Entries {
		switch entry.Name {
		case "indexing_maps":
			arr, ok := entry.Value.(ir.ArrayAttr)
			if !ok {
				return s.Errf("indexing_maps must be an array of map strings")
			}
			for _, e := range arr.Elems {
				str, ok := e.(ir.StringAttr)
				if !ok {
					return s.Errf("indexing_maps must be an array of map strings")
				}
				m, err := affine.ParseMapString(str.V)
				if err != nil {
					return err
				}
				spec.IndexingMaps = append(spec.IndexingMaps, m)
			}
		case "iterators":
			arr, ok := entry.Value.(ir.ArrayAttr)
			if !ok {
				return s.Errf("iterators must be an array of kind strings")
			}
			for _, e := range arr.Elems {
				str, ok := e.(ir.StringAttr)
				if !ok {
					return s.Errf("iterators must be an array of kind strings")
				}
				kind, ok := IteratorByName(str.V)
				if !ok {
					return s.Errf("unknown iterator kind %q", str.V)
				}
				spec.Iterators = append(spec.Iterators, kind)
			}
		case "doc":
			str, ok := entry.Value.(ir.StringAttr)
			if !ok {
				return s.Errf("doc must be a string")
			}
			spec.Doc = str.V
		case "library_call":
			str, ok := entry.Value.(ir.StringAttr)
			if !ok {
				return s.Errf("library_call must be a string")
			}
			spec.LibraryCall = str.V
		case "symbol_source":
			iv, ok := entry.Value.(ir.IntAttr)
			if !ok {
				return s.Errf("symbol_source must be an integer")
			}
			src := int(iv.V)
			spec.SymbolSource = &src
		case "sparsity":
			sp, err := sparsityFromAttr(p, entry.Value)
			if err != nil {
				return err
			}
			spec.Sparsity = sp
		default:
			return s.Errf("unknown attribute %q", entry.Name)
		}
	}
	return nil
}

func sparsityFromAttr(p *ir.Parser, a ir.Attr) (map[int][]DimLevel, error) {
	s := p.Scanner()
	arr, ok := a.(ir.ArrayAttr)
	if !ok {
		return nil, s.Errf("sparsity must be an array of level arrays")
	}
	sp := map[int][]DimLevel{}
	for i, e := range arr.Elems {
		inner, ok := e.(ir.ArrayAttr)
		if !ok {
			return nil, s.Errf("sparsity must be an array of level arrays")
		}
		levels := []DimLevel{}
		for _, le := range inner.Elems {
			str, ok := le.(ir.StringAttr)
			if !ok {
				return nil, s.Errf("sparsity levels must be strings")
			}
			l, ok := DimLevelByName(str.V)
			if !ok {
				return nil, s.Errf("unknown sparsity level %q", str.V)
			}
			levels = append(levels, l)
		}
		sp[i] = levels
	}
	return sp, nil
}

// parseOperandGroup parses an optional keyword(%values : types) group
// and checks the listed types against the resolved values.
func parseOperandGroup(p *ir.Parser, keyword string) ([]*ir.Value, error) {
	s := p.Scanner()
	if !s.AcceptIdent(keyword) {
		return nil, nil
	}
	if err := s.Expect('('); err != nil {
		return nil, err
	}
	vals, err := p.ParseValueUseList()
	if err != nil {
		return nil, err
	}
	if err := s.Expect(':'); err != nil {
		return nil, err
	}
	types, err := p.ParseTypeList()
	if err != nil {
		return nil, err
	}
	if len(types) != len(vals) {
		return nil, s.Errf("%s group lists %d type(s) for %d value(s)", keyword, len(types), len(vals))
	}
	for i, t := range types {
		if !t.Equal(vals[i].Type()) {
			return nil, s.Errf("%s group operand %d has type %s, not %s", keyword, i, vals[i].Type(), t)
		}
	}
	if err := s.Expect(')'); err != nil {
		return nil, err
	}
	return vals, nil
}
