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
	"github.com/tir-org/tir/fmterr"
	"github.com/tir-org/tir/ir/affine"
)

func init() {
	RegisterOp("core.constant", parseConstant)
	RegisterOp("core.dim", parseDim)
	RegisterOp("core.range", parseRange)
	RegisterOp("core.apply", parseApply)
	RegisterOp("core.tensor_cast", parseCast(true))
	RegisterOp("core.buffer_cast", parseCast(false))
	RegisterOp("core.add", parseBinary(BinaryAdd))
	RegisterOp("core.mul", parseBinary(BinaryMul))
	RegisterOp("core.max", parseBinary(BinaryMax))
	RegisterOp("core.min", parseBinary(BinaryMin))
}

// ConstantOp materializes a compile-time constant: a scalar or index
// value, or a tensor where every element is the same splat value.
type ConstantOp struct {
	OpBase
	Val Attr
}

var _ Op = (*ConstantOp)(nil)

// NewConstant returns a constant of the given type.
func NewConstant(t Type, val Attr) *ConstantOp {
	op := &ConstantOp{Val: val}
	op.Init(op)
	op.InitResults(t)
	return op
}

// Name of the operation.
func (op *ConstantOp) Name() string { return "core.constant" }

// IsSplat returns true if the constant is a shaped splat.
func (op *ConstantOp) IsSplat() bool {
	_, ok := op.Result(0).Type().(ShapedType)
	return ok
}

// Verify checks that the constant kind matches its type.
func (op *ConstantOp) Verify() error {
	elem := op.Result(0).Type()
	if shaped, ok := elem.(ShapedType); ok {
		if _, ok := shaped.(*TensorType); !ok {
			return fmterr.OpErrorf(op.Name(), "splat constants require a tensor type, got %s", elem)
		}
		elem = shaped.Elem()
	}
	switch elem := elem.(type) {
	case Index:
		if _, ok := op.Val.(IntAttr); !ok {
			return fmterr.OpErrorf(op.Name(), "index constant requires an integer value, got %s", op.Val)
		}
	case Scalar:
		switch op.Val.(type) {
		case IntAttr:
			if elem.IsFloat() {
				return fmterr.OpErrorf(op.Name(), "%s constant requires a float value, got %s", elem, op.Val)
			}
		case FloatAttr:
			if !elem.IsFloat() {
				return fmterr.OpErrorf(op.Name(), "%s constant requires an integer value, got %s", elem, op.Val)
			}
		default:
			return fmterr.OpErrorf(op.Name(), "invalid constant value %s", op.Val)
		}
	default:
		return fmterr.OpErrorf(op.Name(), "invalid constant type %s", elem)
	}
	return nil
}

// Format prints the constant value and its type.
func (op *ConstantOp) Format(p *Printer) {
	if op.IsSplat() {
		p.Printf(" splat(%s) : %s", op.Val, op.Result(0).Type())
		return
	}
	p.Printf(" %s : %s", op.Val, op.Result(0).Type())
}

func parseConstant(p *Parser) (Op, error) {
	s := p.Scanner()
	splat := s.AcceptIdent("splat")
	if splat {
		if err := s.Expect('('); err != nil {
			return nil, err
		}
	}
	v, isFloat, err := s.ExpectNumber()
	if err != nil {
		return nil, err
	}
	if splat {
		if err := s.Expect(')'); err != nil {
			return nil, err
		}
	}
	if err := s.Expect(':'); err != nil {
		return nil, err
	}
	t, err := p.ParseType()
	if err != nil {
		return nil, err
	}
	var val Attr
	if isFloat {
		val = FloatAttr{V: v}
	} else {
		val = IntAttr{V: int64(v)}
	}
	return NewConstant(t, val), nil
}

// DimOp returns the extent of one dimension of a shaped value as an
// index.
type DimOp struct {
	OpBase
	Dimension int
}

var _ Op = (*DimOp)(nil)

// NewDim returns the dim op querying the given dimension.
func NewDim(v *Value, dimension int) *DimOp {
	op := &DimOp{Dimension: dimension}
	op.Init(op, v)
	op.InitResults(Index{})
	return op
}

// Name of the operation.
func (op *DimOp) Name() string { return "core.dim" }

// Verify checks that the operand is shaped and the dimension in range.
func (op *DimOp) Verify() error {
	shaped, ok := op.Operand(0).Get().Type().(ShapedType)
	if !ok {
		return fmterr.OpErrorf(op.Name(), "operand must be shaped, got %s", op.Operand(0).Get().Type())
	}
	if op.Dimension < 0 || op.Dimension >= shaped.Rank() {
		return fmterr.OpErrorf(op.Name(), "dimension %d out of range for rank %d", op.Dimension, shaped.Rank())
	}
	return nil
}

// StaticExtent returns the queried extent if it is static.
func (op *DimOp) StaticExtent() (int64, bool) {
	shaped, ok := op.Operand(0).Get().Type().(ShapedType)
	if !ok {
		return 0, false
	}
	d := shaped.Dims()[op.Dimension]
	return d, d != DynamicSize
}

// Format prints the operand, the dimension and the operand type.
func (op *DimOp) Format(p *Printer) {
	v := op.Operand(0).Get()
	p.Printf(" %s, %d : %s", p.ValueName(v), op.Dimension, v.Type())
}

func parseDim(p *Parser) (Op, error) {
	v, err := p.ParseValueUse()
	if err != nil {
		return nil, err
	}
	s := p.Scanner()
	if err := s.Expect(','); err != nil {
		return nil, err
	}
	dim, err := s.ExpectInt()
	if err != nil {
		return nil, err
	}
	if err := s.Expect(':'); err != nil {
		return nil, err
	}
	if _, err := p.ParseType(); err != nil {
		return nil, err
	}
	return NewDim(v, int(dim)), nil
}

// RangeOp packs loop bounds and a step into a range value.
type RangeOp struct {
	OpBase
}

var _ Op = (*RangeOp)(nil)

// NewRange returns the range op over (min, max, step) indices.
func NewRange(min, max, step *Value) *RangeOp {
	op := &RangeOp{}
	op.Init(op, min, max, step)
	op.InitResults(RangeType{})
	return op
}

// Name of the operation.
func (op *RangeOp) Name() string { return "core.range" }

// Verify checks that all three operands are indices.
func (op *RangeOp) Verify() error {
	for _, opr := range op.Operands() {
		if _, ok := opr.Get().Type().(Index); !ok {
			return fmterr.OpErrorf(op.Name(), "operand %d must be index, got %s", opr.Index(), opr.Get().Type())
		}
	}
	return nil
}

// Format prints the three operands.
func (op *RangeOp) Format(p *Printer) {
	p.Printf(" %s", p.ValueListString(operandValues(op)))
}

func parseRange(p *Parser) (Op, error) {
	vals, err := p.ParseValueUseList()
	if err != nil {
		return nil, err
	}
	if len(vals) != 3 {
		return nil, p.Scanner().Errf("range expects 3 operands, got %d", len(vals))
	}
	return NewRange(vals[0], vals[1], vals[2]), nil
}

// ApplyOp evaluates a single-result affine map over index operands:
// the map dimension operands first, then its symbol operands.
type ApplyOp struct {
	OpBase
	Map affine.Map
}

var _ Op = (*ApplyOp)(nil)

// NewApply returns the apply op evaluating m over the operands.
func NewApply(m affine.Map, operands ...*Value) *ApplyOp {
	op := &ApplyOp{Map: m}
	op.Init(op, operands...)
	op.InitResults(Index{})
	return op
}

// Name of the operation.
func (op *ApplyOp) Name() string { return "core.apply" }

// Verify checks the operand count against the map signature.
func (op *ApplyOp) Verify() error {
	if op.Map.NumResults() != 1 {
		return fmterr.OpErrorf(op.Name(), "map must have a single result, got %d", op.Map.NumResults())
	}
	if want := op.Map.NumDims() + op.Map.NumSymbols(); op.NumOperands() != want {
		return fmterr.OpErrorf(op.Name(), "expected %d operands for map %s, got %d", want, op.Map, op.NumOperands())
	}
	for _, opr := range op.Operands() {
		if _, ok := opr.Get().Type().(Index); !ok {
			return fmterr.OpErrorf(op.Name(), "operand %d must be index, got %s", opr.Index(), opr.Get().Type())
		}
	}
	return nil
}

// Format prints the map then the operands.
func (op *ApplyOp) Format(p *Printer) {
	p.Printf(" %s", op.Map)
	if op.NumOperands() > 0 {
		p.Printf(", %s", p.ValueListString(operandValues(op)))
	}
}

func parseApply(p *Parser) (Op, error) {
	m, err := affine.ParseMap(p.Scanner())
	if err != nil {
		return nil, err
	}
	var vals []*Value
	if p.Scanner().Accept(',') {
		if vals, err = p.ParseValueUseList(); err != nil {
			return nil, err
		}
	}
	return NewApply(m, vals...), nil
}

// TensorCastOp converts between tensor types that differ only in how
// static their extents are.
type TensorCastOp struct {
	OpBase
}

// BufferCastOp converts between buffer types that differ only in how
// static their extents and layout are.
type BufferCastOp struct {
	OpBase
}

var (
	_ Folder = (*TensorCastOp)(nil)
	_ Folder = (*BufferCastOp)(nil)
)

// NewTensorCast returns the cast of a tensor value to another tensor
// type.
func NewTensorCast(v *Value, to Type) *TensorCastOp {
	op := &TensorCastOp{}
	op.Init(op, v)
	op.InitResults(to)
	return op
}

// NewBufferCast returns the cast of a buffer value to another buffer
// type.
func NewBufferCast(v *Value, to Type) *BufferCastOp {
	op := &BufferCastOp{}
	op.Init(op, v)
	op.InitResults(to)
	return op
}

// Name of the operation.
func (op *TensorCastOp) Name() string { return "core.tensor_cast" }

// Name of the operation.
func (op *BufferCastOp) Name() string { return "core.buffer_cast" }

// Verify checks that source and destination are compatible tensors.
func (op *TensorCastOp) Verify() error {
	from, okFrom := op.Operand(0).Get().Type().(*TensorType)
	to, okTo := op.Result(0).Type().(*TensorType)
	if !okFrom || !okTo {
		return fmterr.OpErrorf(op.Name(), "operand and result must be tensors")
	}
	return verifyCast(op.Name(), from, to)
}

// Verify checks that source and destination are compatible buffers.
func (op *BufferCastOp) Verify() error {
	from, okFrom := op.Operand(0).Get().Type().(*BufferType)
	to, okTo := op.Result(0).Type().(*BufferType)
	if !okFrom || !okTo {
		return fmterr.OpErrorf(op.Name(), "operand and result must be buffers")
	}
	return verifyCast(op.Name(), from, to)
}

// verifyCast checks that a cast only trades static extents for
// dynamic ones (in either direction), never changes them.
func verifyCast(name string, from, to ShapedType) error {
	if from.Rank() != to.Rank() {
		return fmterr.OpErrorf(name, "rank mismatch: %s to %s", from, to)
	}
	if !from.Elem().Equal(to.Elem()) {
		return fmterr.OpErrorf(name, "element type mismatch: %s to %s", from, to)
	}
	for i := range from.Dims() {
		df, dt := from.Dims()[i], to.Dims()[i]
		if df != DynamicSize && dt != DynamicSize && df != dt {
			return fmterr.OpErrorf(name, "static extents of dimension %d differ: %s to %s", i, from, to)
		}
	}
	return nil
}

// Fold returns the operand when the cast does not change the type.
func (op *TensorCastOp) Fold() (*Value, bool) { return foldCast(op) }

// Fold returns the operand when the cast does not change the type.
func (op *BufferCastOp) Fold() (*Value, bool) { return foldCast(op) }

func foldCast(op Op) (*Value, bool) {
	src := op.Operands()[0].Get()
	if src.Type().Equal(op.Results()[0].Type()) {
		return src, true
	}
	return nil, false
}

// CastRefinesResult returns true if the cast loses static information:
// its source type refines its result type. Such a cast can fold into
// consumers that re-derive result types.
func CastRefinesResult(op Op) bool {
	src, okSrc := op.Operands()[0].Get().Type().(ShapedType)
	res, okRes := op.Results()[0].Type().(ShapedType)
	return okSrc && okRes && Refines(src, res)
}

// Format prints the operand and both types.
func (op *TensorCastOp) Format(p *Printer) { formatCast(p, op) }

// Format prints the operand and both types.
func (op *BufferCastOp) Format(p *Printer) { formatCast(p, op) }

func formatCast(p *Printer, op Op) {
	v := op.Operands()[0].Get()
	p.Printf(" %s : %s to %s", p.ValueName(v), v.Type(), op.Results()[0].Type())
}

func parseCast(tensor bool) ParseFn {
	return func(p *Parser) (Op, error) {
		v, err := p.ParseValueUse()
		if err != nil {
			return nil, err
		}
		s := p.Scanner()
		if err := s.Expect(':'); err != nil {
			return nil, err
		}
		if _, err := p.ParseType(); err != nil {
			return nil, err
		}
		if !s.AcceptIdent("to") {
			return nil, s.Errf("expected \"to\", got %q", s.Text())
		}
		to, err := p.ParseType()
		if err != nil {
			return nil, err
		}
		if tensor {
			return NewTensorCast(v, to), nil
		}
		return NewBufferCast(v, to), nil
	}
}

// BinaryKind identifies a scalar binary operation.
type BinaryKind int

// Scalar binary operation kinds.
const (
	BinaryAdd BinaryKind = iota
	BinaryMul
	BinaryMax
	BinaryMin
)

// Name returns the qualified op name of the kind.
func (k BinaryKind) Name() string {
	switch k {
	case BinaryAdd:
		return "core.add"
	case BinaryMul:
		return "core.mul"
	case BinaryMax:
		return "core.max"
	case BinaryMin:
		return "core.min"
	}
	return "core.binary?"
}

// BinaryOp is a scalar binary operation, used in the bodies of
// structured operations.
type BinaryOp struct {
	OpBase
	Kind BinaryKind
}

var _ Op = (*BinaryOp)(nil)

// NewBinary returns the binary op of the given kind over two scalars.
func NewBinary(kind BinaryKind, x, y *Value) *BinaryOp {
	op := &BinaryOp{Kind: kind}
	op.Init(op, x, y)
	op.InitResults(x.Type())
	return op
}

// Name of the operation.
func (op *BinaryOp) Name() string { return op.Kind.Name() }

// Verify checks that both operands are scalars of the same type.
func (op *BinaryOp) Verify() error {
	x := op.Operand(0).Get().Type()
	y := op.Operand(1).Get().Type()
	if _, ok := x.(Scalar); !ok {
		if _, ok := x.(Index); !ok {
			return fmterr.OpErrorf(op.Name(), "operands must be scalar, got %s", x)
		}
	}
	if !x.Equal(y) {
		return fmterr.OpErrorf(op.Name(), "operand types differ: %s and %s", x, y)
	}
	return nil
}

// Format prints the operands and their common type.
func (op *BinaryOp) Format(p *Printer) {
	p.Printf(" %s : %s", p.ValueListString(operandValues(op)), op.Operand(0).Get().Type())
}

func parseBinary(kind BinaryKind) ParseFn {
	return func(p *Parser) (Op, error) {
		vals, err := p.ParseValueUseList()
		if err != nil {
			return nil, err
		}
		if len(vals) != 2 {
			return nil, p.Scanner().Errf("%s expects 2 operands, got %d", kind.Name(), len(vals))
		}
		s := p.Scanner()
		if err := s.Expect(':'); err != nil {
			return nil, err
		}
		if _, err := p.ParseType(); err != nil {
			return nil, err
		}
		return NewBinary(kind, vals[0], vals[1]), nil
	}
}

func operandValues(op Op) []*Value {
	vals := make([]*Value, len(op.Operands()))
	for i, opr := range op.Operands() {
		vals[i] = opr.Get()
	}
	return vals
}

// OperandValues returns the values consumed by the operation, in
// operand order.
func OperandValues(op Op) []*Value { return operandValues(op) }
