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

// Package affine provides affine expressions and maps over loop
// iteration indices and symbols.
//
// An expression is a sum of products of dimensions (d0, d1, ...),
// symbols (s0, s1, ...) and integer constants, extended with floor
// division, ceil division and modulo. A map is a function from an
// iteration index tuple (plus symbols) to a tuple of expressions.
//
// All expression values are immutable and comparable: two expressions
// are structurally equal iff they compare equal with ==.
package affine

import (
	"fmt"

	"github.com/pkg/errors"
)

type (
	// Expr is an affine expression over dimensions and symbols.
	Expr interface {
		// expr marks a structure as an expression of this package.
		expr()

		// String representation of the expression.
		String() string
	}

	// Const is an integer constant.
	Const struct {
		V int64
	}

	// Dim refers to the iteration dimension at a given position.
	Dim struct {
		Pos int
	}

	// Symbol refers to the symbol at a given position.
	Symbol struct {
		Pos int
	}

	// Binary combines two expressions with an arithmetic operator.
	Binary struct {
		Kind     BinKind
		LHS, RHS Expr
	}
)

var (
	_ Expr = Const{}
	_ Expr = Dim{}
	_ Expr = Symbol{}
	_ Expr = Binary{}
)

// BinKind is the operator of a binary expression.
type BinKind int

// Binary expression operators.
const (
	AddKind BinKind = iota
	MulKind
	FloorDivKind
	CeilDivKind
	ModKind
)

// String representation of the operator.
func (k BinKind) String() string {
	switch k {
	case AddKind:
		return "+"
	case MulKind:
		return "*"
	case FloorDivKind:
		return "floordiv"
	case CeilDivKind:
		return "ceildiv"
	case ModKind:
		return "mod"
	}
	return fmt.Sprintf("binkind(%d)", int(k))
}

func (Const) expr()  {}
func (Dim) expr()    {}
func (Symbol) expr() {}
func (Binary) expr() {}

// NewConst returns a constant expression.
func NewConst(v int64) Const { return Const{V: v} }

// NewDim returns a dimension expression.
func NewDim(pos int) Dim { return Dim{Pos: pos} }

// NewSymbol returns a symbol expression.
func NewSymbol(pos int) Symbol { return Symbol{Pos: pos} }

// Add returns the simplified sum of two expressions.
func Add(a, b Expr) Expr {
	ca, aConst := a.(Const)
	cb, bConst := b.(Const)
	switch {
	case aConst && bConst:
		return Const{V: ca.V + cb.V}
	case aConst:
		// Constants are canonically on the right.
		a, b = b, a
		cb, bConst = ca, true
	}
	if bConst && cb.V == 0 {
		return a
	}
	// Merge (x + c1) + c2 into x + (c1+c2).
	if bConst {
		if bin, ok := a.(Binary); ok && bin.Kind == AddKind {
			if c1, ok := bin.RHS.(Const); ok {
				return Add(bin.LHS, Const{V: c1.V + cb.V})
			}
		}
	}
	return Binary{Kind: AddKind, LHS: a, RHS: b}
}

// Sub returns the simplified difference a - b.
func Sub(a, b Expr) Expr {
	return Add(a, Mul(b, Const{V: -1}))
}

// Mul returns the simplified product of two expressions.
func Mul(a, b Expr) Expr {
	ca, aConst := a.(Const)
	cb, bConst := b.(Const)
	switch {
	case aConst && bConst:
		return Const{V: ca.V * cb.V}
	case aConst:
		a, b = b, a
		cb, bConst = ca, true
	}
	if bConst {
		switch cb.V {
		case 0:
			return Const{V: 0}
		case 1:
			return a
		}
	}
	return Binary{Kind: MulKind, LHS: a, RHS: b}
}

// FloorDiv returns the simplified floor division of a by b.
func FloorDiv(a, b Expr) Expr {
	return divLike(FloorDivKind, a, b)
}

// CeilDiv returns the simplified ceil division of a by b.
func CeilDiv(a, b Expr) Expr {
	return divLike(CeilDivKind, a, b)
}

// Mod returns the simplified modulo of a by b.
func Mod(a, b Expr) Expr {
	return divLike(ModKind, a, b)
}

func divLike(kind BinKind, a, b Expr) Expr {
	ca, aConst := a.(Const)
	cb, bConst := b.(Const)
	if aConst && bConst && cb.V != 0 {
		switch kind {
		case FloorDivKind:
			return Const{V: floorDiv(ca.V, cb.V)}
		case CeilDivKind:
			return Const{V: ceilDiv(ca.V, cb.V)}
		case ModKind:
			return Const{V: ca.V - cb.V*floorDiv(ca.V, cb.V)}
		}
	}
	if bConst && cb.V == 1 && kind != ModKind {
		return a
	}
	return Binary{Kind: kind, LHS: a, RHS: b}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func ceilDiv(a, b int64) int64 {
	return -floorDiv(-a, b)
}

// Eval evaluates the expression given dimension and symbol values.
// It returns an error if the expression refers to a position out of
// range or divides by zero.
func Eval(e Expr, dims, syms []int64) (int64, error) {
	switch eT := e.(type) {
	case Const:
		return eT.V, nil
	case Dim:
		if eT.Pos >= len(dims) {
			return 0, errors.Errorf("dimension %s out of range: %d value(s) given", eT, len(dims))
		}
		return dims[eT.Pos], nil
	case Symbol:
		if eT.Pos >= len(syms) {
			return 0, errors.Errorf("symbol %s out of range: %d value(s) given", eT, len(syms))
		}
		return syms[eT.Pos], nil
	case Binary:
		lhs, err := Eval(eT.LHS, dims, syms)
		if err != nil {
			return 0, err
		}
		rhs, err := Eval(eT.RHS, dims, syms)
		if err != nil {
			return 0, err
		}
		switch eT.Kind {
		case AddKind:
			return lhs + rhs, nil
		case MulKind:
			return lhs * rhs, nil
		}
		if rhs == 0 {
			return 0, errors.Errorf("division by zero in %s", e)
		}
		switch eT.Kind {
		case FloorDivKind:
			return floorDiv(lhs, rhs), nil
		case CeilDivKind:
			return ceilDiv(lhs, rhs), nil
		case ModKind:
			return lhs - rhs*floorDiv(lhs, rhs), nil
		}
	}
	return 0, errors.Errorf("expression type %T not supported", e)
}

// ReplaceDimsAndSymbols substitutes every dimension and symbol of the
// expression with the expression at the same position in dims or syms.
// Positions without a substitute are left untouched.
func ReplaceDimsAndSymbols(e Expr, dims, syms []Expr) Expr {
	switch eT := e.(type) {
	case Dim:
		if eT.Pos < len(dims) && dims[eT.Pos] != nil {
			return dims[eT.Pos]
		}
		return e
	case Symbol:
		if eT.Pos < len(syms) && syms[eT.Pos] != nil {
			return syms[eT.Pos]
		}
		return e
	case Binary:
		lhs := ReplaceDimsAndSymbols(eT.LHS, dims, syms)
		rhs := ReplaceDimsAndSymbols(eT.RHS, dims, syms)
		switch eT.Kind {
		case AddKind:
			return Add(lhs, rhs)
		case MulKind:
			return Mul(lhs, rhs)
		default:
			return divLike(eT.Kind, lhs, rhs)
		}
	default:
		return e
	}
}

// Walk calls f on the expression and all its sub-expressions.
func Walk(e Expr, f func(Expr)) {
	f(e)
	if bin, ok := e.(Binary); ok {
		Walk(bin.LHS, f)
		Walk(bin.RHS, f)
	}
}

// HasSymbols returns true if the expression refers to at least one symbol.
func HasSymbols(e Expr) bool {
	has := false
	Walk(e, func(sub Expr) {
		if _, ok := sub.(Symbol); ok {
			has = true
		}
	})
	return has
}

// String representation of the constant.
func (e Const) String() string { return fmt.Sprint(e.V) }

// String representation of the dimension.
func (e Dim) String() string { return fmt.Sprintf("d%d", e.Pos) }

// String representation of the symbol.
func (e Symbol) String() string { return fmt.Sprintf("s%d", e.Pos) }

// String representation of the binary expression.
func (e Binary) String() string {
	if e.Kind == AddKind {
		// Print x + (y * -1) as x - y and x + -3 as x - 3.
		if c, ok := e.RHS.(Const); ok && c.V < 0 {
			return fmt.Sprintf("%s - %d", parenthesize(e.LHS, AddKind), -c.V)
		}
		if mul, ok := e.RHS.(Binary); ok && mul.Kind == MulKind {
			if c, ok := mul.RHS.(Const); ok && c.V == -1 {
				return fmt.Sprintf("%s - %s", parenthesize(e.LHS, AddKind), parenthesize(mul.LHS, MulKind))
			}
		}
		return fmt.Sprintf("%s + %s", parenthesize(e.LHS, AddKind), parenthesize(e.RHS, AddKind))
	}
	return fmt.Sprintf("%s %s %s", parenthesize(e.LHS, e.Kind), e.Kind, parenthesize(e.RHS, e.Kind))
}

// parenthesize prints a sub-expression of an operator of kind parent,
// wrapping it in parentheses when required by precedence.
// Sums associate; everything else is printed fully parenthesized.
func parenthesize(e Expr, parent BinKind) string {
	bin, ok := e.(Binary)
	if !ok {
		return e.String()
	}
	if parent == AddKind {
		return bin.String()
	}
	return "(" + bin.String() + ")"
}
