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

package affine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tir-org/tir/syntax"
)

// ParseMapString parses the textual form of a map, for example
// "(d0, d1)[s0] -> (d0 + s0, d1 floordiv 2)".
func ParseMapString(src string) (Map, error) {
	s := syntax.NewScanner("map", src)
	m, err := ParseMap(s)
	if err != nil {
		return Map{}, err
	}
	if s.Tok() != syntax.EOF {
		return Map{}, s.Errf("unexpected %q after map", s.Text())
	}
	return m, nil
}

// ParseMap parses a map from a token stream, leaving the stream on
// the first token after the map.
func ParseMap(s *syntax.Scanner) (Map, error) {
	dims, err := parsePositions(s, '(', ')', "d")
	if err != nil {
		return Map{}, err
	}
	syms := 0
	if s.Tok() == '[' {
		if syms, err = parsePositions(s, '[', ']', "s"); err != nil {
			return Map{}, err
		}
	}
	if err := s.ExpectArrow(); err != nil {
		return Map{}, err
	}
	if err := s.Expect('('); err != nil {
		return Map{}, err
	}
	var results []Expr
	if !s.Accept(')') {
		for {
			e, err := parseSum(s, dims, syms)
			if err != nil {
				return Map{}, err
			}
			results = append(results, e)
			if s.Accept(')') {
				break
			}
			if err := s.Expect(','); err != nil {
				return Map{}, err
			}
		}
	}
	return NewMap(dims, syms, results...), nil
}

// parsePositions parses a bracketed list of positional identifiers
// (d0, d1, ...) and returns how many were declared.
func parsePositions(s *syntax.Scanner, open, closing rune, prefix string) (int, error) {
	if err := s.Expect(open); err != nil {
		return 0, err
	}
	n := 0
	if s.Accept(closing) {
		return 0, nil
	}
	for {
		id, err := s.ExpectIdent()
		if err != nil {
			return 0, err
		}
		if want := fmt.Sprintf("%s%d", prefix, n); id != want {
			return 0, s.Errf("expected %q, got %q", want, id)
		}
		n++
		if s.Accept(closing) {
			return n, nil
		}
		if err := s.Expect(','); err != nil {
			return 0, err
		}
	}
}

func parseSum(s *syntax.Scanner, dims, syms int) (Expr, error) {
	e, err := parseProduct(s, dims, syms)
	if err != nil {
		return nil, err
	}
	for {
		switch s.Tok() {
		case '+':
			s.Next()
			rhs, err := parseProduct(s, dims, syms)
			if err != nil {
				return nil, err
			}
			e = Add(e, rhs)
		case '-':
			s.Next()
			rhs, err := parseProduct(s, dims, syms)
			if err != nil {
				return nil, err
			}
			e = Sub(e, rhs)
		default:
			return e, nil
		}
	}
}

func parseProduct(s *syntax.Scanner, dims, syms int) (Expr, error) {
	e, err := parseFactor(s, dims, syms)
	if err != nil {
		return nil, err
	}
	for {
		var op func(Expr, Expr) Expr
		switch {
		case s.Tok() == '*':
			s.Next()
			op = Mul
		case s.AcceptIdent("floordiv"):
			op = FloorDiv
		case s.AcceptIdent("ceildiv"):
			op = CeilDiv
		case s.AcceptIdent("mod"):
			op = Mod
		default:
			return e, nil
		}
		rhs, err := parseFactor(s, dims, syms)
		if err != nil {
			return nil, err
		}
		e = op(e, rhs)
	}
}

func parseFactor(s *syntax.Scanner, dims, syms int) (Expr, error) {
	switch s.Tok() {
	case '-':
		s.Next()
		e, err := parseFactor(s, dims, syms)
		if err != nil {
			return nil, err
		}
		return Mul(e, Const{V: -1}), nil
	case '(':
		s.Next()
		e, err := parseSum(s, dims, syms)
		if err != nil {
			return nil, err
		}
		if err := s.Expect(')'); err != nil {
			return nil, err
		}
		return e, nil
	case syntax.Int:
		v, err := s.ExpectInt()
		if err != nil {
			return nil, err
		}
		return Const{V: v}, nil
	case syntax.Ident:
		id, err := s.ExpectIdent()
		if err != nil {
			return nil, err
		}
		return parsePositional(s, id, dims, syms)
	}
	return nil, s.Errf("expected expression, got %q", s.Text())
}

func parsePositional(s *syntax.Scanner, id string, dims, syms int) (Expr, error) {
	var bound int
	var mk func(int) Expr
	switch {
	case strings.HasPrefix(id, "d"):
		bound, mk = dims, func(pos int) Expr { return Dim{Pos: pos} }
	case strings.HasPrefix(id, "s"):
		bound, mk = syms, func(pos int) Expr { return Symbol{Pos: pos} }
	default:
		return nil, s.Errf("unknown identifier %q in affine expression", id)
	}
	pos, err := strconv.Atoi(id[1:])
	if err != nil {
		return nil, s.Errf("unknown identifier %q in affine expression", id)
	}
	if pos >= bound {
		return nil, s.Errf("%q out of range: the map declares %d", id, bound)
	}
	return mk(pos), nil
}
