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

// Package syntax provides the token stream consumed by the IR
// assembly parsers. Tokenization itself is delegated to
// text/scanner; this package adds single-token lookahead and
// position-prefixed errors.
package syntax

import (
	"fmt"
	"strconv"
	"strings"
	"text/scanner"

	"github.com/pkg/errors"
)

// Token kinds beyond single-rune punctuation, re-exported so that
// callers do not need to import text/scanner.
const (
	EOF    = scanner.EOF
	Ident  = scanner.Ident
	Int    = scanner.Int
	Float  = scanner.Float
	String = scanner.String
)

// Scanner is a token stream over IR assembly text.
// The current token is always available; Next advances the stream.
type Scanner struct {
	sc  scanner.Scanner
	tok rune
	txt string
	pos scanner.Position
}

// NewScanner returns a scanner over src. name is used as the file
// name in positions reported by errors.
func NewScanner(name, src string) *Scanner {
	s := &Scanner{}
	s.sc.Init(strings.NewReader(src))
	s.sc.Filename = name
	s.sc.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats | scanner.ScanStrings
	// Report scanner-level errors through the token stream.
	s.sc.Error = func(*scanner.Scanner, string) {}
	s.Next()
	return s
}

// Next advances to the next token and returns it.
func (s *Scanner) Next() rune {
	s.tok = s.sc.Scan()
	s.txt = s.sc.TokenText()
	s.pos = s.sc.Position
	return s.tok
}

// Tok returns the current token.
func (s *Scanner) Tok() rune { return s.tok }

// Text returns the text of the current token.
func (s *Scanner) Text() string { return s.txt }

// Pos returns the position of the current token.
func (s *Scanner) Pos() scanner.Position { return s.pos }

// Errf returns an error prefixed with the current position.
func (s *Scanner) Errf(format string, a ...any) error {
	return errors.Errorf("%s: %s", s.pos, fmt.Sprintf(format, a...))
}

// Accept consumes the current token and returns true if it is the
// given punctuation rune.
func (s *Scanner) Accept(r rune) bool {
	if s.tok != r {
		return false
	}
	s.Next()
	return true
}

// Expect consumes the current token if it is the given punctuation
// rune and returns an error otherwise.
func (s *Scanner) Expect(r rune) error {
	if s.tok != r {
		return s.Errf("expected %q, got %q", string(r), s.txt)
	}
	s.Next()
	return nil
}

// AcceptIdent consumes the current token and returns true if it is
// the given identifier.
func (s *Scanner) AcceptIdent(ident string) bool {
	if s.tok != Ident || s.txt != ident {
		return false
	}
	s.Next()
	return true
}

// ExpectIdent consumes and returns the current identifier token.
func (s *Scanner) ExpectIdent() (string, error) {
	if s.tok != Ident {
		return "", s.Errf("expected identifier, got %q", s.txt)
	}
	txt := s.txt
	s.Next()
	return txt, nil
}

// ExpectInt consumes and returns the current integer token,
// accepting an optional leading minus sign.
func (s *Scanner) ExpectInt() (int64, error) {
	neg := s.Accept('-')
	if s.tok != Int {
		return 0, s.Errf("expected integer, got %q", s.txt)
	}
	v, err := strconv.ParseInt(s.txt, 0, 64)
	if err != nil {
		return 0, s.Errf("invalid integer %q: %v", s.txt, err)
	}
	s.Next()
	if neg {
		v = -v
	}
	return v, nil
}

// ExpectNumber consumes and returns the current integer or float
// token as a float, accepting an optional leading minus sign.
func (s *Scanner) ExpectNumber() (float64, bool, error) {
	neg := s.Accept('-')
	isFloat := s.tok == Float
	if s.tok != Int && s.tok != Float {
		return 0, false, s.Errf("expected number, got %q", s.txt)
	}
	v, err := strconv.ParseFloat(s.txt, 64)
	if err != nil {
		return 0, false, s.Errf("invalid number %q: %v", s.txt, err)
	}
	s.Next()
	if neg {
		v = -v
	}
	return v, isFloat, nil
}

// ExpectString consumes the current string literal token and returns
// its unquoted value.
func (s *Scanner) ExpectString() (string, error) {
	if s.tok != String {
		return "", s.Errf("expected string literal, got %q", s.txt)
	}
	v, err := strconv.Unquote(s.txt)
	if err != nil {
		return "", s.Errf("invalid string literal %q: %v", s.txt, err)
	}
	s.Next()
	return v, nil
}

// AcceptArrow consumes a "->" arrow and returns true if the stream
// starts with one. The stream is left on the token after the arrow.
func (s *Scanner) AcceptArrow() bool {
	if s.tok != '-' {
		return false
	}
	if s.Next() != '>' {
		// A lone minus cannot appear where an arrow is accepted.
		return false
	}
	s.Next()
	return true
}

// ExpectArrow consumes a "->" arrow.
func (s *Scanner) ExpectArrow() error {
	if s.tok != '-' {
		return s.Errf("expected \"->\", got %q", s.txt)
	}
	if s.Next() != '>' {
		return s.Errf("expected \"->\", got \"-%s\"", s.txt)
	}
	s.Next()
	return nil
}
