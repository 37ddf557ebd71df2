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
	"strconv"
	"strings"

	"github.com/tir-org/tir/syntax"
)

// Parser builds IR from its textual form. Op kinds parse their own
// body through the registered ParseFn; the parser provides the value
// scope, the type grammar and the attribute grammar.
type Parser struct {
	s      *syntax.Scanner
	values map[string]*Value
}

// NewParser returns a parser over src. name is used as the file name
// in error positions.
func NewParser(name, src string) *Parser {
	return &Parser{
		s:      syntax.NewScanner(name, src),
		values: map[string]*Value{},
	}
}

// Scanner returns the underlying token stream.
func (p *Parser) Scanner() *syntax.Scanner { return p.s }

// DefineValue binds a value name. Names are unique across the whole
// parse.
func (p *Parser) DefineValue(name string, v *Value) error {
	if _, ok := p.values[name]; ok {
		return p.s.Errf("value %%%s defined twice", name)
	}
	p.values[name] = v
	return nil
}

// ParseValueName parses a %name token pair and returns the name.
func (p *Parser) ParseValueName() (string, error) {
	if err := p.s.Expect('%'); err != nil {
		return "", err
	}
	if tok := p.s.Tok(); tok != syntax.Ident && tok != syntax.Int {
		return "", p.s.Errf("expected value name, got %q", p.s.Text())
	}
	name := p.s.Text()
	p.s.Next()
	return name, nil
}

// ParseValueUse parses a %name and resolves it to a defined value.
func (p *Parser) ParseValueUse() (*Value, error) {
	name, err := p.ParseValueName()
	if err != nil {
		return nil, err
	}
	v, ok := p.values[name]
	if !ok {
		return nil, p.s.Errf("undefined value %%%s", name)
	}
	return v, nil
}

// ParseValueUseList parses one or more comma-separated value uses.
func (p *Parser) ParseValueUseList() ([]*Value, error) {
	var vals []*Value
	for {
		v, err := p.ParseValueUse()
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
		if !p.s.Accept(',') {
			return vals, nil
		}
	}
}

// ParseType parses a type: an element name, index, range, or a
// shaped tensor or buffer type.
func (p *Parser) ParseType() (Type, error) {
	name, err := p.s.ExpectIdent()
	if err != nil {
		return nil, err
	}
	switch name {
	case "tensor":
		return p.parseShaped(name)
	case "buffer":
		return p.parseShaped(name)
	case "range":
		return RangeType{}, nil
	}
	if t, ok := ScalarByName(name); ok {
		return t, nil
	}
	return nil, p.s.Errf("unknown type %q", name)
}

// ParseTypeList parses one or more comma-separated types.
func (p *Parser) ParseTypeList() ([]Type, error) {
	var types []Type
	for {
		t, err := p.ParseType()
		if err != nil {
			return nil, err
		}
		types = append(types, t)
		if !p.s.Accept(',') {
			return types, nil
		}
	}
}

func (p *Parser) parseShaped(kind string) (Type, error) {
	if err := p.s.Expect('<'); err != nil {
		return nil, err
	}
	// The shape is a run of extents and the element name glued by
	// "x" separators: collect the raw token texts up to the layout
	// or the closing bracket, then split.
	var raw strings.Builder
	for p.s.Tok() != ',' && p.s.Tok() != '>' {
		if p.s.Tok() == syntax.EOF {
			return nil, p.s.Errf("unterminated %s type", kind)
		}
		raw.WriteString(p.s.Text())
		p.s.Next()
	}
	dims, elem, err := p.splitShape(raw.String())
	if err != nil {
		return nil, err
	}
	if kind == "tensor" {
		if err := p.s.Expect('>'); err != nil {
			return nil, err
		}
		return NewTensorType(dims, elem), nil
	}
	if p.s.Accept('>') {
		return NewBufferType(dims, elem), nil
	}
	strides, offset, err := p.parseLayout()
	if err != nil {
		return nil, err
	}
	if len(strides) != len(dims) {
		return nil, p.s.Errf("layout has %d strides for rank %d", len(strides), len(dims))
	}
	if err := p.s.Expect('>'); err != nil {
		return nil, err
	}
	return NewStridedBufferType(dims, elem, strides, offset), nil
}

// splitShape splits "4x?xf32" into extents and the element type.
func (p *Parser) splitShape(raw string) ([]int64, Type, error) {
	elemName := raw
	dimsPart := ""
	// "index" itself ends in x, so it cannot be split on the last x.
	if raw != "index" {
		if trimmed, ok := strings.CutSuffix(raw, "xindex"); ok {
			elemName, dimsPart = "index", trimmed
		} else if i := strings.LastIndexByte(raw, 'x'); i >= 0 {
			elemName, dimsPart = raw[i+1:], raw[:i]
		}
	}
	elem, ok := ScalarByName(elemName)
	if !ok {
		return nil, nil, p.s.Errf("unknown element type %q", elemName)
	}
	var dims []int64
	if dimsPart != "" {
		for _, d := range strings.Split(dimsPart, "x") {
			if d == "?" {
				dims = append(dims, DynamicSize)
				continue
			}
			v, err := strconv.ParseInt(d, 10, 64)
			if err != nil {
				return nil, nil, p.s.Errf("invalid extent %q", d)
			}
			dims = append(dims, v)
		}
	}
	return dims, elem, nil
}

func (p *Parser) parseLayout() ([]int64, int64, error) {
	if err := p.s.Expect(','); err != nil {
		return nil, 0, err
	}
	if !p.s.AcceptIdent("strides") {
		return nil, 0, p.s.Errf("expected \"strides\", got %q", p.s.Text())
	}
	if err := p.s.Expect(':'); err != nil {
		return nil, 0, err
	}
	if err := p.s.Expect('['); err != nil {
		return nil, 0, err
	}
	var strides []int64
	if !p.s.Accept(']') {
		for {
			v, err := p.parseLayoutValue()
			if err != nil {
				return nil, 0, err
			}
			strides = append(strides, v)
			if p.s.Accept(']') {
				break
			}
			if err := p.s.Expect(','); err != nil {
				return nil, 0, err
			}
		}
	}
	if err := p.s.Expect(','); err != nil {
		return nil, 0, err
	}
	if !p.s.AcceptIdent("offset") {
		return nil, 0, p.s.Errf("expected \"offset\", got %q", p.s.Text())
	}
	if err := p.s.Expect(':'); err != nil {
		return nil, 0, err
	}
	offset, err := p.parseLayoutValue()
	if err != nil {
		return nil, 0, err
	}
	return strides, offset, nil
}

func (p *Parser) parseLayoutValue() (int64, error) {
	if p.s.Accept('?') {
		return DynamicStrideOrOffset, nil
	}
	return p.s.ExpectInt()
}

// ParseAttr parses an attribute: a number, a string, an array or a
// dictionary.
func (p *Parser) ParseAttr() (Attr, error) {
	switch p.s.Tok() {
	case '[':
		p.s.Next()
		arr := ArrayAttr{}
		if p.s.Accept(']') {
			return arr, nil
		}
		for {
			e, err := p.ParseAttr()
			if err != nil {
				return nil, err
			}
			arr.Elems = append(arr.Elems, e)
			if p.s.Accept(']') {
				return arr, nil
			}
			if err := p.s.Expect(','); err != nil {
				return nil, err
			}
		}
	case '{':
		return p.ParseDictAttr()
	case syntax.String:
		v, err := p.s.ExpectString()
		if err != nil {
			return nil, err
		}
		return StringAttr{V: v}, nil
	}
	v, isFloat, err := p.s.ExpectNumber()
	if err != nil {
		return nil, err
	}
	if isFloat {
		return FloatAttr{V: v}, nil
	}
	return IntAttr{V: int64(v)}, nil
}

// ParseDictAttr parses a {name = value, ...} dictionary.
func (p *Parser) ParseDictAttr() (DictAttr, error) {
	dict := DictAttr{}
	if err := p.s.Expect('{'); err != nil {
		return dict, err
	}
	if p.s.Accept('}') {
		return dict, nil
	}
	for {
		name, err := p.s.ExpectIdent()
		if err != nil {
			return dict, err
		}
		if err := p.s.Expect('='); err != nil {
			return dict, err
		}
		val, err := p.ParseAttr()
		if err != nil {
			return dict, err
		}
		dict.Entries = append(dict.Entries, NamedAttr{Name: name, Value: val})
		if p.s.Accept('}') {
			return dict, nil
		}
		if err := p.s.Expect(','); err != nil {
			return dict, err
		}
	}
}

// ParseOp parses one operation: optional result names, the qualified
// op name, then the kind-specific body through the registered parser.
func (p *Parser) ParseOp() (Op, error) {
	var resultNames []string
	if p.s.Tok() == '%' {
		for {
			name, err := p.ParseValueName()
			if err != nil {
				return nil, err
			}
			resultNames = append(resultNames, name)
			if !p.s.Accept(',') {
				break
			}
		}
		if err := p.s.Expect('='); err != nil {
			return nil, err
		}
	}
	opName, err := p.s.ExpectIdent()
	if err != nil {
		return nil, err
	}
	for p.s.Accept('.') {
		part, err := p.s.ExpectIdent()
		if err != nil {
			return nil, err
		}
		opName += "." + part
	}
	parse, ok := lookupOp(opName)
	if !ok {
		return nil, p.s.Errf("unknown op %q", opName)
	}
	op, err := parse(p)
	if err != nil {
		return nil, err
	}
	if len(op.Results()) != len(resultNames) {
		return nil, p.s.Errf("op %s defines %d results but %d are named",
			opName, len(op.Results()), len(resultNames))
	}
	for i, name := range resultNames {
		if err := p.DefineValue(name, op.Results()[i]); err != nil {
			return nil, err
		}
	}
	return op, nil
}

// ParseRegion parses a region block: its parameter header and its
// operations between braces. The parsed block has no owner yet; op
// parsers adopt it with SetRegion.
func (p *Parser) ParseRegion() (*Block, error) {
	if err := p.s.Expect('{'); err != nil {
		return nil, err
	}
	b := NewBlock()
	if err := p.s.Expect('^'); err != nil {
		return nil, err
	}
	if err := p.parseParams(b); err != nil {
		return nil, err
	}
	if err := p.s.Expect(':'); err != nil {
		return nil, err
	}
	for !p.s.Accept('}') {
		if p.s.Tok() == syntax.EOF {
			return nil, p.s.Errf("unterminated region")
		}
		op, err := p.ParseOp()
		if err != nil {
			return nil, err
		}
		b.Append(op)
	}
	return b, nil
}

func (p *Parser) parseParams(b *Block) error {
	if err := p.s.Expect('('); err != nil {
		return err
	}
	if p.s.Accept(')') {
		return nil
	}
	for {
		name, err := p.ParseValueName()
		if err != nil {
			return err
		}
		if err := p.s.Expect(':'); err != nil {
			return err
		}
		t, err := p.ParseType()
		if err != nil {
			return err
		}
		if err := p.DefineValue(name, b.AddParam(t)); err != nil {
			return err
		}
		if p.s.Accept(')') {
			return nil
		}
		if err := p.s.Expect(','); err != nil {
			return err
		}
	}
}

// ParseFunc parses a top-level function block, the inverse of
// PrintFunc.
func ParseFunc(name, src string) (*Block, error) {
	p := NewParser(name, src)
	if !p.s.AcceptIdent("func") {
		return nil, p.s.Errf("expected \"func\", got %q", p.s.Text())
	}
	b := NewBlock()
	if err := p.parseParams(b); err != nil {
		return nil, err
	}
	if err := p.s.Expect('{'); err != nil {
		return nil, err
	}
	for !p.s.Accept('}') {
		if p.s.Tok() == syntax.EOF {
			return nil, p.s.Errf("unterminated function body")
		}
		op, err := p.ParseOp()
		if err != nil {
			return nil, err
		}
		b.Append(op)
	}
	if p.s.Tok() != syntax.EOF {
		return nil, p.s.Errf("unexpected %q after function", p.s.Text())
	}
	return b, nil
}
