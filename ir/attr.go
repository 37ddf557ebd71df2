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
)

type (
	// Attr is a compile-time constant attached to an operation.
	Attr interface {
		attr()
		String() string
	}

	// IntAttr is an integer constant.
	IntAttr struct {
		V int64
	}

	// FloatAttr is a floating point constant.
	FloatAttr struct {
		V float64
	}

	// StringAttr is a string constant.
	StringAttr struct {
		V string
	}

	// ArrayAttr is an ordered list of constants.
	ArrayAttr struct {
		Elems []Attr
	}

	// NamedAttr is a key-value entry of a dictionary.
	NamedAttr struct {
		Name  string
		Value Attr
	}

	// DictAttr is an ordered dictionary of named constants.
	DictAttr struct {
		Entries []NamedAttr
	}
)

func (IntAttr) attr()    {}
func (FloatAttr) attr()  {}
func (StringAttr) attr() {}
func (ArrayAttr) attr()  {}
func (DictAttr) attr()   {}

func (a IntAttr) String() string {
	return strconv.FormatInt(a.V, 10)
}

func (a FloatAttr) String() string {
	s := strconv.FormatFloat(a.V, 'g', -1, 64)
	// Keep floats distinguishable from integers in the printed form.
	if !strings.ContainsAny(s, ".eE") || strings.HasPrefix(s, "0x") {
		s += ".0"
	}
	return s
}

func (a StringAttr) String() string {
	return strconv.Quote(a.V)
}

func (a ArrayAttr) String() string {
	var b strings.Builder
	b.WriteString("[")
	for i, e := range a.Elems {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(e.String())
	}
	b.WriteString("]")
	return b.String()
}

func (a DictAttr) String() string {
	var b strings.Builder
	b.WriteString("{")
	for i, e := range a.Entries {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(e.Name)
		b.WriteString(" = ")
		b.WriteString(e.Value.String())
	}
	b.WriteString("}")
	return b.String()
}

// Lookup returns the value of a named entry, or false if the
// dictionary has no entry with that name.
func (a DictAttr) Lookup(name string) (Attr, bool) {
	for _, e := range a.Entries {
		if e.Name == name {
			return e.Value, true
		}
	}
	return nil, false
}

// IntArrayAttr returns an array attribute over integer elements.
func IntArrayAttr(vals ...int64) ArrayAttr {
	elems := make([]Attr, len(vals))
	for i, v := range vals {
		elems[i] = IntAttr{V: v}
	}
	return ArrayAttr{Elems: elems}
}

// IntsOf returns the integer elements of an array attribute, or false
// if the attribute is not an array of integers.
func IntsOf(a Attr) ([]int64, bool) {
	arr, ok := a.(ArrayAttr)
	if !ok {
		return nil, false
	}
	vals := make([]int64, len(arr.Elems))
	for i, e := range arr.Elems {
		iv, ok := e.(IntAttr)
		if !ok {
			return nil, false
		}
		vals[i] = iv.V
	}
	return vals, true
}

// AttrsEqual returns true if two attributes have the same printed
// form, which is canonical.
func AttrsEqual(a, b Attr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}
