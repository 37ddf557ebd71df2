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
	"strings"

	"github.com/pkg/errors"
)

// Map is an affine function from a tuple of iteration dimensions
// (plus a fixed set of symbols) to a tuple of result expressions.
type Map struct {
	dims    int
	syms    int
	results []Expr
}

// NewMap returns a map with the given number of dimensions and
// symbols, mapping to the given results.
func NewMap(dims, syms int, results ...Expr) Map {
	return Map{dims: dims, syms: syms, results: results}
}

// Identity returns the n-dimensional identity map (d0, ..., dn-1) -> (d0, ..., dn-1).
func Identity(n int) Map {
	results := make([]Expr, n)
	for i := range results {
		results[i] = Dim{Pos: i}
	}
	return Map{dims: n, results: results}
}

// PermutationMap returns the map sending dimension i to position perm[i].
func PermutationMap(perm ...int) (Map, error) {
	seen := make([]bool, len(perm))
	results := make([]Expr, len(perm))
	for i, p := range perm {
		if p < 0 || p >= len(perm) || seen[p] {
			return Map{}, errors.Errorf("invalid permutation: position %d at index %d", p, i)
		}
		seen[p] = true
		results[i] = Dim{Pos: p}
	}
	return Map{dims: len(perm), results: results}, nil
}

// NumDims returns the number of iteration dimensions of the map.
func (m Map) NumDims() int { return m.dims }

// NumSymbols returns the number of symbols of the map.
func (m Map) NumSymbols() int { return m.syms }

// NumResults returns the number of results of the map.
func (m Map) NumResults() int { return len(m.results) }

// Results returns the result expressions of the map.
func (m Map) Results() []Expr { return m.results }

// Result returns the result expression at a given position.
func (m Map) Result(i int) Expr { return m.results[i] }

// SubMap returns the single-result map selecting result i,
// keeping the dimension and symbol counts of the map.
func (m Map) SubMap(i int) Map {
	return Map{dims: m.dims, syms: m.syms, results: []Expr{m.results[i]}}
}

// Equal returns true if other has the same dimensions, symbols and results.
func (m Map) Equal(other Map) bool {
	if m.dims != other.dims || m.syms != other.syms || len(m.results) != len(other.results) {
		return false
	}
	for i, r := range m.results {
		if r != other.results[i] {
			return false
		}
	}
	return true
}

// IsIdentity returns true if the map is the identity over its dimensions.
func (m Map) IsIdentity() bool {
	if m.syms != 0 || len(m.results) != m.dims {
		return false
	}
	for i, r := range m.results {
		if (r != Dim{Pos: i}) {
			return false
		}
	}
	return true
}

// IsPermutation returns true if the map is a symbol-free permutation
// of its dimensions.
func (m Map) IsPermutation() bool {
	if m.syms != 0 || len(m.results) != m.dims {
		return false
	}
	seen := make([]bool, m.dims)
	for _, r := range m.results {
		d, ok := r.(Dim)
		if !ok || seen[d.Pos] {
			return false
		}
		seen[d.Pos] = true
	}
	return true
}

// Compose returns the composition m(g(...)): the dimensions of m are
// substituted with the results of g. m must have exactly as many
// dimensions as g has results. The symbols of g come first in the
// composed map, followed by the symbols of m.
func (m Map) Compose(g Map) (Map, error) {
	if m.dims != g.NumResults() {
		return Map{}, errors.Errorf("cannot compose map with %d dim(s) with a producer of %d result(s)", m.dims, g.NumResults())
	}
	syms := make([]Expr, m.syms)
	for i := range syms {
		syms[i] = Symbol{Pos: i + g.syms}
	}
	results := make([]Expr, len(m.results))
	for i, r := range m.results {
		results[i] = ReplaceDimsAndSymbols(r, g.results, syms)
	}
	return Map{dims: g.dims, syms: g.syms + m.syms, results: results}, nil
}

// Concat returns the horizontal concatenation of the maps: a single
// map over the same dimensions and symbols whose result list is the
// concatenation of all result lists. All maps must agree on their
// dimension and symbol counts.
func Concat(maps ...Map) (Map, error) {
	if len(maps) == 0 {
		return Map{}, nil
	}
	cat := Map{dims: maps[0].dims, syms: maps[0].syms}
	for i, m := range maps {
		if m.dims != cat.dims || m.syms != cat.syms {
			return Map{}, errors.Errorf("cannot concatenate map %d: got %d dim(s) and %d symbol(s) but want %d and %d", i, m.dims, m.syms, cat.dims, cat.syms)
		}
		cat.results = append(cat.results, m.results...)
	}
	return cat, nil
}

// InversePermutation returns a map assigning to each dimension of m
// the position of its first plain occurrence in the results of m.
// It returns false if m has symbols or if some dimension never occurs
// as a plain dimension expression, that is when m cannot be inverted.
func InversePermutation(m Map) (Map, bool) {
	if m.syms != 0 {
		return Map{}, false
	}
	results := make([]Expr, m.dims)
	for i, r := range m.results {
		d, ok := r.(Dim)
		if !ok {
			continue
		}
		if results[d.Pos] == nil {
			results[d.Pos] = Dim{Pos: i}
		}
	}
	for _, r := range results {
		if r == nil {
			return Map{}, false
		}
	}
	return Map{dims: len(m.results), results: results}, true
}

// String representation of the map.
func (m Map) String() string {
	bld := strings.Builder{}
	bld.WriteString("(")
	for i := 0; i < m.dims; i++ {
		if i > 0 {
			bld.WriteString(", ")
		}
		bld.WriteString(Dim{Pos: i}.String())
	}
	bld.WriteString(")")
	if m.syms > 0 {
		bld.WriteString("[")
		for i := 0; i < m.syms; i++ {
			if i > 0 {
				bld.WriteString(", ")
			}
			bld.WriteString(Symbol{Pos: i}.String())
		}
		bld.WriteString("]")
	}
	bld.WriteString(" -> (")
	for i, r := range m.results {
		if i > 0 {
			bld.WriteString(", ")
		}
		bld.WriteString(r.String())
	}
	bld.WriteString(")")
	return bld.String()
}
