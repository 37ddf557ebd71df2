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
	"strconv"
	"strings"

	"github.com/tir-org/tir/ir"
)

// GenerateLibraryCallName returns the external symbol a structured op
// lowers to when no library_call attribute names one: the qualified op
// name with dots replaced by underscores, followed by one mangled type
// per operand.
func GenerateLibraryCallName(op StructuredOp) string {
	parts := []string{strings.ReplaceAll(op.Name(), ".", "_")}
	for _, opr := range op.Operands() {
		parts = append(parts, mangleType(opr.Get().Type()))
	}
	return strings.Join(parts, "_")
}

// mangleType folds a type to a symbol-safe token. Shaped types spell
// their extents with "s" for dynamic ones, so the name stays stable
// under refinement to static shapes only when the shapes are part of
// the contract.
func mangleType(t ir.Type) string {
	switch t := t.(type) {
	case *ir.BufferType:
		return "view" + mangleShape(t)
	case *ir.TensorType:
		return "tensor" + mangleShape(t)
	}
	return t.String()
}

func mangleShape(t ir.ShapedType) string {
	var sb strings.Builder
	for _, d := range t.Dims() {
		if d == ir.DynamicSize {
			sb.WriteString("s")
		} else {
			sb.WriteString(strconv.FormatInt(d, 10))
		}
		sb.WriteString("x")
	}
	sb.WriteString(t.Elem().String())
	return sb.String()
}
