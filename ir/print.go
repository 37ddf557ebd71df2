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
	"fmt"
	"strconv"
	"strings"
)

// Printer emits the textual form of the IR. Values are named %0, %1,
// ... in order of first appearance; the names are stable within one
// printer.
type Printer struct {
	b      strings.Builder
	names  map[*Value]string
	next   int
	indent int
}

// NewPrinter returns an empty printer.
func NewPrinter() *Printer {
	return &Printer{names: map[*Value]string{}}
}

// String returns everything printed so far.
func (p *Printer) String() string { return p.b.String() }

// Printf appends formatted text.
func (p *Printer) Printf(format string, a ...any) {
	fmt.Fprintf(&p.b, format, a...)
}

// ValueName returns the printed name of a value, assigning the next
// free one on first use.
func (p *Printer) ValueName(v *Value) string {
	if name, ok := p.names[v]; ok {
		return name
	}
	name := "%" + strconv.Itoa(p.next)
	p.next++
	p.names[v] = name
	return name
}

// ValueListString returns the comma-separated names of the values.
func (p *Printer) ValueListString(vals []*Value) string {
	names := make([]string, len(vals))
	for i, v := range vals {
		names[i] = p.ValueName(v)
	}
	return strings.Join(names, ", ")
}

// TypeListString returns the comma-separated types of the values.
func (p *Printer) TypeListString(vals []*Value) string {
	names := make([]string, len(vals))
	for i, v := range vals {
		names[i] = v.Type().String()
	}
	return strings.Join(names, ", ")
}

func (p *Printer) printIndent() {
	for i := 0; i < p.indent; i++ {
		p.b.WriteString("  ")
	}
}

// PrintOp prints one operation on its own line, results first.
func (p *Printer) PrintOp(op Op) {
	p.printIndent()
	if results := op.Results(); len(results) > 0 {
		p.Printf("%s = ", p.ValueListString(results))
	}
	p.b.WriteString(op.Name())
	op.Format(p)
	p.b.WriteString("\n")
}

// PrintRegion prints a region block inline: its parameter header and
// its operations between braces. The closing brace is not followed by
// a newline so that the caller can print trailing result types.
func (p *Printer) PrintRegion(b *Block) {
	p.b.WriteString("{\n")
	p.indent++
	p.printIndent()
	p.b.WriteString("^(")
	for i, param := range b.Params() {
		if i > 0 {
			p.b.WriteString(", ")
		}
		p.Printf("%s: %s", p.ValueName(param), param.Type())
	}
	p.b.WriteString("):\n")
	for _, op := range b.Ops() {
		p.PrintOp(op)
	}
	p.indent--
	p.printIndent()
	p.b.WriteString("}")
}

// PrintFunc prints a top-level block as a function: its parameters
// with their types, then its operations.
func (p *Printer) PrintFunc(b *Block) {
	p.b.WriteString("func(")
	for i, param := range b.Params() {
		if i > 0 {
			p.b.WriteString(", ")
		}
		p.Printf("%s: %s", p.ValueName(param), param.Type())
	}
	p.b.WriteString(") {\n")
	p.indent++
	for _, op := range b.Ops() {
		p.PrintOp(op)
	}
	p.indent--
	p.b.WriteString("}\n")
}

// FuncString returns the textual form of a top-level block.
func FuncString(b *Block) string {
	p := NewPrinter()
	p.PrintFunc(b)
	return p.String()
}

// OpString returns the textual form of a single operation, with value
// names local to the call.
func OpString(op Op) string {
	p := NewPrinter()
	// Stabilize operand names in operand order.
	for _, opr := range op.Operands() {
		p.ValueName(opr.Get())
	}
	p.PrintOp(op)
	return strings.TrimSuffix(p.String(), "\n")
}
