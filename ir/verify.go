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
	"go.uber.org/multierr"
)

// Verify checks an operation and, recursively, the operations of its
// region. It returns the first error found: verification is a
// pre-order walk so that a diagnostic always names the outermost
// inconsistent op.
func Verify(op Op) error {
	for _, opr := range op.Operands() {
		if opr.Get() == nil {
			return fmterr.Internal(fmterr.OpErrorf(op.Name(), "operand %d is unset", opr.Index()))
		}
	}
	if err := op.Verify(); err != nil {
		return err
	}
	if region := op.Region(); region != nil {
		for _, inner := range region.Ops() {
			if err := Verify(inner); err != nil {
				return err
			}
		}
	}
	return nil
}

// VerifyBlock checks every operation of a block and returns all
// diagnostics combined, one per failing operation.
func VerifyBlock(b *Block) error {
	var errs error
	for _, op := range b.Ops() {
		errs = multierr.Append(errs, Verify(op))
	}
	return errs
}
