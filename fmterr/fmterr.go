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

// Package fmterr formats the diagnostics surfaced by the IR layer:
// op-scoped verification errors and prefixed error chains.
package fmterr

import (
	"fmt"

	"github.com/pkg/errors"
)

// OpErrorf returns a verification diagnostic scoped to the op with
// the given qualified name.
func OpErrorf(op string, format string, a ...any) error {
	return errors.Errorf("'%s' op %s", op, fmt.Sprintf(format, a...))
}

// PrefixWith returns a function to prefix errors with a formatted string.
func PrefixWith(s string, o ...any) func(err error) error {
	return func(err error) error {
		return fmt.Errorf("%s%w", fmt.Sprintf(s, o...), err)
	}
}

type internal struct {
	err error
}

func (e internal) Error() string {
	return "internal error: " + e.err.Error()
}

func (e internal) Unwrap() error { return e.err }

// Internal marks an error as an internal inconsistency, that is a
// bug in the IR layer rather than in the IR being processed.
func Internal(err error) error {
	return internal{err: err}
}

// IsInternal returns true if the error has been marked as internal.
func IsInternal(err error) bool {
	var e internal
	return errors.As(err, &e)
}
