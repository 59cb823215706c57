// Copyright 2025 UMH Systems GmbH
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

package op

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when an operation is applied to an incompatible
	// previous value. Values are never coerced.
	ErrValidation = errors.New("validation error")

	// ErrMergeConflict is returned when two queued operations on the same
	// attribute cannot be combined without losing the earlier one's effect.
	ErrMergeConflict = errors.New("merge conflict")

	// ErrRelationClassMismatch is returned when a relation's target type
	// disagrees with one established earlier.
	ErrRelationClassMismatch = errors.New("relation class mismatch")
)

// Error carries the operation kind and the failure class. errors.Is matches
// the class sentinel and, for merge conflicts raised by a failed apply, the
// underlying cause.
type Error struct {
	Kind  Kind
	Class error
	Msg   string
	Cause error
}

func newError(kind Kind, class error, format string, args ...any) *Error {
	return &Error{Kind: kind, Class: class, Msg: fmt.Sprintf(format, args...)}
}

func conflict(later, earlier Operation) *Error {
	return newError(later.Kind(), ErrMergeConflict, "cannot merge %s op with the previous %s op", later.Kind(), earlier.Kind())
}

func conflictCause(later, earlier Operation, cause error) *Error {
	e := conflict(later, earlier)
	e.Cause = cause

	return e
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Class, e.Kind, e.Msg, e.Cause)
	}

	return fmt.Sprintf("%s: %s: %s", e.Class, e.Kind, e.Msg)
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Class, e.Cause}
	}

	return []error{e.Class}
}
