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

// Package op defines the closed set of attribute-level mutations that can be
// queued against an entity, how each one applies to a previous value, how a
// later mutation absorbs an earlier one, and their wire encoding.
//
// Operation is a sum type: behavior lives in Apply, Merge, Encode and Decode,
// each an exhaustive switch over the variants below. Callers outside this
// package cannot add variants.
package op

import (
	"fmt"

	"github.com/united-manufacturing-hub/entitystate/pkg/value"
)

// Kind names an Operation variant.
type Kind string

const (
	KindSet           Kind = "Set"
	KindUnset         Kind = "Unset"
	KindIncrement     Kind = "Increment"
	KindAppend        Kind = "Append"
	KindUniqueAppend  Kind = "UniqueAppend"
	KindRemove        Kind = "Remove"
	KindRelationDelta Kind = "RelationDelta"
)

// Operation is an immutable description of one queued attribute edit.
type Operation interface {
	Kind() Kind
	sealed()
}

// Target identifies where an operation is applied. Only relation deltas use
// it, to materialize a relation handle on an attribute that has none yet.
type Target struct {
	Owner *value.Pointer
	Attr  string
}

// Set replaces the attribute value.
type Set struct {
	value any
}

// NewSet returns a Set of v. v is held by reference and must not be mutated
// afterwards.
func NewSet(v any) Set { return Set{value: v} }

func (Set) Kind() Kind { return KindSet }
func (Set) sealed()    {}

// Value returns the value being set.
func (o Set) Value() any { return o.value }

// Unset deletes the attribute.
type Unset struct{}

func NewUnset() Unset { return Unset{} }

func (Unset) Kind() Kind { return KindUnset }
func (Unset) sealed()    {}

// Increment adds a numeric delta.
type Increment struct {
	amount float64
}

func NewIncrement(amount float64) Increment { return Increment{amount: amount} }

func (Increment) Kind() Kind { return KindIncrement }
func (Increment) sealed()    {}

// Amount returns the delta.
func (o Increment) Amount() float64 { return o.amount }

// Append concatenates values to an array attribute.
type Append struct {
	values []any
}

func NewAppend(values ...any) Append { return Append{values: cloneList(values)} }

func (Append) Kind() Kind { return KindAppend }
func (Append) sealed()    {}

// Values returns a copy of the appended values.
func (o Append) Values() []any { return cloneList(o.values) }

// UniqueAppend appends the values not already present in the array.
type UniqueAppend struct {
	values []any
}

// NewUniqueAppend dedupes values, keeping the first occurrence.
func NewUniqueAppend(values ...any) UniqueAppend {
	return UniqueAppend{values: value.Unique(values)}
}

func (UniqueAppend) Kind() Kind { return KindUniqueAppend }
func (UniqueAppend) sealed()    {}

// Values returns a copy of the deduped values.
func (o UniqueAppend) Values() []any { return cloneList(o.values) }

// Remove deletes every occurrence of the values from an array attribute.
type Remove struct {
	values []any
}

// NewRemove dedupes values, keeping the first occurrence.
func NewRemove(values ...any) Remove {
	return Remove{values: value.Unique(values)}
}

func (Remove) Kind() Kind { return KindRemove }
func (Remove) sealed()    {}

// Values returns a copy of the deduped values.
func (o Remove) Values() []any { return cloneList(o.values) }

// RelationDelta adds and removes entity ids on a relation attribute. The
// target type is inferred from the entities passed in; a delta with no adds
// and no removes has an empty target type.
type RelationDelta struct {
	targetType string
	adds       []string
	removes    []string
}

// NewRelationDelta builds a delta from entity references. All references must
// share one entity type and carry an id.
func NewRelationDelta(adds, removes []value.Identifiable) (RelationDelta, error) {
	targetType := ""

	ids := func(refs []value.Identifiable) ([]string, error) {
		out := make([]string, 0, len(refs))
		for _, ref := range refs {
			if ref.EntityID() == "" {
				return nil, newError(KindRelationDelta, ErrValidation, "cannot add an unsaved %s to a relation", ref.EntityType())
			}

			if targetType == "" {
				targetType = ref.EntityType()
			} else if ref.EntityType() != targetType {
				return nil, newError(KindRelationDelta, ErrRelationClassMismatch,
					"tried to create a relation with two different types: %s and %s", targetType, ref.EntityType())
			}

			out = appendUniqueID(out, ref.EntityID())
		}

		return out, nil
	}

	addIDs, err := ids(adds)
	if err != nil {
		return RelationDelta{}, err
	}

	removeIDs, err := ids(removes)
	if err != nil {
		return RelationDelta{}, err
	}

	return RelationDelta{targetType: targetType, adds: addIDs, removes: removeIDs}, nil
}

func (RelationDelta) Kind() Kind { return KindRelationDelta }
func (RelationDelta) sealed()    {}

// TargetType returns the entity type the relation points at.
func (o RelationDelta) TargetType() string { return o.targetType }

// Adds returns a copy of the ids to add.
func (o RelationDelta) Adds() []string { return append([]string(nil), o.adds...) }

// Removes returns a copy of the ids to remove.
func (o RelationDelta) Removes() []string { return append([]string(nil), o.removes...) }

// IsEmpty reports whether the delta neither adds nor removes anything.
func (o RelationDelta) IsEmpty() bool { return len(o.adds) == 0 && len(o.removes) == 0 }

func cloneList(values []any) []any {
	out := make([]any, len(values))
	copy(out, values)

	return out
}

func appendUniqueID(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}

	return append(ids, id)
}

func withoutIDs(ids []string, drop []string) []string {
	out := make([]string, 0, len(ids))

outer:
	for _, id := range ids {
		for _, d := range drop {
			if d == id {
				continue outer
			}
		}

		out = append(out, id)
	}

	return out
}

func unknownOperation(o Operation) error {
	return fmt.Errorf("unknown operation %T", o)
}
