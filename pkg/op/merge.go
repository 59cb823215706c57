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
	"github.com/united-manufacturing-hub/entitystate/pkg/value"
)

// Merge combines an earlier, still queued operation with a later one on the
// same attribute into a single operation with the combined effect. A nil
// earlier yields later. Incompatible pairs fail with ErrMergeConflict rather
// than dropping the earlier effect.
func Merge(later, earlier Operation) (Operation, error) {
	if earlier == nil {
		return later, nil
	}

	if later == nil {
		return earlier, nil
	}

	switch o := later.(type) {
	case Set, Unset:
		return o, nil
	case Increment:
		return o.mergeWith(earlier)
	case Append:
		return o.mergeWith(earlier)
	case UniqueAppend:
		return o.mergeWith(earlier)
	case Remove:
		return o.mergeWith(earlier)
	case RelationDelta:
		return o.mergeWith(earlier)
	default:
		return nil, unknownOperation(o)
	}
}

func (o Increment) mergeWith(earlier Operation) (Operation, error) {
	switch e := earlier.(type) {
	case Set:
		v, err := o.apply(e.value)
		if err != nil {
			return nil, conflictCause(o, e, err)
		}

		return NewSet(v), nil
	case Unset:
		return NewSet(o.amount), nil
	case Increment:
		return NewIncrement(e.amount + o.amount), nil
	default:
		return nil, conflict(o, earlier)
	}
}

func (o Append) mergeWith(earlier Operation) (Operation, error) {
	switch e := earlier.(type) {
	case Set:
		v, err := o.apply(e.value)
		if err != nil {
			return nil, conflictCause(o, e, err)
		}

		return NewSet(v), nil
	case Unset:
		return NewSet(cloneList(o.values)), nil
	case Append:
		return Append{values: append(cloneList(e.values), o.values...)}, nil
	default:
		return nil, conflict(o, earlier)
	}
}

func (o UniqueAppend) mergeWith(earlier Operation) (Operation, error) {
	switch e := earlier.(type) {
	case Set:
		v, err := o.apply(e.value)
		if err != nil {
			return nil, conflictCause(o, e, err)
		}

		return NewSet(v), nil
	case Unset:
		return NewSet(cloneList(o.values)), nil
	case UniqueAppend:
		v, err := o.apply(e.values)
		if err != nil {
			return nil, conflictCause(o, e, err)
		}

		list, _ := v.([]any)

		return UniqueAppend{values: list}, nil
	default:
		return nil, conflict(o, earlier)
	}
}

func (o Remove) mergeWith(earlier Operation) (Operation, error) {
	switch e := earlier.(type) {
	case Set:
		v, err := o.apply(e.value)
		if err != nil {
			return nil, conflictCause(o, e, err)
		}

		return NewSet(v), nil
	case Unset:
		return e, nil
	case Remove:
		union := cloneList(e.values)
		for _, v := range o.values {
			if !value.Contains(union, v) {
				union = append(union, v)
			}
		}

		return Remove{values: union}, nil
	default:
		return nil, conflict(o, earlier)
	}
}

func (o RelationDelta) mergeWith(earlier Operation) (Operation, error) {
	switch e := earlier.(type) {
	case Unset:
		return nil, newError(KindRelationDelta, ErrMergeConflict, "cannot modify a relation after deleting it")
	case Set:
		switch e.value.(type) {
		case value.Relation, *value.Relation:
			return o, nil
		}

		return nil, conflict(o, earlier)
	case RelationDelta:
		if e.targetType != "" && o.targetType != "" && e.targetType != o.targetType {
			return nil, newError(KindRelationDelta, ErrRelationClassMismatch,
				"related entity must be a %s, but a %s was passed in", e.targetType, o.targetType)
		}

		targetType := o.targetType
		if targetType == "" {
			targetType = e.targetType
		}

		adds := withoutIDs(e.adds, o.removes)
		for _, id := range o.adds {
			adds = appendUniqueID(adds, id)
		}

		removes := withoutIDs(e.removes, o.adds)
		for _, id := range o.removes {
			removes = appendUniqueID(removes, id)
		}

		return RelationDelta{targetType: targetType, adds: adds, removes: removes}, nil
	default:
		return nil, conflict(o, earlier)
	}
}
