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

// Apply returns the value that results from applying o to prev. prev is
// value.Undefined when the attribute has no value; a returned value.Undefined
// means the attribute is deleted. Apply never mutates prev.
func Apply(o Operation, prev any, target Target) (any, error) {
	switch o := o.(type) {
	case Set:
		return o.value, nil
	case Unset:
		return value.Undefined, nil
	case Increment:
		return o.apply(prev)
	case Append:
		return o.apply(prev)
	case UniqueAppend:
		return o.apply(prev)
	case Remove:
		return o.apply(prev)
	case RelationDelta:
		return o.apply(prev, target)
	default:
		return nil, unknownOperation(o)
	}
}

func (o Increment) apply(prev any) (any, error) {
	if value.IsUndefined(prev) {
		return o.amount, nil
	}

	n, ok := value.ToFloat(prev)
	if !ok {
		return nil, newError(KindIncrement, ErrValidation, "cannot increment a non-numeric value %T", prev)
	}

	return n + o.amount, nil
}

func (o Append) apply(prev any) (any, error) {
	if value.IsNullish(prev) {
		return cloneList(o.values), nil
	}

	list, ok := value.ToSlice(prev)
	if !ok {
		return nil, newError(KindAppend, ErrValidation, "cannot append to a non-array value %T", prev)
	}

	out := make([]any, 0, len(list)+len(o.values))
	out = append(out, list...)

	return append(out, o.values...), nil
}

func (o UniqueAppend) apply(prev any) (any, error) {
	if value.IsNullish(prev) {
		return cloneList(o.values), nil
	}

	list, ok := value.ToSlice(prev)
	if !ok {
		return nil, newError(KindUniqueAppend, ErrValidation, "cannot add elements to a non-array value %T", prev)
	}

	out := cloneList(list)
	for _, v := range o.values {
		if !value.Contains(out, v) {
			out = append(out, v)
		}
	}

	return out, nil
}

func (o Remove) apply(prev any) (any, error) {
	if value.IsNullish(prev) {
		return []any{}, nil
	}

	list, ok := value.ToSlice(prev)
	if !ok {
		return nil, newError(KindRemove, ErrValidation, "cannot remove elements from a non-array value %T", prev)
	}

	out := make([]any, 0, len(list))
	for _, item := range list {
		if !value.Contains(o.values, item) {
			out = append(out, item)
		}
	}

	return out, nil
}

func (o RelationDelta) apply(prev any, target Target) (any, error) {
	if !value.Truthy(prev) {
		if target.Owner == nil || target.Attr == "" {
			return nil, newError(KindRelationDelta, ErrValidation,
				"cannot apply a relation delta without either a previous value or an owner and attribute")
		}

		return value.Relation{Parent: *target.Owner, Key: target.Attr, TargetType: o.targetType}, nil
	}

	var rel value.Relation

	switch r := prev.(type) {
	case value.Relation:
		rel = r
	case *value.Relation:
		rel = *r
	default:
		return nil, newError(KindRelationDelta, ErrValidation, "relation delta cannot be applied to a non-relation value %T", prev)
	}

	if o.targetType != "" {
		if rel.TargetType != "" && rel.TargetType != o.targetType {
			return nil, newError(KindRelationDelta, ErrRelationClassMismatch,
				"related entity must be a %s, but a %s was passed in", rel.TargetType, o.targetType)
		}

		rel.TargetType = o.targetType
	}

	if _, ok := prev.(*value.Relation); ok {
		return &rel, nil
	}

	return rel, nil
}
