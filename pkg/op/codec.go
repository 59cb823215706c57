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
	"fmt"

	"github.com/united-manufacturing-hub/entitystate/pkg/safejson"
	"github.com/united-manufacturing-hub/entitystate/pkg/value"
)

// Wire discriminants of the "kind" field.
const (
	WireIncrement      = "Increment"
	WireDelete         = "Delete"
	WireAdd            = "Add"
	WireAddUnique      = "AddUnique"
	WireRemove         = "Remove"
	WireAddRelation    = "AddRelation"
	WireRemoveRelation = "RemoveRelation"
	WireBatch          = "Batch"
)

// Encode returns the JSON-ready wire form of o. Set encodes as its value; the
// other variants encode as an object discriminated by "kind". A relation delta
// with both adds and removes becomes a Batch of one AddRelation and one
// RemoveRelation entry; an empty one becomes {}.
func Encode(o Operation) (any, error) {
	switch o := o.(type) {
	case Set:
		return value.Encode(o.value), nil
	case Unset:
		return map[string]any{"kind": WireDelete}, nil
	case Increment:
		return map[string]any{"kind": WireIncrement, "amount": o.amount}, nil
	case Append:
		return map[string]any{"kind": WireAdd, "values": value.Encode(cloneList(o.values))}, nil
	case UniqueAppend:
		return map[string]any{"kind": WireAddUnique, "values": value.Encode(cloneList(o.values))}, nil
	case Remove:
		return map[string]any{"kind": WireRemove, "values": value.Encode(cloneList(o.values))}, nil
	case RelationDelta:
		return o.encode(), nil
	default:
		return nil, unknownOperation(o)
	}
}

func (o RelationDelta) encode() map[string]any {
	pointers := func(ids []string) []any {
		out := make([]any, len(ids))
		for i, id := range ids {
			out[i] = value.EncodePointer(o.targetType, id)
		}

		return out
	}

	var adds, removes map[string]any

	if len(o.adds) > 0 {
		adds = map[string]any{"kind": WireAddRelation, "objects": pointers(o.adds)}
	}

	if len(o.removes) > 0 {
		removes = map[string]any{"kind": WireRemoveRelation, "objects": pointers(o.removes)}
	}

	switch {
	case adds != nil && removes != nil:
		return map[string]any{"kind": WireBatch, "ops": []any{adds, removes}}
	case adds != nil:
		return adds
	case removes != nil:
		return removes
	default:
		return map[string]any{}
	}
}

// Decode reconstructs an operation from its wire form. It returns a nil
// Operation and no error when raw carries no recognized "kind".
func Decode(raw any) (Operation, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, nil
	}

	kind, _ := m["kind"].(string)

	switch kind {
	case WireDelete:
		return NewUnset(), nil
	case WireIncrement:
		amount, ok := value.ToFloat(m["amount"])
		if !ok {
			return nil, newError(KindIncrement, ErrValidation, "increment amount must be numeric, got %T", m["amount"])
		}

		return NewIncrement(amount), nil
	case WireAdd:
		return NewAppend(decodeValues(m["values"])...), nil
	case WireAddUnique:
		return NewUniqueAppend(decodeValues(m["values"])...), nil
	case WireRemove:
		return NewRemove(decodeValues(m["values"])...), nil
	case WireAddRelation:
		return decodeRelation(decodeRefs(m["objects"]), nil)
	case WireRemoveRelation:
		return decodeRelation(nil, decodeRefs(m["objects"]))
	case WireBatch:
		var adds, removes []value.Identifiable

		list, _ := m["ops"].([]any)
		for _, item := range list {
			entry, _ := item.(map[string]any)

			switch entry["kind"] {
			case WireAddRelation:
				adds = append(adds, decodeRefs(entry["objects"])...)
			case WireRemoveRelation:
				removes = append(removes, decodeRefs(entry["objects"])...)
			}
		}

		return decodeRelation(adds, removes)
	default:
		return nil, nil
	}
}

// DecodePending restores an operation stored with Encode, including Set,
// which has no discriminant: any raw value without a "kind" becomes a Set of
// the decoded value.
func DecodePending(raw any) (Operation, error) {
	if m, ok := raw.(map[string]any); ok {
		if kind, ok := m["kind"].(string); ok {
			o, err := Decode(m)
			if err != nil {
				return nil, err
			}

			if o == nil {
				return nil, fmt.Errorf("unknown operation kind %q", kind)
			}

			return o, nil
		}
	}

	return NewSet(value.Decode(raw)), nil
}

// Marshal encodes o to JSON bytes.
func Marshal(o Operation) ([]byte, error) {
	wire, err := Encode(o)
	if err != nil {
		return nil, err
	}

	return safejson.Marshal(wire)
}

// Unmarshal decodes JSON bytes produced by Marshal for a non-Set operation.
func Unmarshal(data []byte) (Operation, error) {
	var raw any
	if err := safejson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode operation: %w", err)
	}

	return Decode(raw)
}

func decodeRelation(adds, removes []value.Identifiable) (Operation, error) {
	delta, err := NewRelationDelta(adds, removes)
	if err != nil {
		return nil, err
	}

	return delta, nil
}

func decodeValues(raw any) []any {
	if raw == nil {
		return nil
	}

	decoded := value.Decode(raw)
	if list, ok := decoded.([]any); ok {
		return list
	}

	return []any{decoded}
}

func decodeRefs(raw any) []value.Identifiable {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}

	out := make([]value.Identifiable, 0, len(list))
	for _, item := range list {
		if ref, ok := value.Decode(item).(value.Identifiable); ok {
			out = append(out, ref)
		}
	}

	return out
}
