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

package value

const (
	wireTypePointer  = "Pointer"
	wireTypeRelation = "Relation"
	wireTypeFile     = "File"
)

// EncodePointer returns the wire reference of an entity.
func EncodePointer(entityType, id string) map[string]any {
	return map[string]any{
		"type":       wireTypePointer,
		"entityType": entityType,
		"id":         id,
	}
}

// Encode converts v into its JSON-ready wire form. Handles become typed
// objects; maps and []any are converted recursively.
func Encode(v any) any {
	switch t := v.(type) {
	case Identifiable:
		return EncodePointer(t.EntityType(), t.EntityID())
	case Relation:
		return map[string]any{"type": wireTypeRelation, "entityType": t.TargetType}
	case *Relation:
		return Encode(*t)
	case File:
		return map[string]any{"type": wireTypeFile, "name": t.Name, "url": t.URL}
	case *File:
		return Encode(*t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = Encode(item)
		}

		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Encode(item)
		}

		return out
	}

	return v
}

// Decode reverses Encode. Relation handles decode without a parent.
func Decode(v any) any {
	switch t := v.(type) {
	case map[string]any:
		typ, _ := t["type"].(string)
		switch typ {
		case wireTypePointer:
			entityType, _ := t["entityType"].(string)
			id, _ := t["id"].(string)

			return Pointer{Type: entityType, ID: id}
		case wireTypeRelation:
			entityType, _ := t["entityType"].(string)

			return Relation{TargetType: entityType}
		case wireTypeFile:
			name, _ := t["name"].(string)
			url, _ := t["url"].(string)

			return File{Name: name, URL: url}
		}

		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = Decode(item)
		}

		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Decode(item)
		}

		return out
	}

	return v
}
