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

package state

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/united-manufacturing-hub/entitystate/pkg/op"
	"github.com/united-manufacturing-hub/entitystate/pkg/safejson"
	"github.com/united-manufacturing-hub/entitystate/pkg/value"
)

// Estimate folds the confirmed value of attr through every frame, oldest
// first. Ops queued on nested paths below attr are included. It returns
// value.Undefined when the attribute has no value.
func Estimate(data Attributes, stack Stack, owner *value.Pointer, attr string) (any, error) {
	related := func(key string) bool {
		return key == attr || strings.HasPrefix(key, attr+".") || strings.HasPrefix(attr, key+".")
	}

	estimated, err := fold(data, stack, owner, related)
	if err != nil {
		return nil, err
	}

	return readPath(estimated, attr), nil
}

// EstimateAll folds data through every frame, oldest first. Within a frame,
// attributes are applied in name order so a parent is written before its
// dotted children. data itself is never modified.
func EstimateAll(data Attributes, stack Stack, owner *value.Pointer) (Attributes, error) {
	return fold(data, stack, owner, func(string) bool { return true })
}

func fold(data Attributes, stack Stack, owner *value.Pointer, include func(string) bool) (Attributes, error) {
	out := make(Attributes, len(data))
	maps.Copy(out, data)

	for _, frame := range stack {
		for _, attr := range slices.Sorted(maps.Keys(frame)) {
			o := frame[attr]
			if !include(attr) {
				continue
			}

			path := splitPath(attr)

			if _, ok := o.(op.RelationDelta); ok {
				if owner == nil || owner.ID == "" {
					continue
				}

				path = []string{attr}
			}

			prev, ok := out[path[0]]
			if !ok {
				prev = value.Undefined
			}

			next, err := descend(prev, path, func(prev any) (any, error) {
				return op.Apply(o, prev, op.Target{Owner: owner, Attr: attr})
			}, true)
			if err != nil {
				return nil, fmt.Errorf("failed to estimate %s: %w", attr, err)
			}

			if value.IsUndefined(next) {
				delete(out, path[0])
			} else {
				out[path[0]] = next
			}
		}
	}

	return out, nil
}

// Snapshot returns the canonical JSON form of v used in the object cache.
func Snapshot(v any) (string, error) {
	snapshot, err := safejson.MarshalString(value.Encode(v))
	if err != nil {
		return "", fmt.Errorf("failed to snapshot value: %w", err)
	}

	return snapshot, nil
}

func splitPath(attr string) []string {
	return strings.Split(attr, ".")
}

func isIndex(field string) bool {
	n, err := strconv.Atoi(field)

	return err == nil && n >= 0
}

// writePath replaces the value at fields below container with fn(previous)
// and returns the container to store in the parent. Missing or scalar
// intermediates become a map, or a slice when the next field is an index.
// With cow set, every container on the path is copied before it is written.
func writePath(container any, fields []string, fn func(any) (any, error), cow bool) (any, error) {
	field := fields[0]

	switch c := container.(type) {
	case map[string]any:
		m := c
		if cow {
			m = make(map[string]any, len(c)+1)
			for k, v := range c {
				m[k] = v
			}
		}

		prev, ok := m[field]
		if !ok {
			prev = value.Undefined
		}

		next, err := descend(prev, fields, fn, cow)
		if err != nil {
			return nil, err
		}

		if value.IsUndefined(next) {
			delete(m, field)
		} else {
			m[field] = next
		}

		return m, nil
	case Attributes:
		return writePath(map[string]any(c), fields, fn, cow)
	case []any:
		if !isIndex(field) {
			return writePath(map[string]any{}, fields, fn, cow)
		}

		idx, _ := strconv.Atoi(field)

		s := c
		if cow || idx >= len(c) {
			s = make([]any, max(len(c), idx+1))
			copy(s, c)
		}

		prev := s[idx]
		if idx >= len(c) {
			prev = value.Undefined
		}

		next, err := descend(prev, fields, fn, cow)
		if err != nil {
			return nil, err
		}

		if value.IsUndefined(next) {
			next = nil
		}

		s[idx] = next

		return s, nil
	default:
		if isIndex(field) {
			return writePath([]any{}, fields, fn, cow)
		}

		return writePath(map[string]any{}, fields, fn, cow)
	}
}

func descend(prev any, fields []string, fn func(any) (any, error), cow bool) (any, error) {
	if len(fields) == 1 {
		return fn(prev)
	}

	return writePath(prev, fields[1:], fn, cow)
}

func readPath(data Attributes, attr string) any {
	if v, ok := data[attr]; ok {
		return v
	}

	var current any = map[string]any(data)

	for _, field := range splitPath(attr) {
		switch c := current.(type) {
		case map[string]any:
			v, ok := c[field]
			if !ok {
				return value.Undefined
			}

			current = v
		case Attributes:
			v, ok := c[field]
			if !ok {
				return value.Undefined
			}

			current = v
		case []any:
			idx, err := strconv.Atoi(field)
			if err != nil || idx < 0 || idx >= len(c) {
				return value.Undefined
			}

			current = c[idx]
		default:
			return value.Undefined
		}
	}

	return current
}
