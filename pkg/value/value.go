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

// Package value models attribute values held by entity state: plain JSON-like
// data, the Undefined sentinel and the opaque handles (pointers, relations and
// files) that are compared by identity rather than by content.
package value

import (
	"math"
	"reflect"

	"github.com/google/go-cmp/cmp"
)

type undefined struct{}

func (undefined) String() string { return "undefined" }

// Undefined marks the absence of a value. It is distinct from nil, which is an
// explicit null. Undefined is never stored in an attribute map.
var Undefined any = undefined{}

// IsUndefined reports whether v is the Undefined sentinel.
func IsUndefined(v any) bool {
	_, ok := v.(undefined)

	return ok
}

// IsNullish reports whether v is Undefined or nil.
func IsNullish(v any) bool {
	return v == nil || IsUndefined(v)
}

// Identifiable is implemented by entity-like values. Two Identifiable values
// are equal when their type and id match, regardless of other content.
type Identifiable interface {
	EntityType() string
	EntityID() string
}

// Pointer references a remote entity by type and id.
type Pointer struct {
	Type string
	ID   string
}

func (p Pointer) EntityType() string { return p.Type }
func (p Pointer) EntityID() string   { return p.ID }

// Relation is the handle of a to-many reference from Parent's Key attribute to
// entities of TargetType. Its members are resolved by a remote query.
type Relation struct {
	Parent     Pointer
	Key        string
	TargetType string
}

// File is the handle of a remote file.
type File struct {
	Name string
	URL  string
}

// IsOpaque reports whether v is an entity, relation or file handle. Opaque
// values are never snapshotted into the object cache.
func IsOpaque(v any) bool {
	switch v.(type) {
	case Identifiable, Relation, *Relation, File, *File:
		return true
	}

	return false
}

// IsStructural reports whether v is a plain container (map or slice) whose
// contents can be mutated in place by callers.
func IsStructural(v any) bool {
	if v == nil || IsOpaque(v) {
		return false
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return true
	}

	return false
}

// Truthy follows the loose truthiness used when deciding whether a relation
// attribute already holds a handle.
func Truthy(v any) bool {
	if IsNullish(v) {
		return false
	}

	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	}

	if f, ok := ToFloat(v); ok {
		return f != 0 && !math.IsNaN(f)
	}

	return true
}

// ToFloat converts any Go numeric kind to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}

	return 0, false
}

// ToSlice returns v as []any when it is any slice or array.
func ToSlice(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}

	if v == nil {
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}

	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}

	return out, true
}

var numbersAsFloat = cmp.FilterValues(func(x, y any) bool {
	_, okx := ToFloat(x)
	_, oky := ToFloat(y)

	return okx && oky
}, cmp.Comparer(func(x, y any) bool {
	fx, _ := ToFloat(x)
	fy, _ := ToFloat(y)

	return fx == fy
}))

// Equal compares two attribute values. Identifiable values compare by type
// and id, numbers compare numerically across Go kinds, and everything else
// compares structurally.
func Equal(a, b any) bool {
	if ia, ok := a.(Identifiable); ok {
		ib, ok := b.(Identifiable)

		return ok && ia.EntityType() == ib.EntityType() && ia.EntityID() == ib.EntityID()
	}

	if _, ok := b.(Identifiable); ok {
		return false
	}

	return cmp.Equal(a, b, numbersAsFloat, cmp.Comparer(func(x, y undefined) bool { return true }))
}

// IndexOf returns the index of the first element of list equal to v, or -1.
func IndexOf(list []any, v any) int {
	for i, item := range list {
		if Equal(item, v) {
			return i
		}
	}

	return -1
}

// Contains reports whether list holds an element equal to v.
func Contains(list []any, v any) bool {
	return IndexOf(list, v) >= 0
}

// Unique returns the values of list with later duplicates dropped.
func Unique(list []any) []any {
	out := make([]any, 0, len(list))
	for _, v := range list {
		if !Contains(out, v) {
			out = append(out, v)
		}
	}

	return out
}
