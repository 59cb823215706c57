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
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/entitystate/pkg/value"
)

var _ = Describe("Codec", func() {
	Describe("Encode", func() {
		It("should encode every kind in wire form", func() {
			Expect(Encode(NewUnset())).To(Equal(map[string]any{"kind": "Delete"}))
			Expect(Encode(NewIncrement(2))).To(Equal(map[string]any{"kind": "Increment", "amount": 2.0}))
			Expect(Encode(NewAppend("a"))).To(Equal(map[string]any{"kind": "Add", "values": []any{"a"}}))
			Expect(Encode(NewUniqueAppend("a"))).To(Equal(map[string]any{"kind": "AddUnique", "values": []any{"a"}}))
			Expect(Encode(NewRemove("a"))).To(Equal(map[string]any{"kind": "Remove", "values": []any{"a"}}))
		})

		It("should encode a Set as its raw value", func() {
			Expect(Encode(NewSet(value.Pointer{Type: "User", ID: "u1"}))).
				To(Equal(map[string]any{"type": "Pointer", "entityType": "User", "id": "u1"}))
		})

		It("should encode relation deltas by shape", func() {
			adds := mustDelta([]value.Identifiable{item("1")}, nil)
			Expect(Encode(adds)).To(Equal(map[string]any{
				"kind":    "AddRelation",
				"objects": []any{value.EncodePointer("Item", "1")},
			}))

			both := mustDelta([]value.Identifiable{item("1")}, []value.Identifiable{item("2")})
			Expect(Encode(both)).To(Equal(map[string]any{
				"kind": "Batch",
				"ops": []any{
					map[string]any{"kind": "AddRelation", "objects": []any{value.EncodePointer("Item", "1")}},
					map[string]any{"kind": "RemoveRelation", "objects": []any{value.EncodePointer("Item", "2")}},
				},
			}))

			Expect(Encode(mustDelta(nil, nil))).To(Equal(map[string]any{}))
		})
	})

	Describe("Decode", func() {
		It("should return nothing for unknown kinds and plain values", func() {
			Expect(Decode(map[string]any{"kind": "Mystery"})).To(BeNil())
			Expect(Decode("plain")).To(BeNil())
		})

		It("should reject a non-numeric increment amount", func() {
			_, err := Decode(map[string]any{"kind": "Increment", "amount": "x"})
			Expect(err).To(HaveOccurred())
		})

		It("should reject a batch mixing entity types", func() {
			o, err := Decode(map[string]any{
				"kind": "Batch",
				"ops": []any{
					map[string]any{"kind": "AddRelation", "objects": []any{value.EncodePointer("Item", "1")}},
					map[string]any{"kind": "RemoveRelation", "objects": []any{value.EncodePointer("Other", "2")}},
				},
			})
			Expect(err).To(HaveOccurred())
			Expect(o).To(BeNil())
		})
	})

	Describe("round trip", func() {
		ops := []Operation{
			NewUnset(),
			NewIncrement(-4.5),
			NewAppend("a", 1.0, map[string]any{"nested": true}),
			NewUniqueAppend("a", "b"),
			NewRemove(value.Pointer{Type: "Item", ID: "9"}),
			newDelta([]value.Identifiable{item("1")}, []value.Identifiable{item("2"), item("3")}),
			newDelta(nil, []value.Identifiable{item("2")}),
		}

		It("should survive JSON marshalling", func() {
			for _, o := range ops {
				data, err := Marshal(o)
				Expect(err).NotTo(HaveOccurred())

				decoded, err := Unmarshal(data)
				Expect(err).NotTo(HaveOccurred())
				Expect(decoded).To(Equal(o))
			}
		})

		It("should restore Set through DecodePending", func() {
			set := NewSet(map[string]any{"owner": value.Pointer{Type: "User", ID: "u1"}, "n": 2.0})

			wire, err := Encode(set)
			Expect(err).NotTo(HaveOccurred())
			Expect(DecodePending(wire)).To(Equal(set))
		})

		It("should fail DecodePending on an unknown kind", func() {
			_, err := DecodePending(map[string]any{"kind": "Mystery"})
			Expect(err).To(HaveOccurred())
		})
	})
})

func newDelta(adds, removes []value.Identifiable) RelationDelta {
	delta, err := NewRelationDelta(adds, removes)
	if err != nil {
		panic(err)
	}

	return delta
}
