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
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/entitystate/pkg/op"
	"github.com/united-manufacturing-hub/entitystate/pkg/value"
)

var _ = Describe("Estimate", func() {
	owner := &value.Pointer{Type: "Post", ID: "p1"}

	It("should fold increments across frames", func() {
		data := Attributes{}
		stack := Stack{Frame{}}

		SetPendingOp(&stack, "counter", op.NewIncrement(1))
		Expect(Estimate(data, stack, owner, "counter")).To(Equal(1.0))

		PushFrame(&stack)
		SetPendingOp(&stack, "counter", op.NewIncrement(10))
		Expect(Estimate(data, stack, owner, "counter")).To(Equal(11.0))
	})

	It("should add increments in later frames to the confirmed value", func() {
		stack := Stack{Frame{"n": op.NewIncrement(2)}, Frame{"n": op.NewIncrement(3)}}
		Expect(Estimate(Attributes{"n": 5}, stack, owner, "n")).To(Equal(10.0))
	})

	It("should report absent attributes as undefined", func() {
		Expect(Estimate(Attributes{}, Stack{Frame{}}, owner, "missing")).To(Equal(value.Undefined))

		stack := Stack{Frame{"gone": op.NewUnset()}}
		Expect(Estimate(Attributes{"gone": 1}, stack, owner, "gone")).To(Equal(value.Undefined))
	})

	It("should return an empty fold unchanged", func() {
		data := Attributes{"a": 1, "b": []any{"x"}}
		Expect(EstimateAll(data, Stack{Frame{}}, owner)).To(Equal(data))
	})

	It("should not modify the confirmed data", func() {
		data := Attributes{
			"tags":    []any{"a"},
			"profile": map[string]any{"name": "x"},
		}
		stack := Stack{Frame{
			"tags":         op.NewAppend("b"),
			"profile.name": op.NewSet("y"),
			"extra":        op.NewSet(true),
		}}

		estimated, err := EstimateAll(data, stack, owner)
		Expect(err).NotTo(HaveOccurred())
		Expect(estimated).To(Equal(Attributes{
			"tags":    []any{"a", "b"},
			"profile": map[string]any{"name": "y"},
			"extra":   true,
		}))
		Expect(data).To(Equal(Attributes{
			"tags":    []any{"a"},
			"profile": map[string]any{"name": "x"},
		}))
	})

	It("should compose dotted paths", func() {
		stack := Stack{
			Frame{"stats.views": op.NewIncrement(1)},
			Frame{"stats.views": op.NewIncrement(1), "stats.likes": op.NewSet(4), "list.1": op.NewSet("b")},
		}

		estimated, err := EstimateAll(Attributes{"stats": map[string]any{"views": 10}}, stack, owner)
		Expect(err).NotTo(HaveOccurred())
		Expect(estimated).To(Equal(Attributes{
			"stats": map[string]any{"views": 12.0, "likes": 4},
			"list":  []any{nil, "b"},
		}))

		Expect(Estimate(Attributes{"stats": map[string]any{"views": 10}}, stack, owner, "stats.views")).To(Equal(12.0))
		Expect(Estimate(Attributes{"stats": map[string]any{"views": 10}}, stack, owner, "stats")).
			To(Equal(map[string]any{"views": 12.0, "likes": 4}))
	})

	It("should delete nested keys on unset", func() {
		stack := Stack{Frame{"stats.views": op.NewUnset()}}
		estimated, err := EstimateAll(Attributes{"stats": map[string]any{"views": 10, "likes": 1}}, stack, owner)
		Expect(err).NotTo(HaveOccurred())
		Expect(estimated).To(Equal(Attributes{"stats": map[string]any{"likes": 1}}))
	})

	Describe("relations", func() {
		var delta op.RelationDelta

		BeforeEach(func() {
			var err error
			delta, err = op.NewRelationDelta([]value.Identifiable{value.Pointer{Type: "Tag", ID: "t1"}}, nil)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should materialize a relation for a saved owner", func() {
			stack := Stack{Frame{"tags": delta}}
			Expect(Estimate(Attributes{}, stack, owner, "tags")).
				To(Equal(value.Relation{Parent: *owner, Key: "tags", TargetType: "Tag"}))
		})

		It("should skip relation deltas for an unsaved owner", func() {
			stack := Stack{Frame{"tags": delta}}
			Expect(Estimate(Attributes{}, stack, &value.Pointer{Type: "Post"}, "tags")).To(Equal(value.Undefined))
			Expect(Estimate(Attributes{}, stack, nil, "tags")).To(Equal(value.Undefined))
		})
	})

	It("should surface validation errors", func() {
		stack := Stack{Frame{"name": op.NewIncrement(1)}}
		_, err := Estimate(Attributes{"name": "text"}, stack, owner, "name")
		Expect(errors.Is(err, op.ErrValidation)).To(BeTrue())
	})

	It("should ignore failing ops on unrelated attributes", func() {
		stack := Stack{Frame{"name": op.NewIncrement(1), "count": op.NewIncrement(1)}}
		Expect(Estimate(Attributes{"name": "text"}, stack, owner, "count")).To(Equal(1.0))
	})
})

var _ = Describe("Frame codec", func() {
	It("should round trip a frame", func() {
		delta, err := op.NewRelationDelta(nil, []value.Identifiable{value.Pointer{Type: "Tag", ID: "t1"}})
		Expect(err).NotTo(HaveOccurred())

		frame := Frame{
			"title":   op.NewSet("hello"),
			"owner":   op.NewSet(value.Pointer{Type: "User", ID: "u1"}),
			"counter": op.NewIncrement(2),
			"gone":    op.NewUnset(),
			"tags":    delta,
			"list":    op.NewUniqueAppend("a"),
		}

		body, err := EncodeFrame(frame)
		Expect(err).NotTo(HaveOccurred())
		Expect(body["gone"]).To(Equal(map[string]any{"kind": "Delete"}))

		Expect(DecodeFrame(body)).To(Equal(frame))
	})
})

var _ = Describe("EntityState", func() {
	It("should start with one open frame and an idle queue", func() {
		s := NewEntityState("Post:p1", nil)
		Expect(s.PendingOps).To(HaveLen(1))
		Expect(s.Tasks).NotTo(BeNil())
		Expect(s.Tasks.Name()).To(Equal("Post:p1"))
	})

	It("should clone without sharing mutable data", func() {
		s := NewEntityState("Post:p1", nil)
		s.ServerData["profile"] = map[string]any{"name": "x"}
		s.ObjectCache["profile"] = `{"name":"x"}`
		s.Existed = true
		SetPendingOp(&s.PendingOps, "n", op.NewIncrement(1))

		clone, err := s.Clone()
		Expect(err).NotTo(HaveOccurred())
		Expect(clone.ServerData).To(Equal(s.ServerData))
		Expect(clone.PendingOps).To(Equal(s.PendingOps))
		Expect(clone.ObjectCache).To(Equal(s.ObjectCache))
		Expect(clone.Existed).To(BeTrue())
		Expect(clone.Tasks).NotTo(BeIdenticalTo(s.Tasks))

		clone.ServerData["profile"].(map[string]any)["name"] = "y"
		SetPendingOp(&clone.PendingOps, "n", nil)
		clone.ObjectCache["other"] = "1"

		Expect(s.ServerData["profile"]).To(Equal(map[string]any{"name": "x"}))
		Expect(s.PendingOps[0]).To(HaveKey("n"))
		Expect(s.ObjectCache).NotTo(HaveKey("other"))
	})
})
