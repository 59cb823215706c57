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

package controller

import (
	"context"
	"runtime"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/entitystate/pkg/op"
	"github.com/united-manufacturing-hub/entitystate/pkg/state"
	"github.com/united-manufacturing-hub/entitystate/pkg/value"
)

type document struct {
	id    string
	title string
}

func (d *document) EntityType() string { return "Document" }
func (d *document) EntityID() string   { return d.id }

var _ Controller[*document] = (*Handles[document])(nil)

var _ = Describe("Handles", func() {
	var h *Handles[document]

	BeforeEach(func() {
		h = NewHandles[document]()
	})

	It("should isolate handles with the same identity", func() {
		a := &document{id: "d1"}
		b := &document{id: "d1"}

		h.SetPendingOp(a, "title", op.NewSet("a"))
		h.SetPendingOp(b, "title", op.NewSet("b"))

		Expect(h.EstimateAttribute(a, "title")).To(Equal("a"))
		Expect(h.EstimateAttribute(b, "title")).To(Equal("b"))
		Expect(h.Len()).To(Equal(2))
	})

	It("should use the handle identity for relations", func() {
		delta, err := op.NewRelationDelta([]value.Identifiable{value.Pointer{Type: "Tag", ID: "t1"}}, nil)
		Expect(err).NotTo(HaveOccurred())

		saved := &document{id: "d1"}
		h.SetPendingOp(saved, "tags", delta)
		Expect(h.EstimateAttribute(saved, "tags")).
			To(Equal(value.Relation{Parent: value.Pointer{Type: "Document", ID: "d1"}, Key: "tags", TargetType: "Tag"}))

		unsaved := &document{}
		h.SetPendingOp(unsaved, "tags", delta)
		Expect(h.EstimateAttribute(unsaved, "tags")).To(Equal(value.Undefined))
	})

	It("should duplicate state by value", func() {
		src := &document{id: "d1"}
		dst := &document{}

		h.SetServerData(src, state.Attributes{"title": "hello", "meta": map[string]any{"v": 1}})
		h.SetPendingOp(src, "views", op.NewIncrement(1))

		Expect(h.DuplicateState(src, dst)).To(Succeed())
		Expect(h.EstimateAttributes(dst)).To(Equal(state.Attributes{
			"title": "hello",
			"meta":  map[string]any{"v": 1},
			"views": 1.0,
		}))

		h.SetPendingOp(dst, "views", op.NewIncrement(5))
		Expect(h.EstimateAttribute(src, "views")).To(Equal(1.0))
	})

	It("should remove and clear state", func() {
		a := &document{id: "a"}
		b := &document{id: "b"}
		h.InitializeState(a, nil)
		h.InitializeState(b, nil)

		_, ok := h.RemoveState(a)
		Expect(ok).To(BeTrue())
		Expect(h.Len()).To(Equal(1))

		h.ClearAllState()
		Expect(h.Len()).To(BeZero())
		runtime.KeepAlive(a)
		runtime.KeepAlive(b)
	})

	It("should drop state once the handle is collected", func() {
		func() {
			d := &document{id: "gone", title: "x"}
			h.SetPendingOp(d, "title", op.NewSet("y"))
		}()

		Eventually(func() int {
			runtime.GC()
			return h.Len()
		}, 2*time.Second, 10*time.Millisecond).Should(BeZero())
	})

	It("should keep state while the handle is reachable", func() {
		d := &document{id: "kept"}
		h.InitializeState(d, nil)

		runtime.GC()
		runtime.GC()

		_, ok := h.GetState(d)
		Expect(ok).To(BeTrue())
		runtime.KeepAlive(d)
	})

	It("should run tasks per handle", func() {
		d := &document{id: "d1"}
		f := h.EnqueueTask(context.Background(), d, func(context.Context) (any, error) { return "ok", nil })
		Expect(f.Wait(context.Background())).To(Equal("ok"))
	})
})
