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

package metrics

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(name string) *dto.MetricFamily {
	families, err := prometheus.DefaultGatherer.Gather()
	Expect(err).NotTo(HaveOccurred())

	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}

	return nil
}

func labelled(family *dto.MetricFamily, label, value string) *dto.Metric {
	if family == nil {
		return nil
	}

	for _, m := range family.GetMetric() {
		for _, pair := range m.GetLabel() {
			if pair.GetName() == label && pair.GetValue() == value {
				return m
			}
		}
	}

	return nil
}

var _ = Describe("Metrics", func() {
	It("should count enqueued tasks", func() {
		before := gather("entitystate_taskqueue_tasks_enqueued_total")
		var start float64
		if before != nil {
			start = before.GetMetric()[0].GetCounter().GetValue()
		}

		RecordTaskEnqueued()
		RecordTaskEnqueued()

		after := gather("entitystate_taskqueue_tasks_enqueued_total")
		Expect(after).NotTo(BeNil())
		Expect(after.GetMetric()[0].GetCounter().GetValue()).To(Equal(start + 2))
	})

	It("should split settled tasks by outcome", func() {
		RecordTaskSettled(nil, 0)
		RecordTaskSettled(errors.New("rejected"), 0)

		family := gather("entitystate_taskqueue_tasks_settled_total")
		Expect(labelled(family, "outcome", OutcomeSuccess)).NotTo(BeNil())
		Expect(labelled(family, "outcome", OutcomeFailure)).NotTo(BeNil())
	})

	It("should label frame merges by result", func() {
		RecordFrameMerge(errors.New("conflict"))

		m := labelled(gather("entitystate_state_frame_merges_total"), "result", MergeConflict)
		Expect(m).NotTo(BeNil())
		Expect(m.GetCounter().GetValue()).To(BeNumerically(">=", 1))
	})

	It("should publish controller table sizes", func() {
		SetEntityStates(ControllerHandles, 4)

		m := labelled(gather("entitystate_state_entity_states"), "controller", ControllerHandles)
		Expect(m).NotTo(BeNil())
		Expect(m.GetGauge().GetValue()).To(Equal(4.0))
	})
})
