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

package env

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Env", func() {
	const key = "ENTITYSTATE_TEST_VALUE"

	BeforeEach(func() {
		GinkgoT().Setenv(key, "")
	})

	Describe("GetAsString", func() {
		It("should return the default when unset", func() {
			Expect(GetAsString(key, false, "fallback")).To(Equal("fallback"))
		})

		It("should fail when required and unset", func() {
			_, err := GetAsString(key, true, "")
			Expect(err).To(MatchError(ContainSubstring(key)))
		})

		It("should return the set value", func() {
			GinkgoT().Setenv(key, "value")
			Expect(GetAsString(key, true, "")).To(Equal("value"))
		})
	})

	Describe("GetAsBool", func() {
		It("should accept common spellings", func() {
			for _, v := range []string{"true", "1", "YES", "on"} {
				GinkgoT().Setenv(key, v)
				Expect(GetAsBool(key, false, false)).To(BeTrue())
			}

			GinkgoT().Setenv(key, "off")
			Expect(GetAsBool(key, false, true)).To(BeFalse())
		})

		It("should reject garbage only when required", func() {
			GinkgoT().Setenv(key, "maybe")
			Expect(GetAsBool(key, false, true)).To(BeTrue())

			_, err := GetAsBool(key, true, false)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("GetAsDuration", func() {
		It("should parse durations", func() {
			GinkgoT().Setenv(key, "90s")
			Expect(GetAsDuration(key, false, time.Second)).To(Equal(90 * time.Second))
		})

		It("should fall back on invalid values when optional", func() {
			GinkgoT().Setenv(key, "soon")
			Expect(GetAsDuration(key, false, time.Second)).To(Equal(time.Second))

			_, err := GetAsDuration(key, true, time.Second)
			Expect(err).To(HaveOccurred())
		})
	})
})
