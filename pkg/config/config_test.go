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

package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/entitystate/pkg/config"
)

var _ = Describe("Config", func() {
	BeforeEach(func() {
		for _, key := range []string{"LOGGING_LEVEL", "LOGGING_FORMAT", "CONTROLLER_MODE", "ALIAS_TTL", "METRICS_ENABLED", "SENTRY_DSN"} {
			GinkgoT().Setenv(key, "")
		}
	})

	Describe("Parse", func() {
		It("should overlay the file on the defaults", func() {
			cfg, err := config.Parse([]byte(`
controller:
  mode: handles
  aliasTTL: 30s
metrics:
  enabled: true
`))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Controller.Mode).To(Equal(config.ModeHandles))
			Expect(cfg.Controller.AliasTTL).To(Equal(30 * time.Second))
			Expect(cfg.Controller.AliasCullInterval).To(Equal(config.DefaultAliasCullInterval))
			Expect(cfg.Metrics.Enabled).To(BeTrue())
			Expect(cfg.Metrics.Port).To(Equal(8081))
			Expect(cfg.Logging.Level).To(Equal(config.DefaultLogLevel))
		})

		It("should reject malformed YAML", func() {
			_, err := config.Parse([]byte("controller: [unclosed"))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Validate", func() {
		It("should accept the defaults", func() {
			Expect(config.Default().Validate()).To(Succeed())
		})

		It("should reject unknown modes", func() {
			cfg := config.Default()
			cfg.Controller.Mode = "global"
			Expect(cfg.Validate()).To(MatchError(ContainSubstring("unknown controller mode")))
		})

		It("should reject an out of range metrics port", func() {
			cfg := config.Default()
			cfg.Metrics.Enabled = true
			cfg.Metrics.Port = 70000
			Expect(cfg.Validate()).To(HaveOccurred())
		})
	})

	Describe("Load", func() {
		It("should fall back to defaults when the file is missing", func() {
			cfg, err := config.Load(filepath.Join(GinkgoT().TempDir(), "missing.yaml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.Default()))
		})

		It("should let the environment win over the file", func() {
			path := filepath.Join(GinkgoT().TempDir(), "entitystate.yaml")
			Expect(os.WriteFile(path, []byte("controller:\n  mode: handles\n"), 0o600)).To(Succeed())

			GinkgoT().Setenv("CONTROLLER_MODE", "keyed")
			GinkgoT().Setenv("ALIAS_TTL", "2m")
			GinkgoT().Setenv("METRICS_ENABLED", "true")

			cfg, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Controller.Mode).To(Equal(config.ModeKeyed))
			Expect(cfg.Controller.AliasTTL).To(Equal(2 * time.Minute))
			Expect(cfg.Metrics.Enabled).To(BeTrue())
		})

		It("should fail validation for a bad mode from the environment", func() {
			GinkgoT().Setenv("CONTROLLER_MODE", "nope")
			_, err := config.Load("")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Clone", func() {
		It("should produce an independent copy", func() {
			cfg := config.Default()
			cfg.Sentry.DSN = "https://key@example.com/1"

			clone := cfg.Clone()
			clone.Sentry.DSN = ""
			clone.Controller.Mode = config.ModeHandles

			Expect(cfg.Sentry.DSN).To(Equal("https://key@example.com/1"))
			Expect(cfg.Controller.Mode).To(Equal(config.ModeKeyed))
		})
	})
})
