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

package logger

import (
	"errors"

	"github.com/getsentry/sentry-go"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var _ = Describe("Logger", func() {
	Describe("ParseFormat", func() {
		It("should match case-insensitively and fall back otherwise", func() {
			Expect(ParseFormat("json", FormatConsole)).To(Equal(FormatJSON))
			Expect(ParseFormat("Console", FormatJSON)).To(Equal(FormatConsole))
			Expect(ParseFormat("xml", FormatJSON)).To(Equal(FormatJSON))
		})
	})

	Describe("getLogLevel", func() {
		DescribeTable("level names",
			func(name string, want zapcore.Level) {
				Expect(getLogLevel(LogLevel(name))).To(Equal(want))
			},
			Entry("debug", "debug", zapcore.DebugLevel),
			Entry("production", "PRODUCTION", zapcore.InfoLevel),
			Entry("warn", "WARN", zapcore.WarnLevel),
			Entry("error", "ERROR", zapcore.ErrorLevel),
			Entry("unknown", "chatty", zapcore.InfoLevel),
		)
	})

	Describe("New", func() {
		It("should wrap the core for sentry when asked", func() {
			l := New("DEBUG", FormatJSON, Options{Sentry: true})
			_, ok := l.Core().(*SentryHook)
			Expect(ok).To(BeTrue())

			plain := New("DEBUG", FormatJSON)
			_, ok = plain.Core().(*SentryHook)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("For", func() {
		It("should name loggers after their component", func() {
			core, logs := observer.New(zapcore.DebugLevel)
			previous := zap.L()
			ReplaceGlobals(zap.New(core))
			DeferCleanup(func() { ReplaceGlobals(previous) })

			For(ComponentTaskQueue).Infow("drained", "queue", "User:u1")

			entries := logs.All()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].LoggerName).To(Equal(ComponentTaskQueue))
			Expect(entries[0].ContextMap()).To(HaveKeyWithValue("queue", "User:u1"))
		})
	})

	Describe("SentryHook", func() {
		It("should keep writing to the wrapped core", func() {
			core, logs := observer.New(zapcore.InfoLevel)
			l := zap.New(NewSentryHook(core)).With(zap.String("entity_type", "User"))

			l.Debug("hidden")
			l.Info("visible")

			Expect(logs.Len()).To(Equal(1))
			Expect(logs.All()[0].ContextMap()).To(HaveKeyWithValue("entity_type", "User"))
		})
	})

	Describe("fieldsAsTags", func() {
		It("should stringify the common field types", func() {
			tags := fieldsAsTags([]zapcore.Field{
				zap.String("operation", "save"),
				zap.Int("attempt", 3),
				zap.Bool("local", true),
				zap.Error(errors.New("boom")),
				zap.Any("kind", []string{"Increment"}),
			})

			Expect(tags).To(Equal(map[string]string{
				"operation": "save",
				"attempt":   "3",
				"local":     "true",
				"error":     "boom",
				"kind":      "[Increment]",
			}))
		})
	})

	Describe("zapLevelToSentry", func() {
		It("should map zap levels onto sentry levels", func() {
			Expect(zapLevelToSentry(zapcore.WarnLevel)).To(Equal(sentry.LevelWarning))
			Expect(zapLevelToSentry(zapcore.ErrorLevel)).To(Equal(sentry.LevelError))
			Expect(zapLevelToSentry(zapcore.PanicLevel)).To(Equal(sentry.LevelFatal))
			Expect(zapLevelToSentry(zapcore.DebugLevel)).To(Equal(sentry.LevelDebug))
		})
	})
})
