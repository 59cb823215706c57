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

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tiendc/go-deepcopy"
	"gopkg.in/yaml.v3"

	"github.com/united-manufacturing-hub/entitystate/pkg/env"
)

// Mode selects the identity strategy of the state controller.
type Mode string

const (
	// ModeKeyed shares one state per (type, id) pair.
	ModeKeyed Mode = "keyed"
	// ModeHandles keeps one state per in-memory handle.
	ModeHandles Mode = "handles"
)

const (
	DefaultAliasTTL          = 5 * time.Minute
	DefaultAliasCullInterval = time.Minute
	DefaultLogLevel          = "INFO"
	DefaultLogFormat         = "CONSOLE"
)

type FullConfig struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Controller ControllerConfig `yaml:"controller"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Sentry     SentryConfig     `yaml:"sentry,omitempty"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // CONSOLE or JSON
}

type ControllerConfig struct {
	Mode Mode `yaml:"mode"`
	// AliasTTL is how long a temporary key keeps resolving to its re-keyed state.
	AliasTTL          time.Duration `yaml:"aliasTTL"`
	AliasCullInterval time.Duration `yaml:"aliasCullInterval"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type SentryConfig struct {
	DSN         string `yaml:"dsn,omitempty"`
	Environment string `yaml:"environment,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() FullConfig {
	return FullConfig{
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Controller: ControllerConfig{
			Mode:              ModeKeyed,
			AliasTTL:          DefaultAliasTTL,
			AliasCullInterval: DefaultAliasCullInterval,
		},
		Metrics: MetricsConfig{
			Port: 8081,
		},
	}
}

// Clone creates a deep copy of FullConfig
func (c FullConfig) Clone() FullConfig {
	var clone FullConfig
	if err := deepcopy.Copy(&clone, &c); err != nil {
		// all fields are plain values
		panic(err)
	}

	return clone
}

// Validate reports the first invalid setting.
func (c FullConfig) Validate() error {
	switch c.Controller.Mode {
	case ModeKeyed, ModeHandles:
	default:
		return fmt.Errorf("unknown controller mode %q", c.Controller.Mode)
	}

	if c.Controller.AliasTTL < 0 {
		return errors.New("controller.aliasTTL must not be negative")
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port %d out of range", c.Metrics.Port)
	}

	return nil
}

// Parse decodes YAML on top of the defaults.
func Parse(data []byte) (FullConfig, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return FullConfig{}, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Load reads path (a missing file yields the defaults) and applies
// environment overrides.
//
// Order of precedence (highest to lowest):
//  1. Environment variables (LOGGING_LEVEL, LOGGING_FORMAT, CONTROLLER_MODE,
//     ALIAS_TTL, METRICS_ENABLED, SENTRY_DSN)
//  2. Config file values
//  3. Default values
func Load(path string) (FullConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)

		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return FullConfig{}, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			cfg, err = Parse(data)
			if err != nil {
				return FullConfig{}, err
			}
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return FullConfig{}, err
	}

	return cfg, cfg.Validate()
}

func applyEnvOverrides(cfg *FullConfig) error {
	var err error

	if cfg.Logging.Level, err = env.GetAsString("LOGGING_LEVEL", false, cfg.Logging.Level); err != nil {
		return err
	}

	if cfg.Logging.Format, err = env.GetAsString("LOGGING_FORMAT", false, cfg.Logging.Format); err != nil {
		return err
	}

	mode, err := env.GetAsString("CONTROLLER_MODE", false, string(cfg.Controller.Mode))
	if err != nil {
		return err
	}

	cfg.Controller.Mode = Mode(mode)

	if cfg.Controller.AliasTTL, err = env.GetAsDuration("ALIAS_TTL", false, cfg.Controller.AliasTTL); err != nil {
		return err
	}

	if cfg.Metrics.Enabled, err = env.GetAsBool("METRICS_ENABLED", false, cfg.Metrics.Enabled); err != nil {
		return err
	}

	if cfg.Sentry.DSN, err = env.GetAsString("SENTRY_DSN", false, cfg.Sentry.DSN); err != nil {
		return err
	}

	return nil
}
