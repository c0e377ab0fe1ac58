// Copyright 2025 Kadir Pekel
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

// Package config defines the InsightBot configuration and its loader.
//
// A single Config is built at process start and handed by reference to every
// component that needs it. Nothing in this module reads configuration from
// package-level state.
//
// Example:
//
//	llm:
//	  provider: openai
//	  model: Qwen/Qwen2.5-72B-Instruct
//	  api_key: ${SILICONFLOW_API_KEY}
//	  base_url: https://api.siliconflow.cn
//	workbook:
//	  path: Data/Function cost allocation analysis to IT.xlsx
//	team:
//	  profile: extended
package config

import "fmt"

// Config is the root configuration.
type Config struct {
	Logger        LoggerConfig        `yaml:"logger,omitempty"`
	LLM           LLMConfig           `yaml:"llm"`
	Workbook      WorkbookConfig      `yaml:"workbook"`
	Team          TeamConfig          `yaml:"team,omitempty"`
	Chat          ChatConfig          `yaml:"chat,omitempty"`
	Server        ServerConfig        `yaml:"server,omitempty"`
	Auth          AuthConfig          `yaml:"auth,omitempty"`
	Store         StoreConfig         `yaml:"store,omitempty"`
	Observability ObservabilityConfig `yaml:"observability,omitempty"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.Logger.SetDefaults()
	c.LLM.SetDefaults()
	c.Workbook.SetDefaults()
	c.Team.SetDefaults()
	c.Chat.SetDefaults()
	c.Server.SetDefaults()
	c.Auth.SetDefaults()
	c.Store.SetDefaults()
	c.Observability.SetDefaults()
}

// Validate checks every section and reports the first failure.
func (c *Config) Validate() error {
	sections := []struct {
		name     string
		validate func() error
	}{
		{"logger", c.Logger.Validate},
		{"llm", c.LLM.Validate},
		{"workbook", c.Workbook.Validate},
		{"team", c.Team.Validate},
		{"chat", c.Chat.Validate},
		{"server", c.Server.Validate},
		{"auth", c.Auth.Validate},
		{"store", c.Store.Validate},
		{"observability", c.Observability.Validate},
	}
	for _, s := range sections {
		if err := s.validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}
