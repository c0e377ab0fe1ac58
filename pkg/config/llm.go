// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"strings"
	"time"
)

// LLM provider types.
const (
	ProviderOpenAI   = "openai"
	ProviderAzure    = "azure"
	ProviderScripted = "scripted"
)

// LLMConfig configures the completion service shared by every agent role.
type LLMConfig struct {
	// Provider is openai (any OpenAI-compatible endpoint), azure, or scripted.
	Provider string `yaml:"provider,omitempty"`

	// Model is the model name, or the deployment name for azure.
	Model string `yaml:"model,omitempty"`

	APIKey string `yaml:"api_key,omitempty"`

	// BaseURL is normalized to end in /v1 for the openai provider.
	BaseURL string `yaml:"base_url,omitempty"`

	// AzureEndpoint and AzureAPIVersion apply to the azure provider only.
	AzureEndpoint   string `yaml:"azure_endpoint,omitempty"`
	AzureAPIVersion string `yaml:"azure_api_version,omitempty"`

	// Temperature is a pointer so an explicit 0 survives defaults.
	Temperature *float64 `yaml:"temperature,omitempty"`

	MaxTokens int `yaml:"max_tokens,omitempty"`

	// Timeout bounds a single completion request.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// MaxRetries is handed to the client for transient failures.
	MaxRetries int `yaml:"max_retries,omitempty"`

	// Script is the canned reply list for the scripted provider.
	Script []string `yaml:"script,omitempty"`
}

// SetDefaults applies default values.
func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.Temperature == nil {
		zero := 0.0
		c.Temperature = &zero
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.Provider == ProviderOpenAI && c.BaseURL != "" {
		c.BaseURL = NormalizeBaseURL(c.BaseURL)
	}
}

// Validate checks the LLM configuration.
func (c *LLMConfig) Validate() error {
	switch c.Provider {
	case ProviderOpenAI:
		if c.Model == "" {
			return fmt.Errorf("model is required")
		}
	case ProviderAzure:
		if c.Model == "" {
			return fmt.Errorf("model (deployment) is required for azure")
		}
		if c.AzureEndpoint == "" {
			return fmt.Errorf("azure_endpoint is required for azure")
		}
		if c.AzureAPIVersion == "" {
			return fmt.Errorf("azure_api_version is required for azure")
		}
	case ProviderScripted:
	default:
		return fmt.Errorf("unknown provider %q (valid: openai, azure, scripted)", c.Provider)
	}

	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	return nil
}

// GetTemperature returns the configured temperature.
func (c *LLMConfig) GetTemperature() float64 {
	if c.Temperature == nil {
		return 0
	}
	return *c.Temperature
}

// NormalizeBaseURL trims whitespace and a trailing slash and makes sure the
// URL ends in /v1.
func NormalizeBaseURL(raw string) string {
	u := strings.TrimSpace(raw)
	u = strings.TrimSuffix(u, "/")
	if u == "" {
		return ""
	}
	if !strings.HasSuffix(u, "/v1") {
		u += "/v1"
	}
	return u
}
