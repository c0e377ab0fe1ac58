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
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment files in order. Existing variables are never
// overwritten, so the real environment always wins. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env.local", ".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		slog.Debug("Loaded environment file", "path", path)
	}
	return nil
}

// LoadDotEnvForConfig loads .env files next to the config file, then the
// ones in the working directory.
func LoadDotEnvForConfig(configPath string) error {
	dir := filepath.Dir(configPath)
	return LoadDotEnv(
		filepath.Join(dir, ".env.local"),
		filepath.Join(dir, ".env"),
		".env.local",
		".env",
	)
}

// FromEnv builds a Config from environment variables only. Defaults are not
// applied; callers run SetDefaults after any further overrides.
//
// Recognized variables:
//
//	SILICONFLOW_MODEL, SILICONFLOW_API_KEY, SILICONFLOW_BASE_URL
//	AZURE_OPENAI_DEPLOYMENT, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_API_VERSION, AZURE_OPENAI_API_KEY
//	TEMPERATURE, MAX_TOKENS, TIMEOUT (seconds)
//	INSIGHTBOT_WORKBOOK, INSIGHTBOT_DIRECTORY_URL
func FromEnv() *Config {
	cfg := &Config{}

	if os.Getenv("AZURE_OPENAI_ENDPOINT") != "" && os.Getenv("SILICONFLOW_API_KEY") == "" {
		cfg.LLM.Provider = ProviderAzure
		cfg.LLM.Model = os.Getenv("AZURE_OPENAI_DEPLOYMENT")
		cfg.LLM.AzureEndpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")
		cfg.LLM.AzureAPIVersion = os.Getenv("AZURE_OPENAI_API_VERSION")
		cfg.LLM.APIKey = os.Getenv("AZURE_OPENAI_API_KEY")
	} else {
		cfg.LLM.Model = os.Getenv("SILICONFLOW_MODEL")
		cfg.LLM.APIKey = os.Getenv("SILICONFLOW_API_KEY")
		cfg.LLM.BaseURL = os.Getenv("SILICONFLOW_BASE_URL")
	}

	if v, err := strconv.ParseFloat(os.Getenv("TEMPERATURE"), 64); err == nil {
		cfg.LLM.Temperature = &v
	}
	if v, err := strconv.Atoi(os.Getenv("MAX_TOKENS")); err == nil {
		cfg.LLM.MaxTokens = v
	}
	if v, err := strconv.Atoi(os.Getenv("TIMEOUT")); err == nil && v > 0 {
		cfg.LLM.Timeout = time.Duration(v) * time.Second
	}

	cfg.Workbook.Path = os.Getenv("INSIGHTBOT_WORKBOOK")
	if url := os.Getenv("INSIGHTBOT_DIRECTORY_URL"); url != "" {
		cfg.Auth.Enabled = true
		cfg.Auth.DirectoryURL = url
	}

	return cfg
}
