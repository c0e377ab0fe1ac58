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

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/config"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/logger"
)

const (
	// LogFileEnvVar is the environment variable name for log file path
	LogFileEnvVar = "LOG_FILE"
	// LogLevelEnvVar is the environment variable name for log level
	LogLevelEnvVar = "LOG_LEVEL"
	// LogFormatEnvVar is the environment variable name for log format
	LogFormatEnvVar = "LOG_FORMAT"
	// DefaultLogFormat is the default log format
	DefaultLogFormat = "simple"
)

// initLogger installs the global logger.
// Priority: CLI flags > env vars > config file > defaults
func (cli *CLI) initLogger(cfg *config.LoggerConfig) error {
	var fromConfig config.LoggerConfig
	if cfg != nil {
		fromConfig = *cfg
	}

	logLevel := firstNonEmpty(cli.LogLevel, os.Getenv(LogLevelEnvVar), fromConfig.Level, "info")
	logFile := firstNonEmpty(cli.LogFile, os.Getenv(LogFileEnvVar), fromConfig.File)
	logFormat := firstNonEmpty(cli.LogFormat, os.Getenv(LogFormatEnvVar), fromConfig.Format, DefaultLogFormat)

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	var output io.Writer = os.Stderr
	var cleanup func()
	if logFile != "" {
		file, cleanupFn, err := logger.OpenLogFile(logFile)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
		cleanup = cleanupFn
	}

	logger.Init(level, output, logFormat)

	if cli.closeLog != nil {
		cli.closeLog()
	}
	cli.closeLog = cleanup
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
