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

// Command insightbot is the CLI for the InsightBot BI assistant.
//
// Usage:
//
//	insightbot serve --config insightbot.yaml
//	insightbot ask "2024年IT费用是多少？"
//	insightbot query --file cost.xlsx --tables CostDataBase "SELECT * FROM CostDataBase"
//	insightbot sheets cost.xlsx
//	insightbot score --consumption 12000 --defects 3 --ncm 1 --actual-downtime 2 --target-downtime 4
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the chat server."`
	Ask      AskCmd      `cmd:"" help:"Ask the team one question and print the answer."`
	Query    QueryCmd    `cmd:"" help:"Run a read-only SQL query over workbook sheets."`
	Sheets   SheetsCmd   `cmd:"" help:"List the sheets of a workbook."`
	Score    ScoreCmd    `cmd:"" help:"Compute a supplier score."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, json)."`

	closeLog func() `kong:"-"`
}

// loadConfig reads --config, or the environment when no file is given.
// The config's logger section is applied unless flags or env override it.
func (cli *CLI) loadConfig(ctx context.Context, opts ...config.LoaderOption) (*config.Config, *config.Loader, error) {
	var (
		cfg    *config.Config
		loader *config.Loader
		err    error
	)
	if cli.Config != "" {
		_ = config.LoadDotEnvForConfig(cli.Config)
		cfg, loader, err = config.LoadConfigFile(ctx, cli.Config, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load config: %w", err)
		}
	} else {
		cfg = config.FromEnv()
		cfg.SetDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, nil, fmt.Errorf("invalid environment configuration: %w", err)
		}
	}

	if err := cli.initLogger(&cfg.Logger); err != nil {
		if loader != nil {
			_ = loader.Close()
		}
		return nil, nil, err
	}
	if cli.Config != "" {
		slog.Info("Loaded configuration", "path", cli.Config)
	}
	return cfg, loader, nil
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("insightbot version %s\n", version())
	return nil
}

func version() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			return info.Main.Version
		}
	}
	return "dev"
}

func main() {
	_ = config.LoadDotEnv()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("insightbot"),
		kong.Description("InsightBot - multi-agent BI assistant over Excel cost data"),
		kong.UsageOnError(),
	)

	// Flags and env first; commands that load a config refine it.
	if err := cli.initLogger(nil); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	err := ctx.Run(&cli)
	if cli.closeLog != nil {
		cli.closeLog()
	}
	ctx.FatalIfErrorf(err)
}
