package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/chat"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/config"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/render"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/session"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/supplier"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/workbook"
)

// AskCmd runs one question through the team.
type AskCmd struct {
	Question string `arg:"" help:"The question to ask."`
	Thread   string `help:"Continue an existing thread (requires a persistent store)."`
	Raw      bool   `help:"Print the answer as returned, without rendering charts."`
}

func (c *AskCmd) Run(cli *CLI) error {
	ctx := context.Background()

	cfg, loader, err := cli.loadConfig(ctx)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}

	store, err := session.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	t, err := buildTeam(cfg)
	if err != nil {
		return err
	}

	thread := c.Thread
	if thread == "" {
		thread = uuid.NewString()
	}
	reply, err := chat.New(t, store, cfg.Chat).Handle(ctx, chat.Request{
		ThreadID: thread,
		UserID:   "cli",
		Message:  c.Question,
		Resumed:  c.Thread != "",
	})
	if err != nil {
		return err
	}

	if c.Raw {
		fmt.Println(reply.Answer)
	} else {
		printEvents(reply)
	}
	if reply.Result != nil {
		fmt.Fprintf(os.Stderr, "\nthread=%s reason=%s turns=%d duration=%s\n",
			reply.ThreadID, reply.Result.Reason, reply.Result.Turns, reply.Result.Duration.Round(time.Millisecond))
	}
	return nil
}

func printEvents(reply *chat.Reply) {
	for ev := range reply.Events {
		switch ev.Kind {
		case render.KindText:
			fmt.Print(ev.Text)
		case render.KindChart:
			fmt.Printf("\n[chart] %s\n", ev.Chart)
		}
	}
	fmt.Println()
}

// QueryCmd runs SQL over workbook sheets.
type QueryCmd struct {
	SQL     string   `arg:"" help:"SELECT statement to run."`
	File    string   `help:"Workbook path (defaults to the configured workbook)." type:"path"`
	Tables  []string `help:"Sheets to load as tables (comma-separated). Defaults to the sheets referenced by the query."`
	MaxRows int      `help:"Maximum rows to print (0 = configured default)."`
}

func (c *QueryCmd) Run() error {
	cfg := workbookConfig(c.File)
	if c.MaxRows > 0 {
		cfg.MaxRows = c.MaxRows
	}
	if cfg.Path == "" {
		return fmt.Errorf("--file is required when no workbook is configured")
	}

	tables := c.Tables
	if len(tables) == 0 {
		tables = workbook.ExtractTables(c.SQL)
	}
	fmt.Println(workbook.New(cfg).Execute(context.Background(), cfg.Path, c.SQL, tables))
	return nil
}

// SheetsCmd lists workbook sheets.
type SheetsCmd struct {
	File string `arg:"" help:"Workbook path." type:"existingfile"`
}

func (c *SheetsCmd) Run() error {
	names, err := workbook.SheetNames(c.File)
	if err != nil {
		return fmt.Errorf("failed to open workbook: %w", err)
	}
	for _, name := range names {
		t, err := workbook.ReadSheet(c.File, name)
		if err != nil {
			fmt.Printf("  - %s (unreadable: %v)\n", name, err)
			continue
		}
		cols := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			cols[i] = fmt.Sprintf("%s %s", col.Name, col.Type)
		}
		fmt.Printf("  - %s: %d rows\n      %s\n", name, len(t.Rows), strings.Join(cols, ", "))
	}
	return nil
}

// ScoreCmd computes a supplier score.
type ScoreCmd struct {
	Consumption    int     `required:"" help:"Parts consumed in the period."`
	Defects        int     `required:"" help:"Defective parts."`
	NCM            int     `name:"ncm" default:"0" help:"Non-conformance reports."`
	ActualDowntime float64 `required:"" help:"Actual downtime."`
	TargetDowntime float64 `required:"" help:"Target downtime."`

	Title string `help:"Report title." default:"供应商评分报告"`
	Name  string `help:"Supplier name."`
	Code  string `help:"Supplier code."`
	JSON  bool   `name:"json" help:"Print the result as JSON."`
}

func (c *ScoreCmd) Run() error {
	in := supplier.Input{
		Consumption:    c.Consumption,
		DefectCount:    c.Defects,
		NCMCount:       c.NCM,
		ActualDowntime: c.ActualDowntime,
		TargetDowntime: c.TargetDowntime,
	}
	if !c.JSON {
		fmt.Println(supplier.Report(in, c.Title, c.Name, c.Code))
		return nil
	}

	res, err := supplier.Score(in)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(res)
}

// ValidateCmd checks the configuration and prints a summary.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, loader, err := cli.loadConfig(context.Background())
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}

	source := cli.Config
	if source == "" {
		source = "environment"
	}
	fmt.Printf("Configuration is valid (%s)\n", source)
	fmt.Printf("  LLM:       %s %s\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Printf("  Workbook:  %s\n", cfg.Workbook.Path)
	fmt.Printf("  Team:      %s, max %d messages\n", cfg.Team.Profile, cfg.Team.MaxMessages)
	fmt.Printf("  History:   %s\n", cfg.Store.Driver)
	fmt.Printf("  Auth:      %t\n", cfg.Auth.Enabled)
	return nil
}

// workbookConfig returns the workbook defaults with path applied. Without a
// path the INSIGHTBOT_WORKBOOK environment variable is used.
func workbookConfig(path string) config.WorkbookConfig {
	cfg := config.FromEnv().Workbook
	if path != "" {
		cfg.Path = path
	}
	cfg.SetDefaults()
	return cfg
}
