package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/auth"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/chat"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/config"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/llms"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/observability"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/server"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/session"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/team"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/toolset"
)

// ServeCmd starts the chat server.
type ServeCmd struct {
	Port   int    `help:"Port to listen on (overrides config)."`
	Watch  bool   `help:"Watch the config file and rebuild the team on change."`
	Export string `help:"Mirror every thread history into this JSON file." type:"path"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var svc *chat.Service
	onChange := config.WithOnChange(func(next *config.Config) {
		t, err := buildTeam(next)
		if err != nil {
			slog.Error("Keeping the previous team, reloaded config is unusable", "error", err)
			return
		}
		svc.SetRunner(t)
		slog.Info("Team rebuilt from reloaded config", "profile", t.Profile())
	})

	cfg, loader, err := cli.loadConfig(ctx, onChange)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	obs := observability.NewManager(cfg.Observability)
	if err := obs.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		if err := obs.Shutdown(context.Background()); err != nil {
			slog.Warn("Observability shutdown failed", "error", err)
		}
	}()

	store, err := session.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	t, err := buildTeam(cfg)
	if err != nil {
		return err
	}

	var chatOpts []chat.Option
	if c.Export != "" {
		chatOpts = append(chatOpts, chat.WithExportFile(c.Export))
	}
	svc = chat.New(t, store, cfg.Chat, chatOpts...)

	serverOpts := []server.Option{server.WithObservability(obs)}
	authenticator, directory, err := auth.NewFromConfig(ctx, cfg.Auth)
	if err != nil {
		return err
	}
	if authenticator != nil {
		serverOpts = append(serverOpts, server.WithAuthenticator(authenticator))
	}
	if directory != nil {
		serverOpts = append(serverOpts, server.WithLogin(directory))
	}
	srv := server.New(cfg.Server, svc, serverOpts...)

	fmt.Printf("\nInsightBot server ready\n")
	fmt.Printf("   API:      http://%s/v1/threads\n", srv.Address())
	fmt.Printf("   Health:   http://%s/healthz\n", srv.Address())
	if cfg.Observability.Metrics.Enabled {
		fmt.Printf("   Metrics:  http://%s/metrics\n", srv.Address())
	}
	fmt.Printf("   Team:     %s (%s)\n", t.Profile(), cfg.LLM.Model)
	fmt.Printf("   History:  %s\n", cfg.Store.Driver)
	fmt.Println("\nPress Ctrl+C to stop")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	if c.Watch {
		if loader == nil {
			slog.Warn("--watch needs --config, ignoring")
		} else {
			g.Go(func() error {
				err := loader.Watch(gctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		}
	}
	return g.Wait()
}

// buildTeam wires the completion client, the tools and the team of cfg.
func buildTeam(cfg *config.Config) (*team.Team, error) {
	llm, err := llms.New(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	tools, err := toolset.New(cfg.Workbook)
	if err != nil {
		return nil, fmt.Errorf("failed to create tools: %w", err)
	}
	t, err := team.New(cfg.Team, cfg.Workbook, llm, tools)
	if err != nil {
		return nil, fmt.Errorf("failed to create team: %w", err)
	}
	return t, nil
}
