package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kilobridge/kilobridge/internal/bridge"
	"github.com/kilobridge/kilobridge/internal/config"
	"github.com/kilobridge/kilobridge/internal/fsindex"
	"github.com/kilobridge/kilobridge/internal/logging"
	"github.com/kilobridge/kilobridge/internal/orchestrator"
	"github.com/kilobridge/kilobridge/internal/plan"
	"github.com/kilobridge/kilobridge/internal/prompt"
	"github.com/kilobridge/kilobridge/internal/provider"
	"github.com/kilobridge/kilobridge/server"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	flags := config.DefineFlags(fs)
	showVersion := fs.Bool("version", false, "print version and exit")
	_ = fs.Parse(args)

	if *showVersion {
		fmt.Println(version)
		return nil
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := logging.ApplyLevel(cfg.LogLevel); err != nil {
		return err
	}

	logging.PrintBanner(os.Stderr, logging.BannerInfo{
		Version: version,
		Addr:    cfg.Addr,
		Model:   cfg.Provider.Model,
		Agent:   cfg.Agent.Command,
	})

	srv, err := newServer(cfg)
	if err != nil {
		return err
	}

	if err := config.WatchFile(flags, func(c *config.Config, err error) {
		if err != nil {
			slog.Warn("config reload failed", "error", err)
			return
		}
		if err := logging.ApplyLevel(c.LogLevel); err != nil {
			slog.Warn("config reload: invalid log level", "error", err)
			return
		}
		slog.Info("config reloaded", "log_level", c.LogLevel)
	}); err != nil {
		slog.Warn("config file watch disabled", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Serve(ctx)
}

// newServer wires the components described by cfg.
func newServer(cfg *config.Config) (*server.Server, error) {
	client := provider.New(provider.Config{
		APIKey:      cfg.Provider.APIKey,
		BaseURL:     cfg.Provider.BaseURL,
		Model:       cfg.Provider.Model,
		Temperature: cfg.Provider.Temperature,
		MaxTokens:   cfg.Provider.MaxTokens,
		Timeout:     cfg.Provider.Timeout,
	})
	if cfg.Provider.APIKey == "" {
		slog.Warn("no provider API key configured; fallback requests will fail")
	}

	agent := bridge.New(bridge.Options{
		Command:   cfg.Agent.Command,
		Dir:       cfg.Agent.Dir,
		Timeout:   cfg.Agent.Timeout,
		KillGrace: cfg.Agent.KillGrace,
	})

	composer := prompt.New(prompt.Options{
		RulesDir:        cfg.Prompt.RulesDir,
		ProjectRulesDir: cfg.Prompt.ProjectRulesDir,
		ContextItems:    cfg.Prompt.ContextItems,
	})

	ctrl := orchestrator.New(agent, composer, client, orchestrator.Options{
		Temperature: cfg.Provider.Temperature,
		MaxTokens:   cfg.Provider.MaxTokens,
	})

	planner := plan.New(client, plan.Options{
		MaxAttempts: cfg.Planner.MaxAttempts,
		Temperature: cfg.Provider.Temperature,
	})

	files, err := fsindex.New(fsindex.Options{
		AllowedPaths: cfg.FS.AllowedPaths,
		Ignore:       cfg.FS.Ignore,
	})
	if err != nil {
		return nil, fmt.Errorf("filesystem tool: %w", err)
	}

	return server.New(server.Config{
		Addr:         cfg.Addr,
		AllowExecute: cfg.Agent.AllowExecute,
		Responder:    ctrl,
		Planner:      planner,
		Files:        files,
	})
}
