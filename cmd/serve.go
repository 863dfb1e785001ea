package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/casetriage/internal/agentforce"
	"github.com/nextlevelbuilder/casetriage/internal/bus"
	"github.com/nextlevelbuilder/casetriage/internal/config"
	"github.com/nextlevelbuilder/casetriage/internal/engine"
	"github.com/nextlevelbuilder/casetriage/internal/handoff"
	"github.com/nextlevelbuilder/casetriage/internal/platform/slack"
	"github.com/nextlevelbuilder/casetriage/internal/runbook"
	"github.com/nextlevelbuilder/casetriage/internal/teams"
	"github.com/nextlevelbuilder/casetriage/internal/telemetry"
)

func runServe() {
	// Setup structured logging
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Triage.IntakeChannel == "" {
		slog.Error("no intake channel configured (set triage.intake_channel or CASETRIAGE_INTAKE_CHANNEL)")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("failed to set up telemetry", "error", err)
		os.Exit(1)
	}
	defer shutdownTelemetry(context.Background())

	msgBus := bus.New()

	adapter, err := slack.New(cfg.Slack, msgBus)
	if err != nil {
		slog.Error("failed to create slack adapter", "error", err)
		os.Exit(1)
	}

	directory := teams.New(adapter, cfg.Teams.Seeds)

	// AgentForce is optional: without credentials every agent-path case
	// gets a visible "not configured" reply instead.
	var agent engine.AgentGateway
	if cfg.Agentforce.Configured() {
		client, afErr := agentforce.New(cfg.Agentforce)
		if afErr != nil {
			slog.Error("failed to create agentforce client", "error", afErr)
			os.Exit(1)
		}
		agent = client
	} else {
		slog.Warn("agentforce credentials missing, agent processing disabled")
	}

	coordinator := handoff.New(adapter, directory, cfg.Triage.IntakeChannel)
	runbooks := runbook.New(adapter, directory)
	eng := engine.NewEngine(adapter, agent, coordinator, runbooks, engine.Config{
		IntakeChannel: cfg.Triage.IntakeChannel,
		LeadsChannel:  cfg.Triage.LeadsChannel,
		CallTimeout:   cfg.Triage.CallTimeout(),
	})

	// Hot-reload team seeds on config change. Secrets still come from env.
	if err := config.Watch(ctx, cfgPath, func(fresh *config.Config) {
		directory.Reseed(fresh.Teams.Seeds)
	}); err != nil {
		slog.Warn("config watch unavailable", "error", err)
	}

	g, runCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return adapter.Run(runCtx)
	})
	g.Go(func() error {
		eng.Run(runCtx, msgBus)
		return nil
	})

	slog.Info("casetriage started",
		"intake_channel", cfg.Triage.IntakeChannel,
		"leads_channel", cfg.Triage.LeadsChannel,
		"seeded_teams", len(cfg.Teams.Seeds),
	)

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("serve loop exited", "error", err)
		os.Exit(1)
	}
	slog.Info("casetriage stopped")
}
