package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/ngenohkevin/fwcheck-agent/config"
	"github.com/ngenohkevin/fwcheck-agent/internal/command"
	"github.com/ngenohkevin/fwcheck-agent/internal/firewall"
	"github.com/ngenohkevin/fwcheck-agent/internal/logger"
	"github.com/ngenohkevin/fwcheck-agent/internal/process"
	"github.com/ngenohkevin/fwcheck-agent/internal/server"
	"github.com/ngenohkevin/fwcheck-agent/internal/systemd"
	"github.com/ngenohkevin/fwcheck-agent/internal/tracker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Setup(cfg.LogLevel)

	if cfg.SetupMode {
		log.Warn("No API key configured, starting in SETUP MODE")
		log.Infof("POST http://%s/setup/generate then /setup/save to configure the agent", cfg.Addr())
		log.Info("After setup, restart the agent to enable authentication")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := command.NewRunner(cfg.FirewallTimeout)
	matcher := firewall.NewMatcher(firewall.NewSource(runner, cfg.FirewallCommand, cfg.FirewallArgs))

	lister := process.NewLister()
	reconciler := tracker.NewReconciler(lister, tracker.NewCollection(), tracker.Options{
		RefreshInterval: cfg.RefreshInterval,
		MonitorInterval: cfg.MonitorInterval,
		AutoRefresh:     cfg.AutoRefresh,
	})

	notifier := systemd.NewNotifier()

	// a failed first listing is retried by the scheduler
	if result, err := reconciler.Refresh(ctx); err != nil {
		log.WithError(err).Warn("Initial process refresh failed")
	} else {
		log.WithField("records", result.Records).Info("Initial process refresh complete")
		_ = notifier.Status("tracking %d processes", result.Records)
	}

	if err := notifier.Ready(); err != nil {
		log.WithError(err).Warn("Failed to notify systemd")
	}
	go notifier.Watchdog(ctx)

	go reconciler.Run(ctx)

	go func() {
		<-ctx.Done()
		if err := notifier.Stopping(); err != nil {
			log.WithError(err).Debug("Failed to notify systemd")
		}
	}()

	srv := server.New(cfg, server.Dependencies{
		Tracker:   reconciler,
		Rules:     matcher,
		Processes: lister,
	})
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
