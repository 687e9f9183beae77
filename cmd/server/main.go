package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/droiddeck/backend/internal/apilevel"
	"github.com/droiddeck/backend/internal/apk"
	"github.com/droiddeck/backend/internal/bridge"
	"github.com/droiddeck/backend/internal/catalog"
	"github.com/droiddeck/backend/internal/events"
	"github.com/droiddeck/backend/internal/infrastructure/config"
	"github.com/droiddeck/backend/internal/infrastructure/logging"
	"github.com/droiddeck/backend/internal/infrastructure/monitoring"
	"github.com/droiddeck/backend/internal/integration"
	"github.com/droiddeck/backend/internal/inventory"
	"github.com/droiddeck/backend/internal/lifecycle"
	"github.com/droiddeck/backend/internal/proc"
	"github.com/droiddeck/backend/internal/server"
)

func main() {
	cfg := config.LoadOrDefault()

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		log.Fatalf("logger setup failed: %v", err)
	}
	defer logger.Sync()

	metrics := monitoring.NewMetrics()
	bus := events.New(logger)

	runner := proc.NewRunner(logger,
		proc.WithSearchDirs(cfg.Bridge.SearchDirs),
		proc.WithMetrics(metrics),
	)
	bridgeMgr := bridge.NewManager(runner, bus, cfg.Bridge, cfg.Subsystem, logger, metrics)

	levels := apilevel.LoadOrDefault(cfg.Bridge.APILevelMap)
	validator := apk.NewValidator(bridgeMgr, logger)
	extractor := apk.NewExtractor(bridgeMgr, logger)
	installer := apk.NewInstaller(bridgeMgr, validator, extractor, levels, bus, logger, metrics)

	inv := inventory.NewManager(bridgeMgr, bus, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	controller := lifecycle.NewController(bridgeMgr, cfg.Lifecycle, logger)
	controller.Run(ctx)
	defer controller.Close()

	catalogClient := catalog.NewClient(cfg.Catalog, logger)
	finder := integration.NewDiscovery(catalogClient, extractor, logger)
	facade := integration.New(bridgeMgr, controller, installer, inv, finder, validator, extractor, logger)

	srv := server.New(cfg, facade, bus, metrics, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	bridgeMgr.Disconnect(shutdownCtx)
	logger.Info("stopped")
}
