// Command plasma-store runs a shared-memory object store and exposes its
// statistics over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gops/agent"

	"github.com/plasmastore/plasmastore/internal/allocator"
	"github.com/plasmastore/plasmastore/internal/config"
	"github.com/plasmastore/plasmastore/internal/lifecycle"
	"github.com/plasmastore/plasmastore/internal/metrics"
	"github.com/plasmastore/plasmastore/internal/store"
	"github.com/plasmastore/plasmastore/pkg/api"
	"github.com/plasmastore/plasmastore/pkg/types"
	"github.com/plasmastore/plasmastore/pkg/utils"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to YAML config file")
		logLevel   = flag.String("log-level", "", "Log level (overrides config)")
		address    = flag.String("address", "", "API listen address (overrides config)")
		footprint  = flag.String("footprint-limit", "", "Primary pool size, e.g. 2GB (overrides config)")
	)
	flag.Parse()

	cfg := config.NewDefault()
	if *configFile != "" {
		if err := cfg.LoadFromFile(*configFile); err != nil {
			fatal("load config", err)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		fatal("load environment", err)
	}
	if *logLevel != "" {
		cfg.Global.LogLevel = *logLevel
	}
	if *address != "" {
		cfg.API.Address = *address
	}
	if *footprint != "" {
		cfg.Store.FootprintLimit = *footprint
	}
	if err := cfg.Validate(); err != nil {
		fatal("invalid config", err)
	}

	if err := run(cfg); err != nil {
		fatal("plasma store", err)
	}
}

func run(cfg *config.Configuration) error {
	loggerConfig, err := cfg.LoggerConfig()
	if err != nil {
		return err
	}
	logger, err := utils.NewStructuredLogger(loggerConfig)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	if cfg.Global.GopsAgent {
		if err := agent.Listen(agent.Options{ShutdownCleanup: true}); err != nil {
			logger.Warn("gops agent not started", map[string]interface{}{"error": err.Error()})
		} else {
			defer agent.Close()
		}
	}

	params, err := cfg.StoreParams()
	if err != nil {
		return err
	}

	alloc, err := allocator.NewPlasmaAllocator(allocator.Config{
		PrimaryDirectory:  params.PrimaryDirectory,
		FallbackDirectory: params.FallbackDirectory,
		FootprintLimit:    params.FootprintLimit,
		HugepageEnabled:   params.HugepageEnabled,
	}, logger)
	if err != nil {
		return err
	}

	manager := lifecycle.NewManager(alloc, store.Config{
		Capacity:         params.Capacity,
		EvictionCapacity: params.EvictionCapacity,
		FallbackEnabled:  params.FallbackEnabled,
		EvictOnCreate:    params.EvictOnCreate,
		ChecksumOnSeal:   params.ChecksumOnSeal,
	}, logger)
	defer func() {
		if err := manager.Close(); err != nil {
			logger.Error("close store", map[string]interface{}{"error": err.Error()})
		}
	}()
	manager.SetOnDelete(func(view types.ObjectView) {
		logger.Debug("object reclaimed", map[string]interface{}{
			"object_id": view.ID.Hex(),
			"bytes":     view.TotalSize(),
		})
	})

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   cfg.Monitoring.Metrics.Enabled,
		Path:      cfg.Monitoring.Metrics.Path,
		Namespace: cfg.Monitoring.Metrics.Namespace,
		Labels:    cfg.Monitoring.Metrics.CustomLabels,
	})
	if err != nil {
		return err
	}
	if collector.Enabled() {
		manager.SetRecorder(collector)
		if err := collector.RegisterStore(manager); err != nil {
			return err
		}
	}

	logger.Info("plasma store started", map[string]interface{}{
		"footprint_limit": utils.FormatBytes(params.FootprintLimit),
		"capacity":        utils.FormatBytes(params.Capacity),
		"fallback":        params.FallbackEnabled,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.API.Enabled {
		server := api.NewServer(api.ServerConfig{
			Address:      cfg.API.Address,
			ReadTimeout:  cfg.API.ReadTimeout,
			WriteTimeout: cfg.API.WriteTimeout,
			IdleTimeout:  cfg.API.IdleTimeout,
		}, manager, logger)
		if collector.Enabled() {
			server.Handle(cfg.Monitoring.Metrics.Path, collector.Handler())
			server.Handle("/debug/operations", collector.DebugHandler())
		}
		server.StartBackground()

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("API server shutdown", map[string]interface{}{"error": err.Error()})
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down", map[string]interface{}{"objects": manager.Len()})
	return nil
}

func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "plasma-store: %s: %v\n", what, err)
	os.Exit(1)
}
