package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/sift/internal/alert"
	"github.com/tinytelemetry/sift/internal/duckdb"
	"github.com/tinytelemetry/sift/internal/httpserver"
	"github.com/tinytelemetry/sift/internal/ingest"
	"github.com/tinytelemetry/sift/internal/notify"
	"github.com/tinytelemetry/sift/internal/storage"
)

// runServer wires the stores, alert engine, and HTTP API together.
func runServer(cfg appConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	for _, path := range []string{cfg.DBPath, cfg.AlertDBPath, cfg.HistoryDBPath} {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create data directory %s: %w", dir, err)
			}
		}
	}

	// Event store.
	store, err := duckdb.NewStore(cfg.DBPath, logger, cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer store.Close()

	retentionCleaner := duckdb.NewRetentionCleaner(store, duckdb.RetentionConfig{
		RetentionDays: cfg.LogRetention,
	})
	if retentionCleaner != nil {
		defer retentionCleaner.Stop()
	}

	// Alert and analysis history. Both degrade to nil on failure rather
	// than blocking startup.
	var alertHistory storage.AlertHistoryStorage
	sqliteAlerts, err := storage.NewSQLiteAlertHistory(logger, cfg.AlertDBPath)
	if err != nil {
		logger.Warn("Alert history unavailable", zap.Error(err))
	} else {
		defer sqliteAlerts.Close()
		alertHistory = sqliteAlerts
	}

	var analysisHistory storage.AnalysisHistoryStorage
	sqliteAnalysis, err := storage.NewSQLiteAnalysisHistory(logger, cfg.HistoryDBPath)
	if err != nil {
		logger.Warn("Analysis history unavailable", zap.Error(err))
	} else {
		defer sqliteAnalysis.Close()
		analysisHistory = sqliteAnalysis
	}

	// Notification channels.
	var sinks []notify.Sink
	if cfg.SMTPEnabled {
		sinks = append(sinks, notify.NewEmailSink(notify.EmailConfig{
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			Username:   cfg.SMTPUsername,
			Password:   cfg.SMTPPassword,
			From:       cfg.SMTPFrom,
			Recipients: cfg.SMTPRecipients,
		}))
	}
	if cfg.NATSEnabled {
		nc, err := nats.Connect(cfg.NATSURL,
			nats.Timeout(5*time.Second),
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(-1))
		if err != nil {
			logger.Warn("NATS unavailable, alerts will not be published", zap.Error(err))
		} else {
			defer nc.Close()
			sinks = append(sinks, notify.NewNATSSink(nc))
		}
	}
	sink := notify.NewMulti(logger, sinks...)

	var engine *alert.Engine
	if alertHistory != nil {
		engine = alert.NewEngine(alert.Config{
			ErrorRateThreshold:    cfg.ErrorRateThreshold,
			CriticalRateThreshold: cfg.CriticalRateThreshold,
			FrequentCount:         cfg.FrequentCount,
			BurstCount:            cfg.BurstCount,
			BurstWindow:           cfg.BurstWindow,
			Cooldown:              cfg.AlertCooldown,
			TopErrorsLimit:        cfg.TopErrorsLimit,
		}, alertHistory, sink, logger)
	}

	loader := ingest.NewLoader(logger, store, analysisHistory, cfg.RawDir)

	// Initial load. A missing or empty raw directory is not fatal.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if result, err := loader.Refresh(ctx); err != nil {
		logger.Warn("Initial load failed", zap.Error(err))
	} else if !result.Reused {
		logger.Info("Initial load complete",
			zap.Int("files", len(result.Files)),
			zap.Int("events", result.Events))
	}

	// HTTP API.
	if cfg.APIEnabled {
		var checker httpserver.AlertChecker
		if engine != nil {
			checker = engine
		}
		apiServer := httpserver.NewServer(cfg.APIAddr, logger, store, checker, alertHistory, loader)
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
		logger.Info("HTTP API listening", zap.String("addr", cfg.APIAddr))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now — not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		os.Exit(1)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
	}

	signal.Stop(sigCh)
	return nil
}
