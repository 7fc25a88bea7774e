package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"signal-core/internal/api"
	"signal-core/internal/engine"
	"signal-core/internal/events"
	"signal-core/internal/ledger"
	"signal-core/internal/market"
	"signal-core/internal/monitor"
	"signal-core/internal/persistence"
	"signal-core/internal/risk"
	"signal-core/pkg/config"
	"signal-core/pkg/db"
	"signal-core/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "signal-core: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("🚀 starting signal core",
		zap.Strings("symbols", cfg.Symbols),
		zap.String("source", cfg.DataSource),
		zap.String("fast", cfg.FastInterval),
		zap.String("slow", cfg.SlowInterval),
		zap.Duration("eval_interval", cfg.EvalInterval))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Storage
	database, err := db.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	log.Info("💾 database ready", zap.String("path", cfg.DBPath))

	// Core services
	bus := events.NewBus()
	metrics := monitor.NewSystemMetrics()

	book, err := ledger.New(ledger.Config{
		StartingBalance: cfg.StartingBalance,
		MaxPositions:    cfg.MaxPositions,
		MarginRate:      cfg.MarginRate,
	}, ledger.WithBus(bus), ledger.WithLogger(log))
	if err != nil {
		return fmt.Errorf("init ledger: %w", err)
	}

	writer := persistence.NewBatchWriter(database.DB, log, 100, time.Second)
	recorder := &persistence.Recorder{Bus: bus, Writer: writer, Log: log}
	restored, err := persistence.RestoreLedger(ctx, database, book, recorder)
	if err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}
	if restored {
		sum := book.Summary()
		log.Info("♻️ ledger restored",
			zap.Int("open_positions", sum.ActivePositions),
			zap.Int("total_trades", sum.TotalTrades),
			zap.Float64("total_value", sum.TotalValue))
	}
	recorderDone := recorder.Start(ctx)

	rules := &monitor.RuleEvaluator{DrawdownAlertPct: cfg.DrawdownAlertPct}
	if restored {
		rules.Seed(book.Snapshot())
	}

	riskMgr, err := risk.NewManager(risk.Config{
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		RiskPerTrade:        cfg.RiskPerTrade,
		MarginRate:          cfg.MarginRate,
		MaxPositions:        cfg.MaxPositions,
		ATRFallback:         risk.DefaultConfig().ATRFallback,
	}, log)
	if err != nil {
		return fmt.Errorf("init risk manager: %w", err)
	}

	provider, err := market.NewFromConfig(cfg, log)
	if err != nil {
		return fmt.Errorf("init price provider: %w", err)
	}

	version := os.Getenv("APP_VERSION")
	if version == "" {
		version = "v1.0-dev"
	}
	svc, err := engine.NewImpl(engine.Config{
		Symbols:      cfg.Symbols,
		FastInterval: cfg.FastInterval,
		SlowInterval: cfg.SlowInterval,
		HistoryBars:  cfg.HistoryBars,
		FetchTimeout: cfg.FetchTimeout,
		Workers:      cfg.EvalWorkers,
		Provider:     provider,
		RiskMgr:      riskMgr,
		Ledger:       book,
		Bus:          bus,
		Metrics:      metrics,
		Log:          log,
		Meta: engine.SystemStatus{
			Mode:         "paper",
			DataSource:   cfg.DataSource,
			Symbols:      cfg.Symbols,
			FastInterval: cfg.FastInterval,
			SlowInterval: cfg.SlowInterval,
			EvalInterval: cfg.EvalInterval.String(),
			Version:      version,
		},
	})
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}

	mon := &monitor.Monitor{
		Bus:   bus,
		Sinks: []monitor.AlertSink{monitor.LogSink{Log: log}},
		Rules: rules,
		Log:   log,
	}
	mon.Start(ctx)

	// API
	var httpServer *http.Server
	if cfg.EnableAPI {
		server := api.NewServer(bus, database, svc, metrics, log, api.Options{
			RateLimit: cfg.APIRateLimit,
			Burst:     cfg.APIBurst,
		})
		httpServer = &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           server.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info("🌐 api listening", zap.String("addr", httpServer.Addr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("api server error", zap.Error(err))
				cancel()
			}
		}()
	}

	scheduler := engine.NewScheduler(svc, cfg.EvalInterval, log)
	scheduler.Start(ctx)

	<-ctx.Done()
	log.Info("🛑 shutting down")

	if httpServer != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("api shutdown", zap.Error(err))
		}
		stop()
	}
	scheduler.Wait()

	<-recorderDone
	// Persist the final state even if no cycle ran since the last snapshot.
	recorder.Record(book.Snapshot())
	if err := writer.Close(); err != nil {
		log.Warn("flush on shutdown", zap.Error(err))
	}

	stats := metrics.GetSnapshot()
	writes := writer.GetMetrics()
	log.Info("👋 stopped",
		zap.Uint64("cycles", stats.Cycles),
		zap.Uint64("positions_opened", stats.PositionsOpened),
		zap.Uint64("db_batches", writes.TotalBatches),
		zap.Uint64("db_errors", writes.TotalErrors))
	return nil
}
