package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/loglens/internal/analysis"
	"github.com/JonMunkholm/loglens/internal/config"
	"github.com/JonMunkholm/loglens/internal/core"
	"github.com/JonMunkholm/loglens/internal/events"
	"github.com/JonMunkholm/loglens/internal/ingest"
	"github.com/JonMunkholm/loglens/internal/logging"
	"github.com/JonMunkholm/loglens/internal/metrics"
	"github.com/JonMunkholm/loglens/internal/report"
	"github.com/JonMunkholm/loglens/internal/schema"
	"github.com/JonMunkholm/loglens/internal/store"
	"github.com/JonMunkholm/loglens/internal/upload"
	"github.com/JonMunkholm/loglens/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()

	classifier, err := newClassifier(cfg.Schema)
	if err != nil {
		logger.Error("failed to load schema signatures", "error", err)
		os.Exit(1)
	}

	analyzer, err := newAnalyzer(cfg.Analysis)
	if err != nil {
		logger.Error("failed to create analyzer", "error", err)
		os.Exit(1)
	}
	if cfg.Analysis.BaseURL == "" {
		logger.Warn("ANALYSIS_BASE_URL not set, results are generated locally")
	}

	results, closeStore, err := newStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open result store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	var publisher events.Publisher = events.Nop{}
	if cfg.Events.NATSURL != "" {
		nc, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.Subject, logger)
		if err != nil {
			logger.Error("failed to connect event publisher", "error", err)
			os.Exit(1)
		}
		publisher = nc
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("event publisher close", "error", err)
		}
	}()

	exporter, err := report.NewExporter(cfg.Export.CacheSize, logger)
	if err != nil {
		logger.Error("failed to create exporter", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	limiter := upload.NewLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime)

	sessions, err := upload.NewSessions(upload.Deps{
		Decoder:    ingest.NewDecoder(cfg.Upload.MaxFileSize),
		Classifier: classifier,
		Analyzer:   analyzer,
		Store:      results,
		Publisher:  publisher,
		Limiter:    limiter,
		Metrics:    m,
		Logger:     logger,
	}, cfg.Upload.SessionTTL)
	if err != nil {
		logger.Error("failed to create upload sessions", "error", err)
		os.Exit(1)
	}

	server, err := web.NewServer(web.Deps{
		Sessions:   sessions,
		Store:      results,
		Exporter:   exporter,
		Classifier: classifier,
		Limiter:    limiter,
		Metrics:    m,
		Logger:     logger,
	}, cfg)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Background jobs stop on shutdown.
	jobCtx, cancelJobs := context.WithCancel(ctx)
	go sessions.Run(jobCtx, 0)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let in-flight submissions finish so their results are stored.
		if status := limiter.Status(); status.Active > 0 {
			logger.Info("waiting for submissions to complete", "active", status.Active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				logger.Warn("submissions did not complete in time", "error", err)
			} else {
				logger.Info("all submissions completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// newClassifier uses SCHEMA_SIGNATURES_FILE when set and the built-in
// table otherwise.
func newClassifier(cfg config.SchemaConfig) (*schema.Classifier, error) {
	if cfg.SignaturesFile == "" {
		return schema.NewClassifier()
	}
	sigs, err := schema.LoadSignatures(cfg.SignaturesFile)
	if err != nil {
		return nil, err
	}
	return schema.NewClassifier(sigs...)
}

// newAnalyzer applies ANALYSIS_ROUTES on top of the default route table.
func newAnalyzer(cfg config.AnalysisConfig) (analysis.Analyzer, error) {
	overrides, err := cfg.RouteOverrides()
	if err != nil {
		return nil, err
	}

	routes := analysis.DefaultRoutes()
	for name, path := range overrides {
		label, err := core.ParseLabel(name)
		if err != nil || !label.Resolved() {
			return nil, fmt.Errorf("ANALYSIS_ROUTES: %q is not a log type", name)
		}
		routes[label] = path
	}

	return analysis.New(analysis.Config{
		BaseURL:         cfg.BaseURL,
		Routes:          routes,
		Timeout:         cfg.Timeout,
		MaxPayloadBytes: cfg.MaxPayloadBytes,
	})
}

// newStore opens the configured result store and returns its closer.
func newStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.ResultStore, func(), error) {
	if !cfg.Store.UsePostgres() {
		logger.Info("results kept in memory")
		return store.NewMemory(), func() {}, nil
	}

	pg, pool, err := store.OpenPostgres(ctx, store.PoolConfig{
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("connected to database", "max_conns", cfg.Database.MaxConns)
	return pg, pool.Close, nil
}
