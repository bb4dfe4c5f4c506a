package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/poflow/internal/config"
	"github.com/JonMunkholm/poflow/internal/core"
	"github.com/JonMunkholm/poflow/internal/lock"
	"github.com/JonMunkholm/poflow/internal/logging"
	"github.com/JonMunkholm/poflow/internal/metrics"
	"github.com/JonMunkholm/poflow/internal/store"
	"github.com/JonMunkholm/poflow/internal/web"
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

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}

	if cfg.Database.Migrate {
		if err := store.Migrate(ctx, pool); err != nil {
			slog.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		slog.Info("schema applied")
	}

	// Redis is optional; without it PDF cleanup is only serialised within
	// this process.
	var locker core.Locker
	if cfg.Redis.URL != "" {
		rdb, rl, err := lock.Open(ctx, cfg.Redis.URL, cfg.Redis.LockTTL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		locker = rl
		slog.Info("redis locking enabled")
	}

	var pdf *core.PDFStore
	if cfg.PDF.Enabled {
		temp, archive, orders := cfg.PDF.PDFDirs()
		pdf = core.NewPDFStore(core.PDFDirs{Temp: temp, Archive: archive, Orders: orders}, locker)
		if err := pdf.Init(); err != nil {
			slog.Error("failed to create pdf directories", "error", err)
			os.Exit(1)
		}
	}

	m := metrics.New()
	service, err := core.NewService(core.Deps{
		Registry:  store.NewVendorStore(pool),
		Orders:    store.NewOrderStore(pool),
		Workflows: store.NewWorkflowStore(pool),
		PDF:       pdf,
		Observer:  m,
	}, core.Options{
		SimilarityThreshold:  cfg.Matching.SimilarityThreshold,
		SuggestionLimit:      cfg.Matching.SuggestionLimit,
		ConfidenceThreshold:  cfg.Matching.ConfidenceThreshold,
		AmountTolerance:      cfg.Upload.Tolerance(),
		MaxConcurrentUploads: cfg.Upload.MaxConcurrent,
		UploadWait:           cfg.Upload.MaxWaitTime,
		SessionTTL:           cfg.Upload.SessionTTL,
		ChunkSize:            cfg.Upload.ChunkSize,
		MaxFileSize:          cfg.Upload.MaxFileSize,
	})
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}
	m.WatchUploads(service.UploadStatus)

	server := web.NewServer(service, cfg, m)

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go service.StartSessionJanitor(jobCtx, cfg.Upload.SessionTTL/2)
	if cfg.PDF.Enabled {
		go service.StartPDFMaintenance(jobCtx, cfg.PDF.MaintenanceInterval)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := service.UploadStatus(); status.Active > 0 {
			slog.Info("waiting for uploads to complete", "active", status.Active)
			if err := service.WaitForUploads(shutdownCtx); err != nil {
				slog.Warn("uploads did not complete in time", "error", err)
			} else {
				slog.Info("all uploads completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		cancelJobs()
		os.Exit(1)
	}
	<-done
}
