package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/emanuelmabtis/meu-crm/internal/app"
	"github.com/emanuelmabtis/meu-crm/internal/cache"
	"github.com/emanuelmabtis/meu-crm/internal/config"
	"github.com/emanuelmabtis/meu-crm/internal/export"
	"github.com/emanuelmabtis/meu-crm/internal/search"
	"github.com/emanuelmabtis/meu-crm/internal/store"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	dialect := store.DialectFor(cfg.DatabaseURL)
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	migrations, err := store.Migrations(cfg.MigrationsDir)
	if err != nil {
		logger.Fatal("migrations unavailable", zap.Error(err))
	}
	if err := store.ApplyMigrations(ctx, db, dialect, migrations); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	dataStore := store.NewSQLStore(db, dialect)
	var deps app.Deps

	if strings.TrimSpace(cfg.RedisURL) != "" {
		boardCache, err := cache.NewBoardCache(cfg.RedisURL, cfg.BoardCacheTTL)
		if err != nil {
			logger.Warn("board cache disabled", zap.Error(err))
		} else {
			logger.Info("using redis board cache", zap.Duration("ttl", cfg.BoardCacheTTL))
			defer boardCache.Close()
			deps.Cache = boardCache
		}
	}

	if strings.TrimSpace(cfg.MeiliURL) != "" {
		deps.Meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger.Named("meili"))
		defer deps.Meili.Close()
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		archiveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		archive, err := export.NewArchive(archiveCtx, export.ArchiveConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		cancel()
		if err != nil {
			logger.Warn("report archive disabled", zap.Error(err))
		} else {
			logger.Info("archiving reports", zap.String("bucket", cfg.MinioBucket))
			deps.Archive = archive
		}
	}

	service := app.New(cfg, dataStore, logger, deps)
	if err := service.Bootstrap(ctx); err != nil {
		logger.Warn("bootstrap error (will retry on next restart)", zap.Error(err))
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger.Named("http"))
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("CRM API listening", zap.String("addr", cfg.Addr), zap.String("dialect", string(dialect)))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
