package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/safar/qr-stock/internal/auth"
	"github.com/safar/qr-stock/internal/cache"
	"github.com/safar/qr-stock/internal/catalog"
	"github.com/safar/qr-stock/internal/config"
	"github.com/safar/qr-stock/internal/database"
	"github.com/safar/qr-stock/internal/httpapi"
	"github.com/safar/qr-stock/internal/qr"
	"github.com/safar/qr-stock/internal/store"
	"github.com/safar/qr-stock/internal/store/memory"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// repository is what both the catalog and the auth service need from a store.
type repository interface {
	catalog.Repository
	auth.UserRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		repo   repository
		health func(context.Context) error
	)
	switch cfg.StoreDriver {
	case "memory":
		repo = memory.New()
		logger.Warn("using in-memory store, data is lost on restart")
	default:
		db, err := database.NewConnection(&cfg.Database)
		if err != nil {
			logger.Fatal("connect to database", zap.Error(err))
		}
		defer db.Close()
		repo = store.NewPostgres(db)
		health = pingDB(db)
		logger.Info("connected to database")
	}

	catalogOpts := []catalog.Option{
		catalog.WithLogger(logger.Named("catalog")),
		catalog.WithTimeout(cfg.Database.QueryTimeout),
	}
	if cfg.Redis.Addr != "" {
		client, err := cache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("connect to redis", zap.Error(err))
		}
		defer client.Close()
		catalogOpts = append(catalogOpts, catalog.WithUploadGuard(cache.NewUploadGuard(client, cfg.Redis.DedupTTL)))
		logger.Info("upload de-duplication enabled", zap.Duration("ttl", cfg.Redis.DedupTTL))
	}

	engine, err := qr.New(cfg.QR.BaseURL, qr.WithSize(cfg.QR.Size))
	if err != nil {
		logger.Fatal("build qr engine", zap.Error(err))
	}

	tokens, err := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Fatal("build token manager", zap.Error(err))
	}

	authSvc := auth.NewService(repo, tokens, auth.WithRoleSignup(cfg.Auth.AllowRoleSignup))
	catalogSvc := catalog.New(repo, engine, catalogOpts...)

	serverOpts := []httpapi.Option{httpapi.WithLogger(logger.Named("http"))}
	if health != nil {
		serverOpts = append(serverOpts, httpapi.WithHealthCheck(health))
	}
	api := httpapi.New(catalogSvc, authSvc, httpapi.Config{
		UploadDir:      cfg.Upload.Dir,
		MaxUploadBytes: cfg.Upload.MaxBytes,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, serverOpts...)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorLog:     zap.NewStdLog(logger),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func pingDB(db *sql.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return db.PingContext(ctx)
	}
}
