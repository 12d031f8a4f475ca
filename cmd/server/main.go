package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mgorbach/review-assignment-service/internal/api"
	"github.com/mgorbach/review-assignment-service/internal/config"
	"github.com/mgorbach/review-assignment-service/internal/service"
	"github.com/mgorbach/review-assignment-service/internal/store"
	"github.com/mgorbach/review-assignment-service/internal/store/memory"
)

func main() {
	// Local development convenience. Missing .env is fine.
	_ = godotenv.Load()

	cfg := loadConfig()

	logger := mustMakeLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting review assignment service",
		zap.String("address", cfg.HTTP.Address),
		zap.String("storage", cfg.StorageType),
		zap.Bool("reset_enabled", cfg.EnableReset))

	var repo store.Repository
	switch cfg.StorageType {
	case config.StorageMemory:
		repo = memory.New(logger)
	case config.StoragePostgres:
		db, err := connectDBWithRetry(cfg.DB, logger)
		if err != nil {
			logger.Fatal("database connection failed", zap.Error(err))
		}
		defer db.Close()

		if err := runMigrations(db, cfg.DB.MigrationsDir); err != nil {
			logger.Fatal("migrations failed", zap.Error(err))
		}
		logger.Info("migrations applied")

		repo = store.NewRepositories(db, logger)
	default:
		logger.Fatal("unknown storage type", zap.String("storage", cfg.StorageType))
	}

	svc := service.NewService(repo, logger)
	handler := api.NewHandler(svc, logger, cfg.EnableReset)

	r := chi.NewRouter()
	r.Use(api.RequestIDMiddleware)
	r.Use(api.LoggerMiddleware(logger))
	r.Use(api.Recoverer(logger))
	api.RegisterRoutes(r, handler)

	srv := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("address", cfg.HTTP.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Fatal("server error", zap.Error(err))
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("server stopped")
}

// loadConfig prefers a YAML file pointed at by CONFIG_PATH and falls back to
// environment variables when the file is absent.
func loadConfig() config.Config {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if _, err := os.Stat(path); err == nil {
			return config.MustLoad(path)
		}
		log.Printf("config file %q not found, using environment", path)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("cannot read config from environment: %s", err)
	}
	return cfg
}

func mustMakeLogger(logLevel string) *zap.Logger {
	level, err := zapcore.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("invalid LOG_LEVEL %q: %s", logLevel, err)
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := zapCfg.Build()
	if err != nil {
		log.Fatalf("cannot build logger: %s", err)
	}
	return logger
}

func connectDBWithRetry(cfg config.DBConfig, logger *zap.Logger) (*sql.DB, error) {
	var lastErr error
	for attempt := 1; attempt <= cfg.ConnectRetries; attempt++ {
		db, err := sql.Open("postgres", cfg.URL)
		if err != nil {
			lastErr = err
		} else if err = db.Ping(); err == nil {
			return db, nil
		} else {
			lastErr = err
			db.Close()
		}
		logger.Warn("database not ready, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.ConnectRetries),
			zap.Error(lastErr))
		time.Sleep(cfg.ConnectBackoff)
	}
	return nil, fmt.Errorf("database unreachable after %d attempts: %w", cfg.ConnectRetries, lastErr)
}

func runMigrations(db *sql.DB, migrationsDir string) error {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("create migrate driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsDir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
