package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/badgeteam/badgehub/migrations"
	"github.com/badgeteam/badgehub/pkg/badgehub"
	"github.com/badgeteam/badgehub/pkg/badgehub/api"
	"github.com/badgeteam/badgehub/pkg/badgehub/config"
)

type envConfig struct {
	Port            string        `env:"PORT" env-default:"8080"`
	Environment     string        `env:"ENVIRONMENT" env-default:"development"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	StorageURL      string        `env:"STORAGE_URL"`
	JWTSecret       string        `env:"JWT_SECRET"`
	RefreshInterval time.Duration `env:"INSTALL_COUNT_REFRESH_INTERVAL"`
}

func main() {
	var env envConfig
	if err := cleanenv.ReadEnv(&env); err != nil {
		log.Fatalf("Failed to read environment: %v", err)
	}

	cfg, err := config.Load(
		config.WithPort(env.Port),
		config.WithEnvironment(env.Environment),
		config.WithDatabaseURL(env.DatabaseURL),
		config.WithStorageURL(env.StorageURL),
		config.WithJWTSecret(env.JWTSecret),
		config.WithRefreshInterval(env.RefreshInterval),
	)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.UsesPostgres() {
		if err := config.PingPostgres(ctx, cfg.DatabaseURL); err != nil {
			log.Fatalf("Database not reachable: %v", err)
		}
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		slog.Info("Database migrations applied")
	}

	svc, err := cfg.BuildService(ctx)
	if err != nil {
		log.Fatalf("Failed to build service: %v", err)
	}

	secret := cfg.JWTSecret
	if secret == "" {
		// Development fallback so the private routes work out of the box.
		secret = "badgehub-development-secret"
		slog.Warn("JWT_SECRET not set, using development secret")
	}
	router := api.NewRouter(svc, api.NewTokenAuth(secret))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	go refreshInstallCounts(ctx, svc, cfg.InstallCountRefreshInterval)

	go func() {
		slog.Info("Server starting", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	slog.Info("Server exiting")
}

// refreshInstallCounts rebuilds the install-count aggregate on a fixed
// cadence until the context is cancelled.
func refreshInstallCounts(ctx context.Context, svc badgehub.Service, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.RefreshInstallCounts(ctx); err != nil {
				slog.Error("Failed to refresh install counts", "error", err)
				continue
			}
			slog.Debug("Install counts refreshed")
		}
	}
}

func runMigrations(databaseURL string) error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to load migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
