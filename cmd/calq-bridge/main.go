package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"calqbridge/internal/database"
	"calqbridge/internal/logger"
	"calqbridge/internal/services/bridge"
	"calqbridge/internal/services/native"
)

func main() {
	ctx := context.Background()
	appLogger := logger.New("calq-bridge")

	bridgeConfig := bridge.LoadConfig()
	nativeConfig := native.LoadConfig()

	store, pool, err := openStore(ctx, appLogger)
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}
	if pool != nil {
		defer pool.Close()
	}

	client := native.NewClient(nativeConfig, store, appLogger.Named("native"))
	dispatcher := bridge.NewDispatcher(client, appLogger.Named("dispatcher"))
	server := bridge.NewServer(dispatcher, appLogger.Named("server"))

	appLogger.Infof("PostHog host: %s", nativeConfig.PostHogHost)

	go func() {
		if err := server.Start(bridgeConfig.ListenAddr); err != nil {
			log.Fatalf("Failed to start bridge server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down bridge...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Errorf("Failed to shutdown bridge server gracefully: %v", err)
	}
	if err := client.Close(); err != nil {
		appLogger.Errorf("Failed to close native client: %v", err)
	}

	appLogger.Info("Bridge stopped")
}

// openStore picks the session store from CALQ_SESSION_STORE ("memory" or "postgres").
// CALQ_DATABASE_URL takes precedence over the CALQ_DB_* settings.
func openStore(ctx context.Context, log *logger.Logger) (native.SessionStore, *pgxpool.Pool, error) {
	if os.Getenv("CALQ_SESSION_STORE") != "postgres" {
		log.Info("Using in-memory session store")
		return native.NewMemoryStore(), nil, nil
	}

	var (
		pool *pgxpool.Pool
		err  error
	)
	if dsn := os.Getenv("CALQ_DATABASE_URL"); dsn != "" {
		pool, err = database.NewPoolFromDSN(ctx, dsn)
	} else {
		pool, err = database.NewPool(ctx, database.LoadConfig())
	}
	if err != nil {
		return nil, nil, err
	}

	store := native.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	log.Info("Using PostgreSQL session store")
	return store, pool, nil
}
