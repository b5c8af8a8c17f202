// cmd/api/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-cart/internal/config"
	"github.com/your-org/storefront-cart/internal/domain/cart"
	"github.com/your-org/storefront-cart/internal/infrastructure/database/postgres"
	"github.com/your-org/storefront-cart/internal/infrastructure/database/redis"
	"github.com/your-org/storefront-cart/internal/interfaces/http"
	"github.com/your-org/storefront-cart/internal/interfaces/http/handlers"
	"github.com/your-org/storefront-cart/internal/pkg/logger"
)

const purgeInterval = time.Hour

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	log := logger.New(cfg)
	log.WithFields(logrus.Fields{
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
		"driver":      cfg.Cart.Driver,
	}).Infof("Starting %s", cfg.App.Name)

	// Redis carries pub/sub and rate limiting for every driver
	redisClient, err := redis.NewConnection(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	checks := map[string]http.HealthChecker{"redis": redisClient}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store cart.KeyValueStore = redisClient
	if cfg.Cart.Driver == config.DriverPostgres {
		db, err := postgres.NewConnection(cfg, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to database")
		}
		defer db.Close()

		migration := postgres.NewMigration(db.GetDB(), log)
		if err := migration.RunAutoMigrations(); err != nil {
			log.WithError(err).Fatal("Database migration failed")
		}
		if err := migration.CreateIndexes(); err != nil {
			log.WithError(err).Warn("Index creation failed")
		}

		kv := postgres.NewKVStore(db.GetDB())
		go purgeExpired(ctx, kv, log)

		store = kv
		checks["postgres"] = db
	}

	cartService := cart.NewService(store, redisClient, cfg, log)
	cartHandler := handlers.NewCartHandler(cartService, redisClient, log)
	server := http.NewServer(cfg, cartHandler, redisClient.GetClient(), checks, log)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("Failed to shutdown HTTP server gracefully")
	}

	log.Info("Server shutdown completed")
}

// purgeExpired deletes expired cart rows, which Postgres does not do on its own
func purgeExpired(ctx context.Context, kv *postgres.KVStore, log *logrus.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		n, err := kv.PurgeExpired(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			log.WithError(err).Warn("Failed to purge expired carts")
		case n > 0:
			log.WithField("count", n).Info("Purged expired carts")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
