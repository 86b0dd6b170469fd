// Package main is the maintenance daemon for the rental-and-sales core. It
// applies schema migrations, then runs the scheduled background jobs: ledger
// retention (archive to object storage, purge) and the stock alert sweep.
//
// The transactional services themselves are consumed as a library by the
// surrounding application; this binary only hosts the cron-driven upkeep.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/robfig/cron/v3"

	"github.com/openrentals/core/internal/config"
	"github.com/openrentals/core/internal/database"
	"github.com/openrentals/core/internal/domain"
	"github.com/openrentals/core/internal/modules/catalog"
	"github.com/openrentals/core/internal/modules/inventory"
	"github.com/openrentals/core/internal/modules/ledger"
	"github.com/openrentals/core/internal/modules/sku"
	"github.com/openrentals/core/internal/modules/transactions"
	"github.com/openrentals/core/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting maintenance daemon")

	db, err := database.New(database.Config{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		Name:            "core",
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	catalogRepo := catalog.NewRepository(log)
	skuService := sku.NewService(db, sku.NewRepository(log), log)
	inventoryService := inventory.NewService(
		db,
		inventory.NewStockRepository(log),
		inventory.NewUnitRepository(log),
		inventory.NewMovementRepository(log),
		catalogRepo,
		skuService,
		log,
	)
	inventoryService.MaintenanceHorizonDays = cfg.Alerts.MaintenanceHorizonDays

	scheduler := cron.New()

	if cfg.Archive.Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Archive.Region))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load AWS configuration")
		}
		store := ledger.NewS3Archive(awsCfg, ledger.S3ArchiveConfig{
			Bucket:   cfg.Archive.Bucket,
			Prefix:   cfg.Archive.Prefix,
			Endpoint: cfg.Archive.Endpoint,
		}, log)

		policy := ledger.DefaultRetentionPolicy()
		policy.MovementRetentionDays = cfg.Retention.MovementRetentionDays
		policy.BatchSize = cfg.Retention.BatchSize
		policy.EventRetentionDays[domain.EventCategoryError] = cfg.Retention.ErrorEventDays

		retentionJob := ledger.NewRetentionJob(
			db,
			inventory.NewMovementRepository(log),
			transactions.NewRepository(log),
			store,
			policy,
			log,
		)
		_, err = scheduler.AddFunc(cfg.Retention.Schedule, func() {
			if err := retentionJob.Run(); err != nil {
				log.Error().Err(err).Msg("Retention run failed")
			}
		})
		if err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.Retention.Schedule).
				Msg("Failed to schedule retention job")
		}
		log.Info().Str("schedule", cfg.Retention.Schedule).
			Str("bucket", cfg.Archive.Bucket).
			Msg("Ledger retention scheduled")
	} else {
		log.Warn().Msg("No archive bucket configured; ledger retention disabled")
	}

	_, err = scheduler.AddFunc(cfg.Alerts.Schedule, func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		alerts, err := inventoryService.CollectAlerts(sweepCtx, nil)
		if err != nil {
			log.Error().Err(err).Msg("Alert sweep failed")
			return
		}
		log.Info().
			Int("low_stock", len(alerts.LowStock)).
			Int("maintenance_due", len(alerts.MaintenanceDue)).
			Int("warranty_expiring", len(alerts.WarrantyExpiring)).
			Msg("Stock alert sweep completed")
	})
	if err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Alerts.Schedule).
			Msg("Failed to schedule alert sweep")
	}

	scheduler.Start()
	log.Info().Msg("Maintenance daemon started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	log.Info().Msg("Maintenance daemon stopped")
}
