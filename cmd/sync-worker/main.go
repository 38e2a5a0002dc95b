package main

import (
	"context"
	"errors"
	"time"

	"ricorrenti/internal/amqp"
	"ricorrenti/internal/cache"
	"ricorrenti/internal/cli"
	applog "ricorrenti/internal/log"
	gsheet "ricorrenti/internal/sheets/google"
	"ricorrenti/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting sync-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		cli.Fatal(logger, "sync-worker needs AMQP", errors.New("AMQP_URL is not set"))
	}
	if cfg.GoogleSpreadsheetID == "" {
		cli.Fatal(logger, "sync-worker needs Google Sheets", errors.New("GOOGLE_SPREADSHEET_ID is not set"))
	}

	// SQLite tracks which occurrences still need exporting
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	sheetsClient, err := gsheet.New(context.Background(), cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize Google Sheets client", err)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize AMQP client", err)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(repo, sheetsClient, cfg.SyncBatchSize)

	cacheManager := cache.NewManager()
	for _, c := range syncWorker.Caches() {
		cacheManager.Register(c)
	}
	cacheManager.StartCleanup(5 * time.Minute)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		cacheManager.Stop()
	})

	if err := sheetsClient.EnsureHeader(ctx); err != nil {
		logger.Error("Failed to ensure sheet header", "error", err)
	}

	// Process any pending occurrences that might have been missed
	logger.Info("Performing startup sync check...")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", "error", err)
	}

	go func() {
		err := amqpClient.ConsumeOccurrenceCreated(ctx, syncWorker.HandleOccurrenceMessage)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
