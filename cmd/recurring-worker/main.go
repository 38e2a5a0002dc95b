package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ricorrenti/internal/amqp"
	"ricorrenti/internal/cli"
	apphttp "ricorrenti/internal/http"
	applog "ricorrenti/internal/log"
	"ricorrenti/internal/seed"
	"ricorrenti/internal/services"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	logger := cli.SetupLogger(applog.ComponentScheduler)
	logger.Info("Starting recurring-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	if cfg.SeedFile != "" {
		f, err := seed.LoadFile(cfg.SeedFile)
		if err != nil {
			cli.Fatal(logger, "Failed to load seed file", err, "path", cfg.SeedFile)
		}
		res, err := seed.Apply(context.Background(), repo, f)
		if err != nil {
			cli.Fatal(logger, "Failed to apply seed file", err, "path", cfg.SeedFile)
		}
		logger.Info("Seed applied",
			"wallets_created", res.WalletsCreated,
			"rules_created", res.RulesCreated,
			"rules_skipped", res.RulesSkipped)
	}

	// Occurrences are announced on AMQP for the sync-worker, which exports
	// them to Google Sheets.
	var publisher services.OccurrencePublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing in SQLite-only mode", "error", err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
			logger.Info("AMQP client initialized - occurrences will sync via sync-worker")
		}
	} else {
		logger.Info("AMQP disabled - occurrences will not sync to Google Sheets")
	}

	clock := services.SystemClock{}
	occurrences := services.NewOccurrenceService(repo, repo, repo, publisher)
	processor := services.NewRecurringProcessor(repo, occurrences, services.RecurringProcessorConfig{
		Concurrency: cfg.Concurrency,
	})
	scheduler := services.NewRecurringScheduler(processor, clock, services.RecurringSchedulerConfig{
		Interval:   cfg.ProcessorInterval,
		RunOnStart: true,
	})

	var server *apphttp.Server
	if cfg.Port != "" {
		server = apphttp.NewServer(":"+cfg.Port, apphttp.NewHandler(apphttp.Deps{
			Rules:       repo,
			Runner:      processor,
			Occurrences: occurrences,
			Clock:       clock,
			Pinger:      repo,
		}), logger)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if server != nil {
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown failed", "error", err)
			}
		}
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Error("Scheduler stop failed", "error", err)
		}
	})

	logger.Info("Recurring processor configured",
		"interval", cfg.ProcessorInterval,
		"concurrency", cfg.Concurrency,
		"sqlite_db", cfg.SQLiteDBPath)

	if err := scheduler.Start(ctx); err != nil {
		cli.Fatal(logger, "Failed to start scheduler", err)
	}

	if server != nil {
		go func() {
			logger.Info("HTTP API listening", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server failed", "error", err)
			}
		}()
	}

	cli.WaitForShutdown(ctx, done)
}
