package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"conto/internal/amqp"
	"conto/internal/config"
	"conto/internal/ledger"
	gledger "conto/internal/ledger/google"
	memledger "conto/internal/ledger/memory"
	applog "conto/internal/log"
	"conto/internal/storage"
	"conto/internal/worker"
)

func main() {
	// Load .env for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.Setup("conto-worker")
	logger.Info("Starting conto-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ledger destination: Google Sheets when configured, otherwise an
	// in-memory sink so the pending queue still drains during local runs.
	var appender ledger.Appender
	if cfg.LedgerSpreadsheetID != "" {
		client, err := gledger.New(ctx, gledger.Config{
			SpreadsheetID:   cfg.LedgerSpreadsheetID,
			SheetName:       cfg.LedgerSheetName,
			CredentialsFile: cfg.LedgerCredentialsFile,
			CredentialsJSON: cfg.LedgerCredentialsJSON,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets ledger", "error", err)
			os.Exit(1)
		}
		appender = client
		logger.Info("Google Sheets ledger initialized", "spreadsheet_id", cfg.LedgerSpreadsheetID, "sheet", cfg.LedgerSheetName)
	} else {
		appender = memledger.New()
		logger.Info("No spreadsheet configured, exporting to the in-memory ledger")
	}

	amqpClient := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(repo, appender, cfg.SyncBatchSize)

	// Catch up on records whose messages were lost while the worker was down.
	logger.Info("Performing startup sync check...")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", "error", err)
		// Don't exit, normal operation can still proceed
	}

	done := make(chan error, 1)
	go func() {
		done <- syncWorker.Run(ctx, amqpClient, cfg.SyncInterval)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
		// Give in-flight exports a moment to finish.
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			logger.Warn("Shutdown timeout reached")
		}
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Worker stopped", "error", err)
			os.Exit(1)
		}
	}
	logger.Info("Worker shutdown complete")
}
