package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"conto/internal/account"
	"conto/internal/amqp"
	"conto/internal/config"
	"conto/internal/core"
	"conto/internal/expense"
	apphttp "conto/internal/http"
	applog "conto/internal/log"
	"conto/internal/storage"
)

func main() {
	// Load .env for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.Setup("conto")

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

	sessions := account.NewJWTIssuer(cfg.JWTSecret, cfg.SessionTTL, core.SystemClock{})
	hasher := account.NewBcryptHasher(cfg.BcryptCost)

	// Account backend: SQLite by default, in-memory for throwaway setups.
	var accounts account.Store
	switch cfg.AccountBackend {
	case "memory":
		accounts = account.NewMemoryStore()
		logger.Info("Using in-memory account store", "backend", cfg.AccountBackend)
	default:
		accounts = repo
		logger.Info("Using SQLite account store", "backend", cfg.AccountBackend)
	}
	engine := account.NewEngine(accounts, sessions, hasher, core.SystemClock{})

	// Publishing is best-effort: a down broker never blocks expense entry,
	// the worker's periodic scan covers the gap.
	var publisher expense.Publisher
	if cfg.AMQPURL != "" {
		client := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		defer client.Close()
		publisher = client
	} else {
		logger.Info("AMQP disabled, expenses rely on the periodic sync scan")
	}
	expenses := expense.NewService(repo, publisher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := apphttp.NewServer(ctx, ":"+cfg.Port, apphttp.Deps{
		Engine:     engine,
		Sessions:   sessions,
		Expenses:   expenses,
		Dashboard:  repo,
		Categories: repo,
	})
	if err != nil {
		logger.Error("Failed to initialize HTTP server", "error", err)
		os.Exit(1)
	}

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	srv.StartJanitor(ctx, time.Minute)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting conto server", "port", cfg.Port, "account_backend", cfg.AccountBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
