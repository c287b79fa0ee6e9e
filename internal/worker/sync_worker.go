// Package worker exports recorded expenses from SQLite to the configured
// ledger, driven by AMQP messages with a periodic pending-queue scan as
// backup.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"conto/internal/amqp"
	"conto/internal/ledger"
	"conto/internal/storage"
)

// ExpenseSource is the slice of the storage layer the worker needs.
type ExpenseSource interface {
	GetExpense(ctx context.Context, id int64) (storage.ExpenseRow, error)
	GetPendingSyncExpenses(ctx context.Context, limit int) ([]storage.PendingSyncExpense, error)
	MarkSynced(ctx context.Context, id int64) error
	MarkSyncError(ctx context.Context, id int64) error
}

type SyncWorker struct {
	source    ExpenseSource
	ledger    ledger.Appender
	batchSize int
}

func NewSyncWorker(source ExpenseSource, appender ledger.Appender, batchSize int) *SyncWorker {
	return &SyncWorker{
		source:    source,
		ledger:    appender,
		batchSize: batchSize,
	}
}

// Run consumes expense-recorded messages and scans the pending queue every
// interval until ctx is cancelled.
func (w *SyncWorker) Run(ctx context.Context, client *amqp.Client, interval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return client.ConsumeExpenseRecorded(ctx, func(msg *amqp.ExpenseRecordedMessage) error {
			return w.HandleSyncMessage(ctx, msg)
		})
	})

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := w.ProcessPendingExpenses(ctx); err != nil {
					slog.ErrorContext(ctx, "Pending scan failed", "error", err)
				}
			}
		}
	})

	return g.Wait()
}

// HandleSyncMessage exports the expense named by one AMQP message.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.ExpenseRecordedMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"id", msg.ID,
		"version", msg.Version)

	row, err := w.source.GetExpense(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("get expense from storage: %w", err)
	}

	if err := w.exportExpense(ctx, row); err != nil {
		return fmt.Errorf("export expense: %w", err)
	}
	return nil
}

// ProcessPendingExpenses exports expenses the AMQP path missed. Failures
// are logged per row so one bad record does not block the batch.
func (w *SyncWorker) ProcessPendingExpenses(ctx context.Context) error {
	pending, err := w.source.GetPendingSyncExpenses(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending expenses: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending expenses", "count", len(pending))

	for _, p := range pending {
		row, err := w.source.GetExpense(ctx, p.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to get expense", "id", p.ID, "error", err)
			if err := w.source.MarkSyncError(ctx, p.ID); err != nil {
				slog.ErrorContext(ctx, "Failed to mark sync error", "id", p.ID, "error", err)
			}
			continue
		}

		if err := w.exportExpense(ctx, row); err != nil {
			slog.ErrorContext(ctx, "Failed to export expense", "id", p.ID, "error", err)
			continue
		}
	}

	return nil
}

// StartupSyncCheck drains a larger pending batch once at worker startup to
// recover from missed messages or downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	pending, err := w.source.GetPendingSyncExpenses(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending expenses for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending expenses found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending expenses on startup, processing...",
		"count", len(pending))

	synced, failed := 0, 0
	for _, p := range pending {
		row, err := w.source.GetExpense(ctx, p.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to get expense for startup sync",
				"id", p.ID, "error", err)
			if err := w.source.MarkSyncError(ctx, p.ID); err != nil {
				slog.ErrorContext(ctx, "Failed to mark sync error", "id", p.ID, "error", err)
			}
			failed++
			continue
		}

		if err := w.exportExpense(ctx, row); err != nil {
			slog.ErrorContext(ctx, "Failed to export expense during startup",
				"id", p.ID, "error", err)
			failed++
			continue
		}
		synced++
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(pending),
		"synced", synced,
		"errors", failed)

	return nil
}

func (w *SyncWorker) exportExpense(ctx context.Context, row storage.ExpenseRow) error {
	ref, err := w.ledger.AppendRow(ctx, ledger.Row{
		Date:        row.Record.Date,
		Description: row.Record.Description,
		Amount:      row.Record.Amount,
		Category:    row.CategoryName,
	})
	if err != nil {
		if markErr := w.source.MarkSyncError(ctx, row.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "id", row.ID, "error", markErr)
		}
		return fmt.Errorf("append to ledger: %w", err)
	}

	// The export itself worked; a failed status update is only logged.
	if err := w.source.MarkSynced(ctx, row.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", "id", row.ID, "error", err)
	}

	slog.InfoContext(ctx, "Successfully exported expense",
		"id", row.ID,
		"ledger_ref", ref,
		"amount_cents", row.Record.Amount.Cents)

	return nil
}
