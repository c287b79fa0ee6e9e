package expense

import (
	"context"
	"fmt"
	"log/slog"

	"conto/internal/core"
)

// Recorder persists validated expense records.
type Recorder interface {
	AppendExpense(ctx context.Context, rec core.ExpenseRecord) (int64, error)
}

// Publisher announces recorded expenses to the sync queue.
type Publisher interface {
	PublishExpenseRecorded(ctx context.Context, id, version int64) error
}

// Service records expenses locally and queues them for ledger export.
// The local write is authoritative; a failed publish is logged and the
// pending-sync scan picks the record up later.
type Service struct {
	recorder  Recorder
	publisher Publisher
}

func NewService(recorder Recorder, publisher Publisher) *Service {
	return &Service{recorder: recorder, publisher: publisher}
}

// Record saves a validated expense and publishes a sync message.
func (s *Service) Record(ctx context.Context, rec core.ExpenseRecord) (int64, error) {
	id, err := s.recorder.AppendExpense(ctx, rec)
	if err != nil {
		return 0, fmt.Errorf("save expense: %w", err)
	}

	if s.publisher == nil {
		slog.DebugContext(ctx, "No publisher configured, skipping sync message", "id", id)
		return id, nil
	}
	if err := s.publisher.PublishExpenseRecorded(ctx, id, 1); err != nil {
		// The record is saved; the periodic pending-sync pass will retry.
		slog.ErrorContext(ctx, "Failed to publish sync message", "id", id, "error", err)
	}
	return id, nil
}
