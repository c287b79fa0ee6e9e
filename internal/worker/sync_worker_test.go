package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conto/internal/amqp"
	"conto/internal/core"
	"conto/internal/ledger"
	"conto/internal/ledger/memory"
	"conto/internal/storage"
)

// fakeSource is an in-memory ExpenseSource tracking sync statuses.
type fakeSource struct {
	rows    map[int64]storage.ExpenseRow
	pending []int64
	status  map[int64]string
	getErr  error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		rows:   make(map[int64]storage.ExpenseRow),
		status: make(map[int64]string),
	}
}

func (s *fakeSource) add(id int64, cents int64, categoryName string) {
	s.rows[id] = storage.ExpenseRow{
		ID: id,
		Record: core.ExpenseRecord{
			Amount:     core.Money{Cents: cents},
			CategoryID: 2,
			Date:       core.NewDate(2024, 5, 3),
		},
		CategoryName: categoryName,
	}
	s.pending = append(s.pending, id)
	s.status[id] = "pending"
}

func (s *fakeSource) GetExpense(_ context.Context, id int64) (storage.ExpenseRow, error) {
	if s.getErr != nil {
		return storage.ExpenseRow{}, s.getErr
	}
	row, ok := s.rows[id]
	if !ok {
		return storage.ExpenseRow{}, errors.New("no such expense")
	}
	return row, nil
}

func (s *fakeSource) GetPendingSyncExpenses(_ context.Context, limit int) ([]storage.PendingSyncExpense, error) {
	var out []storage.PendingSyncExpense
	for _, id := range s.pending {
		if s.status[id] != "pending" {
			continue
		}
		out = append(out, storage.PendingSyncExpense{ID: id, Version: 1})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeSource) MarkSynced(_ context.Context, id int64) error {
	s.status[id] = "synced"
	return nil
}

func (s *fakeSource) MarkSyncError(_ context.Context, id int64) error {
	s.status[id] = "error"
	return nil
}

func TestHandleSyncMessageExports(t *testing.T) {
	source := newFakeSource()
	source.add(1, 9995, "Groceries")
	sink := memory.New()
	w := NewSyncWorker(source, sink, 10)

	err := w.HandleSyncMessage(context.Background(), amqp.NewExpenseRecordedMessage(1, 1))
	require.NoError(t, err)

	rows := sink.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "Groceries", rows[0].Category)
	assert.EqualValues(t, 9995, rows[0].Amount.Cents)
	assert.Equal(t, "synced", source.status[1])
}

func TestHandleSyncMessageMissingExpense(t *testing.T) {
	w := NewSyncWorker(newFakeSource(), memory.New(), 10)

	err := w.HandleSyncMessage(context.Background(), amqp.NewExpenseRecordedMessage(42, 1))
	assert.Error(t, err, "missing expenses should be nacked and retried")
}

type failingLedger struct{}

func (failingLedger) AppendRow(context.Context, ledger.Row) (string, error) {
	return "", errors.New("sheets unavailable")
}

func TestProcessPendingExpenses(t *testing.T) {
	source := newFakeSource()
	source.add(1, 100, "Groceries")
	source.add(2, 200, "Rent")
	sink := memory.New()
	w := NewSyncWorker(source, sink, 10)

	require.NoError(t, w.ProcessPendingExpenses(context.Background()))

	assert.Len(t, sink.Rows(), 2)
	assert.Equal(t, "synced", source.status[1])
	assert.Equal(t, "synced", source.status[2])

	// A second pass finds nothing left to do.
	require.NoError(t, w.ProcessPendingExpenses(context.Background()))
	assert.Len(t, sink.Rows(), 2)
}

func TestExportFailureMarksSyncError(t *testing.T) {
	source := newFakeSource()
	source.add(1, 100, "Groceries")
	w := NewSyncWorker(source, failingLedger{}, 10)

	err := w.HandleSyncMessage(context.Background(), amqp.NewExpenseRecordedMessage(1, 1))
	assert.Error(t, err)
	assert.Equal(t, "error", source.status[1])
}

func TestStartupSyncCheck(t *testing.T) {
	source := newFakeSource()
	source.add(1, 100, "Groceries")
	source.add(2, 200, "Rent")
	sink := memory.New()
	w := NewSyncWorker(source, sink, 1)

	// Startup uses a widened batch, so both rows drain in one pass.
	require.NoError(t, w.StartupSyncCheck(context.Background()))
	assert.Len(t, sink.Rows(), 2)
}
