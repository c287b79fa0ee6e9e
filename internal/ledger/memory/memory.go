// Package memory is an in-process ledger used in tests and when no
// spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"conto/internal/ledger"
)

type Store struct {
	mu   sync.Mutex
	rows []ledger.Row
}

func New() *Store {
	return &Store{}
}

// AppendRow stores the row and returns a synthetic row reference.
func (s *Store) AppendRow(_ context.Context, row ledger.Row) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (s *Store) Rows() []ledger.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.Row(nil), s.rows...)
}
