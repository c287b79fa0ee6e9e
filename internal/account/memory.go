package account

import (
	"context"
	"sync"

	"conto/internal/core"
)

// MemoryStore is an in-memory Store used in tests and the no-database dev
// mode. Keys are the exact email strings; no normalization is applied.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]core.Account
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]core.Account)}
}

func (s *MemoryStore) Find(ctx context.Context, emailAddr string) (*core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[emailAddr]
	if !ok {
		return nil, ErrNotFound
	}
	return &acct, nil
}

func (s *MemoryStore) Insert(ctx context.Context, acct core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[acct.Email]; exists {
		return ErrConflict
	}
	s.accounts[acct.Email] = acct
	return nil
}

// Len returns the number of stored accounts.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}
