package transaction

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps transactions in process memory. Used in development and
// tests when no database is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*Transaction
	order []string // insertion order, oldest first
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Transaction)}
}

func (s *MemoryStore) Create(_ context.Context, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx.ID = uuid.NewString()
	now := time.Now().UTC()
	tx.CreatedAt = now
	tx.UpdatedAt = now

	cp := *tx
	s.byID[tx.ID] = &cp
	s.order = append(s.order, tx.ID)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[tx.ID]; !ok {
		return ErrTransactionNotFound
	}
	tx.UpdatedAt = time.Now().UTC()
	cp := *tx
	s.byID[tx.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.byID[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.order) {
		limit = len(s.order)
	}
	out := make([]*Transaction, 0, limit)
	// Newest first.
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *s.byID[s.order[i]]
		out = append(out, &cp)
	}
	return out, nil
}
