package enrichment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore keeps node totals in process memory. Used in development and
// tests when no database is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[int64]*NodeTotals
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nodes: make(map[int64]*NodeTotals)}
}

func (s *MemoryStore) apply(nodeID int64, debit, credit decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[nodeID]
	if !ok {
		n = &NodeTotals{
			NodeID:      nodeID,
			DebitTotal:  decimal.Zero,
			CreditTotal: decimal.Zero,
		}
		s.nodes[nodeID] = n
	}
	n.DebitTotal = n.DebitTotal.Add(debit)
	n.CreditTotal = n.CreditTotal.Add(credit)
	n.TxCount++
	n.UpdatedAt = time.Now().UTC()
}

func (s *MemoryStore) Debit(_ context.Context, nodeID int64, amount decimal.Decimal) error {
	s.apply(nodeID, amount, decimal.Zero)
	return nil
}

func (s *MemoryStore) Credit(_ context.Context, nodeID int64, amount decimal.Decimal) error {
	s.apply(nodeID, decimal.Zero, amount)
	return nil
}

func (s *MemoryStore) Node(_ context.Context, nodeID int64) (NodeTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[nodeID]
	if !ok {
		return NodeTotals{}, ErrNodeNotFound
	}
	return *n, nil
}

func (s *MemoryStore) All(_ context.Context) ([]NodeTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]NodeTotals, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out, nil
}
