// Package enrichment maintains per-node flow totals for the analytics graph.
//
// The orchestrator updates a node's totals on both legs of every accepted
// transaction. Totals feed the graph endpoint and downstream visual
// analytics; they are advisory and never gate a transaction.
package enrichment

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNodeNotFound is returned when a node has no recorded activity.
var ErrNodeNotFound = errors.New("node not found")

// NodeTotals is the accumulated flow state of one graph node.
type NodeTotals struct {
	NodeID      int64           `json:"nodeId"`
	DebitTotal  decimal.Decimal `json:"debitTotal"`
	CreditTotal decimal.Decimal `json:"creditTotal"`
	TxCount     int64           `json:"txCount"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Store persists node totals. Implementations must be safe for
// concurrent use.
type Store interface {
	// Debit adds an outgoing amount to the node's totals.
	Debit(ctx context.Context, nodeID int64, amount decimal.Decimal) error
	// Credit adds an incoming amount to the node's totals.
	Credit(ctx context.Context, nodeID int64, amount decimal.Decimal) error
	// Node returns one node's totals, or ErrNodeNotFound.
	Node(ctx context.Context, nodeID int64) (NodeTotals, error)
	// All returns totals for every node with recorded activity.
	All(ctx context.Context) ([]NodeTotals, error)
}
