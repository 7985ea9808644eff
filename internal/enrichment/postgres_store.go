package enrichment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// PostgresStore persists node totals in the graph_nodes table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const upsertNode = `
	INSERT INTO graph_nodes (node_id, debit_total, credit_total, tx_count, updated_at)
	VALUES ($1, $2, $3, 1, now())
	ON CONFLICT (node_id) DO UPDATE SET
		debit_total = graph_nodes.debit_total + EXCLUDED.debit_total,
		credit_total = graph_nodes.credit_total + EXCLUDED.credit_total,
		tx_count = graph_nodes.tx_count + 1,
		updated_at = now()`

func (s *PostgresStore) Debit(ctx context.Context, nodeID int64, amount decimal.Decimal) error {
	if _, err := s.db.ExecContext(ctx, upsertNode, nodeID, amount, decimal.Zero); err != nil {
		return fmt.Errorf("debit node %d: %w", nodeID, err)
	}
	return nil
}

func (s *PostgresStore) Credit(ctx context.Context, nodeID int64, amount decimal.Decimal) error {
	if _, err := s.db.ExecContext(ctx, upsertNode, nodeID, decimal.Zero, amount); err != nil {
		return fmt.Errorf("credit node %d: %w", nodeID, err)
	}
	return nil
}

func (s *PostgresStore) Node(ctx context.Context, nodeID int64) (NodeTotals, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT node_id, debit_total, credit_total, tx_count, updated_at
		FROM graph_nodes WHERE node_id = $1`, nodeID)

	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return NodeTotals{}, ErrNodeNotFound
	}
	if err != nil {
		return NodeTotals{}, fmt.Errorf("get node %d: %w", nodeID, err)
	}
	return n, nil
}

func (s *PostgresStore) All(ctx context.Context) ([]NodeTotals, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, debit_total, credit_total, tx_count, updated_at
		FROM graph_nodes ORDER BY node_id`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var out []NodeTotals
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (NodeTotals, error) {
	var (
		n      NodeTotals
		debit  string
		credit string
	)
	if err := row.Scan(&n.NodeID, &debit, &credit, &n.TxCount, &n.UpdatedAt); err != nil {
		return NodeTotals{}, err
	}
	var err error
	if n.DebitTotal, err = decimal.NewFromString(debit); err != nil {
		return NodeTotals{}, err
	}
	if n.CreditTotal, err = decimal.NewFromString(credit); err != nil {
		return NodeTotals{}, err
	}
	return n, nil
}
