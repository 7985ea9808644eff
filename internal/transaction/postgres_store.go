package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// PostgresStore persists transactions in the transactions table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const txColumns = `
	id, source_account, target_account, amount, risk_score, verdict,
	suspected_fraud, out_degree, risk_ratio, population_size, model_name,
	unsupervised_score, linked_accounts, ja3, ja3_risk, ja3_detected,
	ja3_velocity, ja3_fanout, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, tx *Transaction) error {
	tx.ID = uuid.NewString()

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO transactions (
			id, source_account, target_account, amount, risk_score, verdict,
			suspected_fraud, out_degree, risk_ratio, population_size, model_name,
			unsupervised_score, linked_accounts, ja3, ja3_risk, ja3_detected,
			ja3_velocity, ja3_fanout
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING created_at, updated_at`,
		tx.ID, tx.SourceAccount, tx.TargetAccount, tx.Amount, tx.RiskScore,
		tx.Verdict, tx.SuspectedFraud, tx.OutDegree, tx.RiskRatio,
		tx.PopulationSize, tx.ModelName, tx.UnsupScore,
		pq.Array(tx.LinkedAccounts), tx.JA3, tx.JA3Risk, tx.JA3Detected,
		tx.JA3Velocity, tx.JA3Fanout,
	).Scan(&tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, tx *Transaction) error {
	err := s.db.QueryRowContext(ctx, `
		UPDATE transactions SET
			risk_score = $2, verdict = $3, suspected_fraud = $4, out_degree = $5,
			risk_ratio = $6, population_size = $7, model_name = $8,
			unsupervised_score = $9, linked_accounts = $10, ja3 = $11,
			ja3_risk = $12, ja3_detected = $13, ja3_velocity = $14,
			ja3_fanout = $15, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		tx.ID, tx.RiskScore, tx.Verdict, tx.SuspectedFraud, tx.OutDegree,
		tx.RiskRatio, tx.PopulationSize, tx.ModelName, tx.UnsupScore,
		pq.Array(tx.LinkedAccounts), tx.JA3, tx.JA3Risk, tx.JA3Detected,
		tx.JA3Velocity, tx.JA3Fanout,
	).Scan(&tx.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTransactionNotFound
	}
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", tx.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE id = $1`, id)

	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return tx, nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+txColumns+` FROM transactions ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	var (
		tx     Transaction
		amount string
		linked pq.StringArray
	)
	err := row.Scan(
		&tx.ID, &tx.SourceAccount, &tx.TargetAccount, &amount, &tx.RiskScore,
		&tx.Verdict, &tx.SuspectedFraud, &tx.OutDegree, &tx.RiskRatio,
		&tx.PopulationSize, &tx.ModelName, &tx.UnsupScore, &linked, &tx.JA3,
		&tx.JA3Risk, &tx.JA3Detected, &tx.JA3Velocity, &tx.JA3Fanout,
		&tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	tx.LinkedAccounts = []string(linked)
	if tx.LinkedAccounts == nil {
		tx.LinkedAccounts = []string{}
	}
	return &tx, nil
}
