// Package transaction implements the transaction risk orchestration saga.
//
// Flow:
//  1. Validate account node IDs and amount
//  2. Persist a draft record
//  3. Concurrently enrich both nodes and trigger visual reanalysis
//  4. Ask the AI scorer for a verdict and apply it
//  5. Evaluate the JA3 fingerprint and merge the risk signals
//  6. Return the final persisted record
//
// Upstream failures in steps 3-5 degrade the result instead of failing it.
package transaction

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrTransactionNotFound = errors.New("transaction not found")

// DefaultPopulationSize is used until the scorer reports a population bucket.
const DefaultPopulationSize = "Unknown"

// DefaultModelName is assumed when the scorer omits its model version.
const DefaultModelName = "GraphSAGE"

// suspectedFraudThreshold marks a transaction once the verdict's risk score
// exceeds it.
const suspectedFraudThreshold = 0.5

// ja3DetectedThreshold marks the fingerprint as hostile once the merged JA3
// risk exceeds it.
const ja3DetectedThreshold = 0.7

// Transaction is the full assessed record. Nullable signals are pointers so
// "never scored" is distinguishable from a zero score.
type Transaction struct {
	ID             string          `json:"id"`
	SourceAccount  string          `json:"sourceAccount"`
	TargetAccount  string          `json:"targetAccount"`
	Amount         decimal.Decimal `json:"amount"`
	RiskScore      *float64        `json:"riskScore,omitempty"`
	Verdict        *string         `json:"verdict,omitempty"`
	SuspectedFraud bool            `json:"suspectedFraud"`
	OutDegree      int             `json:"outDegree"`
	RiskRatio      float64         `json:"riskRatio"`
	PopulationSize string          `json:"populationSize"`
	ModelName      string          `json:"modelName,omitempty"`
	UnsupScore     *float64        `json:"unsupervisedScore,omitempty"`
	LinkedAccounts []string        `json:"linkedAccounts"`
	JA3            string          `json:"ja3,omitempty"`
	JA3Risk        *float64        `json:"ja3Risk,omitempty"`
	JA3Detected    bool            `json:"ja3Detected"`
	JA3Velocity    *int            `json:"ja3Velocity,omitempty"`
	JA3Fanout      *int            `json:"ja3Fanout,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Request is a transaction submission.
type Request struct {
	SourceAccount string          `json:"sourceAccount"`
	TargetAccount string          `json:"targetAccount"`
	Amount        decimal.Decimal `json:"amount"`
}

// Store persists transactions.
type Store interface {
	// Create persists a new transaction and assigns its ID.
	Create(ctx context.Context, tx *Transaction) error
	// Update persists the current state of an existing transaction.
	Update(ctx context.Context, tx *Transaction) error
	// Get returns one transaction, or ErrTransactionNotFound.
	Get(ctx context.Context, id string) (*Transaction, error)
	// List returns the most recent transactions, newest first.
	List(ctx context.Context, limit int) ([]*Transaction, error)
}

// Verdict is the AI scorer's assessment of a transaction. Pointer fields are
// absent when the scorer omits them.
type Verdict struct {
	RiskScore      *float64 `json:"risk_score"`
	Verdict        *string  `json:"verdict"`
	OutDegree      *int     `json:"out_degree"`
	RiskRatio      *float64 `json:"risk_ratio"`
	PopulationSize *string  `json:"population_size"`
	ModelVersion   *string  `json:"model_version"`
	UnsupScore     *float64 `json:"unsupervised_score"`
	LinkedAccounts []string `json:"linked_accounts"`
}

// RiskAssessment is the JA3 risk engine's response for one observation.
type RiskAssessment struct {
	JA3      string   `json:"ja3"`
	JA3Risk  *float64 `json:"ja3Risk"`
	Velocity *int     `json:"velocity"`
	Fanout   *int     `json:"fanout"`
}

// NodeRole tags a node's side of a transaction in visual reanalysis requests.
type NodeRole string

const (
	RoleSource NodeRole = "SOURCE"
	RoleTarget NodeRole = "TARGET"
)

// NodeRef names one node of a transaction for the visual-analytics trigger.
type NodeRef struct {
	NodeID int64    `json:"nodeId"`
	Role   NodeRole `json:"role"`
}

// Saga collaborators. Every method is best-effort from the saga's point of
// view; implementations decide their own timeout and retry discipline.

// NodeEnricher updates per-node flow totals.
type NodeEnricher interface {
	Debit(ctx context.Context, nodeID int64, amount decimal.Decimal) error
	Credit(ctx context.Context, nodeID int64, amount decimal.Decimal) error
}

// Scorer obtains an AI verdict for a transaction.
type Scorer interface {
	Score(ctx context.Context, sourceID, targetID int64, amount decimal.Decimal) (*Verdict, error)
}

// VisualNotifier triggers reanalysis of the nodes a transaction touches.
type VisualNotifier interface {
	Reanalyze(ctx context.Context, txID string, nodes []NodeRef) error
}

// FingerprintEvaluator scores a JA3 fingerprint for an account/transaction
// observation.
type FingerprintEvaluator interface {
	EvaluateRisk(ctx context.Context, fingerprint, accountID, txID string) (*RiskAssessment, error)
}

// EventEmitter announces assessed transactions to realtime consumers.
type EventEmitter interface {
	TransactionScored(tx *Transaction)
}
