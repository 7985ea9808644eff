// Package ledger implements the append-only, batch-sealed fraud event ledger.
//
// Confirmed fraud events accumulate in a pending buffer; once the buffer
// reaches the batch size (or on explicit force), the buffer is sealed into an
// immutable block linked to its predecessor by hash. Block hashes are SHA-256
// over the canonical JSON encoding {"index":N,"previousHash":"...","logs":[...]}
// hex-encoded, so external verifiers can recompute them.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/metrics"
)

// DefaultBatchSize is the number of pending logs that triggers a seal.
const DefaultBatchSize = 10

// GenesisPreviousHash is the previousHash sentinel of the genesis block.
const GenesisPreviousHash = "0"

// ErrIntegrity reports a broken hash or link found during verification.
var ErrIntegrity = errors.New("ledger integrity violation")

// FraudLog is a single confirmed-fraud event. Immutable once constructed;
// owned by the pending buffer until sealed, then by its block forever.
type FraudLog struct {
	TxID           string          `json:"txId"`
	AccountID      string          `json:"accountId"`
	Amount         decimal.Decimal `json:"amount"`
	ConfirmedFraud bool            `json:"confirmedFraud"`
}

// Block is an immutable sealed batch of fraud logs.
type Block struct {
	Index        int        `json:"index"`
	Logs         []FraudLog `json:"logs"`
	PreviousHash string     `json:"previousHash"`
	Hash         string     `json:"hash"`
}

// blockDigest is the canonical hash input: every identifying field of a
// block except the hash itself. Field order here defines the wire format
// verifiers must reproduce.
type blockDigest struct {
	Index        int        `json:"index"`
	PreviousHash string     `json:"previousHash"`
	Logs         []FraudLog `json:"logs"`
}

// ComputeHash returns the canonical SHA-256 hash of a block's contents.
// Deterministic: identical (index, previousHash, logs) always yield the
// same digest; any field change yields a different one.
func ComputeHash(index int, previousHash string, logs []FraudLog) string {
	if logs == nil {
		logs = []FraudLog{}
	}
	payload, err := json.Marshal(blockDigest{
		Index:        index,
		PreviousHash: previousHash,
		Logs:         logs,
	})
	if err != nil {
		// FraudLog contains only marshalable fields; this cannot happen.
		panic("ledger: marshal block digest: " + err.Error())
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Chain is the hash-linked sequence of sealed blocks plus the mutable
// pending buffer. All mutation runs under a single mutex so that an
// append and its triggered seal are atomic to every observer.
type Chain struct {
	mu        sync.Mutex
	blocks    []Block
	pending   []FraudLog
	batchSize int
	onSeal    func(Block)    // optional, invoked asynchronously after a seal
	onLog     func(FraudLog) // optional, invoked asynchronously after an append
}

// New creates a chain seeded with the genesis block (index 0, no logs,
// previousHash "0").
func New(batchSize int) *Chain {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	genesis := Block{
		Index:        0,
		Logs:         []FraudLog{},
		PreviousHash: GenesisPreviousHash,
	}
	genesis.Hash = ComputeHash(genesis.Index, genesis.PreviousHash, genesis.Logs)
	return &Chain{
		blocks:    []Block{genesis},
		batchSize: batchSize,
	}
}

// OnSeal registers a callback fired (in its own goroutine) whenever a block
// is sealed. Used to announce sealed blocks to realtime/event pipelines;
// best-effort only.
func (c *Chain) OnSeal(fn func(Block)) {
	c.mu.Lock()
	c.onSeal = fn
	c.mu.Unlock()
}

// OnLog registers a callback fired (in its own goroutine) for every appended
// fraud log. Best-effort only.
func (c *Chain) OnLog(fn func(FraudLog)) {
	c.mu.Lock()
	c.onLog = fn
	c.mu.Unlock()
}

// AddLog appends a log to the pending buffer. If the buffer reaches the
// batch size as a direct result of this call, it is sealed into a new block
// atomically with the append. Returns the pending count after the call and
// the sealed block, if any.
func (c *Chain) AddLog(log FraudLog) (pending int, sealed *Block) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending = append(c.pending, log)
	metrics.FraudLogsQueued.Inc()
	if c.onLog != nil {
		fn := c.onLog
		go fn(log)
	}

	if len(c.pending) >= c.batchSize {
		b := c.seal("batch")
		sealed = &b
	}
	metrics.PendingFraudLogs.Set(float64(len(c.pending)))
	return len(c.pending), sealed
}

// ForceBlock seals the pending buffer into a new block regardless of size.
// No-op when the buffer is empty; returns the sealed block or nil.
func (c *Chain) ForceBlock() *Block {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) == 0 {
		return nil
	}
	b := c.seal("forced")
	metrics.PendingFraudLogs.Set(0)
	return &b
}

// seal freezes the current pending buffer into a new block. Caller holds c.mu.
func (c *Chain) seal(trigger string) Block {
	tip := c.blocks[len(c.blocks)-1]
	logs := make([]FraudLog, len(c.pending))
	copy(logs, c.pending)

	block := Block{
		Index:        len(c.blocks),
		Logs:         logs,
		PreviousHash: tip.Hash,
	}
	block.Hash = ComputeHash(block.Index, block.PreviousHash, block.Logs)

	c.blocks = append(c.blocks, block)
	c.pending = c.pending[:0]
	metrics.BlocksSealed.WithLabelValues(trigger).Inc()

	if c.onSeal != nil {
		fn := c.onSeal
		go fn(block)
	}
	return block
}

// PendingCount returns the current pending-buffer size.
func (c *Chain) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Length returns the number of blocks, genesis included.
func (c *Chain) Length() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.blocks)
}

// Tip returns a copy of the most recent block.
func (c *Chain) Tip() Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyBlock(c.blocks[len(c.blocks)-1])
}

// Blocks returns a copy of the full chain for reporting.
func (c *Chain) Blocks() []Block {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Block, len(c.blocks))
	for i, b := range c.blocks {
		out[i] = copyBlock(b)
	}
	return out
}

// TotalLogs returns the number of fraud logs sealed across all blocks.
func (c *Chain) TotalLogs() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, b := range c.blocks {
		total += len(b.Logs)
	}
	return total
}

// Verify walks the chain recomputing every hash and link. Returns an
// ErrIntegrity-wrapped error on the first mismatch. Verification failure
// is fatal for the verify operation only; appends continue.
func (c *Chain) Verify() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, b := range c.blocks {
		if b.Index != i {
			return fmt.Errorf("%w: block %d has index %d", ErrIntegrity, i, b.Index)
		}
		if i == 0 {
			if b.PreviousHash != GenesisPreviousHash {
				return fmt.Errorf("%w: genesis previousHash is %q", ErrIntegrity, b.PreviousHash)
			}
		} else if b.PreviousHash != c.blocks[i-1].Hash {
			return fmt.Errorf("%w: block %d previousHash does not match block %d hash", ErrIntegrity, i, i-1)
		}
		if got := ComputeHash(b.Index, b.PreviousHash, b.Logs); got != b.Hash {
			return fmt.Errorf("%w: block %d hash mismatch", ErrIntegrity, i)
		}
	}
	return nil
}

func copyBlock(b Block) Block {
	logs := make([]FraudLog, len(b.Logs))
	copy(logs, b.Logs)
	b.Logs = logs
	return b
}
