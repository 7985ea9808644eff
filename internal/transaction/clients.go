package transaction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/circuitbreaker"
	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/metrics"
	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/retry"
)

// ErrCircuitOpen is returned when a collaborator's breaker rejects the call.
var ErrCircuitOpen = errors.New("collaborator circuit open")

// maxReadAttempts bounds retries for the idempotent scoring and risk reads.
// Enrichment and the visual trigger are fire-once.
const maxReadAttempts = 2

const retryBaseDelay = 200 * time.Millisecond

// httpClients share one transport-level timeout as a backstop behind the
// per-call context timeout.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout + time.Second}
}

// postJSON issues one POST with the collaborator's timeout and breaker
// accounting. A 4xx response is permanent; 5xx and transport errors are
// retryable by callers that retry.
func postJSON(ctx context.Context, client *http.Client, breaker *circuitbreaker.Breaker,
	key, url string, headers map[string]string, body, out any, timeout time.Duration) error {

	if !breaker.Allow(key) {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, key)
	}

	start := time.Now()
	err := doPost(ctx, client, url, headers, body, out, timeout)
	metrics.UpstreamCallDuration.WithLabelValues(key).Observe(time.Since(start).Seconds())

	if err != nil {
		breaker.RecordFailure(key)
		return err
	}
	breaker.RecordSuccess(key)
	return nil
}

func doPost(ctx context.Context, client *http.Client, url string,
	headers map[string]string, body, out any, timeout time.Duration) error {

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return retry.Permanent(fmt.Errorf("marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("call %s: status %d", url, resp.StatusCode)
		if resp.StatusCode < 500 {
			return retry.Permanent(err)
		}
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response from %s: %w", url, err)
		}
	}
	return nil
}

// ScoringClient calls the external AI scoring model.
type ScoringClient struct {
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.Breaker
	timeout time.Duration
}

func NewScoringClient(baseURL string, breaker *circuitbreaker.Breaker, timeout time.Duration) *ScoringClient {
	return &ScoringClient{
		baseURL: baseURL,
		client:  newHTTPClient(timeout),
		breaker: breaker,
		timeout: timeout,
	}
}

type scoreRequest struct {
	SourceID  int64           `json:"source_id"`
	TargetID  int64           `json:"target_id"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// Score requests a verdict. Scoring is a read from the saga's point of view,
// so it is retried once on transient failure.
func (c *ScoringClient) Score(ctx context.Context, sourceID, targetID int64, amount decimal.Decimal) (*Verdict, error) {
	req := scoreRequest{
		SourceID:  sourceID,
		TargetID:  targetID,
		Amount:    amount,
		Timestamp: time.Now().UTC(),
	}
	var verdict Verdict
	err := retry.Do(ctx, maxReadAttempts, retryBaseDelay, func() error {
		return postJSON(ctx, c.client, c.breaker, "scorer",
			c.baseURL+"/analyze-transaction", nil, req, &verdict, c.timeout)
	})
	if err != nil {
		return nil, err
	}
	return &verdict, nil
}

// VisualClient triggers node reanalysis on the visual-analytics service.
type VisualClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *circuitbreaker.Breaker
	timeout time.Duration
}

func NewVisualClient(baseURL, apiKey string, breaker *circuitbreaker.Breaker, timeout time.Duration) *VisualClient {
	return &VisualClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  newHTTPClient(timeout),
		breaker: breaker,
		timeout: timeout,
	}
}

type reanalyzeRequest struct {
	TxID  string    `json:"txId"`
	Nodes []NodeRef `json:"nodes"`
}

// Reanalyze fires the trigger once; it is not idempotent and never retried.
func (c *VisualClient) Reanalyze(ctx context.Context, txID string, nodes []NodeRef) error {
	headers := map[string]string{"X-INTERNAL-API-KEY": c.apiKey}
	return postJSON(ctx, c.client, c.breaker, "visual",
		c.baseURL+"/api/visual/reanalyze-nodes", headers,
		reanalyzeRequest{TxID: txID, Nodes: nodes}, nil, c.timeout)
}

// RiskClient calls a remote JA3 risk engine. Used when the risk engine runs
// in its own process; otherwise the in-process detector is wired directly.
type RiskClient struct {
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.Breaker
	timeout time.Duration
}

func NewRiskClient(baseURL string, breaker *circuitbreaker.Breaker, timeout time.Duration) *RiskClient {
	return &RiskClient{
		baseURL: baseURL,
		client:  newHTTPClient(timeout),
		breaker: breaker,
		timeout: timeout,
	}
}

type riskRequest struct {
	AccountID string `json:"accountId"`
	TxID      string `json:"txId"`
}

// EvaluateRisk is an idempotent read of the engine's accumulated state and
// is retried once on transient failure.
func (c *RiskClient) EvaluateRisk(ctx context.Context, fingerprint, accountID, txID string) (*RiskAssessment, error) {
	headers := map[string]string{"X-JA3-Fingerprint": fingerprint}
	var assessment RiskAssessment
	err := retry.Do(ctx, maxReadAttempts, retryBaseDelay, func() error {
		return postJSON(ctx, c.client, c.breaker, "risk_engine",
			c.baseURL+"/security/ja3-risk", headers,
			riskRequest{AccountID: accountID, TxID: txID}, &assessment, c.timeout)
	})
	if err != nil {
		return nil, err
	}
	return &assessment, nil
}
