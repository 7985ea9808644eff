package transaction

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/logging"
	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/metrics"
	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/traces"
	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/validation"
)

// Saga drives one transaction through validation, draft persistence,
// concurrent enrichment, AI scoring, and fingerprint risk merging.
type Saga struct {
	store    Store
	enricher NodeEnricher
	scorer   Scorer
	visual   VisualNotifier
	risk     FingerprintEvaluator
	emitter  EventEmitter
}

// NewSaga wires the saga's collaborators. emitter may be nil.
func NewSaga(store Store, enricher NodeEnricher, scorer Scorer, visual VisualNotifier, risk FingerprintEvaluator, emitter EventEmitter) *Saga {
	return &Saga{
		store:    store,
		enricher: enricher,
		scorer:   scorer,
		visual:   visual,
		risk:     risk,
		emitter:  emitter,
	}
}

// Submit runs the full assessment pipeline for one transaction request.
// Validation failures return before any persistence. Upstream failures
// after the draft persist degrade the result but never fail it: the caller
// always gets back a persisted transaction.
func (s *Saga) Submit(ctx context.Context, req Request, fingerprint string) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "saga.submit",
		traces.Account(req.SourceAccount),
		traces.Fingerprint(fingerprint))
	defer span.End()

	log := logging.L(ctx)

	// Step 1: validate before any side effect.
	sourceID, sourceOK := validation.ParseNodeID(req.SourceAccount)
	targetID, targetOK := validation.ParseNodeID(req.TargetAccount)
	verrs := validation.Validate(
		func() *validation.ValidationError {
			if !sourceOK {
				return &validation.ValidationError{Field: "sourceAccount", Message: "must be a numeric node identifier"}
			}
			return nil
		},
		func() *validation.ValidationError {
			if !targetOK {
				return &validation.ValidationError{Field: "targetAccount", Message: "must be a numeric node identifier"}
			}
			return nil
		},
		validation.NonNegativeAmount("amount", req.Amount),
	)
	if len(verrs) > 0 {
		metrics.TransactionsSubmitted.WithLabelValues("rejected").Inc()
		return nil, verrs
	}

	// Step 2: persist the draft; its ID is the canonical identity for every
	// later stage.
	tx := &Transaction{
		SourceAccount:  req.SourceAccount,
		TargetAccount:  req.TargetAccount,
		Amount:         req.Amount,
		PopulationSize: DefaultPopulationSize,
		LinkedAccounts: []string{},
		JA3:            fingerprint,
	}
	if err := s.store.Create(ctx, tx); err != nil {
		metrics.TransactionsSubmitted.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("persist draft: %w", err)
	}
	ctx = logging.WithTransactionID(ctx, tx.ID)
	log = logging.L(ctx)
	span.SetAttributes(traces.TransactionID(tx.ID))

	// Step 3: enrichment and visual trigger run concurrently and are joined
	// before scoring. Failures are swallowed. Dispatched work is not
	// cancelled if the caller abandons the request.
	s.enrichConcurrently(context.WithoutCancel(ctx), log, tx, sourceID, targetID)

	// Step 4: AI verdict. A scorer failure keeps the draft's defaults.
	degraded := false
	verdict, err := s.scorer.Score(ctx, sourceID, targetID, req.Amount)
	if err != nil {
		degraded = true
		metrics.UpstreamFailures.WithLabelValues("scorer").Inc()
		log.Warn("ai scorer unavailable, keeping default risk fields", "error", err)
	} else if verdict != nil {
		s.applyVerdict(tx, verdict)
		if err := s.store.Update(ctx, tx); err != nil {
			log.Error("persist scored transaction", "error", err)
		}
	}

	// Step 5: fingerprint risk, strictly after verdict application.
	if fingerprint != "" {
		assessment, err := s.risk.EvaluateRisk(ctx, fingerprint, req.SourceAccount, tx.ID)
		if err != nil {
			degraded = true
			metrics.UpstreamFailures.WithLabelValues("risk_engine").Inc()
			log.Warn("ja3 risk engine unavailable, keeping default ja3 fields", "error", err)
		} else if assessment != nil {
			s.mergeAssessment(tx, assessment)
			if err := s.store.Update(ctx, tx); err != nil {
				log.Error("persist ja3-merged transaction", "error", err)
			}
		}
	}

	if tx.SuspectedFraud {
		metrics.SuspectedFraudTotal.Inc()
	}
	if degraded {
		metrics.TransactionsSubmitted.WithLabelValues("degraded").Inc()
	} else {
		metrics.TransactionsSubmitted.WithLabelValues("scored").Inc()
	}

	if s.emitter != nil {
		s.emitter.TransactionScored(tx)
	}

	log.Info("transaction assessed",
		"suspected_fraud", tx.SuspectedFraud,
		"degraded", degraded)
	return tx, nil
}

// enrichConcurrently runs the source debit, target credit, and visual
// reanalysis trigger in parallel and waits for all three. Each failure is
// logged and counted, never returned.
func (s *Saga) enrichConcurrently(ctx context.Context, log *slog.Logger, tx *Transaction, sourceID, targetID int64) {
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		if err := s.enricher.Debit(ctx, sourceID, tx.Amount); err != nil {
			metrics.UpstreamFailures.WithLabelValues("enrichment").Inc()
			log.Warn("source node debit failed", "node_id", sourceID, "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := s.enricher.Credit(ctx, targetID, tx.Amount); err != nil {
			metrics.UpstreamFailures.WithLabelValues("enrichment").Inc()
			log.Warn("target node credit failed", "node_id", targetID, "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		nodes := []NodeRef{
			{NodeID: sourceID, Role: RoleSource},
			{NodeID: targetID, Role: RoleTarget},
		}
		if err := s.visual.Reanalyze(ctx, tx.ID, nodes); err != nil {
			metrics.UpstreamFailures.WithLabelValues("visual").Inc()
			log.Warn("visual reanalysis trigger failed", "error", err)
		}
	}()

	wg.Wait()
}

// applyVerdict copies the scorer's verdict onto the transaction, filling
// documented defaults for absent fields.
func (s *Saga) applyVerdict(tx *Transaction, v *Verdict) {
	tx.RiskScore = v.RiskScore
	tx.Verdict = v.Verdict
	if v.RiskScore != nil {
		tx.SuspectedFraud = *v.RiskScore > suspectedFraudThreshold
	}
	if v.OutDegree != nil {
		tx.OutDegree = *v.OutDegree
	}
	if v.RiskRatio != nil {
		tx.RiskRatio = *v.RiskRatio
	}
	if v.PopulationSize != nil {
		tx.PopulationSize = *v.PopulationSize
	}
	tx.ModelName = DefaultModelName
	if v.ModelVersion != nil {
		tx.ModelName = *v.ModelVersion
	}
	tx.UnsupScore = v.UnsupScore
	if tx.UnsupScore == nil {
		// Original behaviour: the unsupervised score falls back to the
		// primary risk score when the model omits it.
		tx.UnsupScore = v.RiskScore
	}
	if v.LinkedAccounts != nil {
		tx.LinkedAccounts = v.LinkedAccounts
	}
}

// mergeAssessment copies the numeric JA3 signals onto the transaction.
// Absent fields leave the prior values untouched.
func (s *Saga) mergeAssessment(tx *Transaction, a *RiskAssessment) {
	if a.JA3Risk != nil {
		tx.JA3Risk = a.JA3Risk
		tx.JA3Detected = *a.JA3Risk > ja3DetectedThreshold
	}
	if a.Velocity != nil {
		tx.JA3Velocity = a.Velocity
	}
	if a.Fanout != nil {
		tx.JA3Fanout = a.Fanout
	}
}
