// Package scoring combines the rule, anomaly and graph signals into the
// persisted risk score, and runs the batch pipeline over a full dataset.
package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/features"
	"github.com/opensource-finance/harrier/internal/graph"
	"github.com/opensource-finance/harrier/internal/index"
	"github.com/opensource-finance/harrier/internal/rules"
)

// Aggregator scores a single claim. It owns the three signal scorers and
// the blend weights; safe for concurrent use once constructed.
type Aggregator struct {
	cfg    *domain.ScoringConfig
	engine *rules.Engine
	ml     *features.Scorer
	graph  *graph.Scorer
}

// NewAggregator validates the configuration, compiles the rule catalog and
// returns an aggregator. Fails fast on any catalog error.
func NewAggregator(cfg *domain.ScoringConfig) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	engine, err := rules.NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	return &Aggregator{
		cfg:    cfg,
		engine: engine,
		ml:     features.NewScorer(cfg),
		graph:  graph.NewScorer(cfg),
	}, nil
}

// ScoreClaim produces the four scores and capped reasons for one claim.
// Each signal is rounded to 2 decimals before blending, so the persisted
// components always recombine into the persisted risk score.
func (a *Aggregator) ScoreClaim(claim *domain.Claim, policy *domain.Policy, party *domain.Claimant, snap *index.Snapshot) (*domain.Score, error) {
	v := features.Extract(claim, policy, party, snap, a.cfg)

	hits, err := a.engine.Evaluate(v)
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", claim.ID, err)
	}

	ruleScore := domain.Round2(a.engine.RuleScore(hits))
	mlScore := domain.Round2(a.ml.Score(v))
	graphScore := domain.Round2(a.graph.Score(v))

	w := a.cfg.Weights
	risk := domain.Round2(domain.Clamp(
		w.Rule*ruleScore+w.ML*mlScore+w.Graph*graphScore, 0, 1))

	reasons := make([]string, 0, a.cfg.MaxReasons)
	for _, h := range hits {
		if len(reasons) == a.cfg.MaxReasons {
			break
		}
		reasons = append(reasons, h.Tag)
	}

	return &domain.Score{
		ClaimID:    claim.ID,
		RuleScore:  ruleScore,
		MLScore:    mlScore,
		GraphScore: graphScore,
		RiskScore:  risk,
		Reasons:    reasons,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// BandFor maps a risk score to its configured band.
func (a *Aggregator) BandFor(score float64) domain.RiskBand {
	return a.cfg.BandFor(score)
}

// Runner executes a scoring run: load the dataset, freeze the relationship
// index, score every claim concurrently and persist the results.
type Runner struct {
	repo domain.Repository
	bus  domain.EventBus // optional; nil disables event publishing
	agg  *Aggregator
	cfg  domain.RunConfig
}

// NewRunner creates a runner. Pass a nil bus to skip event publishing.
func NewRunner(repo domain.Repository, bus domain.EventBus, agg *Aggregator, cfg domain.RunConfig) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	return &Runner{repo: repo, bus: bus, agg: agg, cfg: cfg}
}

// RunSummary describes one completed scoring run.
type RunSummary struct {
	RunID        string         `json:"runId"`
	ClaimsScored int            `json:"claimsScored"`
	Alerts       int            `json:"alerts"`
	Bands        map[string]int `json:"bands"`
	StartedAt    time.Time      `json:"startedAt"`
	DurationMs   int64          `json:"durationMs"`
}

// Run scores every claim in the repository and persists the results.
// Referential integrity is checked up front: a claim pointing at an unknown
// policy or claimant aborts the run before any score is written.
func (r *Runner) Run(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	runID := uuid.New().String()

	claims, err := r.repo.ListClaims(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load claims: %w", err)
	}
	policies, err := r.repo.ListPolicies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load policies: %w", err)
	}
	claimants, err := r.repo.ListClaimants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load claimants: %w", err)
	}

	policyByID := make(map[string]*domain.Policy, len(policies))
	for _, p := range policies {
		policyByID[p.ID] = p
	}
	partyByID := make(map[string]*domain.Claimant, len(claimants))
	for _, c := range claimants {
		partyByID[c.ID] = c
	}
	for _, c := range claims {
		if _, ok := policyByID[c.PolicyID]; !ok {
			return nil, fmt.Errorf("claim %s references unknown policy %s", c.ID, c.PolicyID)
		}
		if _, ok := partyByID[c.ClaimantID]; !ok {
			return nil, fmt.Errorf("claim %s references unknown claimant %s", c.ID, c.ClaimantID)
		}
	}

	builder := index.NewBuilder(claimants)
	builder.Add(claims...)
	snap, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build relationship index: %w", err)
	}

	slog.Info("scoring run started",
		"run_id", runID,
		"claims", len(claims),
		"workers", r.cfg.Workers,
	)

	// Bounded fan-out. Results land at their claim's position so output
	// order is deterministic regardless of scheduling.
	scores := make([]*domain.Score, len(claims))
	errs := make([]error, len(claims))
	sem := make(chan struct{}, r.cfg.Workers)
	var wg sync.WaitGroup
	for i, claim := range claims {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, claim *domain.Claim) {
			defer wg.Done()
			defer func() { <-sem }()
			score, err := r.agg.ScoreClaim(claim, policyByID[claim.PolicyID], partyByID[claim.ClaimantID], snap)
			scores[i], errs[i] = score, err
		}(i, claim)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("scoring run %s failed: %w", runID, err)
		}
	}

	if err := r.repo.SaveScores(ctx, scores); err != nil {
		return nil, fmt.Errorf("failed to persist scores: %w", err)
	}

	batch := r.cfg.BatchSize
	if batch <= 0 {
		batch = 500
	}
	for i := 0; i < len(scores); i += batch {
		end := i + batch
		if end > len(scores) {
			end = len(scores)
		}
		r.publishScored(ctx, runID, scores[i:end])
	}

	summary := &RunSummary{
		RunID:        runID,
		ClaimsScored: len(scores),
		Bands:        make(map[string]int, 4),
		StartedAt:    start.UTC(),
	}
	for _, s := range scores {
		band := r.agg.BandFor(s.RiskScore)
		summary.Bands[string(band.Level)]++
		if band.Level == domain.RiskCritical {
			summary.Alerts++
			r.publishAlert(ctx, runID, s, band)
		}
	}
	summary.DurationMs = time.Since(start).Milliseconds()

	r.publishCompleted(ctx, summary)

	slog.Info("scoring run completed",
		"run_id", runID,
		"claims_scored", summary.ClaimsScored,
		"alerts", summary.Alerts,
		"duration_ms", summary.DurationMs,
	)
	return summary, nil
}

// ScoredEvent is the payload published for each persisted score batch.
type ScoredEvent struct {
	RunID    string   `json:"runId"`
	ClaimIDs []string `json:"claimIds"`
}

func (r *Runner) publishScored(ctx context.Context, runID string, batch []*domain.Score) {
	if r.bus == nil {
		return
	}
	ids := make([]string, len(batch))
	for i, s := range batch {
		ids[i] = s.ClaimID
	}
	payload, err := json.Marshal(ScoredEvent{RunID: runID, ClaimIDs: ids})
	if err != nil {
		return
	}
	if err := r.bus.Publish(ctx, domain.TopicClaimScored, payload); err != nil {
		slog.Warn("failed to publish claim-scored event",
			"run_id", runID,
			"claims", len(ids),
			"error", err,
		)
	}
}

// AlertEvent is the payload published for each critical-band claim.
type AlertEvent struct {
	RunID     string   `json:"runId"`
	ClaimID   string   `json:"claimId"`
	RiskScore float64  `json:"riskScore"`
	Level     string   `json:"level"`
	Action    string   `json:"action"`
	Reasons   []string `json:"reasons"`
}

func (r *Runner) publishAlert(ctx context.Context, runID string, s *domain.Score, band domain.RiskBand) {
	if r.bus == nil {
		return
	}
	payload, err := json.Marshal(AlertEvent{
		RunID:     runID,
		ClaimID:   s.ClaimID,
		RiskScore: s.RiskScore,
		Level:     string(band.Level),
		Action:    band.Action,
		Reasons:   s.Reasons,
	})
	if err != nil {
		return
	}
	if err := r.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
		slog.Warn("failed to publish alert event",
			"claim_id", s.ClaimID,
			"error", err,
		)
	}
}

func (r *Runner) publishCompleted(ctx context.Context, summary *RunSummary) {
	if r.bus == nil {
		return
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := r.bus.Publish(ctx, domain.TopicRunCompleted, payload); err != nil {
		slog.Warn("failed to publish run-completed event",
			"run_id", summary.RunID,
			"error", err,
		)
	}
}
