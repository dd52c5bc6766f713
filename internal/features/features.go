// Package features computes the per-claim feature vector shared by the rule
// evaluator, the pseudo-ML anomaly scorer and the graph scorer.
package features

import (
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/index"
)

// Vector holds the raw, un-normalized signals for one claim. Day counts keep
// their sign: a negative DaysSinceInception means the loss predates the
// policy, which is itself a rule signal.
type Vector struct {
	Amount             float64
	DaysToReport       int
	DaysSinceInception int
	DaysPastExpiry     int

	NearestThreshold  float64
	ThresholdDistance float64

	Prior12m int
	Prior6m  int

	VelocityAddress int
	VelocityBank    int
	VelocityDevice  int

	BankReuse     int
	AddressDegree int
	DeviceReuse   int
}

// Extract derives the feature vector for a claim from its policy, its
// claimant and the frozen relationship index. Velocity counts include the
// claim itself; prior counts are strictly-before.
func Extract(claim *domain.Claim, policy *domain.Policy, party *domain.Claimant, snap *index.Snapshot, cfg *domain.ScoringConfig) *Vector {
	v := &Vector{
		Amount:             claim.Amount,
		DaysToReport:       domain.DaysBetween(claim.LossDate, claim.ReportDate),
		DaysSinceInception: domain.DaysBetween(policy.InceptionDate, claim.LossDate),
		DaysPastExpiry:     domain.DaysBetween(policy.ExpiryDate, claim.LossDate),
	}

	threshold, distance := cfg.NearestThreshold(claim.Amount)
	v.NearestThreshold = threshold.Value
	v.ThresholdDistance = distance

	v.Prior12m = len(snap.ClaimsBefore(claim.ClaimantID, claim.LossDate, 365))
	v.Prior6m = len(snap.ClaimsBefore(claim.ClaimantID, claim.LossDate, 182))

	w := cfg.VelocityWindowDays
	v.VelocityAddress = len(snap.ClaimsWithin(index.KeyAddress, party.AddressID, claim.LossDate, w))
	v.VelocityBank = len(snap.ClaimsWithin(index.KeyBank, party.BankAccountHash, claim.LossDate, w))
	v.VelocityDevice = len(snap.ClaimsWithin(index.KeyDevice, party.DeviceID, claim.LossDate, w))

	v.BankReuse = snap.Count(index.KeyBank, party.BankAccountHash)
	v.AddressDegree = snap.Count(index.KeyAddress, party.AddressID)
	v.DeviceReuse = snap.Count(index.KeyDevice, party.DeviceID)

	return v
}

// Scorer computes the weighted anomaly score from a feature vector.
// Not a learned model: a fixed min-max normalization and weight table.
type Scorer struct {
	cfg *domain.ScoringConfig
}

// NewScorer creates a feature scorer over the given configuration.
func NewScorer(cfg *domain.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score normalizes the configured features into [0,1] (clamping out-of-range
// inputs) and returns the weighted sum, clamped to [0,1]. Deterministic for
// identical inputs.
func (s *Scorer) Score(v *Vector) float64 {
	var total float64
	for _, f := range s.cfg.Features {
		total += f.Weight * domain.Scale(s.raw(v, f.Name), f.Min, f.Max)
	}
	return domain.Clamp(total, 0, 1)
}

// raw maps a configured feature name to its vector field. Day counts feed
// the normalizer with negatives intact; Scale clamps them to the range floor.
func (s *Scorer) raw(v *Vector, name string) float64 {
	switch name {
	case "amount":
		return v.Amount
	case "days_to_report":
		return float64(v.DaysToReport)
	case "days_since_inception":
		return float64(v.DaysSinceInception)
	case "prior_claims_12m":
		return float64(v.Prior12m)
	case "bank_reuse_count":
		return float64(v.BankReuse)
	case "address_degree":
		return float64(v.AddressDegree)
	case "velocity_14d":
		return float64(v.VelocityAddress)
	}
	return 0
}
