package domain

import (
	"math"
	"time"
)

// Score is the persisted scoring result for a single claim. Exactly one row
// exists per scored claim; recomputation replaces the prior row wholesale.
// All four scores are in [0,1], rounded to 2 decimal places.
type Score struct {
	ClaimID    string    `json:"claimId"`
	RuleScore  float64   `json:"ruleScore"`
	MLScore    float64   `json:"mlScore"`
	GraphScore float64   `json:"graphScore"`
	RiskScore  float64   `json:"riskScore"`
	Reasons    []string  `json:"reasons"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RuleHit is one triggered rule, carrying the rendered tag for the reasons
// list plus the catalog metadata of the rule that fired.
type RuleHit struct {
	Rule     string   `json:"rule"`
	Tag      string   `json:"tag"`
	Severity Severity `json:"severity"`
	Weight   float64  `json:"weight"`
}

// Clamp bounds x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// Scale min-max normalizes x into [0,1], clamping out-of-range inputs rather
// than erroring. Returns 0 for a degenerate range.
func Scale(x, min, max float64) float64 {
	if max == min {
		return 0
	}
	return Clamp((x-min)/(max-min), 0, 1)
}

// Round2 rounds to 2 decimal places, the precision of every persisted score.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}
