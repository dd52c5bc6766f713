package domain

import (
	"fmt"
	"math"
)

// Severity labels a rule's standalone seriousness. Informational: the scalar
// rule score is a flat hit-count ratio and does not weight by severity.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RuleConfig is one entry of the rule catalog. Trigger logic is a CEL
// expression over the per-claim activation built by the feature extractor;
// name, expression, severity and weight are configuration, not code.
type RuleConfig struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Expression  string   `json:"expression"`
	Severity    Severity `json:"severity"`

	// Weight is reserved for severity-weighted aggregation. The current
	// rule score intentionally ignores it (flat count / 6).
	Weight float64 `json:"weight"`

	// Tag is the base reason string emitted when the rule fires.
	// DetailVar optionally names an activation variable whose observed
	// value is appended, e.g. "late_reporting=37d".
	Tag        string `json:"tag"`
	DetailVar  string `json:"detailVar,omitempty"`
	DetailUnit string `json:"detailUnit,omitempty"`
}

// FeatureConfig declares one pseudo-ML feature: its clamped normalization
// range and its weight in the anomaly score.
type FeatureConfig struct {
	Name   string  `json:"name"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Weight float64 `json:"weight"`
}

// GraphRuleKind distinguishes the graph-rule variants of the catalog.
type GraphRuleKind string

const (
	GraphSimpleDegree GraphRuleKind = "simple_degree"
	GraphHighDegree   GraphRuleKind = "high_degree"
	GraphTriangle     GraphRuleKind = "triangle"
	GraphCommunity    GraphRuleKind = "community"
	GraphCentrality   GraphRuleKind = "centrality"
	GraphClustering   GraphRuleKind = "clustering"
)

// GraphRuleConfig is one declared graph rule. Only the SimpleDegree formula
// feeds the aggregated graph score; the richer kinds are carried as catalog
// metadata and evaluable extensions.
type GraphRuleConfig struct {
	Name      string        `json:"name"`
	Kind      GraphRuleKind `json:"kind"`
	Keyspace  string        `json:"keyspace,omitempty"` // address, bank, device
	Threshold float64       `json:"threshold"`
	Weight    float64       `json:"weight"`
	Severity  Severity      `json:"severity"`
}

// GraphConfig holds the wired two-factor degree formula plus the declared
// rule catalog.
type GraphConfig struct {
	BankWeight    float64           `json:"bankWeight"`
	AddressWeight float64           `json:"addressWeight"`
	DegreeMax     float64           `json:"degreeMax"`
	Rules         []GraphRuleConfig `json:"rules"`
}

// ProductAdjustment carries per-product threshold multipliers. Like the
// richer graph rules, these are declared catalog metadata: the wired
// scoring path applies the same thresholds to every product.
type ProductAdjustment struct {
	AmountMultiplier     float64 `json:"amountMultiplier"`
	VelocitySensitivity  float64 `json:"velocitySensitivity"`
	InceptionSpikeWeight float64 `json:"inceptionSpikeWeight"`
}

// SignalWeights combines the three independent signals into the risk score.
type SignalWeights struct {
	Rule  float64 `json:"rule"`
	ML    float64 `json:"ml"`
	Graph float64 `json:"graph"`
}

// RiskLevel is a named severity tier derived from the risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskBand maps a risk-score range to a level and a recommended action.
// A band matches scores strictly below Below; the final band has Below = 1+ε
// and catches everything at or above the previous cutoff.
type RiskBand struct {
	Level  RiskLevel `json:"level"`
	Below  float64   `json:"below"`
	Action string    `json:"action"`
}

// AmountThreshold is one suspicious round-number threshold with its
// allowed variance.
type AmountThreshold struct {
	Value    float64 `json:"value"`
	Variance float64 `json:"variance"`
}

// ScoringConfig is the complete, immutable weight/threshold configuration
// shared by the rule evaluator, feature scorer, graph scorer and aggregator.
// It is constructed once at process start and passed explicitly into each
// component so tests can substitute alternate tables.
type ScoringConfig struct {
	Rules              []RuleConfig      `json:"rules"`
	Features           []FeatureConfig   `json:"features"`
	Graph              GraphConfig       `json:"graph"`
	Weights            SignalWeights     `json:"weights"`
	Bands              []RiskBand        `json:"bands"`
	AmountThresholds   []AmountThreshold `json:"amountThresholds"`
	VelocityWindowDays int               `json:"velocityWindowDays"`
	MaxReasons         int               `json:"maxReasons"`

	// ProductAdjustments is catalog metadata, not consumed by the aggregator.
	ProductAdjustments map[Product]ProductAdjustment `json:"productAdjustments"`
}

// BandFor maps a risk score to its band. Bands are checked in configured
// order; the last band is the catch-all.
func (c *ScoringConfig) BandFor(score float64) RiskBand {
	for _, b := range c.Bands {
		if score < b.Below {
			return b
		}
	}
	return c.Bands[len(c.Bands)-1]
}

// NearestThreshold returns the suspicious threshold closest to amount and
// the absolute distance to it.
func (c *ScoringConfig) NearestThreshold(amount float64) (AmountThreshold, float64) {
	best := c.AmountThresholds[0]
	bd := math.Abs(amount - best.Value)
	for _, t := range c.AmountThresholds[1:] {
		if d := math.Abs(amount - t.Value); d < bd {
			best, bd = t, d
		}
	}
	return best, bd
}

// Validate checks the catalog for misconfiguration. Called once at startup;
// a malformed catalog must stop the process before any claim is scored.
func (c *ScoringConfig) Validate() error {
	if len(c.Rules) == 0 {
		return fmt.Errorf("scoring config: rule catalog is empty")
	}
	seen := make(map[string]bool, len(c.Rules))
	for _, r := range c.Rules {
		if r.Name == "" || r.Expression == "" {
			return fmt.Errorf("scoring config: rule %q: name and expression are required", r.Name)
		}
		if seen[r.Name] {
			return fmt.Errorf("scoring config: duplicate rule %q", r.Name)
		}
		seen[r.Name] = true
		if r.Tag == "" {
			return fmt.Errorf("scoring config: rule %q: tag is required", r.Name)
		}
	}

	var featSum float64
	for _, f := range c.Features {
		if f.Max <= f.Min {
			return fmt.Errorf("scoring config: feature %q: max must exceed min", f.Name)
		}
		featSum += f.Weight
	}
	if math.Abs(featSum-1.0) > 1e-9 {
		return fmt.Errorf("scoring config: feature weights sum to %.4f, want 1.0", featSum)
	}

	if sum := c.Weights.Rule + c.Weights.ML + c.Weights.Graph; math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("scoring config: signal weights sum to %.4f, want 1.0", sum)
	}
	if c.Graph.DegreeMax <= 0 {
		return fmt.Errorf("scoring config: graph degree max must be positive")
	}

	if len(c.Bands) == 0 {
		return fmt.Errorf("scoring config: risk bands are empty")
	}
	prev := math.Inf(-1)
	for _, b := range c.Bands {
		if b.Below <= prev {
			return fmt.Errorf("scoring config: risk bands must be strictly ascending at %q", b.Level)
		}
		prev = b.Below
	}

	if len(c.AmountThresholds) == 0 {
		return fmt.Errorf("scoring config: amount thresholds are empty")
	}
	for _, t := range c.AmountThresholds {
		if t.Value <= 0 || t.Variance < 0 {
			return fmt.Errorf("scoring config: malformed amount threshold %.2f", t.Value)
		}
	}

	if c.VelocityWindowDays <= 0 {
		return fmt.Errorf("scoring config: velocity window must be positive")
	}
	if c.MaxReasons <= 0 {
		return fmt.Errorf("scoring config: max reasons must be positive")
	}
	return nil
}

// DefaultScoringConfig returns the reference catalog: 16 threshold/window
// rules, 7 normalized features, the two-factor graph formula plus the
// declared graph-rule catalog, the 45/35/20 signal split and the four
// risk bands.
func DefaultScoringConfig() *ScoringConfig {
	return &ScoringConfig{
		Rules: []RuleConfig{
			{
				Name:        "late_reporting",
				Description: "Claim reported more than 30 days after the loss",
				Expression:  "days_to_report > 30",
				Severity:    SeverityMedium,
				Weight:      0.15,
				Tag:         "late_reporting",
				DetailVar:   "days_to_report",
				DetailUnit:  "d",
			},
			{
				Name:        "policy_inactive_before",
				Description: "Loss occurred before policy inception",
				Expression:  "days_since_inception < 0",
				Severity:    SeverityCritical,
				Weight:      0.25,
				Tag:         "policy_inactive",
			},
			{
				Name:        "policy_inactive_after",
				Description: "Loss occurred after policy expiry",
				Expression:  "days_past_expiry > 0",
				Severity:    SeverityCritical,
				Weight:      0.25,
				Tag:         "policy_inactive",
			},
			{
				Name:        "inception_spike",
				Description: "Loss within 3 days of policy inception",
				Expression:  "days_since_inception >= 0 && days_since_inception <= 3 && days_past_expiry <= 0",
				Severity:    SeverityMedium,
				Weight:      0.12,
				Tag:         "inception_spike",
			},
			{
				Name:        "suspicious_amount_5k",
				Description: "Amount within £50 of the £5,000 threshold",
				Expression:  "nearest_threshold == 5000.0 && threshold_distance <= 50.0",
				Severity:    SeverityLow,
				Weight:      0.08,
				Tag:         "suspicious_amount≈5000",
			},
			{
				Name:        "suspicious_amount_10k",
				Description: "Amount within £100 of the £10,000 threshold",
				Expression:  "nearest_threshold == 10000.0 && threshold_distance <= 100.0",
				Severity:    SeverityMedium,
				Weight:      0.10,
				Tag:         "suspicious_amount≈10000",
			},
			{
				Name:        "suspicious_amount_15k",
				Description: "Amount within £150 of the £15,000 threshold",
				Expression:  "nearest_threshold == 15000.0 && threshold_distance <= 150.0",
				Severity:    SeverityMedium,
				Weight:      0.10,
				Tag:         "suspicious_amount≈15000",
			},
			{
				Name:        "suspicious_amount_20k",
				Description: "Amount within £200 of the £20,000 threshold",
				Expression:  "nearest_threshold == 20000.0 && threshold_distance <= 200.0",
				Severity:    SeverityMedium,
				Weight:      0.12,
				Tag:         "suspicious_amount≈20000",
			},
			{
				Name:        "velocity_14d_address",
				Description: "3+ claims from the same address within 14 days",
				Expression:  "velocity_address >= 3",
				Severity:    SeverityHigh,
				Weight:      0.18,
				Tag:         "velocity_14d_address",
				DetailVar:   "velocity_address",
			},
			{
				Name:        "velocity_14d_bank",
				Description: "3+ claims to the same bank account within 14 days",
				Expression:  "velocity_bank >= 3",
				Severity:    SeverityHigh,
				Weight:      0.20,
				Tag:         "velocity_14d_bank",
				DetailVar:   "velocity_bank",
			},
			{
				Name:        "velocity_14d_device",
				Description: "3+ claims from the same device within 14 days",
				Expression:  "velocity_device >= 3",
				Severity:    SeverityHigh,
				Weight:      0.18,
				Tag:         "velocity_14d_device",
				DetailVar:   "velocity_device",
			},
			{
				Name:        "bank_reuse_30d",
				Description: "Bank account shared by more than 5 claims",
				Expression:  "bank_reuse > 5",
				Severity:    SeverityHigh,
				Weight:      0.16,
				Tag:         "bank_reuse_30d",
				DetailVar:   "bank_reuse",
			},
			{
				Name:        "address_reuse_90d",
				Description: "Address shared by more than 4 claims",
				Expression:  "address_reuse > 4",
				Severity:    SeverityMedium,
				Weight:      0.14,
				Tag:         "address_reuse_90d",
				DetailVar:   "address_reuse",
			},
			{
				Name:        "device_reuse_60d",
				Description: "Device shared by more than 3 claims",
				Expression:  "device_reuse > 3",
				Severity:    SeverityMedium,
				Weight:      0.12,
				Tag:         "device_reuse_60d",
				DetailVar:   "device_reuse",
			},
			{
				Name:        "prior_claims_12m",
				Description: "Claimant has 3+ earlier claims within 12 months",
				Expression:  "prior_12m >= 3",
				Severity:    SeverityMedium,
				Weight:      0.10,
				Tag:         "prior_claims_12m",
				DetailVar:   "prior_12m",
			},
			{
				Name:        "prior_claims_6m",
				Description: "Claimant has 2+ earlier claims within 6 months",
				Expression:  "prior_6m >= 2",
				Severity:    SeverityLow,
				Weight:      0.08,
				Tag:         "prior_claims_6m",
				DetailVar:   "prior_6m",
			},
		},
		Features: []FeatureConfig{
			{Name: "amount", Min: 0, Max: 25000, Weight: 0.15},
			{Name: "days_to_report", Min: 0, Max: 90, Weight: 0.20},
			{Name: "days_since_inception", Min: 0, Max: 730, Weight: 0.10},
			{Name: "prior_claims_12m", Min: 0, Max: 8, Weight: 0.15},
			{Name: "bank_reuse_count", Min: 0, Max: 10, Weight: 0.20},
			{Name: "address_degree", Min: 0, Max: 10, Weight: 0.10},
			{Name: "velocity_14d", Min: 0, Max: 8, Weight: 0.10},
		},
		Graph: GraphConfig{
			BankWeight:    0.6,
			AddressWeight: 0.4,
			DegreeMax:     12,
			Rules: []GraphRuleConfig{
				{Name: "high_degree_bank_node", Kind: GraphHighDegree, Keyspace: "bank", Threshold: 8, Weight: 0.25, Severity: SeverityCritical},
				{Name: "high_degree_address_node", Kind: GraphHighDegree, Keyspace: "address", Threshold: 6, Weight: 0.20, Severity: SeverityHigh},
				{Name: "high_degree_device_node", Kind: GraphHighDegree, Keyspace: "device", Threshold: 5, Weight: 0.18, Severity: SeverityHigh},
				{Name: "triangle_pattern", Kind: GraphTriangle, Threshold: 3, Weight: 0.22, Severity: SeverityCritical},
				{Name: "community_detection", Kind: GraphCommunity, Threshold: 1.5, Weight: 0.15, Severity: SeverityMedium},
				{Name: "betweenness_centrality", Kind: GraphCentrality, Threshold: 0.1, Weight: 0.12, Severity: SeverityMedium},
				{Name: "clustering_coefficient", Kind: GraphClustering, Threshold: 0.3, Weight: 0.10, Severity: SeverityLow},
			},
		},
		Weights: SignalWeights{Rule: 0.45, ML: 0.35, Graph: 0.20},
		Bands: []RiskBand{
			{Level: RiskLow, Below: 0.3, Action: "monitor"},
			{Level: RiskMedium, Below: 0.5, Action: "review"},
			{Level: RiskHigh, Below: 0.85, Action: "investigate"},
			{Level: RiskCritical, Below: 1.01, Action: "escalate_siu"},
		},
		AmountThresholds: []AmountThreshold{
			{Value: 5000, Variance: 50},
			{Value: 10000, Variance: 100},
			{Value: 15000, Variance: 150},
			{Value: 20000, Variance: 200},
		},
		VelocityWindowDays: 14,
		MaxReasons:         6,
		ProductAdjustments: map[Product]ProductAdjustment{
			ProductAuto:   {AmountMultiplier: 1.0, VelocitySensitivity: 1.2, InceptionSpikeWeight: 1.3},
			ProductHome:   {AmountMultiplier: 1.5, VelocitySensitivity: 0.8, InceptionSpikeWeight: 1.0},
			ProductTravel: {AmountMultiplier: 0.6, VelocitySensitivity: 1.1, InceptionSpikeWeight: 0.8},
		},
	}
}
