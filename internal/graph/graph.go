// Package graph scores the relationship signal of a claim.
//
// The aggregated graph score is a two-factor degree formula over the
// claimant's bank and address sharing counts. The richer graph rules
// (high-degree nodes, triangles) are evaluated as findings alongside the
// score; kinds without a local evaluator are carried as catalog metadata
// and skipped.
package graph

import (
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/features"
)

// Scorer computes the graph signal from an extracted feature vector.
// Immutable after construction; safe for concurrent use.
type Scorer struct {
	cfg *domain.ScoringConfig
}

// NewScorer returns a scorer over the configured graph formula and rules.
func NewScorer(cfg *domain.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score is the aggregated graph signal in [0, 1]:
//
//	clamp(bankWeight*scale(bankDegree, 0, max) + addressWeight*scale(addressDegree, 0, max), 0, 1)
//
// Device sharing influences the rule and feature signals but not this
// formula.
func (s *Scorer) Score(v *features.Vector) float64 {
	g := s.cfg.Graph
	score := g.BankWeight*domain.Scale(float64(v.BankReuse), 0, g.DegreeMax) +
		g.AddressWeight*domain.Scale(float64(v.AddressDegree), 0, g.DegreeMax)
	return domain.Clamp(score, 0, 1)
}

// Finding is one triggered graph rule with the value that crossed its
// threshold.
type Finding struct {
	Rule      string               `json:"rule"`
	Kind      domain.GraphRuleKind `json:"kind"`
	Keyspace  string               `json:"keyspace,omitempty"`
	Value     float64              `json:"value"`
	Threshold float64              `json:"threshold"`
	Severity  domain.Severity      `json:"severity"`
}

// Findings evaluates the declared graph rules against the vector and
// returns the triggered ones in catalog order.
func (s *Scorer) Findings(v *features.Vector) []Finding {
	var out []Finding
	for _, rc := range s.cfg.Graph.Rules {
		value, evaluated := s.evaluate(rc, v)
		if !evaluated || value < rc.Threshold {
			continue
		}
		out = append(out, Finding{
			Rule:      rc.Name,
			Kind:      rc.Kind,
			Keyspace:  rc.Keyspace,
			Value:     value,
			Threshold: rc.Threshold,
			Severity:  rc.Severity,
		})
	}
	return out
}

// evaluate returns the observed value for one graph rule. The second return
// is false for kinds this scorer cannot evaluate locally.
func (s *Scorer) evaluate(rc domain.GraphRuleConfig, v *features.Vector) (float64, bool) {
	switch rc.Kind {
	case domain.GraphHighDegree:
		switch rc.Keyspace {
		case "bank":
			return float64(v.BankReuse), true
		case "address":
			return float64(v.AddressDegree), true
		case "device":
			return float64(v.DeviceReuse), true
		}
		return 0, false
	case domain.GraphTriangle:
		// A closed sharing pattern: the number of keyspaces in which this
		// claimant's key is shared with at least one other claim.
		shared := 0.0
		for _, degree := range []int{v.BankReuse, v.AddressDegree, v.DeviceReuse} {
			if degree >= 2 {
				shared++
			}
		}
		return shared, true
	default:
		// Community, centrality and clustering rules require a full graph
		// pass and are declared for downstream analytics only.
		return 0, false
	}
}

// Unevaluated lists the catalog rules that have no local evaluator, for
// surfacing in the stats endpoint.
func (s *Scorer) Unevaluated() []string {
	var names []string
	for _, rc := range s.cfg.Graph.Rules {
		switch rc.Kind {
		case domain.GraphHighDegree, domain.GraphTriangle:
			continue
		}
		names = append(names, rc.Name)
	}
	return names
}
