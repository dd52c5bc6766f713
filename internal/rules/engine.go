// Package rules provides the CEL-Go based rule evaluation engine.
//
// Every rule in the catalog is a CEL expression over a fixed set of per-claim
// variables computed by the feature extractor. The catalog is compiled once
// at startup; a malformed expression stops the process before any claim is
// scored.
package rules

import (
	"fmt"
	"strconv"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/features"
)

// Engine evaluates the compiled rule catalog against claim feature vectors.
// Immutable after construction; safe for concurrent use.
type Engine struct {
	cfg      *domain.ScoringConfig
	compiled []compiledRule
}

type compiledRule struct {
	config  domain.RuleConfig
	program cel.Program
}

// NewEngine compiles the catalog. Rules evaluate in catalog-declared order,
// which is also the order of the emitted reason tags.
func NewEngine(cfg *domain.ScoringConfig) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("days_to_report", cel.IntType),
		cel.Variable("days_since_inception", cel.IntType),
		cel.Variable("days_past_expiry", cel.IntType),
		cel.Variable("nearest_threshold", cel.DoubleType),
		cel.Variable("threshold_distance", cel.DoubleType),
		cel.Variable("prior_12m", cel.IntType),
		cel.Variable("prior_6m", cel.IntType),
		cel.Variable("velocity_address", cel.IntType),
		cel.Variable("velocity_bank", cel.IntType),
		cel.Variable("velocity_device", cel.IntType),
		cel.Variable("bank_reuse", cel.IntType),
		cel.Variable("address_reuse", cel.IntType),
		cel.Variable("device_reuse", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{cfg: cfg, compiled: make([]compiledRule, 0, len(cfg.Rules))}
	for _, rc := range cfg.Rules {
		ast, issues := env.Compile(rc.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile rule %s: %w", rc.Name, issues.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rc.Name, ast.OutputType())
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to create program for rule %s: %w", rc.Name, err)
		}
		e.compiled = append(e.compiled, compiledRule{config: rc, program: program})
	}
	return e, nil
}

// RulesCount returns the number of compiled rules.
func (e *Engine) RulesCount() int {
	return len(e.compiled)
}

// Evaluate runs every rule against the vector and returns the hits in
// catalog order. The hit list is not capped here: the aggregator derives the
// rule score from the full count and caps only the reasons.
func (e *Engine) Evaluate(v *features.Vector) ([]domain.RuleHit, error) {
	activation := activationFor(v)

	var hits []domain.RuleHit
	for _, rule := range e.compiled {
		out, _, err := rule.program.Eval(activation)
		if err != nil {
			return nil, fmt.Errorf("rule %s evaluation failed: %w", rule.config.Name, err)
		}
		fired, ok := out.(types.Bool)
		if !ok {
			return nil, fmt.Errorf("rule %s returned non-bool result", rule.config.Name)
		}
		if !bool(fired) {
			continue
		}
		hits = append(hits, domain.RuleHit{
			Rule:     rule.config.Name,
			Tag:      renderTag(rule.config, activation),
			Severity: rule.config.Severity,
			Weight:   rule.config.Weight,
		})
	}
	return hits, nil
}

// RuleScore is the scalar rule signal: a flat hit-count ratio against the
// reason cap, not a severity-weighted sum. The catalog weights are carried
// for future use but deliberately not consulted here.
func (e *Engine) RuleScore(hits []domain.RuleHit) float64 {
	return domain.Clamp(float64(len(hits))/float64(e.cfg.MaxReasons), 0, 1)
}

func activationFor(v *features.Vector) map[string]any {
	return map[string]any{
		"amount":               v.Amount,
		"days_to_report":       int64(v.DaysToReport),
		"days_since_inception": int64(v.DaysSinceInception),
		"days_past_expiry":     int64(v.DaysPastExpiry),
		"nearest_threshold":    v.NearestThreshold,
		"threshold_distance":   v.ThresholdDistance,
		"prior_12m":            int64(v.Prior12m),
		"prior_6m":             int64(v.Prior6m),
		"velocity_address":     int64(v.VelocityAddress),
		"velocity_bank":        int64(v.VelocityBank),
		"velocity_device":      int64(v.VelocityDevice),
		"bank_reuse":           int64(v.BankReuse),
		"address_reuse":        int64(v.AddressDegree),
		"device_reuse":         int64(v.DeviceReuse),
	}
}

// renderTag produces the reason string: the base tag plus, when the catalog
// entry names a detail variable, its observed value ("late_reporting=37d").
func renderTag(rc domain.RuleConfig, activation map[string]any) string {
	if rc.DetailVar == "" {
		return rc.Tag
	}
	val, ok := activation[rc.DetailVar]
	if !ok {
		return rc.Tag
	}
	n, ok := val.(int64)
	if !ok {
		return rc.Tag
	}
	return rc.Tag + "=" + strconv.FormatInt(n, 10) + rc.DetailUnit
}
