package generator

import (
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func smallConfig() Config {
	return Config{
		Seed:             42,
		Claims:           200,
		Policies:         80,
		Addresses:        60,
		Claimants:        100,
		Rings:            5,
		VelocityClusters: 4,
		Now:              domain.Date(2026, 8, 1),
	}
}

func TestGenerateShape(t *testing.T) {
	res := New(smallConfig()).Generate()
	ds := res.Dataset

	if len(ds.Addresses) != 60 {
		t.Errorf("addresses = %d, want 60", len(ds.Addresses))
	}
	if len(ds.Policies) != 80 {
		t.Errorf("policies = %d, want 80", len(ds.Policies))
	}
	if len(ds.Claimants) != 100 {
		t.Errorf("claimants = %d, want 100", len(ds.Claimants))
	}
	// Base claims plus 4 clusters of 3-6 injected claims.
	if n := len(ds.Claims); n < 212 || n > 224 {
		t.Errorf("claims = %d, want 200 base + 12..24 injected", n)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	a := New(smallConfig()).Generate()
	b := New(smallConfig()).Generate()

	if len(a.Dataset.Claims) != len(b.Dataset.Claims) {
		t.Fatalf("claim counts differ: %d vs %d", len(a.Dataset.Claims), len(b.Dataset.Claims))
	}
	for i := range a.Dataset.Claims {
		ca, cb := a.Dataset.Claims[i], b.Dataset.Claims[i]
		if ca.ID != cb.ID || ca.Amount != cb.Amount || !ca.LossDate.Equal(cb.LossDate) {
			t.Fatalf("claim %d differs: %+v vs %+v", i, ca, cb)
		}
	}
	if len(a.FraudLabels) != len(b.FraudLabels) {
		t.Errorf("label counts differ: %d vs %d", len(a.FraudLabels), len(b.FraudLabels))
	}
}

func TestGenerateDifferentSeedsDiffer(t *testing.T) {
	cfg := smallConfig()
	a := New(cfg).Generate()
	cfg.Seed = 43
	b := New(cfg).Generate()

	if a.Dataset.Claims[0].ID == b.Dataset.Claims[0].ID {
		t.Error("different seeds produced identical claim IDs")
	}
}

func TestGenerateReferentialIntegrity(t *testing.T) {
	res := New(smallConfig()).Generate()
	ds := res.Dataset

	policyIDs := make(map[string]bool)
	for _, p := range ds.Policies {
		policyIDs[p.ID] = true
	}
	claimantIDs := make(map[string]bool)
	addressIDs := make(map[string]bool)
	for _, a := range ds.Addresses {
		addressIDs[a.ID] = true
	}
	for _, c := range ds.Claimants {
		claimantIDs[c.ID] = true
		if !addressIDs[c.AddressID] {
			t.Errorf("claimant %s references unknown address %s", c.ID, c.AddressID)
		}
	}
	for _, c := range ds.Claims {
		if !policyIDs[c.PolicyID] {
			t.Errorf("claim %s references unknown policy %s", c.ID, c.PolicyID)
		}
		if !claimantIDs[c.ClaimantID] {
			t.Errorf("claim %s references unknown claimant %s", c.ID, c.ClaimantID)
		}
	}
}

func TestGenerateIDFormats(t *testing.T) {
	res := New(smallConfig()).Generate()
	ds := res.Dataset

	checks := []struct {
		prefix string
		id     string
	}{
		{"ADR-", ds.Addresses[0].ID},
		{"POL-", ds.Policies[0].ID},
		{"CLT-", ds.Claimants[0].ID},
		{"CLM-", ds.Claims[0].ID},
	}
	for _, c := range checks {
		if !strings.HasPrefix(c.id, c.prefix) || len(c.id) != len(c.prefix)+8 {
			t.Errorf("id %q should be %s plus 8 characters", c.id, c.prefix)
		}
	}

	if len(ds.Claimants[0].BankAccountHash) != 64 {
		t.Errorf("bank hash length = %d, want 64 hex chars", len(ds.Claimants[0].BankAccountHash))
	}
}

func TestGenerateFraudInjection(t *testing.T) {
	res := New(smallConfig()).Generate()

	if len(res.FraudLabels) == 0 {
		t.Fatal("no fraud labels injected")
	}
	// Base fraud rate is 6-8% plus the velocity cluster claims.
	rate := float64(len(res.FraudLabels)) / float64(len(res.Dataset.Claims))
	if rate < 0.05 || rate > 0.25 {
		t.Errorf("fraud rate = %.3f, want between 0.05 and 0.25", rate)
	}

	claimByID := make(map[string]*domain.Claim)
	for _, c := range res.Dataset.Claims {
		claimByID[c.ID] = c
	}
	for id := range res.FraudLabels {
		if claimByID[id] == nil {
			t.Errorf("fraud label %s has no matching claim", id)
		}
	}
}

func TestGeneratePolicyWindows(t *testing.T) {
	res := New(smallConfig()).Generate()
	for _, p := range res.Dataset.Policies {
		if !p.ExpiryDate.After(p.InceptionDate) {
			t.Errorf("policy %s: expiry %v not after inception %v", p.ID, p.ExpiryDate, p.InceptionDate)
		}
		if span := domain.DaysBetween(p.InceptionDate, p.ExpiryDate); span < 180 || span > 720 {
			t.Errorf("policy %s: term %d days, want 180..720", p.ID, span)
		}
	}
}

func TestGenerateVelocityClustersShareWindow(t *testing.T) {
	cfg := smallConfig()
	cfg.VelocityClusters = 1
	res := New(cfg).Generate()

	// The injected cluster claims are the labeled ones with StatusNew
	// beyond the base count; they all fall inside one 14-day window.
	injected := res.Dataset.Claims[cfg.Claims:]
	if len(injected) < 3 || len(injected) > 6 {
		t.Fatalf("injected cluster size = %d, want 3..6", len(injected))
	}
	var lo, hi time.Time
	for i, c := range injected {
		if !res.FraudLabels[c.ID] {
			t.Errorf("cluster claim %s is not labeled fraudulent", c.ID)
		}
		if i == 0 || c.LossDate.Before(lo) {
			lo = c.LossDate
		}
		if i == 0 || c.LossDate.After(hi) {
			hi = c.LossDate
		}
	}
	if domain.DaysBetween(lo, hi) > 13 {
		t.Errorf("cluster spans %d days, want within the 14-day window", domain.DaysBetween(lo, hi))
	}
}
