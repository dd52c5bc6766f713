package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "harrier-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
		BatchSize:  3, // small batches exercise chunking
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetClaim", func(t *testing.T) {
		policy := &domain.Policy{
			ID:            "POL-TEST0001",
			InceptionDate: domain.Date(2025, 1, 1),
			ExpiryDate:    domain.Date(2026, 1, 1),
			Product:       domain.ProductAuto,
			Region:        "UK",
		}
		party := &domain.Claimant{
			ID:              "CLT-TEST0001",
			Name:            "Test Party",
			EmailHash:       "e-hash",
			PhoneHash:       "p-hash",
			AddressID:       "ADR-TEST0001",
			BankAccountHash: "b-hash",
			DeviceID:        "DEV-TEST0001",
		}
		claim := &domain.Claim{
			ID:         "CLM-TEST0001",
			PolicyID:   policy.ID,
			ClaimantID: party.ID,
			LossDate:   domain.Date(2025, 5, 10),
			ReportDate: domain.Date(2025, 5, 12),
			LossType:   domain.LossTheft,
			Amount:     4999,
			Status:     domain.StatusNew,
		}

		if err := repo.SavePolicies(ctx, []*domain.Policy{policy}); err != nil {
			t.Fatalf("SavePolicies failed: %v", err)
		}
		if err := repo.SaveClaimants(ctx, []*domain.Claimant{party}); err != nil {
			t.Fatalf("SaveClaimants failed: %v", err)
		}
		if err := repo.SaveClaims(ctx, []*domain.Claim{claim}); err != nil {
			t.Fatalf("SaveClaims failed: %v", err)
		}

		got, err := repo.GetClaim(ctx, claim.ID)
		if err != nil {
			t.Fatalf("GetClaim failed: %v", err)
		}
		if got.ID != claim.ID || got.PolicyID != claim.PolicyID || got.Amount != claim.Amount {
			t.Errorf("retrieved claim %+v does not match saved %+v", got, claim)
		}
		if !got.LossDate.Equal(claim.LossDate) {
			t.Errorf("loss date = %v, want %v", got.LossDate, claim.LossDate)
		}
		if got.LossType != domain.LossTheft || got.Status != domain.StatusNew {
			t.Errorf("enums round-trip failed: %+v", got)
		}
	})

	t.Run("GetClaimNotFound", func(t *testing.T) {
		_, err := repo.GetClaim(ctx, "CLM-MISSING1")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("GetClaimEmptyID", func(t *testing.T) {
		_, err := repo.GetClaim(ctx, "")
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got: %v", err)
		}
	})
}

func TestSaveScoresReplacesOnConflict(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := &domain.Score{
		ClaimID:    "CLM-SCORE001",
		RuleScore:  0.33,
		MLScore:    0.12,
		GraphScore: 0.08,
		RiskScore:  0.21,
		Reasons:    []string{"policy_inactive", "suspicious_amount≈10000"},
		CreatedAt:  time.Now().UTC(),
	}
	if err := repo.SaveScores(ctx, []*domain.Score{first}); err != nil {
		t.Fatalf("SaveScores failed: %v", err)
	}

	got, err := repo.GetScore(ctx, first.ClaimID)
	if err != nil {
		t.Fatalf("GetScore failed: %v", err)
	}
	if got.RiskScore != 0.21 || len(got.Reasons) != 2 {
		t.Errorf("retrieved score %+v does not match saved", got)
	}
	if got.Reasons[0] != "policy_inactive" {
		t.Errorf("reason 0 = %q, want policy_inactive", got.Reasons[0])
	}

	second := &domain.Score{
		ClaimID:    first.ClaimID,
		RuleScore:  0.17,
		MLScore:    0.12,
		GraphScore: 0.08,
		RiskScore:  0.14,
		Reasons:    []string{"late_reporting=35d"},
		CreatedAt:  time.Now().UTC(),
	}
	if err := repo.SaveScores(ctx, []*domain.Score{second}); err != nil {
		t.Fatalf("recompute SaveScores failed: %v", err)
	}

	got, err = repo.GetScore(ctx, first.ClaimID)
	if err != nil {
		t.Fatalf("GetScore after recompute failed: %v", err)
	}
	if got.RiskScore != 0.14 || len(got.Reasons) != 1 {
		t.Errorf("recompute did not replace the row: %+v", got)
	}

	n, err := repo.CountScores(ctx)
	if err != nil {
		t.Fatalf("CountScores failed: %v", err)
	}
	if n != 1 {
		t.Errorf("score rows = %d, want 1", n)
	}
}

func TestListScoresAbove(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	scores := []*domain.Score{
		{ClaimID: "CLM-A", RiskScore: 0.10, Reasons: []string{}, CreatedAt: time.Now().UTC()},
		{ClaimID: "CLM-B", RiskScore: 0.55, Reasons: []string{"late_reporting=40d"}, CreatedAt: time.Now().UTC()},
		{ClaimID: "CLM-C", RiskScore: 0.90, Reasons: []string{"policy_inactive"}, CreatedAt: time.Now().UTC()},
		{ClaimID: "CLM-D", RiskScore: 0.55, Reasons: []string{}, CreatedAt: time.Now().UTC()},
	}
	if err := repo.SaveScores(ctx, scores); err != nil {
		t.Fatalf("SaveScores failed: %v", err)
	}

	got, err := repo.ListScoresAbove(ctx, 0.5, 0)
	if err != nil {
		t.Fatalf("ListScoresAbove failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("scores above 0.5 = %d, want 3", len(got))
	}
	// Highest risk first, ties broken by claim ID.
	wantOrder := []string{"CLM-C", "CLM-B", "CLM-D"}
	for i, w := range wantOrder {
		if got[i].ClaimID != w {
			t.Errorf("position %d = %s, want %s", i, got[i].ClaimID, w)
		}
	}

	limited, err := repo.ListScoresAbove(ctx, 0.5, 2)
	if err != nil {
		t.Fatalf("limited ListScoresAbove failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limited results = %d, want 2", len(limited))
	}
}

func TestBatchedWritesAndListOrdering(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// 10 claims across a batch size of 3 exercises the chunked writer.
	var claims []*domain.Claim
	for i := 0; i < 10; i++ {
		claims = append(claims, &domain.Claim{
			ID:         string(rune('A'+9-i)) + "-CLM",
			PolicyID:   "POL-X",
			ClaimantID: "CLT-X",
			LossDate:   domain.Date(2025, 6, 1+9-i),
			ReportDate: domain.Date(2025, 7, 1),
			LossType:   domain.LossFire,
			Amount:     100,
			Status:     domain.StatusNew,
		})
	}
	if err := repo.SaveClaims(ctx, claims); err != nil {
		t.Fatalf("SaveClaims failed: %v", err)
	}

	got, err := repo.ListClaims(ctx)
	if err != nil {
		t.Fatalf("ListClaims failed: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("claims = %d, want 10", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].LossDate.Before(got[i-1].LossDate) {
			t.Errorf("claims not ordered by loss date at %d", i)
		}
	}

	// Re-saving the same claims is a no-op, not a constraint error.
	if err := repo.SaveClaims(ctx, claims); err != nil {
		t.Fatalf("idempotent SaveClaims failed: %v", err)
	}
	again, _ := repo.ListClaims(ctx)
	if len(again) != 10 {
		t.Errorf("claims after re-save = %d, want 10", len(again))
	}
}

func TestClaimantConflictUpdatesSharedKeys(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	party := &domain.Claimant{
		ID: "CLT-RING0001", Name: "Ring Member",
		EmailHash: "e", PhoneHash: "p",
		AddressID: "ADR-1", BankAccountHash: "bank-1", DeviceID: "DEV-1",
	}
	if err := repo.SaveClaimants(ctx, []*domain.Claimant{party}); err != nil {
		t.Fatalf("SaveClaimants failed: %v", err)
	}

	// The generator mutates cluster members to share ring keys after the
	// first write; the second save must update them.
	party.AddressID = "ADR-ring"
	party.BankAccountHash = "bank-ring"
	party.DeviceID = "DEV-ring"
	if err := repo.SaveClaimants(ctx, []*domain.Claimant{party}); err != nil {
		t.Fatalf("second SaveClaimants failed: %v", err)
	}

	all, err := repo.ListClaimants(ctx)
	if err != nil {
		t.Fatalf("ListClaimants failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("claimants = %d, want 1", len(all))
	}
	if all[0].BankAccountHash != "bank-ring" || all[0].AddressID != "ADR-ring" {
		t.Errorf("shared keys not updated: %+v", all[0])
	}
}
