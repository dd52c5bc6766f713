package worker

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/generator"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/scoring"
)

func newWorkerFixture(t *testing.T) (*Worker, domain.Repository, domain.EventBus) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "harrier-worker-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	b := bus.NewChannelBus(100)
	t.Cleanup(func() { b.Close() })

	agg, err := scoring.NewAggregator(domain.DefaultScoringConfig())
	if err != nil {
		t.Fatalf("failed to create aggregator: %v", err)
	}
	runner := scoring.NewRunner(repo, b, agg, domain.RunConfig{Workers: 4})

	w := NewWorker(b, runner)
	t.Cleanup(func() { _ = w.Stop() })
	return w, repo, b
}

func seedSmallDataset(t *testing.T, repo domain.Repository) int {
	t.Helper()
	res := generator.New(generator.Config{
		Seed: 7, Claims: 60, Policies: 30, Addresses: 20, Claimants: 40,
		Rings: 3, VelocityClusters: 2, Now: domain.Date(2026, 8, 1),
	}).Generate()

	ctx := context.Background()
	if err := repo.SaveAddresses(ctx, res.Dataset.Addresses); err != nil {
		t.Fatalf("seed addresses: %v", err)
	}
	if err := repo.SavePolicies(ctx, res.Dataset.Policies); err != nil {
		t.Fatalf("seed policies: %v", err)
	}
	if err := repo.SaveClaimants(ctx, res.Dataset.Claimants); err != nil {
		t.Fatalf("seed claimants: %v", err)
	}
	if err := repo.SaveClaims(ctx, res.Dataset.Claims); err != nil {
		t.Fatalf("seed claims: %v", err)
	}
	return len(res.Dataset.Claims)
}

func waitForScores(t *testing.T, repo domain.Repository, want int64) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		n, err := repo.CountScores(context.Background())
		if err != nil {
			t.Fatalf("CountScores failed: %v", err)
		}
		if n == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("scores = %d, want %d before deadline", n, want)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestWorkerRunsOnRunRequested(t *testing.T) {
	w, repo, b := newWorkerFixture(t)
	n := seedSmallDataset(t, repo)

	if err := w.Start(); err != nil {
		t.Fatalf("worker start failed: %v", err)
	}

	completed := make(chan struct{}, 1)
	b.Subscribe(context.Background(), domain.TopicRunCompleted, func(ctx context.Context, msg *domain.Message) error {
		completed <- struct{}{}
		return nil
	})

	if err := b.Publish(context.Background(), domain.TopicRunRequested, []byte(`{"requestedBy":"test"}`)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	waitForScores(t, repo, int64(n))
	select {
	case <-completed:
	case <-time.After(5 * time.Second):
		t.Fatal("run-completed event not published")
	}
}

func TestWorkerRunsOnDatasetSeeded(t *testing.T) {
	w, repo, b := newWorkerFixture(t)
	n := seedSmallDataset(t, repo)

	if err := w.Start(); err != nil {
		t.Fatalf("worker start failed: %v", err)
	}

	payload, err := json.Marshal(DatasetSeeded{Claims: n, Seed: 7})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if err := b.Publish(context.Background(), domain.TopicDatasetSeeded, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	waitForScores(t, repo, int64(n))
}

func TestWorkerStopUnsubscribes(t *testing.T) {
	w, repo, b := newWorkerFixture(t)
	seedSmallDataset(t, repo)

	if err := w.Start(); err != nil {
		t.Fatalf("worker start failed: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("worker stop failed: %v", err)
	}

	// Triggers after Stop must not start a run.
	if err := b.Publish(context.Background(), domain.TopicRunRequested, []byte(`{"requestedBy":"test"}`)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	count, err := repo.CountScores(context.Background())
	if err != nil {
		t.Fatalf("count scores: %v", err)
	}
	if count != 0 {
		t.Errorf("scores written after Stop = %d, want 0", count)
	}
}

func TestWorkerToleratesMalformedPayload(t *testing.T) {
	w, repo, b := newWorkerFixture(t)
	n := seedSmallDataset(t, repo)

	if err := w.Start(); err != nil {
		t.Fatalf("worker start failed: %v", err)
	}

	// A bad payload is logged, not fatal; the run still happens.
	if err := b.Publish(context.Background(), domain.TopicRunRequested, []byte("not json")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	waitForScores(t, repo, int64(n))
}
