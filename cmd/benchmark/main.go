// Benchmark tool for testing Harrier against its synthetic fraud labels.
//
// Usage:
//   go run cmd/benchmark/main.go -seed 42 -claims 5000 -threshold 0.5
//
// This tool:
//   1. Generates a synthetic claim dataset (with injected fraud labels)
//   2. Scores every claim in-process with the reference catalog
//   3. Compares the risk verdict (risk >= threshold) with injection labels
//   4. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/generator"
	"github.com/opensource-finance/harrier/internal/index"
	"github.com/opensource-finance/harrier/internal/scoring"
)

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Injected fraud above threshold
	FalsePositives int64 // Clean claim above threshold
	TrueNegatives  int64 // Clean claim below threshold
	FalseNegatives int64 // Injected fraud below threshold (missed fraud!)

	TotalProcessed int64
	TotalFraud     int64
	TotalNonFraud  int64
	TotalErrors    int64

	BandCounts sync.Map // band level -> *int64
}

func main() {
	seed := flag.Int64("seed", 42, "Dataset generation seed")
	claims := flag.Int("claims", 5000, "Baseline claim count")
	threshold := flag.Float64("threshold", 0.5, "Risk score at or above which a claim is flagged")
	workers := flag.Int("workers", 10, "Number of concurrent scoring workers")
	verbose := flag.Bool("verbose", false, "Print each mismatched claim")
	flag.Parse()

	if *threshold < 0 || *threshold > 1 {
		fmt.Println("threshold must be in [0,1]")
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        HARRIER BENCHMARK - Injected Fraud Detection           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nSeed:       %d\n", *seed)
	fmt.Printf("Claims:     %d\n", *claims)
	fmt.Printf("Threshold:  %.2f\n", *threshold)
	fmt.Printf("Workers:    %d\n", *workers)
	fmt.Println()

	cfg := domain.DefaultScoringConfig()
	agg, err := scoring.NewAggregator(cfg)
	if err != nil {
		fmt.Printf("ERROR: failed to build aggregator: %v\n", err)
		os.Exit(1)
	}

	genCfg := generator.DefaultConfig()
	genCfg.Seed = *seed
	genCfg.Claims = *claims

	fmt.Println("Generating dataset...")
	result := generator.New(genCfg).Generate()
	ds := result.Dataset

	fraudCount := 0
	for _, c := range ds.Claims {
		if result.FraudLabels[c.ID] {
			fraudCount++
		}
	}
	fmt.Printf("✓ Generated %d claims\n", len(ds.Claims))
	fmt.Printf("  - Fraud:     %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(ds.Claims)))
	fmt.Printf("  - Non-fraud: %d (%.2f%%)\n", len(ds.Claims)-fraudCount, 100*float64(len(ds.Claims)-fraudCount)/float64(len(ds.Claims)))

	snap, err := index.NewBuilder(ds.Claimants).Add(ds.Claims...).Build()
	if err != nil {
		fmt.Printf("ERROR: failed to build relationship index: %v\n", err)
		os.Exit(1)
	}

	policyByID := make(map[string]*domain.Policy, len(ds.Policies))
	for _, p := range ds.Policies {
		policyByID[p.ID] = p
	}
	partyByID := make(map[string]*domain.Claimant, len(ds.Claimants))
	for _, c := range ds.Claimants {
		partyByID[c.ID] = c
	}

	fmt.Printf("\nScoring with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(ds, result.FraudLabels, agg, cfg, policyByID, partyByID, snap, *threshold, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, cfg, duration, *threshold)
}

func runBenchmark(
	ds *domain.Dataset,
	labels map[string]bool,
	agg *scoring.Aggregator,
	cfg *domain.ScoringConfig,
	policyByID map[string]*domain.Policy,
	partyByID map[string]*domain.Claimant,
	snap *index.Snapshot,
	threshold float64,
	numWorkers int,
	verbose bool,
) *Metrics {
	metrics := &Metrics{}

	work := make(chan *domain.Claim, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for claim := range work {
				score, err := agg.ScoreClaim(claim, policyByID[claim.PolicyID], partyByID[claim.ClaimantID], snap)

				atomic.AddInt64(&metrics.TotalProcessed, 1)
				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", claim.ID, err)
					}
					continue
				}

				actual := labels[claim.ID]
				if actual {
					atomic.AddInt64(&metrics.TotalFraud, 1)
				} else {
					atomic.AddInt64(&metrics.TotalNonFraud, 1)
				}

				band := cfg.BandFor(score.RiskScore)
				counter, _ := metrics.BandCounts.LoadOrStore(string(band.Level), new(int64))
				atomic.AddInt64(counter.(*int64), 1)

				predicted := score.RiskScore >= threshold
				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose && predicted != actual {
					fmt.Printf("✗ %s | Amount: $%10.2f | Fraud: %-5v | Risk: %.2f (%s) | Reasons: %v\n",
						claim.ID,
						claim.Amount,
						actual,
						score.RiskScore,
						band.Level,
						score.Reasons,
					)
				}
			}
		}()
	}

	for _, claim := range ds.Claims {
		work <- claim
	}
	close(work)
	wg.Wait()

	return metrics
}

func printResults(m *Metrics, cfg *domain.ScoringConfig, duration time.Duration, threshold float64) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Non-Fraud:  %d\n", m.TotalNonFraud)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📉 RISK BANDS\n")
	for _, b := range cfg.Bands {
		count := int64(0)
		if v, ok := m.BandCounts.Load(string(b.Level)); ok {
			count = atomic.LoadInt64(v.(*int64))
		}
		fmt.Printf("   %-10s %8d\n", b.Level, count)
	}

	fmt.Printf("\n📈 CONFUSION MATRIX (flagged = risk >= %.2f)\n", threshold)
	fmt.Println("                        Predicted")
	fmt.Println("                 Flagged      Clean")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  F  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("          NF  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged claims, how many were injected fraud)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of injected fraud, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalFraud > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalFraud) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalFraud) * 100
		fmt.Printf("   Fraud Detected:    %d / %d (%.2f%%)\n", m.TruePositives, m.TotalFraud, detectionRate)
		fmt.Printf("   Fraud Missed:      %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalFraud, missRate)
	}
	if m.TotalNonFraud > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalNonFraud) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalNonFraud, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		cps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Throughput:       %.2f claims/sec\n", cps)
	}

	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most injected fraud")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some fraud")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - significant fraud being missed")
	} else {
		fmt.Println("   ❌ Poor recall - most fraud is being missed!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - flagged claims are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many false alarms")
	} else {
		fmt.Println("   ❌ Very low precision - mostly false alarms")
	}

	fmt.Println()
}
