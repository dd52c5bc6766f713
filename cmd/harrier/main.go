// Harrier - Claim fraud scoring that deploys in 60 seconds.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/harrier/internal/api"
	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/generator"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/scoring"
	"github.com/opensource-finance/harrier/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg := loadConfig()
	initLogger(cfg.Logging)

	slog.Info("starting harrier",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "seed":
		err = runSeed(cfg, args)
	case "score":
		err = runScore(cfg)
	case "serve":
		err = runServe(cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

// loadConfig builds the tier configuration with environment overrides.
func loadConfig() *domain.Config {
	cfg := domain.DefaultConfig()
	if os.Getenv("HARRIER_TIER") == "pro" {
		cfg = domain.ProConfig()
	}

	if v := os.Getenv("HARRIER_DB_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("HARRIER_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("HARRIER_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if os.Getenv("HARRIER_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}
	if v := os.Getenv("HARRIER_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	return cfg
}

func initLogger(cfg domain.LoggingConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

// runSeed generates a synthetic dataset and persists it.
func runSeed(cfg *domain.Config, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	genCfg := generator.DefaultConfig()
	fs.Int64Var(&genCfg.Seed, "seed", genCfg.Seed, "random seed")
	fs.IntVar(&genCfg.Claims, "claims", genCfg.Claims, "baseline claim count")
	fs.IntVar(&genCfg.Policies, "policies", genCfg.Policies, "policy count")
	fs.IntVar(&genCfg.Claimants, "claimants", genCfg.Claimants, "claimant count")
	fs.IntVar(&genCfg.Rings, "rings", genCfg.Rings, "fraud ring count")
	if err := fs.Parse(args); err != nil {
		return err
	}

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()

	ctx := context.Background()
	start := time.Now()

	result := generator.New(genCfg).Generate()
	ds := result.Dataset
	slog.Info("dataset generated",
		"seed", genCfg.Seed,
		"claims", len(ds.Claims),
		"policies", len(ds.Policies),
		"claimants", len(ds.Claimants),
	)

	if err := repo.SaveAddresses(ctx, ds.Addresses); err != nil {
		return fmt.Errorf("failed to save addresses: %w", err)
	}
	if err := repo.SavePolicies(ctx, ds.Policies); err != nil {
		return fmt.Errorf("failed to save policies: %w", err)
	}
	if err := repo.SaveClaimants(ctx, ds.Claimants); err != nil {
		return fmt.Errorf("failed to save claimants: %w", err)
	}
	if err := repo.SaveClaims(ctx, ds.Claims); err != nil {
		return fmt.Errorf("failed to save claims: %w", err)
	}

	// Announce the new dataset so a running serve process picks it up.
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()

	payload, err := json.Marshal(worker.DatasetSeeded{Claims: len(ds.Claims), Seed: genCfg.Seed})
	if err != nil {
		return fmt.Errorf("failed to encode seed event: %w", err)
	}
	if err := busImpl.Publish(ctx, domain.TopicDatasetSeeded, payload); err != nil {
		slog.Warn("failed to publish dataset-seeded event", "error", err)
	}

	slog.Info("dataset seeded",
		"claims", len(ds.Claims),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// runScore runs one scoring pass over the stored dataset and exits.
func runScore(cfg *domain.Config) error {
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()

	agg, err := scoring.NewAggregator(domain.DefaultScoringConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize aggregator: %w", err)
	}

	runner := scoring.NewRunner(repo, nil, agg, cfg.Scoring)
	summary, err := runner.Run(context.Background())
	if err != nil {
		return err
	}

	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))
	return nil
}

// runServe starts the HTTP API and the async scoring worker.
func runServe(cfg *domain.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	scoringCfg := domain.DefaultScoringConfig()
	agg, err := scoring.NewAggregator(scoringCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize aggregator: %w", err)
	}
	slog.Info("scoring aggregator initialized",
		"rules", len(scoringCfg.Rules),
		"features", len(scoringCfg.Features),
	)

	runner := scoring.NewRunner(repo, busImpl, agg, cfg.Scoring)
	asyncWorker := worker.NewWorker(busImpl, runner)
	if err := asyncWorker.Start(); err != nil {
		return fmt.Errorf("failed to start async worker: %w", err)
	}
	slog.Info("async worker started")

	srv := api.NewServer(cfg.Server, scoringCfg, repo, cacheImpl, busImpl, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			cancel()
		}
	}()

	slog.Info("harrier is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop async worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("harrier shutdown complete")
	return nil
}

func printUsage() {
	fmt.Println("Usage: harrier <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  seed    Generate a synthetic claim dataset and store it")
	fmt.Println("  score   Run one scoring pass over the stored dataset")
	fmt.Println("  serve   Start the HTTP API and async scoring worker")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 HARRIER                  ║")
	fmt.Println("  ║       Claim Fraud Scoring Engine          ║")
	fmt.Println("  ║       Eyes on every claim.                ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /claims/{id}        - Get claim by ID")
	fmt.Println("    GET  /claims/{id}/score  - Get score with risk band")
	fmt.Println("    GET  /scores             - List scores (min_risk, band, limit)")
	fmt.Println("    GET  /stats              - Scored population summary")
	fmt.Println("    POST /runs               - Trigger an async scoring run")
	fmt.Println("    GET  /health             - Health check")
	fmt.Println()
}
