// Package main verifies a persisted ledger: it replays every entry from
// sequence 0 through the verifier's rebuild path, rebuilds the live
// indexes through the ledger's own startup path, and diffs the two.
// Exits non-zero on any divergence, so it can run as a cron check.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mintledger/internal/ledger"
	"mintledger/internal/replay"
	"mintledger/internal/storage/migrations"
	pgstore "mintledger/internal/storage/postgres"
)

// CheckResult is the JSON output of one verification run.
type CheckResult struct {
	EntriesReplayed uint64              `json:"entries_replayed"`
	Match           bool                `json:"match"`
	DurationMs      int64               `json:"duration_ms"`
	Divergences     []replay.Divergence `json:"divergences,omitempty"`
}

func main() {
	// Parse flags
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string (required)")
	reservationWindow := flag.Duration("reservation-window", 0, "Ticker reservation expiry window; must match the serving engine's (0 = default 24h)")
	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	// Setup structured logger
	logger := log.New(os.Stderr, "[replaycheck] ", log.LstdFlags)

	// Validate required flags
	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	// Connect and migrate
	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("connect to postgres: %v", err)
	}
	defer pool.Close()
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.Fatalf("run migrations: %v", err)
	}
	store := pgstore.NewEntryStore(pool)

	start := time.Now()

	// Live path: the ledger's own startup rebuild.
	live, err := ledger.New(ctx, store, ledger.Options{
		ReservationWindow: *reservationWindow,
		Logger:            logger,
	})
	if err != nil {
		logger.Fatalf("rebuild live indexes: %v", err)
	}

	// Verifier path: an independent replay of the same entries.
	rebuilt, err := replay.Rebuild(ctx, store, live.ReservationWindowMs())
	if err != nil {
		logger.Fatalf("replay entries: %v", err)
	}

	report := replay.Verify(rebuilt, live.Snapshot())
	result := CheckResult{
		EntriesReplayed: report.EntriesReplayed,
		Match:           report.Match,
		DurationMs:      time.Since(start).Milliseconds(),
		Divergences:     report.Divergences,
	}

	if *outputJSON {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("\n=== Replay Check ===\n")
		fmt.Printf("Entries Replayed:  %d\n", result.EntriesReplayed)
		fmt.Printf("Duration:          %dms\n", result.DurationMs)
		if result.Match {
			fmt.Printf("Result:            MATCH\n")
		} else {
			fmt.Printf("Result:            DIVERGED (%d)\n", len(result.Divergences))
			for _, d := range result.Divergences {
				fmt.Printf("  %-40s expected=%v actual=%v\n", d.Field, d.Expected, d.Actual)
			}
		}
	}

	if !result.Match {
		os.Exit(1)
	}
}
