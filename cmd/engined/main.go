// Package main provides the unified engine server:
// - Accounting engine: ledger, issuance, fee accounting
// - WebSocket notification feed for external indexers
// - Scheduled snapshot verification (live indexes vs fresh replay)
// - Health, status, and Prometheus metrics endpoints
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"mintledger/internal/address"
	"mintledger/internal/domain"
	"mintledger/internal/engine"
	"mintledger/internal/notify"
	"mintledger/internal/observability"
	"mintledger/internal/storage"
	chstore "mintledger/internal/storage/clickhouse"
	"mintledger/internal/storage/memory"
	"mintledger/internal/storage/migrations"
	pgstore "mintledger/internal/storage/postgres"
)

// Server holds the engine and its schedulers.
type Server struct {
	engine         *engine.Engine
	hub            *notify.Hub
	verifyInterval time.Duration
	logger         *log.Logger

	mu            sync.Mutex
	started       time.Time
	lastVerifyRun time.Time
	verifyRuns    int
	lastVerifyOK  bool
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	listenAddr := flag.String("listen-addr", ":8080", "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional fee analytics sink)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	admins := flag.String("admins", os.Getenv("ENGINE_ADMINS"), "Comma-separated admin addresses (required)")
	issuers := flag.String("issuers", os.Getenv("ENGINE_ISSUERS"), "Comma-separated issuer addresses")
	feeRecipient := flag.String("fee-recipient", os.Getenv("ENGINE_FEE_RECIPIENT"), "Protocol fee recipient address")
	protocolFeeBps := flag.Uint("protocol-fee-bps", 2500, "Initial protocol fee rate in bps [0, 4000]")
	liquidityFloorBps := flag.Uint("liquidity-floor-bps", 0, "Minimum liquidity share in bps (0 = default)")
	reservationWindow := flag.Duration("reservation-window", 0, "Ticker reservation expiry window (0 = default 24h)")
	verifyInterval := flag.Duration("verify-interval", 1*time.Hour, "Snapshot verification interval (0 = disabled)")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[engined] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	adminList, err := splitAddresses(*admins)
	if err != nil {
		logger.Fatalf("--admins: %v", err)
	}
	if len(adminList) == 0 {
		logger.Fatal("--admins is required")
	}
	issuerList, err := splitAddresses(*issuers)
	if err != nil {
		logger.Fatalf("--issuers: %v", err)
	}
	var recipient domain.Address
	if *feeRecipient != "" {
		recipient, err = address.Parse(*feeRecipient)
		if err != nil {
			logger.Fatalf("--fee-recipient: %v", err)
		}
	}
	protocolRate, err := parseBpsFlag("--protocol-fee-bps", *protocolFeeBps, domain.MaxProtocolFeeBps)
	if err != nil {
		logger.Fatal(err)
	}
	liquidityFloor, err := parseBpsFlag("--liquidity-floor-bps", *liquidityFloorBps, domain.BpsDenominator)
	if err != nil {
		logger.Fatal(err)
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create stores
	store, sink, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Create engine
	eng, err := engine.New(ctx, engine.Options{
		Store:              store,
		Admins:             adminList,
		Issuers:            issuerList,
		FeeRecipient:       recipient,
		ProtocolFeeRateBps: protocolRate,
		LiquidityFloorBps:  liquidityFloor,
		ReservationWindow:  *reservationWindow,
		Sink:               sink,
		Logger:             logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create engine: %v", err)
	}
	logger.Printf("Engine ready: %d ledger entries, %d admins, %d issuers",
		eng.Ledger().Len(), len(adminList), len(issuerList))

	// Wire the notification feed
	hub := notify.NewHub(nil, logger)
	defer hub.Close()
	eng.Ledger().Subscribe(hub.Broadcast)

	server := &Server{
		engine:         eng,
		hub:            hub,
		verifyInterval: *verifyInterval,
		logger:         logger,
		started:        time.Now(),
		lastVerifyOK:   true,
	}

	// Uptime heartbeat for /metrics
	go func() {
		tick := time.NewTicker(time.Second)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				observability.DefaultMetrics.UptimeSeconds.Inc()
			}
		}
	}()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	// Start HTTP server
	go server.startHTTPServer(ctx, *listenAddr)

	// Run the verification scheduler until cancelled
	if err := server.runVerifyScheduler(ctx); err != nil && err != context.Canceled {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// parseBpsFlag range-checks a bps flag before narrowing it to uint16,
// so an out-of-range value fails instead of silently wrapping.
func parseBpsFlag(name string, v, max uint) (uint16, error) {
	if v > max {
		return 0, fmt.Errorf("%s must be in [0, %d], got %d", name, max, v)
	}
	return uint16(v), nil
}

// splitAddresses parses a comma-separated base58 address list.
func splitAddresses(s string) ([]domain.Address, error) {
	var out []domain.Address
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		addr, err := address.Parse(part)
		if err != nil {
			return nil, fmt.Errorf("address %q: %w", part, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

// createStores creates the entry store and optional fee event sink.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool, logger *log.Logger) (storage.EntryStore, storage.FeeEventStore, func(), error) {
	if useMemory {
		logger.Println("Using in-memory storage")
		return memory.NewEntryStore(), memory.NewFeeEventStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("run postgres migrations: %w", err)
	}

	var sink storage.FeeEventStore
	cleanup := func() { pool.Close() }

	if clickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			conn.Close()
			pool.Close()
			return nil, nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
		}
		sink = chstore.NewFeeEventStore(conn)
		cleanup = func() {
			conn.Close()
			pool.Close()
		}
	}

	return pgstore.NewEntryStore(pool), sink, cleanup, nil
}

// runVerifyScheduler periodically replays the ledger and diffs the live
// indexes against the rebuilt ones.
func (s *Server) runVerifyScheduler(ctx context.Context) error {
	if s.verifyInterval <= 0 {
		s.logger.Println("Snapshot verification disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.verifyInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			report, err := s.engine.VerifySnapshot(ctx)
			s.mu.Lock()
			s.lastVerifyRun = time.Now()
			s.verifyRuns++
			s.lastVerifyOK = err == nil && report.Match
			s.mu.Unlock()
			if err != nil {
				s.logger.Printf("Snapshot verification failed: %v", err)
				continue
			}
			if !report.Match {
				s.logger.Printf("SNAPSHOT DIVERGENCE: %d divergences over %d entries",
					len(report.Divergences), report.EntriesReplayed)
			} else {
				s.logger.Printf("Snapshot verified: %d entries, indexes match", report.EntriesReplayed)
			}
		}
	}
}

// startHTTPServer starts the HTTP server for health/metrics/status/ws.
func (s *Server) startHTTPServer(ctx context.Context, addr string) {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Notification feed
	mux.Handle("/ws", s.hub)

	// Status endpoint
	mux.HandleFunc("/status", s.handleStatus)

	httpServer := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Printf("Starting HTTP server on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("HTTP server error: %v", err)
	}
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status        string    `json:"status"`
	Uptime        string    `json:"uptime"`
	LedgerLength  uint64    `json:"ledger_length"`
	Paused        bool      `json:"paused"`
	Subscribers   int       `json:"subscribers"`
	VerifyRuns    int       `json:"verify_runs"`
	LastVerifyRun time.Time `json:"last_verify_run,omitempty"`
	LastVerifyOK  bool      `json:"last_verify_ok"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := StatusResponse{
		Status:        "running",
		Uptime:        time.Since(s.started).String(),
		LedgerLength:  s.engine.Ledger().Len(),
		Paused:        s.engine.Paused(),
		Subscribers:   s.hub.ClientCount(),
		VerifyRuns:    s.verifyRuns,
		LastVerifyRun: s.lastVerifyRun,
		LastVerifyOK:  s.lastVerifyOK,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
