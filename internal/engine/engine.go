// Package engine is the external facade over the accounting core. It
// owns the authorization table (admin role, issuer allow-list), the
// pause flag, and wires the ledger, bank, vault, locker, fee hook, and
// orchestrator into one callable surface.
package engine

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"mintledger/internal/bank"
	"mintledger/internal/domain"
	"mintledger/internal/feehook"
	"mintledger/internal/issuance"
	"mintledger/internal/ledger"
	"mintledger/internal/locker"
	"mintledger/internal/observability"
	"mintledger/internal/replay"
	"mintledger/internal/storage"
	"mintledger/internal/vault"
)

// Options configures an Engine.
type Options struct {
	// Store is the durable entry store. Required.
	Store storage.EntryStore

	// Admins are the initial administrator addresses. At least one is
	// required; further role changes go through admin operations.
	Admins []domain.Address

	// Issuers are the initially allow-listed deployer addresses.
	Issuers []domain.Address

	// FeeRecipient receives protocol-fee claims. Optional; claims fail
	// until one is configured.
	FeeRecipient domain.Address

	// ProtocolFeeRateBps is the initial protocol-fee rate.
	ProtocolFeeRateBps uint16

	// LiquidityFloorBps overrides the orchestrator's default floor.
	LiquidityFloorBps uint16

	// ReservationWindow overrides the ledger's default expiry window.
	ReservationWindow time.Duration

	// Sink receives per-trade fee event rows. Optional.
	Sink storage.FeeEventStore

	// Now overrides the clock; used by tests. Returns Unix ms.
	Now func() int64

	// Logger is optional.
	Logger *log.Logger
}

// Engine is the facade callers invoke. Each operation validates the
// caller's role, delegates to the owning component, and never leaves
// partial state behind on failure.
type Engine struct {
	ledger *ledger.Ledger
	bank   *bank.Bank
	vault  *vault.Vault
	locker *locker.Locker
	hook   *feehook.Hook
	rate   *feehook.ProtocolRate
	orch   *issuance.Orchestrator
	store  storage.EntryStore
	logger *log.Logger

	mu           sync.RWMutex // guards roles, feeRecipient, paused
	admins       map[domain.Address]bool
	issuers      map[domain.Address]bool
	feeRecipient domain.Address
	paused       bool
}

// New builds the full component graph and rebuilds ledger indexes from
// the store.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("new engine: store is required")
	}
	if len(opts.Admins) == 0 {
		return nil, fmt.Errorf("new engine: at least one admin is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	l, err := ledger.New(ctx, opts.Store, ledger.Options{
		ReservationWindow: opts.ReservationWindow,
		Now:               opts.Now,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}

	rate, err := feehook.NewProtocolRate(opts.ProtocolFeeRateBps)
	if err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}

	b := bank.New()
	v := vault.New(b)
	lk := locker.New(b, v)
	v.SetDepositor(lk.Address(), true)
	h := feehook.New(b, lk, rate, feehook.Options{
		Sink:   opts.Sink,
		Now:    opts.Now,
		Logger: logger,
	})
	orch := issuance.New(l, b, lk, h, issuance.Options{
		LiquidityFloorBps: opts.LiquidityFloorBps,
		Logger:            logger,
	})

	e := &Engine{
		ledger:       l,
		bank:         b,
		vault:        v,
		locker:       lk,
		hook:         h,
		rate:         rate,
		orch:         orch,
		store:        opts.Store,
		logger:       logger,
		admins:       make(map[domain.Address]bool, len(opts.Admins)),
		issuers:      make(map[domain.Address]bool, len(opts.Issuers)),
		feeRecipient: opts.FeeRecipient,
	}
	for _, a := range opts.Admins {
		e.admins[a] = true
	}
	for _, a := range opts.Issuers {
		e.issuers[a] = true
	}

	l.Subscribe(func(n domain.Notification) {
		observability.RecordAppend(string(n.Kind))
		observability.DefaultMetrics.LedgerLength.Set(float64(l.Len()))
		observability.DefaultMetrics.ActiveReservations.Set(float64(l.ReservationCount()))
		observability.DefaultMetrics.LastSuccessfulAppend.Set(float64(n.TimestampMs) / 1000)
	})

	return e, nil
}

// Ledger exposes the ledger for read-side callers (history, lookups,
// notification subscription).
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Bank exposes the balance book for read-side callers.
func (e *Engine) Bank() *bank.Bank { return e.bank }

// Locker exposes the liquidity locker for read-side callers.
func (e *Engine) Locker() *locker.Locker { return e.locker }

// Hook exposes the fee hook for read-side callers.
func (e *Engine) Hook() *feehook.Hook { return e.hook }

func (e *Engine) requireAdmin(op string, caller domain.Address) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.admins[caller] {
		return &domain.AuthorizationError{Op: op, Caller: caller, Role: "admin"}
	}
	return nil
}

func (e *Engine) requireIssuer(op string, caller domain.Address) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.issuers[caller] {
		return &domain.AuthorizationError{Op: op, Caller: caller, Role: "issuer"}
	}
	return nil
}

// Issue runs a full deployment. The caller must be an allow-listed
// issuer and issuance must not be paused.
func (e *Engine) Issue(ctx context.Context, caller domain.Address, cfg *domain.DeploymentConfig) (*issuance.Result, error) {
	const op = "issue"
	if err := e.requireIssuer(op, caller); err != nil {
		observability.RecordDeployment("unauthorized")
		return nil, err
	}
	e.mu.RLock()
	paused := e.paused
	e.mu.RUnlock()
	if paused {
		observability.RecordDeployment("paused")
		return nil, &domain.StateError{Op: op, Reason: "issuance is paused"}
	}

	res, err := e.orch.Deploy(ctx, caller, cfg)
	if err != nil {
		observability.RecordDeployment("failed")
		return nil, err
	}
	observability.RecordDeployment("ok")
	observability.RecordSupplyBucket("liquidity", res.LiquidityAmount)
	observability.RecordSupplyBucket("airdrop", res.AirdropAmount)
	observability.RecordSupplyBucket("owner", res.OwnerAmount)
	return res, nil
}

// ReserveTicker reserves a ticker for the caller. Any caller may
// reserve; conflicts surface as ConflictError.
func (e *Engine) ReserveTicker(ctx context.Context, caller domain.Address, ticker string) (uint64, error) {
	return e.ledger.Reserve(ctx, ticker, caller)
}

// ReleaseReservation releases the caller's own reservation.
func (e *Engine) ReleaseReservation(ctx context.Context, caller domain.Address, ticker string) (uint64, error) {
	return e.ledger.Release(ctx, ticker, caller)
}

// ReleaseExpiredReservation releases anyone's expired reservation.
func (e *Engine) ReleaseExpiredReservation(ctx context.Context, caller domain.Address, ticker string) (uint64, error) {
	return e.ledger.ReleaseExpired(ctx, ticker, caller)
}

// ClaimCreator transfers a token's creator role. The caller must be the
// current creator.
func (e *Engine) ClaimCreator(ctx context.Context, caller, token, newCreator domain.Address) (uint64, error) {
	return e.ledger.ClaimCreator(ctx, token, newCreator, caller)
}

// ClaimFees pays the full accrued vault balance of (owner, asset) to the
// owner. Anyone may trigger a claim on any owner's behalf.
func (e *Engine) ClaimFees(ctx context.Context, owner, asset domain.Address) (uint64, error) {
	amount, err := e.vault.Claim(ctx, owner, asset)
	if err != nil {
		return 0, err
	}
	observability.RecordClaim(amount)
	return amount, nil
}

// ObserveTrade reports one executed trade against a registered pool.
// The payer funds the current trade's fee; the previous trade's accrued
// fee is collected and split first.
func (e *Engine) ObserveTrade(ctx context.Context, pool domain.Address, direction domain.TradeDirection, amount uint64, payer domain.Address) (*feehook.TradeResult, error) {
	res, err := e.hook.ObserveTrade(ctx, pool, direction, amount, payer)
	if err != nil {
		return nil, err
	}
	observability.RecordTrade(string(direction), res.FeeCharged, res.ProtocolShare, res.UserShare)
	return res, nil
}

// ClaimProtocolFees pays the accrued protocol share of an asset to the
// configured fee recipient. Admin only.
func (e *Engine) ClaimProtocolFees(ctx context.Context, caller, asset domain.Address) (uint64, error) {
	const op = "claim_protocol_fees"
	if err := e.requireAdmin(op, caller); err != nil {
		return 0, err
	}
	e.mu.RLock()
	recipient := e.feeRecipient
	e.mu.RUnlock()
	if recipient.Zero() {
		return 0, &domain.StateError{Op: op, Reason: "no fee recipient configured"}
	}
	return e.hook.ClaimProtocolFees(ctx, asset, recipient)
}

// AdminSetProtocolFeeRate updates the global protocol-fee rate. The new
// rate applies to the very next collection on every pool.
func (e *Engine) AdminSetProtocolFeeRate(caller domain.Address, bps uint16) error {
	const op = "admin_set_protocol_fee_rate"
	if err := e.requireAdmin(op, caller); err != nil {
		return err
	}
	if err := e.rate.Set(bps); err != nil {
		return err
	}
	e.logger.Printf("protocol fee rate set to %d bps by %s", bps, caller)
	return nil
}

// AdminSetDeployer adds or removes an address from the issuer
// allow-list.
func (e *Engine) AdminSetDeployer(caller, addr domain.Address, enabled bool) error {
	const op = "admin_set_deployer"
	if err := e.requireAdmin(op, caller); err != nil {
		return err
	}
	if addr.Zero() {
		return &domain.ValidationError{Op: op, Field: "address", Reason: "zero address"}
	}
	e.mu.Lock()
	if enabled {
		e.issuers[addr] = true
	} else {
		delete(e.issuers, addr)
	}
	e.mu.Unlock()
	e.logger.Printf("issuer %s enabled=%t by %s", addr, enabled, caller)
	return nil
}

// AdminSetFeeRecipient changes where protocol-fee claims are paid.
func (e *Engine) AdminSetFeeRecipient(caller, addr domain.Address) error {
	const op = "admin_set_fee_recipient"
	if err := e.requireAdmin(op, caller); err != nil {
		return err
	}
	if addr.Zero() {
		return &domain.ValidationError{Op: op, Field: "address", Reason: "zero address"}
	}
	e.mu.Lock()
	e.feeRecipient = addr
	e.mu.Unlock()
	return nil
}

// AdminSetFeeHookBehavior swaps the fee-splitting behavior module. The
// hook's identity and accrued state are untouched.
func (e *Engine) AdminSetFeeHookBehavior(caller domain.Address, b feehook.Behavior) error {
	const op = "admin_set_fee_hook_behavior"
	if err := e.requireAdmin(op, caller); err != nil {
		return err
	}
	if b == nil {
		return &domain.ValidationError{Op: op, Field: "behavior", Reason: "nil"}
	}
	e.hook.SetBehavior(b)
	e.logger.Printf("fee hook behavior swapped by %s", caller)
	return nil
}

// AdminPause stops issuance. Trades, claims, and releases keep working.
func (e *Engine) AdminPause(caller domain.Address) error {
	if err := e.requireAdmin("admin_pause", caller); err != nil {
		return err
	}
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	e.logger.Printf("issuance paused by %s", caller)
	return nil
}

// AdminResume re-enables issuance.
func (e *Engine) AdminResume(caller domain.Address) error {
	if err := e.requireAdmin("admin_resume", caller); err != nil {
		return err
	}
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	e.logger.Printf("issuance resumed by %s", caller)
	return nil
}

// Paused reports whether issuance is paused.
func (e *Engine) Paused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.paused
}

// VerifySnapshot replays the entry store from sequence 0 and diffs the
// rebuilt indexes against the live ones.
func (e *Engine) VerifySnapshot(ctx context.Context) (*replay.Report, error) {
	start := time.Now()
	rebuilt, err := replay.Rebuild(ctx, e.store, e.ledger.ReservationWindowMs())
	if err != nil {
		return nil, fmt.Errorf("verify snapshot: %w", err)
	}
	report := replay.Verify(rebuilt, e.ledger.Snapshot())
	observability.RecordVerification(report.Match, len(report.Divergences), time.Since(start).Seconds())
	if !report.Match {
		e.logger.Printf("snapshot verification found %d divergences", len(report.Divergences))
	}
	return report, nil
}
