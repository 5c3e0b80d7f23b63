// Package issuance implements the deployment orchestrator. It validates
// a deployment configuration, mints supply, drives the locker, airdrop
// distributor, and fee hook in sequence, and appends the canonical
// TokenRegistered entry last.
package issuance

import (
	"context"
	"fmt"
	"io"
	"log"

	"mintledger/internal/address"
	"mintledger/internal/airdrop"
	"mintledger/internal/bank"
	"mintledger/internal/domain"
	"mintledger/internal/feehook"
	"mintledger/internal/idhash"
	"mintledger/internal/ledger"
	"mintledger/internal/locker"
)

// DefaultLiquidityFloorBps is the minimum liquidity share unless
// configured otherwise.
const DefaultLiquidityFloorBps = 500

// Result reports the outcome of a successful deployment.
type Result struct {
	Token domain.Address
	Pool  domain.Address
	Entry uint64 // sequence of the TokenRegistered entry

	LiquidityAmount uint64
	AirdropAmount   uint64
	OwnerAmount     uint64
}

// Options configures an Orchestrator.
type Options struct {
	// LiquidityFloorBps overrides DefaultLiquidityFloorBps.
	LiquidityFloorBps uint16

	// Logger is optional.
	Logger *log.Logger
}

// Orchestrator drives token issuance end to end.
type Orchestrator struct {
	ledger   *ledger.Ledger
	bank     *bank.Bank
	locker   *locker.Locker
	airdrop  *airdrop.Distributor
	hook     *feehook.Hook
	addr     domain.Address
	floorBps uint16
	logger   *log.Logger
}

// New creates an orchestrator. The airdrop distributor must be bound to
// the orchestrator's address as its authorized caller.
func New(l *ledger.Ledger, b *bank.Bank, lk *locker.Locker, h *feehook.Hook, opts Options) *Orchestrator {
	floor := opts.LiquidityFloorBps
	if floor == 0 {
		floor = DefaultLiquidityFloorBps
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	o := &Orchestrator{
		ledger:   l,
		bank:     b,
		locker:   lk,
		hook:     h,
		addr:     address.Derive([]byte("issuance-orchestrator")),
		floorBps: floor,
		logger:   logger,
	}
	o.airdrop = airdrop.New(b, o.addr)
	return o
}

// Address returns the orchestrator's account address.
func (o *Orchestrator) Address() domain.Address {
	return o.addr
}

// Distributor returns the airdrop distributor bound to this orchestrator.
func (o *Orchestrator) Distributor() *airdrop.Distributor {
	return o.airdrop
}

// Deploy validates the configuration and issues the token. Every check
// runs before any state changes, so a failed deployment is never
// externally observable. The token identity derives deterministically
// from the caller and the salt: the same inputs always produce the same
// identity, and a re-deploy at an existing identity fails.
func (o *Orchestrator) Deploy(ctx context.Context, caller domain.Address, cfg *domain.DeploymentConfig) (*Result, error) {
	const op = "deploy"

	airdropAmounts, airdropTotal, err := o.validate(cfg)
	if err != nil {
		return nil, err
	}

	token := idhash.TokenID(caller, cfg.Salt, idhash.ConfigDigest(cfg))
	pool := idhash.PoolID(token, cfg.QuoteAsset)

	// Conflict checks before anything mints.
	if o.bank.TotalSupply(token) > 0 {
		return nil, &domain.ConflictError{Op: op, Key: string(token), Reason: "identity already deployed"}
	}
	if _, exists := o.hook.Pool(pool); exists {
		return nil, &domain.ConflictError{Op: op, Key: string(pool), Reason: "pool already initialized"}
	}
	if existing, taken := o.ledger.TokenByTicker(cfg.Ticker); taken {
		return nil, &domain.ConflictError{Op: op, Key: idhash.TickerHash(cfg.Ticker), Reason: fmt.Sprintf("ticker registered to %s", existing)}
	}
	if res, held, expired := o.ledger.LookupReservation(cfg.Ticker); held && !expired && res.Holder != cfg.Owner {
		return nil, &domain.ConflictError{Op: op, Key: idhash.TickerHash(cfg.Ticker), Reason: fmt.Sprintf("ticker reserved by %s", res.Holder)}
	}

	// Supply split. Truncation dust from the liquidity and airdrop
	// buckets lands in the owner bucket; the three always sum exactly
	// to total supply.
	liquidityAmount := domain.BpsShare(cfg.TotalSupply, cfg.LiquidityBps)
	ownerAmount := cfg.TotalSupply - liquidityAmount - airdropTotal

	if err := o.bank.Mint(ctx, token, o.addr, cfg.TotalSupply); err != nil {
		return nil, fmt.Errorf("mint supply: %w", err)
	}

	if err := o.locker.Place(ctx, o.addr, token, liquidityAmount, cfg.Positions, cfg.FeeRecipients, cfg.Owner); err != nil {
		return nil, fmt.Errorf("place liquidity: %w", err)
	}

	if airdropTotal > 0 {
		recipients := make([]domain.Address, len(cfg.Airdrop))
		for i, r := range cfg.Airdrop {
			recipients[i] = r.Recipient
		}
		if err := o.airdrop.Distribute(ctx, o.addr, token, airdropTotal, recipients, airdropAmounts); err != nil {
			return nil, fmt.Errorf("distribute airdrop: %w", err)
		}
	}

	if ownerAmount > 0 {
		if _, err := o.bank.Transfer(ctx, token, o.addr, cfg.Owner, ownerAmount); err != nil {
			return nil, fmt.Errorf("pay owner bucket: %w", err)
		}
	}

	if err := o.hook.RegisterPool(domain.PoolInfo{
		Pool:       pool,
		Token:      token,
		QuoteAsset: cfg.QuoteAsset,
		BuyFeeBps:  cfg.BuyFeeBps,
		SellFeeBps: cfg.SellFeeBps,
	}); err != nil {
		return nil, fmt.Errorf("register pool: %w", err)
	}

	// The canonical registration entry goes in last.
	seq, err := o.ledger.Register(ctx, cfg.Ticker, token, cfg.Owner, caller, idhash.ConfigDigest(cfg))
	if err != nil {
		return nil, fmt.Errorf("register token: %w", err)
	}

	o.logger.Printf("deployed %s (%s): token=%s pool=%s entry=%d", cfg.Name, cfg.Ticker, token, pool, seq)

	return &Result{
		Token:           token,
		Pool:            pool,
		Entry:           seq,
		LiquidityAmount: liquidityAmount,
		AirdropAmount:   airdropTotal,
		OwnerAmount:     ownerAmount,
	}, nil
}

// validate checks every configuration rule and returns the per-recipient
// airdrop amounts in supply units along with their exact sum.
func (o *Orchestrator) validate(cfg *domain.DeploymentConfig) ([]uint64, uint64, error) {
	const op = "deploy"

	if cfg == nil {
		return nil, 0, &domain.ValidationError{Op: op, Field: "config", Reason: "nil"}
	}
	if cfg.Name == "" {
		return nil, 0, &domain.ValidationError{Op: op, Field: "name", Reason: "empty"}
	}
	if cfg.Ticker == "" {
		return nil, 0, &domain.ValidationError{Op: op, Field: "ticker", Reason: "empty"}
	}
	if cfg.Salt == "" {
		return nil, 0, &domain.ValidationError{Op: op, Field: "salt", Reason: "empty"}
	}
	if cfg.Owner.Zero() {
		return nil, 0, &domain.ValidationError{Op: op, Field: "owner", Reason: "zero address"}
	}
	if cfg.QuoteAsset.Zero() {
		return nil, 0, &domain.ValidationError{Op: op, Field: "quoteAsset", Reason: "zero address"}
	}
	if cfg.TotalSupply == 0 {
		return nil, 0, &domain.ValidationError{Op: op, Field: "totalSupply", Reason: "zero supply"}
	}

	if cfg.LiquidityBps < o.floorBps {
		return nil, 0, &domain.ValidationError{
			Op: op, Field: "liquidityBps",
			Reason: fmt.Sprintf("%d below floor %d", cfg.LiquidityBps, o.floorBps),
		}
	}
	if cfg.LiquidityBps > domain.BpsDenominator {
		return nil, 0, &domain.ValidationError{
			Op: op, Field: "liquidityBps",
			Reason: fmt.Sprintf("%d exceeds %d", cfg.LiquidityBps, domain.BpsDenominator),
		}
	}
	if uint32(cfg.LiquidityBps)+uint32(cfg.AirdropBps) > domain.BpsDenominator {
		return nil, 0, &domain.ValidationError{
			Op: op, Field: "shares",
			Reason: fmt.Sprintf("liquidity %d + airdrop %d exceeds %d bps", cfg.LiquidityBps, cfg.AirdropBps, domain.BpsDenominator),
		}
	}

	// Airdrop list: non-empty iff enabled, per-slot bps sum to the
	// declared share, no zero address or amount.
	if cfg.AirdropBps == 0 && len(cfg.Airdrop) != 0 {
		return nil, 0, &domain.ValidationError{Op: op, Field: "airdrop", Reason: "recipients listed with zero share"}
	}
	if cfg.AirdropBps > 0 && len(cfg.Airdrop) == 0 {
		return nil, 0, &domain.ValidationError{Op: op, Field: "airdrop", Reason: "share declared with no recipients"}
	}
	var airdropBpsSum uint64
	for i, r := range cfg.Airdrop {
		if r.Recipient.Zero() {
			return nil, 0, &domain.ValidationError{Op: op, Field: "airdrop", Reason: fmt.Sprintf("index %d: zero address", i)}
		}
		if r.Amount == 0 {
			return nil, 0, &domain.ValidationError{Op: op, Field: "airdrop", Reason: fmt.Sprintf("index %d: zero amount", i)}
		}
		airdropBpsSum += r.Amount
	}
	if airdropBpsSum != uint64(cfg.AirdropBps) {
		return nil, 0, &domain.ValidationError{
			Op: op, Field: "airdrop",
			Reason: fmt.Sprintf("recipient shares sum to %d bps, declared %d", airdropBpsSum, cfg.AirdropBps),
		}
	}

	// The locker re-checks these at Place time, but running them here
	// keeps failed deployments from minting anything.
	if err := locker.ValidateLayout(op, cfg.Positions); err != nil {
		return nil, 0, err
	}
	if err := locker.ValidateRecipients(op, cfg.FeeRecipients); err != nil {
		return nil, 0, err
	}

	// Buckets are computed up front so a share that truncates to zero
	// units fails here, before anything mints.
	if domain.BpsShare(cfg.TotalSupply, cfg.LiquidityBps) == 0 {
		return nil, 0, &domain.ValidationError{
			Op: op, Field: "liquidityBps",
			Reason: fmt.Sprintf("%d bps of supply %d truncates to zero units", cfg.LiquidityBps, cfg.TotalSupply),
		}
	}

	amounts := make([]uint64, len(cfg.Airdrop))
	var total uint64
	for i, r := range cfg.Airdrop {
		amounts[i] = domain.BpsShare(cfg.TotalSupply, uint16(r.Amount))
		if amounts[i] == 0 {
			return nil, 0, &domain.ValidationError{
				Op: op, Field: "airdrop",
				Reason: fmt.Sprintf("index %d: share truncates to zero units", i),
			}
		}
		total += amounts[i]
	}

	return amounts, total, nil
}
