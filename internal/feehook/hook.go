// Package feehook observes trades on registered pools, charges the
// static directional trade fee, and splits accrued fees between the
// protocol and the liquidity locker's recipients.
package feehook

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"mintledger/internal/address"
	"mintledger/internal/bank"
	"mintledger/internal/domain"
	"mintledger/internal/locker"
	"mintledger/internal/storage"
)

type poolState struct {
	info    domain.PoolInfo
	accrued uint64 // previous trade's fee, not yet collected
}

// TradeResult reports the accounting of one observed trade.
type TradeResult struct {
	FeeCharged    uint64 // this trade's fee, accrued for the next collection
	Collected     uint64 // previous trade's fee collected now
	ProtocolShare uint64
	UserShare     uint64
	RateBps       uint16 // protocol-fee rate applied to the collection
}

// Options configures a Hook.
type Options struct {
	// Sink receives one fee event row per observed trade. Optional.
	Sink storage.FeeEventStore

	// Now overrides the clock; used by tests. Returns Unix ms.
	Now func() int64

	// Logger is optional.
	Logger *log.Logger
}

// Hook is the fee hook. One hook serves every registered pool.
type Hook struct {
	bank   *bank.Bank
	locker *locker.Locker
	rate   *ProtocolRate
	addr   domain.Address
	sink   storage.FeeEventStore
	now    func() int64
	logger *log.Logger

	behaviorMu sync.RWMutex
	behavior   Behavior

	mu       sync.Mutex
	pools    map[domain.Address]*poolState
	protocol map[domain.Address]uint64 // asset → held protocol share
}

// New creates a fee hook with the default pro-rata split behavior.
func New(b *bank.Bank, l *locker.Locker, rate *ProtocolRate, opts Options) *Hook {
	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Hook{
		bank:     b,
		locker:   l,
		rate:     rate,
		addr:     address.Derive([]byte("fee-hook")),
		sink:     opts.Sink,
		now:      now,
		logger:   logger,
		behavior: ProRataSplit{},
		pools:    make(map[domain.Address]*poolState),
		protocol: make(map[domain.Address]uint64),
	}
}

// Address returns the hook's account address.
func (h *Hook) Address() domain.Address {
	return h.addr
}

// SetBehavior swaps the fee-splitting behavior module. Accrued state is
// untouched; the next collection simply runs through the new module.
func (h *Hook) SetBehavior(b Behavior) {
	h.behaviorMu.Lock()
	h.behavior = b
	h.behaviorMu.Unlock()
}

// RegisterPool registers a pool exactly once.
func (h *Hook) RegisterPool(info domain.PoolInfo) error {
	const op = "registerPool"
	if info.Pool.Zero() || info.Token.Zero() || info.QuoteAsset.Zero() {
		return &domain.ValidationError{Op: op, Field: "pool", Reason: "zero address"}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.pools[info.Pool]; exists {
		return &domain.ConflictError{Op: op, Key: string(info.Pool), Reason: "pool already initialized"}
	}
	info.Initialized = true
	h.pools[info.Pool] = &poolState{info: info}
	return nil
}

// Pool returns a registered pool's info.
func (h *Hook) Pool(pool domain.Address) (domain.PoolInfo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	state, exists := h.pools[pool]
	if !exists {
		return domain.PoolInfo{}, false
	}
	return state.info, true
}

// ObserveTrade handles one reported trade against a registered pool.
//
// The previous trade's accrued fee is collected first and split at the
// protocol-fee rate read live right now; then the current trade's
// static directional fee is charged from the payer and accrued for the
// next collection. The one-trade lag is deliberate: a trade's own fee
// is never split until the following trade arrives.
func (h *Hook) ObserveTrade(ctx context.Context, pool domain.Address, direction domain.TradeDirection, amount uint64, payer domain.Address) (*TradeResult, error) {
	const op = "observeTrade"
	if amount == 0 {
		return nil, &domain.ValidationError{Op: op, Field: "amount", Reason: "zero amount"}
	}
	if direction != domain.DirectionBuy && direction != domain.DirectionSell {
		return nil, &domain.ValidationError{Op: op, Field: "direction", Reason: string(direction)}
	}

	h.mu.Lock()
	state, exists := h.pools[pool]
	if !exists {
		h.mu.Unlock()
		return nil, &domain.StateError{Op: op, Key: string(pool), Reason: "pool not registered"}
	}
	info := state.info

	// Take the pending accrual and zero it before any value moves.
	pending := state.accrued
	state.accrued = 0
	h.mu.Unlock()

	result := &TradeResult{Collected: pending}

	if pending > 0 {
		// Re-read the global rate on every collection; never cached.
		rateBps := h.rate.Get()
		h.behaviorMu.RLock()
		behavior := h.behavior
		h.behaviorMu.RUnlock()

		protocolShare, userShare := behavior.SplitAccrued(pending, rateBps)
		result.ProtocolShare = protocolShare
		result.UserShare = userShare
		result.RateBps = rateBps

		if protocolShare > 0 {
			h.mu.Lock()
			h.protocol[info.QuoteAsset] += protocolShare
			h.mu.Unlock()
		}
		if userShare > 0 {
			if err := h.locker.Collect(ctx, h.addr, info.Token, info.QuoteAsset, userShare); err != nil {
				return nil, fmt.Errorf("forward user share: %w", err)
			}
		}
	}

	// Charge the current trade's static directional fee and accrue it.
	rate := info.BuyFeeBps
	if direction == domain.DirectionSell {
		rate = info.SellFeeBps
	}
	fee := domain.BpsShare(amount, rate)
	if fee > 0 {
		// Accrue what actually arrived, never the declared fee: a
		// taxed asset delivers less than was sent, and accruing the
		// declared amount would split units the hook does not hold.
		received, err := h.bank.Transfer(ctx, info.QuoteAsset, payer, h.addr, fee)
		if err != nil {
			return nil, fmt.Errorf("charge trade fee: %w", err)
		}
		h.mu.Lock()
		h.pools[pool].accrued += received
		h.mu.Unlock()
		result.FeeCharged = received
	}

	if h.sink != nil {
		event := &domain.FeeEvent{
			Pool:          pool,
			Asset:         info.QuoteAsset,
			Direction:     direction,
			TradeAmount:   amount,
			FeeCharged:    result.FeeCharged,
			CollectedFee:  pending,
			ProtocolShare: result.ProtocolShare,
			UserShare:     result.UserShare,
			RateBps:       result.RateBps,
			TimestampMs:   h.now(),
		}
		if err := h.sink.Insert(ctx, event); err != nil {
			// Analytics only; the trade accounting stands.
			h.logger.Printf("fee event sink: %v", err)
		}
	}

	return result, nil
}

// Accrued returns the fee held from a pool's previous trade, pending
// collection on the next one.
func (h *Hook) Accrued(pool domain.Address) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if state, exists := h.pools[pool]; exists {
		return state.accrued
	}
	return 0
}

// ProtocolBalance returns the protocol share held for admin claim.
func (h *Hook) ProtocolBalance(asset domain.Address) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.protocol[asset]
}

// ClaimProtocolFees pays the full held protocol share of asset to the
// recipient. The balance is zeroed before the payment starts.
func (h *Hook) ClaimProtocolFees(ctx context.Context, asset, recipient domain.Address) (uint64, error) {
	const op = "claimProtocolFees"
	if recipient.Zero() {
		return 0, &domain.ValidationError{Op: op, Field: "recipient", Reason: "zero address"}
	}

	h.mu.Lock()
	amount := h.protocol[asset]
	if amount == 0 {
		h.mu.Unlock()
		return 0, &domain.StateError{Op: op, Key: string(asset), Reason: "zero balance"}
	}
	delete(h.protocol, asset)
	h.mu.Unlock()

	if _, err := h.bank.Transfer(ctx, asset, h.addr, recipient, amount); err != nil {
		h.mu.Lock()
		h.protocol[asset] += amount
		h.mu.Unlock()
		return 0, fmt.Errorf("pay protocol fees: %w", err)
	}

	return amount, nil
}
