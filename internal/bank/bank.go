// Package bank implements the minimal asset accounting the value-moving
// components run on: per-(asset, holder) balances, minting, and
// transfers. A recipient may register a receive hook that runs after the
// transfer settles; hooks are how re-entrant callers call back in, so
// every component that pays out must bring its own state to its
// post-operation value before transferring.
package bank

import (
	"context"
	"fmt"
	"sync"

	"mintledger/internal/domain"
)

// ReceiveHook runs after a transfer credits the hooked address.
// Balances are already settled when the hook runs.
type ReceiveHook func(ctx context.Context, asset, from domain.Address, amount uint64)

// Bank tracks balances for every asset in the system.
type Bank struct {
	mu       sync.Mutex
	balances map[domain.Address]map[domain.Address]uint64 // asset → holder → amount
	supply   map[domain.Address]uint64                    // asset → total minted

	// taxBps simulates assets that deliver less than the sent amount.
	// The shortfall is burned. Depositors must never trust a declared
	// amount because of exactly this class of asset.
	taxBps map[domain.Address]uint16

	hooksMu sync.RWMutex
	hooks   map[domain.Address]ReceiveHook
}

// New creates an empty bank.
func New() *Bank {
	return &Bank{
		balances: make(map[domain.Address]map[domain.Address]uint64),
		supply:   make(map[domain.Address]uint64),
		taxBps:   make(map[domain.Address]uint16),
		hooks:    make(map[domain.Address]ReceiveHook),
	}
}

// Mint creates amount new units of asset and credits them to to.
func (b *Bank) Mint(_ context.Context, asset, to domain.Address, amount uint64) error {
	const op = "mint"
	if asset.Zero() || to.Zero() {
		return &domain.ValidationError{Op: op, Field: "address", Reason: "zero address"}
	}
	if amount == 0 {
		return &domain.ValidationError{Op: op, Field: "amount", Reason: "zero amount"}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(asset, to, amount)
	b.supply[asset] += amount
	return nil
}

// Transfer moves amount of asset from one holder to another and returns
// the amount actually received, which may be less than amount for taxed
// assets. The recipient's receive hook, if any, runs after balances are
// settled and without any bank lock held.
func (b *Bank) Transfer(ctx context.Context, asset, from, to domain.Address, amount uint64) (uint64, error) {
	const op = "transfer"
	if asset.Zero() || from.Zero() || to.Zero() {
		return 0, &domain.ValidationError{Op: op, Field: "address", Reason: "zero address"}
	}
	if amount == 0 {
		return 0, &domain.ValidationError{Op: op, Field: "amount", Reason: "zero amount"}
	}

	b.mu.Lock()
	held := b.balances[asset][from]
	if held < amount {
		b.mu.Unlock()
		return 0, &domain.StateError{
			Op:     op,
			Key:    fmt.Sprintf("%s/%s", asset, from),
			Reason: fmt.Sprintf("balance %d < %d", held, amount),
		}
	}

	received := amount
	if tax := b.taxBps[asset]; tax > 0 {
		burned := domain.BpsShare(amount, tax)
		received = amount - burned
		b.supply[asset] -= burned
	}

	b.balances[asset][from] = held - amount
	b.credit(asset, to, received)
	b.mu.Unlock()

	b.hooksMu.RLock()
	hook := b.hooks[to]
	b.hooksMu.RUnlock()
	if hook != nil {
		hook(ctx, asset, from, received)
	}

	return received, nil
}

// BalanceOf returns a holder's balance of asset.
func (b *Bank) BalanceOf(asset, holder domain.Address) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[asset][holder]
}

// TotalSupply returns the outstanding supply of asset.
func (b *Bank) TotalSupply(asset domain.Address) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.supply[asset]
}

// SetTransferTax configures a burn-on-transfer rate for an asset.
// Used to model assets that deliver less than the sent amount.
func (b *Bank) SetTransferTax(asset domain.Address, bps uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.taxBps[asset] = bps
}

// SetReceiveHook registers a hook invoked whenever addr receives a
// transfer. Passing nil removes the hook.
func (b *Bank) SetReceiveHook(addr domain.Address, hook ReceiveHook) {
	b.hooksMu.Lock()
	defer b.hooksMu.Unlock()
	if hook == nil {
		delete(b.hooks, addr)
		return
	}
	b.hooks[addr] = hook
}

// credit assumes b.mu is held.
func (b *Bank) credit(asset, to domain.Address, amount uint64) {
	holders := b.balances[asset]
	if holders == nil {
		holders = make(map[domain.Address]uint64)
		b.balances[asset] = holders
	}
	holders[to] += amount
}
