// Package vault implements the fee vault: per-(owner, asset) balance
// accrual by allow-listed depositors and permissionless full-balance
// claims.
package vault

import (
	"context"
	"fmt"
	"sync"

	"mintledger/internal/address"
	"mintledger/internal/bank"
	"mintledger/internal/domain"
	"mintledger/internal/observability"
)

type balKey struct {
	Owner domain.Address
	Asset domain.Address
}

// Vault accrues fee balances and pays them out on claim.
type Vault struct {
	bank *bank.Bank
	addr domain.Address

	mu       sync.Mutex
	allowed  map[domain.Address]bool
	balances map[balKey]uint64
}

// New creates a vault with its own derived account address.
func New(b *bank.Bank) *Vault {
	return &Vault{
		bank:     b,
		addr:     address.Derive([]byte("fee-vault")),
		allowed:  make(map[domain.Address]bool),
		balances: make(map[balKey]uint64),
	}
}

// Address returns the vault's account address.
func (v *Vault) Address() domain.Address {
	return v.addr
}

// SetDepositor toggles an address on the depositor allow-list.
// Authorization of the caller is the engine's concern.
func (v *Vault) SetDepositor(addr domain.Address, enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if enabled {
		v.allowed[addr] = true
	} else {
		delete(v.allowed, addr)
	}
}

// Store pulls amount of asset from the depositor and accrues it to the
// owner. Only allow-listed depositors may store, and only the measured
// received amount accrues: declared amounts are never trusted, which is
// what defeats short-transfer and spoofed-amount deposits.
func (v *Vault) Store(ctx context.Context, depositor, owner, asset domain.Address, amount uint64) (uint64, error) {
	const op = "storeFees"

	v.mu.Lock()
	ok := v.allowed[depositor]
	v.mu.Unlock()
	if !ok {
		return 0, &domain.AuthorizationError{Op: op, Caller: depositor, Role: "depositor"}
	}
	if owner.Zero() || asset.Zero() {
		return 0, &domain.ValidationError{Op: op, Field: "address", Reason: "zero address"}
	}
	if amount == 0 {
		return 0, &domain.ValidationError{Op: op, Field: "amount", Reason: "zero amount"}
	}

	// Measure what actually arrived rather than trusting the declared
	// amount.
	before := v.bank.BalanceOf(asset, v.addr)
	if _, err := v.bank.Transfer(ctx, asset, depositor, v.addr, amount); err != nil {
		return 0, fmt.Errorf("pull deposit: %w", err)
	}
	received := v.bank.BalanceOf(asset, v.addr) - before

	v.mu.Lock()
	v.balances[balKey{Owner: owner, Asset: asset}] += received
	v.mu.Unlock()

	observability.RecordDeposit()
	return received, nil
}

// Claim pays the owner's full accrued balance of asset. Anyone may
// trigger a claim on behalf of any owner. The balance is zeroed before
// the payment starts, so a re-entrant claim from the payment callback
// finds nothing to pay.
func (v *Vault) Claim(ctx context.Context, owner, asset domain.Address) (uint64, error) {
	const op = "claimFees"
	key := balKey{Owner: owner, Asset: asset}

	v.mu.Lock()
	amount := v.balances[key]
	if amount == 0 {
		v.mu.Unlock()
		return 0, &domain.StateError{
			Op:     op,
			Key:    fmt.Sprintf("%s/%s", owner, asset),
			Reason: "zero balance",
		}
	}
	delete(v.balances, key)
	v.mu.Unlock()

	if _, err := v.bank.Transfer(ctx, asset, v.addr, owner, amount); err != nil {
		// Payment never started; restore the accrual.
		v.mu.Lock()
		v.balances[key] += amount
		v.mu.Unlock()
		return 0, fmt.Errorf("pay claim: %w", err)
	}

	return amount, nil
}

// Balance returns the owner's accrued unclaimed balance of asset.
func (v *Vault) Balance(owner, asset domain.Address) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[balKey{Owner: owner, Asset: asset}]
}
