// Package locker owns committed liquidity positions and splits incoming
// user-fee collections across a stored recipient table. Positions are
// permanently non-withdrawable: no exit path exists.
package locker

import (
	"context"
	"fmt"
	"sync"

	"mintledger/internal/address"
	"mintledger/internal/bank"
	"mintledger/internal/domain"
	"mintledger/internal/vault"
)

// Position is one locked liquidity range.
type Position struct {
	Range  domain.PositionRange
	Amount uint64
}

// Slot is one mutable entry of a token's fee recipient table.
// The slot admin alone may change the slot, and may hand the admin
// role to someone else.
type Slot struct {
	Recipient domain.Address
	WeightBps uint16
	Admin     domain.Address
}

type lockState struct {
	positions []Position
	slots     []Slot
	total     uint64
}

// Locker holds locked liquidity and fee recipient tables per token.
type Locker struct {
	bank  *bank.Bank
	vault *vault.Vault
	addr  domain.Address

	mu    sync.Mutex
	locks map[domain.Address]*lockState
}

// New creates a locker with its own derived account address.
func New(b *bank.Bank, v *vault.Vault) *Locker {
	return &Locker{
		bank:  b,
		vault: v,
		addr:  address.Derive([]byte("liquidity-locker")),
		locks: make(map[domain.Address]*lockState),
	}
}

// Address returns the locker's account address.
func (l *Locker) Address() domain.Address {
	return l.addr
}

// Place locks amount of token from the given account across the position
// layout, and stores the fee recipient table for the token. Each token
// can be placed exactly once, and there is no way to withdraw.
func (l *Locker) Place(ctx context.Context, from, token domain.Address, amount uint64, layout []domain.PositionRange, recipients []domain.FeeRecipient, slotAdmin domain.Address) error {
	const op = "placeLiquidity"

	if amount == 0 {
		return &domain.ValidationError{Op: op, Field: "amount", Reason: "zero amount"}
	}
	if err := ValidateLayout(op, layout); err != nil {
		return err
	}
	if err := ValidateRecipients(op, recipients); err != nil {
		return err
	}
	if slotAdmin.Zero() {
		return &domain.ValidationError{Op: op, Field: "slotAdmin", Reason: "zero address"}
	}

	l.mu.Lock()
	if _, exists := l.locks[token]; exists {
		l.mu.Unlock()
		return &domain.ConflictError{Op: op, Key: string(token), Reason: "liquidity already placed"}
	}
	// Reserve the token before the pull so a re-entrant place cannot
	// double-lock it.
	state := &lockState{}
	l.locks[token] = state
	l.mu.Unlock()

	if _, err := l.bank.Transfer(ctx, token, from, l.addr, amount); err != nil {
		l.mu.Lock()
		delete(l.locks, token)
		l.mu.Unlock()
		return fmt.Errorf("pull liquidity: %w", err)
	}

	weights := make([]uint16, len(layout))
	for i, p := range layout {
		weights[i] = p.WeightBps
	}
	shares := domain.SplitByWeights(amount, weights)

	positions := make([]Position, len(layout))
	for i, p := range layout {
		positions[i] = Position{Range: p, Amount: shares[i]}
	}
	slots := make([]Slot, len(recipients))
	for i, r := range recipients {
		slots[i] = Slot{Recipient: r.Recipient, WeightBps: r.WeightBps, Admin: slotAdmin}
	}

	l.mu.Lock()
	state.positions = positions
	state.slots = slots
	state.total = amount
	l.mu.Unlock()

	return nil
}

// Collect pulls an incoming user-fee amount from the caller, splits it
// across the token's recipient table by weight, and deposits each share
// into the fee vault. Truncation dust goes to the last slot so no unit
// is lost.
func (l *Locker) Collect(ctx context.Context, from, token, asset domain.Address, amount uint64) error {
	const op = "collectFees"
	if amount == 0 {
		return &domain.ValidationError{Op: op, Field: "amount", Reason: "zero amount"}
	}

	l.mu.Lock()
	state, exists := l.locks[token]
	if !exists || len(state.slots) == 0 {
		l.mu.Unlock()
		return &domain.StateError{Op: op, Key: string(token), Reason: "no recipient table"}
	}
	slots := append([]Slot(nil), state.slots...)
	l.mu.Unlock()

	received, err := l.bank.Transfer(ctx, asset, from, l.addr, amount)
	if err != nil {
		return fmt.Errorf("pull collection: %w", err)
	}

	weights := make([]uint16, len(slots))
	for i, s := range slots {
		weights[i] = s.WeightBps
	}
	shares := domain.SplitByWeights(received, weights)

	for i, s := range slots {
		if shares[i] == 0 {
			continue
		}
		if _, err := l.vault.Store(ctx, l.addr, s.Recipient, asset, shares[i]); err != nil {
			return fmt.Errorf("deposit share for %s: %w", s.Recipient, err)
		}
	}

	return nil
}

// SetSlot changes one slot's recipient and weight. Only the slot's admin
// may call, and table weights must still sum to 100% afterwards.
func (l *Locker) SetSlot(_ context.Context, caller, token domain.Address, slot int, recipient domain.Address, weightBps uint16) error {
	const op = "setFeeRecipient"
	if recipient.Zero() {
		return &domain.ValidationError{Op: op, Field: "recipient", Reason: "zero address"}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	state, exists := l.locks[token]
	if !exists {
		return &domain.StateError{Op: op, Key: string(token), Reason: "no recipient table"}
	}
	if slot < 0 || slot >= len(state.slots) {
		return &domain.ValidationError{Op: op, Field: "slot", Reason: fmt.Sprintf("out of range [0,%d)", len(state.slots))}
	}
	if state.slots[slot].Admin != caller {
		return &domain.AuthorizationError{Op: op, Caller: caller, Role: fmt.Sprintf("slot %d admin", slot)}
	}

	var sum uint32
	for i, s := range state.slots {
		if i == slot {
			sum += uint32(weightBps)
		} else {
			sum += uint32(s.WeightBps)
		}
	}
	if sum != domain.BpsDenominator {
		return &domain.ValidationError{Op: op, Field: "weightBps", Reason: fmt.Sprintf("table weights sum to %d bps, want %d", sum, domain.BpsDenominator)}
	}

	state.slots[slot].Recipient = recipient
	state.slots[slot].WeightBps = weightBps
	return nil
}

// TransferSlotAdmin hands a slot's admin role to another address.
// Each slot's role transfers independently.
func (l *Locker) TransferSlotAdmin(_ context.Context, caller, token domain.Address, slot int, newAdmin domain.Address) error {
	const op = "transferSlotAdmin"
	if newAdmin.Zero() {
		return &domain.ValidationError{Op: op, Field: "newAdmin", Reason: "zero address"}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	state, exists := l.locks[token]
	if !exists {
		return &domain.StateError{Op: op, Key: string(token), Reason: "no recipient table"}
	}
	if slot < 0 || slot >= len(state.slots) {
		return &domain.ValidationError{Op: op, Field: "slot", Reason: fmt.Sprintf("out of range [0,%d)", len(state.slots))}
	}
	if state.slots[slot].Admin != caller {
		return &domain.AuthorizationError{Op: op, Caller: caller, Role: fmt.Sprintf("slot %d admin", slot)}
	}

	state.slots[slot].Admin = newAdmin
	return nil
}

// LockedAmount returns the total locked liquidity for a token.
func (l *Locker) LockedAmount(token domain.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if state, exists := l.locks[token]; exists {
		return state.total
	}
	return 0
}

// Positions returns a copy of a token's locked positions.
func (l *Locker) Positions(token domain.Address) []Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, exists := l.locks[token]
	if !exists {
		return nil
	}
	return append([]Position(nil), state.positions...)
}

// Slots returns a copy of a token's fee recipient table.
func (l *Locker) Slots(token domain.Address) []Slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, exists := l.locks[token]
	if !exists {
		return nil
	}
	return append([]Slot(nil), state.slots...)
}

// ValidateLayout checks a position layout without mutating anything,
// so callers can reject a bad layout before moving funds.
func ValidateLayout(op string, layout []domain.PositionRange) error {
	if len(layout) == 0 {
		return &domain.ValidationError{Op: op, Field: "positions", Reason: "empty layout"}
	}
	if len(layout) > domain.MaxPositions {
		return &domain.ValidationError{Op: op, Field: "positions", Reason: fmt.Sprintf("%d ranges, max %d", len(layout), domain.MaxPositions)}
	}

	var sum uint32
	for i, p := range layout {
		if p.LowerTick >= p.UpperTick {
			return &domain.ValidationError{Op: op, Field: "positions", Reason: fmt.Sprintf("range %d is empty", i)}
		}
		sum += uint32(p.WeightBps)
		for j := 0; j < i; j++ {
			if p.LowerTick < layout[j].UpperTick && layout[j].LowerTick < p.UpperTick {
				return &domain.ValidationError{Op: op, Field: "positions", Reason: fmt.Sprintf("ranges %d and %d overlap", j, i)}
			}
		}
	}
	if sum != domain.BpsDenominator {
		return &domain.ValidationError{Op: op, Field: "positions", Reason: fmt.Sprintf("weights sum to %d bps, want %d", sum, domain.BpsDenominator)}
	}
	return nil
}

// ValidateRecipients checks a fee recipient table the same way.
func ValidateRecipients(op string, recipients []domain.FeeRecipient) error {
	if len(recipients) == 0 {
		return &domain.ValidationError{Op: op, Field: "feeRecipients", Reason: "empty table"}
	}
	if len(recipients) > domain.MaxFeeRecipients {
		return &domain.ValidationError{Op: op, Field: "feeRecipients", Reason: fmt.Sprintf("%d slots, max %d", len(recipients), domain.MaxFeeRecipients)}
	}

	var sum uint32
	for i, r := range recipients {
		if r.Recipient.Zero() {
			return &domain.ValidationError{Op: op, Field: "feeRecipients", Reason: fmt.Sprintf("slot %d has zero address", i)}
		}
		sum += uint32(r.WeightBps)
	}
	if sum != domain.BpsDenominator {
		return &domain.ValidationError{Op: op, Field: "feeRecipients", Reason: fmt.Sprintf("weights sum to %d bps, want %d", sum, domain.BpsDenominator)}
	}
	return nil
}
