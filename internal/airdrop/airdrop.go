// Package airdrop implements one-shot direct distribution of an
// allocation to a recipient list. There is no claim step and no vesting.
package airdrop

import (
	"context"
	"fmt"

	"mintledger/internal/bank"
	"mintledger/internal/domain"
)

// Distributor pays out airdrop allocations on behalf of the issuance
// orchestrator.
type Distributor struct {
	bank       *bank.Bank
	authorized domain.Address // only the orchestrator may distribute
}

// New creates a distributor bound to its authorized caller.
func New(b *bank.Bank, authorized domain.Address) *Distributor {
	return &Distributor{bank: b, authorized: authorized}
}

// Distribute transfers each amount of asset from the caller's account
// to the matching recipient. The amounts must sum exactly to total, and
// the caller must be the orchestrator.
func (d *Distributor) Distribute(ctx context.Context, caller, asset domain.Address, total uint64, recipients []domain.Address, amounts []uint64) error {
	const op = "distributeAirdrop"

	if caller != d.authorized {
		return &domain.AuthorizationError{Op: op, Caller: caller, Role: "orchestrator"}
	}
	if len(recipients) != len(amounts) {
		return &domain.ValidationError{
			Op:     op,
			Field:  "recipients",
			Reason: fmt.Sprintf("%d recipients, %d amounts", len(recipients), len(amounts)),
		}
	}
	if len(recipients) == 0 {
		return &domain.ValidationError{Op: op, Field: "recipients", Reason: "empty list"}
	}

	var sum uint64
	for i, r := range recipients {
		if r.Zero() {
			return &domain.ValidationError{Op: op, Field: "recipients", Reason: fmt.Sprintf("index %d: zero address", i)}
		}
		if amounts[i] == 0 {
			return &domain.ValidationError{Op: op, Field: "amounts", Reason: fmt.Sprintf("index %d: zero amount", i)}
		}
		sum += amounts[i]
	}
	if sum != total {
		return &domain.ValidationError{
			Op:     op,
			Field:  "amounts",
			Reason: fmt.Sprintf("sum %d does not equal total %d", sum, total),
		}
	}

	for i, r := range recipients {
		if _, err := d.bank.Transfer(ctx, asset, caller, r, amounts[i]); err != nil {
			return fmt.Errorf("pay recipient %d (%s): %w", i, r, err)
		}
	}
	return nil
}
