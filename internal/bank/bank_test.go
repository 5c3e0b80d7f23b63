package bank

import (
	"context"
	"errors"
	"testing"

	"mintledger/internal/domain"
)

func TestMintAndTransfer(t *testing.T) {
	b := New()
	ctx := context.Background()

	if err := b.Mint(ctx, "AssetA", "Alice", 1000); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if got := b.BalanceOf("AssetA", "Alice"); got != 1000 {
		t.Errorf("balance = %d, want 1000", got)
	}
	if got := b.TotalSupply("AssetA"); got != 1000 {
		t.Errorf("supply = %d, want 1000", got)
	}

	received, err := b.Transfer(ctx, "AssetA", "Alice", "Bob", 400)
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if received != 400 {
		t.Errorf("received = %d, want 400", received)
	}
	if got := b.BalanceOf("AssetA", "Alice"); got != 600 {
		t.Errorf("Alice balance = %d, want 600", got)
	}
	if got := b.BalanceOf("AssetA", "Bob"); got != 400 {
		t.Errorf("Bob balance = %d, want 400", got)
	}
}

func TestTransfer_Insufficient(t *testing.T) {
	b := New()
	ctx := context.Background()

	if err := b.Mint(ctx, "AssetA", "Alice", 100); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	_, err := b.Transfer(ctx, "AssetA", "Alice", "Bob", 101)
	var stateErr *domain.StateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected StateError, got %v", err)
	}

	// Nothing moved.
	if got := b.BalanceOf("AssetA", "Alice"); got != 100 {
		t.Errorf("Alice balance = %d, want 100", got)
	}
}

func TestTransfer_Validation(t *testing.T) {
	b := New()
	ctx := context.Background()

	var valErr *domain.ValidationError
	if _, err := b.Transfer(ctx, "AssetA", "", "Bob", 10); !errors.As(err, &valErr) {
		t.Errorf("zero from: expected ValidationError, got %v", err)
	}
	if _, err := b.Transfer(ctx, "AssetA", "Alice", "Bob", 0); !errors.As(err, &valErr) {
		t.Errorf("zero amount: expected ValidationError, got %v", err)
	}
	if err := b.Mint(ctx, "", "Alice", 10); !errors.As(err, &valErr) {
		t.Errorf("zero asset: expected ValidationError, got %v", err)
	}
}

func TestTransfer_TaxedAsset(t *testing.T) {
	b := New()
	ctx := context.Background()

	if err := b.Mint(ctx, "Taxed", "Alice", 10_000); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	b.SetTransferTax("Taxed", 1000) // 10% burned in flight

	received, err := b.Transfer(ctx, "Taxed", "Alice", "Bob", 1000)
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if received != 900 {
		t.Errorf("received = %d, want 900", received)
	}
	if got := b.BalanceOf("Taxed", "Bob"); got != 900 {
		t.Errorf("Bob balance = %d, want 900", got)
	}
	if got := b.TotalSupply("Taxed"); got != 9_900 {
		t.Errorf("supply = %d, want 9900", got)
	}
}

func TestReceiveHook(t *testing.T) {
	b := New()
	ctx := context.Background()

	if err := b.Mint(ctx, "AssetA", "Alice", 1000); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	var hookAsset, hookFrom domain.Address
	var hookAmount uint64
	var balanceAtHook uint64
	b.SetReceiveHook("Bob", func(_ context.Context, asset, from domain.Address, amount uint64) {
		hookAsset, hookFrom, hookAmount = asset, from, amount
		balanceAtHook = b.BalanceOf("AssetA", "Bob")
	})

	if _, err := b.Transfer(ctx, "AssetA", "Alice", "Bob", 250); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if hookAsset != "AssetA" || hookFrom != "Alice" || hookAmount != 250 {
		t.Errorf("hook saw (%s, %s, %d)", hookAsset, hookFrom, hookAmount)
	}
	// Balances are settled before the hook runs.
	if balanceAtHook != 250 {
		t.Errorf("balance at hook = %d, want 250", balanceAtHook)
	}

	b.SetReceiveHook("Bob", nil)
	hookAmount = 0
	if _, err := b.Transfer(ctx, "AssetA", "Alice", "Bob", 10); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if hookAmount != 0 {
		t.Error("removed hook still fired")
	}
}
