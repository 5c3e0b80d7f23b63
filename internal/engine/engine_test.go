package engine

import (
	"context"
	"errors"
	"testing"

	"mintledger/internal/domain"
	"mintledger/internal/feehook"
	"mintledger/internal/storage/memory"
)

var (
	admin    = domain.Address("admin")
	issuer   = domain.Address("issuer")
	stranger = domain.Address("stranger")
	treasury = domain.Address("treasury")
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(context.Background(), Options{
		Store:              memory.NewEntryStore(),
		Admins:             []domain.Address{admin},
		Issuers:            []domain.Address{issuer},
		FeeRecipient:       treasury,
		ProtocolFeeRateBps: 2500,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func testConfig() *domain.DeploymentConfig {
	return &domain.DeploymentConfig{
		Name:         "Cool Token",
		Ticker:       "COOL",
		Salt:         "salt-1",
		TotalSupply:  1_000_000_000,
		Owner:        domain.Address("owner"),
		LiquidityBps: 1500,
		AirdropBps:   500,
		Airdrop: []domain.AirdropRecipient{
			{Recipient: domain.Address("alice"), Amount: 300},
			{Recipient: domain.Address("bob"), Amount: 200},
		},
		FeeRecipients: []domain.FeeRecipient{
			{Recipient: domain.Address("carol"), WeightBps: 6000},
			{Recipient: domain.Address("dave"), WeightBps: 4000},
		},
		Positions: []domain.PositionRange{
			{LowerTick: -100, UpperTick: 100, WeightBps: 10000},
		},
		QuoteAsset: domain.Address("quote"),
		BuyFeeBps:  100,
		SellFeeBps: 200,
	}
}

func TestIssue_RequiresIssuerRole(t *testing.T) {
	e := newTestEngine(t)

	var authErr *domain.AuthorizationError
	_, err := e.Issue(context.Background(), stranger, testConfig())
	if !errors.As(err, &authErr) {
		t.Fatalf("got %v, want AuthorizationError", err)
	}
	if authErr.Role != "issuer" {
		t.Errorf("role = %q, want issuer", authErr.Role)
	}
}

func TestIssue_PauseBlocksIssuance(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.AdminPause(stranger); err == nil {
		t.Fatal("pause by non-admin succeeded")
	}
	if err := e.AdminPause(admin); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !e.Paused() {
		t.Fatal("engine not paused")
	}

	var stateErr *domain.StateError
	if _, err := e.Issue(ctx, issuer, testConfig()); !errors.As(err, &stateErr) {
		t.Fatalf("issue while paused: got %v, want StateError", err)
	}

	if err := e.AdminResume(admin); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := e.Issue(ctx, issuer, testConfig()); err != nil {
		t.Fatalf("issue after resume: %v", err)
	}
}

func TestEndToEndFlow(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	cfg := testConfig()

	// The owner reserves the ticker, the issuer deploys against it.
	if _, err := e.ReserveTicker(ctx, cfg.Owner, "COOL"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	res, err := e.Issue(ctx, issuer, cfg)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Fund a trader with the quote asset and observe two sells. Sell
	// fee is 200 bps: a 100000 trade charges 2000; the first trade's
	// fee is collected when the second trade arrives.
	trader := domain.Address("trader")
	if err := e.Bank().Mint(ctx, cfg.QuoteAsset, trader, 1_000_000); err != nil {
		t.Fatalf("mint trader: %v", err)
	}
	first, err := e.ObserveTrade(ctx, res.Pool, domain.DirectionSell, 100_000, trader)
	if err != nil {
		t.Fatalf("first trade: %v", err)
	}
	if first.FeeCharged != 2000 || first.Collected != 0 {
		t.Errorf("first trade charged=%d collected=%d, want 2000/0", first.FeeCharged, first.Collected)
	}
	second, err := e.ObserveTrade(ctx, res.Pool, domain.DirectionSell, 100_000, trader)
	if err != nil {
		t.Fatalf("second trade: %v", err)
	}
	// 2000 collected at 2500 bps: 500 protocol, 1500 to the locker's
	// recipients 60/40.
	if second.Collected != 2000 || second.ProtocolShare != 500 || second.UserShare != 1500 {
		t.Errorf("second trade collected=%d protocol=%d user=%d, want 2000/500/1500",
			second.Collected, second.ProtocolShare, second.UserShare)
	}

	// Recipient claims are permissionless; fees live in the quote asset.
	carol := domain.Address("carol")
	claimed, err := e.ClaimFees(ctx, carol, cfg.QuoteAsset)
	if err != nil {
		t.Fatalf("claim fees: %v", err)
	}
	if claimed != 900 { // 60% of 1500
		t.Errorf("carol claimed %d, want 900", claimed)
	}
	if got := e.Bank().BalanceOf(cfg.QuoteAsset, carol); got != 900 {
		t.Errorf("carol balance = %d, want 900", got)
	}

	// Protocol share pays out to the configured treasury.
	paid, err := e.ClaimProtocolFees(ctx, admin, cfg.QuoteAsset)
	if err != nil {
		t.Fatalf("claim protocol fees: %v", err)
	}
	if paid != 500 {
		t.Errorf("protocol claim = %d, want 500", paid)
	}
	if got := e.Bank().BalanceOf(cfg.QuoteAsset, treasury); got != 500 {
		t.Errorf("treasury balance = %d, want 500", got)
	}
}

func TestAdminSetDeployer(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	newcomer := domain.Address("newcomer")

	if _, err := e.Issue(ctx, newcomer, testConfig()); err == nil {
		t.Fatal("unlisted deployer issued")
	}
	if err := e.AdminSetDeployer(stranger, newcomer, true); err == nil {
		t.Fatal("non-admin changed the allow-list")
	}
	if err := e.AdminSetDeployer(admin, newcomer, true); err != nil {
		t.Fatalf("enable deployer: %v", err)
	}
	if _, err := e.Issue(ctx, newcomer, testConfig()); err != nil {
		t.Fatalf("issue after enable: %v", err)
	}

	if err := e.AdminSetDeployer(admin, newcomer, false); err != nil {
		t.Fatalf("disable deployer: %v", err)
	}
	cfg := testConfig()
	cfg.Salt = "salt-2"
	cfg.Ticker = "WARM"
	if _, err := e.Issue(ctx, newcomer, cfg); err == nil {
		t.Fatal("disabled deployer issued")
	}
}

func TestAdminSetProtocolFeeRate(t *testing.T) {
	e := newTestEngine(t)

	if err := e.AdminSetProtocolFeeRate(stranger, 1000); err == nil {
		t.Fatal("non-admin changed the rate")
	}
	if err := e.AdminSetProtocolFeeRate(admin, domain.MaxProtocolFeeBps+1); err == nil {
		t.Fatal("rate above bound accepted")
	}
	if err := e.AdminSetProtocolFeeRate(admin, 1000); err != nil {
		t.Fatalf("set rate: %v", err)
	}
}

func TestAdminSetFeeRecipient(t *testing.T) {
	e, err := New(context.Background(), Options{
		Store:              memory.NewEntryStore(),
		Admins:             []domain.Address{admin},
		Issuers:            []domain.Address{issuer},
		ProtocolFeeRateBps: 2500,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	// No recipient configured yet.
	var stateErr *domain.StateError
	if _, err := e.ClaimProtocolFees(context.Background(), admin, domain.Address("asset")); !errors.As(err, &stateErr) {
		t.Fatalf("claim without recipient: got %v, want StateError", err)
	}
	if err := e.AdminSetFeeRecipient(admin, ""); err == nil {
		t.Fatal("zero recipient accepted")
	}
	if err := e.AdminSetFeeRecipient(admin, treasury); err != nil {
		t.Fatalf("set recipient: %v", err)
	}
}

type flatSplit struct{}

func (flatSplit) SplitAccrued(accrued uint64, _ uint16) (uint64, uint64) {
	half := accrued / 2
	return half, accrued - half
}

var _ feehook.Behavior = flatSplit{}

func TestAdminSetFeeHookBehavior(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.AdminSetFeeHookBehavior(stranger, flatSplit{}); err == nil {
		t.Fatal("non-admin swapped behavior")
	}

	res, err := e.Issue(ctx, issuer, testConfig())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	trader := domain.Address("trader")
	if err := e.Bank().Mint(ctx, domain.Address("quote"), trader, 1_000_000); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := e.ObserveTrade(ctx, res.Pool, domain.DirectionBuy, 100_000, trader); err != nil {
		t.Fatalf("first trade: %v", err)
	}

	// Swap mid-stream: the accrued fee from the first trade splits
	// under the new behavior.
	if err := e.AdminSetFeeHookBehavior(admin, flatSplit{}); err != nil {
		t.Fatalf("swap behavior: %v", err)
	}
	second, err := e.ObserveTrade(ctx, res.Pool, domain.DirectionBuy, 100_000, trader)
	if err != nil {
		t.Fatalf("second trade: %v", err)
	}
	if second.Collected != 1000 || second.ProtocolShare != 500 || second.UserShare != 500 {
		t.Errorf("collected=%d protocol=%d user=%d, want 1000/500/500",
			second.Collected, second.ProtocolShare, second.UserShare)
	}
}

func TestVerifySnapshot(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.ReserveTicker(ctx, domain.Address("owner"), "COOL"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	cfg := testConfig()
	if _, err := e.Issue(ctx, issuer, cfg); err != nil {
		t.Fatalf("issue: %v", err)
	}

	report, err := e.VerifySnapshot(ctx)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !report.Match {
		t.Errorf("fresh engine diverged: %+v", report.Divergences)
	}
	if report.EntriesReplayed != 2 {
		t.Errorf("entries replayed = %d, want 2", report.EntriesReplayed)
	}
}

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, Options{Admins: []domain.Address{admin}}); err == nil {
		t.Error("engine without store accepted")
	}
	if _, err := New(ctx, Options{Store: memory.NewEntryStore()}); err == nil {
		t.Error("engine without admins accepted")
	}
}
