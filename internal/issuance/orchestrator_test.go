package issuance

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mintledger/internal/bank"
	"mintledger/internal/domain"
	"mintledger/internal/feehook"
	"mintledger/internal/idhash"
	"mintledger/internal/ledger"
	"mintledger/internal/locker"
	"mintledger/internal/storage/memory"
	"mintledger/internal/vault"
)

type deployRig struct {
	ledger *ledger.Ledger
	bank   *bank.Bank
	vault  *vault.Vault
	locker *locker.Locker
	hook   *feehook.Hook
	orch   *Orchestrator
}

func newDeployRig(t *testing.T) *deployRig {
	t.Helper()
	ctx := context.Background()

	l, err := ledger.New(ctx, memory.NewEntryStore(), ledger.Options{})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	b := bank.New()
	v := vault.New(b)
	lk := locker.New(b, v)
	rate, err := feehook.NewProtocolRate(2500)
	if err != nil {
		t.Fatalf("new rate: %v", err)
	}
	h := feehook.New(b, lk, rate, feehook.Options{})
	orch := New(l, b, lk, h, Options{})
	v.SetDepositor(lk.Address(), true)
	return &deployRig{ledger: l, bank: b, vault: v, locker: lk, hook: h, orch: orch}
}

func validConfig() *domain.DeploymentConfig {
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
			{LowerTick: -100, UpperTick: 0, WeightBps: 7000},
			{LowerTick: 0, UpperTick: 100, WeightBps: 3000},
		},
		QuoteAsset: domain.Address("quote"),
		BuyFeeBps:  100,
		SellFeeBps: 100,
	}
}

func TestDeploy_SupplySplit(t *testing.T) {
	rig := newDeployRig(t)
	ctx := context.Background()
	caller := domain.Address("issuer")
	cfg := validConfig()

	res, err := rig.orch.Deploy(ctx, caller, cfg)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}

	// 1e9 supply: 15% liquidity, 3% + 2% airdrop, rest to owner.
	if res.LiquidityAmount != 150_000_000 {
		t.Errorf("liquidity = %d, want 150000000", res.LiquidityAmount)
	}
	if res.AirdropAmount != 50_000_000 {
		t.Errorf("airdrop = %d, want 50000000", res.AirdropAmount)
	}
	if res.OwnerAmount != 850_000_000 {
		t.Errorf("owner = %d, want 850000000", res.OwnerAmount)
	}
	if got := res.LiquidityAmount + res.AirdropAmount + res.OwnerAmount; got != cfg.TotalSupply {
		t.Errorf("buckets sum to %d, want %d", got, cfg.TotalSupply)
	}

	if got := rig.bank.BalanceOf(res.Token, cfg.Owner); got != 850_000_000 {
		t.Errorf("owner balance = %d, want 850000000", got)
	}
	if got := rig.bank.BalanceOf(res.Token, domain.Address("alice")); got != 30_000_000 {
		t.Errorf("alice balance = %d, want 30000000", got)
	}
	if got := rig.bank.BalanceOf(res.Token, domain.Address("bob")); got != 20_000_000 {
		t.Errorf("bob balance = %d, want 20000000", got)
	}
	if got := rig.locker.LockedAmount(res.Token); got != 150_000_000 {
		t.Errorf("locked = %d, want 150000000", got)
	}
	// Nothing strands at the orchestrator account.
	if got := rig.bank.BalanceOf(res.Token, rig.orch.Address()); got != 0 {
		t.Errorf("orchestrator residual balance = %d, want 0", got)
	}
}

func TestDeploy_RegistersEverything(t *testing.T) {
	rig := newDeployRig(t)
	ctx := context.Background()
	cfg := validConfig()

	res, err := rig.orch.Deploy(ctx, domain.Address("issuer"), cfg)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}

	token, ok := rig.ledger.TokenByTicker("COOL")
	if !ok || token != res.Token {
		t.Errorf("TokenByTicker = %s, %v; want %s, true", token, ok, res.Token)
	}
	if creator, ok := rig.ledger.CreatorOf(res.Token); !ok || creator != cfg.Owner {
		t.Errorf("CreatorOf = %s, %v; want %s, true", creator, ok, cfg.Owner)
	}
	info, ok := rig.hook.Pool(res.Pool)
	if !ok {
		t.Fatalf("pool %s not registered", res.Pool)
	}
	if info.Token != res.Token || info.QuoteAsset != cfg.QuoteAsset {
		t.Errorf("pool info = %+v", info)
	}
	// The registration entry is the only ledger entry for a fresh deploy.
	if got := rig.ledger.Len(); got != 1 {
		t.Errorf("ledger length = %d, want 1", got)
	}
	if res.Entry != 0 {
		t.Errorf("entry sequence = %d, want 0", res.Entry)
	}
}

func TestDeploy_DustGoesToOwner(t *testing.T) {
	rig := newDeployRig(t)
	cfg := validConfig()
	cfg.TotalSupply = 999_999_999 // does not divide evenly by any share

	res, err := rig.orch.Deploy(context.Background(), domain.Address("issuer"), cfg)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if got := res.LiquidityAmount + res.AirdropAmount + res.OwnerAmount; got != cfg.TotalSupply {
		t.Errorf("buckets sum to %d, want %d", got, cfg.TotalSupply)
	}
	if rig.bank.TotalSupply(res.Token) != cfg.TotalSupply {
		t.Errorf("total supply = %d, want %d", rig.bank.TotalSupply(res.Token), cfg.TotalSupply)
	}
}

func TestDeploy_DeterministicIdentity(t *testing.T) {
	rigA := newDeployRig(t)
	rigB := newDeployRig(t)
	ctx := context.Background()
	caller := domain.Address("issuer")

	resA, err := rigA.orch.Deploy(ctx, caller, validConfig())
	if err != nil {
		t.Fatalf("deploy A: %v", err)
	}
	resB, err := rigB.orch.Deploy(ctx, caller, validConfig())
	if err != nil {
		t.Fatalf("deploy B: %v", err)
	}
	if resA.Token != resB.Token {
		t.Errorf("same caller+salt+config produced %s and %s", resA.Token, resB.Token)
	}

	// Different salt, different identity.
	cfg := validConfig()
	cfg.Salt = "salt-2"
	cfg.Ticker = "WARM"
	resC, err := rigA.orch.Deploy(ctx, caller, cfg)
	if err != nil {
		t.Fatalf("deploy C: %v", err)
	}
	if resC.Token == resA.Token {
		t.Error("different salt produced the same identity")
	}
}

func TestDeploy_RedeployConflicts(t *testing.T) {
	rig := newDeployRig(t)
	ctx := context.Background()
	caller := domain.Address("issuer")

	if _, err := rig.orch.Deploy(ctx, caller, validConfig()); err != nil {
		t.Fatalf("first deploy: %v", err)
	}

	var conflict *domain.ConflictError

	// Same identity again.
	_, err := rig.orch.Deploy(ctx, caller, validConfig())
	if !asErr(err, &conflict) {
		t.Errorf("redeploy: got %v, want ConflictError", err)
	}

	// Fresh identity but taken ticker.
	cfg := validConfig()
	cfg.Salt = "salt-2"
	_, err = rig.orch.Deploy(ctx, caller, cfg)
	if !asErr(err, &conflict) {
		t.Errorf("taken ticker: got %v, want ConflictError", err)
	}
}

func TestDeploy_HonorsReservation(t *testing.T) {
	rig := newDeployRig(t)
	ctx := context.Background()

	if _, err := rig.ledger.Reserve(ctx, "COOL", domain.Address("rival")); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	var conflict *domain.ConflictError
	_, err := rig.orch.Deploy(ctx, domain.Address("issuer"), validConfig())
	if !asErr(err, &conflict) {
		t.Fatalf("deploy over rival reservation: got %v, want ConflictError", err)
	}
	// A failed deploy must not mint anything.
	if got := rig.ledger.Len(); got != 1 {
		t.Errorf("ledger length = %d, want 1 (the reservation)", got)
	}
}

func TestDeploy_ReservationByOwnerAccepted(t *testing.T) {
	rig := newDeployRig(t)
	ctx := context.Background()
	cfg := validConfig()

	if _, err := rig.ledger.Reserve(ctx, "COOL", cfg.Owner); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := rig.orch.Deploy(ctx, domain.Address("issuer"), cfg); err != nil {
		t.Fatalf("deploy with own reservation: %v", err)
	}
}

func TestDeploy_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.DeploymentConfig)
		field  string
	}{
		{"empty name", func(c *domain.DeploymentConfig) { c.Name = "" }, "name"},
		{"empty ticker", func(c *domain.DeploymentConfig) { c.Ticker = "" }, "ticker"},
		{"empty salt", func(c *domain.DeploymentConfig) { c.Salt = "" }, "salt"},
		{"zero owner", func(c *domain.DeploymentConfig) { c.Owner = "" }, "owner"},
		{"zero quote", func(c *domain.DeploymentConfig) { c.QuoteAsset = "" }, "quoteAsset"},
		{"zero supply", func(c *domain.DeploymentConfig) { c.TotalSupply = 0 }, "totalSupply"},
		{"liquidity below floor", func(c *domain.DeploymentConfig) { c.LiquidityBps = 100 }, "liquidityBps"},
		{
			"shares exceed total",
			func(c *domain.DeploymentConfig) {
				c.LiquidityBps = 9800
				c.AirdropBps = 500
			},
			"shares",
		},
		{
			"airdrop share without recipients",
			func(c *domain.DeploymentConfig) { c.Airdrop = nil },
			"airdrop",
		},
		{
			"airdrop recipients without share",
			func(c *domain.DeploymentConfig) { c.AirdropBps = 0 },
			"airdrop",
		},
		{
			"airdrop shares do not sum",
			func(c *domain.DeploymentConfig) { c.Airdrop[1].Amount = 100 },
			"airdrop",
		},
		{
			"airdrop zero address",
			func(c *domain.DeploymentConfig) { c.Airdrop[0].Recipient = "" },
			"airdrop",
		},
		{
			"position weights do not sum",
			func(c *domain.DeploymentConfig) { c.Positions[0].WeightBps = 1000 },
			"positions",
		},
		{
			"recipient weights do not sum",
			func(c *domain.DeploymentConfig) { c.FeeRecipients[0].WeightBps = 1000 },
			"feeRecipients",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newDeployRig(t)
			cfg := validConfig()
			tt.mutate(cfg)

			var verr *domain.ValidationError
			_, err := rig.orch.Deploy(context.Background(), domain.Address("issuer"), cfg)
			if !asErr(err, &verr) {
				t.Fatalf("got %v, want ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Field, tt.field)
			}
			// Validation failures never touch state.
			if rig.ledger.Len() != 0 {
				t.Errorf("ledger length = %d, want 0", rig.ledger.Len())
			}
		})
	}
}

func TestDeploy_ZeroBucketRejectedBeforeMint(t *testing.T) {
	rig := newDeployRig(t)
	ctx := context.Background()
	caller := domain.Address("issuer")

	// 1500 bps of 5 units truncates to zero; the deploy must fail in
	// validation with no supply minted at the would-be identity.
	cfg := validConfig()
	cfg.TotalSupply = 5

	var verr *domain.ValidationError
	_, err := rig.orch.Deploy(ctx, caller, cfg)
	if !asErr(err, &verr) {
		t.Fatalf("got %v, want ValidationError", err)
	}
	if verr.Field != "liquidityBps" {
		t.Errorf("field = %q, want liquidityBps", verr.Field)
	}
	token := idhash.TokenID(caller, cfg.Salt, idhash.ConfigDigest(cfg))
	if got := rig.bank.TotalSupply(token); got != 0 {
		t.Errorf("failed deploy minted %d units", got)
	}
	if got := rig.ledger.Len(); got != 0 {
		t.Errorf("ledger length = %d, want 0", got)
	}

	// The same salt stays usable once the config is corrected.
	cfg.TotalSupply = 1_000_000_000
	if _, err := rig.orch.Deploy(ctx, caller, cfg); err != nil {
		t.Fatalf("redeploy after correction: %v", err)
	}
}

func TestDeploy_ZeroAirdropUnitsRejected(t *testing.T) {
	rig := newDeployRig(t)

	// 200 bps of 40 units truncates to zero for the second recipient.
	cfg := validConfig()
	cfg.TotalSupply = 40

	var verr *domain.ValidationError
	_, err := rig.orch.Deploy(context.Background(), domain.Address("issuer"), cfg)
	if !asErr(err, &verr) {
		t.Fatalf("got %v, want ValidationError", err)
	}
	if verr.Field != "airdrop" {
		t.Errorf("field = %q, want airdrop", verr.Field)
	}
	if got := rig.ledger.Len(); got != 0 {
		t.Errorf("ledger length = %d, want 0", got)
	}
}

func asErr(err error, target any) bool {
	if err == nil {
		return false
	}
	return errors.As(err, target)
}

func TestDeploy_TickerCaseInsensitive(t *testing.T) {
	rig := newDeployRig(t)
	ctx := context.Background()
	caller := domain.Address("issuer")

	if _, err := rig.orch.Deploy(ctx, caller, validConfig()); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	cfg := validConfig()
	cfg.Salt = "salt-2"
	cfg.Ticker = strings.ToLower(cfg.Ticker)
	var conflict *domain.ConflictError
	if _, err := rig.orch.Deploy(ctx, caller, cfg); !asErr(err, &conflict) {
		t.Errorf("lowercase variant of taken ticker: got %v, want ConflictError", err)
	}
}
