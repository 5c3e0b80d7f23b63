package domain

// Basis point constants. All share arithmetic uses integer basis points
// (1 bps = 1/100 of one percent).
const (
	// BpsDenominator is the number of basis points in 100%.
	BpsDenominator = 10_000

	// MaxProtocolFeeBps bounds the global protocol-fee rate.
	MaxProtocolFeeBps = 4_000

	// MaxPositions is the maximum number of locked liquidity position ranges.
	MaxPositions = 7

	// MaxFeeRecipients is the maximum number of fee recipient slots.
	MaxFeeRecipients = 5
)

// AirdropRecipient is one (recipient, amount) pair of an airdrop allocation.
type AirdropRecipient struct {
	Recipient Address
	Amount    uint64
}

// FeeRecipient is one weighted slot of the locker's fee recipient table.
type FeeRecipient struct {
	Recipient Address
	WeightBps uint16
}

// PositionRange describes one weighted liquidity position range.
// Ranges in a layout must be disjoint and weights must sum to 100%.
type PositionRange struct {
	LowerTick int32
	UpperTick int32
	WeightBps uint16
}

// DeploymentConfig is the validated configuration for one token issuance.
// It is validated once by the orchestrator and immutable afterwards.
type DeploymentConfig struct {
	Name   string
	Ticker string
	Salt   string // caller-supplied; same salt + config derives the same identity

	TotalSupply uint64
	Owner       Address

	// LiquidityBps is the share of supply committed as locked liquidity.
	LiquidityBps uint16

	// AirdropBps is the total airdrop share; Airdrop lists its recipients.
	// Amounts in the list are denominated in bps of total supply and must
	// sum exactly to AirdropBps.
	AirdropBps uint16
	Airdrop    []AirdropRecipient

	// FeeRecipients is the locker's fee split table, weights sum to 100%.
	FeeRecipients []FeeRecipient

	// Positions is the locked liquidity layout, weights sum to 100%.
	Positions []PositionRange

	// QuoteAsset is the asset the token trades against.
	QuoteAsset Address

	// Directional static fee rates applied per trade.
	BuyFeeBps  uint16
	SellFeeBps uint16
}

// PoolInfo describes one registered trading pool. Created exactly once.
type PoolInfo struct {
	Pool        Address
	Token       Address
	QuoteAsset  Address
	BuyFeeBps   uint16
	SellFeeBps  uint16
	Initialized bool
}

// TradeDirection is the side of an observed trade.
type TradeDirection string

// Trade direction constants.
const (
	DirectionBuy  TradeDirection = "buy"
	DirectionSell TradeDirection = "sell"
)

// FeeEvent is one per-trade fee accounting row for the analytics sink.
type FeeEvent struct {
	Pool          Address
	Asset         Address
	Direction     TradeDirection
	TradeAmount   uint64
	FeeCharged    uint64 // current trade's fee, accrued for the next collection
	CollectedFee  uint64 // previous trade's accrued fee collected on this trade
	ProtocolShare uint64
	UserShare     uint64
	RateBps       uint16 // protocol-fee rate in effect at collection time
	TimestampMs   int64
}
