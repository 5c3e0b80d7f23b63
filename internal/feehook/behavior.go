package feehook

import "mintledger/internal/domain"

// Behavior is the swappable fee-splitting module behind the hook's
// fixed identity. Accrued state lives in the hook, never in the
// behavior, so the module can be replaced without losing balances.
type Behavior interface {
	// SplitAccrued divides a collected fee amount into protocol and
	// user shares at the given protocol-fee rate.
	SplitAccrued(accrued uint64, rateBps uint16) (protocol, user uint64)
}

// ProRataSplit is the default behavior: protocol share is the rate
// applied to the accrued amount, user share is the exact remainder.
type ProRataSplit struct{}

// SplitAccrued implements Behavior.
func (ProRataSplit) SplitAccrued(accrued uint64, rateBps uint16) (uint64, uint64) {
	protocol := domain.BpsShare(accrued, rateBps)
	return protocol, accrued - protocol
}

var _ Behavior = ProRataSplit{}
