package domain

import "math/bits"

// BpsShare returns amount * bps / 10000 using a 128-bit intermediate,
// so the product never overflows for any uint64 amount. The result is
// truncated toward zero; callers account for the remainder explicitly.
func BpsShare(amount uint64, bps uint16) uint64 {
	hi, lo := bits.Mul64(amount, uint64(bps))
	q, _ := bits.Div64(hi, lo, BpsDenominator)
	return q
}

// SplitByWeights splits amount across weights (in bps, summing to 10000).
// Each share is the truncated proportional amount; the remainder after
// truncation is added to the last share so the parts always sum exactly
// to amount.
func SplitByWeights(amount uint64, weights []uint16) []uint64 {
	shares := make([]uint64, len(weights))
	if len(weights) == 0 {
		return shares
	}
	var assigned uint64
	for i, w := range weights {
		shares[i] = BpsShare(amount, w)
		assigned += shares[i]
	}
	shares[len(shares)-1] += amount - assigned
	return shares
}

// SumWeights returns the sum of a weight list in bps.
func SumWeights(weights []uint16) uint32 {
	var sum uint32
	for _, w := range weights {
		sum += uint32(w)
	}
	return sum
}
