// Package address parses and validates base58 account addresses.
package address

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"mintledger/internal/domain"
)

// addressLen is the decoded byte length of every address.
const addressLen = 32

// Parse decodes and validates a base58 address string.
// The decoded form must be exactly 32 bytes.
func Parse(s string) (domain.Address, error) {
	if s == "" {
		return "", fmt.Errorf("empty address")
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return "", fmt.Errorf("decode address: %w", err)
	}
	if len(raw) != addressLen {
		return "", fmt.Errorf("address must decode to %d bytes, got %d", addressLen, len(raw))
	}
	return domain.Address(s), nil
}

// FromBytes encodes a 32-byte value as an address.
func FromBytes(raw []byte) (domain.Address, error) {
	if len(raw) != addressLen {
		return "", fmt.Errorf("address must be %d bytes, got %d", addressLen, len(raw))
	}
	return domain.Address(base58.Encode(raw)), nil
}

// OnCurve reports whether the address decodes to a valid ed25519 curve
// point, which distinguishes key-backed accounts from derived ones.
func OnCurve(a domain.Address) bool {
	raw, err := base58.Decode(string(a))
	if err != nil || len(raw) != addressLen {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}

// Derive produces a deterministic off-curve address from the given seeds.
// The same seeds always derive the same address.
func Derive(seeds ...[]byte) domain.Address {
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, []byte("DerivedAccountAddress")...)

		hash := sha256.Sum256(data)
		if !onCurveBytes(hash[:]) {
			return domain.Address(base58.Encode(hash[:]))
		}
	}
	return ""
}

func onCurveBytes(point []byte) bool {
	if len(point) != addressLen {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
