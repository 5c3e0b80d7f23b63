package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"mintledger/internal/address"
	"mintledger/internal/domain"
)

// TokenID derives the token identity for a deployment.
// Formula: SHA256(deployer|salt|config_digest), encoded as a base58 address.
// The same deployer, salt, and configuration always derive the same token,
// so a re-deploy at an existing identity is detectable before any mutation.
func TokenID(deployer domain.Address, salt string, configDigest string) domain.Address {
	data := fmt.Sprintf("%s|%s|%s", deployer, salt, configDigest)
	hash := sha256.Sum256([]byte(data))
	addr, _ := address.FromBytes(hash[:])
	return addr
}

// PoolID derives the pool identity for a token/quote pair.
// Formula: SHA256(token|quote), encoded as a base58 address.
func PoolID(token, quote domain.Address) domain.Address {
	data := fmt.Sprintf("%s|%s", token, quote)
	hash := sha256.Sum256([]byte(data))
	addr, _ := address.FromBytes(hash[:])
	return addr
}

// ConfigDigest computes a stable digest over the fields of a deployment
// configuration that define the token's identity.
// Returns hex-encoded SHA256 (64 characters).
func ConfigDigest(cfg *domain.DeploymentConfig) string {
	data := fmt.Sprintf("%s|%s|%d|%s|%d|%d|%s|%d|%d",
		cfg.Name,
		TickerHash(cfg.Ticker),
		cfg.TotalSupply,
		cfg.Owner,
		cfg.LiquidityBps,
		cfg.AirdropBps,
		cfg.QuoteAsset,
		cfg.BuyFeeBps,
		cfg.SellFeeBps,
	)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
