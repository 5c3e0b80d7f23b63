// Package idhash derives deterministic identities for tickers, tokens,
// and pools. Identical inputs always derive identical identities, which
// is what makes re-submission after a transient failure safe upstream.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// TickerHash computes the canonical subject key for a ticker symbol.
// Tickers are case-insensitive; the hash is over the uppercased form.
// Returns hex-encoded SHA256 (64 characters).
func TickerHash(ticker string) string {
	normalized := strings.ToUpper(strings.TrimSpace(ticker))
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:])
}
