package feehook

import (
	"fmt"
	"sync"

	"mintledger/internal/domain"
)

// ProtocolRate is the global protocol-fee rate: single writer, many
// readers, no caching layer. A write is visible to the very next read,
// which is what makes an administrator's change take effect on the next
// trade across every pool simultaneously.
type ProtocolRate struct {
	mu  sync.RWMutex
	bps uint16
}

// NewProtocolRate creates a rate config. The initial rate must respect
// the same bound as updates.
func NewProtocolRate(bps uint16) (*ProtocolRate, error) {
	r := &ProtocolRate{}
	if err := r.Set(bps); err != nil {
		return nil, err
	}
	return r, nil
}

// Set updates the rate. Bounds are enforced here, at update time:
// [0%, 40%].
func (r *ProtocolRate) Set(bps uint16) error {
	if bps > domain.MaxProtocolFeeBps {
		return &domain.ValidationError{
			Op:     "setProtocolFeeRate",
			Field:  "bps",
			Reason: fmt.Sprintf("%d exceeds maximum %d", bps, domain.MaxProtocolFeeBps),
		}
	}
	r.mu.Lock()
	r.bps = bps
	r.mu.Unlock()
	return nil
}

// Get returns the current rate. Callers must re-read on every
// collection and never cache the value.
func (r *ProtocolRate) Get() uint16 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bps
}
