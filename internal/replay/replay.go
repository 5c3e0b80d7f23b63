// Package replay rebuilds materialized indexes from the ledger and
// verifies that the live indexes match a fresh replay. The ledger is
// the sole durable source of truth; everything derived from it must be
// reproducible from entry 0.
package replay

import (
	"context"
	"fmt"

	"mintledger/internal/ledger"
	"mintledger/internal/storage"
)

// pageSize is how many entries are loaded per page during a replay.
const pageSize = 500

// Rebuild replays every stored entry in sequence order into a fresh
// index. reservationWindowMs must match the ledger's configured window.
func Rebuild(ctx context.Context, store storage.EntryStore, reservationWindowMs int64) (*ledger.Index, error) {
	idx := ledger.NewIndex()

	var start uint64
	for {
		entries, err := store.ReadRange(ctx, start, pageSize)
		if err != nil {
			return nil, fmt.Errorf("read entries from %d: %w", start, err)
		}
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			if e.Sequence != idx.Length {
				return nil, fmt.Errorf("non-dense ledger: entry %d at height %d", e.Sequence, idx.Length)
			}
			idx.Apply(e, reservationWindowMs)
		}
		start += uint64(len(entries))
	}

	return idx, nil
}
