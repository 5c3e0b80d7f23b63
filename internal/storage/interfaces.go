// Package storage defines persistence interfaces for the ledger and the
// fee analytics sink, with in-memory, PostgreSQL, and ClickHouse
// implementations in subpackages.
package storage

import (
	"context"

	"mintledger/internal/domain"
)

// EntryStore persists the append-only ledger. It is the sole durable
// source of truth; every index and balance table is rebuildable by
// replaying it from entry 0.
type EntryStore interface {
	// Append stores a new entry. The entry's sequence must equal the
	// current length; returns ErrSequenceGap otherwise and
	// ErrDuplicateKey if the sequence already exists.
	Append(ctx context.Context, e *domain.LedgerEntry) error

	// Len returns the number of stored entries.
	Len(ctx context.Context) (uint64, error)

	// ReadRange retrieves up to count entries starting at start, in
	// sequence order, clipped to the current length.
	ReadRange(ctx context.Context, start, count uint64) ([]*domain.LedgerEntry, error)
}

// FeeEventStore records per-trade fee accounting rows for reporting.
// It is an analytics sink, never a source of truth.
type FeeEventStore interface {
	// Insert adds one fee event row.
	Insert(ctx context.Context, e *domain.FeeEvent) error
}
