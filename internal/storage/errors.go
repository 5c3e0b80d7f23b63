package storage

import "errors"

// Storage errors for append-only stores.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSequenceGap is returned when an append would break the dense
	// sequence. The ledger is append-only: entry N can only be written
	// when exactly N entries exist.
	ErrSequenceGap = errors.New("sequence gap: entry sequence must equal current length")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a sequence that already exists. Entries are never rewritten.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
