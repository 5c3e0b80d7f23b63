package memory

import (
	"context"
	"sync"

	"mintledger/internal/domain"
	"mintledger/internal/storage"
)

// EntryStore is an in-memory implementation of storage.EntryStore.
type EntryStore struct {
	mu      sync.RWMutex
	entries []*domain.LedgerEntry
}

// NewEntryStore creates a new in-memory entry store.
func NewEntryStore() *EntryStore {
	return &EntryStore{}
}

// Append stores a new entry. The entry's sequence must equal the current length.
func (s *EntryStore) Append(_ context.Context, e *domain.LedgerEntry) error {
	if e == nil || !domain.ValidKind(e.Kind) || e.SubjectKey == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	length := uint64(len(s.entries))
	if e.Sequence < length {
		return storage.ErrDuplicateKey
	}
	if e.Sequence > length {
		return storage.ErrSequenceGap
	}

	// Store a copy to prevent external mutation
	entryCopy := *e
	s.entries = append(s.entries, &entryCopy)
	return nil
}

// Len returns the number of stored entries.
func (s *EntryStore) Len(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.entries)), nil
}

// ReadRange retrieves up to count entries starting at start, clipped to length.
func (s *EntryStore) ReadRange(_ context.Context, start, count uint64) ([]*domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	length := uint64(len(s.entries))
	if start >= length || count == 0 {
		return nil, nil
	}
	end := start + count
	if end > length {
		end = length
	}

	result := make([]*domain.LedgerEntry, 0, end-start)
	for _, e := range s.entries[start:end] {
		entryCopy := *e
		result = append(result, &entryCopy)
	}
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.EntryStore = (*EntryStore)(nil)
