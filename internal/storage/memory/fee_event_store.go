package memory

import (
	"context"
	"sync"

	"mintledger/internal/domain"
	"mintledger/internal/storage"
)

// FeeEventStore is an in-memory implementation of storage.FeeEventStore.
type FeeEventStore struct {
	mu     sync.RWMutex
	events []*domain.FeeEvent
}

// NewFeeEventStore creates a new in-memory fee event store.
func NewFeeEventStore() *FeeEventStore {
	return &FeeEventStore{}
}

// Insert adds one fee event row.
func (s *FeeEventStore) Insert(_ context.Context, e *domain.FeeEvent) error {
	if e == nil || e.Pool.Zero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	eventCopy := *e
	s.events = append(s.events, &eventCopy)
	return nil
}

// Events returns a snapshot of all stored events in insertion order.
func (s *FeeEventStore) Events() []*domain.FeeEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.FeeEvent, 0, len(s.events))
	for _, e := range s.events {
		eventCopy := *e
		result = append(result, &eventCopy)
	}
	return result
}

// Verify interface compliance at compile time.
var _ storage.FeeEventStore = (*FeeEventStore)(nil)
